// Package velocity tracks how many transactions a user submitted recently.
package velocity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/txguard/internal/domain"
)

// Service counts recent validations per user. Live counts come from windowed
// cache counters; the repository answers when the cache has nothing, such as
// right after a restart. It implements domain.VelocitySource.
type Service struct {
	repo   domain.Repository
	cache  domain.Cache
	window time.Duration
	now    func() time.Time
}

// NewService creates a new velocity service. Either store may be nil.
func NewService(repo domain.Repository, cache domain.Cache, window time.Duration) *Service {
	if window <= 0 {
		window = time.Hour
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		window: window,
		now:    time.Now,
	}
}

func counterKey(userID string) string {
	return "velocity:" + userID
}

// Record counts one more transaction for the user.
func (s *Service) Record(ctx context.Context, userID string) error {
	if userID == "" || s.cache == nil {
		return nil
	}
	if _, err := s.cache.IncrementCounter(ctx, counterKey(userID), s.window); err != nil {
		return fmt.Errorf("failed to record velocity for %s: %w", userID, err)
	}
	return nil
}

// RecentTransactionCount returns how many transactions the user made inside
// window. The cache counter covers the service's own window; the repository
// fallback honours the requested one.
func (s *Service) RecentTransactionCount(ctx context.Context, userID string, window time.Duration) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("userID is required")
	}

	if s.cache != nil {
		count, err := s.cache.Counter(ctx, counterKey(userID))
		if err == nil && count > 0 {
			return count, nil
		}
		if err != nil {
			slog.Warn("velocity counter unavailable, falling back to repository",
				"user_id", userID,
				"error", err,
			)
		}
	}

	if s.repo != nil {
		count, err := s.repo.CountValidationsByUser(ctx, userID, s.now().Add(-window))
		if err != nil {
			return 0, fmt.Errorf("failed to count validations: %w", err)
		}
		return count, nil
	}

	if s.cache != nil {
		return 0, nil
	}
	return 0, fmt.Errorf("no data source available")
}
