// Package audit records validation outcomes: the audit store, the result
// cache, the velocity counters and the decision topics.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/txguard/internal/cache"
	"github.com/opensource-finance/txguard/internal/domain"
	"github.com/opensource-finance/txguard/internal/repository"
)

// ErrNotFound is returned by Lookup when no validation exists for an id.
var ErrNotFound = errors.New("validation not found")

// VelocityRecorder counts a user's transactions.
type VelocityRecorder interface {
	Record(ctx context.Context, userID string) error
}

// Recorder persists and announces validation outcomes. Every collaborator
// is optional.
type Recorder struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	velocity  VelocityRecorder
	resultTTL time.Duration
}

// NewRecorder creates a Recorder.
func NewRecorder(repo domain.Repository, c domain.Cache, bus domain.EventBus, velocity VelocityRecorder, resultTTL time.Duration) *Recorder {
	if resultTTL <= 0 {
		resultTTL = 10 * time.Minute
	}
	return &Recorder{
		repo:      repo,
		cache:     c,
		bus:       bus,
		velocity:  velocity,
		resultTTL: resultTTL,
	}
}

// Record stores one outcome. Only a failed repository write is returned;
// cache, velocity and bus failures are logged.
func (r *Recorder) Record(ctx context.Context, tx *domain.Transaction, result *domain.ValidationResult) error {
	if tx == nil || result == nil {
		return fmt.Errorf("transaction and result are required")
	}

	var saveErr error
	if r.repo != nil {
		if err := r.repo.SaveValidation(ctx, tx, result); err != nil {
			saveErr = fmt.Errorf("failed to save validation %s: %w", tx.ID, err)
		}
	}

	// A resubmission neither counts towards velocity nor replaces the
	// committed outcome in the result cache.
	duplicate := result.HasError(domain.KindDuplicateTransaction)

	if r.velocity != nil && !duplicate {
		if err := r.velocity.Record(ctx, tx.UserID); err != nil {
			slog.Warn("failed to record velocity", "tx_id", tx.ID, "error", err)
		}
	}

	rec := &domain.ValidationRecord{
		Transaction: tx,
		Result:      result,
		Approved:    result.IsApproved(),
	}

	if r.cache != nil && tx.ID != "" && !duplicate {
		if err := cache.SetRecord(ctx, r.cache, rec, r.resultTTL); err != nil {
			slog.Warn("failed to cache validation", "tx_id", tx.ID, "error", err)
		}
	}

	r.publish(ctx, rec)

	return saveErr
}

func (r *Recorder) publish(ctx context.Context, rec *domain.ValidationRecord) {
	if r.bus == nil {
		return
	}

	payload, err := json.Marshal(rec.Result)
	if err != nil {
		slog.Error("failed to marshal decision", "tx_id", rec.Result.TransactionID, "error", err)
		return
	}

	if err := r.bus.Publish(ctx, domain.TopicValidationDecision, payload); err != nil {
		slog.Error("failed to publish decision", "tx_id", rec.Result.TransactionID, "error", err)
	}

	if !rec.Approved {
		if err := r.bus.Publish(ctx, domain.TopicValidationRejected, payload); err != nil {
			slog.Error("failed to publish rejection", "tx_id", rec.Result.TransactionID, "error", err)
		}
	}
}

// Lookup returns the committed validation of a transaction id, from the
// cache when present and otherwise from the repository. Rejected
// resubmissions are returned only when nothing else was recorded.
func (r *Recorder) Lookup(ctx context.Context, txID string) (*domain.ValidationRecord, error) {
	if txID == "" {
		return nil, fmt.Errorf("transaction id is required")
	}

	if r.cache != nil {
		rec, err := cache.GetRecord(ctx, r.cache, txID)
		if err != nil {
			slog.Warn("result cache lookup failed", "tx_id", txID, "error", err)
		} else if rec != nil {
			return rec, nil
		}
	}

	if r.repo == nil {
		return nil, ErrNotFound
	}

	rec, err := r.repo.GetValidation(ctx, txID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := cache.SetRecord(ctx, r.cache, rec, r.resultTTL); err != nil {
			slog.Warn("failed to cache validation", "tx_id", txID, "error", err)
		}
	}
	return rec, nil
}
