package audit

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/txguard/internal/bus"
	"github.com/opensource-finance/txguard/internal/cache"
	"github.com/opensource-finance/txguard/internal/domain"
	"github.com/opensource-finance/txguard/internal/repository"
	"github.com/opensource-finance/txguard/internal/validator"
	"github.com/shopspring/decimal"
)

type countingVelocity struct {
	mu    sync.Mutex
	users []string
}

func (c *countingVelocity) Record(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = append(c.users, userID)
	return nil
}

func (c *countingVelocity) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.users)
}

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "txguard-audit-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sample(txID string, score int) (*domain.Transaction, *domain.ValidationResult) {
	tx := &domain.Transaction{
		ID:          txID,
		Type:        domain.TypeTransfer,
		Amount:      decimal.RequireFromString("250.00"),
		Currency:    "USD",
		FromAccount: domain.Account("ACCT-1111-2222-3333-4444"),
		ToAccount:   domain.Account("ACCT-5555-6666-7777-8888"),
		Timestamp:   time.Now().UTC(),
		UserID:      "user-1",
	}
	result := domain.NewValidationResult(txID, 70)
	result.ValidationID = "val-" + txID
	result.UserID = tx.UserID
	result.FraudScore = score
	result.ValidatedAt = time.Now().UTC()
	return tx, result
}

func subscribe(t *testing.T, b domain.EventBus, topic string) <-chan *domain.Message {
	t.Helper()
	ch := make(chan *domain.Message, 10)
	_, err := b.Subscribe(context.Background(), topic, func(ctx context.Context, msg *domain.Message) error {
		ch <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	return ch
}

func TestRecorderRecord(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	c := cache.NewLRUCache(100)
	b := bus.NewChannelBus(10)
	defer b.Close()
	vel := &countingVelocity{}

	decisions := subscribe(t, b, domain.TopicValidationDecision)
	rejections := subscribe(t, b, domain.TopicValidationRejected)

	rec := NewRecorder(repo, c, b, vel, time.Minute)

	t.Run("Approved", func(t *testing.T) {
		tx, result := sample("tx-approved", 10)
		if err := rec.Record(ctx, tx, result); err != nil {
			t.Fatalf("record failed: %v", err)
		}

		stored, err := repo.GetValidation(ctx, "tx-approved")
		if err != nil {
			t.Fatalf("validation not persisted: %v", err)
		}
		if !stored.Approved {
			t.Error("expected stored record to be approved")
		}

		cached, err := cache.GetRecord(ctx, c, "tx-approved")
		if err != nil || cached == nil {
			t.Fatalf("validation not cached: %v", err)
		}

		select {
		case msg := <-decisions:
			if msg.Topic != domain.TopicValidationDecision {
				t.Errorf("unexpected topic %s", msg.Topic)
			}
		case <-time.After(time.Second):
			t.Fatal("no decision published")
		}

		select {
		case <-rejections:
			t.Error("approved result must not be published as rejected")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("Rejected", func(t *testing.T) {
		tx, result := sample("tx-rejected", 90)
		if err := rec.Record(ctx, tx, result); err != nil {
			t.Fatalf("record failed: %v", err)
		}

		for name, ch := range map[string]<-chan *domain.Message{"decision": decisions, "rejection": rejections} {
			select {
			case <-ch:
			case <-time.After(time.Second):
				t.Fatalf("no %s published", name)
			}
		}
	})

	t.Run("DuplicateNotCountedForVelocity", func(t *testing.T) {
		before := vel.count()
		tx, result := sample("tx-approved", 10)
		result.ValidationID = "val-dup"
		result.AddError(domain.NewValidationError(domain.KindDuplicateTransaction, "transaction_id", "already processed"))

		if err := rec.Record(ctx, tx, result); err != nil {
			t.Fatalf("record failed: %v", err)
		}
		if vel.count() != before {
			t.Errorf("duplicate counted towards velocity")
		}
		<-decisions
		<-rejections
	})

	t.Run("RequiresInput", func(t *testing.T) {
		if err := rec.Record(ctx, nil, nil); err == nil {
			t.Error("expected error for nil input")
		}
	})

	if vel.count() != 2 {
		t.Errorf("expected 2 velocity records, got %d", vel.count())
	}
}

func TestRecorderRepositoryFailure(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	rec := NewRecorder(repo, nil, nil, nil, 0)

	tx, result := sample("tx-no-id", 10)
	result.ValidationID = ""

	err := rec.Record(ctx, tx, result)
	if !errors.Is(err, repository.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRecorderLookup(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	c := cache.NewLRUCache(100)

	t.Run("RepositoryFallbackFillsCache", func(t *testing.T) {
		tx, result := sample("tx-stored", 20)
		if err := repo.SaveValidation(ctx, tx, result); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		rec := NewRecorder(repo, c, nil, nil, time.Minute)
		got, err := rec.Lookup(ctx, "tx-stored")
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if got.Result.FraudScore != 20 {
			t.Errorf("expected score 20, got %d", got.Result.FraudScore)
		}

		cached, _ := cache.GetRecord(ctx, c, "tx-stored")
		if cached == nil {
			t.Error("expected repository hit to be cached")
		}
	})

	t.Run("CacheOnly", func(t *testing.T) {
		rec := NewRecorder(nil, c, nil, nil, time.Minute)
		tx, result := sample("tx-cached", 5)
		if err := rec.Record(ctx, tx, result); err != nil {
			t.Fatalf("record failed: %v", err)
		}

		got, err := rec.Lookup(ctx, "tx-cached")
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if got.Transaction.ID != "tx-cached" {
			t.Errorf("unexpected record %+v", got.Transaction)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		rec := NewRecorder(repo, c, nil, nil, time.Minute)
		if _, err := rec.Lookup(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		bare := NewRecorder(nil, nil, nil, nil, 0)
		if _, err := bare.Lookup(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound without stores, got %v", err)
		}
	})

	t.Run("RequiresID", func(t *testing.T) {
		rec := NewRecorder(repo, c, nil, nil, time.Minute)
		if _, err := rec.Lookup(ctx, ""); err == nil {
			t.Error("expected error for empty id")
		}
	})
}

func TestRecorderDuplicateKeepsCommittedOutcome(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	c := cache.NewLRUCache(100)
	v := validator.NewDefault()
	rec := NewRecorder(repo, c, nil, nil, time.Minute)

	tx, _ := sample("tx-retried", 0)
	tx.Timestamp = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

	first := v.Validate(ctx, tx)
	if !first.IsApproved() {
		t.Fatalf("expected first submission approved, got %v", first.ErrorMessages())
	}
	if err := rec.Record(ctx, tx, first); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	// Same id, different payload.
	retry := *tx
	retry.Amount = decimal.RequireFromString("999.00")
	second := v.Validate(ctx, &retry)
	if !second.HasError(domain.KindDuplicateTransaction) {
		t.Fatalf("expected duplicate rejection, got %v", second.ErrorMessages())
	}
	if err := rec.Record(ctx, &retry, second); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	check := func(t *testing.T, got *domain.ValidationRecord) {
		t.Helper()
		if !got.Approved || got.Result.HasError(domain.KindDuplicateTransaction) {
			t.Errorf("expected committed approval, got approved=%v errors=%v", got.Approved, got.Result.ErrorMessages())
		}
		if !got.Transaction.Amount.Equal(tx.Amount) {
			t.Errorf("expected original amount %s, got %s", tx.Amount, got.Transaction.Amount)
		}
	}

	t.Run("Cached", func(t *testing.T) {
		got, err := rec.Lookup(ctx, "tx-retried")
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		check(t, got)
	})

	t.Run("RepositoryOnly", func(t *testing.T) {
		got, err := NewRecorder(repo, nil, nil, nil, 0).Lookup(ctx, "tx-retried")
		if err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		check(t, got)
	})
}
