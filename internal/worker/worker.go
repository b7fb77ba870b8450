// Package worker validates transactions submitted over the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/txguard/internal/audit"
	"github.com/opensource-finance/txguard/internal/domain"
	"github.com/opensource-finance/txguard/internal/metrics"
	"github.com/opensource-finance/txguard/internal/validator"
)

// ErrWorkerStopped is returned for messages delivered after Stop.
var ErrWorkerStopped = errors.New("worker stopped")

// Worker consumes txguard.transaction.submitted, validates each transaction
// and hands the outcome to the audit recorder, which publishes the decision.
type Worker struct {
	bus       domain.EventBus
	validator *validator.Validator
	recorder  *audit.Recorder
	metrics   *metrics.Collector

	sem           chan struct{}
	subscriptions []domain.Subscription
	mu            sync.Mutex
	wg            sync.WaitGroup
	stop          chan struct{}
	stopped       bool
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// Concurrency bounds how many transactions are validated at once.
	Concurrency int

	// Metrics is optional.
	Metrics *metrics.Collector
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, v *validator.Validator, recorder *audit.Recorder) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		validator: v,
		recorder:  recorder,
		stop:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to submitted transactions.
func (w *Worker) Start(cfg Config) error {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sem != nil {
		return fmt.Errorf("worker already started")
	}
	w.sem = make(chan struct{}, cfg.Concurrency)
	w.metrics = cfg.Metrics

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicTransactionSubmitted, w.handleMessage)
	if err != nil {
		w.sem = nil
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", domain.TopicTransactionSubmitted,
		"concurrency", cfg.Concurrency,
	)
	return nil
}

// handleMessage decodes the transaction and validates it on a free slot.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var tx domain.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		w.failed.Add(1)
		slog.Error("failed to parse submitted transaction",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Registered before waiting on a slot so Stop never races a late Add.
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrWorkerStopped
	}
	w.wg.Add(1)
	w.mu.Unlock()

	select {
	case w.sem <- struct{}{}:
	case <-w.stop:
		w.wg.Done()
		return ErrWorkerStopped
	case <-ctx.Done():
		w.wg.Done()
		return ctx.Err()
	}

	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()
		w.process(w.ctx, msg.ID, &tx)
	}()
	return nil
}

func (w *Worker) process(ctx context.Context, messageID string, tx *domain.Transaction) {
	start := time.Now()

	result := w.validator.Validate(ctx, tx)

	if w.recorder != nil {
		if err := w.recorder.Record(ctx, tx, result); err != nil {
			w.failed.Add(1)
			slog.Error("failed to record validation",
				"tx_id", tx.ID,
				"message_id", messageID,
				"error", err,
			)
		}
	}

	w.processed.Add(1)
	w.metrics.Observe("worker", result, time.Since(start))
	slog.Info("transaction validated",
		"tx_id", tx.ID,
		"message_id", messageID,
		"approved", result.IsApproved(),
		"fraud_score", result.FraudScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stop unsubscribes and waits for in-flight validations. Messages still
// waiting for a slot are dropped. Stop is idempotent.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stop)
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.wg.Wait()
	w.cancel()

	slog.Info("worker stopped", "processed", w.processed.Load())
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
