// TxGuard - Validation gate for financial transactions.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/opensource-finance/txguard/internal/api"
	"github.com/opensource-finance/txguard/internal/audit"
	"github.com/opensource-finance/txguard/internal/bus"
	"github.com/opensource-finance/txguard/internal/cache"
	"github.com/opensource-finance/txguard/internal/domain"
	"github.com/opensource-finance/txguard/internal/geo"
	"github.com/opensource-finance/txguard/internal/metrics"
	"github.com/opensource-finance/txguard/internal/repository"
	"github.com/opensource-finance/txguard/internal/rules"
	"github.com/opensource-finance/txguard/internal/sanctions"
	"github.com/opensource-finance/txguard/internal/validator"
	"github.com/opensource-finance/txguard/internal/velocity"
	"github.com/opensource-finance/txguard/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg, err := domain.LoadConfig(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting txguard",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"profile", cfg.Profile,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"fraud_threshold", cfg.Validator.FraudThreshold,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Heuristic rules
	engine, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	engine.SetLocation(cfg.Validator.Fraud.OffHoursLocation)
	if err := loadRules(ctx, cfg, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Sanctions list
	screener := sanctions.NewScreener()
	screener.SetFuzzyThreshold(cfg.Sanctions.FuzzyThreshold)
	for _, list := range cfg.Sanctions.DisabledLists {
		screener.DisableList(list)
	}
	if err := screener.Load(ctx, repo); err != nil {
		slog.Warn("failed to load sanctions list", "error", err)
	}
	slog.Info("sanctions screener initialized",
		"entries", screener.Len(),
		"fuzzy_threshold", cfg.Sanctions.FuzzyThreshold,
		"disabled_lists", cfg.Sanctions.DisabledLists,
	)

	// Velocity
	velocitySvc := velocity.NewService(repo, cacheImpl, cfg.Validator.Fraud.VelocityWindow)

	opts := []validator.Option{
		validator.WithSanctionsScreener(screener),
		validator.WithVelocitySource(velocitySvc),
		validator.WithHeuristics(engine),
	}
	if cfg.GeoRisk.Enabled {
		opts = append(opts, validator.WithHeuristics(geo.NewScorer()))
		slog.Info("geographic risk enabled")
	}

	v, err := validator.New(cfg.Validator, opts...)
	if err != nil {
		slog.Error("failed to initialize validator", "error", err)
		os.Exit(1)
	}

	recorder := audit.NewRecorder(repo, cacheImpl, busImpl, velocitySvc, cfg.Cache.ResultTTL)
	collector := metrics.NewCollector()
	if src, ok := cacheImpl.(metrics.CacheSource); ok {
		collector.WatchCache(src)
	}

	if cfg.Validator.DuplicateRetention > 0 {
		go pruneDuplicates(ctx, v, cfg.Validator.DuplicateRetention)
	}

	// Initialize async worker
	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, v, recorder)
		if err := asyncWorker.Start(worker.Config{
			Concurrency: cfg.Worker.Concurrency,
			Metrics:     collector,
		}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Deps{
		Validator: v,
		Recorder:  recorder,
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Engine:    engine,
		Screener:  screener,
		Metrics:   collector,
	}, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("txguard is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	stats := v.Stats()
	slog.Info("txguard shutdown complete",
		"validated", stats.TotalValidated,
		"approved", stats.Approved,
	)
}

// loadRules fills the engine. A rules file, when configured, is upserted
// into the store first; an empty store is seeded with the builtin rules.
func loadRules(ctx context.Context, cfg *domain.Config, repo domain.Repository, engine *rules.Engine) error {
	if cfg.RulesFile != "" {
		fileRules, err := readRulesFile(cfg.RulesFile)
		if err != nil {
			return err
		}
		for _, rule := range fileRules {
			if err := engine.ValidateRule(rule); err != nil {
				return fmt.Errorf("rule %s in %s: %w", rule.ID, cfg.RulesFile, err)
			}
			if err := repo.SaveHeuristicRule(ctx, rule); err != nil {
				return err
			}
		}
		slog.Info("rules file applied", "path", cfg.RulesFile, "count", len(fileRules))
	}

	stored, err := repo.ListHeuristicRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}

	if len(stored) == 0 {
		stored = rules.BuiltinRules()
		for _, rule := range stored {
			if err := repo.SaveHeuristicRule(ctx, rule); err != nil {
				return err
			}
		}
		slog.Info("seeded builtin rules", "count", len(stored))
	}

	return engine.LoadRules(stored)
}

func readRulesFile(path string) ([]*domain.HeuristicRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	var fileRules []*domain.HeuristicRule
	if err := json.Unmarshal(data, &fileRules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	return fileRules, nil
}

// pruneDuplicates forgets duplicate-detection ids older than retention.
func pruneDuplicates(ctx context.Context, v *validator.Validator, retention time.Duration) {
	interval := retention / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := v.PruneDuplicates(now.Add(-retention)); n > 0 {
				slog.Debug("pruned duplicate ids", "count", n)
			}
		}
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  TxGuard - transaction validation gate")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Profile:  %s\n", cfg.Profile)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /validate           - Validate a transaction")
	fmt.Println("    POST /validate/batch     - Validate transactions in order")
	fmt.Println("    GET  /validations/{id}   - Latest validation of a transaction")
	fmt.Println("    GET  /stats              - Validator counters")
	fmt.Println("    GET  /rules              - List heuristic rules")
	fmt.Println("    POST /rules              - Create a heuristic rule")
	fmt.Println("    POST /rules/reload       - Hot-reload rules from database")
	fmt.Println("    POST /sanctions          - Add a sanctions list entry")
	fmt.Println("    GET  /sanctions/screen   - Screen a name")
	fmt.Println("    GET  /health             - Health check")
	fmt.Println()
}
