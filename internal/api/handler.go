package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/txguard/internal/audit"
	"github.com/opensource-finance/txguard/internal/domain"
	"github.com/opensource-finance/txguard/internal/metrics"
	"github.com/opensource-finance/txguard/internal/rules"
	"github.com/opensource-finance/txguard/internal/sanctions"
	"github.com/opensource-finance/txguard/internal/validator"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxBatchSize bounds POST /validate/batch.
const maxBatchSize = 1000

// Handler holds dependencies for API handlers.
type Handler struct {
	validator *validator.Validator
	recorder  *audit.Recorder
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	screener  *sanctions.Screener
	metrics   *metrics.Collector
	version   string
}

// Deps groups the collaborators of the API. Only Validator is required.
type Deps struct {
	Validator *validator.Validator
	Recorder  *audit.Recorder
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Engine    *rules.Engine
	Screener  *sanctions.Screener
	Metrics   *metrics.Collector
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, version string) *Handler {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = audit.NewRecorder(nil, nil, nil, nil, 0)
	}
	return &Handler{
		validator: deps.Validator,
		recorder:  recorder,
		repo:      deps.Repo,
		cache:     deps.Cache,
		bus:       deps.Bus,
		engine:    deps.Engine,
		screener:  deps.Screener,
		metrics:   deps.Metrics,
		version:   version,
	}
}

// Validate handles POST /validate. A rejected transaction is still a 200;
// the verdict is in the body.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body: " + err.Error(),
		})
		return
	}

	result := h.validate(r, &tx)
	writeJSON(w, http.StatusOK, result)
}

// ValidateBatch handles POST /validate/batch. Transactions are validated in
// order, so an id repeated inside the batch is reported as a duplicate.
func (h *Handler) ValidateBatch(w http.ResponseWriter, r *http.Request) {
	var txs []*domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&txs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body: " + err.Error(),
		})
		return
	}
	if len(txs) > maxBatchSize {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
			"error":   "batch too large",
			"maxSize": maxBatchSize,
		})
		return
	}

	results := make([]*domain.ValidationResult, 0, len(txs))
	for _, tx := range txs {
		if tx == nil {
			results = append(results, h.validator.Validate(r.Context(), nil))
			continue
		}
		results = append(results, h.validate(r, tx))
	}

	writeJSON(w, http.StatusOK, results)
}

// validate runs one transaction under a span and records the outcome.
func (h *Handler) validate(r *http.Request, tx *domain.Transaction) *domain.ValidationResult {
	ctx, span := tracer.Start(r.Context(), "validator.Validate",
		trace.WithAttributes(
			attribute.String("tx.id", tx.ID),
			attribute.String("tx.type", string(tx.Type)),
		),
	)
	defer span.End()

	start := time.Now()
	result := h.validator.Validate(ctx, tx)

	span.SetAttributes(
		attribute.Bool("result.approved", result.IsApproved()),
		attribute.Int("result.fraud_score", result.FraudScore),
	)

	if err := h.recorder.Record(ctx, tx, result); err != nil {
		slog.Error("failed to record validation",
			"tx_id", tx.ID,
			"trace_id", GetTraceID(ctx),
			"error", err,
		)
	}

	h.metrics.Observe("api", result, time.Since(start))

	slog.Debug("transaction validated",
		"tx_id", tx.ID,
		"approved", result.IsApproved(),
		"fraud_score", result.FraudScore,
		"errors", len(result.Errors),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result
}

// GetValidation handles GET /validations/{id}, where id is the
// transaction id.
func (h *Handler) GetValidation(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	rec, err := h.recorder.Lookup(r.Context(), txID)
	if errors.Is(err, audit.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "validation not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get validation", "tx_id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load validation",
		})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// Stats returns the validator's lifetime counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.validator.Stats())
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	ctx := r.Context()

	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			status = "degraded"
		}
	}

	if h.bus != nil {
		if err := h.bus.Ping(ctx); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns the heuristic rules loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "rule engine not available",
		})
		return
	}

	loaded := h.engine.GetLoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loaded,
		"count": len(loaded),
	})
}

// GetRule retrieves a loaded rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if h.engine != nil {
		for _, rule := range h.engine.GetLoadedRules() {
			if rule.ID == ruleID {
				writeJSON(w, http.StatusOK, rule)
				return
			}
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRule compiles, persists and loads a heuristic rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "rule engine not available",
		})
		return
	}

	var rule domain.HeuristicRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if rule.ID == "" || rule.Name == "" || rule.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	if err := h.engine.ValidateRule(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveHeuristicRule(r.Context(), &rule); err != nil {
			slog.Error("failed to save heuristic rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	if rule.Enabled {
		if err := h.engine.LoadRule(&rule); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid rule: " + err.Error(),
			})
			return
		}
	} else if h.engine.UnloadRule(rule.ID) {
		slog.Info("heuristic rule disabled", "id", rule.ID)
	}

	slog.Info("heuristic rule created", "id", rule.ID, "enabled", rule.Enabled)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule": rule,
	})
}

// ReloadRules replaces the engine's rules with the stored set.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil || h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	stored, err := h.repo.ListHeuristicRules(r.Context())
	if err != nil {
		slog.Error("failed to list heuristic rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(stored); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("heuristic rules reloaded", "count", h.engine.RulesCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   h.engine.RulesCount(),
	})
}

// AddSanctionsEntry handles POST /sanctions.
func (h *Handler) AddSanctionsEntry(w http.ResponseWriter, r *http.Request) {
	if h.screener == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "sanctions screening not available",
		})
		return
	}

	var entry domain.SanctionsEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if sanctions.Normalize(entry.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
		return
	}
	if entry.List == "" {
		entry.List = domain.ListOFAC
	}

	if h.repo != nil {
		if err := h.repo.SaveSanctionsEntry(r.Context(), &entry); err != nil {
			slog.Error("failed to save sanctions entry", "name", entry.Name, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save sanctions entry",
			})
			return
		}
	}

	if err := h.screener.Add(&entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	slog.Info("sanctions entry added", "list", entry.List, "entries", h.screener.Len())
	writeJSON(w, http.StatusCreated, map[string]any{
		"entry":   entry,
		"entries": h.screener.Len(),
	})
}

// ScreenName handles GET /sanctions/screen?name=..., returning every match.
func (h *Handler) ScreenName(w http.ResponseWriter, r *http.Request) {
	if h.screener == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "sanctions screening not available",
		})
		return
	}

	name := r.URL.Query().Get("name")
	if sanctions.Normalize(name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
		return
	}

	matches := h.screener.Matches(name)
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"clear":   len(matches) == 0,
		"matches": matches,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
