// Package metrics exposes validation outcomes as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/opensource-finance/txguard/internal/cache"
	"github.com/opensource-finance/txguard/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records validation results on its own registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry    *prometheus.Registry
	validations *prometheus.CounterVec
	errors      *prometheus.CounterVec
	compliance  *prometheus.CounterVec
	fraudScore  prometheus.Histogram
	duration    *prometheus.HistogramVec
}

// NewCollector creates a collector with a fresh registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		validations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txguard_validations_total",
			Help: "Validated transactions by outcome and source",
		}, []string{"outcome", "source"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txguard_validation_errors_total",
			Help: "Hard validation failures by kind",
		}, []string{"kind"}),
		compliance: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "txguard_compliance_failures_total",
			Help: "Failed compliance checks by name",
		}, []string{"check"}),
		fraudScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "txguard_fraud_score",
			Help:    "Distribution of fraud scores",
			Buckets: []float64{0, 10, 25, 50, 70, 85, 100},
		}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "txguard_validation_duration_seconds",
			Help:    "Time taken to validate and record a transaction",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
	}
}

// Observe records one result. source names the entry point ("api", "worker").
func (c *Collector) Observe(source string, result *domain.ValidationResult, took time.Duration) {
	if c == nil || result == nil {
		return
	}

	outcome := "rejected"
	if result.IsApproved() {
		outcome = "approved"
	}
	c.validations.WithLabelValues(outcome, source).Inc()

	for _, e := range result.Errors {
		c.errors.WithLabelValues(string(e.Kind)).Inc()
	}
	for check, passed := range result.ComplianceChecks {
		if !passed {
			c.compliance.WithLabelValues(check).Inc()
		}
	}

	c.fraudScore.Observe(float64(result.FraudScore))
	c.duration.WithLabelValues(source).Observe(took.Seconds())
}

// CacheSource is implemented by caches with a local LRU tier.
type CacheSource interface {
	Stats() cache.Stats
}

// WatchCache exports the local cache tier's usage, read at scrape time.
func (c *Collector) WatchCache(src CacheSource) {
	if c == nil || src == nil {
		return
	}
	factory := promauto.With(c.registry)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "txguard_cache_entries",
		Help: "Entries held by the local cache",
	}, func() float64 { return float64(src.Stats().Size) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "txguard_cache_hits_total",
		Help: "Local cache hits",
	}, func() float64 { return float64(src.Stats().Hits) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "txguard_cache_misses_total",
		Help: "Local cache misses",
	}, func() float64 { return float64(src.Stats().Misses) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "txguard_cache_evictions_total",
		Help: "Entries evicted from the local cache to respect its capacity",
	}, func() float64 { return float64(src.Stats().Evictions) })
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
