package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the complete txguard service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Profile selects the infrastructure defaults.
	Profile Profile `json:"profile"`

	// Validator thresholds
	Validator ValidatorConfig `json:"validator"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Worker     WorkerConfig     `json:"worker"`

	// Screening and geographic risk
	Sanctions SanctionsConfig `json:"sanctions"`
	GeoRisk   GeoRiskConfig   `json:"geoRisk"`

	// RulesFile optionally points at a JSON array of HeuristicRule.
	RulesFile string `json:"rulesFile,omitempty"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// Profile selects a bundle of infrastructure defaults.
type Profile string

const (
	// ProfileStandalone runs with SQLite, an in-memory cache and channels.
	ProfileStandalone Profile = "standalone"

	// ProfileDistributed runs with PostgreSQL, Redis and NATS.
	ProfileDistributed Profile = "distributed"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds

	// AllowedOrigins lists CORS origins; empty or "*" allows any.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

// WorkerConfig controls the async validation consumer.
type WorkerConfig struct {
	Enabled     bool `json:"enabled"`
	Concurrency int  `json:"concurrency"`
}

// SanctionsConfig tunes the local sanctions screener.
type SanctionsConfig struct {
	// FuzzyThreshold is the minimum confidence for fuzzy and partial
	// name matches. 1 disables them.
	FuzzyThreshold float64 `json:"fuzzyThreshold"`

	// DisabledLists names lists whose entries are held but not matched.
	DisabledLists []string `json:"disabledLists,omitempty"`
}

// GeoRiskConfig controls the country risk heuristic, which reads the
// origin_country and destination_country metadata keys.
type GeoRiskConfig struct {
	Enabled bool `json:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// DefaultConfig returns the standalone configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Profile:   ProfileStandalone,
		Validator: DefaultValidatorConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./txguard.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			ResultTTL:    15 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Worker: WorkerConfig{
			Concurrency: 5,
		},
		Sanctions: SanctionsConfig{
			FuzzyThreshold: 0.85,
		},
		GeoRisk: GeoRiskConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "txguard",
		},
	}
}

// DistributedConfig returns a configuration backed by PostgreSQL, Redis and NATS.
func DistributedConfig() *Config {
	cfg := DefaultConfig()
	cfg.Profile = ProfileDistributed
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "txguard",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		ResultTTL:      15 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig builds a Config from TXGUARD_* variables read through getenv.
func LoadConfig(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()
	if Profile(getenv("TXGUARD_PROFILE")) == ProfileDistributed {
		cfg = DistributedConfig()
	}

	env := envReader{getenv: getenv}

	cfg.Server.Host = env.str("TXGUARD_HOST", cfg.Server.Host)
	cfg.Server.Port = env.integer("TXGUARD_PORT", cfg.Server.Port)
	if origins := getenv("TXGUARD_CORS_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}

	v := &cfg.Validator
	v.MaxTransactionAmount = env.dec("TXGUARD_MAX_AMOUNT", v.MaxTransactionAmount)
	v.MinTransactionAmount = env.dec("TXGUARD_MIN_AMOUNT", v.MinTransactionAmount)
	v.StructuringThreshold = env.dec("TXGUARD_STRUCTURING_THRESHOLD", v.StructuringThreshold)
	v.CashIntensiveThreshold = env.dec("TXGUARD_CASH_THRESHOLD", v.CashIntensiveThreshold)
	v.FraudThreshold = env.integer("TXGUARD_FRAUD_THRESHOLD", v.FraudThreshold)
	v.EnableDuplicateCheck = env.boolean("TXGUARD_DUPLICATE_CHECK", v.EnableDuplicateCheck)
	v.EnableAMLCheck = env.boolean("TXGUARD_AML_CHECK", v.EnableAMLCheck)
	v.SanctionsFailClosed = env.boolean("TXGUARD_SANCTIONS_FAIL_CLOSED", v.SanctionsFailClosed)
	v.DuplicateRetention = env.duration("TXGUARD_DUPLICATE_RETENTION", v.DuplicateRetention)
	v.DuplicateMaxEntries = env.integer("TXGUARD_DUPLICATE_MAX_ENTRIES", v.DuplicateMaxEntries)
	v.Fraud.OffHoursLocation = env.location("TXGUARD_TIMEZONE", v.Fraud.OffHoursLocation)
	if currencies := getenv("TXGUARD_CURRENCIES"); currencies != "" {
		v.AllowedCurrencies = splitList(strings.ToUpper(currencies))
	}

	cfg.Repository.Driver = env.str("TXGUARD_DB_DRIVER", cfg.Repository.Driver)
	cfg.Repository.SQLitePath = env.str("TXGUARD_SQLITE_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresDSN = env.str("TXGUARD_POSTGRES_DSN", cfg.Repository.PostgresDSN)
	cfg.Repository.PostgresSSLMode = env.str("TXGUARD_POSTGRES_SSLMODE", cfg.Repository.PostgresSSLMode)
	cfg.Repository.PostgresHost = env.str("TXGUARD_POSTGRES_HOST", cfg.Repository.PostgresHost)
	cfg.Repository.PostgresUser = env.str("TXGUARD_POSTGRES_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = env.str("TXGUARD_POSTGRES_PASSWORD", cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = env.str("TXGUARD_POSTGRES_DB", cfg.Repository.PostgresDB)

	cfg.Cache.Type = env.str("TXGUARD_CACHE", cfg.Cache.Type)
	cfg.Cache.RedisAddr = env.str("TXGUARD_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = env.str("TXGUARD_REDIS_PASSWORD", cfg.Cache.RedisPassword)

	cfg.EventBus.Type = env.str("TXGUARD_BUS", cfg.EventBus.Type)
	cfg.EventBus.NATSUrl = env.str("TXGUARD_NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = env.str("TXGUARD_NATS_TOKEN", cfg.EventBus.NATSToken)
	cfg.EventBus.NATSQueueGroup = env.str("TXGUARD_NATS_QUEUE", cfg.EventBus.NATSQueueGroup)

	cfg.Worker.Enabled = env.boolean("TXGUARD_ASYNC_WORKER", cfg.Worker.Enabled)
	cfg.Worker.Concurrency = env.integer("TXGUARD_WORKER_CONCURRENCY", cfg.Worker.Concurrency)

	cfg.Sanctions.FuzzyThreshold = env.float("TXGUARD_SANCTIONS_THRESHOLD", cfg.Sanctions.FuzzyThreshold)
	if lists := getenv("TXGUARD_SANCTIONS_DISABLED_LISTS"); lists != "" {
		cfg.Sanctions.DisabledLists = splitList(lists)
	}
	cfg.GeoRisk.Enabled = env.boolean("TXGUARD_GEO_RISK", cfg.GeoRisk.Enabled)

	cfg.RulesFile = env.str("TXGUARD_RULES_FILE", cfg.RulesFile)
	cfg.Tracing.Enabled = env.boolean("TXGUARD_TRACING", cfg.Tracing.Enabled)
	if env.boolean("TXGUARD_DEBUG", false) {
		cfg.Logging.Level = "debug"
	}

	if env.err != nil {
		return nil, env.err
	}
	if t := cfg.Sanctions.FuzzyThreshold; t < 0.5 || t > 1 {
		return nil, fmt.Errorf("%w: sanctions fuzzy threshold %v outside [0.5, 1]", ErrInvalidConfig, t)
	}
	if err := cfg.Validator.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envReader records the first parse failure so LoadConfig can report it.
type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) fail(key, raw string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
}

func (e *envReader) str(key, def string) string {
	if v := e.getenv(key); v != "" {
		return v
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	raw := e.getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.fail(key, raw, err)
		return def
	}
	return n
}

func (e *envReader) float(key string, def float64) float64 {
	raw := e.getenv(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.fail(key, raw, err)
		return def
	}
	return f
}

func (e *envReader) boolean(key string, def bool) bool {
	raw := e.getenv(key)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		e.fail(key, raw, err)
		return def
	}
	return b
}

func (e *envReader) location(key string, def *time.Location) *time.Location {
	raw := e.getenv(key)
	if raw == "" {
		return def
	}
	loc, err := time.LoadLocation(raw)
	if err != nil {
		e.fail(key, raw, err)
		return def
	}
	return loc
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	raw := e.getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		e.fail(key, raw, err)
		return def
	}
	return d
}

func (e *envReader) dec(key string, def decimal.Decimal) decimal.Decimal {
	raw := e.getenv(key)
	if raw == "" {
		return def
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		e.fail(key, raw, err)
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
