// Package domain defines the core types and interfaces for txguard.
package domain

import (
	"context"
	"time"
)

// ValidationRecord is a persisted validation: the submitted transaction
// together with its result.
type ValidationRecord struct {
	Transaction *Transaction      `json:"transaction"`
	Result      *ValidationResult `json:"result"`
	Approved    bool              `json:"approved"`
}

// Repository defines the interface for the audit store.
type Repository interface {
	// Validation audit trail
	SaveValidation(ctx context.Context, tx *Transaction, result *ValidationResult) error
	GetValidation(ctx context.Context, txID string) (*ValidationRecord, error)
	CountValidationsByUser(ctx context.Context, userID string, since time.Time) (int64, error)

	// Heuristic rule configuration
	SaveHeuristicRule(ctx context.Context, rule *HeuristicRule) error
	GetHeuristicRule(ctx context.Context, ruleID string) (*HeuristicRule, error)
	ListHeuristicRules(ctx context.Context) ([]*HeuristicRule, error)

	// Sanctions list
	SaveSanctionsEntry(ctx context.Context, entry *SanctionsEntry) error
	ListSanctionsEntries(ctx context.Context) ([]*SanctionsEntry, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific. PostgresDSN, when set, overrides the other fields.
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
