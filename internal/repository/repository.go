// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/txguard/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveValidation appends a validation attempt to the audit trail.
func (r *SQLRepository) SaveValidation(ctx context.Context, tx *domain.Transaction, result *domain.ValidationResult) error {
	if tx == nil || result == nil {
		return fmt.Errorf("%w: transaction and result are required", ErrInvalidInput)
	}
	if result.ValidationID == "" {
		return fmt.Errorf("%w: validation id is required", ErrInvalidInput)
	}

	txData, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}
	resultData, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	approved := boolInt(result.IsApproved())
	duplicate := boolInt(result.HasError(domain.KindDuplicateTransaction))

	query := `
		INSERT INTO validations (
			id, tx_id, user_id, tx_type, amount, currency, approved,
			fraud_score, duplicate, transaction_data, result_data, validated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		result.ValidationID, tx.ID, tx.UserID, string(tx.Type),
		tx.Amount.String(), tx.Currency, approved,
		result.FraudScore, duplicate, string(txData), string(resultData),
		result.ValidatedAt.UTC(),
	)
	return err
}

// GetValidation returns the most recent validation of a transaction id.
// Rejected resubmissions never shadow the committed outcome; they are only
// returned when no other attempt exists.
func (r *SQLRepository) GetValidation(ctx context.Context, txID string) (*domain.ValidationRecord, error) {
	if txID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	query := `
		SELECT transaction_data, result_data, approved
		FROM validations
		WHERE tx_id = ?
		ORDER BY duplicate ASC, validated_at DESC
		LIMIT 1
	`

	var txData, resultData string
	var approved int

	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(&txData, &resultData, &approved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rec := &domain.ValidationRecord{Approved: approved == 1}
	if err := json.Unmarshal([]byte(txData), &rec.Transaction); err != nil {
		return nil, fmt.Errorf("failed to parse stored transaction %s: %w", txID, err)
	}
	if err := json.Unmarshal([]byte(resultData), &rec.Result); err != nil {
		return nil, fmt.Errorf("failed to parse stored result %s: %w", txID, err)
	}
	return rec, nil
}

// CountValidationsByUser counts the user's validation attempts since a
// time, leaving out rejected resubmissions.
func (r *SQLRepository) CountValidationsByUser(ctx context.Context, userID string, since time.Time) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM validations
		WHERE user_id = ? AND duplicate = 0 AND validated_at >= ?
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), userID, since.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count validations: %w", err)
	}
	return count, nil
}

// SaveHeuristicRule inserts or updates a rule. created_at is kept on update.
func (r *SQLRepository) SaveHeuristicRule(ctx context.Context, rule *domain.HeuristicRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	family := rule.Family
	if family == "" {
		family = domain.FamilyPattern
	}

	enabled := boolInt(rule.Enabled)

	now := time.Now().UTC()

	query := `
		INSERT INTO heuristic_rules (
			id, name, description, expression, weight, warning, family, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			weight = excluded.weight,
			warning = excluded.warning,
			family = excluded.family,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression,
		rule.Weight, rule.Warning, string(family), enabled,
		now, now,
	)
	return err
}

const ruleColumns = `id, name, description, expression, weight, warning, family, enabled, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.HeuristicRule, error) {
	var rule domain.HeuristicRule
	var description sql.NullString
	var family string
	var enabled int

	if err := row.Scan(
		&rule.ID, &rule.Name, &description, &rule.Expression,
		&rule.Weight, &rule.Warning, &family, &enabled,
		&rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Family = domain.SignalFamily(family)
	rule.Enabled = enabled == 1
	return &rule, nil
}

// GetHeuristicRule retrieves a rule by id, enabled or not.
func (r *SQLRepository) GetHeuristicRule(ctx context.Context, ruleID string) (*domain.HeuristicRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM heuristic_rules WHERE id = ?`

	rule, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// ListHeuristicRules returns every stored rule in creation order.
func (r *SQLRepository) ListHeuristicRules(ctx context.Context) ([]*domain.HeuristicRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM heuristic_rules ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.HeuristicRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// SaveSanctionsEntry inserts a listed party or replaces its aliases.
func (r *SQLRepository) SaveSanctionsEntry(ctx context.Context, entry *domain.SanctionsEntry) error {
	if entry == nil || entry.Name == "" {
		return fmt.Errorf("%w: sanctions entry name is required", ErrInvalidInput)
	}

	aliases, err := json.Marshal(entry.Aliases)
	if err != nil {
		return err
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO sanctions_entries (name, list, aliases, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name, list) DO UPDATE SET aliases = excluded.aliases
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query), entry.Name, entry.List, string(aliases), createdAt.UTC())
	return err
}

// ListSanctionsEntries returns every listed party.
func (r *SQLRepository) ListSanctionsEntries(ctx context.Context) ([]*domain.SanctionsEntry, error) {
	query := `SELECT name, list, aliases, created_at FROM sanctions_entries ORDER BY list, name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.SanctionsEntry
	for rows.Next() {
		var e domain.SanctionsEntry
		var aliases string

		if err := rows.Scan(&e.Name, &e.List, &aliases, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(aliases), &e.Aliases); err != nil {
			return nil, fmt.Errorf("failed to parse aliases for %s: %w", e.Name, err)
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
