package repository

// Schema definitions for the txguard audit store.
// Compatible with both SQLite and PostgreSQL.

// schemaValidations keeps every validation attempt, so the table doubles as
// the audit trail. Attempts rejected as resubmissions of an already
// committed id are flagged with duplicate = 1.
const schemaValidations = `
CREATE TABLE IF NOT EXISTS validations (
    id TEXT PRIMARY KEY,
    tx_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    tx_type TEXT NOT NULL,
    amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    approved INTEGER NOT NULL,
    fraud_score INTEGER NOT NULL,
    duplicate INTEGER NOT NULL DEFAULT 0,
    transaction_data TEXT NOT NULL,
    result_data TEXT NOT NULL,
    validated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validations_tx ON validations(tx_id);
CREATE INDEX IF NOT EXISTS idx_validations_user ON validations(user_id, duplicate, validated_at);
CREATE INDEX IF NOT EXISTS idx_validations_approved ON validations(approved);
`

const schemaHeuristicRules = `
CREATE TABLE IF NOT EXISTS heuristic_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    weight INTEGER NOT NULL DEFAULT 0,
    warning TEXT NOT NULL,
    family TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_heuristic_rules_enabled ON heuristic_rules(enabled);
`

const schemaSanctionsEntries = `
CREATE TABLE IF NOT EXISTS sanctions_entries (
    name TEXT NOT NULL,
    list TEXT NOT NULL,
    aliases TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (name, list)
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaValidations,
		schemaHeuristicRules,
		schemaSanctionsEntries,
	}
}
