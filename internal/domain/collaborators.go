package domain

import (
	"context"
	"time"
)

// SanctionsScreener is supplied by an external compliance data source.
// Screen returns true when the user is clear of every sanctions/PEP list.
type SanctionsScreener interface {
	Screen(ctx context.Context, userID string) (bool, error)
}

// SanctionsScreenerFunc adapts a function to SanctionsScreener.
type SanctionsScreenerFunc func(ctx context.Context, userID string) (bool, error)

// Screen calls f.
func (f SanctionsScreenerFunc) Screen(ctx context.Context, userID string) (bool, error) {
	return f(ctx, userID)
}

// VelocitySource is supplied by an external history store. It returns how
// many transactions the user made inside the window before this one.
type VelocitySource interface {
	RecentTransactionCount(ctx context.Context, userID string, window time.Duration) (int64, error)
}

// VelocitySourceFunc adapts a function to VelocitySource.
type VelocitySourceFunc func(ctx context.Context, userID string, window time.Duration) (int64, error)

// RecentTransactionCount calls f.
func (f VelocitySourceFunc) RecentTransactionCount(ctx context.Context, userID string, window time.Duration) (int64, error) {
	return f(ctx, userID, window)
}

// SourceVerifier independently confirms the source of funds (KYC).
type SourceVerifier interface {
	VerifySource(ctx context.Context, tx *Transaction) (bool, error)
}

// SignalFamily groups fraud signals for the risk breakdown.
type SignalFamily string

const (
	FamilyAmount   SignalFamily = "amount"
	FamilyPattern  SignalFamily = "pattern"
	FamilyTime     SignalFamily = "time"
	FamilyVelocity SignalFamily = "velocity"
)

// FraudSignal is one triggered heuristic.
type FraudSignal struct {
	Name    string       `json:"name"`
	Family  SignalFamily `json:"family"`
	Weight  int          `json:"weight"`
	Warning string       `json:"warning"`
}

// FraudHeuristics contributes extra signals after the built-in heuristics.
// Implementations must be pure and safe for concurrent use.
type FraudHeuristics interface {
	Evaluate(tx *Transaction) []FraudSignal
}
