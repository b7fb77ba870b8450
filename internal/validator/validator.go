// Package validator implements the transaction validation pipeline: amount,
// account format and business rule checks, fraud scoring, AML/KYC
// compliance and duplicate detection, aggregated into one ValidationResult.
package validator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/txguard/internal/domain"
)

// Validator runs every check in a fixed order and assembles the result.
// It is safe for concurrent use.
type Validator struct {
	cfg domain.ValidatorConfig

	amounts    *AmountValidator
	accounts   AccountFormatValidator
	rules      *BusinessRuleEngine
	scorer     *FraudScorer
	compliance *ComplianceChecker
	duplicates *DuplicateDetector

	velocity   domain.VelocitySource
	screener   domain.SanctionsScreener
	verifier   domain.SourceVerifier
	heuristics []domain.FraudHeuristics
	now        func() time.Time

	total            atomic.Int64
	approved         atomic.Int64
	duplicateRejects atomic.Int64
}

// Option configures optional collaborators.
type Option func(*Validator)

// WithSanctionsScreener wires an external sanctions/PEP screening source.
func WithSanctionsScreener(s domain.SanctionsScreener) Option {
	return func(v *Validator) { v.screener = s }
}

// WithVelocitySource wires an external transaction history store.
func WithVelocitySource(s domain.VelocitySource) Option {
	return func(v *Validator) { v.velocity = s }
}

// WithSourceVerifier wires an external source-of-funds verification service.
func WithSourceVerifier(s domain.SourceVerifier) Option {
	return func(v *Validator) { v.verifier = s }
}

// WithHeuristics adds fraud heuristics evaluated after the built-in ones.
// It may be given more than once; sources run in the order added.
func WithHeuristics(h domain.FraudHeuristics) Option {
	return func(v *Validator) { v.heuristics = append(v.heuristics, h) }
}

// WithClock overrides the wall clock used for result timestamps and
// duplicate retention.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// New creates a Validator. An inconsistent config is reported as an error
// wrapping domain.ErrInvalidConfig.
func New(cfg domain.ValidatorConfig, opts ...Option) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v := &Validator{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	v.amounts = NewAmountValidator(cfg)
	v.rules = NewBusinessRuleEngine(cfg)
	v.scorer = NewFraudScorer(cfg.Fraud, v.heuristics...)
	v.compliance = NewComplianceChecker(cfg, v.screener, v.verifier)
	v.duplicates = NewDuplicateDetector(cfg.DuplicateRetention, cfg.DuplicateMaxEntries)

	return v, nil
}

// MustNew is like New but panics on an invalid config.
func MustNew(cfg domain.ValidatorConfig, opts ...Option) *Validator {
	v, err := New(cfg, opts...)
	if err != nil {
		panic(fmt.Sprintf("validator: %v", err))
	}
	return v
}

// NewDefault creates a Validator with the built-in thresholds.
func NewDefault(opts ...Option) *Validator {
	return MustNew(domain.DefaultValidatorConfig(), opts...)
}

// Config returns the validator's configuration.
func (v *Validator) Config() domain.ValidatorConfig {
	return v.cfg
}

// Validate runs the pipeline for one transaction. Every outcome, including
// rejection, is reported in the result; Validate itself never fails.
//
// Order:
//  1. amount, account format and business rules (hard errors)
//  2. fraud scoring (always computed, even after hard errors)
//  3. compliance checks, when AML checking is enabled
//  4. duplicate detection, last. The id is remembered only when no hard
//     error was found, so a corrected resubmission is fully re-evaluated.
func (v *Validator) Validate(ctx context.Context, tx *domain.Transaction) *domain.ValidationResult {
	now := v.now()

	if tx == nil {
		result := domain.NewValidationResult("", v.cfg.FraudThreshold)
		result.ValidationID = uuid.New().String()
		result.ValidatedAt = now.UTC()
		result.AddError(domain.NewValidationError(domain.KindBusinessRule, "transaction", "transaction is required"))
		v.total.Add(1)
		return result
	}

	result := domain.NewValidationResult(tx.ID, v.cfg.FraudThreshold)
	result.ValidationID = uuid.New().String()
	result.UserID = tx.UserID

	// 1. Stateless checks
	result.AddError(v.amounts.Check(tx.Amount))

	policy := v.rules.Policy(tx.Type)
	if policy.UsesFrom {
		result.AddError(v.accounts.Check("from_account", tx.FromAccount))
	}
	if policy.UsesTo {
		result.AddError(v.accounts.Check("to_account", tx.ToAccount))
	}
	for _, err := range v.rules.Check(tx) {
		result.AddError(err)
	}

	// 2. Fraud scoring
	recent, velocityWarning := v.recentCount(ctx, tx.UserID)
	assessment := v.scorer.Score(tx, recent)
	result.FraudScore = assessment.Score
	result.RiskBreakdown = assessment.Breakdown
	result.Warnings = append(result.Warnings, assessment.Warnings()...)
	if velocityWarning != "" {
		result.Warnings = append(result.Warnings, velocityWarning)
	}

	// 3. Compliance
	if v.cfg.EnableAMLCheck {
		outcome := v.compliance.Check(ctx, tx)
		result.ComplianceChecks = outcome.Checks
		result.RedFlags = outcome.RedFlags
		result.Warnings = append(result.Warnings, outcome.Warnings...)
		for _, flag := range outcome.RedFlags {
			result.Warnings = append(result.Warnings, "AML red flag: "+flag.Description)
		}
	}

	// 4. Duplicate detection
	if v.cfg.EnableDuplicateCheck {
		record := len(result.Errors) == 0
		if err := v.duplicates.Admit(tx.ID, now, record); err != nil {
			result.AddError(err)
			v.duplicateRejects.Add(1)
		}
	}

	result.ValidatedAt = now.UTC()
	v.total.Add(1)
	if result.IsApproved() {
		v.approved.Add(1)
	}
	return result
}

// ValidateBatch validates transactions in order through this validator, so
// repeated ids inside the batch are reported as duplicates.
func (v *Validator) ValidateBatch(ctx context.Context, txs []*domain.Transaction) []*domain.ValidationResult {
	results := make([]*domain.ValidationResult, 0, len(txs))
	for _, tx := range txs {
		results = append(results, v.Validate(ctx, tx))
	}
	return results
}

// Stats returns lifetime counters.
func (v *Validator) Stats() domain.ValidationStats {
	approved := v.approved.Load()
	total := v.total.Load()
	return domain.ValidationStats{
		TotalValidated:   total,
		Approved:         approved,
		Rejected:         total - approved,
		DuplicateRejects: v.duplicateRejects.Load(),
		DuplicatesHeld:   v.duplicates.Len(),
	}
}

// PruneDuplicates forgets transaction ids admitted before the cutoff.
func (v *Validator) PruneDuplicates(before time.Time) int {
	return v.duplicates.Prune(before)
}

// recentCount asks the velocity source for the user's recent activity.
// A missing source or a failed lookup contributes no velocity signal.
func (v *Validator) recentCount(ctx context.Context, userID string) (*int64, string) {
	if v.velocity == nil || userID == "" {
		return nil, ""
	}
	count, err := v.velocity.RecentTransactionCount(ctx, userID, v.cfg.Fraud.VelocityWindow)
	if err != nil {
		return nil, fmt.Sprintf("velocity signal unavailable: %v", err)
	}
	return &count, ""
}
