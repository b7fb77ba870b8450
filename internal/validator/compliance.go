package validator

import (
	"context"
	"fmt"

	"github.com/opensource-finance/txguard/internal/domain"
	"github.com/shopspring/decimal"
)

// ComplianceChecker evaluates the AML/KYC checks. Each check is reported
// by name; a check is never silently omitted.
type ComplianceChecker struct {
	ctrThreshold         decimal.Decimal
	wireThreshold        decimal.Decimal
	structuringThreshold decimal.Decimal
	cashThreshold        decimal.Decimal
	failClosed           bool

	screener domain.SanctionsScreener
	verifier domain.SourceVerifier
}

// ComplianceOutcome holds the named checks, advisory red flags and any
// collaborator warnings.
type ComplianceOutcome struct {
	Checks   map[string]bool
	RedFlags []domain.AMLRedFlag
	Warnings []string
}

// NewComplianceChecker creates a checker. screener and verifier may be nil.
func NewComplianceChecker(cfg domain.ValidatorConfig, screener domain.SanctionsScreener, verifier domain.SourceVerifier) *ComplianceChecker {
	return &ComplianceChecker{
		ctrThreshold:         cfg.CTRThreshold,
		wireThreshold:        cfg.Fraud.WireTransferThreshold,
		structuringThreshold: cfg.StructuringThreshold,
		cashThreshold:        cfg.CashIntensiveThreshold,
		failClosed:           cfg.SanctionsFailClosed,
		screener:             screener,
		verifier:             verifier,
	}
}

// Check runs CTR, wire source verification (wire transfers only), the AML
// aggregate and sanctions screening, then collects AML red flags.
//
// Without a SourceVerifier, source of funds is treated as unverified, so any
// amount at or above the CTR threshold fails CTR. Without a screener,
// SanctionsScreening reports !SanctionsFailClosed, which passes by default so
// an ordinary transfer can be approved where no screening source exists.
// Red flags never change a check.
func (c *ComplianceChecker) Check(ctx context.Context, tx *domain.Transaction) ComplianceOutcome {
	out := ComplianceOutcome{Checks: make(map[string]bool, 4)}

	var verified *bool
	sourceVerified := func() bool {
		if verified == nil {
			ok := c.verifySource(ctx, tx, &out)
			verified = &ok
		}
		return *verified
	}

	ctr := true
	if tx.Amount.GreaterThanOrEqual(c.ctrThreshold) {
		ctr = sourceVerified()
	}
	out.Checks[domain.CheckCTR] = ctr

	aml := ctr
	if tx.Type == domain.TypeWireTransfer {
		wire := true
		if tx.Amount.GreaterThan(c.wireThreshold) {
			wire = sourceVerified()
		}
		out.Checks[domain.CheckWireSourceVerification] = wire
		aml = aml && wire
	}
	out.Checks[domain.CheckAML] = aml

	out.Checks[domain.CheckSanctionsScreening] = c.screen(ctx, tx.UserID, &out)
	out.RedFlags = c.redFlags(tx)
	return out
}

// redFlags reports structuring just below the CTR threshold, large cash
// movements and cross-border activity.
func (c *ComplianceChecker) redFlags(tx *domain.Transaction) []domain.AMLRedFlag {
	var flags []domain.AMLRedFlag

	if c.structuringThreshold.IsPositive() &&
		tx.Amount.GreaterThanOrEqual(c.structuringThreshold) && tx.Amount.LessThan(c.ctrThreshold) {
		flags = append(flags, domain.AMLRedFlag{
			Type:     domain.RedFlagStructuring,
			Severity: "high",
			Description: fmt.Sprintf("amount %s is just below the CTR threshold %s (potential structuring)",
				tx.Amount.StringFixed(2), c.ctrThreshold),
		})
	}

	if c.cashThreshold.IsPositive() &&
		(tx.Type == domain.TypeDeposit || tx.Type == domain.TypeWithdrawal) &&
		tx.Amount.GreaterThanOrEqual(c.cashThreshold) {
		flags = append(flags, domain.AMLRedFlag{
			Type:        domain.RedFlagCashIntensive,
			Severity:    "high",
			Description: fmt.Sprintf("large cash %s of %s", tx.Type, tx.Amount.StringFixed(2)),
		})
	}

	if tx.CrossBorder() {
		flags = append(flags, domain.AMLRedFlag{
			Type:        domain.RedFlagCrossBorder,
			Severity:    "medium",
			Description: "cross-border transaction requires additional due diligence",
		})
	}
	return flags
}

func (c *ComplianceChecker) verifySource(ctx context.Context, tx *domain.Transaction, out *ComplianceOutcome) bool {
	if c.verifier == nil {
		return false
	}
	ok, err := c.verifier.VerifySource(ctx, tx)
	if err != nil {
		out.Warnings = append(out.Warnings, fmt.Sprintf("source of funds verification unavailable: %v", err))
		return false
	}
	return ok
}

func (c *ComplianceChecker) screen(ctx context.Context, userID string, out *ComplianceOutcome) bool {
	if c.screener == nil {
		return !c.failClosed
	}
	passed, err := c.screener.Screen(ctx, userID)
	if err != nil {
		out.Warnings = append(out.Warnings, fmt.Sprintf("sanctions screening unavailable: %v", err))
		return false
	}
	return passed
}
