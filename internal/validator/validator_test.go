package validator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/txguard/internal/domain"
	"github.com/shopspring/decimal"
)

func transferTx(id string) *domain.Transaction {
	return &domain.Transaction{
		ID:          id,
		Type:        domain.TypeTransfer,
		Amount:      decimal.RequireFromString("5000.00"),
		Currency:    "USD",
		FromAccount: domain.Account("ACCT-1111-2222-3333-4444"),
		ToAccount:   domain.Account("ACCT-5555-6666-7777-8888"),
		Timestamp:   businessHours,
		UserID:      "user-1",
	}
}

func fixedClock() func() time.Time {
	return func() time.Time { return businessHours }
}

func TestValidateScenarioApprovedTransfer(t *testing.T) {
	v := NewDefault(WithClock(fixedClock()))

	result := v.Validate(context.Background(), transferTx("tx-a"))

	if !result.IsApproved() {
		t.Fatalf("expected approval, got errors %v checks %v", result.Errors, result.ComplianceChecks)
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected no errors, got %v", result.Errors)
	}
	if result.FraudScore >= 20 {
		t.Errorf("expected low fraud score, got %d", result.FraudScore)
	}
	if result.TransactionID != "tx-a" || result.ValidationID == "" {
		t.Errorf("expected ids populated, got %+v", result)
	}
	if !result.ValidatedAt.Equal(businessHours) {
		t.Errorf("expected validatedAt from clock, got %v", result.ValidatedAt)
	}
}

func TestValidateScenarioOffHoursWire(t *testing.T) {
	v := NewDefault()

	tx := transferTx("tx-b")
	tx.Type = domain.TypeWireTransfer
	tx.Amount = decimal.RequireFromString("10000.00")
	tx.Timestamp = offHours

	result := v.Validate(context.Background(), tx)

	if result.IsApproved() {
		t.Fatal("expected rejection")
	}
	if result.ComplianceChecks[domain.CheckCTR] {
		t.Error("expected CTR failure")
	}
	if result.FraudScore != 45 {
		t.Errorf("expected fraud score 45, got %d", result.FraudScore)
	}
	joined := strings.Join(result.Warnings, "\n")
	for _, want := range []string{"round-number", "off-hours"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected a warning naming %q, got %v", want, result.Warnings)
		}
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected no hard errors, got %v", result.Errors)
	}
}

func TestValidateScenarioDepositMissingTo(t *testing.T) {
	v := NewDefault()

	tx := transferTx("tx-c")
	tx.Type = domain.TypeDeposit
	tx.FromAccount = nil
	tx.ToAccount = nil
	tx.Timestamp = offHours

	result := v.Validate(context.Background(), tx)

	if result.IsApproved() {
		t.Fatal("expected rejection")
	}
	if !result.HasError(domain.KindBusinessRule) {
		t.Errorf("expected BusinessRuleError, got %v", result.Errors)
	}
	if result.FraudScore != 10 {
		t.Errorf("expected fraud scoring to still run, got %d", result.FraudScore)
	}
	if _, ok := result.ComplianceChecks[domain.CheckCTR]; !ok {
		t.Errorf("expected compliance checks to still run, got %v", result.ComplianceChecks)
	}
}

func TestValidateScenarioDuplicate(t *testing.T) {
	v := NewDefault()
	tx := transferTx("tx-d")

	first := v.Validate(context.Background(), tx)
	if !first.IsApproved() {
		t.Fatalf("expected first call approved, got %v", first.Errors)
	}

	second := v.Validate(context.Background(), tx)
	if second.IsApproved() {
		t.Fatal("expected second call rejected")
	}
	if len(second.Errors) != 1 || second.Errors[0].Kind != domain.KindDuplicateTransaction {
		t.Errorf("expected only a DuplicateTransactionError, got %v", second.Errors)
	}
	if !errors.Is(&second.Errors[0], domain.ErrDuplicateTransaction) {
		t.Error("expected error to match ErrDuplicateTransaction")
	}
}

func TestValidateDuplicateCheckDisabled(t *testing.T) {
	cfg := domain.DefaultValidatorConfig()
	cfg.EnableDuplicateCheck = false
	v := MustNew(cfg, WithClock(fixedClock()))
	tx := transferTx("tx-e")

	first := v.Validate(context.Background(), tx)
	second := v.Validate(context.Background(), tx)

	if first.IsApproved() != second.IsApproved() || first.FraudScore != second.FraudScore {
		t.Errorf("expected identical evaluations, got %+v and %+v", first, second)
	}
	if len(second.Errors) != 0 {
		t.Errorf("expected no errors on repeat, got %v", second.Errors)
	}
}

func TestValidateRetryAfterFix(t *testing.T) {
	v := NewDefault()

	tx := transferTx("tx-fix")
	tx.ToAccount = domain.Account("bad-account")
	first := v.Validate(context.Background(), tx)
	if !first.HasError(domain.KindAccountFormat) {
		t.Fatalf("expected AccountFormatError, got %v", first.Errors)
	}

	tx.ToAccount = domain.Account("****9876")
	second := v.Validate(context.Background(), tx)
	if !second.IsApproved() {
		t.Errorf("expected corrected resubmission approved, got %v", second.Errors)
	}
}

func TestValidateComplianceRejectStillRecorded(t *testing.T) {
	v := NewDefault()
	tx := transferTx("tx-ctr")
	tx.Amount = decimal.RequireFromString("12000.50")

	first := v.Validate(context.Background(), tx)
	if first.IsApproved() || len(first.Errors) != 0 {
		t.Fatalf("expected compliance-only rejection, got %v", first.Errors)
	}
	second := v.Validate(context.Background(), tx)
	if !second.HasError(domain.KindDuplicateTransaction) {
		t.Errorf("expected duplicate on resubmission, got %v", second.Errors)
	}
}

func TestValidateAccountsOnlyCheckedWhenUsed(t *testing.T) {
	v := NewDefault()
	tx := transferTx("tx-withdraw")
	tx.Type = domain.TypeWithdrawal
	tx.ToAccount = domain.Account("not-an-account")

	result := v.Validate(context.Background(), tx)
	if !result.IsApproved() {
		t.Errorf("expected unused to_account ignored, got %v", result.Errors)
	}
}

func TestValidateRedFlagsAreAdvisory(t *testing.T) {
	v := NewDefault()
	tx := transferTx("tx-structured")
	tx.Amount = decimal.RequireFromString("9600.00")
	tx.Metadata = map[string]string{domain.MetaCrossBorder: "true"}

	result := v.Validate(context.Background(), tx)
	if !result.IsApproved() {
		t.Fatalf("red flags must not block approval, got errors %v checks %v", result.Errors, result.ComplianceChecks)
	}
	if len(result.RedFlags) != 2 || result.RedFlags[0].Type != domain.RedFlagStructuring || result.RedFlags[1].Type != domain.RedFlagCrossBorder {
		t.Errorf("expected structuring and cross-border flags, got %+v", result.RedFlags)
	}
	if len(result.Warnings) != 2 || !strings.HasPrefix(result.Warnings[0], "AML red flag: ") {
		t.Errorf("expected red flags echoed as warnings, got %v", result.Warnings)
	}
	if !result.RequiresManualReview() {
		t.Error("expected red-flagged result to need review")
	}
}

func TestValidateStacksHeuristics(t *testing.T) {
	first := heuristicsFunc(func(tx *domain.Transaction) []domain.FraudSignal {
		return []domain.FraudSignal{{Name: "first", Family: domain.FamilyPattern, Weight: 5, Warning: "first source"}}
	})
	second := heuristicsFunc(func(tx *domain.Transaction) []domain.FraudSignal {
		return []domain.FraudSignal{{Name: "second", Family: domain.FamilyPattern, Weight: 7, Warning: "second source"}}
	})
	v := MustNew(domain.DefaultValidatorConfig(), WithHeuristics(first), WithHeuristics(second))

	result := v.Validate(context.Background(), transferTx("tx-stacked"))
	if result.FraudScore != 12 {
		t.Errorf("expected both sources to contribute 12, got %d", result.FraudScore)
	}
	if len(result.Warnings) != 2 || result.Warnings[0] != "first source" || result.Warnings[1] != "second source" {
		t.Errorf("expected sources in the order added, got %v", result.Warnings)
	}
}

func TestValidateAMLDisabled(t *testing.T) {
	cfg := domain.DefaultValidatorConfig()
	cfg.EnableAMLCheck = false
	v := MustNew(cfg)

	tx := transferTx("tx-noaml")
	tx.Amount = decimal.RequireFromString("25000.25")
	result := v.Validate(context.Background(), tx)

	if len(result.ComplianceChecks) != 0 {
		t.Errorf("expected no compliance checks, got %v", result.ComplianceChecks)
	}
	if !result.IsApproved() {
		t.Errorf("expected approval without AML, got %v", result.Errors)
	}
}

func TestValidateNilTransaction(t *testing.T) {
	v := NewDefault()
	result := v.Validate(context.Background(), nil)
	if !result.HasError(domain.KindBusinessRule) {
		t.Errorf("expected BusinessRuleError for nil transaction, got %v", result.Errors)
	}
	if v.Stats().TotalValidated != 1 {
		t.Errorf("expected nil transaction counted")
	}
}

func TestValidateVelocitySource(t *testing.T) {
	var gotWindow time.Duration
	source := domain.VelocitySourceFunc(func(ctx context.Context, userID string, window time.Duration) (int64, error) {
		gotWindow = window
		if userID == "busy" {
			return 25, nil
		}
		return 0, errors.New("history store unreachable")
	})
	v := NewDefault(WithVelocitySource(source))

	tx := transferTx("tx-busy")
	tx.UserID = "busy"
	result := v.Validate(context.Background(), tx)
	if result.RiskBreakdown.VelocityRisk != 25 {
		t.Errorf("expected velocity risk 25, got %+v", result.RiskBreakdown)
	}
	if gotWindow != time.Hour {
		t.Errorf("expected default window, got %s", gotWindow)
	}

	tx = transferTx("tx-quiet")
	tx.UserID = "quiet"
	result = v.Validate(context.Background(), tx)
	if result.FraudScore != 0 {
		t.Errorf("expected failed lookup to add nothing, got %d", result.FraudScore)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "velocity signal unavailable") {
		t.Errorf("expected velocity warning, got %v", result.Warnings)
	}
}

func TestValidateDoesNotMutateTransaction(t *testing.T) {
	v := NewDefault()
	tx := transferTx("tx-immut")
	from, to := *tx.FromAccount, *tx.ToAccount

	v.Validate(context.Background(), tx)

	if *tx.FromAccount != from || *tx.ToAccount != to {
		t.Error("account identifiers were mutated")
	}
}

func TestValidateBatch(t *testing.T) {
	v := NewDefault()
	bad := transferTx("tx-2")
	bad.Currency = "XYZ"

	results := v.ValidateBatch(context.Background(), []*domain.Transaction{
		transferTx("tx-1"),
		bad,
		transferTx("tx-1"),
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].IsApproved() {
		t.Errorf("expected first approved, got %v", results[0].Errors)
	}
	if !results[1].HasError(domain.KindCurrency) {
		t.Errorf("expected CurrencyError, got %v", results[1].Errors)
	}
	if !results[2].HasError(domain.KindDuplicateTransaction) {
		t.Errorf("expected in-batch duplicate, got %v", results[2].Errors)
	}

	stats := v.Stats()
	want := domain.ValidationStats{TotalValidated: 3, Approved: 1, Rejected: 2, DuplicateRejects: 1, DuplicatesHeld: 1}
	if stats != want {
		t.Errorf("expected stats %+v, got %+v", want, stats)
	}
}

func TestValidateConcurrentDuplicates(t *testing.T) {
	v := NewDefault()

	var mu sync.Mutex
	approved := 0
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v.Validate(context.Background(), transferTx("tx-race")).IsApproved() {
				mu.Lock()
				approved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if approved != 1 {
		t.Errorf("expected exactly one approval, got %d", approved)
	}
}

func TestPruneDuplicates(t *testing.T) {
	now := businessHours
	v := NewDefault(WithClock(func() time.Time { return now }))
	v.Validate(context.Background(), transferTx("tx-p"))

	if n := v.PruneDuplicates(now.Add(time.Second)); n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
	if !v.Validate(context.Background(), transferTx("tx-p")).IsApproved() {
		t.Error("expected pruned id to be accepted again")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := domain.DefaultValidatorConfig()
	cfg.FraudThreshold = 150

	if _, err := New(cfg); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected MustNew to panic")
		}
	}()
	MustNew(cfg)
}
