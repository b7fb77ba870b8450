package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestIsApprovedCombinations(t *testing.T) {
	for _, hasErrors := range []bool{false, true} {
		for _, aboveThreshold := range []bool{false, true} {
			for _, compliancePass := range []bool{false, true} {
				name := fmt.Sprintf("errors=%v/above=%v/compliance=%v", hasErrors, aboveThreshold, compliancePass)
				t.Run(name, func(t *testing.T) {
					r := NewValidationResult("tx-1", 70)
					if hasErrors {
						r.AddError(NewValidationError(KindAmount, "amount", "amount must be positive"))
					}
					r.FraudScore = 69
					if aboveThreshold {
						r.FraudScore = 70
					}
					r.ComplianceChecks[CheckCTR] = true
					r.ComplianceChecks[CheckAML] = compliancePass

					want := !hasErrors && !aboveThreshold && compliancePass
					if got := r.IsApproved(); got != want {
						t.Errorf("expected IsApproved=%v, got %v", want, got)
					}
				})
			}
		}
	}
}

func TestAddErrorIgnoresNil(t *testing.T) {
	r := NewValidationResult("tx-1", 70)
	r.AddError(nil)
	if len(r.Errors) != 0 {
		t.Errorf("expected no errors, got %v", r.Errors)
	}
}

func TestRiskLevel(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{0, "Low"},
		{25, "Low"},
		{26, "Medium"},
		{50, "Medium"},
		{75, "High"},
		{76, "Critical"},
		{100, "Critical"},
	}
	for _, tt := range tests {
		r := &ValidationResult{FraudScore: tt.score}
		if got := r.RiskLevel(); got != tt.want {
			t.Errorf("score %d: expected %s, got %s", tt.score, tt.want, got)
		}
	}
}

func TestRequiresManualReview(t *testing.T) {
	r := NewValidationResult("tx-1", 70)
	if r.RequiresManualReview() {
		t.Error("clean result should not need review")
	}
	r.Warnings = append(r.Warnings, "off-hours transaction at 02:00 UTC")
	if !r.RequiresManualReview() {
		t.Error("warnings should trigger review")
	}

	flagged := NewValidationResult("tx-2", 70)
	flagged.RedFlags = append(flagged.RedFlags, AMLRedFlag{Type: RedFlagCrossBorder, Severity: "medium"})
	if !flagged.RequiresManualReview() || !flagged.IsApproved() {
		t.Error("red flags should trigger review without blocking approval")
	}
}

func TestResultMarshalJSON(t *testing.T) {
	r := NewValidationResult("tx-1", 70)
	r.FraudScore = 30

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["isApproved"] != true {
		t.Errorf("expected isApproved true, got %v", decoded["isApproved"])
	}
	if decoded["riskLevel"] != "Medium" {
		t.Errorf("expected riskLevel Medium, got %v", decoded["riskLevel"])
	}
	if decoded["transactionId"] != "tx-1" {
		t.Errorf("expected transactionId tx-1, got %v", decoded["transactionId"])
	}
}

func TestValidationErrorIs(t *testing.T) {
	err := NewValidationError(KindCurrency, "currency", "unrecognized currency %q", "XYZ")

	if !errors.Is(err, ErrCurrency) {
		t.Error("expected match on ErrCurrency")
	}
	if errors.Is(err, ErrAmount) {
		t.Error("unexpected match on ErrAmount")
	}
	if err.Error() != `CurrencyError: unrecognized currency "XYZ"` {
		t.Errorf("unexpected message: %s", err.Error())
	}

	wrapped := fmt.Errorf("rejected: %w", err)
	if !errors.Is(wrapped, ErrCurrency) {
		t.Error("expected match through wrapping")
	}
}
