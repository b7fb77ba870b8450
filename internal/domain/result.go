package domain

import (
	"encoding/json"
	"time"
)

// Compliance check names reported in ValidationResult.ComplianceChecks.
const (
	CheckCTR                    = "CTR"
	CheckAML                    = "AML"
	CheckSanctionsScreening     = "SanctionsScreening"
	CheckWireSourceVerification = "WireSourceVerification"
)

// AML red flag types.
const (
	RedFlagStructuring   = "potential_structuring"
	RedFlagCashIntensive = "cash_intensive"
	RedFlagCrossBorder   = "cross_border"
)

// AMLRedFlag marks a transaction for suspicious activity review. Red flags
// are advisory: they never fail a compliance check on their own.
type AMLRedFlag struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// RiskBreakdown splits the fraud score by signal family.
type RiskBreakdown struct {
	AmountRisk   int `json:"amountRisk"`
	PatternRisk  int `json:"patternRisk"`
	TimeRisk     int `json:"timeRisk"`
	VelocityRisk int `json:"velocityRisk"`
	TotalScore   int `json:"totalScore"`
}

// ValidationResult is the outcome of a single Validate call.
//
// Approval is derived from the other fields by IsApproved and cannot be set.
type ValidationResult struct {
	ValidationID  string `json:"validationId"`
	TransactionID string `json:"transactionId"`
	UserID        string `json:"userId,omitempty"`

	Errors   []ValidationError `json:"errors"`
	Warnings []string          `json:"warnings"`

	FraudScore     int           `json:"fraudScore"`
	FraudThreshold int           `json:"fraudThreshold"`
	RiskBreakdown  RiskBreakdown `json:"riskBreakdown"`

	ComplianceChecks map[string]bool `json:"complianceChecks"`
	RedFlags         []AMLRedFlag    `json:"redFlags,omitempty"`

	ValidatedAt time.Time `json:"validatedAt"`
}

// NewValidationResult returns an empty result for a transaction.
func NewValidationResult(txID string, threshold int) *ValidationResult {
	return &ValidationResult{
		TransactionID:    txID,
		Errors:           []ValidationError{},
		Warnings:         []string{},
		FraudThreshold:   threshold,
		ComplianceChecks: map[string]bool{},
	}
}

// IsApproved is true when there are no hard errors, the fraud score is below
// the threshold and every compliance check passed.
func (r *ValidationResult) IsApproved() bool {
	if len(r.Errors) > 0 {
		return false
	}
	if r.FraudScore >= r.FraudThreshold {
		return false
	}
	for _, passed := range r.ComplianceChecks {
		if !passed {
			return false
		}
	}
	return true
}

// AddError appends a hard failure.
func (r *ValidationResult) AddError(err *ValidationError) {
	if err != nil {
		r.Errors = append(r.Errors, *err)
	}
}

// HasError reports whether a hard failure of the given kind was recorded.
func (r *ValidationResult) HasError(kind ErrorKind) bool {
	for _, e := range r.Errors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// ErrorMessages returns the hard failures as strings, in order.
func (r *ValidationResult) ErrorMessages() []string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return msgs
}

// RiskLevel maps the fraud score to a coarse label.
func (r *ValidationResult) RiskLevel() string {
	switch {
	case r.FraudScore <= 25:
		return "Low"
	case r.FraudScore <= 50:
		return "Medium"
	case r.FraudScore <= 75:
		return "High"
	default:
		return "Critical"
	}
}

// RequiresManualReview flags results an analyst should look at.
func (r *ValidationResult) RequiresManualReview() bool {
	return r.FraudScore >= 50 || len(r.Warnings) > 0 || len(r.RedFlags) > 0
}

// MarshalJSON adds the derived approval flag and risk level.
func (r *ValidationResult) MarshalJSON() ([]byte, error) {
	type plain ValidationResult
	return json.Marshal(struct {
		*plain
		IsApproved bool   `json:"isApproved"`
		RiskLevel  string `json:"riskLevel"`
	}{
		plain:      (*plain)(r),
		IsApproved: r.IsApproved(),
		RiskLevel:  r.RiskLevel(),
	})
}

// ValidationStats summarises a validator's lifetime activity.
type ValidationStats struct {
	TotalValidated   int64 `json:"totalValidated"`
	Approved         int64 `json:"approved"`
	Rejected         int64 `json:"rejected"`
	DuplicateRejects int64 `json:"duplicateRejects"`
	DuplicatesHeld   int   `json:"duplicatesHeld"`
}
