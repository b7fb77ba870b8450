package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ValidatorConfig holds every threshold and weight used by the validation
// pipeline. It is supplied once at construction and never changes afterwards.
type ValidatorConfig struct {
	MaxTransactionAmount decimal.Decimal `json:"maxTransactionAmount"`
	MinTransactionAmount decimal.Decimal `json:"minTransactionAmount"`

	// FraudThreshold is the score (0-100) at or above which a transaction is not approved.
	FraudThreshold int `json:"fraudThreshold"`

	EnableDuplicateCheck bool `json:"enableDuplicateCheck"`
	EnableAMLCheck       bool `json:"enableAmlCheck"`

	// AllowedCurrencies is the currency allow-list. Empty means DefaultCurrencies.
	AllowedCurrencies []string `json:"allowedCurrencies,omitempty"`

	Fraud FraudWeights `json:"fraud"`

	// CTRThreshold is the amount at or above which a Currency Transaction
	// Report obligation applies.
	CTRThreshold decimal.Decimal `json:"ctrThreshold"`

	// StructuringThreshold raises a structuring red flag for amounts in
	// [StructuringThreshold, CTRThreshold). Zero disables it.
	StructuringThreshold decimal.Decimal `json:"structuringThreshold"`

	// CashIntensiveThreshold raises a cash-intensive red flag for deposits
	// and withdrawals at or above it. Zero disables it.
	CashIntensiveThreshold decimal.Decimal `json:"cashIntensiveThreshold"`

	// SanctionsFailClosed reports SanctionsScreening as failed when no
	// screener is wired. When false the unscreened check is reported as passed.
	//
	// The default is false: a validator built from defaults alone has no
	// screening source, and an ordinary in-policy transfer must still be
	// approvable. Deployments that require screening set it to true.
	SanctionsFailClosed bool `json:"sanctionsFailClosed"`

	// DuplicateRetention evicts remembered transaction IDs older than the
	// window. Zero keeps every ID for the validator's lifetime.
	DuplicateRetention time.Duration `json:"duplicateRetention"`

	// DuplicateMaxEntries caps the remembered IDs, evicting the oldest.
	// Zero means unbounded.
	DuplicateMaxEntries int `json:"duplicateMaxEntries"`
}

// FraudWeights configures the additive fraud heuristics.
type FraudWeights struct {
	// Round-number structuring: amount is a multiple of RoundUnit and at
	// least RoundLargeThreshold.
	RoundUnit           decimal.Decimal `json:"roundUnit"`
	RoundLargeThreshold decimal.Decimal `json:"roundLargeThreshold"`
	RoundWeight         int             `json:"roundWeight"`

	// High value: amount above HighValueThreshold adds HighValueWeight plus
	// HighValueStepWeight for every full HighValueStep above the threshold,
	// capped at HighValueMaxWeight.
	HighValueThreshold  decimal.Decimal `json:"highValueThreshold"`
	HighValueWeight     int             `json:"highValueWeight"`
	HighValueStep       decimal.Decimal `json:"highValueStep"`
	HighValueStepWeight int             `json:"highValueStepWeight"`
	HighValueMaxWeight  int             `json:"highValueMaxWeight"`

	// Off hours: the timestamp's hour in OffHoursLocation falls in
	// [OffHoursStart, OffHoursEnd). Start > End wraps past midnight.
	OffHoursStart    int            `json:"offHoursStart"`
	OffHoursEnd      int            `json:"offHoursEnd"`
	OffHoursLocation *time.Location `json:"-"`
	OffHoursWeight   int            `json:"offHoursWeight"`

	// Wire transfer above WireTransferThreshold.
	WireTransferThreshold decimal.Decimal `json:"wireTransferThreshold"`
	WireTransferWeight    int             `json:"wireTransferWeight"`

	// Velocity: more than VelocityLimit recent transactions inside VelocityWindow.
	VelocityWindow time.Duration `json:"velocityWindow"`
	VelocityLimit  int64         `json:"velocityLimit"`
	VelocityWeight int           `json:"velocityWeight"`
}

// DefaultCurrencies is the built-in currency allow-list.
var DefaultCurrencies = []string{"USD", "EUR", "GBP", "JPY", "CHF", "CAD", "AUD"}

// DefaultValidatorConfig returns the built-in thresholds.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxTransactionAmount: decimal.NewFromInt(1_000_000),
		MinTransactionAmount: decimal.RequireFromString("0.01"),
		FraudThreshold:       70,
		EnableDuplicateCheck: true,
		EnableAMLCheck:       true,
		AllowedCurrencies:    append([]string(nil), DefaultCurrencies...),
		Fraud:                DefaultFraudWeights(),
		CTRThreshold:         decimal.NewFromInt(10_000),

		StructuringThreshold:   decimal.NewFromInt(9_500),
		CashIntensiveThreshold: decimal.NewFromInt(5_000),
	}
}

// DefaultFraudWeights returns the baseline heuristic weights.
func DefaultFraudWeights() FraudWeights {
	return FraudWeights{
		RoundUnit:           decimal.NewFromInt(1_000),
		RoundLargeThreshold: decimal.NewFromInt(10_000),
		RoundWeight:         20,

		HighValueThreshold:  decimal.NewFromInt(50_000),
		HighValueWeight:     30,
		HighValueStep:       decimal.NewFromInt(50_000),
		HighValueStepWeight: 5,
		HighValueMaxWeight:  40,

		OffHoursStart:    0,
		OffHoursEnd:      5,
		OffHoursLocation: time.UTC,
		OffHoursWeight:   10,

		WireTransferThreshold: decimal.NewFromInt(5_000),
		WireTransferWeight:    15,

		VelocityWindow: time.Hour,
		VelocityLimit:  10,
		VelocityWeight: 25,
	}
}

// Currencies returns the effective allow-list.
func (c ValidatorConfig) Currencies() []string {
	if len(c.AllowedCurrencies) == 0 {
		return DefaultCurrencies
	}
	return c.AllowedCurrencies
}

// Validate checks the configuration for internal consistency.
func (c ValidatorConfig) Validate() error {
	if c.MinTransactionAmount.IsNegative() {
		return fmt.Errorf("%w: min_transaction_amount %s is negative", ErrInvalidConfig, c.MinTransactionAmount)
	}
	if c.MaxTransactionAmount.LessThan(c.MinTransactionAmount) {
		return fmt.Errorf("%w: max_transaction_amount %s is below min_transaction_amount %s",
			ErrInvalidConfig, c.MaxTransactionAmount, c.MinTransactionAmount)
	}
	if c.FraudThreshold < 0 || c.FraudThreshold > 100 {
		return fmt.Errorf("%w: fraud_threshold %d outside [0,100]", ErrInvalidConfig, c.FraudThreshold)
	}
	if c.CTRThreshold.IsNegative() {
		return fmt.Errorf("%w: ctr_threshold %s is negative", ErrInvalidConfig, c.CTRThreshold)
	}
	if c.StructuringThreshold.GreaterThan(c.CTRThreshold) {
		return fmt.Errorf("%w: structuring_threshold %s is above ctr_threshold %s",
			ErrInvalidConfig, c.StructuringThreshold, c.CTRThreshold)
	}
	if c.CashIntensiveThreshold.IsNegative() {
		return fmt.Errorf("%w: cash_intensive_threshold %s is negative", ErrInvalidConfig, c.CashIntensiveThreshold)
	}
	if c.DuplicateRetention < 0 || c.DuplicateMaxEntries < 0 {
		return fmt.Errorf("%w: duplicate retention and capacity must not be negative", ErrInvalidConfig)
	}
	return c.Fraud.validate()
}

func (w FraudWeights) validate() error {
	for name, weight := range map[string]int{
		"round_weight":           w.RoundWeight,
		"high_value_weight":      w.HighValueWeight,
		"high_value_step_weight": w.HighValueStepWeight,
		"high_value_max_weight":  w.HighValueMaxWeight,
		"off_hours_weight":       w.OffHoursWeight,
		"wire_transfer_weight":   w.WireTransferWeight,
		"velocity_weight":        w.VelocityWeight,
	} {
		if weight < 0 || weight > 100 {
			return fmt.Errorf("%w: %s %d outside [0,100]", ErrInvalidConfig, name, weight)
		}
	}
	if !w.RoundUnit.IsPositive() {
		return fmt.Errorf("%w: round_unit must be positive", ErrInvalidConfig)
	}
	if w.HighValueStep.IsNegative() {
		return fmt.Errorf("%w: high_value_step is negative", ErrInvalidConfig)
	}
	if w.OffHoursStart < 0 || w.OffHoursStart > 23 || w.OffHoursEnd < 0 || w.OffHoursEnd > 24 {
		return fmt.Errorf("%w: off-hours window %d-%d is not a valid hour range", ErrInvalidConfig, w.OffHoursStart, w.OffHoursEnd)
	}
	if w.VelocityWindow < 0 || w.VelocityLimit < 0 {
		return fmt.Errorf("%w: velocity window and limit must not be negative", ErrInvalidConfig)
	}
	return nil
}
