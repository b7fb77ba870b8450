package validator

import (
	"github.com/opensource-finance/txguard/internal/domain"
	"github.com/shopspring/decimal"
)

// amountScale is the number of fractional digits a currency amount may carry.
const amountScale = 2

// AmountValidator checks amount bounds and precision.
type AmountValidator struct {
	min decimal.Decimal
	max decimal.Decimal
}

// NewAmountValidator creates an AmountValidator for the configured bounds.
func NewAmountValidator(cfg domain.ValidatorConfig) *AmountValidator {
	return &AmountValidator{
		min: cfg.MinTransactionAmount,
		max: cfg.MaxTransactionAmount,
	}
}

// Check returns an AmountError when amount is not positive, lies outside
// [min, max], or has more than two fractional digits. Precision is never
// rounded away. A decimal.Decimal is always finite, so there is no NaN or
// infinity case to reject.
func (a *AmountValidator) Check(amount decimal.Decimal) *domain.ValidationError {
	if !amount.IsPositive() {
		return domain.NewValidationError(domain.KindAmount, "amount", "amount %s must be positive", amount)
	}
	if amount.LessThan(a.min) {
		return domain.NewValidationError(domain.KindAmount, "amount", "amount %s below minimum %s", amount, a.min)
	}
	if amount.GreaterThan(a.max) {
		return domain.NewValidationError(domain.KindAmount, "amount", "amount %s exceeds maximum %s", amount, a.max)
	}
	if !amount.Equal(amount.Truncate(amountScale)) {
		return domain.NewValidationError(domain.KindAmount, "amount",
			"amount %s has more than %d decimal places", amount, amountScale)
	}
	return nil
}
