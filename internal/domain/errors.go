package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a hard validation failure.
type ErrorKind string

const (
	KindAmount               ErrorKind = "AmountError"
	KindAccountFormat        ErrorKind = "AccountFormatError"
	KindBusinessRule         ErrorKind = "BusinessRuleError"
	KindCurrency             ErrorKind = "CurrencyError"
	KindDuplicateTransaction ErrorKind = "DuplicateTransactionError"
)

// Sentinels for errors.Is matching against a *ValidationError.
var (
	ErrAmount               = errors.New("invalid amount")
	ErrAccountFormat        = errors.New("invalid account format")
	ErrBusinessRule         = errors.New("business rule violation")
	ErrCurrency             = errors.New("unrecognized currency")
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrInvalidConfig is returned when a ValidatorConfig is inconsistent.
	ErrInvalidConfig = errors.New("invalid validator config")
)

var kindSentinels = map[ErrorKind]error{
	KindAmount:               ErrAmount,
	KindAccountFormat:        ErrAccountFormat,
	KindBusinessRule:         ErrBusinessRule,
	KindCurrency:             ErrCurrency,
	KindDuplicateTransaction: ErrDuplicateTransaction,
}

// ValidationError is a hard failure recorded in a ValidationResult.
// It is a value in the result, never a fault of the Validate call.
type ValidationError struct {
	Kind    ErrorKind `json:"kind"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(kind ErrorKind, field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Kind:    kind,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches the sentinel error for the kind.
func (e *ValidationError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}
