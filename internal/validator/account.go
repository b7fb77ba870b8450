package validator

import (
	"regexp"

	"github.com/opensource-finance/txguard/internal/domain"
)

var (
	fullAccountPattern   = regexp.MustCompile(`^ACCT-[A-Za-z0-9]{4}-[A-Za-z0-9]{4}-[A-Za-z0-9]{4}-[A-Za-z0-9]{4}$`)
	maskedAccountPattern = regexp.MustCompile(`^\*{4}[A-Za-z0-9]{4}$`)
)

// AccountFormatValidator checks account identifier shape. Two shapes are
// accepted: ACCT-XXXX-XXXX-XXXX-XXXX and the masked ****XXXX.
type AccountFormatValidator struct{}

// ValidAccount reports whether id has an accepted shape.
func (AccountFormatValidator) ValidAccount(id string) bool {
	return fullAccountPattern.MatchString(id) || maskedAccountPattern.MatchString(id)
}

// Check validates an optional account. Absent accounts are not checked here.
func (v AccountFormatValidator) Check(field string, account *string) *domain.ValidationError {
	if account == nil {
		return nil
	}
	if !v.ValidAccount(*account) {
		return domain.NewValidationError(domain.KindAccountFormat, field, "invalid %s format: %q", field, *account)
	}
	return nil
}
