package validator

import (
	"github.com/opensource-finance/txguard/internal/domain"
)

// AccountPolicy says which accounts a transaction type uses. Used accounts
// are required and format-checked; unused accounts are ignored.
type AccountPolicy struct {
	UsesFrom   bool
	UsesTo     bool
	MustDiffer bool
	KnownType  bool
}

// BusinessRuleEngine enforces per-type account requirements and the
// currency allow-list.
type BusinessRuleEngine struct {
	currencies map[string]struct{}
}

// NewBusinessRuleEngine creates the engine for the configured currencies.
func NewBusinessRuleEngine(cfg domain.ValidatorConfig) *BusinessRuleEngine {
	allowed := cfg.Currencies()
	currencies := make(map[string]struct{}, len(allowed))
	for _, c := range allowed {
		currencies[c] = struct{}{}
	}
	return &BusinessRuleEngine{currencies: currencies}
}

// Policy returns the account policy for a transaction type. Every known
// type must have a case here.
func (e *BusinessRuleEngine) Policy(t domain.TransactionType) AccountPolicy {
	switch t {
	case domain.TypeDeposit:
		return AccountPolicy{UsesTo: true, KnownType: true}
	case domain.TypeWithdrawal:
		return AccountPolicy{UsesFrom: true, KnownType: true}
	case domain.TypeTransfer, domain.TypePayment, domain.TypeWireTransfer:
		return AccountPolicy{UsesFrom: true, UsesTo: true, MustDiffer: true, KnownType: true}
	default:
		return AccountPolicy{}
	}
}

// Check returns every business rule and currency violation, in order.
func (e *BusinessRuleEngine) Check(tx *domain.Transaction) []*domain.ValidationError {
	var errs []*domain.ValidationError

	if tx.ID == "" {
		errs = append(errs, domain.NewValidationError(domain.KindBusinessRule, "transaction_id",
			"transaction_id is required"))
	}

	policy := e.Policy(tx.Type)
	if !policy.KnownType {
		errs = append(errs, domain.NewValidationError(domain.KindBusinessRule, "transaction_type",
			"unknown transaction type %q", tx.Type))
	} else {
		if policy.UsesFrom && !tx.HasFromAccount() {
			errs = append(errs, domain.NewValidationError(domain.KindBusinessRule, "from_account",
				"%s requires from_account", tx.Type))
		}
		if policy.UsesTo && !tx.HasToAccount() {
			errs = append(errs, domain.NewValidationError(domain.KindBusinessRule, "to_account",
				"%s requires to_account", tx.Type))
		}
		if policy.MustDiffer && tx.HasFromAccount() && tx.HasToAccount() && *tx.FromAccount == *tx.ToAccount {
			errs = append(errs, domain.NewValidationError(domain.KindBusinessRule, "to_account",
				"%s from_account and to_account must differ", tx.Type))
		}
	}

	if err := e.CheckCurrency(tx.Currency); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// CheckCurrency returns a CurrencyError for empty or unrecognized codes.
func (e *BusinessRuleEngine) CheckCurrency(code string) *domain.ValidationError {
	if code == "" {
		return domain.NewValidationError(domain.KindCurrency, "currency", "currency is required")
	}
	if _, ok := e.currencies[code]; !ok {
		return domain.NewValidationError(domain.KindCurrency, "currency", "unrecognized currency %q", code)
	}
	return nil
}
