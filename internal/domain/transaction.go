package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the closed set of transaction kinds the validator understands.
type TransactionType string

const (
	TypeDeposit      TransactionType = "deposit"
	TypeWithdrawal   TransactionType = "withdrawal"
	TypeTransfer     TransactionType = "transfer"
	TypePayment      TransactionType = "payment"
	TypeWireTransfer TransactionType = "wire_transfer"
)

// TransactionTypes lists every known type in declaration order.
func TransactionTypes() []TransactionType {
	return []TransactionType{TypeDeposit, TypeWithdrawal, TypeTransfer, TypePayment, TypeWireTransfer}
}

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeTransfer, TypePayment, TypeWireTransfer:
		return true
	}
	return false
}

// ParseTransactionType accepts the wire form ("wire_transfer") as well as the
// CamelCase form ("WireTransfer").
func ParseTransactionType(s string) (TransactionType, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "wiretransfer" {
		normalized = string(TypeWireTransfer)
	}
	t := TransactionType(normalized)
	if !t.Valid() {
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
	return t, nil
}

// UnmarshalJSON parses either spelling of a transaction type. Unknown
// values are kept verbatim so validation reports them as a business rule
// violation instead of a decode failure.
func (t *TransactionType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTransactionType(s)
	if err != nil {
		*t = TransactionType(s)
		return nil
	}
	*t = parsed
	return nil
}

// Transaction is a financial transaction submitted for validation.
// The validator never mutates it.
type Transaction struct {
	ID     string          `json:"transactionId"`
	Type   TransactionType `json:"transactionType"`
	Amount decimal.Decimal `json:"amount"`

	Currency string `json:"currency"`

	// Accounts are optional; nil means absent, which is different from "".
	FromAccount *string `json:"fromAccount,omitempty"`
	ToAccount   *string `json:"toAccount,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"userId"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Account returns a pointer to a copy of id, for populating optional account fields.
func Account(id string) *string {
	return &id
}

// HasFromAccount reports whether a source account is present.
func (t *Transaction) HasFromAccount() bool {
	return t.FromAccount != nil
}

// HasToAccount reports whether a destination account is present.
func (t *Transaction) HasToAccount() bool {
	return t.ToAccount != nil
}

// Metadata keys read by the compliance and geographic risk checks.
const (
	MetaCrossBorder        = "cross_border"
	MetaOriginCountry      = "origin_country"
	MetaDestinationCountry = "destination_country"
)

// CrossBorder reports whether the transaction is flagged cross_border=true
// or names two different origin and destination countries.
func (t *Transaction) CrossBorder() bool {
	if v, _ := t.MetadataValue(MetaCrossBorder); strings.EqualFold(v, "true") {
		return true
	}
	origin, _ := t.MetadataValue(MetaOriginCountry)
	dest, _ := t.MetadataValue(MetaDestinationCountry)
	origin, dest = strings.TrimSpace(origin), strings.TrimSpace(dest)
	return origin != "" && dest != "" && !strings.EqualFold(origin, dest)
}

// MetadataValue returns a metadata entry and whether it exists.
func (t *Transaction) MetadataValue(key string) (string, bool) {
	if t.Metadata == nil {
		return "", false
	}
	v, ok := t.Metadata[key]
	return v, ok
}
