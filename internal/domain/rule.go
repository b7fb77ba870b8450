package domain

import "time"

// HeuristicRule is an operator-defined fraud heuristic expressed in CEL.
// The expression must evaluate to a bool; when true the rule adds Weight to
// the fraud score and appends Warning to the result.
type HeuristicRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Expression string `json:"expression"`
	Weight     int    `json:"weight"`
	Warning    string `json:"warning"`

	// Family defaults to "pattern".
	Family SignalFamily `json:"family,omitempty"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// SanctionsEntry is a listed party.
type SanctionsEntry struct {
	Name      string    `json:"name"`
	List      string    `json:"list"`
	Aliases   []string  `json:"aliases,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Sanctions list labels.
const (
	ListOFAC   = "OFAC SDN"
	ListEU     = "EU Consolidated"
	ListUN     = "UN Security Council"
	ListUKOFSI = "UK OFSI"
)
