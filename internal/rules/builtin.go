package rules

import "github.com/opensource-finance/txguard/internal/domain"

// BuiltinRules returns the starter heuristics seeded into an empty rule
// store. Both key off caller-supplied metadata, so transactions without
// that metadata are unaffected.
func BuiltinRules() []*domain.HeuristicRule {
	return []*domain.HeuristicRule{
		{
			ID:          "new-payee",
			Name:        "New Payee",
			Description: "Funds sent to a destination the user has never paid before",
			Expression:  `has_to && "new_payee" in metadata && metadata["new_payee"] == "true"`,
			Weight:      10,
			Warning:     "first payment to a new payee",
			Family:      domain.FamilyPattern,
			Enabled:     true,
		},
		{
			ID:          "high-risk-channel",
			Name:        "High Risk Channel",
			Description: "Submitted through a channel with elevated fraud rates",
			Expression:  `"channel" in metadata && metadata["channel"] in ["crypto_exchange", "prepaid_card"]`,
			Weight:      15,
			Warning:     "submitted through a high-risk channel",
			Family:      domain.FamilyPattern,
			Enabled:     true,
		},
	}
}
