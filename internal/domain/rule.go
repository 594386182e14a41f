package domain

import (
	"time"
)

// RuleConfig is an operator-defined eligibility rule expressed as a CEL
// boolean over the applicant variables. When the expression evaluates to
// true the rule is violated and Message is surfaced to the caller.
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Expression is a CEL expression returning bool. Available variables:
	// credit_score, has_credit_score, recent_applications,
	// issuer_card_count, months_since_bonus, days_since_issuer_application,
	// business_verified, card_issuer, card_annual_fee, card_business,
	// min_spend, signup_bonus.
	Expression string `json:"expression"`

	// Message is the violation message shown when the rule fires.
	Message string `json:"message"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
