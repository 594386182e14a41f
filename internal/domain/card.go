package domain

import (
	"time"
)

// CardStatus is the lifecycle state of a card application.
type CardStatus string

const (
	StatusPending   CardStatus = "PENDING"
	StatusApproved  CardStatus = "APPROVED"
	StatusDenied    CardStatus = "DENIED"
	StatusCancelled CardStatus = "CANCELLED"
)

// ValidStatus reports whether s is a known application status.
func ValidStatus(s CardStatus) bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusCancelled:
		return true
	}
	return false
}

// Card is a shared reference entity describing a credit card product.
type Card struct {
	ID         string `json:"id"`
	Issuer     string `json:"issuer"`
	Name       string `json:"name"`
	Network    string `json:"network"`
	RewardType string `json:"rewardType"`

	SignupBonus float64 `json:"signupBonus"`
	MinSpend    float64 `json:"minSpend"`

	// MinSpendPeriod is the number of days after approval the cardholder
	// has to meet MinSpend.
	MinSpendPeriod int `json:"minSpendPeriod"`

	AnnualFee      float64 `json:"annualFee"`
	CreditScoreMin *int    `json:"creditScoreMin,omitempty"`
	BusinessCard   bool    `json:"businessCard"`
	IsActive       bool    `json:"isActive"`

	IssuerRules   []IssuerRule   `json:"issuerRules,omitempty"`
	VelocityRules []VelocityRule `json:"velocityRules,omitempty"`
	ChurningRules []ChurningRule `json:"churningRules,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IssuerRule limits how many cards a user can hold from an issuer and how
// soon they may reapply.
type IssuerRule struct {
	ID          string `json:"id"`
	CardID      string `json:"cardId"`
	RuleType    string `json:"ruleType"`
	Description string `json:"description,omitempty"`

	// CooldownPeriod is in days.
	CooldownPeriod int  `json:"cooldownPeriod"`
	MaxCards       *int `json:"maxCards,omitempty"`
	IsActive       bool `json:"isActive"`
}

// VelocityRule caps the number of applications within a rolling window.
type VelocityRule struct {
	ID              string `json:"id"`
	CardID          string `json:"cardId"`
	MaxApplications int    `json:"maxApplications"`
	PeriodDays      int    `json:"periodDays"`
	IsActive        bool   `json:"isActive"`
}

// ChurningRule enforces the waiting period between signup bonuses on the
// same card.
type ChurningRule struct {
	ID     string `json:"id"`
	CardID string `json:"cardId"`

	// BonusCooldown is in months.
	BonusCooldown int  `json:"bonusCooldown"`
	IsActive      bool `json:"isActive"`
}

// CardApplication tracks one user's application to one card through its
// lifecycle. SpendProgress only ever grows; BonusEarnedAt is set at most
// once, when cumulative spend reaches Card.MinSpend.
type CardApplication struct {
	ID     string     `json:"id"`
	UserID string     `json:"userId"`
	CardID string     `json:"cardId"`
	Status CardStatus `json:"status"`

	AppliedAt     time.Time  `json:"appliedAt"`
	ApprovedAt    *time.Time `json:"approvedAt,omitempty"`
	ClosedAt      *time.Time `json:"closedAt,omitempty"`
	BonusEarnedAt *time.Time `json:"bonusEarnedAt,omitempty"`

	SpendProgress float64    `json:"spendProgress"`
	SpendDeadline *time.Time `json:"spendDeadline,omitempty"`

	AnnualFeePaid bool   `json:"annualFeePaid"`
	Notes         string `json:"notes,omitempty"`
}

// RetentionOffer records a follow-up offer an issuer made to keep a card
// open. At least one of PointsOffered or StatementCredit is present; both
// may be.
type RetentionOffer struct {
	ID            string `json:"id"`
	ApplicationID string `json:"applicationId"`
	CardID        string `json:"cardId"`

	PointsOffered   *float64 `json:"pointsOffered,omitempty"`
	StatementCredit *float64 `json:"statementCredit,omitempty"`
	SpendRequired   *float64 `json:"spendRequired,omitempty"`

	OfferDate time.Time `json:"offerDate"`
	Accepted  *bool     `json:"accepted,omitempty"`
	Notes     string    `json:"notes,omitempty"`
}

// RuleViolation names the rule a prospective application would break.
type RuleViolation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// EligibilityResult is the outcome of an eligibility check. All rules are
// evaluated; Violations lists every one that failed.
type EligibilityResult struct {
	Eligible   bool            `json:"eligible"`
	Violations []RuleViolation `json:"violations"`
}

// ApplicationPage is one page of a user's applications, newest first.
type ApplicationPage struct {
	Items      []*CardApplication `json:"items"`
	NextCursor string             `json:"nextCursor,omitempty"`
}
