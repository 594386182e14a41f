package domain

import (
	"time"
)

// User is the profile the rule engine consults; identity itself is owned
// by the auth layer upstream.
type User struct {
	ID               string `json:"id"`
	Email            string `json:"email,omitempty"`
	BusinessVerified bool   `json:"businessVerified"`

	// CreditScore is the stored self-reported score; nil means unknown.
	// A score supplied on an eligibility check takes precedence over it.
	CreditScore *int `json:"creditScore,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
