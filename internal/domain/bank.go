package domain

import (
	"time"
)

// Bank is a shared reference entity for a bank offering account bonuses.
type Bank struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
	Logo    string `json:"logo,omitempty"`

	// BonusCooldown is in months; nil means the bank publishes no cooldown.
	BonusCooldown *int `json:"bonusCooldown,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RequirementType discriminates bonus requirement kinds.
type RequirementType string

const (
	RequirementDirectDeposit     RequirementType = "DIRECT_DEPOSIT"
	RequirementMinimumBalance    RequirementType = "MINIMUM_BALANCE"
	RequirementDebitTransactions RequirementType = "DEBIT_TRANSACTIONS"
	RequirementBillPay           RequirementType = "BILL_PAY"
)

// BankAccount is a user's account at a bank, optionally opened for a bonus.
type BankAccount struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	BankID string `json:"bankId"`

	AccountType     string   `json:"accountType"`
	MinimumBalance  *float64 `json:"minimumBalance,omitempty"`
	MonthsFeeWaived *int     `json:"monthsFeeWaived,omitempty"`
	Notes           string   `json:"notes,omitempty"`

	OpenedAt time.Time `json:"openedAt"`

	Bonus *Bonus `json:"bonus,omitempty"`
}

// Bonus is the signup bonus attached to an account, with the requirements
// that must be met to earn it.
type Bonus struct {
	ID          string  `json:"id"`
	AccountID   string  `json:"accountId"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`

	Requirements []BonusRequirement `json:"requirements,omitempty"`
}

// BonusRequirement is one condition of a bonus. Completed never reverts to
// false once set.
type BonusRequirement struct {
	ID      string          `json:"id"`
	BonusID string          `json:"bonusId"`
	Type    RequirementType `json:"type"`

	// Amount is the per-event threshold (e.g. minimum deposit size).
	Amount float64 `json:"amount"`

	// Count is how many qualifying events are needed; 0 means 1.
	Count int `json:"count,omitempty"`

	Deadline    time.Time  `json:"deadline"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// RequiredCount normalizes the unset count to the default of one event.
func (r *BonusRequirement) RequiredCount() int {
	if r.Count <= 0 {
		return 1
	}
	return r.Count
}

// DirectDeposit is an immutable deposit event on an account. Verified
// defaults to false until reconciled.
type DirectDeposit struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Amount    float64   `json:"amount"`
	Source    string    `json:"source"`
	Date      time.Time `json:"date"`
	Verified  bool      `json:"verified"`
}

// DebitTransaction is an immutable debit-card event on an account.
type DebitTransaction struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"accountId"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description,omitempty"`
	Date        time.Time `json:"date"`
}

// RequirementProgress is the derived progress of one bonus requirement.
type RequirementProgress struct {
	Type       RequirementType `json:"type"`
	Required   int             `json:"required"`
	Completed  int             `json:"completed"`
	Amount     float64         `json:"amount"`
	Deadline   time.Time       `json:"deadline"`
	IsComplete bool            `json:"isComplete"`
}

// BonusProgress aggregates requirement progress for an account's bonus.
type BonusProgress struct {
	BonusID      string                `json:"bonusId"`
	Requirements []RequirementProgress `json:"requirements"`
	IsComplete   bool                  `json:"isComplete"`
}
