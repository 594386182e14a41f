// Package domain defines the core types and interfaces for Churnistic.
package domain

import (
	"context"
	"time"
)

// StatusUpdate carries the fields a status transition may set. Nil fields
// are left untouched.
type StatusUpdate struct {
	Status        CardStatus
	Notes         *string
	ApprovedAt    *time.Time
	ClosedAt      *time.Time
	SpendDeadline *time.Time
}

// SpendResult is the outcome of an atomic spend increment.
type SpendResult struct {
	Application *CardApplication
	// BonusEarned is true only on the update that crossed the threshold.
	BonusEarned bool
}

// Repository defines the interface for data persistence. Methods on
// user-owned entities take a userID and treat rows owned by other users as
// absent.
type Repository interface {
	// Card catalog (shared reference entities)
	SaveCard(ctx context.Context, card *Card) error
	GetCard(ctx context.Context, cardID string) (*Card, error)
	ListCards(ctx context.Context) ([]*Card, error)

	// User profiles
	SaveUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, userID string) (*User, error)

	// Card applications
	CreateApplication(ctx context.Context, app *CardApplication) error
	GetApplication(ctx context.Context, userID, appID string) (*CardApplication, error)
	ListApplications(ctx context.Context, userID string, limit int, cursor string) (*ApplicationPage, error)
	UpdateApplicationStatus(ctx context.Context, userID, appID string, upd StatusUpdate) (*CardApplication, error)
	// AddSpend increments spend progress and sets bonus_earned_at when the
	// new total reaches minSpend. The stamp is claimed atomically, so of
	// any number of concurrent updates exactly one reports BonusEarned.
	AddSpend(ctx context.Context, userID, appID string, amount, minSpend float64, date time.Time) (*SpendResult, error)

	// Application history queries for rule evaluation
	CountApplicationsSince(ctx context.Context, userID string, since time.Time) (int, error)
	CountIssuerApplications(ctx context.Context, userID, issuer string, since time.Time) (int, error)
	LatestIssuerApplication(ctx context.Context, userID, issuer string) (*CardApplication, error)
	LatestBonusEarned(ctx context.Context, userID, cardID string) (*CardApplication, error)

	// Retention offers
	SaveRetentionOffer(ctx context.Context, offer *RetentionOffer) error
	ListRetentionOffers(ctx context.Context, applicationID string) ([]*RetentionOffer, error)

	// Banks (shared reference entities)
	SaveBank(ctx context.Context, bank *Bank) error
	GetBank(ctx context.Context, bankID string) (*Bank, error)
	ListBanks(ctx context.Context) ([]*Bank, error)
	DeleteBank(ctx context.Context, bankID string) error

	// Bank accounts and bonus tracking
	CreateAccount(ctx context.Context, account *BankAccount) error
	GetAccount(ctx context.Context, userID, accountID string) (*BankAccount, error)
	ListAccounts(ctx context.Context, userID string) ([]*BankAccount, error)
	AddDirectDeposit(ctx context.Context, dep *DirectDeposit) error
	AddDebitTransaction(ctx context.Context, txn *DebitTransaction) error
	CountQualifyingDeposits(ctx context.Context, accountID string, minAmount float64) (int, error)
	CountDebitTransactions(ctx context.Context, accountID string) (int, error)
	// CompleteRequirement marks a requirement done; completed requirements
	// are never reverted. Returns ErrNotFound-compatible errors only for
	// missing rows, not already-completed ones.
	CompleteRequirement(ctx context.Context, requirementID string, at time.Time) error

	// Custom rule configurations
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)
	DeleteRuleConfig(ctx context.Context, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
