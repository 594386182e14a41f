// Package banks implements the bank catalog, account opening and signup
// bonus requirement tracking.
package banks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/churnistic/churnistic/internal/domain"
	"github.com/churnistic/churnistic/internal/repository"
)

// Service coordinates bank accounts and bonus progress.
type Service struct {
	repo domain.Repository
	bus  domain.EventBus
}

// NewService creates a new bank service.
func NewService(repo domain.Repository, eventBus domain.EventBus) *Service {
	return &Service{repo: repo, bus: eventBus}
}

// SaveBank stores a bank in the shared catalog.
func (s *Service) SaveBank(ctx context.Context, bank *domain.Bank) (*domain.Bank, error) {
	if bank.ID == "" {
		bank.ID = uuid.New().String()
	}
	if bank.Name == "" {
		return nil, domain.BadRequest("Bank name is required")
	}

	if err := s.repo.SaveBank(ctx, bank); err != nil {
		return nil, fmt.Errorf("failed to save bank: %w", err)
	}
	return s.GetBank(ctx, bank.ID)
}

// GetBank retrieves a bank from the catalog.
func (s *Service) GetBank(ctx context.Context, bankID string) (*domain.Bank, error) {
	bank, err := s.repo.GetBank(ctx, bankID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NotFound("Bank not found")
	}
	if err != nil {
		return nil, err
	}
	return bank, nil
}

// ListBanks returns the bank catalog.
func (s *Service) ListBanks(ctx context.Context) ([]*domain.Bank, error) {
	banks, err := s.repo.ListBanks(ctx)
	if err != nil {
		return nil, err
	}
	if banks == nil {
		banks = []*domain.Bank{}
	}
	return banks, nil
}

// UpdateBank replaces an existing catalog entry.
func (s *Service) UpdateBank(ctx context.Context, bankID string, bank *domain.Bank) (*domain.Bank, error) {
	if _, err := s.GetBank(ctx, bankID); err != nil {
		return nil, err
	}
	bank.ID = bankID
	return s.SaveBank(ctx, bank)
}

// DeleteBank removes a bank from the catalog.
func (s *Service) DeleteBank(ctx context.Context, bankID string) error {
	err := s.repo.DeleteBank(ctx, bankID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NotFound("Bank not found")
	}
	return err
}

// OpenAccountRequest carries a new account, optionally with the bonus being
// chased.
type OpenAccountRequest struct {
	BankID          string     `json:"bankId"`
	AccountType     string     `json:"accountType"`
	MinimumBalance  *float64   `json:"minimumBalance,omitempty"`
	MonthsFeeWaived *int       `json:"monthsFeeWaived,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	OpenedAt        *time.Time `json:"openedAt,omitempty"`

	Bonus *BonusInput `json:"bonus,omitempty"`
}

// BonusInput describes a signup bonus and its requirements.
type BonusInput struct {
	Amount       float64            `json:"amount"`
	Description  string             `json:"description,omitempty"`
	Requirements []RequirementInput `json:"requirements,omitempty"`
}

// RequirementInput describes one bonus requirement.
type RequirementInput struct {
	Type     domain.RequirementType `json:"type"`
	Amount   float64                `json:"amount"`
	Count    int                    `json:"count,omitempty"`
	Deadline time.Time              `json:"deadline"`
}

// OpenAccount creates an account for the user at a bank, with its bonus and
// requirement rows when supplied.
func (s *Service) OpenAccount(ctx context.Context, userID string, req OpenAccountRequest) (*domain.BankAccount, error) {
	if req.AccountType == "" {
		return nil, domain.BadRequest("Account type is required")
	}

	// Bank must exist before an account is opened against it.
	if _, err := s.GetBank(ctx, req.BankID); err != nil {
		return nil, err
	}

	openedAt := time.Now().UTC()
	if req.OpenedAt != nil {
		openedAt = req.OpenedAt.UTC()
	}

	account := &domain.BankAccount{
		ID:              uuid.New().String(),
		UserID:          userID,
		BankID:          req.BankID,
		AccountType:     req.AccountType,
		MinimumBalance:  req.MinimumBalance,
		MonthsFeeWaived: req.MonthsFeeWaived,
		Notes:           req.Notes,
		OpenedAt:        openedAt,
	}

	if req.Bonus != nil {
		bonus := &domain.Bonus{
			ID:          uuid.New().String(),
			AccountID:   account.ID,
			Amount:      req.Bonus.Amount,
			Description: req.Bonus.Description,
		}
		for _, ri := range req.Bonus.Requirements {
			bonus.Requirements = append(bonus.Requirements, domain.BonusRequirement{
				ID:       uuid.New().String(),
				BonusID:  bonus.ID,
				Type:     ri.Type,
				Amount:   ri.Amount,
				Count:    ri.Count,
				Deadline: ri.Deadline,
			})
		}
		account.Bonus = bonus
	}

	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return account, nil
}

// GetAccount retrieves one of the user's accounts.
func (s *Service) GetAccount(ctx context.Context, userID, accountID string) (*domain.BankAccount, error) {
	account, err := s.repo.GetAccount(ctx, userID, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NotFound("Account not found")
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

// ListAccounts returns the user's accounts, most recently opened first.
func (s *Service) ListAccounts(ctx context.Context, userID string) ([]*domain.BankAccount, error) {
	accounts, err := s.repo.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []*domain.BankAccount{}
	}
	return accounts, nil
}

// DepositRequest carries one direct deposit event.
type DepositRequest struct {
	Amount float64   `json:"amount"`
	Source string    `json:"source,omitempty"`
	Date   time.Time `json:"date"`
}

// AddDirectDeposit appends a deposit event and re-derives direct deposit
// requirement completion for the account's bonus.
func (s *Service) AddDirectDeposit(ctx context.Context, userID, accountID string, req DepositRequest) (*domain.DirectDeposit, error) {
	if req.Amount <= 0 {
		return nil, domain.BadRequest("Deposit amount must be positive")
	}

	account, err := s.GetAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	date := req.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	dep := &domain.DirectDeposit{
		ID:        uuid.New().String(),
		AccountID: account.ID,
		Amount:    req.Amount,
		Source:    req.Source,
		Date:      date,
		Verified:  false,
	}

	if err := s.repo.AddDirectDeposit(ctx, dep); err != nil {
		return nil, fmt.Errorf("failed to record deposit: %w", err)
	}

	s.publishAccountEvent(ctx, userID, domain.TopicDepositRecorded, domain.AccountEvent{
		UserID:    userID,
		AccountID: account.ID,
		Amount:    req.Amount,
	})

	if err := s.evaluateRequirements(ctx, userID, account, domain.RequirementDirectDeposit, date); err != nil {
		return nil, err
	}

	return dep, nil
}

// DebitRequest carries one debit transaction event.
type DebitRequest struct {
	Amount      float64   `json:"amount"`
	Description string    `json:"description,omitempty"`
	Date        time.Time `json:"date"`
}

// AddDebitTransaction appends a debit event and re-derives debit
// requirement completion for the account's bonus.
func (s *Service) AddDebitTransaction(ctx context.Context, userID, accountID string, req DebitRequest) (*domain.DebitTransaction, error) {
	if req.Amount <= 0 {
		return nil, domain.BadRequest("Transaction amount must be positive")
	}

	account, err := s.GetAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	date := req.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	txn := &domain.DebitTransaction{
		ID:          uuid.New().String(),
		AccountID:   account.ID,
		Amount:      req.Amount,
		Description: req.Description,
		Date:        date,
	}

	if err := s.repo.AddDebitTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	s.publishAccountEvent(ctx, userID, domain.TopicDebitRecorded, domain.AccountEvent{
		UserID:    userID,
		AccountID: account.ID,
		Amount:    req.Amount,
	})

	if err := s.evaluateRequirements(ctx, userID, account, domain.RequirementDebitTransactions, date); err != nil {
		return nil, err
	}

	return txn, nil
}

// GetBonusProgress derives per-requirement progress for an account's bonus.
func (s *Service) GetBonusProgress(ctx context.Context, userID, accountID string) (*domain.BonusProgress, error) {
	account, err := s.GetAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	if account.Bonus == nil {
		return nil, domain.BadRequest("Account has no bonus to track")
	}

	progress := &domain.BonusProgress{
		BonusID:    account.Bonus.ID,
		IsComplete: true,
	}

	for i := range account.Bonus.Requirements {
		req := &account.Bonus.Requirements[i]

		completed, err := s.countQualifyingEvents(ctx, account.ID, req)
		if err != nil {
			return nil, err
		}

		rp := domain.RequirementProgress{
			Type:       req.Type,
			Required:   req.RequiredCount(),
			Completed:  completed,
			Amount:     req.Amount,
			Deadline:   req.Deadline,
			IsComplete: req.Completed || completed >= req.RequiredCount(),
		}
		if !rp.IsComplete {
			progress.IsComplete = false
		}
		progress.Requirements = append(progress.Requirements, rp)
	}

	return progress, nil
}

// evaluateRequirements marks requirements complete once enough qualifying
// events have been recorded. A completed requirement stays completed even if
// later events would no longer qualify.
func (s *Service) evaluateRequirements(ctx context.Context, userID string, account *domain.BankAccount, kind domain.RequirementType, at time.Time) error {
	if account.Bonus == nil {
		return nil
	}

	for i := range account.Bonus.Requirements {
		req := &account.Bonus.Requirements[i]
		if req.Type != kind || req.Completed {
			continue
		}

		count, err := s.countQualifyingEvents(ctx, account.ID, req)
		if err != nil {
			return err
		}
		if count < req.RequiredCount() {
			continue
		}

		if err := s.repo.CompleteRequirement(ctx, req.ID, at); err != nil {
			return fmt.Errorf("failed to complete requirement: %w", err)
		}
		req.Completed = true
		completedAt := at
		req.CompletedAt = &completedAt

		s.publishAccountEvent(ctx, userID, domain.TopicRequirementCompleted, domain.AccountEvent{
			UserID:        userID,
			AccountID:     account.ID,
			RequirementID: req.ID,
			Requirement:   req.Type,
		})
	}

	return nil
}

func (s *Service) countQualifyingEvents(ctx context.Context, accountID string, req *domain.BonusRequirement) (int, error) {
	switch req.Type {
	case domain.RequirementDirectDeposit:
		return s.repo.CountQualifyingDeposits(ctx, accountID, req.Amount)
	case domain.RequirementDebitTransactions:
		return s.repo.CountDebitTransactions(ctx, accountID)
	default:
		// Balance and bill-pay requirements have no event log to derive
		// from; they stay manual.
		return 0, nil
	}
}

func (s *Service) publishAccountEvent(ctx context.Context, userID, topic string, event domain.AccountEvent) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	if err := s.bus.Publish(ctx, userID, topic, payload); err != nil {
		slog.Warn("failed to publish account event", "topic", topic, "account_id", event.AccountID, "error", err)
	}
}
