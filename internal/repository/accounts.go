package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/churnistic/churnistic/internal/domain"
)

// SaveBank stores or updates a bank.
func (r *SQLRepository) SaveBank(ctx context.Context, bank *domain.Bank) error {
	if bank.ID == "" {
		return fmt.Errorf("%w: bank id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO banks (id, name, website, logo, bonus_cooldown, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			website = excluded.website,
			logo = excluded.logo,
			bonus_cooldown = excluded.bonus_cooldown,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		bank.ID, bank.Name, bank.Website, bank.Logo,
		nullInt(bank.BonusCooldown), now, now,
	)
	return err
}

// GetBank retrieves a bank.
func (r *SQLRepository) GetBank(ctx context.Context, bankID string) (*domain.Bank, error) {
	query := `
		SELECT id, name, website, logo, bonus_cooldown, created_at, updated_at
		FROM banks
		WHERE id = ?
	`

	var bank domain.Bank
	var website, logo sql.NullString
	var cooldown sql.NullInt64

	err := r.db.QueryRowContext(ctx, r.rebind(query), bankID).Scan(
		&bank.ID, &bank.Name, &website, &logo, &cooldown,
		&bank.CreatedAt, &bank.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	bank.Website = website.String
	bank.Logo = logo.String
	bank.BonusCooldown = intPtr(cooldown)

	return &bank, nil
}

// ListBanks retrieves all banks ordered by name.
func (r *SQLRepository) ListBanks(ctx context.Context) ([]*domain.Bank, error) {
	query := `
		SELECT id, name, website, logo, bonus_cooldown, created_at, updated_at
		FROM banks
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var banks []*domain.Bank
	for rows.Next() {
		var bank domain.Bank
		var website, logo sql.NullString
		var cooldown sql.NullInt64

		if err := rows.Scan(
			&bank.ID, &bank.Name, &website, &logo, &cooldown,
			&bank.CreatedAt, &bank.UpdatedAt,
		); err != nil {
			return nil, err
		}

		bank.Website = website.String
		bank.Logo = logo.String
		bank.BonusCooldown = intPtr(cooldown)
		banks = append(banks, &bank)
	}

	return banks, rows.Err()
}

// DeleteBank removes a bank from the catalog.
func (r *SQLRepository) DeleteBank(ctx context.Context, bankID string) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM banks WHERE id = ?`), bankID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// CreateAccount inserts a bank account together with its bonus and
// requirements, when present.
func (r *SQLRepository) CreateAccount(ctx context.Context, account *domain.BankAccount) error {
	if account.ID == "" || account.UserID == "" || account.BankID == "" {
		return fmt.Errorf("%w: account id, user id and bank id are required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO bank_accounts (id, user_id, bank_id, account_type, minimum_balance, months_fee_waived, notes, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		account.ID, account.UserID, account.BankID, account.AccountType,
		nullFloat(account.MinimumBalance), nullInt(account.MonthsFeeWaived),
		account.Notes, account.OpenedAt,
	)
	if err != nil {
		return err
	}

	if account.Bonus != nil {
		bonus := account.Bonus
		_, err = tx.ExecContext(ctx, r.rebind(`
			INSERT INTO bonuses (id, account_id, amount, description)
			VALUES (?, ?, ?, ?)`),
			bonus.ID, account.ID, bonus.Amount, bonus.Description,
		)
		if err != nil {
			return err
		}

		for _, req := range bonus.Requirements {
			_, err = tx.ExecContext(ctx, r.rebind(`
				INSERT INTO bonus_requirements (id, bonus_id, type, amount, count, deadline, completed, completed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
				req.ID, bonus.ID, string(req.Type), req.Amount, req.Count,
				req.Deadline, boolInt(req.Completed), nullTime(req.CompletedAt),
			)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// GetAccount retrieves an account owned by the given user, with its bonus
// and requirements loaded. Accounts belonging to other users are reported
// as not found.
func (r *SQLRepository) GetAccount(ctx context.Context, userID, accountID string) (*domain.BankAccount, error) {
	query := `
		SELECT id, user_id, bank_id, account_type, minimum_balance, months_fee_waived, notes, opened_at
		FROM bank_accounts
		WHERE id = ? AND user_id = ?
	`

	account, err := scanAccount(r.db.QueryRowContext(ctx, r.rebind(query), accountID, userID))
	if err != nil {
		return nil, err
	}

	if err := r.loadBonus(ctx, account); err != nil {
		return nil, err
	}

	return account, nil
}

// ListAccounts retrieves all of a user's accounts, most recently opened
// first, with bonuses loaded.
func (r *SQLRepository) ListAccounts(ctx context.Context, userID string) ([]*domain.BankAccount, error) {
	query := `
		SELECT id, user_id, bank_id, account_type, minimum_balance, months_fee_waived, notes, opened_at
		FROM bank_accounts
		WHERE user_id = ?
		ORDER BY opened_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.BankAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, account := range accounts {
		if err := r.loadBonus(ctx, account); err != nil {
			return nil, err
		}
	}

	return accounts, nil
}

func (r *SQLRepository) loadBonus(ctx context.Context, account *domain.BankAccount) error {
	var bonus domain.Bonus
	var desc sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT id, account_id, amount, description FROM bonuses WHERE account_id = ?`),
		account.ID).Scan(&bonus.ID, &bonus.AccountID, &bonus.Amount, &desc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	bonus.Description = desc.String

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT id, bonus_id, type, amount, count, deadline, completed, completed_at
		FROM bonus_requirements
		WHERE bonus_id = ?
		ORDER BY deadline, id`), bonus.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var req domain.BonusRequirement
		var reqType string
		var completed int
		var completedAt sql.NullTime

		if err := rows.Scan(
			&req.ID, &req.BonusID, &reqType, &req.Amount, &req.Count,
			&req.Deadline, &completed, &completedAt,
		); err != nil {
			return err
		}

		req.Type = domain.RequirementType(reqType)
		req.Completed = completed == 1
		req.CompletedAt = timePtr(completedAt)
		bonus.Requirements = append(bonus.Requirements, req)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	account.Bonus = &bonus
	return nil
}

// AddDirectDeposit records an immutable deposit event.
func (r *SQLRepository) AddDirectDeposit(ctx context.Context, dep *domain.DirectDeposit) error {
	if dep.ID == "" || dep.AccountID == "" {
		return fmt.Errorf("%w: deposit id and account id are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO direct_deposits (id, account_id, amount, source, date, verified)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		dep.ID, dep.AccountID, dep.Amount, dep.Source, dep.Date, boolInt(dep.Verified),
	)
	return err
}

// AddDebitTransaction records an immutable debit-card event.
func (r *SQLRepository) AddDebitTransaction(ctx context.Context, txn *domain.DebitTransaction) error {
	if txn.ID == "" || txn.AccountID == "" {
		return fmt.Errorf("%w: transaction id and account id are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO debit_transactions (id, account_id, amount, description, date)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		txn.ID, txn.AccountID, txn.Amount, txn.Description, txn.Date,
	)
	return err
}

// CountQualifyingDeposits counts deposits on an account at or above the
// given per-event minimum.
func (r *SQLRepository) CountQualifyingDeposits(ctx context.Context, accountID string, minAmount float64) (int, error) {
	query := `SELECT COUNT(*) FROM direct_deposits WHERE account_id = ? AND amount >= ?`

	var count int
	err := r.db.QueryRowContext(ctx, r.rebind(query), accountID, minAmount).Scan(&count)
	return count, err
}

// CountDebitTransactions counts all debit events on an account.
func (r *SQLRepository) CountDebitTransactions(ctx context.Context, accountID string) (int, error) {
	query := `SELECT COUNT(*) FROM debit_transactions WHERE account_id = ?`

	var count int
	err := r.db.QueryRowContext(ctx, r.rebind(query), accountID).Scan(&count)
	return count, err
}

// CompleteRequirement marks a bonus requirement completed. Guarded so an
// already-completed requirement keeps its original completion time.
func (r *SQLRepository) CompleteRequirement(ctx context.Context, requirementID string, at time.Time) error {
	query := `
		UPDATE bonus_requirements
		SET completed = 1, completed_at = ?
		WHERE id = ? AND completed = 0
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), at.UTC(), requirementID)
	return err
}

func scanAccount(row rowScanner) (*domain.BankAccount, error) {
	var account domain.BankAccount
	var minBalance sql.NullFloat64
	var feeWaived sql.NullInt64
	var notes sql.NullString

	err := row.Scan(
		&account.ID, &account.UserID, &account.BankID, &account.AccountType,
		&minBalance, &feeWaived, &notes, &account.OpenedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	account.MinimumBalance = floatPtr(minBalance)
	account.MonthsFeeWaived = intPtr(feeWaived)
	account.Notes = notes.String

	return &account, nil
}
