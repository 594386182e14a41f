// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/churnistic/churnistic/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveCard stores a card and replaces its rule rows.
func (r *SQLRepository) SaveCard(ctx context.Context, card *domain.Card) error {
	if card.ID == "" {
		return fmt.Errorf("%w: card id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO cards (
			id, issuer, name, network, reward_type, signup_bonus, min_spend,
			min_spend_period, annual_fee, credit_score_min, business_card,
			is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			issuer = excluded.issuer,
			name = excluded.name,
			network = excluded.network,
			reward_type = excluded.reward_type,
			signup_bonus = excluded.signup_bonus,
			min_spend = excluded.min_spend,
			min_spend_period = excluded.min_spend_period,
			annual_fee = excluded.annual_fee,
			credit_score_min = excluded.credit_score_min,
			business_card = excluded.business_card,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		card.ID, card.Issuer, card.Name, card.Network, card.RewardType,
		card.SignupBonus, card.MinSpend, card.MinSpendPeriod, card.AnnualFee,
		nullInt(card.CreditScoreMin), boolInt(card.BusinessCard),
		boolInt(card.IsActive), now, now,
	)
	if err != nil {
		return err
	}

	if err := r.replaceCardRules(ctx, card); err != nil {
		return err
	}

	return nil
}

func (r *SQLRepository) replaceCardRules(ctx context.Context, card *domain.Card) error {
	for _, table := range []string{"issuer_rules", "velocity_rules", "churning_rules"} {
		if _, err := r.db.ExecContext(ctx, r.rebind(
			fmt.Sprintf("DELETE FROM %s WHERE card_id = ?", table)), card.ID); err != nil {
			return err
		}
	}

	for _, ir := range card.IssuerRules {
		_, err := r.db.ExecContext(ctx, r.rebind(`
			INSERT INTO issuer_rules (id, card_id, rule_type, description, cooldown_period, max_cards, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			ir.ID, card.ID, ir.RuleType, ir.Description, ir.CooldownPeriod,
			nullInt(ir.MaxCards), boolInt(ir.IsActive),
		)
		if err != nil {
			return err
		}
	}

	for _, vr := range card.VelocityRules {
		_, err := r.db.ExecContext(ctx, r.rebind(`
			INSERT INTO velocity_rules (id, card_id, max_applications, period_days, is_active)
			VALUES (?, ?, ?, ?, ?)`),
			vr.ID, card.ID, vr.MaxApplications, vr.PeriodDays, boolInt(vr.IsActive),
		)
		if err != nil {
			return err
		}
	}

	for _, cr := range card.ChurningRules {
		_, err := r.db.ExecContext(ctx, r.rebind(`
			INSERT INTO churning_rules (id, card_id, bonus_cooldown, is_active)
			VALUES (?, ?, ?, ?)`),
			cr.ID, card.ID, cr.BonusCooldown, boolInt(cr.IsActive),
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// GetCard retrieves a card with its rule rows.
func (r *SQLRepository) GetCard(ctx context.Context, cardID string) (*domain.Card, error) {
	query := `
		SELECT id, issuer, name, network, reward_type, signup_bonus, min_spend,
		       min_spend_period, annual_fee, credit_score_min, business_card,
		       is_active, created_at, updated_at
		FROM cards
		WHERE id = ?
	`

	card, err := r.scanCard(r.db.QueryRowContext(ctx, r.rebind(query), cardID))
	if err != nil {
		return nil, err
	}

	if err := r.loadCardRules(ctx, card); err != nil {
		return nil, err
	}

	return card, nil
}

// ListCards retrieves all cards without their rule rows.
func (r *SQLRepository) ListCards(ctx context.Context) ([]*domain.Card, error) {
	query := `
		SELECT id, issuer, name, network, reward_type, signup_bonus, min_spend,
		       min_spend_period, annual_fee, credit_score_min, business_card,
		       is_active, created_at, updated_at
		FROM cards
		ORDER BY issuer, name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []*domain.Card
	for rows.Next() {
		card, err := r.scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}

	return cards, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanCard(row rowScanner) (*domain.Card, error) {
	var card domain.Card
	var creditScoreMin sql.NullInt64
	var businessCard, isActive int

	err := row.Scan(
		&card.ID, &card.Issuer, &card.Name, &card.Network, &card.RewardType,
		&card.SignupBonus, &card.MinSpend, &card.MinSpendPeriod, &card.AnnualFee,
		&creditScoreMin, &businessCard, &isActive,
		&card.CreatedAt, &card.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	card.CreditScoreMin = intPtr(creditScoreMin)
	card.BusinessCard = businessCard == 1
	card.IsActive = isActive == 1

	return &card, nil
}

func (r *SQLRepository) loadCardRules(ctx context.Context, card *domain.Card) error {
	irows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT id, card_id, rule_type, description, cooldown_period, max_cards, is_active
		FROM issuer_rules WHERE card_id = ?`), card.ID)
	if err != nil {
		return err
	}
	defer irows.Close()

	for irows.Next() {
		var ir domain.IssuerRule
		var desc sql.NullString
		var maxCards sql.NullInt64
		var active int
		if err := irows.Scan(&ir.ID, &ir.CardID, &ir.RuleType, &desc, &ir.CooldownPeriod, &maxCards, &active); err != nil {
			return err
		}
		ir.Description = desc.String
		ir.MaxCards = intPtr(maxCards)
		ir.IsActive = active == 1
		card.IssuerRules = append(card.IssuerRules, ir)
	}
	if err := irows.Err(); err != nil {
		return err
	}

	vrows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT id, card_id, max_applications, period_days, is_active
		FROM velocity_rules WHERE card_id = ?`), card.ID)
	if err != nil {
		return err
	}
	defer vrows.Close()

	for vrows.Next() {
		var vr domain.VelocityRule
		var active int
		if err := vrows.Scan(&vr.ID, &vr.CardID, &vr.MaxApplications, &vr.PeriodDays, &active); err != nil {
			return err
		}
		vr.IsActive = active == 1
		card.VelocityRules = append(card.VelocityRules, vr)
	}
	if err := vrows.Err(); err != nil {
		return err
	}

	crows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT id, card_id, bonus_cooldown, is_active
		FROM churning_rules WHERE card_id = ?`), card.ID)
	if err != nil {
		return err
	}
	defer crows.Close()

	for crows.Next() {
		var cr domain.ChurningRule
		var active int
		if err := crows.Scan(&cr.ID, &cr.CardID, &cr.BonusCooldown, &active); err != nil {
			return err
		}
		cr.IsActive = active == 1
		card.ChurningRules = append(card.ChurningRules, cr)
	}

	return crows.Err()
}

// SaveUser stores or updates a user profile.
func (r *SQLRepository) SaveUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, business_verified, credit_score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			business_verified = excluded.business_verified,
			credit_score = excluded.credit_score,
			updated_at = excluded.updated_at
	`

	var score sql.NullInt64
	if user.CreditScore != nil {
		score = sql.NullInt64{Int64: int64(*user.CreditScore), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		user.ID, user.Email, boolInt(user.BusinessVerified), score, user.CreatedAt, user.UpdatedAt,
	)
	return err
}

// GetUser retrieves a user profile.
func (r *SQLRepository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT id, email, business_verified, credit_score, created_at, updated_at FROM users WHERE id = ?`

	var user domain.User
	var email sql.NullString
	var verified int
	var score sql.NullInt64

	err := r.db.QueryRowContext(ctx, r.rebind(query), userID).Scan(
		&user.ID, &email, &verified, &score, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	user.Email = email.String
	user.BusinessVerified = verified == 1
	if score.Valid {
		s := int(score.Int64)
		user.CreditScore = &s
	}

	return &user, nil
}

// SaveRuleConfig stores a custom rule configuration.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (id, name, description, expression, message, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			message = excluded.message,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression, rule.Message,
		boolInt(rule.Enabled), now, now,
	)
	return err
}

// GetRuleConfig retrieves a custom rule configuration.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, ruleID string) (*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, expression, message, enabled, created_at, updated_at
		FROM rule_configs
		WHERE id = ?
	`

	var cfg domain.RuleConfig
	var desc sql.NullString
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan(
		&cfg.ID, &cfg.Name, &desc, &cfg.Expression, &cfg.Message,
		&enabled, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Description = desc.String
	cfg.Enabled = enabled == 1

	return &cfg, nil
}

// ListRuleConfigs retrieves all enabled custom rule configurations.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, expression, message, enabled, created_at, updated_at
		FROM rule_configs
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var desc sql.NullString
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.Name, &desc, &cfg.Expression, &cfg.Message,
			&enabled, &cfg.CreatedAt, &cfg.UpdatedAt,
		); err != nil {
			return nil, err
		}

		cfg.Description = desc.String
		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// DeleteRuleConfig soft-deletes a custom rule by setting enabled = 0.
func (r *SQLRepository) DeleteRuleConfig(ctx context.Context, ruleID string) error {
	query := `UPDATE rule_configs SET enabled = 0, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), ruleID)
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

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
