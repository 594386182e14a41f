// Package cards implements the card catalog, eligibility checking and the
// application lifecycle.
package cards

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
	"github.com/churnistic/churnistic/internal/rules"
	"github.com/churnistic/churnistic/internal/velocity"
)

// Service coordinates eligibility evaluation and application state.
type Service struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *rules.Engine
	velocity *velocity.Service

	cacheTTL time.Duration
}

// NewService creates a new card service.
func NewService(repo domain.Repository, cache domain.Cache, eventBus domain.EventBus, engine *rules.Engine, cfg domain.EligibilityConfig) *Service {
	ttl := time.Duration(cfg.CacheTTL) * time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &Service{
		repo:     repo,
		cache:    cache,
		bus:      eventBus,
		engine:   engine,
		velocity: velocity.NewService(repo),
		cacheTTL: ttl,
	}
}

// CheckRequest carries the optional applicant attributes for an eligibility
// check.
type CheckRequest struct {
	CardID      string `json:"cardId"`
	CreditScore *int   `json:"creditScore,omitempty"`
}

// CheckEligibility evaluates every rule for the user against one card and
// returns the full violation list. Results are cached per user/card pair;
// checks that supply a credit score bypass the cache.
func (s *Service) CheckEligibility(ctx context.Context, userID string, req CheckRequest) (*domain.EligibilityResult, error) {
	cacheable := req.CreditScore == nil

	if cacheable && s.cache != nil {
		snap, err := s.cache.GetEligibility(ctx, userID, req.CardID)
		if err != nil {
			slog.Warn("eligibility cache read failed", "user_id", userID, "card_id", req.CardID, "error", err)
		}
		if snap != nil {
			return &snap.Result, nil
		}
	}

	card, user, err := s.loadCardAndUser(ctx, userID, req.CardID)
	if err != nil {
		return nil, err
	}

	applicant, err := s.velocity.BuildApplicant(ctx, user, card, req.CreditScore)
	if err != nil {
		return nil, err
	}

	violations := rules.Evaluate(card, applicant)
	if s.engine != nil && s.engine.RulesCount() > 0 {
		violations = append(violations, s.engine.EvaluateAll(ctx, card, applicant)...)
	}

	result := &domain.EligibilityResult{
		Eligible:   len(violations) == 0,
		Violations: violations,
	}
	if result.Violations == nil {
		result.Violations = []domain.RuleViolation{}
	}

	if cacheable && s.cache != nil {
		snap := &domain.EligibilitySnapshot{Result: *result, CheckedAt: time.Now().UTC()}
		if err := s.cache.SetEligibility(ctx, userID, req.CardID, snap, s.cacheTTL); err != nil {
			slog.Warn("eligibility cache write failed", "user_id", userID, "card_id", req.CardID, "error", err)
		}
	}

	return result, nil
}

// ApplyRequest carries an application submission.
type ApplyRequest struct {
	CardID      string `json:"cardId"`
	CreditScore *int   `json:"creditScore,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// ApplyForCard submits an application. Rules are evaluated fail-fast: the
// first violation rejects the submission and nothing is persisted.
func (s *Service) ApplyForCard(ctx context.Context, userID string, req ApplyRequest) (*domain.CardApplication, error) {
	card, user, err := s.loadCardAndUser(ctx, userID, req.CardID)
	if err != nil {
		return nil, err
	}

	applicant, err := s.velocity.BuildApplicant(ctx, user, card, req.CreditScore)
	if err != nil {
		return nil, err
	}

	if v := rules.ApplyViolation(card, applicant); v != nil {
		return nil, domain.Forbidden(v.Message)
	}
	if s.engine != nil && s.engine.RulesCount() > 0 {
		if custom := s.engine.EvaluateAll(ctx, card, applicant); len(custom) > 0 {
			return nil, domain.Forbidden(custom[0].Message)
		}
	}

	app := &domain.CardApplication{
		ID:        uuid.New().String(),
		UserID:    userID,
		CardID:    card.ID,
		Status:    domain.StatusPending,
		AppliedAt: time.Now().UTC(),
		Notes:     req.Notes,
	}

	if err := s.repo.CreateApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	s.publishApplicationEvent(ctx, domain.TopicApplicationCreated, app)

	return app, nil
}

// GetApplication retrieves one of the user's applications.
func (s *Service) GetApplication(ctx context.Context, userID, appID string) (*domain.CardApplication, error) {
	app, err := s.repo.GetApplication(ctx, userID, appID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NotFound("Application not found")
	}
	if err != nil {
		return nil, err
	}
	return app, nil
}

// ListApplications returns a page of the user's applications, newest first.
func (s *Service) ListApplications(ctx context.Context, userID string, limit int, cursor string) (*domain.ApplicationPage, error) {
	page, err := s.repo.ListApplications(ctx, userID, limit, cursor)
	if err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []*domain.CardApplication{}
	}
	return page, nil
}

// StatusRequest carries a lifecycle transition.
type StatusRequest struct {
	Status domain.CardStatus `json:"status"`
	Notes  *string           `json:"notes,omitempty"`
}

// UpdateStatus transitions an application. Approval stamps the approval time
// and computes the spend deadline from the card's minimum spend period.
func (s *Service) UpdateStatus(ctx context.Context, userID, appID string, req StatusRequest) (*domain.CardApplication, error) {
	if !domain.ValidStatus(req.Status) {
		return nil, domain.BadRequest(fmt.Sprintf("Invalid status: %s", req.Status))
	}

	app, err := s.GetApplication(ctx, userID, appID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	update := domain.StatusUpdate{
		Status: req.Status,
		Notes:  req.Notes,
	}

	switch req.Status {
	case domain.StatusApproved:
		card, err := s.repo.GetCard(ctx, app.CardID)
		if err != nil {
			return nil, fmt.Errorf("failed to load card: %w", err)
		}
		update.ApprovedAt = &now
		if card.MinSpendPeriod > 0 {
			deadline := now.AddDate(0, 0, card.MinSpendPeriod)
			update.SpendDeadline = &deadline
		}
	case domain.StatusDenied, domain.StatusCancelled:
		update.ClosedAt = &now
	}

	updated, err := s.repo.UpdateApplicationStatus(ctx, userID, appID, update)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NotFound("Application not found")
	}
	if err != nil {
		return nil, err
	}

	s.publishApplicationEvent(ctx, domain.TopicApplicationUpdated, updated)

	return updated, nil
}

// SpendRequest carries one spend increment.
type SpendRequest struct {
	Amount float64   `json:"amount"`
	Date   time.Time `json:"date"`
}

// UpdateSpend adds spend toward the application's signup bonus. The bonus is
// earned exactly once, on the increment that crosses the card's minimum.
func (s *Service) UpdateSpend(ctx context.Context, userID, appID string, req SpendRequest) (*domain.CardApplication, error) {
	if req.Amount <= 0 {
		return nil, domain.BadRequest("Spend amount must be positive")
	}

	app, err := s.GetApplication(ctx, userID, appID)
	if err != nil {
		return nil, err
	}
	if app.Status != domain.StatusApproved {
		return nil, domain.BadRequest("Cannot track spend for non-approved applications")
	}

	date := req.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	if app.SpendDeadline != nil && date.After(*app.SpendDeadline) {
		return nil, domain.BadRequest("Spend date is after bonus deadline")
	}

	card, err := s.repo.GetCard(ctx, app.CardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load card: %w", err)
	}

	result, err := s.repo.AddSpend(ctx, userID, appID, req.Amount, card.MinSpend, date)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NotFound("Application not found")
	}
	if err != nil {
		return nil, err
	}

	s.publishSpendEvent(ctx, result, req.Amount)

	return result.Application, nil
}

// OfferRequest carries a retention offer to record.
type OfferRequest struct {
	PointsOffered   *float64   `json:"pointsOffered,omitempty"`
	StatementCredit *float64   `json:"statementCredit,omitempty"`
	SpendRequired   *float64   `json:"spendRequired,omitempty"`
	OfferDate       *time.Time `json:"offerDate,omitempty"`
	Accepted        *bool      `json:"accepted,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

// AddRetentionOffer records an offer the issuer made on one of the user's
// open cards.
func (s *Service) AddRetentionOffer(ctx context.Context, userID, appID string, req OfferRequest) (*domain.RetentionOffer, error) {
	if req.PointsOffered == nil && req.StatementCredit == nil {
		return nil, domain.BadRequest("Must specify either points or statement credit")
	}
	if req.PointsOffered != nil && *req.PointsOffered <= 0 {
		return nil, domain.BadRequest("Points offered must be positive")
	}
	if req.StatementCredit != nil && *req.StatementCredit <= 0 {
		return nil, domain.BadRequest("Statement credit must be positive")
	}

	app, err := s.GetApplication(ctx, userID, appID)
	if err != nil {
		return nil, err
	}

	offerDate := time.Now().UTC()
	if req.OfferDate != nil {
		offerDate = req.OfferDate.UTC()
	}

	offer := &domain.RetentionOffer{
		ID:              uuid.New().String(),
		ApplicationID:   app.ID,
		CardID:          app.CardID,
		PointsOffered:   req.PointsOffered,
		StatementCredit: req.StatementCredit,
		SpendRequired:   req.SpendRequired,
		OfferDate:       offerDate,
		Accepted:        req.Accepted,
		Notes:           req.Notes,
	}

	if err := s.repo.SaveRetentionOffer(ctx, offer); err != nil {
		return nil, fmt.Errorf("failed to save retention offer: %w", err)
	}

	return offer, nil
}

// ListRetentionOffers returns the offers recorded on one of the user's
// applications, most recent first.
func (s *Service) ListRetentionOffers(ctx context.Context, userID, appID string) ([]*domain.RetentionOffer, error) {
	// Ownership check before touching offers.
	if _, err := s.GetApplication(ctx, userID, appID); err != nil {
		return nil, err
	}

	offers, err := s.repo.ListRetentionOffers(ctx, appID)
	if err != nil {
		return nil, err
	}
	if offers == nil {
		offers = []*domain.RetentionOffer{}
	}
	return offers, nil
}

// SaveCard stores a card in the shared catalog.
func (s *Service) SaveCard(ctx context.Context, card *domain.Card) (*domain.Card, error) {
	if card.ID == "" {
		card.ID = uuid.New().String()
	}
	if card.Issuer == "" || card.Name == "" {
		return nil, domain.BadRequest("Card issuer and name are required")
	}

	if err := s.repo.SaveCard(ctx, card); err != nil {
		return nil, fmt.Errorf("failed to save card: %w", err)
	}
	return s.GetCard(ctx, card.ID)
}

// GetCard retrieves a card from the catalog.
func (s *Service) GetCard(ctx context.Context, cardID string) (*domain.Card, error) {
	card, err := s.repo.GetCard(ctx, cardID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NotFound("Card not found")
	}
	if err != nil {
		return nil, err
	}
	return card, nil
}

// ListCards returns the card catalog.
func (s *Service) ListCards(ctx context.Context) ([]*domain.Card, error) {
	cards, err := s.repo.ListCards(ctx)
	if err != nil {
		return nil, err
	}
	if cards == nil {
		cards = []*domain.Card{}
	}
	return cards, nil
}

// SaveRule validates, persists and hot-loads a custom rule.
func (s *Service) SaveRule(ctx context.Context, cfg *domain.RuleConfig) (*domain.RuleConfig, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	if cfg.Name == "" || cfg.Expression == "" {
		return nil, domain.BadRequest("Rule name and expression are required")
	}
	if cfg.Message == "" {
		cfg.Message = cfg.Name + " rule violated"
	}
	cfg.Enabled = true

	if s.engine != nil {
		if err := s.engine.ValidateRule(cfg); err != nil {
			return nil, domain.BadRequest(fmt.Sprintf("Invalid rule expression: %v", err))
		}
	}

	if err := s.repo.SaveRuleConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}

	if s.engine != nil {
		if err := s.engine.LoadRule(cfg); err != nil {
			return nil, fmt.Errorf("failed to load rule: %w", err)
		}
	}

	return cfg, nil
}

// ListRules returns the enabled custom rules.
func (s *Service) ListRules(ctx context.Context) ([]*domain.RuleConfig, error) {
	configs, err := s.repo.ListRuleConfigs(ctx)
	if err != nil {
		return nil, err
	}
	if configs == nil {
		configs = []*domain.RuleConfig{}
	}
	return configs, nil
}

// DeleteRule disables a custom rule and reloads the engine without it.
func (s *Service) DeleteRule(ctx context.Context, ruleID string) error {
	err := s.repo.DeleteRuleConfig(ctx, ruleID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NotFound("Rule not found")
	}
	if err != nil {
		return err
	}

	return s.ReloadRules(ctx)
}

// ReloadRules replaces the engine's rule set with the stored one.
func (s *Service) ReloadRules(ctx context.Context) error {
	if s.engine == nil {
		return nil
	}

	configs, err := s.repo.ListRuleConfigs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}

	return s.engine.ReloadRules(configs)
}

func (s *Service) loadCardAndUser(ctx context.Context, userID, cardID string) (*domain.Card, *domain.User, error) {
	if cardID == "" {
		return nil, nil, domain.BadRequest("cardId is required")
	}

	card, err := s.GetCard(ctx, cardID)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		// Unknown users get an empty profile rather than a rejection; rules
		// that need profile data still apply their defaults.
		user = &domain.User{ID: userID}
	} else if err != nil {
		return nil, nil, err
	}

	return card, user, nil
}

func (s *Service) publishApplicationEvent(ctx context.Context, topic string, app *domain.CardApplication) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(domain.ApplicationEvent{
		UserID:        app.UserID,
		ApplicationID: app.ID,
		CardID:        app.CardID,
		Status:        app.Status,
	})
	if err != nil {
		return
	}

	if err := s.bus.Publish(ctx, app.UserID, topic, payload); err != nil {
		slog.Warn("failed to publish application event", "topic", topic, "application_id", app.ID, "error", err)
	}
}

func (s *Service) publishSpendEvent(ctx context.Context, result *domain.SpendResult, amount float64) {
	if s.bus == nil {
		return
	}

	app := result.Application
	event := domain.SpendEvent{
		UserID:        app.UserID,
		ApplicationID: app.ID,
		CardID:        app.CardID,
		Amount:        amount,
		SpendProgress: app.SpendProgress,
		BonusEarned:   result.BonusEarned,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	if err := s.bus.Publish(ctx, app.UserID, domain.TopicSpendRecorded, payload); err != nil {
		slog.Warn("failed to publish spend event", "application_id", app.ID, "error", err)
	}

	if result.BonusEarned {
		if err := s.bus.Publish(ctx, app.UserID, domain.TopicBonusEarned, payload); err != nil {
			slog.Warn("failed to publish bonus event", "application_id", app.ID, "error", err)
		}
	}
}
