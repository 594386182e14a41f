package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/churnistic/churnistic/internal/domain"
)

// Engine evaluates operator-defined CEL rules against an applicant.
// Expressions must return bool; true means the rule is violated.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a new custom-rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment exposing the applicant and card variables
	env, err := cel.NewEnv(
		cel.Variable("credit_score", cel.IntType),
		cel.Variable("has_credit_score", cel.BoolType),
		cel.Variable("recent_applications", cel.IntType),
		cel.Variable("issuer_card_count", cel.IntType),
		// -1 when the user has never earned this card's bonus
		cel.Variable("months_since_bonus", cel.IntType),
		// -1 when the user has never applied to this issuer
		cel.Variable("days_since_issuer_application", cel.IntType),
		cel.Variable("business_verified", cel.BoolType),
		cel.Variable("card_issuer", cel.StringType),
		cel.Variable("card_annual_fee", cel.DoubleType),
		cel.Variable("card_business", cel.BoolType),
		cel.Variable("min_spend", cel.DoubleType),
		cel.Variable("signup_bonus", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones. This enables
// hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// EvaluateAll evaluates all loaded rules in parallel and returns the
// violations of the rules that fired.
func (e *Engine) EvaluateAll(ctx context.Context, card *domain.Card, a *Applicant) []domain.RuleViolation {
	e.mu.RLock()
	loaded := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, r := range e.compiledRules {
		loaded = append(loaded, r)
	}
	e.mu.RUnlock()

	if len(loaded) == 0 {
		return nil
	}

	activation := buildActivation(card, a)

	results := make([]*domain.RuleViolation, len(loaded))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, r := range loaded {
		wg.Add(1)
		go func(idx int, cr *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = evaluateRule(cr, activation)
		}(i, r)
	}

	wg.Wait()

	var violations []domain.RuleViolation
	for _, v := range results {
		if v != nil {
			violations = append(violations, *v)
		}
	}
	return violations
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func buildActivation(card *domain.Card, a *Applicant) map[string]any {
	creditScore := int64(0)
	hasScore := a.CreditScore != nil
	if hasScore {
		creditScore = int64(*a.CreditScore)
	}

	monthsSinceBonus := int64(-1)
	if a.LastBonusEarned != nil {
		monthsSinceBonus = int64(a.Now.Sub(*a.LastBonusEarned).Hours() / (30 * 24))
	}

	daysSinceIssuerApp := int64(-1)
	if a.LastIssuerApplication != nil {
		daysSinceIssuerApp = int64(a.Now.Sub(*a.LastIssuerApplication).Hours() / 24)
	}

	return map[string]any{
		"credit_score":                  creditScore,
		"has_credit_score":              hasScore,
		"recent_applications":           int64(a.RecentApplications),
		"issuer_card_count":             int64(a.IssuerCardCount),
		"months_since_bonus":            monthsSinceBonus,
		"days_since_issuer_application": daysSinceIssuerApp,
		"business_verified":             a.BusinessVerified,
		"card_issuer":                   card.Issuer,
		"card_annual_fee":               card.AnnualFee,
		"card_business":                 card.BusinessCard,
		"min_spend":                     card.MinSpend,
		"signup_bonus":                  card.SignupBonus,
	}
}

// evaluateRule runs a single rule and returns its violation, or nil.
// Evaluation errors are treated as violations so a broken rule fails
// closed rather than silently passing applicants.
func evaluateRule(cr *CompiledRule, activation map[string]any) *domain.RuleViolation {
	out, _, err := cr.Program.Eval(activation)
	if err != nil {
		return &domain.RuleViolation{
			Rule:    cr.Config.Name,
			Message: fmt.Sprintf("rule evaluation error: %v", err),
		}
	}

	if violated(out) {
		msg := cr.Config.Message
		if msg == "" {
			msg = cr.Config.Name
		}
		return &domain.RuleViolation{
			Rule:    cr.Config.Name,
			Message: msg,
		}
	}
	return nil
}

func violated(val ref.Val) bool {
	if b, ok := val.(types.Bool); ok {
		return bool(b)
	}
	return false
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
