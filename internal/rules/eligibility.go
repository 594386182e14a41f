// Package rules provides churning rule evaluation: a fixed table of
// builtin checks plus a CEL engine for operator-defined rules.
package rules

import (
	"fmt"
	"time"

	"github.com/churnistic/churnistic/internal/domain"
)

// Kind identifies a builtin rule.
type Kind int

const (
	KindMaxCards Kind = iota
	KindApplicationCooldown
	KindVelocity
	KindBonusCooldown
	KindBusinessCard
	KindCreditScore

	kindCount
)

// String returns the rule name surfaced in violations.
func (k Kind) String() string {
	switch k {
	case KindMaxCards:
		return "Maximum Cards"
	case KindApplicationCooldown:
		return "Application Cooldown"
	case KindVelocity:
		return "Velocity Rule"
	case KindBonusCooldown:
		return "Bonus Cooldown"
	case KindBusinessCard:
		return "Business Card"
	case KindCreditScore:
		return "Credit Score"
	}
	return "Unknown"
}

// Defaults applied when a card carries no active rule row of the kind.
const (
	DefaultMaxCards           = 5
	DefaultCooldownDays       = 30
	DefaultMaxApplications    = 2
	DefaultVelocityWindowDays = 30
	DefaultBonusCooldown      = 48 // months
)

// Applicant is the point-in-time view of a user's history against one
// card. Services assemble it from the store; evaluation itself is pure.
type Applicant struct {
	Now time.Time

	CreditScore      *int
	BusinessVerified bool

	// IssuerCardCount is the user's pending/approved applications to the
	// card's issuer within the lookback window.
	IssuerCardCount int

	// LastIssuerApplication is when the user last applied to this issuer.
	LastIssuerApplication *time.Time

	// RecentApplications is the user's application count, any issuer,
	// within the velocity window.
	RecentApplications int

	// LastBonusEarned is when the user last earned this card's bonus.
	LastBonusEarned *time.Time
}

// check inspects one rule against card and applicant; nil means pass.
type check func(card *domain.Card, a *Applicant) *domain.RuleViolation

// rule pairs a kind with its two propagation paths: Collect runs during
// checkEligibility (all rules, no short-circuit) and Apply runs fail-fast
// during application submission. A nil Apply means the kind is skipped on
// the apply path.
type rule struct {
	Kind    Kind
	Collect check
	Apply   check
}

// ruleTable is the single source of truth for builtin rules, indexed by
// Kind. Both evaluation paths read from it.
var ruleTable = [kindCount]rule{
	KindMaxCards:            {KindMaxCards, checkMaxCards, checkMaxCards},
	KindApplicationCooldown: {KindApplicationCooldown, checkApplicationCooldown, nil},
	KindVelocity:            {KindVelocity, checkVelocity, applyVelocity},
	KindBonusCooldown:       {KindBonusCooldown, checkBonusCooldown, checkBonusCooldown},
	KindBusinessCard:        {KindBusinessCard, checkBusinessCard, checkBusinessCard},
	KindCreditScore:         {KindCreditScore, checkCreditScore, applyCreditScore},
}

// applyOrder is the fail-fast evaluation order for application submission.
var applyOrder = [...]Kind{
	KindVelocity,
	KindBonusCooldown,
	KindCreditScore,
	KindMaxCards,
	KindBusinessCard,
}

// Evaluate runs every builtin rule and returns all violations. An empty
// slice means the applicant is eligible.
func Evaluate(card *domain.Card, a *Applicant) []domain.RuleViolation {
	var violations []domain.RuleViolation
	for _, r := range ruleTable {
		if v := r.Collect(card, a); v != nil {
			violations = append(violations, *v)
		}
	}
	return violations
}

// ApplyViolation runs the apply-path rules in order and returns the first
// violation, or nil if the application may proceed.
func ApplyViolation(card *domain.Card, a *Applicant) *domain.RuleViolation {
	for _, k := range applyOrder {
		r := ruleTable[k]
		if r.Apply == nil {
			continue
		}
		if v := r.Apply(card, a); v != nil {
			return v
		}
	}
	return nil
}

func checkMaxCards(card *domain.Card, a *Applicant) *domain.RuleViolation {
	maxCards := DefaultMaxCards
	for _, ir := range card.IssuerRules {
		if ir.IsActive && ir.MaxCards != nil {
			maxCards = *ir.MaxCards
		}
	}

	if a.IssuerCardCount >= maxCards {
		return &domain.RuleViolation{
			Rule:    KindMaxCards.String(),
			Message: fmt.Sprintf("Maximum of %d cards allowed from this issuer", maxCards),
		}
	}
	return nil
}

func checkApplicationCooldown(card *domain.Card, a *Applicant) *domain.RuleViolation {
	cooldown := DefaultCooldownDays
	for _, ir := range card.IssuerRules {
		if ir.IsActive && ir.CooldownPeriod > 0 {
			cooldown = ir.CooldownPeriod
		}
	}

	if a.LastIssuerApplication == nil {
		return nil
	}
	if a.Now.Sub(*a.LastIssuerApplication) < time.Duration(cooldown)*24*time.Hour {
		return &domain.RuleViolation{
			Rule:    KindApplicationCooldown.String(),
			Message: fmt.Sprintf("Must wait %d days between applications", cooldown),
		}
	}
	return nil
}

func velocityLimits(card *domain.Card) (maxApps, windowDays int) {
	maxApps, windowDays = DefaultMaxApplications, DefaultVelocityWindowDays
	for _, vr := range card.VelocityRules {
		if vr.IsActive && vr.MaxApplications > 0 {
			maxApps = vr.MaxApplications
			if vr.PeriodDays > 0 {
				windowDays = vr.PeriodDays
			}
		}
	}
	return maxApps, windowDays
}

func checkVelocity(card *domain.Card, a *Applicant) *domain.RuleViolation {
	maxApps, windowDays := velocityLimits(card)
	if a.RecentApplications >= maxApps {
		return &domain.RuleViolation{
			Rule:    KindVelocity.String(),
			Message: fmt.Sprintf("Maximum of %d applications allowed in %d days", maxApps, windowDays),
		}
	}
	return nil
}

// applyVelocity is the fail-fast variant with the submission-path message.
func applyVelocity(card *domain.Card, a *Applicant) *domain.RuleViolation {
	maxApps, _ := velocityLimits(card)
	if a.RecentApplications >= maxApps {
		return &domain.RuleViolation{
			Rule:    KindVelocity.String(),
			Message: "Maximum applications reached for this period",
		}
	}
	return nil
}

func checkBonusCooldown(card *domain.Card, a *Applicant) *domain.RuleViolation {
	cooldown := DefaultBonusCooldown
	for _, cr := range card.ChurningRules {
		if cr.IsActive && cr.BonusCooldown > 0 {
			cooldown = cr.BonusCooldown
		}
	}

	if a.LastBonusEarned == nil {
		return nil
	}
	monthsSince := int(a.Now.Sub(*a.LastBonusEarned) / (30 * 24 * time.Hour))
	if monthsSince < cooldown {
		return &domain.RuleViolation{
			Rule:    KindBonusCooldown.String(),
			Message: fmt.Sprintf("Must wait %d months between signup bonuses", cooldown),
		}
	}
	return nil
}

func checkBusinessCard(card *domain.Card, a *Applicant) *domain.RuleViolation {
	if card.BusinessCard && !a.BusinessVerified {
		return &domain.RuleViolation{
			Rule:    KindBusinessCard.String(),
			Message: "Business verification required",
		}
	}
	return nil
}

func checkCreditScore(card *domain.Card, a *Applicant) *domain.RuleViolation {
	if card.CreditScoreMin == nil || a.CreditScore == nil {
		return nil
	}
	if *a.CreditScore < *card.CreditScoreMin {
		return &domain.RuleViolation{
			Rule:    KindCreditScore.String(),
			Message: fmt.Sprintf("Minimum credit score required: %d", *card.CreditScoreMin),
		}
	}
	return nil
}

// applyCreditScore is stricter than the collecting variant: a card with a
// minimum rejects applicants who did not supply a score at all.
func applyCreditScore(card *domain.Card, a *Applicant) *domain.RuleViolation {
	if card.CreditScoreMin == nil {
		return nil
	}
	if a.CreditScore == nil || *a.CreditScore < *card.CreditScoreMin {
		return &domain.RuleViolation{
			Rule:    KindCreditScore.String(),
			Message: "Credit score too low",
		}
	}
	return nil
}
