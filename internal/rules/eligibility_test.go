package rules

import (
	"testing"
	"time"

	"github.com/churnistic/churnistic/internal/domain"
)

func testCard() *domain.Card {
	return &domain.Card{
		ID:             "chase-sapphire",
		Issuer:         "Chase",
		Name:           "Sapphire Preferred",
		SignupBonus:    60000,
		MinSpend:       4000,
		MinSpendPeriod: 90,
		IsActive:       true,
	}
}

func freshApplicant() *Applicant {
	return &Applicant{Now: time.Now()}
}

func daysAgo(d int) *time.Time {
	t := time.Now().Add(-time.Duration(d) * 24 * time.Hour)
	return &t
}

func TestEvaluateFreshApplicant(t *testing.T) {
	violations := Evaluate(testCard(), freshApplicant())
	if len(violations) != 0 {
		t.Errorf("expected no violations for fresh applicant, got %v", violations)
	}
}

func TestMaxCards(t *testing.T) {
	card := testCard()

	t.Run("DefaultLimit", func(t *testing.T) {
		a := freshApplicant()
		a.IssuerCardCount = DefaultMaxCards

		violations := Evaluate(card, a)
		if len(violations) != 1 {
			t.Fatalf("expected 1 violation, got %v", violations)
		}
		if violations[0].Rule != "Maximum Cards" {
			t.Errorf("expected Maximum Cards rule, got %s", violations[0].Rule)
		}
		if violations[0].Message != "Maximum of 5 cards allowed from this issuer" {
			t.Errorf("unexpected message: %q", violations[0].Message)
		}
	})

	t.Run("UnderLimit", func(t *testing.T) {
		a := freshApplicant()
		a.IssuerCardCount = DefaultMaxCards - 1

		if violations := Evaluate(card, a); len(violations) != 0 {
			t.Errorf("expected no violations under limit, got %v", violations)
		}
	})

	t.Run("CardOverride", func(t *testing.T) {
		maxCards := 2
		card := testCard()
		card.IssuerRules = []domain.IssuerRule{
			{ID: "ir-1", CardID: card.ID, RuleType: "ISSUER_LIMIT", MaxCards: &maxCards, IsActive: true},
		}

		a := freshApplicant()
		a.IssuerCardCount = 2

		violations := Evaluate(card, a)
		if len(violations) != 1 {
			t.Fatalf("expected 1 violation, got %v", violations)
		}
		if violations[0].Message != "Maximum of 2 cards allowed from this issuer" {
			t.Errorf("unexpected message: %q", violations[0].Message)
		}
	})

	t.Run("InactiveOverrideIgnored", func(t *testing.T) {
		maxCards := 1
		card := testCard()
		card.IssuerRules = []domain.IssuerRule{
			{ID: "ir-1", CardID: card.ID, MaxCards: &maxCards, IsActive: false},
		}

		a := freshApplicant()
		a.IssuerCardCount = 1

		if violations := Evaluate(card, a); len(violations) != 0 {
			t.Errorf("expected inactive rule to be ignored, got %v", violations)
		}
	})
}

func TestApplicationCooldown(t *testing.T) {
	card := testCard()

	t.Run("InsideWindow", func(t *testing.T) {
		a := freshApplicant()
		a.LastIssuerApplication = daysAgo(10)

		violations := Evaluate(card, a)
		if len(violations) != 1 {
			t.Fatalf("expected 1 violation, got %v", violations)
		}
		if violations[0].Message != "Must wait 30 days between applications" {
			t.Errorf("unexpected message: %q", violations[0].Message)
		}
	})

	t.Run("OutsideWindow", func(t *testing.T) {
		a := freshApplicant()
		a.LastIssuerApplication = daysAgo(31)

		if violations := Evaluate(card, a); len(violations) != 0 {
			t.Errorf("expected no violations outside cooldown, got %v", violations)
		}
	})

	t.Run("CardOverride", func(t *testing.T) {
		card := testCard()
		card.IssuerRules = []domain.IssuerRule{
			{ID: "ir-1", CardID: card.ID, CooldownPeriod: 90, IsActive: true},
		}

		a := freshApplicant()
		a.LastIssuerApplication = daysAgo(45)

		violations := Evaluate(card, a)
		if len(violations) != 1 {
			t.Fatalf("expected 1 violation, got %v", violations)
		}
		if violations[0].Message != "Must wait 90 days between applications" {
			t.Errorf("unexpected message: %q", violations[0].Message)
		}
	})
}

func TestVelocity(t *testing.T) {
	card := testCard()

	t.Run("AtLimit", func(t *testing.T) {
		a := freshApplicant()
		a.RecentApplications = DefaultMaxApplications

		violations := Evaluate(card, a)
		if len(violations) != 1 {
			t.Fatalf("expected 1 violation, got %v", violations)
		}
		if violations[0].Message != "Maximum of 2 applications allowed in 30 days" {
			t.Errorf("unexpected message: %q", violations[0].Message)
		}
	})

	t.Run("CardOverride", func(t *testing.T) {
		card := testCard()
		card.VelocityRules = []domain.VelocityRule{
			{ID: "vr-1", CardID: card.ID, MaxApplications: 5, PeriodDays: 90, IsActive: true},
		}

		a := freshApplicant()
		a.RecentApplications = 4

		if violations := Evaluate(card, a); len(violations) != 0 {
			t.Errorf("expected no violations under overridden limit, got %v", violations)
		}

		a.RecentApplications = 5
		violations := Evaluate(card, a)
		if len(violations) != 1 {
			t.Fatalf("expected 1 violation, got %v", violations)
		}
		if violations[0].Message != "Maximum of 5 applications allowed in 90 days" {
			t.Errorf("unexpected message: %q", violations[0].Message)
		}
	})
}

func TestBonusCooldown(t *testing.T) {
	card := testCard()

	t.Run("RecentBonus", func(t *testing.T) {
		a := freshApplicant()
		a.LastBonusEarned = daysAgo(365) // 12 months, inside 48

		violations := Evaluate(card, a)
		if len(violations) != 1 {
			t.Fatalf("expected 1 violation, got %v", violations)
		}
		if violations[0].Message != "Must wait 48 months between signup bonuses" {
			t.Errorf("unexpected message: %q", violations[0].Message)
		}
	})

	t.Run("OldBonus", func(t *testing.T) {
		a := freshApplicant()
		a.LastBonusEarned = daysAgo(49 * 30)

		if violations := Evaluate(card, a); len(violations) != 0 {
			t.Errorf("expected no violations for old bonus, got %v", violations)
		}
	})

	t.Run("CardOverride", func(t *testing.T) {
		card := testCard()
		card.ChurningRules = []domain.ChurningRule{
			{ID: "cr-1", CardID: card.ID, BonusCooldown: 24, IsActive: true},
		}

		a := freshApplicant()
		a.LastBonusEarned = daysAgo(25 * 30)

		if violations := Evaluate(card, a); len(violations) != 0 {
			t.Errorf("expected no violations past overridden cooldown, got %v", violations)
		}
	})
}

func TestBusinessCard(t *testing.T) {
	card := testCard()
	card.BusinessCard = true

	a := freshApplicant()
	violations := Evaluate(card, a)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %v", violations)
	}
	if violations[0].Message != "Business verification required" {
		t.Errorf("unexpected message: %q", violations[0].Message)
	}

	a.BusinessVerified = true
	if violations := Evaluate(card, a); len(violations) != 0 {
		t.Errorf("expected no violations for verified business, got %v", violations)
	}
}

func TestCreditScore(t *testing.T) {
	minScore := 720
	card := testCard()
	card.CreditScoreMin = &minScore

	t.Run("BelowMinimum", func(t *testing.T) {
		score := 680
		a := freshApplicant()
		a.CreditScore = &score

		violations := Evaluate(card, a)
		if len(violations) != 1 {
			t.Fatalf("expected 1 violation, got %v", violations)
		}
		if violations[0].Message != "Minimum credit score required: 720" {
			t.Errorf("unexpected message: %q", violations[0].Message)
		}
	})

	t.Run("MeetsMinimum", func(t *testing.T) {
		score := 720
		a := freshApplicant()
		a.CreditScore = &score

		if violations := Evaluate(card, a); len(violations) != 0 {
			t.Errorf("expected no violations at minimum, got %v", violations)
		}
	})

	t.Run("UnknownScorePassesCollect", func(t *testing.T) {
		// An eligibility check without a score does not flag the rule
		if violations := Evaluate(card, freshApplicant()); len(violations) != 0 {
			t.Errorf("expected unknown score to pass collection, got %v", violations)
		}
	})
}

func TestEvaluateCollectsAllViolations(t *testing.T) {
	minScore := 750
	card := testCard()
	card.BusinessCard = true
	card.CreditScoreMin = &minScore

	score := 600
	a := freshApplicant()
	a.CreditScore = &score
	a.IssuerCardCount = 5
	a.RecentApplications = 3
	a.LastIssuerApplication = daysAgo(5)
	a.LastBonusEarned = daysAgo(100)

	violations := Evaluate(card, a)
	if len(violations) != 6 {
		t.Fatalf("expected all 6 rules to fire, got %d: %v", len(violations), violations)
	}
}

func TestApplyViolationFailFast(t *testing.T) {
	t.Run("VelocityFirst", func(t *testing.T) {
		a := freshApplicant()
		a.RecentApplications = 2
		a.IssuerCardCount = 5

		v := ApplyViolation(testCard(), a)
		if v == nil {
			t.Fatal("expected a violation")
		}
		if v.Message != "Maximum applications reached for this period" {
			t.Errorf("expected velocity to fire first, got %q", v.Message)
		}
	})

	t.Run("CooldownSkippedOnApply", func(t *testing.T) {
		// A recent application to the issuer blocks eligibility display but
		// not submission itself
		a := freshApplicant()
		a.LastIssuerApplication = daysAgo(5)

		if v := ApplyViolation(testCard(), a); v != nil {
			t.Errorf("expected cooldown to be skipped on apply path, got %v", v)
		}
	})

	t.Run("MissingScoreRejected", func(t *testing.T) {
		minScore := 700
		card := testCard()
		card.CreditScoreMin = &minScore

		v := ApplyViolation(card, freshApplicant())
		if v == nil {
			t.Fatal("expected a violation for missing score")
		}
		if v.Message != "Credit score too low" {
			t.Errorf("unexpected message: %q", v.Message)
		}
	})

	t.Run("CleanApplicant", func(t *testing.T) {
		if v := ApplyViolation(testCard(), freshApplicant()); v != nil {
			t.Errorf("expected no violation, got %v", v)
		}
	})
}

func TestKindString(t *testing.T) {
	names := map[Kind]string{
		KindMaxCards:            "Maximum Cards",
		KindApplicationCooldown: "Application Cooldown",
		KindVelocity:            "Velocity Rule",
		KindBonusCooldown:       "Bonus Cooldown",
		KindBusinessCard:        "Business Card",
		KindCreditScore:         "Credit Score",
	}
	for kind, want := range names {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
