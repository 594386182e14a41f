package cards

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/churnistic/churnistic/internal/bus"
	"github.com/churnistic/churnistic/internal/cache"
	"github.com/churnistic/churnistic/internal/domain"
	"github.com/churnistic/churnistic/internal/repository"
	"github.com/churnistic/churnistic/internal/rules"
)

func newTestService(t *testing.T) (*Service, domain.Repository) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "churnistic-cards-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	engine, err := rules.NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	eventBus := bus.NewChannelBus(64)
	t.Cleanup(func() { eventBus.Close() })

	svc := NewService(repo, cache.NewLRUCache(100), eventBus, engine, domain.EligibilityConfig{CacheTTL: 60})
	return svc, repo
}

func seedTestCard(t *testing.T, svc *Service, card *domain.Card) *domain.Card {
	t.Helper()
	saved, err := svc.SaveCard(context.Background(), card)
	if err != nil {
		t.Fatalf("failed to seed card: %v", err)
	}
	return saved
}

func baseCard(id string) *domain.Card {
	return &domain.Card{
		ID:             id,
		Issuer:         "Chase",
		Name:           "Test " + id,
		SignupBonus:    60000,
		MinSpend:       4000,
		MinSpendPeriod: 90,
		IsActive:       true,
	}
}

func badRequestMessage(t *testing.T, err error) string {
	t.Helper()
	var domainErr *domain.Error
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected domain error, got %v", err)
	}
	if domainErr.Code != domain.CodeBadRequest {
		t.Fatalf("expected BAD_REQUEST, got %s", domainErr.Code)
	}
	return domainErr.Message
}

func forbiddenMessage(t *testing.T, err error) string {
	t.Helper()
	var domainErr *domain.Error
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected domain error, got %v", err)
	}
	if domainErr.Code != domain.CodeForbidden {
		t.Fatalf("expected FORBIDDEN, got %s", domainErr.Code)
	}
	return domainErr.Message
}

func TestCheckEligibility(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	card := seedTestCard(t, svc, baseCard("card-check"))

	t.Run("FreshUser", func(t *testing.T) {
		result, err := svc.CheckEligibility(ctx, "user-fresh", CheckRequest{CardID: card.ID})
		if err != nil {
			t.Fatalf("CheckEligibility failed: %v", err)
		}
		if !result.Eligible {
			t.Errorf("expected eligible, got violations: %v", result.Violations)
		}
		if result.Violations == nil || len(result.Violations) != 0 {
			t.Errorf("expected empty violation slice, got %v", result.Violations)
		}
	})

	t.Run("UnknownCard", func(t *testing.T) {
		_, err := svc.CheckEligibility(ctx, "user-fresh", CheckRequest{CardID: "no-such-card"})
		var domainErr *domain.Error
		if !errors.As(err, &domainErr) || domainErr.Code != domain.CodeNotFound {
			t.Errorf("expected NOT_FOUND, got %v", err)
		}
		if domainErr != nil && domainErr.Message != "Card not found" {
			t.Errorf("unexpected message: %q", domainErr.Message)
		}
	})

	t.Run("MissingCardID", func(t *testing.T) {
		_, err := svc.CheckEligibility(ctx, "user-fresh", CheckRequest{})
		if msg := badRequestMessage(t, err); msg != "cardId is required" {
			t.Errorf("unexpected message: %q", msg)
		}
	})

	t.Run("CreditScoreBelowMinimum", func(t *testing.T) {
		minScore := 720
		scored := baseCard("card-scored")
		scored.CreditScoreMin = &minScore
		seedTestCard(t, svc, scored)

		score := 650
		result, err := svc.CheckEligibility(ctx, "user-lowscore", CheckRequest{CardID: "card-scored", CreditScore: &score})
		if err != nil {
			t.Fatalf("CheckEligibility failed: %v", err)
		}
		if result.Eligible {
			t.Error("expected ineligible for low score")
		}
		if len(result.Violations) != 1 || result.Violations[0].Message != "Minimum credit score required: 720" {
			t.Errorf("unexpected violations: %v", result.Violations)
		}
	})

	t.Run("CollectsAllViolations", func(t *testing.T) {
		// Seed enough applications to trip both velocity and cooldown
		userID := "user-busy"
		apps, err := svc.ApplyForCard(ctx, userID, ApplyRequest{CardID: card.ID})
		if err != nil {
			t.Fatalf("ApplyForCard failed: %v", err)
		}
		_ = apps
		if _, err := svc.ApplyForCard(ctx, userID, ApplyRequest{CardID: card.ID}); err == nil {
			// Second application to the same issuer inside the cooldown is
			// still allowed on the apply path; only velocity blocks it
			t.Log("second application accepted")
		}

		result, err := svc.CheckEligibility(ctx, userID, CheckRequest{CardID: card.ID})
		if err != nil {
			t.Fatalf("CheckEligibility failed: %v", err)
		}
		if result.Eligible {
			t.Fatal("expected violations after applications")
		}
		names := map[string]bool{}
		for _, v := range result.Violations {
			names[v.Rule] = true
		}
		if !names["Application Cooldown"] {
			t.Errorf("expected cooldown violation, got %v", result.Violations)
		}
		if !names["Velocity Rule"] {
			t.Errorf("expected velocity violation, got %v", result.Violations)
		}
	})
}

func TestCheckEligibilityCaching(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	card := seedTestCard(t, svc, baseCard("card-cache"))
	userID := "user-cache"

	first, err := svc.CheckEligibility(ctx, userID, CheckRequest{CardID: card.ID})
	if err != nil {
		t.Fatalf("CheckEligibility failed: %v", err)
	}
	if !first.Eligible {
		t.Fatalf("expected eligible, got %v", first.Violations)
	}

	// Make the user ineligible behind the cache's back
	app := &domain.CardApplication{
		ID: "app-cache", UserID: userID, CardID: card.ID,
		Status: domain.StatusPending, AppliedAt: time.Now().UTC(),
	}
	if err := repo.CreateApplication(ctx, app); err != nil {
		t.Fatalf("CreateApplication failed: %v", err)
	}

	// The cached snapshot still answers until invalidated
	cached, err := svc.CheckEligibility(ctx, userID, CheckRequest{CardID: card.ID})
	if err != nil {
		t.Fatalf("CheckEligibility failed: %v", err)
	}
	if !cached.Eligible {
		t.Error("expected cached eligible result")
	}

	// Supplying a credit score bypasses the cache and sees the new state
	score := 750
	fresh, err := svc.CheckEligibility(ctx, userID, CheckRequest{CardID: card.ID, CreditScore: &score})
	if err != nil {
		t.Fatalf("CheckEligibility failed: %v", err)
	}
	if fresh.Eligible {
		t.Errorf("expected score-supplied check to bypass cache, got eligible")
	}
}

func TestApplyForCard(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	card := seedTestCard(t, svc, baseCard("card-apply"))

	t.Run("Success", func(t *testing.T) {
		app, err := svc.ApplyForCard(ctx, "user-apply", ApplyRequest{CardID: card.ID, Notes: "first card"})
		if err != nil {
			t.Fatalf("ApplyForCard failed: %v", err)
		}
		if app.Status != domain.StatusPending {
			t.Errorf("expected PENDING, got %s", app.Status)
		}
		if app.ID == "" {
			t.Error("expected generated application ID")
		}
		if app.Notes != "first card" {
			t.Errorf("notes not carried: %q", app.Notes)
		}
	})

	t.Run("VelocityBlocksThird", func(t *testing.T) {
		userID := "user-velocity"
		other := baseCard("card-apply-2")
		other.Issuer = "Citi"
		seedTestCard(t, svc, other)
		third := baseCard("card-apply-3")
		third.Issuer = "Barclays"
		seedTestCard(t, svc, third)

		if _, err := svc.ApplyForCard(ctx, userID, ApplyRequest{CardID: card.ID}); err != nil {
			t.Fatalf("first application failed: %v", err)
		}
		if _, err := svc.ApplyForCard(ctx, userID, ApplyRequest{CardID: "card-apply-2"}); err != nil {
			t.Fatalf("second application failed: %v", err)
		}

		_, err := svc.ApplyForCard(ctx, userID, ApplyRequest{CardID: "card-apply-3"})
		if msg := forbiddenMessage(t, err); msg != "Maximum applications reached for this period" {
			t.Errorf("unexpected message: %q", msg)
		}
	})

	t.Run("MissingScoreOnScoredCard", func(t *testing.T) {
		minScore := 700
		scored := baseCard("card-apply-scored")
		scored.Issuer = "Amex"
		scored.CreditScoreMin = &minScore
		seedTestCard(t, svc, scored)

		_, err := svc.ApplyForCard(ctx, "user-noscore", ApplyRequest{CardID: "card-apply-scored"})
		if msg := forbiddenMessage(t, err); msg != "Credit score too low" {
			t.Errorf("unexpected message: %q", msg)
		}
	})

	t.Run("BusinessCardUnverified", func(t *testing.T) {
		biz := baseCard("card-apply-biz")
		biz.Issuer = "Capital One"
		biz.BusinessCard = true
		seedTestCard(t, svc, biz)

		_, err := svc.ApplyForCard(ctx, "user-personal", ApplyRequest{CardID: "card-apply-biz"})
		if msg := forbiddenMessage(t, err); msg != "Business verification required" {
			t.Errorf("unexpected message: %q", msg)
		}
	})
}

func TestUpdateStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	card := seedTestCard(t, svc, baseCard("card-status"))
	userID := "user-status"

	app, err := svc.ApplyForCard(ctx, userID, ApplyRequest{CardID: card.ID})
	if err != nil {
		t.Fatalf("ApplyForCard failed: %v", err)
	}

	t.Run("InvalidStatus", func(t *testing.T) {
		_, err := svc.UpdateStatus(ctx, userID, app.ID, StatusRequest{Status: "SHREDDED"})
		if msg := badRequestMessage(t, err); msg != "Invalid status: SHREDDED" {
			t.Errorf("unexpected message: %q", msg)
		}
	})

	t.Run("Approve", func(t *testing.T) {
		updated, err := svc.UpdateStatus(ctx, userID, app.ID, StatusRequest{Status: domain.StatusApproved})
		if err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
		if updated.Status != domain.StatusApproved {
			t.Errorf("expected APPROVED, got %s", updated.Status)
		}
		if updated.ApprovedAt == nil {
			t.Error("expected approvedAt stamped")
		}
		if updated.SpendDeadline == nil {
			t.Fatal("expected spend deadline computed")
		}
		wantDeadline := updated.ApprovedAt.AddDate(0, 0, card.MinSpendPeriod)
		if !updated.SpendDeadline.Equal(wantDeadline) {
			t.Errorf("deadline %v, want %v", updated.SpendDeadline, wantDeadline)
		}
	})

	t.Run("CancelStampsClosedAt", func(t *testing.T) {
		app2, err := svc.ApplyForCard(ctx, "user-status-2", ApplyRequest{CardID: card.ID})
		if err != nil {
			t.Fatalf("ApplyForCard failed: %v", err)
		}
		updated, err := svc.UpdateStatus(ctx, "user-status-2", app2.ID, StatusRequest{Status: domain.StatusCancelled})
		if err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
		if updated.ClosedAt == nil {
			t.Error("expected closedAt stamped")
		}
	})

	t.Run("OtherUserNotFound", func(t *testing.T) {
		_, err := svc.UpdateStatus(ctx, "user-other", app.ID, StatusRequest{Status: domain.StatusDenied})
		var domainErr *domain.Error
		if !errors.As(err, &domainErr) || domainErr.Code != domain.CodeNotFound {
			t.Errorf("expected NOT_FOUND for other user, got %v", err)
		}
	})
}

func TestUpdateSpend(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	card := seedTestCard(t, svc, baseCard("card-spend"))
	userID := "user-spend"

	app, err := svc.ApplyForCard(ctx, userID, ApplyRequest{CardID: card.ID})
	if err != nil {
		t.Fatalf("ApplyForCard failed: %v", err)
	}

	t.Run("NonPositiveAmount", func(t *testing.T) {
		_, err := svc.UpdateSpend(ctx, userID, app.ID, SpendRequest{Amount: 0})
		if msg := badRequestMessage(t, err); msg != "Spend amount must be positive" {
			t.Errorf("unexpected message: %q", msg)
		}
	})

	t.Run("PendingApplication", func(t *testing.T) {
		_, err := svc.UpdateSpend(ctx, userID, app.ID, SpendRequest{Amount: 100})
		if msg := badRequestMessage(t, err); msg != "Cannot track spend for non-approved applications" {
			t.Errorf("unexpected message: %q", msg)
		}
	})

	if _, err := svc.UpdateStatus(ctx, userID, app.ID, StatusRequest{Status: domain.StatusApproved}); err != nil {
		t.Fatalf("approval failed: %v", err)
	}

	t.Run("BonusEarnedExactlyOnce", func(t *testing.T) {
		updated, err := svc.UpdateSpend(ctx, userID, app.ID, SpendRequest{Amount: 2500})
		if err != nil {
			t.Fatalf("UpdateSpend failed: %v", err)
		}
		if updated.BonusEarnedAt != nil {
			t.Error("bonus earned below minimum")
		}

		updated, err = svc.UpdateSpend(ctx, userID, app.ID, SpendRequest{Amount: 1500})
		if err != nil {
			t.Fatalf("UpdateSpend failed: %v", err)
		}
		if updated.SpendProgress != 4000 {
			t.Errorf("expected progress 4000, got %.2f", updated.SpendProgress)
		}
		if updated.BonusEarnedAt == nil {
			t.Fatal("expected bonus earned at threshold")
		}
		earnedAt := *updated.BonusEarnedAt

		updated, err = svc.UpdateSpend(ctx, userID, app.ID, SpendRequest{Amount: 1000})
		if err != nil {
			t.Fatalf("UpdateSpend failed: %v", err)
		}
		if updated.BonusEarnedAt == nil || !updated.BonusEarnedAt.Equal(earnedAt) {
			t.Errorf("bonusEarnedAt moved: %v -> %v", earnedAt, updated.BonusEarnedAt)
		}
	})

	t.Run("SpendAfterDeadline", func(t *testing.T) {
		late := time.Now().UTC().AddDate(0, 0, card.MinSpendPeriod+1)
		_, err := svc.UpdateSpend(ctx, userID, app.ID, SpendRequest{Amount: 100, Date: late})
		if msg := badRequestMessage(t, err); msg != "Spend date is after bonus deadline" {
			t.Errorf("unexpected message: %q", msg)
		}
	})
}

func TestRetentionOffers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	card := seedTestCard(t, svc, baseCard("card-offers"))
	userID := "user-offers"

	app, err := svc.ApplyForCard(ctx, userID, ApplyRequest{CardID: card.ID})
	if err != nil {
		t.Fatalf("ApplyForCard failed: %v", err)
	}

	t.Run("RequiresValue", func(t *testing.T) {
		_, err := svc.AddRetentionOffer(ctx, userID, app.ID, OfferRequest{})
		if msg := badRequestMessage(t, err); msg != "Must specify either points or statement credit" {
			t.Errorf("unexpected message: %q", msg)
		}
	})

	t.Run("RejectsNonPositive", func(t *testing.T) {
		points := -100.0
		_, err := svc.AddRetentionOffer(ctx, userID, app.ID, OfferRequest{PointsOffered: &points})
		if msg := badRequestMessage(t, err); msg != "Points offered must be positive" {
			t.Errorf("unexpected message: %q", msg)
		}

		credit := 0.0
		_, err = svc.AddRetentionOffer(ctx, userID, app.ID, OfferRequest{StatementCredit: &credit})
		if msg := badRequestMessage(t, err); msg != "Statement credit must be positive" {
			t.Errorf("unexpected message: %q", msg)
		}
	})

	t.Run("RecordAndList", func(t *testing.T) {
		points := 30000.0
		offer, err := svc.AddRetentionOffer(ctx, userID, app.ID, OfferRequest{PointsOffered: &points, Notes: "annual fee call"})
		if err != nil {
			t.Fatalf("AddRetentionOffer failed: %v", err)
		}
		if offer.CardID != card.ID {
			t.Errorf("expected offer bound to card %s, got %s", card.ID, offer.CardID)
		}

		offers, err := svc.ListRetentionOffers(ctx, userID, app.ID)
		if err != nil {
			t.Fatalf("ListRetentionOffers failed: %v", err)
		}
		if len(offers) != 1 {
			t.Errorf("expected 1 offer, got %d", len(offers))
		}
	})

	t.Run("OwnershipOnList", func(t *testing.T) {
		_, err := svc.ListRetentionOffers(ctx, "user-else", app.ID)
		var domainErr *domain.Error
		if !errors.As(err, &domainErr) || domainErr.Code != domain.CodeNotFound {
			t.Errorf("expected NOT_FOUND for other user, got %v", err)
		}
	})
}

func TestCustomRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	card := seedTestCard(t, svc, baseCard("card-rules"))

	t.Run("InvalidExpressionRejected", func(t *testing.T) {
		_, err := svc.SaveRule(ctx, &domain.RuleConfig{
			Name:       "Broken",
			Expression: "not valid CEL !!!",
		})
		var domainErr *domain.Error
		if !errors.As(err, &domainErr) || domainErr.Code != domain.CodeBadRequest {
			t.Errorf("expected BAD_REQUEST, got %v", err)
		}
	})

	t.Run("RuleBlocksApplication", func(t *testing.T) {
		_, err := svc.SaveRule(ctx, &domain.RuleConfig{
			Name:       "No Big Bonuses",
			Expression: "signup_bonus >= 50000.0",
			Message:    "Signup bonus too rich for this profile",
		})
		if err != nil {
			t.Fatalf("SaveRule failed: %v", err)
		}

		_, err = svc.ApplyForCard(ctx, "user-custom", ApplyRequest{CardID: card.ID})
		if msg := forbiddenMessage(t, err); msg != "Signup bonus too rich for this profile" {
			t.Errorf("unexpected message: %q", msg)
		}

		result, err := svc.CheckEligibility(ctx, "user-custom", CheckRequest{CardID: card.ID})
		if err != nil {
			t.Fatalf("CheckEligibility failed: %v", err)
		}
		if result.Eligible {
			t.Error("expected custom rule violation on check path")
		}
	})

	t.Run("DeleteReloadsEngine", func(t *testing.T) {
		list, err := svc.ListRules(ctx)
		if err != nil {
			t.Fatalf("ListRules failed: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("expected 1 rule, got %d", len(list))
		}

		if err := svc.DeleteRule(ctx, list[0].ID); err != nil {
			t.Fatalf("DeleteRule failed: %v", err)
		}

		if _, err := svc.ApplyForCard(ctx, "user-custom-2", ApplyRequest{CardID: card.ID}); err != nil {
			t.Errorf("expected application to pass after rule deletion, got %v", err)
		}
	})

	t.Run("DeleteUnknownRule", func(t *testing.T) {
		err := svc.DeleteRule(ctx, "no-such-rule")
		var domainErr *domain.Error
		if !errors.As(err, &domainErr) || domainErr.Code != domain.CodeNotFound {
			t.Errorf("expected NOT_FOUND, got %v", err)
		}
	})
}
