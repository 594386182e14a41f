package velocity

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/churnistic/churnistic/internal/domain"
	"github.com/churnistic/churnistic/internal/repository"
)

func newTestService(t *testing.T) (*Service, domain.Repository) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "churnistic-velocity-*.db")
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

	return NewService(repo), repo
}

func seedApplication(t *testing.T, repo domain.Repository, id, userID, cardID string, appliedAt time.Time, status domain.CardStatus) *domain.CardApplication {
	t.Helper()
	app := &domain.CardApplication{
		ID:        id,
		UserID:    userID,
		CardID:    cardID,
		Status:    status,
		AppliedAt: appliedAt,
	}
	if err := repo.CreateApplication(context.Background(), app); err != nil {
		t.Fatalf("failed to seed application: %v", err)
	}
	return app
}

func TestGetApplicationCount(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	card := &domain.Card{ID: "card-count", Issuer: "Chase", Name: "Count Card", IsActive: true}
	if err := repo.SaveCard(ctx, card); err != nil {
		t.Fatalf("SaveCard failed: %v", err)
	}

	now := time.Now().UTC()
	seedApplication(t, repo, "app-1", "user-001", card.ID, now.Add(-5*24*time.Hour), domain.StatusPending)
	seedApplication(t, repo, "app-2", "user-001", card.ID, now.Add(-45*24*time.Hour), domain.StatusApproved)
	seedApplication(t, repo, "app-3", "user-002", card.ID, now.Add(-1*24*time.Hour), domain.StatusPending)

	count, err := svc.GetApplicationCount(ctx, "user-001", 30)
	if err != nil {
		t.Fatalf("GetApplicationCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 application in 30 days, got %d", count)
	}

	count, err = svc.GetApplicationCount(ctx, "user-001", 60)
	if err != nil {
		t.Fatalf("GetApplicationCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 applications in 60 days, got %d", count)
	}

	if _, err := svc.GetApplicationCount(ctx, "", 30); err == nil {
		t.Error("expected error for empty user ID")
	}
}

func TestBuildApplicant(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	chase := &domain.Card{ID: "card-chase", Issuer: "Chase", Name: "Chase Card", MinSpend: 4000, IsActive: true}
	amex := &domain.Card{ID: "card-amex", Issuer: "Amex", Name: "Amex Card", IsActive: true}
	for _, c := range []*domain.Card{chase, amex} {
		if err := repo.SaveCard(ctx, c); err != nil {
			t.Fatalf("SaveCard failed: %v", err)
		}
	}

	now := time.Now().UTC()
	userID := "user-builder"

	// Two Chase applications, one recent; one Amex application
	seedApplication(t, repo, "app-c1", userID, chase.ID, now.Add(-10*24*time.Hour), domain.StatusApproved)
	seedApplication(t, repo, "app-c2", userID, chase.ID, now.Add(-200*24*time.Hour), domain.StatusApproved)
	seedApplication(t, repo, "app-a1", userID, amex.ID, now.Add(-3*24*time.Hour), domain.StatusPending)

	score := 740
	user := &domain.User{ID: userID, CreditScore: &score, BusinessVerified: true}

	t.Run("IssuerHistory", func(t *testing.T) {
		a, err := svc.BuildApplicant(ctx, user, chase, nil)
		if err != nil {
			t.Fatalf("BuildApplicant failed: %v", err)
		}

		if a.IssuerCardCount != 2 {
			t.Errorf("expected 2 Chase cards, got %d", a.IssuerCardCount)
		}
		if a.LastIssuerApplication == nil {
			t.Fatal("expected last issuer application")
		}
		// Most recent Chase application is 10 days old
		age := now.Sub(*a.LastIssuerApplication)
		if age < 9*24*time.Hour || age > 11*24*time.Hour {
			t.Errorf("unexpected last application age: %v", age)
		}
		if a.RecentApplications != 2 {
			t.Errorf("expected 2 applications in default window, got %d", a.RecentApplications)
		}
		if a.LastBonusEarned != nil {
			t.Errorf("expected no bonus history, got %v", a.LastBonusEarned)
		}
	})

	t.Run("ProfileAttributes", func(t *testing.T) {
		a, err := svc.BuildApplicant(ctx, user, chase, nil)
		if err != nil {
			t.Fatalf("BuildApplicant failed: %v", err)
		}
		if !a.BusinessVerified {
			t.Error("expected business verified from profile")
		}
		if a.CreditScore == nil || *a.CreditScore != 740 {
			t.Errorf("expected profile score 740, got %v", a.CreditScore)
		}
	})

	t.Run("SuppliedScoreOverridesProfile", func(t *testing.T) {
		supplied := 620
		a, err := svc.BuildApplicant(ctx, user, chase, &supplied)
		if err != nil {
			t.Fatalf("BuildApplicant failed: %v", err)
		}
		if a.CreditScore == nil || *a.CreditScore != 620 {
			t.Errorf("expected supplied score 620, got %v", a.CreditScore)
		}
	})

	t.Run("CardVelocityWindow", func(t *testing.T) {
		windowed := &domain.Card{
			ID: "card-windowed", Issuer: "Citi", Name: "Windowed Card", IsActive: true,
			VelocityRules: []domain.VelocityRule{
				{ID: "vr-w", CardID: "card-windowed", MaxApplications: 5, PeriodDays: 7, IsActive: true},
			},
		}
		if err := repo.SaveCard(ctx, windowed); err != nil {
			t.Fatalf("SaveCard failed: %v", err)
		}

		a, err := svc.BuildApplicant(ctx, user, windowed, nil)
		if err != nil {
			t.Fatalf("BuildApplicant failed: %v", err)
		}
		// Only the 3-day-old Amex application falls inside the 7-day window
		if a.RecentApplications != 1 {
			t.Errorf("expected 1 application in 7-day window, got %d", a.RecentApplications)
		}
		if a.IssuerCardCount != 0 {
			t.Errorf("expected no Citi history, got %d", a.IssuerCardCount)
		}
		if a.LastIssuerApplication != nil {
			t.Errorf("expected no Citi application, got %v", a.LastIssuerApplication)
		}
	})

	t.Run("BonusHistory", func(t *testing.T) {
		userID := "user-bonused"
		earned := seedApplication(t, repo, "app-b1", userID, chase.ID, now.Add(-400*24*time.Hour), domain.StatusApproved)
		if _, err := repo.AddSpend(ctx, userID, earned.ID, 4000, chase.MinSpend, now.Add(-300*24*time.Hour)); err != nil {
			t.Fatalf("AddSpend failed: %v", err)
		}

		a, err := svc.BuildApplicant(ctx, &domain.User{ID: userID}, chase, nil)
		if err != nil {
			t.Fatalf("BuildApplicant failed: %v", err)
		}
		if a.LastBonusEarned == nil {
			t.Fatal("expected bonus history after earning")
		}
	})
}
