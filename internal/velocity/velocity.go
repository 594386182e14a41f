// Package velocity assembles an applicant's application history for rule
// evaluation.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/churnistic/churnistic/internal/domain"
	"github.com/churnistic/churnistic/internal/rules"
)

// Lookback window for counting held cards against issuer limits.
const issuerLookbackMonths = 24

// Service builds point-in-time applicant snapshots from stored history.
type Service struct {
	repo domain.Repository
}

// NewService creates a new velocity service.
func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

// GetApplicationCount returns the number of applications the user submitted
// within the trailing window, across all issuers.
func (s *Service) GetApplicationCount(ctx context.Context, userID string, windowDays int) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("userID is required")
	}

	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	return s.repo.CountApplicationsSince(ctx, userID, since)
}

// BuildApplicant gathers everything rule evaluation needs about one user
// applying for one card: profile, issuer history, velocity counts and
// bonus history. user must be non-nil; callers without a stored profile
// pass an empty one carrying only the ID.
func (s *Service) BuildApplicant(ctx context.Context, user *domain.User, card *domain.Card, creditScore *int) (*rules.Applicant, error) {
	now := time.Now().UTC()

	applicant := &rules.Applicant{
		Now:              now,
		CreditScore:      creditScore,
		BusinessVerified: user.BusinessVerified,
	}
	// A caller-supplied score overrides the stored profile score.
	if applicant.CreditScore == nil {
		applicant.CreditScore = user.CreditScore
	}
	userID := user.ID

	// Held cards from this issuer within the lookback window.
	lookback := now.AddDate(0, -issuerLookbackMonths, 0)
	issuerCount, err := s.repo.CountIssuerApplications(ctx, userID, card.Issuer, lookback)
	if err != nil {
		return nil, fmt.Errorf("failed to count issuer applications: %w", err)
	}
	applicant.IssuerCardCount = issuerCount

	last, err := s.repo.LatestIssuerApplication(ctx, userID, card.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to find latest issuer application: %w", err)
	}
	if last != nil {
		at := last.AppliedAt
		applicant.LastIssuerApplication = &at
	}

	// Applications across all issuers within the card's velocity window.
	windowDays := rules.DefaultVelocityWindowDays
	for _, vr := range card.VelocityRules {
		if vr.IsActive && vr.PeriodDays > 0 {
			windowDays = vr.PeriodDays
			break
		}
	}
	recent, err := s.GetApplicationCount(ctx, userID, windowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent applications: %w", err)
	}
	applicant.RecentApplications = recent

	earned, err := s.repo.LatestBonusEarned(ctx, userID, card.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find latest earned bonus: %w", err)
	}
	if earned != nil && earned.BonusEarnedAt != nil {
		at := *earned.BonusEarnedAt
		applicant.LastBonusEarned = &at
	}

	return applicant, nil
}
