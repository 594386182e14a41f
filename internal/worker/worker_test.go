package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/churnistic/churnistic/internal/bus"
	"github.com/churnistic/churnistic/internal/cache"
	"github.com/churnistic/churnistic/internal/domain"
)

func TestInvalidator(t *testing.T) {
	ctx := context.Background()

	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	lru := cache.NewLRUCache(100)
	defer lru.Close()

	w := NewInvalidator(eventBus, lru)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	seed := func(userID, cardID string) {
		snap := &domain.EligibilitySnapshot{
			Result:    domain.EligibilityResult{Eligible: true},
			CheckedAt: time.Now().UTC(),
		}
		if err := lru.SetEligibility(ctx, userID, cardID, snap, time.Minute); err != nil {
			t.Fatalf("SetEligibility failed: %v", err)
		}
	}

	waitInvalidated := func(userID, cardID string) bool {
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			snap, err := lru.GetEligibility(ctx, userID, cardID)
			if err != nil {
				t.Fatalf("GetEligibility failed: %v", err)
			}
			if snap == nil {
				return true
			}
			time.Sleep(5 * time.Millisecond)
		}
		return false
	}

	t.Run("ApplicationCreated", func(t *testing.T) {
		seed("user-001", "card-001")

		payload, _ := json.Marshal(domain.ApplicationEvent{
			UserID:        "user-001",
			ApplicationID: "app-001",
			CardID:        "card-001",
			Status:        domain.StatusPending,
		})
		if err := eventBus.Publish(ctx, "user-001", domain.TopicApplicationCreated, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		if !waitInvalidated("user-001", "card-001") {
			t.Error("snapshot was not invalidated")
		}
	})

	t.Run("SpendRecorded", func(t *testing.T) {
		seed("user-002", "card-002")

		payload, _ := json.Marshal(domain.SpendEvent{
			UserID:        "user-002",
			ApplicationID: "app-002",
			CardID:        "card-002",
			Amount:        500,
			SpendProgress: 500,
		})
		if err := eventBus.Publish(ctx, "user-002", domain.TopicSpendRecorded, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		if !waitInvalidated("user-002", "card-002") {
			t.Error("snapshot was not invalidated")
		}
	})

	t.Run("AllUserCardsInvalidated", func(t *testing.T) {
		// An approval shifts velocity and issuer counts for every card the
		// user might check next, not only the one applied for.
		seed("user-005", "card-a")
		seed("user-005", "card-b")

		payload, _ := json.Marshal(domain.ApplicationEvent{
			UserID:        "user-005",
			ApplicationID: "app-005",
			CardID:        "card-a",
			Status:        domain.StatusApproved,
		})
		if err := eventBus.Publish(ctx, "user-005", domain.TopicApplicationUpdated, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		if !waitInvalidated("user-005", "card-a") {
			t.Error("snapshot for the applied card was not invalidated")
		}
		if !waitInvalidated("user-005", "card-b") {
			t.Error("snapshot for the user's other card was not invalidated")
		}
	})

	t.Run("OtherUserUntouched", func(t *testing.T) {
		seed("user-003", "card-003")

		payload, _ := json.Marshal(domain.ApplicationEvent{
			UserID: "user-004",
			CardID: "card-003",
			Status: domain.StatusPending,
		})
		_ = eventBus.Publish(ctx, "user-004", domain.TopicApplicationCreated, payload)

		time.Sleep(50 * time.Millisecond)

		snap, _ := lru.GetEligibility(ctx, "user-003", "card-003")
		if snap == nil {
			t.Error("unrelated snapshot was invalidated")
		}
	})
}
