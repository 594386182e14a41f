// Package worker provides async event consumers.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/churnistic/churnistic/internal/domain"
)

// Invalidator drops stale eligibility snapshots in response to application
// and spend events. The eligibility checker caches per user/card results;
// any event that changes a user's history makes the cached answer wrong, so
// the snapshot is deleted as soon as the event arrives.
type Invalidator struct {
	bus   domain.EventBus
	cache domain.Cache

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewInvalidator creates a cache invalidation worker.
func NewInvalidator(bus domain.EventBus, cache domain.Cache) *Invalidator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Invalidator{
		bus:    bus,
		cache:  cache,
		ctx:    ctx,
		cancel: cancel,
	}
}

// invalidationTopics are the events that change a user's rule inputs.
var invalidationTopics = []string{
	domain.TopicApplicationCreated,
	domain.TopicApplicationUpdated,
	domain.TopicSpendRecorded,
	domain.TopicBonusEarned,
}

// Start subscribes to every invalidating topic.
func (w *Invalidator) Start() error {
	for _, topic := range invalidationTopics {
		sub, err := w.bus.Subscribe(w.ctx, topic, w.handleMessage)
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("cache invalidator started", "topics", len(w.subscriptions))
	return nil
}

// handleMessage invalidates every snapshot for the event's user. A new
// application or spend changes velocity and issuer counts, which feed the
// verdicts for all of the user's cards, not just the one in the event.
func (w *Invalidator) handleMessage(ctx context.Context, msg *domain.Message) error {
	var event struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to parse event payload",
			"message_id", msg.ID,
			"topic", msg.Topic,
			"error", err,
		)
		return err
	}

	userID := event.UserID
	if userID == "" {
		userID = msg.UserID
	}
	if userID == "" {
		return nil
	}

	if err := w.cache.DeleteUserEligibility(ctx, userID); err != nil {
		slog.Warn("failed to invalidate eligibility snapshots",
			"user_id", userID,
			"error", err,
		)
		return err
	}

	slog.Debug("eligibility snapshots invalidated",
		"user_id", userID,
		"topic", msg.Topic,
	)
	return nil
}

// Stop unsubscribes and stops the worker.
func (w *Invalidator) Stop() {
	w.cancel()
	for _, sub := range w.subscriptions {
		_ = sub.Unsubscribe()
	}
	w.subscriptions = nil
	slog.Info("cache invalidator stopped")
}
