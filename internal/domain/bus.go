package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Community tier uses Go channels; Pro tier uses NATS.
type EventBus interface {
	// Publish sends a message to a topic on behalf of a user.
	Publish(ctx context.Context, userID string, topic string, payload []byte) error

	// Subscribe registers a handler for all messages on a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Topic     string `json:"topic"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Topics published by the card and bank services.
const (
	TopicApplicationCreated   = "churnistic.application.created"
	TopicApplicationUpdated   = "churnistic.application.updated"
	TopicSpendRecorded        = "churnistic.spend.recorded"
	TopicBonusEarned          = "churnistic.bonus.earned"
	TopicDepositRecorded      = "churnistic.deposit.recorded"
	TopicDebitRecorded        = "churnistic.debit.recorded"
	TopicRequirementCompleted = "churnistic.requirement.completed"
)

// ApplicationEvent is the payload for application lifecycle topics.
type ApplicationEvent struct {
	UserID        string     `json:"userId"`
	ApplicationID string     `json:"applicationId"`
	CardID        string     `json:"cardId"`
	Status        CardStatus `json:"status"`
}

// SpendEvent is the payload for spend and bonus topics.
type SpendEvent struct {
	UserID        string  `json:"userId"`
	ApplicationID string  `json:"applicationId"`
	CardID        string  `json:"cardId"`
	Amount        float64 `json:"amount"`
	SpendProgress float64 `json:"spendProgress"`
	BonusEarned   bool    `json:"bonusEarned"`
}

// AccountEvent is the payload for deposit, debit, and requirement topics.
type AccountEvent struct {
	UserID        string          `json:"userId"`
	AccountID     string          `json:"accountId"`
	Amount        float64         `json:"amount,omitempty"`
	RequirementID string          `json:"requirementId,omitempty"`
	Requirement   RequirementType `json:"requirement,omitempty"`
}
