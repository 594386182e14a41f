package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations. Community tier uses
// a local LRU; Pro tier layers Redis behind it (two-phase).
type Cache interface {
	// Get retrieves a value from cache. Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetEligibility retrieves a cached eligibility snapshot for a
	// user/card pair. Returns nil, nil on miss.
	GetEligibility(ctx context.Context, userID, cardID string) (*EligibilitySnapshot, error)

	// SetEligibility caches an eligibility snapshot.
	SetEligibility(ctx context.Context, userID, cardID string, snap *EligibilitySnapshot, ttl time.Duration) error

	// DeleteEligibility drops the cached snapshot for a user/card pair.
	DeleteEligibility(ctx context.Context, userID, cardID string) error
	// DeleteUserEligibility drops every cached snapshot for the user. An
	// application or spend event changes velocity and issuer counts, which
	// feed the verdicts for all of the user's cards, not just the one named
	// by the event.
	DeleteUserEligibility(ctx context.Context, userID string) error

	// IncrementCounter atomically increments a windowed counter and returns
	// the new value. Used for per-user request rate limiting.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// EligibilitySnapshot is a cached eligibility result with its check time.
type EligibilitySnapshot struct {
	Result    EligibilityResult `json:"result"`
	CheckedAt time.Time         `json:"checkedAt"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
