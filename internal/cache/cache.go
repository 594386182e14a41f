package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/churnistic/churnistic/internal/domain"
)

// New creates a new cache based on configuration.
// For Community tier: returns LRU cache.
// For Pro tier with two-phase: returns TwoPhaseCache wrapping LRU + Redis.
// For Pro tier without two-phase: returns Redis cache.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache implements the two-phase caching strategy.
// L1: Local LRU cache for fast reads
// L2: Redis for distributed caching and persistence
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	local := NewLRUCache(cfg.LocalMaxSize)

	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	l1TTL := cfg.LocalTTL
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}

	return &TwoPhaseCache{
		local:  local,
		remote: remote,
		l1TTL:  l1TTL,
	}, nil
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	// Check L1 first
	val, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	// Check L2
	val, err = c.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		// Populate L1 for future reads
		_ = c.local.Set(ctx, key, val, c.l1TTL)
	}

	return val, nil
}

// Set writes to both L1 and L2.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	// Write to L1 with shorter TTL
	l1TTL := c.l1TTL
	if ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.Set(ctx, key, value, l1TTL); err != nil {
		return err
	}

	// Write to L2 with full TTL
	return c.remote.Set(ctx, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, key)
}

// GetEligibility retrieves a cached eligibility snapshot.
func (c *TwoPhaseCache) GetEligibility(ctx context.Context, userID, cardID string) (*domain.EligibilitySnapshot, error) {
	// Check L1 first
	snap, err := c.local.GetEligibility(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		return snap, nil
	}

	// Check L2
	snap, err = c.remote.GetEligibility(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		// Populate L1
		_ = c.local.SetEligibility(ctx, userID, cardID, snap, c.l1TTL)
	}

	return snap, nil
}

// SetEligibility caches an eligibility snapshot in both L1 and L2.
func (c *TwoPhaseCache) SetEligibility(ctx context.Context, userID, cardID string, snap *domain.EligibilitySnapshot, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.SetEligibility(ctx, userID, cardID, snap, l1TTL); err != nil {
		return err
	}
	return c.remote.SetEligibility(ctx, userID, cardID, snap, ttl)
}

// DeleteUserEligibility drops all of the user's snapshots from both phases.
func (c *TwoPhaseCache) DeleteUserEligibility(ctx context.Context, userID string) error {
	if err := c.local.DeleteUserEligibility(ctx, userID); err != nil {
		return err
	}
	return c.remote.DeleteUserEligibility(ctx, userID)
}

// DeleteEligibility drops the snapshot from both L1 and L2.
func (c *TwoPhaseCache) DeleteEligibility(ctx context.Context, userID, cardID string) error {
	if err := c.local.DeleteEligibility(ctx, userID, cardID); err != nil {
		return err
	}
	return c.remote.DeleteEligibility(ctx, userID, cardID)
}

// IncrementCounter uses Redis for distributed atomic counters.
// L1 is not used for counters to ensure accuracy across nodes.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, key, window)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
