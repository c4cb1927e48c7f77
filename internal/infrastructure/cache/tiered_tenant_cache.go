package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
	"go.uber.org/zap"
)

const defaultL1TTL = 30 * time.Second

// TieredTenantCache combines an in-process L1 with a shared Redis L2.
// Reads check L1, then L2 (backfilling L1). Writes go to both levels and
// tell other instances to drop their L1 copy.
type TieredTenantCache struct {
	l1          tenancy.Cache
	l2          tenancy.Cache
	invalidator *RedisCacheInvalidator
	l1TTL       time.Duration
	logger      *zap.Logger

	l1Hits   int64
	l1Misses int64
	l2Hits   int64
	l2Misses int64
}

// TieredTenantCacheOption is a functional option for configuring the cache
type TieredTenantCacheOption func(*TieredTenantCache)

// WithL1TTL caps how long entries live in L1
func WithL1TTL(ttl time.Duration) TieredTenantCacheOption {
	return func(c *TieredTenantCache) {
		c.l1TTL = ttl
	}
}

// WithTieredLogger sets the logger for the cache
func WithTieredLogger(logger *zap.Logger) TieredTenantCacheOption {
	return func(c *TieredTenantCache) {
		c.logger = logger
	}
}

// NewTieredTenantCache creates a tiered cache. invalidator may be nil for a
// single instance deployment.
func NewTieredTenantCache(l1, l2 tenancy.Cache, invalidator *RedisCacheInvalidator, opts ...TieredTenantCacheOption) *TieredTenantCache {
	c := &TieredTenantCache{
		l1:          l1,
		l2:          l2,
		invalidator: invalidator,
		l1TTL:       defaultL1TTL,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartInvalidationSubscription drops L1 entries changed by other
// instances. It blocks; run it in a goroutine.
func (c *TieredTenantCache) StartInvalidationSubscription(ctx context.Context) error {
	if c.invalidator == nil {
		return nil
	}
	return c.invalidator.Subscribe(ctx, func(msg InvalidationMessage) {
		for _, key := range msg.Keys {
			if err := c.l1.Invalidate(ctx, key); err != nil {
				c.logger.Error("Failed to invalidate L1 tenant cache",
					zap.String("key", key),
					zap.Error(err))
			}
		}
		c.logger.Debug("Dropped L1 entries changed elsewhere",
			zap.Strings("keys", msg.Keys),
			zap.String("origin", msg.Origin))
	})
}

// Get checks L1, then L2
func (c *TieredTenantCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if data, ok, err := c.l1.Get(ctx, key); err == nil && ok {
		atomic.AddInt64(&c.l1Hits, 1)
		return data, true, nil
	}
	atomic.AddInt64(&c.l1Misses, 1)

	data, ok, err := c.l2.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		atomic.AddInt64(&c.l2Misses, 1)
		return nil, false, nil
	}
	atomic.AddInt64(&c.l2Hits, 1)

	if err := c.l1.Set(ctx, key, data, c.l1TTL); err != nil {
		c.logger.Warn("Failed to backfill L1 tenant cache", zap.String("key", key), zap.Error(err))
	}
	return data, true, nil
}

// Set writes L2 first, then L1, then notifies other instances
func (c *TieredTenantCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.l1.Set(ctx, key, value, l1TTL); err != nil {
		return err
	}
	return c.broadcast(ctx, key)
}

// Invalidate removes the key from both levels and from other instances' L1
func (c *TieredTenantCache) Invalidate(ctx context.Context, key string) error {
	if err := c.l1.Invalidate(ctx, key); err != nil {
		return err
	}
	if err := c.l2.Invalidate(ctx, key); err != nil {
		return err
	}
	return c.broadcast(ctx, key)
}

func (c *TieredTenantCache) broadcast(ctx context.Context, key string) error {
	if c.invalidator == nil {
		return nil
	}
	return c.invalidator.Publish(ctx, key)
}

// TieredCacheStats holds hit/miss counters of both levels
type TieredCacheStats struct {
	L1Hits   int64 `json:"l1Hits"`
	L1Misses int64 `json:"l1Misses"`
	L2Hits   int64 `json:"l2Hits"`
	L2Misses int64 `json:"l2Misses"`
}

// Stats returns the hit/miss counters
func (c *TieredTenantCache) Stats() TieredCacheStats {
	return TieredCacheStats{
		L1Hits:   atomic.LoadInt64(&c.l1Hits),
		L1Misses: atomic.LoadInt64(&c.l1Misses),
		L2Hits:   atomic.LoadInt64(&c.l2Hits),
		L2Misses: atomic.LoadInt64(&c.l2Misses),
	}
}

// Ensure TieredTenantCache implements tenancy.Cache
var _ tenancy.Cache = (*TieredTenantCache)(nil)
