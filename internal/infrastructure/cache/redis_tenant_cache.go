package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
	"go.uber.org/zap"
)

const defaultKeyPrefix = "hr:"

// RedisTenantCache implements tenancy.Cache using Redis so that every
// instance shares the same entries
type RedisTenantCache struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// RedisTenantCacheOption is a functional option for configuring the cache
type RedisTenantCacheOption func(*RedisTenantCache)

// WithKeyPrefix sets the prefix prepended to every key
func WithKeyPrefix(prefix string) RedisTenantCacheOption {
	return func(c *RedisTenantCache) {
		c.keyPrefix = prefix
	}
}

// WithCacheLogger sets the logger for the cache
func WithCacheLogger(logger *zap.Logger) RedisTenantCacheOption {
	return func(c *RedisTenantCache) {
		c.logger = logger
	}
}

// NewRedisTenantCache creates a cache over an existing client. The caller
// keeps ownership of the client.
func NewRedisTenantCache(client *redis.Client, opts ...RedisTenantCacheOption) *RedisTenantCache {
	c := &RedisTenantCache{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a value from Redis
func (c *RedisTenantCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	return data, true, nil
}

// Set stores a value in Redis with the given TTL
func (c *RedisTenantCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in redis: %w", key, err)
	}
	return nil
}

// Invalidate deletes a value from Redis
func (c *RedisTenantCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s from redis: %w", key, err)
	}
	c.logger.Debug("Invalidated tenant cache entry", zap.String("key", key))
	return nil
}

// Ensure RedisTenantCache implements tenancy.Cache
var _ tenancy.Cache = (*RedisTenantCache)(nil)
