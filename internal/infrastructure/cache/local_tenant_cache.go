package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
)

// LocalTenantCache is an in-process tenancy.Cache backed by ristretto.
// Entries are weighed by their encoded size.
type LocalTenantCache struct {
	c *ristretto.Cache[string, []byte]
}

// NewLocalTenantCache creates a cache holding at most maxCostBytes of values
func NewLocalTenantCache(maxCostBytes int64) (*LocalTenantCache, error) {
	if maxCostBytes <= 0 {
		return nil, fmt.Errorf("cache max cost must be positive, got %d", maxCostBytes)
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(maxCostBytes/100*10, 1000), // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}
	return &LocalTenantCache{c: c}, nil
}

// Get retrieves a value from the cache
func (c *LocalTenantCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value with the given TTL. The write is visible to the next Get.
func (c *LocalTenantCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	c.c.Wait()
	return nil
}

// Invalidate removes a value from the cache
func (c *LocalTenantCache) Invalidate(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close shuts down the cache and releases resources
func (c *LocalTenantCache) Close() {
	c.c.Close()
}

// Ensure LocalTenantCache implements tenancy.Cache
var _ tenancy.Cache = (*LocalTenantCache)(nil)
