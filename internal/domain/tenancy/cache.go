package tenancy

import (
	"context"
	"time"
)

// Cache is a byte-oriented read cache placed in front of the TenantStore.
// Get reports a miss as (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// TenantCacheKey is the cache key of a tenant record
func TenantCacheKey(id string) string {
	return "tenant:id:" + id
}

// SlugCacheKey is the cache key of a slug to id mapping
func SlugCacheKey(slug string) string {
	return "tenant:slug:" + slug
}

// ConfigCacheKey is the cache key of a tenant config
func ConfigCacheKey(tenantID string) string {
	return "tenant:config:" + tenantID
}
