package tenancy

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
	"go.uber.org/zap"
)

// nopCache is used when no cache is configured; every lookup misses
type nopCache struct{}

func (nopCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (nopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (nopCache) Invalidate(context.Context, string) error { return nil }

// fillGuard orders read-through fills against writes of the same tenant. A
// write bumps the tenant's generation and drops its entry; a fill only lands
// when the generation it started at is still current, so a row read before
// a write can never replace what the write invalidated.
type fillGuard struct {
	mu    sync.Mutex
	gens  map[string]uint64
	locks *keyedMutex
}

func newFillGuard() *fillGuard {
	return &fillGuard{gens: make(map[string]uint64), locks: newKeyedMutex()}
}

func (g *fillGuard) generation(id string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gens[id]
}

func (g *fillGuard) bump(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gens[id]++
}

// Cache failures degrade to store reads; they are logged and never returned.

func (r *TenantRegistry) cacheGet(ctx context.Context, kind, key string) ([]byte, bool) {
	data, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("Tenant cache read failed", zap.String("key", key), zap.Error(err))
		ok = false
	}
	r.metrics.ObserveCacheLookup(kind, ok)
	return data, ok
}

func (r *TenantRegistry) cacheSet(ctx context.Context, key string, data []byte) {
	if err := r.cache.Set(ctx, key, data, r.cacheTTL); err != nil {
		r.logger.Warn("Tenant cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *TenantRegistry) cacheInvalidate(ctx context.Context, key string) {
	if err := r.cache.Invalidate(ctx, key); err != nil {
		r.logger.Warn("Tenant cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *TenantRegistry) cachedTenant(ctx context.Context, key string) (*tenancy.Tenant, bool) {
	data, ok := r.cacheGet(ctx, "tenant", key)
	if !ok {
		return nil, false
	}
	var t tenancy.Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		r.cacheInvalidate(ctx, key)
		return nil, false
	}
	return &t, true
}

// fillTenant caches t as read from the store at generation gen. It is
// dropped when a write for the tenant landed since.
func (r *TenantRegistry) fillTenant(ctx context.Context, t *tenancy.Tenant, gen uint64) {
	data, err := json.Marshal(t)
	if err != nil {
		r.logger.Warn("Failed to encode tenant for cache", zap.String("tenant_id", t.ID), zap.Error(err))
		return
	}
	unlock := r.fills.locks.Lock(t.ID)
	defer unlock()
	if r.fills.generation(t.ID) != gen {
		return
	}
	r.cacheSet(ctx, tenancy.TenantCacheKey(t.ID), data)
}

// invalidateTenant drops the cached tenant after a write. The next read
// loads it from the store.
func (r *TenantRegistry) invalidateTenant(ctx context.Context, id string) {
	unlock := r.fills.locks.Lock(id)
	defer unlock()
	r.fills.bump(id)
	r.cacheInvalidate(ctx, tenancy.TenantCacheKey(id))
}

func (r *TenantRegistry) cacheSlug(ctx context.Context, t *tenancy.Tenant) {
	r.cacheSet(ctx, tenancy.SlugCacheKey(t.Slug), []byte(t.ID))
}

func (r *TenantRegistry) cacheConfig(ctx context.Context, cfg *tenancy.TenantConfig) {
	data, err := json.Marshal(cfg)
	if err != nil {
		r.logger.Warn("Failed to encode tenant config for cache", zap.String("tenant_id", cfg.TenantID), zap.Error(err))
		return
	}
	r.cacheSet(ctx, tenancy.ConfigCacheKey(cfg.TenantID), data)
}
