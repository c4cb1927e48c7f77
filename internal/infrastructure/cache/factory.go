package cache

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Cache backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendTiered = "tiered"
)

// TenantCacheFactory builds the tenant cache selected by configuration
type TenantCacheFactory struct {
	tenancyConfig       config.TenancyConfig
	redisConfig         config.RedisConfig
	logger              *zap.Logger
	allowMemoryFallback bool
}

// TenantCacheFactoryOption is a functional option for configuring the factory
type TenantCacheFactoryOption func(*TenantCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) TenantCacheFactoryOption {
	return func(f *TenantCacheFactory) {
		f.logger = logger
	}
}

// WithMemoryFallback controls whether an unreachable Redis degrades to the
// in-process cache. Default is true.
func WithMemoryFallback(allow bool) TenantCacheFactoryOption {
	return func(f *TenantCacheFactory) {
		f.allowMemoryFallback = allow
	}
}

// NewTenantCacheFactory creates a new factory
func NewTenantCacheFactory(tenancyCfg config.TenancyConfig, redisCfg config.RedisConfig, opts ...TenantCacheFactoryOption) *TenantCacheFactory {
	f := &TenantCacheFactory{
		tenancyConfig:       tenancyCfg,
		redisConfig:         redisCfg,
		logger:              zap.NewNop(),
		allowMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// TenantCache is the built cache plus the resources the caller must release
type TenantCache struct {
	tenancy.Cache
	// Tiered is set for the tiered backend so the caller can start its
	// invalidation subscription
	Tiered *TieredTenantCache
	// Redis is the shared client of the redis and tiered backends
	Redis   *redis.Client
	closers []func() error
}

// Close releases the Redis client and the local cache
func (c *TenantCache) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Create builds the configured backend
func (f *TenantCacheFactory) Create() (*TenantCache, error) {
	backend := f.tenancyConfig.CacheBackend
	if backend == BackendMemory {
		return f.createMemory()
	}
	if backend != BackendRedis && backend != BackendTiered {
		return nil, fmt.Errorf("unknown tenant cache backend %q", backend)
	}

	client, err := NewRedisClient(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		if !f.allowMemoryFallback {
			return nil, fmt.Errorf("redis required for tenant cache but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-process tenant cache. "+
			"Instances will not share tenant cache entries.",
			zap.Error(err))
		return f.createMemory()
	}

	if backend == BackendRedis {
		f.logger.Info("Using Redis tenant cache")
		return &TenantCache{
			Cache:   NewRedisTenantCache(client, WithCacheLogger(f.logger)),
			Redis:   client,
			closers: []func() error{client.Close},
		}, nil
	}
	return f.createTiered(client)
}

func (f *TenantCacheFactory) createMemory() (*TenantCache, error) {
	local, err := NewLocalTenantCache(f.tenancyConfig.CacheMaxCost)
	if err != nil {
		return nil, err
	}
	f.logger.Info("Using in-process tenant cache", zap.Int64("max_cost_bytes", f.tenancyConfig.CacheMaxCost))
	return &TenantCache{
		Cache:   local,
		closers: []func() error{func() error { local.Close(); return nil }},
	}, nil
}

func (f *TenantCacheFactory) createTiered(client *redis.Client) (*TenantCache, error) {
	local, err := NewLocalTenantCache(f.tenancyConfig.CacheMaxCost)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	invalidator := NewRedisCacheInvalidator(client, WithInvalidatorLogger(f.logger))
	tiered := NewTieredTenantCache(local,
		NewRedisTenantCache(client, WithCacheLogger(f.logger)),
		invalidator,
		WithL1TTL(f.tenancyConfig.CacheL1TTL),
		WithTieredLogger(f.logger))

	f.logger.Info("Using tiered tenant cache", zap.Duration("l1_ttl", f.tenancyConfig.CacheL1TTL))
	return &TenantCache{
		Cache:  tiered,
		Tiered: tiered,
		Redis:  client,
		closers: []func() error{
			client.Close,
			func() error { local.Close(); return nil },
			invalidator.Close,
		},
	}, nil
}
