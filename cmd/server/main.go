package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	apptenancy "github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/application/tenancy"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/auth"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/cache"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/config"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/event"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/logger"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/metrics"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/persistence"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/telemetry"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/interfaces/http/handler"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/interfaces/http/middleware"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/interfaces/http/router"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting tenant service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	checks := map[string]handler.PingFunc{}

	// Tenant store
	var store tenancy.TenantStore
	if cfg.Tenancy.Store == "memory" {
		log.Warn("Using in-memory tenant store, tenants are lost on restart")
		store = persistence.NewInMemoryTenantStore()
	} else {
		db, err := persistence.NewDatabase(&cfg.Database, log, cfg.Log.Level)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Error("Error closing database", zap.Error(err))
			}
		}()
		if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
			Enabled:    cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			LogFullSQL: cfg.Telemetry.DBLogFullSQL,
		}, log); err != nil {
			log.Fatal("Failed to register database tracing", zap.Error(err))
		}
		store = persistence.NewGormTenantStore(db.DB)
		checks["database"] = db.Ping
		log.Info("Database connected successfully")
	}

	// Tenant cache
	tenantCache, err := cache.NewTenantCacheFactory(cfg.Tenancy, cfg.Redis,
		cache.WithLogger(log),
		cache.WithMemoryFallback(cfg.App.Env != "production"),
	).Create()
	if err != nil {
		log.Fatal("Failed to create tenant cache", zap.Error(err))
	}
	defer func() {
		if err := tenantCache.Close(); err != nil {
			log.Error("Error closing tenant cache", zap.Error(err))
		}
	}()
	if tenantCache.Tiered != nil {
		if err := tenantCache.Tiered.StartInvalidationSubscription(ctx); err != nil {
			log.Fatal("Failed to subscribe to cache invalidations", zap.Error(err))
		}
	}
	if client := tenantCache.Redis; client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	// Lifecycle events
	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(event.LogHandler(log))
	publishers := event.MultiPublisher{bus}
	if cfg.NATS.Enabled {
		nc, err := event.ConnectNATS(ctx, cfg.NATS.URL, cfg.NATS.Stream, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer func() {
			if err := nc.Close(); err != nil {
				log.Error("Error closing NATS connection", zap.Error(err))
			}
		}()
		publishers = append(publishers, nc)
	}

	registryOpts := []apptenancy.Option{
		apptenancy.WithCache(tenantCache, cfg.Tenancy.CacheTTL),
		apptenancy.WithEventPublisher(publishers),
		apptenancy.WithLogger(log),
		apptenancy.WithStoreTimeout(cfg.Tenancy.StoreTimeout),
		apptenancy.WithTrialDays(cfg.Tenancy.TrialDays),
	}
	resolverCfg := middleware.DefaultTenantResolverConfig()
	resolverCfg.HeaderName = cfg.Tenancy.HeaderName
	resolverCfg.QueryParam = cfg.Tenancy.QueryParam
	resolverCfg.SubdomainEnabled = cfg.Tenancy.SubdomainEnabled
	resolverCfg.BaseDomain = cfg.Tenancy.BaseDomain
	resolverCfg.Logger = log

	var tenancyMetrics *metrics.TenancyMetrics
	if cfg.Metrics.Enabled {
		tenancyMetrics = metrics.New(metrics.Config{Namespace: cfg.Metrics.Namespace, RuntimeCollectors: true})
		registryOpts = append(registryOpts, apptenancy.WithMetrics(tenancyMetrics))
		resolverCfg.Metrics = tenancyMetrics
		resolverCfg.SkipPaths = append(resolverCfg.SkipPaths, cfg.Metrics.Path)
	}

	registry := apptenancy.NewTenantRegistry(store, registryOpts...)

	var sessions middleware.SessionVerifier
	if svc := auth.NewSessionService(cfg.JWT); svc.Enabled() {
		sessions = svc
		resolverCfg.SessionLookup = middleware.SessionTenantLookup
		log.Info("Session tenant lookup enabled", zap.String("issuer", cfg.JWT.Issuer))
	}
	resolver := middleware.NewTenantResolver(registry, resolverCfg)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSOrigins
	if cfg.Tenancy.HeaderName != middleware.DefaultTenantHeader {
		cors.AllowHeaders = append(cors.AllowHeaders, cfg.Tenancy.HeaderName)
	}

	engine := router.NewEngine(router.EngineConfig{
		Logger:      log,
		Tenants:     registry,
		Resolver:    resolver,
		Health:      handler.NewHealthHandler(checks),
		Metrics:     tenancyMetrics,
		MetricsPath: cfg.Metrics.Path,
		Sessions:    sessions,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     tp.IsEnabled(),
		},
		CORS:           cors,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serverErr:
		log.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}
