package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/logger"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/metrics"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/interfaces/http/dto"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/interfaces/http/handler"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// DefaultMetricsPath is where Prometheus metrics are served
const DefaultMetricsPath = "/metrics"

// EngineConfig carries everything NewEngine wires together
type EngineConfig struct {
	Logger         *zap.Logger
	Tenants        handler.TenantService
	Resolver       *middleware.TenantResolver
	Health         *handler.HealthHandler
	Metrics        *metrics.TenancyMetrics // optional
	MetricsPath    string
	Sessions       middleware.SessionVerifier // optional
	Tracing        middleware.TracingConfig
	CORS           middleware.CORSConfig
	MaxBodySize    int64
	TrustedProxies []string
}

// NewEngine builds the gin engine with the middleware stack in order:
// request id, access log, recovery, tracing, metrics, CORS, body limit and
// session. Tenant resolution is applied per route group.
func NewEngine(cfg EngineConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(cfg.Tracing))
	engine.Use(middleware.SpanAttributes())
	if cfg.Metrics != nil {
		engine.Use(cfg.Metrics.GinMiddleware())
	}
	engine.Use(middleware.CORSWithConfig(cfg.CORS))
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}
	if cfg.Sessions != nil {
		engine.Use(middleware.SessionAuth(cfg.Sessions, log))
	}

	health := cfg.Health
	if health == nil {
		health = handler.NewHealthHandler(nil)
	}
	engine.GET("/health", health.Health)

	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = DefaultMetricsPath
		}
		engine.GET(path, gin.WrapH(cfg.Metrics.Handler()))
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.ErrCodeNotFound, "route not found"))
	})

	tenants := handler.NewTenantHandler(cfg.Tenants)
	me := handler.NewMeHandler(cfg.Tenants, cfg.Resolver)

	NewRouter(engine).
		Register(TenantRoutes(tenants)).
		Register(TenantSlugRoutes(tenants)).
		Register(MeRoutes(me, cfg.Resolver)).
		Setup()

	return engine
}
