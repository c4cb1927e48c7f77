package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// DefaultHealthCheckTimeout bounds each dependency ping
const DefaultHealthCheckTimeout = 2 * time.Second

// PingFunc checks one dependency
type PingFunc func(ctx context.Context) error

// HealthHandler reports process and dependency health
type HealthHandler struct {
	checks  map[string]PingFunc
	started time.Time
	timeout time.Duration
	now     func() time.Time
}

// NewHealthHandler creates a health handler over the named dependency checks
func NewHealthHandler(checks map[string]PingFunc) *HealthHandler {
	if checks == nil {
		checks = map[string]PingFunc{}
	}
	return &HealthHandler{
		checks:  checks,
		started: time.Now(),
		timeout: DefaultHealthCheckTimeout,
		now:     time.Now,
	}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status       string            `json:"status"`
	Time         string            `json:"time"`
	Uptime       string            `json:"uptime"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Health handles GET /health. Any failing dependency makes it 503.
func (h *HealthHandler) Health(c *gin.Context) {
	reqLog := logger.GetGinLogger(c)

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		err := h.checks[name](ctx)
		cancel()
		if err != nil {
			reqLog.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
			deps[name] = "error"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	resp := HealthResponse{
		Status:       "healthy",
		Time:         h.now().Format(time.RFC3339),
		Uptime:       h.now().Sub(h.started).Truncate(time.Second).String(),
		Dependencies: deps,
	}
	if status != http.StatusOK {
		resp.Status = "unhealthy"
	}
	c.JSON(status, resp)
}
