package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	apptenancy "github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/application/tenancy"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/persistence"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/interfaces/http/dto"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type handlerFixture struct {
	registry *apptenancy.TenantRegistry
	resolver *middleware.TenantResolver
	engine   *gin.Engine
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	registry := apptenancy.NewTenantRegistry(persistence.NewInMemoryTenantStore(),
		apptenancy.WithClock(func() time.Time { return testNow }),
		apptenancy.WithLogger(zap.NewNop()),
	)
	resolver := middleware.NewTenantResolver(registry, middleware.DefaultTenantResolverConfig())

	tenants := NewTenantHandler(registry)
	me := NewMeHandler(registry, resolver)

	engine := gin.New()
	api := engine.Group("/api/v1")
	api.POST("/tenants", tenants.Create)
	api.GET("/tenants/:id", tenants.GetByID)
	api.PATCH("/tenants/:id", tenants.Update)
	api.GET("/tenant-slugs/:slug", tenants.GetBySlug)
	api.GET("/tenants/:id/active", tenants.IsActive)
	api.GET("/tenants/:id/config", tenants.GetConfig)
	api.PATCH("/tenants/:id/config", tenants.UpdateConfig)
	api.PUT("/tenants/:id/plan", tenants.ChangePlan)
	api.POST("/tenants/:id/suspend", tenants.Suspend)
	api.POST("/tenants/:id/reactivate", tenants.Reactivate)
	api.POST("/tenants/:id/cancel", tenants.Cancel)
	api.GET("/tenants/:id/stats", tenants.Stats)
	api.GET("/tenants/:id/quotas/:resource", tenants.CheckQuota)
	api.POST("/tenants/:id/usage", tenants.IncrementUsage)
	api.GET("/tenants/:id/features", tenants.Features)
	api.GET("/tenants/:id/features/:feature", tenants.CheckFeature)

	api.GET("/me", resolver.WithTenantAuth(me.Me))
	api.GET("/me/features/:feature", resolver.WithTenantAuth(me.Feature))
	api.GET("/me/usage/:resource", resolver.WithTenantAuth(me.Usage))
	api.POST("/me/ai-interviews", resolver.WithFeatureCheck(tenancy.FeatureAIInterview,
		me.ConsumeFeature(tenancy.FeatureAIInterview)))

	return &handlerFixture{registry: registry, resolver: resolver, engine: engine}
}

func (f *handlerFixture) create(t *testing.T, slug, plan string) *tenancy.Tenant {
	t.Helper()
	created, err := f.registry.CreateTenant(context.Background(), apptenancy.CreateTenantInput{
		Name:         slug + " Inc",
		Slug:         slug,
		ContactName:  "Grace",
		ContactEmail: "grace@" + slug + ".example.com",
		Plan:         plan,
		Industry:     "retail",
		Size:         "51-200",
	})
	require.NoError(t, err)
	return created
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

// envelope is dto.Response with Data left raw for typed decoding
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *dto.ErrorInfo  `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}
