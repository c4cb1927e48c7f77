package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apptenancy "github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/application/tenancy"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/shared"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/logger"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/persistence"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

type resolverFixture struct {
	registry *apptenancy.TenantRegistry
	resolver *TenantResolver
	clock    *testClock
	metrics  *recordingMetrics
}

func newResolverFixture(t *testing.T, mutate ...func(*TenantResolverConfig)) *resolverFixture {
	t.Helper()
	clock := &testClock{now: testNow}
	registry := apptenancy.NewTenantRegistry(persistence.NewInMemoryTenantStore(),
		apptenancy.WithClock(clock.Now),
		apptenancy.WithLogger(zap.NewNop()),
	)
	metrics := &recordingMetrics{}
	cfg := DefaultTenantResolverConfig()
	cfg.Metrics = metrics
	for _, m := range mutate {
		m(&cfg)
	}
	return &resolverFixture{
		registry: registry,
		resolver: NewTenantResolver(registry, cfg),
		clock:    clock,
		metrics:  metrics,
	}
}

func (f *resolverFixture) create(t *testing.T, slug, plan string) *tenancy.Tenant {
	t.Helper()
	created, err := f.registry.CreateTenant(context.Background(), apptenancy.CreateTenantInput{
		Name:         slug + " Inc",
		Slug:         slug,
		ContactName:  "Ada",
		ContactEmail: "ada@" + slug + ".example.com",
		Plan:         plan,
		Industry:     "software",
		Size:         "11-50",
	})
	require.NoError(t, err)
	return created
}

type recordingMetrics struct {
	resolutions []string
	denials     []string
}

func (m *recordingMetrics) ObserveResolution(source, outcome string) {
	m.resolutions = append(m.resolutions, source+":"+outcome)
}

func (m *recordingMetrics) ObserveFeatureDenial(feature string, cause tenancy.DenialCause) {
	m.denials = append(m.denials, feature+":"+string(cause))
}

// stubRegistry answers every lookup with a fixed result
type stubRegistry struct {
	tenant *tenancy.Tenant
	check  *tenancy.FeatureCheck
	err    error
}

func (s stubRegistry) GetTenantByID(context.Context, string) (*tenancy.Tenant, error) {
	return s.tenant, s.err
}

func (s stubRegistry) GetTenantBySlug(context.Context, string) (*tenancy.Tenant, error) {
	return s.tenant, s.err
}

func (s stubRegistry) CheckFeature(context.Context, string, string) (*tenancy.FeatureCheck, error) {
	return s.check, s.err
}

func (s stubRegistry) Now() time.Time { return testNow }

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func okHandler(c *gin.Context, tc *TenantContext) error {
	c.JSON(http.StatusOK, gin.H{"tenantId": tc.TenantID})
	return nil
}

func TestTenantResolver_ExtractTenant(t *testing.T) {
	f := newResolverFixture(t, func(cfg *TenantResolverConfig) {
		cfg.SubdomainEnabled = true
		cfg.SessionLookup = func(c *gin.Context) string { return c.GetString(SessionTenantIDKey) }
	})

	tests := []struct {
		name    string
		host    string
		header  string
		query   string
		session string
		want    TenantRef
	}{
		{
			name:   "header wins over query",
			host:   "localhost",
			header: "t1",
			query:  "t2",
			want:   TenantRef{ID: "t1", Source: SourceHeader},
		},
		{
			name:   "header wins over subdomain",
			host:   "acme.hr.example.com",
			header: "t1",
			want:   TenantRef{ID: "t1", Source: SourceHeader},
		},
		{
			name:  "subdomain wins over query",
			host:  "acme.hr.example.com:8080",
			query: "t2",
			want:  TenantRef{Slug: "acme", Source: SourceSubdomain},
		},
		{
			name:  "query when no header or subdomain",
			host:  "localhost:8080",
			query: "t2",
			want:  TenantRef{ID: "t2", Source: SourceQuery},
		},
		{
			name:    "session last",
			host:    "127.0.0.1",
			session: "t3",
			want:    TenantRef{ID: "t3", Source: SourceSession},
		},
		{
			name:   "blank header is ignored",
			host:   "localhost",
			header: "   ",
			query:  "t2",
			want:   TenantRef{ID: "t2", Source: SourceQuery},
		},
		{
			name: "nothing",
			host: "localhost",
			want: TenantRef{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/test"
			if tt.query != "" {
				target += "?tenantId=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			req.Host = tt.host
			if tt.header != "" {
				req.Header.Set(DefaultTenantHeader, tt.header)
			}
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = req
			if tt.session != "" {
				c.Set(SessionTenantIDKey, tt.session)
			}

			assert.Equal(t, tt.want, f.resolver.ExtractTenant(c))
		})
	}
}

func TestTenantResolver_ExtractTenant_SubdomainDisabled(t *testing.T) {
	f := newResolverFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/test?tenantId=t2", nil)
	req.Host = "acme.hr.example.com"
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req

	assert.Equal(t, TenantRef{ID: "t2", Source: SourceQuery}, f.resolver.ExtractTenant(c))
}

func TestExtractSubdomain(t *testing.T) {
	tests := []struct {
		host       string
		baseDomain string
		want       string
	}{
		{"acme.hr.example.com", "", "acme"},
		{"acme.hr.example.com:8443", "", "acme"},
		{"ACME.hr.example.com", "", "acme"},
		{"acme.hr.example.com", "hr.example.com", "acme"},
		{"acme.eu.hr.example.com", "hr.example.com", "acme"},
		{"hr.example.com", "hr.example.com", ""},
		{"acme.other.com", "hr.example.com", ""},
		{"www.hr.example.com", "", ""},
		{"localhost", "", ""},
		{"localhost:8080", "", ""},
		{"192.168.1.10", "", ""},
		{"192.168.1.10:8080", "", ""},
		{"[::1]:8080", "", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.host+"|"+tt.baseDomain, func(t *testing.T) {
			assert.Equal(t, tt.want, extractSubdomain(tt.host, tt.baseDomain))
		})
	}
}

func TestTenantResolver_ValidateTenant(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	active := f.create(t, "active-co", "basic")
	suspended := f.create(t, "suspended-co", "basic")
	_, err := f.registry.SuspendTenant(ctx, suspended.ID, "non-payment")
	require.NoError(t, err)
	cancelled := f.create(t, "cancelled-co", "basic")
	_, err = f.registry.CancelTenant(ctx, cancelled.ID)
	require.NoError(t, err)

	tests := []struct {
		name       string
		ref        TenantRef
		wantValid  bool
		wantReason string
	}{
		{"empty reference", TenantRef{}, false, ReasonMissingTenantID},
		{"unknown id", TenantRef{ID: "does-not-exist"}, false, tenancy.ReasonTenantNotFound},
		{"active by id", TenantRef{ID: active.ID}, true, ""},
		{"active by slug", TenantRef{Slug: "active-co", Source: SourceSubdomain}, true, ""},
		{"unknown slug", TenantRef{Slug: "nobody", Source: SourceSubdomain}, false, tenancy.ReasonTenantNotFound},
		{"suspended", TenantRef{ID: suspended.ID}, false, "tenant suspended"},
		{"cancelled", TenantRef{ID: cancelled.ID}, false, "tenant cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.resolver.ValidateTenant(ctx, tt.ref)
			assert.Equal(t, tt.wantValid, res.Valid)
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.NoError(t, res.Err)
			if tt.wantValid {
				require.NotNil(t, res.Tenant)
			}
		})
	}

	t.Run("subscription expired", func(t *testing.T) {
		f.clock.now = testNow.AddDate(0, 0, 31)
		defer func() { f.clock.now = testNow }()

		res := f.resolver.ValidateTenantID(ctx, active.ID)
		assert.False(t, res.Valid)
		assert.Equal(t, "subscription expired", res.Reason)
	})

	t.Run("registry failure populates Err", func(t *testing.T) {
		resolver := NewTenantResolver(stubRegistry{err: shared.ErrTimeout}, DefaultTenantResolverConfig())

		res := resolver.ValidateTenantID(ctx, "t1")
		assert.False(t, res.Valid)
		assert.ErrorIs(t, res.Err, shared.ErrTimeout)
	})
}

func TestTenantResolver_WithTenantAuth(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	active := f.create(t, "acme", "basic")
	suspended := f.create(t, "dormant", "basic")
	_, err := f.registry.SuspendTenant(ctx, suspended.ID, "non-payment")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/ok", f.resolver.WithTenantAuth(okHandler))
	router.GET("/fail", f.resolver.WithTenantAuth(func(c *gin.Context, tc *TenantContext) error {
		return errors.New("payroll export failed")
	}))
	router.GET("/infra", f.resolver.WithTenantAuth(func(c *gin.Context, tc *TenantContext) error {
		return shared.WrapDomainError(shared.CodePersistenceFailure, "pq: relation does not exist", errors.New("driver"))
	}))
	router.GET("/panic", f.resolver.WithTenantAuth(func(c *gin.Context, tc *TenantContext) error {
		panic("nil map write")
	}))
	router.GET("/created", f.resolver.WithTenantAuth(func(c *gin.Context, tc *TenantContext) error {
		c.Status(http.StatusCreated)
		return nil
	}))

	serve := func(path, tenantID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if tenantID != "" {
			req.Header.Set(DefaultTenantHeader, tenantID)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("missing tenant is 401 with instruction", func(t *testing.T) {
		w := serve("/ok", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeTenantRequired, resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "x-tenant-id")
	})

	t.Run("unknown tenant is 403", func(t *testing.T) {
		w := serve("/ok", "nobody")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, tenancy.ReasonTenantNotFound, decodeResponse(t, w).Error.Message)
	})

	t.Run("suspended tenant is 403 with reason", func(t *testing.T) {
		w := serve("/ok", suspended.ID)
		assert.Equal(t, http.StatusForbidden, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeTenantInvalid, resp.Error.Code)
		assert.Equal(t, "tenant suspended", resp.Error.Message)
	})

	t.Run("valid tenant reaches handler", func(t *testing.T) {
		w := serve("/ok", active.ID)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"tenantId":"`+active.ID+`"}`, w.Body.String())
	})

	t.Run("handler status passes through", func(t *testing.T) {
		assert.Equal(t, http.StatusCreated, serve("/created", active.ID).Code)
	})

	t.Run("handler error is 500 with its message", func(t *testing.T) {
		w := serve("/fail", active.ID)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "payroll export failed", decodeResponse(t, w).Error.Message)
	})

	t.Run("persistence failure is 500 with safe message", func(t *testing.T) {
		w := serve("/infra", active.ID)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.SafeInternalMessage, resp.Error.Message)
		assert.NotContains(t, w.Body.String(), "pq:")
	})

	t.Run("panic is recovered as 500", func(t *testing.T) {
		w := serve("/panic", active.ID)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "nil map write", decodeResponse(t, w).Error.Message)
	})

	assert.Contains(t, f.metrics.resolutions, ":"+OutcomeMissing)
	assert.Contains(t, f.metrics.resolutions, "header:"+OutcomeInvalid)
	assert.Contains(t, f.metrics.resolutions, "header:"+OutcomeResolved)
}

func TestTenantResolver_WithTenantAuth_RegistryFailure(t *testing.T) {
	resolver := NewTenantResolver(stubRegistry{
		err: shared.WrapDomainError(shared.CodePersistenceFailure, "dial tcp 10.0.0.5:5432", errors.New("refused")),
	}, DefaultTenantResolverConfig())

	router := gin.New()
	router.GET("/ok", resolver.WithTenantAuth(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(DefaultTenantHeader, "t1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, dto.SafeInternalMessage, decodeResponse(t, w).Error.Message)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}

func TestTenantResolver_RequireTenant(t *testing.T) {
	f := newResolverFixture(t)
	active := f.create(t, "acme", "basic")

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(UserIDKey, "user-7")
		c.Set(UserRoleKey, "hr-admin")
		c.Next()
	})
	router.Use(f.resolver.RequireTenant())

	var fromGin, fromCtx *TenantContext
	var logTenantID string
	router.GET("/me", func(c *gin.Context) {
		fromGin, _ = GetTenantContext(c)
		fromCtx, _ = TenantFromContext(c.Request.Context())
		logTenantID = logger.GetTenantID(c.Request.Context())
		c.Status(http.StatusOK)
	})
	router.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	t.Run("binds context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me?tenantId="+active.ID, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, fromGin)
		assert.Same(t, fromGin, fromCtx)
		assert.Equal(t, active.ID, fromGin.TenantID)
		assert.Equal(t, "acme", fromGin.Tenant.Slug)
		assert.Equal(t, "user-7", fromGin.UserID)
		assert.Equal(t, "hr-admin", fromGin.UserRole)
		assert.Equal(t, active.ID, logTenantID)
	})

	t.Run("skip paths pass unbound", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing tenant aborts chain", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestTenantResolver_CheckTenantFeature(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	t.Run("free plan lacks ai-interview", func(t *testing.T) {
		free := f.create(t, "free-co", "free")

		check, err := f.resolver.CheckTenantFeature(ctx, free.ID, tenancy.FeatureAIInterview)
		require.NoError(t, err)
		assert.False(t, check.Available)
		assert.Equal(t, "plan does not support this feature", check.Reason)
		assert.Equal(t, tenancy.DenialPlan, check.Cause)
	})

	t.Run("missing tenant is unavailable", func(t *testing.T) {
		check, err := f.resolver.CheckTenantFeature(ctx, "nobody", tenancy.FeatureAttendance)
		require.NoError(t, err)
		assert.False(t, check.Available)
		assert.Equal(t, tenancy.ReasonTenantNotFound, check.Reason)
	})

	t.Run("exhausted quota is unavailable with current and max", func(t *testing.T) {
		pro := f.create(t, "pro-co", "professional")
		_, err := f.registry.UpdateTenantConfig(ctx, pro.ID, map[string]any{
			"features": map[string]any{"aiInterview": true},
		})
		require.NoError(t, err)

		check, err := f.resolver.CheckTenantFeature(ctx, pro.ID, tenancy.FeatureAIInterview)
		require.NoError(t, err)
		assert.True(t, check.Available)

		_, err = f.registry.UpdateUsage(ctx, pro.ID, "aiQueries", 1000)
		require.NoError(t, err)

		check, err = f.resolver.CheckTenantFeature(ctx, pro.ID, tenancy.FeatureAIInterview)
		require.NoError(t, err)
		assert.False(t, check.Available)
		assert.Equal(t, tenancy.DenialQuota, check.Cause)
		assert.Equal(t, int64(1000), check.Current)
		require.NotNil(t, check.Max)
		assert.Equal(t, tenancy.Limited(1000), *check.Max)
		assert.Contains(t, check.Reason, "quota exceeded")
	})

	t.Run("registry failure is returned", func(t *testing.T) {
		resolver := NewTenantResolver(stubRegistry{err: shared.ErrTimeout}, DefaultTenantResolverConfig())
		_, err := resolver.CheckTenantFeature(ctx, "t1", tenancy.FeatureAttendance)
		assert.ErrorIs(t, err, shared.ErrTimeout)
	})
}

func TestTenantResolver_WithFeatureCheck(t *testing.T) {
	f := newResolverFixture(t)
	free := f.create(t, "free-co", "free")

	router := gin.New()
	router.GET("/interviews", f.resolver.WithFeatureCheck(tenancy.FeatureAIInterview, okHandler))
	router.GET("/attendance", f.resolver.WithFeatureCheck(tenancy.FeatureAttendance, okHandler))

	serve := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(DefaultTenantHeader, free.ID)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("denied feature is 403 with reason", func(t *testing.T) {
		w := serve("/interviews")
		assert.Equal(t, http.StatusForbidden, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeFeatureUnavailable, resp.Error.Code)
		assert.Equal(t, tenancy.ReasonPlanUnsupported, resp.Error.Message)
		assert.Contains(t, f.metrics.denials, tenancy.FeatureAIInterview+":plan")
	})

	t.Run("entitled feature reaches handler", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, serve("/attendance").Code)
	})
}

func TestTenantResolver_RequireFeature(t *testing.T) {
	denied := &tenancy.FeatureCheck{
		Feature:  tenancy.FeatureAPIAccess,
		Reason:   "quota exceeded for maxAPICallsPerMonth (1000/1000)",
		Cause:    tenancy.DenialQuota,
		Resource: tenancy.ResourceAPICalls,
		Current:  1000,
	}
	tenant := &tenancy.Tenant{ID: "t1", Slug: "acme", Status: tenancy.StatusActive}
	resolver := NewTenantResolver(stubRegistry{tenant: tenant, check: denied}, DefaultTenantResolverConfig())

	router := gin.New()
	api := router.Group("/api", resolver.RequireTenant())
	api.GET("/export", resolver.RequireFeature(tenancy.FeatureAPIAccess), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/export", nil)
	req.Header.Set(DefaultTenantHeader, "t1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, denied.Reason, resp.Error.Message)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "quota", data["cause"])
	assert.EqualValues(t, 1000, data["current"])
}

func TestTenantResolver_HandlerFeatureError(t *testing.T) {
	f := newResolverFixture(t)
	active := f.create(t, "acme", "basic")

	router := gin.New()
	router.GET("/ai", f.resolver.WithTenantAuth(func(c *gin.Context, tc *TenantContext) error {
		return tenancy.FeatureCheck{Feature: tenancy.FeatureAIInterview, Reason: tenancy.ReasonPlanUnsupported, Cause: tenancy.DenialPlan}.Err()
	}))

	req := httptest.NewRequest(http.MethodGet, "/ai", nil)
	req.Header.Set(DefaultTenantHeader, active.ID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, tenancy.ReasonPlanUnsupported, decodeResponse(t, w).Error.Message)
}

func TestTenantResolver_CreateTenantContext(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()
	active := f.create(t, "acme", "basic")

	tc, err := f.resolver.CreateTenantContext(ctx, active.ID)
	require.NoError(t, err)
	require.NotNil(t, tc)
	assert.Equal(t, active.ID, tc.TenantID)

	tc, err = f.resolver.CreateTenantContext(ctx, "nobody")
	assert.NoError(t, err)
	assert.Nil(t, tc)

	resolver := NewTenantResolver(stubRegistry{err: shared.ErrTimeout}, DefaultTenantResolverConfig())
	tc, err = resolver.CreateTenantContext(ctx, active.ID)
	assert.ErrorIs(t, err, shared.ErrTimeout)
	assert.Nil(t, tc)
}
