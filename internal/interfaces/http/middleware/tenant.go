package middleware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/shared"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/logger"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Keys used to store tenant and user information in gin.Context
const (
	TenantContextKey   = "tenant_context"
	TenantSourceKey    = "tenant_source"
	SessionTenantIDKey = "session_tenant_id"
	UserIDKey          = "user_id"
	UserRoleKey        = "user_role"
)

// Resolver defaults
const (
	DefaultTenantHeader     = "X-Tenant-ID"
	DefaultTenantQueryParam = "tenantId"
)

// ReasonMissingTenantID is the validation reason for an empty reference
const ReasonMissingTenantID = "missing tenant id"

// TenantSource names where a tenant reference was found
type TenantSource string

const (
	SourceNone      TenantSource = ""
	SourceHeader    TenantSource = "header"
	SourceSubdomain TenantSource = "subdomain"
	SourceQuery     TenantSource = "query"
	SourceSession   TenantSource = "session"
)

// TenantRef is an unvalidated tenant reference. Subdomain refs carry a slug,
// all other sources carry an id.
type TenantRef struct {
	ID     string       `json:"id,omitempty"`
	Slug   string       `json:"slug,omitempty"`
	Source TenantSource `json:"source,omitempty"`
}

// IsZero reports whether no source yielded a value
func (r TenantRef) IsZero() bool {
	return r.ID == "" && r.Slug == ""
}

func (r TenantRef) String() string {
	if r.Slug != "" {
		return "slug:" + r.Slug
	}
	return r.ID
}

// TenantContext is the per-request tenant binding handed to handlers
type TenantContext struct {
	TenantID string          `json:"tenantId"`
	Tenant   *tenancy.Tenant `json:"tenant"`
	UserID   string          `json:"userId,omitempty"`
	UserRole string          `json:"userRole,omitempty"`
}

type tenantContextKey struct{}

// WithTenantContext stores tc in ctx
func WithTenantContext(ctx context.Context, tc *TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tc)
}

// TenantFromContext returns the TenantContext bound to ctx by the resolver
func TenantFromContext(ctx context.Context) (*TenantContext, bool) {
	tc, ok := ctx.Value(tenantContextKey{}).(*TenantContext)
	return tc, ok && tc != nil
}

// GetTenantContext retrieves the TenantContext from gin.Context
func GetTenantContext(c *gin.Context) (*TenantContext, bool) {
	if v, exists := c.Get(TenantContextKey); exists {
		if tc, ok := v.(*TenantContext); ok && tc != nil {
			return tc, true
		}
	}
	return nil, false
}

// GetTenantID retrieves the resolved tenant ID from gin.Context
func GetTenantID(c *gin.Context) string {
	return c.GetString(logger.GinTenantIDKey)
}

// TenantRegistry is the part of the tenant registry the resolver needs
type TenantRegistry interface {
	GetTenantByID(ctx context.Context, id string) (*tenancy.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*tenancy.Tenant, error)
	CheckFeature(ctx context.Context, id, feature string) (*tenancy.FeatureCheck, error)
	Now() time.Time
}

// ResolverMetrics receives resolution and feature gate outcomes
type ResolverMetrics interface {
	ObserveResolution(source, outcome string)
	ObserveFeatureDenial(feature string, cause tenancy.DenialCause)
}

type noopResolverMetrics struct{}

func (noopResolverMetrics) ObserveResolution(string, string) {}

func (noopResolverMetrics) ObserveFeatureDenial(string, tenancy.DenialCause) {}

// Resolution outcomes reported to ResolverMetrics
const (
	OutcomeResolved = "resolved"
	OutcomeMissing  = "missing"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// TenantResolverConfig holds configuration for the tenant resolver
type TenantResolverConfig struct {
	// HeaderName is the header carrying an explicit tenant id
	HeaderName string
	// QueryParam is the query parameter carrying a tenant id
	QueryParam string
	// SubdomainEnabled enables slug extraction from the Host header
	SubdomainEnabled bool
	// BaseDomain restricts subdomain extraction to hosts under it (e.g. "hr.example.com")
	BaseDomain string
	// SkipPaths are paths RequireTenant lets through unbound
	SkipPaths []string
	// SessionLookup returns the tenant id of an authenticated session, if any
	SessionLookup func(c *gin.Context) string
	Logger        *zap.Logger
	Metrics       ResolverMetrics
}

// DefaultTenantResolverConfig returns default resolver configuration
func DefaultTenantResolverConfig() TenantResolverConfig {
	return TenantResolverConfig{
		HeaderName: DefaultTenantHeader,
		QueryParam: DefaultTenantQueryParam,
		SkipPaths:  []string{"/health", "/metrics"},
	}
}

// TenantResolver binds one TenantContext per request and gates handlers on it
type TenantResolver struct {
	registry TenantRegistry
	cfg      TenantResolverConfig
	logger   *zap.Logger
	metrics  ResolverMetrics
}

// NewTenantResolver creates a resolver backed by registry
func NewTenantResolver(registry TenantRegistry, cfg TenantResolverConfig) *TenantResolver {
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultTenantHeader
	}
	if cfg.QueryParam == "" {
		cfg.QueryParam = DefaultTenantQueryParam
	}
	r := &TenantResolver{
		registry: registry,
		cfg:      cfg,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.metrics == nil {
		r.metrics = noopResolverMetrics{}
	}
	return r
}

// ExtractTenant finds the tenant reference of a request.
// Order: header > subdomain > query > session. The first source with a value wins.
func (r *TenantResolver) ExtractTenant(c *gin.Context) TenantRef {
	if id := strings.TrimSpace(c.GetHeader(r.cfg.HeaderName)); id != "" {
		return TenantRef{ID: id, Source: SourceHeader}
	}
	if r.cfg.SubdomainEnabled {
		if slug := extractSubdomain(c.Request.Host, r.cfg.BaseDomain); slug != "" {
			return TenantRef{Slug: slug, Source: SourceSubdomain}
		}
	}
	if id := strings.TrimSpace(c.Query(r.cfg.QueryParam)); id != "" {
		return TenantRef{ID: id, Source: SourceQuery}
	}
	if r.cfg.SessionLookup != nil {
		if id := r.cfg.SessionLookup(c); id != "" {
			return TenantRef{ID: id, Source: SourceSession}
		}
	}
	return TenantRef{}
}

// extractSubdomain returns the leftmost label of host.
// e.g. "acme.hr.example.com:8080" with baseDomain "hr.example.com" returns "acme".
// IP addresses, dotless hosts and "www" yield "".
func extractSubdomain(host, baseDomain string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}

	if baseDomain != "" {
		suffix := "." + strings.ToLower(strings.Trim(baseDomain, "."))
		if !strings.HasSuffix(host, suffix) {
			return ""
		}
		host = strings.TrimSuffix(host, suffix)
	} else if !strings.Contains(host, ".") {
		return ""
	}

	label, _, _ := strings.Cut(host, ".")
	if label == "" || label == "www" {
		return ""
	}
	return label
}

// ValidationResult is the outcome of validating a tenant reference.
// Err is set only when the registry could not answer.
type ValidationResult struct {
	Valid  bool
	Tenant *tenancy.Tenant
	Reason string
	Err    error
}

// ValidateTenant looks ref up and applies the usability rules. Subdomain
// refs resolve through the slug index.
func (r *TenantResolver) ValidateTenant(ctx context.Context, ref TenantRef) ValidationResult {
	if ref.IsZero() {
		return ValidationResult{Reason: ReasonMissingTenantID}
	}

	var (
		t   *tenancy.Tenant
		err error
	)
	if ref.ID != "" {
		t, err = r.registry.GetTenantByID(ctx, ref.ID)
	} else {
		t, err = r.registry.GetTenantBySlug(ctx, ref.Slug)
	}
	if err != nil {
		return ValidationResult{Reason: err.Error(), Err: err}
	}
	if t == nil {
		return ValidationResult{Reason: tenancy.ReasonTenantNotFound}
	}
	if ok, reason := t.Usability(r.registry.Now()); !ok {
		return ValidationResult{Tenant: t, Reason: reason}
	}
	return ValidationResult{Valid: true, Tenant: t}
}

// ValidateTenantID validates a tenant by id
func (r *TenantResolver) ValidateTenantID(ctx context.Context, id string) ValidationResult {
	return r.ValidateTenant(ctx, TenantRef{ID: id})
}

// CreateTenantContext validates id outside a request. It returns a nil
// context for an invalid tenant and an error only when the registry failed.
func (r *TenantResolver) CreateTenantContext(ctx context.Context, id string) (*TenantContext, error) {
	res := r.ValidateTenantID(ctx, id)
	if res.Err != nil {
		return nil, res.Err
	}
	if !res.Valid {
		return nil, nil
	}
	return &TenantContext{TenantID: res.Tenant.ID, Tenant: res.Tenant}, nil
}

// FeatureCheckResult is the outcome of a feature gate
type FeatureCheckResult = tenancy.FeatureCheck

// CheckTenantFeature runs the feature and quota gates for a tenant.
// A missing tenant is reported as unavailable, not as an error.
func (r *TenantResolver) CheckTenantFeature(ctx context.Context, id, feature string) (FeatureCheckResult, error) {
	check, err := r.registry.CheckFeature(ctx, id, feature)
	if err != nil {
		return FeatureCheckResult{Feature: feature}, err
	}
	return *check, nil
}

// TenantHandlerFunc is a handler that runs with a validated tenant
type TenantHandlerFunc func(c *gin.Context, tc *TenantContext) error

// WithTenantAuth wraps handler with tenant resolution. Requests without a
// tenant reference get 401, invalid tenants get 403 with the reason, and
// handler errors or panics get 500. Nothing escapes the wrapper. A binding
// made by RequireTenant earlier in the chain is reused.
func (r *TenantResolver) WithTenantAuth(handler TenantHandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, ok := r.bound(c)
		if !ok {
			return
		}
		r.invoke(c, tc, handler)
	}
}

// WithFeatureCheck wraps handler with tenant resolution and the feature gate.
// A denied feature gets 403 with the reason.
func (r *TenantResolver) WithFeatureCheck(feature string, handler TenantHandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, ok := r.bound(c)
		if !ok {
			return
		}
		if !r.gateFeature(c, tc, feature) {
			return
		}
		r.invoke(c, tc, handler)
	}
}

// RequireTenant is the group middleware form of WithTenantAuth
func (r *TenantResolver) RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range r.cfg.SkipPaths {
			if path == skipPath || strings.HasPrefix(path, skipPath+"/") {
				c.Next()
				return
			}
		}
		if _, ok := r.bind(c); !ok {
			return
		}
		c.Next()
	}
}

// RequireFeature is the group middleware form of WithFeatureCheck
func (r *TenantResolver) RequireFeature(feature string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, ok := r.bound(c)
		if !ok {
			return
		}
		if !r.gateFeature(c, tc, feature) {
			return
		}
		c.Next()
	}
}

// bound returns the binding made earlier in the chain, or binds now
func (r *TenantResolver) bound(c *gin.Context) (*TenantContext, bool) {
	if tc, ok := GetTenantContext(c); ok {
		return tc, true
	}
	return r.bind(c)
}

// bind resolves and validates the request's tenant and stores the
// TenantContext. On failure it writes the response and returns false.
func (r *TenantResolver) bind(c *gin.Context) (*TenantContext, bool) {
	ctx := c.Request.Context()
	ref := r.ExtractTenant(c)
	if ref.IsZero() {
		r.metrics.ObserveResolution(string(SourceNone), OutcomeMissing)
		logger.Ctx(ctx, r.logger).Warn("Tenant not resolved",
			zap.String("path", c.Request.URL.Path),
		)
		abortWithError(c, http.StatusUnauthorized, dto.ErrCodeTenantRequired,
			fmt.Sprintf("tenant id required: provide the %s header", strings.ToLower(r.cfg.HeaderName)))
		return nil, false
	}

	res := r.ValidateTenant(ctx, ref)
	if res.Err != nil {
		r.metrics.ObserveResolution(string(ref.Source), OutcomeError)
		logger.Ctx(ctx, r.logger).Error("Tenant lookup failed",
			zap.String("source", string(ref.Source)),
			zap.String("tenant", ref.String()),
			zap.Error(res.Err),
		)
		info := dto.ErrorInfoFromDomain(res.Err)
		abortWithError(c, http.StatusInternalServerError, info.Code, info.Message)
		return nil, false
	}
	if !res.Valid {
		r.metrics.ObserveResolution(string(ref.Source), OutcomeInvalid)
		logger.Ctx(ctx, r.logger).Warn("Tenant rejected",
			zap.String("source", string(ref.Source)),
			zap.String("tenant", ref.String()),
			zap.String("reason", res.Reason),
		)
		abortWithError(c, http.StatusForbidden, dto.ErrCodeTenantInvalid, res.Reason)
		return nil, false
	}
	r.metrics.ObserveResolution(string(ref.Source), OutcomeResolved)

	tc := &TenantContext{
		TenantID: res.Tenant.ID,
		Tenant:   res.Tenant,
		UserID:   c.GetString(UserIDKey),
		UserRole: c.GetString(UserRoleKey),
	}
	c.Set(TenantContextKey, tc)
	c.Set(TenantSourceKey, string(ref.Source))
	c.Set(logger.GinTenantIDKey, tc.TenantID)

	ctx = WithTenantContext(ctx, tc)
	ctx = logger.WithTenantID(ctx, tc.TenantID)
	c.Request = c.Request.WithContext(ctx)
	return tc, true
}

// gateFeature writes a 403 and returns false when feature is denied
func (r *TenantResolver) gateFeature(c *gin.Context, tc *TenantContext, feature string) bool {
	ctx := c.Request.Context()
	check, err := r.CheckTenantFeature(ctx, tc.TenantID, feature)
	if err != nil {
		logger.Ctx(ctx, r.logger).Error("Feature check failed",
			zap.String("feature", feature),
			zap.Error(err),
		)
		info := dto.ErrorInfoFromDomain(err)
		abortWithError(c, http.StatusInternalServerError, info.Code, info.Message)
		return false
	}
	if check.Available {
		return true
	}

	r.metrics.ObserveFeatureDenial(feature, check.Cause)
	logger.Ctx(ctx, r.logger).Warn("Feature denied",
		zap.String("feature", feature),
		zap.String("cause", string(check.Cause)),
		zap.String("reason", check.Reason),
	)
	c.AbortWithStatusJSON(http.StatusForbidden, dto.Response{
		Success: false,
		Data:    check,
		Error:   &dto.ErrorInfo{Code: dto.ErrCodeFeatureUnavailable, Message: check.Reason},
	})
	return false
}

// invoke runs handler and converts its error or panic into a response
func (r *TenantResolver) invoke(c *gin.Context, tc *TenantContext, handler TenantHandlerFunc) {
	defer func() {
		if rec := recover(); rec != nil {
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			logger.Ctx(c.Request.Context(), r.logger).Error("Tenant handler panicked",
				zap.Any("panic", rec),
				zap.Stack("stacktrace"),
			)
			r.handlerError(c, err)
		}
	}()

	if err := handler(c, tc); err != nil {
		logger.Ctx(c.Request.Context(), r.logger).Error("Tenant handler failed", zap.Error(err))
		r.handlerError(c, err)
	}
}

// handlerError answers 500 with the error's message. Infrastructure
// failures get a safe message and feature denials keep their 403.
func (r *TenantResolver) handlerError(c *gin.Context, err error) {
	_ = c.Error(err)
	if c.Writer.Written() {
		c.Abort()
		return
	}

	var unavailable *tenancy.FeatureUnavailableError
	switch {
	case errors.As(err, &unavailable):
		abortWithError(c, http.StatusForbidden, dto.ErrCodeFeatureUnavailable, unavailable.Message)
	case shared.IsInfrastructure(err):
		info := dto.ErrorInfoFromDomain(err)
		abortWithError(c, http.StatusInternalServerError, info.Code, info.Message)
	default:
		abortWithError(c, http.StatusInternalServerError, dto.ErrCodeInternal, err.Error())
	}
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(code, message))
}
