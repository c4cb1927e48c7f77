package router

import (
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/interfaces/http/handler"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/interfaces/http/middleware"
)

// TenantRoutes is the tenant administration API. It carries no tenant
// binding of its own; access control belongs in front of it.
func TenantRoutes(h *handler.TenantHandler) *DomainGroup {
	return NewDomainGroup("tenants", "/tenants").
		POST("", h.Create).
		GET("/:id", h.GetByID).
		PATCH("/:id", h.Update).
		GET("/:id/active", h.IsActive).
		GET("/:id/config", h.GetConfig).
		PATCH("/:id/config", h.UpdateConfig).
		PUT("/:id/plan", h.ChangePlan).
		POST("/:id/suspend", h.Suspend).
		POST("/:id/reactivate", h.Reactivate).
		POST("/:id/cancel", h.Cancel).
		GET("/:id/stats", h.Stats).
		GET("/:id/quotas/:resource", h.CheckQuota).
		POST("/:id/usage", h.IncrementUsage).
		GET("/:id/features", h.Features).
		GET("/:id/features/:feature", h.CheckFeature)
}

// TenantSlugRoutes looks tenants up by slug
func TenantSlugRoutes(h *handler.TenantHandler) *DomainGroup {
	return NewDomainGroup("tenant-slugs", "/tenant-slugs").
		GET("/:slug", h.GetBySlug)
}

// MeRoutes serves the tenant bound to the request. Every route requires a
// usable tenant; the AI routes also require the feature and its quota.
func MeRoutes(h *handler.MeHandler, resolver *middleware.TenantResolver) *DomainGroup {
	return NewDomainGroup("me", "/me").
		Use(resolver.RequireTenant()).
		GET("", resolver.WithTenantAuth(h.Me)).
		GET("/features/:feature", resolver.WithTenantAuth(h.Feature)).
		GET("/usage/:resource", resolver.WithTenantAuth(h.Usage)).
		POST("/ai/interviews", resolver.WithFeatureCheck(tenancy.FeatureAIInterview,
			h.ConsumeFeature(tenancy.FeatureAIInterview))).
		POST("/ai/resume-screenings", resolver.WithFeatureCheck(tenancy.FeatureAIResumeScreening,
			h.ConsumeFeature(tenancy.FeatureAIResumeScreening)))
}
