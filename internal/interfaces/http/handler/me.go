package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/interfaces/http/dto"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/interfaces/http/middleware"
)

// CurrentTenantService is the registry surface used by tenant-scoped routes
type CurrentTenantService interface {
	FeatureSet(ctx context.Context, id string) (*tenancy.FeatureSet, error)
	CheckQuota(ctx context.Context, id, key string) (*tenancy.QuotaCheck, error)
	ConsumeUsage(ctx context.Context, id, key string, by int64) (*tenancy.QuotaCheck, bool, error)
}

// FeatureChecker runs the feature and quota gates for a tenant
type FeatureChecker interface {
	CheckTenantFeature(ctx context.Context, id, feature string) (middleware.FeatureCheckResult, error)
}

// MeHandler serves routes about the tenant bound to the request. Its
// methods are middleware.TenantHandlerFunc values.
type MeHandler struct {
	tenants  CurrentTenantService
	features FeatureChecker
}

// NewMeHandler creates a new handler for the current tenant
func NewMeHandler(tenants CurrentTenantService, features FeatureChecker) *MeHandler {
	return &MeHandler{tenants: tenants, features: features}
}

// Me handles GET /me
func (h *MeHandler) Me(c *gin.Context, tc *middleware.TenantContext) error {
	set, err := h.tenants.FeatureSet(c.Request.Context(), tc.TenantID)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(MeResponse{
		Tenant:   tc.Tenant,
		Features: set.Names(),
		UserID:   tc.UserID,
		UserRole: tc.UserRole,
	}))
	return nil
}

// Feature handles GET /me/features/:feature. A denied feature is still a
// 200; the body says why.
func (h *MeHandler) Feature(c *gin.Context, tc *middleware.TenantContext) error {
	check, err := h.features.CheckTenantFeature(c.Request.Context(), tc.TenantID, c.Param("feature"))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(check))
	return nil
}

// Usage handles GET /me/usage/:resource
func (h *MeHandler) Usage(c *gin.Context, tc *middleware.TenantContext) error {
	key := c.Param("resource")
	if _, err := tenancy.ParseResource(key); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeUnknownResource, err.Error()))
		return nil
	}
	check, err := h.tenants.CheckQuota(c.Request.Context(), tc.TenantID, key)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(check))
	return nil
}

// ConsumeFeature returns a handler that records one use of a metered
// feature against its quota. It is meant to sit behind WithFeatureCheck;
// the increment itself is refused at the ceiling, so requests that passed
// the gate together cannot overrun it.
func (h *MeHandler) ConsumeFeature(feature string) middleware.TenantHandlerFunc {
	return func(c *gin.Context, tc *middleware.TenantContext) error {
		resource, metered := tenancy.FeatureResource(feature)
		if !metered {
			c.JSON(http.StatusOK, dto.NewSuccessResponse(tenancy.FeatureCheck{Feature: feature, Available: true}))
			return nil
		}
		check, consumed, err := h.tenants.ConsumeUsage(c.Request.Context(), tc.TenantID, string(resource), 1)
		if err != nil {
			return err
		}
		if !consumed {
			return tenancy.QuotaDenied(feature, *check).Err()
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(check))
		return nil
	}
}
