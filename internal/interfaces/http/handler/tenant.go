package handler

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	apptenancy "github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/application/tenancy"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/interfaces/http/dto"
)

// TenantService is the registry surface used by the admin API
type TenantService interface {
	CreateTenant(ctx context.Context, input apptenancy.CreateTenantInput) (*tenancy.Tenant, error)
	GetTenantByID(ctx context.Context, id string) (*tenancy.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*tenancy.Tenant, error)
	UpdateTenant(ctx context.Context, id string, update tenancy.TenantUpdate) (*tenancy.Tenant, error)
	GetTenantConfig(ctx context.Context, id string) (*tenancy.TenantConfig, error)
	UpdateTenantConfig(ctx context.Context, id string, patch map[string]any) (*tenancy.TenantConfig, error)
	ChangePlan(ctx context.Context, id string, plan tenancy.Plan) (*tenancy.Tenant, error)
	SuspendTenant(ctx context.Context, id, reason string) (*tenancy.Tenant, error)
	ReactivateTenant(ctx context.Context, id string) (*tenancy.Tenant, error)
	CancelTenant(ctx context.Context, id string) (*tenancy.Tenant, error)
	IsTenantActive(ctx context.Context, id string) (bool, error)
	CheckQuota(ctx context.Context, id, key string) (*tenancy.QuotaCheck, error)
	UpdateUsage(ctx context.Context, id, key string, by int64) (*tenancy.Tenant, error)
	ConsumeUsage(ctx context.Context, id, key string, by int64) (*tenancy.QuotaCheck, bool, error)
	GetTenantStats(ctx context.Context, id string) (*tenancy.TenantStats, error)
	CheckFeature(ctx context.Context, id, feature string) (*tenancy.FeatureCheck, error)
	FeatureSet(ctx context.Context, id string) (*tenancy.FeatureSet, error)
}

// TenantHandler handles tenant administration HTTP requests
type TenantHandler struct {
	BaseHandler
	tenants TenantService
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(tenants TenantService) *TenantHandler {
	return &TenantHandler{tenants: tenants}
}

// Create handles POST /tenants
func (h *TenantHandler) Create(c *gin.Context) {
	var input apptenancy.CreateTenantInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.Error(c, dto.ErrCodeInvalidJSON, "invalid request body")
		return
	}

	t, err := h.tenants.CreateTenant(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, t)
}

// GetByID handles GET /tenants/:id
func (h *TenantHandler) GetByID(c *gin.Context) {
	id := c.Param("id")
	t, err := h.tenants.GetTenantByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if t == nil {
		h.Error(c, dto.ErrCodeNotFound, fmt.Sprintf("tenant %s not found", id))
		return
	}
	h.Success(c, t)
}

// GetBySlug handles GET /tenant-slugs/:slug
func (h *TenantHandler) GetBySlug(c *gin.Context) {
	slug := c.Param("slug")
	t, err := h.tenants.GetTenantBySlug(c.Request.Context(), slug)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if t == nil {
		h.Error(c, dto.ErrCodeNotFound, fmt.Sprintf("tenant with slug %s not found", slug))
		return
	}
	h.Success(c, t)
}

// Update handles PATCH /tenants/:id
func (h *TenantHandler) Update(c *gin.Context) {
	var update tenancy.TenantUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.Error(c, dto.ErrCodeInvalidJSON, "invalid request body")
		return
	}

	t, err := h.tenants.UpdateTenant(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t)
}

// IsActive handles GET /tenants/:id/active
func (h *TenantHandler) IsActive(c *gin.Context) {
	id := c.Param("id")
	active, err := h.tenants.IsTenantActive(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ActiveResponse{TenantID: id, Active: active})
}

// GetConfig handles GET /tenants/:id/config
func (h *TenantHandler) GetConfig(c *gin.Context) {
	cfg, err := h.tenants.GetTenantConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cfg)
}

// UpdateConfig handles PATCH /tenants/:id/config. The body is deep-merged
// onto the stored config.
func (h *TenantHandler) UpdateConfig(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.Error(c, dto.ErrCodeInvalidJSON, "invalid request body")
		return
	}

	cfg, err := h.tenants.UpdateTenantConfig(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cfg)
}

// ChangePlan handles PUT /tenants/:id/plan
func (h *TenantHandler) ChangePlan(c *gin.Context) {
	var req ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, dto.ErrCodeValidation, "plan must be one of free, basic, professional, enterprise")
		return
	}

	t, err := h.tenants.ChangePlan(c.Request.Context(), c.Param("id"), req.Plan)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t)
}

// Suspend handles POST /tenants/:id/suspend
func (h *TenantHandler) Suspend(c *gin.Context) {
	var req SuspendTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, dto.ErrCodeValidation, "a suspension reason is required")
		return
	}

	t, err := h.tenants.SuspendTenant(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t)
}

// Reactivate handles POST /tenants/:id/reactivate
func (h *TenantHandler) Reactivate(c *gin.Context) {
	t, err := h.tenants.ReactivateTenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t)
}

// Cancel handles POST /tenants/:id/cancel
func (h *TenantHandler) Cancel(c *gin.Context) {
	t, err := h.tenants.CancelTenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t)
}

// Stats handles GET /tenants/:id/stats
func (h *TenantHandler) Stats(c *gin.Context) {
	stats, err := h.tenants.GetTenantStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// CheckQuota handles GET /tenants/:id/quotas/:resource
func (h *TenantHandler) CheckQuota(c *gin.Context) {
	check, err := h.tenants.CheckQuota(c.Request.Context(), c.Param("id"), c.Param("resource"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, check)
}

// IncrementUsage handles POST /tenants/:id/usage
func (h *TenantHandler) IncrementUsage(c *gin.Context) {
	var req IncrementUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, dto.ErrCodeValidation, "resource is required")
		return
	}

	t, err := h.tenants.UpdateUsage(c.Request.Context(), c.Param("id"), req.Resource, req.Amount())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t.Usage)
}

// CheckFeature handles GET /tenants/:id/features/:feature
func (h *TenantHandler) CheckFeature(c *gin.Context) {
	check, err := h.tenants.CheckFeature(c.Request.Context(), c.Param("id"), c.Param("feature"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, check)
}

// Features handles GET /tenants/:id/features
func (h *TenantHandler) Features(c *gin.Context) {
	set, err := h.tenants.FeatureSet(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, set.Names())
}
