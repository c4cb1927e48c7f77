package handler

import "github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"

// ChangePlanRequest is the body of PUT /tenants/:id/plan
type ChangePlanRequest struct {
	Plan tenancy.Plan `json:"plan" binding:"required,oneof=free basic professional enterprise"`
}

// SuspendTenantRequest is the body of POST /tenants/:id/suspend
type SuspendTenantRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// IncrementUsageRequest is the body of POST /tenants/:id/usage. Resource
// accepts a resource name, a quota key or a usage key.
type IncrementUsageRequest struct {
	Resource string `json:"resource" binding:"required"`
	By       *int64 `json:"by"`
}

// Amount returns By, defaulting to 1
func (r IncrementUsageRequest) Amount() int64 {
	if r.By == nil {
		return 1
	}
	return *r.By
}

// ActiveResponse reports whether a tenant can currently be used
type ActiveResponse struct {
	TenantID string `json:"tenantId"`
	Active   bool   `json:"active"`
}

// MeResponse describes the tenant bound to the request
type MeResponse struct {
	Tenant   *tenancy.Tenant `json:"tenant"`
	Features []string        `json:"features"`
	UserID   string          `json:"userId,omitempty"`
	UserRole string          `json:"userRole,omitempty"`
}
