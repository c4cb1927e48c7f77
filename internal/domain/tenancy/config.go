package tenancy

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/shared"
)

// DefaultSessionTimeoutMinutes applies when a tenant has no stored config
const DefaultSessionTimeoutMinutes = 60

// FeatureFlags enable premium capabilities for a tenant
type FeatureFlags struct {
	AIInterview       bool `json:"aiInterview"`
	AIResumeScreening bool `json:"aiResumeScreening"`
	AdvancedAnalytics bool `json:"advancedAnalytics"`
	CustomReports     bool `json:"customReports"`
	APIAccess         bool `json:"apiAccess"`
	SSO               bool `json:"sso"`
	WhiteLabel        bool `json:"whiteLabel"`
	MultiLanguage     bool `json:"multiLanguage"`
	AuditLog          bool `json:"auditLog"`
	Payroll           bool `json:"payroll"`
	Recruitment       bool `json:"recruitment"`
	EmployerBranding  bool `json:"employerBranding"`
}

// PasswordPolicy constrains tenant user passwords
type PasswordPolicy struct {
	MinLength        int  `json:"minLength"`
	RequireUppercase bool `json:"requireUppercase"`
	RequireLowercase bool `json:"requireLowercase"`
	RequireNumbers   bool `json:"requireNumbers"`
	RequireSymbols   bool `json:"requireSymbols"`
	ExpiryDays       int  `json:"expiryDays"`
}

// SecuritySettings groups the tenant's security configuration
type SecuritySettings struct {
	MFARequired           bool           `json:"mfaRequired"`
	PasswordPolicy        PasswordPolicy `json:"passwordPolicy"`
	SessionTimeoutMinutes int            `json:"sessionTimeoutMinutes"`
	IPWhitelist           []string       `json:"ipWhitelist"`
}

// TenantConfig holds per-tenant settings, stored separately from the tenant
type TenantConfig struct {
	TenantID       string           `json:"tenantId"`
	Features       FeatureFlags     `json:"features"`
	Customizations map[string]any   `json:"customizations"`
	Integrations   map[string]any   `json:"integrations"`
	Security       SecuritySettings `json:"security"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// DefaultTenantConfig returns the config used when none was stored:
// every flag off, a permissive password policy and a one hour session.
func DefaultTenantConfig(tenantID string) *TenantConfig {
	return &TenantConfig{
		TenantID:       tenantID,
		Customizations: map[string]any{},
		Integrations:   map[string]any{},
		Security: SecuritySettings{
			PasswordPolicy: PasswordPolicy{
				MinLength: 6,
			},
			SessionTimeoutMinutes: DefaultSessionTimeoutMinutes,
			IPWhitelist:           []string{},
		},
	}
}

// Clone returns a deep copy of the config
func (c *TenantConfig) Clone() *TenantConfig {
	out := *c
	out.Customizations = cloneMap(c.Customizations)
	out.Integrations = cloneMap(c.Integrations)
	if c.Security.IPWhitelist != nil {
		out.Security.IPWhitelist = append([]string(nil), c.Security.IPWhitelist...)
	}
	return &out
}

// Merge deep-merges patch onto the config and returns the result. Nested
// objects merge key by key; arrays, primitives and nulls replace the old
// value. The receiver is left untouched.
func (c *TenantConfig) Merge(patch map[string]any) (*TenantConfig, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, shared.WrapDomainError(shared.CodeInvalidInput, "config cannot be encoded", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, shared.WrapDomainError(shared.CodeInvalidInput, "config cannot be decoded", err)
	}

	merged, err := json.Marshal(DeepMerge(doc, patch))
	if err != nil {
		return nil, shared.WrapDomainError(shared.CodeInvalidInput, "config patch cannot be encoded", err)
	}

	dec := json.NewDecoder(bytes.NewReader(merged))
	dec.DisallowUnknownFields()
	var out TenantConfig
	if err := dec.Decode(&out); err != nil {
		return nil, shared.WrapDomainError(shared.CodeInvalidInput, "config patch does not match the config schema", err)
	}

	// identity and bookkeeping fields are not patchable
	out.TenantID = c.TenantID
	out.UpdatedAt = c.UpdatedAt
	if out.Customizations == nil {
		out.Customizations = map[string]any{}
	}
	if out.Integrations == nil {
		out.Integrations = map[string]any{}
	}
	return &out, nil
}

// DeepMerge returns a new map with patch merged onto base. Values that are
// objects on both sides are merged recursively; anything else in patch wins.
func DeepMerge(base, patch map[string]any) map[string]any {
	out := cloneMap(base)
	if out == nil {
		out = make(map[string]any, len(patch))
	}
	for k, pv := range patch {
		pm, patchIsMap := pv.(map[string]any)
		bm, baseIsMap := out[k].(map[string]any)
		if patchIsMap && baseIsMap {
			out[k] = DeepMerge(bm, pm)
			continue
		}
		if patchIsMap {
			out[k] = cloneMap(pm)
			continue
		}
		out[k] = pv
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
