package tenancy

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/shared"
)

// Feature names as used by routes and clients
const (
	FeatureEmployeeManagement = "employee-management"
	FeatureAttendance         = "attendance"
	FeatureLeaveManagement    = "leave-management"
	FeatureBasicReports       = "basic-reports"
	FeaturePayroll            = "payroll"
	FeatureRecruitment        = "recruitment"
	FeatureCustomReports      = "custom-reports"
	FeatureMultiLanguage      = "multi-language"
	FeatureAdvancedAnalytics  = "advanced-analytics"
	FeatureAPIAccess          = "api-access"
	FeatureAIInterview        = "ai-interview"
	FeatureAIResumeScreening  = "ai-resume-screening"
	FeatureEmployerBranding   = "employer-branding"
	FeatureAuditLog           = "audit-log"
	FeatureSSO                = "sso"
	FeatureWhiteLabel         = "white-label"
)

// featureFlags maps a feature name to the config flag that enables it.
// Names missing here are not gated by config.
var featureFlags = map[string]func(FeatureFlags) bool{
	FeaturePayroll:           func(f FeatureFlags) bool { return f.Payroll },
	FeatureRecruitment:       func(f FeatureFlags) bool { return f.Recruitment },
	FeatureCustomReports:     func(f FeatureFlags) bool { return f.CustomReports },
	FeatureMultiLanguage:     func(f FeatureFlags) bool { return f.MultiLanguage },
	FeatureAdvancedAnalytics: func(f FeatureFlags) bool { return f.AdvancedAnalytics },
	FeatureAPIAccess:         func(f FeatureFlags) bool { return f.APIAccess },
	FeatureAIInterview:       func(f FeatureFlags) bool { return f.AIInterview },
	FeatureAIResumeScreening: func(f FeatureFlags) bool { return f.AIResumeScreening },
	FeatureEmployerBranding:  func(f FeatureFlags) bool { return f.EmployerBranding },
	FeatureAuditLog:          func(f FeatureFlags) bool { return f.AuditLog },
	FeatureSSO:               func(f FeatureFlags) bool { return f.SSO },
	FeatureWhiteLabel:        func(f FeatureFlags) bool { return f.WhiteLabel },
}

// featureResources maps the metered features to the quota they consume
var featureResources = map[string]Resource{
	FeatureAIInterview:       ResourceAIQueries,
	FeatureAIResumeScreening: ResourceAIQueries,
	FeatureAPIAccess:         ResourceAPICalls,
	FeatureCustomReports:     ResourceReports,
	FeatureAdvancedAnalytics: ResourceReports,
}

// FeatureResource returns the quota a feature consumes, if any
func FeatureResource(name string) (Resource, bool) {
	r, ok := featureResources[name]
	return r, ok
}

// IsConfigGated reports whether a config flag controls the feature
func IsConfigGated(name string) bool {
	_, ok := featureFlags[name]
	return ok
}

// FeatureSet is the set of features a tenant may use: what its plan entitles
// intersected with what its config enables. Names unknown to both the plan
// catalog and the flag table are allowed.
type FeatureSet struct {
	plan     Plan
	entitled map[string]bool
	flags    FeatureFlags
}

// NewFeatureSet computes the feature set of a tenant on plan p with flags
func NewFeatureSet(p Plan, flags FeatureFlags) *FeatureSet {
	entitled := lo.SliceToMap(FeaturesFor(p), func(name string) (string, bool) {
		return name, true
	})
	return &FeatureSet{plan: p, entitled: entitled, flags: flags}
}

// Plan returns the plan the set was computed for
func (s *FeatureSet) Plan() Plan {
	return s.plan
}

// Allows reports whether the feature passes both the plan and config gates
func (s *FeatureSet) Allows(name string) bool {
	if IsCatalogFeature(name) && !s.entitled[name] {
		return false
	}
	if enabled, ok := featureFlags[name]; ok && !enabled(s.flags) {
		return false
	}
	return true
}

// Names lists every known feature the set allows, sorted
func (s *FeatureSet) Names() []string {
	known := lo.Union(catalogFeatures, lo.Keys(featureFlags))
	names := lo.Filter(known, func(name string, _ int) bool {
		return s.Allows(name)
	})
	sort.Strings(names)
	return names
}

// DenialCause says which gate rejected a feature
type DenialCause string

const (
	DenialTenant DenialCause = "tenant"
	DenialPlan   DenialCause = "plan"
	DenialQuota  DenialCause = "quota"
)

// Feature denial reasons
const (
	ReasonTenantNotFound  = "tenant not found"
	ReasonPlanUnsupported = "plan does not support this feature"
)

// FeatureCheck is the outcome of asking whether a tenant may use a feature
type FeatureCheck struct {
	Feature   string      `json:"feature"`
	Available bool        `json:"available"`
	Reason    string      `json:"reason,omitempty"`
	Cause     DenialCause `json:"cause,omitempty"`
	Resource  Resource    `json:"resource,omitempty"`
	Current   int64       `json:"current,omitempty"`
	Max       *Limit      `json:"max,omitempty"`
}

// EvaluateFeature runs the feature gate and then the quota gate
func EvaluateFeature(set *FeatureSet, quotas TenantQuotas, usage TenantUsage, feature string) FeatureCheck {
	if !set.Allows(feature) {
		return FeatureCheck{Feature: feature, Reason: ReasonPlanUnsupported, Cause: DenialPlan}
	}
	r, metered := FeatureResource(feature)
	if !metered {
		return FeatureCheck{Feature: feature, Available: true}
	}
	q := CheckQuota(quotas, usage, r)
	if q.Exceeded {
		return QuotaDenied(feature, q)
	}
	return FeatureCheck{Feature: feature, Available: true, Resource: r}
}

// QuotaDenied is the denial of feature because its quota q is used up
func QuotaDenied(feature string, q QuotaCheck) FeatureCheck {
	ceiling := q.Max
	return FeatureCheck{
		Feature:  feature,
		Reason:   fmt.Sprintf("quota exceeded for %s (%d/%s)", q.Resource.QuotaKey(), q.Current, q.Max),
		Cause:    DenialQuota,
		Resource: q.Resource,
		Current:  q.Current,
		Max:      &ceiling,
	}
}

// FeatureUnavailableError is the FEATURE_UNAVAILABLE error of a denied
// feature check. It matches shared.ErrFeatureUnavailable.
type FeatureUnavailableError struct {
	*shared.DomainError
	Feature string
	Cause   DenialCause
	Current int64
	Max     *Limit
}

// Err converts a denial into a *FeatureUnavailableError; nil when available
func (c FeatureCheck) Err() error {
	if c.Available {
		return nil
	}
	return &FeatureUnavailableError{
		DomainError: shared.NewDomainError(shared.CodeFeatureUnavailable, c.Reason),
		Feature:     c.Feature,
		Cause:       c.Cause,
		Current:     c.Current,
		Max:         c.Max,
	}
}

// Unwrap exposes the embedded DomainError to errors.As
func (e *FeatureUnavailableError) Unwrap() error {
	return e.DomainError
}
