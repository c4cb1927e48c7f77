package tenancy

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/shared"
)

// Plan represents the subscription tier of a tenant
type Plan string

const (
	PlanFree         Plan = "free"
	PlanBasic        Plan = "basic"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
)

// AllPlans lists the tiers from lowest to highest
var AllPlans = []Plan{PlanFree, PlanBasic, PlanProfessional, PlanEnterprise}

// IsValid reports whether p is a known tier
func (p Plan) IsValid() bool {
	return lo.Contains(AllPlans, p)
}

// ParsePlan validates a plan name
func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	if !p.IsValid() {
		return "", shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("invalid plan %q", s))
	}
	return p, nil
}

var planQuotas = map[Plan]TenantQuotas{
	PlanFree: {
		MaxUsers:             Limited(3),
		MaxEmployees:         Limited(10),
		MaxStorageGB:         Limited(1),
		MaxAPICallsPerMonth:  Limited(1000),
		MaxReportsPerMonth:   Limited(10),
		MaxAIQueriesPerMonth: Limited(20),
	},
	PlanBasic: {
		MaxUsers:             Limited(10),
		MaxEmployees:         Limited(50),
		MaxStorageGB:         Limited(10),
		MaxAPICallsPerMonth:  Limited(10000),
		MaxReportsPerMonth:   Limited(50),
		MaxAIQueriesPerMonth: Limited(100),
	},
	PlanProfessional: {
		MaxUsers:             Limited(50),
		MaxEmployees:         Limited(500),
		MaxStorageGB:         Limited(100),
		MaxAPICallsPerMonth:  Limited(100000),
		MaxReportsPerMonth:   Limited(500),
		MaxAIQueriesPerMonth: Limited(1000),
	},
	PlanEnterprise: {
		MaxUsers:             Unlimited(),
		MaxEmployees:         Unlimited(),
		MaxStorageGB:         Unlimited(),
		MaxAPICallsPerMonth:  Unlimited(),
		MaxReportsPerMonth:   Unlimited(),
		MaxAIQueriesPerMonth: Unlimited(),
	},
}

// QuotasFor returns the ceilings of a plan. Unknown plans get the free tier.
func QuotasFor(p Plan) TenantQuotas {
	if q, ok := planQuotas[p]; ok {
		return q
	}
	return planQuotas[PlanFree]
}

// Features added by each tier on top of the tier below it
var planFeatureSteps = map[Plan][]string{
	PlanFree: {
		FeatureEmployeeManagement,
		FeatureAttendance,
		FeatureLeaveManagement,
		FeatureBasicReports,
	},
	PlanBasic: {
		FeaturePayroll,
		FeatureRecruitment,
		FeatureCustomReports,
		FeatureMultiLanguage,
	},
	PlanProfessional: {
		FeatureAdvancedAnalytics,
		FeatureAPIAccess,
		FeatureAIInterview,
		FeatureAIResumeScreening,
		FeatureEmployerBranding,
		FeatureAuditLog,
	},
	PlanEnterprise: {
		FeatureSSO,
		FeatureWhiteLabel,
	},
}

// FeaturesFor returns every feature name the plan entitles, including those
// of lower tiers.
func FeaturesFor(p Plan) []string {
	if !p.IsValid() {
		p = PlanFree
	}
	var out []string
	for _, tier := range AllPlans {
		out = append(out, planFeatureSteps[tier]...)
		if tier == p {
			break
		}
	}
	return out
}

// catalogFeatures is the union of every plan's features
var catalogFeatures = lo.Uniq(lo.Flatten(lo.Values(planFeatureSteps)))

// IsCatalogFeature reports whether some plan gates the feature
func IsCatalogFeature(name string) bool {
	return lo.Contains(catalogFeatures, name)
}
