package tenancy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/shared"
)

func TestFeatureSet_Allows(t *testing.T) {
	tests := []struct {
		name    string
		plan    Plan
		flags   FeatureFlags
		feature string
		allowed bool
	}{
		{"free with default flags denies ai interview", PlanFree, FeatureFlags{}, FeatureAIInterview, false},
		{"free with flag on is still not entitled", PlanFree, FeatureFlags{AIInterview: true}, FeatureAIInterview, false},
		{"professional with flag off is not enabled", PlanProfessional, FeatureFlags{}, FeatureAIInterview, false},
		{"professional with flag on", PlanProfessional, FeatureFlags{AIInterview: true}, FeatureAIInterview, true},
		{"plan feature without a flag", PlanFree, FeatureFlags{}, FeatureAttendance, true},
		{"unknown feature fails open", PlanFree, FeatureFlags{}, "time-travel", true},
		{"enterprise sso needs flag", PlanEnterprise, FeatureFlags{}, FeatureSSO, false},
		{"enterprise sso with flag", PlanEnterprise, FeatureFlags{SSO: true}, FeatureSSO, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := NewFeatureSet(tt.plan, tt.flags)
			assert.Equal(t, tt.allowed, set.Allows(tt.feature))
		})
	}
}

func TestFeatureSet_Names(t *testing.T) {
	set := NewFeatureSet(PlanBasic, FeatureFlags{Payroll: true, SSO: true})

	names := set.Names()

	assert.Contains(t, names, FeaturePayroll)
	assert.Contains(t, names, FeatureAttendance)
	assert.NotContains(t, names, FeatureSSO)
	assert.NotContains(t, names, FeatureRecruitment)
	assert.IsNonDecreasing(t, names)
}

func TestFeatureResource(t *testing.T) {
	r, ok := FeatureResource(FeatureAIInterview)
	assert.True(t, ok)
	assert.Equal(t, ResourceAIQueries, r)

	_, ok = FeatureResource(FeatureSSO)
	assert.False(t, ok)
	assert.True(t, IsConfigGated(FeatureSSO))
	assert.False(t, IsConfigGated(FeatureAttendance))
}

func TestEvaluateFeature(t *testing.T) {
	t.Run("plan gate comes first", func(t *testing.T) {
		set := NewFeatureSet(PlanFree, FeatureFlags{})
		check := EvaluateFeature(set, QuotasFor(PlanFree), TenantUsage{}, FeatureAIInterview)

		assert.False(t, check.Available)
		assert.Equal(t, ReasonPlanUnsupported, check.Reason)
		assert.Equal(t, DenialPlan, check.Cause)
		assert.Error(t, check.Err())
	})

	t.Run("quota gate reports current and max", func(t *testing.T) {
		set := NewFeatureSet(PlanProfessional, FeatureFlags{AIInterview: true})
		usage := TenantUsage{AIQueriesThisMonth: 1000}
		check := EvaluateFeature(set, QuotasFor(PlanProfessional), usage, FeatureAIInterview)

		assert.False(t, check.Available)
		assert.Equal(t, DenialQuota, check.Cause)
		assert.Equal(t, "quota exceeded for maxAIQueriesPerMonth (1000/1000)", check.Reason)
		assert.Equal(t, int64(1000), check.Current)
		assert.Equal(t, Limited(1000), *check.Max)

		var unavailable *FeatureUnavailableError
		require.ErrorAs(t, check.Err(), &unavailable)
		assert.True(t, errors.Is(check.Err(), shared.ErrFeatureUnavailable))
		assert.Equal(t, DenialQuota, unavailable.Cause)
		assert.Equal(t, int64(1000), unavailable.Current)
	})

	t.Run("available under quota", func(t *testing.T) {
		set := NewFeatureSet(PlanProfessional, FeatureFlags{AIInterview: true})
		check := EvaluateFeature(set, QuotasFor(PlanProfessional), TenantUsage{AIQueriesThisMonth: 3}, FeatureAIInterview)

		assert.True(t, check.Available)
		assert.NoError(t, check.Err())
	})

	t.Run("unlimited quota never blocks", func(t *testing.T) {
		set := NewFeatureSet(PlanEnterprise, FeatureFlags{APIAccess: true})
		check := EvaluateFeature(set, QuotasFor(PlanEnterprise), TenantUsage{APICallsThisMonth: 1 << 40}, FeatureAPIAccess)
		assert.True(t, check.Available)
	})
}
