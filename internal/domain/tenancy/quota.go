package tenancy

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/shared"
)

// unlimitedLiteral is how an unlimited ceiling is spelled on the wire
const unlimitedLiteral = "unlimited"

// Limit is a resource ceiling: either Limited(n) or Unlimited.
// The zero value is Limited(0).
type Limit struct {
	max       int64
	unlimited bool
}

// Limited returns a finite ceiling. Negative values are clamped to zero.
func Limited(n int64) Limit {
	if n < 0 {
		n = 0
	}
	return Limit{max: n}
}

// Unlimited returns a ceiling that is never exceeded
func Unlimited() Limit {
	return Limit{unlimited: true}
}

// IsUnlimited reports whether the ceiling is unbounded
func (l Limit) IsUnlimited() bool {
	return l.unlimited
}

// Max returns the finite ceiling and true, or 0 and false when unlimited
func (l Limit) Max() (int64, bool) {
	if l.unlimited {
		return 0, false
	}
	return l.max, true
}

// Exceeded reports whether current has reached the ceiling.
// An unlimited ceiling is never exceeded.
func (l Limit) Exceeded(current int64) bool {
	if l.unlimited {
		return false
	}
	return current >= l.max
}

// Admits reports whether adding by to current stays within the ceiling
func (l Limit) Admits(current, by int64) bool {
	if l.unlimited {
		return true
	}
	return current+by <= l.max
}

// Remaining returns how much headroom is left, or false when unlimited
func (l Limit) Remaining(current int64) (int64, bool) {
	if l.unlimited {
		return 0, false
	}
	if current >= l.max {
		return 0, true
	}
	return l.max - current, true
}

// Percent returns round(current/max*100). Unlimited ceilings report 0.
// A zero ceiling reports 0 when nothing is used and 100 otherwise.
func (l Limit) Percent(current int64) int {
	if l.unlimited {
		return 0
	}
	if l.max == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return int(math.Round(float64(current) / float64(l.max) * 100))
}

// String renders the limit for logs and reasons
func (l Limit) String() string {
	if l.unlimited {
		return unlimitedLiteral
	}
	return strconv.FormatInt(l.max, 10)
}

// StorageValue encodes the limit for a numeric column. Storage is the only
// place where -1 stands for unlimited.
func (l Limit) StorageValue() int64 {
	if l.unlimited {
		return -1
	}
	return l.max
}

// LimitFromStorage decodes a numeric column written by StorageValue
func LimitFromStorage(v int64) Limit {
	if v < 0 {
		return Unlimited()
	}
	return Limited(v)
}

// MarshalJSON writes a number, or the string "unlimited"
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unlimited {
		return json.Marshal(unlimitedLiteral)
	}
	return json.Marshal(l.max)
}

// UnmarshalJSON accepts a non-negative number or the string "unlimited"
func (l *Limit) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != unlimitedLiteral {
			return fmt.Errorf("invalid limit %q", s)
		}
		*l = Unlimited()
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid limit: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("invalid limit %d", n)
	}
	*l = Limited(n)
	return nil
}

// Resource identifies one of the six metered resource kinds
type Resource string

const (
	ResourceUsers     Resource = "users"
	ResourceEmployees Resource = "employees"
	ResourceStorageGB Resource = "storageGB"
	ResourceAPICalls  Resource = "apiCalls"
	ResourceReports   Resource = "reports"
	ResourceAIQueries Resource = "aiQueries"
)

// AllResources lists every resource in a stable order
var AllResources = []Resource{
	ResourceUsers,
	ResourceEmployees,
	ResourceStorageGB,
	ResourceAPICalls,
	ResourceReports,
	ResourceAIQueries,
}

type resourceKeys struct {
	quota   string
	usage   string
	monthly bool
}

var resourceTable = map[Resource]resourceKeys{
	ResourceUsers:     {quota: "maxUsers", usage: "users"},
	ResourceEmployees: {quota: "maxEmployees", usage: "employees"},
	ResourceStorageGB: {quota: "maxStorageGB", usage: "storageGB"},
	ResourceAPICalls:  {quota: "maxAPICallsPerMonth", usage: "apiCallsThisMonth", monthly: true},
	ResourceReports:   {quota: "maxReportsPerMonth", usage: "reportsThisMonth", monthly: true},
	ResourceAIQueries: {quota: "maxAIQueriesPerMonth", usage: "aiQueriesThisMonth", monthly: true},
}

// QuotaKey is the quota field name, e.g. "maxEmployees"
func (r Resource) QuotaKey() string {
	return resourceTable[r].quota
}

// UsageKey is the usage field name, e.g. "employees"
func (r Resource) UsageKey() string {
	return resourceTable[r].usage
}

// Monthly reports whether the counter resets at each calendar month
func (r Resource) Monthly() bool {
	return resourceTable[r].monthly
}

// ParseResource accepts a quota key, a usage key or the resource name itself
func ParseResource(key string) (Resource, error) {
	for r, keys := range resourceTable {
		if key == string(r) || key == keys.quota || key == keys.usage {
			return r, nil
		}
	}
	return "", shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("unknown resource key %q", key))
}

// TenantQuotas holds the ceiling for every resource
type TenantQuotas struct {
	MaxUsers             Limit `json:"maxUsers"`
	MaxEmployees         Limit `json:"maxEmployees"`
	MaxStorageGB         Limit `json:"maxStorageGB"`
	MaxAPICallsPerMonth  Limit `json:"maxAPICallsPerMonth"`
	MaxReportsPerMonth   Limit `json:"maxReportsPerMonth"`
	MaxAIQueriesPerMonth Limit `json:"maxAIQueriesPerMonth"`
}

// Get returns the ceiling for a resource
func (q TenantQuotas) Get(r Resource) Limit {
	switch r {
	case ResourceUsers:
		return q.MaxUsers
	case ResourceEmployees:
		return q.MaxEmployees
	case ResourceStorageGB:
		return q.MaxStorageGB
	case ResourceAPICalls:
		return q.MaxAPICallsPerMonth
	case ResourceReports:
		return q.MaxReportsPerMonth
	case ResourceAIQueries:
		return q.MaxAIQueriesPerMonth
	}
	return Limited(0)
}

// QuotaCheck is the outcome of comparing one usage counter to its ceiling
type QuotaCheck struct {
	Resource Resource `json:"resource"`
	Allowed  bool     `json:"allowed"`
	Current  int64    `json:"current"`
	Max      Limit    `json:"max"`
	Exceeded bool     `json:"exceeded"`
}

// CheckQuota compares the tenant's usage of r against its ceiling
func CheckQuota(quotas TenantQuotas, usage TenantUsage, r Resource) QuotaCheck {
	limit := quotas.Get(r)
	current := usage.Get(r)
	exceeded := limit.Exceeded(current)
	return QuotaCheck{
		Resource: r,
		Allowed:  !exceeded,
		Current:  current,
		Max:      limit,
		Exceeded: exceeded,
	}
}
