package tenancy

import "time"

// TenantUsage holds live counters. The three monthly counters belong to the
// calendar month of LastResetDate.
type TenantUsage struct {
	Users              int64     `json:"users"`
	Employees          int64     `json:"employees"`
	StorageGB          int64     `json:"storageGB"`
	APICallsThisMonth  int64     `json:"apiCallsThisMonth"`
	ReportsThisMonth   int64     `json:"reportsThisMonth"`
	AIQueriesThisMonth int64     `json:"aiQueriesThisMonth"`
	LastResetDate      time.Time `json:"lastResetDate"`
}

// NewTenantUsage returns zeroed counters stamped at now
func NewTenantUsage(now time.Time) TenantUsage {
	return TenantUsage{LastResetDate: now}
}

// UsagePeriod returns the calendar month (UTC) a timestamp belongs to, e.g. "2026-10"
func UsagePeriod(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// NeedsRollOver reports whether now falls in a different month than LastResetDate
func (u TenantUsage) NeedsRollOver(now time.Time) bool {
	return UsagePeriod(u.LastResetDate) != UsagePeriod(now)
}

// RollOver zeroes the monthly counters when the month changed. It reports
// whether a reset happened.
func (u *TenantUsage) RollOver(now time.Time) bool {
	if !u.NeedsRollOver(now) {
		return false
	}
	u.APICallsThisMonth = 0
	u.ReportsThisMonth = 0
	u.AIQueriesThisMonth = 0
	u.LastResetDate = now
	return true
}

// Get returns the current counter for a resource
func (u TenantUsage) Get(r Resource) int64 {
	switch r {
	case ResourceUsers:
		return u.Users
	case ResourceEmployees:
		return u.Employees
	case ResourceStorageGB:
		return u.StorageGB
	case ResourceAPICalls:
		return u.APICallsThisMonth
	case ResourceReports:
		return u.ReportsThisMonth
	case ResourceAIQueries:
		return u.AIQueriesThisMonth
	}
	return 0
}

// Add increments the counter for a resource by n
func (u *TenantUsage) Add(r Resource, n int64) {
	switch r {
	case ResourceUsers:
		u.Users += n
	case ResourceEmployees:
		u.Employees += n
	case ResourceStorageGB:
		u.StorageGB += n
	case ResourceAPICalls:
		u.APICallsThisMonth += n
	case ResourceReports:
		u.ReportsThisMonth += n
	case ResourceAIQueries:
		u.AIQueriesThisMonth += n
	}
}

// ApplyIncrement performs the lazy monthly reset and then adds n to r
func (u *TenantUsage) ApplyIncrement(r Resource, n int64, now time.Time) {
	u.RollOver(now)
	u.Add(r, n)
}
