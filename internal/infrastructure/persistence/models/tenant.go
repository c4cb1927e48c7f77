package models

import (
	"time"

	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
)

// TenantModel is the persistence model for the Tenant aggregate.
// Quotas are stored as numbers where -1 means unlimited.
type TenantModel struct {
	ID                    string     `gorm:"type:varchar(64);primaryKey"`
	Slug                  string     `gorm:"type:varchar(63);not null;uniqueIndex"`
	Name                  string     `gorm:"type:varchar(200);not null"`
	ContactName           string     `gorm:"type:varchar(100);not null"`
	ContactEmail          string     `gorm:"type:varchar(200);not null"`
	ContactPhone          string     `gorm:"type:varchar(50)"`
	Industry              string     `gorm:"type:varchar(100)"`
	Size                  string     `gorm:"type:varchar(50)"`
	Status                string     `gorm:"type:varchar(20);not null;default:'active';index"`
	Plan                  string     `gorm:"type:varchar(20);not null;default:'free'"`
	SubscriptionStatus    string     `gorm:"type:varchar(20);not null;default:'trial'"`
	SubscriptionStartDate time.Time  `gorm:"not null"`
	SubscriptionEndDate   *time.Time `gorm:"index"`

	QuotaMaxUsers             int64 `gorm:"not null"`
	QuotaMaxEmployees         int64 `gorm:"not null"`
	QuotaMaxStorageGB         int64 `gorm:"column:quota_max_storage_gb;not null"`
	QuotaMaxAPICallsPerMonth  int64 `gorm:"column:quota_max_api_calls_per_month;not null"`
	QuotaMaxReportsPerMonth   int64 `gorm:"not null"`
	QuotaMaxAIQueriesPerMonth int64 `gorm:"column:quota_max_ai_queries_per_month;not null"`

	UsageUsers              int64     `gorm:"not null;default:0"`
	UsageEmployees          int64     `gorm:"not null;default:0"`
	UsageStorageGB          int64     `gorm:"column:usage_storage_gb;not null;default:0"`
	UsageAPICallsThisMonth  int64     `gorm:"column:usage_api_calls_this_month;not null;default:0"`
	UsageReportsThisMonth   int64     `gorm:"not null;default:0"`
	UsageAIQueriesThisMonth int64     `gorm:"column:usage_ai_queries_this_month;not null;default:0"`
	UsageLastResetDate      time.Time `gorm:"not null"`
	UsagePeriod             string    `gorm:"type:varchar(7);not null"`

	Metadata  map[string]any `gorm:"type:jsonb;serializer:json"`
	Version   int            `gorm:"not null;default:1"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime:false"`
}

// TableName returns the table name for GORM
func (TenantModel) TableName() string {
	return "tenants"
}

// Column names of the usage counters, keyed by resource
var UsageColumns = map[tenancy.Resource]string{
	tenancy.ResourceUsers:     "usage_users",
	tenancy.ResourceEmployees: "usage_employees",
	tenancy.ResourceStorageGB: "usage_storage_gb",
	tenancy.ResourceAPICalls:  "usage_api_calls_this_month",
	tenancy.ResourceReports:   "usage_reports_this_month",
	tenancy.ResourceAIQueries: "usage_ai_queries_this_month",
}

// Column names of the quota ceilings, keyed by resource
var QuotaColumns = map[tenancy.Resource]string{
	tenancy.ResourceUsers:     "quota_max_users",
	tenancy.ResourceEmployees: "quota_max_employees",
	tenancy.ResourceStorageGB: "quota_max_storage_gb",
	tenancy.ResourceAPICalls:  "quota_max_api_calls_per_month",
	tenancy.ResourceReports:   "quota_max_reports_per_month",
	tenancy.ResourceAIQueries: "quota_max_ai_queries_per_month",
}

// TenantMutableColumns are written by non-usage updates. Usage counters are
// owned by the atomic increment path and never appear here.
var TenantMutableColumns = []string{
	"slug", "name", "contact_name", "contact_email", "contact_phone",
	"industry", "size", "status", "plan", "subscription_status",
	"subscription_start_date", "subscription_end_date",
	"quota_max_users", "quota_max_employees", "quota_max_storage_gb",
	"quota_max_api_calls_per_month", "quota_max_reports_per_month",
	"quota_max_ai_queries_per_month",
	"metadata", "version", "updated_at",
}

// ToDomain converts the persistence model to a domain Tenant
func (m *TenantModel) ToDomain() *tenancy.Tenant {
	metadata := m.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &tenancy.Tenant{
		ID:                    m.ID,
		Slug:                  m.Slug,
		Name:                  m.Name,
		ContactName:           m.ContactName,
		ContactEmail:          m.ContactEmail,
		ContactPhone:          m.ContactPhone,
		Industry:              m.Industry,
		Size:                  m.Size,
		Status:                tenancy.Status(m.Status),
		Plan:                  tenancy.Plan(m.Plan),
		SubscriptionStatus:    tenancy.SubscriptionStatus(m.SubscriptionStatus),
		SubscriptionStartDate: m.SubscriptionStartDate,
		SubscriptionEndDate:   m.SubscriptionEndDate,
		Quotas: tenancy.TenantQuotas{
			MaxUsers:             tenancy.LimitFromStorage(m.QuotaMaxUsers),
			MaxEmployees:         tenancy.LimitFromStorage(m.QuotaMaxEmployees),
			MaxStorageGB:         tenancy.LimitFromStorage(m.QuotaMaxStorageGB),
			MaxAPICallsPerMonth:  tenancy.LimitFromStorage(m.QuotaMaxAPICallsPerMonth),
			MaxReportsPerMonth:   tenancy.LimitFromStorage(m.QuotaMaxReportsPerMonth),
			MaxAIQueriesPerMonth: tenancy.LimitFromStorage(m.QuotaMaxAIQueriesPerMonth),
		},
		Usage: tenancy.TenantUsage{
			Users:              m.UsageUsers,
			Employees:          m.UsageEmployees,
			StorageGB:          m.UsageStorageGB,
			APICallsThisMonth:  m.UsageAPICallsThisMonth,
			ReportsThisMonth:   m.UsageReportsThisMonth,
			AIQueriesThisMonth: m.UsageAIQueriesThisMonth,
			LastResetDate:      m.UsageLastResetDate,
		},
		Metadata:  metadata,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		Version:   m.Version,
	}
}

// FromDomain populates the persistence model from a domain Tenant
func (m *TenantModel) FromDomain(t *tenancy.Tenant) {
	m.ID = t.ID
	m.Slug = t.Slug
	m.Name = t.Name
	m.ContactName = t.ContactName
	m.ContactEmail = t.ContactEmail
	m.ContactPhone = t.ContactPhone
	m.Industry = t.Industry
	m.Size = t.Size
	m.Status = string(t.Status)
	m.Plan = string(t.Plan)
	m.SubscriptionStatus = string(t.SubscriptionStatus)
	m.SubscriptionStartDate = t.SubscriptionStartDate
	m.SubscriptionEndDate = t.SubscriptionEndDate
	m.QuotaMaxUsers = t.Quotas.MaxUsers.StorageValue()
	m.QuotaMaxEmployees = t.Quotas.MaxEmployees.StorageValue()
	m.QuotaMaxStorageGB = t.Quotas.MaxStorageGB.StorageValue()
	m.QuotaMaxAPICallsPerMonth = t.Quotas.MaxAPICallsPerMonth.StorageValue()
	m.QuotaMaxReportsPerMonth = t.Quotas.MaxReportsPerMonth.StorageValue()
	m.QuotaMaxAIQueriesPerMonth = t.Quotas.MaxAIQueriesPerMonth.StorageValue()
	m.UsageUsers = t.Usage.Users
	m.UsageEmployees = t.Usage.Employees
	m.UsageStorageGB = t.Usage.StorageGB
	m.UsageAPICallsThisMonth = t.Usage.APICallsThisMonth
	m.UsageReportsThisMonth = t.Usage.ReportsThisMonth
	m.UsageAIQueriesThisMonth = t.Usage.AIQueriesThisMonth
	m.UsageLastResetDate = t.Usage.LastResetDate
	m.UsagePeriod = tenancy.UsagePeriod(t.Usage.LastResetDate)
	m.Metadata = t.Metadata
	m.Version = t.Version
	m.CreatedAt = t.CreatedAt
	m.UpdatedAt = t.UpdatedAt
}

// TenantModelFromDomain creates a new persistence model from a domain Tenant
func TenantModelFromDomain(t *tenancy.Tenant) *TenantModel {
	m := &TenantModel{}
	m.FromDomain(t)
	return m
}

// TenantConfigModel is the persistence model for TenantConfig. Each section
// is a JSON document.
type TenantConfigModel struct {
	TenantID       string                   `gorm:"type:varchar(64);primaryKey"`
	Features       tenancy.FeatureFlags     `gorm:"type:jsonb;serializer:json;not null"`
	Customizations map[string]any           `gorm:"type:jsonb;serializer:json"`
	Integrations   map[string]any           `gorm:"type:jsonb;serializer:json"`
	Security       tenancy.SecuritySettings `gorm:"type:jsonb;serializer:json;not null"`
	UpdatedAt      time.Time                `gorm:"not null;autoUpdateTime:false"`
}

// TableName returns the table name for GORM
func (TenantConfigModel) TableName() string {
	return "tenant_configs"
}

// ToDomain converts the persistence model to a domain TenantConfig
func (m *TenantConfigModel) ToDomain() *tenancy.TenantConfig {
	cfg := &tenancy.TenantConfig{
		TenantID:       m.TenantID,
		Features:       m.Features,
		Customizations: m.Customizations,
		Integrations:   m.Integrations,
		Security:       m.Security,
		UpdatedAt:      m.UpdatedAt,
	}
	if cfg.Customizations == nil {
		cfg.Customizations = map[string]any{}
	}
	if cfg.Integrations == nil {
		cfg.Integrations = map[string]any{}
	}
	return cfg
}

// TenantConfigModelFromDomain creates a persistence model from a domain TenantConfig
func TenantConfigModelFromDomain(c *tenancy.TenantConfig) *TenantConfigModel {
	return &TenantConfigModel{
		TenantID:       c.TenantID,
		Features:       c.Features,
		Customizations: c.Customizations,
		Integrations:   c.Integrations,
		Security:       c.Security,
		UpdatedAt:      c.UpdatedAt,
	}
}
