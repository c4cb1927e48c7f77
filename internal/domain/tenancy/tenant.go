package tenancy

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/shared"
)

// Status represents the lifecycle status of a tenant
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended" // may return to active
	StatusCancelled Status = "cancelled" // terminal
)

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusCancelled:
		return true
	}
	return false
}

// SubscriptionStatus represents the billing state of a tenant's subscription
type SubscriptionStatus string

const (
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// IsValid reports whether s is a known subscription status
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionTrial, SubscriptionActive, SubscriptionPastDue, SubscriptionCancelled:
		return true
	}
	return false
}

// DefaultTrialDays is the length of the trial granted at creation
const DefaultTrialDays = 30

// Metadata keys written by lifecycle operations
const (
	MetadataSuspendReason = "suspendReason"
	MetadataSuspendedAt   = "suspendedAt"
	MetadataReactivatedAt = "reactivatedAt"
	MetadataCancelledAt   = "cancelledAt"
)

// Usability reasons
const (
	ReasonSuspended           = "tenant suspended"
	ReasonCancelled           = "tenant cancelled"
	ReasonSubscriptionExpired = "subscription expired"
)

// Tenant is the unit of isolation and the aggregate root of the tenancy domain
type Tenant struct {
	ID                    string             `json:"id"`
	Slug                  string             `json:"slug"`
	Name                  string             `json:"name"`
	ContactName           string             `json:"contactName"`
	ContactEmail          string             `json:"contactEmail"`
	ContactPhone          string             `json:"contactPhone,omitempty"`
	Industry              string             `json:"industry"`
	Size                  string             `json:"size"`
	Status                Status             `json:"status"`
	Plan                  Plan               `json:"plan"`
	SubscriptionStatus    SubscriptionStatus `json:"subscriptionStatus"`
	SubscriptionStartDate time.Time          `json:"subscriptionStartDate"`
	SubscriptionEndDate   *time.Time         `json:"subscriptionEndDate,omitempty"`
	Quotas                TenantQuotas       `json:"quotas"`
	Usage                 TenantUsage        `json:"usage"`
	Metadata              map[string]any     `json:"metadata,omitempty"`
	CreatedAt             time.Time          `json:"createdAt"`
	UpdatedAt             time.Time          `json:"updatedAt"`
	Version               int                `json:"version"`
}

// NewTenantParams carries the fields required to create a tenant
type NewTenantParams struct {
	Name         string
	Slug         string
	ContactName  string
	ContactEmail string
	ContactPhone string
	Plan         Plan
	Industry     string
	Size         string
	TrialDays    int
}

// NewTenant creates an active tenant on a trial subscription
func NewTenant(p NewTenantParams, now time.Time) (*Tenant, error) {
	if err := ValidateSlug(p.Slug); err != nil {
		return nil, err
	}
	if !p.Plan.IsValid() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("invalid plan %q", p.Plan))
	}
	trialDays := p.TrialDays
	if trialDays <= 0 {
		trialDays = DefaultTrialDays
	}
	end := now.AddDate(0, 0, trialDays)

	return &Tenant{
		ID:                    uuid.NewString(),
		Slug:                  p.Slug,
		Name:                  p.Name,
		ContactName:           p.ContactName,
		ContactEmail:          p.ContactEmail,
		ContactPhone:          p.ContactPhone,
		Industry:              p.Industry,
		Size:                  p.Size,
		Status:                StatusActive,
		Plan:                  p.Plan,
		SubscriptionStatus:    SubscriptionTrial,
		SubscriptionStartDate: now,
		SubscriptionEndDate:   &end,
		Quotas:                QuotasFor(p.Plan),
		Usage:                 NewTenantUsage(now),
		Metadata:              map[string]any{},
		CreatedAt:             now,
		UpdatedAt:             now,
		Version:               1,
	}, nil
}

// Usability reports whether the tenant may be authorized at now, and if
// not, why. Expiry is computed on every call rather than stored.
func (t *Tenant) Usability(now time.Time) (bool, string) {
	switch t.Status {
	case StatusActive:
	case StatusSuspended:
		return false, ReasonSuspended
	case StatusCancelled:
		return false, ReasonCancelled
	default:
		return false, fmt.Sprintf("tenant %s", t.Status)
	}
	if t.IsSubscriptionExpired(now) {
		return false, ReasonSubscriptionExpired
	}
	return true, ""
}

// IsUsable reports whether status is active and the subscription has not ended
func (t *Tenant) IsUsable(now time.Time) bool {
	ok, _ := t.Usability(now)
	return ok
}

// IsSubscriptionExpired returns true once now is past the subscription end
func (t *Tenant) IsSubscriptionExpired(now time.Time) bool {
	if t.SubscriptionEndDate == nil {
		return false
	}
	return now.After(*t.SubscriptionEndDate)
}

// TenantUpdate is a shallow patch of tenant fields. Nil fields are left as
// they are. Plan, quotas and usage have dedicated operations.
type TenantUpdate struct {
	Name                *string             `json:"name,omitempty"`
	Slug                *string             `json:"slug,omitempty"`
	ContactName         *string             `json:"contactName,omitempty"`
	ContactEmail        *string             `json:"contactEmail,omitempty" validate:"omitempty,email"`
	ContactPhone        *string             `json:"contactPhone,omitempty"`
	Industry            *string             `json:"industry,omitempty"`
	Size                *string             `json:"size,omitempty"`
	Status              *Status             `json:"status,omitempty"`
	SubscriptionStatus  *SubscriptionStatus `json:"subscriptionStatus,omitempty"`
	SubscriptionEndDate *time.Time          `json:"subscriptionEndDate,omitempty"`
	Metadata            map[string]any      `json:"metadata,omitempty"`
}

// Apply merges the non-nil fields of u into the tenant
func (t *Tenant) Apply(u TenantUpdate, now time.Time) error {
	if u.Slug != nil {
		if err := ValidateSlug(*u.Slug); err != nil {
			return err
		}
	}
	if u.Status != nil && !u.Status.IsValid() {
		return shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("invalid status %q", *u.Status))
	}
	if u.SubscriptionStatus != nil && !u.SubscriptionStatus.IsValid() {
		return shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("invalid subscription status %q", *u.SubscriptionStatus))
	}
	if t.Status == StatusCancelled {
		if u.Status != nil && *u.Status != StatusCancelled {
			return shared.NewDomainError(shared.CodeInvalidState, "cancelled tenant cannot change status")
		}
		if u.SubscriptionStatus != nil && *u.SubscriptionStatus != SubscriptionCancelled {
			return shared.NewDomainError(shared.CodeInvalidState, "cancelled tenant cannot change subscription status")
		}
	}

	setString(&t.Name, u.Name)
	setString(&t.Slug, u.Slug)
	setString(&t.ContactName, u.ContactName)
	setString(&t.ContactEmail, u.ContactEmail)
	setString(&t.ContactPhone, u.ContactPhone)
	setString(&t.Industry, u.Industry)
	setString(&t.Size, u.Size)
	if u.SubscriptionStatus != nil {
		t.SubscriptionStatus = *u.SubscriptionStatus
	}
	if u.SubscriptionEndDate != nil {
		end := *u.SubscriptionEndDate
		t.SubscriptionEndDate = &end
	}
	if u.Metadata != nil {
		t.Metadata = cloneMap(u.Metadata)
	}
	if u.Status != nil && *u.Status != t.Status {
		t.moveTo(*u.Status, now)
		return nil
	}
	t.touch(now)
	return nil
}

// moveTo changes status through the lifecycle methods so their metadata
// stamps are written. Leaving cancelled is rejected by the caller.
func (t *Tenant) moveTo(status Status, now time.Time) {
	switch status {
	case StatusCancelled:
		t.Cancel(now)
	case StatusSuspended:
		reason, _ := t.Metadata[MetadataSuspendReason].(string)
		_ = t.Suspend(reason, now)
	case StatusActive:
		_ = t.Reactivate(now)
	}
}

// ChangePlan moves the tenant to plan p and recomputes its quotas. Usage is
// kept as is, so a downgrade can leave the tenant over quota.
func (t *Tenant) ChangePlan(p Plan, now time.Time) error {
	if !p.IsValid() {
		return shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("invalid plan %q", p))
	}
	t.Plan = p
	t.Quotas = QuotasFor(p)
	t.touch(now)
	return nil
}

// Suspend blocks the tenant and records why. Other metadata is preserved.
func (t *Tenant) Suspend(reason string, now time.Time) error {
	if t.Status == StatusCancelled {
		return shared.NewDomainError(shared.CodeInvalidState, "cancelled tenant cannot be suspended")
	}
	t.Status = StatusSuspended
	t.setMetadata(MetadataSuspendReason, reason)
	t.setMetadata(MetadataSuspendedAt, now.UTC().Format(time.RFC3339))
	t.touch(now)
	return nil
}

// Reactivate returns a suspended tenant to active
func (t *Tenant) Reactivate(now time.Time) error {
	switch t.Status {
	case StatusCancelled:
		return shared.NewDomainError(shared.CodeInvalidState, "cancelled tenant cannot be reactivated")
	case StatusActive:
		return shared.NewDomainError(shared.CodeInvalidState, "tenant is not suspended")
	}
	t.Status = StatusActive
	t.setMetadata(MetadataReactivatedAt, now.UTC().Format(time.RFC3339))
	t.touch(now)
	return nil
}

// Cancel ends the subscription now. Cancellation is a status change, the
// record is kept.
func (t *Tenant) Cancel(now time.Time) {
	end := now
	t.Status = StatusCancelled
	t.SubscriptionStatus = SubscriptionCancelled
	t.SubscriptionEndDate = &end
	t.setMetadata(MetadataCancelledAt, now.UTC().Format(time.RFC3339))
	t.touch(now)
}

// Clone returns a deep copy so cached values are never shared mutably
func (t *Tenant) Clone() *Tenant {
	out := *t
	if t.SubscriptionEndDate != nil {
		end := *t.SubscriptionEndDate
		out.SubscriptionEndDate = &end
	}
	out.Metadata = cloneMap(t.Metadata)
	return &out
}

func (t *Tenant) setMetadata(key string, value any) {
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	t.Metadata[key] = value
}

func (t *Tenant) touch(now time.Time) {
	t.UpdatedAt = now
	t.Version++
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// ValidateSlug checks that a slug is usable as a DNS label
func ValidateSlug(slug string) error {
	if len(slug) < 2 || len(slug) > 63 {
		return shared.NewDomainError(shared.CodeInvalidInput, "slug must be between 2 and 63 characters")
	}
	for i, r := range slug {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if alnum {
			continue
		}
		if r == '-' && i != 0 && i != len(slug)-1 {
			continue
		}
		return shared.NewDomainError(shared.CodeInvalidInput, "slug may only contain lowercase letters, digits and inner hyphens")
	}
	return nil
}

// TenantStats reports usage against quotas with a rounded percentage per quota key
type TenantStats struct {
	TenantID    string         `json:"tenantId"`
	Plan        Plan           `json:"plan"`
	Usage       TenantUsage    `json:"usage"`
	Quotas      TenantQuotas   `json:"quotas"`
	Percentages map[string]int `json:"percentages"`
}

// Stats computes the usage percentages of every quota
func (t *Tenant) Stats() *TenantStats {
	pct := make(map[string]int, len(AllResources))
	for _, r := range AllResources {
		pct[r.QuotaKey()] = t.Quotas.Get(r).Percent(t.Usage.Get(r))
	}
	return &TenantStats{
		TenantID:    t.ID,
		Plan:        t.Plan,
		Usage:       t.Usage,
		Quotas:      t.Quotas,
		Percentages: pct,
	}
}
