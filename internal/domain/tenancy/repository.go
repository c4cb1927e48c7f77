package tenancy

import (
	"context"
	"time"
)

// TenantStore persists tenants and their configs. Lookups of missing records
// return an error matching shared.ErrNotFound.
type TenantStore interface {
	// FindByID loads a tenant by id
	FindByID(ctx context.Context, id string) (*Tenant, error)

	// FindBySlug loads a tenant by its unique slug
	FindBySlug(ctx context.Context, slug string) (*Tenant, error)

	// Create inserts a new tenant. A duplicate id or slug yields shared.ErrAlreadyExists.
	Create(ctx context.Context, t *Tenant) error

	// Update writes every field except the usage counters, provided the
	// stored version still equals expectedVersion. A stale version yields
	// shared.ErrConcurrencyConflict.
	Update(ctx context.Context, t *Tenant, expectedVersion int) error

	// IncrementUsage atomically applies the monthly rollover for now and
	// adds by to the counter of r, returning the updated tenant.
	IncrementUsage(ctx context.Context, id string, r Resource, by int64, now time.Time) (*Tenant, error)

	// ConsumeUsage is IncrementUsage guarded by the quota of r: the counter
	// only moves when it stays within the ceiling afterwards. consumed is
	// false when it would not; the tenant is returned either way.
	ConsumeUsage(ctx context.Context, id string, r Resource, by int64, now time.Time) (t *Tenant, consumed bool, err error)

	// FindConfig loads the stored config of a tenant
	FindConfig(ctx context.Context, tenantID string) (*TenantConfig, error)

	// SaveConfig inserts or replaces the config of a tenant
	SaveConfig(ctx context.Context, cfg *TenantConfig) error
}
