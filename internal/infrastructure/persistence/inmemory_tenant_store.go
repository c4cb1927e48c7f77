package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/shared"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
)

// InMemoryTenantStore is a process-local tenancy.TenantStore for development
// and tests. All values are copied in and out.
type InMemoryTenantStore struct {
	mu      sync.RWMutex
	tenants map[string]*tenancy.Tenant
	slugs   map[string]string
	configs map[string]*tenancy.TenantConfig
}

// NewInMemoryTenantStore creates an empty store
func NewInMemoryTenantStore() *InMemoryTenantStore {
	return &InMemoryTenantStore{
		tenants: make(map[string]*tenancy.Tenant),
		slugs:   make(map[string]string),
		configs: make(map[string]*tenancy.TenantConfig),
	}
}

// FindByID finds a tenant by its id
func (s *InMemoryTenantStore) FindByID(ctx context.Context, id string) (*tenancy.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, shared.NewDomainError(shared.CodeNotFound, "tenant not found")
	}
	return t.Clone(), nil
}

// FindBySlug finds a tenant by its slug
func (s *InMemoryTenantStore) FindBySlug(ctx context.Context, slug string) (*tenancy.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.slugs[slug]
	if !ok {
		return nil, shared.NewDomainError(shared.CodeNotFound, "tenant not found")
	}
	return s.tenants[id].Clone(), nil
}

// Create inserts a new tenant
func (s *InMemoryTenantStore) Create(ctx context.Context, t *tenancy.Tenant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[t.ID]; ok {
		return shared.NewDomainError(shared.CodeAlreadyExists, "tenant already exists")
	}
	if _, ok := s.slugs[t.Slug]; ok {
		return shared.NewDomainError(shared.CodeAlreadyExists, "slug already exists")
	}
	s.tenants[t.ID] = t.Clone()
	s.slugs[t.Slug] = t.ID
	return nil
}

// Update replaces everything but the usage counters when the version matches
func (s *InMemoryTenantStore) Update(ctx context.Context, t *tenancy.Tenant, expectedVersion int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tenants[t.ID]
	if !ok {
		return shared.NewDomainError(shared.CodeNotFound, "tenant not found")
	}
	if current.Version != expectedVersion {
		return shared.NewDomainError(shared.CodeConcurrencyConflict,
			fmt.Sprintf("tenant %s was modified concurrently (expected version %d)", t.ID, expectedVersion))
	}
	if owner, taken := s.slugs[t.Slug]; taken && owner != t.ID {
		return shared.NewDomainError(shared.CodeAlreadyExists, "slug already exists")
	}

	next := t.Clone()
	next.Usage = current.Usage
	delete(s.slugs, current.Slug)
	s.slugs[next.Slug] = next.ID
	s.tenants[next.ID] = next
	return nil
}

// IncrementUsage applies the rollover and increment under the store lock
func (s *InMemoryTenantStore) IncrementUsage(ctx context.Context, id string, r tenancy.Resource, by int64, now time.Time) (*tenancy.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, shared.NewDomainError(shared.CodeNotFound, "tenant not found")
	}
	t.Usage.ApplyIncrement(r, by, now)
	return t.Clone(), nil
}

// ConsumeUsage increments only when the quota of r admits it
func (s *InMemoryTenantStore) ConsumeUsage(ctx context.Context, id string, r tenancy.Resource, by int64, now time.Time) (*tenancy.Tenant, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, false, shared.NewDomainError(shared.CodeNotFound, "tenant not found")
	}
	usage := t.Usage
	usage.RollOver(now)
	if !t.Quotas.Get(r).Admits(usage.Get(r), by) {
		return t.Clone(), false, nil
	}
	t.Usage.ApplyIncrement(r, by, now)
	return t.Clone(), true, nil
}

// FindConfig finds the stored config of a tenant
func (s *InMemoryTenantStore) FindConfig(ctx context.Context, tenantID string) (*tenancy.TenantConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[tenantID]
	if !ok {
		return nil, shared.NewDomainError(shared.CodeNotFound, "tenant config not found")
	}
	return cfg.Clone(), nil
}

// SaveConfig stores the config of a tenant
func (s *InMemoryTenantStore) SaveConfig(ctx context.Context, cfg *tenancy.TenantConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.configs[cfg.TenantID] = cfg.Clone()
	return nil
}

// Ensure InMemoryTenantStore implements TenantStore
var _ tenancy.TenantStore = (*InMemoryTenantStore)(nil)
