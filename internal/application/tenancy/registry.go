package tenancy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/shared"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultStoreTimeout = 3 * time.Second
	defaultCacheTTL     = 5 * time.Minute
)

// Metrics receives registry observations. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveCacheLookup(kind string, hit bool)
	ObserveQuotaCheck(resource tenancy.Resource, exceeded bool)
	ObserveUsageIncrement(resource tenancy.Resource, by int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveCacheLookup(string, bool) {}

func (noopMetrics) ObserveQuotaCheck(tenancy.Resource, bool) {}

func (noopMetrics) ObserveUsageIncrement(tenancy.Resource, int64) {}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, *tenancy.Event) error { return nil }

// TenantRegistry owns tenants and their configs: it creates and mutates them
// through the store, keeps a read cache in front of it and publishes
// lifecycle events. One instance is built at process start and shared.
type TenantRegistry struct {
	store        tenancy.TenantStore
	cache        tenancy.Cache
	cacheTTL     time.Duration
	events       tenancy.EventPublisher
	metrics      Metrics
	logger       *zap.Logger
	now          func() time.Time
	storeTimeout time.Duration
	trialDays    int
	validate     *validator.Validate
	loads        singleflight.Group
	locks        *keyedMutex
	fills        *fillGuard
}

// Option configures a TenantRegistry
type Option func(*TenantRegistry)

// WithCache puts c in front of the store. Entries live for ttl.
func WithCache(c tenancy.Cache, ttl time.Duration) Option {
	return func(r *TenantRegistry) {
		r.cache = c
		if ttl > 0 {
			r.cacheTTL = ttl
		}
	}
}

// WithEventPublisher sets where lifecycle events go
func WithEventPublisher(p tenancy.EventPublisher) Option {
	return func(r *TenantRegistry) {
		r.events = p
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(r *TenantRegistry) {
		r.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *TenantRegistry) {
		r.logger = l
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(r *TenantRegistry) {
		r.now = now
	}
}

// WithStoreTimeout bounds every store call
func WithStoreTimeout(d time.Duration) Option {
	return func(r *TenantRegistry) {
		if d > 0 {
			r.storeTimeout = d
		}
	}
}

// WithTrialDays sets the trial length granted at creation
func WithTrialDays(days int) Option {
	return func(r *TenantRegistry) {
		if days > 0 {
			r.trialDays = days
		}
	}
}

// NewTenantRegistry creates a registry backed by store
func NewTenantRegistry(store tenancy.TenantStore, opts ...Option) *TenantRegistry {
	r := &TenantRegistry{
		store:        store,
		cache:        nopCache{},
		cacheTTL:     defaultCacheTTL,
		events:       noopPublisher{},
		metrics:      noopMetrics{},
		logger:       zap.NewNop(),
		now:          time.Now,
		storeTimeout: defaultStoreTimeout,
		trialDays:    tenancy.DefaultTrialDays,
		validate:     newValidator(),
		locks:        newKeyedMutex(),
		fills:        newFillGuard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateTenantInput contains input for creating a tenant
type CreateTenantInput struct {
	Name         string `json:"name" validate:"required,max=200"`
	Slug         string `json:"slug" validate:"required,min=2,max=63"`
	ContactName  string `json:"contactName" validate:"required,max=100"`
	ContactEmail string `json:"contactEmail" validate:"required,email"`
	ContactPhone string `json:"contactPhone" validate:"omitempty,max=50"`
	Plan         string `json:"plan" validate:"required,oneof=free basic professional enterprise"`
	Industry     string `json:"industry" validate:"required,max=100"`
	Size         string `json:"size" validate:"required,max=50"`
}

// GetTenantByID returns the tenant with id, or nil when there is none.
// A missing tenant is not an error.
func (r *TenantRegistry) GetTenantByID(ctx context.Context, id string) (*tenancy.Tenant, error) {
	if id == "" {
		return nil, nil
	}
	if t, ok := r.cachedTenant(ctx, tenancy.TenantCacheKey(id)); ok {
		return t, nil
	}

	v, err, _ := r.loads.Do("id:"+id, func() (any, error) {
		gen := r.fills.generation(id)
		sctx, cancel := r.sharedLoadContext(ctx)
		defer cancel()
		t, err := r.store.FindByID(sctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, nil
			}
			return nil, r.storeError("load tenant", err)
		}
		r.fillTenant(sctx, t, gen)
		r.cacheSlug(sctx, t)
		return t, nil
	})
	if err != nil || v == nil {
		return nil, err
	}
	return v.(*tenancy.Tenant).Clone(), nil
}

// GetTenantBySlug returns the tenant with slug, or nil when there is none
func (r *TenantRegistry) GetTenantBySlug(ctx context.Context, slug string) (*tenancy.Tenant, error) {
	if slug == "" {
		return nil, nil
	}
	if data, ok := r.cacheGet(ctx, "slug", tenancy.SlugCacheKey(slug)); ok {
		t, err := r.GetTenantByID(ctx, string(data))
		if err != nil {
			return nil, err
		}
		if t != nil && t.Slug == slug {
			return t, nil
		}
		r.cacheInvalidate(ctx, tenancy.SlugCacheKey(slug))
	}

	v, err, _ := r.loads.Do("slug:"+slug, func() (any, error) {
		sctx, cancel := r.sharedLoadContext(ctx)
		defer cancel()
		t, err := r.store.FindBySlug(sctx, slug)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, nil
			}
			return nil, r.storeError("load tenant by slug", err)
		}
		// The id is only known after the read, so the tenant entry is left
		// to the id path where fills are ordered against writes.
		r.cacheSlug(sctx, t)
		return t, nil
	})
	if err != nil || v == nil {
		return nil, err
	}
	return v.(*tenancy.Tenant).Clone(), nil
}

// GetTenantConfig returns the stored config of a tenant, or the default
// config when none was stored yet. The default is cached but not persisted.
func (r *TenantRegistry) GetTenantConfig(ctx context.Context, id string) (*tenancy.TenantConfig, error) {
	key := tenancy.ConfigCacheKey(id)
	if data, ok := r.cacheGet(ctx, "config", key); ok {
		var cfg tenancy.TenantConfig
		if err := json.Unmarshal(data, &cfg); err == nil {
			return &cfg, nil
		}
		r.cacheInvalidate(ctx, key)
	}

	cfg, err := r.loadConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cacheConfig(ctx, cfg)
	return cfg, nil
}

// CreateTenant validates input and creates an active tenant on a trial
// subscription with quotas taken from its plan.
func (r *TenantRegistry) CreateTenant(ctx context.Context, input CreateTenantInput) (*tenancy.Tenant, error) {
	if err := r.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	r.logger.Info("Creating new tenant",
		zap.String("slug", input.Slug),
		zap.String("plan", input.Plan))

	t, err := tenancy.NewTenant(tenancy.NewTenantParams{
		Name:         input.Name,
		Slug:         input.Slug,
		ContactName:  input.ContactName,
		ContactEmail: input.ContactEmail,
		ContactPhone: input.ContactPhone,
		Plan:         tenancy.Plan(input.Plan),
		Industry:     input.Industry,
		Size:         input.Size,
		TrialDays:    r.trialDays,
	}, r.now())
	if err != nil {
		return nil, err
	}

	sctx, cancel := r.storeContext(ctx)
	defer cancel()
	if err := r.store.Create(sctx, t); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, shared.WrapDomainError(shared.CodeAlreadyExists, fmt.Sprintf("slug %q is already taken", t.Slug), err)
		}
		return nil, r.storeError("create tenant", err)
	}

	r.fillTenant(ctx, t, r.fills.generation(t.ID))
	r.cacheSlug(ctx, t)
	r.publish(ctx, tenancy.EventTenantCreated, t.ID, map[string]any{
		"slug": t.Slug,
		"plan": t.Plan,
	})

	r.logger.Info("Tenant created successfully",
		zap.String("tenant_id", t.ID),
		zap.String("slug", t.Slug))

	return t.Clone(), nil
}

// UpdateTenant shallow-merges the non-nil fields of update into the tenant
func (r *TenantRegistry) UpdateTenant(ctx context.Context, id string, update tenancy.TenantUpdate) (*tenancy.Tenant, error) {
	if err := r.validate.Struct(update); err != nil {
		return nil, validationError(err)
	}
	return r.mutate(ctx, id, "update tenant", func(t *tenancy.Tenant, now time.Time) (tenancy.EventType, map[string]any, error) {
		if err := t.Apply(update, now); err != nil {
			return "", nil, err
		}
		return tenancy.EventTenantUpdated, nil, nil
	})
}

// ChangePlan moves the tenant to plan and recomputes its quotas. Usage is
// left untouched.
func (r *TenantRegistry) ChangePlan(ctx context.Context, id string, plan tenancy.Plan) (*tenancy.Tenant, error) {
	return r.mutate(ctx, id, "change plan", func(t *tenancy.Tenant, now time.Time) (tenancy.EventType, map[string]any, error) {
		from := t.Plan
		if err := t.ChangePlan(plan, now); err != nil {
			return "", nil, err
		}
		return tenancy.EventTenantPlanChanged, map[string]any{"from": from, "to": plan}, nil
	})
}

// SuspendTenant blocks the tenant and records reason in its metadata
func (r *TenantRegistry) SuspendTenant(ctx context.Context, id, reason string) (*tenancy.Tenant, error) {
	return r.mutate(ctx, id, "suspend tenant", func(t *tenancy.Tenant, now time.Time) (tenancy.EventType, map[string]any, error) {
		if err := t.Suspend(reason, now); err != nil {
			return "", nil, err
		}
		return tenancy.EventTenantSuspended, map[string]any{"reason": reason}, nil
	})
}

// ReactivateTenant returns a suspended tenant to active
func (r *TenantRegistry) ReactivateTenant(ctx context.Context, id string) (*tenancy.Tenant, error) {
	return r.mutate(ctx, id, "reactivate tenant", func(t *tenancy.Tenant, now time.Time) (tenancy.EventType, map[string]any, error) {
		if err := t.Reactivate(now); err != nil {
			return "", nil, err
		}
		return tenancy.EventTenantReactivated, nil, nil
	})
}

// CancelTenant cancels the tenant and ends its subscription now
func (r *TenantRegistry) CancelTenant(ctx context.Context, id string) (*tenancy.Tenant, error) {
	return r.mutate(ctx, id, "cancel tenant", func(t *tenancy.Tenant, now time.Time) (tenancy.EventType, map[string]any, error) {
		t.Cancel(now)
		return tenancy.EventTenantCancelled, nil, nil
	})
}

// UpdateTenantConfig deep-merges patch onto the tenant's config (or the
// default config if none is stored) and persists the result.
func (r *TenantRegistry) UpdateTenantConfig(ctx context.Context, id string, patch map[string]any) (*tenancy.TenantConfig, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	if _, err := r.requireTenant(ctx, id); err != nil {
		return nil, err
	}
	current, err := r.loadConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	merged, err := current.Merge(patch)
	if err != nil {
		return nil, err
	}
	merged.UpdatedAt = r.now()

	sctx, cancel := r.storeContext(ctx)
	defer cancel()
	if err := r.store.SaveConfig(sctx, merged); err != nil {
		return nil, r.storeError("save tenant config", err)
	}

	r.cacheConfig(ctx, merged)
	r.publish(ctx, tenancy.EventTenantConfigUpdated, id, map[string]any{"keys": lo.Keys(patch)})
	r.logger.Info("Tenant config updated", zap.String("tenant_id", id))

	return merged.Clone(), nil
}

// IsTenantActive reports whether the tenant exists, is active and its
// subscription has not ended
func (r *TenantRegistry) IsTenantActive(ctx context.Context, id string) (bool, error) {
	t, err := r.GetTenantByID(ctx, id)
	if err != nil || t == nil {
		return false, err
	}
	return t.IsUsable(r.now()), nil
}

// CheckQuota compares the tenant's usage of the resource named by key with
// its ceiling. key may be a quota key ("maxEmployees") or a usage key ("employees").
func (r *TenantRegistry) CheckQuota(ctx context.Context, id, key string) (*tenancy.QuotaCheck, error) {
	res, err := tenancy.ParseResource(key)
	if err != nil {
		return nil, err
	}
	t, err := r.requireTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	check := tenancy.CheckQuota(t.Quotas, r.currentUsage(t), res)
	r.metrics.ObserveQuotaCheck(res, check.Exceeded)
	return &check, nil
}

// UpdateUsage adds by to the tenant's counter for key. The monthly counters
// are reset first when the month changed since the last reset. The
// increment is applied atomically by the store.
func (r *TenantRegistry) UpdateUsage(ctx context.Context, id, key string, by int64) (*tenancy.Tenant, error) {
	res, err := tenancy.ParseResource(key)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, errTenantNotFound(id)
	}

	sctx, cancel := r.storeContext(ctx)
	defer cancel()
	t, err := r.store.IncrementUsage(sctx, id, res, by, r.now())
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, errTenantNotFound(id)
		}
		return nil, r.storeError("update usage", err)
	}

	r.invalidateTenant(ctx, id)
	r.metrics.ObserveUsageIncrement(res, by)

	limit := t.Quotas.Get(res)
	current := t.Usage.Get(res)
	if by > 0 && limit.Exceeded(current) && !limit.Exceeded(current-by) {
		r.logger.Warn("Tenant reached quota",
			zap.String("tenant_id", id),
			zap.String("resource", res.QuotaKey()),
			zap.Int64("current", current),
			zap.String("max", limit.String()))
		r.publish(ctx, tenancy.EventTenantQuotaExceeded, id, map[string]any{
			"resource": res.QuotaKey(),
			"current":  current,
			"max":      limit,
		})
	}
	return t.Clone(), nil
}

// ConsumeUsage adds by to the tenant's counter for key only when its quota
// admits it. The check and the increment are one store operation, so
// concurrent consumers cannot overrun the ceiling. consumed reports whether
// the counter moved; the returned check describes the counter afterwards.
func (r *TenantRegistry) ConsumeUsage(ctx context.Context, id, key string, by int64) (*tenancy.QuotaCheck, bool, error) {
	res, err := tenancy.ParseResource(key)
	if err != nil {
		return nil, false, err
	}
	if id == "" {
		return nil, false, errTenantNotFound(id)
	}

	sctx, cancel := r.storeContext(ctx)
	defer cancel()
	t, consumed, err := r.store.ConsumeUsage(sctx, id, res, by, r.now())
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, false, errTenantNotFound(id)
		}
		return nil, false, r.storeError("consume usage", err)
	}

	check := tenancy.CheckQuota(t.Quotas, r.currentUsage(t), res)
	if !consumed {
		r.metrics.ObserveQuotaCheck(res, true)
		r.logger.Info("Usage refused at quota",
			zap.String("tenant_id", id),
			zap.String("resource", res.QuotaKey()),
			zap.Int64("current", check.Current),
			zap.String("max", check.Max.String()))
		return &check, false, nil
	}

	r.invalidateTenant(ctx, id)
	r.metrics.ObserveUsageIncrement(res, by)
	return &check, true, nil
}

// GetTenantStats reports usage, quotas and the rounded usage percentage of
// every quota
func (r *TenantRegistry) GetTenantStats(ctx context.Context, id string) (*tenancy.TenantStats, error) {
	t, err := r.requireTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Usage = r.currentUsage(t)
	return t.Stats(), nil
}

// FeatureSet computes the features the tenant may use
func (r *TenantRegistry) FeatureSet(ctx context.Context, id string) (*tenancy.FeatureSet, error) {
	t, err := r.requireTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.featureSetFor(ctx, t)
}

// CheckFeature runs the plan/config gate and the quota gate for feature.
// A missing tenant yields an unavailable result rather than an error.
func (r *TenantRegistry) CheckFeature(ctx context.Context, id, feature string) (*tenancy.FeatureCheck, error) {
	t, err := r.GetTenantByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return &tenancy.FeatureCheck{
			Feature: feature,
			Reason:  tenancy.ReasonTenantNotFound,
			Cause:   tenancy.DenialTenant,
		}, nil
	}
	set, err := r.featureSetFor(ctx, t)
	if err != nil {
		return nil, err
	}
	check := tenancy.EvaluateFeature(set, t.Quotas, r.currentUsage(t), feature)
	if check.Resource != "" {
		r.metrics.ObserveQuotaCheck(check.Resource, check.Cause == tenancy.DenialQuota)
	}
	return &check, nil
}

// Now returns the registry clock's current time
func (r *TenantRegistry) Now() time.Time {
	return r.now()
}

func (r *TenantRegistry) featureSetFor(ctx context.Context, t *tenancy.Tenant) (*tenancy.FeatureSet, error) {
	cfg, err := r.GetTenantConfig(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	return tenancy.NewFeatureSet(t.Plan, cfg.Features), nil
}

// currentUsage returns the usage as it would read after a rollover, so
// checks in a new month do not count last month's traffic.
func (r *TenantRegistry) currentUsage(t *tenancy.Tenant) tenancy.TenantUsage {
	usage := t.Usage
	usage.RollOver(r.now())
	return usage
}

type mutation func(t *tenancy.Tenant, now time.Time) (tenancy.EventType, map[string]any, error)

// mutate loads the tenant from the store, applies fn and writes it back
// guarded by the version it was read at
func (r *TenantRegistry) mutate(ctx context.Context, id, op string, fn mutation) (*tenancy.Tenant, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	t, err := r.loadFromStore(ctx, id)
	if err != nil {
		return nil, err
	}
	oldSlug := t.Slug
	expected := t.Version

	event, payload, err := fn(t, r.now())
	if err != nil {
		return nil, err
	}

	sctx, cancel := r.storeContext(ctx)
	defer cancel()
	if err := r.store.Update(sctx, t, expected); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, errTenantNotFound(id)
		}
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, shared.WrapDomainError(shared.CodeAlreadyExists, fmt.Sprintf("slug %q is already taken", t.Slug), err)
		}
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			r.invalidateTenant(ctx, id)
			return nil, err
		}
		return nil, r.storeError(op, err)
	}

	// The store keeps its own usage columns, which may be newer than the
	// ones read above, so the entry is dropped rather than overwritten.
	r.invalidateTenant(ctx, id)
	if oldSlug != t.Slug {
		r.cacheInvalidate(ctx, tenancy.SlugCacheKey(oldSlug))
	}
	r.cacheSlug(ctx, t)
	r.publish(ctx, event, id, payload)

	r.logger.Info("Tenant mutation applied",
		zap.String("tenant_id", id),
		zap.String("operation", op),
		zap.Int("version", t.Version))

	return t.Clone(), nil
}

// requireTenant is the cache-first lookup for commands that need a tenant
func (r *TenantRegistry) requireTenant(ctx context.Context, id string) (*tenancy.Tenant, error) {
	t, err := r.GetTenantByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errTenantNotFound(id)
	}
	return t, nil
}

func (r *TenantRegistry) loadFromStore(ctx context.Context, id string) (*tenancy.Tenant, error) {
	if id == "" {
		return nil, errTenantNotFound(id)
	}
	sctx, cancel := r.storeContext(ctx)
	defer cancel()
	t, err := r.store.FindByID(sctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, errTenantNotFound(id)
		}
		return nil, r.storeError("load tenant", err)
	}
	return t, nil
}

func (r *TenantRegistry) loadConfig(ctx context.Context, id string) (*tenancy.TenantConfig, error) {
	sctx, cancel := r.storeContext(ctx)
	defer cancel()
	cfg, err := r.store.FindConfig(sctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return tenancy.DefaultTenantConfig(id), nil
		}
		return nil, r.storeError("load tenant config", err)
	}
	return cfg, nil
}

func (r *TenantRegistry) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.storeTimeout)
}

// sharedLoadContext bounds a load that singleflight may hand to several
// callers. It keeps the values of ctx but not its cancellation, so the
// caller that started the load cannot fail the ones waiting on it.
func (r *TenantRegistry) sharedLoadContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.storeTimeout)
}

// storeError classifies a store failure as TIMEOUT or PERSISTENCE_FAILURE.
// A caller that went away gets its cancellation back unchanged.
func (r *TenantRegistry) storeError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		r.logger.Error("Tenant store unavailable", zap.String("operation", op), zap.Error(err))
		return shared.WrapDomainError(shared.CodeTimeout, op+" timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		r.logger.Debug("Tenant store call cancelled", zap.String("operation", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if de, ok := shared.AsDomainError(err); ok && de.Code != shared.CodePersistenceFailure && de.Code != shared.CodeTimeout {
		return err
	}
	r.logger.Error("Tenant store failed", zap.String("operation", op), zap.Error(err))
	return shared.WrapDomainError(shared.CodePersistenceFailure, "failed to "+op, err)
}

func (r *TenantRegistry) publish(ctx context.Context, typ tenancy.EventType, tenantID string, payload map[string]any) {
	event := tenancy.NewEvent(typ, tenantID, r.now(), payload)
	if err := r.events.Publish(ctx, event); err != nil {
		r.logger.Warn("Failed to publish tenant event",
			zap.String("event_type", string(typ)),
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}
}

func errTenantNotFound(id string) error {
	return shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("tenant %q not found", id))
}
