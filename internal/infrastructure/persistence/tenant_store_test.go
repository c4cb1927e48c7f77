package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/shared"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/persistence/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTenantTestDB(t *testing.T) *gorm.DB {
	db, err := Open(sqlite.Open(":memory:"), nil)
	require.NoError(t, err)

	// every connection to :memory: is a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.TenantModel{}, &models.TenantConfigModel{}))
	return db
}

func newTestTenant(t *testing.T, slug string, plan tenancy.Plan, now time.Time) *tenancy.Tenant {
	tenant, err := tenancy.NewTenant(tenancy.NewTenantParams{
		Name:         "Acme " + slug,
		Slug:         slug,
		ContactName:  "Ada",
		ContactEmail: "ada@" + slug + ".test",
		Plan:         plan,
		Industry:     "software",
		Size:         "11-50",
	}, now)
	require.NoError(t, err)
	return tenant
}

// storeFactories runs the same contract against both store implementations
func storeFactories(t *testing.T) map[string]func() tenancy.TenantStore {
	return map[string]func() tenancy.TenantStore{
		"gorm": func() tenancy.TenantStore {
			return NewGormTenantStore(setupTenantTestDB(t))
		},
		"memory": func() tenancy.TenantStore {
			return NewInMemoryTenantStore()
		},
	}
}

func TestTenantStore_CreateAndFind(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			ctx := context.Background()
			tenant := newTestTenant(t, "acme", tenancy.PlanEnterprise, now)
			tenant.Metadata = map[string]any{"source": "signup"}

			require.NoError(t, store.Create(ctx, tenant))

			byID, err := store.FindByID(ctx, tenant.ID)
			require.NoError(t, err)
			assert.Equal(t, tenant.Slug, byID.Slug)
			assert.Equal(t, tenancy.StatusActive, byID.Status)
			assert.True(t, byID.Quotas.MaxUsers.IsUnlimited())
			assert.Equal(t, "signup", byID.Metadata["source"])
			assert.Equal(t, 1, byID.Version)

			bySlug, err := store.FindBySlug(ctx, "acme")
			require.NoError(t, err)
			assert.Equal(t, tenant.ID, bySlug.ID)

			_, err = store.FindByID(ctx, "missing")
			assert.True(t, errors.Is(err, shared.ErrNotFound))

			_, err = store.FindBySlug(ctx, "missing")
			assert.True(t, errors.Is(err, shared.ErrNotFound))
		})
	}
}

func TestTenantStore_SlugUniqueness(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			ctx := context.Background()
			require.NoError(t, store.Create(ctx, newTestTenant(t, "acme", tenancy.PlanFree, now)))

			err := store.Create(ctx, newTestTenant(t, "acme", tenancy.PlanBasic, now))

			assert.True(t, errors.Is(err, shared.ErrAlreadyExists))
		})
	}
}

func TestTenantStore_Update(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			ctx := context.Background()
			tenant := newTestTenant(t, "acme", tenancy.PlanFree, now)
			require.NoError(t, store.Create(ctx, tenant))
			_, err := store.IncrementUsage(ctx, tenant.ID, tenancy.ResourceEmployees, 4, now)
			require.NoError(t, err)

			t.Run("writes fields but never usage", func(t *testing.T) {
				stale, err := store.FindByID(ctx, tenant.ID)
				require.NoError(t, err)
				stale.Usage = tenancy.TenantUsage{LastResetDate: now}
				require.NoError(t, stale.ChangePlan(tenancy.PlanBasic, now))

				require.NoError(t, store.Update(ctx, stale, 1))

				loaded, err := store.FindByID(ctx, tenant.ID)
				require.NoError(t, err)
				assert.Equal(t, tenancy.PlanBasic, loaded.Plan)
				assert.Equal(t, tenancy.Limited(50), loaded.Quotas.MaxEmployees)
				assert.Equal(t, int64(4), loaded.Usage.Employees)
				assert.Equal(t, 2, loaded.Version)
			})

			t.Run("stale version conflicts", func(t *testing.T) {
				loaded, err := store.FindByID(ctx, tenant.ID)
				require.NoError(t, err)
				err = store.Update(ctx, loaded, 1)
				assert.True(t, errors.Is(err, shared.ErrConcurrencyConflict))
			})

			t.Run("missing tenant", func(t *testing.T) {
				ghost := newTestTenant(t, "ghost", tenancy.PlanFree, now)
				err := store.Update(ctx, ghost, 1)
				assert.True(t, errors.Is(err, shared.ErrNotFound))
			})
		})
	}
}

func TestTenantStore_IncrementUsage(t *testing.T) {
	march := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	april := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			ctx := context.Background()
			tenant := newTestTenant(t, "acme", tenancy.PlanFree, march)
			require.NoError(t, store.Create(ctx, tenant))

			updated, err := store.IncrementUsage(ctx, tenant.ID, tenancy.ResourceAPICalls, 7, march)
			require.NoError(t, err)
			assert.Equal(t, int64(7), updated.Usage.APICallsThisMonth)

			updated, err = store.IncrementUsage(ctx, tenant.ID, tenancy.ResourceReports, 2, march)
			require.NoError(t, err)
			assert.Equal(t, int64(7), updated.Usage.APICallsThisMonth)
			assert.Equal(t, int64(2), updated.Usage.ReportsThisMonth)

			updated, err = store.IncrementUsage(ctx, tenant.ID, tenancy.ResourceEmployees, 3, march)
			require.NoError(t, err)
			assert.Equal(t, int64(3), updated.Usage.Employees)

			t.Run("month change resets monthly counters only", func(t *testing.T) {
				updated, err := store.IncrementUsage(ctx, tenant.ID, tenancy.ResourceAIQueries, 1, april)
				require.NoError(t, err)

				assert.Equal(t, int64(0), updated.Usage.APICallsThisMonth)
				assert.Equal(t, int64(0), updated.Usage.ReportsThisMonth)
				assert.Equal(t, int64(1), updated.Usage.AIQueriesThisMonth)
				assert.Equal(t, int64(3), updated.Usage.Employees)
				assert.Equal(t, "2026-04", tenancy.UsagePeriod(updated.Usage.LastResetDate))
			})

			t.Run("missing tenant", func(t *testing.T) {
				_, err := store.IncrementUsage(ctx, "missing", tenancy.ResourceUsers, 1, march)
				assert.True(t, errors.Is(err, shared.ErrNotFound))
			})
		})
	}
}

func TestTenantStore_ConcurrentIncrements(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			ctx := context.Background()
			tenant := newTestTenant(t, "acme", tenancy.PlanFree, now)
			require.NoError(t, store.Create(ctx, tenant))

			const workers = 20
			var wg sync.WaitGroup
			wg.Add(workers)
			for i := 0; i < workers; i++ {
				go func() {
					defer wg.Done()
					_, err := store.IncrementUsage(ctx, tenant.ID, tenancy.ResourceAPICalls, 1, now)
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			loaded, err := store.FindByID(ctx, tenant.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(workers), loaded.Usage.APICallsThisMonth)
		})
	}
}

func TestTenantStore_ConsumeUsage(t *testing.T) {
	march := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	april := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			ctx := context.Background()
			tenant := newTestTenant(t, "acme", tenancy.PlanFree, march)
			require.NoError(t, store.Create(ctx, tenant))

			_, err := store.IncrementUsage(ctx, tenant.ID, tenancy.ResourceAIQueries, 19, march)
			require.NoError(t, err)

			updated, consumed, err := store.ConsumeUsage(ctx, tenant.ID, tenancy.ResourceAIQueries, 1, march)
			require.NoError(t, err)
			assert.True(t, consumed)
			assert.Equal(t, int64(20), updated.Usage.AIQueriesThisMonth)

			updated, consumed, err = store.ConsumeUsage(ctx, tenant.ID, tenancy.ResourceAIQueries, 1, march)
			require.NoError(t, err)
			assert.False(t, consumed)
			assert.Equal(t, int64(20), updated.Usage.AIQueriesThisMonth)

			t.Run("non-monthly counter is guarded too", func(t *testing.T) {
				_, consumed, err := store.ConsumeUsage(ctx, tenant.ID, tenancy.ResourceEmployees, 11, march)
				require.NoError(t, err)
				assert.False(t, consumed)

				updated, consumed, err := store.ConsumeUsage(ctx, tenant.ID, tenancy.ResourceEmployees, 10, march)
				require.NoError(t, err)
				assert.True(t, consumed)
				assert.Equal(t, int64(10), updated.Usage.Employees)
			})

			t.Run("new month frees the monthly quota", func(t *testing.T) {
				updated, consumed, err := store.ConsumeUsage(ctx, tenant.ID, tenancy.ResourceAIQueries, 1, april)
				require.NoError(t, err)
				assert.True(t, consumed)
				assert.Equal(t, int64(1), updated.Usage.AIQueriesThisMonth)
			})

			t.Run("missing tenant", func(t *testing.T) {
				_, _, err := store.ConsumeUsage(ctx, "missing", tenancy.ResourceUsers, 1, march)
				assert.True(t, errors.Is(err, shared.ErrNotFound))
			})
		})
	}
}

func TestTenantStore_ConcurrentConsumers(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			ctx := context.Background()
			tenant := newTestTenant(t, "acme", tenancy.PlanFree, now)
			require.NoError(t, store.Create(ctx, tenant))

			const workers = 30
			var wg sync.WaitGroup
			var mu sync.Mutex
			consumed := 0
			wg.Add(workers)
			for i := 0; i < workers; i++ {
				go func() {
					defer wg.Done()
					_, ok, err := store.ConsumeUsage(ctx, tenant.ID, tenancy.ResourceAIQueries, 1, now)
					assert.NoError(t, err)
					if ok {
						mu.Lock()
						consumed++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 20, consumed)
			loaded, err := store.FindByID(ctx, tenant.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(20), loaded.Usage.AIQueriesThisMonth)
		})
	}
}

func TestTenantStore_Config(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			ctx := context.Background()

			_, err := store.FindConfig(ctx, "t-1")
			assert.True(t, errors.Is(err, shared.ErrNotFound))

			cfg := tenancy.DefaultTenantConfig("t-1")
			cfg.Features.Payroll = true
			cfg.Integrations = map[string]any{"slack": map[string]any{"channel": "#hr"}}
			require.NoError(t, store.SaveConfig(ctx, cfg))

			cfg.Security.MFARequired = true
			require.NoError(t, store.SaveConfig(ctx, cfg))

			loaded, err := store.FindConfig(ctx, "t-1")
			require.NoError(t, err)
			assert.True(t, loaded.Features.Payroll)
			assert.True(t, loaded.Security.MFARequired)
			assert.Equal(t, 6, loaded.Security.PasswordPolicy.MinLength)
			assert.Equal(t, map[string]any{"channel": "#hr"}, loaded.Integrations["slack"])
		})
	}
}

func TestInMemoryTenantStore_ReturnsCopies(t *testing.T) {
	store := NewInMemoryTenantStore()
	ctx := context.Background()
	tenant := newTestTenant(t, "acme", tenancy.PlanFree, time.Now())
	require.NoError(t, store.Create(ctx, tenant))

	loaded, err := store.FindByID(ctx, tenant.ID)
	require.NoError(t, err)
	loaded.Name = "mutated"
	loaded.Metadata["x"] = 1

	again, err := store.FindByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme acme", again.Name)
	assert.NotContains(t, again.Metadata, "x")
}

func TestInMemoryTenantStore_HonoursCancelledContext(t *testing.T) {
	store := NewInMemoryTenantStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.FindByID(ctx, "t-1")
	assert.ErrorIs(t, err, context.Canceled)
}
