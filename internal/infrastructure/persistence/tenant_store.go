package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/shared"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/tenancy"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTenantStore implements tenancy.TenantStore using GORM
type GormTenantStore struct {
	db *gorm.DB
}

// NewGormTenantStore creates a new GormTenantStore
func NewGormTenantStore(db *gorm.DB) *GormTenantStore {
	return &GormTenantStore{db: db}
}

// FindByID finds a tenant by its id
func (s *GormTenantStore) FindByID(ctx context.Context, id string) (*tenancy.Tenant, error) {
	var model models.TenantModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return nil, notFoundOr(err, "tenant")
	}
	return model.ToDomain(), nil
}

// FindBySlug finds a tenant by its slug
func (s *GormTenantStore) FindBySlug(ctx context.Context, slug string) (*tenancy.Tenant, error) {
	var model models.TenantModel
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&model).Error; err != nil {
		return nil, notFoundOr(err, "tenant")
	}
	return model.ToDomain(), nil
}

// Create inserts a new tenant
func (s *GormTenantStore) Create(ctx context.Context, t *tenancy.Tenant) error {
	model := models.TenantModelFromDomain(t)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return shared.WrapDomainError(shared.CodeAlreadyExists, "tenant already exists", err)
		}
		return err
	}
	return nil
}

// Update writes the non-usage columns of t when the stored version matches
func (s *GormTenantStore) Update(ctx context.Context, t *tenancy.Tenant, expectedVersion int) error {
	model := models.TenantModelFromDomain(t)
	result := s.db.WithContext(ctx).
		Model(&models.TenantModel{}).
		Where("id = ? AND version = ?", t.ID, expectedVersion).
		Select(models.TenantMutableColumns).
		Updates(model)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return shared.WrapDomainError(shared.CodeAlreadyExists, "slug already exists", result.Error)
		}
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.TenantModel{}).Where("id = ?", t.ID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return shared.NewDomainError(shared.CodeNotFound, "tenant not found")
	}
	return shared.NewDomainError(shared.CodeConcurrencyConflict,
		fmt.Sprintf("tenant %s was modified concurrently (expected version %d)", t.ID, expectedVersion))
}

// IncrementUsage applies the monthly rollover and the increment in a single
// UPDATE, so concurrent increments never lose writes. Right-hand expressions
// see the row as it was before the statement.
func (s *GormTenantStore) IncrementUsage(ctx context.Context, id string, r tenancy.Resource, by int64, now time.Time) (*tenancy.Tenant, error) {
	t, _, err := s.applyUsage(ctx, id, r, by, now, false)
	return t, err
}

// ConsumeUsage is IncrementUsage with the quota check in the WHERE clause,
// so concurrent consumers can never push a counter past its ceiling.
func (s *GormTenantStore) ConsumeUsage(ctx context.Context, id string, r tenancy.Resource, by int64, now time.Time) (*tenancy.Tenant, bool, error) {
	return s.applyUsage(ctx, id, r, by, now, true)
}

func (s *GormTenantStore) applyUsage(ctx context.Context, id string, r tenancy.Resource, by int64, now time.Time, guarded bool) (*tenancy.Tenant, bool, error) {
	target, ok := models.UsageColumns[r]
	if !ok {
		return nil, false, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("unknown resource %q", r))
	}
	period := tenancy.UsagePeriod(now)

	updates := map[string]any{
		"usage_period":          period,
		"usage_last_reset_date": gorm.Expr("CASE WHEN usage_period = ? THEN usage_last_reset_date ELSE ? END", period, now),
	}
	for _, res := range tenancy.AllResources {
		if !res.Monthly() {
			continue
		}
		col := models.UsageColumns[res]
		if res == r {
			updates[col] = gorm.Expr("CASE WHEN usage_period = ? THEN "+col+" ELSE 0 END + ?", period, by)
		} else {
			updates[col] = gorm.Expr("CASE WHEN usage_period = ? THEN "+col+" ELSE 0 END", period)
		}
	}
	if !r.Monthly() {
		updates[target] = gorm.Expr(target+" + ?", by)
	}

	var model models.TenantModel
	applied := true
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.TenantModel{}).Where("id = ?", id)
		if guarded {
			quota := models.QuotaColumns[r]
			if r.Monthly() {
				query = query.Where("("+quota+" < 0 OR CASE WHEN usage_period = ? THEN "+target+" ELSE 0 END + ? <= "+quota+")", period, by)
			} else {
				query = query.Where("("+quota+" < 0 OR "+target+" + ? <= "+quota+")", by)
			}
		}
		result := query.UpdateColumns(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if !guarded {
				return shared.NewDomainError(shared.CodeNotFound, "tenant not found")
			}
			applied = false
		}
		return tx.Where("id = ?", id).First(&model).Error
	})
	if err != nil {
		return nil, false, notFoundOr(err, "tenant")
	}
	return model.ToDomain(), applied, nil
}

// FindConfig finds the stored config of a tenant
func (s *GormTenantStore) FindConfig(ctx context.Context, tenantID string) (*tenancy.TenantConfig, error) {
	var model models.TenantConfigModel
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&model).Error; err != nil {
		return nil, notFoundOr(err, "tenant config")
	}
	return model.ToDomain(), nil
}

// SaveConfig upserts the config of a tenant
func (s *GormTenantStore) SaveConfig(ctx context.Context, cfg *tenancy.TenantConfig) error {
	model := models.TenantConfigModelFromDomain(cfg)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// notFoundOr maps gorm.ErrRecordNotFound to a NOT_FOUND domain error
func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.NewDomainError(shared.CodeNotFound, what+" not found")
	}
	return err
}

// isDuplicateKey detects unique constraint violations. Dialects without an
// error translator are matched on their message.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// Ensure GormTenantStore implements TenantStore
var _ tenancy.TenantStore = (*GormTenantStore)(nil)
