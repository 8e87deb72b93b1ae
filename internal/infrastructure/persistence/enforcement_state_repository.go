package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormEnforcementStateRepository stores one enforcement record per tenant
type GormEnforcementStateRepository struct {
	db *gorm.DB
}

// NewGormEnforcementStateRepository creates a new GormEnforcementStateRepository
func NewGormEnforcementStateRepository(db *gorm.DB) *GormEnforcementStateRepository {
	return &GormEnforcementStateRepository{db: db}
}

// FindByTenantID returns the stored record or shared.ErrNotFound
func (r *GormEnforcementStateRepository) FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*billing.EnforcementState, error) {
	var model models.EnforcementStateModel
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	state, err := model.ToDomain()
	if err != nil {
		return nil, shared.Wrap(shared.ErrPersistence, err)
	}
	return state, nil
}

// Upsert replaces the whole record in one statement so readers never observe
// a half-written phase
func (r *GormEnforcementStateRepository) Upsert(ctx context.Context, state *billing.EnforcementState) error {
	model, err := models.EnforcementStateModelFromDomain(state)
	if err != nil {
		return shared.Wrap(shared.ErrInvalidInput, err)
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		UpdateAll: true,
	}).Create(model).Error
	return translateError(err)
}

// Invalidate pulls next_evaluation_at back to now. Missing records are left
// alone since the first read evaluates them anyway.
func (r *GormEnforcementStateRepository) Invalidate(ctx context.Context, tenantID uuid.UUID, now time.Time) error {
	now = now.UTC()
	err := r.db.WithContext(ctx).
		Model(&models.EnforcementStateModel{}).
		Where("tenant_id = ?", tenantID).
		Where("next_evaluation_at > ?", now).
		UpdateColumn("next_evaluation_at", now).Error
	return translateError(err)
}

// Defer moves next_evaluation_at to until, earlier or later
func (r *GormEnforcementStateRepository) Defer(ctx context.Context, tenantID uuid.UUID, until time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.EnforcementStateModel{}).
		Where("tenant_id = ?", tenantID).
		UpdateColumn("next_evaluation_at", until.UTC()).Error
	return translateError(err)
}

// FindDue lists tenants whose record is due, oldest deadline first
func (r *GormEnforcementStateRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.db.WithContext(ctx).
		Model(&models.EnforcementStateModel{}).
		Where("next_evaluation_at <= ?", now.UTC()).
		Order("next_evaluation_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("tenant_id", &ids).Error; err != nil {
		return nil, translateError(err)
	}
	return ids, nil
}

// CountByState returns how many tenants sit in each enforcement state
func (r *GormEnforcementStateRepository) CountByState(ctx context.Context) (map[billing.State]int64, error) {
	var rows []struct {
		State string
		Total int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.EnforcementStateModel{}).
		Select("state, COUNT(*) AS total").
		Group("state").
		Scan(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	counts := make(map[billing.State]int64, len(rows))
	for _, row := range rows {
		counts[billing.State(row.State)] = row.Total
	}
	return counts, nil
}

// Ensure GormEnforcementStateRepository implements the interface
var _ billing.EnforcementStateRepository = (*GormEnforcementStateRepository)(nil)
