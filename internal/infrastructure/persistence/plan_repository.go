package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPlanRepository implements billing.PlanRepository using GORM
type GormPlanRepository struct {
	db *gorm.DB
}

// NewGormPlanRepository creates a new GormPlanRepository
func NewGormPlanRepository(db *gorm.DB) *GormPlanRepository {
	return &GormPlanRepository{db: db}
}

// FindByID finds a plan by its ID
func (r *GormPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Plan, error) {
	var model models.PlanModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return toDomainPlan(&model)
}

// FindByName finds a plan by its unique name
func (r *GormPlanRepository) FindByName(ctx context.Context, name string) (*billing.Plan, error) {
	var model models.PlanModel
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return toDomainPlan(&model)
}

// FindAll lists plans ordered by tier
func (r *GormPlanRepository) FindAll(ctx context.Context, activeOnly bool) ([]*billing.Plan, error) {
	var planModels []models.PlanModel
	query := r.db.WithContext(ctx).Order("tier_rank ASC").Order("name ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&planModels).Error; err != nil {
		return nil, translateError(err)
	}

	plans := make([]*billing.Plan, 0, len(planModels))
	for i := range planModels {
		p, err := toDomainPlan(&planModels[i])
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// Save inserts or replaces a plan keyed by name. Used to seed the catalog.
func (r *GormPlanRepository) Save(ctx context.Context, plan *billing.Plan) error {
	model, err := models.PlanModelFromDomain(plan)
	if err != nil {
		return shared.Wrap(shared.ErrInvalidInput, err)
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "tier_rank", "limits", "price", "currency",
			"billing_interval", "features", "retention_days", "is_active", "updated_at",
		}),
	}).Create(model).Error
	return translateError(err)
}

// SeedDefaults inserts the plans that are missing by name and leaves
// existing rows untouched. It returns how many plans were created.
func (r *GormPlanRepository) SeedDefaults(ctx context.Context, plans []*billing.Plan) (int, error) {
	created := 0
	for _, plan := range plans {
		model, err := models.PlanModelFromDomain(plan)
		if err != nil {
			return created, shared.Wrap(shared.ErrInvalidInput, err)
		}
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(model)
		if result.Error != nil {
			return created, translateError(result.Error)
		}
		created += int(result.RowsAffected)
	}
	return created, nil
}

func toDomainPlan(model *models.PlanModel) (*billing.Plan, error) {
	p, err := model.ToDomain()
	if err != nil {
		return nil, shared.Wrap(shared.ErrPersistence, err)
	}
	return p, nil
}

// Ensure GormPlanRepository implements the interface
var _ billing.PlanRepository = (*GormPlanRepository)(nil)
