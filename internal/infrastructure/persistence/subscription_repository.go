package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSubscriptionRepository implements billing.SubscriptionRepository using GORM
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// FindByTenantID finds the single subscription of a tenant
func (r *GormSubscriptionRepository) FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*billing.Subscription, error) {
	var model models.SubscriptionModel
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return toDomainSubscription(&model)
}

// FindByID finds a subscription by its ID
func (r *GormSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	var model models.SubscriptionModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return toDomainSubscription(&model)
}

// Save creates or updates a subscription
func (r *GormSubscriptionRepository) Save(ctx context.Context, sub *billing.Subscription) error {
	model, err := models.SubscriptionModelFromDomain(sub)
	if err != nil {
		return shared.Wrap(shared.ErrInvalidInput, err)
	}
	return translateError(r.db.WithContext(ctx).Save(model).Error)
}

// FindAllTenantIDs lists every tenant with a subscription
func (r *GormSubscriptionRepository) FindAllTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.SubscriptionModel{}).
		Order("tenant_id ASC").
		Pluck("tenant_id", &ids).Error; err != nil {
		return nil, translateError(err)
	}
	return ids, nil
}

// FindDueForRenewal lists enabled live subscriptions whose period has ended
func (r *GormSubscriptionRepository) FindDueForRenewal(ctx context.Context, now time.Time, limit int) ([]*billing.Subscription, error) {
	var rows []models.SubscriptionModel
	statuses := []string{string(billing.SubscriptionStatusActive), string(billing.SubscriptionStatusTrial)}
	if err := r.db.WithContext(ctx).
		Where("enabled = ? AND status IN ? AND current_period_end <= ?", true, statuses, now).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}

	subs := make([]*billing.Subscription, 0, len(rows))
	for i := range rows {
		sub, err := toDomainSubscription(&rows[i])
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func toDomainSubscription(model *models.SubscriptionModel) (*billing.Subscription, error) {
	sub, err := model.ToDomain()
	if err != nil {
		return nil, shared.Wrap(shared.ErrPersistence, err)
	}
	return sub, nil
}

// Ensure GormSubscriptionRepository implements the interface
var _ billing.SubscriptionRepository = (*GormSubscriptionRepository)(nil)
