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

// GormEnforcementHistoryRepository is the append-only enforcement audit log
type GormEnforcementHistoryRepository struct {
	db *gorm.DB
}

// NewGormEnforcementHistoryRepository creates a new GormEnforcementHistoryRepository
func NewGormEnforcementHistoryRepository(db *gorm.DB) *GormEnforcementHistoryRepository {
	return &GormEnforcementHistoryRepository{db: db}
}

// Append stores the entry. Redelivered events with a known ID are ignored.
func (r *GormEnforcementHistoryRepository) Append(ctx context.Context, entry billing.HistoryEntry) error {
	model, err := models.EnforcementHistoryModelFromDomain(entry)
	if err != nil {
		return shared.Wrap(shared.ErrInvalidInput, err)
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(model).Error
	return translateError(err)
}

// ListByTenant returns up to limit entries, newest first
func (r *GormEnforcementHistoryRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]billing.HistoryEntry, error) {
	var rows []models.EnforcementHistoryModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}

	entries := make([]billing.HistoryEntry, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].ToDomain()
		if err != nil {
			return nil, shared.Wrap(shared.ErrPersistence, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
