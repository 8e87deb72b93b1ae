package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormProjectRepository resolves SDK API keys to their owning project
type GormProjectRepository struct {
	db *gorm.DB
}

// NewGormProjectRepository creates a new GormProjectRepository
func NewGormProjectRepository(db *gorm.DB) *GormProjectRepository {
	return &GormProjectRepository{db: db}
}

// ResolveAPIKey returns the tenant and project of a live project key
func (r *GormProjectRepository) ResolveAPIKey(ctx context.Context, apiKey string) (tenantID, projectID uuid.UUID, err error) {
	var model models.ProjectModel
	if err := r.db.WithContext(ctx).
		Select("id", "tenant_id").
		Where("api_key = ?", apiKey).
		Where("deleted_at IS NULL").
		First(&model).Error; err != nil {
		return uuid.Nil, uuid.Nil, translateError(err)
	}
	return model.TenantID, model.ID, nil
}
