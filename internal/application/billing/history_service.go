package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// HistoryService reads the enforcement audit trail for the dashboard
type HistoryService struct {
	history billing.HistoryRepository
}

// NewHistoryService creates a new HistoryService
func NewHistoryService(history billing.HistoryRepository) *HistoryService {
	return &HistoryService{history: history}
}

// List returns the tenant's newest entries. A non-positive limit means
// DefaultHistoryLimit and larger limits are capped at MaxHistoryLimit.
func (s *HistoryService) List(ctx context.Context, tenantID uuid.UUID, limit int) ([]billing.HistoryEntry, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	entries, err := s.history.ListByTenant(ctx, tenantID, limit)
	if err != nil {
		return nil, asPersistenceError(err)
	}
	return entries, nil
}
