package cache

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TenantPurger drops cached data of a tenant
type TenantPurger interface {
	Purge(ctx context.Context, tenantID uuid.UUID) error
}

// TenantInvalidator marks a tenant's enforcement record stale
type TenantInvalidator interface {
	Invalidate(ctx context.Context, tenantID uuid.UUID) error
}

// NewInvalidationHandler purges cached counts first so the forced
// re-evaluation that follows reads fresh usage
func NewInvalidationHandler(purger TenantPurger, invalidator TenantInvalidator, logger *zap.Logger) InvalidationHandler {
	return func(ctx context.Context, msg InvalidationMessage) {
		tenant := zap.String("tenant_id", msg.TenantID.String())
		if purger != nil {
			if err := purger.Purge(ctx, msg.TenantID); err != nil {
				logger.Warn("Failed to purge usage counts", tenant, zap.Error(err))
			}
		}
		if invalidator != nil {
			if err := invalidator.Invalidate(ctx, msg.TenantID); err != nil {
				logger.Warn("Failed to invalidate enforcement state", tenant, zap.Error(err))
			}
		}
		logger.Debug("Applied invalidation", tenant, zap.String("reason", msg.Reason))
	}
}
