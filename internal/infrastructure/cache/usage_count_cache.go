package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"go.uber.org/zap"
)

const usageCountKeyPrefix = "usage_count:"

// CachingUsageCounter memoizes counts for a short TTL in front of the
// database counter. Cache failures fall through to the database.
type CachingUsageCounter struct {
	next   billing.UsageCounter
	store  CountStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachingUsageCounter wraps next. A nil store or non-positive ttl disables caching.
func NewCachingUsageCounter(next billing.UsageCounter, store CountStore, ttl time.Duration, logger *zap.Logger) *CachingUsageCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingUsageCounter{next: next, store: store, ttl: ttl, logger: logger}
}

func (c *CachingUsageCounter) enabled() bool {
	return c.store != nil && c.ttl > 0
}

func tenantPrefix(tenantID uuid.UUID) string {
	return usageCountKeyPrefix + tenantID.String() + ":"
}

func usageCountKey(tenantID uuid.UUID, d billing.Dimension, window *billing.Period) string {
	w := "all"
	if window != nil {
		w = fmt.Sprintf("%d", window.Start.Unix())
	}
	return tenantPrefix(tenantID) + string(d) + ":" + w
}

// Count returns the cached count or asks the wrapped counter
func (c *CachingUsageCounter) Count(ctx context.Context, tenantID uuid.UUID, d billing.Dimension, window *billing.Period) (int64, error) {
	if !c.enabled() {
		return c.next.Count(ctx, tenantID, d, window)
	}

	key := usageCountKey(tenantID, d, window)
	v, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Usage count cache read failed",
			zap.String("key", key),
			zap.Error(err))
	} else if ok {
		return v, nil
	}

	v, err = c.next.Count(ctx, tenantID, d, window)
	if err != nil {
		return 0, err
	}

	if err := c.store.Set(ctx, key, v, c.ttl); err != nil {
		c.logger.Warn("Usage count cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}
	return v, nil
}

// Purge drops every cached count of a tenant
func (c *CachingUsageCounter) Purge(ctx context.Context, tenantID uuid.UUID) error {
	if c.store == nil {
		return nil
	}
	return c.store.DeletePrefix(ctx, tenantPrefix(tenantID))
}

// Ensure CachingUsageCounter implements the interface
var _ billing.UsageCounter = (*CachingUsageCounter)(nil)
