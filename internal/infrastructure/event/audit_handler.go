package event

import (
	"context"

	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"go.uber.org/zap"
)

// EnforcementAuditHandler logs enforcement transitions and subscription
// changes and appends them to the history store
type EnforcementAuditHandler struct {
	history billing.HistoryRepository
	logger  *zap.Logger
}

// NewEnforcementAuditHandler creates the audit handler. A nil history
// repository only logs.
func NewEnforcementAuditHandler(history billing.HistoryRepository, logger *zap.Logger) *EnforcementAuditHandler {
	return &EnforcementAuditHandler{history: history, logger: logger}
}

// EventTypes implements shared.EventHandler
func (h *EnforcementAuditHandler) EventTypes() []string {
	return []string{
		billing.EventTypeEnforcementStateChanged,
		billing.EventTypeSubscriptionChanged,
	}
}

// Handle implements shared.EventHandler
func (h *EnforcementAuditHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	entry, ok := billing.HistoryEntryFromEvent(event)
	if !ok {
		return nil
	}

	fields := []zap.Field{
		zap.String("tenant_id", entry.TenantID.String()),
		zap.String("event_id", entry.ID.String()),
	}
	switch entry.EventType {
	case billing.EventTypeEnforcementStateChanged:
		fields = append(fields,
			zap.String("from", string(entry.From)),
			zap.String("to", string(entry.To)),
			zap.Strings("triggered_metrics", entry.TriggeredMetrics),
		)
		if entry.Cause != "" {
			fields = append(fields, zap.String("cause", string(entry.Cause)))
		}
		h.logger.Info("Enforcement state changed", fields...)
	default:
		fields = append(fields,
			zap.String("change", string(entry.Change)),
			zap.String("actor", entry.Actor),
		)
		h.logger.Info("Subscription changed", fields...)
	}

	if h.history == nil {
		return nil
	}
	return h.history.Append(ctx, entry)
}

var _ shared.EventHandler = (*EnforcementAuditHandler)(nil)
