package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is one audited change to a tenant's enforcement or subscription
type HistoryEntry struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	EventType        string
	From             State
	To               State
	Cause            Cause
	Change           SubscriptionChange
	Actor            string
	TriggeredMetrics []string
	OccurredAt       time.Time
}

// HistoryEntryFromEvent converts a billing event into an audit entry.
// ok is false for events that are not audited.
func HistoryEntryFromEvent(e any) (entry HistoryEntry, ok bool) {
	switch ev := e.(type) {
	case *EnforcementStateChangedEvent:
		return HistoryEntry{
			ID:               ev.EventID(),
			TenantID:         ev.TenantID(),
			EventType:        ev.EventType(),
			From:             ev.From,
			To:               ev.To,
			Cause:            ev.Cause,
			TriggeredMetrics: ev.TriggeredMetrics,
			OccurredAt:       ev.OccurredAt(),
		}, true
	case *SubscriptionChangedEvent:
		return HistoryEntry{
			ID:         ev.EventID(),
			TenantID:   ev.TenantID(),
			EventType:  ev.EventType(),
			Change:     ev.Change,
			Actor:      ev.Actor,
			OccurredAt: ev.OccurredAt(),
		}, true
	}
	return HistoryEntry{}, false
}

// HistoryRepository appends and lists audit entries, newest first
type HistoryRepository interface {
	Append(ctx context.Context, entry HistoryEntry) error
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]HistoryEntry, error)
}
