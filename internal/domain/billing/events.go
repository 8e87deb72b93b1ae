package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
)

// Event type constants
const (
	EventTypeEnforcementStateChanged = "EnforcementStateChanged"
	EventTypeSubscriptionChanged     = "SubscriptionChanged"
)

// Aggregate type constants
const (
	AggregateTypeSubscription = "Subscription"
)

// SubscriptionChange names the admin mutation behind a SubscriptionChanged event
type SubscriptionChange string

const (
	SubscriptionChangePlan          SubscriptionChange = "plan"
	SubscriptionChangeOverride      SubscriptionChange = "override"
	SubscriptionChangeEnabled       SubscriptionChange = "enabled"
	SubscriptionChangeStatus        SubscriptionChange = "status"
	SubscriptionChangeCreated       SubscriptionChange = "created"
	SubscriptionChangePeriodRenewed SubscriptionChange = "period_renewed"
	SubscriptionChangeTrialExpired  SubscriptionChange = "trial_expired"
)

// EnforcementStateChangedEvent is raised when a committed evaluation moves a tenant to another state
type EnforcementStateChangedEvent struct {
	shared.BaseDomainEvent
	SubscriptionID   uuid.UUID `json:"subscription_id"`
	From             State     `json:"from"`
	To               State     `json:"to"`
	Cause            Cause     `json:"cause,omitempty"`
	TriggeredMetrics []string  `json:"triggered_metrics"`
}

// NewEnforcementStateChangedEvent builds the event from a committed record
func NewEnforcementStateChangedEvent(from State, next *EnforcementState) *EnforcementStateChangedEvent {
	return &EnforcementStateChangedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeEnforcementStateChanged, AggregateTypeSubscription, next.SubscriptionID, next.TenantID, next.LastEvaluatedAt),
		SubscriptionID:   next.SubscriptionID,
		From:             from,
		To:               next.State(),
		Cause:            next.Cause(),
		TriggeredMetrics: next.TriggeredMetricNames(),
	}
}

// SubscriptionChangedEvent is raised by admin mutations that must invalidate enforcement
type SubscriptionChangedEvent struct {
	shared.BaseDomainEvent
	Change SubscriptionChange `json:"change"`
	Actor  string             `json:"actor,omitempty"`
}

// NewSubscriptionChangedEvent builds the event for a saved subscription
func NewSubscriptionChangedEvent(sub *Subscription, change SubscriptionChange, actor string, now time.Time) *SubscriptionChangedEvent {
	return &SubscriptionChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubscriptionChanged, AggregateTypeSubscription, sub.ID, sub.TenantID, now),
		Change:          change,
		Actor:           actor,
	}
}
