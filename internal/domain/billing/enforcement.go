package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// State is the tenant's enforcement tier
type State string

const (
	StateActive   State = "ACTIVE"
	StateWarn     State = "WARN"
	StateGrace    State = "GRACE"
	StateDegraded State = "DEGRADED"
)

// IsValid returns true if the state is known
func (s State) IsValid() bool {
	switch s {
	case StateActive, StateWarn, StateGrace, StateDegraded:
		return true
	}
	return false
}

// severity orders states from least to most restrictive
func (s State) severity() int {
	switch s {
	case StateWarn:
		return 1
	case StateGrace:
		return 2
	case StateDegraded:
		return 3
	default:
		return 0
	}
}

// Cause explains why a tenant is DEGRADED
type Cause string

const (
	CauseNone                Cause = ""
	CauseUsageExceeded       Cause = "usage_exceeded"
	CauseAdminDisabled       Cause = "admin_disabled"
	CauseSubscriptionExpired Cause = "subscription_expired"
)

// Phase is the tagged enforcement variant. Only GracePhase carries a deadline,
// so a grace deadline cannot exist outside GRACE.
type Phase interface {
	State() State
	isPhase()
}

// ActivePhase is normal operation
type ActivePhase struct{}

// WarnPhase is advisory: some dimension is near its limit
type WarnPhase struct{}

// GracePhase is the bounded window after first exceeding a limit
type GracePhase struct {
	EndsAt time.Time
}

// DegradedPhase is the restricted tier
type DegradedPhase struct {
	Cause Cause
}

func (ActivePhase) State() State   { return StateActive }
func (WarnPhase) State() State     { return StateWarn }
func (GracePhase) State() State    { return StateGrace }
func (DegradedPhase) State() State { return StateDegraded }

func (ActivePhase) isPhase()   {}
func (WarnPhase) isPhase()     {}
func (GracePhase) isPhase()    {}
func (DegradedPhase) isPhase() {}

// TriggeredMetric names a dimension (or forced cause) responsible for the state
type TriggeredMetric struct {
	Metric     string  `json:"metric"`
	Used       int64   `json:"used"`
	Limit      int64   `json:"limit"`
	Percentage float64 `json:"percentage"`
}

// EnforcementState is the persisted enforcement record, 1:1 with a subscription
type EnforcementState struct {
	TenantID          uuid.UUID
	SubscriptionID    uuid.UUID
	Phase             Phase
	WarnEnteredAt     *time.Time
	GraceEnteredAt    *time.Time
	DegradedEnteredAt *time.Time
	TriggeredMetrics  []TriggeredMetric
	Policy            EffectivePolicy
	LastEvaluatedAt   time.Time
	NextEvaluationAt  time.Time
	UpdatedAt         time.Time
}

// NewActiveState is the fail-open default: ACTIVE with an unrestricted policy
func NewActiveState(tenantID uuid.UUID, now time.Time, cfg PolicyConfig) *EnforcementState {
	return &EnforcementState{
		TenantID:         tenantID,
		Phase:            ActivePhase{},
		TriggeredMetrics: []TriggeredMetric{},
		Policy:           UnrestrictedPolicy(cfg),
		LastEvaluatedAt:  now,
		NextEvaluationAt: now,
		UpdatedAt:        now,
	}
}

// State returns the enforcement tier, ACTIVE for a zero record
func (e *EnforcementState) State() State {
	if e == nil || e.Phase == nil {
		return StateActive
	}
	return e.Phase.State()
}

// GraceEndsAt returns the grace deadline, nil outside GRACE
func (e *EnforcementState) GraceEndsAt() *time.Time {
	if e == nil {
		return nil
	}
	if g, ok := e.Phase.(GracePhase); ok {
		t := g.EndsAt
		return &t
	}
	return nil
}

// Cause returns the DEGRADED cause, CauseNone otherwise
func (e *EnforcementState) Cause() Cause {
	if e == nil {
		return CauseNone
	}
	if d, ok := e.Phase.(DegradedPhase); ok {
		return d.Cause
	}
	return CauseNone
}

// IsDue returns true when the record must be recomputed before it is served
func (e *EnforcementState) IsDue(now time.Time) bool {
	return e == nil || !now.Before(e.NextEvaluationAt)
}

// TriggeredMetricNames returns the metric keys in stored order
func (e *EnforcementState) TriggeredMetricNames() []string {
	names := make([]string, 0, len(e.TriggeredMetrics))
	for _, m := range e.TriggeredMetrics {
		names = append(names, m.Metric)
	}
	return names
}

// EnforcementStateRepository persists enforcement records. Writes are
// last-write-wins upserts keyed by tenant.
type EnforcementStateRepository interface {
	FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*EnforcementState, error)
	Upsert(ctx context.Context, state *EnforcementState) error
	// Invalidate makes the next read recompute by pulling NextEvaluationAt to now
	Invalidate(ctx context.Context, tenantID uuid.UUID, now time.Time) error
	// Defer pushes NextEvaluationAt out to until
	Defer(ctx context.Context, tenantID uuid.UUID, until time.Time) error
	// FindDue lists tenants whose NextEvaluationAt is at or before now
	FindDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}
