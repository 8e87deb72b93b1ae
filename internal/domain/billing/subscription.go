package billing

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
)

// SubscriptionStatus is the lifecycle status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
	SubscriptionStatusDisabled  SubscriptionStatus = "disabled"
)

// IsValid returns true if the status is known
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrial, SubscriptionStatusExpired,
		SubscriptionStatusCancelled, SubscriptionStatusSuspended, SubscriptionStatusDisabled:
		return true
	}
	return false
}

// Period is a half-open time window [Start, End)
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains returns true if t falls inside the window
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Subscription assigns a plan to a tenant. Overrides replace individual plan
// limits; a nil override entry inherits the plan value.
type Subscription struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	PlanID             uuid.UUID
	Status             SubscriptionStatus
	Enabled            bool
	Overrides          map[Dimension]*int64
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialStartDate     time.Time
	TrialEndDate       time.Time
	DisabledBy         string
	DisabledAt         *time.Time
	DisabledReason     string
	EnabledBy          string
	EnabledAt          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewSubscription starts a subscription on plan with a trial window
func NewSubscription(tenantID uuid.UUID, plan *Plan, now time.Time) (*Subscription, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Tenant ID cannot be empty")
	}
	if plan == nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Plan is required")
	}
	trialEnd := now.AddDate(0, 0, plan.TrialDays())
	return &Subscription{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		PlanID:             plan.ID,
		Status:             SubscriptionStatusActive,
		Enabled:            true,
		Overrides:          map[Dimension]*int64{},
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   trialEnd,
		TrialStartDate:     now,
		TrialEndDate:       trialEnd,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// Period returns the current billing window
func (s *Subscription) Period() Period {
	return Period{Start: s.CurrentPeriodStart, End: s.CurrentPeriodEnd}
}

// EffectiveLimit resolves override, then plan limit, then unlimited
func (s *Subscription) EffectiveLimit(plan *Plan, d Dimension) Limit {
	if v, ok := s.Overrides[d]; ok && v != nil {
		return Limit(*v)
	}
	return plan.Limit(d)
}

// IsDisabled returns true if the admin kill switch is engaged
func (s *Subscription) IsDisabled() bool {
	return !s.Enabled || s.Status == SubscriptionStatusDisabled
}

// IsTrialActive returns true while an enabled, live subscription is inside its trial window
func (s *Subscription) IsTrialActive(now time.Time) bool {
	if s.IsDisabled() {
		return false
	}
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusTrial {
		return false
	}
	return s.TrialEndDate.After(now)
}

// IsFeatureAllowed returns true if the plan grants the feature and the subscription is live
func (s *Subscription) IsFeatureAllowed(plan *Plan, feature Feature, now time.Time) bool {
	if plan == nil || s.IsDisabled() || s.Status == SubscriptionStatusExpired {
		return false
	}
	if s.Status == SubscriptionStatusTrial && !s.IsTrialActive(now) {
		return false
	}
	return plan.Features.Allows(feature)
}

// DaysRemaining returns whole days left in the billing period, never negative
func (s *Subscription) DaysRemaining(now time.Time) int {
	left := s.CurrentPeriodEnd.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

// ChangePlan moves the subscription to another plan
func (s *Subscription) ChangePlan(plan *Plan, now time.Time) error {
	if plan == nil {
		return shared.NewDomainError("INVALID_INPUT", "Plan is required")
	}
	if !plan.IsActive {
		return shared.NewDomainError("INVALID_STATE", "Plan is not available")
	}
	s.PlanID = plan.ID
	s.UpdatedAt = now
	return nil
}

// SetOverride replaces the limit for one dimension. A nil value restores the plan limit.
func (s *Subscription) SetOverride(d Dimension, value *int64, now time.Time) error {
	if !d.IsValid() {
		return shared.ErrInvalidDimension
	}
	if value != nil && *value < int64(Unlimited) {
		return shared.NewDomainError("INVALID_INPUT", "Override must be -1 (unlimited) or non-negative")
	}
	if s.Overrides == nil {
		s.Overrides = map[Dimension]*int64{}
	}
	if value == nil {
		delete(s.Overrides, d)
	} else {
		v := *value
		s.Overrides[d] = &v
	}
	s.UpdatedAt = now
	return nil
}

// Disable engages the kill switch
func (s *Subscription) Disable(by, reason string, now time.Time) {
	s.Enabled = false
	s.DisabledBy = by
	s.DisabledReason = reason
	s.DisabledAt = &now
	s.UpdatedAt = now
}

// Enable releases the kill switch
func (s *Subscription) Enable(by string, now time.Time) {
	s.Enabled = true
	s.EnabledBy = by
	s.EnabledAt = &now
	s.UpdatedAt = now
}

// SetStatus changes the lifecycle status
func (s *Subscription) SetStatus(status SubscriptionStatus, now time.Time) error {
	if !status.IsValid() {
		return shared.NewDomainError("INVALID_INPUT", "Unknown subscription status")
	}
	s.Status = status
	s.UpdatedAt = now
	return nil
}

// RenewPeriod opens a new billing window
func (s *Subscription) RenewPeriod(start, end time.Time, now time.Time) error {
	if !end.After(start) {
		return shared.NewDomainError("INVALID_INPUT", "Period end must be after start")
	}
	s.CurrentPeriodStart = start
	s.CurrentPeriodEnd = end
	s.UpdatedAt = now
	return nil
}

// IsRenewalDue returns true if an enabled, live subscription has reached the end of its period
func (s *Subscription) IsRenewalDue(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusTrial {
		return false
	}
	return !now.Before(s.CurrentPeriodEnd)
}

// Renew closes a finished billing period. A trial, or a free plan whose trial
// has ended, expires instead of renewing. Missed periods are skipped so the
// new window always contains now. The returned change is empty when the
// subscription was not due.
func (s *Subscription) Renew(plan *Plan, now time.Time) (SubscriptionChange, error) {
	if plan == nil {
		return "", shared.NewDomainError("INVALID_INPUT", "Plan is required")
	}
	if !s.IsRenewalDue(now) {
		return "", nil
	}
	if s.trialEnded(plan, now) {
		s.Status = SubscriptionStatusExpired
		s.UpdatedAt = now
		return SubscriptionChangeTrialExpired, nil
	}

	start := s.CurrentPeriodEnd
	if start.IsZero() {
		start = now
	}
	end := plan.Interval.Next(start)
	for !now.Before(end) {
		start = end
		end = plan.Interval.Next(start)
	}
	if err := s.RenewPeriod(start, end, now); err != nil {
		return "", err
	}
	return SubscriptionChangePeriodRenewed, nil
}

func (s *Subscription) trialEnded(plan *Plan, now time.Time) bool {
	if s.TrialEndDate.IsZero() || s.TrialEndDate.After(now) {
		return false
	}
	return s.Status == SubscriptionStatusTrial || plan.Price.IsZero()
}

// SubscriptionRepository persists subscriptions. Subscriptions are never deleted.
type SubscriptionRepository interface {
	FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	Save(ctx context.Context, sub *Subscription) error
	FindAllTenantIDs(ctx context.Context) ([]uuid.UUID, error)
	// FindDueForRenewal lists enabled active or trial subscriptions whose
	// period ended at or before now, oldest period end first
	FindDueForRenewal(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)
}
