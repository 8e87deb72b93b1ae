package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"go.uber.org/zap"
)

// InvalidationBroadcaster tells other replicas that a tenant's limits changed
type InvalidationBroadcaster interface {
	BroadcastInvalidation(ctx context.Context, tenantID uuid.UUID, reason string) error
}

// CreateSubscriptionInput contains input for starting a subscription at signup
type CreateSubscriptionInput struct {
	TenantID uuid.UUID
	PlanName string // defaults to "free"
}

// ChangePlanInput contains input for moving a tenant to another plan
type ChangePlanInput struct {
	TenantID uuid.UUID
	PlanName string
	Actor    string
}

// SetOverrideInput contains input for overriding a single dimension limit.
// A nil Value removes the override.
type SetOverrideInput struct {
	TenantID  uuid.UUID
	Dimension string
	Value     *int64
	Actor     string
}

// SetEnabledInput contains input for the admin kill switch
type SetEnabledInput struct {
	TenantID uuid.UUID
	Enabled  bool
	Reason   string
	Actor    string
}

// SetStatusInput contains input for changing the lifecycle status
type SetStatusInput struct {
	TenantID uuid.UUID
	Status   string
	Actor    string
}

// RenewalResult summarizes one renewal pass
type RenewalResult struct {
	Total   int
	Renewed int
	Expired int
	Failed  int
}

// SubscriptionAdminService applies admin mutations and makes sure the next
// enforcement read observes them instead of waiting out the current interval
type SubscriptionAdminService struct {
	subRepo     billing.SubscriptionRepository
	planRepo    billing.PlanRepository
	enforcement *EnforcementService
	publisher   shared.EventPublisher
	broadcaster InvalidationBroadcaster
	logger      *zap.Logger
	now         func() time.Time
}

// NewSubscriptionAdminService creates a new SubscriptionAdminService.
// broadcaster may be nil for single-replica deployments.
func NewSubscriptionAdminService(
	subRepo billing.SubscriptionRepository,
	planRepo billing.PlanRepository,
	enforcement *EnforcementService,
	publisher shared.EventPublisher,
	broadcaster InvalidationBroadcaster,
	logger *zap.Logger,
	opts ...Option,
) *SubscriptionAdminService {
	o := buildOptions(opts)
	return &SubscriptionAdminService{
		subRepo:     subRepo,
		planRepo:    planRepo,
		enforcement: enforcement,
		publisher:   publisher,
		broadcaster: broadcaster,
		logger:      logger,
		now:         o.now,
	}
}

// CreateSubscription starts a trial subscription for a new tenant
func (s *SubscriptionAdminService) CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*billing.Subscription, error) {
	if input.PlanName == "" {
		input.PlanName = billing.PlanFree
	}

	if _, err := s.subRepo.FindByTenantID(ctx, input.TenantID); err == nil {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "Tenant already has a subscription")
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, asPersistenceError(err)
	}

	plan, err := s.findPlan(ctx, input.PlanName)
	if err != nil {
		return nil, err
	}

	sub, err := billing.NewSubscription(input.TenantID, plan, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, sub, billing.SubscriptionChangeCreated, "system"); err != nil {
		return nil, err
	}
	return sub, nil
}

// ChangePlan moves the tenant to another plan
func (s *SubscriptionAdminService) ChangePlan(ctx context.Context, input ChangePlanInput) (*billing.Subscription, error) {
	sub, err := s.findSubscription(ctx, input.TenantID)
	if err != nil {
		return nil, err
	}
	plan, err := s.findPlan(ctx, input.PlanName)
	if err != nil {
		return nil, err
	}
	if err := sub.ChangePlan(plan, s.now()); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, sub, billing.SubscriptionChangePlan, input.Actor); err != nil {
		return nil, err
	}
	return sub, nil
}

// SetOverride replaces or clears one dimension limit
func (s *SubscriptionAdminService) SetOverride(ctx context.Context, input SetOverrideInput) (*billing.Subscription, error) {
	dim, err := billing.ParseDimension(input.Dimension)
	if err != nil {
		return nil, err
	}
	sub, err := s.findSubscription(ctx, input.TenantID)
	if err != nil {
		return nil, err
	}
	if err := sub.SetOverride(dim, input.Value, s.now()); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, sub, billing.SubscriptionChangeOverride, input.Actor); err != nil {
		return nil, err
	}
	return sub, nil
}

// SetEnabled flips the admin kill switch
func (s *SubscriptionAdminService) SetEnabled(ctx context.Context, input SetEnabledInput) (*billing.Subscription, error) {
	sub, err := s.findSubscription(ctx, input.TenantID)
	if err != nil {
		return nil, err
	}
	if input.Enabled {
		sub.Enable(input.Actor, s.now())
	} else {
		sub.Disable(input.Actor, input.Reason, s.now())
	}
	if err := s.commit(ctx, sub, billing.SubscriptionChangeEnabled, input.Actor); err != nil {
		return nil, err
	}
	return sub, nil
}

// SetStatus changes the subscription lifecycle status
func (s *SubscriptionAdminService) SetStatus(ctx context.Context, input SetStatusInput) (*billing.Subscription, error) {
	sub, err := s.findSubscription(ctx, input.TenantID)
	if err != nil {
		return nil, err
	}
	if err := sub.SetStatus(billing.SubscriptionStatus(input.Status), s.now()); err != nil {
		return nil, err
	}
	if err := s.commit(ctx, sub, billing.SubscriptionChangeStatus, input.Actor); err != nil {
		return nil, err
	}
	return sub, nil
}

// Invalidate forces the next enforcement read for the tenant to recompute
// and tells other replicas to drop cached counts
func (s *SubscriptionAdminService) Invalidate(ctx context.Context, tenantID uuid.UUID, actor string) error {
	if _, err := s.findSubscription(ctx, tenantID); err != nil {
		return err
	}
	if err := s.enforcement.Invalidate(ctx, tenantID); err != nil {
		return err
	}
	if s.broadcaster != nil {
		if err := s.broadcaster.BroadcastInvalidation(ctx, tenantID, "manual"); err != nil {
			s.logger.Warn("Failed to broadcast enforcement invalidation",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
		}
	}
	s.logger.Info("Enforcement invalidated",
		zap.String("tenant_id", tenantID.String()),
		zap.String("actor", actor),
	)
	return nil
}

// RenewDue closes up to limit finished billing periods. Paid periods roll
// forward and ended trials expire. Each change is committed like an admin
// mutation so the next enforcement read counts against the new window.
func (s *SubscriptionAdminService) RenewDue(ctx context.Context, limit int) (*RenewalResult, error) {
	now := s.now()
	subs, err := s.subRepo.FindDueForRenewal(ctx, now, limit)
	if err != nil {
		return nil, asPersistenceError(err)
	}

	result := &RenewalResult{Total: len(subs)}
	plans := make(map[uuid.UUID]*billing.Plan)
	for i, sub := range subs {
		if ctx.Err() != nil {
			result.Failed += len(subs) - i
			break
		}
		change, err := s.renew(ctx, sub, plans, now)
		if err != nil {
			result.Failed++
			s.logger.Warn("Subscription renewal failed",
				zap.String("tenant_id", sub.TenantID.String()),
				zap.Error(err),
			)
			continue
		}
		switch change {
		case billing.SubscriptionChangePeriodRenewed:
			result.Renewed++
		case billing.SubscriptionChangeTrialExpired:
			result.Expired++
		}
	}
	return result, nil
}

func (s *SubscriptionAdminService) renew(ctx context.Context, sub *billing.Subscription, plans map[uuid.UUID]*billing.Plan, now time.Time) (billing.SubscriptionChange, error) {
	plan, ok := plans[sub.PlanID]
	if !ok {
		found, err := s.planRepo.FindByID(ctx, sub.PlanID)
		if err != nil {
			return "", asPersistenceError(err)
		}
		plan = found
		plans[sub.PlanID] = plan
	}

	change, err := sub.Renew(plan, now)
	if err != nil || change == "" {
		return change, err
	}
	if err := s.commit(ctx, sub, change, "system:renewal"); err != nil {
		return "", err
	}
	return change, nil
}

// commit saves the subscription, invalidates enforcement, then notifies.
// Notification failures are logged; the saved change already holds.
func (s *SubscriptionAdminService) commit(ctx context.Context, sub *billing.Subscription, change billing.SubscriptionChange, actor string) error {
	if err := s.subRepo.Save(ctx, sub); err != nil {
		s.logger.Error("Failed to save subscription",
			zap.String("tenant_id", sub.TenantID.String()),
			zap.String("change", string(change)),
			zap.Error(err),
		)
		return asPersistenceError(err)
	}

	if err := s.enforcement.Invalidate(ctx, sub.TenantID); err != nil {
		return err
	}

	if s.broadcaster != nil {
		if err := s.broadcaster.BroadcastInvalidation(ctx, sub.TenantID, string(change)); err != nil {
			s.logger.Warn("Failed to broadcast enforcement invalidation",
				zap.String("tenant_id", sub.TenantID.String()),
				zap.Error(err),
			)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, billing.NewSubscriptionChangedEvent(sub, change, actor, s.now())); err != nil {
			s.logger.Warn("Failed to publish subscription change", zap.Error(err))
		}
	}

	s.logger.Info("Subscription updated",
		zap.String("tenant_id", sub.TenantID.String()),
		zap.String("change", string(change)),
		zap.String("actor", actor),
	)
	return nil
}

func (s *SubscriptionAdminService) findSubscription(ctx context.Context, tenantID uuid.UUID) (*billing.Subscription, error) {
	sub, err := s.subRepo.FindByTenantID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("NOT_FOUND", "Subscription not found for tenant")
		}
		return nil, asPersistenceError(err)
	}
	return sub, nil
}

func (s *SubscriptionAdminService) findPlan(ctx context.Context, name string) (*billing.Plan, error) {
	plan, err := s.planRepo.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("NOT_FOUND", "Plan not found")
		}
		return nil, asPersistenceError(err)
	}
	return plan, nil
}
