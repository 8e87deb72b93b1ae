package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"go.uber.org/zap"
)

// Option configures an application service
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the wall clock, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// UsageMeterService counts tenant consumption and combines it with effective limits.
// It never writes.
type UsageMeterService struct {
	subRepo  billing.SubscriptionRepository
	planRepo billing.PlanRepository
	counter  billing.UsageCounter
	logger   *zap.Logger
	now      func() time.Time
}

// NewUsageMeterService creates a new UsageMeterService
func NewUsageMeterService(
	subRepo billing.SubscriptionRepository,
	planRepo billing.PlanRepository,
	counter billing.UsageCounter,
	logger *zap.Logger,
	opts ...Option,
) *UsageMeterService {
	o := buildOptions(opts)
	return &UsageMeterService{
		subRepo:  subRepo,
		planRepo: planRepo,
		counter:  counter,
		logger:   logger,
		now:      o.now,
	}
}

// GetSnapshot meters a single dimension. The subscription is returned so callers
// can read the billing window without a second lookup.
func (s *UsageMeterService) GetSnapshot(ctx context.Context, tenantID uuid.UUID, dim billing.Dimension) (billing.UsageSnapshot, *billing.Subscription, error) {
	if !dim.IsValid() {
		return billing.UsageSnapshot{}, nil, shared.Wrap(shared.ErrInvalidDimension, fmt.Errorf("unknown dimension %q", dim))
	}

	sub, plan, err := s.load(ctx, tenantID)
	if err != nil {
		return billing.UsageSnapshot{}, nil, err
	}

	snap, err := s.snapshot(ctx, sub, plan, dim)
	if err != nil {
		return billing.UsageSnapshot{}, nil, err
	}
	return snap, sub, nil
}

// GetReport meters every tracked dimension
func (s *UsageMeterService) GetReport(ctx context.Context, tenantID uuid.UUID) (*billing.UsageReport, *billing.Subscription, error) {
	sub, plan, err := s.load(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	report := &billing.UsageReport{
		TenantID:      tenantID,
		PlanName:      plan.Name,
		Status:        sub.Status,
		Enabled:       sub.Enabled,
		TrialActive:   sub.IsTrialActive(now),
		TrialEndDate:  sub.TrialEndDate,
		Period:        sub.Period(),
		DaysRemaining: sub.DaysRemaining(now),
		Snapshots:     make(map[billing.Dimension]billing.UsageSnapshot, len(billing.AllDimensions())),
		GeneratedAt:   now,
	}

	for _, dim := range billing.AllDimensions() {
		snap, err := s.snapshot(ctx, sub, plan, dim)
		if err != nil {
			return nil, nil, err
		}
		report.Snapshots[dim] = snap
	}

	s.logger.Debug("Usage report built",
		zap.String("tenant_id", tenantID.String()),
		zap.String("plan", plan.Name),
		zap.Int("dimensions", len(report.Snapshots)),
	)
	return report, sub, nil
}

func (s *UsageMeterService) snapshot(ctx context.Context, sub *billing.Subscription, plan *billing.Plan, dim billing.Dimension) (billing.UsageSnapshot, error) {
	var window *billing.Period
	if dim.IsPeriodScoped() {
		p := sub.Period()
		window = &p
	}

	used, err := s.counter.Count(ctx, sub.TenantID, dim, window)
	if err != nil {
		s.logger.Error("Failed to count usage",
			zap.String("tenant_id", sub.TenantID.String()),
			zap.String("dimension", dim.String()),
			zap.Error(err),
		)
		return billing.UsageSnapshot{}, asPersistenceError(err)
	}

	return billing.NewUsageSnapshot(dim, used, sub.EffectiveLimit(plan, dim)), nil
}

// load fetches the subscription and its plan, mapping store errors to the domain taxonomy
func (s *UsageMeterService) load(ctx context.Context, tenantID uuid.UUID) (*billing.Subscription, *billing.Plan, error) {
	sub, err := s.subRepo.FindByTenantID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil, shared.NewDomainError("NOT_FOUND", "Subscription not found for tenant")
		}
		return nil, nil, asPersistenceError(err)
	}

	plan, err := s.planRepo.FindByID(ctx, sub.PlanID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil, shared.NewDomainError("NOT_FOUND", "Plan not found for subscription")
		}
		return nil, nil, asPersistenceError(err)
	}
	return sub, plan, nil
}

// asPersistenceError keeps domain errors as they are and wraps anything else
func asPersistenceError(err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.Wrap(shared.ErrPersistence, err)
}
