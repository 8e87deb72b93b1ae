package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	tenantID    uuid.UUID
	plan        *billing.Plan
	sub         *billing.Subscription
	subRepo     *mockSubscriptionRepository
	planRepo    *mockPlanRepository
	counter     *fakeCounter
	states      *memStateRepo
	clock       *testClock
	meter       *UsageMeterService
	quota       *QuotaService
	enforcement *EnforcementService
}

func newFixture(t *testing.T, limits map[billing.Dimension]billing.Limit) *fixture {
	t.Helper()

	clock := &testClock{t: baseTime}
	plan := &billing.Plan{
		ID:            uuid.New(),
		Name:          "starter",
		TierRank:      1,
		Limits:        limits,
		RetentionDays: 30,
		IsActive:      true,
	}
	tenantID := uuid.New()
	sub, err := billing.NewSubscription(tenantID, plan, baseTime.AddDate(0, 0, -5))
	if err != nil {
		t.Fatal(err)
	}

	subRepo := new(mockSubscriptionRepository)
	subRepo.On("FindByTenantID", mock.Anything, tenantID).Return(sub, nil).Maybe()
	planRepo := new(mockPlanRepository)
	planRepo.On("FindByID", mock.Anything, plan.ID).Return(plan, nil).Maybe()

	counter := newFakeCounter(map[billing.Dimension]int64{})
	states := newMemStateRepo()
	logger := zap.NewNop()

	cfg := DefaultEnforcementServiceConfig()
	cfg.Evaluator.WarnThreshold = 0.9
	cfg.Evaluator.GraceDuration = 72 * time.Hour

	meter := NewUsageMeterService(subRepo, planRepo, counter, logger, WithClock(clock.Now))
	return &fixture{
		tenantID:    tenantID,
		plan:        plan,
		sub:         sub,
		subRepo:     subRepo,
		planRepo:    planRepo,
		counter:     counter,
		states:      states,
		clock:       clock,
		meter:       meter,
		quota:       NewQuotaService(meter, nil, logger, WithClock(clock.Now)),
		enforcement: NewEnforcementService(meter, states, nil, nil, logger, cfg, WithClock(clock.Now)),
	}
}
