package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

// Mock implementations

type mockSubscriptionRepository struct {
	mock.Mock
}

func (m *mockSubscriptionRepository) FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*billing.Subscription, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *mockSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *mockSubscriptionRepository) Save(ctx context.Context, sub *billing.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *mockSubscriptionRepository) FindAllTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *mockSubscriptionRepository) FindDueForRenewal(ctx context.Context, now time.Time, limit int) ([]*billing.Subscription, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*billing.Subscription), args.Error(1)
}

type mockPlanRepository struct {
	mock.Mock
}

func (m *mockPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Plan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Plan), args.Error(1)
}

func (m *mockPlanRepository) FindByName(ctx context.Context, name string) (*billing.Plan, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Plan), args.Error(1)
}

func (m *mockPlanRepository) FindAll(ctx context.Context, activeOnly bool) ([]*billing.Plan, error) {
	args := m.Called(ctx, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*billing.Plan), args.Error(1)
}

type mockEventPublisher struct {
	mock.Mock
}

func (m *mockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) BroadcastInvalidation(ctx context.Context, tenantID uuid.UUID, reason string) error {
	args := m.Called(ctx, tenantID, reason)
	return args.Error(0)
}

// fakeCounter serves counts from a map and records the window it was asked for
type fakeCounter struct {
	mu      sync.Mutex
	counts  map[billing.Dimension]int64
	err     error
	windows map[billing.Dimension]*billing.Period
}

func newFakeCounter(counts map[billing.Dimension]int64) *fakeCounter {
	return &fakeCounter{counts: counts, windows: map[billing.Dimension]*billing.Period{}}
}

func (f *fakeCounter) Count(_ context.Context, _ uuid.UUID, d billing.Dimension, window *billing.Period) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows[d] = window
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[d], nil
}

func (f *fakeCounter) set(d billing.Dimension, v int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[d] = v
}

// memStateRepo is an in-memory enforcement store
type memStateRepo struct {
	mu        sync.Mutex
	states    map[uuid.UUID]*billing.EnforcementState
	findErr   error
	upsertErr error
	upserts   int
}

func newMemStateRepo() *memStateRepo {
	return &memStateRepo{states: map[uuid.UUID]*billing.EnforcementState{}}
}

func (r *memStateRepo) FindByTenantID(_ context.Context, tenantID uuid.UUID) (*billing.EnforcementState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	s, ok := r.states[tenantID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memStateRepo) Upsert(_ context.Context, state *billing.EnforcementState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	cp := *state
	r.states[state.TenantID] = &cp
	r.upserts++
	return nil
}

func (r *memStateRepo) Invalidate(_ context.Context, tenantID uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[tenantID]; ok {
		s.NextEvaluationAt = now
	}
	return nil
}

func (r *memStateRepo) Defer(_ context.Context, tenantID uuid.UUID, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[tenantID]; ok {
		s.NextEvaluationAt = until
	}
	return nil
}

// FindDue orders by deadline like the SQL store
func (r *memStateRepo) FindDue(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*billing.EnforcementState
	for _, s := range r.states {
		if !now.Before(s.NextEvaluationAt) {
			due = append(due, s)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextEvaluationAt.Before(due[j].NextEvaluationAt)
	})
	ids := make([]uuid.UUID, 0, len(due))
	for _, s := range due {
		if len(ids) == limit {
			break
		}
		ids = append(ids, s.TenantID)
	}
	return ids, nil
}

// testClock is a settable clock
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
