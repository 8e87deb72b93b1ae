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

// PolicySource tells where an SDK policy read was served from
type PolicySource string

const (
	// PolicySourceCached is a persisted record that was still fresh
	PolicySourceCached PolicySource = "cached"
	// PolicySourceEvaluated is a record recomputed during the read
	PolicySourceEvaluated PolicySource = "evaluated"
	// PolicySourceLastKnown is a stale record served because recomputation failed
	PolicySourceLastKnown PolicySource = "last_known"
	// PolicySourceFailOpen is the unrestricted default
	PolicySourceFailOpen PolicySource = "fail_open"
)

// PolicyRead is the result of an SDK policy read
type PolicyRead struct {
	State  *billing.EnforcementState
	Source PolicySource
}

// SweepResult summarizes a batch evaluation run
type SweepResult struct {
	Total      int
	Successful int
	Failed     int
}

// EnforcementServiceConfig contains configuration for EnforcementService
type EnforcementServiceConfig struct {
	Evaluator billing.EvaluatorConfig
	Policy    billing.PolicyConfig

	// FailureBackoff reschedules a tenant whose sweep evaluation failed so
	// it does not stay at the head of the due queue. Zero disables it.
	FailureBackoff time.Duration
}

// DefaultEnforcementServiceConfig returns default configuration
func DefaultEnforcementServiceConfig() EnforcementServiceConfig {
	return EnforcementServiceConfig{
		Evaluator:      billing.DefaultEvaluatorConfig(),
		Policy:         billing.DefaultPolicyConfig(),
		FailureBackoff: 5 * time.Minute,
	}
}

// EnforcementService runs evaluate+commit and serves enforcement reads.
// Recomputation is lazy: a read recomputes only once NextEvaluationAt has passed.
// Concurrent commits for one tenant are last-write-wins; the evaluator is
// deterministic so racing writers store the same result modulo clock drift.
type EnforcementService struct {
	meter     *UsageMeterService
	stateRepo billing.EnforcementStateRepository
	publisher shared.EventPublisher
	metrics   MetricsRecorder
	logger    *zap.Logger
	config    EnforcementServiceConfig
	now       func() time.Time
}

// NewEnforcementService creates a new EnforcementService
func NewEnforcementService(
	meter *UsageMeterService,
	stateRepo billing.EnforcementStateRepository,
	publisher shared.EventPublisher,
	metrics MetricsRecorder,
	logger *zap.Logger,
	config EnforcementServiceConfig,
	opts ...Option,
) *EnforcementService {
	o := buildOptions(opts)
	if metrics == nil {
		metrics = NoopMetricsRecorder{}
	}
	return &EnforcementService{
		meter:     meter,
		stateRepo: stateRepo,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		config:    config,
		now:       o.now,
	}
}

// EvaluateAndCommit recomputes and persists the tenant's enforcement state
// regardless of freshness
func (s *EnforcementService) EvaluateAndCommit(ctx context.Context, tenantID uuid.UUID) (*billing.EnforcementState, error) {
	prior, err := s.findPrior(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, tenantID, prior)
}

// GetStatus is the dashboard read. Errors surface to the caller.
func (s *EnforcementService) GetStatus(ctx context.Context, tenantID uuid.UUID) (*billing.EnforcementState, error) {
	prior, err := s.findPrior(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !prior.IsDue(s.now()) {
		return prior, nil
	}
	return s.evaluate(ctx, tenantID, prior)
}

// GetSDKPolicy is the ingestion-facing read. It never fails: a missing
// subscription yields the unrestricted ACTIVE default, and storage failures
// fall back to the last persisted record when one could be read.
func (s *EnforcementService) GetSDKPolicy(ctx context.Context, tenantID uuid.UUID) PolicyRead {
	read := s.readPolicy(ctx, tenantID)
	s.metrics.RecordPolicyRead(ctx, read.Source)
	return read
}

func (s *EnforcementService) readPolicy(ctx context.Context, tenantID uuid.UUID) PolicyRead {
	prior, err := s.findPrior(ctx, tenantID)
	if err != nil {
		s.logger.Warn("Enforcement state unreadable, failing open",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
		return s.failOpen(tenantID)
	}
	if !prior.IsDue(s.now()) {
		return PolicyRead{State: prior, Source: PolicySourceCached}
	}

	next, err := s.evaluate(ctx, tenantID, prior)
	switch {
	case err == nil:
		return PolicyRead{State: next, Source: PolicySourceEvaluated}
	case errors.Is(err, shared.ErrNotFound):
		s.logger.Debug("No subscription for tenant, failing open",
			zap.String("tenant_id", tenantID.String()),
		)
		return s.failOpen(tenantID)
	case prior != nil:
		s.logger.Warn("Enforcement evaluation failed, serving last known state",
			zap.String("tenant_id", tenantID.String()),
			zap.String("state", string(prior.State())),
			zap.Error(err),
		)
		return PolicyRead{State: prior, Source: PolicySourceLastKnown}
	default:
		s.logger.Warn("Enforcement evaluation failed, failing open",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
		return s.failOpen(tenantID)
	}
}

// Invalidate forces the next read for the tenant to recompute
func (s *EnforcementService) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	if err := s.stateRepo.Invalidate(ctx, tenantID, s.now()); err != nil {
		s.logger.Error("Failed to invalidate enforcement state",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
		return asPersistenceError(err)
	}
	s.logger.Debug("Enforcement state invalidated", zap.String("tenant_id", tenantID.String()))
	return nil
}

// SweepDue evaluates up to limit tenants whose records are due. Per-tenant
// failures are counted and logged; the sweep continues.
func (s *EnforcementService) SweepDue(ctx context.Context, limit int) (*SweepResult, error) {
	ids, err := s.stateRepo.FindDue(ctx, s.now(), limit)
	if err != nil {
		return nil, asPersistenceError(err)
	}
	return s.evaluateAll(ctx, ids), nil
}

// EvaluateAllTenants evaluates every tenant that has a subscription, including
// tenants that were never evaluated before
func (s *EnforcementService) EvaluateAllTenants(ctx context.Context) (*SweepResult, error) {
	ids, err := s.meter.subRepo.FindAllTenantIDs(ctx)
	if err != nil {
		return nil, asPersistenceError(err)
	}
	return s.evaluateAll(ctx, ids), nil
}

func (s *EnforcementService) evaluateAll(ctx context.Context, ids []uuid.UUID) *SweepResult {
	result := &SweepResult{Total: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			result.Failed += result.Total - result.Successful - result.Failed
			break
		}
		if _, err := s.EvaluateAndCommit(ctx, id); err != nil {
			result.Failed++
			s.logger.Warn("Enforcement sweep failed for tenant",
				zap.String("tenant_id", id.String()),
				zap.Error(err),
			)
			s.backOff(ctx, id)
			continue
		}
		result.Successful++
	}
	return result
}

// backOff moves a failing tenant behind the rest of the due queue
func (s *EnforcementService) backOff(ctx context.Context, tenantID uuid.UUID) {
	if s.config.FailureBackoff <= 0 {
		return
	}
	if err := s.stateRepo.Defer(ctx, tenantID, s.now().Add(s.config.FailureBackoff)); err != nil {
		s.logger.Warn("Failed to back off enforcement evaluation",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	}
}

// Config returns the active configuration
func (s *EnforcementService) Config() EnforcementServiceConfig {
	return s.config
}

func (s *EnforcementService) findPrior(ctx context.Context, tenantID uuid.UUID) (*billing.EnforcementState, error) {
	prior, err := s.stateRepo.FindByTenantID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, asPersistenceError(err)
	}
	return prior, nil
}

func (s *EnforcementService) evaluate(ctx context.Context, tenantID uuid.UUID, prior *billing.EnforcementState) (*billing.EnforcementState, error) {
	report, sub, err := s.meter.GetReport(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	ev := billing.Evaluate(billing.EvaluationInput{
		Report:       report,
		Subscription: sub,
		Prior:        prior,
		Now:          s.now(),
	}, s.config.Evaluator)

	next := ev.Next
	next.Policy = billing.Compile(next.State(), next.Cause(), s.config.Policy)

	if err := s.stateRepo.Upsert(ctx, next); err != nil {
		s.logger.Error("Failed to commit enforcement state",
			zap.String("tenant_id", tenantID.String()),
			zap.String("state", string(next.State())),
			zap.Error(err),
		)
		return nil, asPersistenceError(err)
	}

	if ev.Transitioned {
		s.metrics.RecordTransition(ctx, ev.Previous, next.State())
		s.logger.Info("Enforcement state changed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("from", string(ev.Previous)),
			zap.String("to", string(next.State())),
			zap.String("cause", string(next.Cause())),
			zap.Strings("triggered_metrics", next.TriggeredMetricNames()),
		)
		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, billing.NewEnforcementStateChangedEvent(ev.Previous, next)); err != nil {
				s.logger.Warn("Failed to publish enforcement state change", zap.Error(err))
			}
		}
	}
	return next, nil
}

func (s *EnforcementService) failOpen(tenantID uuid.UUID) PolicyRead {
	return PolicyRead{
		State:  billing.NewActiveState(tenantID, s.now(), s.config.Policy),
		Source: PolicySourceFailOpen,
	}
}
