package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"go.uber.org/zap"
)

// QuotaCheckInput contains input for checking quota
type QuotaCheckInput struct {
	TenantID  uuid.UUID
	Dimension billing.Dimension
	Increment int64 // Units about to be created (default 1)
}

// QuotaService is the synchronous pre-flight gate in front of every
// resource-creation path. It reads one meter value and never reserves units,
// so concurrent creations can overshoot a limit by a small margin.
type QuotaService struct {
	meter   *UsageMeterService
	metrics MetricsRecorder
	logger  *zap.Logger
	now     func() time.Time
}

// NewQuotaService creates a new QuotaService
func NewQuotaService(meter *UsageMeterService, metrics MetricsRecorder, logger *zap.Logger, opts ...Option) *QuotaService {
	o := buildOptions(opts)
	if metrics == nil {
		metrics = NoopMetricsRecorder{}
	}
	return &QuotaService{
		meter:   meter,
		metrics: metrics,
		logger:  logger,
		now:     o.now,
	}
}

// Check decides whether Increment more units of Dimension fit the tenant's quota.
// A throttled result is returned as a value, never as an error.
func (s *QuotaService) Check(ctx context.Context, input QuotaCheckInput) (*billing.QuotaDecision, error) {
	if input.Increment == 0 {
		input.Increment = 1
	}
	if input.Increment < 0 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Increment must be positive")
	}

	s.logger.Debug("Checking quota",
		zap.String("tenant_id", input.TenantID.String()),
		zap.String("dimension", input.Dimension.String()),
		zap.Int64("increment", input.Increment),
	)

	snap, sub, err := s.meter.GetSnapshot(ctx, input.TenantID, input.Dimension)
	if err != nil {
		return nil, err
	}

	decision := billing.Decide(snap, input.Increment, sub.CurrentPeriodEnd, s.now())
	s.metrics.RecordQuotaDecision(ctx, input.Dimension, decision.Throttled)

	if decision.Throttled {
		s.logger.Info("Quota throttled",
			zap.String("tenant_id", input.TenantID.String()),
			zap.String("dimension", input.Dimension.String()),
			zap.Int64("used", snap.Used),
			zap.Int64("limit", int64(snap.Limit)),
		)
	}
	return &decision, nil
}

// CheckMany runs Check per input and returns the first throttled decision,
// or the last allowed one when nothing is throttled
func (s *QuotaService) CheckMany(ctx context.Context, inputs []QuotaCheckInput) (*billing.QuotaDecision, error) {
	if len(inputs) == 0 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "At least one dimension is required")
	}

	var last *billing.QuotaDecision
	for _, in := range inputs {
		d, err := s.Check(ctx, in)
		if err != nil {
			return nil, err
		}
		if d.Throttled {
			return d, nil
		}
		last = d
	}
	return last, nil
}
