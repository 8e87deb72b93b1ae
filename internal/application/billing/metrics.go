package billing

import (
	"context"

	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
)

// MetricsRecorder receives engine outcomes for observability
type MetricsRecorder interface {
	RecordQuotaDecision(ctx context.Context, dim billing.Dimension, throttled bool)
	RecordTransition(ctx context.Context, from, to billing.State)
	RecordPolicyRead(ctx context.Context, source PolicySource)
}

// NoopMetricsRecorder discards everything
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) RecordQuotaDecision(context.Context, billing.Dimension, bool)   {}
func (NoopMetricsRecorder) RecordTransition(context.Context, billing.State, billing.State) {}
func (NoopMetricsRecorder) RecordPolicyRead(context.Context, PolicySource)                 {}
