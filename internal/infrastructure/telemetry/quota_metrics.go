package telemetry

import (
	"context"
	"fmt"

	appbilling "github.com/iplixera/nivostack-monorepo-sub006/internal/application/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// QuotaMetrics records gate decisions, enforcement transitions and SDK policy reads
type QuotaMetrics struct {
	decisions   metric.Int64Counter
	transitions metric.Int64Counter
	policyReads metric.Int64Counter
}

// NewQuotaMetrics creates the instruments on meter
func NewQuotaMetrics(meter metric.Meter) (*QuotaMetrics, error) {
	decisions, err := meter.Int64Counter("quota.decisions",
		metric.WithDescription("Quota gate decisions by dimension and outcome"),
		metric.WithUnit("{decision}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter quota.decisions: %w", err)
	}
	transitions, err := meter.Int64Counter("enforcement.transitions",
		metric.WithDescription("Enforcement state changes"),
		metric.WithUnit("{transition}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter enforcement.transitions: %w", err)
	}
	policyReads, err := meter.Int64Counter("enforcement.policy_reads",
		metric.WithDescription("SDK policy reads by serving source"),
		metric.WithUnit("{read}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter enforcement.policy_reads: %w", err)
	}
	return &QuotaMetrics{
		decisions:   decisions,
		transitions: transitions,
		policyReads: policyReads,
	}, nil
}

// RecordQuotaDecision counts one gate decision
func (m *QuotaMetrics) RecordQuotaDecision(ctx context.Context, dim billing.Dimension, throttled bool) {
	outcome := "allowed"
	if throttled {
		outcome = "throttled"
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("dimension", string(dim)),
		attribute.String("outcome", outcome),
	))
}

// RecordTransition counts one state change
func (m *QuotaMetrics) RecordTransition(ctx context.Context, from, to billing.State) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

// RecordPolicyRead counts one SDK policy read
func (m *QuotaMetrics) RecordPolicyRead(ctx context.Context, source appbilling.PolicySource) {
	m.policyReads.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(source))))
}

var _ appbilling.MetricsRecorder = (*QuotaMetrics)(nil)
