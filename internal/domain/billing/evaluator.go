package billing

import (
	"fmt"
	"sort"
	"time"
)

// EvaluatorConfig holds the operational constants of the state machine
type EvaluatorConfig struct {
	// WarnThreshold is the usage ratio at which WARN starts, exclusive of 1.0
	WarnThreshold float64
	// GraceDuration is how long GRACE lasts before escalating to DEGRADED
	GraceDuration time.Duration

	ActiveInterval   time.Duration
	WarnInterval     time.Duration
	GraceInterval    time.Duration
	DegradedInterval time.Duration
}

// DefaultEvaluatorConfig returns the production defaults
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		WarnThreshold:    0.8,
		GraceDuration:    48 * time.Hour,
		ActiveInterval:   6 * time.Hour,
		WarnInterval:     15 * time.Minute,
		GraceInterval:    5 * time.Minute,
		DegradedInterval: 5 * time.Minute,
	}
}

// Validate checks the threshold range and that non-ACTIVE states poll faster than ACTIVE
func (c EvaluatorConfig) Validate() error {
	if c.WarnThreshold <= 0 || c.WarnThreshold >= 1 {
		return fmt.Errorf("enforcement warn threshold must be in (0, 1), got %f", c.WarnThreshold)
	}
	if c.GraceDuration <= 0 {
		return fmt.Errorf("enforcement grace duration must be positive")
	}
	for name, d := range map[string]time.Duration{
		"warn_interval":     c.WarnInterval,
		"grace_interval":    c.GraceInterval,
		"degraded_interval": c.DegradedInterval,
	} {
		if d <= 0 || d >= c.ActiveInterval {
			return fmt.Errorf("enforcement %s (%s) must be positive and shorter than active_interval (%s)", name, d, c.ActiveInterval)
		}
	}
	return nil
}

// Interval returns how long a state stays fresh before re-evaluation
func (c EvaluatorConfig) Interval(s State) time.Duration {
	switch s {
	case StateWarn:
		return c.WarnInterval
	case StateGrace:
		return c.GraceInterval
	case StateDegraded:
		return c.DegradedInterval
	default:
		return c.ActiveInterval
	}
}

// EvaluationInput is everything the evaluator reads. Prior is nil on first evaluation.
type EvaluationInput struct {
	Report       *UsageReport
	Subscription *Subscription
	Prior        *EnforcementState
	Now          time.Time
}

// Evaluation is an uncommitted result. Next carries no policy until compiled.
// A missing prior record counts as ACTIVE when deciding Transitioned. A new
// DEGRADED cause is a transition too since it compiles to another policy.
type Evaluation struct {
	Next         *EnforcementState
	Previous     State
	Transitioned bool
}

// Evaluate resolves the next enforcement state. It is a pure function of its
// input: the same usage, subscription, prior record and clock give the same result.
func Evaluate(in EvaluationInput, cfg EvaluatorConfig) Evaluation {
	prior := in.Prior
	priorState := prior.State()
	now := in.Now

	hard, warn := classify(in.Report, cfg.WarnThreshold)
	phase, triggered := resolve(in.Subscription, prior, hard, warn, now, cfg)

	next := &EnforcementState{
		TenantID:         in.Subscription.TenantID,
		SubscriptionID:   in.Subscription.ID,
		Phase:            phase,
		TriggeredMetrics: triggered,
		LastEvaluatedAt:  now,
		NextEvaluationAt: now.Add(cfg.Interval(phase.State())),
		UpdatedAt:        now,
	}
	stampEntry(next, prior, now)

	return Evaluation{
		Next:         next,
		Previous:     priorState,
		Transitioned: priorState != phase.State() || prior.Cause() != next.Cause(),
	}
}

func resolve(sub *Subscription, prior *EnforcementState, hard, warn []TriggeredMetric, now time.Time, cfg EvaluatorConfig) (Phase, []TriggeredMetric) {
	switch {
	case sub.IsDisabled():
		return DegradedPhase{Cause: CauseAdminDisabled}, []TriggeredMetric{{Metric: string(CauseAdminDisabled)}}
	case sub.Status == SubscriptionStatusExpired:
		return DegradedPhase{Cause: CauseSubscriptionExpired}, []TriggeredMetric{{Metric: string(CauseSubscriptionExpired)}}
	case len(hard) > 0:
		switch priorState := prior.State(); priorState {
		case StateGrace:
			endsAt := *prior.GraceEndsAt()
			if now.Before(endsAt) {
				return GracePhase{EndsAt: endsAt}, hard
			}
			return DegradedPhase{Cause: CauseUsageExceeded}, hard
		case StateDegraded:
			return DegradedPhase{Cause: CauseUsageExceeded}, hard
		default:
			return GracePhase{EndsAt: now.Add(cfg.GraceDuration)}, hard
		}
	case len(warn) > 0:
		return WarnPhase{}, warn
	default:
		return ActivePhase{}, []TriggeredMetric{}
	}
}

// classify splits finite-limit dimensions into hard-exceeded and warning sets,
// each sorted by metric name
func classify(report *UsageReport, warnThreshold float64) (hard, warn []TriggeredMetric) {
	if report == nil {
		return nil, nil
	}
	for d, snap := range report.Snapshots {
		ratio, ok := snap.Ratio()
		if !ok {
			continue
		}
		tm := TriggeredMetric{
			Metric:     string(d),
			Used:       snap.Used,
			Limit:      int64(snap.Limit),
			Percentage: snap.Percentage,
		}
		switch {
		case ratio >= 1.0:
			hard = append(hard, tm)
		case ratio >= warnThreshold:
			warn = append(warn, tm)
		}
	}
	sort.Slice(hard, func(i, j int) bool { return hard[i].Metric < hard[j].Metric })
	sort.Slice(warn, func(i, j int) bool { return warn[i].Metric < warn[j].Metric })
	return hard, warn
}

// stampEntry carries entry timestamps forward. Timestamps of states more severe
// than the resolved one are cleared; the resolved state's timestamp is set only
// on entry.
func stampEntry(next, prior *EnforcementState, now time.Time) {
	if prior != nil {
		next.WarnEnteredAt = prior.WarnEnteredAt
		next.GraceEnteredAt = prior.GraceEnteredAt
		next.DegradedEnteredAt = prior.DegradedEnteredAt
	}

	state := next.State()
	rank := state.severity()
	if rank < StateWarn.severity() {
		next.WarnEnteredAt = nil
	}
	if rank < StateGrace.severity() {
		next.GraceEnteredAt = nil
	}
	if rank < StateDegraded.severity() {
		next.DegradedEnteredAt = nil
	}

	if prior != nil && prior.State() == state {
		return
	}
	entered := now
	switch state {
	case StateWarn:
		next.WarnEnteredAt = &entered
	case StateGrace:
		next.GraceEnteredAt = &entered
	case StateDegraded:
		next.DegradedEnteredAt = &entered
	}
}
