package billing

import (
	"fmt"
	"math"
	"time"
)

// QuotaDecision is the outcome of a pre-flight quota check.
// Throttled is an ordinary result, not an error.
type QuotaDecision struct {
	Throttled bool
	Usage     UsageSnapshot
	Increment int64
	// RetryAfter is nil when only a plan change can lift the throttle
	RetryAfter *time.Duration
	Message    string
}

// RetryAfterSeconds returns the retry hint rounded up to whole seconds
func (q QuotaDecision) RetryAfterSeconds() *int64 {
	if q.RetryAfter == nil {
		return nil
	}
	secs := int64(math.Ceil(q.RetryAfter.Seconds()))
	if secs < 0 {
		secs = 0
	}
	return &secs
}

// Decide compares a single snapshot against the requested increment.
// It never mutates usage: the counter only moves when the caller creates the entity.
func Decide(usage UsageSnapshot, increment int64, periodEnd, now time.Time) QuotaDecision {
	decision := QuotaDecision{Usage: usage, Increment: increment}
	if usage.Limit.Allows(usage.Used, increment) {
		return decision
	}

	decision.Throttled = true
	decision.Message = fmt.Sprintf("Quota exceeded: %d of %d %s used. Please upgrade your plan.",
		usage.Used, int64(usage.Limit), usage.Dimension.DisplayName())
	if usage.Dimension.IsPeriodScoped() {
		wait := periodEnd.Sub(now)
		if wait < 0 {
			wait = 0
		}
		decision.RetryAfter = &wait
	}
	return decision
}
