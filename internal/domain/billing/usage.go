package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UsageSnapshot is the consumption of one dimension against its effective limit
type UsageSnapshot struct {
	Dimension  Dimension
	Used       int64
	Limit      Limit
	Percentage float64
}

// NewUsageSnapshot builds a snapshot. Percentage is 0 for unlimited or zero limits.
func NewUsageSnapshot(d Dimension, used int64, limit Limit) UsageSnapshot {
	var pct float64
	if !limit.IsUnlimited() && limit > 0 {
		pct = float64(used) * 100 / float64(limit)
	}
	return UsageSnapshot{Dimension: d, Used: used, Limit: limit, Percentage: pct}
}

// Ratio returns used/limit for finite limits. ok is false when the limit is unlimited.
// A zero limit with any usage is treated as fully consumed.
func (u UsageSnapshot) Ratio() (ratio float64, ok bool) {
	if u.Limit.IsUnlimited() {
		return 0, false
	}
	if u.Limit == 0 {
		if u.Used > 0 {
			return 1, true
		}
		return 0, true
	}
	return float64(u.Used) / float64(u.Limit), true
}

// UsageReport is the full meter read for a tenant
type UsageReport struct {
	TenantID      uuid.UUID
	PlanName      string
	Status        SubscriptionStatus
	Enabled       bool
	TrialActive   bool
	TrialEndDate  time.Time
	Period        Period
	DaysRemaining int
	Snapshots     map[Dimension]UsageSnapshot
	GeneratedAt   time.Time
}

// Snapshot returns the snapshot for a dimension
func (r *UsageReport) Snapshot(d Dimension) (UsageSnapshot, bool) {
	s, ok := r.Snapshots[d]
	return s, ok
}

// UsageCounter counts tenant-owned rows for a dimension. A nil window counts
// every live row; otherwise only rows created inside the window.
type UsageCounter interface {
	Count(ctx context.Context, tenantID uuid.UUID, d Dimension, window *Period) (int64, error)
}
