package handler

import (
	"sort"

	appbilling "github.com/iplixera/nivostack-monorepo-sub006/internal/application/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/dto"
)

// ============================================================================
// Request DTOs
// ============================================================================

// QuotaCheckRequest asks whether increment more units of a dimension fit
//
//	@Description	Pre-flight quota check for one dimension
type QuotaCheckRequest struct {
	Dimension string `json:"dimension" binding:"required,dimension" example:"devices"`
	Increment int64  `json:"increment" binding:"omitempty,gte=1" example:"1"`
}

// QuotaCheckManyRequest checks several dimensions; the first throttled one wins
//
//	@Description	Pre-flight quota check across several dimensions
type QuotaCheckManyRequest struct {
	Checks []QuotaCheckRequest `json:"checks" binding:"required,min=1,max=20,dive"`
}

// CreateSubscriptionRequest starts a subscription at signup
//
//	@Description	Start a trial subscription for a tenant
type CreateSubscriptionRequest struct {
	PlanName string `json:"plan_name" binding:"omitempty,max=50" example:"free"`
}

// ChangePlanRequest moves a tenant to another plan
//
//	@Description	Change the tenant's plan
type ChangePlanRequest struct {
	PlanName string `json:"plan_name" binding:"required,max=50" example:"pro"`
}

// SetOverrideRequest overrides one dimension limit. A null value removes the override.
//
//	@Description	Override or clear a single dimension limit (-1 means unlimited)
type SetOverrideRequest struct {
	Dimension string `json:"dimension" binding:"required,dimension" example:"devices"`
	Value     *int64 `json:"value" binding:"omitempty,gte=-1" example:"500"`
}

// SetEnabledRequest flips the admin kill switch
//
//	@Description	Enable or disable a subscription
type SetEnabledRequest struct {
	Enabled *bool  `json:"enabled" binding:"required" example:"false"`
	Reason  string `json:"reason" binding:"max=500" example:"chargeback"`
}

// SetStatusRequest changes the subscription lifecycle status
//
//	@Description	Change the subscription status
type SetStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active trial expired cancelled suspended disabled" example:"expired"`
}

// ============================================================================
// Response DTOs
// ============================================================================

// EnforcementStatusResponse is the dashboard view of a tenant's enforcement record
//
//	@Description	Enforcement state with entry timestamps and effective policy
type EnforcementStatusResponse struct {
	TenantID          string                    `json:"tenant_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	State             string                    `json:"state" example:"GRACE"`
	Cause             string                    `json:"cause,omitempty" example:"admin_disabled"`
	EffectivePolicy   billing.EffectivePolicy   `json:"effective_policy"`
	GraceEndsAt       *string                   `json:"grace_ends_at" example:"2026-03-12T12:00:00Z"`
	WarnEnteredAt     *string                   `json:"warn_entered_at"`
	GraceEnteredAt    *string                   `json:"grace_entered_at"`
	DegradedEnteredAt *string                   `json:"degraded_entered_at"`
	TriggeredMetrics  []billing.TriggeredMetric `json:"triggered_metrics"`
	LastEvaluatedAt   string                    `json:"last_evaluated_at" example:"2026-03-10T12:00:00Z"`
	NextEvaluationAt  string                    `json:"next_evaluation_at" example:"2026-03-10T12:15:00Z"`
}

// NewEnforcementStatusResponse converts a domain enforcement record
func NewEnforcementStatusResponse(s *billing.EnforcementState) EnforcementStatusResponse {
	metrics := s.TriggeredMetrics
	if metrics == nil {
		metrics = []billing.TriggeredMetric{}
	}
	return EnforcementStatusResponse{
		TenantID:          s.TenantID.String(),
		State:             string(s.State()),
		Cause:             string(s.Cause()),
		EffectivePolicy:   s.Policy,
		GraceEndsAt:       formatTimePtr(s.GraceEndsAt()),
		WarnEnteredAt:     formatTimePtr(s.WarnEnteredAt),
		GraceEnteredAt:    formatTimePtr(s.GraceEnteredAt),
		DegradedEnteredAt: formatTimePtr(s.DegradedEnteredAt),
		TriggeredMetrics:  metrics,
		LastEvaluatedAt:   formatTime(s.LastEvaluatedAt),
		NextEvaluationAt:  formatTime(s.NextEvaluationAt),
	}
}

// SDKPolicyResponse is what ingestion clients apply. Source tells whether
// the record was fresh, recomputed, stale, or the fail-open default.
//
//	@Description	Effective policy for SDK ingestion
type SDKPolicyResponse struct {
	State            string                  `json:"state" example:"ACTIVE"`
	EffectivePolicy  billing.EffectivePolicy `json:"effective_policy"`
	GraceEndsAt      *string                 `json:"grace_ends_at"`
	NextEvaluationAt string                  `json:"next_evaluation_at" example:"2026-03-10T18:00:00Z"`
	TriggeredMetrics []string                `json:"triggered_metrics"`
	Source           string                  `json:"source" example:"cached"`
}

// NewSDKPolicyResponse converts a policy read
func NewSDKPolicyResponse(read appbilling.PolicyRead) SDKPolicyResponse {
	return SDKPolicyResponse{
		State:            string(read.State.State()),
		EffectivePolicy:  read.State.Policy,
		GraceEndsAt:      formatTimePtr(read.State.GraceEndsAt()),
		NextEvaluationAt: formatTime(read.State.NextEvaluationAt),
		TriggeredMetrics: read.State.TriggeredMetricNames(),
		Source:           string(read.Source),
	}
}

// UsageReportResponse is the dashboard usage view
//
//	@Description	Current usage of every dimension against its effective limit
type UsageReportResponse struct {
	TenantID      string                      `json:"tenant_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Plan          string                      `json:"plan" example:"pro"`
	Status        string                      `json:"status" example:"active"`
	Enabled       bool                        `json:"enabled" example:"true"`
	TrialActive   bool                        `json:"trial_active" example:"false"`
	TrialEndDate  string                      `json:"trial_end_date" example:"2026-04-09T12:00:00Z"`
	PeriodStart   string                      `json:"period_start" example:"2026-03-01T00:00:00Z"`
	PeriodEnd     string                      `json:"period_end" example:"2026-04-01T00:00:00Z"`
	DaysRemaining int                         `json:"days_remaining" example:"21"`
	Usage         []dto.UsageSnapshotResponse `json:"usage"`
	GeneratedAt   string                      `json:"generated_at" example:"2026-03-10T12:00:00Z"`
}

// NewUsageReportResponse converts a usage report, snapshots in catalog order
func NewUsageReportResponse(r *billing.UsageReport) UsageReportResponse {
	usage := make([]dto.UsageSnapshotResponse, 0, len(r.Snapshots))
	for _, d := range billing.AllDimensions() {
		if s, ok := r.Snapshot(d); ok {
			usage = append(usage, dto.NewUsageSnapshotResponse(s))
		}
	}
	return UsageReportResponse{
		TenantID:      r.TenantID.String(),
		Plan:          r.PlanName,
		Status:        string(r.Status),
		Enabled:       r.Enabled,
		TrialActive:   r.TrialActive,
		TrialEndDate:  formatTime(r.TrialEndDate),
		PeriodStart:   formatTime(r.Period.Start),
		PeriodEnd:     formatTime(r.Period.End),
		DaysRemaining: r.DaysRemaining,
		Usage:         usage,
		GeneratedAt:   formatTime(r.GeneratedAt),
	}
}

// SubscriptionResponse is the admin view of a subscription.
// Override values of -1 mean unlimited.
//
//	@Description	Subscription record
type SubscriptionResponse struct {
	ID                 string           `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	TenantID           string           `json:"tenant_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	PlanID             string           `json:"plan_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Status             string           `json:"status" example:"active"`
	Enabled            bool             `json:"enabled" example:"true"`
	Overrides          map[string]int64 `json:"overrides"`
	CurrentPeriodStart string           `json:"current_period_start"`
	CurrentPeriodEnd   string           `json:"current_period_end"`
	TrialEndDate       string           `json:"trial_end_date"`
	DisabledBy         string           `json:"disabled_by,omitempty"`
	DisabledReason     string           `json:"disabled_reason,omitempty"`
	DisabledAt         *string          `json:"disabled_at,omitempty"`
	UpdatedAt          string           `json:"updated_at"`
}

// NewSubscriptionResponse converts a domain subscription
func NewSubscriptionResponse(s *billing.Subscription) SubscriptionResponse {
	overrides := make(map[string]int64, len(s.Overrides))
	for d, v := range s.Overrides {
		if v != nil {
			overrides[d.String()] = *v
		}
	}
	return SubscriptionResponse{
		ID:                 s.ID.String(),
		TenantID:           s.TenantID.String(),
		PlanID:             s.PlanID.String(),
		Status:             string(s.Status),
		Enabled:            s.Enabled,
		Overrides:          overrides,
		CurrentPeriodStart: formatTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:   formatTime(s.CurrentPeriodEnd),
		TrialEndDate:       formatTime(s.TrialEndDate),
		DisabledBy:         s.DisabledBy,
		DisabledReason:     s.DisabledReason,
		DisabledAt:         formatTimePtr(s.DisabledAt),
		UpdatedAt:          formatTime(s.UpdatedAt),
	}
}

// PlanResponse is a catalog entry. Limits are null when unlimited.
//
//	@Description	Plan tier with limits and features
type PlanResponse struct {
	ID            string               `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Name          string               `json:"name" example:"pro"`
	DisplayName   string               `json:"display_name" example:"Pro"`
	TierRank      int                  `json:"tier_rank" example:"2"`
	Limits        map[string]*int64    `json:"limits"`
	Price         string               `json:"price" example:"49.00"`
	Currency      string               `json:"currency" example:"USD"`
	Interval      string               `json:"interval" example:"month"`
	Features      billing.PlanFeatures `json:"features"`
	RetentionDays int                  `json:"retention_days" example:"30"`
}

// NewPlanResponse converts a domain plan
func NewPlanResponse(p *billing.Plan) PlanResponse {
	return PlanResponse{
		ID:            p.ID.String(),
		Name:          p.Name,
		DisplayName:   p.DisplayName,
		TierRank:      p.TierRank,
		Limits:        limitsMap(p.Limits),
		Price:         formatPrice(p.Price),
		Currency:      p.Currency,
		Interval:      string(p.Interval),
		Features:      p.Features,
		RetentionDays: p.RetentionDays,
	}
}

// NewPlanListResponse converts plans ordered by tier
func NewPlanListResponse(plans []*billing.Plan) []PlanResponse {
	sorted := make([]*billing.Plan, len(plans))
	copy(sorted, plans)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TierRank < sorted[j].TierRank })

	out := make([]PlanResponse, 0, len(sorted))
	for _, p := range sorted {
		out = append(out, NewPlanResponse(p))
	}
	return out
}

// HistoryEntryResponse is one audited enforcement or subscription change
//
//	@Description	Enforcement audit entry
type HistoryEntryResponse struct {
	ID               string   `json:"id"`
	EventType        string   `json:"event_type" example:"EnforcementStateChanged"`
	From             string   `json:"from,omitempty" example:"WARN"`
	To               string   `json:"to,omitempty" example:"GRACE"`
	Cause            string   `json:"cause,omitempty"`
	Change           string   `json:"change,omitempty" example:"plan"`
	Actor            string   `json:"actor,omitempty"`
	TriggeredMetrics []string `json:"triggered_metrics,omitempty"`
	OccurredAt       string   `json:"occurred_at"`
}

// NewHistoryListResponse converts audit entries, order preserved
func NewHistoryListResponse(entries []billing.HistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntryResponse{
			ID:               e.ID.String(),
			EventType:        e.EventType,
			From:             string(e.From),
			To:               string(e.To),
			Cause:            string(e.Cause),
			Change:           string(e.Change),
			Actor:            e.Actor,
			TriggeredMetrics: e.TriggeredMetrics,
			OccurredAt:       formatTime(e.OccurredAt),
		})
	}
	return out
}
