package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// PlanModel is the persistence model for a catalog plan
type PlanModel struct {
	BaseModel
	Name          string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	DisplayName   string          `gorm:"type:varchar(100)"`
	TierRank      int             `gorm:"not null;default:0"`
	LimitsJSON    string          `gorm:"column:limits;type:text;not null"`
	Price         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Currency      string          `gorm:"type:varchar(3)"`
	Interval      string          `gorm:"column:billing_interval;type:varchar(10)"`
	FeaturesJSON  string          `gorm:"column:features;type:text"`
	RetentionDays int             `gorm:"not null;default:30"`
	IsActive      bool            `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (PlanModel) TableName() string {
	return "plans"
}

// ToDomain converts the persistence model to a domain Plan.
// Limits are stored keyed by dimension with null meaning unlimited.
func (m *PlanModel) ToDomain() (*billing.Plan, error) {
	raw := map[string]*int64{}
	if m.LimitsJSON != "" {
		if err := json.Unmarshal([]byte(m.LimitsJSON), &raw); err != nil {
			return nil, fmt.Errorf("decode limits of plan %s: %w", m.Name, err)
		}
	}
	limits := make(map[billing.Dimension]billing.Limit, len(raw))
	for k, v := range raw {
		d := billing.Dimension(k)
		if !d.IsValid() {
			continue
		}
		if v == nil {
			limits[d] = billing.Unlimited
		} else {
			limits[d] = billing.Limit(*v)
		}
	}

	var features billing.PlanFeatures
	if m.FeaturesJSON != "" {
		if err := json.Unmarshal([]byte(m.FeaturesJSON), &features); err != nil {
			return nil, fmt.Errorf("decode features of plan %s: %w", m.Name, err)
		}
	}

	return &billing.Plan{
		ID:            m.ID,
		Name:          m.Name,
		DisplayName:   m.DisplayName,
		TierRank:      m.TierRank,
		Limits:        limits,
		Price:         m.Price,
		Currency:      m.Currency,
		Interval:      billing.BillingInterval(m.Interval),
		Features:      features,
		RetentionDays: m.RetentionDays,
		IsActive:      m.IsActive,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

// PlanModelFromDomain creates a persistence model from a domain Plan
func PlanModelFromDomain(p *billing.Plan) (*PlanModel, error) {
	raw := make(map[string]*int64, len(p.Limits))
	for d, l := range p.Limits {
		raw[string(d)] = l.Int64Ptr()
	}
	limits, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	features, err := json.Marshal(p.Features)
	if err != nil {
		return nil, err
	}
	return &PlanModel{
		BaseModel: BaseModel{
			ID:        p.ID,
			CreatedAt: p.CreatedAt.UTC(),
			UpdatedAt: p.UpdatedAt.UTC(),
		},
		Name:          p.Name,
		DisplayName:   p.DisplayName,
		TierRank:      p.TierRank,
		LimitsJSON:    string(limits),
		Price:         p.Price,
		Currency:      p.Currency,
		Interval:      string(p.Interval),
		FeaturesJSON:  string(features),
		RetentionDays: p.RetentionDays,
		IsActive:      p.IsActive,
	}, nil
}

// SubscriptionModel is the persistence model for a tenant subscription
type SubscriptionModel struct {
	BaseModel
	TenantID           uuid.UUID `gorm:"type:char(36);not null;uniqueIndex"`
	PlanID             uuid.UUID `gorm:"type:char(36);not null;index"`
	Status             string    `gorm:"type:varchar(20);not null;index"`
	Enabled            bool      `gorm:"not null"`
	OverridesJSON      string    `gorm:"column:overrides;type:text"`
	CurrentPeriodStart time.Time `gorm:"not null"`
	CurrentPeriodEnd   time.Time `gorm:"not null"`
	TrialStartDate     time.Time `gorm:"not null"`
	TrialEndDate       time.Time `gorm:"not null"`
	DisabledBy         string    `gorm:"type:varchar(100)"`
	DisabledAt         *time.Time
	DisabledReason     string `gorm:"type:text"`
	EnabledBy          string `gorm:"type:varchar(100)"`
	EnabledAt          *time.Time
}

// TableName returns the table name for GORM
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToDomain converts the persistence model to a domain Subscription
func (m *SubscriptionModel) ToDomain() (*billing.Subscription, error) {
	raw := map[string]*int64{}
	if m.OverridesJSON != "" {
		if err := json.Unmarshal([]byte(m.OverridesJSON), &raw); err != nil {
			return nil, fmt.Errorf("decode overrides of subscription %s: %w", m.ID, err)
		}
	}
	overrides := make(map[billing.Dimension]*int64, len(raw))
	for k, v := range raw {
		if d := billing.Dimension(k); d.IsValid() && v != nil {
			overrides[d] = v
		}
	}

	return &billing.Subscription{
		ID:                 m.ID,
		TenantID:           m.TenantID,
		PlanID:             m.PlanID,
		Status:             billing.SubscriptionStatus(m.Status),
		Enabled:            m.Enabled,
		Overrides:          overrides,
		CurrentPeriodStart: m.CurrentPeriodStart,
		CurrentPeriodEnd:   m.CurrentPeriodEnd,
		TrialStartDate:     m.TrialStartDate,
		TrialEndDate:       m.TrialEndDate,
		DisabledBy:         m.DisabledBy,
		DisabledAt:         m.DisabledAt,
		DisabledReason:     m.DisabledReason,
		EnabledBy:          m.EnabledBy,
		EnabledAt:          m.EnabledAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}, nil
}

// SubscriptionModelFromDomain creates a persistence model from a domain Subscription
func SubscriptionModelFromDomain(s *billing.Subscription) (*SubscriptionModel, error) {
	raw := make(map[string]int64, len(s.Overrides))
	for d, v := range s.Overrides {
		if v != nil {
			raw[string(d)] = *v
		}
	}
	overrides, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return &SubscriptionModel{
		BaseModel: BaseModel{
			ID:        s.ID,
			CreatedAt: s.CreatedAt.UTC(),
			UpdatedAt: s.UpdatedAt.UTC(),
		},
		TenantID:           s.TenantID,
		PlanID:             s.PlanID,
		Status:             string(s.Status),
		Enabled:            s.Enabled,
		OverridesJSON:      string(overrides),
		CurrentPeriodStart: s.CurrentPeriodStart.UTC(),
		CurrentPeriodEnd:   s.CurrentPeriodEnd.UTC(),
		TrialStartDate:     s.TrialStartDate.UTC(),
		TrialEndDate:       s.TrialEndDate.UTC(),
		DisabledBy:         s.DisabledBy,
		DisabledAt:         utcPtr(s.DisabledAt),
		DisabledReason:     s.DisabledReason,
		EnabledBy:          s.EnabledBy,
		EnabledAt:          utcPtr(s.EnabledAt),
	}, nil
}

// EnforcementStateModel is the flattened enforcement record. GraceEndsAt is
// set only when State is GRACE and Cause only when State is DEGRADED.
type EnforcementStateModel struct {
	TenantID             uuid.UUID `gorm:"type:char(36);primaryKey"`
	SubscriptionID       uuid.UUID `gorm:"type:char(36);not null;index"`
	State                string    `gorm:"type:varchar(16);not null;index"`
	Cause                string    `gorm:"type:varchar(32)"`
	GraceEndsAt          *time.Time
	WarnEnteredAt        *time.Time
	GraceEnteredAt       *time.Time
	DegradedEnteredAt    *time.Time
	TriggeredMetricsJSON string    `gorm:"column:triggered_metrics;type:text;not null"`
	PolicyJSON           string    `gorm:"column:policy;type:text;not null"`
	LastEvaluatedAt      time.Time `gorm:"not null"`
	NextEvaluationAt     time.Time `gorm:"not null;index"`
	UpdatedAt            time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (EnforcementStateModel) TableName() string {
	return "enforcement_states"
}

// ToDomain rebuilds the tagged phase from the flattened columns
func (m *EnforcementStateModel) ToDomain() (*billing.EnforcementState, error) {
	var phase billing.Phase
	switch billing.State(m.State) {
	case billing.StateActive:
		phase = billing.ActivePhase{}
	case billing.StateWarn:
		phase = billing.WarnPhase{}
	case billing.StateGrace:
		if m.GraceEndsAt == nil {
			return nil, fmt.Errorf("enforcement state of tenant %s is GRACE without a deadline", m.TenantID)
		}
		phase = billing.GracePhase{EndsAt: *m.GraceEndsAt}
	case billing.StateDegraded:
		phase = billing.DegradedPhase{Cause: billing.Cause(m.Cause)}
	default:
		return nil, fmt.Errorf("enforcement state of tenant %s has unknown state %q", m.TenantID, m.State)
	}

	metrics := []billing.TriggeredMetric{}
	if m.TriggeredMetricsJSON != "" {
		if err := json.Unmarshal([]byte(m.TriggeredMetricsJSON), &metrics); err != nil {
			return nil, fmt.Errorf("decode triggered metrics of tenant %s: %w", m.TenantID, err)
		}
	}
	var policy billing.EffectivePolicy
	if err := json.Unmarshal([]byte(m.PolicyJSON), &policy); err != nil {
		return nil, fmt.Errorf("decode policy of tenant %s: %w", m.TenantID, err)
	}

	return &billing.EnforcementState{
		TenantID:          m.TenantID,
		SubscriptionID:    m.SubscriptionID,
		Phase:             phase,
		WarnEnteredAt:     m.WarnEnteredAt,
		GraceEnteredAt:    m.GraceEnteredAt,
		DegradedEnteredAt: m.DegradedEnteredAt,
		TriggeredMetrics:  metrics,
		Policy:            policy,
		LastEvaluatedAt:   m.LastEvaluatedAt,
		NextEvaluationAt:  m.NextEvaluationAt,
		UpdatedAt:         m.UpdatedAt,
	}, nil
}

// EnforcementStateModelFromDomain flattens a domain record into columns
func EnforcementStateModelFromDomain(e *billing.EnforcementState) (*EnforcementStateModel, error) {
	metrics := e.TriggeredMetrics
	if metrics == nil {
		metrics = []billing.TriggeredMetric{}
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return nil, err
	}
	policyJSON, err := json.Marshal(e.Policy)
	if err != nil {
		return nil, err
	}
	return &EnforcementStateModel{
		TenantID:             e.TenantID,
		SubscriptionID:       e.SubscriptionID,
		State:                string(e.State()),
		Cause:                string(e.Cause()),
		GraceEndsAt:          utcPtr(e.GraceEndsAt()),
		WarnEnteredAt:        utcPtr(e.WarnEnteredAt),
		GraceEnteredAt:       utcPtr(e.GraceEnteredAt),
		DegradedEnteredAt:    utcPtr(e.DegradedEnteredAt),
		TriggeredMetricsJSON: string(metricsJSON),
		PolicyJSON:           string(policyJSON),
		LastEvaluatedAt:      e.LastEvaluatedAt.UTC(),
		NextEvaluationAt:     e.NextEvaluationAt.UTC(),
		UpdatedAt:            e.UpdatedAt.UTC(),
	}, nil
}

// ProjectModel is the tenant-owned project an SDK authenticates against
type ProjectModel struct {
	BaseModel
	TenantID  uuid.UUID  `gorm:"type:char(36);not null;index"`
	Name      string     `gorm:"type:varchar(100);not null"`
	APIKey    string     `gorm:"column:api_key;type:varchar(64);not null;uniqueIndex"`
	DeletedAt *time.Time `gorm:"index"`
}

// TableName returns the table name for GORM
func (ProjectModel) TableName() string {
	return "projects"
}
