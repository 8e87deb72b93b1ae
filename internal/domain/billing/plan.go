package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Unlimited is the limit value meaning no cap is enforced
const Unlimited Limit = -1

// Limit is a per-dimension cap. Negative values mean unlimited.
type Limit int64

// IsUnlimited returns true if the limit does not cap usage
func (l Limit) IsUnlimited() bool {
	return l < 0
}

// Allows returns true if consuming increment more units stays within the limit.
// used and the limit are never negative, so the headroom cannot overflow.
func (l Limit) Allows(used, increment int64) bool {
	if l.IsUnlimited() {
		return true
	}
	return increment <= int64(l)-used
}

// Int64Ptr returns nil for unlimited and the value otherwise
func (l Limit) Int64Ptr() *int64 {
	if l.IsUnlimited() {
		return nil
	}
	v := int64(l)
	return &v
}

// BillingInterval is how often a plan is charged
type BillingInterval string

const (
	BillingIntervalMonthly BillingInterval = "month"
	BillingIntervalYearly  BillingInterval = "year"
)

// Next returns the end of a billing period that starts at t
func (i BillingInterval) Next(t time.Time) time.Time {
	if i == BillingIntervalYearly {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

// Feature is a capability a plan may switch on or off
type Feature string

const (
	FeatureAPITracking     Feature = "apiTracking"
	FeatureScreenTracking  Feature = "screenTracking"
	FeatureDeviceTracking  Feature = "deviceTracking"
	FeatureSessionTracking Feature = "sessionTracking"
	FeatureCrashReporting  Feature = "crashReporting"
	FeatureLogging         Feature = "logging"
	FeatureBusinessConfig  Feature = "businessConfig"
	FeatureLocalization    Feature = "localization"
	FeatureCustomDomains   Feature = "customDomains"
	FeatureWebhooks        Feature = "webhooks"
	FeatureTeamMembers     Feature = "teamMembers"
	FeaturePrioritySupport Feature = "prioritySupport"
)

// PlanFeatures holds the capability switches of a plan
type PlanFeatures struct {
	AllowAPITracking     bool `json:"allow_api_tracking"`
	AllowScreenTracking  bool `json:"allow_screen_tracking"`
	AllowCrashReporting  bool `json:"allow_crash_reporting"`
	AllowLogging         bool `json:"allow_logging"`
	AllowBusinessConfig  bool `json:"allow_business_config"`
	AllowLocalization    bool `json:"allow_localization"`
	AllowCustomDomains   bool `json:"allow_custom_domains"`
	AllowWebhooks        bool `json:"allow_webhooks"`
	AllowTeamMembers     bool `json:"allow_team_members"`
	AllowPrioritySupport bool `json:"allow_priority_support"`
}

// Allows reports whether the feature is switched on. Device and session
// tracking ride on the screen tracking switch.
func (f PlanFeatures) Allows(feature Feature) bool {
	switch feature {
	case FeatureAPITracking:
		return f.AllowAPITracking
	case FeatureScreenTracking, FeatureDeviceTracking, FeatureSessionTracking:
		return f.AllowScreenTracking
	case FeatureCrashReporting:
		return f.AllowCrashReporting
	case FeatureLogging:
		return f.AllowLogging
	case FeatureBusinessConfig:
		return f.AllowBusinessConfig
	case FeatureLocalization:
		return f.AllowLocalization
	case FeatureCustomDomains:
		return f.AllowCustomDomains
	case FeatureWebhooks:
		return f.AllowWebhooks
	case FeatureTeamMembers:
		return f.AllowTeamMembers
	case FeaturePrioritySupport:
		return f.AllowPrioritySupport
	}
	return false
}

// Plan is a catalog tier with per-dimension limits. Plans are read-only while
// the engine evaluates usage.
type Plan struct {
	ID            uuid.UUID
	Name          string
	DisplayName   string
	TierRank      int
	Limits        map[Dimension]Limit
	Price         decimal.Decimal
	Currency      string
	Interval      BillingInterval
	Features      PlanFeatures
	RetentionDays int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Limit returns the plan's cap for a dimension, unlimited when the plan does not set one
func (p *Plan) Limit(d Dimension) Limit {
	if p == nil || p.Limits == nil {
		return Unlimited
	}
	l, ok := p.Limits[d]
	if !ok {
		return Unlimited
	}
	return l
}

// TrialDays returns the trial length granted at signup
func (p *Plan) TrialDays() int {
	if p.RetentionDays > 0 {
		return p.RetentionDays
	}
	return 30
}

// PlanRepository reads the plan catalog
type PlanRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Plan, error)
	FindByName(ctx context.Context, name string) (*Plan, error)
	FindAll(ctx context.Context, activeOnly bool) ([]*Plan, error)
}
