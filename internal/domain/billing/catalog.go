package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Default plan names
const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanTeam       = "team"
	PlanEnterprise = "enterprise"
)

// Default plan IDs match the rows seeded by the SQL migrations
var (
	FreePlanID       = uuid.MustParse("0b7f4c1e-5d2a-4f3b-9a61-1f0e2d3c4b01")
	ProPlanID        = uuid.MustParse("0b7f4c1e-5d2a-4f3b-9a61-1f0e2d3c4b02")
	TeamPlanID       = uuid.MustParse("0b7f4c1e-5d2a-4f3b-9a61-1f0e2d3c4b03")
	EnterprisePlanID = uuid.MustParse("0b7f4c1e-5d2a-4f3b-9a61-1f0e2d3c4b04")
)

var allFeatures = PlanFeatures{
	AllowAPITracking:     true,
	AllowScreenTracking:  true,
	AllowCrashReporting:  true,
	AllowLogging:         true,
	AllowBusinessConfig:  true,
	AllowLocalization:    true,
	AllowCustomDomains:   true,
	AllowWebhooks:        true,
	AllowTeamMembers:     true,
	AllowPrioritySupport: true,
}

// DefaultCatalog returns the built-in plans. Dimensions a plan leaves out are unlimited.
// Enterprise is sold by contract and is not listed as active.
func DefaultCatalog(now time.Time) []*Plan {
	trialFeatures := allFeatures
	trialFeatures.AllowCustomDomains = false
	trialFeatures.AllowWebhooks = false
	trialFeatures.AllowTeamMembers = false
	trialFeatures.AllowPrioritySupport = false

	proFeatures := allFeatures
	proFeatures.AllowTeamMembers = false
	proFeatures.AllowPrioritySupport = false

	plan := func(id uuid.UUID, name, display string, rank int, price string, retention int, active bool, features PlanFeatures, limits map[Dimension]Limit) *Plan {
		if limits == nil {
			limits = map[Dimension]Limit{}
		}
		return &Plan{
			ID:            id,
			Name:          name,
			DisplayName:   display,
			TierRank:      rank,
			Limits:        limits,
			Price:         decimal.RequireFromString(price),
			Currency:      "USD",
			Interval:      BillingIntervalMonthly,
			Features:      features,
			RetentionDays: retention,
			IsActive:      active,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	return []*Plan{
		plan(FreePlanID, PlanFree, "Free Trial", 0, "0", 30, true, trialFeatures, map[Dimension]Limit{
			DimensionDevices:               100,
			DimensionMockEndpoints:         10,
			DimensionAPIEndpoints:          20,
			DimensionAPIRequests:           1000,
			DimensionLogs:                  10000,
			DimensionSessions:              1000,
			DimensionCrashes:               100,
			DimensionBusinessConfigKeys:    50,
			DimensionLocalizationLanguages: 5,
			DimensionLocalizationKeys:      200,
		}),
		plan(ProPlanID, PlanPro, "Pro", 1, "29.99", 90, true, proFeatures, map[Dimension]Limit{
			DimensionDevices:               1000,
			DimensionMockEndpoints:         100,
			DimensionAPIEndpoints:          200,
			DimensionAPIRequests:           100000,
			DimensionLogs:                  500000,
			DimensionSessions:              50000,
			DimensionCrashes:               10000,
			DimensionBusinessConfigKeys:    500,
			DimensionLocalizationLanguages: 50,
			DimensionLocalizationKeys:      2000,
		}),
		plan(TeamPlanID, PlanTeam, "Team", 2, "99.99", 365, true, allFeatures, nil),
		plan(EnterprisePlanID, PlanEnterprise, "Enterprise", 3, "299.99", 365, false, allFeatures, nil),
	}
}
