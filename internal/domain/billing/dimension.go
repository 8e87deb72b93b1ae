package billing

import (
	"fmt"
	"strings"

	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
)

// Dimension is one metered resource type
type Dimension string

const (
	// DimensionDevices tracks registered devices
	DimensionDevices Dimension = "devices"

	// DimensionSessions tracks app sessions started in the billing period
	DimensionSessions Dimension = "sessions"

	// DimensionLogs tracks log entries ingested in the billing period
	DimensionLogs Dimension = "logs"

	// DimensionCrashes tracks crash reports ingested in the billing period
	DimensionCrashes Dimension = "crashes"

	// DimensionAPIRequests tracks captured API traces in the billing period
	DimensionAPIRequests Dimension = "api_requests"

	// DimensionAPIEndpoints tracks distinct traced endpoint URLs in the billing period
	DimensionAPIEndpoints Dimension = "api_endpoints"

	// DimensionProjects tracks projects owned by the tenant
	DimensionProjects Dimension = "projects"

	// DimensionMockEndpoints tracks configured mock API endpoints
	DimensionMockEndpoints Dimension = "mock_endpoints"

	// DimensionBusinessConfigKeys tracks remote configuration keys
	DimensionBusinessConfigKeys Dimension = "business_config_keys"

	// DimensionLocalizationKeys tracks translatable string keys
	DimensionLocalizationKeys Dimension = "localization_keys"

	// DimensionLocalizationLanguages tracks enabled languages
	DimensionLocalizationLanguages Dimension = "localization_languages"

	// DimensionTeamMembers tracks dashboard seats
	DimensionTeamMembers Dimension = "team_members"
)

// Scope tells the usage meter which rows count toward a dimension
type Scope string

const (
	// ScopePeriod counts only rows created inside the current billing period
	ScopePeriod Scope = "period"
	// ScopeCumulative counts every live row regardless of when it was created
	ScopeCumulative Scope = "cumulative"
)

// String returns the string representation of Dimension
func (d Dimension) String() string {
	return string(d)
}

// IsValid returns true if the dimension is tracked by the meter
func (d Dimension) IsValid() bool {
	switch d {
	case DimensionDevices,
		DimensionSessions,
		DimensionLogs,
		DimensionCrashes,
		DimensionAPIRequests,
		DimensionAPIEndpoints,
		DimensionProjects,
		DimensionMockEndpoints,
		DimensionBusinessConfigKeys,
		DimensionLocalizationKeys,
		DimensionLocalizationLanguages,
		DimensionTeamMembers:
		return true
	}
	return false
}

// Scope returns whether the dimension resets with the billing period
func (d Dimension) Scope() Scope {
	switch d {
	case DimensionSessions, DimensionLogs, DimensionCrashes,
		DimensionAPIRequests, DimensionAPIEndpoints:
		return ScopePeriod
	default:
		return ScopeCumulative
	}
}

// IsPeriodScoped returns true if usage resets at the end of each billing period
func (d Dimension) IsPeriodScoped() bool {
	return d.Scope() == ScopePeriod
}

// DisplayName returns a human-readable label used in quota messages
func (d Dimension) DisplayName() string {
	switch d {
	case DimensionAPIRequests:
		return "API requests"
	case DimensionAPIEndpoints:
		return "API endpoints"
	case DimensionBusinessConfigKeys:
		return "business config keys"
	default:
		return strings.ReplaceAll(string(d), "_", " ")
	}
}

// AllDimensions returns every tracked dimension in a stable order
func AllDimensions() []Dimension {
	return []Dimension{
		DimensionDevices,
		DimensionSessions,
		DimensionLogs,
		DimensionCrashes,
		DimensionAPIRequests,
		DimensionAPIEndpoints,
		DimensionProjects,
		DimensionMockEndpoints,
		DimensionBusinessConfigKeys,
		DimensionLocalizationKeys,
		DimensionLocalizationLanguages,
		DimensionTeamMembers,
	}
}

// ParseDimension converts a string key to a Dimension.
// camelCase keys used by the SDKs ("apiRequests") are accepted as well.
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(toSnake(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", shared.Wrap(shared.ErrInvalidDimension, fmt.Errorf("unknown dimension %q", s))
	}
	return d, nil
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
