package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"gorm.io/gorm"
)

// countSource describes where the rows of a dimension live
type countSource struct {
	table       string
	distinct    string // column counted distinctly, empty counts rows
	tenantOwned bool   // table has tenant_id; otherwise rows hang off projects
	softDelete  bool   // skip rows with deleted_at set
}

var countSources = map[billing.Dimension]countSource{
	billing.DimensionDevices:               {table: "devices", softDelete: true},
	billing.DimensionSessions:              {table: "sessions"},
	billing.DimensionLogs:                  {table: "logs"},
	billing.DimensionCrashes:               {table: "crashes"},
	billing.DimensionAPIRequests:           {table: "api_traces"},
	billing.DimensionAPIEndpoints:          {table: "api_traces", distinct: "url"},
	billing.DimensionProjects:              {table: "projects", tenantOwned: true, softDelete: true},
	billing.DimensionMockEndpoints:         {table: "mock_endpoints", softDelete: true},
	billing.DimensionBusinessConfigKeys:    {table: "business_configs", softDelete: true},
	billing.DimensionLocalizationKeys:      {table: "localization_keys", softDelete: true},
	billing.DimensionLocalizationLanguages: {table: "localization_languages", softDelete: true},
	billing.DimensionTeamMembers:           {table: "team_members", softDelete: true},
}

// GormUsageCounter counts tenant rows straight from the telemetry tables
type GormUsageCounter struct {
	db *gorm.DB
}

// NewGormUsageCounter creates a new GormUsageCounter
func NewGormUsageCounter(db *gorm.DB) *GormUsageCounter {
	return &GormUsageCounter{db: db}
}

// Count returns the number of rows a tenant holds for a dimension. Rows of
// soft-deleted projects still count toward event dimensions.
func (c *GormUsageCounter) Count(ctx context.Context, tenantID uuid.UUID, d billing.Dimension, window *billing.Period) (int64, error) {
	src, ok := countSources[d]
	if !ok {
		return 0, shared.Wrap(shared.ErrInvalidDimension, fmt.Errorf("unknown dimension %q", d))
	}

	query := c.db.WithContext(ctx).Table(src.table)
	if src.tenantOwned {
		query = query.Where("tenant_id = ?", tenantID)
	} else {
		projects := c.db.Table("projects").Select("id").Where("tenant_id = ?", tenantID)
		query = query.Where("project_id IN (?)", projects)
	}
	if src.softDelete {
		query = query.Where("deleted_at IS NULL")
	}
	if window != nil {
		query = query.
			Where("created_at >= ?", window.Start.UTC()).
			Where("created_at < ?", window.End.UTC())
	}
	if src.distinct != "" {
		query = query.Distinct(src.distinct)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, shared.Wrap(shared.ErrPersistence, fmt.Errorf("count %s: %w", d, err))
	}
	return count, nil
}

// Ensure GormUsageCounter implements the interface
var _ billing.UsageCounter = (*GormUsageCounter)(nil)
