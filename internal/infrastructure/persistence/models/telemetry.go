package models

import (
	"time"

	"github.com/google/uuid"
)

// The ingestion service owns these tables. The engine only counts rows, so
// each projection carries just the columns the usage counter filters on.

// EventRow is a period-scoped telemetry row
type EventRow struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey"`
	ProjectID uuid.UUID `gorm:"type:char(36);not null;index:,composite:project_created"`
	CreatedAt time.Time `gorm:"not null;index:,composite:project_created"`
}

// ResourceRow is a cumulative, soft-deletable row
type ResourceRow struct {
	ID        uuid.UUID  `gorm:"type:char(36);primaryKey"`
	ProjectID uuid.UUID  `gorm:"type:char(36);not null;index"`
	CreatedAt time.Time  `gorm:"not null"`
	DeletedAt *time.Time `gorm:"index"`
}

// DeviceModel is a registered SDK device
type DeviceModel struct{ ResourceRow }

func (DeviceModel) TableName() string { return "devices" }

// SessionModel is an app session
type SessionModel struct{ EventRow }

func (SessionModel) TableName() string { return "sessions" }

// LogModel is a log line
type LogModel struct{ EventRow }

func (LogModel) TableName() string { return "logs" }

// CrashModel is a crash report
type CrashModel struct{ EventRow }

func (CrashModel) TableName() string { return "crashes" }

// APITraceModel is a captured network request
type APITraceModel struct {
	EventRow
	URL string `gorm:"type:varchar(2048);not null"`
}

func (APITraceModel) TableName() string { return "api_traces" }

// MockEndpointModel is a configured mock endpoint
type MockEndpointModel struct{ ResourceRow }

func (MockEndpointModel) TableName() string { return "mock_endpoints" }

// BusinessConfigModel is a remote config key
type BusinessConfigModel struct{ ResourceRow }

func (BusinessConfigModel) TableName() string { return "business_configs" }

// LocalizationKeyModel is a translatable key
type LocalizationKeyModel struct{ ResourceRow }

func (LocalizationKeyModel) TableName() string { return "localization_keys" }

// LocalizationLanguageModel is an enabled language
type LocalizationLanguageModel struct{ ResourceRow }

func (LocalizationLanguageModel) TableName() string { return "localization_languages" }

// TeamMemberModel is a project collaborator
type TeamMemberModel struct{ ResourceRow }

func (TeamMemberModel) TableName() string { return "team_members" }

// All returns every model the engine reads or writes, for AutoMigrate
func All() []any {
	return []any{
		&PlanModel{},
		&SubscriptionModel{},
		&EnforcementStateModel{},
		&EnforcementHistoryModel{},
		&ProjectModel{},
		&DeviceModel{},
		&SessionModel{},
		&LogModel{},
		&CrashModel{},
		&APITraceModel{},
		&MockEndpointModel{},
		&BusinessConfigModel{},
		&LocalizationKeyModel{},
		&LocalizationLanguageModel{},
		&TeamMemberModel{},
	}
}
