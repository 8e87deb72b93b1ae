package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
)

// EnforcementHistoryModel is one audited enforcement transition or subscription change
type EnforcementHistoryModel struct {
	ID                   uuid.UUID `gorm:"type:char(36);primaryKey"`
	TenantID             uuid.UUID `gorm:"type:char(36);not null;index:idx_history_tenant_time,priority:1"`
	EventType            string    `gorm:"type:varchar(64);not null"`
	FromState            string    `gorm:"type:varchar(16)"`
	ToState              string    `gorm:"type:varchar(16)"`
	Cause                string    `gorm:"type:varchar(32)"`
	Change               string    `gorm:"type:varchar(16)"`
	Actor                string    `gorm:"type:varchar(255)"`
	TriggeredMetricsJSON string    `gorm:"column:triggered_metrics;type:text;not null"`
	OccurredAt           time.Time `gorm:"not null;index:idx_history_tenant_time,priority:2"`
}

// TableName returns the table name for GORM
func (EnforcementHistoryModel) TableName() string {
	return "enforcement_history"
}

// ToDomain converts the row into a history entry
func (m *EnforcementHistoryModel) ToDomain() (billing.HistoryEntry, error) {
	metrics := []string{}
	if m.TriggeredMetricsJSON != "" {
		if err := json.Unmarshal([]byte(m.TriggeredMetricsJSON), &metrics); err != nil {
			return billing.HistoryEntry{}, fmt.Errorf("decode triggered metrics of history entry %s: %w", m.ID, err)
		}
	}
	return billing.HistoryEntry{
		ID:               m.ID,
		TenantID:         m.TenantID,
		EventType:        m.EventType,
		From:             billing.State(m.FromState),
		To:               billing.State(m.ToState),
		Cause:            billing.Cause(m.Cause),
		Change:           billing.SubscriptionChange(m.Change),
		Actor:            m.Actor,
		TriggeredMetrics: metrics,
		OccurredAt:       m.OccurredAt,
	}, nil
}

// EnforcementHistoryModelFromDomain flattens a history entry
func EnforcementHistoryModelFromDomain(e billing.HistoryEntry) (*EnforcementHistoryModel, error) {
	metrics := e.TriggeredMetrics
	if metrics == nil {
		metrics = []string{}
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return nil, err
	}
	return &EnforcementHistoryModel{
		ID:                   e.ID,
		TenantID:             e.TenantID,
		EventType:            e.EventType,
		FromState:            string(e.From),
		ToState:              string(e.To),
		Cause:                string(e.Cause),
		Change:               string(e.Change),
		Actor:                e.Actor,
		TriggeredMetricsJSON: string(metricsJSON),
		OccurredAt:           e.OccurredAt.UTC(),
	}, nil
}
