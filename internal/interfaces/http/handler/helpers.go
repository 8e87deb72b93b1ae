package handler

import (
	"time"

	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// formatTime renders t as RFC3339 in UTC
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// formatTimePtr renders t as RFC3339, nil stays nil
func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// formatPrice renders a plan price with two decimals
func formatPrice(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// limitsMap flattens per-dimension limits for JSON, null meaning unlimited
func limitsMap(limits map[billing.Dimension]billing.Limit) map[string]*int64 {
	out := make(map[string]*int64, len(limits))
	for d, l := range limits {
		out[d.String()] = l.Int64Ptr()
	}
	return out
}
