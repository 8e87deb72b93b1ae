package dto

import "github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"

// UsageSnapshotResponse is one dimension's consumption. Limit is null when unlimited.
type UsageSnapshotResponse struct {
	Dimension  string  `json:"dimension" example:"devices"`
	Used       int64   `json:"used" example:"8"`
	Limit      *int64  `json:"limit" example:"10"`
	Percentage float64 `json:"percentage" example:"80"`
}

// NewUsageSnapshotResponse converts a domain snapshot
func NewUsageSnapshotResponse(s billing.UsageSnapshot) UsageSnapshotResponse {
	return UsageSnapshotResponse{
		Dimension:  s.Dimension.String(),
		Used:       s.Used,
		Limit:      s.Limit.Int64Ptr(),
		Percentage: s.Percentage,
	}
}

// QuotaDecisionResponse is the Quota Gate outcome shown to clients
type QuotaDecisionResponse struct {
	Throttled bool                  `json:"throttled"`
	Usage     UsageSnapshotResponse `json:"usage"`
	Increment int64                 `json:"increment"`
	// RetryAfter is in seconds; null means only a plan change lifts the throttle
	RetryAfter *int64 `json:"retry_after"`
	Message    string `json:"message,omitempty"`
}

// NewQuotaDecisionResponse converts a domain decision
func NewQuotaDecisionResponse(d *billing.QuotaDecision) QuotaDecisionResponse {
	return QuotaDecisionResponse{
		Throttled:  d.Throttled,
		Usage:      NewUsageSnapshotResponse(d.Usage),
		Increment:  d.Increment,
		RetryAfter: d.RetryAfterSeconds(),
		Message:    d.Message,
	}
}

// QuotaExceededResponse is the 429 body: the error envelope plus the decision
type QuotaExceededResponse struct {
	Success bool                  `json:"success" example:"false"`
	Error   *ErrorInfo            `json:"error"`
	Data    QuotaDecisionResponse `json:"data"`
}

// NewQuotaExceededResponse builds the 429 body for a throttled decision
func NewQuotaExceededResponse(d *billing.QuotaDecision, requestID string) QuotaExceededResponse {
	return QuotaExceededResponse{
		Success: false,
		Error: &ErrorInfo{
			Code:      ErrCodeQuotaExceeded,
			Message:   d.Message,
			RequestID: requestID,
		},
		Data: NewQuotaDecisionResponse(d),
	}
}
