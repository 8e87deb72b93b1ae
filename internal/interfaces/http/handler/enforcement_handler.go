package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appbilling "github.com/iplixera/nivostack-monorepo-sub006/internal/application/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/logger"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/middleware"
)

// EnforcementReader serves enforcement reads
type EnforcementReader interface {
	GetStatus(ctx context.Context, tenantID uuid.UUID) (*billing.EnforcementState, error)
	GetSDKPolicy(ctx context.Context, tenantID uuid.UUID) appbilling.PolicyRead
}

// HistoryLister lists the enforcement audit trail
type HistoryLister interface {
	List(ctx context.Context, tenantID uuid.UUID, limit int) ([]billing.HistoryEntry, error)
}

// EnforcementHandler serves the dashboard status and the SDK policy
type EnforcementHandler struct {
	BaseHandler
	enforcement EnforcementReader
	history     HistoryLister
	policyCfg   billing.PolicyConfig
	now         func() time.Time
}

// NewEnforcementHandler creates a new EnforcementHandler. policyCfg shapes
// the fail-open policy served when the API key could not be resolved.
func NewEnforcementHandler(enforcement EnforcementReader, history HistoryLister, policyCfg billing.PolicyConfig) *EnforcementHandler {
	return &EnforcementHandler{
		enforcement: enforcement,
		history:     history,
		policyCfg:   policyCfg,
		now:         time.Now,
	}
}

// GetSDKPolicy godoc
//
//	@ID				getSDKPolicy
//	@Summary		Get the effective ingestion policy
//	@Description	Returns the enforcement state and effective policy for the project's tenant. Never fails: storage trouble yields the last known record or the unrestricted ACTIVE default.
//	@Tags			sdk
//	@Produce		json
//	@Success		200	{object}	APIResponse[SDKPolicyResponse]
//	@Failure		401	{object}	dto.ErrorResponse
//	@Failure		429	{object}	dto.ErrorResponse
//	@Security		ApiKeyAuth
//	@Router			/sdk/policy [get]
func (h *EnforcementHandler) GetSDKPolicy(c *gin.Context) {
	var read appbilling.PolicyRead
	if tenantID, ok := middleware.GetTenantID(c); ok {
		read = h.enforcement.GetSDKPolicy(c.Request.Context(), tenantID)
	} else {
		// API key lookup failed open upstream
		read = appbilling.PolicyRead{
			State:  billing.NewActiveState(uuid.Nil, h.now(), h.policyCfg),
			Source: appbilling.PolicySourceFailOpen,
		}
	}

	c.Set(logger.GinPolicySourceKey, string(read.Source))
	h.Success(c, NewSDKPolicyResponse(read))
}

// GetStatus godoc
//
//	@ID				getEnforcementStatus
//	@Summary		Get enforcement status
//	@Description	Returns the tenant's enforcement state, recomputing it first when the stored record is due
//	@Tags			enforcement
//	@Produce		json
//	@Success		200	{object}	APIResponse[EnforcementStatusResponse]
//	@Failure		401	{object}	dto.ErrorResponse
//	@Failure		404	{object}	dto.ErrorResponse
//	@Failure		500	{object}	dto.ErrorResponse
//	@Security		BearerAuth
//	@Router			/subscription/enforcement [get]
func (h *EnforcementHandler) GetStatus(c *gin.Context) {
	tenantID, ok := h.tenantFromContext(c)
	if !ok {
		return
	}

	state, err := h.enforcement.GetStatus(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, NewEnforcementStatusResponse(state))
}

// ListHistory godoc
//
//	@ID				listEnforcementHistory
//	@Summary		List enforcement history
//	@Description	Returns the tenant's state transitions and subscription changes, newest first
//	@Tags			enforcement
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum entries (default 50, max 500)"	default(50)
//	@Success		200		{object}	APIResponse[[]HistoryEntryResponse]
//	@Failure		400		{object}	dto.ErrorResponse
//	@Failure		401		{object}	dto.ErrorResponse
//	@Failure		500		{object}	dto.ErrorResponse
//	@Security		BearerAuth
//	@Router			/subscription/enforcement/history [get]
func (h *EnforcementHandler) ListHistory(c *gin.Context) {
	tenantID, ok := h.tenantFromContext(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.history.List(c.Request.Context(), tenantID, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithList(c, NewHistoryListResponse(entries), len(entries), effectiveHistoryLimit(limit))
}

func effectiveHistoryLimit(limit int) int {
	switch {
	case limit <= 0:
		return appbilling.DefaultHistoryLimit
	case limit > appbilling.MaxHistoryLimit:
		return appbilling.MaxHistoryLimit
	}
	return limit
}
