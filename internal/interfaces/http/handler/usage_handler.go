package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appbilling "github.com/iplixera/nivostack-monorepo-sub006/internal/application/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/dto"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/middleware"
)

// UsageReporter builds the full meter read for a tenant
type UsageReporter interface {
	GetReport(ctx context.Context, tenantID uuid.UUID) (*billing.UsageReport, *billing.Subscription, error)
}

// QuotaChecker runs pre-flight quota checks
type QuotaChecker interface {
	Check(ctx context.Context, input appbilling.QuotaCheckInput) (*billing.QuotaDecision, error)
	CheckMany(ctx context.Context, inputs []appbilling.QuotaCheckInput) (*billing.QuotaDecision, error)
}

// UsageHandler handles usage and quota HTTP requests
type UsageHandler struct {
	BaseHandler
	meter UsageReporter
	quota QuotaChecker
}

// NewUsageHandler creates a new UsageHandler
func NewUsageHandler(meter UsageReporter, quota QuotaChecker) *UsageHandler {
	return &UsageHandler{meter: meter, quota: quota}
}

// GetUsage godoc
//
//	@ID				getSubscriptionUsage
//	@Summary		Get current usage
//	@Description	Returns usage of every metered dimension against the effective limit, with trial and period information
//	@Tags			usage
//	@Produce		json
//	@Success		200	{object}	APIResponse[UsageReportResponse]
//	@Failure		401	{object}	dto.ErrorResponse
//	@Failure		404	{object}	dto.ErrorResponse
//	@Failure		500	{object}	dto.ErrorResponse
//	@Security		BearerAuth
//	@Router			/subscription/usage [get]
func (h *UsageHandler) GetUsage(c *gin.Context) {
	tenantID, ok := h.tenantFromContext(c)
	if !ok {
		return
	}

	report, _, err := h.meter.GetReport(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, NewUsageReportResponse(report))
}

// CheckQuota godoc
//
//	@ID				checkQuota
//	@Summary		Check quota for one dimension
//	@Description	Pre-flight check. A throttled result is returned as 429 with Retry-After for period-scoped dimensions.
//	@Tags			usage
//	@Accept			json
//	@Produce		json
//	@Param			request	body		QuotaCheckRequest	true	"Quota check"
//	@Success		200		{object}	APIResponse[dto.QuotaDecisionResponse]
//	@Failure		400		{object}	dto.ErrorResponse
//	@Failure		401		{object}	dto.ErrorResponse
//	@Failure		404		{object}	dto.ErrorResponse
//	@Failure		429		{object}	dto.QuotaExceededResponse
//	@Security		BearerAuth
//	@Router			/subscription/quota/check [post]
func (h *UsageHandler) CheckQuota(c *gin.Context) {
	tenantID, ok := h.tenantFromContext(c)
	if !ok {
		return
	}

	var req QuotaCheckRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, ok := h.toCheckInput(c, tenantID, req)
	if !ok {
		return
	}

	decision, err := h.quota.Check(c.Request.Context(), in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.writeDecision(c, decision)
}

// CheckQuotaMany godoc
//
//	@ID				checkQuotaMany
//	@Summary		Check quota for several dimensions
//	@Description	Checks each dimension in order and returns the first throttled decision, or the last allowed one
//	@Tags			usage
//	@Accept			json
//	@Produce		json
//	@Param			request	body		QuotaCheckManyRequest	true	"Quota checks"
//	@Success		200		{object}	APIResponse[dto.QuotaDecisionResponse]
//	@Failure		400		{object}	dto.ErrorResponse
//	@Failure		401		{object}	dto.ErrorResponse
//	@Failure		429		{object}	dto.QuotaExceededResponse
//	@Security		BearerAuth
//	@Router			/subscription/quota/check-many [post]
func (h *UsageHandler) CheckQuotaMany(c *gin.Context) {
	tenantID, ok := h.tenantFromContext(c)
	if !ok {
		return
	}

	var req QuotaCheckManyRequest
	if !h.BindJSON(c, &req) {
		return
	}
	inputs := make([]appbilling.QuotaCheckInput, 0, len(req.Checks))
	for _, check := range req.Checks {
		in, ok := h.toCheckInput(c, tenantID, check)
		if !ok {
			return
		}
		inputs = append(inputs, in)
	}

	decision, err := h.quota.CheckMany(c.Request.Context(), inputs)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.writeDecision(c, decision)
}

// ReserveCheck godoc
//
//	@ID				sdkReserveCheck
//	@Summary		SDK pre-flight quota check
//	@Description	Answers 200 when increment more units fit; the quota gate answers 429 otherwise
//	@Tags			sdk
//	@Produce		json
//	@Param			dimension	path		string	true	"Dimension"	example(devices)
//	@Param			increment	query		int		false	"Units about to be created"	default(1)
//	@Success		200			{object}	APIResponse[dto.QuotaDecisionResponse]
//	@Failure		401			{object}	dto.ErrorResponse
//	@Failure		429			{object}	dto.QuotaExceededResponse
//	@Security		ApiKeyAuth
//	@Router			/sdk/quota/{dimension}/reserve-check [post]
func (h *UsageHandler) ReserveCheck(c *gin.Context) {
	v, ok := c.Get(middleware.QuotaDecisionKey)
	if !ok {
		h.InternalError(c, "Quota decision missing")
		return
	}
	decision, ok := v.(*billing.QuotaDecision)
	if !ok {
		h.InternalError(c, "Quota decision missing")
		return
	}
	h.Success(c, dto.NewQuotaDecisionResponse(decision))
}

// IncrementFromQuery reads the increment query parameter for the quota gate.
// Missing or malformed values count as one unit.
func IncrementFromQuery(c *gin.Context) int64 {
	n, err := strconv.ParseInt(c.Query("increment"), 10, 64)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func (h *UsageHandler) toCheckInput(c *gin.Context, tenantID uuid.UUID, req QuotaCheckRequest) (appbilling.QuotaCheckInput, bool) {
	dim, err := billing.ParseDimension(req.Dimension)
	if err != nil {
		h.HandleError(c, err)
		return appbilling.QuotaCheckInput{}, false
	}
	return appbilling.QuotaCheckInput{
		TenantID:  tenantID,
		Dimension: dim,
		Increment: req.Increment,
	}, true
}

func (h *UsageHandler) writeDecision(c *gin.Context, decision *billing.QuotaDecision) {
	if decision.Throttled {
		if secs := decision.RetryAfterSeconds(); secs != nil {
			c.Header("Retry-After", strconv.FormatInt(*secs, 10))
		}
		c.JSON(dto.GetHTTPStatus(dto.ErrCodeQuotaExceeded), dto.NewQuotaExceededResponse(decision, getRequestID(c)))
		return
	}
	h.Success(c, dto.NewQuotaDecisionResponse(decision))
}
