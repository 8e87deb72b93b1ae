package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/dto"
)

// SweepTrigger starts an enforcement sweep outside the regular interval
type SweepTrigger interface {
	TriggerImmediateSweep(ctx context.Context) error
}

// SchedulerHandler exposes operator controls for background jobs
type SchedulerHandler struct {
	BaseHandler
	sweep SweepTrigger
}

// NewSchedulerHandler creates a new SchedulerHandler
func NewSchedulerHandler(sweep SweepTrigger) *SchedulerHandler {
	return &SchedulerHandler{sweep: sweep}
}

// TriggerSweep godoc
//
//	@ID				adminTriggerSweep
//	@Summary		Run an enforcement sweep now
//	@Description	Starts a background sweep of every tenant whose enforcement record is due. A sweep already in flight absorbs the request.
//	@Tags			admin
//	@Produce		json
//	@Success		202	{object}	SuccessResponse
//	@Failure		503	{object}	dto.ErrorResponse
//	@Security		AdminKeyAuth
//	@Router			/admin/enforcement/sweep [post]
func (h *SchedulerHandler) TriggerSweep(c *gin.Context) {
	if h.sweep == nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeUnavailable, "Enforcement sweep is not configured")
		return
	}
	// The sweep outlives the request
	if err := h.sweep.TriggerImmediateSweep(context.WithoutCancel(c.Request.Context())); err != nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeUnavailable, "Enforcement sweep is not running")
		return
	}
	c.JSON(http.StatusAccepted, SuccessResponse{Success: true})
}
