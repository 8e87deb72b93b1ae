package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appbilling "github.com/iplixera/nivostack-monorepo-sub006/internal/application/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
)

// SubscriptionAdmin applies operator mutations to subscriptions
type SubscriptionAdmin interface {
	CreateSubscription(ctx context.Context, input appbilling.CreateSubscriptionInput) (*billing.Subscription, error)
	ChangePlan(ctx context.Context, input appbilling.ChangePlanInput) (*billing.Subscription, error)
	SetOverride(ctx context.Context, input appbilling.SetOverrideInput) (*billing.Subscription, error)
	SetEnabled(ctx context.Context, input appbilling.SetEnabledInput) (*billing.Subscription, error)
	SetStatus(ctx context.Context, input appbilling.SetStatusInput) (*billing.Subscription, error)
	Invalidate(ctx context.Context, tenantID uuid.UUID, actor string) error
}

// PlanLister reads the plan catalog
type PlanLister interface {
	FindAll(ctx context.Context, activeOnly bool) ([]*billing.Plan, error)
}

// SubscriptionHandler handles admin subscription mutations and the plan catalog
type SubscriptionHandler struct {
	BaseHandler
	admin SubscriptionAdmin
	plans PlanLister
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(admin SubscriptionAdmin, plans PlanLister) *SubscriptionHandler {
	return &SubscriptionHandler{admin: admin, plans: plans}
}

// ListPlans godoc
//
//	@ID				listPlans
//	@Summary		List plans
//	@Description	Returns active plans ordered by tier
//	@Tags			plans
//	@Produce		json
//	@Success		200	{object}	APIResponse[[]PlanResponse]
//	@Failure		401	{object}	dto.ErrorResponse
//	@Failure		500	{object}	dto.ErrorResponse
//	@Security		BearerAuth
//	@Router			/plans [get]
func (h *SubscriptionHandler) ListPlans(c *gin.Context) {
	plans, err := h.plans.FindAll(c.Request.Context(), true)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithList(c, NewPlanListResponse(plans), len(plans), 0)
}

// CreateSubscription godoc
//
//	@ID				adminCreateSubscription
//	@Summary		Create a subscription
//	@Description	Starts a trial subscription for a tenant, on the free plan unless plan_name is set
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			tenant_id	path		string						true	"Tenant ID"	format(uuid)
//	@Param			request		body		CreateSubscriptionRequest	false	"Plan"
//	@Success		201			{object}	APIResponse[SubscriptionResponse]
//	@Failure		400			{object}	dto.ErrorResponse
//	@Failure		404			{object}	dto.ErrorResponse
//	@Failure		409			{object}	dto.ErrorResponse
//	@Security		AdminKeyAuth
//	@Router			/admin/subscriptions/{tenant_id} [post]
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	tenantID, ok := h.tenantFromPath(c)
	if !ok {
		return
	}

	var req CreateSubscriptionRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}

	sub, err := h.admin.CreateSubscription(c.Request.Context(), appbilling.CreateSubscriptionInput{
		TenantID: tenantID,
		PlanName: req.PlanName,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, NewSubscriptionResponse(sub))
}

// ChangePlan godoc
//
//	@ID				adminChangePlan
//	@Summary		Change plan
//	@Description	Moves the tenant to another plan. The next enforcement read recomputes against the new limits.
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			tenant_id	path		string				true	"Tenant ID"	format(uuid)
//	@Param			request		body		ChangePlanRequest	true	"Plan"
//	@Success		200			{object}	APIResponse[SubscriptionResponse]
//	@Failure		400			{object}	dto.ErrorResponse
//	@Failure		404			{object}	dto.ErrorResponse
//	@Security		AdminKeyAuth
//	@Router			/admin/subscriptions/{tenant_id}/plan [post]
func (h *SubscriptionHandler) ChangePlan(c *gin.Context) {
	tenantID, ok := h.tenantFromPath(c)
	if !ok {
		return
	}
	var req ChangePlanRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sub, err := h.admin.ChangePlan(c.Request.Context(), appbilling.ChangePlanInput{
		TenantID: tenantID,
		PlanName: req.PlanName,
		Actor:    getActor(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, NewSubscriptionResponse(sub))
}

// SetOverride godoc
//
//	@ID				adminSetOverride
//	@Summary		Override a limit
//	@Description	Replaces one dimension limit for the tenant; a null value restores the plan limit
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			tenant_id	path		string				true	"Tenant ID"	format(uuid)
//	@Param			request		body		SetOverrideRequest	true	"Override"
//	@Success		200			{object}	APIResponse[SubscriptionResponse]
//	@Failure		400			{object}	dto.ErrorResponse
//	@Failure		404			{object}	dto.ErrorResponse
//	@Security		AdminKeyAuth
//	@Router			/admin/subscriptions/{tenant_id}/overrides [post]
func (h *SubscriptionHandler) SetOverride(c *gin.Context) {
	tenantID, ok := h.tenantFromPath(c)
	if !ok {
		return
	}
	var req SetOverrideRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sub, err := h.admin.SetOverride(c.Request.Context(), appbilling.SetOverrideInput{
		TenantID:  tenantID,
		Dimension: req.Dimension,
		Value:     req.Value,
		Actor:     getActor(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, NewSubscriptionResponse(sub))
}

// SetEnabled godoc
//
//	@ID				adminSetEnabled
//	@Summary		Enable or disable a subscription
//	@Description	Admin kill switch. Disabling moves the tenant to DEGRADED on the next read.
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			tenant_id	path		string				true	"Tenant ID"	format(uuid)
//	@Param			request		body		SetEnabledRequest	true	"Switch"
//	@Success		200			{object}	APIResponse[SubscriptionResponse]
//	@Failure		400			{object}	dto.ErrorResponse
//	@Failure		404			{object}	dto.ErrorResponse
//	@Security		AdminKeyAuth
//	@Router			/admin/subscriptions/{tenant_id}/enabled [post]
func (h *SubscriptionHandler) SetEnabled(c *gin.Context) {
	tenantID, ok := h.tenantFromPath(c)
	if !ok {
		return
	}
	var req SetEnabledRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sub, err := h.admin.SetEnabled(c.Request.Context(), appbilling.SetEnabledInput{
		TenantID: tenantID,
		Enabled:  *req.Enabled,
		Reason:   req.Reason,
		Actor:    getActor(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, NewSubscriptionResponse(sub))
}

// SetStatus godoc
//
//	@ID				adminSetStatus
//	@Summary		Change subscription status
//	@Description	Changes the lifecycle status; expired forces DEGRADED on the next read
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			tenant_id	path		string				true	"Tenant ID"	format(uuid)
//	@Param			request		body		SetStatusRequest	true	"Status"
//	@Success		200			{object}	APIResponse[SubscriptionResponse]
//	@Failure		400			{object}	dto.ErrorResponse
//	@Failure		404			{object}	dto.ErrorResponse
//	@Security		AdminKeyAuth
//	@Router			/admin/subscriptions/{tenant_id}/status [post]
func (h *SubscriptionHandler) SetStatus(c *gin.Context) {
	tenantID, ok := h.tenantFromPath(c)
	if !ok {
		return
	}
	var req SetStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sub, err := h.admin.SetStatus(c.Request.Context(), appbilling.SetStatusInput{
		TenantID: tenantID,
		Status:   req.Status,
		Actor:    getActor(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, NewSubscriptionResponse(sub))
}

// Invalidate godoc
//
//	@ID				adminInvalidate
//	@Summary		Invalidate enforcement
//	@Description	Forces the next enforcement read for the tenant to recompute and drops cached usage counts on every replica
//	@Tags			admin
//	@Produce		json
//	@Param			tenant_id	path		string	true	"Tenant ID"	format(uuid)
//	@Success		200			{object}	SuccessResponse
//	@Failure		400			{object}	dto.ErrorResponse
//	@Failure		404			{object}	dto.ErrorResponse
//	@Security		AdminKeyAuth
//	@Router			/admin/subscriptions/{tenant_id}/invalidate [post]
func (h *SubscriptionHandler) Invalidate(c *gin.Context) {
	tenantID, ok := h.tenantFromPath(c)
	if !ok {
		return
	}
	if err := h.admin.Invalidate(c.Request.Context(), tenantID, getActor(c)); err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}
