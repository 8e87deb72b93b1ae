package router

import (
	"github.com/gin-gonic/gin"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/handler"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/middleware"
)

// Handlers bundles the HTTP handlers mounted by the API
type Handlers struct {
	Enforcement  *handler.EnforcementHandler
	Usage        *handler.UsageHandler
	Subscription *handler.SubscriptionHandler
	Scheduler    *handler.SchedulerHandler
	System       *handler.SystemHandler
}

// SDKRoutes mounts the SDK surface behind guards. Every dimension gets its
// own reserve-check route so the quota gate is bound to a fixed dimension.
func SDKRoutes(h Handlers, quota middleware.QuotaChecker, guards ...gin.HandlerFunc) *DomainGroup {
	sdk := NewDomainGroup("sdk", "/sdk").Use(guards...)
	sdk.GET("/policy", h.Enforcement.GetSDKPolicy)

	reserve := sdk.Group("quota", "/quota")
	for _, d := range billing.AllDimensions() {
		reserve.POST("/"+d.String()+"/reserve-check",
			middleware.QuotaGate(quota, d, handler.IncrementFromQuery),
			h.Usage.ReserveCheck,
		)
	}
	return sdk
}

// DashboardRoutes mounts the tenant-facing dashboard reads
func DashboardRoutes(h Handlers, guards ...gin.HandlerFunc) *DomainGroup {
	dashboard := NewDomainGroup("dashboard", "").Use(guards...)
	dashboard.GET("/plans", h.Subscription.ListPlans)

	dashboard.Group("subscription", "/subscription").
		GET("/enforcement", h.Enforcement.GetStatus).
		GET("/enforcement/history", h.Enforcement.ListHistory).
		GET("/usage", h.Usage.GetUsage).
		POST("/quota/check", h.Usage.CheckQuota).
		POST("/quota/check-many", h.Usage.CheckQuotaMany)
	return dashboard
}

// AdminRoutes mounts operator mutations keyed by tenant and job controls
func AdminRoutes(h Handlers, guards ...gin.HandlerFunc) *DomainGroup {
	admin := NewDomainGroup("admin", "/admin").Use(guards...)
	admin.Group("subscriptions", "/subscriptions/:tenant_id").
		POST("", h.Subscription.CreateSubscription).
		POST("/plan", h.Subscription.ChangePlan).
		POST("/overrides", h.Subscription.SetOverride).
		POST("/enabled", h.Subscription.SetEnabled).
		POST("/status", h.Subscription.SetStatus).
		POST("/invalidate", h.Subscription.Invalidate)
	admin.POST("/enforcement/sweep", h.Scheduler.TriggerSweep)
	return admin
}

// SystemRoutes mounts service metadata under the versioned API
func SystemRoutes(h Handlers) *DomainGroup {
	return NewDomainGroup("system", "/system").
		GET("/info", h.System.GetSystemInfo)
}

// RegisterProbes mounts liveness and readiness at the engine root
func RegisterProbes(engine *gin.Engine, system *handler.SystemHandler) {
	engine.GET("/health", system.Health)
	engine.GET("/ready", system.Ready)
}
