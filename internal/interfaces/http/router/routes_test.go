package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appbilling "github.com/iplixera/nivostack-monorepo-sub006/internal/application/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/handler"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type allowAll struct {
	dims []billing.Dimension
}

func (a *allowAll) Check(_ context.Context, in appbilling.QuotaCheckInput) (*billing.QuotaDecision, error) {
	a.dims = append(a.dims, in.Dimension)
	return &billing.QuotaDecision{Usage: billing.NewUsageSnapshot(in.Dimension, 1, 10), Increment: in.Increment}, nil
}

func testHandlers() Handlers {
	return Handlers{
		Enforcement:  handler.NewEnforcementHandler(nil, nil, billing.DefaultPolicyConfig()),
		Usage:        handler.NewUsageHandler(nil, nil),
		Subscription: handler.NewSubscriptionHandler(nil, nil),
		Scheduler:    handler.NewSchedulerHandler(nil),
		System:       handler.NewSystemHandler("quota-engine", "test", nil),
	}
}

// teapot rejects every request so route existence shows up as 418 instead of 404
func teapot(c *gin.Context) {
	c.AbortWithStatus(http.StatusTeapot)
}

func mountAll(guard gin.HandlerFunc, quota middleware.QuotaChecker) *gin.Engine {
	engine := gin.New()
	h := testHandlers()
	RegisterProbes(engine, h.System)
	NewRouter(engine).
		Register(SDKRoutes(h, quota, guard)).
		Register(DashboardRoutes(h, guard)).
		Register(AdminRoutes(h, guard)).
		Register(SystemRoutes(h)).
		Setup()
	return engine
}

func TestRoutes_GuardedSurfaces(t *testing.T) {
	engine := mountAll(teapot, &allowAll{})
	tenant := uuid.New().String()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/sdk/policy"},
		{http.MethodPost, "/api/v1/sdk/quota/devices/reserve-check"},
		{http.MethodPost, "/api/v1/sdk/quota/api_requests/reserve-check"},
		{http.MethodGet, "/api/v1/plans"},
		{http.MethodGet, "/api/v1/subscription/enforcement"},
		{http.MethodGet, "/api/v1/subscription/enforcement/history"},
		{http.MethodGet, "/api/v1/subscription/usage"},
		{http.MethodPost, "/api/v1/subscription/quota/check"},
		{http.MethodPost, "/api/v1/subscription/quota/check-many"},
		{http.MethodPost, "/api/v1/admin/subscriptions/" + tenant},
		{http.MethodPost, "/api/v1/admin/subscriptions/" + tenant + "/plan"},
		{http.MethodPost, "/api/v1/admin/subscriptions/" + tenant + "/overrides"},
		{http.MethodPost, "/api/v1/admin/subscriptions/" + tenant + "/enabled"},
		{http.MethodPost, "/api/v1/admin/subscriptions/" + tenant + "/status"},
		{http.MethodPost, "/api/v1/admin/subscriptions/" + tenant + "/invalidate"},
		{http.MethodPost, "/api/v1/admin/enforcement/sweep"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, nil))
			assert.Equal(t, http.StatusTeapot, w.Code)
		})
	}
}

func TestRoutes_UnguardedSurfaces(t *testing.T) {
	engine := mountAll(teapot, &allowAll{})

	for _, path := range []string{"/health", "/ready", "/api/v1/system/info"} {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRoutes_UnknownDimensionHasNoReserveRoute(t *testing.T) {
	engine := mountAll(teapot, &allowAll{})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sdk/quota/widgets/reserve-check", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_ReserveCheckBindsDimension(t *testing.T) {
	quota := &allowAll{}
	tenantID := uuid.New()
	engine := mountAll(func(c *gin.Context) {
		c.Set(middleware.TenantUUIDKey, tenantID)
		c.Next()
	}, quota)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sdk/quota/mock_endpoints/reserve-check?increment=3", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []billing.Dimension{billing.DimensionMockEndpoints}, quota.dims)
}

func TestRoutes_SDKPolicyFailsOpenWithoutTenant(t *testing.T) {
	engine := mountAll(func(c *gin.Context) { c.Next() }, &allowAll{})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sdk/policy", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"ACTIVE"`)
	assert.Contains(t, w.Body.String(), `"source":"fail_open"`)
}
