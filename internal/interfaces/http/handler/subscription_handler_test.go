package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appbilling "github.com/iplixera/nivostack-monorepo-sub006/internal/application/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAdmin struct {
	mock.Mock
}

func (m *mockAdmin) result(args mock.Arguments) (*billing.Subscription, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Subscription), args.Error(1)
}

func (m *mockAdmin) CreateSubscription(ctx context.Context, input appbilling.CreateSubscriptionInput) (*billing.Subscription, error) {
	return m.result(m.Called(ctx, input))
}

func (m *mockAdmin) ChangePlan(ctx context.Context, input appbilling.ChangePlanInput) (*billing.Subscription, error) {
	return m.result(m.Called(ctx, input))
}

func (m *mockAdmin) SetOverride(ctx context.Context, input appbilling.SetOverrideInput) (*billing.Subscription, error) {
	return m.result(m.Called(ctx, input))
}

func (m *mockAdmin) SetEnabled(ctx context.Context, input appbilling.SetEnabledInput) (*billing.Subscription, error) {
	return m.result(m.Called(ctx, input))
}

func (m *mockAdmin) SetStatus(ctx context.Context, input appbilling.SetStatusInput) (*billing.Subscription, error) {
	return m.result(m.Called(ctx, input))
}

func (m *mockAdmin) Invalidate(ctx context.Context, tenantID uuid.UUID, actor string) error {
	return m.Called(ctx, tenantID, actor).Error(0)
}

type fakePlans struct {
	plans []*billing.Plan
	err   error
}

func (f *fakePlans) FindAll(_ context.Context, _ bool) ([]*billing.Plan, error) {
	return f.plans, f.err
}

func newAdminRouter(h *SubscriptionHandler) *gin.Engine {
	router := gin.New()
	admin := router.Group("/admin/subscriptions/:tenant_id")
	admin.POST("", h.CreateSubscription)
	admin.POST("/plan", h.ChangePlan)
	admin.POST("/overrides", h.SetOverride)
	admin.POST("/enabled", h.SetEnabled)
	admin.POST("/status", h.SetStatus)
	admin.POST("/invalidate", h.Invalidate)
	return router
}

func testSubscription(tenantID uuid.UUID) *billing.Subscription {
	plan := &billing.Plan{ID: uuid.New(), Name: "pro", RetentionDays: 14}
	sub, err := billing.NewSubscription(tenantID, plan, evaluatedAt)
	if err != nil {
		panic(err)
	}
	return sub
}

func TestSubscriptionHandler_SetEnabled(t *testing.T) {
	tenantID := uuid.New()
	admin := new(mockAdmin)
	h := NewSubscriptionHandler(admin, &fakePlans{})
	router := newAdminRouter(h)

	sub := testSubscription(tenantID)
	sub.Disable("ops@example.com", "chargeback", evaluatedAt)
	admin.On("SetEnabled", mock.Anything, appbilling.SetEnabledInput{
		TenantID: tenantID,
		Enabled:  false,
		Reason:   "chargeback",
		Actor:    "ops@example.com",
	}).Return(sub, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/admin/subscriptions/"+tenantID.String()+"/enabled",
		strings.NewReader(`{"enabled":false,"reason":"chargeback"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ActorHeader, "ops@example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp APIResponse[SubscriptionResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Data.Enabled)
	assert.Equal(t, "chargeback", resp.Data.DisabledReason)
	assert.NotNil(t, resp.Data.DisabledAt)
	admin.AssertExpectations(t)
}

func TestSubscriptionHandler_SetEnabledRequiresFlag(t *testing.T) {
	admin := new(mockAdmin)
	router := newAdminRouter(NewSubscriptionHandler(admin, &fakePlans{}))

	w := postJSON(router, "/admin/subscriptions/"+uuid.NewString()+"/enabled", `{"reason":"x"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeValidation, decode(t, w).Error.Code)
	admin.AssertNotCalled(t, "SetEnabled", mock.Anything, mock.Anything)
}

func TestSubscriptionHandler_SetOverride(t *testing.T) {
	tenantID := uuid.New()
	admin := new(mockAdmin)
	router := newAdminRouter(NewSubscriptionHandler(admin, &fakePlans{}))

	sub := testSubscription(tenantID)
	value := int64(500)
	require.NoError(t, sub.SetOverride(billing.DimensionDevices, &value, evaluatedAt))
	admin.On("SetOverride", mock.Anything, mock.MatchedBy(func(in appbilling.SetOverrideInput) bool {
		return in.TenantID == tenantID && in.Dimension == "devices" && in.Value != nil && *in.Value == 500 && in.Actor == "admin"
	})).Return(sub, nil).Once()

	w := postJSON(router, "/admin/subscriptions/"+tenantID.String()+"/overrides", `{"dimension":"devices","value":500}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp APIResponse[SubscriptionResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, map[string]int64{"devices": 500}, resp.Data.Overrides)
	admin.AssertExpectations(t)
}

func TestSubscriptionHandler_SetOverrideClears(t *testing.T) {
	tenantID := uuid.New()
	admin := new(mockAdmin)
	router := newAdminRouter(NewSubscriptionHandler(admin, &fakePlans{}))

	admin.On("SetOverride", mock.Anything, mock.MatchedBy(func(in appbilling.SetOverrideInput) bool {
		return in.Value == nil
	})).Return(testSubscription(tenantID), nil).Once()

	w := postJSON(router, "/admin/subscriptions/"+tenantID.String()+"/overrides", `{"dimension":"devices","value":null}`)

	assert.Equal(t, http.StatusOK, w.Code)
	admin.AssertExpectations(t)
}

func TestSubscriptionHandler_RequestValidation(t *testing.T) {
	tenantID := uuid.New().String()
	tests := []struct {
		name string
		path string
		body string
	}{
		{"override below unlimited", "/overrides", `{"dimension":"devices","value":-2}`},
		{"override unknown dimension", "/overrides", `{"dimension":"widgets","value":1}`},
		{"plan missing", "/plan", `{}`},
		{"status unknown", "/status", `{"status":"paused"}`},
		{"malformed body", "/plan", `{"plan_name":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admin := new(mockAdmin)
			router := newAdminRouter(NewSubscriptionHandler(admin, &fakePlans{}))

			w := postJSON(router, "/admin/subscriptions/"+tenantID+tt.path, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, admin.Calls)
		})
	}
}

func TestSubscriptionHandler_ChangePlanErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unknown plan", shared.NewDomainError("NOT_FOUND", "Plan not found"), http.StatusNotFound},
		{"store down", shared.Wrap(shared.ErrPersistence, errors.New("timeout")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admin := new(mockAdmin)
			admin.On("ChangePlan", mock.Anything, mock.Anything).Return(nil, tt.err)
			router := newAdminRouter(NewSubscriptionHandler(admin, &fakePlans{}))

			w := postJSON(router, "/admin/subscriptions/"+uuid.NewString()+"/plan", `{"plan_name":"pro"}`)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestSubscriptionHandler_SetStatus(t *testing.T) {
	tenantID := uuid.New()
	admin := new(mockAdmin)
	router := newAdminRouter(NewSubscriptionHandler(admin, &fakePlans{}))

	sub := testSubscription(tenantID)
	require.NoError(t, sub.SetStatus(billing.SubscriptionStatusExpired, evaluatedAt))
	admin.On("SetStatus", mock.Anything, appbilling.SetStatusInput{TenantID: tenantID, Status: "expired", Actor: "admin"}).
		Return(sub, nil).Once()

	w := postJSON(router, "/admin/subscriptions/"+tenantID.String()+"/status", `{"status":"expired"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"expired"`)
	admin.AssertExpectations(t)
}

func TestSubscriptionHandler_CreateSubscription(t *testing.T) {
	tenantID := uuid.New()

	t.Run("default plan without body", func(t *testing.T) {
		admin := new(mockAdmin)
		admin.On("CreateSubscription", mock.Anything, appbilling.CreateSubscriptionInput{TenantID: tenantID}).
			Return(testSubscription(tenantID), nil).Once()
		router := newAdminRouter(NewSubscriptionHandler(admin, &fakePlans{}))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/subscriptions/"+tenantID.String(), nil))

		assert.Equal(t, http.StatusCreated, w.Code)
		admin.AssertExpectations(t)
	})

	t.Run("named plan", func(t *testing.T) {
		admin := new(mockAdmin)
		admin.On("CreateSubscription", mock.Anything, appbilling.CreateSubscriptionInput{TenantID: tenantID, PlanName: "team"}).
			Return(testSubscription(tenantID), nil).Once()
		router := newAdminRouter(NewSubscriptionHandler(admin, &fakePlans{}))

		w := postJSON(router, "/admin/subscriptions/"+tenantID.String(), `{"plan_name":"team"}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		admin.AssertExpectations(t)
	})

	t.Run("already subscribed", func(t *testing.T) {
		admin := new(mockAdmin)
		admin.On("CreateSubscription", mock.Anything, mock.Anything).Return(nil, shared.ErrAlreadyExists)
		router := newAdminRouter(NewSubscriptionHandler(admin, &fakePlans{}))

		w := postJSON(router, "/admin/subscriptions/"+tenantID.String(), `{}`)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestSubscriptionHandler_Invalidate(t *testing.T) {
	tenantID := uuid.New()
	admin := new(mockAdmin)
	admin.On("Invalidate", mock.Anything, tenantID, "admin").Return(nil).Once()
	router := newAdminRouter(NewSubscriptionHandler(admin, &fakePlans{}))

	w := postJSON(router, "/admin/subscriptions/"+tenantID.String()+"/invalidate", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
	admin.AssertExpectations(t)

	w = postJSON(router, "/admin/subscriptions/not-a-uuid/invalidate", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscriptionHandler_ListPlans(t *testing.T) {
	plans := []*billing.Plan{
		{
			ID:       uuid.New(),
			Name:     "pro",
			TierRank: 2,
			Limits:   map[billing.Dimension]billing.Limit{billing.DimensionDevices: 1000, billing.DimensionSessions: billing.Unlimited},
			Price:    decimal.RequireFromString("49"),
			Currency: "USD",
			Interval: billing.BillingIntervalMonthly,
		},
		{
			ID:       uuid.New(),
			Name:     "free",
			TierRank: 0,
			Limits:   map[billing.Dimension]billing.Limit{billing.DimensionDevices: 10},
			Price:    decimal.Zero,
		},
	}
	h := NewSubscriptionHandler(new(mockAdmin), &fakePlans{plans: plans})
	router := gin.New()
	router.GET("/plans", h.ListPlans)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plans", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp APIResponse[[]PlanResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "free", resp.Data[0].Name, "ordered by tier")
	assert.Equal(t, "0.00", resp.Data[0].Price)
	assert.Equal(t, "49.00", resp.Data[1].Price)
	require.NotNil(t, resp.Data[1].Limits["devices"])
	assert.Equal(t, int64(1000), *resp.Data[1].Limits["devices"])
	assert.Nil(t, resp.Data[1].Limits["sessions"])
	assert.Equal(t, 2, resp.Meta.Total)
}

func TestSubscriptionHandler_ListPlansError(t *testing.T) {
	h := NewSubscriptionHandler(new(mockAdmin), &fakePlans{err: shared.Wrap(shared.ErrPersistence, errors.New("down"))})
	router := gin.New()
	router.GET("/plans", h.ListPlans)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plans", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
