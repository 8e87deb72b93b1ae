package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appbilling "github.com/iplixera/nivostack-monorepo-sub006/internal/application/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	decision *billing.QuotaDecision
	err      error
	got      appbilling.QuotaCheckInput
}

func (f *fakeChecker) Check(_ context.Context, in appbilling.QuotaCheckInput) (*billing.QuotaDecision, error) {
	f.got = in
	return f.decision, f.err
}

func newGateRouter(t *testing.T, checker QuotaChecker, tenantID uuid.UUID, increment IncrementFunc) *gin.Engine {
	router := gin.New()
	router.Use(RequestID())
	router.Use(func(c *gin.Context) {
		if tenantID != uuid.Nil {
			setTenant(c, tenantID)
		}
		c.Next()
	})
	router.POST("/v1/devices", QuotaGate(checker, billing.DimensionDevices, increment), func(c *gin.Context) {
		_, ok := c.Get(QuotaDecisionKey)
		assert.True(t, ok, "allowed decision is handed to the handler")
		c.Status(http.StatusCreated)
	})
	return router
}

func TestQuotaGate_Allows(t *testing.T) {
	tenantID := uuid.New()
	checker := &fakeChecker{decision: &billing.QuotaDecision{
		Usage:     billing.NewUsageSnapshot(billing.DimensionDevices, 1, 10),
		Increment: 3,
	}}
	router := newGateRouter(t, checker, tenantID, func(*gin.Context) int64 { return 3 })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/devices", nil))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, tenantID, checker.got.TenantID)
	assert.Equal(t, billing.DimensionDevices, checker.got.Dimension)
	assert.Equal(t, int64(3), checker.got.Increment)
}

func TestQuotaGate_ThrottledPeriodDimension(t *testing.T) {
	retry := 90*time.Minute + 500*time.Millisecond
	checker := &fakeChecker{decision: &billing.QuotaDecision{
		Throttled:  true,
		Usage:      billing.NewUsageSnapshot(billing.DimensionDevices, 10, 10),
		Increment:  1,
		RetryAfter: &retry,
		Message:    "devices limit reached (10 of 10)",
	}}
	router := newGateRouter(t, checker, uuid.New(), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/devices", nil))

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, strconv.Itoa(90*60+1), w.Header().Get("Retry-After"))

	var body dto.QuotaExceededResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, dto.ErrCodeQuotaExceeded, body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
	assert.True(t, body.Data.Throttled)
	assert.Equal(t, int64(10), body.Data.Usage.Used)
	require.NotNil(t, body.Data.Usage.Limit)
	assert.Equal(t, int64(10), *body.Data.Usage.Limit)
	require.NotNil(t, body.Data.RetryAfter)
	assert.Equal(t, int64(90*60+1), *body.Data.RetryAfter)
}

func TestQuotaGate_ThrottledCumulativeHasNoRetryHint(t *testing.T) {
	checker := &fakeChecker{decision: &billing.QuotaDecision{
		Throttled: true,
		Usage:     billing.NewUsageSnapshot(billing.DimensionDevices, 2, 2),
		Increment: 1,
		Message:   "devices limit reached",
	}}
	router := newGateRouter(t, checker, uuid.New(), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/devices", nil))

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Empty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"retry_after":null`)
}

func TestQuotaGate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"missing subscription", shared.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"store down", shared.Wrap(shared.ErrPersistence, errors.New("timeout")), http.StatusInternalServerError, dto.ErrCodePersistence},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newGateRouter(t, &fakeChecker{err: tt.err}, uuid.New(), nil)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/devices", nil))

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.code)
		})
	}
}

func TestQuotaGate_RequiresTenant(t *testing.T) {
	checker := &fakeChecker{}
	router := newGateRouter(t, checker, uuid.Nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/devices", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, uuid.Nil, checker.got.TenantID, "checker is not consulted")
}
