package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/logger"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/dto"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := middleware.SetupValidator(); err != nil {
		panic(err)
	}
}

// decode unmarshals the envelope of a recorded response
func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*gin.Context)
		expectedID string
	}{
		{
			name: "from context",
			setup: func(c *gin.Context) {
				c.Set(logger.GinRequestIDKey, "ctx-request-id")
			},
			expectedID: "ctx-request-id",
		},
		{
			name: "from header when context empty",
			setup: func(c *gin.Context) {
				c.Request.Header.Set(middleware.RequestIDHeader, "header-request-id")
			},
			expectedID: "header-request-id",
		},
		{
			name:       "empty when not set",
			setup:      func(c *gin.Context) {},
			expectedID: "",
		},
		{
			name: "context takes precedence over header",
			setup: func(c *gin.Context) {
				c.Set(logger.GinRequestIDKey, "ctx-id")
				c.Request.Header.Set(middleware.RequestIDHeader, "header-id")
			},
			expectedID: "ctx-id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(c)

			assert.Equal(t, tt.expectedID, getRequestID(c))
		})
	}
}

func TestGetActor(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Equal(t, "admin", getActor(c))

	c.Request.Header.Set(ActorHeader, "ops@example.com")
	assert.Equal(t, "ops@example.com", getActor(c))
}

func TestBaseHandlerTenantFromPath(t *testing.T) {
	h := &BaseHandler{}
	tenantID := uuid.New()

	router := gin.New()
	router.GET("/t/:tenant_id", func(c *gin.Context) {
		id, ok := h.tenantFromPath(c)
		if ok {
			c.String(http.StatusOK, id.String())
		}
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t/"+tenantID.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tenantID.String(), w.Body.String())

	for _, bad := range []string{"not-a-uuid", uuid.Nil.String()} {
		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t/"+bad, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestBaseHandlerSuccessWithList(t *testing.T) {
	h := &BaseHandler{}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	h.SuccessWithList(c, []string{"a", "b"}, 2, 50)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 2, resp.Meta.Total)
	assert.Equal(t, 50, resp.Meta.Limit)
}

func TestBaseHandlerErrorMethods(t *testing.T) {
	tests := []struct {
		name         string
		method       func(*BaseHandler, *gin.Context)
		expectedCode int
		expectedErr  string
	}{
		{
			name:         "BadRequest",
			method:       func(h *BaseHandler, c *gin.Context) { h.BadRequest(c, "Invalid request") },
			expectedCode: http.StatusBadRequest,
			expectedErr:  dto.ErrCodeBadRequest,
		},
		{
			name:         "InvalidJSON",
			method:       func(h *BaseHandler, c *gin.Context) { h.InvalidJSON(c) },
			expectedCode: http.StatusBadRequest,
			expectedErr:  dto.ErrCodeInvalidJSON,
		},
		{
			name:         "Unauthorized",
			method:       func(h *BaseHandler, c *gin.Context) { h.Unauthorized(c, "Not authenticated") },
			expectedCode: http.StatusUnauthorized,
			expectedErr:  dto.ErrCodeUnauthorized,
		},
		{
			name:         "InternalError",
			method:       func(h *BaseHandler, c *gin.Context) { h.InternalError(c, "Server error") },
			expectedCode: http.StatusInternalServerError,
			expectedErr:  dto.ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Set(logger.GinRequestIDKey, "req-1")

			tt.method(h, c)

			assert.Equal(t, tt.expectedCode, w.Code)
			resp := decode(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.expectedErr, resp.Error.Code)
			assert.Equal(t, "req-1", resp.Error.RequestID)
		})
	}
}

func TestBaseHandlerBindJSON(t *testing.T) {
	type body struct {
		Dimension string `json:"dimension" binding:"required,dimension"`
	}

	tests := []struct {
		name    string
		payload string
		ok      bool
		code    string
	}{
		{"valid", `{"dimension":"devices"}`, true, ""},
		{"camelCase dimension", `{"dimension":"apiRequests"}`, true, ""},
		{"malformed json", `{"dimension":`, false, dto.ErrCodeInvalidJSON},
		{"missing field", `{}`, false, dto.ErrCodeValidation},
		{"unknown dimension", `{"dimension":"widgets"}`, false, dto.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.payload))
			c.Request.Header.Set("Content-Type", "application/json")

			var req body
			assert.Equal(t, tt.ok, h.BindJSON(c, &req))
			if tt.ok {
				return
			}
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decode(t, w).Error.Code)
		})
	}
}

func TestBaseHandlerHandleError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedErr  string
	}{
		{"not found", shared.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"already exists", shared.ErrAlreadyExists, http.StatusConflict, dto.ErrCodeAlreadyExists},
		{"invalid input", shared.ErrInvalidInput, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"invalid dimension", shared.ErrInvalidDimension, http.StatusBadRequest, dto.ErrCodeInvalidDimension},
		{"persistence wrapped", shared.Wrap(shared.ErrPersistence, errors.New("conn reset")), http.StatusInternalServerError, dto.ErrCodePersistence},
		{"validation", shared.NewDomainError("VALIDATION_ERROR", "bad"), http.StatusBadRequest, dto.ErrCodeValidation},
		{"plain error", assert.AnError, http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			h.HandleError(c, tt.err)

			assert.Equal(t, tt.expectedCode, w.Code)
			resp := decode(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.expectedErr, resp.Error.Code)
		})
	}
}

func TestBaseHandlerHandleErrorNil(t *testing.T) {
	h := &BaseHandler{}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	h.HandleError(c, nil)

	assert.Empty(t, w.Body.String())
}
