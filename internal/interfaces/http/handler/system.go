package handler

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/dto"
)

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// SystemHandler serves liveness, readiness and build information
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	checks    map[string]ReadinessCheck
	timeout   time.Duration
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler. checks are keyed by dependency name.
func NewSystemHandler(name, version string, checks map[string]ReadinessCheck) *SystemHandler {
	if checks == nil {
		checks = map[string]ReadinessCheck{}
	}
	return &SystemHandler{
		name:      name,
		version:   version,
		checks:    checks,
		timeout:   2 * time.Second,
		startTime: time.Now(),
	}
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name" example:"quota-engine"`
	Version   string `json:"version" example:"1.0.0"`
	GoVersion string `json:"go_version" example:"go1.25.5"`
	Uptime    string `json:"uptime" example:"1h30m45s"`
}

// ReadinessResponse lists dependency health
type ReadinessResponse struct {
	Ready  bool              `json:"ready" example:"true"`
	Checks map[string]string `json:"checks"`
}

// Health godoc
// @ID           health
// @Summary      Liveness check
// @Description  Answers 200 while the process is up
// @Tags         system
// @Produce      json
// @Success      200 {object} SuccessResponse
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// Ready godoc
// @ID           ready
// @Summary      Readiness check
// @Description  Runs every dependency check; 503 when any fails
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[ReadinessResponse]
// @Failure      503 {object} APIResponse[ReadinessResponse]
// @Router       /ready [get]
func (h *SystemHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := ReadinessResponse{Ready: true, Checks: make(map[string]string, len(names))}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			resp.Ready = false
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, dto.Response{Success: resp.Ready, Data: resp})
}

// GetSystemInfo godoc
// @ID           getSystemInfo
// @Summary      Get system information
// @Description  Returns basic system information including version and uptime
// @Tags         system
// @Produce      json
// @Success      200 {object} APIResponse[SystemInfoResponse]
// @Router       /system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}
