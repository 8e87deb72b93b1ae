package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/auth"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/logger"
)

// Gin context keys set by the auth middleware
const (
	TenantUUIDKey = "tenant_uuid"
	ProjectIDKey  = "project_id"
	UserIDKey     = "user_id"
	ClaimsKey     = "auth_claims"
)

// setTenant records the authenticated tenant on the gin context and
// rebinds the request context so logger.L picks up tenant_id.
func setTenant(c *gin.Context, tenantID uuid.UUID) {
	c.Set(TenantUUIDKey, tenantID)
	c.Set(logger.GinTenantIDKey, tenantID.String())

	ctx := c.Request.Context()
	base := logger.FromContext(ctx)
	if _, ok := c.Get(logger.GinLoggerKey); ok {
		base = logger.GetGinLogger(c)
	}
	ctx, enriched := logger.WithTenantID(ctx, base, tenantID.String())
	c.Set(logger.GinLoggerKey, enriched)
	c.Request = c.Request.WithContext(ctx)
}

// GetTenantID returns the tenant resolved by DashboardAuth or APIKeyAuth
func GetTenantID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(TenantUUIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// GetProjectID returns the project resolved by APIKeyAuth
func GetProjectID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ProjectIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// GetClaims returns the dashboard token claims
func GetClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
