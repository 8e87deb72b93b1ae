package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/logger"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// APIKeyResolver maps an SDK project key to its tenant and project
type APIKeyResolver interface {
	ResolveAPIKey(ctx context.Context, apiKey string) (tenantID, projectID uuid.UUID, err error)
}

// APIKeyAuthConfig configures APIKeyAuth
type APIKeyAuthConfig struct {
	Resolver APIKeyResolver
	Logger   *zap.Logger
	// FailOpen lets the request through without a tenant when the key
	// store cannot be read. Unknown keys are still rejected.
	FailOpen bool
}

// APIKeyAuth authenticates SDK requests by the X-API-Key header
func APIKeyAuth(cfg APIKeyAuthConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			abortWithError(c, dto.ErrCodeUnauthorized, "Missing API key")
			return
		}

		tenantID, projectID, err := cfg.Resolver.ResolveAPIKey(c.Request.Context(), key)
		switch {
		case err == nil:
		case errors.Is(err, shared.ErrNotFound):
			abortWithError(c, dto.ErrCodeInvalidAPIKey, "Invalid API key")
			return
		case cfg.FailOpen:
			log.Warn("API key lookup failed, continuing without tenant",
				zap.String("request_id", c.GetString(logger.GinRequestIDKey)),
				zap.Error(err),
			)
			c.Next()
			return
		default:
			log.Error("API key lookup failed",
				zap.String("request_id", c.GetString(logger.GinRequestIDKey)),
				zap.Error(err),
			)
			abortWithError(c, dto.ErrCodePersistence, "Unable to verify API key")
			return
		}

		setTenant(c, tenantID)
		c.Set(ProjectIDKey, projectID)
		ctx, enriched := logger.WithProjectID(c.Request.Context(), logger.FromContext(c.Request.Context()), projectID.String())
		c.Set(logger.GinLoggerKey, enriched)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
