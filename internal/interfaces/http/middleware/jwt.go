package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/auth"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/logger"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Authorization header parts
const (
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenValidator verifies a dashboard bearer token
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// DashboardAuth authenticates dashboard requests with a bearer token and
// binds the token's tenant to the request.
func DashboardAuth(validator TokenValidator, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeaderKey)
		if header == "" {
			abortWithError(c, dto.ErrCodeUnauthorized, "Missing authorization header")
			return
		}
		if !strings.HasPrefix(header, BearerPrefix) {
			abortWithError(c, dto.ErrCodeUnauthorized, "Invalid authorization header format")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
		if token == "" {
			abortWithError(c, dto.ErrCodeUnauthorized, "Missing token")
			return
		}

		claims, err := validator.Validate(token)
		if err != nil {
			log.Debug("Dashboard token rejected",
				zap.String("request_id", c.GetString(logger.GinRequestIDKey)),
				zap.Error(err),
			)
			if errors.Is(err, auth.ErrExpiredToken) {
				abortWithError(c, dto.ErrCodeTokenExpired, "Token has expired")
				return
			}
			abortWithError(c, dto.ErrCodeTokenInvalid, "Invalid token")
			return
		}

		tenantID, err := claims.TenantUUID()
		if err != nil {
			abortWithError(c, dto.ErrCodeTokenInvalid, "Invalid token")
			return
		}

		c.Set(ClaimsKey, claims)
		if claims.UserID != "" {
			c.Set(UserIDKey, claims.UserID)
		}
		setTenant(c, tenantID)
		c.Next()
	}
}
