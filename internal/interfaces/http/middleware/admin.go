package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/dto"
)

// AdminKeyAuth guards operator routes with a shared secret in X-Admin-Key.
// An empty configured key locks the routes entirely.
func AdminKeyAuth(adminKey string) gin.HandlerFunc {
	expected := []byte(adminKey)
	return func(c *gin.Context) {
		got := c.GetHeader(AdminKeyHeader)
		if len(expected) == 0 || got == "" {
			abortWithError(c, dto.ErrCodeUnauthorized, "Admin credentials required")
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			abortWithError(c, dto.ErrCodeForbidden, "Invalid admin credentials")
			return
		}
		c.Next()
	}
}
