package middleware

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	appbilling "github.com/iplixera/nivostack-monorepo-sub006/internal/application/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/logger"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// QuotaDecisionKey holds the allowed decision for downstream handlers
const QuotaDecisionKey = "quota_decision"

// QuotaChecker is the Quota Gate
type QuotaChecker interface {
	Check(ctx context.Context, input appbilling.QuotaCheckInput) (*billing.QuotaDecision, error)
}

// IncrementFunc reports how many units the request is about to create
type IncrementFunc func(c *gin.Context) int64

// QuotaGate runs the pre-flight quota check for dim before the handler.
// A throttled decision becomes a 429 carrying Retry-After (when known) and
// the current usage. A nil increment means one unit.
func QuotaGate(checker QuotaChecker, dim billing.Dimension, increment IncrementFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ok := GetTenantID(c)
		if !ok {
			abortWithError(c, dto.ErrCodeUnauthorized, "Tenant not resolved")
			return
		}

		in := appbilling.QuotaCheckInput{TenantID: tenantID, Dimension: dim}
		if increment != nil {
			in.Increment = increment(c)
		}

		decision, err := checker.Check(c.Request.Context(), in)
		if err != nil {
			logger.L(c.Request.Context()).Error("Quota check failed",
				zap.String("dimension", dim.String()),
				zap.Error(err),
			)
			abortWithDomainError(c, err)
			return
		}

		if decision.Throttled {
			if secs := decision.RetryAfterSeconds(); secs != nil {
				c.Header("Retry-After", strconv.FormatInt(*secs, 10))
			}
			c.AbortWithStatusJSON(dto.GetHTTPStatus(dto.ErrCodeQuotaExceeded),
				dto.NewQuotaExceededResponse(decision, c.GetString(logger.GinRequestIDKey)))
			return
		}

		c.Set(QuotaDecisionKey, decision)
		c.Next()
	}
}

// abortWithDomainError maps a DomainError code onto the API error envelope
func abortWithDomainError(c *gin.Context, err error) {
	var de *shared.DomainError
	if errors.As(err, &de) {
		abortWithError(c, dto.NormalizeErrorCode(de.Code), de.Message)
		return
	}
	abortWithError(c, dto.ErrCodeInternal, "An internal error occurred")
}
