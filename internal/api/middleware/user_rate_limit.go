package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tradepilot/pilot_service/pkg/logger"
	"github.com/tradepilot/pilot_service/pkg/ratelimit"
)

// Limiter checks a request against shared rate limit tiers
type Limiter interface {
	Check(ctx context.Context, ip, userID, endpoint string) (*ratelimit.CheckResult, error)
}

// UserRateLimit limits authenticated users across replicas, keyed by route pattern.
// It runs after Authentication and lets requests through when the limiter store fails.
func UserRateLimit(limiter Limiter, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID string
		if v, ok := c.Get("user_id"); ok {
			userID = fmt.Sprint(v)
		}

		result, err := limiter.Check(c.Request.Context(), c.ClientIP(), userID, c.FullPath())
		if err != nil {
			log.Warn("Rate limiter unavailable", "error", err, "request_id", c.GetString("request_id"))
			c.Next()
			return
		}
		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			log.Debug("Request rate limited", "user_id", userID, "tier", result.LimitedBy)
			abort(c, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded")
			return
		}
		c.Next()
	}
}
