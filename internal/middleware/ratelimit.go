package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cabdispatch/internal/ratelimit"
)

const retryAfterSecondsHeader = "X-Rate-Limit-Retry-After-Seconds"

// ForwardedIPHeaders are read, in order, only when the peer is a trusted proxy.
var ForwardedIPHeaders = []string{"X-Forwarded-For", "X-Real-IP"}

// RateLimitMiddleware admits each request against the caller's token bucket.
// The caller is gin's ClientIP, so forwarding headers count only when the
// engine trusts the peer that sent them. Rejected requests get 429 with the
// cooldown in Retry-After.
func RateLimitMiddleware(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			c.Next()
			return
		}

		err := limiter.Check(key)
		if err == nil {
			c.Next()
			return
		}

		var exceeded *ratelimit.ExceededError
		if errors.As(err, &exceeded) {
			seconds := strconv.FormatInt(exceeded.RetryAfterSeconds, 10)
			c.Header("Retry-After", seconds)
			c.Header(retryAfterSecondsHeader, seconds)
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	}
}
