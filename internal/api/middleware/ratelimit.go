package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// NewRateLimiter creates a Gin middleware for rate limiting.
// requests is the number of requests allowed per period.
// period is a duration string (e.g., "1m", "1h", "24h").
// Limits are tracked per client IP.
func NewRateLimiter(requests int64, period string) (gin.HandlerFunc, error) {
	duration, err := time.ParseDuration(period)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit period %q: %w", period, err)
	}
	if requests <= 0 {
		return nil, fmt.Errorf("invalid rate limit requests %d: must be positive", requests)
	}

	rate := limiter.Rate{
		Period: duration,
		Limit:  requests,
	}

	store := memory.NewStore()
	instance := limiter.New(store, rate)

	middleware := mgin.NewMiddleware(instance,
		mgin.WithKeyGetter(func(c *gin.Context) string {
			return c.ClientIP()
		}),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		}),
	)
	return middleware, nil
}
