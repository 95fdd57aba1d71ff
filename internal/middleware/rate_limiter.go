package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/healthbridge/booking-api/internal/handler"
)

// RateLimiterConfig caps request throughput across the API. Enabled gates
// the middleware so local development can switch it off via config.
type RateLimiterConfig struct {
	Enabled bool
	Rate    rate.Limit
	Burst   int
}

type RateLimiter struct {
	limiter *rate.Limiter
	enabled bool
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(config.Rate, config.Burst),
		enabled: config.Enabled,
	}
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.enabled && !rl.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, handler.NewErrorResponse("rate limit exceeded"))
			return
		}
		c.Next()
	}
}
