package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"go.uber.org/zap"

	"github.com/griothouse/storymarket/internal/adapter"
	"github.com/griothouse/storymarket/internal/logger"
)

// RateLimitConfig holds the limit applied per client IP
type RateLimitConfig struct {
	Requests int
	Period   time.Duration
}

// RateLimit returns a gin middleware enforcing a per-IP request budget via
// Redis. A nil limiter disables enforcement, and limiter errors fail open so
// a Redis outage never blocks uploads.
func RateLimit(limiter adapter.RedisRateLimiter, cfg RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || cfg.Requests <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("ratelimit:upload:%s", c.ClientIP())
		limit := redis_rate.Limit{
			Rate:   cfg.Requests,
			Burst:  cfg.Requests,
			Period: cfg.Period,
		}

		res, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			logger.Error(err, zap.String("message", "rate limiter check failed"),
				zap.String("client_ip", c.ClientIP()))
			c.Next()
			return
		}

		if res.Allowed == 0 {
			c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter/time.Second)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "rate_limited",
					"message": "Too many requests",
				},
			})
			return
		}

		c.Next()
	}
}
