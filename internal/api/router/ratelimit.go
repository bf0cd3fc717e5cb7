package router

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles requests per client IP using a fixed window
// counter in Redis.
type RateLimiter struct {
	client   *redis.Client
	logger   *slog.Logger
	requests int
	window   time.Duration
}

// NewRateLimiter creates a limiter allowing requests per window per client.
func NewRateLimiter(client *redis.Client, requests int, window time.Duration, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		client:   client,
		logger:   logger,
		requests: requests,
		window:   window,
	}
}

// Middleware returns the gin middleware enforcing the limit. Redis
// failures let requests through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:%s", c.ClientIP())
		ctx := c.Request.Context()

		count, err := rl.client.Incr(ctx, key).Result()
		if err != nil {
			rl.logger.Warn("Rate limiter unavailable, allowing request",
				slog.String("error", err.Error()),
			)
			c.Next()
			return
		}

		if count == 1 {
			if err := rl.client.Expire(ctx, key, rl.window).Err(); err != nil {
				rl.logger.Warn("Failed to set rate limit window",
					slog.String("error", err.Error()),
				)
			}
		}

		if count > int64(rl.requests) {
			c.Header("Retry-After", fmt.Sprintf("%d", int(rl.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests",
			})
			return
		}

		c.Next()
	}
}
