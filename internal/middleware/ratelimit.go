package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/taskboard/internal/cache"
	"github.com/charlesng35/taskboard/pkg/errors"
	"github.com/charlesng35/taskboard/pkg/logger"
	"github.com/charlesng35/taskboard/pkg/response"
)

const rateLimitKeyPrefix = "ratelimit"

// RateLimit limits requests per (client IP, route) to maxRequests within a fixed window.
// Counters live in store so every instance sharing the store shares the budget.
// A failing store lets the request through.
func RateLimit(store cache.Store, maxRequests int, window time.Duration) gin.HandlerFunc {
	log := logger.WithModule("http")

	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := rateLimitKeyPrefix + ":" + c.ClientIP() + ":" + route

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		count, ttl, err := store.IncrementWithTTL(ctx, key, window)
		cancel()
		if err != nil {
			log.Warn("rate limit store unavailable", zap.String("route", route), zap.Error(err))
			c.Next()
			return
		}

		remaining := int64(maxRequests) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(ttl.Round(time.Second).Seconds())))

		if count > int64(maxRequests) {
			c.Header("Retry-After", strconv.Itoa(max(1, int(ttl.Round(time.Second).Seconds()))))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
