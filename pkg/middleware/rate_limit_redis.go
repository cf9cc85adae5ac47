package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/coderev/coderev/backend/go-services/pkg/logger"
	"github.com/coderev/coderev/backend/go-services/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimitMiddleware is a fixed-window limiter shared by every
// instance behind the same Redis. Each key may make rps*window+burst
// requests per window. A nil client falls back to RateLimitMiddleware.
func RedisRateLimitMiddleware(client *redis.Client, rps float64, burst int, window time.Duration) gin.HandlerFunc {
	if client == nil {
		return RateLimitMiddleware(rps, burst)
	}
	seconds := int64(window.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	allowed := int64(rps*float64(seconds)) + int64(burst)
	retryAfter := strconv.FormatInt(seconds, 10)

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		bucket := fmt.Sprintf("rl:%s:%d", limiterKey(c), time.Now().Unix()/seconds)

		var incr *redis.IntCmd
		_, err := client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			incr = p.Incr(ctx, bucket)
			p.Expire(ctx, bucket, time.Duration(seconds+1)*time.Second)
			return nil
		})
		if err != nil {
			logger.Errorf("rate limit check for %s: %v", bucket, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Rate limit check failed"})
			return
		}
		if incr.Val() > allowed {
			reject(c, "redis", retryAfter)
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
		c.Next()
	}
}
