package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RateLimit 基于 Redis 计数器的固定窗口限流。
// 已认证的请求按用户计数，否则按客户端 IP。渲染接口 CPU 开销大，只挂在 /api/compute 下。
func RateLimit(redisClient *redis.Client, scope string, maxRequests int, window time.Duration) gin.HandlerFunc {
	if redisClient == nil {
		panic("Redis client cannot be nil for RateLimit middleware")
	}
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	return func(c *gin.Context) {
		key := rateLimitKey(c, scope)
		ctx := c.Request.Context()

		// INCR 和 EXPIRE 放在同一个 Pipeline
		pipe := redisClient.Pipeline()
		incrCmd := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, window)
		if _, err := pipe.Exec(ctx); err != nil {
			logrus.WithError(err).Error("RateLimit: Redis Pipeline failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Rate limiting error"})
			c.Abort()
			return
		}
		count := incrCmd.Val()

		remaining := int64(maxRequests) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(maxRequests) {
			logrus.WithField("key", key).Warn("RateLimit: limit exceeded")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func rateLimitKey(c *gin.Context, scope string) string {
	if userID, ok := c.Get(ContextUserID); ok {
		return fmt.Sprintf("ratelimit:%s:user:%v", scope, userID)
	}
	return fmt.Sprintf("ratelimit:%s:ip:%s", scope, c.ClientIP())
}
