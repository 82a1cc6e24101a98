package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/luvhive/luvhive-backend/pkg/logger"
	"github.com/luvhive/luvhive-backend/pkg/ratelimit"
)

// RateLimitConfig holds rate limit configuration
type RateLimitConfig struct {
	Limiter ratelimit.Limiter
	Limit   int64                     // X-RateLimit-Limit 헤더 값
	Name    string                    // 키 접두사 (라우트 그룹 구분)
	KeyFunc func(*gin.Context) string // 비어 있으면 UserKeyFunc
}

// UserKeyFunc uses only user ID (requires authentication)
func UserKeyFunc(c *gin.Context) string {
	if userID, ok := UserID(c); ok {
		return fmt.Sprintf("user:%d", userID)
	}
	return ""
}

// RateLimit 요청 제한 미들웨어. 저장소 오류 시에는 요청을 통과시킨다 (fail-open).
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = UserKeyFunc
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required for rate limiting",
			})
			c.Abort()
			return
		}
		if config.Name != "" {
			key = config.Name + ":" + key
		}

		allowed, err := config.Limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("Rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(config.Limit, 10))
		if !allowed {
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "Too many requests, slow down",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
