package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contacts-api/internal/service"
)

// RateLimitMiddleware aplica el rate limiter por IP y endpoint antes de que
// corra cualquier lógica de autenticación.
func RateLimitMiddleware(limiter service.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := c.ClientIP() + ":" + c.FullPath()
		if !limiter.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "No more than 10 requests per minute"})
			c.Abort()
			return
		}
		c.Next()
	}
}
