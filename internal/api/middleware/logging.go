package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unitedbyai/droidclaw/internal/logger"
)

// LoggingMiddleware logs one line per HTTP request.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		if raw != "" {
			path = path + "?" + raw
		}

		logger.Infof("[http] %s %s - %d (%v)", c.Request.Method, path, statusCode, latency)
	}
}
