package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger returns a zap request-logging middleware. The resolved user id is
// logged when the session middleware ran first, which ties request lines to
// the audit trail.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
		}
		if sess := SessionFrom(c); !sess.Anonymous() {
			fields = append(fields, zap.String("user_id", sess.UserID))
		}
		logger.Info("request", fields...)
	}
}
