package server

import (
	"time"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/recurring/internal/observability/logger"
	"go.uber.org/zap"
)

// RequestLogger writes one http.request line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		l := obslogger.WithContext(c.Request.Context(), log)
		switch {
		case status >= 500:
			l.Error("http.request", fields...)
		case status >= 400:
			l.Warn("http.request", fields...)
		default:
			l.Debug("http.request", fields...)
		}
	}
}
