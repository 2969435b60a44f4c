package middleware

import (
	"time"

	"github.com/bhhunter/rental-backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestLogger writes one structured line per request
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"request_id": GetRequestID(c),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"ip":         utils.ClientIP(c),
		})
		if userCtx, ok := GetUserContext(c); ok {
			entry = entry.WithFields(logrus.Fields{"user_id": userCtx.UserID, "role": userCtx.Role})
		}
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			entry.Error("[HTTP] request failed")
		case status >= 400:
			entry.Warn("[HTTP] request rejected")
		default:
			entry.Info("[HTTP] request")
		}
	}
}
