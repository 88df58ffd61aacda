package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/joy095/dispatch/logger"
)

// RequestLogger logs one line per request through the application loggers.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logger.InfoLogger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   status,
			"latency":  time.Since(start).String(),
			"clientIp": c.ClientIP(),
		})
		switch {
		case status >= 500:
			logger.ErrorLogger.WithFields(entry.Data).Error("request failed")
		case status >= 400:
			logger.WarnLogger.WithFields(entry.Data).Warn("request rejected")
		default:
			entry.Info("request")
		}
	}
}
