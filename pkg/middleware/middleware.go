// Package middleware carries the gin middleware for the relay's ops
// server.
package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tgrelay/internal/logger"
	apperrors "tgrelay/pkg/errors"
)

// RequestLogger logs one line per request. Probe and scrape endpoints log
// at debug so a short Prometheus interval does not flood the output.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			fields = append(fields, "error", errs)
		}

		switch {
		case status >= http.StatusInternalServerError:
			log.Errorw("HTTP request", fields...)
		case c.Request.URL.Path == "/metrics" || c.Request.URL.Path == "/health":
			log.Debugw("HTTP request", fields...)
		default:
			log.Infow("HTTP request", fields...)
		}
	}
}

// Recovery converts a handler panic into a 500 response and logs the
// stack captured at the panic site.
func Recovery(log logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		err := apperrors.RecoverPanic(recovered)

		fields := []interface{}{
			"error", err,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		}
		var panicErr *apperrors.PanicError
		if errors.As(err, &panicErr) {
			fields = append(fields, "stack", panicErr.Stack)
		}
		log.Errorw("Panic recovered", fields...)

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "internal server error",
		})
	})
}
