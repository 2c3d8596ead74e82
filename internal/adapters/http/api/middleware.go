package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/okian/tnvs/pkg/logger"
	"github.com/okian/tnvs/pkg/metrics"
)

// MetricsMiddleware records request count, latency and error class per route.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := c.Writer.Status()
		durationMs := float64(time.Since(start).Microseconds()) / 1000
		statusCode := strconv.Itoa(status)

		metrics.RecordHTTPRequest(endpoint, c.Request.Method, statusCode)
		metrics.RecordHTTPRequestDuration(endpoint, c.Request.Method, statusCode, durationMs)
		if status >= http.StatusBadRequest {
			metrics.RecordErrorByComponent("http", errorType(status))
		}
	}
}

// errorType returns a standardized error type based on HTTP status code.
func errorType(statusCode int) string {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return "server_error"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limit"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode >= http.StatusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// Recovery turns a handler panic into a 500 and logs it.
func Recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(c.Request.Context(), "handler panic",
					logger.String("path", c.Request.URL.Path),
					logger.Any("panic", r))
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					errorResponse{Code: "internal", Message: "internal error"})
			}
		}()
		c.Next()
	}
}
