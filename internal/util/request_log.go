package util

import (
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
)

// WithRequestLog emits one access log line per request. Place it inside
// WithRequestID so the line carries the request id.
func WithRequestLog(service string, next http.Handler) http.Handler {
	service = strings.TrimSpace(service)
	if service == "" {
		service = "unknown"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		attrs := []any{
			"service", service,
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration_ms", m.Duration.Milliseconds(),
		}
		logger := LoggerFromContext(r.Context())
		if m.Code >= http.StatusInternalServerError {
			logger.Warn("http_request", attrs...)
			return
		}
		logger.Info("http_request", attrs...)
	})
}
