package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware instruments HTTP handlers with request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

// normalizePath keeps metric label cardinality bounded: every known route
// maps to itself, everything else collapses to "other".
func normalizePath(path string) string {
	switch path {
	case "/",
		"/health",
		"/metrics",
		"/api/config",
		"/api/upload",
		"/api/upload/chunked/init",
		"/api/upload/chunked/chunk",
		"/api/upload/chunked/complete":
		return path
	}
	if strings.HasPrefix(path, "/api/upload/chunked/status") {
		return "/api/upload/chunked/status"
	}
	return "other"
}
