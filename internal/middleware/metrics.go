// Package middleware provides HTTP middleware for metrics collection.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vmeassist/opsd/internal/metrics"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush passes through so SSE responses still stream when wrapped.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// recordHTTPRequest is swappable for tests.
var recordHTTPRequest = metrics.RecordHTTPRequest

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := normalizeEndpoint(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		recordHTTPRequest(r.Method, endpoint, status, duration)
	})
}

// normalizeEndpoint collapses task ids so the endpoint label stays low
// cardinality.
func normalizeEndpoint(path string) string {
	if !strings.HasPrefix(path, "/ops/tasks/") {
		return path
	}

	rest := strings.TrimPrefix(path, "/ops/tasks/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 2 {
		return "/ops/tasks/:id/" + parts[1]
	}

	return "/ops/tasks/:id"
}
