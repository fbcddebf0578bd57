package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/namelens/ratethrottle/internal/observability"
)

// statusRecorder captures the status code and body size written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// getEndpointPattern keeps the endpoint label low-cardinality.
func getEndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	switch r.URL.Path {
	case "/health", "/health/live", "/health/ready", "/health/startup":
		return "/health/*"
	case "/version":
		return "/version"
	case "/metrics":
		return "/metrics"
	case "/":
		return "/"
	default:
		return "/unknown"
	}
}

func errorType(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500:
		return "server_error"
	default:
		return "client_error"
	}
}

// RequestMetrics emits per-request counters, durations and sizes.
// Throttled responses are the normal case for the quota endpoint, so they are
// logged at debug level to keep demo runs readable.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.TelemetrySystem == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		requestSize := r.ContentLength
		if requestSize < 0 {
			requestSize = 0
		}
		if header := r.Header.Get("Content-Length"); header != "" {
			if size, err := strconv.ParseInt(header, 10, 64); err == nil {
				requestSize = size
			}
		}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start)
		endpoint := getEndpointPattern(r)
		status := strconv.Itoa(recorder.statusCode)
		telemetry := observability.TelemetrySystem

		labels := map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
			"status":   status,
		}
		_ = telemetry.Counter("http_requests_total", 1, labels)
		_ = telemetry.Histogram("http_request_duration_ms", duration, labels)

		sizeLabels := map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
		}
		_ = telemetry.Gauge("http_request_size_bytes", float64(requestSize), sizeLabels)
		_ = telemetry.Gauge("http_response_size_bytes", float64(recorder.bytesWritten), sizeLabels)

		if recorder.statusCode >= 400 {
			_ = telemetry.Counter("http_errors_total", 1, map[string]string{
				"method":     r.Method,
				"endpoint":   endpoint,
				"status":     status,
				"error_type": errorType(recorder.statusCode),
			})
		}

		logger := observability.ServerLogger
		if logger == nil {
			return
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("endpoint", endpoint),
			zap.Int("status", recorder.statusCode),
			zap.Duration("duration", duration),
			zap.Int64("request_size", requestSize),
			zap.Int64("response_size", recorder.bytesWritten),
			zap.String("requestID", GetRequestID(r.Context())),
		}
		if recorder.statusCode == http.StatusTooManyRequests {
			logger.Debug("HTTP request throttled", fields...)
			return
		}
		logger.Info("HTTP request completed", fields...)
	})
}
