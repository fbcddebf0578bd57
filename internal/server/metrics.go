package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	apperrors "github.com/namelens/ratethrottle/internal/errors"
	"github.com/namelens/ratethrottle/internal/observability"
)

var metricsProxyClient = &http.Client{
	Timeout: 5 * time.Second,
}

var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// MetricsHandler proxies Prometheus metrics from the internal exporter so callers
// can scrape /metrics on the main HTTP server.
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	exporter := observability.PrometheusExporter
	if exporter == nil {
		HandleError(w, r, apperrors.NewUnavailableError("Metrics exporter not initialized"))
		return
	}

	// Get metrics URL using the actual port the exporter is listening on
	metricsPort := observability.GetMetricsPort()
	if metricsPort == 0 {
		// Fallback: try viper config or default port
		metricsPort = viper.GetInt("metrics.port")
		if metricsPort == 0 {
			metricsPort = 9090
		}
	}
	metricsURL := fmt.Sprintf("http://127.0.0.1:%d/metrics", metricsPort)
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, metricsURL, nil)
	if err != nil {
		HandleError(w, r, apperrors.WrapInternal(r.Context(), err, "Unable to construct metrics request"))
		return
	}

	// Preserve caller hint for content negotiation
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := metricsProxyClient.Do(req)
	if err != nil {
		HandleError(w, r, apperrors.WrapExternalService(r.Context(), err, "Prometheus exporter unavailable at "+metricsURL))
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil && observability.ServerLogger != nil {
			observability.ServerLogger.Warn("Failed to close metrics response body",
				zap.Error(err))
		}
	}()

	for key, values := range resp.Header {
		if _, skip := hopByHopHeaders[http.CanonicalHeaderKey(key)]; skip {
			continue
		}

		for _, v := range values {
			w.Header().Add(key, v)
		}
	}

	// Ensure we always advertise Prometheus content type
	if resp.Header.Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Failed to write metrics response",
			zap.Error(err))
	}
}
