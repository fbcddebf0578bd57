package observability

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

var (
	// TelemetrySystem is the global telemetry system
	TelemetrySystem *telemetry.System

	// PrometheusExporter is the prometheus metrics exporter
	PrometheusExporter *exporters.PrometheusExporter

	// metricsPort stores the port the Prometheus exporter is listening on
	metricsPort int
)

// InitMetrics initializes the telemetry system with Prometheus exporter.
// The exporter listens on the provided port (use 0 for random assignment).
func InitMetrics(serviceName string, port int, namespace ...string) error {
	requestedPort := port
	if requestedPort < 0 {
		requestedPort = 0
	}
	metricsPort = requestedPort

	metricNamespace := serviceName
	if len(namespace) > 0 && namespace[0] != "" {
		metricNamespace = namespace[0]
	}

	PrometheusExporter = exporters.NewPrometheusExporter(metricNamespace, fmt.Sprintf(":%d", requestedPort))
	if err := PrometheusExporter.Start(); err != nil {
		return err
	}

	if actualPort, err := resolvePort(PrometheusExporter.GetAddr()); err == nil {
		metricsPort = actualPort
	} else if requestedPort == 0 {
		metricsPort = 9090
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{
		Enabled: true,
		Emitter: PrometheusExporter,
	})
	if err != nil {
		return err
	}
	TelemetrySystem = sys

	return nil
}

// DisableGlobalTelemetry keeps library code from emitting metrics to stdout
// before InitMetrics runs.
func DisableGlobalTelemetry() {
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}
}

// GetMetricsPort returns the port the Prometheus exporter is listening on
func GetMetricsPort() int {
	return metricsPort
}

func resolvePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
