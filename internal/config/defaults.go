package config

import (
	"github.com/spf13/viper"
)

// SetDefaults registers the built-in configuration layer on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("time_scale", 1.0)

	// Throttle defaults (4500 requests per hour)
	v.SetDefault("throttle.strategy", "adaptive")
	v.SetDefault("throttle.max_limit", 4500)
	v.SetDefault("throttle.window", "1h")
	v.SetDefault("throttle.multiplier", 0.0)
	v.SetDefault("throttle.min_sleep_overtime_percent", 0.1)
	v.SetDefault("throttle.decay_constant", "4500s")
	v.SetDefault("throttle.initial_escalation_age", "30m")
	v.SetDefault("throttle.leader_lease", "0s")
	v.SetDefault("throttle.max_retries", 0)

	// Demo harness defaults
	v.SetDefault("demo.target", "http://localhost:9292")
	v.SetDefault("demo.thread_count", 5)
	v.SetDefault("demo.process_count", 2)
	v.SetDefault("demo.run_time", "10s")
	v.SetDefault("demo.json_interval", "30s")
	v.SetDefault("demo.chart_interval", "1s")
	v.SetDefault("demo.log_dir", "")
	v.SetDefault("demo.stream_requests", false)
	v.SetDefault("demo.request_timeout", "30s")
	v.SetDefault("demo.save_history", true)

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 9292)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.quota.max_limit", 4500)
	v.SetDefault("server.quota.window", "1h")
	v.SetDefault("server.quota.multiplier", 1.0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)
}
