package metrics

import (
	"strconv"
	"time"

	"github.com/namelens/ratethrottle/internal/observability"
	"github.com/namelens/ratethrottle/internal/throttle"
)

// Metric names follow Prometheus conventions.
const (
	ThrottleAttemptsTotal   = "throttle_attempts_total"
	ThrottleSleepSeconds    = "throttle_sleep_seconds"
	ThrottleRateLimitCount  = "throttle_rate_limit_count"
	ThrottleMinSleepSeconds = "throttle_min_sleep_bound_seconds"

	QuotaDecisionsTotal = "quota_decisions_total"
	QuotaRemaining      = "quota_remaining_tokens"

	DemoWorkersActive = "demo_workers_active"
	DemoRunsTotal     = "demo_runs_total"

	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordAttempt counts one request issued through a throttle.
func RecordAttempt(strategy throttle.Strategy, statusCode int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		ThrottleAttemptsTotal,
		1,
		map[string]string{
			"strategy": string(strategy),
			"status":   strconv.Itoa(statusCode),
		},
	)
}

// SetSleepFor publishes the current sleep value of a throttle.
func SetSleepFor(strategy throttle.Strategy, sleep time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(
		ThrottleSleepSeconds,
		sleep.Seconds(),
		map[string]string{"strategy": string(strategy)},
	)
}

// SetRateLimitCount publishes how many times a throttle escalated.
func SetRateLimitCount(strategy throttle.Strategy, count int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(
		ThrottleRateLimitCount,
		float64(count),
		map[string]string{"strategy": string(strategy)},
	)
}

// ThrottleObserver feeds every attempt into the throttle metrics. Combine it
// with a logging observer through throttle.ChainObservers.
func ThrottleObserver(strategy throttle.Strategy) throttle.Observer {
	return func(resp *throttle.Response, info throttle.Info) {
		RecordAttempt(strategy, resp.StatusCode)
		SetSleepFor(strategy, info.SleepFor)
		SetRateLimitCount(strategy, info.RateLimitCount)
		if strategy != throttle.StrategyAdaptive {
			return
		}
		if observability.TelemetrySystem != nil {
			_ = observability.TelemetrySystem.Gauge(
				ThrottleMinSleepSeconds,
				info.MinSleepBound.Seconds(),
				map[string]string{"strategy": string(strategy)},
			)
		}
	}
}

// RecordQuotaDecision records a server side allow/deny decision along with
// the tokens left in the bucket.
func RecordQuotaDecision(allowed bool, remaining int) {
	if observability.TelemetrySystem == nil {
		return
	}
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	_ = observability.TelemetrySystem.Counter(
		QuotaDecisionsTotal,
		1,
		map[string]string{"decision": decision},
	)
	_ = observability.TelemetrySystem.Gauge(QuotaRemaining, float64(remaining), nil)
}

// SetActiveWorkers sets the number of demo workers currently running.
func SetActiveWorkers(count int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(DemoWorkersActive, float64(count), nil)
}

// RecordRun counts a finished demo run.
func RecordRun(strategy throttle.Strategy, success bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	_ = observability.TelemetrySystem.Counter(
		DemoRunsTotal,
		1,
		map[string]string{
			"strategy": string(strategy),
			"status":   status,
		},
	)
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = observability.TelemetrySystem.Counter(
		HealthCheckTotal,
		1,
		map[string]string{
			"check":  checkName,
			"status": status,
		},
	)
	_ = observability.TelemetrySystem.Histogram(
		HealthCheckDuration,
		duration,
		map[string]string{"check": checkName},
	)
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerUptime, float64(seconds), nil)
	}
}
