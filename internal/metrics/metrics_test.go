package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namelens/ratethrottle/internal/observability"
	"github.com/namelens/ratethrottle/internal/throttle"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{
		Enabled: true,
		Emitter: collector,
	})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() {
		observability.TelemetrySystem = original
	})
	return collector
}

func TestThrottleObserverEmitsAttemptAndGauges(t *testing.T) {
	collector := setupTelemetry(t)

	observer := ThrottleObserver(throttle.StrategyAdaptive)
	observer(&throttle.Response{StatusCode: http.StatusTooManyRequests}, throttle.Info{
		SleepFor:       3200 * time.Millisecond,
		MinSleepBound:  80 * time.Millisecond,
		RateLimitCount: 2,
	})

	assert.Equal(t, 1, collector.CountMetricsByName(ThrottleAttemptsTotal))
	assert.Equal(t, 1, collector.CountMetricsByName(ThrottleSleepSeconds))
	assert.Equal(t, 1, collector.CountMetricsByName(ThrottleRateLimitCount))
	assert.Equal(t, 1, collector.CountMetricsByName(ThrottleMinSleepSeconds))
}

func TestThrottleObserverOtherStrategies(t *testing.T) {
	for _, strategy := range []throttle.Strategy{
		throttle.StrategyExponentialBackoff,
		throttle.StrategyGradualDecrease,
		throttle.StrategyRemainingDecrease,
	} {
		t.Run(string(strategy), func(t *testing.T) {
			collector := setupTelemetry(t)

			observer := ThrottleObserver(strategy)
			observer(&throttle.Response{StatusCode: http.StatusTooManyRequests}, throttle.Info{RateLimitCount: 3})

			assert.Equal(t, 1, collector.CountMetricsByName(ThrottleAttemptsTotal))
			assert.Equal(t, 1, collector.CountMetricsByName(ThrottleRateLimitCount))
			assert.Equal(t, 0, collector.CountMetricsByName(ThrottleMinSleepSeconds))
		})
	}
}

func TestRecordQuotaDecision(t *testing.T) {
	collector := setupTelemetry(t)

	RecordQuotaDecision(true, 10)
	RecordQuotaDecision(false, 0)

	assert.Equal(t, 2, collector.CountMetricsByName(QuotaDecisionsTotal))
	assert.Equal(t, 2, collector.CountMetricsByName(QuotaRemaining))
}

func TestRecordersAreNoopsWithoutTelemetry(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = original })

	assert.NotPanics(t, func() {
		RecordAttempt(throttle.StrategyAdaptive, http.StatusOK)
		RecordQuotaDecision(false, 0)
		RecordRun(throttle.StrategyAdaptive, true)
		SetActiveWorkers(3)
		RecordError("RATE_LIMITED", http.StatusTooManyRequests)
		RecordPanic()
		ThrottleObserver(throttle.StrategyAdaptive)(&throttle.Response{StatusCode: 200}, throttle.Info{})
	})
}

func TestErrorMetrics(t *testing.T) {
	collector := setupTelemetry(t)

	RecordError("RATE_LIMITED", http.StatusTooManyRequests)
	RecordErrorByEndpoint("/", "RATE_LIMITED")
	RecordPanic()

	assert.Equal(t, 1, collector.CountMetricsByName(ErrorsTotalName))
	assert.Equal(t, 1, collector.CountMetricsByName(ErrorsByEndpointName))
	assert.Equal(t, 1, collector.CountMetricsByName(PanicsTotalName))
}
