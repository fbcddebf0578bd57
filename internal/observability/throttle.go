package observability

import (
	"math"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/namelens/ratethrottle/internal/throttle"
)

// ThrottleObserver logs every attempt made through a throttle. Rate limited
// responses are logged at INFO, everything else at DEBUG. source names the
// throttle, not the calling worker. A nil logger yields a nil observer.
func ThrottleObserver(logger *logging.Logger, source string, clock throttle.Clock) throttle.Observer {
	if logger == nil {
		return nil
	}
	if clock == nil {
		clock = throttle.RealClock{}
	}
	pid := os.Getpid()

	return func(resp *throttle.Response, info throttle.Info) {
		fields := attemptFields(pid, source, resp, info, clock.Now())
		if throttle.IsRateLimited(resp) {
			logger.Info("Rate limited", fields...)
			return
		}
		logger.Debug("Request completed", fields...)
	}
}

func attemptFields(pid int, source string, resp *throttle.Response, info throttle.Info, now time.Time) []zap.Field {
	fields := []zap.Field{
		zap.Int("pid", pid),
		zap.String("source", source),
		zap.Int("status", resp.StatusCode),
		zap.Int("remaining", resp.Remaining),
		zap.Int("rate_limit_count", info.RateLimitCount),
		zap.Float64("sleep_for", info.SleepFor.Seconds()),
	}
	if info.Escalated() {
		since := now.Sub(info.LastEscalationAt)
		fields = append(fields, zap.Float64("seconds_since_escalation", math.Ceil(since.Seconds())))
	}
	if info.Leader != "" {
		fields = append(fields, zap.String("leader", string(info.Leader)))
	}
	return fields
}

// LogThrottleSnapshot writes the throttle metrics surface once. Used when a
// run finishes.
func LogThrottleSnapshot(logger *logging.Logger, strategy throttle.Strategy, info throttle.Info) {
	if logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("strategy", string(strategy)),
		zap.Duration("sleep_for", info.SleepFor),
		zap.Int("rate_limit_count", info.RateLimitCount),
	}
	if info.Escalated() {
		fields = append(fields, zap.Time("last_escalation_at", info.LastEscalationAt.UTC().Truncate(time.Millisecond)))
	}
	logger.Info("Throttle state", fields...)
}
