package throttle

import (
	"fmt"
	"time"
)

const (
	// DefaultMaxLimit is the server quota in requests per window.
	DefaultMaxLimit = 4500
	// DefaultWindow is the quota window.
	DefaultWindow = time.Hour
	// DefaultDecayConstant is the time constant of the decay curve in seconds.
	DefaultDecayConstant = 4500 * time.Second
	// DefaultInitialEscalationAge is how old a never-happened escalation is
	// assumed to be.
	DefaultInitialEscalationAge = 30 * time.Minute
	// DefaultMinSleepOvertimePercent lets the delay fall to 10% of the
	// computed minimum.
	DefaultMinSleepOvertimePercent = 0.1

	// DefaultAdaptiveMultiplier is the escalation factor of the adaptive and
	// exponential backoff strategies.
	DefaultAdaptiveMultiplier = 2.0
	// DefaultGradualMultiplier is the escalation factor of the two gradual
	// strategies.
	DefaultGradualMultiplier = 1.2
)

// Config holds construction-time settings shared by every strategy.
type Config struct {
	// MaxLimit is the number of requests the server allows per Window.
	MaxLimit int
	// Window is the length of the server quota window.
	Window time.Duration
	// Multiplier is the escalation factor. Zero selects the strategy default.
	Multiplier float64
	// MinSleepOvertimePercent scales the computed minimum delay. Must be in
	// (0, 1].
	MinSleepOvertimePercent float64
	// DecayConstant is the time constant of the adaptive decay curve.
	DecayConstant time.Duration
	// InitialEscalationAge is the assumed age of the last escalation before
	// the first one happens.
	InitialEscalationAge time.Duration
	// LeaderLease lets a follower take over an escalation episode whose
	// leader has not re-entered the retry path within the lease. Zero
	// disables takeover.
	LeaderLease time.Duration
	// MaxRetries bounds consecutive 429s within one Call. Zero retries until
	// the server accepts the request.
	MaxRetries int

	Clock    Clock
	Jitter   JitterFunc
	Observer Observer
}

// DefaultConfig returns the settings of the reference quota (4500 requests
// per hour).
func DefaultConfig() Config {
	return Config{
		MaxLimit:                DefaultMaxLimit,
		Window:                  DefaultWindow,
		MinSleepOvertimePercent: DefaultMinSleepOvertimePercent,
		DecayConstant:           DefaultDecayConstant,
		InitialEscalationAge:    DefaultInitialEscalationAge,
	}
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if c.MaxLimit <= 0 {
		return fmt.Errorf("%w: max limit must be positive, got %d", ErrInvalidConfig, c.MaxLimit)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfig, c.Window)
	}
	if c.Multiplier < 0 || (c.Multiplier > 0 && c.Multiplier <= 1) {
		return fmt.Errorf("%w: multiplier must be greater than 1, got %g", ErrInvalidConfig, c.Multiplier)
	}
	if c.MinSleepOvertimePercent <= 0 || c.MinSleepOvertimePercent > 1 {
		return fmt.Errorf("%w: min sleep overtime percent must be in (0, 1], got %g", ErrInvalidConfig, c.MinSleepOvertimePercent)
	}
	if c.DecayConstant < 0 {
		return fmt.Errorf("%w: decay constant must not be negative", ErrInvalidConfig)
	}
	if c.InitialEscalationAge < 0 {
		return fmt.Errorf("%w: initial escalation age must not be negative", ErrInvalidConfig)
	}
	if c.LeaderLease < 0 {
		return fmt.Errorf("%w: leader lease must not be negative", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidConfig)
	}
	return nil
}

// MinSleep is the delay that spreads MaxLimit requests evenly over Window.
func (c Config) MinSleep() time.Duration {
	return time.Duration(float64(c.Window) / float64(c.MaxLimit))
}

// MinSleepBound returns the lower clamp for the shared delay given the
// server-reported rate multiplier.
func (c Config) MinSleepBound(rateMultiplier float64) time.Duration {
	if rateMultiplier <= 0 {
		rateMultiplier = 1
	}
	perSecond := rateMultiplier * float64(c.MaxLimit) / c.Window.Seconds()
	return seconds(1 / perSecond * c.MinSleepOvertimePercent)
}

// withDefaults fills zero values and picks the strategy multiplier.
func (c Config) withDefaults(multiplier float64) Config {
	if c.MaxLimit == 0 {
		c.MaxLimit = DefaultMaxLimit
	}
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	if c.Multiplier == 0 {
		c.Multiplier = multiplier
	}
	if c.MinSleepOvertimePercent == 0 {
		c.MinSleepOvertimePercent = DefaultMinSleepOvertimePercent
	}
	if c.DecayConstant == 0 {
		c.DecayConstant = DefaultDecayConstant
	}
	if c.Clock == nil {
		c.Clock = RealClock{}
	}
	if c.Jitter == nil {
		c.Jitter = Jitter
	}
	return c
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
