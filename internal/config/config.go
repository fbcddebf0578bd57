package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/namelens/ratethrottle/internal/throttle"
)

// Config represents the complete application configuration.
// Values are layered: built-in defaults, then the user config file
// (~/.config/ratethrottle/config.yaml), then environment variables, then
// runtime overrides.
type Config struct {
	Throttle  ThrottleConfig `mapstructure:"throttle"`
	Demo      DemoConfig     `mapstructure:"demo"`
	Server    ServerConfig   `mapstructure:"server"`
	Store     StoreConfig    `mapstructure:"store"`
	Logging   LoggingConfig  `mapstructure:"logging"`
	Metrics   MetricsConfig  `mapstructure:"metrics"`
	Health    HealthConfig   `mapstructure:"health"`
	TimeScale float64        `mapstructure:"time_scale"`
}

// ThrottleConfig contains client throttle settings.
type ThrottleConfig struct {
	Strategy                string        `mapstructure:"strategy"`
	MaxLimit                int           `mapstructure:"max_limit"`
	Window                  time.Duration `mapstructure:"window"`
	Multiplier              float64       `mapstructure:"multiplier"`
	MinSleepOvertimePercent float64       `mapstructure:"min_sleep_overtime_percent"`
	DecayConstant           time.Duration `mapstructure:"decay_constant"`
	InitialEscalationAge    time.Duration `mapstructure:"initial_escalation_age"`

	// LeaderLease lets another worker take over an escalation episode from a
	// leader that stopped retrying. Zero disables takeover.
	LeaderLease time.Duration `mapstructure:"leader_lease"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// DemoConfig contains the load harness settings.
type DemoConfig struct {
	// Target is the rate-limited endpoint every worker calls.
	Target string `mapstructure:"target"`

	ThreadCount  int `mapstructure:"thread_count"`
	ProcessCount int `mapstructure:"process_count"`

	// RunTime and JSONInterval are measured in simulated time.
	RunTime      time.Duration `mapstructure:"run_time"`
	JSONInterval time.Duration `mapstructure:"json_interval"`
	// ChartInterval is measured in wall time.
	ChartInterval time.Duration `mapstructure:"chart_interval"`

	LogDir         string        `mapstructure:"log_dir"`
	StreamRequests bool          `mapstructure:"stream_requests"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SaveHistory    bool          `mapstructure:"save_history"`
}

// ServerConfig contains the toy rate-limited server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	Quota QuotaConfig `mapstructure:"quota"`
}

// QuotaConfig describes the server side token bucket.
type QuotaConfig struct {
	MaxLimit int           `mapstructure:"max_limit"`
	Window   time.Duration `mapstructure:"window"`
	// Multiplier is advertised through RateLimit-Multiplier and scales the
	// bucket refill rate.
	Multiplier float64 `mapstructure:"multiplier"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Validate checks cross-field constraints that decoding cannot express.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := throttle.ParseStrategy(c.Throttle.Strategy); err != nil {
		return err
	}
	if err := c.Throttle.ToThrottle().Validate(); err != nil {
		return err
	}
	if c.TimeScale <= 0 {
		return fmt.Errorf("time_scale must be positive, got %g", c.TimeScale)
	}
	if c.Demo.ThreadCount <= 0 {
		return fmt.Errorf("demo.thread_count must be positive, got %d", c.Demo.ThreadCount)
	}
	if c.Demo.ProcessCount <= 0 {
		return fmt.Errorf("demo.process_count must be positive, got %d", c.Demo.ProcessCount)
	}
	if c.Demo.RunTime <= 0 {
		return fmt.Errorf("demo.run_time must be positive, got %s", c.Demo.RunTime)
	}
	if strings.TrimSpace(c.Demo.Target) == "" {
		return fmt.Errorf("demo.target is required")
	}
	if c.Server.Quota.MaxLimit <= 0 {
		return fmt.Errorf("server.quota.max_limit must be positive, got %d", c.Server.Quota.MaxLimit)
	}
	if c.Server.Quota.Window <= 0 {
		return fmt.Errorf("server.quota.window must be positive, got %s", c.Server.Quota.Window)
	}
	return nil
}

// ToThrottle maps the config section onto throttle.Config. Clock, jitter
// and observer are wired by the caller.
func (t ThrottleConfig) ToThrottle() throttle.Config {
	cfg := throttle.DefaultConfig()
	if t.MaxLimit != 0 {
		cfg.MaxLimit = t.MaxLimit
	}
	if t.Window != 0 {
		cfg.Window = t.Window
	}
	if t.MinSleepOvertimePercent != 0 {
		cfg.MinSleepOvertimePercent = t.MinSleepOvertimePercent
	}
	if t.DecayConstant != 0 {
		cfg.DecayConstant = t.DecayConstant
	}
	if t.InitialEscalationAge != 0 {
		cfg.InitialEscalationAge = t.InitialEscalationAge
	}
	cfg.Multiplier = t.Multiplier
	cfg.LeaderLease = t.LeaderLease
	cfg.MaxRetries = t.MaxRetries
	return cfg
}

// StrategyName returns the parsed throttle strategy, falling back to the
// adaptive strategy for invalid input. Validate reports invalid names.
func (t ThrottleConfig) StrategyName() throttle.Strategy {
	s, err := throttle.ParseStrategy(t.Strategy)
	if err != nil {
		return throttle.StrategyAdaptive
	}
	return s
}
