// Package config provides centralized configuration management for
// ratethrottle. It layers built-in defaults, the user config file,
// environment variables and runtime overrides, then decodes the result into
// a typed Config.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the config, data and cache directories.
	AppName = "ratethrottle"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "RATETHROTTLE_"
)

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid configuration")

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// Load builds the effective configuration from v (defaults, config file and
// bound flags), environment variables and runtime overrides, in increasing
// precedence. A nil v is replaced by one carrying only the defaults.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, v *viper.Viper, runtimeOverrides ...map[string]any) (*Config, error) {
	if v == nil {
		v = viper.New()
		SetDefaults(v)
	}
	merged := v.AllSettings()

	// Unprefixed names from the original harness apply first so the
	// prefixed variables can override them.
	legacy, err := loadLegacyEnvOverrides()
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	allOverrides := []map[string]any{legacy, envOverrides}
	allOverrides = append(allOverrides, runtimeOverrides...)
	for _, overrides := range allOverrides {
		mergeMaps(merged, overrides)
	}

	cfg, err := Decode(merged)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	setConfig(cfg)
	return cfg, nil
}

// Decode converts a nested settings map into a Config.
func Decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	prefix := EnvPrefix

	return []EnvVarSpec{
		{Name: prefix + "TIME_SCALE", Path: []string{"time_scale"}, Type: EnvString},

		// Throttle config
		// Duration and float fields are parsed as strings and converted by mapstructure decode hooks
		{Name: prefix + "STRATEGY", Path: []string{"throttle", "strategy"}, Type: EnvString},
		{Name: prefix + "MAX_LIMIT", Path: []string{"throttle", "max_limit"}, Type: EnvInt},
		{Name: prefix + "WINDOW", Path: []string{"throttle", "window"}, Type: EnvString},
		{Name: prefix + "MULTIPLIER", Path: []string{"throttle", "multiplier"}, Type: EnvString},
		{Name: prefix + "MIN_SLEEP_OVERTIME_PERCENT", Path: []string{"throttle", "min_sleep_overtime_percent"}, Type: EnvString},
		{Name: prefix + "DECAY_CONSTANT", Path: []string{"throttle", "decay_constant"}, Type: EnvString},
		{Name: prefix + "LEADER_LEASE", Path: []string{"throttle", "leader_lease"}, Type: EnvString},
		{Name: prefix + "MAX_RETRIES", Path: []string{"throttle", "max_retries"}, Type: EnvInt},

		// Demo harness config
		{Name: prefix + "TARGET", Path: []string{"demo", "target"}, Type: EnvString},
		{Name: prefix + "THREAD_COUNT", Path: []string{"demo", "thread_count"}, Type: EnvInt},
		{Name: prefix + "PROCESS_COUNT", Path: []string{"demo", "process_count"}, Type: EnvInt},
		{Name: prefix + "RUN_TIME", Path: []string{"demo", "run_time"}, Type: EnvString},
		{Name: prefix + "JSON_INTERVAL", Path: []string{"demo", "json_interval"}, Type: EnvString},
		{Name: prefix + "CHART_INTERVAL", Path: []string{"demo", "chart_interval"}, Type: EnvString},
		{Name: prefix + "LOG_DIR", Path: []string{"demo", "log_dir"}, Type: EnvString},
		{Name: prefix + "STREAM_REQUESTS", Path: []string{"demo", "stream_requests"}, Type: EnvBool},
		{Name: prefix + "SAVE_HISTORY", Path: []string{"demo", "save_history"}, Type: EnvBool},

		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},
		{Name: prefix + "QUOTA_MAX_LIMIT", Path: []string{"server", "quota", "max_limit"}, Type: EnvInt},
		{Name: prefix + "QUOTA_WINDOW", Path: []string{"server", "quota", "window"}, Type: EnvString},
		{Name: prefix + "QUOTA_MULTIPLIER", Path: []string{"server", "quota", "multiplier"}, Type: EnvString},

		// Logging config
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},
	}
}

// loadLegacyEnvOverrides reads THREAD_COUNT, PROCESS_COUNT, RUN_TIME and
// TIME_SCALE. RUN_TIME may be a bare number of seconds.
func loadLegacyEnvOverrides() (map[string]any, error) {
	overrides := map[string]any{}

	for _, item := range []struct {
		name string
		key  string
	}{
		{"THREAD_COUNT", "thread_count"},
		{"PROCESS_COUNT", "process_count"},
	} {
		value := strings.TrimSpace(os.Getenv(item.name))
		if value == "" {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", item.name, err)
		}
		ensureMap(overrides, "demo")[item.key] = n
	}

	if value := strings.TrimSpace(os.Getenv("RUN_TIME")); value != "" {
		ensureMap(overrides, "demo")["run_time"] = secondsIfBare(value)
	}

	if value := strings.TrimSpace(os.Getenv("TIME_SCALE")); value != "" {
		scale, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TIME_SCALE: %w", err)
		}
		overrides["time_scale"] = scale
	}

	return overrides, nil
}

func secondsIfBare(value string) string {
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return value + "s"
	}
	return value
}

// mergeMaps deep-merges src into dst. Keys are compared case-insensitively
// because viper lowercases every key.
func mergeMaps(dst, src map[string]any) {
	for key, value := range src {
		key = strings.ToLower(key)
		if nested, ok := value.(map[string]any); ok {
			mergeMaps(ensureMap(dst, key), nested)
			continue
		}
		dst[key] = value
	}
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if existing, ok := parent[key]; ok {
		if typed, ok := existing.(map[string]any); ok {
			return typed
		}
	}
	next := map[string]any{}
	parent[key] = next
	return next
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// UserConfigPaths returns the config file locations searched when no
// --config flag is given.
func UserConfigPaths() []string {
	return gfconfig.GetAppConfigPaths(AppName)
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}

// DefaultLogRoot returns the directory that holds one subdirectory per demo
// run.
func DefaultLogRoot() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return filepath.Join(".", "logs", "clients")
	}
	return filepath.Join(dataDir, "logs", "clients")
}
