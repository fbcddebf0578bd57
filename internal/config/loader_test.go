package config

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namelens/ratethrottle/internal/throttle"
)

func newDefaults() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", t.TempDir())

		cfg, err := Load(ctx, newDefaults())
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 1.0, cfg.TimeScale)

		// Verify throttle defaults
		assert.Equal(t, "adaptive", cfg.Throttle.Strategy)
		assert.Equal(t, 4500, cfg.Throttle.MaxLimit)
		assert.Equal(t, time.Hour, cfg.Throttle.Window)
		assert.Equal(t, 0.1, cfg.Throttle.MinSleepOvertimePercent)
		assert.Equal(t, 4500*time.Second, cfg.Throttle.DecayConstant)
		assert.Equal(t, 30*time.Minute, cfg.Throttle.InitialEscalationAge)
		assert.Zero(t, cfg.Throttle.LeaderLease)

		// Verify demo defaults
		assert.Equal(t, "http://localhost:9292", cfg.Demo.Target)
		assert.Equal(t, 5, cfg.Demo.ThreadCount)
		assert.Equal(t, 2, cfg.Demo.ProcessCount)
		assert.Equal(t, 10*time.Second, cfg.Demo.RunTime)
		assert.Equal(t, 30*time.Second, cfg.Demo.JSONInterval)
		assert.Equal(t, time.Second, cfg.Demo.ChartInterval)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 9292, cfg.Server.Port)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.Equal(t, 4500, cfg.Server.Quota.MaxLimit)
		assert.Equal(t, 1.0, cfg.Server.Quota.Multiplier)

		// Verify store defaults
		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir(AppName), AppName+".db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)

		assert.Same(t, cfg, GetConfig())
	})

	t.Run("PrefixedEnvOverrides", func(t *testing.T) {
		t.Setenv("RATETHROTTLE_STRATEGY", "exponential-backoff")
		t.Setenv("RATETHROTTLE_THREAD_COUNT", "9")
		t.Setenv("RATETHROTTLE_RUN_TIME", "6h")
		t.Setenv("RATETHROTTLE_TIME_SCALE", "3600")
		t.Setenv("RATETHROTTLE_LEADER_LEASE", "2m")
		t.Setenv("RATETHROTTLE_PORT", "9393")

		cfg, err := Load(ctx, newDefaults())
		require.NoError(t, err)

		assert.Equal(t, throttle.StrategyExponentialBackoff, cfg.Throttle.StrategyName())
		assert.Equal(t, 9, cfg.Demo.ThreadCount)
		assert.Equal(t, 6*time.Hour, cfg.Demo.RunTime)
		assert.Equal(t, 3600.0, cfg.TimeScale)
		assert.Equal(t, 2*time.Minute, cfg.Throttle.LeaderLease)
		assert.Equal(t, 9393, cfg.Server.Port)
	})

	t.Run("LegacyEnvNames", func(t *testing.T) {
		t.Setenv("THREAD_COUNT", "3")
		t.Setenv("PROCESS_COUNT", "4")
		t.Setenv("RUN_TIME", "90")
		t.Setenv("TIME_SCALE", "60")

		cfg, err := Load(ctx, newDefaults())
		require.NoError(t, err)

		assert.Equal(t, 3, cfg.Demo.ThreadCount)
		assert.Equal(t, 4, cfg.Demo.ProcessCount)
		assert.Equal(t, 90*time.Second, cfg.Demo.RunTime)
		assert.Equal(t, 60.0, cfg.TimeScale)
	})

	t.Run("PrefixedWinsOverLegacy", func(t *testing.T) {
		t.Setenv("THREAD_COUNT", "3")
		t.Setenv("RATETHROTTLE_THREAD_COUNT", "7")

		cfg, err := Load(ctx, newDefaults())
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Demo.ThreadCount)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		cfg, err := Load(ctx, newDefaults(), map[string]any{
			"demo": map[string]any{"thread_count": 11},
		})
		require.NoError(t, err)
		assert.Equal(t, 11, cfg.Demo.ThreadCount)
		assert.Equal(t, 2, cfg.Demo.ProcessCount)
	})

	t.Run("NilViperUsesDefaults", func(t *testing.T) {
		cfg, err := Load(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Demo.ThreadCount)
	})

	t.Run("InvalidStrategy", func(t *testing.T) {
		t.Setenv("RATETHROTTLE_STRATEGY", "linear")

		_, err := Load(ctx, newDefaults())
		require.ErrorIs(t, err, throttle.ErrUnknownStrategy)
		require.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("InvalidLegacyNumber", func(t *testing.T) {
		t.Setenv("THREAD_COUNT", "many")

		_, err := Load(ctx, newDefaults())
		require.Error(t, err)
	})
}

func TestThrottleConfigToThrottle(t *testing.T) {
	tc := ThrottleConfig{
		MaxLimit:    100,
		Window:      time.Minute,
		Multiplier:  3,
		LeaderLease: time.Second,
		MaxRetries:  5,
	}
	cfg := tc.ToThrottle()

	assert.Equal(t, 100, cfg.MaxLimit)
	assert.Equal(t, time.Minute, cfg.Window)
	assert.Equal(t, 3.0, cfg.Multiplier)
	assert.Equal(t, time.Second, cfg.LeaderLease)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, throttle.DefaultMinSleepOvertimePercent, cfg.MinSleepOvertimePercent)
	assert.Equal(t, 600*time.Millisecond, cfg.MinSleep())
}

func TestMergeMaps(t *testing.T) {
	dst := map[string]any{"demo": map[string]any{"thread_count": 5, "process_count": 2}}
	mergeMaps(dst, map[string]any{"DEMO": map[string]any{"Thread_Count": 1}, "time_scale": 2.0})

	assert.Equal(t, map[string]any{
		"demo":       map[string]any{"thread_count": 1, "process_count": 2},
		"time_scale": 2.0,
	}, dst)
}
