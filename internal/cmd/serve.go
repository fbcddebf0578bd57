package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/namelens/ratethrottle/internal/config"
	errwrap "github.com/namelens/ratethrottle/internal/errors"
	"github.com/namelens/ratethrottle/internal/metrics"
	"github.com/namelens/ratethrottle/internal/observability"
	"github.com/namelens/ratethrottle/internal/server"
	"github.com/namelens/ratethrottle/internal/server/handlers"
	"github.com/namelens/ratethrottle/internal/server/quota"
	"github.com/namelens/ratethrottle/internal/throttle"
)

// adminTokenEnv enables the /admin endpoints of the server.
const adminTokenEnv = config.EnvPrefix + "ADMIN_TOKEN"

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// quotaHealthChecker fails when the bucket reports an impossible state.
type quotaHealthChecker struct {
	bucket *quota.Bucket
}

func (q quotaHealthChecker) CheckHealth(ctx context.Context) error {
	if q.bucket == nil {
		return errwrap.NewInternalError("quota bucket not initialized")
	}
	if remaining := q.bucket.Remaining(); remaining < 0 || remaining > q.bucket.Config().MaxLimit {
		return errwrap.NewInternalError(fmt.Sprintf("quota remaining out of range: %d", remaining))
	}
	return nil
}

// newQuotaBucket builds the server quota on a clock scaled by the
// configured time scale.
func newQuotaBucket(cfg *config.Config) (*quota.Bucket, error) {
	return quota.NewBucket(quota.Config{
		MaxLimit:   cfg.Server.Quota.MaxLimit,
		Window:     cfg.Server.Quota.Window,
		Multiplier: cfg.Server.Quota.Multiplier,
	}, throttle.NewScaledClock(cfg.TimeScale))
}

func newServer(cfg *config.Config) (*server.Server, error) {
	bucket, err := newQuotaBucket(cfg)
	if err != nil {
		return nil, err
	}
	return server.New(server.Options{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		Bucket:       bucket,
		AdminToken:   os.Getenv(adminTokenEnv),
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the toy rate limited API server",
	Long: `Start an HTTP server that hands out a fixed request quota per window.

GET / spends one request and answers 200, or 429 once the quota is empty.
Every response carries RateLimit-Remaining and RateLimit-Multiplier.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload config and apply the quota multiplier`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "failed to load configuration")
		}

		observability.InitServerLogger(config.AppName, cfg.Logging.Level, "server")
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		srv, err := newServer(cfg)
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "invalid quota configuration")
		}

		logger.Info("Initializing server",
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", observability.GetMetricsPort()),
			zap.Float64("time_scale", cfg.TimeScale),
			zap.Int("max_limit", cfg.Server.Quota.MaxLimit),
			zap.Duration("window", cfg.Server.Quota.Window))

		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("quota", quotaHealthChecker{bucket: srv.Bucket()})
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}

		ctx, stop := context.WithCancel(cmd.Context())
		defer stop()

		started := time.Now()
		metrics.SetServerStartTime(started.Unix())
		go reportUptime(ctx, started)

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run in LIFO order: the HTTP server stops before
		// the logger is flushed.
		signals.OnShutdown(func(ctx context.Context) error {
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Debug("Logger sync returned error", zap.Error(err))
			}
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			stop()
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}
			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: reloading config")
			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
				}
			}
			reloaded, err := loadConfig(ctx)
			if err != nil {
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			if err := srv.Bucket().SetMultiplier(reloaded.Server.Quota.Multiplier); err != nil {
				return errwrap.WrapConfigInvalid(ctx, err, "invalid quota multiplier")
			}
			logger.Info("Configuration reloaded",
				zap.String("file", viper.ConfigFileUsed()),
				zap.Float64("multiplier", reloaded.Server.Quota.Multiplier))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 2)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
				return
			}
			errChan <- nil
		}()

		go func() {
			if err := signals.Listen(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}
		return nil
	},
}

func reportUptime(ctx context.Context, started time.Time) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			metrics.SetServerUptime(int64(now.Sub(started).Seconds()))
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 9292, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
