package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/namelens/ratethrottle/internal/chart"
	"github.com/namelens/ratethrottle/internal/config"
	"github.com/namelens/ratethrottle/internal/core"
	"github.com/namelens/ratethrottle/internal/demo"
	"github.com/namelens/ratethrottle/internal/observability"
	"github.com/namelens/ratethrottle/internal/output"
	"github.com/namelens/ratethrottle/internal/throttle"
)

var (
	demoWithServer bool
	demoNoChart    bool
	demoInProcess  bool
	demoOutput     string
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Drive throttled workers against a rate limited endpoint",
	Long: `Start PROCESS_COUNT worker processes with THREAD_COUNT workers each.
Workers in one process share a throttle; processes share nothing but the
server quota. After RUN_TIME of simulated time every worker writes its
results to a fresh log directory, which is then summarized and charted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		format, err := output.ParseFormat(demoOutput)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		if demoWithServer {
			target, shutdown, err := startEmbeddedServer(cfg)
			if err != nil {
				return err
			}
			defer shutdown()
			cfg.Demo.Target = target
		}

		started := time.Now()
		root := cfg.Demo.LogDir
		if strings.TrimSpace(root) == "" {
			root = config.DefaultLogRoot()
		}
		dir := demo.NewLogDir(root, started)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}

		manifest := newManifest(cfg, uuid.NewString(), started)
		if err := demo.WriteManifest(dir, manifest); err != nil {
			return err
		}

		observability.CLILogger.Info("Starting demo",
			zap.String("log_dir", dir),
			zap.String("strategy", manifest.Strategy),
			zap.String("target", manifest.Target),
			zap.Int("processes", manifest.ProcessCount),
			zap.Int("threads", manifest.ThreadCount),
			zap.String("run_time", manifest.RunTime),
			zap.Float64("time_scale", manifest.TimeScale))

		var runErr error
		if demoInProcess {
			_, runErr = runWorkers(ctx, cfg, dir, cmd.OutOrStdout())
		} else {
			launcher := &demo.ProcessLauncher{
				Args:   workerArgs(dir),
				Count:  cfg.Demo.ProcessCount,
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
			}
			runErr = launcher.Launch(ctx)
		}

		run, err := runFromDir(dir)
		if err != nil {
			return errors.Join(runErr, err)
		}
		finished := time.Now()
		run.FinishedAt = &finished
		if runErr != nil {
			run.Error = runErr.Error()
		}

		if cfg.Demo.SaveHistory {
			if err := saveRun(ctx, cfg, *run); err != nil {
				observability.CLILogger.Warn("Failed to save run history", zap.Error(err))
			}
		}

		rendered, err := output.NewFormatter(format).FormatRun(run)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), rendered)

		if !demoNoChart && format != output.FormatJSON {
			path, err := chart.WriteFile(dir, chart.Options{TimeScale: run.TimeScale})
			if err != nil {
				observability.CLILogger.Warn("Failed to render chart", zap.Error(err))
			} else {
				_, _ = fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox(fmt.Sprintf("Results: %s\nChart:   %s", dir, path), 0))
			}
		}

		return runErr
	},
}

var workerLogDir string

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run one process worth of demo workers",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if strings.TrimSpace(workerLogDir) == "" {
			return fmt.Errorf("--log-dir is required")
		}
		manifest, err := demo.ReadManifest(workerLogDir)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		if err := applyManifest(cfg, manifest); err != nil {
			return err
		}

		observability.InitServerLogger(config.AppName, cfg.Logging.Level, "worker")
		_, err = runWorkers(ctx, cfg, workerLogDir, cmd.OutOrStdout())
		return err
	},
}

// runWorkers runs ThreadCount workers in this process.
func runWorkers(ctx context.Context, cfg *config.Config, dir string, stream io.Writer) ([]core.WorkerResult, error) {
	runner, err := demo.NewRunner(runnerOptions(cfg, dir, stream))
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx)
}

func runnerOptions(cfg *config.Config, dir string, stream io.Writer) demo.Options {
	clock := newClock(cfg.TimeScale)
	logger := observability.Logger()

	throttleCfg := cfg.Throttle.ToThrottle()
	throttleCfg.Observer = observability.ThrottleObserver(logger, throttleSource(), clock)

	return demo.Options{
		Target:         cfg.Demo.Target,
		Threads:        cfg.Demo.ThreadCount,
		Duration:       cfg.Demo.RunTime,
		JSONInterval:   cfg.Demo.JSONInterval,
		ChartInterval:  cfg.Demo.ChartInterval,
		LogDir:         dir,
		StreamRequests: cfg.Demo.StreamRequests,
		Stream:         stream,
		Strategy:       cfg.Throttle.StrategyName(),
		Throttle:       throttleCfg,
		Clock:          clock,
		Client:         &http.Client{Timeout: cfg.Demo.RequestTimeout},
		Logger:         logger,
	}
}

func newClock(scale float64) throttle.Clock {
	if scale == 1 {
		return throttle.RealClock{}
	}
	return throttle.NewScaledClock(scale)
}

func strategyUsage() string {
	names := make([]string, 0, len(throttle.Strategies()))
	for _, s := range throttle.Strategies() {
		names = append(names, string(s))
	}
	return strings.Join(names, "|")
}

// throttleSource names the shared throttle of this process in logs.
func throttleSource() string {
	return "pid-" + strconv.Itoa(os.Getpid())
}

func workerArgs(dir string) []string {
	args := []string{"worker", "--log-dir", dir}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	if verbose {
		args = append(args, "--verbose")
	}
	return args
}

func newManifest(cfg *config.Config, runID string, started time.Time) demo.Manifest {
	tc := cfg.Throttle.ToThrottle()
	m := demo.Manifest{
		RunID:        runID,
		Strategy:     string(cfg.Throttle.StrategyName()),
		Target:       cfg.Demo.Target,
		ThreadCount:  cfg.Demo.ThreadCount,
		ProcessCount: cfg.Demo.ProcessCount,
		TimeScale:    cfg.TimeScale,
		RunTime:      cfg.Demo.RunTime.String(),
		JSONInterval: cfg.Demo.JSONInterval.String(),
		StartedAt:    started.UTC(),
		Throttle: demo.ThrottleManifest{
			MaxLimit:      tc.MaxLimit,
			Window:        tc.Window.String(),
			Multiplier:    tc.Multiplier,
			DecayConstant: tc.DecayConstant.String(),
			MaxRetries:    tc.MaxRetries,
		},
	}
	if tc.LeaderLease > 0 {
		m.Throttle.LeaderLease = tc.LeaderLease.String()
	}
	return m
}

// applyManifest makes a worker process run exactly what the parent
// recorded, whatever its own environment says.
func applyManifest(cfg *config.Config, m *demo.Manifest) error {
	runTime, err := m.RunDuration()
	if err != nil {
		return fmt.Errorf("manifest run_time: %w", err)
	}
	cfg.Demo.RunTime = runTime
	if m.JSONInterval != "" {
		if cfg.Demo.JSONInterval, err = time.ParseDuration(m.JSONInterval); err != nil {
			return fmt.Errorf("manifest json_interval: %w", err)
		}
	}
	cfg.Demo.Target = m.Target
	cfg.Demo.ThreadCount = m.ThreadCount
	cfg.Demo.ProcessCount = m.ProcessCount
	cfg.TimeScale = m.TimeScale
	cfg.Throttle.Strategy = m.Strategy

	cfg.Throttle.MaxLimit = m.Throttle.MaxLimit
	cfg.Throttle.Multiplier = m.Throttle.Multiplier
	cfg.Throttle.MaxRetries = m.Throttle.MaxRetries
	for _, field := range []struct {
		value string
		dst   *time.Duration
		name  string
	}{
		{m.Throttle.Window, &cfg.Throttle.Window, "window"},
		{m.Throttle.DecayConstant, &cfg.Throttle.DecayConstant, "decay_constant"},
		{m.Throttle.LeaderLease, &cfg.Throttle.LeaderLease, "leader_lease"},
	} {
		if field.value == "" {
			continue
		}
		d, err := time.ParseDuration(field.value)
		if err != nil {
			return fmt.Errorf("manifest throttle.%s: %w", field.name, err)
		}
		*field.dst = d
	}
	return cfg.Validate()
}

// startEmbeddedServer serves the configured quota on a random local port
// and returns its URL.
func startEmbeddedServer(cfg *config.Config) (string, func(), error) {
	srv, err := newServer(cfg)
	if err != nil {
		return "", nil, err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("listen: %w", err)
	}
	go func() { _ = srv.Serve(ln) }()

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return "http://" + ln.Addr().String() + "/", shutdown, nil
}

func saveRun(ctx context.Context, cfg *config.Config, run core.Run) error {
	db, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup
	return db.SaveRun(ctx, run)
}

func init() {
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(workerCmd)

	f := demoCmd.Flags()
	f.String("target", "http://localhost:9292", "rate limited endpoint every worker calls")
	f.Int("threads", 5, "workers per process")
	f.Int("processes", 2, "worker processes")
	f.Duration("run-time", 10*time.Second, "simulated run time")
	f.String("strategy", string(throttle.StrategyAdaptive), "throttle strategy: "+strategyUsage())
	f.String("log-dir", "", "root directory for run logs (default is the data dir)")
	f.Bool("stream", false, "print one line per request")
	f.BoolVar(&demoWithServer, "with-server", false, "serve the quota in-process and target it")
	f.BoolVar(&demoNoChart, "no-chart", false, "skip chart rendering")
	f.BoolVar(&demoInProcess, "in-process", false, "run one set of workers in this process instead of spawning workers")
	f.StringVar(&demoOutput, "output-format", string(output.FormatTable), "Output format: table|json|markdown")

	for flag, key := range map[string]string{
		"target":    "demo.target",
		"threads":   "demo.thread_count",
		"processes": "demo.process_count",
		"run-time":  "demo.run_time",
		"strategy":  "throttle.strategy",
		"log-dir":   "demo.log_dir",
		"stream":    "demo.stream_requests",
	} {
		_ = viper.BindPFlag(key, f.Lookup(flag))
	}

	workerCmd.Flags().StringVar(&workerLogDir, "log-dir", "", "run directory holding manifest.yaml")
}
