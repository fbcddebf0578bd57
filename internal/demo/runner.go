// Package demo drives many workers through a shared throttle against a rate
// limited endpoint and records how the throttle behaves over (simulated)
// time.
package demo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/namelens/ratethrottle/internal/core"
	"github.com/namelens/ratethrottle/internal/metrics"
	"github.com/namelens/ratethrottle/internal/observability"
	"github.com/namelens/ratethrottle/internal/throttle"
)

// ErrUnexpectedStatus aborts a worker when the target answers with anything
// other than 200 or 429.
var ErrUnexpectedStatus = errors.New("unexpected response status")

// Default intervals.
const (
	DefaultJSONInterval  = 30 * time.Second
	DefaultChartInterval = time.Second
)

// Options configures one process worth of workers.
type Options struct {
	Target  string
	Threads int
	// Duration and JSONInterval are simulated time, measured on Clock.
	Duration     time.Duration
	JSONInterval time.Duration
	// ChartInterval is wall time.
	ChartInterval time.Duration
	LogDir        string

	// Stream receives one line per request when StreamRequests is set.
	StreamRequests bool
	Stream         io.Writer

	Strategy throttle.Strategy
	// Throttle is the construction config. Its Clock is replaced by Clock
	// wrapped with per-worker sleep recording.
	Throttle throttle.Config
	Clock    throttle.Clock

	Client *http.Client
	Logger *logging.Logger
}

func (o *Options) normalize() error {
	if strings.TrimSpace(o.Target) == "" {
		return errors.New("demo target is required")
	}
	if o.Threads <= 0 {
		return fmt.Errorf("thread count must be positive, got %d", o.Threads)
	}
	if o.Duration <= 0 {
		return fmt.Errorf("run time must be positive, got %s", o.Duration)
	}
	if strings.TrimSpace(o.LogDir) == "" {
		return errors.New("log dir is required")
	}
	if o.JSONInterval <= 0 {
		o.JSONInterval = DefaultJSONInterval
	}
	if o.ChartInterval <= 0 {
		o.ChartInterval = DefaultChartInterval
	}
	if o.Stream == nil {
		o.Stream = os.Stdout
	}
	if o.Strategy == "" {
		o.Strategy = throttle.StrategyAdaptive
	}
	if o.Clock == nil {
		o.Clock = throttle.RealClock{}
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return nil
}

// Runner owns the workers of one process and the throttle they share.
type Runner struct {
	opts      Options
	pid       int
	clock     throttle.Clock
	throttler throttle.Throttler
	workers   []*worker
	byID      map[throttle.WorkerID]*worker
	streamMu  sync.Mutex
}

// NewRunner builds the shared throttle and the worker set.
func NewRunner(opts Options) (*Runner, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	r := &Runner{
		opts: opts,
		pid:  os.Getpid(),
		byID: make(map[throttle.WorkerID]*worker, opts.Threads),
	}
	for i := 0; i < opts.Threads; i++ {
		w := newWorker(r.pid, throttle.NewWorkerID())
		r.workers = append(r.workers, w)
		r.byID[w.id] = w
	}
	r.clock = &recordingClock{Clock: opts.Clock, workers: r.byID}

	cfg := opts.Throttle
	cfg.Clock = r.clock
	cfg.Observer = throttle.ChainObservers(cfg.Observer, metrics.ThrottleObserver(opts.Strategy))

	th, err := throttle.New(opts.Strategy, cfg)
	if err != nil {
		return nil, err
	}
	r.throttler = th
	return r, nil
}

// Throttler exposes the shared throttle, mainly for its Snapshot.
func (r *Runner) Throttler() throttle.Throttler {
	return r.throttler
}

// Run drives every worker until Duration of clock time has passed, then
// interrupts workers still sleeping inside the throttle. Results are written
// for every worker, including those that failed.
func (r *Runner) Run(ctx context.Context) ([]core.WorkerResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := r.logger()
	start := r.opts.Clock.Now()
	deadline := start.Add(r.opts.Duration)

	if logger != nil {
		logger.Info("Starting demo workers",
			zap.Int("pid", r.pid),
			zap.Int("threads", len(r.workers)),
			zap.String("strategy", string(r.opts.Strategy)),
			zap.String("target", r.opts.Target),
			zap.Duration("run_time", r.opts.Duration))
	}

	// Interrupt workers parked in a long throttle sleep once time is up.
	go func() {
		if err := r.opts.Clock.Sleep(runCtx, r.opts.Duration); err == nil {
			cancel()
		}
	}()

	sampler, err := newChartSampler(r.opts.LogDir, r.workers)
	if err != nil {
		return nil, err
	}
	samplerDone := make(chan struct{})
	go func() {
		defer close(samplerDone)
		sampler.run(runCtx, r.opts.ChartInterval)
	}()

	metrics.SetActiveWorkers(len(r.workers))
	p := pool.New().WithContext(runCtx).WithCancelOnError()
	for _, w := range r.workers {
		p.Go(func(ctx context.Context) error {
			return r.runWorker(ctx, w, deadline)
		})
	}
	runErr := p.Wait()
	metrics.SetActiveWorkers(0)

	cancel()
	<-samplerDone
	if err := sampler.Close(); err != nil && runErr == nil {
		runErr = err
	}

	results := make([]core.WorkerResult, 0, len(r.workers))
	for _, w := range r.workers {
		result := w.result()
		if err := WriteResult(r.opts.LogDir, result); err != nil && runErr == nil {
			runErr = err
		}
		results = append(results, result)
	}

	if logger != nil {
		observability.LogThrottleSnapshot(logger, r.opts.Strategy, r.throttler.Snapshot())
	}
	metrics.RecordRun(r.opts.Strategy, runErr == nil)
	return results, runErr
}

func (r *Runner) runWorker(ctx context.Context, w *worker, deadline time.Time) error {
	ctx = throttle.WithWorker(ctx, w.id)
	nextJSON := r.opts.Clock.Now().Add(r.opts.JSONInterval)

	for {
		now := r.opts.Clock.Now()
		if now.After(deadline) {
			return nil
		}
		if now.After(nextJSON) {
			if err := WriteResult(r.opts.LogDir, w.result()); err != nil {
				return err
			}
			nextJSON = now.Add(r.opts.JSONInterval)
		}

		_, err := r.throttler.Call(ctx, w.id, func(ctx context.Context) (*throttle.Response, error) {
			return r.request(ctx, w)
		})
		if err != nil {
			if ctx.Err() != nil {
				// Run ended while the worker was sleeping or mid request.
				return nil
			}
			return fmt.Errorf("worker %s: %w", w.key, err)
		}
	}
}

func (r *Runner) request(ctx context.Context, w *worker) (*throttle.Response, error) {
	w.countRequest()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.opts.Target, nil)
	if err != nil {
		return nil, err
	}
	httpResp, err := r.opts.Client.Do(req)
	if err != nil {
		return nil, err
	}
	_, _ = io.Copy(io.Discard, httpResp.Body)
	_ = httpResp.Body.Close()

	resp := throttle.FromHTTP(httpResp)
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		w.countRetry()
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if r.opts.StreamRequests {
		r.stream(w, httpResp)
	}
	return resp, nil
}

func (r *Runner) stream(w *worker, resp *http.Response) {
	requests, retries, maxSleep := w.counters()
	line := fmt.Sprintf("%s: status=%d remaining=%s retry_count=%d request_count=%d max_sleep_val=%.2f\n",
		w.key, resp.StatusCode, resp.Header.Get(throttle.HeaderRemaining), retries, requests, maxSleep)

	r.streamMu.Lock()
	defer r.streamMu.Unlock()
	_, _ = io.WriteString(r.opts.Stream, line)
}

func (r *Runner) logger() *logging.Logger {
	if r.opts.Logger != nil {
		return r.opts.Logger
	}
	return observability.Logger()
}
