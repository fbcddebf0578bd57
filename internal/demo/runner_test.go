package demo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namelens/ratethrottle/internal/core"
	"github.com/namelens/ratethrottle/internal/server/handlers"
	"github.com/namelens/ratethrottle/internal/server/quota"
	"github.com/namelens/ratethrottle/internal/throttle"
)

// One simulated hour per wall second.
const testScale = 3600

func newQuotaServer(t *testing.T, clock throttle.Clock, limit int) *httptest.Server {
	t.Helper()
	bucket, err := quota.NewBucket(quota.Config{MaxLimit: limit, Window: time.Hour, Multiplier: 1}, clock)
	require.NoError(t, err)
	srv := httptest.NewServer(handlers.NewQuotaHandler(bucket))
	t.Cleanup(srv.Close)
	return srv
}

func testOptions(t *testing.T, target string, clock throttle.Clock, clientLimit int) Options {
	t.Helper()
	cfg := throttle.DefaultConfig()
	cfg.MaxLimit = clientLimit
	return Options{
		Target:        target,
		Threads:       2,
		Duration:      30 * time.Minute,
		JSONInterval:  5 * time.Minute,
		ChartInterval: 10 * time.Millisecond,
		LogDir:        t.TempDir(),
		Strategy:      throttle.StrategyAdaptive,
		Throttle:      cfg,
		Clock:         clock,
	}
}

func TestRunnerWritesResultsAndChartData(t *testing.T) {
	clock := throttle.NewScaledClock(testScale)
	srv := newQuotaServer(t, clock, 600)

	opts := testOptions(t, srv.URL, clock, 600)
	runner, err := NewRunner(opts)
	require.NoError(t, err)

	results, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The adaptive throttle starts at twice the minimum sleep of 6s.
	for _, r := range results {
		assert.Positive(t, r.RequestCount)
		assert.GreaterOrEqual(t, r.MaxSleepVal, 12.0)

		_, err := os.Stat(ResultPath(opts.LogDir, r.Worker))
		assert.NoError(t, err)
		_, err = os.Stat(ChartDataPath(opts.LogDir, r.Worker))
		assert.NoError(t, err)
	}

	columns, err := Results(opts.LogDir)
	require.NoError(t, err)
	assert.Len(t, columns[core.ResultMaxSleepVal], 2)
	assert.Len(t, columns[core.ResultRetryRatio], 2)
	assert.Len(t, columns[core.ResultRequestCount], 2)
}

func TestRunnerRecordsRetriesUnderPressure(t *testing.T) {
	clock := throttle.NewScaledClock(testScale)
	// The server allows far less than the client assumes.
	srv := newQuotaServer(t, clock, 5)

	opts := testOptions(t, srv.URL, clock, 3600)
	opts.Threads = 3
	runner, err := NewRunner(opts)
	require.NoError(t, err)

	start := time.Now()
	results, err := runner.Run(context.Background())
	require.NoError(t, err)
	// Workers parked in long escalated sleeps are interrupted at the deadline.
	assert.Less(t, time.Since(start), 5*time.Second)

	retried := false
	for _, r := range results {
		if r.RetryRatio > 0 {
			retried = true
		}
	}
	assert.True(t, retried, "expected at least one worker to see a 429")
	assert.Positive(t, runner.Throttler().Snapshot().RateLimitCount)
}

func TestRunnerAbortsOnUnexpectedStatus(t *testing.T) {
	clock := throttle.NewScaledClock(testScale)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	opts := testOptions(t, srv.URL, clock, 3600)
	opts.Duration = 10 * time.Hour
	runner, err := NewRunner(opts)
	require.NoError(t, err)

	_, err = runner.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestRunnerStreamsRequests(t *testing.T) {
	clock := throttle.NewScaledClock(testScale)
	srv := newQuotaServer(t, clock, 600)

	var out safeBuffer
	opts := testOptions(t, srv.URL, clock, 600)
	opts.Threads = 1
	opts.Duration = 5 * time.Minute
	opts.StreamRequests = true
	opts.Stream = &out

	runner, err := NewRunner(opts)
	require.NoError(t, err)
	_, err = runner.Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, out.String(), "status=200")
	assert.Contains(t, out.String(), "request_count=1")
}

func TestNewRunnerValidates(t *testing.T) {
	_, err := NewRunner(Options{Threads: 1, Duration: time.Second, LogDir: t.TempDir()})
	assert.Error(t, err)

	_, err = NewRunner(Options{Target: "http://x", Threads: 0, Duration: time.Second, LogDir: t.TempDir()})
	assert.Error(t, err)

	_, err = NewRunner(Options{
		Target: "http://x", Threads: 1, Duration: time.Second,
		LogDir: filepath.Join(t.TempDir(), "nested", "dir"),
	})
	assert.NoError(t, err)
}
