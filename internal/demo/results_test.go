package demo

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namelens/ratethrottle/internal/core"
)

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWriteAndReadResults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteResult(dir, core.NewWorkerResult("10:b", 2.5, 1, 10)))
	require.NoError(t, WriteResult(dir, core.NewWorkerResult("10:a", 4.0, 0, 8)))
	// Rewrites replace the previous snapshot.
	require.NoError(t, WriteResult(dir, core.NewWorkerResult("10:a", 5.0, 2, 20)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10:a"+ChartDataSuffix), []byte("1.6\n"), 0o644))

	data, err := os.ReadFile(ResultPath(dir, "10:a"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"max_sleep_val":5,"retry_ratio":0.1,"request_count":20}`, string(data))

	results, err := ReadResults(dir)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "10:a", results[0].Worker)
	assert.Equal(t, 20, results[0].RequestCount)

	columns, err := Results(dir)
	require.NoError(t, err)
	assert.Equal(t, []float64{5.0, 2.5}, columns[core.ResultMaxSleepVal])
	assert.Equal(t, []float64{20, 10}, columns[core.ResultRequestCount])
}

func TestResultsMissingDir(t *testing.T) {
	_, err := Results(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, WriteManifest(dir, Manifest{
		RunID:        "abc",
		Strategy:     "adaptive",
		ThreadCount:  5,
		ProcessCount: 2,
		TimeScale:    60,
		RunTime:      (6 * time.Hour).String(),
		StartedAt:    started,
		Throttle:     ThrottleManifest{MaxLimit: 4500, Window: time.Hour.String()},
	}))

	m, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, 60.0, m.TimeScale)
	assert.True(t, started.Equal(m.StartedAt))

	d, err := m.RunDuration()
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, d)

	_, err = ReadManifest(t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLatestLogDir(t *testing.T) {
	root := t.TempDir()
	_, err := LatestLogDir(root)
	assert.ErrorIs(t, err, ErrNoRuns)

	older := NewLogDir(root, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := NewLogDir(root, time.Date(2026, 1, 2, 0, 0, 0, 5, time.UTC))
	require.NoError(t, os.MkdirAll(older, 0o755))
	require.NoError(t, os.MkdirAll(newer, 0o755))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	latest, err := LatestLogDir(root)
	require.NoError(t, err)
	assert.Equal(t, newer, latest)
	assert.Equal(t, "2026-01-02-00-00-00-000000005", filepath.Base(newer))
}
