package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/namelens/ratethrottle/internal/core"
)

func sampleRun() *core.Run {
	finished := time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC)
	return &core.Run{
		ID:           "0b6d3c1e-6f1a-4c55-9a57-3d1c7e0f9a11",
		Strategy:     "adaptive",
		ThreadCount:  2,
		ProcessCount: 1,
		TimeScale:    60,
		StartedAt:    time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		FinishedAt:   &finished,
		Results: []core.WorkerResult{
			{Worker: "1:a", MaxSleepVal: 1.6, RetryRatio: 0.01, RequestCount: 100},
			{Worker: "1:b", MaxSleepVal: 3.2, RetryRatio: 0.03, RequestCount: 80},
		},
	}
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("md")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func TestFormatRunTable(t *testing.T) {
	rendered, err := NewFormatter(FormatTable).FormatRun(sampleRun())
	require.NoError(t, err)
	require.Contains(t, rendered, "WORKER")
	require.Contains(t, rendered, "1:b")
	require.Contains(t, rendered, "3.00%")
	require.Contains(t, strings.ToLower(rendered), "2 workers")
	require.Contains(t, rendered, "completed")
}

func TestFormatRunJSONIncludesSummary(t *testing.T) {
	rendered, err := NewFormatter(FormatJSON).FormatRun(sampleRun())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Equal(t, "adaptive", decoded["strategy"])
	summary, ok := decoded["summary"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 180, summary["total_requests"])
}

func TestFormatRunMarkdown(t *testing.T) {
	run := sampleRun()
	run.Error = "worker a|b failed"

	rendered, err := NewFormatter(FormatMarkdown).FormatRun(run)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(rendered, "## Run "))
	require.Contains(t, rendered, "| 1:a | 100 | 1.00% | 1.600s |")
	require.Contains(t, rendered, `a\|b`)
	require.Contains(t, rendered, "failed")
}

func TestFormatRuns(t *testing.T) {
	runs := []core.Run{*sampleRun(), {ID: "short", Strategy: "backoff", StartedAt: time.Now()}}

	rendered, err := NewFormatter(FormatTable).FormatRuns(runs)
	require.NoError(t, err)
	require.Contains(t, rendered, "0b6d3c1e")
	require.NotContains(t, rendered, "0b6d3c1e-6f1a")
	require.Contains(t, rendered, "running")

	rendered, err = NewFormatter(FormatMarkdown).FormatRuns(runs)
	require.NoError(t, err)
	require.Equal(t, 4, strings.Count(rendered, "\n"))

	rendered, err = NewFormatter(FormatJSON).FormatRuns(runs)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Len(t, decoded, 2)
}

func TestFormatSummary(t *testing.T) {
	results := sampleRun().Results

	rendered, err := FormatSummary(FormatTable, results)
	require.NoError(t, err)
	require.Contains(t, rendered, "Total requests")
	require.Contains(t, rendered, "180")
	require.Contains(t, rendered, "80-100 (spread 20)")

	rendered, err = FormatSummary(FormatMarkdown, results)
	require.NoError(t, err)
	require.Contains(t, rendered, "| Max sleep | 3.200s |")

	rendered, err = FormatSummary(FormatJSON, results)
	require.NoError(t, err)
	require.Contains(t, rendered, `"workers": 2`)
}
