package core

import (
	"math"
	"sort"
	"time"
)

// Result keys written by every demo worker.
const (
	ResultMaxSleepVal  = "max_sleep_val"
	ResultRetryRatio   = "retry_ratio"
	ResultRequestCount = "request_count"
)

// WorkerResult is the per-worker JSON document of a demo run.
type WorkerResult struct {
	Worker       string  `json:"-" yaml:"worker"`
	MaxSleepVal  float64 `json:"max_sleep_val" yaml:"max_sleep_val"`
	RetryRatio   float64 `json:"retry_ratio" yaml:"retry_ratio"`
	RequestCount int     `json:"request_count" yaml:"request_count"`
}

// NewWorkerResult derives the retry ratio. A worker that issued no
// requests reports a ratio of zero.
func NewWorkerResult(worker string, maxSleep float64, retries, requests int) WorkerResult {
	ratio := 0.0
	if requests > 0 {
		ratio = float64(retries) / float64(requests)
	}
	return WorkerResult{
		Worker:       worker,
		MaxSleepVal:  maxSleep,
		RetryRatio:   ratio,
		RequestCount: requests,
	}
}

// ThrottleSnapshot is the final throttle state of one process.
type ThrottleSnapshot struct {
	SleepFor       time.Duration `json:"sleep_for" yaml:"sleep_for"`
	RateLimitCount int           `json:"rate_limit_count" yaml:"rate_limit_count"`
}

// Run describes one demo run and what it produced.
type Run struct {
	ID           string        `json:"id" yaml:"id"`
	Strategy     string        `json:"strategy" yaml:"strategy"`
	Target       string        `json:"target" yaml:"target"`
	LogDir       string        `json:"log_dir" yaml:"log_dir"`
	ThreadCount  int           `json:"thread_count" yaml:"thread_count"`
	ProcessCount int           `json:"process_count" yaml:"process_count"`
	TimeScale    float64       `json:"time_scale" yaml:"time_scale"`
	RunTime      time.Duration `json:"run_time" yaml:"run_time"`
	StartedAt    time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Error        string        `json:"error,omitempty" yaml:"error,omitempty"`

	Results []WorkerResult `json:"results,omitempty" yaml:"results,omitempty"`
}

// Summary aggregates worker results.
type Summary struct {
	Workers         int     `json:"workers"`
	TotalRequests   int     `json:"total_requests"`
	MeanRetryRatio  float64 `json:"mean_retry_ratio"`
	MaxRetryRatio   float64 `json:"max_retry_ratio"`
	MaxSleepVal     float64 `json:"max_sleep_val"`
	MedianSleepVal  float64 `json:"median_max_sleep_val"`
	RequestsSpread  int     `json:"requests_spread"`
	MinRequestCount int     `json:"min_request_count"`
	MaxRequestCount int     `json:"max_request_count"`
}

// Summarize computes request totals, retry ratios and sleep maxima.
// RequestsSpread is the gap between the busiest and the idlest worker and
// shows how fairly the quota was shared.
func Summarize(results []WorkerResult) Summary {
	s := Summary{Workers: len(results)}
	if len(results) == 0 {
		return s
	}

	sleeps := make([]float64, 0, len(results))
	ratioSum := 0.0
	s.MinRequestCount = math.MaxInt
	for _, r := range results {
		s.TotalRequests += r.RequestCount
		ratioSum += r.RetryRatio
		s.MaxRetryRatio = math.Max(s.MaxRetryRatio, r.RetryRatio)
		s.MaxSleepVal = math.Max(s.MaxSleepVal, r.MaxSleepVal)
		s.MinRequestCount = min(s.MinRequestCount, r.RequestCount)
		s.MaxRequestCount = max(s.MaxRequestCount, r.RequestCount)
		sleeps = append(sleeps, r.MaxSleepVal)
	}
	s.MeanRetryRatio = ratioSum / float64(len(results))
	s.RequestsSpread = s.MaxRequestCount - s.MinRequestCount

	sort.Float64s(sleeps)
	mid := len(sleeps) / 2
	if len(sleeps)%2 == 1 {
		s.MedianSleepVal = sleeps[mid]
	} else {
		s.MedianSleepVal = (sleeps[mid-1] + sleeps[mid]) / 2
	}
	return s
}

// ResultsFromColumns rebuilds worker results from the column view returned
// by demo.Results. Columns of unequal length are truncated to the shortest.
func ResultsFromColumns(columns map[string][]float64) []WorkerResult {
	sleeps := columns[ResultMaxSleepVal]
	ratios := columns[ResultRetryRatio]
	counts := columns[ResultRequestCount]

	n := min(len(sleeps), len(ratios), len(counts))
	results := make([]WorkerResult, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, WorkerResult{
			MaxSleepVal:  sleeps[i],
			RetryRatio:   ratios[i],
			RequestCount: int(counts[i]),
		})
	}
	return results
}
