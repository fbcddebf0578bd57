package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWorkerResult(t *testing.T) {
	r := NewWorkerResult("1:a", 3.2, 1, 4)
	assert.Equal(t, 0.25, r.RetryRatio)
	assert.Equal(t, 4, r.RequestCount)

	idle := NewWorkerResult("1:b", 0, 0, 0)
	assert.Zero(t, idle.RetryRatio)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]WorkerResult{
		{MaxSleepVal: 1.6, RetryRatio: 0.1, RequestCount: 10},
		{MaxSleepVal: 6.4, RetryRatio: 0.3, RequestCount: 14},
		{MaxSleepVal: 3.2, RetryRatio: 0.2, RequestCount: 12},
	})

	assert.Equal(t, 3, s.Workers)
	assert.Equal(t, 36, s.TotalRequests)
	assert.InDelta(t, 0.2, s.MeanRetryRatio, 1e-9)
	assert.Equal(t, 0.3, s.MaxRetryRatio)
	assert.Equal(t, 6.4, s.MaxSleepVal)
	assert.Equal(t, 3.2, s.MedianSleepVal)
	assert.Equal(t, 4, s.RequestsSpread)
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestResultsFromColumns(t *testing.T) {
	results := ResultsFromColumns(map[string][]float64{
		ResultMaxSleepVal:  {1.5, 2.5},
		ResultRetryRatio:   {0.1, 0.2},
		ResultRequestCount: {10, 20, 30},
	})

	assert.Len(t, results, 2)
	assert.Equal(t, 20, results[1].RequestCount)
	assert.Equal(t, 2.5, results[1].MaxSleepVal)
}
