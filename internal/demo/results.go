package demo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/namelens/ratethrottle/internal/core"
)

// ResultPath is the JSON result file of one worker.
func ResultPath(dir, worker string) string {
	return filepath.Join(dir, worker+".json")
}

// WriteResult replaces the worker's JSON result file.
func WriteResult(dir string, result core.WorkerResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	data = append(data, '\n')

	// Write then rename so a reader never sees a half written file.
	path := ResultPath(dir, result.Worker)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// ReadResults loads every worker JSON file in dir, sorted by worker key.
func ReadResults(dir string) ([]core.WorkerResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read results dir: %w", err)
	}

	var results []core.WorkerResult
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read result %s: %w", name, err)
		}
		var result core.WorkerResult
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("decode result %s: %w", name, err)
		}
		result.Worker = strings.TrimSuffix(name, ".json")
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Worker < results[j].Worker })
	return results, nil
}

// Results aggregates every worker JSON file in dir into one list of values
// per key: max_sleep_val, retry_ratio and request_count.
func Results(dir string) (map[string][]float64, error) {
	results, err := ReadResults(dir)
	if err != nil {
		return nil, err
	}

	columns := map[string][]float64{}
	for _, r := range results {
		columns[core.ResultMaxSleepVal] = append(columns[core.ResultMaxSleepVal], r.MaxSleepVal)
		columns[core.ResultRetryRatio] = append(columns[core.ResultRetryRatio], r.RetryRatio)
		columns[core.ResultRequestCount] = append(columns[core.ResultRequestCount], float64(r.RequestCount))
	}
	return columns, nil
}
