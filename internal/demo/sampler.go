package demo

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ChartDataSuffix names the per-worker sleep series files.
const ChartDataSuffix = "-chart-data.txt"

// ChartDataPath is the sleep series file of one worker.
func ChartDataPath(dir, worker string) string {
	return filepath.Join(dir, worker+ChartDataSuffix)
}

type chartSeries struct {
	worker *worker
	file   *os.File
	buf    *bufio.Writer
}

// chartSampler appends each worker's last sleep value to its series file
// once per interval of wall time.
type chartSampler struct {
	series []chartSeries
}

func newChartSampler(dir string, workers []*worker) (*chartSampler, error) {
	s := &chartSampler{}
	for _, w := range workers {
		f, err := os.OpenFile(ChartDataPath(dir, w.key), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("open chart data: %w", err)
		}
		s.series = append(s.series, chartSeries{worker: w, file: f, buf: bufio.NewWriter(f)})
	}
	return s, nil
}

func (s *chartSampler) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *chartSampler) sample() {
	for _, series := range s.series {
		line := strconv.FormatFloat(series.worker.last(), 'f', -1, 64)
		_, _ = series.buf.WriteString(line + "\n")
		_ = series.buf.Flush()
	}
}

func (s *chartSampler) Close() error {
	var errs []error
	for _, series := range s.series {
		errs = append(errs, series.buf.Flush(), series.file.Close())
	}
	return errors.Join(errs...)
}
