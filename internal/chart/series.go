// Package chart renders the sleep values recorded by demo workers as a
// line chart.
package chart

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DataSuffix marks the per-worker series files written by the demo sampler.
const DataSuffix = "-chart-data.txt"

// ErrNoSeries is returned when a directory holds no chart data.
var ErrNoSeries = errors.New("no chart data found")

// Series is one worker's sleep value per sampling tick, in seconds.
type Series struct {
	Name   string
	Values []float64
}

// LoadSeries reads every chart data file in dir, sorted by name.
func LoadSeries(dir string) ([]Series, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read chart dir: %w", err)
	}

	var series []Series
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, DataSuffix) {
			continue
		}
		values, err := readValues(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		series = append(series, Series{Name: strings.TrimSuffix(name, DataSuffix), Values: values})
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSeries, dir)
	}

	sort.Slice(series, func(i, j int) bool { return series[i].Name < series[j].Name })
	return series, nil
}

func readValues(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chart data: %w", err)
	}
	defer f.Close() // nolint:errcheck

	var values []float64
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read chart data: %w", err)
	}
	return values, nil
}

// Hours converts a sample count into simulated hours. Samples are taken
// once per wall second, each worth timeScale simulated seconds.
func Hours(samples int, timeScale float64) float64 {
	return float64(samples) * timeScale / 3600
}

// Label is a tick on the x axis.
type Label struct {
	Index int
	Text  string
}

// HourLabels places "0" at the first sample, one label per whole simulated
// hour and the total duration at the last sample.
func HourLabels(samples int, timeScale float64) []Label {
	if samples <= 0 {
		return nil
	}
	hours := Hours(samples, timeScale)
	labels := []Label{{Index: 0, Text: "0"}}

	whole := int(hours)
	if whole >= 1 {
		distance := samples / whole
		for h := 1; h <= whole; h++ {
			idx := distance * h
			if idx >= samples-1 {
				break
			}
			labels = append(labels, Label{Index: idx, Text: strconv.Itoa(h)})
		}
	}
	if samples > 1 {
		labels = append(labels, Label{Index: samples - 1, Text: strconv.FormatFloat(hours, 'f', 2, 64)})
	}
	return labels
}
