package demo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoRuns is returned by LatestLogDir when root holds no run directories.
var ErrNoRuns = errors.New("no run directories found")

// NewLogDir names the log directory of a run started at now.
func NewLogDir(root string, now time.Time) string {
	return filepath.Join(root, fmt.Sprintf("%s-%09d", now.Format("2006-01-02-15-04-05"), now.Nanosecond()))
}

// LatestLogDir returns the most recently modified run directory under root.
func LatestLogDir(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("read log root: %w", err)
	}

	var (
		latest   string
		latestAt time.Time
	)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestAt) {
			latest = filepath.Join(root, entry.Name())
			latestAt = info.ModTime()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%w in %s", ErrNoRuns, root)
	}
	return latest, nil
}
