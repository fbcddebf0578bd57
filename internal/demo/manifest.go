package demo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestFile is written to the log dir of every run.
const ManifestFile = "manifest.yaml"

// Manifest records how a run was configured so results and charts can be
// interpreted later.
type Manifest struct {
	RunID        string           `yaml:"run_id"`
	Strategy     string           `yaml:"strategy"`
	Target       string           `yaml:"target"`
	ThreadCount  int              `yaml:"thread_count"`
	ProcessCount int              `yaml:"process_count"`
	TimeScale    float64          `yaml:"time_scale"`
	RunTime      string           `yaml:"run_time"`
	JSONInterval string           `yaml:"json_interval"`
	StartedAt    time.Time        `yaml:"started_at"`
	Throttle     ThrottleManifest `yaml:"throttle"`
}

// ThrottleManifest is the throttle part of a Manifest.
type ThrottleManifest struct {
	MaxLimit      int     `yaml:"max_limit"`
	Window        string  `yaml:"window"`
	Multiplier    float64 `yaml:"multiplier,omitempty"`
	DecayConstant string  `yaml:"decay_constant"`
	LeaderLease   string  `yaml:"leader_lease,omitempty"`
	MaxRetries    int     `yaml:"max_retries,omitempty"`
}

// RunDuration parses RunTime.
func (m Manifest) RunDuration() (time.Duration, error) {
	return time.ParseDuration(m.RunTime)
}

// WriteManifest stores m as dir/manifest.yaml.
func WriteManifest(dir string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads dir/manifest.yaml. A missing file is reported with an
// error wrapping os.ErrNotExist.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}
