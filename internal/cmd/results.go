package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/namelens/ratethrottle/internal/config"
	"github.com/namelens/ratethrottle/internal/core"
	"github.com/namelens/ratethrottle/internal/demo"
	"github.com/namelens/ratethrottle/internal/output"
)

var resultsCmd = &cobra.Command{
	Use:   "results [log-dir]",
	Short: "Summarize the worker results of a run",
	Long: `Read every worker result file of a run directory (default: the latest run)
and print them with summary statistics. JSON output is the column view:
one list per result key with one value per worker.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		dir, err := resolveRunDir(cmd, args)
		if err != nil {
			return err
		}

		if format == output.FormatJSON {
			columns, err := demo.Results(dir)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(columns, "", "  ")
			if err != nil {
				return err
			}
			return writeRendered(cmd, string(data))
		}

		run, err := runFromDir(dir)
		if err != nil {
			return err
		}
		rendered, err := output.NewFormatter(format).FormatRun(run)
		if err != nil {
			return err
		}
		summary, err := output.FormatSummary(format, run.Results)
		if err != nil {
			return err
		}
		return writeRendered(cmd, rendered+"\n\n"+summary)
	},
}

// resolveRunDir returns the explicit run dir argument or the latest run
// under the configured log root.
func resolveRunDir(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return "", err
	}
	root := cfg.Demo.LogDir
	if strings.TrimSpace(root) == "" {
		root = config.DefaultLogRoot()
	}
	return demo.LatestLogDir(root)
}

// runFromDir rebuilds a run from its manifest and result files. A run
// directory without a manifest still yields its results.
func runFromDir(dir string) (*core.Run, error) {
	results, err := demo.ReadResults(dir)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no worker results in %s", dir)
	}

	run := &core.Run{LogDir: dir, Results: results}
	manifest, err := demo.ReadManifest(dir)
	switch {
	case err == nil:
		run.ID = manifest.RunID
		run.Strategy = manifest.Strategy
		run.Target = manifest.Target
		run.ThreadCount = manifest.ThreadCount
		run.ProcessCount = manifest.ProcessCount
		run.TimeScale = manifest.TimeScale
		run.StartedAt = manifest.StartedAt
		if d, err := manifest.RunDuration(); err == nil {
			run.RunTime = d
		}
	case errors.Is(err, os.ErrNotExist):
		if info, statErr := os.Stat(dir); statErr == nil {
			run.StartedAt = info.ModTime().UTC().Truncate(time.Second)
		}
	default:
		return nil, err
	}
	return run, nil
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	addOutputFlags(resultsCmd)
}
