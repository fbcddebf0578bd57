package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/namelens/ratethrottle/internal/core/store"
	"github.com/namelens/ratethrottle/internal/output"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect saved demo runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		db, err := openConfiguredStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		runs, err := db.ListRuns(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 && format != output.FormatJSON {
			return writeRendered(cmd, "(no saved runs)")
		}

		rendered, err := output.NewFormatter(format).FormatRuns(runs)
		if err != nil {
			return err
		}
		return writeRendered(cmd, rendered)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one saved run with its worker results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		db, err := openConfiguredStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		run, err := db.GetRun(cmd.Context(), args[0])
		if errors.Is(err, store.ErrRunNotFound) {
			return fmt.Errorf("run %s not found", args[0])
		}
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatRun(run)
		if err != nil {
			return err
		}
		return writeRendered(cmd, rendered)
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a saved run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openConfiguredStore(cmd)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		deleted, err := db.DeleteRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("run %s not found", args[0])
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted run %s\n", args[0])
		return nil
	},
}

func openConfiguredStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return openStore(cmd.Context(), cfg.Store)
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd)

	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to list")
	addOutputFlags(historyListCmd)
	addOutputFlags(historyShowCmd)
}
