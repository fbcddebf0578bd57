package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/namelens/ratethrottle/internal/errors"
	"github.com/namelens/ratethrottle/internal/observability"
	"github.com/namelens/ratethrottle/internal/server/handlers"
)

var (
	healthURL   string
	healthProbe string
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the health endpoints of a running server",
	Long: `Query /health (or /health/<probe>) of a running server and report each check.
Exits with a non-zero code when the server is unhealthy or unreachable.`,
	Run: func(cmd *cobra.Command, args []string) {
		url := strings.TrimRight(serverBaseURL(cmd, healthURL), "/") + "/health"
		if healthProbe != "" {
			url += "/" + healthProbe
		}

		report, err := probeHealth(cmd.Context(), http.DefaultClient, url)
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Health check failed",
				errwrap.WrapExternalService(cmd.Context(), err, "health probe failed"))
			return
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", url, report.Status)
		names := make([]string, 0, len(report.Checks))
		for name := range report.Checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", name, report.Checks[name])
		}
		observability.CLILogger.Debug("Health probe finished", zap.String("url", url), zap.String("status", report.Status))

		if report.Status != handlers.StatusHealthy {
			ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Server unhealthy",
				errwrap.NewUnavailableError("server reported "+report.Status))
		}
	},
}

// healthReport covers both the aggregate and the probe response shapes.
type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func probeHealth(ctx context.Context, client *http.Client, url string) (*healthReport, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var report healthReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode health response (%s): %w", resp.Status, err)
	}
	if report.Status == "" {
		// Unhealthy responses are error envelopes.
		report.Status = handlers.StatusUnhealthy
	}
	return &report, nil
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().StringVar(&healthURL, "url", "", "server base URL (default from server.host/server.port)")
	healthCmd.Flags().StringVar(&healthProbe, "probe", "", "probe to query: live|ready|startup (default aggregate)")
}
