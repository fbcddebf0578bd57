package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/namelens/ratethrottle/internal/server/handlers"
	"github.com/namelens/ratethrottle/internal/throttle"
)

var (
	quotaURL   string
	quotaToken string
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect or adjust the quota of a running server",
}

var quotaStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Spend one request and print the quota headers",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := fetchQuotaStatus(cmd.Context(), http.DefaultClient, serverBaseURL(cmd, quotaURL))
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "status=%d remaining=%d multiplier=%g\n",
			status.StatusCode, status.Remaining, status.RateMultiplier)
		return nil
	},
}

var quotaMultiplierCmd = &cobra.Command{
	Use:   "multiplier <value>",
	Short: "Change the server's rate multiplier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid multiplier %q: %w", args[0], err)
		}
		token := quotaToken
		if token == "" {
			token = os.Getenv(adminTokenEnv)
		}
		if token == "" {
			return fmt.Errorf("admin token required (--token or %s)", adminTokenEnv)
		}

		resp, err := setQuotaMultiplier(cmd.Context(), http.DefaultClient, serverBaseURL(cmd, quotaURL), token, value)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "multiplier=%g remaining=%d\n", resp.Multiplier, resp.Remaining)
		return nil
	},
}

// serverBaseURL returns explicit when set, otherwise the configured server
// address.
func serverBaseURL(cmd *cobra.Command, explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return strings.TrimRight(explicit, "/")
	}
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return "http://localhost:9292"
	}
	return fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
}

func fetchQuotaStatus(ctx context.Context, client *http.Client, baseURL string) (*throttle.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quota request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)
	return throttle.FromHTTP(resp), nil
}

func setQuotaMultiplier(ctx context.Context, client *http.Client, baseURL, token string, value float64) (*handlers.QuotaResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	body, err := json.Marshal(handlers.MultiplierRequest{Multiplier: value})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, baseURL+"/admin/multiplier", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("multiplier request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("multiplier request failed: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	var out handlers.QuotaResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode multiplier response: %w", err)
	}
	return &out, nil
}

func init() {
	rootCmd.AddCommand(quotaCmd)
	quotaCmd.AddCommand(quotaStatusCmd, quotaMultiplierCmd)

	quotaCmd.PersistentFlags().StringVar(&quotaURL, "url", "", "server base URL (default from server.host/server.port)")
	quotaMultiplierCmd.Flags().StringVar(&quotaToken, "token", "", "admin bearer token (default $"+adminTokenEnv+")")
}
