package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	healthcheckTimeout int
	healthcheckURL     string
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Probe a running server's readiness endpoint",
	Long: `Call /readyz on a running server. Used as the container
HEALTHCHECK.

Exit codes:
  0 - server responds 200 (ready or degraded)
  1 - server is unavailable or unreachable`,
	RunE: runHealthcheck,
}

func init() {
	healthcheckCmd.Flags().IntVar(&healthcheckTimeout, "timeout", 5, "timeout in seconds")
	healthcheckCmd.Flags().StringVar(&healthcheckURL, "url", "", "readiness URL (default: http://localhost:{SERVER_PORT}/readyz)")
}

type healthCheckResult struct {
	Status    string
	IsHealthy bool
	LatencyMs int64
	Error     string
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	url := healthcheckURL
	if url == "" {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		url = fmt.Sprintf("http://localhost:%s/readyz", port)
	}

	result := performHealthCheck(url)
	if result.Error != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "health check failed: %s\n", result.Error)
		os.Exit(1)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "status=%s latency=%dms\n", result.Status, result.LatencyMs)
	if !result.IsHealthy {
		os.Exit(1)
	}
	return nil
}

// performHealthCheck calls the readiness endpoint and interprets the
// body. A 200 counts as healthy even when degraded: a node with a
// warning check is still serving traffic.
func performHealthCheck(url string) healthCheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(healthcheckTimeout)*time.Second)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return healthCheckResult{Error: err.Error()}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return healthCheckResult{Error: err.Error(), LatencyMs: time.Since(start).Milliseconds()}
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return healthCheckResult{
			Error:     fmt.Sprintf("invalid response: %v", err),
			LatencyMs: time.Since(start).Milliseconds(),
		}
	}

	return healthCheckResult{
		Status:    body.Status,
		IsHealthy: resp.StatusCode == http.StatusOK,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}
