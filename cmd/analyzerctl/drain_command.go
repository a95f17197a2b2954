package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"interview-analyzer/internal/shared/server/respond"
)

const defaultAPIURL = "http://localhost:8080"

type drainResponse struct {
	PendingCount int  `json:"pendingCount"`
	Started      bool `json:"started"`
}

// newDrainCommand asks a running API server to drain its commentary queue.
// The queue is in memory, so only the process holding it can drain it.
func newDrainCommand(ctx *commandContext) *cobra.Command {
	apiURL := os.Getenv("RA_API_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Trigger the commentary drain on a running API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: timeout}
			resp, err := triggerRemoteDrain(cmd, client, apiURL)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			if resp.PendingCount == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Commentary queue is empty")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "drain started=%t pending=%d\n", resp.Started, resp.PendingCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&apiURL, "api", apiURL, "Base URL of the API server (RA_API_URL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "HTTP timeout")
	return cmd
}

func triggerRemoteDrain(cmd *cobra.Command, client *http.Client, apiURL string) (drainResponse, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(apiURL), "/") + "/api/v1/batch/drain"
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, endpoint, nil)
	if err != nil {
		return drainResponse{}, fmt.Errorf("build drain request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return drainResponse{}, fmt.Errorf("drain request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return drainResponse{}, fmt.Errorf("read drain response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		var apiErr respond.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return drainResponse{}, fmt.Errorf("drain failed: %d %s: %s", resp.StatusCode, apiErr.Error.Code, apiErr.Error.Message)
		}
		return drainResponse{}, fmt.Errorf("drain failed: status %d", resp.StatusCode)
	}
	var out drainResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return drainResponse{}, fmt.Errorf("decode drain response: %w", err)
	}
	return out, nil
}
