package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var healthAddr string

// healthCmd probes a running `marketready run` instance's /health
// endpoint, mirroring cmd_health.go's --json-gated health report in the
// teacher repo.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Query a running instance's /health endpoint",
	RunE:  runHealth,
}

func init() {
	healthCmd.Flags().StringVar(&healthAddr, "addr", "http://localhost:8090", "Base URL of the running instance")
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(healthAddr + "/health")
	if err != nil {
		if jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
				"overall": "UNREACHABLE",
				"error":   err.Error(),
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "UNREACHABLE: %v\n", err)
		return nil
	}
	defer resp.Body.Close()

	var snap healthSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "overall: %s  uptime: %.0fs  symbols: %d\n",
		snap.Overall, snap.UpTimeSec, len(snap.Symbols))
	for key, p := range snap.Symbols {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s  degraded=%v  overallConfidence=%.3f  reasons=%v\n",
			key, p.Degraded, p.OverallConfidence, p.DegradedReasons)
	}
	return nil
}
