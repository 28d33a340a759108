package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	marketlog "github.com/sawpanic/marketready/internal/log"
)

const (
	appName = "marketready"
	version = "v0.1.0"
)

var (
	configPath string
	jsonOutput bool

	logger = marketlog.NewStderr()
)

var rootCmd = &cobra.Command{
	Use:     appName,
	Short:   "Market-data readiness aggregator",
	Version: version,
	Long: `marketready consumes raw and aggregated market-data events and
emits a per-bucket readiness status (system:market_data_status): overall
and per-block confidence, a degraded flag with ordered reasons, warming-up
progress, and active/expected source counts.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (defaults to built-in defaults)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON instead of human-readable output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(healthCmd)
}

// Execute runs the CLI, exiting the process with status 1 on error — the
// same top-level error handling cmd/cryptorun/main.go uses.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
