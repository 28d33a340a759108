package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/marketready/internal/bus"
	"github.com/sawpanic/marketready/internal/config"
	"github.com/sawpanic/marketready/internal/readiness"
	"github.com/sawpanic/marketready/internal/registry"
)

var (
	listenAddr string
)

// runCmd wires the aggregator to an in-process MemoryBus and serves
// /health and /metrics until an interrupt — the same signal-driven
// run-loop shape as cmd/cryptorun/main.go's long-running subcommands.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the readiness aggregator and serve /health and /metrics",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&listenAddr, "listen", ":8090", "HTTP listen address for /health and /metrics")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := readiness.DefaultConfig()
	var store registry.SnapshotStore
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		logger.Info("loaded config", map[string]any{"path": configPath})

		store, err = config.LoadSnapshotStore(configPath)
		if err != nil {
			return err
		}
		if store != nil {
			logger.Info("source registry persistence enabled", nil)
		}
	} else {
		logger.Info("no --config given, using built-in defaults", nil)
	}

	eventBus := bus.NewMemoryBus()
	reg := registry.New(store)
	agg := readiness.New(cfg, eventBus, reg, logger)

	metrics, promReg := newMetricsRegistry()
	metrics.Subscribe(eventBus)

	cache := newStatusCache()
	cache.Subscribe(eventBus)

	persister := newRegistryPersister(reg)
	persister.Subscribe(eventBus)

	agg.Start()
	defer agg.Stop()

	srv := newHTTPServer(listenAddr, cache, promReg)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", map[string]any{"addr": listenAddr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", map[string]any{"signal": sig.String()})
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
