package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/marmos91/osdc/internal/logger"
	"github.com/marmos91/osdc/internal/telemetry"
	"github.com/marmos91/osdc/pkg/config"
	"github.com/marmos91/osdc/pkg/messenger"
	"github.com/marmos91/osdc/pkg/metrics"
	"github.com/marmos91/osdc/pkg/monclient"
	"github.com/marmos91/osdc/pkg/osdc"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the client in the foreground",
	Long: `start loads configuration, brings up logging, tracing and (if enabled)
the Prometheus metrics endpoint, and blocks until interrupted.

pkg/messenger and pkg/monclient name the messenger and monitor client
contracts but ship no production transport, so start mounts the client
against their in-process fakes; it does not connect to a live cluster.
Mounting against a live cluster requires an embedding program that calls
osdc.Mount with its own transport.

Examples:
  osdc start --config /etc/osdc/config.yaml
  OSDC_LOGGING_LEVEL=DEBUG osdc start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "osdc",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	logger.Info("configuration loaded", "cluster", cfg.ClusterName, "monitors", cfg.Monitors)
	if telemetry.IsEnabled() {
		logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("telemetry disabled")
	}

	fsid, _, err := config.ParseFsid(cfg)
	if err != nil {
		return err
	}

	// No production messenger or monitor client ships in this module (see
	// pkg/messenger and pkg/monclient); start mounts the client against the
	// in-process fakes so every other part of the ambient stack — logging,
	// metrics, tracing, the debug endpoint — comes up exactly as it would
	// against a real transport. An embedding program swaps these two values
	// for its own and calls osdc.Mount itself.
	client, err := osdc.Mount(ctx, cfg, &messenger.Fake{}, &monclient.Fake{FsidValue: fsid})
	if err != nil {
		return fmt.Errorf("failed to mount: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("client close error", "error", err)
		}
	}()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsSrv = startMetricsServer(cfg.Metrics.Port, client)
	} else {
		logger.Info("metrics disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("osdc running, press Ctrl+C to stop")
	<-sigChan
	signal.Stop(sigChan)
	logger.Info("shutdown signal received")
	cancel()

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	return nil
}

func startMetricsServer(port int, client *osdc.Client) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/requests", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(client.Snapshot()); err != nil {
			logger.Error("debug/requests encode error", "error", err)
		}
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("metrics server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return srv
}
