// Package main implements the entry point for the gadgetron reconstruction
// server: a streaming MRI reconstruction service that runs a configurable
// chain of processing stages over each client connection.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/casemr/gadgetron/config"
	"github.com/casemr/gadgetron/events"
	"github.com/casemr/gadgetron/metric"
	"github.com/casemr/gadgetron/server"
	"github.com/casemr/gadgetron/session"
	"github.com/casemr/gadgetron/stage"
	"github.com/casemr/gadgetron/stageregistry"
	"github.com/casemr/gadgetron/wire"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "gadgetron"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	// Stage registry: built-ins only. Site-specific stages would register
	// here before the server starts.
	stages := stage.NewRegistry()
	if err := stageregistry.Register(stages); err != nil {
		return fmt.Errorf("register stages: %w", err)
	}
	slog.Info("stage factories registered", "stages", stages.List())

	metricsRegistry := metric.NewMetricsRegistry()

	publisher, err := setupEventPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	codecs, err := wire.Default()
	if err != nil {
		return fmt.Errorf("register codecs: %w", err)
	}

	deps := session.Dependencies{
		Codecs:  codecs,
		Stages:  stages,
		Logger:  logger,
		Metrics: metricsRegistry.CoreMetrics(),
		Events:  publisher,
	}

	srv := server.New(cfg.Server, cfg.Chain, deps)

	metricsSrv := startMetricsServer(cfg.Metrics, metricsRegistry, logger)

	return runWithSignalHandling(srv, metricsSrv, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting gadgetron reconstruction server",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// initializeConfiguration loads and validates configuration
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	cfg := config.Default()
	if cliCfg.ConfigPath != "" {
		loaded, err := config.NewLoader().LoadFile(cliCfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupEventPublisher connects the optional NATS session event publisher.
// A nil publisher is valid and discards events.
func setupEventPublisher(cfg *config.Config, logger *slog.Logger) (*events.Publisher, error) {
	if cfg.NATS.URL == "" {
		return nil, nil
	}
	slog.Info("Connecting session event publisher", "url", cfg.NATS.URL, "subject", cfg.NATS.Subject)
	publisher, err := events.Connect(cfg.NATS.URL, cfg.NATS.Subject, logger)
	if err != nil {
		return nil, fmt.Errorf("connect event publisher: %w", err)
	}
	return publisher, nil
}

// startMetricsServer exposes the Prometheus endpoint when configured.
func startMetricsServer(cfg config.MetricsConfig, registry *metric.MetricsRegistry, logger *slog.Logger) *http.Server {
	if cfg.Listen == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("metrics endpoint listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return srv
}

// runWithSignalHandling starts the server and winds it down on SIGINT/SIGTERM.
func runWithSignalHandling(srv *server.Server, metricsSrv *http.Server, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := srv.Start(signalCtx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	slog.Info("gadgetron started, waiting for connections")

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := srv.Stop(shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", "error", err)
		}
	}

	slog.Info("gadgetron shutdown complete")
	return nil
}
