package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"offerdex/internal/config"
	"offerdex/internal/logging"
	"offerdex/internal/services"
)

func main() {
	configDir := flag.String("config", ".", "directory containing config.yml")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.Logging); err != nil {
		slog.Error("Failed to initialize logging", "error", err)
		os.Exit(1)
	}

	logger := slog.Default()
	logger.Info("Starting offerdex node",
		"host", cfg.Server.Host,
		"http_port", cfg.Server.HTTPPort,
		"feed_url", cfg.Ledger.URL)

	mgr := services.NewManager(cfg, logger)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mgr.Init(initCtx); err != nil {
		initCancel()
		logger.Error("Failed to initialize services", "error", err)
		_ = logging.Shutdown()
		os.Exit(1)
	}
	initCancel()

	// Run blocks until the context is canceled or the listener fails.
	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	runErr := mgr.Run(runCtx)
	stop()
	if runErr != nil {
		logger.Error("Node stopped with error", "error", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	mgr.Shutdown(shutdownCtx)
	shutdownCancel()

	_ = logging.Shutdown()
	if runErr != nil {
		os.Exit(1)
	}
}
