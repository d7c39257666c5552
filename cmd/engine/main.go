package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cartomix/choreo/internal/config"
	"github.com/cartomix/choreo/internal/engine"
	"github.com/cartomix/choreo/internal/httpapi"
	"github.com/cartomix/choreo/internal/orchestrator"
	"github.com/cartomix/choreo/internal/scanner"
	"github.com/cartomix/choreo/internal/storage"
	"github.com/cartomix/choreo/internal/telemetry"
)

// sampleRate is the PCM sample rate every analysis component (the
// spectrum computer, the feature extractor, the offline analyzer) is
// built for. Capture upstream of the engine is responsible for
// resampling to this rate.
const sampleRate = 44100

// telemetryPollInterval is how often internal/telemetry.Hub polls the
// engine for a fresh snapshot to compare against the last broadcast
// one.
const telemetryPollInterval = 100 * time.Millisecond

// scanWorkerPollInterval is how often the background scan worker checks
// the job queue for a scan enqueued through POST /api/scan.
const scanWorkerPollInterval = 2 * time.Second

func main() {
	cfg := config.Parse()

	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Error("failed to create data directory", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DataDir, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rng := rand.New(rand.NewSource(1))
	eng := engine.New(logger, sampleRate, rng)
	eng.SetMode(engine.Mode(cfg.AutoAdvanceMode))

	orch := orchestrator.New(logger, eng, sampleRate, rng)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := telemetry.NewHub(logger)
	go hub.Run(ctx, eng, telemetryPollInterval)

	scanWorker := scanner.NewScanner(db, logger)
	go scanWorker.RunWorker(ctx, scanWorkerPollInterval)

	api := httpapi.NewServer(cfg, logger, db, eng, orch, hub, rng)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: api.Handler(),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", "error", err)
		}
	}()

	logger.Info("starting engine server",
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
		"auto_advance_mode", cfg.AutoAdvanceMode,
	)

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
