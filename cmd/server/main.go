// Package main is the entry point for Custodian, the bank statement
// ingestion pipeline and portfolio metrics service.
//
// Startup order:
// 1. Load configuration from the environment (.env supported)
// 2. Build the logger
// 3. Wire databases, repositories, services and jobs via di.Wire
// 4. Start the HTTP server and the scheduler
// 5. Wait for SIGINT/SIGTERM and shut down within 10 seconds
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/custodian/internal/config"
	"github.com/aristath/custodian/internal/di"
	"github.com/aristath/custodian/internal/server"
	"github.com/aristath/custodian/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// getEnv retrieves an environment variable value, returning a fallback if the
// variable is not set or is empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	version := getEnv("VERSION", "dev")
	log.Info().
		Str("version", version).
		Str("input_dir", cfg.InputDir).
		Str("output_dir", cfg.OutputDir).
		Msg("Starting Custodian")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	// Closing flushes the WAL of both databases
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close databases")
		}
	}()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Version:   version,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down...")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Scheduled jobs wait on their tasks, so tasks are cancelled first
	if err := container.TaskManager.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Tasks did not stop in time")
	}
	container.Scheduler.Stop()

	log.Info().Msg("Server stopped")
}
