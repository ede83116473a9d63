// Package cli holds the bootstrap shared by the canasta binaries: env file
// loading, logging, configuration and the SQLite repository.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"canasta/internal/config"
	"canasta/internal/log"
	"canasta/internal/storage"
)

// LoadEnvFile loads the .env file for local development. Missing files are
// fine; production runs on real environment variables.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger initializes structured logging and installs it as the default.
func SetupLogger(component string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Component = component
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadConfig loads and validates configuration, exiting the process on
// failure.
func LoadConfig(logger *log.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	return cfg
}

// OpenRepository opens the SQLite repository and runs migrations, exiting
// the process on failure.
func OpenRepository(logger *log.Logger, dbPath string) *storage.Repository {
	repo, err := storage.NewRepository(dbPath)
	if err != nil {
		logger.Error("Failed to open SQLite repository",
			log.FieldError, err.Error(), "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// GracefulShutdown cancels the returned context on SIGINT/SIGTERM, runs the
// cleanup and closes done when finished.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup()
		}
		cancel()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-time.After(2 * time.Second):
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup has run.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
