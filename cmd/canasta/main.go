package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"canasta/internal/amqp"
	"canasta/internal/cli"
	apphttp "canasta/internal/http"
	"canasta/internal/log"
	"canasta/internal/pricing"
	"canasta/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadConfig(logger)

	repo := cli.OpenRepository(logger, cfg.SQLiteDBPath)

	// A broker outage must not keep the API down: transactions are marked
	// pending in SQLite and the worker's sweep picks them up.
	var publisher services.SyncPublisher
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, ledger sync relies on the pending sweep",
			log.FieldError, err.Error())
	} else {
		publisher = amqpClient
	}

	resolver := pricing.NewResolver(repo, logger)
	builder := pricing.NewBuilder(repo, resolver, logger)
	svc := services.NewTransactionService(repo, builder, publisher, logger)

	srv := apphttp.NewServer(apphttp.Config{
		Port:              cfg.PortNumber(),
		RequestsPerMinute: cfg.HTTPRequestsPerMinute,
		CacheSize:         cfg.CatalogCacheSize,
		CacheTTL:          cfg.CatalogCacheTTL,
	}, svc, repo, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		if err := svc.Close(); err != nil {
			logger.Error("Service close error", log.FieldError, err.Error())
		}
	})

	logger.Info("Starting canasta API", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
