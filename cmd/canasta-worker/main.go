package main

import (
	"context"
	"errors"
	"os"
	"time"

	"canasta/internal/amqp"
	"canasta/internal/cli"
	"canasta/internal/config"
	"canasta/internal/log"
	"canasta/internal/sheets"
	"canasta/internal/sheets/google"
	"canasta/internal/sheets/memory"
	"canasta/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadConfig(logger)

	logger.Info("Starting canasta-worker", "ledger_backend", cfg.LedgerBackend)

	repo := cli.OpenRepository(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ledger := buildLedger(logger, cfg)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if ledger == nil {
		// No ledger configured: transactions stay pending in SQLite until a
		// backend is enabled, so there is nothing to consume.
		logger.Info("Ledger sync disabled, waiting for shutdown")
		cli.WaitForShutdown(ctx, done)
		return
	}

	ledgerWorker := worker.NewLedgerWorker(repo, ledger, cfg.SyncBatchSize)

	// Drain anything the API created while no worker was running.
	if err := ledgerWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Startup sync check failed", log.FieldError, err.Error())
	}

	go func() {
		err := amqpClient.ConsumeTransactionSync(ctx, func(msg *amqp.TransactionSyncMessage) error {
			return ledgerWorker.HandleSyncMessage(ctx, msg)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err.Error())
		}
	}()

	// The periodic sweep is the backup for publish failures and crashes
	// between commit and publish.
	go func() {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ledgerWorker.ProcessPending(ctx); err != nil {
					logger.Error("Pending sweep failed", log.FieldError, err.Error())
				}
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}

func buildLedger(logger *log.Logger, cfg *config.Config) sheets.LedgerWriter {
	switch cfg.LedgerBackend {
	case config.LedgerGoogle:
		client, err := google.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err.Error())
			os.Exit(1)
		}
		logger.Info("Google Sheets ledger initialized",
			"spreadsheet_id", cfg.GoogleSpreadsheetID)
		return client
	case config.LedgerMemory:
		logger.Info("In-memory ledger initialized")
		return memory.New()
	default:
		return nil
	}
}
