// Package worker mirrors persisted transactions to the external ledger. It
// consumes AMQP sync messages and sweeps the pending backlog as a backup in
// case messages are lost.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"canasta/internal/amqp"
	"canasta/internal/sheets"
	"canasta/internal/storage"
)

// LedgerStore is the storage surface the worker needs.
type LedgerStore interface {
	GetTransaction(ctx context.Context, id string) (storage.TransactionRecord, []storage.TransactionLineRecord, error)
	PendingLedgerSync(ctx context.Context, limit int) ([]storage.TransactionRecord, error)
	MarkLedgerSynced(ctx context.Context, id string) error
	MarkLedgerSyncError(ctx context.Context, id string) error
}

// LedgerWorker pushes transactions from SQLite to the ledger.
type LedgerWorker struct {
	store     LedgerStore
	ledger    sheets.LedgerWriter
	batchSize int
}

func NewLedgerWorker(store LedgerStore, ledger sheets.LedgerWriter, batchSize int) *LedgerWorker {
	return &LedgerWorker{
		store:     store,
		ledger:    ledger,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single transaction sync message from AMQP.
func (w *LedgerWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"transaction_id", msg.ID,
		"version", msg.Version)

	rec, lines, err := w.store.GetTransaction(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	if rec.SyncStatus == storage.SyncDone {
		// Already mirrored by the pending sweep; the message is a duplicate.
		slog.DebugContext(ctx, "Transaction already synced, skipping", "transaction_id", msg.ID)
		return nil
	}

	if err := w.syncToLedger(ctx, rec, len(lines)); err != nil {
		return fmt.Errorf("sync transaction to ledger: %w", err)
	}
	return nil
}

// ProcessPending mirrors a batch of transactions still marked pending. This
// is the backup path for lost AMQP messages.
func (w *LedgerWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.store.PendingLedgerSync(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))

	for _, rec := range pending {
		_, lines, err := w.store.GetTransaction(ctx, rec.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to load transaction", "transaction_id", rec.ID, "error", err)
			continue
		}
		if err := w.syncToLedger(ctx, rec, len(lines)); err != nil {
			slog.ErrorContext(ctx, "Failed to sync transaction", "transaction_id", rec.ID, "error", err)
			continue
		}
	}

	return nil
}

// StartupSyncCheck drains the pending backlog at worker startup, recovering
// from missed messages or worker downtime.
func (w *LedgerWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.store.PendingLedgerSync(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending transactions for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending transactions found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending transactions on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0
	for _, rec := range pending {
		_, lines, err := w.store.GetTransaction(ctx, rec.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to load transaction for startup sync",
				"transaction_id", rec.ID, "error", err)
			errorCount++
			continue
		}
		if err := w.syncToLedger(ctx, rec, len(lines)); err != nil {
			slog.ErrorContext(ctx, "Failed to sync transaction during startup",
				"transaction_id", rec.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", successCount,
		"errors", errorCount)

	return nil
}

func (w *LedgerWorker) syncToLedger(ctx context.Context, rec storage.TransactionRecord, lineCount int) error {
	entry, err := ledgerEntry(rec, lineCount)
	if err != nil {
		if markErr := w.store.MarkLedgerSyncError(ctx, rec.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "transaction_id", rec.ID, "error", markErr)
		}
		return err
	}

	ref, err := w.ledger.AppendTransaction(ctx, entry)
	if err != nil {
		if markErr := w.store.MarkLedgerSyncError(ctx, rec.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "transaction_id", rec.ID, "error", markErr)
		}
		return fmt.Errorf("append to ledger: %w", err)
	}

	if err := w.store.MarkLedgerSynced(ctx, rec.ID); err != nil {
		// The append succeeded, so do not fail the message; the sweep will
		// retry the mark.
		slog.ErrorContext(ctx, "Failed to mark as synced", "transaction_id", rec.ID, "error", err)
	}

	slog.InfoContext(ctx, "Transaction synced to ledger",
		"transaction_id", rec.ID,
		"ledger_ref", ref,
		"total", rec.TotalAfter)

	return nil
}

func ledgerEntry(rec storage.TransactionRecord, lineCount int) (sheets.LedgerEntry, error) {
	before, err := decimal.NewFromString(rec.TotalBefore)
	if err != nil {
		return sheets.LedgerEntry{}, fmt.Errorf("transaction %s: bad total_before %q: %w", rec.ID, rec.TotalBefore, err)
	}
	after, err := decimal.NewFromString(rec.TotalAfter)
	if err != nil {
		return sheets.LedgerEntry{}, fmt.Errorf("transaction %s: bad total_after %q: %w", rec.ID, rec.TotalAfter, err)
	}
	return sheets.LedgerEntry{
		TransactionID: rec.ID,
		Date:          rec.Date,
		Description:   rec.Description,
		AccountID:     rec.AccountID,
		CategoryID:    rec.CategoryID,
		LineCount:     lineCount,
		TotalBefore:   before,
		TotalAfter:    after,
	}, nil
}
