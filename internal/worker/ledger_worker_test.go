package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canasta/internal/amqp"
	"canasta/internal/sheets/memory"
	"canasta/internal/storage"
)

type fakeLedgerStore struct {
	transactions map[string]storage.TransactionRecord
	lines        map[string][]storage.TransactionLineRecord

	synced   []string
	errored  []string
	loadErr  error
	markErr  error
	pendErr  error
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{
		transactions: make(map[string]storage.TransactionRecord),
		lines:        make(map[string][]storage.TransactionLineRecord),
	}
}

func (f *fakeLedgerStore) add(rec storage.TransactionRecord, lineCount int) {
	f.transactions[rec.ID] = rec
	lines := make([]storage.TransactionLineRecord, lineCount)
	for i := range lines {
		lines[i] = storage.TransactionLineRecord{TransactionID: rec.ID, Position: i}
	}
	f.lines[rec.ID] = lines
}

func (f *fakeLedgerStore) GetTransaction(_ context.Context, id string) (storage.TransactionRecord, []storage.TransactionLineRecord, error) {
	if f.loadErr != nil {
		return storage.TransactionRecord{}, nil, f.loadErr
	}
	rec, ok := f.transactions[id]
	if !ok {
		return storage.TransactionRecord{}, nil, storage.ErrNotFound
	}
	return rec, f.lines[id], nil
}

func (f *fakeLedgerStore) PendingLedgerSync(_ context.Context, limit int) ([]storage.TransactionRecord, error) {
	if f.pendErr != nil {
		return nil, f.pendErr
	}
	var out []storage.TransactionRecord
	for _, rec := range f.transactions {
		if rec.SyncStatus == storage.SyncPending && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeLedgerStore) MarkLedgerSynced(_ context.Context, id string) error {
	if f.markErr != nil {
		return f.markErr
	}
	rec := f.transactions[id]
	rec.SyncStatus = storage.SyncDone
	f.transactions[id] = rec
	f.synced = append(f.synced, id)
	return nil
}

func (f *fakeLedgerStore) MarkLedgerSyncError(_ context.Context, id string) error {
	f.errored = append(f.errored, id)
	return nil
}

func pendingTransaction(id string) storage.TransactionRecord {
	return storage.TransactionRecord{
		ID:          id,
		AccountID:   "acc-1",
		CategoryID:  "cat-1",
		Date:        "2026-03-14",
		Description: "weekly groceries",
		Discount:    "0",
		TotalBefore: "284.38",
		TotalAfter:  "284.38",
		SyncStatus:  storage.SyncPending,
		SyncVersion: 1,
		CreatedAt:   time.Now(),
	}
}

func TestHandleSyncMessageMirrorsTransaction(t *testing.T) {
	store := newFakeLedgerStore()
	store.add(pendingTransaction("tx-1"), 2)
	ledger := memory.New()
	w := NewLedgerWorker(store, ledger, 10)

	err := w.HandleSyncMessage(context.Background(), amqp.NewTransactionSyncMessage("tx-1", 1))
	require.NoError(t, err)

	entries := ledger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "tx-1", entries[0].TransactionID)
	assert.Equal(t, 2, entries[0].LineCount)
	assert.Equal(t, "284.38", entries[0].TotalAfter.StringFixed(2))
	assert.Equal(t, []string{"tx-1"}, store.synced)
}

func TestHandleSyncMessageSkipsAlreadySynced(t *testing.T) {
	store := newFakeLedgerStore()
	rec := pendingTransaction("tx-1")
	rec.SyncStatus = storage.SyncDone
	store.add(rec, 1)
	ledger := memory.New()
	w := NewLedgerWorker(store, ledger, 10)

	err := w.HandleSyncMessage(context.Background(), amqp.NewTransactionSyncMessage("tx-1", 1))
	require.NoError(t, err)
	assert.Empty(t, ledger.Entries(), "duplicate message must not double-write the ledger")
}

func TestHandleSyncMessageUnknownTransaction(t *testing.T) {
	w := NewLedgerWorker(newFakeLedgerStore(), memory.New(), 10)

	err := w.HandleSyncMessage(context.Background(), amqp.NewTransactionSyncMessage("missing", 1))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHandleSyncMessageLedgerFailureMarksError(t *testing.T) {
	store := newFakeLedgerStore()
	store.add(pendingTransaction("tx-1"), 1)
	ledger := memory.New()
	ledger.FailWith = errors.New("quota exceeded")
	w := NewLedgerWorker(store, ledger, 10)

	err := w.HandleSyncMessage(context.Background(), amqp.NewTransactionSyncMessage("tx-1", 1))
	require.Error(t, err)
	assert.Equal(t, []string{"tx-1"}, store.errored)
	assert.Empty(t, store.synced)
}

func TestProcessPendingSweepsBacklog(t *testing.T) {
	store := newFakeLedgerStore()
	store.add(pendingTransaction("tx-1"), 1)
	store.add(pendingTransaction("tx-2"), 3)
	ledger := memory.New()
	w := NewLedgerWorker(store, ledger, 10)

	require.NoError(t, w.ProcessPending(context.Background()))
	assert.Len(t, ledger.Entries(), 2)
	assert.Len(t, store.synced, 2)

	// A second sweep finds nothing pending.
	require.NoError(t, w.ProcessPending(context.Background()))
	assert.Len(t, ledger.Entries(), 2)
}

func TestProcessPendingContinuesPastFailures(t *testing.T) {
	store := newFakeLedgerStore()
	bad := pendingTransaction("tx-bad")
	bad.TotalBefore = "not-a-number"
	store.add(bad, 1)
	store.add(pendingTransaction("tx-good"), 1)
	ledger := memory.New()
	w := NewLedgerWorker(store, ledger, 10)

	require.NoError(t, w.ProcessPending(context.Background()))
	require.Len(t, ledger.Entries(), 1)
	assert.Equal(t, "tx-good", ledger.Entries()[0].TransactionID)
	assert.Equal(t, []string{"tx-bad"}, store.errored)
}

func TestStartupSyncCheckDrainsBacklog(t *testing.T) {
	store := newFakeLedgerStore()
	store.add(pendingTransaction("tx-1"), 1)
	ledger := memory.New()
	w := NewLedgerWorker(store, ledger, 2)

	require.NoError(t, w.StartupSyncCheck(context.Background()))
	assert.Len(t, ledger.Entries(), 1)
}
