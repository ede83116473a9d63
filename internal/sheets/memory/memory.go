// Package memory is an in-memory LedgerWriter used by tests and local runs
// without Google credentials.
package memory

import (
	"context"
	"fmt"
	"sync"

	ports "canasta/internal/sheets"
)

type Ledger struct {
	mu      sync.Mutex
	entries []ports.LedgerEntry

	// FailWith, when set, makes every append return this error.
	FailWith error
}

var _ ports.LedgerWriter = (*Ledger)(nil)

func New() *Ledger {
	return &Ledger{}
}

func (l *Ledger) AppendTransaction(_ context.Context, e ports.LedgerEntry) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailWith != nil {
		return "", l.FailWith
	}
	l.entries = append(l.entries, e)
	return fmt.Sprintf("memory!A%d", len(l.entries)), nil
}

// Entries returns a copy of everything appended so far.
func (l *Ledger) Entries() []ports.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ports.LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
