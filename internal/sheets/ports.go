package sheets

import (
	"context"

	"github.com/shopspring/decimal"
)

// LedgerEntry is one row of the external ledger: a submitted transaction in
// display form.
type LedgerEntry struct {
	TransactionID string
	Date          string // 2006-01-02
	Description   string
	AccountID     string
	CategoryID    string
	LineCount     int
	TotalBefore   decimal.Decimal
	TotalAfter    decimal.Decimal
}

// Ports for outbound ledger adapters.
type (
	LedgerWriter interface {
		AppendTransaction(ctx context.Context, e LedgerEntry) (rowRef string, err error)
	}
)
