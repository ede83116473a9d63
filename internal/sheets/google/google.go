// Package google mirrors submitted transactions to a Google Sheets ledger.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "canasta/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Year-prefixed at construction time, e.g. "2026 Ledger".
	ledgerSheet string
}

var _ ports.LedgerWriter = (*Client)(nil)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Optional: GOOGLE_LEDGER_SHEET_NAME (default "Ledger"); credentials via
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	ledgerBase := strings.TrimSpace(os.Getenv("GOOGLE_LEDGER_SHEET_NAME"))
	if ledgerBase == "" {
		ledgerBase = "Ledger"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		ledgerSheet:   yearPrefixedName(ledgerBase, time.Now().Year()),
	}, nil
}

// newSheetsService initializes a Sheets service using service account
// credentials from the environment.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "credentials_size", len(credentialsJSON))
	return service, nil
}

// AppendTransaction writes one ledger row and returns its A1-style range
// reference.
func (c *Client) AppendTransaction(ctx context.Context, e ports.LedgerEntry) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if e.TransactionID == "" {
		return "", errors.New("ledger entry has no transaction id")
	}

	// Next empty row follows the current height of column A.
	rng := fmt.Sprintf("%s!A:A", c.ledgerSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get sheet dimensions for %s: %w", c.ledgerSheet, err)
	}
	nextRow := len(resp.Values) + 1

	dataRange := fmt.Sprintf("%s!A%d:H%d", c.ledgerSheet, nextRow, nextRow)
	vr := &gsheet.ValueRange{Values: [][]any{{
		e.Date,
		e.Description,
		e.AccountID,
		e.CategoryID,
		e.LineCount,
		e.TotalBefore.StringFixed(2),
		e.TotalAfter.StringFixed(2),
		e.TransactionID,
	}}}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", dataRange, err)
	}

	return dataRange, nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a
// 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
