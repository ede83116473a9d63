package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"canasta/internal/core"
)

// Ledger sync states for transactions.
const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncError   = "error"
)

var ErrNotFound = errors.New("not found")

// Repository is the SQLite-backed store for the catalog, price history and
// transactions.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

// Ping verifies the database connection is alive.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

type itemRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	TaxRate     string `db:"tax_rate"`
	Exempt      bool   `db:"exempt"`
	LatestPrice string `db:"latest_price"`
}

func (row itemRow) toItem() (core.Item, error) {
	rate, err := decimal.NewFromString(row.TaxRate)
	if err != nil {
		return core.Item{}, fmt.Errorf("item %s: bad tax rate %q: %w", row.ID, row.TaxRate, err)
	}
	latest, err := decimal.NewFromString(row.LatestPrice)
	if err != nil {
		return core.Item{}, fmt.Errorf("item %s: bad latest price %q: %w", row.ID, row.LatestPrice, err)
	}
	return core.Item{
		ID:          row.ID,
		Name:        row.Name,
		TaxRate:     rate,
		Exempt:      row.Exempt,
		LatestPrice: latest,
	}, nil
}

// ListItems returns the whole item catalog ordered by name.
func (r *Repository) ListItems(ctx context.Context) ([]core.Item, error) {
	var rows []itemRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT id, name, tax_rate, exempt, latest_price FROM items ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	items := make([]core.Item, 0, len(rows))
	for _, row := range rows {
		it, err := row.toItem()
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// GetItemsByIDs returns the catalog entries for the given ids; absent ids
// are simply missing from the map.
func (r *Repository) GetItemsByIDs(ctx context.Context, ids []string) (map[string]core.Item, error) {
	if len(ids) == 0 {
		return map[string]core.Item{}, nil
	}
	query, args, err := sqlx.In(`SELECT id, name, tax_rate, exempt, latest_price FROM items WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build item query: %w", err)
	}
	var rows []itemRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}
	out := make(map[string]core.Item, len(rows))
	for _, row := range rows {
		it, err := row.toItem()
		if err != nil {
			return nil, err
		}
		out[it.ID] = it
	}
	return out, nil
}

// UpsertItem inserts or replaces a catalog entry.
func (r *Repository) UpsertItem(ctx context.Context, it core.Item) error {
	if err := it.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO items (id, name, tax_rate, exempt, latest_price) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, tax_rate=excluded.tax_rate,
		 exempt=excluded.exempt, latest_price=excluded.latest_price`,
		it.ID, it.Name, it.TaxRate.String(), it.Exempt, it.LatestPrice.String())
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", it.ID, err)
	}
	return nil
}

func (r *Repository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	var out []core.Account
	if err := r.db.SelectContext(ctx, &out, `SELECT id, name FROM accounts ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]core.Category, error) {
	var out []core.Category
	if err := r.db.SelectContext(ctx, &out, `SELECT id, name FROM categories ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

func (r *Repository) CreateAccount(ctx context.Context, a core.Account) error {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO accounts (id, name) VALUES (?, ?)`, a.ID, a.Name); err != nil {
		return fmt.Errorf("create account %s: %w", a.ID, err)
	}
	return nil
}

func (r *Repository) CreateCategory(ctx context.Context, c core.Category) error {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO categories (id, name) VALUES (?, ?)`, c.ID, c.Name); err != nil {
		return fmt.Errorf("create category %s: %w", c.ID, err)
	}
	return nil
}

func (r *Repository) AccountExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM accounts WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("check account %s: %w", id, err)
	}
	return n > 0, nil
}

func (r *Repository) CategoryExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM categories WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("check category %s: %w", id, err)
	}
	return n > 0, nil
}

type priceRow struct {
	ItemID string `db:"item_id"`
	Price  string `db:"price"`
}

// PricesOn batch-loads the recorded prices for the given items on a date.
// Items with no recorded price are absent from the map.
func (r *Repository) PricesOn(ctx context.Context, ids []string, date core.Date) (map[string]decimal.Decimal, error) {
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	query, args, err := sqlx.In(`SELECT item_id, price FROM price_history WHERE date = ? AND item_id IN (?)`, date.String(), ids)
	if err != nil {
		return nil, fmt.Errorf("build price query: %w", err)
	}
	var rows []priceRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("get prices on %s: %w", date, err)
	}
	out := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		p, err := decimal.NewFromString(row.Price)
		if err != nil {
			return nil, fmt.Errorf("price for %s on %s: bad value %q: %w", row.ItemID, date, row.Price, err)
		}
		out[row.ItemID] = p
	}
	return out, nil
}

// RecordPrice writes a price-history row for (item, date) and refreshes the
// item's latest price. Overwrites any previous record for that key; the
// caller decides, per the line's resolution, whether this is an insert of a
// new observation or an overwrite of a conflicting one.
func (r *Repository) RecordPrice(ctx context.Context, rec core.PriceRecord) error {
	return r.recordPriceTx(ctx, r.db, rec)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) recordPriceTx(ctx context.Context, tx execer, rec core.PriceRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO price_history (item_id, date, price, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(item_id, date) DO UPDATE SET price=excluded.price, updated_at=excluded.updated_at`,
		rec.ItemID, rec.Date.String(), rec.Price.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record price %s@%s: %w", rec.ItemID, rec.Date, err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE items SET latest_price = ? WHERE id = ?`, rec.Price.String(), rec.ItemID)
	if err != nil {
		return fmt.Errorf("refresh latest price %s: %w", rec.ItemID, err)
	}
	return nil
}

// TransactionRecord is a persisted shopping-list transaction.
type TransactionRecord struct {
	ID          string    `db:"id"`
	AccountID   string    `db:"account_id"`
	CategoryID  string    `db:"category_id"`
	Date        string    `db:"date"`
	Description string    `db:"description"`
	Discount    string    `db:"discount"`
	TotalBefore string    `db:"total_before"`
	TotalAfter  string    `db:"total_after"`
	SyncStatus  string    `db:"sync_status"`
	SyncVersion int64     `db:"sync_version"`
	CreatedAt   time.Time `db:"created_at"`
}

// TransactionLineRecord is one persisted line of a transaction.
type TransactionLineRecord struct {
	TransactionID string `db:"transaction_id"`
	Position      int    `db:"position"`
	ItemID        string `db:"item_id"`
	Quantity      string `db:"quantity"`
	UnitPrice     string `db:"unit_price"`
	Resolution    string `db:"resolution"`
}

// CreateTransaction persists a submission atomically: the transaction row,
// its lines, and the price-history writes implied by each line's resolution
// (insert_new and update_existing write, use_existing leaves history
// untouched). Returns the new transaction id.
func (r *Repository) CreateTransaction(ctx context.Context, sub core.Submission) (string, error) {
	id := uuid.NewString()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (id, account_id, category_id, date, description, discount, total_before, total_after, sync_status, sync_version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		id, sub.Meta.AccountID, sub.Meta.CategoryID, sub.Meta.Date.String(), sub.Meta.Description,
		sub.Meta.Discount.String(), sub.Totals.BeforeDiscount.String(), sub.Totals.AfterDiscount.String(), SyncPending)
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}

	for i, line := range sub.Lines {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO transaction_lines (transaction_id, position, item_id, quantity, unit_price, resolution)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, line.ItemID, line.Quantity.String(), line.UnitPrice.String(), string(line.Resolution))
		if err != nil {
			return "", fmt.Errorf("insert line %d: %w", i, err)
		}

		switch line.Resolution {
		case core.ResolutionInsertNew, core.ResolutionUpdateExisting:
			rec := core.PriceRecord{ItemID: line.ItemID, Date: sub.Meta.Date, Price: line.UnitPrice}
			if err := r.recordPriceTx(ctx, tx, rec); err != nil {
				return "", err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}

	return id, nil
}

// GetTransaction loads one transaction with its lines in order.
func (r *Repository) GetTransaction(ctx context.Context, id string) (TransactionRecord, []TransactionLineRecord, error) {
	var rec TransactionRecord
	err := r.db.GetContext(ctx, &rec, `SELECT * FROM transactions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return TransactionRecord{}, nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return TransactionRecord{}, nil, fmt.Errorf("get transaction %s: %w", id, err)
	}

	var lines []TransactionLineRecord
	if err := r.db.SelectContext(ctx, &lines, `SELECT * FROM transaction_lines WHERE transaction_id = ? ORDER BY position`, id); err != nil {
		return TransactionRecord{}, nil, fmt.Errorf("get transaction lines %s: %w", id, err)
	}
	return rec, lines, nil
}

// ListTransactionsByMonth returns transactions dated within a year+month.
func (r *Repository) ListTransactionsByMonth(ctx context.Context, year, month int) ([]TransactionRecord, error) {
	prefix := fmt.Sprintf("%04d-%02d-", year, month)
	var out []TransactionRecord
	if err := r.db.SelectContext(ctx, &out, `SELECT * FROM transactions WHERE date LIKE ? ORDER BY date, created_at`, prefix+"%"); err != nil {
		return nil, fmt.Errorf("list transactions %04d-%02d: %w", year, month, err)
	}
	return out, nil
}

// PendingLedgerSync returns transactions not yet mirrored to the ledger.
func (r *Repository) PendingLedgerSync(ctx context.Context, limit int) ([]TransactionRecord, error) {
	var out []TransactionRecord
	if err := r.db.SelectContext(ctx, &out, `SELECT * FROM transactions WHERE sync_status = ? ORDER BY created_at LIMIT ?`, SyncPending, limit); err != nil {
		return nil, fmt.Errorf("pending ledger sync: %w", err)
	}
	return out, nil
}

func (r *Repository) MarkLedgerSynced(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE transactions SET sync_status = ? WHERE id = ?`, SyncDone, id); err != nil {
		return fmt.Errorf("mark synced %s: %w", id, err)
	}
	return nil
}

func (r *Repository) MarkLedgerSyncError(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE transactions SET sync_status = ? WHERE id = ?`, SyncError, id); err != nil {
		return fmt.Errorf("mark sync error %s: %w", id, err)
	}
	return nil
}
