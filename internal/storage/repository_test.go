package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canasta/internal/core"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "canasta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func seedReferences(t *testing.T, repo *Repository) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.CreateAccount(ctx, core.Account{ID: "cash", Name: "Cash"}))
	require.NoError(t, repo.CreateCategory(ctx, core.Category{ID: "food", Name: "Food"}))
	require.NoError(t, repo.UpsertItem(ctx, core.Item{ID: "A1", Name: "Arroz", TaxRate: dec(t, "18")}))
	require.NoError(t, repo.UpsertItem(ctx, core.Item{ID: "B2", Name: "Leche", Exempt: true}))
}

func TestItemCatalogRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedReferences(t, repo)

	items, err := repo.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	// Ordered by name: Arroz before Leche.
	assert.Equal(t, "A1", items[0].ID)
	assert.True(t, items[0].TaxRate.Equal(dec(t, "18")))
	assert.True(t, items[1].Exempt)

	byID, err := repo.GetItemsByIDs(ctx, []string{"A1", "missing"})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, "Arroz", byID["A1"].Name)

	err = repo.UpsertItem(ctx, core.Item{ID: "", Name: "Nameless"})
	assert.Error(t, err)
}

func TestUpsertItemOverwrites(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertItem(ctx, core.Item{ID: "A1", Name: "Arroz", TaxRate: dec(t, "18")}))
	require.NoError(t, repo.UpsertItem(ctx, core.Item{ID: "A1", Name: "Arroz Integral", TaxRate: dec(t, "21")}))

	byID, err := repo.GetItemsByIDs(ctx, []string{"A1"})
	require.NoError(t, err)
	assert.Equal(t, "Arroz Integral", byID["A1"].Name)
	assert.True(t, byID["A1"].TaxRate.Equal(dec(t, "21")))
}

func TestReferenceLookups(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedReferences(t, repo)

	accounts, err := repo.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "cash", accounts[0].ID)

	categories, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)

	ok, err := repo.AccountExists(ctx, "cash")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.AccountExists(ctx, "crypto")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.CategoryExists(ctx, "food")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecordPriceRefreshesLatest(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedReferences(t, repo)
	date := core.NewDate(2026, 3, 14)

	require.NoError(t, repo.RecordPrice(ctx, core.PriceRecord{ItemID: "A1", Date: date, Price: dec(t, "120.50")}))

	prices, err := repo.PricesOn(ctx, []string{"A1", "B2"}, date)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.True(t, prices["A1"].Equal(dec(t, "120.50")))

	// Same key again overwrites rather than duplicating.
	require.NoError(t, repo.RecordPrice(ctx, core.PriceRecord{ItemID: "A1", Date: date, Price: dec(t, "125")}))
	prices, err = repo.PricesOn(ctx, []string{"A1"}, date)
	require.NoError(t, err)
	assert.True(t, prices["A1"].Equal(dec(t, "125")))

	byID, err := repo.GetItemsByIDs(ctx, []string{"A1"})
	require.NoError(t, err)
	assert.True(t, byID["A1"].LatestPrice.Equal(dec(t, "125")))

	// A different date is a separate observation.
	other := core.NewDate(2026, 3, 15)
	prices, err = repo.PricesOn(ctx, []string{"A1"}, other)
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestCreateTransactionPersistsLinesAndPrices(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedReferences(t, repo)
	date := core.NewDate(2026, 3, 14)

	require.NoError(t, repo.RecordPrice(ctx, core.PriceRecord{ItemID: "B2", Date: date, Price: dec(t, "3.10")}))

	sub := core.Submission{
		Meta: core.SubmissionMeta{
			AccountID:   "cash",
			CategoryID:  "food",
			Date:        date,
			Description: "weekly groceries",
			Discount:    decimal.Zero,
		},
		Lines: []core.SubmissionLine{
			{ItemID: "A1", Quantity: dec(t, "2"), UnitPrice: dec(t, "120.50"), Resolution: core.ResolutionInsertNew},
			{ItemID: "B2", Quantity: dec(t, "1"), UnitPrice: dec(t, "3.10"), Resolution: core.ResolutionUseExisting},
		},
		Totals: core.Totals{BeforeDiscount: dec(t, "287.48"), AfterDiscount: dec(t, "287.48")},
	}

	id, err := repo.CreateTransaction(ctx, sub)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, lines, err := repo.GetTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "cash", rec.AccountID)
	assert.Equal(t, "2026-03-14", rec.Date)
	assert.Equal(t, SyncPending, rec.SyncStatus)
	assert.Equal(t, int64(1), rec.SyncVersion)
	require.Len(t, lines, 2)
	assert.Equal(t, "A1", lines[0].ItemID)
	assert.Equal(t, "B2", lines[1].ItemID)

	// insert_new wrote price history, use_existing left it alone.
	prices, err := repo.PricesOn(ctx, []string{"A1", "B2"}, date)
	require.NoError(t, err)
	assert.True(t, prices["A1"].Equal(dec(t, "120.50")))
	assert.True(t, prices["B2"].Equal(dec(t, "3.10")))

	byMonth, err := repo.ListTransactionsByMonth(ctx, 2026, 3)
	require.NoError(t, err)
	require.Len(t, byMonth, 1)
	assert.Equal(t, id, byMonth[0].ID)
}

func TestGetTransactionNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, _, err := repo.GetTransaction(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedgerSyncLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedReferences(t, repo)
	date := core.NewDate(2026, 3, 14)

	sub := core.Submission{
		Meta: core.SubmissionMeta{AccountID: "cash", CategoryID: "food", Date: date},
		Lines: []core.SubmissionLine{
			{ItemID: "A1", Quantity: dec(t, "1"), UnitPrice: dec(t, "120.50"), Resolution: core.ResolutionInsertNew},
		},
		Totals: core.Totals{BeforeDiscount: dec(t, "142.19"), AfterDiscount: dec(t, "142.19")},
	}
	id, err := repo.CreateTransaction(ctx, sub)
	require.NoError(t, err)

	pending, err := repo.PendingLedgerSync(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)

	require.NoError(t, repo.MarkLedgerSynced(ctx, id))
	pending, err = repo.PendingLedgerSync(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, repo.MarkLedgerSyncError(ctx, id))
	rec, _, err := repo.GetTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, SyncError, rec.SyncStatus)
}
