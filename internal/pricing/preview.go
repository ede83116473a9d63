package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"canasta/internal/core"
	"canasta/internal/log"
)

// Preview is the priced, classified view of a parsed shopping list for one
// date. Unmatched rows are carried for display but excluded from totals.
type Preview struct {
	Date      core.Date
	Lines     []core.PreviewLine
	Unmatched []core.UnmatchedLine
	Totals    core.Totals
}

// Builder assembles previews. It re-reads the catalog at preview time so a
// tax rate changed since parsing cannot leak stale amounts into totals.
type Builder struct {
	catalog  CatalogSource
	resolver *Resolver
	logger   *log.Logger
}

func NewBuilder(catalog CatalogSource, resolver *Resolver, logger *log.Logger) *Builder {
	return &Builder{
		catalog:  catalog,
		resolver: resolver,
		logger:   logger.WithComponent(log.ComponentPricing),
	}
}

// Build prices the matched lines against the recorded prices for date,
// classifies each against its recorded price and applies the discount.
// Rows that fail the eligibility gate (non-positive quantity or amount) are
// dropped from the preview.
func (b *Builder) Build(ctx context.Context, lines []core.InputLine, date core.Date, discountPct decimal.Decimal) (Preview, error) {
	if date.IsZero() {
		return Preview{}, core.ErrMissingDate
	}

	matched := core.Matched(lines)
	unmatched := core.Unmatched(lines)

	ids := make([]string, 0, len(matched))
	for _, m := range matched {
		ids = append(ids, m.Item.ID)
	}

	// Catalog and price history live in different tables; fetch them
	// concurrently.
	var (
		items  map[string]core.Item
		prices map[string]decimal.Decimal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = b.catalog.GetItemsByIDs(gctx, ids)
		if err != nil {
			return fmt.Errorf("refresh catalog: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		prices = b.resolver.ExistingPrices(gctx, ids, date)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Preview{}, err
	}

	previewLines := make([]core.PreviewLine, 0, len(matched))
	for _, m := range matched {
		if !m.Eligible() {
			b.logger.DebugContext(ctx, "Skipping ineligible line",
				log.FieldItemID, m.Item.ID, "row", m.RowNum)
			continue
		}
		if fresh, ok := items[m.Item.ID]; ok {
			m.Item = fresh
		}

		unit := core.NetUnitPrice(m)
		amounts := core.ComputeLine(unit, m.Quantity, m.Item.Exempt, m.Item.TaxRate)

		var existing *decimal.Decimal
		if p, ok := prices[m.Item.ID]; ok {
			existing = &p
		}
		status := core.Classify(unit, existing)

		previewLines = append(previewLines, core.PreviewLine{
			ItemID:        m.Item.ID,
			ItemName:      m.Item.Name,
			Quantity:      m.Quantity,
			Exempt:        m.Item.Exempt,
			TaxRate:       m.Item.TaxRate,
			LatestPrice:   m.Item.LatestPrice,
			UnitPriceNet:  unit,
			Subtotal:      amounts.Subtotal,
			TaxAmount:     amounts.Tax,
			LineTotal:     amounts.Total,
			ExistingPrice: existing,
			Status:        status,
			Resolution:    core.DefaultResolution(status),
		})
	}

	return Preview{
		Date:      date,
		Lines:     previewLines,
		Unmatched: unmatched,
		Totals:    core.Aggregate(previewLines, discountPct),
	}, nil
}
