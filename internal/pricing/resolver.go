// Package pricing resolves recorded prices for a date and assembles
// transaction previews from parsed shopping-list lines.
package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	"canasta/internal/core"
	"canasta/internal/log"
)

// PriceSource loads the recorded prices for a set of items on a date.
type PriceSource interface {
	PricesOn(ctx context.Context, ids []string, date core.Date) (map[string]decimal.Decimal, error)
}

// CatalogSource loads catalog entries by id.
type CatalogSource interface {
	GetItemsByIDs(ctx context.Context, ids []string) (map[string]core.Item, error)
}

// Resolver answers "what price is recorded for this item on this date".
type Resolver struct {
	prices PriceSource
	logger *log.Logger
}

func NewResolver(prices PriceSource, logger *log.Logger) *Resolver {
	return &Resolver{
		prices: prices,
		logger: logger.WithComponent(log.ComponentPricing),
	}
}

// ExistingPrices loads recorded prices for the given items on a date. A
// lookup failure degrades to an empty map, so every line classifies as
// insert_new instead of the whole preview failing; the error is logged.
func (r *Resolver) ExistingPrices(ctx context.Context, ids []string, date core.Date) map[string]decimal.Decimal {
	prices, err := r.prices.PricesOn(ctx, ids, date)
	if err != nil {
		r.logger.WarnContext(ctx, "Price lookup failed, treating all lines as new",
			log.FieldDate, date.String(),
			log.FieldError, err.Error())
		return map[string]decimal.Decimal{}
	}
	return prices
}
