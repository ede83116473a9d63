// Package core holds the domain model for shopping-list imports: catalog
// items, price records, tax arithmetic, price-conflict classification and
// submission building.
//
// All money values are decimal.Decimal. No rounding happens inside the
// calculations; two-decimal rounding is applied only when formatting for
// display, never before aggregation, so rounding error cannot compound
// across lines.
package core

import "github.com/shopspring/decimal"

var (
	oneHundred = decimal.NewFromInt(100)
	one        = decimal.NewFromInt(1)
)

// LineAmounts is the result of taxing one line.
type LineAmounts struct {
	Subtotal decimal.Decimal // net unit price * quantity
	Tax      decimal.Decimal // zero for exempt items
	Total    decimal.Decimal // gross, Subtotal + Tax
}

// ComputeLine applies the item's exemption flag and tax rate to a net unit
// price and quantity.
func ComputeLine(unitPriceNet, quantity decimal.Decimal, exempt bool, taxRatePct decimal.Decimal) LineAmounts {
	subtotal := unitPriceNet.Mul(quantity)
	tax := decimal.Zero
	if !exempt {
		tax = subtotal.Mul(taxRatePct.Div(oneHundred))
	}
	return LineAmounts{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

// NetUnitFromGross backs the net unit price out of an externally observed
// gross payment: gross / quantity / (1 + rate/100), with the rate term
// dropped for exempt items. Returns zero when quantity is not positive.
func NetUnitFromGross(grossTotal, quantity decimal.Decimal, exempt bool, taxRatePct decimal.Decimal) decimal.Decimal {
	if !quantity.IsPositive() {
		return decimal.Zero
	}
	unit := grossTotal.Div(quantity)
	if exempt {
		return unit
	}
	return unit.Div(one.Add(taxRatePct.Div(oneHundred)))
}

// NetUnitPrice interprets a matched line's amount according to its price
// mode and returns the net unit price used for preview and submission.
func NetUnitPrice(l MatchedLine) decimal.Decimal {
	switch l.Mode {
	case PriceModeGross:
		return NetUnitFromGross(l.Amount, l.Quantity, l.Item.Exempt, l.Item.TaxRate)
	default:
		return l.Amount
	}
}
