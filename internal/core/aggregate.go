package core

import "github.com/shopspring/decimal"

// Totals holds the aggregated gross amounts for a preview, before and after
// the overall percentage discount.
type Totals struct {
	BeforeDiscount decimal.Decimal
	AfterDiscount  decimal.Decimal
}

// Aggregate sums the gross totals implied by each line's resolution and
// applies the discount. Lines are assumed to be matched; unmatched rows are
// dropped before preview and never reach aggregation.
func Aggregate(lines []PreviewLine, discountPct decimal.Decimal) Totals {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.ChosenLineTotal())
	}
	factor := one
	if discountPct.IsPositive() {
		factor = one.Sub(discountPct.Div(oneHundred))
	}
	return Totals{
		BeforeDiscount: total,
		AfterDiscount:  total.Mul(factor),
	}
}
