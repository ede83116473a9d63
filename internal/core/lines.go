package core

import "github.com/shopspring/decimal"

// InputLine is one row of a shopping list before prices are resolved. It is
// either a MatchedLine (the raw id resolved against the catalog) or an
// UnmatchedLine, so "item not found" is a typed branch rather than a nil
// check.
type InputLine interface {
	Row() int
	inputLine()
}

// MatchedLine is an input row whose id resolved to a catalog item.
type MatchedLine struct {
	Item     Item
	Quantity decimal.Decimal
	Mode     PriceMode
	// Amount is the net unit price (PriceModeUnit) or the gross total paid
	// for the whole line (PriceModeGross), depending on Mode.
	Amount decimal.Decimal
	RowNum int
}

// UnmatchedLine is an input row whose id is not in the catalog. It is shown
// to the user but excluded from totals and from submission.
type UnmatchedLine struct {
	RawID    string
	Name     string
	Quantity decimal.Decimal
	Amount   decimal.Decimal
	RowNum   int
}

func (l MatchedLine) Row() int   { return l.RowNum }
func (l UnmatchedLine) Row() int { return l.RowNum }

func (MatchedLine) inputLine()   {}
func (UnmatchedLine) inputLine() {}

// Eligible reports whether the line can take part in a preview: positive
// quantity and a positive amount.
func (l MatchedLine) Eligible() bool {
	return l.Quantity.IsPositive() && l.Amount.IsPositive()
}

// Matched filters the matched lines out of a parse result, preserving order.
func Matched(lines []InputLine) []MatchedLine {
	var out []MatchedLine
	for _, l := range lines {
		if m, ok := l.(MatchedLine); ok {
			out = append(out, m)
		}
	}
	return out
}

// Unmatched filters the unmatched lines out of a parse result.
func Unmatched(lines []InputLine) []UnmatchedLine {
	var out []UnmatchedLine
	for _, l := range lines {
		if u, ok := l.(UnmatchedLine); ok {
			out = append(out, u)
		}
	}
	return out
}

// PreviewLine is a matched line with resolved prices, computed tax amounts
// and its classification against the recorded price for the preview date.
type PreviewLine struct {
	ItemID      string
	ItemName    string
	Quantity    decimal.Decimal
	Exempt      bool
	TaxRate     decimal.Decimal
	LatestPrice decimal.Decimal

	// Computed from the input amount; never rounded before aggregation.
	UnitPriceNet decimal.Decimal
	Subtotal     decimal.Decimal
	TaxAmount    decimal.Decimal
	LineTotal    decimal.Decimal // gross

	// ExistingPrice is the recorded price for (item, date), nil when none.
	ExistingPrice *decimal.Decimal

	Status     PriceStatus
	Resolution Resolution
}

// ChosenUnitPrice returns the unit price implied by the line's resolution:
// the recorded price for use_existing, the newly computed net price
// otherwise. Falls back to the computed price when no recorded price exists.
func (l PreviewLine) ChosenUnitPrice() decimal.Decimal {
	if l.Resolution == ResolutionUseExisting && l.ExistingPrice != nil {
		return *l.ExistingPrice
	}
	return l.UnitPriceNet
}

// ChosenLineTotal is the gross total implied by the chosen unit price.
func (l PreviewLine) ChosenLineTotal() decimal.Decimal {
	return ComputeLine(l.ChosenUnitPrice(), l.Quantity, l.Exempt, l.TaxRate).Total
}

// Resolved reports whether the line carries a resolution valid for its
// status. Conflict lines start unresolved and must be settled explicitly.
func (l PreviewLine) Resolved() bool {
	return l.Resolution.AllowedFor(l.Status)
}
