package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SubmissionMeta is the transaction metadata supplied at confirm time.
type SubmissionMeta struct {
	AccountID   string
	CategoryID  string
	Date        Date
	Description string
	Discount    decimal.Decimal // percent, 0-100
}

// SubmissionLine is one resolved line of the persistence payload. UnitPrice
// is the price implied by the final resolution so the backend can decide
// whether a price-history row must be written.
type SubmissionLine struct {
	ItemID     string
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	Resolution Resolution
}

// Submission is the final persistence payload for a shopping-list
// transaction.
type Submission struct {
	Meta   SubmissionMeta
	Lines  []SubmissionLine
	Totals Totals
}

// BuildSubmission assembles the payload from the current preview. It fails
// with a *ValidationError, and performs no side effects, when required
// metadata is missing, when any conflict line is still unresolved, or when
// there are no lines at all. Line order is preserved.
func BuildSubmission(lines []PreviewLine, meta SubmissionMeta) (Submission, error) {
	var problems []string

	if strings.TrimSpace(meta.AccountID) == "" {
		problems = append(problems, "account is required")
	}
	if strings.TrimSpace(meta.CategoryID) == "" {
		problems = append(problems, "category is required")
	}
	if meta.Date.IsZero() {
		problems = append(problems, "date is required")
	}
	if meta.Discount.IsNegative() || meta.Discount.GreaterThan(oneHundred) {
		problems = append(problems, ErrInvalidDiscount.Error())
	}
	if len(lines) == 0 {
		problems = append(problems, ErrNoMatchedLines.Error())
	}
	for _, l := range lines {
		if !l.Resolved() {
			if l.Status == StatusConflict {
				problems = append(problems, fmt.Sprintf("item %s: %v", l.ItemID, ErrUnresolvedConflict))
			} else {
				problems = append(problems, fmt.Sprintf("item %s: %v", l.ItemID, ErrInvalidResolution))
			}
		}
	}
	if len(problems) > 0 {
		return Submission{}, &ValidationError{Problems: problems}
	}

	out := Submission{
		Meta:   meta,
		Lines:  make([]SubmissionLine, 0, len(lines)),
		Totals: Aggregate(lines, meta.Discount),
	}
	for _, l := range lines {
		out.Lines = append(out.Lines, SubmissionLine{
			ItemID:     l.ItemID,
			Quantity:   l.Quantity,
			UnitPrice:  l.ChosenUnitPrice(),
			Resolution: l.Resolution,
		})
	}
	return out, nil
}
