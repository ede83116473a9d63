package core

import "github.com/shopspring/decimal"

// Classify compares a newly computed price against the recorded price for
// the same item and date. Rules, in order: no recorded price means
// insert_new; exact numeric equality means same_as_existing; anything else
// is a conflict.
func Classify(newPrice decimal.Decimal, existing *decimal.Decimal) PriceStatus {
	if existing == nil {
		return StatusInsertNew
	}
	if newPrice.Equal(*existing) {
		return StatusSameAsExisting
	}
	return StatusConflict
}

// DefaultResolution assigns the total default resolution for a status.
// insert_new lines have nothing recorded to "use", so they default to
// insert_new; same_as_existing defaults to use_existing (the recorded price
// is kept, avoiding accidental price drift); conflicts get no default and
// must be settled by the user before submission.
func DefaultResolution(status PriceStatus) Resolution {
	switch status {
	case StatusInsertNew:
		return ResolutionInsertNew
	case StatusSameAsExisting:
		return ResolutionUseExisting
	default:
		return ResolutionUnset
	}
}

// ToggleConflictResolution cycles a conflict line between its two valid
// dispositions. An unset resolution moves to use_existing first.
func ToggleConflictResolution(r Resolution) Resolution {
	if r == ResolutionUseExisting {
		return ResolutionUpdateExisting
	}
	return ResolutionUseExisting
}
