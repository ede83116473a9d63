package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DateFormat is the wire format for transaction and price dates.
	DateFormat = "2006-01-02"

	StatusInsertNew      PriceStatus = "insert_new"
	StatusSameAsExisting PriceStatus = "same_as_existing"
	StatusConflict       PriceStatus = "conflict"

	ResolutionUnset          Resolution = ""
	ResolutionUseExisting    Resolution = "use_existing"
	ResolutionUpdateExisting Resolution = "update_existing"
	ResolutionInsertNew      Resolution = "insert_new"

	// PriceModeUnit means the input amount is a net unit price.
	// PriceModeGross means the input amount is the gross total actually
	// paid for the whole line, tax included.
	PriceModeUnit  PriceMode = "unit"
	PriceModeGross PriceMode = "gross"
)

type (
	// PriceStatus classifies a preview line against the recorded price for
	// the same item and date.
	PriceStatus string

	// Resolution is the disposition chosen for a line before submission.
	Resolution string

	// PriceMode selects how the amount on an input line is interpreted.
	PriceMode string

	// Date is a calendar date without a time component.
	Date struct {
		time.Time
	}

	// Item is a catalog entry. The catalog is read-only from the point of
	// view of the import flow; only price history is ever written.
	Item struct {
		ID          string
		Name        string
		TaxRate     decimal.Decimal // percent, e.g. 18 for 18%
		Exempt      bool
		LatestPrice decimal.Decimal
	}

	// PriceRecord is one recorded price for an item on a date.
	PriceRecord struct {
		ItemID string
		Date   Date
		Price  decimal.Decimal
	}

	// Account identifies where a transaction is paid from.
	Account struct {
		ID   string
		Name string
	}

	// Category identifies how a transaction is classified.
	Category struct {
		ID   string
		Name string
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrMissingDate        = errors.New("date is required before prices can be resolved")
	ErrInvalidQuantity    = errors.New("quantity must be greater than zero")
	ErrInvalidPrice       = errors.New("price must not be negative")
	ErrInvalidDiscount    = errors.New("discount must be between 0 and 100")
	ErrInvalidResolution  = errors.New("invalid resolution for price status")
	ErrUnresolvedConflict = errors.New("conflict line has no resolution")
	ErrNoMatchedLines     = errors.New("no lines matched a catalog item")
)

// ParseDate parses an ISO calendar date (2006-01-02).
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrMissingDate
	}
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// NewDate builds a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) IsZero() bool {
	return d.Time.IsZero()
}

func (d Date) String() string {
	return d.Time.Format(DateFormat)
}

// Valid reports whether the status is one of the three known values.
func (ps PriceStatus) Valid() bool {
	switch ps {
	case StatusInsertNew, StatusSameAsExisting, StatusConflict:
		return true
	}
	return false
}

// Valid reports whether the resolution is a settable value. The empty
// (unset) resolution is never valid for submission.
func (r Resolution) Valid() bool {
	switch r {
	case ResolutionUseExisting, ResolutionUpdateExisting, ResolutionInsertNew:
		return true
	}
	return false
}

// AllowedFor reports whether the resolution is acceptable for a line with
// the given status. Conflict lines accept only the two explicit dispositions.
func (r Resolution) AllowedFor(status PriceStatus) bool {
	switch status {
	case StatusConflict:
		return r == ResolutionUseExisting || r == ResolutionUpdateExisting
	case StatusInsertNew:
		return r == ResolutionInsertNew
	case StatusSameAsExisting:
		// Both dispositions are numerically identical here.
		return r == ResolutionUseExisting || r == ResolutionInsertNew
	}
	return false
}

func (i Item) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return errors.New("item id cannot be empty")
	}
	if strings.TrimSpace(i.Name) == "" {
		return errors.New("item name cannot be empty")
	}
	if i.TaxRate.IsNegative() {
		return errors.New("tax rate cannot be negative")
	}
	return nil
}

// ValidationError aggregates the reasons a submission was rejected. The
// caller must not perform any side effect when one is returned.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
