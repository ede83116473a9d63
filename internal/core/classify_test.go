package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		newPrice string
		existing *decimal.Decimal
		want     PriceStatus
	}{
		{name: "no recorded price", newPrice: "120.50", existing: nil, want: StatusInsertNew},
		{name: "equal price", newPrice: "120.50", existing: ptr(dec("120.50")), want: StatusSameAsExisting},
		{name: "equal across representations", newPrice: "120.5", existing: ptr(dec("120.50")), want: StatusSameAsExisting},
		{name: "different price", newPrice: "120.50", existing: ptr(dec("100.00")), want: StatusConflict},
		{name: "zero recorded price differs", newPrice: "5", existing: ptr(decimal.Zero), want: StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(dec(tt.newPrice), tt.existing))
		})
	}
}

func TestDefaultResolution(t *testing.T) {
	assert.Equal(t, ResolutionInsertNew, DefaultResolution(StatusInsertNew))
	assert.Equal(t, ResolutionUseExisting, DefaultResolution(StatusSameAsExisting))
	assert.Equal(t, ResolutionUnset, DefaultResolution(StatusConflict))
}

func TestToggleConflictResolution(t *testing.T) {
	// Unset settles to use_existing first, then cycles between exactly the
	// two valid conflict dispositions.
	r := ToggleConflictResolution(ResolutionUnset)
	assert.Equal(t, ResolutionUseExisting, r)
	r = ToggleConflictResolution(r)
	assert.Equal(t, ResolutionUpdateExisting, r)
	r = ToggleConflictResolution(r)
	assert.Equal(t, ResolutionUseExisting, r)
}

func TestResolutionAllowedFor(t *testing.T) {
	tests := []struct {
		status PriceStatus
		res    Resolution
		want   bool
	}{
		{StatusConflict, ResolutionUseExisting, true},
		{StatusConflict, ResolutionUpdateExisting, true},
		{StatusConflict, ResolutionInsertNew, false},
		{StatusConflict, ResolutionUnset, false},
		{StatusInsertNew, ResolutionInsertNew, true},
		{StatusInsertNew, ResolutionUseExisting, false},
		{StatusSameAsExisting, ResolutionUseExisting, true},
		{StatusSameAsExisting, ResolutionInsertNew, true},
		{StatusSameAsExisting, ResolutionUpdateExisting, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.res.AllowedFor(tt.status), "%s / %s", tt.status, tt.res)
	}
}
