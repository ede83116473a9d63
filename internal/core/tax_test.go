package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeLine(t *testing.T) {
	tests := []struct {
		name         string
		unit, qty    string
		exempt       bool
		rate         string
		wantSubtotal string
		wantTax      string
		wantTotal    string
	}{
		{
			name: "taxed at 18 percent",
			unit: "120.50", qty: "2", rate: "18",
			wantSubtotal: "241.00", wantTax: "43.38", wantTotal: "284.38",
		},
		{
			name: "exempt item ignores rate",
			unit: "120.50", qty: "2", exempt: true, rate: "18",
			wantSubtotal: "241.00", wantTax: "0", wantTotal: "241.00",
		},
		{
			name: "zero rate",
			unit: "10", qty: "3", rate: "0",
			wantSubtotal: "30", wantTax: "0", wantTotal: "30",
		},
		{
			name: "fractional quantity",
			unit: "4.40", qty: "0.5", rate: "10",
			wantSubtotal: "2.20", wantTax: "0.22", wantTotal: "2.42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeLine(dec(tt.unit), dec(tt.qty), tt.exempt, dec(tt.rate))
			assert.True(t, got.Subtotal.Equal(dec(tt.wantSubtotal)), "subtotal %s", got.Subtotal)
			assert.True(t, got.Tax.Equal(dec(tt.wantTax)), "tax %s", got.Tax)
			assert.True(t, got.Total.Equal(dec(tt.wantTotal)), "total %s", got.Total)
			// Invariant: total is always subtotal plus tax.
			assert.True(t, got.Total.Equal(got.Subtotal.Add(got.Tax)))
		})
	}
}

func TestComputeLine_ExemptAlwaysZeroTax(t *testing.T) {
	for _, rate := range []string{"0", "10", "18", "21", "99"} {
		got := ComputeLine(dec("7.77"), dec("3"), true, dec(rate))
		assert.True(t, got.Tax.IsZero(), "rate %s produced tax %s", rate, got.Tax)
	}
}

func TestNetUnitFromGross(t *testing.T) {
	tests := []struct {
		name       string
		gross, qty string
		exempt     bool
		rate       string
		want       string
	}{
		{name: "taxed round trip", gross: "284.38", qty: "2", rate: "18", want: "120.50"},
		{name: "exempt divides by quantity only", gross: "241.00", qty: "2", exempt: true, rate: "18", want: "120.50"},
		{name: "single unit", gross: "118", qty: "1", rate: "18", want: "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NetUnitFromGross(dec(tt.gross), dec(tt.qty), tt.exempt, dec(tt.rate))
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestNetUnitFromGross_ZeroQuantity(t *testing.T) {
	got := NetUnitFromGross(dec("100"), decimal.Zero, false, dec("18"))
	require.True(t, got.IsZero())
}

func TestNetUnitPrice_Modes(t *testing.T) {
	item := Item{ID: "A1", Name: "Rice", TaxRate: dec("18")}

	unit := MatchedLine{Item: item, Quantity: dec("2"), Mode: PriceModeUnit, Amount: dec("120.50")}
	assert.True(t, NetUnitPrice(unit).Equal(dec("120.50")))

	gross := MatchedLine{Item: item, Quantity: dec("2"), Mode: PriceModeGross, Amount: dec("284.38")}
	assert.True(t, NetUnitPrice(gross).Equal(dec("120.50")))
}
