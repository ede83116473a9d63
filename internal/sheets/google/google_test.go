package google

import "testing"

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		name string
		base string
		year int
		want string
	}{
		{"plain base gets prefixed", "Ledger", 2026, "2026 Ledger"},
		{"already prefixed is untouched", "2025 Ledger", 2026, "2025 Ledger"},
		{"empty base stays empty", "", 2026, ""},
		{"whitespace trimmed", "  Ledger  ", 2026, "2026 Ledger"},
		{"short base gets prefixed", "L", 2026, "2026 L"},
		{"numeric-looking but not a year", "1234x Ledger", 2026, "2026 1234x Ledger"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
				t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
			}
		})
	}
}
