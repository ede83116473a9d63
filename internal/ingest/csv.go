// Package ingest parses shopping-list files (semicolon-separated text and
// spreadsheet exports) into input lines, resolving item ids against a
// provided catalog. Parsing is pure: the catalog is passed in and nothing
// else is touched.
package ingest

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"canasta/internal/core"
)

// FormatError signals a malformed file (bad header, unreadable sheet). Row
// is 1-based; zero means the error is not tied to a specific row.
type FormatError struct {
	Row int
	Msg string
}

func (e *FormatError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("format error at row %d: %s", e.Row, e.Msg)
	}
	return "format error: " + e.Msg
}

// Catalog is the subset of the item catalog the parser needs: exact-id
// lookup.
type Catalog interface {
	ItemByID(id string) (core.Item, bool)
}

// CatalogMap adapts a plain map to the Catalog interface.
type CatalogMap map[string]core.Item

func (m CatalogMap) ItemByID(id string) (core.Item, bool) {
	it, ok := m[id]
	return it, ok
}

var (
	defaultQuantity = decimal.NewFromInt(1)
)

// ParseCSV parses semicolon-separated shopping-list text. The first
// non-blank line is the header and must contain columns matching "id",
// "precio" and "cantidad" ("nombre" is optional); otherwise a *FormatError
// is returned. Fields may be wrapped in double quotes with doubled quotes as
// the escape; decimals accept comma or dot separators. An invalid or missing
// quantity defaults to 1, an invalid or missing price to 0. Rows whose id is
// not in the catalog come back as UnmatchedLine.
func ParseCSV(text string, catalog Catalog) ([]core.InputLine, error) {
	rawLines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	headerRow := -1
	for i, raw := range rawLines {
		if strings.TrimSpace(raw) != "" {
			headerRow = i
			break
		}
	}
	if headerRow < 0 {
		return nil, &FormatError{Msg: "empty file"}
	}

	cols := columnIndexes(splitFields(rawLines[headerRow]))
	if err := requireColumns(cols, headerRow+1); err != nil {
		return nil, err
	}

	var out []core.InputLine
	for i := headerRow + 1; i < len(rawLines); i++ {
		raw := rawLines[i]
		if strings.TrimSpace(raw) == "" {
			continue
		}
		out = append(out, buildLine(splitFields(raw), cols, i+1, catalog))
	}
	return out, nil
}

// ParseRows applies the same column rules to pre-split rows (spreadsheet
// sheets, manual entry grids). The first row is the header.
func ParseRows(rows [][]string, catalog Catalog) ([]core.InputLine, error) {
	headerRow := -1
	for i, row := range rows {
		if !blankRow(row) {
			headerRow = i
			break
		}
	}
	if headerRow < 0 {
		return nil, &FormatError{Msg: "empty sheet"}
	}

	cols := columnIndexes(rows[headerRow])
	if err := requireColumns(cols, headerRow+1); err != nil {
		return nil, err
	}

	var out []core.InputLine
	for i := headerRow + 1; i < len(rows); i++ {
		if blankRow(rows[i]) {
			continue
		}
		out = append(out, buildLine(rows[i], cols, i+1, catalog))
	}
	return out, nil
}

func requireColumns(cols map[string]int, headerRow int) error {
	for _, key := range []string{keyID, keyPrice, keyQuantity} {
		if _, ok := cols[key]; !ok {
			return &FormatError{Row: headerRow, Msg: fmt.Sprintf("missing required column %q", key)}
		}
	}
	return nil
}

func buildLine(fields []string, cols map[string]int, row int, catalog Catalog) core.InputLine {
	rawID := strings.TrimSpace(fieldAt(fields, cols, keyID))
	name := strings.TrimSpace(fieldAt(fields, cols, keyName))
	quantity := parseDecimalOr(fieldAt(fields, cols, keyQuantity), defaultQuantity)
	price := parseDecimalOr(fieldAt(fields, cols, keyPrice), decimal.Zero)

	item, ok := catalog.ItemByID(rawID)
	if !ok {
		return core.UnmatchedLine{
			RawID:    rawID,
			Name:     name,
			Quantity: quantity,
			Amount:   price,
			RowNum:   row,
		}
	}
	return core.MatchedLine{
		Item:     item,
		Quantity: quantity,
		Mode:     core.PriceModeUnit,
		Amount:   price,
		RowNum:   row,
	}
}

func fieldAt(fields []string, cols map[string]int, key string) string {
	idx, ok := cols[key]
	if !ok || idx >= len(fields) {
		return ""
	}
	return fields[idx]
}

// splitFields splits a raw line on semicolons and unquotes each field:
// wrapping double quotes are stripped and doubled quotes collapse to one.
// This mirrors the file format, which quotes per field and never embeds the
// delimiter inside a field; encoding/csv is deliberately not used because
// the format tolerates stray quotes in unquoted fields.
func splitFields(raw string) []string {
	parts := strings.Split(raw, ";")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = unquoteField(p)
	}
	return out
}

func unquoteField(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
		s = strings.ReplaceAll(s, `""`, `"`)
	}
	return s
}

// parseDecimalOr parses a decimal accepting comma as separator, falling
// back to def for blank or invalid input. Negative values are invalid.
func parseDecimalOr(s string, def decimal.Decimal) decimal.Decimal {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return def
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return def
	}
	return d
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
