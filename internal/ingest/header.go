package ingest

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Required header columns are located by case- and accent-insensitive
// substring match, so "Precio", "PRECIO" and "Preço"-style spellings from
// exported spreadsheets all resolve.
const (
	keyID       = "id"
	keyName     = "nombre"
	keyPrice    = "precio"
	keyQuantity = "cantidad"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldHeader lowercases a header cell and strips diacritics.
func foldHeader(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// columnIndexes maps the known column keys to their positions in the header
// row. A key missing from the result means the column is absent. Longer keys
// claim their cells first: "cantidad" itself contains the substring "id", so
// matching "id" last keeps it from stealing the quantity column.
func columnIndexes(header []string) map[string]int {
	folded := make([]string, len(header))
	for i, cell := range header {
		folded[i] = foldHeader(cell)
	}

	out := make(map[string]int, 4)
	claimed := make(map[int]bool, 4)
	for _, key := range []string{keyQuantity, keyPrice, keyName, keyID} {
		for i, cell := range folded {
			if claimed[i] {
				continue
			}
			if strings.Contains(cell, key) {
				out[key] = i
				claimed[i] = true
				break
			}
		}
	}
	return out
}
