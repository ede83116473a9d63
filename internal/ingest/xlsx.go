package ingest

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"canasta/internal/core"
)

// ParseXLSX reads the first sheet of a spreadsheet and applies the same
// column rules as ParseCSV. Cell values are taken as displayed, so comma
// decimals typed by the user still parse.
func ParseXLSX(r io.Reader, catalog Catalog) ([]core.InputLine, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &FormatError{Msg: fmt.Sprintf("open spreadsheet: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &FormatError{Msg: "spreadsheet has no sheets"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &FormatError{Msg: fmt.Sprintf("read sheet %q: %v", sheets[0], err)}
	}
	return ParseRows(rows, catalog)
}
