package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"ecofin/internal/apperror"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Sheet is a header row plus the non-empty data rows below it.
type Sheet struct {
	Headers []string
	Rows    []SheetRow
}

// SheetRow keeps the 1-based row number as shown by spreadsheet software.
type SheetRow struct {
	Number int
	Cells  []string
}

// Cell returns the trimmed value at col, or "" when the row is shorter.
func (r SheetRow) Cell(col int) string {
	if col < 0 || col >= len(r.Cells) {
		return ""
	}
	return strings.TrimSpace(strings.Trim(r.Cells[col], "\"'\t"))
}

// Supported reports whether the file extension can be read.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm", ".csv":
		return true
	}
	return false
}

// ReadSheet reads the first worksheet of an xlsx file or a csv file.
func ReadSheet(filename string, r io.Reader) (*Sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return readXLSX(data)
	case ".csv":
		return readCSV(data)
	default:
		return nil, apperror.Validation("unsupported file type %q, expected .xlsx or .csv", filepath.Ext(filename))
	}
}

func readXLSX(data []byte) (*Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperror.Validation("cannot open spreadsheet: %v", err)
	}
	defer f.Close()

	name := f.GetSheetName(0)
	if name == "" {
		return nil, apperror.Validation("spreadsheet has no sheets")
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", name, err)
	}
	return toSheet(rows)
}

func readCSV(data []byte) (*Sheet, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(data) {
		decoded, _, err := transform.Bytes(charmap.Windows1250.NewDecoder(), data)
		if err == nil {
			data = decoded
		}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectDelimiter(data)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperror.Validation("malformed csv: %v", err)
		}
		rows = append(rows, record)
	}
	return toSheet(rows)
}

// toSheet takes the first non-empty row as headers and drops blank rows.
func toSheet(rows [][]string) (*Sheet, error) {
	header := -1
	for i, row := range rows {
		if !blank(row) {
			header = i
			break
		}
	}
	if header < 0 {
		return nil, apperror.Validation("file is empty")
	}

	sheet := &Sheet{Headers: rows[header]}
	for i := header + 1; i < len(rows); i++ {
		if blank(rows[i]) {
			continue
		}
		sheet.Rows = append(sheet.Rows, SheetRow{Number: i + 1, Cells: rows[i]})
	}
	return sheet, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func detectDelimiter(data []byte) rune {
	sample := data
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		sample = sample[:i]
	}
	best, bestCount := ',', bytes.Count(sample, []byte{','})
	for _, d := range []rune{';', '\t', '|'} {
		if n := bytes.Count(sample, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
