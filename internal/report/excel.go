package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

// Excel writes each table to its own sheet and returns the xlsx bytes.
func Excel(doc Document) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	totalStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create total style: %w", err)
	}

	tables := doc.Tables
	if len(tables) == 0 {
		tables = []Table{{Title: doc.Title}}
	}

	used := map[string]int{}
	for i, t := range tables {
		name := sheetName(t.Title, i, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %q: %w", name, err)
		}
		if err := writeTable(f, name, t, headerStyle, totalStyle); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(f *excelize.File, sheet string, t Table, headerStyle, totalStyle int) error {
	for col, title := range t.Columns {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if len(t.Columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(t.Columns), 1)
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("style header: %w", err)
		}
	}

	row := 2
	for _, r := range t.Rows {
		if err := writeRow(f, sheet, row, r); err != nil {
			return err
		}
		row++
	}
	if len(t.Totals) > 0 {
		if err := writeRow(f, sheet, row, t.Totals); err != nil {
			return err
		}
		first, _ := excelize.CoordinatesToCellName(1, row)
		last, _ := excelize.CoordinatesToCellName(len(t.Totals), row)
		if err := f.SetCellStyle(sheet, first, last, totalStyle); err != nil {
			return fmt.Errorf("style totals: %w", err)
		}
	}

	for col := range t.Columns {
		name, _ := excelize.ColumnNumberToName(col + 1)
		_ = f.SetColWidth(sheet, name, name, 18)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		if err := f.SetCellValue(sheet, cell, excelValue(v)); err != nil {
			return fmt.Errorf("write cell %s: %w", cell, err)
		}
	}
	return nil
}

// excelValue keeps numbers numeric so totals can be summed in the sheet.
func excelValue(v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.Round(2).InexactFloat64()
	case *decimal.Decimal:
		if x == nil {
			return ""
		}
		return x.Round(2).InexactFloat64()
	case time.Time, *time.Time, bool, nil:
		return Text(x)
	default:
		return v
	}
}

func sheetName(title string, idx int, used map[string]int) string {
	name := title
	for _, ch := range []string{":", "\\", "/", "?", "*", "[", "]"} {
		name = strings.ReplaceAll(name, ch, " ")
	}
	if name == "" {
		name = fmt.Sprintf("Sheet%d", idx+1)
	}
	if r := []rune(name); len(r) > maxSheetName {
		name = string(r[:maxSheetName])
	}
	if n := used[name]; n > 0 {
		suffix := fmt.Sprintf(" %d", n+1)
		r := []rune(name)
		if len(r)+len(suffix) > maxSheetName {
			r = r[:maxSheetName-len(suffix)]
		}
		used[name] = n + 1
		return string(r) + suffix
	}
	used[name] = 1
	return name
}
