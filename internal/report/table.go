// Package report renders tabular reports as Excel workbooks, HTML pages and PDFs.
package report

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Table is one titled grid of values. Cells may be strings, ints, decimals or times.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]any
	Totals  []any
}

// Document groups the tables exported together.
type Document struct {
	Title       string
	Subtitle    string
	GeneratedAt time.Time
	Tables      []Table
}

// Text formats a cell for display. Decimals print with two digits.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case decimal.Decimal:
		return x.StringFixed(2)
	case *decimal.Decimal:
		if x == nil {
			return ""
		}
		return x.StringFixed(2)
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.Format(time.DateOnly)
	case *time.Time:
		if x == nil || x.IsZero() {
			return ""
		}
		return x.Format(time.DateOnly)
	case bool:
		if x {
			return "yes"
		}
		return "no"
	default:
		return fmt.Sprint(x)
	}
}
