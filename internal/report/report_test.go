package report

import (
	"bytes"
	"context"
	"testing"
	"time"

	"ecofin/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func sampleDoc() Document {
	return Document{
		Title:       "Billing report",
		Subtitle:    "2025-01 - 2025-03",
		GeneratedAt: time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC),
		Tables: []Table{
			{
				Title:   "By period",
				Columns: []string{"Period", "Invoices", "Total"},
				Rows: [][]any{
					{"2025-01", 2, decimal.RequireFromString("2541.5")},
					{"2025-02", 1, decimal.RequireFromString("100")},
				},
				Totals: []any{"Total", 3, decimal.RequireFromString("2641.5")},
			},
			{
				Title:   "By client <Acme>",
				Columns: []string{"Client", "Total"},
				Rows:    [][]any{{"Acme & Co", decimal.NewFromInt(10)}},
			},
		},
	}
}

func TestText(t *testing.T) {
	ts := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "12.50", Text(decimal.RequireFromString("12.5")))
	assert.Equal(t, "2025-01-31", Text(ts))
	assert.Equal(t, "", Text((*time.Time)(nil)))
	assert.Equal(t, "7", Text(7))
	assert.Equal(t, "yes", Text(true))
	assert.Equal(t, "", Text(nil))
}

func TestExcel_WritesSheetsAndNumbers(t *testing.T) {
	data, err := Excel(sampleDoc())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"By period", "By client <Acme>"}, f.GetSheetList())

	rows, err := f.GetRows("By period")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Period", "Invoices", "Total"}, rows[0])
	assert.Equal(t, "2541.5", rows[1][2])
	assert.Equal(t, "Total", rows[3][0])
}

func TestSheetName_SanitizesAndDeduplicates(t *testing.T) {
	used := map[string]int{}
	assert.Equal(t, "a b", sheetName("a/b", 0, used))
	assert.Equal(t, "a b 2", sheetName("a/b", 1, used))
	assert.Equal(t, "Sheet3", sheetName("", 2, used))
	long := sheetName("a very long client name that overflows", 3, used)
	assert.Len(t, []rune(long), maxSheetName)
}

func TestHTML_EscapesAndIncludesTotals(t *testing.T) {
	html, err := HTML(sampleDoc())
	require.NoError(t, err)

	assert.Contains(t, html, "<h1>Billing report</h1>")
	assert.Contains(t, html, "By client &lt;Acme&gt;")
	assert.Contains(t, html, "Acme &amp; Co")
	assert.Contains(t, html, "<td>2641.50</td>")
	assert.Contains(t, html, "2025-04-01 09:30")
}

func TestNewPDFRenderer_Disabled(t *testing.T) {
	r := NewPDFRenderer(config.PDFConfig{Enabled: false}, zap.NewNop())
	_, err := r.Render(context.Background(), "<p>x</p>")
	assert.ErrorIs(t, err, ErrPDFDisabled)
}

func TestChromeRenderer_RejectsEmptyHTML(t *testing.T) {
	r := NewChromeRenderer(config.PDFConfig{Enabled: true}, nil)
	_, err := r.Render(context.Background(), "   ")
	assert.Error(t, err)
}
