package ecofin

import (
	"fmt"
	"strings"

	"ecofin/internal/apperror"

	"github.com/shopspring/decimal"
)

// Mode selects how invoice lines are derived.
type Mode string

const (
	ModeStandard      Mode = "standard"
	ModeDifference    Mode = "difference"
	ModeExtraServices Mode = "extra_services"
)

// Valid reports whether m is a known issuance mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeStandard, ModeDifference, ModeExtraServices:
		return true
	}
	return false
}

// LineType tags the origin of an invoice line.
type LineType string

const (
	LineStandard   LineType = "standard"
	LineDifference LineType = "difference"
	LineExtra      LineType = "extra"
)

const (
	DefaultUnit   = "buc"
	moneyDecimals = 2
)

var hundred = decimal.NewFromInt(100)

var monthNamesRO = [...]string{
	"IANUARIE", "FEBRUARIE", "MARTIE", "APRILIE", "MAI", "IUNIE",
	"IULIE", "AUGUST", "SEPTEMBRIE", "OCTOMBRIE", "NOIEMBRIE", "DECEMBRIE",
}

// MonthNameRO returns the upper case Romanian month name used on invoices.
func MonthNameRO(month int) string {
	if month < 1 || month > 12 {
		return fmt.Sprint(month)
	}
	return monthNamesRO[month-1]
}

// ServiceDescription is the line text for a billed period.
func ServiceDescription(year, month int, mode Mode) string {
	desc := fmt.Sprintf("PRESTARI SERVICII %s %d", MonthNameRO(month), year)
	if mode == ModeDifference {
		desc += " - DIFERENTA"
	}
	return desc
}

// ExtraLine is a caller supplied line for extra_services invoices.
// A nil VATRate falls back to the invoice rate.
type ExtraLine struct {
	Description string
	Unit        string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	VATRate     *decimal.Decimal
}

// Line is a computed invoice line.
type Line struct {
	Position    int
	Description string
	Unit        string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	VATRate     decimal.Decimal
	LineTotal   decimal.Decimal
	LineVAT     decimal.Decimal
	LineType    LineType
}

// BillingInput is everything the engine needs for one client-period.
type BillingInput struct {
	Mode          Mode
	Year          int
	Month         int
	TotalHours    decimal.Decimal
	HourlyRate    decimal.Decimal
	VATRate       decimal.Decimal // percent, e.g. 21
	AlreadyBilled decimal.Decimal // subtotal sum of issued invoices for the period
	ExtraLines    []ExtraLine
}

// InvoiceComputation is the engine result.
type InvoiceComputation struct {
	Mode             Mode
	Lines            []Line
	StandardSubtotal decimal.Decimal
	AlreadyBilled    decimal.Decimal
	Subtotal         decimal.Decimal
	VATRate          decimal.Decimal
	VATTotal         decimal.Decimal
	Total            decimal.Decimal
	MixedVATRates    bool
}

// StandardSubtotal is hours times rate for the period, rounded to cents.
func StandardSubtotal(totalHours, hourlyRate decimal.Decimal) decimal.Decimal {
	return RoundMoney(totalHours.Mul(hourlyRate))
}

// RoundMoney rounds to cents, half away from zero.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(moneyDecimals)
}

// AlreadyBilled sums the subtotals of previously issued invoices.
func AlreadyBilled(issuedSubtotals []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, s := range issuedSubtotals {
		sum = sum.Add(s)
	}
	return sum
}

// VATAmount returns amount * rate / 100 rounded to cents.
func VATAmount(amount, ratePercent decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(ratePercent).Div(hundred))
}

// ComputeInvoice derives lines and totals for the requested mode.
//
// Every amount is in cents: line totals are rounded first, each line's VAT is
// derived from its rounded total, and the invoice VAT is the sum of line VATs.
// For a single line this is VATAmount(subtotal, vatRate).
func ComputeInvoice(in BillingInput) (InvoiceComputation, error) {
	if !in.Mode.Valid() {
		return InvoiceComputation{}, apperror.Validation("unknown issuance mode %q", in.Mode)
	}
	if in.VATRate.IsNegative() {
		return InvoiceComputation{}, apperror.Validation("vat rate must not be negative")
	}

	standard := StandardSubtotal(in.TotalHours, in.HourlyRate)
	out := InvoiceComputation{
		Mode:             in.Mode,
		StandardSubtotal: standard,
		AlreadyBilled:    in.AlreadyBilled,
		VATRate:          in.VATRate,
	}

	switch in.Mode {
	case ModeStandard:
		out.Lines = []Line{singleLine(ServiceDescription(in.Year, in.Month, in.Mode), standard, in.VATRate, LineStandard)}
	case ModeDifference:
		if !standard.GreaterThan(in.AlreadyBilled) {
			return InvoiceComputation{}, apperror.InvalidBillingState(
				"nothing left to bill: computed %s does not exceed already billed %s",
				standard.StringFixed(moneyDecimals), in.AlreadyBilled.StringFixed(moneyDecimals))
		}
		diff := standard.Sub(in.AlreadyBilled)
		out.Lines = []Line{singleLine(ServiceDescription(in.Year, in.Month, in.Mode), diff, in.VATRate, LineDifference)}
	case ModeExtraServices:
		lines, err := extraLines(in.ExtraLines, in.VATRate)
		if err != nil {
			return InvoiceComputation{}, err
		}
		out.Lines = lines
	}

	subtotal := decimal.Zero
	lineVAT := decimal.Zero
	for _, l := range out.Lines {
		subtotal = subtotal.Add(l.LineTotal)
		lineVAT = lineVAT.Add(l.LineVAT)
		if !l.VATRate.Equal(in.VATRate) {
			out.MixedVATRates = true
		}
	}

	out.Subtotal = subtotal
	out.VATTotal = lineVAT
	out.Total = out.Subtotal.Add(out.VATTotal)
	return out, nil
}

func singleLine(desc string, amount, vatRate decimal.Decimal, lt LineType) Line {
	return Line{
		Position:    1,
		Description: desc,
		Unit:        DefaultUnit,
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   amount,
		VATRate:     vatRate,
		LineTotal:   amount,
		LineVAT:     VATAmount(amount, vatRate),
		LineType:    lt,
	}
}

func extraLines(extra []ExtraLine, defaultRate decimal.Decimal) ([]Line, error) {
	if len(extra) == 0 {
		return nil, apperror.Validation("extra_services invoices need at least one extra line")
	}
	lines := make([]Line, 0, len(extra))
	for i, e := range extra {
		if strings.TrimSpace(e.Description) == "" {
			return nil, apperror.Validation("extra line %d: description is required", i+1)
		}
		if !e.Quantity.IsPositive() {
			return nil, apperror.Validation("extra line %d: quantity must be positive", i+1)
		}
		if e.UnitPrice.IsNegative() {
			return nil, apperror.Validation("extra line %d: unit price must not be negative", i+1)
		}
		rate := defaultRate
		if e.VATRate != nil {
			if e.VATRate.IsNegative() {
				return nil, apperror.Validation("extra line %d: vat rate must not be negative", i+1)
			}
			rate = *e.VATRate
		}
		unit := e.Unit
		if unit == "" {
			unit = DefaultUnit
		}
		total := RoundMoney(e.Quantity.Mul(e.UnitPrice))
		lines = append(lines, Line{
			Position:    i + 1,
			Description: strings.TrimSpace(e.Description),
			Unit:        unit,
			Quantity:    e.Quantity,
			UnitPrice:   e.UnitPrice,
			VATRate:     rate,
			LineTotal:   total,
			LineVAT:     VATAmount(total, rate),
			LineType:    LineExtra,
		})
	}
	return lines, nil
}
