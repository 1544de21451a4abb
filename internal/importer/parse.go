package importer

import (
	"fmt"
	"strings"

	"ecofin/internal/apperror"

	"github.com/shopspring/decimal"
)

// Row is one payroll line with its numbers parsed. Err is set when the row
// cannot be used; such rows are kept so the preview can show them.
type Row struct {
	Number               int
	ContractNumber       string
	PassportNumber       string
	LastName             string
	FirstName            string
	HoursWorked          decimal.Decimal
	GrossSalary          decimal.Decimal
	EmployerContribution decimal.Decimal
	Brut1                decimal.Decimal
	NetSalary            decimal.Decimal
	Deductions           decimal.Decimal
	RemainingPay         decimal.Decimal
	Err                  string
}

// Parse maps the sheet's headers and converts every data row. It fails only when
// the sheet lacks a worker identifier, hours or salary column.
func Parse(sheet *Sheet) ([]Row, error) {
	cols := MapHeaders(sheet.Headers)

	var missing []string
	_, hasContract := cols[FieldContract]
	_, hasPassport := cols[FieldPassport]
	if !hasContract && !hasPassport {
		missing = append(missing, "passport or contract (CIM)")
	}
	if _, ok := cols[FieldHours]; !ok {
		missing = append(missing, "hours")
	}
	if _, ok := cols[FieldGrossSalary]; !ok {
		missing = append(missing, "salary")
	}
	if len(missing) > 0 {
		return nil, apperror.Validation("missing required columns: %s", strings.Join(missing, ", "))
	}

	rows := make([]Row, 0, len(sheet.Rows))
	for _, sr := range sheet.Rows {
		rows = append(rows, parseRow(sr, cols))
	}
	return rows, nil
}

func parseRow(sr SheetRow, cols map[Field]int) Row {
	text := func(f Field) string {
		if i, ok := cols[f]; ok {
			return sr.Cell(i)
		}
		return ""
	}

	row := Row{
		Number:         sr.Number,
		ContractNumber: text(FieldContract),
		PassportNumber: strings.ToUpper(text(FieldPassport)),
		LastName:       text(FieldLastName),
		FirstName:      text(FieldFirstName),
	}
	if row.LastName == "" && row.FirstName == "" {
		row.LastName, row.FirstName = splitFullName(text(FieldFullName))
	}

	var errs []string
	num := func(f Field, label string) decimal.Decimal {
		v, err := ParseDecimal(text(f))
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s %q", label, text(f)))
		}
		return v
	}
	row.HoursWorked = num(FieldHours, "hours")
	row.GrossSalary = num(FieldGrossSalary, "salary")
	row.EmployerContribution = num(FieldEmployerCAM, "CAM")
	row.Brut1 = num(FieldBrut1, "brut1")
	row.NetSalary = num(FieldNetSalary, "net salary")
	row.Deductions = num(FieldDeductions, "deductions")
	row.RemainingPay = num(FieldRemainingPay, "remaining pay")

	if row.ContractNumber == "" && row.PassportNumber == "" {
		errs = append(errs, "missing passport and contract number")
	}
	if row.HoursWorked.IsNegative() {
		errs = append(errs, "hours worked cannot be negative")
	}
	row.Err = strings.Join(errs, "; ")
	return row
}

// ParseDecimal accepts "1234.5", "1.234,50", "1,234.50" and "1 234,5 lei". Empty is zero.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, suffix := range []string{"lei", "ron"} {
		s = strings.TrimSuffix(s, suffix)
	}
	s = strings.NewReplacer(" ", "", "\u00a0", "").Replace(s)
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}

	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case dot >= 0 && comma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}
	return decimal.NewFromString(s)
}

func splitFullName(full string) (last, first string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
