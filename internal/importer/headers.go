package importer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Field is a payroll column the importer understands.
type Field string

const (
	FieldContract     Field = "contract_number"
	FieldPassport     Field = "passport_number"
	FieldLastName     Field = "last_name"
	FieldFirstName    Field = "first_name"
	FieldFullName     Field = "full_name"
	FieldHours        Field = "hours_worked"
	FieldGrossSalary  Field = "gross_salary"
	FieldEmployerCAM  Field = "employer_contribution"
	FieldBrut1        Field = "brut1"
	FieldNetSalary    Field = "net_salary"
	FieldDeductions   Field = "deductions"
	FieldRemainingPay Field = "remaining_pay"
)

// aliases maps normalized header text to a field. Keys must already be normalized.
var aliases = map[string]Field{
	"cim":                    FieldContract,
	"nr cim":                 FieldContract,
	"contract":               FieldContract,
	"nr contract":            FieldContract,
	"contract number":        FieldContract,
	"numar contract":         FieldContract,
	"passport":               FieldPassport,
	"pasaport":               FieldPassport,
	"nr pasaport":            FieldPassport,
	"passport number":        FieldPassport,
	"worker passport number": FieldPassport,
	"nume":                   FieldLastName,
	"last name":              FieldLastName,
	"prenume":                FieldFirstName,
	"first name":             FieldFirstName,
	"nume si prenume":        FieldFullName,
	"nume prenume":           FieldFullName,
	"name":                   FieldFullName,
	"full name":              FieldFullName,
	"hours":                  FieldHours,
	"ore":                    FieldHours,
	"ore lucrate":            FieldHours,
	"total ore":              FieldHours,
	"total hours worked":     FieldHours,
	"hours worked":           FieldHours,
	"salary":                 FieldGrossSalary,
	"salariu":                FieldGrossSalary,
	"salariu brut":           FieldGrossSalary,
	"brut":                   FieldGrossSalary,
	"gross salary":           FieldGrossSalary,
	"total salary cost":      FieldGrossSalary,
	"cam":                    FieldEmployerCAM,
	"contributie angajator":  FieldEmployerCAM,
	"employer contribution":  FieldEmployerCAM,
	"brut1":                  FieldBrut1,
	"brut 1":                 FieldBrut1,
	"net":                    FieldNetSalary,
	"salariu net":            FieldNetSalary,
	"net salary":             FieldNetSalary,
	"retineri":               FieldDeductions,
	"deductions":             FieldDeductions,
	"rest de plata":          FieldRemainingPay,
	"rest plata":             FieldRemainingPay,
	"remaining pay":          FieldRemainingPay,
}

// NormalizeHeader lowercases, strips diacritics and punctuation, and collapses spaces,
// so "Număr contract:" and "numar  contract" compare equal.
func NormalizeHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, s)
	if err != nil {
		plain = s
	}
	plain = strings.ToLower(plain)

	var b strings.Builder
	space := false
	for _, r := range plain {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

// MapHeaders resolves a header row to column indexes. The first column wins when
// two headers map to the same field.
func MapHeaders(headers []string) map[Field]int {
	cols := make(map[Field]int)
	for i, h := range headers {
		f, ok := aliases[NormalizeHeader(h)]
		if !ok {
			continue
		}
		if _, seen := cols[f]; !seen {
			cols[f] = i
		}
	}
	return cols
}
