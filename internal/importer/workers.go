package importer

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"ecofin/internal/apperror"

	"github.com/xuri/excelize/v2"
)

// Worker register columns, besides the identity fields shared with payroll.
const (
	FieldCitizenship          Field = "citizenship"
	FieldBirthDate            Field = "birth_date"
	FieldHomeCity             Field = "home_city"
	FieldOccupationCode       Field = "occupation_code"
	FieldPassportIssued       Field = "passport_issued"
	FieldPassportExpiry       Field = "passport_expiry"
	FieldStatus               Field = "status"
	FieldClient               Field = "client"
	FieldPermitFileNumber     Field = "permit_file_number"
	FieldPermitCounty         Field = "permit_county"
	FieldPermitRequestedOn    Field = "permit_requested_on"
	FieldPermitAppointment    Field = "permit_appointment"
	FieldVisaRequestedOn      Field = "visa_requested_on"
	FieldVisaInterview        Field = "visa_interview"
	FieldResidenceFiledOn     Field = "residence_filed_on"
	FieldResidenceAppointment Field = "residence_appointment"
	FieldResidenceIssued      Field = "residence_issued"
	FieldResidenceExpiry      Field = "residence_expiry"
	FieldPersonalCode         Field = "personal_code"
	FieldArrivedOn            Field = "arrived_on"
	FieldContractIssued       Field = "contract_issued"
	FieldAddress              Field = "address"
	FieldNotes                Field = "notes"
)

// WorkerColumn is a column of the bulk import template.
type WorkerColumn struct {
	Field   Field
	Header  string
	Example string
}

// WorkerColumns is the template layout. Last name, first name and passport are required.
var WorkerColumns = []WorkerColumn{
	{FieldLastName, "Last name", "PERERA"},
	{FieldFirstName, "First name", "Kasun"},
	{FieldPassport, "Passport number", "N1234567"},
	{FieldCitizenship, "Citizenship", "Sri Lanka"},
	{FieldBirthDate, "Birth date", "1990-05-14"},
	{FieldHomeCity, "Home city", "Colombo"},
	{FieldPassportIssued, "Passport issued", "2022-01-10"},
	{FieldPassportExpiry, "Passport expiry", "2032-01-09"},
	{FieldOccupationCode, "COR code", "711201"},
	{FieldStatus, "Status", "PERMIT_REQUESTED"},
	{FieldClient, "Client", "Acme Construct"},
	{FieldPermitFileNumber, "Permit file number", "WP-2025-001"},
	{FieldPermitCounty, "Permit county", "Cluj"},
	{FieldPermitRequestedOn, "Permit requested on", "2025-01-15"},
	{FieldPermitAppointment, "Permit appointment", "2025-02-20"},
	{FieldVisaRequestedOn, "Visa requested on", ""},
	{FieldVisaInterview, "Visa interview", ""},
	{FieldContract, "Contract number", ""},
	{FieldContractIssued, "Contract issued", ""},
	{FieldArrivedOn, "Arrived on", ""},
	{FieldPersonalCode, "CNP", ""},
	{FieldResidenceFiledOn, "Residence filed on", ""},
	{FieldResidenceAppointment, "Residence appointment", ""},
	{FieldResidenceIssued, "Residence issued", ""},
	{FieldResidenceExpiry, "Residence expiry", ""},
	{FieldAddress, "Address", ""},
	{FieldNotes, "Notes", ""},
}

// workerAliases holds the Romanian and short names seen in agency registers.
// Keys must already be normalized.
var workerAliases = map[string]Field{
	"nume":                     FieldLastName,
	"surname":                  FieldLastName,
	"family name":              FieldLastName,
	"prenume":                  FieldFirstName,
	"given name":               FieldFirstName,
	"pasaport":                 FieldPassport,
	"nr pasaport":              FieldPassport,
	"pasaport nr":              FieldPassport,
	"passport":                 FieldPassport,
	"cetatenie":                FieldCitizenship,
	"nationality":              FieldCitizenship,
	"data nasterii":            FieldBirthDate,
	"date of birth":            FieldBirthDate,
	"oras domiciliu":           FieldHomeCity,
	"data emitere pasaport":    FieldPassportIssued,
	"data expirare pasaport":   FieldPassportExpiry,
	"cod cor":                  FieldOccupationCode,
	"cor":                      FieldOccupationCode,
	"stare":                    FieldStatus,
	"client denumire":          FieldClient,
	"denumire client":          FieldClient,
	"dosar wp nr":              FieldPermitFileNumber,
	"nr dosar wp":              FieldPermitFileNumber,
	"judet wp":                 FieldPermitCounty,
	"judet":                    FieldPermitCounty,
	"data solicitare wp":       FieldPermitRequestedOn,
	"data solicitare aviz":     FieldPermitRequestedOn,
	"data programare wp":       FieldPermitAppointment,
	"data programare igi":      FieldPermitAppointment,
	"data solicitare viza":     FieldVisaRequestedOn,
	"data programare interviu": FieldVisaInterview,
	"data interviu":            FieldVisaInterview,
	"cim":                      FieldContract,
	"cim nr":                   FieldContract,
	"nr cim":                   FieldContract,
	"data emitere cim":         FieldContractIssued,
	"data intrare ro":          FieldArrivedOn,
	"cnp":                      FieldPersonalCode,
	"data depunere ps":         FieldResidenceFiledOn,
	"data programare ps":       FieldResidenceAppointment,
	"data emitere ps":          FieldResidenceIssued,
	"data expirare ps":         FieldResidenceExpiry,
	"adresa ro":                FieldAddress,
	"adresa":                   FieldAddress,
	"observatii":               FieldNotes,
	"obs":                      FieldNotes,
}

func init() {
	for _, c := range WorkerColumns {
		workerAliases[NormalizeHeader(c.Header)] = c.Field
		workerAliases[NormalizeHeader(string(c.Field))] = c.Field
	}
}

var parenthesized = regexp.MustCompile(`\([^)]*\)`)

// MapWorkerHeaders resolves a worker register header row. Hints in brackets,
// like "Birth date (YYYY-MM-DD)", are ignored.
func MapWorkerHeaders(headers []string) map[Field]int {
	cols := make(map[Field]int)
	for i, h := range headers {
		f, ok := workerAliases[NormalizeHeader(parenthesized.ReplaceAllString(h, " "))]
		if !ok {
			continue
		}
		if _, seen := cols[f]; !seen {
			cols[f] = i
		}
	}
	return cols
}

// WorkerRow is one register line, keyed by field.
type WorkerRow struct {
	Number int
	Values map[Field]string
}

func (r WorkerRow) Get(f Field) string {
	return r.Values[f]
}

// ParseWorkers maps the register's headers. It fails when a required column is absent.
func ParseWorkers(sheet *Sheet) ([]WorkerRow, error) {
	cols := MapWorkerHeaders(sheet.Headers)

	var missing []string
	for _, f := range []Field{FieldLastName, FieldFirstName, FieldPassport} {
		if _, ok := cols[f]; !ok {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return nil, apperror.Validation("missing required columns: %s", strings.Join(missing, ", "))
	}

	rows := make([]WorkerRow, 0, len(sheet.Rows))
	for _, sr := range sheet.Rows {
		row := WorkerRow{Number: sr.Number, Values: make(map[Field]string, len(cols))}
		for f, i := range cols {
			if v := sr.Cell(i); v != "" {
				row.Values[f] = v
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

var dateLayouts = []string{time.DateOnly, "02.01.2006", "02/01/2006", "2006/01/02", "01-02-06", "2006-01-02 15:04:05"}

// ParseDate reads a calendar day as typed in a register, or an Excel serial
// number. Blank input yields nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &day, nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &day, nil
		}
	}
	return nil, apperror.Validation("invalid date %q, expected YYYY-MM-DD", s)
}
