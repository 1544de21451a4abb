package importer

import (
	"bytes"
	"strings"
	"testing"

	"ecofin/internal/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		"Număr contract:":         "numar contract",
		"  PAȘAPORT ":             "pasaport",
		"Total Hours Worked":      "total hours worked",
		"Rest de plată":           "rest de plata",
		"Nume și prenume":         "nume si prenume",
		"Worker  Passport-Number": "worker passport number",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeHeader(in), in)
	}
}

func TestMapHeaders(t *testing.T) {
	cols := MapHeaders([]string{"Nr. crt", "CIM", "Pașaport", "Ore", "Salariu", "CAM", "Ore lucrate"})

	assert.Equal(t, 1, cols[FieldContract])
	assert.Equal(t, 2, cols[FieldPassport])
	assert.Equal(t, 3, cols[FieldHours], "first matching column wins")
	assert.Equal(t, 4, cols[FieldGrossSalary])
	assert.Equal(t, 5, cols[FieldEmployerCAM])
	_, ok := cols[FieldNetSalary]
	assert.False(t, ok)
}

func TestParseDecimal(t *testing.T) {
	cases := map[string]string{
		"":            "0",
		"168":         "168",
		"4000.50":     "4000.5",
		"4000,50":     "4000.5",
		"1.234,56":    "1234.56",
		"1,234.56":    "1234.56",
		"1 234,5 lei": "1234.5",
	}
	for in, want := range cases {
		got, err := ParseDecimal(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.String(), in)
	}

	_, err := ParseDecimal("abc")
	assert.Error(t, err)
}

func TestReadSheet_CSV(t *testing.T) {
	data := "\xEF\xBB\xBFPasaport;Nume;Prenume;Ore;Salariu;CAM\n" +
		"n1234567;Perera;Kasun;168;4000,00;90\n" +
		";;;;;\n" +
		"N7654321;Silva;Nuwan;-2;3500;80\n"

	sheet, err := ReadSheet("payroll.csv", strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, 2, sheet.Rows[0].Number)
	assert.Equal(t, 4, sheet.Rows[1].Number, "blank rows are skipped but numbering is kept")

	rows, err := Parse(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "N1234567", rows[0].PassportNumber)
	assert.Equal(t, "Perera", rows[0].LastName)
	assert.Equal(t, "4000", rows[0].GrossSalary.String())
	assert.Equal(t, "90", rows[0].EmployerContribution.String())
	assert.Empty(t, rows[0].Err)

	assert.Contains(t, rows[1].Err, "negative")
}

func TestReadSheet_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Contract", "Nume si prenume", "Total hours worked", "Total salary cost"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"CIM-7", "Perera Kasun Lal", 160, "3800.25"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"", "Nobody", 10, 100}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	s, err := ReadSheet("Payroll.XLSX", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	rows, err := Parse(s)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Number)
	assert.Equal(t, "CIM-7", rows[0].ContractNumber)
	assert.Equal(t, "Perera", rows[0].LastName)
	assert.Equal(t, "Kasun Lal", rows[0].FirstName)
	assert.Equal(t, "160", rows[0].HoursWorked.String())
	assert.Equal(t, "3800.25", rows[0].GrossSalary.String())

	assert.Contains(t, rows[1].Err, "missing passport and contract")
}

func TestParse_MissingColumns(t *testing.T) {
	_, err := Parse(&Sheet{Headers: []string{"Nume", "Ore"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Contains(t, err.Error(), "passport or contract")
	assert.Contains(t, err.Error(), "salary")
}

func TestReadSheet_Unsupported(t *testing.T) {
	_, err := ReadSheet("payroll.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.False(t, Supported("payroll.pdf"))
	assert.True(t, Supported("payroll.csv"))
}

func TestReadSheet_Empty(t *testing.T) {
	_, err := ReadSheet("empty.csv", strings.NewReader("\n\n"))
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestMapWorkerHeaders(t *testing.T) {
	cols := MapWorkerHeaders([]string{"Nume", "Prenume", "Nr. pașaport", "Birth date (YYYY-MM-DD)", "Județ WP", "Data programare PS", "Unknown"})

	assert.Equal(t, 0, cols[FieldLastName])
	assert.Equal(t, 1, cols[FieldFirstName])
	assert.Equal(t, 2, cols[FieldPassport])
	assert.Equal(t, 3, cols[FieldBirthDate])
	assert.Equal(t, 4, cols[FieldPermitCounty])
	assert.Equal(t, 5, cols[FieldResidenceAppointment])
	assert.Len(t, cols, 6)
}

func TestMapWorkerHeaders_TemplateRoundTrip(t *testing.T) {
	headers := make([]string, 0, len(WorkerColumns))
	for _, c := range WorkerColumns {
		headers = append(headers, c.Header)
	}
	cols := MapWorkerHeaders(headers)
	for i, c := range WorkerColumns {
		assert.Equal(t, i, cols[c.Field], c.Header)
	}
}

func TestParseWorkers(t *testing.T) {
	s, err := ReadSheet("workers.csv", strings.NewReader("Nume;Prenume;Pasaport;Cetatenie\nPerera;Kasun;n1234567;Sri Lanka\nSilva;;N7654321;\n"))
	require.NoError(t, err)

	rows, err := ParseWorkers(s)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Number)
	assert.Equal(t, "n1234567", rows[0].Get(FieldPassport))
	assert.Equal(t, "Sri Lanka", rows[0].Get(FieldCitizenship))
	assert.Empty(t, rows[1].Get(FieldFirstName))

	_, err = ParseWorkers(&Sheet{Headers: []string{"Nume", "Cetatenie"}})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.ErrorContains(t, err, "passport_number")
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2025-02-03", "03.02.2025", "03/02/2025", "2025/02/03", "02-03-25", "45691"} {
		d, err := ParseDate(in)
		require.NoError(t, err, in)
		require.NotNil(t, d, in)
		assert.Equal(t, "2025-02-03", d.Format("2006-01-02"), in)
	}

	d, err := ParseDate("  ")
	require.NoError(t, err)
	assert.Nil(t, d)

	_, err = ParseDate("next tuesday")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
