package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/config"
	"ecofin/internal/model"
	"ecofin/internal/report"
	"ecofin/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRenderer struct{ html string }

func (r *stubRenderer) Render(_ context.Context, html string) ([]byte, error) {
	r.html = html
	return []byte("%PDF-1.7"), nil
}

func seedProfitRecords(t *testing.T, env *testEnv) (acme, beta *model.Client) {
	t.Helper()
	acme = env.seedClient(t, "acme", "50")
	beta = env.seedClient(t, "beta", "60")
	env.seedRecord(t, env.seedWorker(t, acme, "P1", ""), acme, 2025, 3, "160")
	env.seedRecord(t, env.seedWorker(t, acme, "P2", ""), acme, 2025, 3, "40")
	w3 := env.seedWorker(t, beta, "P3", "")
	env.seedRecord(t, w3, beta, 2025, 3, "100")
	env.seedRecord(t, w3, beta, 2025, 4, "50")
	return acme, beta
}

func TestReportService_SummaryGroupsByClient(t *testing.T) {
	env := newEnv(t)
	acme, _ := seedProfitRecords(t, env)
	svc := NewReportService(env.records, nil)

	sum, err := svc.Summary(context.Background(), ReportFilter{Year: 2025, Month: 3})
	require.NoError(t, err)
	assert.Equal(t, "2025-03", sum.Period)
	assert.Equal(t, 3, sum.TotalWorkers)
	assert.Equal(t, "300.00", sum.TotalHours)
	// acme: 3310 - 2690, beta: 6000 - 4690
	assert.Equal(t, "1930.00", sum.TotalProfit)
	require.Len(t, sum.ByClient, 2)
	assert.Equal(t, "beta", sum.ByClient[0].ClientName)
	assert.Equal(t, "1310.00", sum.ByClient[0].TotalProfit)
	assert.Equal(t, "acme", sum.ByClient[1].ClientName)
	assert.Equal(t, 2, sum.ByClient[1].WorkersCount)

	only, err := svc.Workers(context.Background(), ReportFilter{Year: 2025, Month: 3, ClientID: acme.ID.String()})
	require.NoError(t, err)
	assert.Len(t, only, 2)

	year, err := svc.Summary(context.Background(), ReportFilter{Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, 4, year.TotalWorkers)

	_, err = svc.Summary(context.Background(), ReportFilter{})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestReportService_Interval(t *testing.T) {
	env := newEnv(t)
	seedProfitRecords(t, env)
	svc := NewReportService(env.records, nil)

	res, err := svc.Interval(context.Background(), IntervalFilter{FromYear: 2025, FromMonth: 1, ToYear: 2025, ToMonth: 12})
	require.NoError(t, err)
	require.Len(t, res.Periods, 2)
	assert.Equal(t, "2025-03", res.Periods[0].Period)
	assert.Equal(t, 3, res.Periods[0].WorkersCount)
	assert.Equal(t, "2025-04", res.Periods[1].Period)
	assert.Equal(t, 4, res.Totals.TotalWorkers)

	_, err = svc.Interval(context.Background(), IntervalFilter{FromYear: 2025, FromMonth: 6, ToYear: 2025, ToMonth: 1})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestReportService_Exports(t *testing.T) {
	env := newEnv(t)
	seedProfitRecords(t, env)
	ctx := context.Background()

	disabled := NewReportService(env.records, report.NewPDFRenderer(config.PDFConfig{}, testLogger))
	data, name, err := disabled.ExportExcel(ctx, ReportFilter{Year: 2025, Month: 3})
	require.NoError(t, err)
	assert.Equal(t, "profitability_2025-03.xlsx", name)
	assert.NotEmpty(t, data)

	_, _, err = disabled.ExportPDF(ctx, ReportFilter{Year: 2025, Month: 3})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	renderer := &stubRenderer{}
	pdf, name, err := NewReportService(env.records, renderer).ExportPDF(ctx, ReportFilter{Year: 2025, Month: 3})
	require.NoError(t, err)
	assert.Equal(t, "profitability_2025-03.pdf", name)
	assert.Equal(t, []byte("%PDF-1.7"), pdf)
	assert.Contains(t, renderer.html, "acme")
}

func TestRevenueService_BillingSummary(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	acme := env.seedClient(t, "acme", "50")
	beta := env.seedClient(t, "beta", "60")

	seedIssuedInvoice(t, env, acme, "0001", "1000")
	paid := seedIssuedInvoice(t, env, beta, "0002", "500")
	paid.ApplyPayment(dec("500"))
	require.NoError(t, env.invoices.Update(ctx, paid))
	cancelled := seedIssuedInvoice(t, env, acme, "0003", "700")
	cancelled.Status = model.InvoiceCancelled
	require.NoError(t, env.invoices.Update(ctx, cancelled))

	svc := NewRevenueService(repository.NewRevenueRepository(env.db), env.invoices, nil)

	sum, err := svc.BillingSummary(ctx, BillingReportFilter{Year: 2025, Month: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.InvoiceCount)
	assert.Equal(t, "1500.00", sum.Totals.Total)
	assert.Equal(t, "500.00", sum.Totals.Paid)
	assert.Equal(t, "1000.00", sum.Totals.Due)
	assert.Equal(t, map[string]int{"PAID": 1, "PARTIAL": 0, "UNPAID": 1}, sum.StatusBreakdown)
	require.Len(t, sum.ByClient, 2)
	assert.Equal(t, "acme", sum.ByClient[0].ClientName)

	unpaid, err := svc.BillingSummary(ctx, BillingReportFilter{Year: 2025, PaymentStatus: "UNPAID"})
	require.NoError(t, err)
	assert.Equal(t, 1, unpaid.InvoiceCount)

	_, err = svc.BillingSummary(ctx, BillingReportFilter{PaymentStatus: "SOMETIMES"})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	stats, err := svc.GetRevenueStatistics(ctx, RevenueFilter{FromYear: 2025, FromMonth: 1, ToYear: 2025, ToMonth: 12})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "2025-03", stats[0].Period)
	assert.Equal(t, 2, stats[0].InvoiceCount)
}

func TestRevenueService_LastMonthsWindow(t *testing.T) {
	env := newEnv(t)
	acme := env.seedClient(t, "acme", "50")
	seedIssuedInvoice(t, env, acme, "0001", "1000")

	svc := NewRevenueService(repository.NewRevenueRepository(env.db), env.invoices, nil)
	svc.(*revenueService).now = func() time.Time { return time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC) }

	within, err := svc.BillingSummary(context.Background(), BillingReportFilter{LastMonths: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, within.InvoiceCount)

	outside, err := svc.BillingSummary(context.Background(), BillingReportFilter{LastMonths: 2})
	require.NoError(t, err)
	assert.Zero(t, outside.InvoiceCount)

	_, err = svc.BillingSummary(context.Background(), BillingReportFilter{LastMonths: 121})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}
