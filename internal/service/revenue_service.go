package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/ecofin"
	"ecofin/internal/model"
	"ecofin/internal/report"
	"ecofin/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type RevenueDataPoint struct {
	Period       string `json:"period"`
	InvoiceCount int    `json:"invoice_count"`
	Subtotal     string `json:"subtotal"`
	VATTotal     string `json:"vat_total"`
	Total        string `json:"total"`
	Paid         string `json:"paid"`
	Due          string `json:"due"`
}

type RevenueFilter struct {
	FromYear  int
	FromMonth int
	ToYear    int
	ToMonth   int
}

// BillingReportFilter narrows issued invoices. LastMonths, when set, replaces
// Year and Month with the trailing months up to the current one.
type BillingReportFilter struct {
	Year          int
	Month         int
	ClientID      string
	PaymentStatus string
	LastMonths    int
}

type BillingTotals struct {
	Subtotal string `json:"subtotal"`
	VAT      string `json:"vat"`
	Total    string `json:"total"`
	Paid     string `json:"paid"`
	Due      string `json:"due"`
}

type ClientBilling struct {
	ClientID     string `json:"client_id"`
	ClientName   string `json:"client_name"`
	InvoiceCount int    `json:"invoice_count"`
	Subtotal     string `json:"subtotal"`
	Total        string `json:"total"`
	Paid         string `json:"paid"`
	Due          string `json:"due"`
}

type BillingSummary struct {
	InvoiceCount    int             `json:"invoice_count"`
	Totals          BillingTotals   `json:"totals"`
	StatusBreakdown map[string]int  `json:"status_breakdown"`
	ByClient        []ClientBilling `json:"by_client"`
}

// --- Interface ---

type RevenueService interface {
	GetRevenueStatistics(ctx context.Context, filter RevenueFilter) ([]RevenueDataPoint, error)
	BillingSummary(ctx context.Context, filter BillingReportFilter) (BillingSummary, error)
	ExportExcel(ctx context.Context, filter BillingReportFilter) ([]byte, string, error)
	ExportPDF(ctx context.Context, filter BillingReportFilter) ([]byte, string, error)
}

type revenueService struct {
	revenue  repository.RevenueRepository
	invoices repository.InvoiceRepository
	pdf      report.PDFRenderer
	now      func() time.Time
}

func NewRevenueService(revenue repository.RevenueRepository, invoices repository.InvoiceRepository, pdf report.PDFRenderer) RevenueService {
	return &revenueService{revenue: revenue, invoices: invoices, pdf: pdf, now: time.Now}
}

// --- Implementation ---

// GetRevenueStatistics aggregates issued invoices per billing month.
func (s *revenueService) GetRevenueStatistics(ctx context.Context, f RevenueFilter) ([]RevenueDataPoint, error) {
	if f.FromYear == 0 && f.ToYear == 0 {
		y := s.now().Year()
		f = RevenueFilter{FromYear: y, FromMonth: 1, ToYear: y, ToMonth: 12}
	}
	if err := validatePeriod(f.FromYear, f.FromMonth); err != nil {
		return nil, err
	}
	if err := validatePeriod(f.ToYear, f.ToMonth); err != nil {
		return nil, err
	}

	rows, err := s.revenue.RevenueByPeriod(ctx, repository.PeriodRange{
		FromYear: f.FromYear, FromMonth: f.FromMonth, ToYear: f.ToYear, ToMonth: f.ToMonth,
	}, model.InvoiceIssued)
	if err != nil {
		return nil, err
	}

	result := make([]RevenueDataPoint, 0, len(rows))
	for _, r := range rows {
		result = append(result, RevenueDataPoint{
			Period:       periodLabel(r.Year, r.Month),
			InvoiceCount: r.InvoiceCount,
			Subtotal:     money(r.Subtotal),
			VATTotal:     money(r.VATTotal),
			Total:        money(r.Total),
			Paid:         money(r.Paid),
			Due:          money(r.Due),
		})
	}
	return result, nil
}

func (s *revenueService) BillingSummary(ctx context.Context, f BillingReportFilter) (BillingSummary, error) {
	invoices, err := s.issued(ctx, f)
	if err != nil {
		return BillingSummary{}, err
	}

	res := BillingSummary{
		InvoiceCount: len(invoices),
		StatusBreakdown: map[string]int{
			string(ecofin.PaymentPaid):    0,
			string(ecofin.PaymentPartial): 0,
			string(ecofin.PaymentUnpaid):  0,
		},
	}
	var total invoiceTotals
	byClient := map[uuid.UUID]*invoiceTotals{}
	names := map[uuid.UUID]string{}
	var order []uuid.UUID
	for _, inv := range invoices {
		total.add(inv)
		res.StatusBreakdown[inv.PaymentStatus]++
		ct, ok := byClient[inv.ClientID]
		if !ok {
			ct = &invoiceTotals{}
			byClient[inv.ClientID] = ct
			order = append(order, inv.ClientID)
		}
		ct.add(inv)
		if inv.Client != nil {
			names[inv.ClientID] = inv.Client.Name
		}
	}
	res.Totals = BillingTotals{
		Subtotal: money(total.subtotal), VAT: money(total.vat), Total: money(total.total),
		Paid: money(total.paid), Due: money(total.due),
	}

	sort.SliceStable(order, func(i, j int) bool { return names[order[i]] < names[order[j]] })
	res.ByClient = make([]ClientBilling, 0, len(order))
	for _, id := range order {
		ct := byClient[id]
		res.ByClient = append(res.ByClient, ClientBilling{
			ClientID:     id.String(),
			ClientName:   names[id],
			InvoiceCount: ct.count,
			Subtotal:     money(ct.subtotal),
			Total:        money(ct.total),
			Paid:         money(ct.paid),
			Due:          money(ct.due),
		})
	}
	return res, nil
}

func (s *revenueService) ExportExcel(ctx context.Context, f BillingReportFilter) ([]byte, string, error) {
	doc, err := s.document(ctx, f)
	if err != nil {
		return nil, "", err
	}
	data, err := report.Excel(doc)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build excel report: %w", err)
	}
	return data, fmt.Sprintf("billing_report_%s.xlsx", s.now().Format("20060102")), nil
}

func (s *revenueService) ExportPDF(ctx context.Context, f BillingReportFilter) ([]byte, string, error) {
	doc, err := s.document(ctx, f)
	if err != nil {
		return nil, "", err
	}
	data, err := renderPDF(ctx, s.pdf, doc)
	if err != nil {
		return nil, "", err
	}
	return data, fmt.Sprintf("billing_report_%s.pdf", s.now().Format("20060102")), nil
}

func (s *revenueService) document(ctx context.Context, f BillingReportFilter) (report.Document, error) {
	invoices, err := s.issued(ctx, f)
	if err != nil {
		return report.Document{}, err
	}
	sort.SliceStable(invoices, func(i, j int) bool {
		pi, pj := invoices[i].Year*100+invoices[i].Month, invoices[j].Year*100+invoices[j].Month
		if pi != pj {
			return pi > pj
		}
		return invoices[i].IssueDate.After(invoices[j].IssueDate)
	})

	table := report.Table{
		Title: "Invoices",
		Columns: []string{"No.", "Client", "Invoice", "Issue date", "Month", "Year",
			"Subtotal", "VAT", "Total", "Paid", "Due", "Status"},
	}
	var total invoiceTotals
	for i, inv := range invoices {
		total.add(inv)
		clientName := ""
		if inv.Client != nil {
			clientName = inv.Client.Name
		}
		table.Rows = append(table.Rows, []any{i + 1, clientName, inv.DisplayNumber(), inv.IssueDate,
			inv.Month, inv.Year, inv.Subtotal, inv.VATTotal, inv.Total, inv.PaidAmount, inv.DueAmount, inv.PaymentStatus})
	}
	table.Totals = []any{"", "Total", "", "", "", "", total.subtotal, total.vat, total.total, total.paid, total.due, ""}

	return report.Document{
		Title:       "Billing report",
		Subtitle:    billingFilterLabel(f),
		GeneratedAt: s.now(),
		Tables:      []report.Table{table},
	}, nil
}

// issued loads the issued invoices matching the filter.
func (s *revenueService) issued(ctx context.Context, f BillingReportFilter) ([]model.Invoice, error) {
	clientID, err := parseOptionalID("client", f.ClientID)
	if err != nil {
		return nil, err
	}
	paymentStatus := f.PaymentStatus
	if paymentStatus == "all" {
		paymentStatus = ""
	}
	switch ecofin.PaymentStatus(paymentStatus) {
	case "", ecofin.PaymentPaid, ecofin.PaymentPartial, ecofin.PaymentUnpaid:
	default:
		return nil, apperror.Validation("invalid payment status %q", f.PaymentStatus)
	}

	pr, err := s.reportRange(f)
	if err != nil {
		return nil, err
	}
	all, err := s.invoices.ListRange(ctx, pr)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoices: %w", err)
	}

	out := all[:0:0]
	for _, inv := range all {
		if inv.Status != model.InvoiceIssued {
			continue
		}
		if f.LastMonths == 0 && f.Month != 0 && inv.Month != f.Month {
			continue
		}
		if clientID != nil && inv.ClientID != *clientID {
			continue
		}
		if paymentStatus != "" && inv.PaymentStatus != paymentStatus {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (s *revenueService) reportRange(f BillingReportFilter) (repository.PeriodRange, error) {
	switch {
	case f.LastMonths > 0:
		if f.LastMonths > 120 {
			return repository.PeriodRange{}, apperror.Validation("last_months must be at most 120")
		}
		now := s.now()
		from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(f.LastMonths - 1), 0)
		return repository.PeriodRange{
			FromYear: from.Year(), FromMonth: int(from.Month()),
			ToYear: now.Year(), ToMonth: int(now.Month()),
		}, nil
	case f.Year != 0:
		if err := validatePeriod(f.Year, 1); err != nil {
			return repository.PeriodRange{}, err
		}
		return repository.PeriodRange{FromYear: f.Year, FromMonth: 1, ToYear: f.Year, ToMonth: 12}, nil
	default:
		return repository.PeriodRange{FromYear: 2000, FromMonth: 1, ToYear: 2100, ToMonth: 12}, nil
	}
}

func billingFilterLabel(f BillingReportFilter) string {
	switch {
	case f.LastMonths > 0:
		return fmt.Sprintf("last %d months", f.LastMonths)
	case f.Year != 0 && f.Month != 0:
		return periodLabel(f.Year, f.Month)
	case f.Year != 0:
		return fmt.Sprintf("%04d", f.Year)
	default:
		return "all periods"
	}
}

type invoiceTotals struct {
	count                int
	subtotal, vat, total decimal.Decimal
	paid, due            decimal.Decimal
}

func (t *invoiceTotals) add(inv model.Invoice) {
	t.count++
	t.subtotal = t.subtotal.Add(inv.Subtotal)
	t.vat = t.vat.Add(inv.VATTotal)
	t.total = t.total.Add(inv.Total)
	t.paid = t.paid.Add(inv.PaidAmount)
	t.due = t.due.Add(inv.DueAmount)
}
