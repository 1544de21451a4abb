package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/model"
	"ecofin/internal/report"
	"ecofin/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

// ReportFilter selects the records of one year, or one month when Month is set.
type ReportFilter struct {
	Year     int
	Month    int
	ClientID string
}

// IntervalFilter selects the records of an inclusive span of months.
type IntervalFilter struct {
	FromYear  int
	FromMonth int
	ToYear    int
	ToMonth   int
	ClientID  string
}

type ClientProfit struct {
	ClientID     string `json:"client_id"`
	ClientName   string `json:"client_name"`
	WorkersCount int    `json:"workers_count"`
	TotalHours   string `json:"total_hours"`
	TotalRevenue string `json:"total_revenue"`
	TotalCosts   string `json:"total_costs"`
	TotalProfit  string `json:"total_profit"`
	Margin       string `json:"margin_percent"`
}

type WorkerProfit struct {
	WorkerID       string `json:"worker_id"`
	WorkerName     string `json:"worker_name"`
	PassportNumber string `json:"passport_number"`
	ClientName     string `json:"client_name"`
	Period         string `json:"period"`
	HoursWorked    string `json:"hours_worked"`
	FullSalaryCost string `json:"full_salary_cost"`
	TotalCost      string `json:"total_worker_cost"`
	Revenue        string `json:"generated_revenue"`
	Profitability  string `json:"profitability"`
	Validated      bool   `json:"validated"`
}

type ProfitabilitySummary struct {
	Period                 string         `json:"period"`
	TotalWorkers           int            `json:"total_workers"`
	TotalHours             string         `json:"total_hours"`
	TotalSalaryCost        string         `json:"total_salary_cost"`
	TotalRevenue           string         `json:"total_revenue"`
	TotalCosts             string         `json:"total_costs"`
	TotalProfit            string         `json:"total_profit"`
	AverageProfitPerWorker string         `json:"average_profit_per_worker"`
	ByClient               []ClientProfit `json:"by_client"`
}

type PeriodProfit struct {
	Period       string `json:"period"`
	Year         int    `json:"year"`
	Month        int    `json:"month"`
	WorkersCount int    `json:"workers_count"`
	TotalHours   string `json:"total_hours"`
	TotalRevenue string `json:"total_revenue"`
	TotalCosts   string `json:"total_costs"`
	TotalProfit  string `json:"total_profit"`
}

type IntervalReport struct {
	From    string               `json:"from"`
	To      string               `json:"to"`
	Periods []PeriodProfit       `json:"periods"`
	Totals  ProfitabilitySummary `json:"totals"`
}

// --- Interface ---

type ReportService interface {
	Summary(ctx context.Context, filter ReportFilter) (ProfitabilitySummary, error)
	ByClient(ctx context.Context, filter ReportFilter) ([]ClientProfit, error)
	Workers(ctx context.Context, filter ReportFilter) ([]WorkerProfit, error)
	Interval(ctx context.Context, filter IntervalFilter) (IntervalReport, error)
	ExportExcel(ctx context.Context, filter ReportFilter) ([]byte, string, error)
	ExportPDF(ctx context.Context, filter ReportFilter) ([]byte, string, error)
}

type reportService struct {
	records repository.RecordRepository
	pdf     report.PDFRenderer
	now     func() time.Time
}

func NewReportService(records repository.RecordRepository, pdf report.PDFRenderer) ReportService {
	return &reportService{records: records, pdf: pdf, now: time.Now}
}

// --- Implementation ---

func (s *reportService) Summary(ctx context.Context, f ReportFilter) (ProfitabilitySummary, error) {
	records, err := s.load(ctx, f)
	if err != nil {
		return ProfitabilitySummary{}, err
	}
	sum := summarize(records)
	sum.Period = filterLabel(f)
	return sum, nil
}

func (s *reportService) ByClient(ctx context.Context, f ReportFilter) ([]ClientProfit, error) {
	records, err := s.load(ctx, f)
	if err != nil {
		return nil, err
	}
	return groupByClient(records), nil
}

func (s *reportService) Workers(ctx context.Context, f ReportFilter) ([]WorkerProfit, error) {
	records, err := s.load(ctx, f)
	if err != nil {
		return nil, err
	}
	res := make([]WorkerProfit, 0, len(records))
	for _, r := range records {
		res = append(res, toWorkerProfit(r))
	}
	return res, nil
}

func (s *reportService) Interval(ctx context.Context, f IntervalFilter) (IntervalReport, error) {
	if err := validatePeriod(f.FromYear, f.FromMonth); err != nil {
		return IntervalReport{}, err
	}
	if err := validatePeriod(f.ToYear, f.ToMonth); err != nil {
		return IntervalReport{}, err
	}
	if f.FromYear*100+f.FromMonth > f.ToYear*100+f.ToMonth {
		return IntervalReport{}, apperror.Validation("interval start must not be after its end")
	}
	clientID, err := parseOptionalID("client", f.ClientID)
	if err != nil {
		return IntervalReport{}, err
	}

	records, err := s.records.ListRange(ctx, repository.PeriodRange{
		FromYear: f.FromYear, FromMonth: f.FromMonth, ToYear: f.ToYear, ToMonth: f.ToMonth,
	})
	if err != nil {
		return IntervalReport{}, fmt.Errorf("failed to load records: %w", err)
	}
	records = filterClient(records, clientID)

	type key struct{ year, month int }
	groups := map[key][]model.ProcessedRecord{}
	var order []key
	for _, r := range records {
		k := key{r.Year, r.Month}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	res := IntervalReport{
		From:    periodLabel(f.FromYear, f.FromMonth),
		To:      periodLabel(f.ToYear, f.ToMonth),
		Periods: make([]PeriodProfit, 0, len(order)),
	}
	for _, k := range order {
		t := totalsOf(groups[k])
		res.Periods = append(res.Periods, PeriodProfit{
			Period:       periodLabel(k.year, k.month),
			Year:         k.year,
			Month:        k.month,
			WorkersCount: len(groups[k]),
			TotalHours:   money(t.hours),
			TotalRevenue: money(t.revenue),
			TotalCosts:   money(t.costs),
			TotalProfit:  money(t.profit),
		})
	}
	res.Totals = summarize(records)
	res.Totals.Period = res.From + " - " + res.To
	return res, nil
}

func (s *reportService) ExportExcel(ctx context.Context, f ReportFilter) ([]byte, string, error) {
	doc, err := s.document(ctx, f)
	if err != nil {
		return nil, "", err
	}
	data, err := report.Excel(doc)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build excel report: %w", err)
	}
	return data, fmt.Sprintf("profitability_%s.xlsx", filterLabel(f)), nil
}

func (s *reportService) ExportPDF(ctx context.Context, f ReportFilter) ([]byte, string, error) {
	doc, err := s.document(ctx, f)
	if err != nil {
		return nil, "", err
	}
	data, err := renderPDF(ctx, s.pdf, doc)
	if err != nil {
		return nil, "", err
	}
	return data, fmt.Sprintf("profitability_%s.pdf", filterLabel(f)), nil
}

func (s *reportService) document(ctx context.Context, f ReportFilter) (report.Document, error) {
	records, err := s.load(ctx, f)
	if err != nil {
		return report.Document{}, err
	}
	sum := summarize(records)

	workers := report.Table{
		Title: "Workers",
		Columns: []string{"Worker", "Passport", "Client", "Period", "Hours", "Salary cost",
			"Total cost", "Revenue", "Profit", "Validated"},
	}
	t := totalsOf(records)
	for _, r := range records {
		w := toWorkerProfit(r)
		workers.Rows = append(workers.Rows, []any{w.WorkerName, w.PassportNumber, w.ClientName, w.Period,
			r.HoursWorked, r.FullSalaryCost, r.TotalWorkerCost, r.GeneratedRevenue, r.Profitability, r.Validated})
	}
	workers.Totals = []any{"Total", "", "", "", t.hours, t.salary, t.costs, t.revenue, t.profit, ""}

	clients := report.Table{
		Title:   "Clients",
		Columns: []string{"Client", "Workers", "Hours", "Revenue", "Costs", "Profit", "Margin %"},
	}
	for _, c := range sum.ByClient {
		clients.Rows = append(clients.Rows, []any{c.ClientName, c.WorkersCount, c.TotalHours,
			c.TotalRevenue, c.TotalCosts, c.TotalProfit, c.Margin})
	}
	clients.Totals = []any{"Total", sum.TotalWorkers, sum.TotalHours, sum.TotalRevenue, sum.TotalCosts, sum.TotalProfit, ""}

	return report.Document{
		Title:       "Profitability report",
		Subtitle:    filterLabel(f),
		GeneratedAt: s.now(),
		Tables:      []report.Table{clients, workers},
	}, nil
}

func (s *reportService) load(ctx context.Context, f ReportFilter) ([]model.ProcessedRecord, error) {
	if f.Year == 0 {
		return nil, apperror.Validation("year is required")
	}
	pr := repository.PeriodRange{FromYear: f.Year, FromMonth: 1, ToYear: f.Year, ToMonth: 12}
	if f.Month != 0 {
		if err := validatePeriod(f.Year, f.Month); err != nil {
			return nil, err
		}
		pr.FromMonth, pr.ToMonth = f.Month, f.Month
	} else if err := validatePeriod(f.Year, 1); err != nil {
		return nil, err
	}
	clientID, err := parseOptionalID("client", f.ClientID)
	if err != nil {
		return nil, err
	}
	records, err := s.records.ListRange(ctx, pr)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	return filterClient(records, clientID), nil
}

// renderPDF lays the document out as HTML and prints it.
func renderPDF(ctx context.Context, r report.PDFRenderer, doc report.Document) ([]byte, error) {
	if r == nil {
		return nil, apperror.Wrap(apperror.KindValidation, report.ErrPDFDisabled, "pdf export is not available")
	}
	html, err := report.HTML(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render report html: %w", err)
	}
	data, err := r.Render(ctx, html)
	if errors.Is(err, report.ErrPDFDisabled) {
		return nil, apperror.Wrap(apperror.KindValidation, err, "pdf export is not available")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return data, nil
}

type profitTotals struct {
	hours, salary, revenue, costs, profit decimal.Decimal
}

func totalsOf(records []model.ProcessedRecord) profitTotals {
	var t profitTotals
	for _, r := range records {
		t.hours = t.hours.Add(r.HoursWorked)
		t.salary = t.salary.Add(r.FullSalaryCost)
		t.revenue = t.revenue.Add(r.GeneratedRevenue)
		t.costs = t.costs.Add(r.TotalWorkerCost)
		t.profit = t.profit.Add(r.Profitability)
	}
	return t
}

func summarize(records []model.ProcessedRecord) ProfitabilitySummary {
	t := totalsOf(records)
	avg := decimal.Zero
	if len(records) > 0 {
		avg = t.profit.Div(decimal.NewFromInt(int64(len(records))))
	}
	return ProfitabilitySummary{
		TotalWorkers:           len(records),
		TotalHours:             money(t.hours),
		TotalSalaryCost:        money(t.salary),
		TotalRevenue:           money(t.revenue),
		TotalCosts:             money(t.costs),
		TotalProfit:            money(t.profit),
		AverageProfitPerWorker: money(avg),
		ByClient:               groupByClient(records),
	}
}

// groupByClient orders clients by profit, highest first.
func groupByClient(records []model.ProcessedRecord) []ClientProfit {
	groups := map[uuid.UUID][]model.ProcessedRecord{}
	names := map[uuid.UUID]string{}
	for _, r := range records {
		groups[r.ClientID] = append(groups[r.ClientID], r)
		if r.Client != nil {
			names[r.ClientID] = r.Client.Name
		}
	}

	type entry struct {
		profit decimal.Decimal
		item   ClientProfit
	}
	entries := make([]entry, 0, len(groups))
	for id, recs := range groups {
		t := totalsOf(recs)
		margin := decimal.Zero
		if t.revenue.IsPositive() {
			margin = t.profit.Div(t.revenue).Mul(decimal.NewFromInt(100))
		}
		entries = append(entries, entry{profit: t.profit, item: ClientProfit{
			ClientID:     id.String(),
			ClientName:   names[id],
			WorkersCount: len(recs),
			TotalHours:   money(t.hours),
			TotalRevenue: money(t.revenue),
			TotalCosts:   money(t.costs),
			TotalProfit:  money(t.profit),
			Margin:       money(margin),
		}})
	}
	sort.Slice(entries, func(i, j int) bool {
		if c := entries[i].profit.Cmp(entries[j].profit); c != 0 {
			return c > 0
		}
		return entries[i].item.ClientName < entries[j].item.ClientName
	})

	res := make([]ClientProfit, 0, len(entries))
	for _, e := range entries {
		res = append(res, e.item)
	}
	return res
}

func filterClient(records []model.ProcessedRecord, clientID *uuid.UUID) []model.ProcessedRecord {
	if clientID == nil {
		return records
	}
	out := records[:0:0]
	for _, r := range records {
		if r.ClientID == *clientID {
			out = append(out, r)
		}
	}
	return out
}

func filterLabel(f ReportFilter) string {
	if f.Month != 0 {
		return periodLabel(f.Year, f.Month)
	}
	return fmt.Sprintf("%04d", f.Year)
}

func toWorkerProfit(r model.ProcessedRecord) WorkerProfit {
	w := WorkerProfit{
		WorkerID:       r.WorkerID.String(),
		Period:         periodLabel(r.Year, r.Month),
		HoursWorked:    money(r.HoursWorked),
		FullSalaryCost: money(r.FullSalaryCost),
		TotalCost:      money(r.TotalWorkerCost),
		Revenue:        money(r.GeneratedRevenue),
		Profitability:  money(r.Profitability),
		Validated:      r.Validated,
	}
	if r.Worker != nil {
		w.WorkerName = r.Worker.FullName()
		w.PassportNumber = r.Worker.PassportNumber
	}
	if r.Client != nil {
		w.ClientName = r.Client.Name
	}
	return w
}
