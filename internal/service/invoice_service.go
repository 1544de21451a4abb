package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/cache"
	"ecofin/internal/config"
	"ecofin/internal/ecofin"
	"ecofin/internal/events"
	"ecofin/internal/mailer"
	"ecofin/internal/metrics"
	"ecofin/internal/model"
	"ecofin/internal/repository"
	"ecofin/internal/smartbill"
	"ecofin/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InvoicingClient is the part of the SmartBill API the billing services use.
type InvoicingClient interface {
	CompanyCIF() string
	IssueInvoice(ctx context.Context, req smartbill.InvoiceRequest) (*smartbill.InvoiceResponse, error)
	InvoicePDF(ctx context.Context, series, number string) ([]byte, error)
	PaymentStatus(ctx context.Context, series, number string) (*smartbill.PaymentStatus, error)
	Payments(ctx context.Context, from, to time.Time) ([]smartbill.Payment, error)
	CancelInvoice(ctx context.Context, series, number string) error
	Series(ctx context.Context) ([]string, error)
}

var _ InvoicingClient = (*smartbill.Client)(nil)

var errNotConfigured = &apperror.UpstreamError{Service: "smartbill", Err: errors.New("SmartBill credentials are not configured")}

// --- DTOs ---

type ExtraLineRequest struct {
	Description string           `json:"description" binding:"required,max=500"`
	Unit        string           `json:"unit" binding:"max=20"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	VATRate     *decimal.Decimal `json:"vat_rate"`
}

type PreviewInvoiceRequest struct {
	ClientID   string             `json:"client_id" binding:"required"`
	Year       int                `json:"year" binding:"required"`
	Month      int                `json:"month" binding:"required,min=1,max=12"`
	Mode       string             `json:"mode" binding:"omitempty,oneof=standard difference extra_services"`
	ExtraLines []ExtraLineRequest `json:"extra_lines" binding:"dive"`
}

type IssueInvoiceRequest struct {
	PreviewInvoiceRequest
	ConfirmHoursAgreed bool   `json:"confirm_hours_agreed"`
	IssueDate          string `json:"issue_date"` // YYYY-MM-DD, defaults to today
	DueDays            int    `json:"due_days" binding:"min=0,max=365"`
}

type InvoiceLineResponse struct {
	Position    int    `json:"position"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	VATRate     string `json:"vat_rate"`
	LineTotal   string `json:"line_total"`
	LineVAT     string `json:"line_vat"`
	LineType    string `json:"line_type"`
}

type ExistingInvoice struct {
	ID           string `json:"id"`
	SeriesNumber string `json:"series_number"`
	Mode         string `json:"mode"`
	Subtotal     string `json:"subtotal"`
	Total        string `json:"total"`
	IssueDate    string `json:"issue_date"`
}

type InvoicePreview struct {
	ClientID         string                `json:"client_id"`
	ClientName       string                `json:"client_name"`
	Year             int                   `json:"year"`
	Month            int                   `json:"month"`
	MonthName        string                `json:"month_name"`
	Mode             string                `json:"mode"`
	TotalHours       string                `json:"total_hours"`
	HourlyRate       string                `json:"hourly_rate"`
	Lines            []InvoiceLineResponse `json:"lines"`
	StandardSubtotal string                `json:"standard_subtotal"`
	Subtotal         string                `json:"subtotal"`
	VATRate          string                `json:"vat_rate"`
	VATTotal         string                `json:"vat_total"`
	Total            string                `json:"total"`
	ExistingInvoices []ExistingInvoice     `json:"existing_invoices"`
	AlreadyBilled    string                `json:"already_billed_amount"`
	Warnings         []string              `json:"warnings"`
}

type EmailLogResponse struct {
	Recipient    string `json:"recipient"`
	Subject      string `json:"subject"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type InvoiceResponse struct {
	ID              string                `json:"id"`
	ClientID        string                `json:"client_id"`
	ClientName      string                `json:"client_name"`
	Year            int                   `json:"year"`
	Month           int                   `json:"month"`
	Series          string                `json:"series"`
	Number          string                `json:"number"`
	DisplayNumber   string                `json:"invoice_number"`
	IssueDate       string                `json:"issue_date"`
	Mode            string                `json:"mode"`
	Status          string                `json:"status"`
	Subtotal        string                `json:"subtotal"`
	VATRate         string                `json:"vat_rate"`
	VATTotal        string                `json:"vat_total"`
	Total           string                `json:"total"`
	PaidAmount      string                `json:"paid_amount"`
	DueAmount       string                `json:"due_amount"`
	PaymentStatus   string                `json:"payment_status"`
	HoursBilled     string                `json:"hours_billed"`
	HourlyRate      string                `json:"hourly_rate"`
	HasPDF          bool                  `json:"has_pdf"`
	EmailSentCount  int                   `json:"email_sent_count"`
	LastEmailSentAt *string               `json:"last_email_sent_at"`
	CancelledAt     *string               `json:"cancelled_at"`
	CreatedAt       string                `json:"created_at"`
	Lines           []InvoiceLineResponse `json:"lines,omitempty"`
	EmailLogs       []EmailLogResponse    `json:"email_logs,omitempty"`
}

type IssueInvoiceResult struct {
	Invoice  InvoiceResponse `json:"invoice"`
	Message  string          `json:"message"`
	Replayed bool            `json:"replayed"`
}

type InvoiceListFilter struct {
	ClientID      string
	Year          int
	Month         int
	Status        string
	PaymentStatus string
	Page          int
	Limit         int
}

type SendEmailRequest struct {
	To string `json:"email_to" binding:"omitempty,email"`
}

type SendEmailResult struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

type BillingConfigResponse struct {
	Configured      bool     `json:"configured"`
	CompanyCIF      string   `json:"company_cif,omitempty"`
	Series          string   `json:"series,omitempty"`
	DefaultVATRate  string   `json:"default_vat_rate"`
	ConnectionOK    bool     `json:"connection_ok"`
	AvailableSeries []string `json:"available_series,omitempty"`
	Message         string   `json:"message"`
}

// --- Interface ---

type InvoiceService interface {
	Config(ctx context.Context) BillingConfigResponse
	Preview(ctx context.Context, req PreviewInvoiceRequest) (InvoicePreview, error)
	Issue(ctx context.Context, actor Actor, req IssueInvoiceRequest, idempotencyKey string) (IssueInvoiceResult, error)
	ListInvoices(ctx context.Context, filter InvoiceListFilter) ([]InvoiceResponse, int64, error)
	GetInvoice(ctx context.Context, id string) (InvoiceResponse, error)
	InvoicePDF(ctx context.Context, id string) ([]byte, string, error)
	SendEmail(ctx context.Context, actor Actor, id string, req SendEmailRequest) (SendEmailResult, error)
	Cancel(ctx context.Context, actor Actor, id string) (InvoiceResponse, error)
}

// InvoiceDeps wires the invoice service. SmartBill, Mailer and Store may be nil
// when the matching integration is not configured.
type InvoiceDeps struct {
	Invoices    repository.InvoiceRepository
	Clients     repository.ClientRepository
	Records     repository.RecordRepository
	Audit       repository.AuditRepository
	Tax         TaxService
	SmartBill   InvoicingClient
	Mailer      mailer.Mailer
	Store       storage.Store
	Idempotency cache.IdempotencyStore
	Events      events.Publisher
	Metrics     *metrics.Metrics
	Config      config.SmartBillConfig
	Billing     config.BillingConfig
}

type invoiceService struct {
	invoices    repository.InvoiceRepository
	clients     repository.ClientRepository
	records     repository.RecordRepository
	tax         TaxService
	smartbill   InvoicingClient
	mailer      mailer.Mailer
	store       storage.Store
	idempotency cache.IdempotencyStore
	events      events.Publisher
	metrics     *metrics.Metrics
	cfg         config.SmartBillConfig
	billing     config.BillingConfig
	audit       auditWriter
	logger      *zap.Logger
	now         func() time.Time
}

func NewInvoiceService(d InvoiceDeps, log *zap.Logger) InvoiceService {
	return &invoiceService{
		invoices:    d.Invoices,
		clients:     d.Clients,
		records:     d.Records,
		tax:         d.Tax,
		smartbill:   d.SmartBill,
		mailer:      d.Mailer,
		store:       d.Store,
		idempotency: d.Idempotency,
		events:      d.Events,
		metrics:     d.Metrics,
		cfg:         d.Config,
		billing:     d.Billing,
		audit:       auditWriter{repo: d.Audit, logger: log},
		logger:      log,
		now:         time.Now,
	}
}

// --- Implementation ---

// Config reports whether SmartBill is configured and reachable.
func (s *invoiceService) Config(ctx context.Context) BillingConfigResponse {
	res := BillingConfigResponse{
		Configured:     s.smartbill != nil,
		CompanyCIF:     s.cfg.CompanyCIF,
		Series:         s.cfg.Series,
		DefaultVATRate: money(s.cfg.DefaultVATRate),
	}
	if s.smartbill == nil {
		res.Message = "SmartBill credentials are not configured"
		return res
	}
	series, err := s.smartbill.Series(ctx)
	if err != nil {
		s.logger.Warn("SmartBill connection test failed", zap.Error(err))
		res.Message = "connection test failed: " + err.Error()
		return res
	}
	res.ConnectionOK = true
	res.AvailableSeries = series
	res.Message = "connection OK"
	return res
}

type computedInvoice struct {
	client     *model.Client
	existing   []model.Invoice
	totalHours decimal.Decimal
	result     ecofin.InvoiceComputation
}

func (s *invoiceService) compute(ctx context.Context, req PreviewInvoiceRequest, issueDate time.Time) (*computedInvoice, error) {
	if err := validatePeriod(req.Year, req.Month); err != nil {
		return nil, err
	}
	clientID, err := parseID("client", req.ClientID)
	if err != nil {
		return nil, err
	}
	client, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		return nil, notFound(err, "client")
	}

	records, err := s.records.ListPeriod(ctx, req.Year, req.Month, &clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	totalHours := decimal.Zero
	for _, r := range records {
		totalHours = totalHours.Add(r.HoursWorked)
	}

	existing, err := s.invoices.ListIssued(ctx, clientID, req.Year, req.Month)
	if err != nil {
		return nil, fmt.Errorf("failed to load issued invoices: %w", err)
	}
	subtotals := make([]decimal.Decimal, 0, len(existing))
	for _, inv := range existing {
		subtotals = append(subtotals, inv.Subtotal)
	}

	vatRate, err := s.tax.VATRate(ctx, issueDate)
	if err != nil {
		return nil, err
	}

	mode := ecofin.Mode(req.Mode)
	if mode == "" {
		mode = ecofin.ModeStandard
	}
	extra := make([]ecofin.ExtraLine, 0, len(req.ExtraLines))
	for _, l := range req.ExtraLines {
		extra = append(extra, ecofin.ExtraLine{
			Description: l.Description, Unit: l.Unit, Quantity: l.Quantity, UnitPrice: l.UnitPrice, VATRate: l.VATRate,
		})
	}

	result, err := ecofin.ComputeInvoice(ecofin.BillingInput{
		Mode:          mode,
		Year:          req.Year,
		Month:         req.Month,
		TotalHours:    totalHours,
		HourlyRate:    client.HourlyRate,
		VATRate:       vatRate,
		AlreadyBilled: ecofin.AlreadyBilled(subtotals),
		ExtraLines:    extra,
	})
	if err != nil {
		return nil, err
	}
	return &computedInvoice{client: client, existing: existing, totalHours: totalHours, result: result}, nil
}

// Preview computes the invoice without issuing it and lists what the user
// should check first.
func (s *invoiceService) Preview(ctx context.Context, req PreviewInvoiceRequest) (InvoicePreview, error) {
	if err := validateStruct(req); err != nil {
		return InvoicePreview{}, err
	}
	c, err := s.compute(ctx, req, s.now())
	if err != nil {
		return InvoicePreview{}, err
	}
	r := c.result

	res := InvoicePreview{
		ClientID:         c.client.ID.String(),
		ClientName:       c.client.Name,
		Year:             req.Year,
		Month:            req.Month,
		MonthName:        ecofin.MonthNameRO(req.Month),
		Mode:             string(r.Mode),
		TotalHours:       money(c.totalHours),
		HourlyRate:       money(c.client.HourlyRate),
		Lines:            toLineResponses(r.Lines),
		StandardSubtotal: money(r.StandardSubtotal),
		Subtotal:         money(r.Subtotal),
		VATRate:          money(r.VATRate),
		VATTotal:         money(r.VATTotal),
		Total:            money(r.Total),
		ExistingInvoices: make([]ExistingInvoice, 0, len(c.existing)),
		AlreadyBilled:    money(r.AlreadyBilled),
		Warnings:         []string{},
	}
	for _, inv := range c.existing {
		res.ExistingInvoices = append(res.ExistingInvoices, ExistingInvoice{
			ID: inv.ID.String(), SeriesNumber: inv.DisplayNumber(), Mode: inv.Mode,
			Subtotal: money(inv.Subtotal), Total: money(inv.Total), IssueDate: inv.IssueDate.Format(time.DateOnly),
		})
	}

	period := fmt.Sprintf("%s %d", res.MonthName, req.Year)
	if len(c.existing) > 0 {
		if !r.StandardSubtotal.GreaterThan(r.AlreadyBilled) {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"invoices for %s already total %s RON (>= %s RON computed); only extra services can still be billed",
				period, money(r.AlreadyBilled), money(r.StandardSubtotal)))
		} else {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"invoices for %s already total %s RON; difference to bill: %s RON",
				period, money(r.AlreadyBilled), money(r.StandardSubtotal.Sub(r.AlreadyBilled))))
		}
	}
	if c.totalHours.IsZero() {
		res.Warnings = append(res.Warnings, "no hours recorded for this period")
	}
	if c.client.HourlyRate.IsZero() {
		res.Warnings = append(res.Warnings, "client hourly rate is 0")
	}
	return res, nil
}

// Issue creates the invoice in SmartBill and then stores it locally. A repeated
// idempotency key returns the invoice created by the first request.
func (s *invoiceService) Issue(ctx context.Context, actor Actor, req IssueInvoiceRequest, key string) (IssueInvoiceResult, error) {
	if !req.ConfirmHoursAgreed {
		return IssueInvoiceResult{}, apperror.Validation("the billed hours must be confirmed as agreed with the client")
	}
	if err := validateStruct(req); err != nil {
		return IssueInvoiceResult{}, err
	}
	issueDate := s.now()
	if req.IssueDate != "" {
		d, err := time.Parse(time.DateOnly, req.IssueDate)
		if err != nil {
			return IssueInvoiceResult{}, apperror.Validation("invalid issue_date %q, expected YYYY-MM-DD", req.IssueDate)
		}
		issueDate = d
	}
	if s.smartbill == nil {
		return IssueInvoiceResult{}, errNotConfigured
	}

	key = strings.TrimSpace(key)
	if key != "" {
		replay, reserved, err := s.reserve(ctx, key)
		if err != nil {
			return IssueInvoiceResult{}, err
		}
		if replay != nil {
			return IssueInvoiceResult{Invoice: *replay, Replayed: true, Message: "invoice " + replay.DisplayNumber + " was already issued"}, nil
		}
		if !reserved {
			return IssueInvoiceResult{}, apperror.Conflict("a request with this idempotency key is still in progress")
		}
	}
	release := func() {
		if key == "" || s.idempotency == nil {
			return
		}
		if err := s.idempotency.Release(ctx, key); err != nil {
			s.logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(err))
		}
	}

	c, err := s.compute(ctx, req.PreviewInvoiceRequest, issueDate)
	if err != nil {
		release()
		return IssueInvoiceResult{}, err
	}
	r := c.result

	sbReq := smartbill.InvoiceRequest{
		Client: smartbill.Party{
			Name:       c.client.Name,
			VATCode:    c.client.FiscalCode,
			Address:    c.client.Address,
			City:       c.client.City,
			County:     c.client.County,
			Country:    countryOrDefault(c.client.Country),
			Email:      c.client.Email,
			IsTaxPayer: true,
		},
		IssueDate:  issueDate.Format(time.DateOnly),
		SeriesName: s.cfg.Series,
		Currency:   "RON",
	}
	if req.DueDays > 0 {
		sbReq.DueDate = issueDate.AddDate(0, 0, req.DueDays).Format(time.DateOnly)
	}
	for _, l := range r.Lines {
		sbReq.Products = append(sbReq.Products, smartbill.NewServiceProduct(l.Description, l.Unit, l.Quantity, l.UnitPrice, l.VATRate))
	}

	issued, err := s.smartbill.IssueInvoice(ctx, sbReq)
	if err != nil {
		release()
		s.upstreamFailed("issue_invoice")
		s.logger.Error("SmartBill invoice issue failed", zap.String("client_id", c.client.ID.String()), zap.Error(err))
		return IssueInvoiceResult{}, err
	}

	hoursBilled := decimal.Zero
	if r.Mode == ecofin.ModeStandard {
		hoursBilled = c.totalHours
	}
	invoice := model.Invoice{
		ID:             uuid.New(),
		ClientID:       c.client.ID,
		Year:           req.Year,
		Month:          req.Month,
		Series:         issued.Series,
		Number:         issued.Number,
		IssueDate:      issueDate,
		Mode:           string(r.Mode),
		Status:         model.InvoiceIssued,
		Subtotal:       r.Subtotal,
		VATRate:        r.VATRate,
		VATTotal:       r.VATTotal,
		Total:          r.Total,
		HoursBilled:    hoursBilled,
		HourlyRate:     c.client.HourlyRate,
		IdempotencyKey: key,
		CreatedBy:      actor.UserID,
	}
	for _, l := range r.Lines {
		invoice.Lines = append(invoice.Lines, model.InvoiceLine{
			Position: l.Position, Description: l.Description, Unit: l.Unit, Quantity: l.Quantity,
			UnitPrice: l.UnitPrice, VATRate: l.VATRate, LineTotal: l.LineTotal, LineVAT: l.LineVAT,
			LineType: string(l.LineType),
		})
	}
	invoice.ApplyPayment(decimal.Zero)

	if err := s.invoices.Create(ctx, &invoice); err != nil {
		// The key stays reserved so a retry cannot issue a second remote invoice.
		s.logger.Error("Invoice issued in SmartBill but not saved locally",
			zap.String("series", issued.Series), zap.String("number", issued.Number), zap.Error(err))
		return IssueInvoiceResult{}, fmt.Errorf("failed to save issued invoice %s %s: %w", issued.Series, issued.Number, err)
	}
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.Complete(ctx, key, invoice.ID.String(), s.billing.IdempotencyTTL); err != nil {
			s.logger.Warn("Failed to complete idempotency key", zap.String("key", key), zap.Error(err))
		}
	}
	invoice.Client = c.client

	s.storePDF(ctx, &invoice)
	s.audit.write(ctx, actor, model.ActionIssueInvoice, invoice.ID.String(), invoice.DisplayNumber(), map[string]any{
		"client": c.client.Name, "period": periodLabel(invoice.Year, invoice.Month),
		"mode": invoice.Mode, "total": money(invoice.Total),
	})
	publish(ctx, s.events, s.logger, events.New(events.InvoiceIssued, invoice.ID.String(), map[string]any{
		"client_id": invoice.ClientID.String(), "number": invoice.DisplayNumber(),
		"mode": invoice.Mode, "total": money(invoice.Total),
	}))
	if s.metrics != nil {
		s.metrics.InvoiceIssued(invoice.Mode, invoice.Total.InexactFloat64())
	}

	return IssueInvoiceResult{
		Invoice: toInvoiceResponse(invoice, true),
		Message: fmt.Sprintf("invoice %s issued", invoice.DisplayNumber()),
	}, nil
}

// reserve claims key. A key that already produced an invoice returns it.
func (s *invoiceService) reserve(ctx context.Context, key string) (*InvoiceResponse, bool, error) {
	if inv, err := s.invoices.FindByIdempotencyKey(ctx, key); err == nil {
		res := toInvoiceResponse(*inv, true)
		return &res, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to check idempotency key: %w", err)
	}

	if s.idempotency == nil {
		return nil, true, nil
	}
	ok, err := s.idempotency.Reserve(ctx, key, s.billing.IdempotencyTTL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if ok {
		return nil, true, nil
	}

	value, found, err := s.idempotency.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	if !found || value == cache.Pending {
		return nil, false, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, false, nil
	}
	inv, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, false, notFound(err, "invoice")
	}
	res := toInvoiceResponse(*inv, true)
	return &res, false, nil
}

// storePDF keeps a copy of the SmartBill PDF. Failures only log.
func (s *invoiceService) storePDF(ctx context.Context, inv *model.Invoice) {
	if s.store == nil || s.smartbill == nil || inv.Number == "" {
		return
	}
	data, err := s.smartbill.InvoicePDF(ctx, inv.Series, inv.Number)
	if err != nil {
		s.upstreamFailed("invoice_pdf")
		s.logger.Warn("Failed to download invoice PDF", zap.String("invoice", inv.DisplayNumber()), zap.Error(err))
		return
	}
	key := fmt.Sprintf("invoices/%s/%04d/%02d/%s%s.pdf", inv.ClientID, inv.Year, inv.Month, inv.Series, inv.Number)
	if err := s.store.Put(ctx, key, "application/pdf", data); err != nil {
		s.logger.Warn("Failed to store invoice PDF", zap.String("key", key), zap.Error(err))
		return
	}
	inv.PDFKey = key
	if err := s.invoices.Update(ctx, inv); err != nil {
		s.logger.Warn("Failed to record invoice PDF key", zap.String("invoice", inv.DisplayNumber()), zap.Error(err))
	}
}

func (s *invoiceService) ListInvoices(ctx context.Context, f InvoiceListFilter) ([]InvoiceResponse, int64, error) {
	clientID, err := parseOptionalID("client", f.ClientID)
	if err != nil {
		return nil, 0, err
	}
	invoices, total, err := s.invoices.List(ctx, repository.InvoiceFilter{
		ClientID: clientID, Year: f.Year, Month: f.Month, Status: f.Status,
		PaymentStatus: f.PaymentStatus, Page: f.Page, Limit: f.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invoices: %w", err)
	}
	res := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		res = append(res, toInvoiceResponse(inv, false))
	}
	return res, total, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (InvoiceResponse, error) {
	inv, err := s.find(ctx, id)
	if err != nil {
		return InvoiceResponse{}, err
	}
	res := toInvoiceResponse(*inv, true)
	logs, err := s.invoices.ListEmailLogs(ctx, inv.ID)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("failed to load email logs: %w", err)
	}
	for _, l := range logs {
		res.EmailLogs = append(res.EmailLogs, EmailLogResponse{
			Recipient: l.Recipient, Subject: l.Subject, Status: l.Status,
			ErrorMessage: l.ErrorMessage, CreatedAt: formatTime(l.CreatedAt),
		})
	}
	return res, nil
}

// InvoicePDF returns the stored copy, else fetches it live from SmartBill.
func (s *invoiceService) InvoicePDF(ctx context.Context, id string) ([]byte, string, error) {
	inv, err := s.find(ctx, id)
	if err != nil {
		return nil, "", err
	}
	data, err := s.pdfBytes(ctx, inv)
	if err != nil {
		return nil, "", err
	}
	return data, pdfFileName(*inv), nil
}

func (s *invoiceService) pdfBytes(ctx context.Context, inv *model.Invoice) ([]byte, error) {
	if inv.PDFKey != "" && s.store != nil {
		data, err := s.store.Get(ctx, inv.PDFKey)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("Failed to read stored invoice PDF", zap.String("key", inv.PDFKey), zap.Error(err))
		}
	}
	if s.smartbill != nil && inv.Number != "" {
		data, err := s.smartbill.InvoicePDF(ctx, inv.Series, inv.Number)
		if err == nil {
			return data, nil
		}
		s.upstreamFailed("invoice_pdf")
		s.logger.Warn("Failed to fetch invoice PDF from SmartBill", zap.String("invoice", inv.DisplayNumber()), zap.Error(err))
	}
	return nil, apperror.NotFound("PDF for invoice %s is not available", inv.DisplayNumber())
}

// SendEmail mails the invoice PDF to the given address or the client's email.
// Every attempt is logged.
func (s *invoiceService) SendEmail(ctx context.Context, actor Actor, id string, req SendEmailRequest) (SendEmailResult, error) {
	if err := validateStruct(req); err != nil {
		return SendEmailResult{}, err
	}
	inv, err := s.find(ctx, id)
	if err != nil {
		return SendEmailResult{}, err
	}
	if inv.Status != model.InvoiceIssued {
		return SendEmailResult{}, apperror.InvalidBillingState("invoice %s is %s", inv.DisplayNumber(), inv.Status)
	}
	to := strings.TrimSpace(req.To)
	if to == "" && inv.Client != nil {
		to = strings.TrimSpace(inv.Client.Email)
	}
	if to == "" {
		return SendEmailResult{}, apperror.Validation("no recipient: set email_to or the client's email")
	}
	if s.mailer == nil {
		return SendEmailResult{}, apperror.Wrap(apperror.KindValidation, mailer.ErrNotConfigured, "email is not configured")
	}
	pdf, err := s.pdfBytes(ctx, inv)
	if err != nil {
		return SendEmailResult{}, apperror.Validation("PDF for invoice %s is not available for sending", inv.DisplayNumber())
	}

	subject, body := invoiceEmail(*inv)
	sendErr := s.mailer.Send(ctx, mailer.Message{
		To:      []string{to},
		Subject: subject,
		Body:    body,
		Attachments: []mailer.Attachment{
			{Filename: pdfFileName(*inv), ContentType: "application/pdf", Data: pdf},
		},
	})

	entry := model.InvoiceEmailLog{InvoiceID: inv.ID, Recipient: to, Subject: subject, Status: model.EmailSent, SentBy: actor.UserID}
	if sendErr != nil {
		entry.Status = model.EmailFailed
		entry.ErrorMessage = sendErr.Error()
	}
	if err := s.invoices.CreateEmailLog(ctx, &entry); err != nil {
		s.logger.Warn("Failed to write invoice email log", zap.String("invoice", inv.DisplayNumber()), zap.Error(err))
	}
	if sendErr != nil {
		s.logger.Error("Failed to send invoice email", zap.String("invoice", inv.DisplayNumber()), zap.String("to", to), zap.Error(sendErr))
		return SendEmailResult{}, apperror.Wrap(apperror.KindUpstream, sendErr, "failed to send invoice email")
	}

	now := s.now()
	inv.EmailSentCount++
	inv.LastEmailSentAt = &now
	if err := s.invoices.Update(ctx, inv); err != nil {
		s.logger.Warn("Failed to update invoice email counters", zap.String("invoice", inv.DisplayNumber()), zap.Error(err))
	}
	s.audit.write(ctx, actor, model.ActionEmailInvoice, inv.ID.String(), inv.DisplayNumber(), map[string]string{"to": to})
	publish(ctx, s.events, s.logger, events.New(events.InvoiceEmailed, inv.ID.String(), map[string]string{"to": to}))
	return SendEmailResult{Recipient: to, Message: "email sent to " + to}, nil
}

// Cancel voids an unpaid issued invoice in SmartBill, then locally.
func (s *invoiceService) Cancel(ctx context.Context, actor Actor, id string) (InvoiceResponse, error) {
	inv, err := s.find(ctx, id)
	if err != nil {
		return InvoiceResponse{}, err
	}
	if inv.Status != model.InvoiceIssued {
		return InvoiceResponse{}, apperror.InvalidBillingState("invoice %s is %s and cannot be cancelled", inv.DisplayNumber(), inv.Status)
	}
	if inv.PaidAmount.IsPositive() {
		return InvoiceResponse{}, apperror.InvalidBillingState("invoice %s has payments and cannot be cancelled", inv.DisplayNumber())
	}
	if s.smartbill == nil {
		return InvoiceResponse{}, errNotConfigured
	}
	if err := s.smartbill.CancelInvoice(ctx, inv.Series, inv.Number); err != nil {
		s.upstreamFailed("cancel_invoice")
		return InvoiceResponse{}, err
	}

	now := s.now()
	inv.Status = model.InvoiceCancelled
	inv.CancelledAt = &now
	if err := s.invoices.Update(ctx, inv); err != nil {
		s.logger.Error("Invoice cancelled in SmartBill but not updated locally", zap.String("invoice", inv.DisplayNumber()), zap.Error(err))
		return InvoiceResponse{}, fmt.Errorf("failed to cancel invoice: %w", err)
	}
	s.audit.write(ctx, actor, model.ActionCancelInvoice, inv.ID.String(), inv.DisplayNumber(), nil)
	publish(ctx, s.events, s.logger, events.New(events.InvoiceCancelled, inv.ID.String(), map[string]string{"number": inv.DisplayNumber()}))
	return toInvoiceResponse(*inv, true), nil
}

func (s *invoiceService) find(ctx context.Context, id string) (*model.Invoice, error) {
	invoiceID, err := parseID("invoice", id)
	if err != nil {
		return nil, err
	}
	inv, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, notFound(err, "invoice")
	}
	return inv, nil
}

func (s *invoiceService) upstreamFailed(operation string) {
	if s.metrics != nil {
		s.metrics.UpstreamError(operation)
	}
}

func invoiceEmail(inv model.Invoice) (subject, body string) {
	clientName := ""
	if inv.Client != nil {
		clientName = inv.Client.Name
	}
	monthName := ecofin.MonthNameRO(inv.Month)
	subject = fmt.Sprintf("Factura %s - %s - %s/%d", inv.DisplayNumber(), clientName, monthName, inv.Year)
	body = fmt.Sprintf(`Buna ziua,

Va trimitem atasat factura %s pentru serviciile prestate in luna %s %d.

Detalii factura:
- Valoare fara TVA: %s RON
- TVA: %s RON
- Total: %s RON
`, inv.DisplayNumber(), monthName, inv.Year, money(inv.Subtotal), money(inv.VATTotal), money(inv.Total))
	return subject, body
}

func pdfFileName(inv model.Invoice) string {
	return strings.ReplaceAll(inv.DisplayNumber(), " ", "") + ".pdf"
}

func countryOrDefault(country string) string {
	if country == "" {
		return "Romania"
	}
	return country
}

func toLineResponses(lines []ecofin.Line) []InvoiceLineResponse {
	res := make([]InvoiceLineResponse, 0, len(lines))
	for _, l := range lines {
		res = append(res, InvoiceLineResponse{
			Position: l.Position, Description: l.Description, Unit: l.Unit,
			Quantity: l.Quantity.String(), UnitPrice: money(l.UnitPrice), VATRate: money(l.VATRate),
			LineTotal: money(l.LineTotal), LineVAT: money(l.LineVAT), LineType: string(l.LineType),
		})
	}
	return res
}

func toInvoiceResponse(inv model.Invoice, withLines bool) InvoiceResponse {
	res := InvoiceResponse{
		ID:              inv.ID.String(),
		ClientID:        inv.ClientID.String(),
		Year:            inv.Year,
		Month:           inv.Month,
		Series:          inv.Series,
		Number:          inv.Number,
		DisplayNumber:   inv.DisplayNumber(),
		IssueDate:       inv.IssueDate.Format(time.DateOnly),
		Mode:            inv.Mode,
		Status:          inv.Status,
		Subtotal:        money(inv.Subtotal),
		VATRate:         money(inv.VATRate),
		VATTotal:        money(inv.VATTotal),
		Total:           money(inv.Total),
		PaidAmount:      money(inv.PaidAmount),
		DueAmount:       money(inv.DueAmount),
		PaymentStatus:   inv.PaymentStatus,
		HoursBilled:     money(inv.HoursBilled),
		HourlyRate:      money(inv.HourlyRate),
		HasPDF:          inv.PDFKey != "",
		EmailSentCount:  inv.EmailSentCount,
		LastEmailSentAt: formatTimePtr(inv.LastEmailSentAt),
		CancelledAt:     formatTimePtr(inv.CancelledAt),
		CreatedAt:       formatTime(inv.CreatedAt),
	}
	if inv.Client != nil {
		res.ClientName = inv.Client.Name
	}
	if withLines {
		res.Lines = make([]InvoiceLineResponse, 0, len(inv.Lines))
		for _, l := range inv.Lines {
			res.Lines = append(res.Lines, InvoiceLineResponse{
				Position: l.Position, Description: l.Description, Unit: l.Unit,
				Quantity: l.Quantity.String(), UnitPrice: money(l.UnitPrice), VATRate: money(l.VATRate),
				LineTotal: money(l.LineTotal), LineVAT: money(l.LineVAT), LineType: l.LineType,
			})
		}
	}
	return res
}
