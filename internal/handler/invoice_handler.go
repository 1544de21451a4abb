package handler

import (
	"net/http"

	"ecofin/internal/middleware"
	"ecofin/internal/service"
	"ecofin/pkg/pagination"
	"ecofin/pkg/response"

	"github.com/gin-gonic/gin"
)

// IdempotencyHeader carries the client generated key that deduplicates invoice issuing.
const IdempotencyHeader = "Idempotency-Key"

type InvoiceHandler struct {
	invoiceService service.InvoiceService
	revenueService service.RevenueService
	auth           *middleware.Auth
}

func NewInvoiceHandler(invoiceService service.InvoiceService, revenueService service.RevenueService, auth *middleware.Auth) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		revenueService: revenueService,
		auth:           auth,
	}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	billing := router.Group("/billing")
	billing.Use(h.auth.RequireRole(managerRole...))
	{
		billing.GET("/config", h.GetConfig)

		invoices := billing.Group("/invoices")
		invoices.POST("/preview", h.PreviewInvoice)
		invoices.POST("/issue", h.IssueInvoice)
		invoices.GET("", h.ListInvoices)
		invoices.GET("/:id", h.GetInvoice)
		invoices.GET("/:id/pdf", h.DownloadPDF)
		invoices.POST("/:id/send-email", h.SendEmail)
		invoices.POST("/:id/cancel", h.CancelInvoice)

		// Billing reports
		reports := billing.Group("/reports")
		reports.GET("/summary", h.BillingSummary)
		reports.GET("/revenue", h.GetRevenueStatistics)
		reports.GET("/export/excel", h.ExportExcel)
		reports.GET("/export/pdf", h.ExportPDF)
	}
}

// GetConfig reports whether SmartBill is configured and reachable
// @Summary      SmartBill connection check
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.BillingConfigResponse}
// @Router       /api/billing/config [get]
func (h *InvoiceHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, h.invoiceService.Config(c.Request.Context())))
}

// PreviewInvoice computes an invoice without issuing it
// @Summary      Preview invoice
// @Description  Returns lines, totals and warnings such as existing invoices for the month
// @Tags         billing
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.PreviewInvoiceRequest  true  "Preview"
// @Success      200      {object}  response.Response{data=service.InvoicePreview}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/billing/invoices/preview [post]
func (h *InvoiceHandler) PreviewInvoice(c *gin.Context) {
	var req service.PreviewInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}

	preview, err := h.invoiceService.Preview(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, preview))
}

// IssueInvoice issues the invoice through SmartBill and stores it
// @Summary      Issue invoice
// @Description  Requires confirm_hours_agreed. A repeated Idempotency-Key returns the invoice issued by the first request.
// @Tags         billing
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header    string                       false  "Client generated request key"
// @Param        payload          body      service.IssueInvoiceRequest  true   "Issue"
// @Success      201              {object}  response.Response{data=service.IssueInvoiceResult}
// @Success      200              {object}  response.Response{data=service.IssueInvoiceResult}
// @Failure      400              {object}  response.Response
// @Failure      409              {object}  response.Response
// @Failure      502              {object}  response.Response
// @Router       /api/billing/invoices/issue [post]
func (h *InvoiceHandler) IssueInvoice(c *gin.Context) {
	var req service.IssueInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.invoiceService.Issue(c.Request.Context(), actorFrom(c), req, c.GetHeader(IdempotencyHeader))
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, response.Success(status, res))
}

// ListInvoices returns a paginated list of invoices
// @Summary      List invoices
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Param        client_id       query     string  false  "Client"
// @Param        year            query     int     false  "Billed year"
// @Param        month           query     int     false  "Billed month"
// @Param        status          query     string  false  "ISSUED or CANCELLED"
// @Param        payment_status  query     string  false  "UNPAID, PARTIAL or PAID"
// @Param        page            query     int     false  "Page number (default 1)"
// @Param        limit           query     int     false  "Number of items per page (default 20)"
// @Success      200             {object}  response.Response{data=pagination.Page}
// @Router       /api/billing/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	p := pagination.Parse(c)
	year, ok := queryInt(c, "year", 0)
	if !ok {
		return
	}
	month, ok := queryInt(c, "month", 0)
	if !ok {
		return
	}

	invoices, total, err := h.invoiceService.ListInvoices(c.Request.Context(), service.InvoiceListFilter{
		ClientID:      c.Query("client_id"),
		Year:          year,
		Month:         month,
		Status:        c.Query("status"),
		PaymentStatus: c.Query("payment_status"),
		Page:          p.Page,
		Limit:         p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Result(invoices, total)))
}

// GetInvoice returns one invoice with its lines and email log
// @Summary      Get invoice
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/billing/invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// DownloadPDF serves the stored invoice PDF, fetching it from SmartBill when no copy exists
// @Summary      Download invoice PDF
// @Tags         billing
// @Security     BearerAuth
// @Produce      application/pdf
// @Param        id   path  string  true  "Invoice ID"
// @Success      200  {file}  file
// @Failure      404  {object}  response.Response
// @Failure      502  {object}  response.Response
// @Router       /api/billing/invoices/{id}/pdf [get]
func (h *InvoiceHandler) DownloadPDF(c *gin.Context) {
	data, name, err := h.invoiceService.InvoicePDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	sendFile(c, data, name, contentTypePDF)
}

// SendEmail mails the invoice PDF to the client
// @Summary      Send invoice by email
// @Description  Defaults to the client's email address. Every attempt is recorded in the email log.
// @Tags         billing
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true   "Invoice ID"
// @Param        payload  body      service.SendEmailRequest  false  "Recipient override"
// @Success      200      {object}  response.Response{data=service.SendEmailResult}
// @Failure      400      {object}  response.Response
// @Failure      502      {object}  response.Response
// @Router       /api/billing/invoices/{id}/send-email [post]
func (h *InvoiceHandler) SendEmail(c *gin.Context) {
	var req service.SendEmailRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	res, err := h.invoiceService.SendEmail(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// CancelInvoice cancels an unpaid invoice in SmartBill and locally
// @Summary      Cancel invoice
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      409  {object}  response.Response
// @Failure      502  {object}  response.Response
// @Router       /api/billing/invoices/{id}/cancel [post]
func (h *InvoiceHandler) CancelInvoice(c *gin.Context) {
	invoice, err := h.invoiceService.Cancel(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

func billingFilter(c *gin.Context) (service.BillingReportFilter, bool) {
	f := service.BillingReportFilter{
		ClientID:      c.Query("client_id"),
		PaymentStatus: c.Query("payment_status"),
	}
	var ok bool
	if f.Year, ok = queryInt(c, "year", 0); !ok {
		return f, false
	}
	if f.Month, ok = queryInt(c, "month", 0); !ok {
		return f, false
	}
	if f.LastMonths, ok = queryInt(c, "last_months", 0); !ok {
		return f, false
	}
	return f, true
}

// BillingSummary returns totals, the payment status breakdown and per client figures
// @Summary      Billing summary
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Param        year            query     int     false  "Billed year"
// @Param        month           query     int     false  "Billed month"
// @Param        last_months     query     int     false  "Trailing months, overrides year and month"
// @Param        client_id       query     string  false  "Client"
// @Param        payment_status  query     string  false  "UNPAID, PARTIAL or PAID"
// @Success      200             {object}  response.Response{data=service.BillingSummary}
// @Router       /api/billing/reports/summary [get]
func (h *InvoiceHandler) BillingSummary(c *gin.Context) {
	f, ok := billingFilter(c)
	if !ok {
		return
	}
	sum, err := h.revenueService.BillingSummary(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, sum))
}

// GetRevenueStatistics returns invoiced and collected amounts per billed month
// @Summary      Revenue by period
// @Description  Defaults to the months of the current year
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Param        from_year   query     int  false  "First year"
// @Param        from_month  query     int  false  "First month"
// @Param        to_year     query     int  false  "Last year"
// @Param        to_month    query     int  false  "Last month"
// @Success      200         {object}  response.Response{data=[]service.RevenueDataPoint}
// @Failure      400         {object}  response.Response
// @Router       /api/billing/reports/revenue [get]
func (h *InvoiceHandler) GetRevenueStatistics(c *gin.Context) {
	var f service.RevenueFilter
	for name, dst := range map[string]*int{
		"from_year":  &f.FromYear,
		"from_month": &f.FromMonth,
		"to_year":    &f.ToYear,
		"to_month":   &f.ToMonth,
	} {
		v, ok := queryInt(c, name, 0)
		if !ok {
			return
		}
		*dst = v
	}

	points, err := h.revenueService.GetRevenueStatistics(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, points))
}

// ExportExcel exports the billing report as Excel
// @Summary      Export billing report as Excel
// @Tags         billing
// @Security     BearerAuth
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        year         query  int     false  "Billed year"
// @Param        month        query  int     false  "Billed month"
// @Param        last_months  query  int     false  "Trailing months"
// @Param        client_id    query  string  false  "Client"
// @Success      200          {file}  file
// @Router       /api/billing/reports/export/excel [get]
func (h *InvoiceHandler) ExportExcel(c *gin.Context) {
	f, ok := billingFilter(c)
	if !ok {
		return
	}
	data, name, err := h.revenueService.ExportExcel(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	sendFile(c, data, name, contentTypeXLSX)
}

// ExportPDF exports the billing report as PDF
// @Summary      Export billing report as PDF
// @Tags         billing
// @Security     BearerAuth
// @Produce      application/pdf
// @Param        year         query  int     false  "Billed year"
// @Param        month        query  int     false  "Billed month"
// @Param        last_months  query  int     false  "Trailing months"
// @Param        client_id    query  string  false  "Client"
// @Success      200          {file}  file
// @Router       /api/billing/reports/export/pdf [get]
func (h *InvoiceHandler) ExportPDF(c *gin.Context) {
	f, ok := billingFilter(c)
	if !ok {
		return
	}
	data, name, err := h.revenueService.ExportPDF(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	sendFile(c, data, name, contentTypePDF)
}
