package model

import (
	"time"

	"ecofin/internal/ecofin"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Invoice status values
const (
	InvoiceDraft     = "DRAFT"
	InvoiceIssued    = "ISSUED"
	InvoiceCancelled = "CANCELLED"
)

// Invoice is a SmartBill invoice for one client and period. Several invoices may
// exist for the same period (standard, difference, extra services).
type Invoice struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID        uuid.UUID       `gorm:"type:uuid;not null;index:idx_invoice_period" json:"client_id"`
	Client          *Client         `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Year            int             `gorm:"not null;index:idx_invoice_period" json:"year"`
	Month           int             `gorm:"not null;index:idx_invoice_period" json:"month"`
	Series          string          `gorm:"type:varchar(20);uniqueIndex:idx_invoice_number" json:"series"`
	Number          string          `gorm:"type:varchar(30);uniqueIndex:idx_invoice_number" json:"number"`
	IssueDate       time.Time       `gorm:"type:date;not null;index" json:"issue_date"`
	Mode            string          `gorm:"type:varchar(20);not null" json:"mode"`
	Status          string          `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"subtotal"`
	VATRate         decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"vat_rate"`
	VATTotal        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"vat_total"`
	Total           decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total"`
	PaidAmount      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"paid_amount"`
	DueAmount       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"due_amount"`
	PaymentStatus   string          `gorm:"type:varchar(20);not null;default:'UNPAID';index" json:"payment_status"`
	HoursBilled     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"hours_billed"`
	HourlyRate      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"hourly_rate"`
	PDFKey          string          `gorm:"type:varchar(512)" json:"pdf_key,omitempty"`
	EmailSentCount  int             `gorm:"not null;default:0" json:"email_sent_count"`
	LastEmailSentAt *time.Time      `json:"last_email_sent_at"`
	IdempotencyKey  string          `gorm:"type:varchar(100);index" json:"-"`
	Lines           []InvoiceLine   `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"lines,omitempty"`
	CreatedBy       *uuid.UUID      `gorm:"type:uuid" json:"created_by"`
	CancelledAt     *time.Time      `json:"cancelled_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	i.ID = ensureID(i.ID)
	if i.PaymentStatus == "" {
		i.ApplyPayment(i.PaidAmount)
	}
	return nil
}

// DisplayNumber is the series and number as printed, e.g. "ECO 0042".
func (i Invoice) DisplayNumber() string {
	if i.Series == "" {
		return i.Number
	}
	return i.Series + " " + i.Number
}

// ApplyPayment sets the paid amount and derives due amount and payment status.
func (i *Invoice) ApplyPayment(paid decimal.Decimal) {
	state := ecofin.ApplyPayment(i.Total, paid)
	i.PaidAmount = state.PaidAmount
	i.DueAmount = state.DueAmount
	i.PaymentStatus = string(state.Status)
}

// InvoiceLine is one ordered line of an invoice.
type InvoiceLine struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	Position    int             `gorm:"not null" json:"position"`
	Description string          `gorm:"type:varchar(500);not null" json:"description"`
	Unit        string          `gorm:"type:varchar(20);not null;default:'buc'" json:"unit"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	VATRate     decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"vat_rate"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"line_total"`
	LineVAT     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"line_vat"`
	LineType    string          `gorm:"type:varchar(20);not null" json:"line_type"`
}

func (l *InvoiceLine) BeforeCreate(*gorm.DB) error {
	l.ID = ensureID(l.ID)
	return nil
}

// Email log status values
const (
	EmailSent   = "sent"
	EmailFailed = "failed"
)

// InvoiceEmailLog records each attempt to email an invoice.
type InvoiceEmailLog struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"invoice_id"`
	Recipient    string     `gorm:"type:varchar(255);not null" json:"recipient"`
	Subject      string     `gorm:"type:varchar(255)" json:"subject"`
	Status       string     `gorm:"type:varchar(20);not null" json:"status"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	SentBy       *uuid.UUID `gorm:"type:uuid" json:"sent_by"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (l *InvoiceEmailLog) BeforeCreate(*gorm.DB) error {
	l.ID = ensureID(l.ID)
	return nil
}

// Payment sync status values
const (
	SyncInProgress = "IN_PROGRESS"
	SyncSuccess    = "SUCCESS"
	SyncFailure    = "FAILURE"
)

// SyncCounts summarizes one payment sync run.
type SyncCounts struct {
	PaymentsFound   int `json:"payments_found"`
	InvoicesUpdated int `json:"invoices_updated"`
	Unmatched       int `json:"unmatched"`
	Errors          int `json:"errors_count"`
	// UnmatchedInvoices lists "series number" of payments with no local invoice.
	UnmatchedInvoices []string `json:"unmatched_invoices,omitempty"`
}

// PaymentSyncLog records one payment reconciliation run against SmartBill.
type PaymentSyncLog struct {
	ID           uuid.UUID                      `gorm:"type:uuid;primaryKey" json:"id"`
	WindowStart  time.Time                      `gorm:"not null" json:"window_start"`
	WindowEnd    time.Time                      `gorm:"not null" json:"window_end"`
	StartedAt    time.Time                      `gorm:"not null" json:"started_at"`
	FinishedAt   *time.Time                     `gorm:"index" json:"finished_at"`
	Status       string                         `gorm:"type:varchar(20);not null;index" json:"status"`
	Result       datatypes.JSONType[SyncCounts] `json:"result"`
	ErrorMessage string                         `gorm:"type:text" json:"error_message,omitempty"`
	TriggeredBy  *uuid.UUID                     `gorm:"type:uuid" json:"triggered_by"`
	CreatedAt    time.Time                      `json:"created_at"`
}

func (l *PaymentSyncLog) BeforeCreate(*gorm.DB) error {
	l.ID = ensureID(l.ID)
	return nil
}
