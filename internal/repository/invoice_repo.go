package repository

import (
	"context"
	"time"

	"ecofin/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InvoiceFilter struct {
	ClientID      *uuid.UUID
	Year          int
	Month         int
	Status        string
	PaymentStatus string
	Page          int
	Limit         int
}

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *model.Invoice) error
	Update(ctx context.Context, invoice *model.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	FindByNumber(ctx context.Context, series, number string) (*model.Invoice, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*model.Invoice, error)
	List(ctx context.Context, f InvoiceFilter) ([]model.Invoice, int64, error)
	ListIssued(ctx context.Context, clientID uuid.UUID, year, month int) ([]model.Invoice, error)
	ListIssuedSince(ctx context.Context, since time.Time) ([]model.Invoice, error)
	ListRange(ctx context.Context, r PeriodRange) ([]model.Invoice, error)
	CreateEmailLog(ctx context.Context, log *model.InvoiceEmailLog) error
	ListEmailLogs(ctx context.Context, invoiceID uuid.UUID) ([]model.InvoiceEmailLog, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

// Create inserts the invoice and its lines.
func (r *invoiceRepository) Create(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Omit("Client").Create(invoice).Error
}

func (r *invoiceRepository) Update(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Omit("Client", "Lines").Save(invoice).Error
}

func (r *invoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	err := GetDB(ctx, r.db).
		Preload("Client").
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		First(&invoice, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) FindByNumber(ctx context.Context, series, number string) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).Where("series = ? AND number = ?", series, number).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) FindByIdempotencyKey(ctx context.Context, key string) (*model.Invoice, error) {
	var invoice model.Invoice
	err := GetDB(ctx, r.db).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Where("idempotency_key = ?", key).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) List(ctx context.Context, f InvoiceFilter) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Invoice{})
	if f.ClientID != nil {
		query = query.Where("client_id = ?", *f.ClientID)
	}
	if f.Year > 0 {
		query = query.Where("year = ?", f.Year)
	}
	if f.Month > 0 {
		query = query.Where("month = ?", f.Month)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.PaymentStatus != "" {
		query = query.Where("payment_status = ?", f.PaymentStatus)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset, size := Page(f.Page, f.Limit)
	if err := query.Preload("Client").Order("issue_date desc, created_at desc").Offset(offset).Limit(size).Find(&invoices).Error; err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

// ListIssued returns the issued invoices already raised for a client and period.
func (r *invoiceRepository) ListIssued(ctx context.Context, clientID uuid.UUID, year, month int) ([]model.Invoice, error) {
	var invoices []model.Invoice
	err := GetDB(ctx, r.db).
		Where("client_id = ? AND year = ? AND month = ? AND status = ?", clientID, year, month, model.InvoiceIssued).
		Order("created_at asc").
		Find(&invoices).Error
	return invoices, err
}

// ListIssuedSince returns issued invoices whose issue date is on or after since.
func (r *invoiceRepository) ListIssuedSince(ctx context.Context, since time.Time) ([]model.Invoice, error) {
	var invoices []model.Invoice
	err := GetDB(ctx, r.db).
		Where("status = ? AND issue_date >= ?", model.InvoiceIssued, since).
		Find(&invoices).Error
	return invoices, err
}

func (r *invoiceRepository) ListRange(ctx context.Context, pr PeriodRange) ([]model.Invoice, error) {
	var invoices []model.Invoice
	err := GetDB(ctx, r.db).
		Where("(year * 100 + month) BETWEEN ? AND ?", pr.from(), pr.to()).
		Preload("Client").
		Order("year asc, month asc, issue_date asc").
		Find(&invoices).Error
	return invoices, err
}

func (r *invoiceRepository) CreateEmailLog(ctx context.Context, log *model.InvoiceEmailLog) error {
	return GetDB(ctx, r.db).Create(log).Error
}

func (r *invoiceRepository) ListEmailLogs(ctx context.Context, invoiceID uuid.UUID) ([]model.InvoiceEmailLog, error) {
	var logs []model.InvoiceEmailLog
	err := GetDB(ctx, r.db).Where("invoice_id = ?", invoiceID).Order("created_at desc").Find(&logs).Error
	return logs, err
}
