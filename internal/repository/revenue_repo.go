package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RevenueRow aggregates issued invoices for one billing period.
type RevenueRow struct {
	Year         int             `gorm:"column:year" json:"year"`
	Month        int             `gorm:"column:month" json:"month"`
	InvoiceCount int             `gorm:"column:invoice_count" json:"invoice_count"`
	Subtotal     decimal.Decimal `gorm:"column:subtotal" json:"subtotal"`
	VATTotal     decimal.Decimal `gorm:"column:vat_total" json:"vat_total"`
	Total        decimal.Decimal `gorm:"column:total" json:"total"`
	Paid         decimal.Decimal `gorm:"column:paid" json:"paid"`
	Due          decimal.Decimal `gorm:"column:due" json:"due"`
}

type RevenueRepository interface {
	RevenueByPeriod(ctx context.Context, r PeriodRange, status string) ([]RevenueRow, error)
}

type revenueRepository struct {
	db *gorm.DB
}

func NewRevenueRepository(db *gorm.DB) RevenueRepository {
	return &revenueRepository{db: db}
}

func (r *revenueRepository) RevenueByPeriod(ctx context.Context, pr PeriodRange, status string) ([]RevenueRow, error) {
	query := `
		SELECT
			i.year AS year,
			i.month AS month,
			COUNT(*) AS invoice_count,
			COALESCE(SUM(i.subtotal), 0) AS subtotal,
			COALESCE(SUM(i.vat_total), 0) AS vat_total,
			COALESCE(SUM(i.total), 0) AS total,
			COALESCE(SUM(i.paid_amount), 0) AS paid,
			COALESCE(SUM(i.due_amount), 0) AS due
		FROM invoices i
		WHERE i.status = ?
		  AND (i.year * 100 + i.month) BETWEEN ? AND ?
		GROUP BY i.year, i.month
		ORDER BY i.year, i.month
	`

	var rows []RevenueRow
	if err := GetDB(ctx, r.db).Raw(query, status, pr.from(), pr.to()).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query revenue by period: %w", err)
	}
	return rows, nil
}
