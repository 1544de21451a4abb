package model

import (
	"time"

	"ecofin/internal/ecofin"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MonthlySettings holds the cost pool for one period. Once locked it is only
// editable by an admin.
type MonthlySettings struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Year                  int             `gorm:"not null;uniqueIndex:idx_settings_period" json:"year"`
	Month                 int             `gorm:"not null;uniqueIndex:idx_settings_period" json:"month"`
	IndirectExpensesTotal decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"indirect_expenses_total"`
	VacationCostPerWorker decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"vacation_cost_per_worker"`
	Locked                bool            `gorm:"not null;default:false" json:"locked"`
	LockedAt              *time.Time      `json:"locked_at"`
	Notes                 string          `gorm:"type:text" json:"notes"`
	CreatedBy             *uuid.UUID      `gorm:"type:uuid" json:"created_by"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func (s *MonthlySettings) BeforeCreate(*gorm.DB) error {
	s.ID = ensureID(s.ID)
	return nil
}

// PeriodCosts derives the per-worker values for a batch with validCount matched rows.
func (s MonthlySettings) PeriodCosts(validCount int) ecofin.PeriodCosts {
	return ecofin.PeriodCosts{
		IndirectExpensesShare: ecofin.IndirectShare(s.IndirectExpensesTotal, validCount),
		VacationCost:          s.VacationCostPerWorker,
	}
}
