package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Tax types. Invoices use the standard VAT rate.
const (
	TaxTypeVATStandard = "VAT_STANDARD"
	TaxTypeVATReduced  = "VAT_REDUCED"
)

// TaxRule stores a VAT rate (percent) with temporal validity.
type TaxRule struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TaxType       string          `gorm:"type:varchar(20);not null;index" json:"tax_type"`
	Rate          decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"rate"` // e.g. 21 = 21%
	EffectiveFrom time.Time       `gorm:"type:date;not null;index" json:"effective_from"`
	EffectiveTo   *time.Time      `gorm:"type:date;index" json:"effective_to"` // nil = open ended
	Description   string          `gorm:"type:text" json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (r *TaxRule) BeforeCreate(*gorm.DB) error {
	r.ID = ensureID(r.ID)
	return nil
}
