package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Client is a company workers are placed with. Its tariffs are copied onto
// processed records and invoices when those are created.
type Client struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string          `gorm:"type:varchar(255);not null;index" json:"name"`
	FiscalCode        string          `gorm:"type:varchar(50);index" json:"fiscal_code"`
	Country           string          `gorm:"type:varchar(50)" json:"country"`
	City              string          `gorm:"type:varchar(50)" json:"city"`
	County            string          `gorm:"type:varchar(50)" json:"county"`
	Address           string          `gorm:"type:varchar(255)" json:"address"`
	Email             string          `gorm:"type:varchar(255)" json:"email"`
	HourlyRate        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"hourly_rate"`
	MinimumHours      int             `gorm:"not null;default:0" json:"minimum_hours"`
	AccommodationCost decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"accommodation_cost"`
	MealCost          decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"meal_cost"`
	TransportCost     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"transport_cost"`
	IsActive          bool            `gorm:"default:true" json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (c *Client) BeforeCreate(*gorm.DB) error {
	c.ID = ensureID(c.ID)
	return nil
}
