package model

import (
	"time"

	"ecofin/internal/ecofin"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProcessedRecord is the profitability fact for one worker, client and period.
// Inputs are value copies taken when the record is built; derived fields are
// recomputed on every write until the record is validated.
type ProcessedRecord struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	WorkerID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_record_period" json:"worker_id"`
	Worker        *Worker    `gorm:"foreignKey:WorkerID" json:"worker,omitempty"`
	ClientID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_record_period;index" json:"client_id"`
	Client        *Client    `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Year          int        `gorm:"not null;uniqueIndex:idx_record_period" json:"year"`
	Month         int        `gorm:"not null;uniqueIndex:idx_record_period" json:"month"`
	ImportBatchID *uuid.UUID `gorm:"type:uuid;index" json:"import_batch_id"`
	ImportedRowID *uuid.UUID `gorm:"type:uuid" json:"imported_row_id"`

	ContractNumber       string          `gorm:"type:varchar(50)" json:"contract_number"`
	GrossSalary          decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"gross_salary"`
	EmployerContribution decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"employer_contribution"`
	HoursWorked          decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"hours_worked"`
	Brut1                decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"brut1"`
	NetSalary            decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"net_salary"`
	Deductions           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"deductions"`
	RemainingPay         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"remaining_pay"`

	HourlyRate        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"hourly_rate"`
	AccommodationCost decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"accommodation_cost"`
	MealCost          decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"meal_cost"`
	TransportCost     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"transport_cost"`

	IndirectExpensesShare decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"indirect_expenses_share"`
	VacationCost          decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"vacation_cost"`

	FullSalaryCost   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"full_salary_cost"`
	TotalWorkerCost  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"total_worker_cost"`
	GeneratedRevenue decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"generated_revenue"`
	Profitability    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"profitability"`

	Validated   bool       `gorm:"not null;default:false;index" json:"validated"`
	ValidatedAt *time.Time `json:"validated_at"`
	ValidatedBy *uuid.UUID `gorm:"type:uuid" json:"validated_by"`
	CreatedBy   *uuid.UUID `gorm:"type:uuid" json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (r *ProcessedRecord) BeforeCreate(*gorm.DB) error {
	r.ID = ensureID(r.ID)
	return nil
}

// ComputationLocked reports whether derived fields are frozen. Who may still
// edit a locked record is decided by the caller.
func (r ProcessedRecord) ComputationLocked() bool {
	return r.Validated
}

// SnapshotTariff copies the client's current tariffs onto the record.
func (r *ProcessedRecord) SnapshotTariff(c Client) {
	r.HourlyRate = c.HourlyRate
	r.AccommodationCost = c.AccommodationCost
	r.MealCost = c.MealCost
	r.TransportCost = c.TransportCost
}

// Recalculate refreshes the derived fields from the stored inputs.
func (r *ProcessedRecord) Recalculate() {
	p := ecofin.ComputeProfitability(
		ecofin.WorkerInputs{
			GrossSalary:          r.GrossSalary,
			EmployerContribution: r.EmployerContribution,
			HoursWorked:          r.HoursWorked,
		},
		ecofin.ClientTariff{
			HourlyRate:        r.HourlyRate,
			AccommodationCost: r.AccommodationCost,
			MealCost:          r.MealCost,
			TransportCost:     r.TransportCost,
		},
		ecofin.PeriodCosts{
			IndirectExpensesShare: r.IndirectExpensesShare,
			VacationCost:          r.VacationCost,
		},
	)
	r.FullSalaryCost = p.FullSalaryCost
	r.TotalWorkerCost = p.TotalWorkerCost
	r.GeneratedRevenue = p.GeneratedRevenue
	r.Profitability = p.Profitability
}

// BeforeSave keeps derived fields consistent for unvalidated records.
func (r *ProcessedRecord) BeforeSave(*gorm.DB) error {
	if !r.ComputationLocked() {
		r.Recalculate()
	}
	return nil
}
