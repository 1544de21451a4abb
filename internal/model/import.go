package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ImportBatch status values
const (
	BatchPending   = "PENDING"
	BatchPreview   = "PREVIEW"
	BatchProcessed = "PROCESSED"
	BatchFailed    = "FAILED"
	BatchCancelled = "CANCELLED"
)

// ImportedRow status values
const (
	RowRaw       = "RAW"
	RowMatched   = "MATCHED"
	RowError     = "ERROR"
	RowProcessed = "PROCESSED"
)

// RowIssue is one per-row problem reported by an upload.
type RowIssue struct {
	RowNumber int    `json:"row_number"`
	Message   string `json:"message"`
}

// ImportBatch is one uploaded payroll spreadsheet for a period.
type ImportBatch struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Year          int             `gorm:"not null;index:idx_batch_period" json:"year"`
	Month         int             `gorm:"not null;index:idx_batch_period" json:"month"`
	FileName      string          `gorm:"type:varchar(255);not null" json:"file_name"`
	FileKey       string          `gorm:"type:varchar(512)" json:"file_key"`
	Status        string          `gorm:"type:varchar(20);not null;index" json:"status"`
	TotalRows     int             `gorm:"not null;default:0" json:"total_rows"`
	MatchedRows   int             `gorm:"not null;default:0" json:"matched_rows"`
	ErrorRows     int             `gorm:"not null;default:0" json:"error_rows"`
	ProcessedRows int             `gorm:"not null;default:0" json:"processed_rows"`
	IndirectShare decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"indirect_share"`
	ErrorDetails  datatypes.JSON  `json:"error_details"`
	UploadedBy    *uuid.UUID      `gorm:"type:uuid" json:"uploaded_by"`
	ProcessedAt   *time.Time      `json:"processed_at"`
	Rows          []ImportedRow   `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE" json:"rows,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (b *ImportBatch) BeforeCreate(*gorm.DB) error {
	b.ID = ensureID(b.ID)
	if b.Status == "" {
		b.Status = BatchPending
	}
	return nil
}

// ImportedRow is a raw payroll line as read from the spreadsheet plus its match outcome.
type ImportedRow struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID              uuid.UUID       `gorm:"type:uuid;not null;index" json:"batch_id"`
	RowNumber            int             `gorm:"not null" json:"row_number"`
	Year                 int             `gorm:"not null" json:"year"`
	Month                int             `gorm:"not null" json:"month"`
	ContractNumber       string          `gorm:"type:varchar(50)" json:"contract_number"`
	PassportNumber       string          `gorm:"type:varchar(50)" json:"passport_number"`
	LastName             string          `gorm:"type:varchar(100)" json:"last_name"`
	FirstName            string          `gorm:"type:varchar(100)" json:"first_name"`
	GrossSalary          decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"gross_salary"`
	HoursWorked          decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"hours_worked"`
	Brut1                decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"brut1"`
	NetSalary            decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"net_salary"`
	Deductions           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"deductions"`
	RemainingPay         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"remaining_pay"`
	EmployerContribution decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"employer_contribution"` // CAM
	Status               string          `gorm:"type:varchar(20);not null;index" json:"status"`
	WorkerID             *uuid.UUID      `gorm:"type:uuid;index" json:"worker_id"`
	Worker               *Worker         `gorm:"foreignKey:WorkerID" json:"worker,omitempty"`
	ClientID             *uuid.UUID      `gorm:"type:uuid;index" json:"client_id"`
	Client               *Client         `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	ErrorMessage         string          `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

func (r *ImportedRow) BeforeCreate(*gorm.DB) error {
	r.ID = ensureID(r.ID)
	if r.Status == "" {
		r.Status = RowRaw
	}
	return nil
}

// Valid reports whether the row resolved both a worker and a client.
func (r ImportedRow) Valid() bool {
	return r.Status == RowMatched && r.WorkerID != nil && r.ClientID != nil
}
