package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateClient  = "CREATE_CLIENT"
	ActionUpdateClient  = "UPDATE_CLIENT"
	ActionDeleteClient  = "DELETE_CLIENT"
	ActionCreateWorker  = "CREATE_WORKER"
	ActionUpdateWorker  = "UPDATE_WORKER"
	ActionDeleteWorker  = "DELETE_WORKER"
	ActionCreateTaxRule = "CREATE_TAX_RULE"
	ActionUpdateTaxRule = "UPDATE_TAX_RULE"
	ActionDeleteTaxRule = "DELETE_TAX_RULE"

	ActionImportWorkers   = "IMPORT_WORKERS"
	ActionUploadDocument  = "UPLOAD_WORKER_DOCUMENT"
	ActionDeleteDocument  = "DELETE_WORKER_DOCUMENT"
	ActionAppointmentMail = "SEND_APPOINTMENT_ALERTS"

	ActionSaveSettings   = "SAVE_MONTHLY_SETTINGS"
	ActionUploadImport   = "UPLOAD_IMPORT"
	ActionCommitImport   = "COMMIT_IMPORT"
	ActionCancelImport   = "CANCEL_IMPORT"
	ActionUpdateRecord   = "UPDATE_PROCESSED_RECORD"
	ActionDeleteRecord   = "DELETE_PROCESSED_RECORD"
	ActionValidatePeriod = "VALIDATE_PERIOD"

	ActionIssueInvoice  = "ISSUE_INVOICE"
	ActionCancelInvoice = "CANCEL_INVOICE"
	ActionEmailInvoice  = "EMAIL_INVOICE"
	ActionSyncPayments  = "SYNC_PAYMENTS"
)

// AuditLog tracks who changed what and when.
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for scheduled jobs
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	a.ID = ensureID(a.ID)
	return nil
}
