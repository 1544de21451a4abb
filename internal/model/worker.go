package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Worker lifecycle, from work permit request to active employment.
const (
	WorkerPermitRequested    = "PERMIT_REQUESTED"
	WorkerPermitIssued       = "PERMIT_ISSUED"
	WorkerVisaRequested      = "VISA_REQUESTED"
	WorkerVisaObtained       = "VISA_OBTAINED"
	WorkerVisaRejected       = "VISA_REJECTED"
	WorkerVisaResubmitted    = "VISA_RESUBMITTED"
	WorkerWithdrawn          = "WITHDRAWN"
	WorkerArrivedWithCIM     = "ARRIVED_WITH_CIM"
	WorkerResidenceRequested = "RESIDENCE_REQUESTED"
	WorkerResidenceIssued    = "RESIDENCE_ISSUED"
	WorkerActive             = "ACTIVE"
	WorkerSuspended          = "SUSPENDED"
	WorkerInactive           = "INACTIVE"
)

// WorkerStatuses lists every lifecycle status in order.
var WorkerStatuses = []string{
	WorkerPermitRequested, WorkerPermitIssued, WorkerVisaRequested, WorkerVisaObtained,
	WorkerVisaRejected, WorkerVisaResubmitted, WorkerWithdrawn, WorkerArrivedWithCIM,
	WorkerResidenceRequested, WorkerResidenceIssued, WorkerActive, WorkerSuspended, WorkerInactive,
}

// Worker is a placed migrant worker. Imports match rows by ContractNumber or PassportNumber.
// Dates are calendar days stored at UTC midnight.
type Worker struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	LastName       string     `gorm:"type:varchar(50);not null" json:"last_name"`
	FirstName      string     `gorm:"type:varchar(50);not null" json:"first_name"`
	Citizenship    string     `gorm:"type:varchar(50);index" json:"citizenship"`
	BirthDate      *time.Time `gorm:"type:date" json:"birth_date"`
	HomeCity       string     `gorm:"type:varchar(100)" json:"home_city"`
	OccupationCode string     `gorm:"type:varchar(10)" json:"occupation_code"` // COR
	PassportNumber string     `gorm:"type:varchar(20);uniqueIndex;not null" json:"passport_number"`
	PassportIssued *time.Time `gorm:"type:date" json:"passport_issued"`
	PassportExpiry *time.Time `gorm:"type:date" json:"passport_expiry"`
	ContractNumber string     `gorm:"type:varchar(50);index" json:"contract_number"` // CIM
	Status         string     `gorm:"type:varchar(40);not null;index" json:"status"`
	ClientID       *uuid.UUID `gorm:"type:uuid;index" json:"client_id"`
	Client         *Client    `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	ExpertID       *uuid.UUID `gorm:"type:uuid;index" json:"expert_id"`
	Expert         *User      `gorm:"foreignKey:ExpertID" json:"-"`

	// Work permit
	PermitFileNumber  string     `gorm:"type:varchar(50)" json:"permit_file_number"`
	PermitCounty      string     `gorm:"type:varchar(50)" json:"permit_county"`
	PermitRequestedOn *time.Time `gorm:"type:date" json:"permit_requested_on"`
	PermitAppointment *time.Time `gorm:"type:date;index" json:"permit_appointment"`

	// Visa
	VisaRequestedOn *time.Time `gorm:"type:date" json:"visa_requested_on"`
	VisaInterview   *time.Time `gorm:"type:date;index" json:"visa_interview"`

	// Residence permit and arrival
	ResidenceFiledOn     *time.Time `gorm:"type:date" json:"residence_filed_on"`
	ResidenceAppointment *time.Time `gorm:"type:date;index" json:"residence_appointment"`
	ResidenceIssued      *time.Time `gorm:"type:date" json:"residence_issued"`
	ResidenceExpiry      *time.Time `gorm:"type:date" json:"residence_expiry"`
	PersonalCode         string     `gorm:"type:varchar(13)" json:"personal_code"` // CNP
	ArrivedOn            *time.Time `gorm:"type:date" json:"arrived_on"`
	ContractIssued       *time.Time `gorm:"type:date" json:"contract_issued"`
	Address              string     `gorm:"type:text" json:"address"`

	Notes     string         `gorm:"type:text" json:"notes"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (w *Worker) BeforeCreate(*gorm.DB) error {
	w.ID = ensureID(w.ID)
	if w.Status == "" {
		w.Status = WorkerPermitRequested
	}
	return nil
}

// FullName is "LAST First" as printed on payroll sheets.
func (w Worker) FullName() string {
	return w.LastName + " " + w.FirstName
}

// Document kinds kept for a worker.
const (
	DocPassport           = "passport"
	DocVisa               = "visa"
	DocWorkPermit         = "work_permit"
	DocEmploymentContract = "employment_contract"
	DocResidencePermit    = "residence_permit"
	DocMedicalCertificate = "medical_certificate"
	DocCriminalRecord     = "criminal_record"
	DocDiploma            = "diploma"
	DocCV                 = "cv"
	DocPhoto              = "photo"
	DocAccommodationLease = "accommodation_lease"
	DocOther              = "other"
)

var DocumentTypes = []string{
	DocPassport, DocVisa, DocWorkPermit, DocEmploymentContract, DocResidencePermit, DocMedicalCertificate,
	DocCriminalRecord, DocDiploma, DocCV, DocPhoto, DocAccommodationLease, DocOther,
}

// WorkerDocument is a scanned file attached to a worker. The bytes live in the
// blob store under StorageKey.
type WorkerDocument struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	WorkerID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"worker_id"`
	Worker       Worker     `gorm:"foreignKey:WorkerID;constraint:OnDelete:CASCADE;" json:"-"`
	DocumentType string     `gorm:"type:varchar(30);not null;index" json:"document_type"`
	FileName     string     `gorm:"type:varchar(255);not null" json:"file_name"`
	ContentType  string     `gorm:"type:varchar(100)" json:"content_type"`
	StorageKey   string     `gorm:"type:varchar(500);not null" json:"-"`
	Size         int64      `json:"size"`
	Description  string     `gorm:"type:text" json:"description"`
	UploadedBy   *uuid.UUID `gorm:"type:uuid" json:"uploaded_by"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (d *WorkerDocument) BeforeCreate(*gorm.DB) error {
	d.ID = ensureID(d.ID)
	return nil
}
