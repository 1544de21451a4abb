package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/events"
	"ecofin/internal/model"
	"ecofin/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type RecordListFilter struct {
	Year      int
	Month     int
	ClientID  string
	WorkerID  string
	Validated *bool
	Page      int
	Limit     int
}

// UpdateRecordRequest changes record inputs. Nil fields are left as they are.
type UpdateRecordRequest struct {
	HoursWorked           *decimal.Decimal `json:"hours_worked"`
	GrossSalary           *decimal.Decimal `json:"gross_salary"`
	EmployerContribution  *decimal.Decimal `json:"employer_contribution"`
	AccommodationCost     *decimal.Decimal `json:"accommodation_cost"`
	MealCost              *decimal.Decimal `json:"meal_cost"`
	TransportCost         *decimal.Decimal `json:"transport_cost"`
	IndirectExpensesShare *decimal.Decimal `json:"indirect_expenses_share"`
	VacationCost          *decimal.Decimal `json:"vacation_cost"`
	HourlyRate            *decimal.Decimal `json:"hourly_rate"`
}

type ValidatePeriodRequest struct {
	Year  int `json:"year" binding:"required"`
	Month int `json:"month" binding:"required,min=1,max=12"`
}

type ValidatePeriodResponse struct {
	Year           int    `json:"year"`
	Month          int    `json:"month"`
	RecordsLocked  int64  `json:"records_locked"`
	SettingsLocked bool   `json:"settings_locked"`
	ValidatedAt    string `json:"validated_at"`
}

type RecordResponse struct {
	ID                    string  `json:"id"`
	WorkerID              string  `json:"worker_id"`
	WorkerName            string  `json:"worker_name"`
	PassportNumber        string  `json:"passport_number"`
	ClientID              string  `json:"client_id"`
	ClientName            string  `json:"client_name"`
	Year                  int     `json:"year"`
	Month                 int     `json:"month"`
	ContractNumber        string  `json:"contract_number"`
	HoursWorked           string  `json:"hours_worked"`
	GrossSalary           string  `json:"gross_salary"`
	EmployerContribution  string  `json:"employer_contribution"`
	Brut1                 string  `json:"brut1"`
	NetSalary             string  `json:"net_salary"`
	Deductions            string  `json:"deductions"`
	RemainingPay          string  `json:"remaining_pay"`
	HourlyRate            string  `json:"hourly_rate"`
	AccommodationCost     string  `json:"accommodation_cost"`
	MealCost              string  `json:"meal_cost"`
	TransportCost         string  `json:"transport_cost"`
	IndirectExpensesShare string  `json:"indirect_expenses_share"`
	VacationCost          string  `json:"vacation_cost"`
	FullSalaryCost        string  `json:"full_salary_cost"`
	TotalWorkerCost       string  `json:"total_worker_cost"`
	GeneratedRevenue      string  `json:"generated_revenue"`
	Profitability         string  `json:"profitability"`
	Validated             bool    `json:"validated"`
	ValidatedAt           *string `json:"validated_at"`
	ImportBatchID         *string `json:"import_batch_id"`
	UpdatedAt             string  `json:"updated_at"`
}

// --- Interface ---

type RecordService interface {
	ListRecords(ctx context.Context, filter RecordListFilter) ([]RecordResponse, int64, error)
	GetRecord(ctx context.Context, id string) (RecordResponse, error)
	UpdateRecord(ctx context.Context, actor Actor, id string, req UpdateRecordRequest) (RecordResponse, error)
	DeleteRecord(ctx context.Context, actor Actor, id string) error
	ValidatePeriod(ctx context.Context, actor Actor, req ValidatePeriodRequest) (ValidatePeriodResponse, error)
}

type recordService struct {
	records  repository.RecordRepository
	settings repository.SettingsRepository
	tx       repository.TransactionManager
	events   events.Publisher
	audit    auditWriter
	logger   *zap.Logger
}

func NewRecordService(
	records repository.RecordRepository,
	settings repository.SettingsRepository,
	auditRepo repository.AuditRepository,
	tx repository.TransactionManager,
	pub events.Publisher,
	log *zap.Logger,
) RecordService {
	return &recordService{
		records:  records,
		settings: settings,
		tx:       tx,
		events:   pub,
		audit:    auditWriter{repo: auditRepo, logger: log},
		logger:   log,
	}
}

// --- Implementation ---

func (s *recordService) ListRecords(ctx context.Context, f RecordListFilter) ([]RecordResponse, int64, error) {
	clientID, err := parseOptionalID("client", f.ClientID)
	if err != nil {
		return nil, 0, err
	}
	workerID, err := parseOptionalID("worker", f.WorkerID)
	if err != nil {
		return nil, 0, err
	}
	records, total, err := s.records.List(ctx, repository.RecordFilter{
		Year: f.Year, Month: f.Month, ClientID: clientID, WorkerID: workerID,
		Validated: f.Validated, Page: f.Page, Limit: f.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}
	res := make([]RecordResponse, 0, len(records))
	for _, r := range records {
		res = append(res, toRecordResponse(r))
	}
	return res, total, nil
}

func (s *recordService) GetRecord(ctx context.Context, id string) (RecordResponse, error) {
	recordID, err := parseID("record", id)
	if err != nil {
		return RecordResponse{}, err
	}
	rec, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return RecordResponse{}, notFound(err, "record")
	}
	return toRecordResponse(*rec), nil
}

// UpdateRecord applies the changed inputs. Unvalidated records are recomputed on
// save; a validated record may only be corrected by an elevated actor and keeps
// its derived figures.
func (s *recordService) UpdateRecord(ctx context.Context, actor Actor, id string, req UpdateRecordRequest) (RecordResponse, error) {
	recordID, err := parseID("record", id)
	if err != nil {
		return RecordResponse{}, err
	}
	if err := req.validate(); err != nil {
		return RecordResponse{}, err
	}
	rec, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return RecordResponse{}, notFound(err, "record")
	}
	if rec.ComputationLocked() && !actor.Elevated() {
		return RecordResponse{}, apperror.ImmutableRecord("record for %s is validated", periodLabel(rec.Year, rec.Month))
	}

	req.apply(rec)
	if err := s.records.Update(ctx, rec); err != nil {
		return RecordResponse{}, fmt.Errorf("failed to update record: %w", err)
	}
	s.audit.write(ctx, actor, model.ActionUpdateRecord, rec.ID.String(), recordName(*rec), req)
	return toRecordResponse(*rec), nil
}

func (s *recordService) DeleteRecord(ctx context.Context, actor Actor, id string) error {
	recordID, err := parseID("record", id)
	if err != nil {
		return err
	}
	rec, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return notFound(err, "record")
	}
	if rec.ComputationLocked() && !actor.Elevated() {
		return apperror.ImmutableRecord("record for %s is validated", periodLabel(rec.Year, rec.Month))
	}
	if err := s.records.Delete(ctx, rec.ID); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	s.audit.write(ctx, actor, model.ActionDeleteRecord, rec.ID.String(), recordName(*rec), nil)
	return nil
}

// ValidatePeriod freezes every record of the period and locks its settings in
// one transaction.
func (s *recordService) ValidatePeriod(ctx context.Context, actor Actor, req ValidatePeriodRequest) (ValidatePeriodResponse, error) {
	if err := validateStruct(req); err != nil {
		return ValidatePeriodResponse{}, err
	}
	if err := validatePeriod(req.Year, req.Month); err != nil {
		return ValidatePeriodResponse{}, err
	}

	now := time.Now()
	res := ValidatePeriodResponse{Year: req.Year, Month: req.Month, ValidatedAt: formatTime(now)}
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.records.ListPeriod(txCtx, req.Year, req.Month, nil)
		if err != nil {
			return fmt.Errorf("failed to load records: %w", err)
		}
		if len(existing) == 0 {
			return apperror.Validation("no records to validate for %s", periodLabel(req.Year, req.Month))
		}
		n, err := s.records.ValidatePeriod(txCtx, req.Year, req.Month, actor.UserID, now)
		if err != nil {
			return fmt.Errorf("failed to validate records: %w", err)
		}
		res.RecordsLocked = n

		if _, err := s.settings.FindByPeriod(txCtx, req.Year, req.Month); err == nil {
			if err := s.settings.Lock(txCtx, req.Year, req.Month, now); err != nil {
				return fmt.Errorf("failed to lock monthly settings: %w", err)
			}
			res.SettingsLocked = true
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load monthly settings: %w", err)
		}
		s.audit.write(txCtx, actor, model.ActionValidatePeriod, "", periodLabel(req.Year, req.Month), res)
		return nil
	})
	if err != nil {
		return ValidatePeriodResponse{}, err
	}

	publish(ctx, s.events, s.logger, events.New(events.PeriodValidated, periodLabel(req.Year, req.Month), res))
	return res, nil
}

func (r UpdateRecordRequest) validate() error {
	fields := map[string]*decimal.Decimal{
		"hours_worked":            r.HoursWorked,
		"gross_salary":            r.GrossSalary,
		"employer_contribution":   r.EmployerContribution,
		"accommodation_cost":      r.AccommodationCost,
		"meal_cost":               r.MealCost,
		"transport_cost":          r.TransportCost,
		"indirect_expenses_share": r.IndirectExpensesShare,
		"vacation_cost":           r.VacationCost,
		"hourly_rate":             r.HourlyRate,
	}
	for name, v := range fields {
		if v != nil && v.IsNegative() {
			return apperror.Validation("%s must not be negative", name)
		}
	}
	return nil
}

func (r UpdateRecordRequest) apply(rec *model.ProcessedRecord) {
	set := func(dst *decimal.Decimal, v *decimal.Decimal) {
		if v != nil {
			*dst = *v
		}
	}
	set(&rec.HoursWorked, r.HoursWorked)
	set(&rec.GrossSalary, r.GrossSalary)
	set(&rec.EmployerContribution, r.EmployerContribution)
	set(&rec.AccommodationCost, r.AccommodationCost)
	set(&rec.MealCost, r.MealCost)
	set(&rec.TransportCost, r.TransportCost)
	set(&rec.IndirectExpensesShare, r.IndirectExpensesShare)
	set(&rec.VacationCost, r.VacationCost)
	set(&rec.HourlyRate, r.HourlyRate)
}

func recordName(r model.ProcessedRecord) string {
	name := periodLabel(r.Year, r.Month)
	if r.Worker != nil {
		name = r.Worker.FullName() + " " + name
	}
	return name
}

func toRecordResponse(r model.ProcessedRecord) RecordResponse {
	res := RecordResponse{
		ID:                    r.ID.String(),
		WorkerID:              r.WorkerID.String(),
		ClientID:              r.ClientID.String(),
		Year:                  r.Year,
		Month:                 r.Month,
		ContractNumber:        r.ContractNumber,
		HoursWorked:           money(r.HoursWorked),
		GrossSalary:           money(r.GrossSalary),
		EmployerContribution:  money(r.EmployerContribution),
		Brut1:                 money(r.Brut1),
		NetSalary:             money(r.NetSalary),
		Deductions:            money(r.Deductions),
		RemainingPay:          money(r.RemainingPay),
		HourlyRate:            money(r.HourlyRate),
		AccommodationCost:     money(r.AccommodationCost),
		MealCost:              money(r.MealCost),
		TransportCost:         money(r.TransportCost),
		IndirectExpensesShare: money(r.IndirectExpensesShare),
		VacationCost:          money(r.VacationCost),
		FullSalaryCost:        money(r.FullSalaryCost),
		TotalWorkerCost:       money(r.TotalWorkerCost),
		GeneratedRevenue:      money(r.GeneratedRevenue),
		Profitability:         money(r.Profitability),
		Validated:             r.Validated,
		ValidatedAt:           formatTimePtr(r.ValidatedAt),
		ImportBatchID:         idString(r.ImportBatchID),
		UpdatedAt:             formatTime(r.UpdatedAt),
	}
	if r.Worker != nil {
		res.WorkerName = r.Worker.FullName()
		res.PassportNumber = r.Worker.PassportNumber
	}
	if r.Client != nil {
		res.ClientName = r.Client.Name
	}
	return res
}
