package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/importer"
	"ecofin/internal/model"
	"ecofin/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type WorkerRequest struct {
	LastName       string `json:"last_name" binding:"required,max=50"`
	FirstName      string `json:"first_name" binding:"required,max=50"`
	Citizenship    string `json:"citizenship" binding:"max=50"`
	BirthDate      string `json:"birth_date"`
	HomeCity       string `json:"home_city" binding:"max=100"`
	OccupationCode string `json:"occupation_code" binding:"max=10"`
	PassportNumber string `json:"passport_number" binding:"required,max=20"`
	PassportIssued string `json:"passport_issued"`
	PassportExpiry string `json:"passport_expiry"`
	ContractNumber string `json:"contract_number" binding:"max=50"`
	Status         string `json:"status"`
	ClientID       string `json:"client_id"`
	ExpertID       string `json:"expert_id"`

	PermitFileNumber  string `json:"permit_file_number" binding:"max=50"`
	PermitCounty      string `json:"permit_county" binding:"max=50"`
	PermitRequestedOn string `json:"permit_requested_on"`
	PermitAppointment string `json:"permit_appointment"`
	VisaRequestedOn   string `json:"visa_requested_on"`
	VisaInterview     string `json:"visa_interview"`

	ResidenceFiledOn     string `json:"residence_filed_on"`
	ResidenceAppointment string `json:"residence_appointment"`
	ResidenceIssued      string `json:"residence_issued"`
	ResidenceExpiry      string `json:"residence_expiry"`
	PersonalCode         string `json:"personal_code" binding:"omitempty,len=13,numeric"`
	ArrivedOn            string `json:"arrived_on"`
	ContractIssued       string `json:"contract_issued"`
	Address              string `json:"address"`
	Notes                string `json:"notes"`
}

// WorkerResponse carries dates as YYYY-MM-DD.
type WorkerResponse struct {
	ID             string  `json:"id"`
	LastName       string  `json:"last_name"`
	FirstName      string  `json:"first_name"`
	FullName       string  `json:"full_name"`
	Citizenship    string  `json:"citizenship"`
	BirthDate      *string `json:"birth_date"`
	HomeCity       string  `json:"home_city"`
	OccupationCode string  `json:"occupation_code"`
	PassportNumber string  `json:"passport_number"`
	PassportIssued *string `json:"passport_issued"`
	PassportExpiry *string `json:"passport_expiry"`
	ContractNumber string  `json:"contract_number"`
	Status         string  `json:"status"`
	ClientID       *string `json:"client_id"`
	ClientName     string  `json:"client_name,omitempty"`
	ExpertID       *string `json:"expert_id"`

	PermitFileNumber  string  `json:"permit_file_number"`
	PermitCounty      string  `json:"permit_county"`
	PermitRequestedOn *string `json:"permit_requested_on"`
	PermitAppointment *string `json:"permit_appointment"`
	VisaRequestedOn   *string `json:"visa_requested_on"`
	VisaInterview     *string `json:"visa_interview"`

	ResidenceFiledOn     *string `json:"residence_filed_on"`
	ResidenceAppointment *string `json:"residence_appointment"`
	ResidenceIssued      *string `json:"residence_issued"`
	ResidenceExpiry      *string `json:"residence_expiry"`
	PersonalCode         string  `json:"personal_code"`
	ArrivedOn            *string `json:"arrived_on"`
	ContractIssued       *string `json:"contract_issued"`
	Address              string  `json:"address"`
	Notes                string  `json:"notes"`
	CreatedAt            string  `json:"created_at"`
}

type WorkerListFilter struct {
	Search   string
	Status   string
	ClientID string
	Page     int
	Limit    int
}

// --- Interface ---

type WorkerService interface {
	ListWorkers(ctx context.Context, filter WorkerListFilter) ([]WorkerResponse, int64, error)
	GetWorker(ctx context.Context, id string) (WorkerResponse, error)
	CreateWorker(ctx context.Context, actor Actor, req WorkerRequest) (WorkerResponse, error)
	UpdateWorker(ctx context.Context, actor Actor, id string, req WorkerRequest) (WorkerResponse, error)
	DeleteWorker(ctx context.Context, actor Actor, id string) error
	Statistics(ctx context.Context, filter WorkerStatsFilter) (WorkerStatistics, error)
	ImportTemplate() ([]byte, error)
	ImportWorkers(ctx context.Context, actor Actor, filename string, data []byte) (WorkerImportResult, error)
}

type workerService struct {
	repo       repository.WorkerRepository
	clientRepo repository.ClientRepository
	userRepo   repository.UserRepository
	audit      auditWriter
	logger     *zap.Logger
}

func NewWorkerService(repo repository.WorkerRepository, clientRepo repository.ClientRepository, userRepo repository.UserRepository, auditRepo repository.AuditRepository, log *zap.Logger) WorkerService {
	return &workerService{
		repo:       repo,
		clientRepo: clientRepo,
		userRepo:   userRepo,
		audit:      auditWriter{repo: auditRepo, logger: log},
		logger:     log,
	}
}

// --- Implementation ---

func (s *workerService) ListWorkers(ctx context.Context, filter WorkerListFilter) ([]WorkerResponse, int64, error) {
	clientID, err := parseOptionalID("client", filter.ClientID)
	if err != nil {
		return nil, 0, err
	}
	workers, total, err := s.repo.List(ctx, repository.WorkerFilter{
		Search:   filter.Search,
		Status:   filter.Status,
		ClientID: clientID,
		Page:     filter.Page,
		Limit:    filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list workers: %w", err)
	}
	res := make([]WorkerResponse, 0, len(workers))
	for _, w := range workers {
		res = append(res, toWorkerResponse(w))
	}
	return res, total, nil
}

func (s *workerService) GetWorker(ctx context.Context, id string) (WorkerResponse, error) {
	workerID, err := parseID("worker", id)
	if err != nil {
		return WorkerResponse{}, err
	}
	worker, err := s.repo.FindByID(ctx, workerID)
	if err != nil {
		return WorkerResponse{}, notFound(err, "worker")
	}
	return toWorkerResponse(*worker), nil
}

func (s *workerService) CreateWorker(ctx context.Context, actor Actor, req WorkerRequest) (WorkerResponse, error) {
	worker := model.Worker{}
	if err := s.apply(ctx, &worker, req); err != nil {
		return WorkerResponse{}, err
	}
	if err := s.checkPassport(ctx, worker.PassportNumber, nil); err != nil {
		return WorkerResponse{}, err
	}

	if err := s.repo.Create(ctx, &worker); err != nil {
		return WorkerResponse{}, fmt.Errorf("failed to create worker: %w", err)
	}
	s.audit.write(ctx, actor, model.ActionCreateWorker, worker.ID.String(), worker.FullName(), req)
	return s.GetWorker(ctx, worker.ID.String())
}

func (s *workerService) UpdateWorker(ctx context.Context, actor Actor, id string, req WorkerRequest) (WorkerResponse, error) {
	workerID, err := parseID("worker", id)
	if err != nil {
		return WorkerResponse{}, err
	}
	worker, err := s.repo.FindByID(ctx, workerID)
	if err != nil {
		return WorkerResponse{}, notFound(err, "worker")
	}
	if err := s.apply(ctx, worker, req); err != nil {
		return WorkerResponse{}, err
	}
	if err := s.checkPassport(ctx, worker.PassportNumber, &workerID); err != nil {
		return WorkerResponse{}, err
	}

	if err := s.repo.Update(ctx, worker); err != nil {
		return WorkerResponse{}, fmt.Errorf("failed to update worker: %w", err)
	}
	s.audit.write(ctx, actor, model.ActionUpdateWorker, worker.ID.String(), worker.FullName(), req)
	return s.GetWorker(ctx, worker.ID.String())
}

func (s *workerService) DeleteWorker(ctx context.Context, actor Actor, id string) error {
	workerID, err := parseID("worker", id)
	if err != nil {
		return err
	}
	worker, err := s.repo.FindByID(ctx, workerID)
	if err != nil {
		return notFound(err, "worker")
	}
	if err := s.repo.Delete(ctx, workerID); err != nil {
		return fmt.Errorf("failed to delete worker: %w", err)
	}
	s.audit.write(ctx, actor, model.ActionDeleteWorker, worker.ID.String(), worker.FullName(), nil)
	return nil
}

func (s *workerService) apply(ctx context.Context, w *model.Worker, req WorkerRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	status := req.Status
	if status == "" {
		status = w.Status
	}
	if status != "" && !slices.Contains(model.WorkerStatuses, status) {
		return apperror.Validation("unknown worker status %q", status)
	}

	clientID, err := parseOptionalID("client", req.ClientID)
	if err != nil {
		return err
	}
	if clientID != nil {
		if _, err := s.clientRepo.FindByID(ctx, *clientID); err != nil {
			return notFound(err, "client")
		}
	}
	expertID, err := parseOptionalID("expert", req.ExpertID)
	if err != nil {
		return err
	}
	if expertID != nil {
		if _, err := s.userRepo.GetByID(ctx, *expertID); err != nil {
			return notFound(err, "expert")
		}
	}

	dates := []struct {
		field string
		raw   string
		dst   **time.Time
	}{
		{"birth_date", req.BirthDate, &w.BirthDate},
		{"passport_issued", req.PassportIssued, &w.PassportIssued},
		{"passport_expiry", req.PassportExpiry, &w.PassportExpiry},
		{"permit_requested_on", req.PermitRequestedOn, &w.PermitRequestedOn},
		{"permit_appointment", req.PermitAppointment, &w.PermitAppointment},
		{"visa_requested_on", req.VisaRequestedOn, &w.VisaRequestedOn},
		{"visa_interview", req.VisaInterview, &w.VisaInterview},
		{"residence_filed_on", req.ResidenceFiledOn, &w.ResidenceFiledOn},
		{"residence_appointment", req.ResidenceAppointment, &w.ResidenceAppointment},
		{"residence_issued", req.ResidenceIssued, &w.ResidenceIssued},
		{"residence_expiry", req.ResidenceExpiry, &w.ResidenceExpiry},
		{"arrived_on", req.ArrivedOn, &w.ArrivedOn},
		{"contract_issued", req.ContractIssued, &w.ContractIssued},
	}
	parsed := make([]*time.Time, len(dates))
	for i, d := range dates {
		day, err := importer.ParseDate(d.raw)
		if err != nil {
			return apperror.Validation("%s: %v", d.field, err)
		}
		parsed[i] = day
	}
	for i, d := range dates {
		*d.dst = parsed[i]
	}

	w.LastName = strings.TrimSpace(req.LastName)
	w.FirstName = strings.TrimSpace(req.FirstName)
	w.Citizenship = strings.TrimSpace(req.Citizenship)
	w.HomeCity = strings.TrimSpace(req.HomeCity)
	w.OccupationCode = strings.TrimSpace(req.OccupationCode)
	w.PassportNumber = strings.ToUpper(strings.TrimSpace(req.PassportNumber))
	w.ContractNumber = strings.TrimSpace(req.ContractNumber)
	w.Status = status
	w.ClientID = clientID
	w.Client = nil
	w.ExpertID = expertID
	w.Expert = nil
	w.PermitFileNumber = strings.TrimSpace(req.PermitFileNumber)
	w.PermitCounty = strings.TrimSpace(req.PermitCounty)
	w.PersonalCode = strings.TrimSpace(req.PersonalCode)
	w.Address = req.Address
	w.Notes = req.Notes
	return nil
}

func (s *workerService) checkPassport(ctx context.Context, passport string, self *uuid.UUID) error {
	existing, err := s.repo.FindByPassport(ctx, passport)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("failed to check passport: %w", err)
	}
	if self != nil && existing.ID == *self {
		return nil
	}
	return apperror.Conflict("a worker with passport %s already exists", passport)
}

func toWorkerResponse(w model.Worker) WorkerResponse {
	resp := WorkerResponse{
		ID:                   w.ID.String(),
		LastName:             w.LastName,
		FirstName:            w.FirstName,
		FullName:             w.FullName(),
		Citizenship:          w.Citizenship,
		BirthDate:            formatDatePtr(w.BirthDate),
		HomeCity:             w.HomeCity,
		OccupationCode:       w.OccupationCode,
		PassportNumber:       w.PassportNumber,
		PassportIssued:       formatDatePtr(w.PassportIssued),
		PassportExpiry:       formatDatePtr(w.PassportExpiry),
		ContractNumber:       w.ContractNumber,
		Status:               w.Status,
		ClientID:             idString(w.ClientID),
		ExpertID:             idString(w.ExpertID),
		PermitFileNumber:     w.PermitFileNumber,
		PermitCounty:         w.PermitCounty,
		PermitRequestedOn:    formatDatePtr(w.PermitRequestedOn),
		PermitAppointment:    formatDatePtr(w.PermitAppointment),
		VisaRequestedOn:      formatDatePtr(w.VisaRequestedOn),
		VisaInterview:        formatDatePtr(w.VisaInterview),
		ResidenceFiledOn:     formatDatePtr(w.ResidenceFiledOn),
		ResidenceAppointment: formatDatePtr(w.ResidenceAppointment),
		ResidenceIssued:      formatDatePtr(w.ResidenceIssued),
		ResidenceExpiry:      formatDatePtr(w.ResidenceExpiry),
		PersonalCode:         w.PersonalCode,
		ArrivedOn:            formatDatePtr(w.ArrivedOn),
		ContractIssued:       formatDatePtr(w.ContractIssued),
		Address:              w.Address,
		Notes:                w.Notes,
		CreatedAt:            formatTime(w.CreatedAt),
	}
	if w.Client != nil {
		resp.ClientName = w.Client.Name
	}
	return resp
}
