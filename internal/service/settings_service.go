package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/model"
	"ecofin/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateSettingsRequest struct {
	Year                  int             `json:"year" binding:"required"`
	Month                 int             `json:"month" binding:"required,min=1,max=12"`
	IndirectExpensesTotal decimal.Decimal `json:"indirect_expenses_total"`
	VacationCostPerWorker decimal.Decimal `json:"vacation_cost_per_worker"`
	Notes                 string          `json:"notes"`
}

type UpdateSettingsRequest struct {
	IndirectExpensesTotal decimal.Decimal `json:"indirect_expenses_total"`
	VacationCostPerWorker decimal.Decimal `json:"vacation_cost_per_worker"`
	Notes                 string          `json:"notes"`
}

type SettingsResponse struct {
	ID                    string  `json:"id"`
	Year                  int     `json:"year"`
	Month                 int     `json:"month"`
	Period                string  `json:"period"`
	IndirectExpensesTotal string  `json:"indirect_expenses_total"`
	VacationCostPerWorker string  `json:"vacation_cost_per_worker"`
	Locked                bool    `json:"locked"`
	LockedAt              *string `json:"locked_at"`
	Notes                 string  `json:"notes"`
	UpdatedAt             string  `json:"updated_at"`
}

// --- Interface ---

type SettingsService interface {
	ListSettings(ctx context.Context, year int) ([]SettingsResponse, error)
	GetSettings(ctx context.Context, year, month int) (SettingsResponse, error)
	CreateSettings(ctx context.Context, actor Actor, req CreateSettingsRequest) (SettingsResponse, error)
	UpdateSettings(ctx context.Context, actor Actor, id string, req UpdateSettingsRequest) (SettingsResponse, error)
}

type settingsService struct {
	repo  repository.SettingsRepository
	audit auditWriter
}

func NewSettingsService(repo repository.SettingsRepository, auditRepo repository.AuditRepository, log *zap.Logger) SettingsService {
	return &settingsService{repo: repo, audit: auditWriter{repo: auditRepo, logger: log}}
}

// --- Implementation ---

func (s *settingsService) ListSettings(ctx context.Context, year int) ([]SettingsResponse, error) {
	list, err := s.repo.List(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list monthly settings: %w", err)
	}
	res := make([]SettingsResponse, 0, len(list))
	for _, m := range list {
		res = append(res, toSettingsResponse(m))
	}
	return res, nil
}

func (s *settingsService) GetSettings(ctx context.Context, year, month int) (SettingsResponse, error) {
	if err := validatePeriod(year, month); err != nil {
		return SettingsResponse{}, err
	}
	m, err := s.repo.FindByPeriod(ctx, year, month)
	if err != nil {
		return SettingsResponse{}, notFound(err, "monthly settings for "+periodLabel(year, month))
	}
	return toSettingsResponse(*m), nil
}

func (s *settingsService) CreateSettings(ctx context.Context, actor Actor, req CreateSettingsRequest) (SettingsResponse, error) {
	if err := validateStruct(req); err != nil {
		return SettingsResponse{}, err
	}
	if err := validatePeriod(req.Year, req.Month); err != nil {
		return SettingsResponse{}, err
	}
	if err := validateSettingsAmounts(req.IndirectExpensesTotal, req.VacationCostPerWorker); err != nil {
		return SettingsResponse{}, err
	}

	if _, err := s.repo.FindByPeriod(ctx, req.Year, req.Month); err == nil {
		return SettingsResponse{}, apperror.Conflict("monthly settings for %s already exist", periodLabel(req.Year, req.Month))
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return SettingsResponse{}, fmt.Errorf("failed to check monthly settings: %w", err)
	}

	m := model.MonthlySettings{
		Year:                  req.Year,
		Month:                 req.Month,
		IndirectExpensesTotal: req.IndirectExpensesTotal,
		VacationCostPerWorker: req.VacationCostPerWorker,
		Notes:                 req.Notes,
		CreatedBy:             actor.UserID,
	}
	if err := s.repo.Create(ctx, &m); err != nil {
		return SettingsResponse{}, fmt.Errorf("failed to create monthly settings: %w", err)
	}
	s.audit.write(ctx, actor, model.ActionSaveSettings, m.ID.String(), periodLabel(m.Year, m.Month), req)
	return toSettingsResponse(m), nil
}

// UpdateSettings rejects changes to a locked period unless the actor is elevated.
// Records already built keep the values copied at commit time.
func (s *settingsService) UpdateSettings(ctx context.Context, actor Actor, id string, req UpdateSettingsRequest) (SettingsResponse, error) {
	settingsID, err := parseID("settings", id)
	if err != nil {
		return SettingsResponse{}, err
	}
	if err := validateSettingsAmounts(req.IndirectExpensesTotal, req.VacationCostPerWorker); err != nil {
		return SettingsResponse{}, err
	}
	m, err := s.repo.FindByID(ctx, settingsID)
	if err != nil {
		return SettingsResponse{}, notFound(err, "monthly settings")
	}
	if m.Locked && !actor.Elevated() {
		return SettingsResponse{}, apperror.ImmutableRecord("monthly settings for %s are locked", periodLabel(m.Year, m.Month))
	}

	m.IndirectExpensesTotal = req.IndirectExpensesTotal
	m.VacationCostPerWorker = req.VacationCostPerWorker
	m.Notes = req.Notes
	if err := s.repo.Update(ctx, m); err != nil {
		return SettingsResponse{}, fmt.Errorf("failed to update monthly settings: %w", err)
	}
	s.audit.write(ctx, actor, model.ActionSaveSettings, m.ID.String(), periodLabel(m.Year, m.Month), req)
	return toSettingsResponse(*m), nil
}

func validateSettingsAmounts(indirect, vacation decimal.Decimal) error {
	if indirect.IsNegative() {
		return apperror.Validation("indirect_expenses_total must not be negative")
	}
	if vacation.IsNegative() {
		return apperror.Validation("vacation_cost_per_worker must not be negative")
	}
	return nil
}

func toSettingsResponse(m model.MonthlySettings) SettingsResponse {
	return SettingsResponse{
		ID:                    m.ID.String(),
		Year:                  m.Year,
		Month:                 m.Month,
		Period:                periodLabel(m.Year, m.Month),
		IndirectExpensesTotal: money(m.IndirectExpensesTotal),
		VacationCostPerWorker: money(m.VacationCostPerWorker),
		Locked:                m.Locked,
		LockedAt:              formatTimePtr(m.LockedAt),
		Notes:                 m.Notes,
		UpdatedAt:             m.UpdatedAt.Format(time.RFC3339),
	}
}
