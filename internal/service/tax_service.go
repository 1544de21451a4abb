package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/model"
	"ecofin/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type TaxRuleRequest struct {
	TaxType       string          `json:"tax_type" binding:"required,oneof=VAT_STANDARD VAT_REDUCED"`
	Rate          decimal.Decimal `json:"rate"`                              // percent, e.g. 21
	EffectiveFrom string          `json:"effective_from" binding:"required"` // YYYY-MM-DD
	EffectiveTo   string          `json:"effective_to"`                      // YYYY-MM-DD, empty = open ended
	Description   string          `json:"description"`
}

type TaxRuleResponse struct {
	ID            string  `json:"id"`
	TaxType       string  `json:"tax_type"`
	Rate          string  `json:"rate"`
	EffectiveFrom string  `json:"effective_from"`
	EffectiveTo   *string `json:"effective_to"`
	Description   string  `json:"description"`
	CreatedAt     string  `json:"created_at"`
}

type ActiveTaxRateResponse struct {
	TaxType string  `json:"tax_type"`
	Rate    string  `json:"rate"`
	RuleID  *string `json:"rule_id"` // nil when the configured default applies
}

// --- Interface ---

type TaxService interface {
	GetTaxRules(ctx context.Context) ([]TaxRuleResponse, error)
	CreateTaxRule(ctx context.Context, actor Actor, req TaxRuleRequest) (TaxRuleResponse, error)
	UpdateTaxRule(ctx context.Context, actor Actor, id string, req TaxRuleRequest) (TaxRuleResponse, error)
	DeleteTaxRule(ctx context.Context, actor Actor, id string) error
	GetActiveTaxRate(ctx context.Context, taxType string, on time.Time) (ActiveTaxRateResponse, error)
	// VATRate returns the standard VAT percent in force on the given day.
	VATRate(ctx context.Context, on time.Time) (decimal.Decimal, error)
}

type taxService struct {
	repo       repository.TaxRuleRepository
	audit      auditWriter
	defaultVAT decimal.Decimal
}

func NewTaxService(repo repository.TaxRuleRepository, auditRepo repository.AuditRepository, defaultVAT decimal.Decimal, log *zap.Logger) TaxService {
	return &taxService{
		repo:       repo,
		audit:      auditWriter{repo: auditRepo, logger: log},
		defaultVAT: defaultVAT,
	}
}

// --- Implementation ---

func (s *taxService) GetTaxRules(ctx context.Context) ([]TaxRuleResponse, error) {
	rules, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tax rules: %w", err)
	}
	res := make([]TaxRuleResponse, 0, len(rules))
	for _, r := range rules {
		res = append(res, toTaxRuleResponse(r))
	}
	return res, nil
}

func (s *taxService) CreateTaxRule(ctx context.Context, actor Actor, req TaxRuleRequest) (TaxRuleResponse, error) {
	if err := validateStruct(req); err != nil {
		return TaxRuleResponse{}, err
	}
	from, to, err := parseTaxRuleFields(req)
	if err != nil {
		return TaxRuleResponse{}, err
	}
	if err := s.checkOverlap(ctx, req.TaxType, from, to, nil); err != nil {
		return TaxRuleResponse{}, err
	}

	rule := model.TaxRule{
		TaxType:       req.TaxType,
		Rate:          req.Rate,
		EffectiveFrom: from,
		EffectiveTo:   to,
		Description:   req.Description,
	}
	if err := s.repo.Create(ctx, &rule); err != nil {
		return TaxRuleResponse{}, fmt.Errorf("failed to create tax rule: %w", err)
	}

	s.audit.write(ctx, actor, model.ActionCreateTaxRule, rule.ID.String(), req.TaxType+" "+req.Rate.StringFixed(2), req)
	return toTaxRuleResponse(rule), nil
}

func (s *taxService) UpdateTaxRule(ctx context.Context, actor Actor, id string, req TaxRuleRequest) (TaxRuleResponse, error) {
	if err := validateStruct(req); err != nil {
		return TaxRuleResponse{}, err
	}
	ruleID, err := parseID("tax rule", id)
	if err != nil {
		return TaxRuleResponse{}, err
	}
	rule, err := s.repo.FindByID(ctx, ruleID)
	if err != nil {
		return TaxRuleResponse{}, notFound(err, "tax rule")
	}

	from, to, err := parseTaxRuleFields(req)
	if err != nil {
		return TaxRuleResponse{}, err
	}
	if err := s.checkOverlap(ctx, req.TaxType, from, to, &ruleID); err != nil {
		return TaxRuleResponse{}, err
	}

	rule.TaxType = req.TaxType
	rule.Rate = req.Rate
	rule.EffectiveFrom = from
	rule.EffectiveTo = to
	rule.Description = req.Description
	if err := s.repo.Update(ctx, rule); err != nil {
		return TaxRuleResponse{}, fmt.Errorf("failed to update tax rule: %w", err)
	}

	s.audit.write(ctx, actor, model.ActionUpdateTaxRule, rule.ID.String(), req.TaxType+" "+req.Rate.StringFixed(2), req)
	return toTaxRuleResponse(*rule), nil
}

func (s *taxService) DeleteTaxRule(ctx context.Context, actor Actor, id string) error {
	ruleID, err := parseID("tax rule", id)
	if err != nil {
		return err
	}
	rule, err := s.repo.FindByID(ctx, ruleID)
	if err != nil {
		return notFound(err, "tax rule")
	}
	if err := s.repo.Delete(ctx, ruleID); err != nil {
		return fmt.Errorf("failed to delete tax rule: %w", err)
	}

	s.audit.write(ctx, actor, model.ActionDeleteTaxRule, rule.ID.String(), rule.TaxType+" "+rule.Rate.StringFixed(2), map[string]string{"deleted_id": id})
	return nil
}

func (s *taxService) GetActiveTaxRate(ctx context.Context, taxType string, on time.Time) (ActiveTaxRateResponse, error) {
	rule, err := s.repo.FindActive(ctx, taxType, on)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if taxType == model.TaxTypeVATStandard {
				return ActiveTaxRateResponse{TaxType: taxType, Rate: s.defaultVAT.StringFixed(2)}, nil
			}
			return ActiveTaxRateResponse{}, apperror.NotFound("no active %s rule on %s", taxType, on.Format(time.DateOnly))
		}
		return ActiveTaxRateResponse{}, fmt.Errorf("failed to query active tax rate: %w", err)
	}
	ruleID := rule.ID.String()
	return ActiveTaxRateResponse{TaxType: rule.TaxType, Rate: rule.Rate.StringFixed(2), RuleID: &ruleID}, nil
}

// VATRate falls back to the configured default when no rule covers the day.
func (s *taxService) VATRate(ctx context.Context, on time.Time) (decimal.Decimal, error) {
	rule, err := s.repo.FindActive(ctx, model.TaxTypeVATStandard, on)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.defaultVAT, nil
		}
		return decimal.Zero, fmt.Errorf("failed to query vat rate: %w", err)
	}
	return rule.Rate, nil
}

// --- Helpers ---

func parseTaxRuleFields(req TaxRuleRequest) (time.Time, *time.Time, error) {
	if req.Rate.IsNegative() || req.Rate.GreaterThan(decimal.NewFromInt(100)) {
		return time.Time{}, nil, apperror.Validation("rate must be between 0 and 100")
	}
	from, err := time.Parse(time.DateOnly, req.EffectiveFrom)
	if err != nil {
		return time.Time{}, nil, apperror.Validation("invalid effective_from date format (expected YYYY-MM-DD)")
	}
	if req.EffectiveTo == "" {
		return from, nil, nil
	}
	to, err := time.Parse(time.DateOnly, req.EffectiveTo)
	if err != nil {
		return time.Time{}, nil, apperror.Validation("invalid effective_to date format (expected YYYY-MM-DD)")
	}
	if to.Before(from) {
		return time.Time{}, nil, apperror.Validation("effective_to must not be before effective_from")
	}
	return from, &to, nil
}

func (s *taxService) checkOverlap(ctx context.Context, taxType string, from time.Time, to *time.Time, excludeID *uuid.UUID) error {
	count, err := s.repo.CountOverlapping(ctx, taxType, from, to, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check overlap: %w", err)
	}
	if count > 0 {
		return apperror.Conflict("a tax rule for '%s' already exists with overlapping effective dates", taxType)
	}
	return nil
}

func toTaxRuleResponse(r model.TaxRule) TaxRuleResponse {
	resp := TaxRuleResponse{
		ID:            r.ID.String(),
		TaxType:       r.TaxType,
		Rate:          r.Rate.StringFixed(2),
		EffectiveFrom: r.EffectiveFrom.Format(time.DateOnly),
		Description:   r.Description,
		CreatedAt:     formatTime(r.CreatedAt),
	}
	if r.EffectiveTo != nil {
		s := r.EffectiveTo.Format(time.DateOnly)
		resp.EffectiveTo = &s
	}
	return resp
}
