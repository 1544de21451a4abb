package repository

import (
	"context"
	"time"

	"ecofin/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaxRuleRepository interface {
	Create(ctx context.Context, rule *model.TaxRule) error
	Update(ctx context.Context, rule *model.TaxRule) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.TaxRule, error)
	List(ctx context.Context) ([]model.TaxRule, error)
	FindActive(ctx context.Context, taxType string, on time.Time) (*model.TaxRule, error)
	CountOverlapping(ctx context.Context, taxType string, from time.Time, to *time.Time, excludeID *uuid.UUID) (int64, error)
}

type taxRuleRepository struct {
	db *gorm.DB
}

func NewTaxRuleRepository(db *gorm.DB) TaxRuleRepository {
	return &taxRuleRepository{db: db}
}

func (r *taxRuleRepository) Create(ctx context.Context, rule *model.TaxRule) error {
	return GetDB(ctx, r.db).Create(rule).Error
}

func (r *taxRuleRepository) Update(ctx context.Context, rule *model.TaxRule) error {
	return GetDB(ctx, r.db).Save(rule).Error
}

func (r *taxRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.TaxRule{}).Error
}

func (r *taxRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.TaxRule, error) {
	var rule model.TaxRule
	if err := GetDB(ctx, r.db).First(&rule, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *taxRuleRepository) List(ctx context.Context) ([]model.TaxRule, error) {
	var rules []model.TaxRule
	err := GetDB(ctx, r.db).Order("tax_type, effective_from desc").Find(&rules).Error
	return rules, err
}

// FindActive returns the rule in force on the given day.
func (r *taxRuleRepository) FindActive(ctx context.Context, taxType string, on time.Time) (*model.TaxRule, error) {
	var rule model.TaxRule
	if err := GetDB(ctx, r.db).
		Where("tax_type = ? AND effective_from <= ? AND (effective_to IS NULL OR effective_to >= ?)", taxType, on, on).
		Order("effective_from desc").
		First(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *taxRuleRepository) CountOverlapping(ctx context.Context, taxType string, from time.Time, to *time.Time, excludeID *uuid.UUID) (int64, error) {
	query := GetDB(ctx, r.db).Model(&model.TaxRule{}).Where("tax_type = ?", taxType)
	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}
	if to != nil {
		query = query.Where("effective_from <= ? AND (effective_to IS NULL OR effective_to >= ?)", *to, from)
	} else {
		query = query.Where("effective_to IS NULL OR effective_to >= ?", from)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
