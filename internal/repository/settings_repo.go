package repository

import (
	"context"
	"time"

	"ecofin/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SettingsRepository interface {
	Create(ctx context.Context, s *model.MonthlySettings) error
	Update(ctx context.Context, s *model.MonthlySettings) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.MonthlySettings, error)
	FindByPeriod(ctx context.Context, year, month int) (*model.MonthlySettings, error)
	List(ctx context.Context, year int) ([]model.MonthlySettings, error)
	Lock(ctx context.Context, year, month int, at time.Time) error
}

type settingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Create(ctx context.Context, s *model.MonthlySettings) error {
	return GetDB(ctx, r.db).Create(s).Error
}

func (r *settingsRepository) Update(ctx context.Context, s *model.MonthlySettings) error {
	return GetDB(ctx, r.db).Save(s).Error
}

func (r *settingsRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.MonthlySettings, error) {
	var s model.MonthlySettings
	if err := GetDB(ctx, r.db).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *settingsRepository) FindByPeriod(ctx context.Context, year, month int) (*model.MonthlySettings, error) {
	var s model.MonthlySettings
	if err := GetDB(ctx, r.db).Where("year = ? AND month = ?", year, month).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns settings newest first; year 0 lists every period.
func (r *settingsRepository) List(ctx context.Context, year int) ([]model.MonthlySettings, error) {
	var out []model.MonthlySettings
	query := GetDB(ctx, r.db)
	if year > 0 {
		query = query.Where("year = ?", year)
	}
	err := query.Order("year desc, month desc").Find(&out).Error
	return out, err
}

func (r *settingsRepository) Lock(ctx context.Context, year, month int, at time.Time) error {
	return GetDB(ctx, r.db).Model(&model.MonthlySettings{}).
		Where("year = ? AND month = ? AND locked = ?", year, month, false).
		Updates(map[string]any{"locked": true, "locked_at": at}).Error
}
