package repository

import (
	"context"
	"strings"

	"ecofin/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ClientFilter struct {
	Search     string
	ActiveOnly bool
	Page       int
	Limit      int
}

type ClientRepository interface {
	Create(ctx context.Context, client *model.Client) error
	Update(ctx context.Context, client *model.Client) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Client, error)
	FindByName(ctx context.Context, name string) (*model.Client, error)
	List(ctx context.Context, f ClientFilter) ([]model.Client, int64, error)
}

type clientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{db: db}
}

func (r *clientRepository) Create(ctx context.Context, client *model.Client) error {
	return GetDB(ctx, r.db).Create(client).Error
}

func (r *clientRepository) Update(ctx context.Context, client *model.Client) error {
	return GetDB(ctx, r.db).Save(client).Error
}

func (r *clientRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Client{}).Error
}

func (r *clientRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Client, error) {
	var client model.Client
	if err := GetDB(ctx, r.db).First(&client, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

// FindByName matches the company name case-insensitively.
func (r *clientRepository) FindByName(ctx context.Context, name string) (*model.Client, error) {
	var client model.Client
	if err := GetDB(ctx, r.db).
		Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&client).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *clientRepository) List(ctx context.Context, f ClientFilter) ([]model.Client, int64, error) {
	var clients []model.Client
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Client{})
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(fiscal_code) LIKE ?", like, like)
	}
	if f.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset, size := Page(f.Page, f.Limit)
	if err := query.Order("name asc").Offset(offset).Limit(size).Find(&clients).Error; err != nil {
		return nil, 0, err
	}
	return clients, total, nil
}
