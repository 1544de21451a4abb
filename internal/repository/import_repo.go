package repository

import (
	"context"

	"ecofin/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BatchFilter struct {
	Year   int
	Month  int
	Status string
	Page   int
	Limit  int
}

type ImportRepository interface {
	CreateBatch(ctx context.Context, batch *model.ImportBatch) error
	UpdateBatch(ctx context.Context, batch *model.ImportBatch) error
	FindBatch(ctx context.Context, id uuid.UUID) (*model.ImportBatch, error)
	FindBatchWithRows(ctx context.Context, id uuid.UUID) (*model.ImportBatch, error)
	ListBatches(ctx context.Context, f BatchFilter) ([]model.ImportBatch, int64, error)
	MarkRowsProcessed(ctx context.Context, rowIDs []uuid.UUID) error
}

type importRepository struct {
	db *gorm.DB
}

func NewImportRepository(db *gorm.DB) ImportRepository {
	return &importRepository{db: db}
}

// CreateBatch inserts the batch together with its rows.
func (r *importRepository) CreateBatch(ctx context.Context, batch *model.ImportBatch) error {
	return GetDB(ctx, r.db).Create(batch).Error
}

func (r *importRepository) UpdateBatch(ctx context.Context, batch *model.ImportBatch) error {
	return GetDB(ctx, r.db).Omit("Rows").Save(batch).Error
}

func (r *importRepository) FindBatch(ctx context.Context, id uuid.UUID) (*model.ImportBatch, error) {
	var batch model.ImportBatch
	if err := GetDB(ctx, r.db).First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *importRepository) FindBatchWithRows(ctx context.Context, id uuid.UUID) (*model.ImportBatch, error) {
	var batch model.ImportBatch
	err := GetDB(ctx, r.db).
		Preload("Rows", func(db *gorm.DB) *gorm.DB { return db.Order("row_number asc") }).
		Preload("Rows.Worker").
		Preload("Rows.Client").
		First(&batch, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *importRepository) ListBatches(ctx context.Context, f BatchFilter) ([]model.ImportBatch, int64, error) {
	var batches []model.ImportBatch
	var total int64

	query := GetDB(ctx, r.db).Model(&model.ImportBatch{})
	if f.Year > 0 {
		query = query.Where("year = ?", f.Year)
	}
	if f.Month > 0 {
		query = query.Where("month = ?", f.Month)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset, size := Page(f.Page, f.Limit)
	if err := query.Order("created_at desc").Offset(offset).Limit(size).Find(&batches).Error; err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

func (r *importRepository) MarkRowsProcessed(ctx context.Context, rowIDs []uuid.UUID) error {
	if len(rowIDs) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Model(&model.ImportedRow{}).
		Where("id IN ?", rowIDs).
		Update("status", model.RowProcessed).Error
}
