package repository

import (
	"context"

	"ecofin/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WorkerDocumentRepository interface {
	Create(ctx context.Context, doc *model.WorkerDocument) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.WorkerDocument, error)
	ListByWorker(ctx context.Context, workerID uuid.UUID) ([]model.WorkerDocument, error)
}

type workerDocumentRepository struct {
	db *gorm.DB
}

func NewWorkerDocumentRepository(db *gorm.DB) WorkerDocumentRepository {
	return &workerDocumentRepository{db: db}
}

func (r *workerDocumentRepository) Create(ctx context.Context, doc *model.WorkerDocument) error {
	return GetDB(ctx, r.db).Omit("Worker").Create(doc).Error
}

func (r *workerDocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.WorkerDocument{}).Error
}

func (r *workerDocumentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.WorkerDocument, error) {
	var doc model.WorkerDocument
	if err := GetDB(ctx, r.db).First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByWorker returns the newest upload first.
func (r *workerDocumentRepository) ListByWorker(ctx context.Context, workerID uuid.UUID) ([]model.WorkerDocument, error) {
	var docs []model.WorkerDocument
	err := GetDB(ctx, r.db).Where("worker_id = ?", workerID).Order("created_at desc").Find(&docs).Error
	return docs, err
}
