package repository

import (
	"context"

	"ecofin/internal/model"

	"gorm.io/gorm"
)

type SyncLogRepository interface {
	Create(ctx context.Context, log *model.PaymentSyncLog) error
	Update(ctx context.Context, log *model.PaymentSyncLog) error
	LastSuccess(ctx context.Context) (*model.PaymentSyncLog, error)
	List(ctx context.Context, page, limit int) ([]model.PaymentSyncLog, int64, error)
}

type syncLogRepository struct {
	db *gorm.DB
}

func NewSyncLogRepository(db *gorm.DB) SyncLogRepository {
	return &syncLogRepository{db: db}
}

func (r *syncLogRepository) Create(ctx context.Context, log *model.PaymentSyncLog) error {
	return GetDB(ctx, r.db).Create(log).Error
}

func (r *syncLogRepository) Update(ctx context.Context, log *model.PaymentSyncLog) error {
	return GetDB(ctx, r.db).Save(log).Error
}

// LastSuccess returns the most recently finished successful run.
func (r *syncLogRepository) LastSuccess(ctx context.Context) (*model.PaymentSyncLog, error) {
	var log model.PaymentSyncLog
	err := GetDB(ctx, r.db).
		Where("status = ? AND finished_at IS NOT NULL", model.SyncSuccess).
		Order("finished_at desc").
		First(&log).Error
	if err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *syncLogRepository) List(ctx context.Context, page, limit int) ([]model.PaymentSyncLog, int64, error) {
	var logs []model.PaymentSyncLog
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.PaymentSyncLog{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset, size := Page(page, limit)
	if err := db.Order("started_at desc").Offset(offset).Limit(size).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
