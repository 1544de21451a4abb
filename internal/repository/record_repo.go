package repository

import (
	"context"
	"time"

	"ecofin/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RecordFilter struct {
	Year      int
	Month     int
	ClientID  *uuid.UUID
	WorkerID  *uuid.UUID
	Validated *bool
	Page      int
	Limit     int
}

// PeriodRange bounds a span of months, inclusive on both ends.
type PeriodRange struct {
	FromYear, FromMonth int
	ToYear, ToMonth     int
}

func (p PeriodRange) from() int { return p.FromYear*100 + p.FromMonth }
func (p PeriodRange) to() int   { return p.ToYear*100 + p.ToMonth }

type RecordRepository interface {
	Create(ctx context.Context, rec *model.ProcessedRecord) error
	Update(ctx context.Context, rec *model.ProcessedRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ProcessedRecord, error)
	FindByKey(ctx context.Context, workerID, clientID uuid.UUID, year, month int) (*model.ProcessedRecord, error)
	List(ctx context.Context, f RecordFilter) ([]model.ProcessedRecord, int64, error)
	ListPeriod(ctx context.Context, year, month int, clientID *uuid.UUID) ([]model.ProcessedRecord, error)
	ListRange(ctx context.Context, r PeriodRange) ([]model.ProcessedRecord, error)
	ValidatePeriod(ctx context.Context, year, month int, by *uuid.UUID, at time.Time) (int64, error)
}

type recordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) Create(ctx context.Context, rec *model.ProcessedRecord) error {
	return GetDB(ctx, r.db).Omit("Worker", "Client").Create(rec).Error
}

func (r *recordRepository) Update(ctx context.Context, rec *model.ProcessedRecord) error {
	return GetDB(ctx, r.db).Omit("Worker", "Client").Save(rec).Error
}

func (r *recordRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.ProcessedRecord{}).Error
}

func (r *recordRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ProcessedRecord, error) {
	var rec model.ProcessedRecord
	if err := GetDB(ctx, r.db).Preload("Worker").Preload("Client").First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepository) FindByKey(ctx context.Context, workerID, clientID uuid.UUID, year, month int) (*model.ProcessedRecord, error) {
	var rec model.ProcessedRecord
	err := GetDB(ctx, r.db).
		Where("worker_id = ? AND client_id = ? AND year = ? AND month = ?", workerID, clientID, year, month).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepository) List(ctx context.Context, f RecordFilter) ([]model.ProcessedRecord, int64, error) {
	var records []model.ProcessedRecord
	var total int64

	query := GetDB(ctx, r.db).Model(&model.ProcessedRecord{})
	if f.Year > 0 {
		query = query.Where("year = ?", f.Year)
	}
	if f.Month > 0 {
		query = query.Where("month = ?", f.Month)
	}
	if f.ClientID != nil {
		query = query.Where("client_id = ?", *f.ClientID)
	}
	if f.WorkerID != nil {
		query = query.Where("worker_id = ?", *f.WorkerID)
	}
	if f.Validated != nil {
		query = query.Where("validated = ?", *f.Validated)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset, size := Page(f.Page, f.Limit)
	err := query.Preload("Worker").Preload("Client").
		Order("year desc, month desc, created_at asc").
		Offset(offset).Limit(size).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListPeriod returns every record of a period, optionally for one client.
func (r *recordRepository) ListPeriod(ctx context.Context, year, month int, clientID *uuid.UUID) ([]model.ProcessedRecord, error) {
	var records []model.ProcessedRecord
	query := GetDB(ctx, r.db).Where("year = ? AND month = ?", year, month)
	if clientID != nil {
		query = query.Where("client_id = ?", *clientID)
	}
	err := query.Preload("Worker").Preload("Client").Order("created_at asc").Find(&records).Error
	return records, err
}

func (r *recordRepository) ListRange(ctx context.Context, pr PeriodRange) ([]model.ProcessedRecord, error) {
	var records []model.ProcessedRecord
	err := GetDB(ctx, r.db).
		Where("(year * 100 + month) BETWEEN ? AND ?", pr.from(), pr.to()).
		Preload("Worker").
		Preload("Client").
		Order("year asc, month asc, created_at asc").
		Find(&records).Error
	return records, err
}

// ValidatePeriod freezes every unvalidated record of the period and returns how many changed.
func (r *recordRepository) ValidatePeriod(ctx context.Context, year, month int, by *uuid.UUID, at time.Time) (int64, error) {
	res := GetDB(ctx, r.db).Session(&gorm.Session{SkipHooks: true}).
		Model(&model.ProcessedRecord{}).
		Where("year = ? AND month = ? AND validated = ?", year, month, false).
		Updates(map[string]any{"validated": true, "validated_at": at, "validated_by": by, "updated_at": at})
	return res.RowsAffected, res.Error
}
