package repository

import (
	"context"
	"strings"
	"time"

	"ecofin/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WorkerFilter struct {
	Search   string
	Status   string
	ClientID *uuid.UUID
	Page     int
	Limit    int
}

type WorkerRepository interface {
	Create(ctx context.Context, worker *model.Worker) error
	Update(ctx context.Context, worker *model.Worker) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Worker, error)
	FindByContractNumber(ctx context.Context, contract string) (*model.Worker, error)
	FindByPassport(ctx context.Context, passport string) (*model.Worker, error)
	List(ctx context.Context, f WorkerFilter) ([]model.Worker, int64, error)
	Statistics(ctx context.Context, f WorkerStatsFilter) (*WorkerStats, error)
	Citizenships(ctx context.Context) ([]string, error)
	WithAppointmentOn(ctx context.Context, day time.Time) ([]model.Worker, error)
}

type WorkerStatsFilter struct {
	Status      string
	Citizenship string
}

// GroupCount is one bucket of a grouped count.
type GroupCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

type WorkerStats struct {
	Total         int64
	ByStatus      []GroupCount
	ByCitizenship []GroupCount
	ByClient      []GroupCount
}

type workerRepository struct {
	db *gorm.DB
}

func NewWorkerRepository(db *gorm.DB) WorkerRepository {
	return &workerRepository{db: db}
}

func (r *workerRepository) Create(ctx context.Context, worker *model.Worker) error {
	return GetDB(ctx, r.db).Create(worker).Error
}

func (r *workerRepository) Update(ctx context.Context, worker *model.Worker) error {
	return GetDB(ctx, r.db).Omit("Client").Save(worker).Error
}

func (r *workerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Worker{}).Error
}

func (r *workerRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Worker, error) {
	var worker model.Worker
	if err := GetDB(ctx, r.db).Preload("Client").First(&worker, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &worker, nil
}

// FindByContractNumber matches the employment contract number case-insensitively.
func (r *workerRepository) FindByContractNumber(ctx context.Context, contract string) (*model.Worker, error) {
	var worker model.Worker
	if err := GetDB(ctx, r.db).Preload("Client").
		Where("LOWER(contract_number) = ?", strings.ToLower(strings.TrimSpace(contract))).
		First(&worker).Error; err != nil {
		return nil, err
	}
	return &worker, nil
}

// FindByPassport matches the passport number case-insensitively.
func (r *workerRepository) FindByPassport(ctx context.Context, passport string) (*model.Worker, error) {
	var worker model.Worker
	if err := GetDB(ctx, r.db).Preload("Client").
		Where("LOWER(passport_number) = ?", strings.ToLower(strings.TrimSpace(passport))).
		First(&worker).Error; err != nil {
		return nil, err
	}
	return &worker, nil
}

func (r *workerRepository) List(ctx context.Context, f WorkerFilter) ([]model.Worker, int64, error) {
	var workers []model.Worker
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Worker{})
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query = query.Where(
			"LOWER(last_name) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(passport_number) LIKE ? OR LOWER(contract_number) LIKE ?",
			like, like, like, like)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.ClientID != nil {
		query = query.Where("client_id = ?", *f.ClientID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset, size := Page(f.Page, f.Limit)
	if err := query.Preload("Client").Order("last_name asc, first_name asc").Offset(offset).Limit(size).Find(&workers).Error; err != nil {
		return nil, 0, err
	}
	return workers, total, nil
}

const topGroups = 10

// Statistics counts workers by status, citizenship and client. Citizenship and
// client keep the ten largest groups.
func (r *workerRepository) Statistics(ctx context.Context, f WorkerStatsFilter) (*WorkerStats, error) {
	base := func() *gorm.DB {
		q := GetDB(ctx, r.db).Model(&model.Worker{})
		if f.Status != "" {
			q = q.Where("workers.status = ?", f.Status)
		}
		if f.Citizenship != "" {
			q = q.Where("LOWER(workers.citizenship) = ?", strings.ToLower(strings.TrimSpace(f.Citizenship)))
		}
		return q
	}

	stats := &WorkerStats{}
	if err := base().Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := base().Select("workers.status AS label, COUNT(*) AS count").
		Group("workers.status").Order("count desc, label asc").
		Scan(&stats.ByStatus).Error; err != nil {
		return nil, err
	}
	if err := base().Select("workers.citizenship AS label, COUNT(*) AS count").
		Where("workers.citizenship <> ''").
		Group("workers.citizenship").Order("count desc, label asc").Limit(topGroups).
		Scan(&stats.ByCitizenship).Error; err != nil {
		return nil, err
	}
	if err := base().Select("clients.name AS label, COUNT(*) AS count").
		Joins("JOIN clients ON clients.id = workers.client_id").
		Group("clients.name").Order("count desc, label asc").Limit(topGroups).
		Scan(&stats.ByClient).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// Citizenships lists the distinct non-empty citizenships, sorted.
func (r *workerRepository) Citizenships(ctx context.Context) ([]string, error) {
	var out []string
	err := GetDB(ctx, r.db).Model(&model.Worker{}).
		Where("citizenship <> ''").
		Distinct("citizenship").Order("citizenship asc").
		Pluck("citizenship", &out).Error
	return out, err
}

// WithAppointmentOn returns workers with a work permit, visa interview or
// residence permit appointment on day.
func (r *workerRepository) WithAppointmentOn(ctx context.Context, day time.Time) ([]model.Worker, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	var workers []model.Worker
	err := GetDB(ctx, r.db).Preload("Client").Preload("Expert").
		Where("(permit_appointment >= ? AND permit_appointment < ?) OR (visa_interview >= ? AND visa_interview < ?) OR (residence_appointment >= ? AND residence_appointment < ?)",
			from, to, from, to, from, to).
		Order("last_name asc, first_name asc").
		Find(&workers).Error
	return workers, err
}
