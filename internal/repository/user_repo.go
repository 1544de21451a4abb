package repository

import (
	"context"
	"time"

	"ecofin/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository defines data access for users and their refresh tokens
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	List(ctx context.Context, page, limit int) ([]model.User, int64, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountByRole(ctx context.Context, role string) (int64, error)

	SaveRefreshToken(ctx context.Context, token *model.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string, now time.Time) (*model.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, page, limit int) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset, size := Page(page, limit)
	if err := db.Order("created_at desc").Offset(offset).Limit(size).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Save(user).Error
}

func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.User{}).Error
}

func (r *userRepository) CountByRole(ctx context.Context, role string) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.User{}).Where("role = ?", role).Count(&n).Error
	return n, err
}

func (r *userRepository) SaveRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	return GetDB(ctx, r.db).Create(token).Error
}

func (r *userRepository) FindRefreshToken(ctx context.Context, token string, now time.Time) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	if err := GetDB(ctx, r.db).Preload("User").
		Where("token = ? AND expires_at > ?", token, now).
		First(&rt).Error; err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r *userRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	return GetDB(ctx, r.db).Where("token = ?", token).Delete(&model.RefreshToken{}).Error
}
