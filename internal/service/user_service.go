package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/config"
	"ecofin/internal/model"
	"ecofin/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const refreshTokenTTL = 7 * 24 * time.Hour

var errInvalidCredentials = errors.New("invalid email or password")

// --- DTOs ---

type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required,oneof=admin management staff"`
}

type UpdateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email" binding:"omitempty,email"`
	Phone    string `json:"phone"`
	Role     string `json:"role" binding:"omitempty,oneof=admin management staff"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

// --- Interface ---

type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	RefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	GetUserByID(ctx context.Context, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, id string) error
	// EnsureAdmin creates the first admin account unless one already exists.
	EnsureAdmin(ctx context.Context, req CreateUserRequest) (*UserResponse, bool, error)
}

type userService struct {
	repo repository.UserRepository
	jwt  config.JWTConfig
	now  func() time.Time
}

func NewUserService(repo repository.UserRepository, jwtCfg config.JWTConfig) UserService {
	if jwtCfg.Expiration <= 0 {
		jwtCfg.Expiration = 24 * time.Hour
	}
	return &userService{repo: repo, jwt: jwtCfg, now: time.Now}
}

func mapToResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Phone:     user.Phone,
		Role:      user.Role,
		CreatedAt: formatTime(user.CreatedAt),
		UpdatedAt: formatTime(user.UpdatedAt),
	}
}

// --- Implementation ---

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
		return nil, apperror.Conflict("username already exists")
	}
	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, apperror.Conflict("email already exists")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: string(hashed),
		Role:     req.Role,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return mapToResponse(user), nil
}

func (s *userService) EnsureAdmin(ctx context.Context, req CreateUserRequest) (*UserResponse, bool, error) {
	count, err := s.repo.CountByRole(ctx, model.RoleAdmin)
	if err != nil {
		return nil, false, fmt.Errorf("failed to count admins: %w", err)
	}
	if count > 0 {
		return nil, false, nil
	}
	req.Role = model.RoleAdmin
	user, err := s.CreateUser(ctx, req)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, errInvalidCredentials
	}
	return s.issueTokens(ctx, user)
}

// RefreshToken rotates the refresh token: the presented one is revoked.
func (s *userService) RefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error) {
	stored, err := s.repo.FindRefreshToken(ctx, req.RefreshToken, s.now())
	if err != nil {
		return nil, errors.New("invalid or expired refresh token")
	}
	if err := s.repo.DeleteRefreshToken(ctx, stored.Token); err != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return s.issueTokens(ctx, &stored.User)
}

func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.repo.DeleteRefreshToken(ctx, refreshToken)
}

func (s *userService) issueTokens(ctx context.Context, user *model.User) (*TokenResponse, error) {
	now := s.now()
	expiresAt := now.Add(s.jwt.Expiration)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"iss":  s.jwt.Issuer,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	})
	tokenString, err := token.SignedString([]byte(s.jwt.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	refresh := &model.RefreshToken{
		UserID:    user.ID,
		Token:     hex.EncodeToString(raw),
		ExpiresAt: now.Add(refreshTokenTTL),
	}
	if err := s.repo.SaveRefreshToken(ctx, refresh); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &TokenResponse{
		Token:        tokenString,
		RefreshToken: refresh.Token,
		ExpiresAt:    formatTime(expiresAt),
	}, nil
}

func (s *userService) GetUserByID(ctx context.Context, id string) (*UserResponse, error) {
	userID, err := parseID("user", id)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	users, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}
	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	userID, err := parseID("user", id)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user")
	}

	if req.Role != "" {
		user.Role = req.Role
	}
	if req.Username != "" && req.Username != user.Username {
		if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
			return nil, apperror.Conflict("username already exists")
		}
		user.Username = req.Username
	}
	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" && email != user.Email {
		if _, err := s.repo.GetByEmail(ctx, email); err == nil {
			return nil, apperror.Conflict("email already exists")
		}
		user.Email = email
	}
	if req.Phone != "" {
		user.Phone = req.Phone
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return mapToResponse(user), nil
}

func (s *userService) DeleteUser(ctx context.Context, id string) error {
	userID, err := parseID("user", id)
	if err != nil {
		return err
	}
	if _, err := s.repo.GetByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("user not found")
		}
		return err
	}
	return s.repo.Delete(ctx, userID)
}
