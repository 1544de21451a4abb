package service

import (
	"context"
	"fmt"
	"strings"

	"ecofin/internal/apperror"
	"ecofin/internal/model"
	"ecofin/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- DTOs ---

type ClientRequest struct {
	Name              string          `json:"name" binding:"required,max=255"`
	FiscalCode        string          `json:"fiscal_code" binding:"max=50"`
	Country           string          `json:"country"`
	City              string          `json:"city"`
	County            string          `json:"county"`
	Address           string          `json:"address"`
	Email             string          `json:"email" binding:"omitempty,email"`
	HourlyRate        decimal.Decimal `json:"hourly_rate"`
	MinimumHours      int             `json:"minimum_hours" binding:"min=0"`
	AccommodationCost decimal.Decimal `json:"accommodation_cost"`
	MealCost          decimal.Decimal `json:"meal_cost"`
	TransportCost     decimal.Decimal `json:"transport_cost"`
	IsActive          *bool           `json:"is_active"`
}

type ClientResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	FiscalCode        string `json:"fiscal_code"`
	Country           string `json:"country"`
	City              string `json:"city"`
	County            string `json:"county"`
	Address           string `json:"address"`
	Email             string `json:"email"`
	HourlyRate        string `json:"hourly_rate"`
	MinimumHours      int    `json:"minimum_hours"`
	AccommodationCost string `json:"accommodation_cost"`
	MealCost          string `json:"meal_cost"`
	TransportCost     string `json:"transport_cost"`
	IsActive          bool   `json:"is_active"`
	CreatedAt         string `json:"created_at"`
}

// --- Interface ---

type ClientService interface {
	ListClients(ctx context.Context, filter repository.ClientFilter) ([]ClientResponse, int64, error)
	GetClient(ctx context.Context, id string) (ClientResponse, error)
	CreateClient(ctx context.Context, actor Actor, req ClientRequest) (ClientResponse, error)
	UpdateClient(ctx context.Context, actor Actor, id string, req ClientRequest) (ClientResponse, error)
	DeleteClient(ctx context.Context, actor Actor, id string) error
}

type clientService struct {
	repo  repository.ClientRepository
	audit auditWriter
}

func NewClientService(repo repository.ClientRepository, auditRepo repository.AuditRepository, log *zap.Logger) ClientService {
	return &clientService{repo: repo, audit: auditWriter{repo: auditRepo, logger: log}}
}

// --- Implementation ---

func (s *clientService) ListClients(ctx context.Context, filter repository.ClientFilter) ([]ClientResponse, int64, error) {
	clients, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list clients: %w", err)
	}
	res := make([]ClientResponse, 0, len(clients))
	for _, c := range clients {
		res = append(res, toClientResponse(c))
	}
	return res, total, nil
}

func (s *clientService) GetClient(ctx context.Context, id string) (ClientResponse, error) {
	clientID, err := parseID("client", id)
	if err != nil {
		return ClientResponse{}, err
	}
	client, err := s.repo.FindByID(ctx, clientID)
	if err != nil {
		return ClientResponse{}, notFound(err, "client")
	}
	return toClientResponse(*client), nil
}

func (s *clientService) CreateClient(ctx context.Context, actor Actor, req ClientRequest) (ClientResponse, error) {
	if err := validateClientRequest(req); err != nil {
		return ClientResponse{}, err
	}
	client := model.Client{IsActive: true}
	applyClientRequest(&client, req)

	if err := s.repo.Create(ctx, &client); err != nil {
		return ClientResponse{}, fmt.Errorf("failed to create client: %w", err)
	}
	s.audit.write(ctx, actor, model.ActionCreateClient, client.ID.String(), client.Name, req)
	return toClientResponse(client), nil
}

// UpdateClient changes the tariff for future records and invoices only; existing
// records keep the values copied when they were created.
func (s *clientService) UpdateClient(ctx context.Context, actor Actor, id string, req ClientRequest) (ClientResponse, error) {
	if err := validateClientRequest(req); err != nil {
		return ClientResponse{}, err
	}
	clientID, err := parseID("client", id)
	if err != nil {
		return ClientResponse{}, err
	}
	client, err := s.repo.FindByID(ctx, clientID)
	if err != nil {
		return ClientResponse{}, notFound(err, "client")
	}

	applyClientRequest(client, req)
	if err := s.repo.Update(ctx, client); err != nil {
		return ClientResponse{}, fmt.Errorf("failed to update client: %w", err)
	}
	s.audit.write(ctx, actor, model.ActionUpdateClient, client.ID.String(), client.Name, req)
	return toClientResponse(*client), nil
}

func (s *clientService) DeleteClient(ctx context.Context, actor Actor, id string) error {
	clientID, err := parseID("client", id)
	if err != nil {
		return err
	}
	client, err := s.repo.FindByID(ctx, clientID)
	if err != nil {
		return notFound(err, "client")
	}
	if err := s.repo.Delete(ctx, clientID); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	s.audit.write(ctx, actor, model.ActionDeleteClient, client.ID.String(), client.Name, nil)
	return nil
}

func validateClientRequest(req ClientRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperror.Validation("name is required")
	}
	for field, v := range map[string]decimal.Decimal{
		"hourly_rate":        req.HourlyRate,
		"accommodation_cost": req.AccommodationCost,
		"meal_cost":          req.MealCost,
		"transport_cost":     req.TransportCost,
	} {
		if v.IsNegative() {
			return apperror.Validation("%s must not be negative", field)
		}
	}
	return nil
}

func applyClientRequest(c *model.Client, req ClientRequest) {
	c.Name = strings.TrimSpace(req.Name)
	c.FiscalCode = strings.TrimSpace(req.FiscalCode)
	c.Country = req.Country
	c.City = req.City
	c.County = req.County
	c.Address = req.Address
	c.Email = strings.TrimSpace(req.Email)
	c.HourlyRate = req.HourlyRate
	c.MinimumHours = req.MinimumHours
	c.AccommodationCost = req.AccommodationCost
	c.MealCost = req.MealCost
	c.TransportCost = req.TransportCost
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
}

func toClientResponse(c model.Client) ClientResponse {
	return ClientResponse{
		ID:                c.ID.String(),
		Name:              c.Name,
		FiscalCode:        c.FiscalCode,
		Country:           c.Country,
		City:              c.City,
		County:            c.County,
		Address:           c.Address,
		Email:             c.Email,
		HourlyRate:        money(c.HourlyRate),
		MinimumHours:      c.MinimumHours,
		AccommodationCost: money(c.AccommodationCost),
		MealCost:          money(c.MealCost),
		TransportCost:     money(c.TransportCost),
		IsActive:          c.IsActive,
		CreatedAt:         formatTime(c.CreatedAt),
	}
}
