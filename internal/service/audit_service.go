package service

import (
	"context"
	"fmt"

	"ecofin/internal/repository"
)

type AuditLogResponse struct {
	ID         string  `json:"id"`
	UserID     *string `json:"user_id"`
	Username   string  `json:"username"`
	Action     string  `json:"action"`
	EntityID   string  `json:"entity_id"`
	EntityName string  `json:"entity_name"`
	Details    string  `json:"details"`
	CreatedAt  string  `json:"created_at"`
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, filter repository.AuditFilter) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// GetAuditLogs lists entries newest first. Entries without a user were written by scheduled jobs.
func (s *auditService) GetAuditLogs(ctx context.Context, filter repository.AuditFilter) ([]AuditLogResponse, int64, error) {
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		if l.User != nil {
			username = l.User.Username
		}
		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     idString(l.UserID),
			Username:   username,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return res, total, nil
}
