package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/events"
	"ecofin/internal/model"
	"ecofin/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Actor is the caller of a service operation. Scheduled jobs run as SystemActor.
type Actor struct {
	UserID *uuid.UUID
	Role   string
}

// SystemActor is used by the scheduler and CLI commands.
var SystemActor = Actor{Role: "system"}

// NewActor builds an actor from the JWT subject and role. An unparsable subject
// leaves UserID nil.
func NewActor(userID, role string) Actor {
	a := Actor{Role: role}
	if id, err := uuid.Parse(userID); err == nil {
		a.UserID = &id
	}
	return a
}

// Elevated reports whether the actor may override locks on validated data.
func (a Actor) Elevated() bool {
	return a.Role == model.RoleAdmin
}

// validate checks DTOs against the same binding tags gin uses, so calls that do
// not come through HTTP are held to the same rules.
var validate = func() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}()

func validateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperror.Validation("field %s failed on %s", fe.Field(), fe.Tag())
		}
		return apperror.Validation("%s", err.Error())
	}
	return nil
}

func parseID(kind, id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid %s id %q", kind, id)
	}
	return parsed, nil
}

func parseOptionalID(kind, id string) (*uuid.UUID, error) {
	if id == "" {
		return nil, nil
	}
	parsed, err := parseID(kind, id)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// notFound maps gorm's missing-row error to a NotFound error and wraps the rest.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound("%s not found", what)
	}
	return fmt.Errorf("failed to fetch %s: %w", what, err)
}

func validatePeriod(year, month int) error {
	if year < 2000 || year > 2100 {
		return apperror.Validation("invalid year %d", year)
	}
	if month < 1 || month > 12 {
		return apperror.Validation("invalid month %d", month)
	}
	return nil
}

func periodLabel(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}

func idString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// auditWriter stores audit rows in the caller's transaction, if any. Failures
// are logged and never fail the operation.
type auditWriter struct {
	repo   repository.AuditRepository
	logger *zap.Logger
}

func (w auditWriter) write(ctx context.Context, actor Actor, action, entityID, entityName string, details any) {
	if w.repo == nil {
		return
	}
	detailsJSON, _ := json.Marshal(details)
	entry := model.AuditLog{
		UserID:     actor.UserID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(detailsJSON),
	}
	if err := w.repo.Log(ctx, &entry); err != nil && w.logger != nil {
		w.logger.Warn("Failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func publish(ctx context.Context, pub events.Publisher, log *zap.Logger, e events.Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, e); err != nil && log != nil {
		log.Warn("Failed to publish event", zap.String("type", e.Type), zap.String("entity_id", e.EntityID), zap.Error(err))
	}
}
