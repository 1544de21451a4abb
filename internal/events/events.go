// Package events fans billing and import notifications out to Kafka and
// connected websocket clients.
package events

import (
	"context"
	"errors"
	"time"
)

// Event types
const (
	ImportCommitted  = "import.committed"
	PeriodValidated  = "period.validated"
	InvoiceIssued    = "invoice.issued"
	InvoiceCancelled = "invoice.cancelled"
	InvoiceEmailed   = "invoice.emailed"
	PaymentsSynced   = "payments.synced"
)

// Event is a fact worth telling other systems about.
type Event struct {
	Type       string    `json:"type"`
	EntityID   string    `json:"entity_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

// New stamps an event with the current time.
func New(eventType, entityID string, payload any) Event {
	return Event{Type: eventType, EntityID: entityID, OccurredAt: time.Now().UTC(), Payload: payload}
}

// Publisher delivers events. Publishing is fire-and-forget from the caller's
// point of view: callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to every sink and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
