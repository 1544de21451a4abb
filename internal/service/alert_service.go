package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/mailer"
	"ecofin/internal/model"
	"ecofin/internal/repository"

	"go.uber.org/zap"
)

// Appointment kinds an alert can be about.
const (
	AppointmentWorkPermit = "work_permit"
	AppointmentVisa       = "visa_interview"
	AppointmentResidence  = "residence_permit"
)

type AlertOptions struct {
	// DaysAhead selects appointments on today + DaysAhead. Negative values are rejected.
	DaysAhead int
	// DryRun lists the alerts without sending them.
	DryRun bool
	// TestEmail, when set, receives every alert instead of the real recipients.
	TestEmail string
}

type AppointmentAlert struct {
	WorkerID  string `json:"worker_id"`
	Worker    string `json:"worker"`
	Kind      string `json:"kind"`
	Date      string `json:"date"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Sent      bool   `json:"sent"`
	Error     string `json:"error,omitempty"`
}

type AlertResult struct {
	Date   string             `json:"date"`
	DryRun bool               `json:"dry_run"`
	Sent   int                `json:"sent"`
	Errors int                `json:"errors"`
	Alerts []AppointmentAlert `json:"alerts"`
}

type AlertService interface {
	SendAppointmentAlerts(ctx context.Context, actor Actor, opts AlertOptions) (AlertResult, error)
}

type alertService struct {
	workers   repository.WorkerRepository
	mailer    mailer.Mailer
	recipient string
	audit     auditWriter
	logger    *zap.Logger
	now       func() time.Time
}

// NewAlertService builds the reminder sender. recipient receives alerts for
// workers without an expert; m may be nil, which only allows dry runs.
func NewAlertService(workers repository.WorkerRepository, m mailer.Mailer, recipient string, auditRepo repository.AuditRepository, log *zap.Logger) AlertService {
	return &alertService{
		workers:   workers,
		mailer:    m,
		recipient: strings.TrimSpace(recipient),
		audit:     auditWriter{repo: auditRepo, logger: log},
		logger:    log,
		now:       time.Now,
	}
}

// SendAppointmentAlerts emails the expert of every worker with a work permit,
// visa interview or residence permit appointment DaysAhead days from today.
// One failed email does not stop the others.
func (s *alertService) SendAppointmentAlerts(ctx context.Context, actor Actor, opts AlertOptions) (AlertResult, error) {
	if opts.DaysAhead < 0 {
		return AlertResult{}, apperror.Validation("days ahead must not be negative")
	}
	if !opts.DryRun && s.mailer == nil {
		return AlertResult{}, apperror.Wrap(apperror.KindValidation, mailer.ErrNotConfigured, "email is not configured")
	}

	now := s.now()
	target := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, opts.DaysAhead)
	workers, err := s.workers.WithAppointmentOn(ctx, target)
	if err != nil {
		return AlertResult{}, fmt.Errorf("failed to load appointments: %w", err)
	}

	res := AlertResult{Date: target.Format(time.DateOnly), DryRun: opts.DryRun, Alerts: []AppointmentAlert{}}
	for _, w := range workers {
		for _, kind := range appointmentsOn(w, target) {
			subject, body := appointmentEmail(w, kind, target)
			alert := AppointmentAlert{
				WorkerID:  w.ID.String(),
				Worker:    w.FullName(),
				Kind:      kind,
				Date:      res.Date,
				Recipient: s.recipientFor(w, opts.TestEmail),
				Subject:   subject,
			}
			switch {
			case alert.Recipient == "":
				alert.Error = "no recipient: assign an expert or set alerts.recipient"
			case opts.DryRun:
				// listed only
			default:
				err := s.mailer.Send(ctx, mailer.Message{To: []string{alert.Recipient}, Subject: subject, Body: body})
				if err != nil {
					alert.Error = err.Error()
					s.logger.Warn("Failed to send appointment alert",
						zap.String("worker_id", alert.WorkerID),
						zap.String("kind", kind),
						zap.Error(err),
					)
				} else {
					alert.Sent = true
				}
			}
			if alert.Sent {
				res.Sent++
			}
			if alert.Error != "" {
				res.Errors++
			}
			res.Alerts = append(res.Alerts, alert)
		}
	}

	if !opts.DryRun {
		s.audit.write(ctx, actor, model.ActionAppointmentMail, "", res.Date, map[string]int{"sent": res.Sent, "errors": res.Errors})
	}
	s.logger.Info("Appointment alerts processed",
		zap.String("date", res.Date),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("alerts", len(res.Alerts)),
		zap.Int("sent", res.Sent),
		zap.Int("errors", res.Errors),
	)
	return res, nil
}

func (s *alertService) recipientFor(w model.Worker, testEmail string) string {
	if e := strings.TrimSpace(testEmail); e != "" {
		return e
	}
	if w.Expert != nil && w.Expert.Email != "" {
		return w.Expert.Email
	}
	return s.recipient
}

func appointmentsOn(w model.Worker, day time.Time) []string {
	var kinds []string
	if sameDay(w.PermitAppointment, day) {
		kinds = append(kinds, AppointmentWorkPermit)
	}
	if sameDay(w.VisaInterview, day) {
		kinds = append(kinds, AppointmentVisa)
	}
	if sameDay(w.ResidenceAppointment, day) {
		kinds = append(kinds, AppointmentResidence)
	}
	return kinds
}

func sameDay(t *time.Time, day time.Time) bool {
	if t == nil {
		return false
	}
	y1, m1, d1 := t.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func appointmentEmail(w model.Worker, kind string, day time.Time) (subject, body string) {
	date := day.Format("02.01.2006")
	var b strings.Builder
	fmt.Fprintf(&b, "Buna ziua,\n\n")

	switch kind {
	case AppointmentWorkPermit:
		subject = fmt.Sprintf("ATENTIE Data Programare WP - %s - %s", w.FullName(), date)
		fmt.Fprintf(&b, "Lucratorul %s are programare pentru avizul de munca la data de %s.\n\n", w.FullName(), date)
		fmt.Fprintf(&b, "Pasaport: %s\nCetatenie: %s\nJudet WP: %s\nDosar WP: %s\n", w.PassportNumber, w.Citizenship, w.PermitCounty, w.PermitFileNumber)
	case AppointmentVisa:
		subject = fmt.Sprintf("ATENTIE Data Interviu Viza - %s - %s", w.FullName(), date)
		fmt.Fprintf(&b, "Lucratorul %s are interviul pentru viza la data de %s.\n\n", w.FullName(), date)
		fmt.Fprintf(&b, "Pasaport: %s\nCetatenie: %s\nStatus: %s\n", w.PassportNumber, w.Citizenship, w.Status)
	case AppointmentResidence:
		subject = fmt.Sprintf("ATENTIE Data Programare PS - %s - %s", w.FullName(), date)
		fmt.Fprintf(&b, "Lucratorul %s are programare pentru permisul de sedere la data de %s.\n\n", w.FullName(), date)
		fmt.Fprintf(&b, "Pasaport: %s\nCetatenie: %s\nCNP: %s\n", w.PassportNumber, w.Citizenship, w.PersonalCode)
	}
	if w.Client != nil {
		fmt.Fprintf(&b, "Client: %s\n", w.Client.Name)
	}
	b.WriteString("\nAcest mesaj a fost generat automat de Eco-Fin.\n")
	return subject, b.String()
}
