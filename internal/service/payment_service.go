package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/ecofin"
	"ecofin/internal/events"
	"ecofin/internal/metrics"
	"ecofin/internal/model"
	"ecofin/internal/repository"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxSyncErrors = 10

// --- DTOs ---

type SyncResult struct {
	SyncLogID         string   `json:"sync_log_id"`
	WindowStart       string   `json:"window_start"`
	WindowEnd         string   `json:"window_end"`
	PaymentsFound     int      `json:"payments_found"`
	InvoicesUpdated   int      `json:"invoices_updated"`
	Unmatched         int      `json:"unmatched"`
	UnmatchedInvoices []string `json:"unmatched_invoices"`
	Errors            []string `json:"errors"`
	Message           string   `json:"message"`
}

type SyncLogResponse struct {
	ID                string   `json:"id"`
	WindowStart       string   `json:"window_start"`
	WindowEnd         string   `json:"window_end"`
	StartedAt         string   `json:"started_at"`
	FinishedAt        *string  `json:"finished_at"`
	Status            string   `json:"status"`
	PaymentsFound     int      `json:"payments_found"`
	InvoicesUpdated   int      `json:"invoices_updated"`
	Unmatched         int      `json:"unmatched"`
	UnmatchedInvoices []string `json:"unmatched_invoices"`
	ErrorsCount       int      `json:"errors_count"`
	ErrorMessage      string   `json:"error_message,omitempty"`
	TriggeredBy       *string  `json:"triggered_by"`
}

// --- Interface ---

type PaymentService interface {
	SyncPayments(ctx context.Context, actor Actor) (SyncResult, error)
	ListSyncLogs(ctx context.Context, page, limit int) ([]SyncLogResponse, int64, error)
}

type paymentService struct {
	invoices  repository.InvoiceRepository
	syncLogs  repository.SyncLogRepository
	smartbill InvoicingClient
	events    events.Publisher
	metrics   *metrics.Metrics
	audit     auditWriter
	lookback  time.Duration
	logger    *zap.Logger
	now       func() time.Time
	running   sync.Mutex
}

func NewPaymentService(
	invoices repository.InvoiceRepository,
	syncLogs repository.SyncLogRepository,
	auditRepo repository.AuditRepository,
	client InvoicingClient,
	pub events.Publisher,
	m *metrics.Metrics,
	lookback time.Duration,
	log *zap.Logger,
) PaymentService {
	if lookback <= 0 {
		lookback = ecofin.DefaultSyncLookback
	}
	return &paymentService{
		invoices:  invoices,
		syncLogs:  syncLogs,
		smartbill: client,
		events:    pub,
		metrics:   m,
		audit:     auditWriter{repo: auditRepo, logger: log},
		lookback:  lookback,
		logger:    log,
		now:       time.Now,
	}
}

// --- Implementation ---

// SyncPayments pulls payments reported since the last successful run and
// reconciles the matching local invoices. Unmatched payments and per-invoice
// failures are counted, not fatal. Only one run may be active at a time.
func (s *paymentService) SyncPayments(ctx context.Context, actor Actor) (SyncResult, error) {
	if s.smartbill == nil {
		return SyncResult{}, errNotConfigured
	}
	if !s.running.TryLock() {
		return SyncResult{}, apperror.Conflict("a payment sync is already running")
	}
	defer s.running.Unlock()

	now := s.now()
	var lastSuccess *time.Time
	last, err := s.syncLogs.LastSuccess(ctx)
	switch {
	case err == nil:
		lastSuccess = last.FinishedAt
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return SyncResult{}, fmt.Errorf("failed to load last payment sync: %w", err)
	}
	from := ecofin.SyncWindowStart(lastSuccess, now, s.lookback)

	entry := model.PaymentSyncLog{
		WindowStart: from,
		WindowEnd:   now,
		StartedAt:   now,
		Status:      model.SyncInProgress,
		TriggeredBy: actor.UserID,
	}
	if err := s.syncLogs.Create(ctx, &entry); err != nil {
		return SyncResult{}, fmt.Errorf("failed to create payment sync log: %w", err)
	}

	payments, err := s.smartbill.Payments(ctx, from, now)
	if err != nil {
		s.finish(ctx, &entry, model.SyncFailure, model.SyncCounts{}, err.Error())
		if s.metrics != nil {
			s.metrics.UpstreamError("list_payments")
			s.metrics.SyncRun(model.SyncFailure, 0)
		}
		s.logger.Error("Payment sync failed", zap.Error(err))
		return SyncResult{}, err
	}

	type invoiceKey struct{ series, number string }
	seen := map[invoiceKey]bool{}
	counts := model.SyncCounts{PaymentsFound: len(payments)}
	var problems []string

	for _, p := range payments {
		k := invoiceKey{strings.TrimSpace(p.InvoiceSeries), strings.TrimSpace(p.InvoiceNumber)}
		if seen[k] {
			continue
		}
		seen[k] = true

		inv, err := s.invoices.FindByNumber(ctx, k.series, k.number)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			counts.Unmatched++
			counts.UnmatchedInvoices = append(counts.UnmatchedInvoices, strings.TrimSpace(k.series+" "+k.number))
			continue
		}
		if err != nil {
			counts.Errors++
			problems = append(problems, fmt.Sprintf("%s %s: %v", k.series, k.number, err))
			continue
		}

		// The payment list is incremental; the status endpoint has the cumulative paid amount.
		status, err := s.smartbill.PaymentStatus(ctx, k.series, k.number)
		if err != nil {
			counts.Errors++
			problems = append(problems, fmt.Sprintf("%s: %v", inv.DisplayNumber(), err))
			continue
		}

		before := inv.PaidAmount
		inv.ApplyPayment(status.PaidAmount)
		if inv.PaidAmount.Equal(before) {
			continue
		}
		if err := s.invoices.Update(ctx, inv); err != nil {
			counts.Errors++
			problems = append(problems, fmt.Sprintf("%s: %v", inv.DisplayNumber(), err))
			continue
		}
		counts.InvoicesUpdated++
	}

	if len(problems) > maxSyncErrors {
		problems = problems[:maxSyncErrors]
	}
	s.finish(ctx, &entry, model.SyncSuccess, counts, strings.Join(problems, "\n"))
	if s.metrics != nil {
		s.metrics.SyncRun(model.SyncSuccess, counts.InvoicesUpdated)
	}
	s.audit.write(ctx, actor, model.ActionSyncPayments, entry.ID.String(), "payment sync", counts)
	publish(ctx, s.events, s.logger, events.New(events.PaymentsSynced, entry.ID.String(), counts))
	s.logger.Info("Payment sync finished",
		zap.Int("payments_found", counts.PaymentsFound),
		zap.Int("invoices_updated", counts.InvoicesUpdated),
		zap.Int("unmatched", counts.Unmatched),
		zap.Strings("unmatched_invoices", counts.UnmatchedInvoices),
		zap.Int("errors", counts.Errors),
	)

	if problems == nil {
		problems = []string{}
	}
	unmatched := counts.UnmatchedInvoices
	if unmatched == nil {
		unmatched = []string{}
	}
	return SyncResult{
		SyncLogID:         entry.ID.String(),
		WindowStart:       formatTime(from),
		WindowEnd:         formatTime(now),
		PaymentsFound:     counts.PaymentsFound,
		InvoicesUpdated:   counts.InvoicesUpdated,
		Unmatched:         counts.Unmatched,
		UnmatchedInvoices: unmatched,
		Errors:            problems,
		Message:           fmt.Sprintf("sync complete, %d invoices updated", counts.InvoicesUpdated),
	}, nil
}

func (s *paymentService) finish(ctx context.Context, entry *model.PaymentSyncLog, status string, counts model.SyncCounts, message string) {
	finished := s.now()
	entry.FinishedAt = &finished
	entry.Status = status
	entry.Result = datatypes.NewJSONType(counts)
	entry.ErrorMessage = message
	if err := s.syncLogs.Update(ctx, entry); err != nil {
		s.logger.Error("Failed to update payment sync log", zap.String("id", entry.ID.String()), zap.Error(err))
	}
}

func (s *paymentService) ListSyncLogs(ctx context.Context, page, limit int) ([]SyncLogResponse, int64, error) {
	logs, total, err := s.syncLogs.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payment sync logs: %w", err)
	}
	res := make([]SyncLogResponse, 0, len(logs))
	for _, l := range logs {
		c := l.Result.Data()
		res = append(res, SyncLogResponse{
			ID:                l.ID.String(),
			WindowStart:       formatTime(l.WindowStart),
			WindowEnd:         formatTime(l.WindowEnd),
			StartedAt:         formatTime(l.StartedAt),
			FinishedAt:        formatTimePtr(l.FinishedAt),
			Status:            l.Status,
			PaymentsFound:     c.PaymentsFound,
			InvoicesUpdated:   c.InvoicesUpdated,
			Unmatched:         c.Unmatched,
			UnmatchedInvoices: c.UnmatchedInvoices,
			ErrorsCount:       c.Errors,
			ErrorMessage:      l.ErrorMessage,
			TriggeredBy:       idString(l.TriggeredBy),
		})
	}
	return res, total, nil
}
