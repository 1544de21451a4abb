package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/events"
	"ecofin/internal/importer"
	"ecofin/internal/metrics"
	"ecofin/internal/model"
	"ecofin/internal/repository"
	"ecofin/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type UploadRequest struct {
	Year     int    `binding:"required"`
	Month    int    `binding:"required,min=1,max=12"`
	FileName string `binding:"required"`
	Data     []byte `binding:"required"`
}

type ImportedRowResponse struct {
	ID                   string  `json:"id"`
	RowNumber            int     `json:"row_number"`
	ContractNumber       string  `json:"contract_number"`
	PassportNumber       string  `json:"passport_number"`
	LastName             string  `json:"last_name"`
	FirstName            string  `json:"first_name"`
	HoursWorked          string  `json:"hours_worked"`
	GrossSalary          string  `json:"gross_salary"`
	EmployerContribution string  `json:"employer_contribution"`
	Brut1                string  `json:"brut1"`
	NetSalary            string  `json:"net_salary"`
	Deductions           string  `json:"deductions"`
	RemainingPay         string  `json:"remaining_pay"`
	Status               string  `json:"status"`
	WorkerID             *string `json:"worker_id"`
	WorkerName           string  `json:"worker_name,omitempty"`
	ClientID             *string `json:"client_id"`
	ClientName           string  `json:"client_name,omitempty"`
	ErrorMessage         string  `json:"error_message,omitempty"`
}

type BatchResponse struct {
	ID            string                `json:"id"`
	Year          int                   `json:"year"`
	Month         int                   `json:"month"`
	FileName      string                `json:"file_name"`
	Status        string                `json:"status"`
	TotalRows     int                   `json:"total_rows"`
	MatchedRows   int                   `json:"matched_rows"`
	ErrorRows     int                   `json:"error_rows"`
	ProcessedRows int                   `json:"processed_rows"`
	IndirectShare string                `json:"indirect_share"`
	Errors        []model.RowIssue      `json:"errors"`
	Warnings      []string              `json:"warnings,omitempty"`
	ProcessedAt   *string               `json:"processed_at"`
	CreatedAt     string                `json:"created_at"`
	Rows          []ImportedRowResponse `json:"rows,omitempty"`
}

type BatchListFilter struct {
	Year   int
	Month  int
	Status string
	Page   int
	Limit  int
}

// --- Interface ---

type ImportService interface {
	Upload(ctx context.Context, actor Actor, req UploadRequest) (BatchResponse, error)
	ListBatches(ctx context.Context, filter BatchListFilter) ([]BatchResponse, int64, error)
	GetBatch(ctx context.Context, id string) (BatchResponse, error)
	Commit(ctx context.Context, actor Actor, id string) (BatchResponse, error)
	Cancel(ctx context.Context, actor Actor, id string) (BatchResponse, error)
}

type importService struct {
	imports  repository.ImportRepository
	workers  repository.WorkerRepository
	clients  repository.ClientRepository
	records  repository.RecordRepository
	settings repository.SettingsRepository
	tx       repository.TransactionManager
	store    storage.Store
	events   events.Publisher
	metrics  *metrics.Metrics
	audit    auditWriter
	logger   *zap.Logger
}

type ImportDeps struct {
	Imports  repository.ImportRepository
	Workers  repository.WorkerRepository
	Clients  repository.ClientRepository
	Records  repository.RecordRepository
	Settings repository.SettingsRepository
	Audit    repository.AuditRepository
	Tx       repository.TransactionManager
	Store    storage.Store
	Events   events.Publisher
	Metrics  *metrics.Metrics
}

func NewImportService(d ImportDeps, log *zap.Logger) ImportService {
	return &importService{
		imports:  d.Imports,
		workers:  d.Workers,
		clients:  d.Clients,
		records:  d.Records,
		settings: d.Settings,
		tx:       d.Tx,
		store:    d.Store,
		events:   d.Events,
		metrics:  d.Metrics,
		audit:    auditWriter{repo: d.Audit, logger: log},
		logger:   log,
	}
}

// --- Implementation ---

// Upload parses the spreadsheet, matches every row to a worker and stores the
// batch for preview. Nothing is written to processed records yet.
func (s *importService) Upload(ctx context.Context, actor Actor, req UploadRequest) (BatchResponse, error) {
	if err := validateStruct(req); err != nil {
		return BatchResponse{}, err
	}
	if err := validatePeriod(req.Year, req.Month); err != nil {
		return BatchResponse{}, err
	}
	if !importer.Supported(req.FileName) {
		return BatchResponse{}, apperror.Validation("unsupported file type %q, expected .xlsx or .csv", filepath.Ext(req.FileName))
	}

	sheet, err := importer.ReadSheet(req.FileName, bytes.NewReader(req.Data))
	if err != nil {
		return BatchResponse{}, err
	}
	parsed, err := importer.Parse(sheet)
	if err != nil {
		return BatchResponse{}, err
	}

	batch := model.ImportBatch{
		ID:         uuid.New(),
		Year:       req.Year,
		Month:      req.Month,
		FileName:   filepath.Base(req.FileName),
		Status:     model.BatchPreview,
		TotalRows:  len(parsed),
		UploadedBy: actor.UserID,
	}

	var rowErrors []model.RowIssue
	seen := make(map[uuid.UUID]int)
	for _, p := range parsed {
		row := s.matchRow(ctx, batch, p)
		if row.Status == model.RowMatched {
			if first, dup := seen[*row.WorkerID]; dup {
				row.Status = model.RowError
				row.ErrorMessage = fmt.Sprintf("duplicate row for worker, already on row %d", first)
			} else {
				seen[*row.WorkerID] = row.RowNumber
			}
		}
		if row.Status == model.RowMatched {
			batch.MatchedRows++
		} else {
			batch.ErrorRows++
			rowErrors = append(rowErrors, model.RowIssue{RowNumber: row.RowNumber, Message: row.ErrorMessage})
		}
		batch.Rows = append(batch.Rows, row)
	}
	batch.ErrorDetails = mustJSON(rowErrors)

	var warnings []string
	if settings, err := s.settings.FindByPeriod(ctx, req.Year, req.Month); err == nil {
		batch.IndirectShare = settings.PeriodCosts(batch.MatchedRows).IndirectExpensesShare
	} else if errors.Is(err, gorm.ErrRecordNotFound) {
		warnings = append(warnings, fmt.Sprintf("monthly settings for %s are not set; commit will be refused until they are", periodLabel(req.Year, req.Month)))
	} else {
		return BatchResponse{}, fmt.Errorf("failed to load monthly settings: %w", err)
	}

	if s.store != nil {
		key := fmt.Sprintf("imports/%04d/%02d/%s-%s", req.Year, req.Month, batch.ID, batch.FileName)
		if err := s.store.Put(ctx, key, uploadContentType(batch.FileName), req.Data); err != nil {
			s.logger.Warn("Failed to store uploaded payroll file", zap.String("key", key), zap.Error(err))
		} else {
			batch.FileKey = key
		}
	}

	if err := s.imports.CreateBatch(ctx, &batch); err != nil {
		return BatchResponse{}, fmt.Errorf("failed to save import batch: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ImportRows(model.RowMatched, batch.MatchedRows)
		s.metrics.ImportRows(model.RowError, batch.ErrorRows)
	}
	s.audit.write(ctx, actor, model.ActionUploadImport, batch.ID.String(), batch.FileName, map[string]any{
		"period": periodLabel(batch.Year, batch.Month), "total_rows": batch.TotalRows,
		"matched_rows": batch.MatchedRows, "error_rows": batch.ErrorRows,
	})

	res := toBatchResponse(batch, true)
	res.Warnings = append(warnings, zeroHoursWarnings(batch.Rows)...)
	return res, nil
}

// matchRow resolves the worker by contract number first, then by passport.
func (s *importService) matchRow(ctx context.Context, batch model.ImportBatch, p importer.Row) model.ImportedRow {
	row := model.ImportedRow{
		BatchID:              batch.ID,
		RowNumber:            p.Number,
		Year:                 batch.Year,
		Month:                batch.Month,
		ContractNumber:       p.ContractNumber,
		PassportNumber:       p.PassportNumber,
		LastName:             p.LastName,
		FirstName:            p.FirstName,
		GrossSalary:          p.GrossSalary,
		HoursWorked:          p.HoursWorked,
		Brut1:                p.Brut1,
		NetSalary:            p.NetSalary,
		Deductions:           p.Deductions,
		RemainingPay:         p.RemainingPay,
		EmployerContribution: p.EmployerContribution,
		Status:               model.RowError,
	}
	if p.Err != "" {
		row.ErrorMessage = p.Err
		return row
	}

	worker, err := s.findWorker(ctx, p.ContractNumber, p.PassportNumber)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row.ErrorMessage = "worker not found"
		return row
	case err != nil:
		s.logger.Error("Worker lookup failed during import", zap.Int("row", p.Number), zap.Error(err))
		row.ErrorMessage = "worker lookup failed"
		return row
	}

	row.WorkerID = &worker.ID
	if worker.ClientID == nil {
		row.ErrorMessage = fmt.Sprintf("worker %s has no client assigned", worker.FullName())
		return row
	}
	row.ClientID = worker.ClientID
	row.Status = model.RowMatched
	return row
}

func (s *importService) findWorker(ctx context.Context, contract, passport string) (*model.Worker, error) {
	if contract != "" {
		w, err := s.workers.FindByContractNumber(ctx, contract)
		if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) {
			return w, err
		}
	}
	if passport != "" {
		return s.workers.FindByPassport(ctx, passport)
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *importService) ListBatches(ctx context.Context, f BatchListFilter) ([]BatchResponse, int64, error) {
	batches, total, err := s.imports.ListBatches(ctx, repository.BatchFilter{
		Year: f.Year, Month: f.Month, Status: f.Status, Page: f.Page, Limit: f.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list import batches: %w", err)
	}
	res := make([]BatchResponse, 0, len(batches))
	for _, b := range batches {
		res = append(res, toBatchResponse(b, false))
	}
	return res, total, nil
}

func (s *importService) GetBatch(ctx context.Context, id string) (BatchResponse, error) {
	batchID, err := parseID("batch", id)
	if err != nil {
		return BatchResponse{}, err
	}
	batch, err := s.imports.FindBatchWithRows(ctx, batchID)
	if err != nil {
		return BatchResponse{}, notFound(err, "import batch")
	}
	res := toBatchResponse(*batch, true)
	res.Warnings = zeroHoursWarnings(batch.Rows)
	return res, nil
}

// Commit turns every matched row into a processed record inside one
// transaction. The indirect share is computed once from the matched row count
// before any record is written. Any failure leaves no record behind.
func (s *importService) Commit(ctx context.Context, actor Actor, id string) (BatchResponse, error) {
	batchID, err := parseID("batch", id)
	if err != nil {
		return BatchResponse{}, err
	}

	var committed *model.ImportBatch
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		batch, err := s.imports.FindBatchWithRows(txCtx, batchID)
		if err != nil {
			return notFound(err, "import batch")
		}
		if batch.Status != model.BatchPreview && batch.Status != model.BatchFailed {
			return apperror.Conflict("import batch is %s and cannot be committed", batch.Status)
		}

		settings, err := s.settings.FindByPeriod(txCtx, batch.Year, batch.Month)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.Validation("monthly settings for %s must be set before committing", periodLabel(batch.Year, batch.Month))
			}
			return fmt.Errorf("failed to load monthly settings: %w", err)
		}
		if settings.Locked && !actor.Elevated() {
			return apperror.ImmutableRecord("period %s is locked", periodLabel(batch.Year, batch.Month))
		}

		var valid []model.ImportedRow
		seen := make(map[uuid.UUID]int)
		for _, row := range batch.Rows {
			if !row.Valid() {
				continue
			}
			if first, dup := seen[*row.WorkerID]; dup {
				return apperror.Validation("rows %d and %d belong to the same worker", first, row.RowNumber)
			}
			seen[*row.WorkerID] = row.RowNumber
			valid = append(valid, row)
		}
		if len(valid) == 0 {
			return apperror.Validation("import batch has no matched rows")
		}
		costs := settings.PeriodCosts(len(valid))

		rowIDs := make([]uuid.UUID, 0, len(valid))
		for _, row := range valid {
			if err := s.upsertRecord(txCtx, actor, batch, row, costs.IndirectExpensesShare, costs.VacationCost); err != nil {
				return err
			}
			rowIDs = append(rowIDs, row.ID)
		}
		if err := s.imports.MarkRowsProcessed(txCtx, rowIDs); err != nil {
			return fmt.Errorf("failed to mark rows processed: %w", err)
		}

		now := time.Now()
		batch.Status = model.BatchProcessed
		batch.ProcessedRows = len(valid)
		batch.IndirectShare = costs.IndirectExpensesShare
		batch.ProcessedAt = &now
		if err := s.imports.UpdateBatch(txCtx, batch); err != nil {
			return fmt.Errorf("failed to update import batch: %w", err)
		}
		for i := range batch.Rows {
			if batch.Rows[i].Valid() {
				batch.Rows[i].Status = model.RowProcessed
			}
		}
		committed = batch
		return nil
	})
	if err != nil {
		s.markFailed(ctx, batchID, err)
		return BatchResponse{}, err
	}

	if s.metrics != nil {
		s.metrics.ImportRows(model.RowProcessed, committed.ProcessedRows)
	}
	s.audit.write(ctx, actor, model.ActionCommitImport, committed.ID.String(), committed.FileName, map[string]any{
		"period": periodLabel(committed.Year, committed.Month), "processed_rows": committed.ProcessedRows,
		"indirect_share": money(committed.IndirectShare),
	})
	publish(ctx, s.events, s.logger, events.New(events.ImportCommitted, committed.ID.String(), map[string]any{
		"year": committed.Year, "month": committed.Month, "processed_rows": committed.ProcessedRows,
	}))
	return toBatchResponse(*committed, true), nil
}

// upsertRecord builds or replaces the record for the row's worker, client and
// period. A validated record blocks the whole commit.
func (s *importService) upsertRecord(ctx context.Context, actor Actor, batch *model.ImportBatch, row model.ImportedRow, share, vacation decimal.Decimal) error {
	client := row.Client
	if client == nil {
		c, err := s.clients.FindByID(ctx, *row.ClientID)
		if err != nil {
			return notFound(err, "client")
		}
		client = c
	}

	rec, err := s.records.FindByKey(ctx, *row.WorkerID, *row.ClientID, batch.Year, batch.Month)
	exists := err == nil
	switch {
	case exists && rec.Validated:
		return apperror.ImmutableRecord("row %d: record for %s is validated and cannot be replaced", row.RowNumber, periodLabel(batch.Year, batch.Month))
	case !exists && !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("failed to look up existing record: %w", err)
	case !exists:
		rec = &model.ProcessedRecord{
			WorkerID:  *row.WorkerID,
			ClientID:  *row.ClientID,
			Year:      batch.Year,
			Month:     batch.Month,
			CreatedBy: actor.UserID,
		}
	}

	rowID := row.ID
	rec.ImportBatchID = &batch.ID
	rec.ImportedRowID = &rowID
	rec.ContractNumber = row.ContractNumber
	rec.GrossSalary = row.GrossSalary
	rec.EmployerContribution = row.EmployerContribution
	rec.HoursWorked = row.HoursWorked
	rec.Brut1 = row.Brut1
	rec.NetSalary = row.NetSalary
	rec.Deductions = row.Deductions
	rec.RemainingPay = row.RemainingPay
	rec.SnapshotTariff(*client)
	rec.IndirectExpensesShare = share
	rec.VacationCost = vacation

	if exists {
		err = s.records.Update(ctx, rec)
	} else {
		err = s.records.Create(ctx, rec)
	}
	if err != nil {
		return fmt.Errorf("failed to save record for row %d: %w", row.RowNumber, err)
	}
	return nil
}

// markFailed records a failed commit on the batch so it can be inspected and
// retried. Lookup and state errors leave the batch as it was.
func (s *importService) markFailed(ctx context.Context, batchID uuid.UUID, cause error) {
	if errors.Is(cause, apperror.ErrNotFound) || errors.Is(cause, apperror.ErrConflict) {
		return
	}
	batch, err := s.imports.FindBatch(ctx, batchID)
	if err != nil {
		return
	}
	var details []model.RowIssue
	_ = json.Unmarshal(batch.ErrorDetails, &details)
	details = append(details, model.RowIssue{Message: "commit failed: " + cause.Error()})
	batch.ErrorDetails = mustJSON(details)
	batch.Status = model.BatchFailed
	if err := s.imports.UpdateBatch(ctx, batch); err != nil {
		s.logger.Warn("Failed to mark import batch as failed", zap.String("batch_id", batchID.String()), zap.Error(err))
	}
}

func (s *importService) Cancel(ctx context.Context, actor Actor, id string) (BatchResponse, error) {
	batchID, err := parseID("batch", id)
	if err != nil {
		return BatchResponse{}, err
	}
	batch, err := s.imports.FindBatch(ctx, batchID)
	if err != nil {
		return BatchResponse{}, notFound(err, "import batch")
	}
	if batch.Status != model.BatchPreview && batch.Status != model.BatchFailed {
		return BatchResponse{}, apperror.Conflict("import batch is %s and cannot be cancelled", batch.Status)
	}
	batch.Status = model.BatchCancelled
	if err := s.imports.UpdateBatch(ctx, batch); err != nil {
		return BatchResponse{}, fmt.Errorf("failed to cancel import batch: %w", err)
	}
	s.audit.write(ctx, actor, model.ActionCancelImport, batch.ID.String(), batch.FileName, nil)
	return toBatchResponse(*batch, false), nil
}

func zeroHoursWarnings(rows []model.ImportedRow) []string {
	var warnings []string
	for _, r := range rows {
		if r.Status != model.RowError && r.HoursWorked.IsZero() {
			warnings = append(warnings, fmt.Sprintf("row %d: zero hours worked", r.RowNumber))
		}
	}
	return warnings
}

func uploadContentType(name string) string {
	if filepath.Ext(name) == ".csv" {
		return "text/csv"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return b
}

func toBatchResponse(b model.ImportBatch, withRows bool) BatchResponse {
	res := BatchResponse{
		ID:            b.ID.String(),
		Year:          b.Year,
		Month:         b.Month,
		FileName:      b.FileName,
		Status:        b.Status,
		TotalRows:     b.TotalRows,
		MatchedRows:   b.MatchedRows,
		ErrorRows:     b.ErrorRows,
		ProcessedRows: b.ProcessedRows,
		IndirectShare: money(b.IndirectShare),
		Errors:        []model.RowIssue{},
		ProcessedAt:   formatTimePtr(b.ProcessedAt),
		CreatedAt:     formatTime(b.CreatedAt),
	}
	if len(b.ErrorDetails) > 0 {
		_ = json.Unmarshal(b.ErrorDetails, &res.Errors)
		if res.Errors == nil {
			res.Errors = []model.RowIssue{}
		}
	}
	if withRows {
		res.Rows = make([]ImportedRowResponse, 0, len(b.Rows))
		for _, r := range b.Rows {
			item := ImportedRowResponse{
				ID:                   r.ID.String(),
				RowNumber:            r.RowNumber,
				ContractNumber:       r.ContractNumber,
				PassportNumber:       r.PassportNumber,
				LastName:             r.LastName,
				FirstName:            r.FirstName,
				HoursWorked:          money(r.HoursWorked),
				GrossSalary:          money(r.GrossSalary),
				EmployerContribution: money(r.EmployerContribution),
				Brut1:                money(r.Brut1),
				NetSalary:            money(r.NetSalary),
				Deductions:           money(r.Deductions),
				RemainingPay:         money(r.RemainingPay),
				Status:               r.Status,
				WorkerID:             idString(r.WorkerID),
				ClientID:             idString(r.ClientID),
				ErrorMessage:         r.ErrorMessage,
			}
			if r.Worker != nil {
				item.WorkerName = r.Worker.FullName()
			}
			if r.Client != nil {
				item.ClientName = r.Client.Name
			}
			res.Rows = append(res.Rows, item)
		}
	}
	return res
}
