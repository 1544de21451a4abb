package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/importer"
	"ecofin/internal/model"
	"ecofin/internal/report"
	"ecofin/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type WorkerStatsFilter struct {
	Status      string
	Citizenship string
}

type WorkerStatistics struct {
	Total         int64                   `json:"total"`
	ByStatus      []repository.GroupCount `json:"by_status"`
	ByCitizenship []repository.GroupCount `json:"by_citizenship"`
	ByClient      []repository.GroupCount `json:"by_client"`
	Statuses      []string                `json:"available_statuses"`
	Citizenships  []string                `json:"available_citizenships"`
}

// Row outcomes of a bulk worker import.
const (
	WorkerRowCreated = "created"
	WorkerRowError   = "error"
)

type WorkerImportRow struct {
	Row     int    `json:"row"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type WorkerImportResult struct {
	Total   int               `json:"total"`
	Created int               `json:"created"`
	Errors  int               `json:"errors"`
	Rows    []WorkerImportRow `json:"rows"`
}

// WorkerTemplateFilename is the download name of the import template.
const WorkerTemplateFilename = "worker_import_template.xlsx"

func (s *workerService) Statistics(ctx context.Context, filter WorkerStatsFilter) (WorkerStatistics, error) {
	stats, err := s.repo.Statistics(ctx, repository.WorkerStatsFilter{
		Status:      filter.Status,
		Citizenship: filter.Citizenship,
	})
	if err != nil {
		return WorkerStatistics{}, fmt.Errorf("failed to count workers: %w", err)
	}
	citizenships, err := s.repo.Citizenships(ctx)
	if err != nil {
		return WorkerStatistics{}, fmt.Errorf("failed to list citizenships: %w", err)
	}

	nonNil := func(g []repository.GroupCount) []repository.GroupCount {
		if g == nil {
			return []repository.GroupCount{}
		}
		return g
	}
	if citizenships == nil {
		citizenships = []string{}
	}
	return WorkerStatistics{
		Total:         stats.Total,
		ByStatus:      nonNil(stats.ByStatus),
		ByCitizenship: nonNil(stats.ByCitizenship),
		ByClient:      nonNil(stats.ByClient),
		Statuses:      model.WorkerStatuses,
		Citizenships:  citizenships,
	}, nil
}

// ImportTemplate renders an xlsx with the register columns and one example row.
func (s *workerService) ImportTemplate() ([]byte, error) {
	table := report.Table{Title: "Workers"}
	example := make([]any, 0, len(importer.WorkerColumns))
	for _, c := range importer.WorkerColumns {
		table.Columns = append(table.Columns, c.Header)
		example = append(example, c.Example)
	}
	table.Rows = [][]any{example}
	return report.Excel(report.Document{Title: "Workers", GeneratedAt: time.Now(), Tables: []report.Table{table}})
}

// ImportWorkers creates one worker per register row. Rows that fail validation
// or repeat an existing passport are reported and skipped; the rest are kept.
func (s *workerService) ImportWorkers(ctx context.Context, actor Actor, filename string, data []byte) (WorkerImportResult, error) {
	if !importer.Supported(filename) {
		return WorkerImportResult{}, apperror.Validation("unsupported file type, expected .xlsx or .csv")
	}
	sheet, err := importer.ReadSheet(filename, bytes.NewReader(data))
	if err != nil {
		return WorkerImportResult{}, err
	}
	rows, err := importer.ParseWorkers(sheet)
	if err != nil {
		return WorkerImportResult{}, err
	}

	res := WorkerImportResult{Total: len(rows), Rows: make([]WorkerImportRow, 0, len(rows))}
	for _, row := range rows {
		worker, err := s.importRow(ctx, row)
		if err != nil {
			if apperror.KindOf(err) == apperror.KindInternal {
				return WorkerImportResult{}, fmt.Errorf("row %d: %w", row.Number, err)
			}
			res.Errors++
			res.Rows = append(res.Rows, WorkerImportRow{Row: row.Number, Status: WorkerRowError, Message: err.Error()})
			continue
		}
		res.Created++
		res.Rows = append(res.Rows, WorkerImportRow{Row: row.Number, Status: WorkerRowCreated, Message: worker.FullName()})
	}

	s.audit.write(ctx, actor, model.ActionImportWorkers, "", filename, map[string]int{
		"total": res.Total, "created": res.Created, "errors": res.Errors,
	})
	s.logger.Info("Worker register imported",
		zap.String("file", filename),
		zap.Int("created", res.Created),
		zap.Int("errors", res.Errors),
	)
	return res, nil
}

func (s *workerService) importRow(ctx context.Context, row importer.WorkerRow) (*model.Worker, error) {
	var missing []string
	for _, f := range []importer.Field{importer.FieldLastName, importer.FieldFirstName, importer.FieldPassport} {
		if row.Get(f) == "" {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return nil, apperror.Validation("missing %s", strings.Join(missing, ", "))
	}

	req := WorkerRequest{
		LastName:             row.Get(importer.FieldLastName),
		FirstName:            row.Get(importer.FieldFirstName),
		Citizenship:          row.Get(importer.FieldCitizenship),
		BirthDate:            row.Get(importer.FieldBirthDate),
		HomeCity:             row.Get(importer.FieldHomeCity),
		OccupationCode:       row.Get(importer.FieldOccupationCode),
		PassportNumber:       row.Get(importer.FieldPassport),
		PassportIssued:       row.Get(importer.FieldPassportIssued),
		PassportExpiry:       row.Get(importer.FieldPassportExpiry),
		ContractNumber:       row.Get(importer.FieldContract),
		Status:               strings.ToUpper(row.Get(importer.FieldStatus)),
		PermitFileNumber:     row.Get(importer.FieldPermitFileNumber),
		PermitCounty:         row.Get(importer.FieldPermitCounty),
		PermitRequestedOn:    row.Get(importer.FieldPermitRequestedOn),
		PermitAppointment:    row.Get(importer.FieldPermitAppointment),
		VisaRequestedOn:      row.Get(importer.FieldVisaRequestedOn),
		VisaInterview:        row.Get(importer.FieldVisaInterview),
		ResidenceFiledOn:     row.Get(importer.FieldResidenceFiledOn),
		ResidenceAppointment: row.Get(importer.FieldResidenceAppointment),
		ResidenceIssued:      row.Get(importer.FieldResidenceIssued),
		ResidenceExpiry:      row.Get(importer.FieldResidenceExpiry),
		PersonalCode:         row.Get(importer.FieldPersonalCode),
		ArrivedOn:            row.Get(importer.FieldArrivedOn),
		ContractIssued:       row.Get(importer.FieldContractIssued),
		Address:              row.Get(importer.FieldAddress),
		Notes:                row.Get(importer.FieldNotes),
	}
	if name := row.Get(importer.FieldClient); name != "" {
		client, err := s.clientRepo.FindByName(ctx, name)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperror.NotFound("client %q not found", name)
			}
			return nil, err
		}
		req.ClientID = client.ID.String()
	}

	worker := &model.Worker{}
	if err := s.apply(ctx, worker, req); err != nil {
		return nil, err
	}
	if err := s.checkPassport(ctx, worker.PassportNumber, nil); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, worker); err != nil {
		return nil, err
	}
	return worker, nil
}
