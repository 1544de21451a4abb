package service

import (
	"context"
	"errors"
	"testing"

	"ecofin/internal/apperror"
	"ecofin/internal/events"
	"ecofin/internal/metrics"
	"ecofin/internal/model"
	"ecofin/internal/repository"
	"ecofin/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payrollCSV = "Contract;Pasaport;Nume;Prenume;Ore;Salariu;CAM\n" +
	"CIM-1;;Perera;Kasun;160;4000;90\n" +
	";P2;Silva;Nimal;100;3000;70\n" +
	";PX;Unknown;Person;10;1000;20\n" +
	";P4;Fernando;Ruwan;120;3500;80\n"

type importFixture struct {
	env    *testEnv
	svc    ImportService
	pub    *recordingPublisher
	client *model.Client
	w1, w2 *model.Worker
}

func newImportFixture(t *testing.T) *importFixture {
	t.Helper()
	env := newEnv(t)
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	pub := &recordingPublisher{}

	client := env.seedClient(t, "acme", "50")
	f := &importFixture{
		env:    env,
		pub:    pub,
		client: client,
		w1:     env.seedWorker(t, client, "P1", "CIM-1"),
		w2:     env.seedWorker(t, client, "P2", ""),
	}
	env.seedWorker(t, nil, "P4", "")
	f.svc = NewImportService(ImportDeps{
		Imports:  env.imports,
		Workers:  env.workers,
		Clients:  env.clients,
		Records:  env.records,
		Settings: env.settings,
		Audit:    env.audit,
		Tx:       env.tx,
		Store:    store,
		Events:   pub,
		Metrics:  metrics.New(),
	}, testLogger)
	return f
}

func (f *importFixture) upload(t *testing.T) BatchResponse {
	t.Helper()
	batch, err := f.svc.Upload(context.Background(), managerActor, UploadRequest{
		Year: 2025, Month: 3, FileName: "pontaj-martie.csv", Data: []byte(payrollCSV),
	})
	require.NoError(t, err)
	return batch
}

func TestImportService_UploadMatchesByContractThenPassport(t *testing.T) {
	f := newImportFixture(t)
	f.env.seedSettings(t, 2025, 3, "1000", "150")

	batch := f.upload(t)
	assert.Equal(t, model.BatchPreview, batch.Status)
	assert.Equal(t, 4, batch.TotalRows)
	assert.Equal(t, 2, batch.MatchedRows)
	assert.Equal(t, 2, batch.ErrorRows)
	assert.Equal(t, "500.00", batch.IndirectShare)
	require.Len(t, batch.Errors, 2)
	assert.Equal(t, 4, batch.Errors[0].RowNumber)
	assert.Equal(t, "worker not found", batch.Errors[0].Message)
	assert.Contains(t, batch.Errors[1].Message, "no client assigned")

	require.Len(t, batch.Rows, 4)
	require.NotNil(t, batch.Rows[0].WorkerID)
	assert.Equal(t, f.w1.ID.String(), *batch.Rows[0].WorkerID)
	require.NotNil(t, batch.Rows[1].WorkerID)
	assert.Equal(t, f.w2.ID.String(), *batch.Rows[1].WorkerID)

	count, err := countRecords(f.env)
	require.NoError(t, err)
	assert.Zero(t, count, "upload must not write processed records")
}

func TestImportService_UploadWarnsWithoutSettings(t *testing.T) {
	f := newImportFixture(t)

	batch := f.upload(t)
	assert.Equal(t, "0.00", batch.IndirectShare)
	require.NotEmpty(t, batch.Warnings)
	assert.Contains(t, batch.Warnings[0], "2025-03")
}

func TestImportService_UploadRejectsBadInput(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, managerActor, UploadRequest{Year: 2025, Month: 3, FileName: "pontaj.pdf", Data: []byte("x")})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = f.svc.Upload(ctx, managerActor, UploadRequest{Year: 2025, Month: 13, FileName: "p.csv", Data: []byte(payrollCSV)})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = f.svc.Upload(ctx, managerActor, UploadRequest{Year: 2025, Month: 3, FileName: "p.csv", Data: []byte("Nume;Prenume\nA;B\n")})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, total, err := f.svc.ListBatches(ctx, BatchListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestImportService_CommitSplitsIndirectExpenses(t *testing.T) {
	f := newImportFixture(t)
	f.env.seedSettings(t, 2025, 3, "1000", "150")
	ctx := context.Background()

	batch := f.upload(t)
	committed, err := f.svc.Commit(ctx, managerActor, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchProcessed, committed.Status)
	assert.Equal(t, 2, committed.ProcessedRows)
	assert.Equal(t, "500.00", committed.IndirectShare)
	assert.NotNil(t, committed.ProcessedAt)

	rec, err := f.env.records.FindByKey(ctx, f.w1.ID, f.client.ID, 2025, 3)
	require.NoError(t, err)
	assert.True(t, rec.IndirectExpensesShare.Equal(dec("500")))
	assert.True(t, rec.VacationCost.Equal(dec("150")))
	assert.True(t, rec.FullSalaryCost.Equal(dec("4090")))
	// 4090 + 300 + 200 + 100 + 500 + 150
	assert.True(t, rec.TotalWorkerCost.Equal(dec("5340")), rec.TotalWorkerCost.String())
	assert.True(t, rec.GeneratedRevenue.Equal(dec("8000")))
	assert.True(t, rec.Profitability.Equal(dec("2660")))
	require.NotNil(t, rec.ImportBatchID)
	assert.Equal(t, batch.ID, rec.ImportBatchID.String())

	assert.Contains(t, f.pub.types(), events.ImportCommitted)

	_, err = f.svc.Commit(ctx, managerActor, batch.ID)
	assert.True(t, errors.Is(err, apperror.ErrConflict))
}

func TestImportService_CommitRequiresSettings(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	batch := f.upload(t)
	_, err := f.svc.Commit(ctx, managerActor, batch.ID)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	count, err := countRecords(f.env)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestImportService_CommitRollsBackOnValidatedRecord(t *testing.T) {
	f := newImportFixture(t)
	f.env.seedSettings(t, 2025, 3, "1000", "150")
	ctx := context.Background()

	// w2 already has a validated record for the period.
	locked := f.env.seedRecord(t, f.w2, f.client, 2025, 3, "90")
	_, err := f.env.records.ValidatePeriod(ctx, 2025, 3, &adminID, locked.CreatedAt)
	require.NoError(t, err)

	batch := f.upload(t)
	_, err = f.svc.Commit(ctx, managerActor, batch.ID)
	assert.True(t, errors.Is(err, apperror.ErrImmutableRecord))

	_, err = f.env.records.FindByKey(ctx, f.w1.ID, f.client.ID, 2025, 3)
	assert.Error(t, err, "no record may survive a failed commit")

	kept, err := f.env.records.FindByID(ctx, locked.ID)
	require.NoError(t, err)
	assert.True(t, kept.HoursWorked.Equal(dec("90")))

	failed, err := f.svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchFailed, failed.Status)
	assert.Contains(t, failed.Errors[len(failed.Errors)-1].Message, "commit failed")
}

func TestImportService_DuplicateWorkerRowIsRejected(t *testing.T) {
	f := newImportFixture(t)
	f.env.seedSettings(t, 2025, 3, "1000", "150")
	ctx := context.Background()

	// Same worker twice, once by contract and once by passport.
	csv := "Contract;Pasaport;Nume;Prenume;Ore;Salariu;CAM\n" +
		"CIM-1;;Perera;Kasun;160;4000;90\n" +
		";P1;Perera;Kasun;20;500;10\n"
	batch, err := f.svc.Upload(ctx, managerActor, UploadRequest{Year: 2025, Month: 3, FileName: "dup.csv", Data: []byte(csv)})
	require.NoError(t, err)
	assert.Equal(t, 1, batch.MatchedRows)
	assert.Equal(t, 1, batch.ErrorRows)
	assert.Equal(t, "1000.00", batch.IndirectShare)
	require.Len(t, batch.Errors, 1)
	assert.Equal(t, 3, batch.Errors[0].RowNumber)
	assert.Contains(t, batch.Errors[0].Message, "duplicate row for worker")
	assert.Equal(t, model.RowError, batch.Rows[1].Status)

	committed, err := f.svc.Commit(ctx, managerActor, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, committed.ProcessedRows)

	rec, err := f.env.records.FindByKey(ctx, f.w1.ID, f.client.ID, 2025, 3)
	require.NoError(t, err)
	assert.True(t, rec.HoursWorked.Equal(dec("160")))
	assert.True(t, rec.GrossSalary.Equal(dec("4000")))
	assert.True(t, rec.IndirectExpensesShare.Equal(dec("1000")))
}

func TestImportService_Cancel(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	batch := f.upload(t)
	cancelled, err := f.svc.Cancel(ctx, managerActor, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchCancelled, cancelled.Status)

	_, err = f.svc.Cancel(ctx, managerActor, batch.ID)
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	_, err = f.svc.Commit(ctx, managerActor, batch.ID)
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	_, err = f.svc.GetBatch(ctx, uuid.NewString())
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func countRecords(env *testEnv) (int64, error) {
	_, total, err := env.records.List(context.Background(), repository.RecordFilter{})
	return total, err
}
