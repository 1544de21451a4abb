package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"ecofin/internal/model"
	"ecofin/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedClientWorker(t *testing.T, db *gorm.DB) (*model.Client, *model.Worker) {
	t.Helper()
	ctx := context.Background()

	client := &model.Client{Name: "Acme Construct", FiscalCode: "RO123", HourlyRate: dec("12.5"), IsActive: true}
	require.NoError(t, NewClientRepository(db).Create(ctx, client))

	worker := &model.Worker{LastName: "Perera", FirstName: "Kasun", PassportNumber: "N1234567", ContractNumber: "CIM-7", ClientID: &client.ID}
	require.NoError(t, NewWorkerRepository(db).Create(ctx, worker))
	return client, worker
}

func TestTransactionManager_RollsBackOnError(t *testing.T) {
	db := testutil.NewDB(t)
	tm := NewTransactionManager(db)
	clients := NewClientRepository(db)
	ctx := context.Background()

	boom := errors.New("boom")
	err := tm.RunInTx(ctx, func(txCtx context.Context) error {
		assert.True(t, InTx(txCtx))
		require.NoError(t, clients.Create(txCtx, &model.Client{Name: "Rolled back"}))
		return tm.RunInTx(txCtx, func(inner context.Context) error {
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	list, total, err := clients.List(ctx, ClientFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
}

func TestPage(t *testing.T) {
	offset, size := Page(0, 0)
	assert.Equal(t, 0, offset)
	assert.Equal(t, 20, size)

	offset, size = Page(3, 10)
	assert.Equal(t, 20, offset)
	assert.Equal(t, 10, size)
}

func TestWorkerRepository_MatchIsCaseInsensitive(t *testing.T) {
	db := testutil.NewDB(t)
	client, worker := seedClientWorker(t, db)
	repo := NewWorkerRepository(db)
	ctx := context.Background()

	got, err := repo.FindByContractNumber(ctx, " cim-7 ")
	require.NoError(t, err)
	assert.Equal(t, worker.ID, got.ID)
	require.NotNil(t, got.Client)
	assert.Equal(t, client.ID, got.Client.ID)

	got, err = repo.FindByPassport(ctx, "n1234567")
	require.NoError(t, err)
	assert.Equal(t, worker.ID, got.ID)

	_, err = repo.FindByPassport(ctx, "X0000000")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestWorkerRepository_ListFilters(t *testing.T) {
	db := testutil.NewDB(t)
	client, _ := seedClientWorker(t, db)
	repo := NewWorkerRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.Worker{LastName: "Silva", FirstName: "Nuwan", PassportNumber: "N7654321", Status: model.WorkerActive}))

	_, total, err := repo.List(ctx, WorkerFilter{Search: "pere"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	_, total, err = repo.List(ctx, WorkerFilter{Status: model.WorkerActive})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	list, total, err := repo.List(ctx, WorkerFilter{ClientID: &client.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "Perera", list[0].LastName)
}

func TestSettingsRepository_Lock(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewSettingsRepository(db)
	ctx := context.Background()

	s := &model.MonthlySettings{Year: 2025, Month: 3, IndirectExpensesTotal: dec("1000")}
	require.NoError(t, repo.Create(ctx, s))

	dup := &model.MonthlySettings{Year: 2025, Month: 3}
	assert.Error(t, repo.Create(ctx, dup), "period is unique")

	require.NoError(t, repo.Lock(ctx, 2025, 3, time.Now()))
	got, err := repo.FindByPeriod(ctx, 2025, 3)
	require.NoError(t, err)
	assert.True(t, got.Locked)
	assert.NotNil(t, got.LockedAt)

	all, err := repo.List(ctx, 2025)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestImportRepository_BatchWithRows(t *testing.T) {
	db := testutil.NewDB(t)
	client, worker := seedClientWorker(t, db)
	repo := NewImportRepository(db)
	ctx := context.Background()

	batch := &model.ImportBatch{
		Year: 2025, Month: 3, FileName: "payroll.xlsx", Status: model.BatchPreview,
		Rows: []model.ImportedRow{
			{RowNumber: 3, Year: 2025, Month: 3, PassportNumber: "N1234567", Status: model.RowMatched, WorkerID: &worker.ID, ClientID: &client.ID},
			{RowNumber: 2, Year: 2025, Month: 3, PassportNumber: "ZZZ", Status: model.RowError, ErrorMessage: "worker not found"},
		},
	}
	require.NoError(t, repo.CreateBatch(ctx, batch))

	got, err := repo.FindBatchWithRows(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, 2, got.Rows[0].RowNumber)
	assert.Equal(t, 3, got.Rows[1].RowNumber)
	require.NotNil(t, got.Rows[1].Worker)
	assert.Equal(t, worker.ID, got.Rows[1].Worker.ID)

	require.NoError(t, repo.MarkRowsProcessed(ctx, []uuid.UUID{got.Rows[1].ID}))
	got, err = repo.FindBatchWithRows(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RowProcessed, got.Rows[1].Status)

	got.Status = model.BatchProcessed
	require.NoError(t, repo.UpdateBatch(ctx, got))
	list, total, err := repo.ListBatches(ctx, BatchFilter{Status: model.BatchProcessed})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, batch.ID, list[0].ID)
}

func TestRecordRepository_KeyAndValidation(t *testing.T) {
	db := testutil.NewDB(t)
	client, worker := seedClientWorker(t, db)
	repo := NewRecordRepository(db)
	ctx := context.Background()

	rec := &model.ProcessedRecord{
		WorkerID: worker.ID, ClientID: client.ID, Year: 2025, Month: 3,
		GrossSalary: dec("4000"), EmployerContribution: dec("90"), HoursWorked: dec("168"),
	}
	rec.SnapshotTariff(*client)
	require.NoError(t, repo.Create(ctx, rec))
	assert.True(t, rec.GeneratedRevenue.Equal(dec("2100")))

	dup := &model.ProcessedRecord{WorkerID: worker.ID, ClientID: client.ID, Year: 2025, Month: 3}
	assert.Error(t, repo.Create(ctx, dup), "one record per worker, client and period")

	got, err := repo.FindByKey(ctx, worker.ID, client.ID, 2025, 3)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	by := uuid.New()
	n, err := repo.ValidatePeriod(ctx, 2025, 3, &by, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err = repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Validated)
	assert.True(t, got.Profitability.Equal(rec.Profitability), "derived values survive validation")

	validated := true
	_, total, err := repo.List(ctx, RecordFilter{Year: 2025, Validated: &validated})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	inRange, err := repo.ListRange(ctx, PeriodRange{FromYear: 2025, FromMonth: 1, ToYear: 2025, ToMonth: 12})
	require.NoError(t, err)
	assert.Len(t, inRange, 1)

	outOfRange, err := repo.ListRange(ctx, PeriodRange{FromYear: 2025, FromMonth: 4, ToYear: 2026, ToMonth: 2})
	require.NoError(t, err)
	assert.Empty(t, outOfRange)
}

func TestInvoiceRepository_IssuedForPeriod(t *testing.T) {
	db := testutil.NewDB(t)
	client, _ := seedClientWorker(t, db)
	repo := NewInvoiceRepository(db)
	ctx := context.Background()

	issued := &model.Invoice{
		ClientID: client.ID, Year: 2025, Month: 3, Series: "ECO", Number: "0001",
		IssueDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), Mode: "standard", Status: model.InvoiceIssued,
		Subtotal: dec("2100"), VATRate: dec("21"), VATTotal: dec("441"), Total: dec("2541"),
		IdempotencyKey: "key-1",
		Lines: []model.InvoiceLine{{Position: 1, Description: "PRESTARI SERVICII MARTIE 2025", Unit: "buc",
			Quantity: dec("1"), UnitPrice: dec("2100"), VATRate: dec("21"), LineTotal: dec("2100"), LineVAT: dec("441"), LineType: "standard"}},
	}
	require.NoError(t, repo.Create(ctx, issued))
	assert.Equal(t, "UNPAID", issued.PaymentStatus)

	cancelled := &model.Invoice{
		ClientID: client.ID, Year: 2025, Month: 3, Series: "ECO", Number: "0002",
		IssueDate: time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC), Mode: "standard", Status: model.InvoiceCancelled,
		Subtotal: dec("50"), VATRate: dec("21"), VATTotal: dec("10.5"), Total: dec("60.5"),
	}
	require.NoError(t, repo.Create(ctx, cancelled))

	list, err := repo.ListIssued(ctx, client.ID, 2025, 3)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, issued.ID, list[0].ID)

	got, err := repo.FindByNumber(ctx, "ECO", "0001")
	require.NoError(t, err)
	assert.Equal(t, issued.ID, got.ID)

	got, err = repo.FindByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Len(t, got.Lines, 1)

	got.ApplyPayment(dec("2541"))
	require.NoError(t, repo.Update(ctx, got))
	got, err = repo.FindByID(ctx, issued.ID)
	require.NoError(t, err)
	assert.Equal(t, "PAID", got.PaymentStatus)
	require.NotNil(t, got.Client)

	_, total, err := repo.List(ctx, InvoiceFilter{ClientID: &client.ID, Status: model.InvoiceIssued})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	require.NoError(t, repo.CreateEmailLog(ctx, &model.InvoiceEmailLog{InvoiceID: issued.ID, Recipient: "a@b.ro", Status: model.EmailSent}))
	logs, err := repo.ListEmailLogs(ctx, issued.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestSyncLogRepository_LastSuccess(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewSyncLogRepository(db)
	ctx := context.Background()

	_, err := repo.LastSuccess(ctx)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	older := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)
	for _, l := range []*model.PaymentSyncLog{
		{WindowStart: older.Add(-time.Hour), WindowEnd: older, StartedAt: older, FinishedAt: &older, Status: model.SyncSuccess},
		{WindowStart: older, WindowEnd: newer, StartedAt: newer, FinishedAt: &newer, Status: model.SyncSuccess},
		{WindowStart: newer, WindowEnd: newer.Add(time.Hour), StartedAt: newer.Add(time.Hour), Status: model.SyncFailure},
	} {
		require.NoError(t, repo.Create(ctx, l))
	}

	last, err := repo.LastSuccess(ctx)
	require.NoError(t, err)
	require.NotNil(t, last.FinishedAt)
	assert.True(t, last.FinishedAt.Equal(newer))

	_, total, err := repo.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
}

func TestTaxRuleRepository_ActiveAndOverlap(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewTaxRuleRepository(db)
	ctx := context.Background()

	end := time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, &model.TaxRule{TaxType: model.TaxTypeVATStandard, Rate: dec("19"),
		EffectiveFrom: time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC), EffectiveTo: &end}))
	require.NoError(t, repo.Create(ctx, &model.TaxRule{TaxType: model.TaxTypeVATStandard, Rate: dec("21"),
		EffectiveFrom: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)}))

	rule, err := repo.FindActive(ctx, model.TaxTypeVATStandard, time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, rule.Rate.Equal(dec("21")))

	rule, err = repo.FindActive(ctx, model.TaxTypeVATStandard, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, rule.Rate.Equal(dec("19")))

	n, err := repo.CountOverlapping(ctx, model.TaxTypeVATStandard, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestUserRepository_RefreshTokens(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &model.User{Username: "ana", Email: "ana@ecofin.ro", Password: "x", Role: model.RoleStaff}
	require.NoError(t, repo.Create(ctx, user))

	now := time.Now()
	require.NoError(t, repo.SaveRefreshToken(ctx, &model.RefreshToken{UserID: user.ID, Token: "live", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, repo.SaveRefreshToken(ctx, &model.RefreshToken{UserID: user.ID, Token: "stale", ExpiresAt: now.Add(-time.Hour)}))

	rt, err := repo.FindRefreshToken(ctx, "live", now)
	require.NoError(t, err)
	assert.Equal(t, "ana", rt.User.Username)

	_, err = repo.FindRefreshToken(ctx, "stale", now)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, repo.DeleteRefreshToken(ctx, "live"))
	_, err = repo.FindRefreshToken(ctx, "live", now)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	n, err := repo.CountByRole(ctx, model.RoleStaff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestAuditRepository_Filter(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Log(ctx, &model.AuditLog{Action: model.ActionIssueInvoice, EntityID: "inv-1", Details: "{}"}))
	require.NoError(t, repo.Log(ctx, &model.AuditLog{Action: model.ActionSyncPayments, EntityID: "sync-1", Details: "{}"}))

	logs, total, err := repo.List(ctx, AuditFilter{Action: model.ActionIssueInvoice})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "inv-1", logs[0].EntityID)
}

func TestWorkerRepository_Statistics(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	client, _ := seedClientWorker(t, db)
	workers := NewWorkerRepository(db)

	for _, w := range []*model.Worker{
		{LastName: "A", FirstName: "a", PassportNumber: "P1", Citizenship: "Nepal", Status: model.WorkerActive, ClientID: &client.ID},
		{LastName: "B", FirstName: "b", PassportNumber: "P2", Citizenship: "Nepal", Status: model.WorkerActive},
		{LastName: "C", FirstName: "c", PassportNumber: "P3", Citizenship: "India", Status: model.WorkerVisaRequested},
	} {
		require.NoError(t, workers.Create(ctx, w))
	}

	stats, err := workers.Statistics(ctx, WorkerStatsFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, stats.Total)
	assert.Equal(t, []GroupCount{{Label: model.WorkerActive, Count: 2}, {Label: model.WorkerPermitRequested, Count: 1}, {Label: model.WorkerVisaRequested, Count: 1}}, stats.ByStatus)
	assert.Equal(t, []GroupCount{{Label: "Nepal", Count: 2}, {Label: "India", Count: 1}}, stats.ByCitizenship)
	assert.Equal(t, []GroupCount{{Label: "Acme Construct", Count: 2}}, stats.ByClient)

	stats, err = workers.Statistics(ctx, WorkerStatsFilter{Citizenship: "nepal", Status: model.WorkerActive})
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Total)
	assert.Equal(t, []GroupCount{{Label: "Acme Construct", Count: 1}}, stats.ByClient)

	countries, err := workers.Citizenships(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"India", "Nepal"}, countries)
}

func TestWorkerRepository_WithAppointmentOn(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	workers := NewWorkerRepository(db)

	day := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	other := day.AddDate(0, 0, 1)
	for _, w := range []*model.Worker{
		{LastName: "Permit", FirstName: "x", PassportNumber: "P1", PermitAppointment: &day},
		{LastName: "Visa", FirstName: "x", PassportNumber: "P2", VisaInterview: &day},
		{LastName: "Residence", FirstName: "x", PassportNumber: "P3", ResidenceAppointment: &day},
		{LastName: "Later", FirstName: "x", PassportNumber: "P4", PermitAppointment: &other},
		{LastName: "None", FirstName: "x", PassportNumber: "P5"},
	} {
		require.NoError(t, workers.Create(ctx, w))
	}

	due, err := workers.WithAppointmentOn(ctx, day.Add(15*time.Hour))
	require.NoError(t, err)
	names := make([]string, 0, len(due))
	for _, w := range due {
		names = append(names, w.LastName)
	}
	assert.Equal(t, []string{"Permit", "Residence", "Visa"}, names)
}

func TestWorkerDocumentRepository(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	_, worker := seedClientWorker(t, db)
	docs := NewWorkerDocumentRepository(db)

	first := &model.WorkerDocument{WorkerID: worker.ID, DocumentType: model.DocPassport, FileName: "p.pdf", StorageKey: "k1", CreatedAt: time.Now().Add(-time.Hour)}
	second := &model.WorkerDocument{WorkerID: worker.ID, DocumentType: model.DocVisa, FileName: "v.pdf", StorageKey: "k2"}
	require.NoError(t, docs.Create(ctx, first))
	require.NoError(t, docs.Create(ctx, second))

	list, err := docs.ListByWorker(ctx, worker.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	require.NoError(t, docs.Delete(ctx, first.ID))
	_, err = docs.FindByID(ctx, first.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
