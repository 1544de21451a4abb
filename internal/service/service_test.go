package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ecofin/internal/events"
	"ecofin/internal/mailer"
	"ecofin/internal/model"
	"ecofin/internal/repository"
	"ecofin/internal/smartbill"
	"ecofin/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	adminID      = uuid.New()
	managementID = uuid.New()
	adminActor   = Actor{UserID: &adminID, Role: model.RoleAdmin}
	managerActor = Actor{UserID: &managementID, Role: model.RoleManagement}
	testLogger   = zap.NewNop()
)

type testEnv struct {
	db       *gorm.DB
	clients  repository.ClientRepository
	workers  repository.WorkerRepository
	records  repository.RecordRepository
	settings repository.SettingsRepository
	imports  repository.ImportRepository
	invoices repository.InvoiceRepository
	syncLogs repository.SyncLogRepository
	audit    repository.AuditRepository
	taxRules repository.TaxRuleRepository
	tx       repository.TransactionManager
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	return &testEnv{
		db:       db,
		clients:  repository.NewClientRepository(db),
		workers:  repository.NewWorkerRepository(db),
		records:  repository.NewRecordRepository(db),
		settings: repository.NewSettingsRepository(db),
		imports:  repository.NewImportRepository(db),
		invoices: repository.NewInvoiceRepository(db),
		syncLogs: repository.NewSyncLogRepository(db),
		audit:    repository.NewAuditRepository(db),
		taxRules: repository.NewTaxRuleRepository(db),
		tx:       repository.NewTransactionManager(db),
	}
}

func (e *testEnv) seedClient(t *testing.T, name, rate string) *model.Client {
	t.Helper()
	c := &model.Client{
		Name:              name,
		FiscalCode:        "RO" + name,
		Email:             "billing@" + name + ".ro",
		HourlyRate:        dec(rate),
		AccommodationCost: dec("300"),
		MealCost:          dec("200"),
		TransportCost:     dec("100"),
		IsActive:          true,
	}
	require.NoError(t, e.clients.Create(context.Background(), c))
	return c
}

func (e *testEnv) seedWorker(t *testing.T, client *model.Client, passport, contract string) *model.Worker {
	t.Helper()
	w := &model.Worker{LastName: "Perera", FirstName: passport, PassportNumber: passport, ContractNumber: contract}
	if client != nil {
		w.ClientID = &client.ID
	}
	require.NoError(t, e.workers.Create(context.Background(), w))
	return w
}

func (e *testEnv) seedSettings(t *testing.T, year, month int, indirect, vacation string) *model.MonthlySettings {
	t.Helper()
	s := &model.MonthlySettings{Year: year, Month: month, IndirectExpensesTotal: dec(indirect), VacationCostPerWorker: dec(vacation)}
	require.NoError(t, e.settings.Create(context.Background(), s))
	return s
}

func (e *testEnv) seedRecord(t *testing.T, w *model.Worker, c *model.Client, year, month int, hours string) *model.ProcessedRecord {
	t.Helper()
	r := &model.ProcessedRecord{
		WorkerID: w.ID, ClientID: c.ID, Year: year, Month: month,
		GrossSalary: dec("4000"), EmployerContribution: dec("90"), HoursWorked: dec(hours),
	}
	r.SnapshotTariff(*c)
	require.NoError(t, e.records.Create(context.Background(), r))
	return r
}

func (e *testEnv) taxService() TaxService {
	return NewTaxService(e.taxRules, e.audit, dec("21"), testLogger)
}

// --- fakes ---

type fakeSmartBill struct {
	mu          sync.Mutex
	issueErr    error
	issued      []smartbill.InvoiceRequest
	pdf         []byte
	pdfErr      error
	payments    []smartbill.Payment
	paymentsErr error
	paid        map[string]decimal.Decimal
	cancelled   []string
	from, to    time.Time
}

func (f *fakeSmartBill) CompanyCIF() string { return "RO999" }

func (f *fakeSmartBill) IssueInvoice(_ context.Context, req smartbill.InvoiceRequest) (*smartbill.InvoiceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	f.issued = append(f.issued, req)
	return &smartbill.InvoiceResponse{Series: "ECO", Number: fmt.Sprintf("%04d", len(f.issued))}, nil
}

func (f *fakeSmartBill) InvoicePDF(context.Context, string, string) ([]byte, error) {
	if f.pdfErr != nil {
		return nil, f.pdfErr
	}
	return f.pdf, nil
}

func (f *fakeSmartBill) PaymentStatus(_ context.Context, series, number string) (*smartbill.PaymentStatus, error) {
	paid, ok := f.paid[series+number]
	if !ok {
		return nil, errors.New("unknown invoice")
	}
	return &smartbill.PaymentStatus{PaidAmount: paid}, nil
}

func (f *fakeSmartBill) Payments(_ context.Context, from, to time.Time) ([]smartbill.Payment, error) {
	f.from, f.to = from, to
	return f.payments, f.paymentsErr
}

func (f *fakeSmartBill) CancelInvoice(_ context.Context, series, number string) error {
	f.cancelled = append(f.cancelled, series+number)
	return nil
}

func (f *fakeSmartBill) Series(context.Context) ([]string, error) { return []string{"ECO"}, nil }

type fakeMailer struct {
	sent []mailer.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
