package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/mailer"
	"ecofin/internal/model"
	"ecofin/internal/repository"
	"ecofin/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) workerService() WorkerService {
	return NewWorkerService(e.workers, e.clients, repository.NewUserRepository(e.db), e.audit, testLogger)
}

func (e *testEnv) seedUser(t *testing.T, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, Email: username + "@eco.ro", Password: "x", Role: model.RoleStaff}
	require.NoError(t, e.db.Create(u).Error)
	return u
}

func day(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestWorkerService_LifecycleDates(t *testing.T) {
	env := newEnv(t)
	svc := env.workerService()
	ctx := context.Background()
	expert := env.seedUser(t, "ana")

	w, err := svc.CreateWorker(ctx, managerActor, WorkerRequest{
		LastName:          "Perera",
		FirstName:         "Kasun",
		PassportNumber:    "n1234567",
		ExpertID:          expert.ID.String(),
		BirthDate:         "1990-05-14",
		PermitAppointment: "20.02.2025",
		VisaInterview:     "2025-04-01",
		PersonalCode:      "1900514123456",
	})
	require.NoError(t, err)
	assert.Equal(t, "N1234567", w.PassportNumber)
	require.NotNil(t, w.ExpertID)
	assert.Equal(t, expert.ID.String(), *w.ExpertID)
	require.NotNil(t, w.BirthDate)
	assert.Equal(t, "1990-05-14", *w.BirthDate)
	require.NotNil(t, w.PermitAppointment)
	assert.Equal(t, "2025-02-20", *w.PermitAppointment)
	assert.Nil(t, w.ResidenceAppointment)

	_, err = svc.UpdateWorker(ctx, managerActor, w.ID, WorkerRequest{LastName: "Perera", FirstName: "Kasun", PassportNumber: "N1234567", VisaInterview: "someday"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.ErrorContains(t, err, "visa_interview")

	_, err = svc.CreateWorker(ctx, managerActor, WorkerRequest{LastName: "X", FirstName: "Y", PassportNumber: "P2", ExpertID: model.Worker{}.ID.String()})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.CreateWorker(ctx, managerActor, WorkerRequest{LastName: "X", FirstName: "Y", PassportNumber: "P3", PersonalCode: "12"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestWorkerService_Statistics(t *testing.T) {
	env := newEnv(t)
	client := env.seedClient(t, "acme", "25")
	env.seedWorker(t, client, "P1", "")
	env.seedWorker(t, nil, "P2", "")

	stats, err := env.workerService().Statistics(context.Background(), WorkerStatsFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Total)
	assert.Equal(t, []repository.GroupCount{{Label: model.WorkerPermitRequested, Count: 2}}, stats.ByStatus)
	assert.Equal(t, []repository.GroupCount{{Label: "acme", Count: 1}}, stats.ByClient)
	assert.NotNil(t, stats.ByCitizenship)
	assert.NotNil(t, stats.Citizenships)
	assert.Equal(t, model.WorkerStatuses, stats.Statuses)
}

func TestWorkerService_ImportTemplateRoundTrip(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t, "Acme Construct", "25")
	svc := env.workerService()

	tpl, err := svc.ImportTemplate()
	require.NoError(t, err)

	res, err := svc.ImportWorkers(context.Background(), managerActor, WorkerTemplateFilename, tpl)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Created, res.Rows)

	w, err := env.workers.FindByPassport(context.Background(), "N1234567")
	require.NoError(t, err)
	assert.Equal(t, "Sri Lanka", w.Citizenship)
	assert.Equal(t, "711201", w.OccupationCode)
	require.NotNil(t, w.Client)
	assert.Equal(t, "Acme Construct", w.Client.Name)
	require.NotNil(t, w.PermitAppointment)
	assert.Equal(t, "2025-02-20", w.PermitAppointment.Format(time.DateOnly))
}

func TestWorkerService_ImportWorkersReportsRowErrors(t *testing.T) {
	env := newEnv(t)
	env.seedClient(t, "acme", "25")
	env.seedWorker(t, nil, "EXISTING1", "")
	svc := env.workerService()

	csv := "Nume;Prenume;Pasaport;Client;Data programare WP;Status\n" +
		"Perera;Kasun;N1;ACME;2025-02-20;\n" +
		"Silva;;N2;;;\n" +
		"Dup;Row;existing1;;;\n" +
		"Bad;Date;N3;;31.31.2025;\n" +
		"No;Client;N4;Nobody SRL;;\n" +
		"Bad;Status;N5;;;ON_HOLD\n" +
		"Again;Same;N1;;;\n"

	res, err := svc.ImportWorkers(context.Background(), managerActor, "register.csv", []byte(csv))
	require.NoError(t, err)
	assert.Equal(t, 7, res.Total)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 6, res.Errors)
	require.Len(t, res.Rows, 7)

	assert.Equal(t, WorkerRowCreated, res.Rows[0].Status)
	assert.Equal(t, 2, res.Rows[0].Row)
	assert.Contains(t, res.Rows[1].Message, "first_name")
	assert.Contains(t, res.Rows[2].Message, "already exists")
	assert.Contains(t, res.Rows[3].Message, "permit_appointment")
	assert.Contains(t, res.Rows[4].Message, "Nobody SRL")
	assert.Contains(t, res.Rows[5].Message, "ON_HOLD")
	assert.Contains(t, res.Rows[6].Message, "already exists")
	assert.Equal(t, 8, res.Rows[6].Row)

	_, err = svc.ImportWorkers(context.Background(), managerActor, "register.pdf", []byte("x"))
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = svc.ImportWorkers(context.Background(), managerActor, "register.csv", []byte("Nume;Cetatenie\nA;B\n"))
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestWorkerDocumentService(t *testing.T) {
	env := newEnv(t)
	worker := env.seedWorker(t, nil, "P1", "")
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	svc := NewWorkerDocumentService(repository.NewWorkerDocumentRepository(env.db), env.workers, env.audit, store, testLogger)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, managerActor, DocumentUpload{
		WorkerID:     worker.ID.String(),
		DocumentType: model.DocPassport,
		FileName:     `C:\scans\passport.pdf`,
		ContentType:  "application/pdf",
		Data:         []byte("%PDF-1.4"),
	})
	require.NoError(t, err)
	assert.Equal(t, "passport.pdf", doc.FileName)
	assert.EqualValues(t, 8, doc.Size)
	require.NotNil(t, doc.UploadedBy)

	other, err := svc.Upload(ctx, managerActor, DocumentUpload{WorkerID: worker.ID.String(), FileName: "note.txt", Data: []byte("hi")})
	require.NoError(t, err)
	assert.Equal(t, model.DocOther, other.DocumentType)

	list, err := svc.List(ctx, worker.ID.String())
	require.NoError(t, err)
	assert.Len(t, list, 2)

	file, err := svc.Download(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "passport.pdf", file.FileName)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.Equal(t, []byte("%PDF-1.4"), file.Data)

	require.NoError(t, svc.Delete(ctx, managerActor, doc.ID))
	_, err = svc.Download(ctx, doc.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.Upload(ctx, managerActor, DocumentUpload{WorkerID: worker.ID.String(), DocumentType: "selfie", FileName: "a.jpg", Data: []byte("x")})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = svc.Upload(ctx, managerActor, DocumentUpload{WorkerID: worker.ID.String(), FileName: "empty.pdf"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = svc.Upload(ctx, managerActor, DocumentUpload{WorkerID: adminID.String(), FileName: "a.pdf", Data: []byte("x")})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestAlertService_SendAppointmentAlerts(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	expert := env.seedUser(t, "ana")
	client := env.seedClient(t, "acme", "25")

	target := day("2025-03-12")
	withExpert := &model.Worker{LastName: "Perera", FirstName: "Kasun", PassportNumber: "P1", ExpertID: &expert.ID, ClientID: &client.ID,
		PermitAppointment: target, PermitCounty: "Cluj", VisaInterview: target}
	noExpert := &model.Worker{LastName: "Silva", FirstName: "Nuwan", PassportNumber: "P2", ResidenceAppointment: target, PersonalCode: "1900514123456"}
	later := &model.Worker{LastName: "Later", FirstName: "X", PassportNumber: "P3", PermitAppointment: day("2025-03-13")}
	for _, w := range []*model.Worker{withExpert, noExpert, later} {
		require.NoError(t, env.workers.Create(ctx, w))
	}

	newSvc := func(m mailer.Mailer, recipient string) *alertService {
		svc := NewAlertService(env.workers, m, recipient, env.audit, testLogger).(*alertService)
		svc.now = func() time.Time { return time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC) }
		return svc
	}

	t.Run("sends to expert or fallback", func(t *testing.T) {
		m := &fakeMailer{}
		res, err := newSvc(m, "alerts@eco.ro").SendAppointmentAlerts(ctx, SystemActor, AlertOptions{DaysAhead: 2})
		require.NoError(t, err)
		assert.Equal(t, "2025-03-12", res.Date)
		assert.Equal(t, 3, res.Sent)
		assert.Zero(t, res.Errors)
		require.Len(t, m.sent, 3)

		assert.Equal(t, []string{"ana@eco.ro"}, m.sent[0].To)
		assert.Contains(t, m.sent[0].Subject, "Data Programare WP")
		assert.Contains(t, m.sent[0].Body, "Judet WP: Cluj")
		assert.Contains(t, m.sent[0].Body, "Client: acme")
		assert.Contains(t, m.sent[1].Subject, "Interviu Viza")
		assert.Equal(t, []string{"alerts@eco.ro"}, m.sent[2].To)
		assert.Contains(t, m.sent[2].Subject, "Programare PS")
		assert.Contains(t, m.sent[2].Body, "CNP: 1900514123456")
	})

	t.Run("dry run sends nothing", func(t *testing.T) {
		res, err := newSvc(nil, "").SendAppointmentAlerts(ctx, SystemActor, AlertOptions{DaysAhead: 2, DryRun: true})
		require.NoError(t, err)
		require.Len(t, res.Alerts, 3)
		assert.Zero(t, res.Sent)
		assert.Equal(t, 1, res.Errors, "worker without expert and no fallback has no recipient")
		assert.Contains(t, res.Alerts[2].Error, "no recipient")
	})

	t.Run("test email overrides recipients", func(t *testing.T) {
		m := &fakeMailer{}
		res, err := newSvc(m, "").SendAppointmentAlerts(ctx, SystemActor, AlertOptions{DaysAhead: 2, TestEmail: "qa@eco.ro"})
		require.NoError(t, err)
		assert.Equal(t, 3, res.Sent)
		for _, msg := range m.sent {
			assert.Equal(t, []string{"qa@eco.ro"}, msg.To)
		}
	})

	t.Run("failures are counted", func(t *testing.T) {
		m := &fakeMailer{err: errors.New("relay refused")}
		res, err := newSvc(m, "alerts@eco.ro").SendAppointmentAlerts(ctx, SystemActor, AlertOptions{DaysAhead: 2})
		require.NoError(t, err)
		assert.Zero(t, res.Sent)
		assert.Equal(t, 3, res.Errors)
		assert.Equal(t, "relay refused", res.Alerts[0].Error)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		_, err := newSvc(nil, "").SendAppointmentAlerts(ctx, SystemActor, AlertOptions{DaysAhead: 2})
		assert.ErrorIs(t, err, apperror.ErrValidation)
		_, err = newSvc(&fakeMailer{}, "").SendAppointmentAlerts(ctx, SystemActor, AlertOptions{DaysAhead: -1})
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})
}
