package main

import (
	"context"
	"fmt"

	"ecofin/internal/cache"
	"ecofin/internal/config"
	"ecofin/internal/database"
	"ecofin/internal/events"
	"ecofin/internal/logger"
	"ecofin/internal/mailer"
	"ecofin/internal/metrics"
	"ecofin/internal/report"
	"ecofin/internal/repository"
	"ecofin/internal/service"
	"ecofin/internal/smartbill"
	"ecofin/internal/storage"
	"ecofin/internal/websocket"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds the wired dependencies shared by every command.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	hub     *websocket.Hub
	metrics *metrics.Metrics
	closers []func() error

	userService     service.UserService
	clientService   service.ClientService
	workerService   service.WorkerService
	documentService service.WorkerDocumentService
	alertService    service.AlertService
	taxService      service.TaxService
	auditService    service.AuditService
	settingsService service.SettingsService
	importService   service.ImportService
	recordService   service.RecordService
	reportService   service.ReportService
	revenueService  service.RevenueService
	invoiceService  service.InvoiceService
	paymentService  service.PaymentService
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(cfg.Log), nil
}

// newApp connects to the database and the configured integrations and builds
// the services (Repository -> Service).
func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := database.NewConnection(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	log.Info("Connected to PostgreSQL", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))

	a := &app{cfg: cfg, log: log, db: db, metrics: metrics.New()}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	store, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("storage setup failed: %w", err)
	}
	idempotency := cache.NewIdempotencyStore(cfg.Redis, log)
	if rs, ok := idempotency.(*cache.RedisStore); ok {
		a.closers = append(a.closers, rs.Close)
	}

	// Event sinks: websocket clients always, Kafka when enabled.
	a.hub = websocket.NewHub(log)
	publisher := events.Multi{a.hub}
	if cfg.Kafka.Enabled {
		kp := events.NewKafkaPublisher(cfg.Kafka)
		a.closers = append(a.closers, kp.Close)
		publisher = append(publisher, kp)
		log.Info("Publishing events to Kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	var sb service.InvoicingClient
	if cfg.SmartBill.Configured() {
		sb = smartbill.New(cfg.SmartBill, smartbill.WithLogger(log))
	} else {
		log.Warn("SmartBill credentials not configured, invoicing is disabled")
	}
	var mail mailer.Mailer
	if cfg.Mail.Configured() {
		mail = mailer.NewSMTPMailer(cfg.Mail)
	}
	pdf := report.NewPDFRenderer(cfg.PDF, log)

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	clientRepo := repository.NewClientRepository(db)
	workerRepo := repository.NewWorkerRepository(db)
	documentRepo := repository.NewWorkerDocumentRepository(db)
	taxRepo := repository.NewTaxRuleRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	importRepo := repository.NewImportRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	syncLogRepo := repository.NewSyncLogRepository(db)
	revenueRepo := repository.NewRevenueRepository(db)
	tx := repository.NewTransactionManager(db)

	a.userService = service.NewUserService(userRepo, cfg.JWT)
	a.clientService = service.NewClientService(clientRepo, auditRepo, log)
	a.workerService = service.NewWorkerService(workerRepo, clientRepo, userRepo, auditRepo, log)
	a.documentService = service.NewWorkerDocumentService(documentRepo, workerRepo, auditRepo, store, log)
	a.alertService = service.NewAlertService(workerRepo, mail, cfg.Alerts.Recipient, auditRepo, log)
	a.taxService = service.NewTaxService(taxRepo, auditRepo, cfg.SmartBill.DefaultVATRate, log)
	a.auditService = service.NewAuditService(auditRepo)
	a.settingsService = service.NewSettingsService(settingsRepo, auditRepo, log)
	a.importService = service.NewImportService(service.ImportDeps{
		Imports:  importRepo,
		Workers:  workerRepo,
		Clients:  clientRepo,
		Records:  recordRepo,
		Settings: settingsRepo,
		Audit:    auditRepo,
		Tx:       tx,
		Store:    store,
		Events:   publisher,
		Metrics:  a.metrics,
	}, log)
	a.recordService = service.NewRecordService(recordRepo, settingsRepo, auditRepo, tx, publisher, log)
	a.reportService = service.NewReportService(recordRepo, pdf)
	a.revenueService = service.NewRevenueService(revenueRepo, invoiceRepo, pdf)
	a.invoiceService = service.NewInvoiceService(service.InvoiceDeps{
		Invoices:    invoiceRepo,
		Clients:     clientRepo,
		Records:     recordRepo,
		Audit:       auditRepo,
		Tax:         a.taxService,
		SmartBill:   sb,
		Mailer:      mail,
		Store:       store,
		Idempotency: idempotency,
		Events:      publisher,
		Metrics:     a.metrics,
		Config:      cfg.SmartBill,
		Billing:     cfg.Billing,
	}, log)
	a.paymentService = service.NewPaymentService(invoiceRepo, syncLogRepo, auditRepo, sb, publisher, a.metrics, cfg.Billing.SyncLookback, log)

	return a, nil
}

// close releases connections in reverse order of opening.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("Failed to close resource", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
