package database

import (
	"fmt"
	"time"

	"ecofin/internal/config"
	"ecofin/internal/logger"
	"ecofin/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewConnection opens the postgres pool and, when enabled, migrates the schema.
func NewConnection(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.NewGormLogger(log, gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			log.Warn("Failed to auto-migrate models", zap.Error(err))
		}
	}
	return db, nil
}

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&model.User{},
		&model.RefreshToken{},
		&model.AuditLog{},
		&model.TaxRule{},
		&model.Client{},
		&model.Worker{},
		&model.WorkerDocument{},
		&model.MonthlySettings{},
		&model.ImportBatch{},
		&model.ImportedRow{},
		&model.ProcessedRecord{},
		&model.Invoice{},
		&model.InvoiceLine{},
		&model.InvoiceEmailLog{},
		&model.PaymentSyncLog{},
	}
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
