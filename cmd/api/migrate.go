package main

import (
	"fmt"

	"ecofin/internal/database"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		cfg.Database.AutoMigrate = false
		db, err := database.NewConnection(cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		if err := database.Migrate(db.WithContext(cmd.Context())); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("Schema is up to date", zap.Int("models", len(database.Models())))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
