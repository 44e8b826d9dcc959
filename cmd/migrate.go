package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/psds-microservice/ticket-desk/internal/config"
	"github.com/psds-microservice/ticket-desk/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrateUp,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE:  runMigrateDown,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE:  runMigrateStatus,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	// Connect с AutoMigrate создаёт базу (postgres) и применяет миграции.
	cfg.DB.AutoMigrate = true
	db, err := database.Connect(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer database.Close(db)
	log.Info("migrate up: ok", "driver", cfg.DB.Driver)
	return nil
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	cfg, log, db, err := openWithoutMigrate(cmd)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := database.MigrateDown(cmd.Context(), db, cfg.DB.Driver, log); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("migrate down: ok", "driver", cfg.DB.Driver)
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	cfg, _, db, err := openWithoutMigrate(cmd)
	if err != nil {
		return err
	}
	defer database.Close(db)
	states, err := database.MigrationStatus(cmd.Context(), db, cfg.DB.Driver)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	out := cmd.OutOrStdout()
	for _, s := range states {
		state := "pending"
		if s.Applied {
			state = "applied"
		}
		fmt.Fprintf(out, "%05d  %-8s %s\n", s.Version, state, s.Path)
	}
	return nil
}

func openWithoutMigrate(cmd *cobra.Command) (*config.Config, *slog.Logger, *gorm.DB, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	cfg.DB.AutoMigrate = false
	db, err := database.Connect(cmd.Context(), cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, db, nil
}
