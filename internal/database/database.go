package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/psds-microservice/ticket-desk/internal/config"
)

// Open подключается к хранилищу тикетов. Ошибки драйвера транслируются в gorm.ErrDuplicatedKey и т.п.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	case config.DriverSQLite:
		dialector = sqlite.Open(sqliteDSN(dsn))
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql db: %w", err)
	}
	if driver == config.DriverSQLite {
		// SQLite serializes writers itself; a single connection also keeps ":memory:" databases shared.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return db, nil
}

// Connect открывает БД по конфигу и, если включено, применяет миграции.
func Connect(ctx context.Context, cfg *config.Config, log *slog.Logger) (*gorm.DB, error) {
	if cfg.DB.AutoMigrate && cfg.DB.Driver == config.DriverPostgres {
		if err := ensureDatabase(cfg.DatabaseURL(), log); err != nil {
			return nil, fmt.Errorf("ensure database: %w", err)
		}
	}
	db, err := Open(cfg.DB.Driver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	if cfg.DB.AutoMigrate {
		if err := MigrateUp(ctx, db, cfg.DB.Driver, log); err != nil {
			_ = Close(db)
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

// Ping проверяет соединение (используется /ready).
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func sqliteDSN(dsn string) string {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000&_journal_mode=WAL"
}
