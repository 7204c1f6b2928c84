// Package db manages the SQLite database connection, schema migrations and
// the GORM models of the planning server. The modernc pure-Go driver keeps
// the binary CGO-free, which matters because the snapshot service copies the
// database file around and the server must build anywhere. Migrations are
// embedded in the binary and applied automatically on startup.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// modernc pure-Go SQLite driver, registers itself as "sqlite".
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config holds what is needed to open the database.
type Config struct {
	// Path is the SQLite database file path, or ":memory:" for tests.
	Path     string
	Logger   *zap.Logger
	LogLevel gormlogger.LogLevel

	// SlowQueryThreshold is the elapsed time past which a query is logged
	// as slow. Zero means the 200ms default; negative disables the warning.
	SlowQueryThreshold time.Duration
}

// New opens the SQLite database, applies pending migrations and returns the
// ready-to-use *gorm.DB.
func New(cfg Config) (*gorm.DB, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("db: logger is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("db: database path is required")
	}

	// Open the connection via database/sql with the modernc driver, then hand
	// the existing *sql.DB to GORM so it does not try to open a second
	// connection with go-sqlite3.
	sqlDB, err := sql.Open("sqlite", cfg.Path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("db: failed to open sqlite: %w", err)
	}
	// SQLite supports only one writer at a time.
	sqlDB.SetMaxOpenConns(1)

	database, err := gorm.Open(gormsqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger:         newZapGORMLogger(cfg.Logger, cfg.LogLevel, cfg.SlowQueryThreshold),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db: failed to initialize gorm: %w", err)
	}

	if err := runMigrations(sqlDB, cfg.Logger); err != nil {
		return nil, fmt.Errorf("db: migrations failed: %w", err)
	}

	return database, nil
}

// Ping verifies that the database connection is still alive.
func Ping(ctx context.Context, database *gorm.DB) error {
	sqlDB, err := database.DB()
	if err != nil {
		return fmt.Errorf("db: failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// FileSize returns the size in bytes of the live database file, as reported
// by SQLite itself (page_count * page_size), so it works even while the file
// is open.
func FileSize(ctx context.Context, database *gorm.DB) (int64, error) {
	var size int64
	err := database.WithContext(ctx).
		Raw("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()").
		Scan(&size).Error
	if err != nil {
		return 0, fmt.Errorf("db: failed to read database size: %w", err)
	}
	return size, nil
}

// runMigrations applies all pending up-migrations from the embedded SQL
// files. ErrNoChange is treated as success.
func runMigrations(sqlDB *sql.DB, log *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	drv, err := migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Info("database migrations applied successfully")
	return nil
}
