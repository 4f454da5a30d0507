// Package credstore implements the host credential store over GORM.
// Two backends are provided: SQLite (default, zero-config, pure Go via
// glebarez/sqlite) and PostgreSQL (shared store for multi-node hosts).
//
// Lookup order is insertion order: rows carry a monotonically increasing
// sequence and every scoped query orders by it. The selection policy's
// tie-break depends on that ordering being stable.
package credstore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// DefaultDriver is used when no driver is configured.
	DefaultDriver = DriverSQLite
)

// Config selects and configures the storage backend.
type Config struct {
	Driver   string         `json:"driver,omitempty" yaml:"driver,omitempty"` // "sqlite" (default) or "postgres".
	SQLite   SQLiteConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	Postgres PostgresConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"`                 // Database file path.
	JournalMode string `json:"journal_mode,omitempty" yaml:"journal_mode,omitempty"` // "wal" (default).
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`           // Default: 25.
	MaxIdleConns     int    `json:"max_idle_conns,omitempty" yaml:"max_idle_conns,omitempty"`           // Default: 5.
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s,omitempty" yaml:"conn_max_lifetime_s,omitempty"` // Default: 300.
}

// Open creates a Repository for the configured driver and runs migrations.
func Open(cfg Config, slogger *slog.Logger) (*Repository, error) {
	if slogger == nil {
		slogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	driver := cfg.Driver
	if driver == "" {
		driver = DefaultDriver
	}

	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = openSQLite(cfg.SQLite, slogger)
	case DriverPostgres:
		db, err = openPostgres(cfg.Postgres, slogger)
	default:
		return nil, fmt.Errorf("unknown credential store driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	repo := NewRepository(db, driver, slogger)
	if err := repo.Migrate(); err != nil {
		return nil, fmt.Errorf("migrating credential store: %w", err)
	}
	return repo, nil
}

func openSQLite(cfg SQLiteConfig, slogger *slog.Logger) (*gorm.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	journalMode := cfg.JournalMode
	if journalMode == "" {
		journalMode = "wal"
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", cfg.Path, journalMode)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  newGormLogger(slogger),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	slogger.Info("credential store opened",
		slog.String("driver", DriverSQLite),
		slog.String("path", cfg.Path),
	)
	return db, nil
}

func openPostgres(cfg PostgresConfig, slogger *slog.Logger) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:  newGormLogger(slogger),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening postgres database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("accessing connection pool: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetimeS
	if lifetime == 0 {
		lifetime = 300
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Duration(lifetime) * time.Second)

	slogger.Info("credential store opened", slog.String("driver", DriverPostgres))
	return db, nil
}

func newGormLogger(slogger *slog.Logger) logger.Interface {
	return logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}

// compile-time interface check
var _ logger.Writer = slogAdapter{}
