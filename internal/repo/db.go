// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for the
// supported drivers (pure-Go SQLite, MySQL, Postgres) and schema migrations.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-production-goals/internal/domain"
)

// Supported values for Options.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// ErrUnsupportedDriver is returned by Open for an unknown driver name.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Options selects and tunes the database connection.
type Options struct {
	Driver       string // sqlite|mysql|postgres
	Path         string // SQLite file path
	DSN          string // MySQL/Postgres DSN
	MaxOpenConns int
	Tracing      bool // register the GORM OpenTelemetry plugin
	LogSQL       bool
}

// sqlitePragmas are applied per connection through the DSN so every pooled
// connection waits on the writer lock instead of failing with SQLITE_BUSY.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// Open connects using opts.Driver and applies pool settings.
func Open(opts Options) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverSQLite:
		db, err = OpenSQLite(opts.Path)
	case DriverMySQL:
		if strings.TrimSpace(opts.DSN) == "" {
			return nil, errors.New("mysql: DB_DSN must not be empty")
		}
		db, err = gorm.Open(mysql.Open(opts.DSN), gormConfig(opts.LogSQL))
	case DriverPostgres:
		if strings.TrimSpace(opts.DSN) == "" {
			return nil, errors.New("postgres: DB_DSN must not be empty")
		}
		db, err = gorm.Open(postgres.Open(opts.DSN), gormConfig(opts.LogSQL))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	if opts.Tracing {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("register tracing plugin: %w", err)
		}
	}

	if opts.MaxOpenConns > 0 {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
			sqlDB.SetMaxIdleConns(opts.MaxOpenConns)
		}
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database with WAL, foreign keys and
// a busy timeout on every connection.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(SQLiteDSN(path)), gormConfig(false))
	if err != nil {
		return nil, err
	}

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// SQLiteDSN appends the connection pragmas to a SQLite path or URI.
func SQLiteDSN(path string) string {
	var b strings.Builder
	b.WriteString(path)
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

func gormConfig(logSQL bool) *gorm.Config {
	lvl := logger.Silent
	if logSQL {
		lvl = logger.Info
	}
	return &gorm.Config{
		Logger:         logger.Default.LogMode(lvl),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	}
}

// AutoMigrate creates or updates every table of the Progress Store.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Project{},
		&domain.Material{},
		&domain.Part{},
		&domain.Submission{},
		&domain.CompletedGoal{},
		&domain.ProcessedKey{},
	)
}
