package repo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-production-goals/internal/domain"
)

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "goals.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_SetsPragmas_Pool_AndAutoMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goals.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var (
		journalMode string
		fkOn        int
		busyMS      int
	)
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}
	if err := db.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil || fkOn != 1 {
		t.Fatalf("expected foreign_keys=1, got %d (err=%v)", fkOn, err)
	}
	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil || busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d (err=%v)", busyMS, err)
	}
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{&domain.Project{}, &domain.Material{}, &domain.Part{}, &domain.Submission{}, &domain.CompletedGoal{}, &domain.ProcessedKey{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
}

func TestOpen_DriverSelection(t *testing.T) {
	if _, err := Open(Options{Driver: "oracle"}); !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected ErrUnsupportedDriver, got %v", err)
	}
	if _, err := Open(Options{Driver: DriverMySQL}); err == nil {
		t.Fatalf("expected error for mysql without DSN")
	}
	if _, err := Open(Options{Driver: DriverPostgres, DSN: "  "}); err == nil {
		t.Fatalf("expected error for postgres without DSN")
	}

	path := filepath.Join(t.TempDir(), "open.db")
	db, err := Open(Options{Driver: "SQLite", Path: path, MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if got := sqlDB.Stats().MaxOpenConnections; got != 4 {
		t.Fatalf("expected MaxOpenConnections=4, got %d", got)
	}
}

func TestSQLiteDSN(t *testing.T) {
	got := SQLiteDSN("goals.db")
	if !strings.HasPrefix(got, "goals.db?_pragma=journal_mode(WAL)&") {
		t.Fatalf("unexpected dsn: %s", got)
	}
	if !strings.Contains(got, "_pragma=busy_timeout(5000)") {
		t.Fatalf("busy_timeout missing: %s", got)
	}
	got = SQLiteDSN("file:x.db?cache=shared")
	if !strings.HasPrefix(got, "file:x.db?cache=shared&_pragma=") {
		t.Fatalf("existing query must be extended: %s", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{gorm.ErrDuplicatedKey, true},
		{ErrDuplicate, true},
		{errors.New("UNIQUE constraint failed: production_processed_keys.idem_key"), true},
		{errors.New(`duplicate key value violates unique constraint "ux_user_kind_key"`), true},
		{errors.New("Error 1062: Duplicate entry 'u1-submit-k' for key"), true},
		{errors.New("some other error"), false},
	}
	for _, c := range cases {
		if got := IsUniqueViolation(c.err); got != c.want {
			t.Fatalf("IsUniqueViolation(%v) = %v; want %v", c.err, got, c.want)
		}
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite
