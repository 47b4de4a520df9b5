package cli

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-production-goals/internal/config"
	"github.com/tbourn/go-production-goals/internal/domain"
	"github.com/tbourn/go-production-goals/internal/http/middleware"
	"github.com/tbourn/go-production-goals/internal/repo"
)

func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand("test")
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func useSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "goals.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", path)
	return path
}

func TestTokenCommand(t *testing.T) {
	out, err := execRoot(t, "token", "--user", "u1", "--name", "Ada", "--admin", "--secret", "s3cret")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := middleware.ParseToken("s3cret", strings.TrimSpace(out), 0)
	if err != nil {
		t.Fatalf("parse minted token: %v", err)
	}
	if claims.Subject != "u1" || claims.Name != "Ada" || claims.Role != middleware.RoleAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenCommand_Errors(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := execRoot(t, "token", "--user", "u1"); err == nil || !strings.Contains(err.Error(), "secret") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
	if _, err := execRoot(t, "token", "--secret", "x"); err == nil || !strings.Contains(err.Error(), "required flag") {
		t.Fatalf("expected required flag error, got %v", err)
	}
}

func TestTokenCommand_SecretFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	out, err := execRoot(t, "token", "--user", "u2", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := middleware.ParseToken("from-env", strings.TrimSpace(out), 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) > time.Hour {
		t.Fatalf("unexpected expiry: %+v", claims.ExpiresAt)
	}
}

func TestMigrateAndVerify(t *testing.T) {
	path := useSQLite(t)

	out, err := execRoot(t, "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "migrated sqlite") {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = execRoot(t, "verify")
	if err != nil || !strings.Contains(out, "ok: 0 project(s)") {
		t.Fatalf("verify empty: %v %q", err, out)
	}

	// Seed a started part whose progress has no submissions behind it.
	db, err := repo.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	p := &domain.Project{Name: "Rover"}
	if err := repo.CreateProject(ctx, db, p, nil); err != nil {
		t.Fatalf("create project: %v", err)
	}
	now := time.Now().UTC()
	part := &domain.Part{ProjectID: p.ID, Name: "Hub", Goal: 10, Progress: 5, StartDate: &now}
	if err := repo.CreatePart(ctx, db, part); err != nil {
		t.Fatalf("create part: %v", err)
	}
	_ = closeDB(db)

	out, err = execRoot(t, "verify")
	if !errors.Is(err, ErrDrift) {
		t.Fatalf("expected drift error, got %v", err)
	}
	if !strings.Contains(out, "part") || !strings.Contains(out, "Hub") {
		t.Fatalf("drift not reported: %q", out)
	}

	// A project without parts is consistent on its own.
	out, err = execRoot(t, "verify", "--project", "999")
	if err != nil || !strings.Contains(out, "ok: 1 project(s)") {
		t.Fatalf("verify single: %v %q", err, out)
	}
}

func TestMigrate_BadDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")
	if _, err := execRoot(t, "migrate"); err == nil || !strings.Contains(err.Error(), "DB_DRIVER") {
		t.Fatalf("expected driver error, got %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()

	if err := loadEnvFile(filepath.Join(dir, "missing.env"), false); err != nil {
		t.Fatalf("missing default file should be ignored: %v", err)
	}
	if err := loadEnvFile(filepath.Join(dir, "missing.env"), true); err == nil {
		t.Fatal("missing explicit file should fail")
	}
	if err := loadEnvFile("", true); err != nil {
		t.Fatalf("empty path: %v", err)
	}

	const key = "GOALSD_TEST_ENV_FILE_VALUE"
	envPath := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envPath, []byte(key+"=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv(key) })
	if err := loadEnvFile(envPath, true); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv(key); got != "loaded" {
		t.Fatalf("env not loaded: %q", got)
	}
}

func TestOpenApp_ServesHealth(t *testing.T) {
	useSQLite(t)
	t.Setenv("JWT_SECRET", "app-secret")
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("KAFKA_BROKERS", "")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	a, err := openApp(context.Background(), cfg, true)
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	w := httptest.NewRecorder()
	a.handler(cfg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
}

func TestOpenApp_RedisUnavailable(t *testing.T) {
	useSQLite(t)
	t.Setenv("JWT_SECRET", "app-secret")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "127.0.0.1:1")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := openApp(ctx, cfg, true); err == nil {
		t.Fatal("expected redis connection error")
	}
}

func TestServe_GracefulShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, srv, ln, time.Second) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not stop")
	}
}
