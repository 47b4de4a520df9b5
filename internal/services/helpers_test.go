package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tbourn/go-production-goals/internal/cache"
	"github.com/tbourn/go-production-goals/internal/events"
	"github.com/tbourn/go-production-goals/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:goalsvc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// newFileDB opens a WAL database on disk; concurrent writers need real
// locking, which the shared-cache memory database does not provide.
func newFileDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "goals.db"))
	if err != nil {
		t.Fatalf("open sqlite file: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.GoalCompleted
	err    error
}

func (p *recordingPublisher) PublishGoalCompleted(_ context.Context, ev events.GoalCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type env struct {
	db       *gorm.DB
	clock    *fakeClock
	cache    *cache.Memory
	pub      *recordingPublisher
	subs     *SubmissionService
	projects *ProjectService
	stats    *StatsService
	keys     atomic.Int64
}

func newEnv(t *testing.T, db *gorm.DB) *env {
	t.Helper()
	e := &env{db: db, clock: newFakeClock(), cache: cache.NewMemory(), pub: &recordingPublisher{}}
	e.subs = &SubmissionService{
		DB:       db,
		Cache:    e.cache,
		Events:   e.pub,
		Detector: &CompletionDetector{Clock: e.clock},
		Clock:    e.clock,
	}
	e.projects = &ProjectService{DB: db, Clock: e.clock}
	e.stats = &StatsService{DB: db, Clock: e.clock}
	return e
}

func (e *env) key() string {
	return fmt.Sprintf("key-%d", e.keys.Add(1))
}

// project creates a started project with one part per goal.
func (e *env) project(t *testing.T, goals ...int) (uint, []uint) {
	t.Helper()
	ctx := context.Background()
	d, err := e.projects.CreateProject(ctx, ProjectInput{Name: "Rover", URL: "https://example.test/rover", Materials: []string{"pla"}})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	ids := make([]uint, 0, len(goals))
	for i, g := range goals {
		p, err := e.projects.AddPart(ctx, d.Project.ID, PartInput{
			Name: fmt.Sprintf("Part %d", i+1), Goal: g, EstimatedLength: 2.5, EstimatedWeight: 12,
		})
		if err != nil {
			t.Fatalf("AddPart: %v", err)
		}
		ids = append(ids, p.ID)
	}
	if _, err := e.projects.StartProject(ctx, d.Project.ID); err != nil {
		t.Fatalf("StartProject: %v", err)
	}
	return d.Project.ID, ids
}

func (e *env) submit(user string, projectID, partID uint, qty int) (*SubmitResult, error) {
	return e.subs.Submit(context.Background(), SubmitRequest{
		UserID: user, Username: "name-" + user, ProjectID: projectID, PartID: partID, Quantity: qty, Key: e.key(),
	})
}

func (e *env) mustSubmit(t *testing.T, user string, projectID, partID uint, qty int) *SubmitResult {
	t.Helper()
	res, err := e.submit(user, projectID, partID, qty)
	if err != nil {
		t.Fatalf("Submit(%s, %d): %v", user, qty, err)
	}
	return res
}

func (e *env) part(t *testing.T, id uint) partState {
	t.Helper()
	p, err := repo.GetPart(context.Background(), e.db, id)
	if err != nil {
		t.Fatalf("GetPart: %v", err)
	}
	return partState{Progress: p.Progress, Lifetime: p.LifetimeTotal, Active: p.Active()}
}

type partState struct {
	Progress int
	Lifetime int
	Active   bool
}

// assertNoDrift checks that every part's progress equals the sum of its
// current-cycle submissions.
func assertNoDrift(t *testing.T, db *gorm.DB, projectID uint) {
	t.Helper()
	drift, err := repo.CycleDrift(context.Background(), db, projectID)
	if err != nil {
		t.Fatalf("CycleDrift: %v", err)
	}
	if len(drift) != 0 {
		t.Fatalf("progress drifted from submissions: %+v", drift)
	}
}
