package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		Project{}.TableName():       "production_projects",
		Material{}.TableName():      "production_project_materials",
		Part{}.TableName():          "production_parts",
		Submission{}.TableName():    "production_submissions",
		CompletedGoal{}.TableName(): "production_completed",
		ProcessedKey{}.TableName():  "production_processed_keys",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Project{}, &Material{}, &Part{}, &Submission{}, &CompletedGoal{}, &ProcessedKey{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, idx := range []struct {
		model any
		name  string
	}{
		{&Submission{}, "idx_user_part"},
		{&Submission{}, "idx_created_at"},
		{&Submission{}, "idx_updated_at"},
		{&Part{}, "idx_part_project"},
		{&ProcessedKey{}, "ux_user_kind_key"},
	} {
		if !m.HasIndex(idx.model, idx.name) {
			t.Fatalf("expected index %s on %T", idx.name, idx.model)
		}
	}

	p := &Project{Name: "Printer"}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}
	part := &Part{ProjectID: p.ID, Name: "Bracket", Goal: 4}
	if err := db.Create(part).Error; err != nil {
		t.Fatalf("create part: %v", err)
	}
	sub := &Submission{UserID: "u1", PartID: part.ID, Quantity: 2, Username: "Ada"}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("create submission: %v", err)
	}

	// Deleting the project cascades through parts to submissions.
	if err := db.Delete(&Project{}, p.ID).Error; err != nil {
		t.Fatalf("delete project: %v", err)
	}
	var n int64
	db.Model(&Submission{}).Count(&n)
	if n != 0 {
		t.Fatalf("expected cascade to remove submissions, got %d", n)
	}
}

func TestProcessedKey_UniquePerUserKind(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&ProcessedKey{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	now := time.Now().UTC()
	if err := db.Create(&ProcessedKey{UserID: "u1", Kind: KeyKindSubmit, Key: "k1", CreatedAt: now}).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	// Same key under a different kind is a different record.
	if err := db.Create(&ProcessedKey{UserID: "u1", Kind: KeyKindEdit, Key: "k1", CreatedAt: now}).Error; err != nil {
		t.Fatalf("other kind insert: %v", err)
	}
	if err := db.Create(&ProcessedKey{UserID: "u1", Kind: KeyKindSubmit, Key: "k1", CreatedAt: now}).Error; err == nil {
		t.Fatalf("expected UNIQUE violation on (user_id, kind, key)")
	}
}

func TestPart_ActiveAndCounts(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := Part{}
	if p.Active() || p.Counts(start) {
		t.Fatalf("part without start date must be inactive")
	}
	p.StartDate = &start
	if !p.Active() {
		t.Fatalf("expected active")
	}
	if !p.Counts(start) {
		t.Fatalf("submission at start date belongs to the cycle")
	}
	if p.Counts(start.Add(-time.Second)) {
		t.Fatalf("submission before start date must not count")
	}
}
