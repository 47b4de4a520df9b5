package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-production-goals/internal/domain"
)

// CreatePart inserts a part.
func CreatePart(ctx context.Context, db *gorm.DB, p *domain.Part) error {
	return db.WithContext(ctx).Create(p).Error
}

// GetPart fetches a part by id or returns ErrNotFound.
func GetPart(ctx context.Context, db *gorm.DB, id uint) (*domain.Part, error) {
	var p domain.Part
	if err := db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProjectPart fetches a part only when it belongs to projectID.
func GetProjectPart(ctx context.Context, db *gorm.DB, projectID, partID uint) (*domain.Part, error) {
	var p domain.Part
	err := db.WithContext(ctx).
		Where("id = ? AND project_id = ?", partID, projectID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListParts returns all parts of a project ordered by id.
func ListParts(ctx context.Context, db *gorm.DB, projectID uint) ([]domain.Part, error) {
	var out []domain.Part
	err := db.WithContext(ctx).Where("project_id = ?", projectID).Order("id ASC").Find(&out).Error
	return out, err
}

// LockActiveParts locks every active part of the project, in id order, and
// returns them. The reads see the latest committed rows, so a transaction
// that holds the project lock observes changes committed by the previous
// holder.
func LockActiveParts(ctx context.Context, tx *gorm.DB, projectID uint) ([]domain.Part, error) {
	var out []domain.Part
	err := forUpdate(tx.WithContext(ctx)).
		Where("project_id = ? AND start_date IS NOT NULL", projectID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// LockPart takes an exclusive lock on the part row for the rest of the
// transaction and returns its current state.
//
// The no-op UPDATE runs first: on MySQL/Postgres it takes the row lock, and on
// SQLite it acquires the database write lock before the transaction reads
// anything, so a concurrent writer waits on busy_timeout instead of failing
// with a stale snapshot.
func LockPart(ctx context.Context, tx *gorm.DB, partID uint) (*domain.Part, error) {
	if err := tx.WithContext(ctx).Exec("UPDATE production_parts SET id = id WHERE id = ?", partID).Error; err != nil {
		return nil, err
	}
	var p domain.Part
	if err := forUpdate(tx.WithContext(ctx)).First(&p, partID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// AdjustPartCounters adds the deltas to progress and lifetime_total in one
// statement.
func AdjustPartCounters(ctx context.Context, tx *gorm.DB, partID uint, progressDelta, lifetimeDelta int) error {
	return tx.WithContext(ctx).Model(&domain.Part{}).
		Where("id = ?", partID).
		UpdateColumns(map[string]any{
			"progress":       gorm.Expr("progress + ?", progressDelta),
			"lifetime_total": gorm.Expr("lifetime_total + ?", lifetimeDelta),
		}).Error
}

// StartParts opens a new goal cycle for every part of the project with a
// positive goal: progress is zeroed and start_date set to at.
func StartParts(ctx context.Context, db *gorm.DB, projectID uint, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.Part{}).
		Where("project_id = ? AND goal > 0", projectID).
		UpdateColumns(map[string]any{"progress": 0, "start_date": at})
	return res.RowsAffected, res.Error
}

// ResetParts clears progress and start_date on every part of the project.
func ResetParts(ctx context.Context, tx *gorm.DB, projectID uint) error {
	return tx.WithContext(ctx).Model(&domain.Part{}).
		Where("project_id = ?", projectID).
		UpdateColumns(map[string]any{"progress": 0, "start_date": nil}).Error
}

// forUpdate adds SELECT ... FOR UPDATE where the dialect supports it. SQLite
// has no row locks; the write lock taken by the preceding UPDATE serializes
// the transaction there.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
