package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-production-goals/internal/domain"
)

// CreateCompleted inserts an archive record.
func CreateCompleted(ctx context.Context, tx *gorm.DB, c *domain.CompletedGoal) error {
	return tx.WithContext(ctx).Create(c).Error
}

// ListCompletedSince returns archive records completed at or after since,
// newest first.
func ListCompletedSince(ctx context.Context, db *gorm.DB, since time.Time) ([]domain.CompletedGoal, error) {
	var out []domain.CompletedGoal
	err := db.WithContext(ctx).
		Where("completed_date >= ?", since).
		Order("completed_date DESC").Order("id DESC").
		Find(&out).Error
	return out, err
}

// ListProjectCompleted returns every archive record of a project, newest
// first.
func ListProjectCompleted(ctx context.Context, db *gorm.DB, projectID uint) ([]domain.CompletedGoal, error) {
	var out []domain.CompletedGoal
	err := db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("completed_date DESC").Order("id DESC").
		Find(&out).Error
	return out, err
}

// CountCompleted returns how many archive records a project has.
func CountCompleted(ctx context.Context, db *gorm.DB, projectID uint) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.CompletedGoal{}).Where("project_id = ?", projectID).Count(&n).Error
	return n, err
}

// DeleteCompleted removes one archive record.
func DeleteCompleted(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.CompletedGoal{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
