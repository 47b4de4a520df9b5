package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-production-goals/internal/domain"
)

// CreateSubmission inserts a submission row.
func CreateSubmission(ctx context.Context, tx *gorm.DB, s *domain.Submission) error {
	return tx.WithContext(ctx).Create(s).Error
}

// GetSubmission fetches a live submission owned by userID.
func GetSubmission(ctx context.Context, db *gorm.DB, id uint, userID string) (*domain.Submission, error) {
	var s domain.Submission
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND deleted = ?", id, userID, false).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LockSubmission locks a submission owned by userID for the rest of the
// transaction. See LockPart for the locking discipline.
func LockSubmission(ctx context.Context, tx *gorm.DB, id uint, userID string) (*domain.Submission, error) {
	if err := tx.WithContext(ctx).Exec(
		"UPDATE production_submissions SET id = id WHERE id = ? AND user_id = ?", id, userID,
	).Error; err != nil {
		return nil, err
	}
	var s domain.Submission
	err := forUpdate(tx.WithContext(ctx)).
		Where("id = ? AND user_id = ? AND deleted = ?", id, userID, false).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// HasRecentExact reports whether userID submitted exactly quantity to the
// part after since.
func HasRecentExact(ctx context.Context, db *gorm.DB, userID string, partID uint, quantity int, since time.Time) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Submission{}).
		Where("user_id = ? AND part_id = ? AND quantity = ? AND created_at > ? AND deleted = ?",
			userID, partID, quantity, since, false).
		Count(&n).Error
	return n > 0, err
}

// UpdateSubmissionQuantity sets a new quantity and updated_at.
func UpdateSubmissionQuantity(ctx context.Context, tx *gorm.DB, id uint, quantity int, at time.Time) error {
	return tx.WithContext(ctx).Model(&domain.Submission{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{"quantity": quantity, "updated_at": at}).Error
}

// DeleteSubmission hard-deletes a submission row.
func DeleteSubmission(ctx context.Context, tx *gorm.DB, id uint) error {
	res := tx.WithContext(ctx).Delete(&domain.Submission{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SumUserSince totals a user's live submissions to a part created at or
// after since.
func SumUserSince(ctx context.Context, db *gorm.DB, userID string, partID uint, since time.Time) (int, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Submission{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("user_id = ? AND part_id = ? AND created_at >= ? AND deleted = ?", userID, partID, since, false).
		Scan(&total).Error
	return int(total), err
}

// SumPartSince totals every live submission to a part created at or after
// since.
func SumPartSince(ctx context.Context, db *gorm.DB, partID uint, since time.Time) (int, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Submission{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("part_id = ? AND created_at >= ? AND deleted = ?", partID, since, false).
		Scan(&total).Error
	return int(total), err
}

// ListUserSubmissions returns a user's live submissions to a part created at
// or after since, newest first.
func ListUserSubmissions(ctx context.Context, db *gorm.DB, userID string, partID uint, since time.Time) ([]domain.Submission, error) {
	var out []domain.Submission
	err := db.WithContext(ctx).
		Where("user_id = ? AND part_id = ? AND created_at >= ? AND deleted = ?", userID, partID, since, false).
		Order("created_at DESC").Order("id DESC").
		Find(&out).Error
	return out, err
}

// ContributionsSince aggregates per-user totals for a part since the given
// time, largest first. The display name is the username on the user's most
// recent submission in that window.
func ContributionsSince(ctx context.Context, db *gorm.DB, partID uint, since time.Time) ([]domain.Contribution, error) {
	var rows []struct {
		UserID   string
		Username string
		Total    int64
	}
	err := db.WithContext(ctx).Model(&domain.Submission{}).
		Select(`user_id, (
			SELECT s2.username FROM production_submissions s2
			WHERE s2.user_id = production_submissions.user_id AND s2.part_id = ? AND s2.created_at >= ? AND s2.deleted = ?
			ORDER BY s2.id DESC LIMIT 1
		) AS username, SUM(quantity) AS total`, partID, since, false).
		Where("part_id = ? AND created_at >= ? AND deleted = ?", partID, since, false).
		Group("user_id").
		Order("total DESC").Order("user_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Contribution, 0, len(rows))
	for _, r := range rows {
		name := r.Username
		if name == "" {
			name = r.UserID
		}
		out = append(out, domain.Contribution{UserID: r.UserID, User: name, Total: int(r.Total)})
	}
	return out, nil
}
