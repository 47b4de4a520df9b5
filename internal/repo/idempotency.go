// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides helpers for the processed-key audit
// table that backs idempotency beyond the short-lived cache.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-production-goals/internal/domain"
)

// HasProcessedKey reports whether the key was already accepted for the user
// and kind.
func HasProcessedKey(ctx context.Context, db *gorm.DB, userID, kind, key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, nil
	}
	var n int64
	err := db.WithContext(ctx).Model(&domain.ProcessedKey{}).
		Where("user_id = ? AND kind = ? AND idem_key = ?", userID, kind, key).
		Count(&n).Error
	return n > 0, err
}

// RecordProcessedKey inserts the key and trims the user's records of that
// kind to the newest keep rows. A unique violation returns ErrDuplicate.
func RecordProcessedKey(ctx context.Context, tx *gorm.DB, userID, kind, key string, now time.Time, keep int) error {
	rec := &domain.ProcessedKey{UserID: userID, Kind: kind, Key: key, CreatedAt: now}
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	if keep <= 0 {
		return nil
	}

	var cutoff []uint
	err := tx.WithContext(ctx).Model(&domain.ProcessedKey{}).
		Where("user_id = ? AND kind = ?", userID, kind).
		Order("id DESC").
		Offset(keep - 1).Limit(1).
		Pluck("id", &cutoff).Error
	if err != nil || len(cutoff) == 0 {
		return err
	}
	return tx.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND id < ?", userID, kind, cutoff[0]).
		Delete(&domain.ProcessedKey{}).Error
}
