package domain

import "time"

// Key kinds recorded in the processed-key audit table.
const (
	KeyKindSubmit = "submit"
	KeyKindEdit   = "edit"
	KeyKindDelete = "delete"
)

// ProcessedKey records an idempotency key that produced an accepted mutation,
// keyed by (user_id, kind, key). The table keeps the most recent rows per
// user and kind so that retries arriving after the short-lived cache entry
// expired are still recognized.
type ProcessedKey struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_kind_key,priority:1;index:idx_user_kind,priority:1"`
	Kind      string    `gorm:"type:varchar(16);not null;uniqueIndex:ux_user_kind_key,priority:2;index:idx_user_kind,priority:2"`
	Key       string    `gorm:"column:idem_key;type:varchar(255);not null;uniqueIndex:ux_user_kind_key,priority:3"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName implements the GORM tabler interface.
func (ProcessedKey) TableName() string { return "production_processed_keys" }
