package models

import (
	"time"

	"gorm.io/datatypes"
)

// EventMarker persists the most recent balance-changed event per card so
// late-joining observers can poll for it. One row per card, upserted on
// every publish.
type EventMarker struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CardID  uint64         `gorm:"not null;uniqueIndex"`             // Card the event belongs to.
	EventID string         `gorm:"type:text;not null"`               // Idempotency key of the triggering credit.
	Payload datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Serialized NotificationEvent.

	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last publish timestamp.
}
