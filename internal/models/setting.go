package models

import (
	"time"

	"gorm.io/datatypes"
)

// Setting is a database-backed configuration entry. Operators use these to
// override built-in policy (for example rate limit tables) without a
// redeploy; the settings package snapshots them at startup.
type Setting struct {
	Key       string         `gorm:"type:text;primaryKey"`                              // Configuration key.
	Value     datatypes.JSON `gorm:"type:jsonb"`                                        // JSON-encoded value.
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime;default:CURRENT_TIMESTAMP"` // Last update timestamp.
}
