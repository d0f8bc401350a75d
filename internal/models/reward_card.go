package models

import "time"

// Reward card statuses.
const (
	// CardStatusActive marks a card that can be credited.
	CardStatusActive = "ACTIVE"
	// CardStatusInactive marks a deactivated card. Cards are never deleted.
	CardStatusInactive = "INACTIVE"
)

// RewardCard holds the authoritative point balance for one
// (customer, business, program) tuple. At most one ACTIVE card may exist
// per (customer, program); the partial unique index created by Migrate
// enforces this across process instances.
type RewardCard struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CardUID string `gorm:"type:text;not null;uniqueIndex"` // Opaque public identifier, stable once created.

	CustomerID uint64 `gorm:"not null;index"` // Owning customer ID.
	BusinessID uint64 `gorm:"not null;index"` // Issuing business ID.
	ProgramID  uint64 `gorm:"not null;index"` // Program the card belongs to.

	Balance int64  `gorm:"not null;default:0"`                      // Authoritative point balance, non-negative.
	Status  string `gorm:"type:text;not null;default:ACTIVE;index"` // ACTIVE or INACTIVE.

	LastCreditedAt *time.Time // Time of the most recent credit, if any.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
