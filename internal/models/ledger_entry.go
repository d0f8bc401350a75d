package models

import (
	"time"

	"gorm.io/datatypes"
)

// Ledger entry sources.
const (
	// LedgerSourceScan marks a credit triggered by a card scan.
	LedgerSourceScan = "SCAN"
	// LedgerSourceManual marks a credit entered by staff.
	LedgerSourceManual = "MANUAL"
	// LedgerSourceBonus marks a promotional credit.
	LedgerSourceBonus = "BONUS"
	// LedgerSourceSystem marks a credit applied by the platform itself.
	LedgerSourceSystem = "SYSTEM"
)

// LedgerEntry is the append-only record of a single credit. Entries are
// never mutated or deleted; the sum of deltas for a card equals the card
// balance. The composite unique index on (card_id, idempotency_key) is what
// makes a retried credit a no-op instead of a double application.
type LedgerEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	EntryUID string `gorm:"type:text;not null;uniqueIndex"` // Opaque public identifier.

	CardID uint64      `gorm:"not null;index;uniqueIndex:idx_ledger_card_idem"` // Credited card ID.
	Card   *RewardCard `gorm:"foreignKey:CardID"`                               // Credited card record.

	Delta       int64  `gorm:"not null"`           // Points applied, always positive.
	Source      string `gorm:"type:text;not null"` // SCAN, MANUAL, BONUS or SYSTEM.
	Description string `gorm:"type:text"`          // Human-readable reason.

	IdempotencyKey string `gorm:"type:text;not null;uniqueIndex:idx_ledger_card_idem"` // Caller-supplied dedup key.

	Metadata datatypes.JSON `gorm:"type:jsonb"` // Optional structured context.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
