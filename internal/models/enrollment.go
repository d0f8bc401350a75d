package models

import "time"

// Enrollment statuses.
const (
	// EnrollmentStatusActive marks an enrollment eligible for crediting.
	EnrollmentStatusActive = "ACTIVE"
	// EnrollmentStatusCancelled marks a cancelled enrollment.
	EnrollmentStatusCancelled = "CANCELLED"
)

// ProgramEnrollment records a customer's membership in a program. It is the
// eligibility source of truth for card creation. MirroredBalance is a
// best-effort read-model copy of RewardCard.Balance; the card is
// authoritative and the mirror is reconciled lazily.
type ProgramEnrollment struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CustomerID uint64 `gorm:"not null;uniqueIndex:idx_enrollments_customer_program"` // Enrolled customer ID.
	ProgramID  uint64 `gorm:"not null;uniqueIndex:idx_enrollments_customer_program"` // Program ID.

	Status          string `gorm:"type:text;not null;default:ACTIVE;index"` // ACTIVE or CANCELLED.
	MirroredBalance int64  `gorm:"not null;default:0"`                      // Read-model copy of the card balance.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
