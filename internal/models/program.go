package models

import "time"

// Program represents a loyalty program owned by a business.
type Program struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	BusinessID uint64    `gorm:"not null;index"`           // Owning business ID.
	Business   *Business `gorm:"foreignKey:BusinessID"`    // Owning business record.
	Name       string    `gorm:"type:text;not null"`       // Display name.
	PointsName string    `gorm:"type:text;default:points"` // Unit label shown to customers.
	IsActive   bool      `gorm:"not null;default:true"`    // Whether new enrollments are accepted.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
