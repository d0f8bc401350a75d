package models

import "time"

// Business represents a merchant tenant that runs loyalty programs.
type Business struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name     string `gorm:"type:text;not null"`             // Display name.
	Slug     string `gorm:"type:text;not null;uniqueIndex"` // URL-safe identifier.
	IsActive bool   `gorm:"not null;default:true"`          // Whether the business can award points.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
