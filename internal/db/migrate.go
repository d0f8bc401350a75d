package db

import (
	"fmt"

	"github.com/stampdesk/stampdesk/internal/models"
	"gorm.io/gorm"
)

// Migrate runs schema migrations for all loyalty models and creates the
// indexes the crediting path relies on.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if errAuto := conn.AutoMigrate(
		&models.Business{},
		&models.Program{},
		&models.Customer{},
		&models.ProgramEnrollment{},
		&models.RewardCard{},
		&models.LedgerEntry{},
		&models.EventMarker{},
		&models.Setting{},
	); errAuto != nil {
		return fmt.Errorf("db: migrate: %w", errAuto)
	}

	// At most one ACTIVE card per (customer, program). The store, not the
	// application, arbitrates concurrent card creation; a partial unique
	// index works on both PostgreSQL and SQLite.
	if errIdx := conn.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_reward_cards_active_tuple " +
			"ON reward_cards (customer_id, program_id) WHERE status = 'ACTIVE'",
	).Error; errIdx != nil {
		return fmt.Errorf("db: create active card index: %w", errIdx)
	}

	return nil
}
