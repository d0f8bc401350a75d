package cards

import (
	"time"

	"gorm.io/gorm"

	"github.com/stampdesk/stampdesk/internal/models"
)

// createStrategy is one rung of the card-creation ladder. Deployments in
// the middle of a schema migration have been observed rejecting the full
// insert while still accepting the required columns, so the ladder tries a
// minimal insert before giving up.
type createStrategy struct {
	name   string
	create func(tx *gorm.DB, cardUID string, customerID, businessID, programID uint64) error
}

// defaultStrategies returns the ordered creation ladder.
func defaultStrategies() []createStrategy {
	return []createStrategy{
		{name: "full", create: createFull},
		{name: "minimal", create: createMinimal},
	}
}

// createFull inserts a card through the model, covering every column the
// current schema declares.
func createFull(tx *gorm.DB, cardUID string, customerID, businessID, programID uint64) error {
	card := models.RewardCard{
		CardUID:    cardUID,
		CustomerID: customerID,
		BusinessID: businessID,
		ProgramID:  programID,
		Balance:    0,
		Status:     models.CardStatusActive,
	}
	return tx.Create(&card).Error
}

// createMinimal inserts only the columns every deployed schema shape has.
func createMinimal(tx *gorm.DB, cardUID string, customerID, businessID, programID uint64) error {
	now := time.Now().UTC()
	return tx.Exec(
		"INSERT INTO reward_cards (card_uid, customer_id, business_id, program_id, balance, status, created_at, updated_at) "+
			"VALUES (?, ?, ?, ?, 0, ?, ?, ?)",
		cardUID, customerID, businessID, programID, models.CardStatusActive, now, now,
	).Error
}
