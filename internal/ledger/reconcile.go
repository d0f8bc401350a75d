package ledger

import (
	"context"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/stampdesk/stampdesk/internal/cards"
	"github.com/stampdesk/stampdesk/internal/models"
)

// Report describes the outcome of a reconciliation pass over one card.
type Report struct {
	CardID      uint64 // Card checked.
	Balance     int64  // Authoritative card balance.
	LedgerSum   int64  // Sum of all ledger entry deltas.
	Consistent  bool   // Whether balance equals the ledger sum.
	MirrorFixed bool   // Whether the enrollment mirror was repaired.
}

// Reconcile verifies that the sum of ledger deltas equals the card balance
// and repairs the enrollment read-model mirror when it drifted. The card
// balance is never adjusted here; a balance/ledger mismatch is reported for
// operator attention instead of being papered over.
func (l *Ledger) Reconcile(ctx context.Context, card cards.Identity) (Report, error) {
	report := Report{CardID: card.ID}

	errRun := l.exec.RunTransaction(ctx, "ledger.reconcile", l.conn, func(tx *gorm.DB) error {
		report.MirrorFixed = false
		if errBalance := readBalance(tx, card.ID, &report.Balance); errBalance != nil {
			return errBalance
		}

		var sum int64
		if errSum := tx.Model(&models.LedgerEntry{}).
			Select("COALESCE(SUM(delta), 0)").
			Where("card_id = ?", card.ID).
			Scan(&sum).Error; errSum != nil {
			return errSum
		}
		report.LedgerSum = sum
		report.Consistent = report.Balance == report.LedgerSum

		var enrollment models.ProgramEnrollment
		errFind := tx.Where("customer_id = ? AND program_id = ?", card.CustomerID, card.ProgramID).
			First(&enrollment).Error
		if errFind != nil {
			return errFind
		}
		if enrollment.MirroredBalance != report.Balance {
			if errFix := tx.Model(&enrollment).
				Update("mirrored_balance", report.Balance).Error; errFix != nil {
				return errFix
			}
			report.MirrorFixed = true
		}
		return nil
	})
	if errRun != nil {
		return Report{}, errRun
	}

	if !report.Consistent {
		log.WithFields(log.Fields{
			"card_id":    report.CardID,
			"balance":    report.Balance,
			"ledger_sum": report.LedgerSum,
		}).Error("ledger: balance does not match ledger sum")
	}
	return report, nil
}
