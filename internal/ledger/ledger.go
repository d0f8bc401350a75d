package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/stampdesk/stampdesk/internal/cards"
	"github.com/stampdesk/stampdesk/internal/db"
	"github.com/stampdesk/stampdesk/internal/models"
	"github.com/stampdesk/stampdesk/internal/resilience"
)

// Credit errors.
var (
	// ErrCardInactive indicates the card exists but is deactivated.
	ErrCardInactive = errors.New("ledger: card inactive")
	// ErrCardNotFound indicates the card identity does not match a row.
	ErrCardNotFound = errors.New("ledger: card not found")
	// ErrInvalidDelta indicates a non-positive delta.
	ErrInvalidDelta = errors.New("ledger: delta must be positive")
	// ErrMissingIdempotencyKey indicates an empty idempotency key.
	ErrMissingIdempotencyKey = errors.New("ledger: idempotency key required")
)

// errDuplicateRace signals that a concurrent credit with the same key won
// the ledger insert; the transaction rolls back and the caller reads the
// committed balance instead.
var errDuplicateRace = errors.New("ledger: duplicate idempotency key race")

// Ledger applies point credits to reward cards. The card's balance column
// is the single authoritative balance: each credit is exactly one atomic
// increment of that column plus an append-only ledger entry, never a set of
// independent writes to redundant balance fields.
type Ledger struct {
	conn *gorm.DB
	exec *resilience.Executor
}

// New constructs a Ledger.
func New(conn *gorm.DB, exec *resilience.Executor) *Ledger {
	return &Ledger{conn: conn, exec: exec}
}

// Credit applies delta points to the card. A credit that carries an
// idempotency key already recorded for the card is a no-op success that
// returns the current balance. The returned balance always equals the
// card's balance after the call.
func (l *Ledger) Credit(ctx context.Context, card cards.Identity, delta int64, source, description, idempotencyKey string) (int64, error) {
	if delta <= 0 {
		return 0, ErrInvalidDelta
	}
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		return 0, ErrMissingIdempotencyKey
	}

	var newBalance int64
	var applied bool
	errRun := l.exec.RunTransaction(ctx, "ledger.credit", l.conn, func(tx *gorm.DB) error {
		applied = false
		var existing models.LedgerEntry
		errFind := tx.Where("card_id = ? AND idempotency_key = ?", card.ID, key).First(&existing).Error
		if errFind == nil {
			// Already applied; report the current balance without touching it.
			return readBalance(tx, card.ID, &newBalance)
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return errFind
		}

		var row models.RewardCard
		if errCard := tx.Select("id", "status").First(&row, card.ID).Error; errCard != nil {
			if errors.Is(errCard, gorm.ErrRecordNotFound) {
				return ErrCardNotFound
			}
			return errCard
		}
		if row.Status != models.CardStatusActive {
			return ErrCardInactive
		}

		entry := models.LedgerEntry{
			EntryUID:       uuid.NewString(),
			CardID:         card.ID,
			Delta:          delta,
			Source:         source,
			Description:    description,
			IdempotencyKey: key,
		}
		if errInsert := tx.Create(&entry).Error; errInsert != nil {
			if db.IsUniqueViolation(errInsert) {
				return errDuplicateRace
			}
			return errInsert
		}

		now := time.Now().UTC()
		if errUpdate := tx.Model(&models.RewardCard{}).
			Where("id = ?", card.ID).
			Updates(map[string]any{
				"balance":          gorm.Expr("balance + ?", delta),
				"last_credited_at": now,
			}).Error; errUpdate != nil {
			return errUpdate
		}
		if errRead := readBalance(tx, card.ID, &newBalance); errRead != nil {
			return errRead
		}
		applied = true
		return nil
	})

	if errRun != nil {
		if errors.Is(errRun, errDuplicateRace) {
			// The concurrent writer committed the delta; its balance is ours.
			balance, errBalance := l.Balance(ctx, card)
			if errBalance != nil {
				return 0, errBalance
			}
			return balance, nil
		}
		for _, terminal := range []error{ErrCardInactive, ErrCardNotFound} {
			if errors.Is(errRun, terminal) {
				return 0, terminal
			}
		}
		return 0, errRun
	}
	if applied {
		// The enrollment mirror is a read model, updated only after the
		// credit commits so a mirror failure can never abort a committed
		// credit. Reconcile repairs any drift lazily.
		l.mirrorBalance(ctx, card, newBalance)
	}
	return newBalance, nil
}

// mirrorBalance copies the committed balance onto the card's enrollment
// row. Failures are logged and swallowed.
func (l *Ledger) mirrorBalance(ctx context.Context, card cards.Identity, balance int64) {
	errRun := l.exec.Run(ctx, "ledger.mirror", func(runCtx context.Context) error {
		return l.conn.WithContext(runCtx).Model(&models.ProgramEnrollment{}).
			Where("customer_id = ? AND program_id = ?", card.CustomerID, card.ProgramID).
			Update("mirrored_balance", balance).Error
	})
	if errRun != nil {
		log.WithFields(log.Fields{
			"card_id":     card.ID,
			"customer_id": card.CustomerID,
			"program_id":  card.ProgramID,
		}).WithError(errRun).Warn("ledger: mirror update failed, will reconcile lazily")
	}
}

// Balance is the diagnostic read of a card's authoritative balance.
func (l *Ledger) Balance(ctx context.Context, card cards.Identity) (int64, error) {
	var balance int64
	errRun := l.exec.Run(ctx, "ledger.balance", func(runCtx context.Context) error {
		return readBalance(l.conn.WithContext(runCtx), card.ID, &balance)
	})
	if errRun != nil {
		if errors.Is(errRun, gorm.ErrRecordNotFound) {
			return 0, ErrCardNotFound
		}
		return 0, errRun
	}
	return balance, nil
}

// readBalance loads the card balance inside the given session.
func readBalance(tx *gorm.DB, cardID uint64, out *int64) error {
	var row models.RewardCard
	if errFind := tx.Select("balance").First(&row, cardID).Error; errFind != nil {
		return errFind
	}
	*out = row.Balance
	return nil
}
