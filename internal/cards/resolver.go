package cards

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/stampdesk/stampdesk/internal/db"
	"github.com/stampdesk/stampdesk/internal/models"
	"github.com/stampdesk/stampdesk/internal/resilience"
)

// Resolution errors.
var (
	// ErrNotEnrolled indicates no ACTIVE enrollment exists for the tuple.
	ErrNotEnrolled = errors.New("cards: customer not enrolled in program")
	// ErrCardCreationFailed indicates every creation strategy failed.
	ErrCardCreationFailed = errors.New("cards: card creation failed")
)

// Identity identifies a resolved reward card.
type Identity struct {
	ID         uint64 // Card primary key.
	CardUID    string // Opaque public identifier.
	CustomerID uint64 // Owning customer.
	BusinessID uint64 // Issuing business.
	ProgramID  uint64 // Program.
}

// Resolver finds or lazily creates the reward card for a
// (customer, business, program) tuple. Creation is race-safe: the partial
// unique index on active cards arbitrates concurrent creates, and a losing
// insert re-reads the winner instead of erroring.
type Resolver struct {
	conn       *gorm.DB
	exec       *resilience.Executor
	strategies []createStrategy
}

// NewResolver constructs a Resolver using the default creation ladder.
func NewResolver(conn *gorm.DB, exec *resilience.Executor) *Resolver {
	return &Resolver{
		conn:       conn,
		exec:       exec,
		strategies: defaultStrategies(),
	}
}

// Resolve returns the ACTIVE card identity for the tuple, creating the card
// when an active enrollment exists but no card does.
func (r *Resolver) Resolve(ctx context.Context, customerID, businessID, programID uint64) (Identity, error) {
	// Fast path: an existing active card needs no writes.
	card, errLookup := r.lookup(ctx, customerID, programID)
	if errLookup == nil {
		return identityOf(card), nil
	}
	if !errors.Is(errLookup, gorm.ErrRecordNotFound) {
		return Identity{}, errLookup
	}

	enrolled, errEnrolled := r.activeEnrollmentExists(ctx, customerID, programID)
	if errEnrolled != nil {
		return Identity{}, errEnrolled
	}
	if !enrolled {
		return Identity{}, ErrNotEnrolled
	}

	return r.create(ctx, customerID, businessID, programID)
}

// lookup fetches the ACTIVE card for the tuple.
func (r *Resolver) lookup(ctx context.Context, customerID, programID uint64) (models.RewardCard, error) {
	var card models.RewardCard
	errRun := r.exec.Run(ctx, "cards.lookup", func(runCtx context.Context) error {
		return r.conn.WithContext(runCtx).
			Where("customer_id = ? AND program_id = ? AND status = ?", customerID, programID, models.CardStatusActive).
			First(&card).Error
	})
	return card, errRun
}

// activeEnrollmentExists checks eligibility against the enrollment table.
func (r *Resolver) activeEnrollmentExists(ctx context.Context, customerID, programID uint64) (bool, error) {
	var count int64
	errRun := r.exec.Run(ctx, "cards.enrollment_check", func(runCtx context.Context) error {
		return r.conn.WithContext(runCtx).
			Model(&models.ProgramEnrollment{}).
			Where("customer_id = ? AND program_id = ? AND status = ?", customerID, programID, models.EnrollmentStatusActive).
			Count(&count).Error
	})
	if errRun != nil {
		return false, errRun
	}
	return count > 0, nil
}

// create walks the strategy ladder until one insert succeeds, a concurrent
// resolver wins the race, or the ladder is exhausted.
func (r *Resolver) create(ctx context.Context, customerID, businessID, programID uint64) (Identity, error) {
	cardUID := uuid.NewString()
	var lastErr error

	for _, strategy := range r.strategies {
		errRun := r.exec.Run(ctx, "cards.create."+strategy.name, func(runCtx context.Context) error {
			return strategy.create(r.conn.WithContext(runCtx), cardUID, customerID, businessID, programID)
		})
		if errRun == nil {
			card, errReread := r.lookup(ctx, customerID, programID)
			if errReread != nil {
				return Identity{}, errReread
			}
			return identityOf(card), nil
		}

		if db.IsUniqueViolation(errRun) {
			// Lost the creation race; the winner's card is the identity.
			card, errReread := r.lookup(ctx, customerID, programID)
			if errReread != nil {
				return Identity{}, errReread
			}
			return identityOf(card), nil
		}

		lastErr = errRun
		log.WithFields(log.Fields{
			"customer_id": customerID,
			"program_id":  programID,
			"strategy":    strategy.name,
		}).WithError(errRun).Warn("cards: creation strategy failed, trying next")
	}

	return Identity{}, fmt.Errorf("%w: %v", ErrCardCreationFailed, lastErr)
}

// identityOf converts a card row into an Identity.
func identityOf(card models.RewardCard) Identity {
	return Identity{
		ID:         card.ID,
		CardUID:    card.CardUID,
		CustomerID: card.CustomerID,
		BusinessID: card.BusinessID,
		ProgramID:  card.ProgramID,
	}
}
