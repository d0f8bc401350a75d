package notify

import "time"

// Event announces a balance change. EventID equals the idempotency key of
// the triggering credit, so a retried credit that no-op'd produces the same
// event and deduplicates instead of re-notifying. The shape is fixed on
// purpose: observers key their own idempotency off EventID.
type Event struct {
	EventID      string    `json:"event_id"`      // Idempotency key of the credit.
	CardID       uint64    `json:"card_id"`       // Credited card primary key.
	CardUID      string    `json:"card_uid"`      // Public card identifier.
	CustomerID   uint64    `json:"customer_id"`   // Card owner.
	ProgramID    uint64    `json:"program_id"`    // Program the card belongs to.
	NewBalance   int64     `json:"new_balance"`   // Balance after the credit.
	DeltaApplied int64     `json:"delta_applied"` // Points applied by the credit.
	EmittedAt    time.Time `json:"emitted_at"`    // Publish time.
}
