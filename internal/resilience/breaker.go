package resilience

import (
	"sync"
	"time"
)

// Breaker states.
const (
	// BreakerClosed is the normal pass-through state.
	BreakerClosed = "CLOSED"
	// BreakerOpen fails calls fast until the cool-down elapses.
	BreakerOpen = "OPEN"
	// BreakerHalfOpen allows a single probe call.
	BreakerHalfOpen = "HALF_OPEN"
)

// Breaker is a circuit breaker guarding one underlying resource. It is an
// explicit, injectable instance rather than process-global state so tests
// and independent executors can own their own.
type Breaker struct {
	mu sync.Mutex

	threshold int
	coolDown  time.Duration

	state               string
	consecutiveFailures int
	lastFailureAt       time.Time
	openedAt            time.Time
	probeInFlight       bool

	now func() time.Time
}

// Breaker defaults copied from the observed production policy.
const (
	// DefaultBreakerThreshold is the consecutive failure count that opens
	// the breaker.
	DefaultBreakerThreshold = 5
	// DefaultBreakerCoolDown is how long the breaker stays open before
	// probing.
	DefaultBreakerCoolDown = 30 * time.Second
)

// NewBreaker constructs a closed breaker with the given policy. Zero values
// fall back to defaults.
func NewBreaker(threshold int, coolDown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	if coolDown <= 0 {
		coolDown = DefaultBreakerCoolDown
	}
	return &Breaker{
		threshold: threshold,
		coolDown:  coolDown,
		state:     BreakerClosed,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. While open it returns false
// until the cool-down elapses, then admits exactly one half-open probe.
func (b *Breaker) Allow() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.coolDown {
			return false
		}
		b.state = BreakerHalfOpen
		b.probeInFlight = true
		return true
	case BreakerHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return true
	}
}

// RecordSuccess closes the breaker and clears the failure streak.
func (b *Breaker) RecordSuccess() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerClosed
	b.consecutiveFailures = 0
	b.probeInFlight = false
}

// RecordFailure counts a retryable failure. Reaching the threshold, or any
// failure while half-open, opens the breaker and restarts the cool-down.
func (b *Breaker) RecordFailure() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.lastFailureAt = b.now()
	b.probeInFlight = false

	if b.state == BreakerHalfOpen || b.consecutiveFailures >= b.threshold {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}

// State returns the current breaker state name for logging.
func (b *Breaker) State() string {
	if b == nil {
		return BreakerClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
