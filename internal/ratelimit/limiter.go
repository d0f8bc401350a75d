package ratelimit

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Admission outcomes.
const (
	// OutcomeAllowed admits the call.
	OutcomeAllowed = "ALLOWED"
	// OutcomeBlocked denies the call until RetryAfter elapses.
	OutcomeBlocked = "BLOCKED"
	// OutcomeDailyCap denies the call until the daily counter resets.
	OutcomeDailyCap = "DAILY_CAP_REACHED"
)

// Decision is the result of an admission check.
type Decision struct {
	Outcome    string        // ALLOWED, BLOCKED or DAILY_CAP_REACHED.
	RetryAfter time.Duration // How long to wait when blocked.
	ResetAt    time.Time     // When the daily counter resets.
}

// Allowed reports whether the call may proceed.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllowed
}

// window tracks admission state for one (actor, operation) pair.
type window struct {
	windowStart  time.Time
	count        int
	dailyStart   time.Time
	dailyCount   int
	blockedUntil time.Time
}

// Limiter is a sliding-window, multi-tier rate limiter. It is an explicit
// instance, not process state, so each test owns an isolated one.
type Limiter struct {
	mu       sync.Mutex
	policies map[string]Policy
	fallback Policy
	windows  map[string]*window

	now func() time.Time
}

// New constructs a Limiter. A nil policy table uses the defaults.
func New(policies map[string]Policy) *Limiter {
	if policies == nil {
		policies = DefaultPolicies()
	}
	copied := make(map[string]Policy, len(policies))
	for op, p := range policies {
		copied[op] = p
	}
	return &Limiter{
		policies: copied,
		fallback: defaultFallback,
		windows:  make(map[string]*window),
		now:      time.Now,
	}
}

// SetPolicy replaces the policy for one operation type at runtime.
func (l *Limiter) SetPolicy(operation string, p Policy) {
	if p.MaxAttempts <= 0 || p.Window <= 0 || p.Block <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.policies[operation] = p
}

// Admit records an attempt by actorKey for the given operation and decides
// whether it may proceed. The short window is checked first, then the daily
// cap; both must pass. A call arriving while blocked still counts toward the
// window but never re-arms the block timer.
func (l *Limiter) Admit(actorKey, operation string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	policy, ok := l.policies[operation]
	if !ok {
		policy = l.fallback
	}

	now := l.now()
	key := actorKey + "|" + operation
	w := l.windows[key]
	if w == nil {
		w = &window{windowStart: now, dailyStart: now}
		l.windows[key] = w
	}

	if now.Sub(w.windowStart) > policy.Window {
		w.windowStart = now
		w.count = 0
	}
	if now.Sub(w.dailyStart) >= 24*time.Hour {
		w.dailyStart = now
		w.dailyCount = 0
	}

	if now.Before(w.blockedUntil) {
		w.count++
		return Decision{Outcome: OutcomeBlocked, RetryAfter: w.blockedUntil.Sub(now)}
	}

	w.count++
	if w.count > policy.MaxAttempts {
		w.blockedUntil = now.Add(policy.Block)
		log.WithFields(log.Fields{
			"actor":     actorKey,
			"operation": operation,
			"attempts":  w.count,
		}).Warn("ratelimit: actor blocked")
		return Decision{Outcome: OutcomeBlocked, RetryAfter: policy.Block}
	}

	if policy.DailyLimit > 0 {
		w.dailyCount++
		if w.dailyCount > policy.DailyLimit {
			resetAt := w.dailyStart.Add(24 * time.Hour)
			log.WithFields(log.Fields{
				"actor":     actorKey,
				"operation": operation,
				"attempts":  w.dailyCount,
			}).Warn("ratelimit: daily cap reached")
			return Decision{Outcome: OutcomeDailyCap, ResetAt: resetAt}
		}
	}

	return Decision{Outcome: OutcomeAllowed}
}
