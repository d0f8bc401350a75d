package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(policies map[string]Policy) (*Limiter, *time.Time) {
	limiter := New(policies)
	current := time.Unix(1700000000, 0)
	limiter.now = func() time.Time { return current }
	return limiter, &current
}

func TestAdmitWindowBoundary(t *testing.T) {
	limiter, _ := newTestLimiter(map[string]Policy{
		OpCredit: {MaxAttempts: 5, Window: time.Minute, Block: 2 * time.Minute},
	})

	for i := 0; i < 5; i++ {
		if d := limiter.Admit("actor-1", OpCredit); !d.Allowed() {
			t.Fatalf("call %d: expected allowed, got %s", i+1, d.Outcome)
		}
	}

	d := limiter.Admit("actor-1", OpCredit)
	if d.Outcome != OutcomeBlocked {
		t.Fatalf("6th call: expected blocked, got %s", d.Outcome)
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", d.RetryAfter)
	}
}

func TestAdmitUnblocksAfterBlockElapses(t *testing.T) {
	limiter, current := newTestLimiter(map[string]Policy{
		OpCredit: {MaxAttempts: 2, Window: time.Minute, Block: 2 * time.Minute},
	})

	limiter.Admit("actor-1", OpCredit)
	limiter.Admit("actor-1", OpCredit)
	if d := limiter.Admit("actor-1", OpCredit); d.Outcome != OutcomeBlocked {
		t.Fatalf("expected blocked, got %s", d.Outcome)
	}

	*current = current.Add(2*time.Minute + time.Second)
	if d := limiter.Admit("actor-1", OpCredit); !d.Allowed() {
		t.Fatalf("expected allowed after block elapsed, got %s", d.Outcome)
	}
}

func TestAdmitBlockedCallDoesNotRearmTimer(t *testing.T) {
	limiter, current := newTestLimiter(map[string]Policy{
		OpCredit: {MaxAttempts: 1, Window: time.Hour, Block: time.Minute},
	})

	limiter.Admit("actor-1", OpCredit)
	first := limiter.Admit("actor-1", OpCredit)
	if first.Outcome != OutcomeBlocked {
		t.Fatalf("expected blocked, got %s", first.Outcome)
	}

	// Hammering while blocked must not extend the block window.
	*current = current.Add(30 * time.Second)
	during := limiter.Admit("actor-1", OpCredit)
	if during.Outcome != OutcomeBlocked {
		t.Fatalf("expected still blocked, got %s", during.Outcome)
	}
	if during.RetryAfter > 30*time.Second {
		t.Fatalf("block timer was re-armed: retry-after %v", during.RetryAfter)
	}
}

func TestAdmitDailyCap(t *testing.T) {
	limiter, current := newTestLimiter(map[string]Policy{
		OpCredit: {MaxAttempts: 100, Window: time.Minute, Block: time.Minute, DailyLimit: 3},
	})

	for i := 0; i < 3; i++ {
		if d := limiter.Admit("actor-1", OpCredit); !d.Allowed() {
			t.Fatalf("call %d: expected allowed, got %s", i+1, d.Outcome)
		}
		*current = current.Add(2 * time.Minute)
	}

	d := limiter.Admit("actor-1", OpCredit)
	if d.Outcome != OutcomeDailyCap {
		t.Fatalf("expected daily cap, got %s", d.Outcome)
	}
	if d.ResetAt.IsZero() {
		t.Fatalf("expected reset time for daily cap")
	}

	*current = current.Add(24 * time.Hour)
	if d := limiter.Admit("actor-1", OpCredit); !d.Allowed() {
		t.Fatalf("expected allowed after daily reset, got %s", d.Outcome)
	}
}

func TestAdmitActorsAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(map[string]Policy{
		OpCredit: {MaxAttempts: 1, Window: time.Minute, Block: time.Minute},
	})

	limiter.Admit("actor-1", OpCredit)
	if d := limiter.Admit("actor-1", OpCredit); d.Outcome != OutcomeBlocked {
		t.Fatalf("expected actor-1 blocked, got %s", d.Outcome)
	}
	if d := limiter.Admit("actor-2", OpCredit); !d.Allowed() {
		t.Fatalf("expected actor-2 allowed, got %s", d.Outcome)
	}
}

func TestAdmitOperationsAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(nil)

	for i := 0; i < 5; i++ {
		limiter.Admit("actor-1", OpEnroll)
	}
	if d := limiter.Admit("actor-1", OpEnroll); d.Outcome != OutcomeBlocked {
		t.Fatalf("expected enroll blocked, got %s", d.Outcome)
	}
	if d := limiter.Admit("actor-1", OpCredit); !d.Allowed() {
		t.Fatalf("expected credit unaffected, got %s", d.Outcome)
	}
}

func TestSetPolicyOverride(t *testing.T) {
	limiter, _ := newTestLimiter(nil)
	limiter.SetPolicy(OpCredit, Policy{MaxAttempts: 1, Window: time.Minute, Block: time.Minute})

	limiter.Admit("actor-1", OpCredit)
	if d := limiter.Admit("actor-1", OpCredit); d.Outcome != OutcomeBlocked {
		t.Fatalf("expected override policy to apply, got %s", d.Outcome)
	}

	// Invalid overrides are ignored.
	limiter.SetPolicy(OpCredit, Policy{MaxAttempts: 0})
	if _, ok := limiter.policies[OpCredit]; !ok {
		t.Fatalf("policy removed by invalid override")
	}
}
