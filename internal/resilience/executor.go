package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Executor errors.
var (
	// ErrCircuitOpen indicates the breaker rejected the call without
	// touching the underlying resource.
	ErrCircuitOpen = errors.New("resilience: circuit open")
	// ErrRetriesExhausted indicates the retry budget was spent on
	// transient failures.
	ErrRetriesExhausted = errors.New("resilience: retries exhausted")
)

// NonRetryableError wraps a terminal error so callers can distinguish it
// from exhaustion without losing the underlying cause.
type NonRetryableError struct {
	Err error
}

// Error implements the error interface.
func (e *NonRetryableError) Error() string {
	if e == nil || e.Err == nil {
		return "resilience: non-retryable"
	}
	return "resilience: non-retryable: " + e.Err.Error()
}

// Unwrap exposes the wrapped terminal error.
func (e *NonRetryableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Config controls retry and timeout policy for an Executor.
type Config struct {
	MaxRetries     int           // Retries after the first attempt.
	InitialDelay   time.Duration // Delay before the first retry.
	MaxDelay       time.Duration // Backoff cap.
	BackoffFactor  float64       // Multiplier between retries.
	JitterFraction float64       // Random spread applied to each delay.
	PerCallTimeout time.Duration // Deadline for a single attempt.
}

// DefaultConfig returns the observed production retry policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		BackoffFactor:  2,
		JitterFraction: 0.15,
		PerCallTimeout: 10 * time.Second,
	}
}

// Executor wraps store operations with timeout, exponential-backoff retry
// for transient failures, and a circuit breaker.
type Executor struct {
	cfg     Config
	breaker *Breaker
}

// New constructs an Executor. A nil breaker disables circuit breaking.
func New(cfg Config, breaker *Breaker) *Executor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig().InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig().MaxDelay
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = DefaultConfig().BackoffFactor
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return &Executor{cfg: cfg, breaker: breaker}
}

// Breaker returns the executor's breaker for diagnostics.
func (e *Executor) Breaker() *Breaker {
	return e.breaker
}

// Run executes op with the configured retry policy. Terminal errors return
// immediately wrapped in NonRetryableError; transient errors are retried
// with backoff until the budget is spent.
func (e *Executor) Run(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempts := e.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if e.breaker != nil && !e.breaker.Allow() {
			log.WithFields(log.Fields{
				"operation": name,
				"attempt":   attempt,
				"breaker":   e.breaker.State(),
			}).Warn("executor: circuit open, failing fast")
			return fmt.Errorf("%w: %s", ErrCircuitOpen, name)
		}

		attemptCtx := ctx
		cancel := func() {}
		if e.cfg.PerCallTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.PerCallTimeout)
		}
		start := time.Now()
		err := op(attemptCtx)
		cancel()
		elapsed := time.Since(start)

		if err == nil {
			if e.breaker != nil {
				e.breaker.RecordSuccess()
			}
			log.WithFields(log.Fields{
				"operation": name,
				"attempt":   attempt,
				"elapsed":   elapsed.String(),
			}).Debug("executor: operation succeeded")
			return nil
		}

		if !Retryable(err) {
			// The resource answered; the failure belongs to the operation,
			// not the resource. Recording success keeps a half-open probe
			// slot from staying reserved forever.
			if e.breaker != nil {
				e.breaker.RecordSuccess()
			}
			log.WithFields(log.Fields{
				"operation": name,
				"attempt":   attempt,
				"elapsed":   elapsed.String(),
			}).WithError(err).Warn("executor: terminal failure")
			return &NonRetryableError{Err: err}
		}

		if e.breaker != nil {
			e.breaker.RecordFailure()
		}
		lastErr = err
		log.WithFields(log.Fields{
			"operation": name,
			"attempt":   attempt,
			"elapsed":   elapsed.String(),
			"breaker":   e.breaker.State(),
		}).WithError(err).Warn("executor: retryable failure")

		if attempt < attempts {
			if errSleep := sleep(ctx, e.delay(attempt)); errSleep != nil {
				return &NonRetryableError{Err: errSleep}
			}
		}
	}

	return fmt.Errorf("%w: %s: %v", ErrRetriesExhausted, name, lastErr)
}

// RunTransaction executes fn inside a database transaction under the retry
// policy. A failed transaction rolls back before the whole of fn is retried;
// sub-steps are never re-applied individually.
func (e *Executor) RunTransaction(ctx context.Context, name string, conn *gorm.DB, fn func(tx *gorm.DB) error) error {
	return e.Run(ctx, name, func(runCtx context.Context) error {
		return conn.WithContext(runCtx).Transaction(fn)
	})
}

// delay computes the backoff for a retry following the given attempt.
func (e *Executor) delay(attempt int) time.Duration {
	backoff := float64(e.cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		backoff *= e.cfg.BackoffFactor
		if backoff >= float64(e.cfg.MaxDelay) {
			backoff = float64(e.cfg.MaxDelay)
			break
		}
	}
	if e.cfg.JitterFraction > 0 {
		spread := backoff * e.cfg.JitterFraction
		backoff += (rand.Float64()*2 - 1) * spread
	}
	if backoff < 0 {
		backoff = 0
	}
	if backoff > float64(e.cfg.MaxDelay) {
		backoff = float64(e.cfg.MaxDelay)
	}
	return time.Duration(backoff)
}

// sleep waits for d or until the context is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
