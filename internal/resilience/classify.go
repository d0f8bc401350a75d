package resilience

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// pgRetryableCodes lists PostgreSQL error codes worth retrying: connection
// exceptions (class 08), serialization failure, deadlock, too many
// connections and server-starting-up.
var pgRetryableCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"57P03": true, // cannot_connect_now
}

// retryableFragments matches driver error strings that indicate a transient
// condition when no structured code is available (SQLite, net errors
// wrapped as plain strings).
var retryableFragments = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"database is locked",
	"database table is locked",
	"too many connections",
	"temporarily unavailable",
	"try again",
	"deadlock",
	"serialization",
}

// Retryable classifies an error as transient. Everything not recognized
// here is terminal and propagates immediately, constraint violations and
// application-level validation errors included.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// A timed-out call may still have applied its effect; retrying is
		// only safe because the ledger is idempotent.
		return true
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgRetryableCodes[pgErr.Code] {
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08")
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
