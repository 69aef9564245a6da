package jobrepo

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// isDeadlock reports whether err is a Postgres deadlock (SQLSTATE 40001) or
// a driver-specific deadlock signal, using the same pgconn.PgError
// inspection pattern as isUniqueViolation.
func isDeadlock(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return strings.Contains(strings.ToLower(err.Error()), "sqlstate 40001") ||
		strings.Contains(strings.ToLower(err.Error()), "deadlock")
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505), used by Enqueue's idempotency-key race path.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "sqlstate 23505") ||
		strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
