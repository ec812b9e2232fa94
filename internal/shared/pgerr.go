package shared

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes the repositories translate.
const (
	pgUniqueViolation  = "23505"
	pgLockNotAvailable = "55P03"
	pgDeadlock         = "40P01"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports whether err is a postgres unique_violation.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == pgUniqueViolation
}

// IsLockContention reports a lock_timeout expiry or a deadlock victim. Both
// leave the transaction rolled back and safe to retry.
func IsLockContention(err error) bool {
	switch pgCode(err) {
	case pgLockNotAvailable, pgDeadlock:
		return true
	}
	return false
}
