package repository

import (
	"errors"

	"github.com/uptrace/bun/driver/pgdriver"
	"modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when the targeted row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write would violate a uniqueness or
	// integrity rule (duplicate email, unknown role name, last-admin floor).
	ErrConflict = errors.New("conflict")
)

// isUniqueViolation detects unique-constraint failures across both supported
// drivers so callers can surface them as ErrConflict.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505" // unique_violation
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		code := sqErr.Code()
		// SQLITE_CONSTRAINT and its PRIMARYKEY/UNIQUE extended codes.
		return code == 19 || code == 1555 || code == 2067
	}
	return false
}
