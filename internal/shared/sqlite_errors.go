// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteCode returns the primary SQLite result code carried by err, or 0.
func sqliteCode(err error) int {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return 0
	}
	// Extended result codes keep the primary code in the low byte.
	return se.Code() & 0xff
}

// IsSQLiteBusyError checks if the error is a SQLITE_BUSY error.
// This occurs when the database is locked by another connection.
func IsSQLiteBusyError(err error) bool {
	return err != nil && sqliteCode(err) == sqlite3.SQLITE_BUSY
}

// IsSQLiteLockedError checks if the error is a SQLITE_LOCKED error.
func IsSQLiteLockedError(err error) bool {
	return err != nil && sqliteCode(err) == sqlite3.SQLITE_LOCKED
}

// IsSQLiteConflictError checks if the error is either SQLITE_BUSY or
// SQLITE_LOCKED. Both are concurrency errors that warrant a retry.
func IsSQLiteConflictError(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}
