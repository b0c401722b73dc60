package store

import (
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrStoreBusy means lock contention outlasted busy_timeout and every
	// retry. The operation was not applied; callers may retry.
	ErrStoreBusy = errors.New("store busy")

	// ErrStoreCorrupt means the file on disk is not a readable database.
	ErrStoreCorrupt = errors.New("store corrupt")

	// ErrStoreUnavailable means the store cannot be opened, read or written
	// (permissions, disk full, I/O failure).
	ErrStoreUnavailable = errors.New("store unavailable")
)

// sqliteCode returns the primary SQLite result code of err, or 0.
func sqliteCode(err error) int {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() & 0xff
	}
	return 0
}

func isBusy(err error) bool {
	if err == nil || errors.Is(err, ErrStoreBusy) {
		return err != nil
	}
	switch sqliteCode(err) {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// classify wraps err with op and, where the SQLite code says so, one of the
// store sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreBusy) || errors.Is(err, ErrStoreCorrupt) || errors.Is(err, ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if isBusy(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrStoreBusy, err)
	}
	switch sqliteCode(err) {
	case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
		return fmt.Errorf("%s: %w: %w", op, ErrStoreCorrupt, err)
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_READONLY,
		sqlite3.SQLITE_FULL, sqlite3.SQLITE_PERM:
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
