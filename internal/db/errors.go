package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ErrConflict reports a uniqueness violation (duplicate name, day, or
// comment for the same post and user).
var ErrConflict = errors.New("conflict")

const mysqlDuplicateEntry = 1062

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// isRetryable identifies transient SQLite lock errors.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	// modernc/sqlite errors are commonly surfaced as strings containing these.
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "sqlite_busy") ||
		strings.Contains(s, "busy") ||
		strings.Contains(s, "locked")
}

// withRetry runs a write, retrying a few times on transient lock errors.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		err = fn()
		if !isRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return err
}

// fail logs a store failure and returns it wrapped with op.
// Uniqueness violations come back as ErrConflict.
func (d *DB) fail(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		d.log.DebugContext(ctx, "unique violation", "op", op, "err", err)
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	d.log.ErrorContext(ctx, "store failure", "op", op, "err", err)
	return fmt.Errorf("%s: %w", op, err)
}
