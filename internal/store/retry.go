package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	sqlite3 "modernc.org/sqlite/lib"
)

// RetryWithBackoff retries operation with exponential backoff while SQLite
// reports the database as busy or locked, which happens when watch and a
// one-shot command write at the same time. Any other error stops at once.
func RetryWithBackoff(ctx context.Context, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	b.RandomizationFactor = 0.1

	return backoff.Retry(func() error {
		err := operation()
		if err == nil || isRetryableError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
}

type sqliteCoder interface {
	Code() int
}

// isRetryableError matches SQLITE_BUSY and SQLITE_LOCKED, including their
// extended codes. Wrapped or re-formatted errors fall back to the message text.
func isRetryableError(err error) bool {
	var coded sqliteCoder
	if errors.As(err, &coded) {
		switch coded.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
