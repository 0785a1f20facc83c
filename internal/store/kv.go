package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Keys persisted by the authentication flow.
const (
	KeyToken       = "token"
	KeyAuthChannel = "auth_channel"
	KeyLastEmail   = "last_email"
	KeyLastPhone   = "last_phone"
)

// KV is a durable string key-value store backed by the kv table.
// It satisfies auth.SessionStore.
type KV struct {
	db *sql.DB
}

// NewKV returns a KV over an initialized database.
func NewKV(db *sql.DB) *KV {
	return &KV{db: db}
}

// Get returns the value for key and whether it was present.
func (s *KV) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(context.Background(), `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts key.
func (s *KV) Set(key, value string) error {
	return RetryWithBackoff(context.Background(), func() error {
		_, err := s.db.ExecContext(context.Background(), `
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		`, key, value)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
		return nil
	})
}

// Clear removes the given keys in one transaction. Missing keys are ignored.
func (s *KV) Clear(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return Transact(context.Background(), s.db, func(tx *sql.Tx) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(context.Background(), `DELETE FROM kv WHERE key = ?`, key); err != nil {
				return fmt.Errorf("failed to clear %s: %w", key, err)
			}
		}
		return nil
	})
}
