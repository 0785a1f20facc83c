package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dotcommander/forgotyet/internal/models"
)

// EventCache persists the most recent fetched event list so it can be shown
// without a network round trip. It satisfies eventsync.CacheSink.
type EventCache struct {
	db *sql.DB
}

// NewEventCache returns an EventCache over an initialized database.
func NewEventCache(db *sql.DB) *EventCache {
	return &EventCache{db: db}
}

// SaveEvents replaces the snapshot with events, preserving their order.
func (c *EventCache) SaveEvents(events []models.Event) error {
	return Transact(context.Background(), c.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(context.Background(), `DELETE FROM event_cache`); err != nil {
			return fmt.Errorf("failed to clear event cache: %w", err)
		}
		for i, e := range events {
			_, err := tx.ExecContext(context.Background(), `
				INSERT INTO event_cache (position, id, raw_input, event_time, trigger_time, status, feedback, trigger_reason)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, i, e.ID, e.RawInput, nullTime(e.EventTime.Time), nullTime(e.TriggerTime.Time),
				string(e.Status), nullString(string(e.Feedback)), nullString(e.TriggerReason))
			if err != nil {
				return fmt.Errorf("failed to cache event %d: %w", e.ID, err)
			}
		}
		return nil
	})
}

// LoadEvents returns the cached snapshot in its original order, and when it was written.
func (c *EventCache) LoadEvents() ([]models.Event, time.Time, error) {
	rows, err := c.db.QueryContext(context.Background(), `
		SELECT id, raw_input, event_time, trigger_time, status, feedback, trigger_reason, fetched_at
		FROM event_cache
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query event cache: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		out       []models.Event
		fetchedAt time.Time
	)
	for rows.Next() {
		var (
			e                      models.Event
			eventTime, triggerTime sql.NullTime
			status                 string
			feedback, reason       sql.NullString
			rowFetched             time.Time
		)
		if err := rows.Scan(&e.ID, &e.RawInput, &eventTime, &triggerTime, &status, &feedback, &reason, &rowFetched); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan cached event: %w", err)
		}
		e.EventTime = models.Timestamp{Time: eventTime.Time}
		e.TriggerTime = models.Timestamp{Time: triggerTime.Time}
		e.Status = models.EventStatus(status)
		e.Feedback = models.Feedback(feedback.String)
		e.TriggerReason = reason.String
		fetchedAt = rowFetched
		out = append(out, e)
	}
	return out, fetchedAt, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
