package models

import (
	"encoding/json"
	"strings"
	"time"
)

// EventStatus is the backend lifecycle state of a reminder.
type EventStatus string

// Event status constants.
const (
	EventStatusPending   EventStatus = "PENDING"
	EventStatusDelivered EventStatus = "DELIVERED"
	EventStatusSilent    EventStatus = "SILENT"
	EventStatusCanceled  EventStatus = "CANCELED"
)

// IsTerminal reports whether the reminder can no longer fire.
func (s EventStatus) IsTerminal() bool {
	return s == EventStatusDelivered || s == EventStatusSilent || s == EventStatusCanceled
}

// Feedback is the user's judgement of a delivered reminder's timing.
type Feedback string

// Feedback constants. The zero value means no feedback was given.
const (
	FeedbackEarly Feedback = "EARLY"
	FeedbackGood  Feedback = "GOOD"
	FeedbackLate  Feedback = "LATE"
)

// ParseFeedback accepts feedback values case-insensitively.
func ParseFeedback(s string) (Feedback, error) {
	switch Feedback(strings.ToUpper(strings.TrimSpace(s))) {
	case FeedbackEarly:
		return FeedbackEarly, nil
	case FeedbackGood:
		return FeedbackGood, nil
	case FeedbackLate:
		return FeedbackLate, nil
	}
	return "", &ValidationError{Field: "feedback", Value: s, Reason: "must be one of early, good, late"}
}

// Event is a reminder record as returned by the backend.
type Event struct {
	ID            int64       `json:"id"`
	RawInput      string      `json:"rawInput"`
	EventTime     Timestamp   `json:"eventTime"`
	TriggerTime   Timestamp   `json:"triggerTime"`
	Status        EventStatus `json:"status"`
	Feedback      Feedback    `json:"feedback,omitempty"`
	TriggerReason string      `json:"triggerReason,omitempty"`
}

// Timestamp decodes the backend's timestamps, which may arrive as RFC 3339,
// as zone-less local date-times, or as epoch milliseconds.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	if !strings.HasPrefix(s, `"`) {
		var ms int64
		if err := json.Unmarshal(b, &ms); err != nil {
			return err
		}
		t.Time = time.UnixMilli(ms)
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.ParseInLocation(layout, raw, time.Local)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}
