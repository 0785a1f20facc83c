package eventsync

import (
	"strings"

	"github.com/dotcommander/forgotyet/internal/models"
)

// Matcher decides whether a fetched event corresponds to submitted text.
type Matcher interface {
	Match(submitted, rawInput string) bool
}

// MatchFunc adapts a function to Matcher.
type MatchFunc func(submitted, rawInput string) bool

// Match implements Matcher.
func (f MatchFunc) Match(submitted, rawInput string) bool { return f(submitted, rawInput) }

// Match policy names accepted by ParseMatcher.
const (
	PolicyContains = "contains"
	PolicyExact    = "exact"
)

// MatchExact requires the trimmed texts to be equal.
var MatchExact = MatchFunc(func(submitted, rawInput string) bool {
	return strings.TrimSpace(submitted) == strings.TrimSpace(rawInput)
})

// MatchContains accepts equality or containment in either direction, which
// tolerates the backend trimming or decorating the stored text. Empty text
// never matches.
var MatchContains = MatchFunc(func(submitted, rawInput string) bool {
	s, r := strings.TrimSpace(submitted), strings.TrimSpace(rawInput)
	if s == "" || r == "" {
		return false
	}
	return s == r || strings.Contains(r, s) || strings.Contains(s, r)
})

// ParseMatcher returns the named policy.
func ParseMatcher(name string) (Matcher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyContains:
		return MatchContains, nil
	case PolicyExact:
		return MatchExact, nil
	}
	return nil, &models.ValidationError{Field: "match_policy", Value: name, Reason: "must be contains or exact"}
}

func findMatch(m Matcher, events []models.Event, submitted string) (models.Event, bool) {
	for _, ev := range events {
		if m.Match(submitted, ev.RawInput) {
			return ev, true
		}
	}
	return models.Event{}, false
}
