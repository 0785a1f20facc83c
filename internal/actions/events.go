package actions

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dotcommander/forgotyet/internal/eventsync"
	"github.com/dotcommander/forgotyet/internal/models"
)

// EventView is an event with a human trigger hint.
type EventView struct {
	models.Event
	TriggerIn string `json:"trigger_in,omitempty"`
}

// ViewEvent attaches a relative trigger hint computed against now.
func ViewEvent(ev models.Event, now time.Time) EventView {
	v := EventView{Event: ev}
	if !ev.TriggerTime.IsZero() {
		v.TriggerIn = humanize.RelTime(ev.TriggerTime.Time, now, "ago", "from now")
	}
	return v
}

func viewEvents(events []models.Event, now time.Time) []EventView {
	out := make([]EventView, 0, len(events))
	for _, ev := range events {
		out = append(out, ViewEvent(ev, now))
	}
	return out
}

// EventListResult is the recent-events listing.
type EventListResult struct {
	Source    string      `json:"source"`
	FetchedAt *time.Time  `json:"fetched_at,omitempty"`
	Count     int         `json:"count"`
	Events    []EventView `json:"events"`
}

// ListEvents fetches the recent events, or reads the persisted snapshot when
// cached is set.
func ListEvents(ctx context.Context, r *Runtime, cached bool) (*EventListResult, error) {
	var (
		events []models.Event
		at     time.Time
		source = "backend"
	)
	if cached {
		var err error
		events, at, err = r.Cache.LoadEvents()
		if err != nil {
			return nil, err
		}
		source = "cache"
	} else {
		var err error
		events, err = r.Events.FetchRecent(ctx, false)
		if err != nil {
			return nil, err
		}
		at = r.Events.FetchedAt()
	}

	res := &EventListResult{Source: source, Count: len(events), Events: viewEvents(events, time.Now())}
	if !at.IsZero() {
		res.FetchedAt = &at
	}
	return res, nil
}

// SubmitResult describes a submission and, when waited for, its reconciliation.
type SubmitResult struct {
	Submitted  bool       `json:"submitted"`
	Content    string     `json:"content,omitempty"`
	Waited     bool       `json:"waited"`
	Reconciled bool       `json:"reconciled"`
	Fetches    int        `json:"fetches,omitempty"`
	Event      *EventView `json:"event,omitempty"`
}

// SubmitText submits text as a new reminder. Blank text is a no-op. With wait
// set it blocks until the reconciliation loop ends.
func SubmitText(ctx context.Context, r *Runtime, text string, wait bool) (*SubmitResult, error) {
	p, err := r.Submit(ctx, eventsync.NewDraft(text))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return &SubmitResult{}, nil
	}
	res := &SubmitResult{Submitted: true, Content: p.Text()}
	if wait {
		awaitPoll(ctx, r, p, res)
	}
	return res, nil
}

func awaitPoll(ctx context.Context, r *Runtime, p *eventsync.Poll, res *SubmitResult) {
	wctx, cancel := context.WithTimeout(ctx, r.DefaultWaitTimeout())
	defer cancel()

	ev, ok, err := p.Wait(wctx)
	if err != nil {
		p.Cancel()
	}
	res.Waited = true
	res.Fetches = p.Fetches()
	if ok {
		v := ViewEvent(ev, time.Now())
		res.Reconciled = true
		res.Event = &v
	}
}

// EventActionResult reports a confirmed feedback or cancellation.
type EventActionResult struct {
	EventID  int64      `json:"event_id"`
	Action   string     `json:"action"`
	Aborted  bool       `json:"aborted,omitempty"`
	Feedback string     `json:"feedback,omitempty"`
	Event    *EventView `json:"event,omitempty"`
}

func (r *Runtime) cachedView(id int64) *EventView {
	for _, ev := range r.Events.Events() {
		if ev.ID == id {
			v := ViewEvent(ev, time.Now())
			return &v
		}
	}
	return nil
}

// SendFeedback records early/good/late feedback for an event.
func SendFeedback(ctx context.Context, r *Runtime, eventID int64, raw string) (*EventActionResult, error) {
	fb, err := models.ParseFeedback(raw)
	if err != nil {
		return nil, err
	}
	if err := r.Events.ApplyFeedback(ctx, eventID, fb); err != nil {
		return nil, err
	}
	return &EventActionResult{EventID: eventID, Action: "feedback", Feedback: string(fb), Event: r.cachedView(eventID)}, nil
}

// CancelEvent asks confirm before cancelling the event; a declined
// confirmation aborts without contacting the backend.
func CancelEvent(ctx context.Context, r *Runtime, eventID int64, confirm func(eventID int64) bool) (*EventActionResult, error) {
	intent, err := r.Events.RequestCancel(eventID)
	if err != nil {
		return nil, err
	}
	if !confirm(eventID) {
		intent.Abort()
		return &EventActionResult{EventID: eventID, Action: "cancel", Aborted: true}, nil
	}
	if err := intent.Confirm(ctx); err != nil {
		return nil, err
	}
	return &EventActionResult{EventID: eventID, Action: "cancel", Event: r.cachedView(eventID)}, nil
}
