// Package eventsync keeps the local event cache in step with the backend:
// fetching, submitting with read-after-write reconciliation, and confirmed
// feedback and cancellation.
package eventsync

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/dotcommander/forgotyet/internal/models"
	"github.com/dotcommander/forgotyet/internal/notify"
)

// Defaults for reconciliation and display.
const (
	DefaultLimit        = 10
	DefaultPollInterval = 1500 * time.Millisecond
	DefaultPollAttempts = 10
	DefaultSuccessTTL   = 2500 * time.Millisecond
)

var (
	errNotVisible = errors.New("submitted event not visible yet")
	errClosed     = errors.New("event sync engine is closed")
)

// Backend is the subset of the backend API the engine calls.
type Backend interface {
	ListEvents(ctx context.Context, limit int) ([]models.Event, error)
	AddEvent(ctx context.Context, content string) error
	SendFeedback(ctx context.Context, eventID int64, feedback models.Feedback) error
	CancelEvent(ctx context.Context, eventID int64) error
}

// CacheSink persists every cache snapshot.
type CacheSink interface {
	SaveEvents(events []models.Event) error
}

// Notifier surfaces transient messages.
type Notifier interface {
	Show(message string, sev notify.Severity) notify.Notice
	ShowFor(message string, sev notify.Severity, ttl time.Duration) notify.Notice
}

// Engine owns the cache of recent events. Status and feedback of a cached
// event only change after the backend acknowledged the change for that id.
type Engine struct {
	backend  Backend
	notices  Notifier
	sink     CacheSink
	logger   *slog.Logger
	matcher  Matcher
	limit    int
	interval time.Duration
	attempts int
	okTTL    time.Duration
	limiter  *rate.Limiter
	authed   func() bool

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	events     []models.Event
	fetchedAt  time.Time
	submitting bool
	busy       map[int64]bool
	polls      map[*Poll]struct{}
	closed     bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithCacheSink persists snapshots after every replacement or patch.
func WithCacheSink(s CacheSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMatcher sets the reconciliation match policy (default MatchContains).
func WithMatcher(m Matcher) Option {
	return func(e *Engine) {
		if m != nil {
			e.matcher = m
		}
	}
}

// WithPolling sets the reconciliation interval and the number of fetches
// issued after the immediate one.
func WithPolling(interval time.Duration, attempts int) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.interval = interval
		}
		if attempts >= 0 {
			e.attempts = attempts
		}
	}
}

// WithSuccessTTL sets how long the submission confirmation stays visible.
func WithSuccessTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.okTTL = d
		}
	}
}

// WithRefreshLimit bounds foreground refreshes.
func WithRefreshLimit(every time.Duration, burst int) Option {
	return func(e *Engine) { e.limiter = rate.NewLimiter(rate.Every(every), burst) }
}

// WithAuthenticated reports whether a session is active; foreground refreshes
// are skipped when it returns false.
func WithAuthenticated(fn func() bool) Option {
	return func(e *Engine) { e.authed = fn }
}

// New returns an engine with an empty cache.
func New(backend Backend, notices Notifier, opts ...Option) *Engine {
	e := &Engine{
		backend:  backend,
		notices:  notices,
		logger:   slog.Default(),
		matcher:  MatchContains,
		limit:    DefaultLimit,
		interval: DefaultPollInterval,
		attempts: DefaultPollAttempts,
		okTTL:    DefaultSuccessTTL,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		authed:   func() bool { return true },
		busy:     make(map[int64]bool),
		polls:    make(map[*Poll]struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	e.base, e.cancel = context.WithCancel(context.Background())
	return e
}

// Seed installs a previously persisted snapshot without touching the backend.
func (e *Engine) Seed(events []models.Event, fetchedAt time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = clip(events, e.limit)
	e.fetchedAt = fetchedAt
}

// Events returns a copy of the cache, most recent first.
func (e *Engine) Events() []models.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clip(e.events, e.limit)
}

// FetchedAt is when the cache was last replaced.
func (e *Engine) FetchedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fetchedAt
}

// Submitting reports whether a submission is outstanding.
func (e *Engine) Submitting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submitting
}

// FetchRecent replaces the cache with the most recent events and returns them.
// On failure the cache is untouched; a background fetch only logs the failure.
func (e *Engine) FetchRecent(ctx context.Context, background bool) ([]models.Event, error) {
	events, err := e.backend.ListEvents(ctx, e.limit)
	if err != nil {
		if background {
			e.logger.Warn("background refresh failed", "error", err.Error())
			return nil, err
		}
		e.notices.Show("Could not load events: "+err.Error(), notify.SeverityError)
		return nil, models.NewActionError("fetch events", models.ErrFetchFailed, err)
	}

	events = clip(events, e.limit)
	e.mu.Lock()
	e.events = events
	e.fetchedAt = time.Now()
	snapshot := clip(events, e.limit)
	e.mu.Unlock()

	e.persist(snapshot)
	return clip(events, e.limit), nil
}

// Foreground refreshes silently when a session is active and the refresh
// limiter allows it. It reports whether a fetch was issued and, if so, how it
// ended; a failed fetch leaves the cache as it was.
func (e *Engine) Foreground(ctx context.Context) (bool, error) {
	if !e.authed() || !e.limiter.Allow() {
		return false, nil
	}
	_, err := e.FetchRecent(ctx, true)
	return true, err
}

// Submit sends the draft's text as a new event. Blank input is ignored and
// returns a nil Poll. On success the draft is cleared and a reconciliation
// loop starts; its handle is returned.
func (e *Engine) Submit(ctx context.Context, d *Draft) (*Poll, error) {
	content := strings.TrimSpace(d.Text())
	if content == "" {
		return nil, nil
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errClosed
	}
	if e.submitting {
		e.mu.Unlock()
		return nil, models.ErrInFlight
	}
	e.submitting = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.submitting = false
		e.mu.Unlock()
	}()

	if err := e.backend.AddEvent(ctx, content); err != nil {
		e.logger.Warn("submission failed", "error", err.Error())
		e.notices.Show("Could not save: "+err.Error(), notify.SeverityError)
		return nil, models.NewActionError("submit", models.ErrSubmissionFailed, err)
	}

	d.Clear()
	e.notices.ShowFor("Saved. I'll remind you.", notify.SeveritySuccess, e.okTTL)
	return e.reconcile(content), nil
}

// reconcile starts the bounded read-after-write poll: one immediate silent
// fetch and up to e.attempts more at a fixed interval.
func (e *Engine) reconcile(content string) *Poll {
	ctx, cancel := context.WithCancel(e.base)
	p := newPoll(content, cancel)

	// Registration and closed share e.mu so Close never waits on a loop
	// that starts after it.
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		close(p.done)
		return p
	}
	e.polls[p] = struct{}{}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		defer close(p.done)
		defer cancel()
		defer e.forget(p)

		op := func() error {
			p.fetches.Add(1)
			events, err := e.FetchRecent(ctx, true)
			if err != nil {
				if errors.Is(err, models.ErrUnauthenticated) {
					return backoff.Permanent(err)
				}
				return errNotVisible
			}
			if ev, ok := findMatch(e.matcher, events, content); ok {
				p.setMatch(ev)
				return nil
			}
			return errNotVisible
		}

		policy := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(e.interval), uint64(e.attempts)), ctx)
		if err := backoff.Retry(op, policy); err != nil {
			e.logger.Info("reconciliation ended without a match", "fetches", p.Fetches(), "reason", err.Error())
			return
		}
		ev, _ := p.Matched()
		e.logger.Info("reconciled submission", "event_id", ev.ID, "fetches", p.Fetches())
	}()
	return p
}

func (e *Engine) forget(p *Poll) {
	e.mu.Lock()
	delete(e.polls, p)
	e.mu.Unlock()
}

// ApplyFeedback records feedback for an event and patches the cached copy once
// the backend confirms it.
func (e *Engine) ApplyFeedback(ctx context.Context, eventID int64, fb models.Feedback) error {
	fb, err := models.ParseFeedback(string(fb))
	if err != nil {
		e.notices.Show("Could not send feedback: "+err.Error(), notify.SeverityError)
		return err
	}
	if err := e.acquire(eventID); err != nil {
		return err
	}
	defer e.release(eventID)

	if err := e.backend.SendFeedback(ctx, eventID, fb); err != nil {
		actionErr := models.NewActionError("feedback", models.ErrFeedbackFailed, err)
		actionErr.EventID = eventID
		e.notices.Show("Could not send feedback: "+err.Error(), notify.SeverityError)
		return actionErr
	}

	e.patch(eventID, func(ev *models.Event) { ev.Feedback = fb })
	e.notices.Show("Thanks for the feedback", notify.SeveritySuccess)
	return nil
}

// RequestCancel opens the confirmation phase of a cancellation. Nothing is
// sent until the returned intent is confirmed.
func (e *Engine) RequestCancel(eventID int64) (*CancelIntent, error) {
	var verr *models.ValidationError
	if eventID <= 0 {
		verr = &models.ValidationError{Field: "event_id", Reason: "must be positive"}
	} else if ev, ok := e.cached(eventID); ok && ev.Status.IsTerminal() {
		verr = &models.ValidationError{Field: "status", Value: string(ev.Status), Reason: "event can no longer be canceled"}
	}
	if verr != nil {
		e.notices.Show("Could not cancel: "+verr.Error(), notify.SeverityError)
		return nil, verr
	}
	return &CancelIntent{engine: e, eventID: eventID}, nil
}

func (e *Engine) cancelEvent(ctx context.Context, eventID int64) error {
	if err := e.acquire(eventID); err != nil {
		return err
	}
	defer e.release(eventID)

	if err := e.backend.CancelEvent(ctx, eventID); err != nil {
		actionErr := models.NewActionError("cancel", models.ErrCancelFailed, err)
		actionErr.EventID = eventID
		e.notices.Show("Could not cancel: "+err.Error(), notify.SeverityError)
		return actionErr
	}

	e.patch(eventID, func(ev *models.Event) { ev.Status = models.EventStatusCanceled })
	e.notices.Show("Reminder canceled", notify.SeverityInfo)
	return nil
}

func (e *Engine) acquire(eventID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy[eventID] {
		return models.ErrInFlight
	}
	e.busy[eventID] = true
	return nil
}

func (e *Engine) release(eventID int64) {
	e.mu.Lock()
	delete(e.busy, eventID)
	e.mu.Unlock()
}

func (e *Engine) cached(eventID int64) (models.Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ev := range e.events {
		if ev.ID == eventID {
			return ev, true
		}
	}
	return models.Event{}, false
}

func (e *Engine) patch(eventID int64, fn func(*models.Event)) {
	e.mu.Lock()
	found := false
	for i := range e.events {
		if e.events[i].ID == eventID {
			fn(&e.events[i])
			found = true
			break
		}
	}
	snapshot := clip(e.events, e.limit)
	e.mu.Unlock()

	if found {
		e.persist(snapshot)
	}
}

func (e *Engine) persist(events []models.Event) {
	if e.sink == nil {
		return
	}
	if err := e.sink.SaveEvents(events); err != nil {
		e.logger.Warn("failed to persist event cache", "error", err.Error())
	}
}

// ActivePolls reports how many reconciliation loops are running.
func (e *Engine) ActivePolls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.polls)
}

// Close cancels every reconciliation loop and waits for them to stop.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()
	e.wg.Wait()
}

// clip copies at most n events.
func clip(events []models.Event, n int) []models.Event {
	if len(events) > n {
		events = events[:n]
	}
	out := make([]models.Event, len(events))
	copy(out, events)
	return out
}

// CancelIntent is a pending cancellation awaiting confirmation. It resolves
// exactly once.
type CancelIntent struct {
	engine  *Engine
	eventID int64

	mu       sync.Mutex
	resolved bool
}

// EventID is the event the intent targets.
func (ci *CancelIntent) EventID() int64 { return ci.eventID }

// Confirm sends the cancellation.
func (ci *CancelIntent) Confirm(ctx context.Context) error {
	if !ci.resolve() {
		return &models.ValidationError{Field: "cancel", Reason: "confirmation already resolved"}
	}
	return ci.engine.cancelEvent(ctx, ci.eventID)
}

// Abort drops the intent without contacting the backend.
func (ci *CancelIntent) Abort() {
	ci.resolve()
}

func (ci *CancelIntent) resolve() bool {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if ci.resolved {
		return false
	}
	ci.resolved = true
	return true
}
