package eventsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/forgotyet/internal/api"
	"github.com/dotcommander/forgotyet/internal/models"
	"github.com/dotcommander/forgotyet/internal/notify"
)

type fakeBackend struct {
	mu sync.Mutex

	// lists is consumed one entry per ListEvents call; the last entry repeats.
	lists   [][]models.Event
	listErr error
	listN   int

	addErr   error
	added    []string
	fbErr    error
	feedback map[int64]models.Feedback
	cancErr  error
	canceled []int64
	release  chan struct{}
}

func (f *fakeBackend) ListEvents(ctx context.Context, limit int) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listN++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.lists) == 0 {
		return nil, nil
	}
	i := min(f.listN-1, len(f.lists)-1)
	return f.lists[i], nil
}

func (f *fakeBackend) AddEvent(_ context.Context, content string) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, content)
	return f.addErr
}

func (f *fakeBackend) SendFeedback(_ context.Context, id int64, fb models.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fbErr != nil {
		return f.fbErr
	}
	if f.feedback == nil {
		f.feedback = map[int64]models.Feedback{}
	}
	f.feedback[id] = fb
	return nil
}

func (f *fakeBackend) CancelEvent(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancErr != nil {
		return f.cancErr
	}
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakeBackend) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listN
}

func (f *fakeBackend) addCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.added)
}

type recordedNotice struct {
	msg string
	sev notify.Severity
	ttl time.Duration
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []recordedNotice
}

func (n *fakeNotifier) Show(message string, sev notify.Severity) notify.Notice {
	return n.ShowFor(message, sev, 0)
}

func (n *fakeNotifier) ShowFor(message string, sev notify.Severity, ttl time.Duration) notify.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, recordedNotice{message, sev, ttl})
	return notify.Notice{Message: message, Severity: sev}
}

func (n *fakeNotifier) all() []recordedNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]recordedNotice(nil), n.notices...)
}

func (n *fakeNotifier) errors() int {
	count := 0
	for _, r := range n.all() {
		if r.sev == notify.SeverityError {
			count++
		}
	}
	return count
}

type memSink struct {
	mu    sync.Mutex
	saves int
	last  []models.Event
}

func (s *memSink) SaveEvents(events []models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.last = events
	return nil
}

func event(id int64, raw string) models.Event {
	return models.Event{ID: id, RawInput: raw, Status: models.EventStatusPending}
}

func newTestEngine(t *testing.T, b *fakeBackend, opts ...Option) (*Engine, *fakeNotifier) {
	t.Helper()
	n := &fakeNotifier{}
	opts = append([]Option{WithPolling(time.Millisecond, DefaultPollAttempts)}, opts...)
	e := New(b, n, opts...)
	t.Cleanup(e.Close)
	return e, n
}

func waitPoll(t *testing.T, p *Poll) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := p.Wait(ctx)
	require.NoError(t, err)
}

func TestFetchRecent_ReplacesCacheAndBounds(t *testing.T) {
	var many []models.Event
	for i := int64(1); i <= 12; i++ {
		many = append(many, event(i, "note"))
	}
	sink := &memSink{}
	e, _ := newTestEngine(t, &fakeBackend{lists: [][]models.Event{many}}, WithCacheSink(sink))

	got, err := e.FetchRecent(context.Background(), false)
	require.NoError(t, err)

	assert.Len(t, got, DefaultLimit)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Len(t, e.Events(), DefaultLimit)
	assert.False(t, e.FetchedAt().IsZero())
	assert.Equal(t, 1, sink.saves)
}

func TestFetchRecent_FailureLeavesCache(t *testing.T) {
	b := &fakeBackend{lists: [][]models.Event{{event(1, "a")}}}
	e, n := newTestEngine(t, b)
	_, err := e.FetchRecent(context.Background(), false)
	require.NoError(t, err)

	b.listErr = &api.TransportError{Op: "list events", Err: errors.New("reset")}

	_, err = e.FetchRecent(context.Background(), true)
	require.Error(t, err)
	assert.Zero(t, n.errors(), "background failures are not surfaced")
	assert.Equal(t, []models.Event{event(1, "a")}, e.Events())

	_, err = e.FetchRecent(context.Background(), false)
	assert.ErrorIs(t, err, models.ErrTransport)
	assert.Equal(t, 1, n.errors())
	assert.Equal(t, []models.Event{event(1, "a")}, e.Events())
}

func TestSubmit_BlankIsNoop(t *testing.T) {
	b := &fakeBackend{}
	e, n := newTestEngine(t, b)

	for _, content := range []string{"", "   ", "\n\t"} {
		p, err := e.Submit(context.Background(), NewDraft(content))
		assert.NoError(t, err)
		assert.Nil(t, p)
	}
	assert.Zero(t, b.addCalls())
	assert.Zero(t, b.listCalls())
	assert.Empty(t, n.all())
}

func TestSubmit_SuccessClearsDraftAndNotifies(t *testing.T) {
	b := &fakeBackend{lists: [][]models.Event{{event(7, "call mom at 5")}}}
	e, n := newTestEngine(t, b)
	d := NewDraft("  call mom at 5 ")

	p, err := e.Submit(context.Background(), d)
	require.NoError(t, err)
	require.NotNil(t, p)
	waitPoll(t, p)

	assert.Empty(t, d.Text())
	assert.Equal(t, []string{"call mom at 5"}, b.added)
	assert.False(t, e.Submitting())

	notices := n.all()
	require.Len(t, notices, 1)
	assert.Equal(t, notify.SeveritySuccess, notices[0].sev)
	assert.Equal(t, DefaultSuccessTTL, notices[0].ttl)

	ev, ok := p.Matched()
	require.True(t, ok)
	assert.Equal(t, int64(7), ev.ID)
	assert.Equal(t, 1, p.Fetches())
}

func TestSubmit_RejectionKeepsDraft(t *testing.T) {
	b := &fakeBackend{
		lists:  [][]models.Event{{event(1, "existing")}},
		addErr: &api.Error{HTTPStatus: 200, Code: 500, Msg: "quota exceeded"},
	}
	e, n := newTestEngine(t, b)
	_, err := e.FetchRecent(context.Background(), false)
	require.NoError(t, err)
	before := e.Events()
	d := NewDraft("water plants")

	p, err := e.Submit(context.Background(), d)

	assert.Nil(t, p)
	assert.ErrorIs(t, err, models.ErrSubmissionFailed)
	assert.Equal(t, "water plants", d.Text())
	assert.False(t, e.Submitting())
	assert.Equal(t, 1, n.errors())
	assert.Equal(t, before, e.Events())
	assert.Equal(t, 1, b.listCalls())
}

func TestSubmit_TransportFailureClearsFlag(t *testing.T) {
	b := &fakeBackend{addErr: &api.TransportError{Op: "add event", Err: errors.New("timeout")}}
	e, _ := newTestEngine(t, b)

	_, err := e.Submit(context.Background(), NewDraft("x"))
	assert.ErrorIs(t, err, models.ErrTransport)
	assert.False(t, e.Submitting())
}

func TestSubmit_ConcurrentSubmissionSuppressed(t *testing.T) {
	b := &fakeBackend{release: make(chan struct{})}
	e, _ := newTestEngine(t, b, WithPolling(time.Millisecond, 0))

	errc := make(chan error, 1)
	go func() {
		_, err := e.Submit(context.Background(), NewDraft("first"))
		errc <- err
	}()
	require.Eventually(t, e.Submitting, time.Second, time.Millisecond)

	_, err := e.Submit(context.Background(), NewDraft("second"))
	assert.ErrorIs(t, err, models.ErrInFlight)

	close(b.release)
	require.NoError(t, <-errc)
	assert.Equal(t, []string{"first"}, b.added)
}

func TestReconcile_StopsAtFirstMatch(t *testing.T) {
	b := &fakeBackend{lists: [][]models.Event{
		nil,
		nil,
		nil,
		{event(9, "T")},
		{event(9, "T")},
	}}
	e, _ := newTestEngine(t, b)

	p, err := e.Submit(context.Background(), NewDraft("T"))
	require.NoError(t, err)
	waitPoll(t, p)

	assert.Equal(t, 4, b.listCalls())
	assert.Equal(t, 4, p.Fetches())
	_, ok := p.Matched()
	assert.True(t, ok)
	assert.Equal(t, int64(9), e.Events()[0].ID)
}

func TestReconcile_ExhaustsSilently(t *testing.T) {
	b := &fakeBackend{lists: [][]models.Event{{event(1, "something else")}}}
	e, n := newTestEngine(t, b)

	p, err := e.Submit(context.Background(), NewDraft("T"))
	require.NoError(t, err)
	waitPoll(t, p)

	assert.Equal(t, 1+DefaultPollAttempts, b.listCalls())
	_, ok := p.Matched()
	assert.False(t, ok)
	assert.Zero(t, n.errors())
	assert.Zero(t, e.ActivePolls())
}

func TestReconcile_FetchFailuresCountAsAttempts(t *testing.T) {
	b := &fakeBackend{listErr: &api.TransportError{Op: "list events", Err: errors.New("down")}}
	e, n := newTestEngine(t, b, WithPolling(time.Millisecond, 3))

	p, err := e.Submit(context.Background(), NewDraft("T"))
	require.NoError(t, err)
	waitPoll(t, p)

	assert.Equal(t, 4, b.listCalls())
	assert.Zero(t, n.errors())
}

func TestReconcile_StopsWhenUnauthenticated(t *testing.T) {
	b := &fakeBackend{listErr: models.ErrUnauthenticated}
	e, _ := newTestEngine(t, b)

	p, err := e.Submit(context.Background(), NewDraft("T"))
	require.NoError(t, err)
	waitPoll(t, p)

	assert.Equal(t, 1, b.listCalls())
}

func TestReconcile_ExactPolicy(t *testing.T) {
	b := &fakeBackend{lists: [][]models.Event{{event(1, "T and more")}}}
	e, _ := newTestEngine(t, b, WithMatcher(MatchExact), WithPolling(time.Millisecond, 2))

	p, err := e.Submit(context.Background(), NewDraft("T"))
	require.NoError(t, err)
	waitPoll(t, p)

	_, ok := p.Matched()
	assert.False(t, ok)
	assert.Equal(t, 3, b.listCalls())
}

func TestClose_CancelsPolls(t *testing.T) {
	b := &fakeBackend{}
	n := &fakeNotifier{}
	e := New(b, n, WithPolling(time.Hour, 10))

	p, err := e.Submit(context.Background(), NewDraft("T"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.listCalls() == 1 }, time.Second, time.Millisecond)

	e.Close()

	select {
	case <-p.Done():
	default:
		t.Fatal("poll still running after Close")
	}
	assert.Zero(t, e.ActivePolls())

	_, err = e.Submit(context.Background(), NewDraft("again"))
	assert.Error(t, err)
}

func TestPoll_CancelStopsLoop(t *testing.T) {
	b := &fakeBackend{}
	e, _ := newTestEngine(t, b, WithPolling(time.Hour, 10))

	p, err := e.Submit(context.Background(), NewDraft("T"))
	require.NoError(t, err)
	p.Cancel()
	waitPoll(t, p)
	assert.LessOrEqual(t, b.listCalls(), 1)
}

func seeded(t *testing.T, b *fakeBackend, events ...models.Event) (*Engine, *fakeNotifier) {
	t.Helper()
	b.lists = [][]models.Event{events}
	e, n := newTestEngine(t, b)
	_, err := e.FetchRecent(context.Background(), false)
	require.NoError(t, err)
	return e, n
}

func TestApplyFeedback_PatchesAfterAck(t *testing.T) {
	b := &fakeBackend{}
	e, _ := seeded(t, b, event(1, "a"), event(2, "b"))

	require.NoError(t, e.ApplyFeedback(context.Background(), 2, "late"))

	assert.Equal(t, models.FeedbackLate, b.feedback[2])
	events := e.Events()
	assert.Equal(t, models.FeedbackLate, events[1].Feedback)
	assert.Empty(t, events[0].Feedback)
}

func TestApplyFeedback_RejectionLeavesCacheUnchanged(t *testing.T) {
	b := &fakeBackend{}
	e, n := seeded(t, b, event(1, "a"))
	before := e.Events()
	b.fbErr = &api.Error{HTTPStatus: 200, Code: 400, Msg: "event not delivered"}

	err := e.ApplyFeedback(context.Background(), 1, models.FeedbackGood)

	assert.ErrorIs(t, err, models.ErrFeedbackFailed)
	var actionErr *models.ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, int64(1), actionErr.EventID)
	assert.Equal(t, before, e.Events())
	assert.Equal(t, 1, n.errors())
}

func TestApplyFeedback_InvalidValue(t *testing.T) {
	b := &fakeBackend{}
	e, n := seeded(t, b, event(1, "a"))

	err := e.ApplyFeedback(context.Background(), 1, "MEH")
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Nil(t, b.feedback)
	assert.Equal(t, 1, n.errors())
}

func TestCancel_TwoPhase(t *testing.T) {
	b := &fakeBackend{}
	e, _ := seeded(t, b, event(1, "a"))

	intent, err := e.RequestCancel(1)
	require.NoError(t, err)
	assert.Empty(t, b.canceled, "request alone must not call the backend")
	assert.Equal(t, models.EventStatusPending, e.Events()[0].Status)

	require.NoError(t, intent.Confirm(context.Background()))
	assert.Equal(t, []int64{1}, b.canceled)
	assert.Equal(t, models.EventStatusCanceled, e.Events()[0].Status)

	assert.Error(t, intent.Confirm(context.Background()))
	assert.Equal(t, []int64{1}, b.canceled)
}

func TestCancel_AbortNeverCalls(t *testing.T) {
	b := &fakeBackend{}
	e, _ := seeded(t, b, event(1, "a"))

	intent, err := e.RequestCancel(1)
	require.NoError(t, err)
	intent.Abort()

	assert.Error(t, intent.Confirm(context.Background()))
	assert.Empty(t, b.canceled)
	assert.Equal(t, models.EventStatusPending, e.Events()[0].Status)
}

func TestCancel_RejectionLeavesCacheUnchanged(t *testing.T) {
	b := &fakeBackend{}
	e, n := seeded(t, b, event(1, "a"))
	before := e.Events()
	b.cancErr = &api.Error{HTTPStatus: 200, Code: 409, Msg: "already sent"}

	intent, err := e.RequestCancel(1)
	require.NoError(t, err)
	err = intent.Confirm(context.Background())

	assert.ErrorIs(t, err, models.ErrCancelFailed)
	assert.Equal(t, before, e.Events())
	assert.Equal(t, 1, n.errors())
}

func TestRequestCancel_TerminalEvent(t *testing.T) {
	b := &fakeBackend{}
	delivered := event(3, "c")
	delivered.Status = models.EventStatusDelivered
	e, n := seeded(t, b, delivered)

	_, err := e.RequestCancel(3)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, 1, n.errors())

	_, err = e.RequestCancel(0)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, 2, n.errors())
	assert.Empty(t, b.canceled)
}

func TestForeground_RespectsSessionAndLimiter(t *testing.T) {
	b := &fakeBackend{}
	authed := false
	e, _ := newTestEngine(t, b, WithAuthenticated(func() bool { return authed }), WithRefreshLimit(time.Hour, 1))

	fetched, err := e.Foreground(context.Background())
	assert.False(t, fetched)
	assert.NoError(t, err)
	assert.Zero(t, b.listCalls())

	authed = true
	fetched, err = e.Foreground(context.Background())
	assert.True(t, fetched)
	assert.NoError(t, err)
	fetched, _ = e.Foreground(context.Background())
	assert.False(t, fetched)
	assert.Equal(t, 1, b.listCalls())
}

func TestForeground_ReportsFailedFetch(t *testing.T) {
	b := &fakeBackend{lists: [][]models.Event{{event(1, "a")}}}
	e, n := newTestEngine(t, b, WithRefreshLimit(time.Millisecond, 10))
	fetched, err := e.Foreground(context.Background())
	require.True(t, fetched)
	require.NoError(t, err)
	at := e.FetchedAt()

	b.mu.Lock()
	b.listErr = &api.Error{HTTPStatus: 503, Msg: "maintenance"}
	b.mu.Unlock()

	fetched, err = e.Foreground(context.Background())
	assert.True(t, fetched)
	assert.Error(t, err)
	assert.Equal(t, at, e.FetchedAt())
	assert.Zero(t, n.errors(), "foreground refresh failures are only logged")
}

func TestFetchRecent_RejectionIsFetchFailure(t *testing.T) {
	b := &fakeBackend{listErr: &api.Error{HTTPStatus: 403, Code: 403, Msg: "forbidden"}}
	e, _ := newTestEngine(t, b)

	_, err := e.FetchRecent(context.Background(), false)

	assert.ErrorIs(t, err, models.ErrFetchFailed)
	assert.NotErrorIs(t, err, models.ErrTransport)
	var actionErr *models.ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, "FETCH_FAILED", actionErr.ErrorCode())
}

func TestSubmit_CloseDuringAddStartsNoReconciliation(t *testing.T) {
	b := &fakeBackend{release: make(chan struct{})}
	sink := &memSink{}
	e, _ := newTestEngine(t, b, WithCacheSink(sink))

	type submitted struct {
		p   *Poll
		err error
	}
	result := make(chan submitted, 1)
	go func() {
		p, err := e.Submit(context.Background(), NewDraft("water the plants"))
		result <- submitted{p, err}
	}()
	require.Eventually(t, e.Submitting, time.Second, time.Millisecond)

	e.Close()
	close(b.release)

	var r submitted
	select {
	case r = <-result:
	case <-time.After(5 * time.Second):
		t.Fatal("submit did not return")
	}
	require.NoError(t, r.err)
	require.NotNil(t, r.p)

	select {
	case <-r.p.Done():
	default:
		t.Fatal("poll started after close should already be done")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, b.listCalls())
	assert.Zero(t, r.p.Fetches())
	assert.Zero(t, e.ActivePolls())
	sink.mu.Lock()
	assert.Zero(t, sink.saves)
	sink.mu.Unlock()
}

func TestSeed(t *testing.T) {
	e, _ := newTestEngine(t, &fakeBackend{})
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	e.Seed([]models.Event{event(1, "a")}, at)

	assert.Len(t, e.Events(), 1)
	assert.Equal(t, at, e.FetchedAt())
}
