package actions

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dotcommander/forgotyet/internal/api"
	"github.com/dotcommander/forgotyet/internal/app"
	"github.com/dotcommander/forgotyet/internal/auth"
	"github.com/dotcommander/forgotyet/internal/capture"
	"github.com/dotcommander/forgotyet/internal/eventsync"
	"github.com/dotcommander/forgotyet/internal/models"
	"github.com/dotcommander/forgotyet/internal/notify"
	"github.com/dotcommander/forgotyet/internal/output"
	"github.com/dotcommander/forgotyet/internal/store"
)

// Runtime wires the session, capture, sync and notification components over
// one database and one backend client.
type Runtime struct {
	DB       *sql.DB
	Settings app.ClientSettings
	KV       *store.KV
	Cache    *store.EventCache
	API      *api.Client
	Notices  *notify.Channel
	Auth     *auth.Controller
	Events   *eventsync.Engine
	Capture  *capture.Controller

	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	polls []*eventsync.Poll
	shown []output.Notice
}

type runtimeConfig struct {
	device     capture.Device
	httpClient *http.Client
	logger     *slog.Logger
	ticks      capture.TickSource
}

// Option configures a Runtime.
type Option func(*runtimeConfig)

// WithDevice replaces the hardware audio input.
func WithDevice(d capture.Device) Option {
	return func(c *runtimeConfig) { c.device = d }
}

// WithHTTPClient replaces the backend HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *runtimeConfig) { c.httpClient = hc }
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(c *runtimeConfig) { c.logger = l }
}

// WithTickSource replaces the recording clock.
func WithTickSource(ts capture.TickSource) Option {
	return func(c *runtimeConfig) { c.ticks = ts }
}

// Open builds a Runtime. The persisted session and event snapshot are
// restored from db.
func Open(db *sql.DB, settings app.ClientSettings, opts ...Option) (*Runtime, error) {
	cfg := runtimeConfig{logger: slog.Default()}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.device == nil {
		cfg.device = capture.NewMalgoDevice(settings.AudioDevice)
	}

	matcher, err := eventsync.ParseMatcher(settings.MatchPolicy)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		DB:       db,
		Settings: settings,
		KV:       store.NewKV(db),
		Cache:    store.NewEventCache(db),
		logger:   cfg.logger,
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.Notices = notify.New(notify.WithTTL(settings.NoticeTTL), notify.WithLogger(cfg.logger))
	r.Notices.Subscribe(r.recordNotice)

	apiOpts := []api.Option{
		api.WithTimeout(settings.RequestTimeout),
		api.WithTokenSource(r.token),
	}
	if cfg.httpClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(cfg.httpClient))
	}
	r.API = api.New(settings.APIBaseURL, apiOpts...)

	r.Auth, err = auth.New(r.KV, r.API, r.Notices, auth.WithLogger(cfg.logger))
	if err != nil {
		r.cancel()
		return nil, fmt.Errorf("restore session: %w", err)
	}

	r.Events = eventsync.New(r.API, r.Notices,
		eventsync.WithCacheSink(r.Cache),
		eventsync.WithLogger(cfg.logger),
		eventsync.WithMatcher(matcher),
		eventsync.WithPolling(settings.PollInterval, settings.PollAttempts),
		eventsync.WithSuccessTTL(settings.SuccessNoticeTTL),
		eventsync.WithAuthenticated(func() bool { return r.Auth.Session().LoggedIn() }),
	)
	if events, at, err := r.Cache.LoadEvents(); err != nil {
		r.logger.Warn("failed to load cached events", "error", err.Error())
	} else {
		r.Events.Seed(events, at)
	}

	r.Auth.OnLogin(func(models.Session) {
		_, _ = r.Events.FetchRecent(r.ctx, true)
	})

	captureOpts := []capture.Option{
		capture.WithCap(settings.RecordCapSeconds),
		capture.WithLogger(cfg.logger),
		capture.WithSubmit(func(ctx context.Context, text string) error {
			_, err := r.Submit(ctx, eventsync.NewDraft(text))
			return err
		}),
	}
	if cfg.ticks != nil {
		captureOpts = append(captureOpts, capture.WithTickSource(cfg.ticks))
	}
	r.Capture = capture.New(cfg.device, r.API, r.Notices, captureOpts...)

	return r, nil
}

func (r *Runtime) token() string {
	if r.Auth == nil {
		return ""
	}
	return r.Auth.Token()
}

func (r *Runtime) recordNotice(n notify.Notice, visible bool) {
	if !visible {
		return
	}
	r.mu.Lock()
	r.shown = append(r.shown, output.Notice{Message: n.Message, Severity: string(n.Severity)})
	r.mu.Unlock()
}

// Context is cancelled by Close.
func (r *Runtime) Context() context.Context { return r.ctx }

// Shown returns every notice raised so far, oldest first.
func (r *Runtime) Shown() []output.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]output.Notice(nil), r.shown...)
}

// Submit sends d through the sync engine and tracks the reconciliation handle.
func (r *Runtime) Submit(ctx context.Context, d *eventsync.Draft) (*eventsync.Poll, error) {
	p, err := r.Events.Submit(ctx, d)
	if p != nil {
		r.mu.Lock()
		r.polls = append(r.polls, p)
		r.mu.Unlock()
	}
	return p, err
}

// WaitPolls blocks until every tracked reconciliation loop ended or ctx is done.
func (r *Runtime) WaitPolls(ctx context.Context) error {
	r.mu.Lock()
	polls := append([]*eventsync.Poll(nil), r.polls...)
	r.mu.Unlock()

	for _, p := range polls {
		if _, _, err := p.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close stops recording, cancels reconciliation and hides notices.
func (r *Runtime) Close() {
	r.cancel()
	r.Capture.Close()
	r.Events.Close()
	r.Notices.Close()
}

// DefaultWaitTimeout bounds how long a command waits for reconciliation.
func (r *Runtime) DefaultWaitTimeout() time.Duration {
	return r.Settings.PollInterval*time.Duration(r.Settings.PollAttempts+1) + r.Settings.RequestTimeout
}
