// Package auth drives the login state machine across the email and SMS channels
// and owns the persisted session token.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/dotcommander/forgotyet/internal/api"
	"github.com/dotcommander/forgotyet/internal/models"
	"github.com/dotcommander/forgotyet/internal/notify"
	"github.com/dotcommander/forgotyet/internal/store"
)

var errLoginSuperseded = errors.New("logged out while the login was completing")

// SessionStore is the durable key-value store holding the session.
type SessionStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Clear(keys ...string) error
}

// Backend is the subset of the backend API used for login.
type Backend interface {
	SendEmailCode(ctx context.Context, email string) error
	SendSMSCode(ctx context.Context, phone string) error
	LoginEmail(ctx context.Context, email, code string) (string, error)
	LoginSMS(ctx context.Context, phone, code, email string) (string, error)
}

// Notifier surfaces transient messages.
type Notifier interface {
	Show(message string, sev notify.Severity) notify.Notice
}

// Controller is the authentication state machine. It only advances on explicit
// backend success; at most one code request or confirmation is in flight.
type Controller struct {
	store   SessionStore
	backend Backend
	notices Notifier
	logger  *slog.Logger

	mu        sync.Mutex
	session   models.Session
	lastEmail string
	lastPhone string
	loading   bool
	onLogin   []func(models.Session)
	// logouts counts Logout calls; a confirmation that straddles one is discarded.
	logouts uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New restores the session from s. A persisted token starts the controller in
// LOGGED_IN; otherwise it starts at the entry step of the persisted (or email) channel.
func New(s SessionStore, backend Backend, notices Notifier, opts ...Option) (*Controller, error) {
	c := &Controller{store: s, backend: backend, notices: notices, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}

	channel := models.ChannelEmail
	if raw, ok, err := s.Get(store.KeyAuthChannel); err != nil {
		return nil, err
	} else if ok {
		if parsed, perr := models.ParseChannel(raw); perr == nil {
			channel = parsed
		}
	}

	var err error
	if c.lastEmail, _, err = s.Get(store.KeyLastEmail); err != nil {
		return nil, err
	}
	if c.lastPhone, _, err = s.Get(store.KeyLastPhone); err != nil {
		return nil, err
	}
	token, _, err := s.Get(store.KeyToken)
	if err != nil {
		return nil, err
	}

	c.session = models.Session{Channel: channel, Step: channel.EntryStep()}
	if token != "" {
		c.session.Token = token
		c.session.Step = models.StepLoggedIn
		c.session.IdentityLabel = c.lastEmail
		if channel == models.ChannelSMS && c.lastEmail == "" {
			c.session.IdentityLabel = c.lastPhone
		}
	}
	return c, nil
}

// Session returns a snapshot of the current session.
func (c *Controller) Session() models.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Token returns the current bearer token, or "" when logged out. It is safe to
// use as an api.TokenSource.
func (c *Controller) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Token
}

// TokenSource adapts the controller for the API client.
func (c *Controller) TokenSource() api.TokenSource {
	return c.Token
}

// Loading reports whether a code request or confirmation is outstanding.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// LastIdentity returns the last identity persisted for ch.
func (c *Controller) LastIdentity(ch models.Channel) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch == models.ChannelSMS {
		return c.lastPhone
	}
	return c.lastEmail
}

// OnLogin registers fn to run after every successful login, outside the lock.
func (c *Controller) OnLogin(fn func(models.Session)) {
	c.mu.Lock()
	c.onLogin = append(c.onLogin, fn)
	c.mu.Unlock()
}

// SelectChannel switches the active channel and resets to its entry step.
// It is rejected while logged in or while a request is in flight.
func (c *Controller) SelectChannel(ch models.Channel) error {
	if ch != models.ChannelEmail && ch != models.ChannelSMS {
		return &models.ValidationError{Field: "channel", Value: string(ch), Reason: "must be email or sms"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.LoggedIn() {
		return &models.ValidationError{Field: "channel", Value: string(ch), Reason: "cannot change channel while logged in"}
	}
	if c.loading {
		return models.ErrInFlight
	}
	if err := c.store.Set(store.KeyAuthChannel, string(ch)); err != nil {
		return err
	}
	c.session = models.Session{Channel: ch, Step: ch.EntryStep()}
	return nil
}

// RequestCode asks the backend to send a one-time code to identity on the active
// channel. Malformed identities are rejected before any network call.
func (c *Controller) RequestCode(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)

	c.mu.Lock()
	if c.session.LoggedIn() {
		c.mu.Unlock()
		return &models.ValidationError{Field: "session", Reason: "already logged in"}
	}
	ch := c.session.Channel
	if err := ValidateIdentity(ch, identity); err != nil {
		c.mu.Unlock()
		c.notices.Show(err.Error(), notify.SeverityError)
		return err
	}
	if c.loading {
		c.mu.Unlock()
		return models.ErrInFlight
	}
	c.loading = true
	c.mu.Unlock()

	var err error
	if ch == models.ChannelSMS {
		err = c.backend.SendSMSCode(ctx, identity)
	} else {
		err = c.backend.SendEmailCode(ctx, identity)
	}

	c.mu.Lock()
	c.loading = false
	if err != nil {
		c.mu.Unlock()
		actionErr := models.NewActionError("request code", models.ErrAuthRejected, err)
		c.logger.Warn("code request failed", "channel", string(ch), "error", err.Error())
		c.notices.Show("Could not send code: "+api.Reason(err), notify.SeverityError)
		return actionErr
	}
	if c.session.Channel == ch && !c.session.LoggedIn() {
		c.session.Step = ch.CodeStep()
		c.session.IdentityLabel = identity
	}
	key := store.KeyLastEmail
	if ch == models.ChannelSMS {
		key = store.KeyLastPhone
		c.lastPhone = identity
	} else {
		c.lastEmail = identity
	}
	c.mu.Unlock()

	if err := c.store.Set(key, identity); err != nil {
		c.logger.Warn("failed to persist identity", "error", err.Error())
	}
	c.notices.Show("Code sent to "+identity, notify.SeverityInfo)
	return nil
}

// ConfirmCode exchanges a one-time code for a session token. The SMS channel
// requires boundEmail, the address the backend attaches to the phone login.
// An empty identity falls back to the last identity persisted for the channel.
func (c *Controller) ConfirmCode(ctx context.Context, identity, code, boundEmail string) error {
	identity = strings.TrimSpace(identity)
	code = strings.TrimSpace(code)
	boundEmail = strings.TrimSpace(boundEmail)

	c.mu.Lock()
	if c.session.LoggedIn() {
		c.mu.Unlock()
		return &models.ValidationError{Field: "session", Reason: "already logged in"}
	}
	ch := c.session.Channel
	if identity == "" {
		identity = c.lastEmail
		if ch == models.ChannelSMS {
			identity = c.lastPhone
		}
	}
	verr := ValidateIdentity(ch, identity)
	if verr == nil {
		verr = validateCode(code)
	}
	if verr == nil && ch == models.ChannelSMS {
		verr = ValidateEmail(boundEmail)
	}
	if verr != nil {
		c.mu.Unlock()
		c.notices.Show(verr.Error(), notify.SeverityError)
		return verr
	}
	if c.loading {
		c.mu.Unlock()
		return models.ErrInFlight
	}
	c.loading = true
	generation := c.logouts
	c.mu.Unlock()

	var (
		token string
		err   error
	)
	if ch == models.ChannelSMS {
		token, err = c.backend.LoginSMS(ctx, identity, code, boundEmail)
	} else {
		token, err = c.backend.LoginEmail(ctx, identity, code)
	}

	label := identity
	if ch == models.ChannelSMS {
		label = boundEmail
	}
	if err == nil {
		err = c.persistLogin(ch, identity, label, token)
	}

	c.mu.Lock()
	c.loading = false
	if err == nil && c.logouts != generation {
		c.mu.Unlock()
		// Logout already cleared the store; undo what persistLogin wrote after it.
		if cerr := c.store.Clear(store.KeyToken, store.KeyAuthChannel); cerr != nil {
			c.logger.Warn("failed to clear superseded login", "error", cerr.Error())
		}
		c.logger.Info("login discarded after logout", "channel", string(ch))
		return models.NewActionError("login", models.ErrAuthRejected, errLoginSuperseded)
	}
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("login rejected", "channel", string(ch), "error", err.Error())
		c.notices.Show("Login failed: "+api.Reason(err), notify.SeverityError)
		return models.NewActionError("login", models.ErrAuthRejected, err)
	}
	c.session = models.Session{Token: token, Channel: ch, Step: models.StepLoggedIn, IdentityLabel: label}
	c.lastEmail = label
	if ch == models.ChannelSMS {
		c.lastPhone = identity
	}
	hooks := make([]func(models.Session), len(c.onLogin))
	copy(hooks, c.onLogin)
	snapshot := c.session
	c.mu.Unlock()

	c.logger.Info("logged in", "channel", string(ch))
	for _, fn := range hooks {
		fn(snapshot)
	}
	return nil
}

func (c *Controller) persistLogin(ch models.Channel, identity, label, token string) error {
	if err := c.store.Set(store.KeyToken, token); err != nil {
		return err
	}
	if err := c.store.Set(store.KeyAuthChannel, string(ch)); err != nil {
		_ = c.store.Clear(store.KeyToken)
		return err
	}
	if err := c.store.Set(store.KeyLastEmail, label); err != nil {
		c.logger.Warn("failed to persist email", "error", err.Error())
	}
	if ch == models.ChannelSMS {
		if err := c.store.Set(store.KeyLastPhone, identity); err != nil {
			c.logger.Warn("failed to persist phone", "error", err.Error())
		}
	}
	return nil
}

// Logout forgets the token and channel preference and returns to the email
// entry step. It always succeeds; persistence failures are only logged.
func (c *Controller) Logout() {
	if err := c.store.Clear(store.KeyToken, store.KeyAuthChannel); err != nil {
		c.logger.Warn("failed to clear persisted session", "error", err.Error())
	}
	c.mu.Lock()
	c.logouts++
	c.session = models.Session{Channel: models.ChannelEmail, Step: models.StepEmailEntry}
	c.mu.Unlock()
}
