// Package notify is a single-slot queue of transient user-facing messages.
// A new message pre-empts the visible one; each message dismisses itself after a TTL.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Severity classifies a notice.
type Severity string

// Severity constants.
const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// DefaultTTL is how long a notice stays visible unless acknowledged.
const DefaultTTL = 3 * time.Second

// Notice is one displayed message.
type Notice struct {
	ID       uint64    `json:"id"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	ShownAt  time.Time `json:"shown_at"`
}

// Listener observes visibility changes. visible is false when n was dismissed
// (by TTL, acknowledgement, or Close) without being replaced.
type Listener func(n Notice, visible bool)

// Channel holds at most one visible notice.
type Channel struct {
	mu        sync.Mutex
	ttl       time.Duration
	seq       uint64
	current   *Notice
	timer     *time.Timer
	listeners []Listener
	logger    *slog.Logger
	closed    bool
}

// Option configures a Channel.
type Option func(*Channel)

// WithTTL sets the default auto-dismiss delay.
func WithTTL(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithLogger mirrors every shown notice to logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// New returns an empty Channel.
func New(opts ...Option) *Channel {
	c := &Channel{ttl: DefaultTTL}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Subscribe registers a listener. Listeners run synchronously, outside the lock.
func (c *Channel) Subscribe(l Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Show replaces any visible notice and restarts the auto-dismiss timer.
func (c *Channel) Show(message string, sev Severity) Notice {
	return c.ShowFor(message, sev, 0)
}

// ShowFor is Show with an explicit TTL; ttl <= 0 uses the channel default.
func (c *Channel) ShowFor(message string, sev Severity, ttl time.Duration) Notice {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Notice{}
	}
	c.seq++
	n := Notice{ID: c.seq, Message: message, Severity: sev, ShownAt: time.Now()}
	c.current = &n
	if c.timer != nil {
		c.timer.Stop()
	}
	id := n.ID
	c.timer = time.AfterFunc(ttl, func() { c.expire(id) })
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	c.log(n)
	for _, l := range listeners {
		l(n, true)
	}
	return n
}

// Dismiss hides the notice with the given id early. It reports false if that
// notice is no longer visible (already expired or pre-empted).
func (c *Channel) Dismiss(id uint64) bool {
	return c.expire(id)
}

// Current returns the visible notice, if any.
func (c *Channel) Current() (Notice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Notice{}, false
	}
	return *c.current, true
}

// Close stops the pending timer and hides the visible notice. Later Shows are ignored.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.current = nil
	c.mu.Unlock()
}

func (c *Channel) expire(id uint64) bool {
	c.mu.Lock()
	if c.current == nil || c.current.ID != id {
		c.mu.Unlock()
		return false
	}
	n := *c.current
	c.current = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	for _, l := range listeners {
		l(n, false)
	}
	return true
}

func (c *Channel) snapshotListeners() []Listener {
	out := make([]Listener, len(c.listeners))
	copy(out, c.listeners)
	return out
}

func (c *Channel) log(n Notice) {
	if c.logger == nil {
		return
	}
	level := slog.LevelInfo
	if n.Severity == SeverityError {
		level = slog.LevelWarn
	}
	c.logger.Log(context.Background(), level, "notice", "message", n.Message, "severity", string(n.Severity))
}
