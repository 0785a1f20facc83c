package eventsync

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dotcommander/forgotyet/internal/models"
)

// Poll is the handle for one post-submission reconciliation loop. It ends when
// a matching event is fetched, when the attempt budget runs out, or when it is
// cancelled.
type Poll struct {
	text    string
	cancel  context.CancelFunc
	done    chan struct{}
	fetches atomic.Int32

	mu      sync.Mutex
	match   models.Event
	matched bool
}

func newPoll(text string, cancel context.CancelFunc) *Poll {
	return &Poll{text: text, cancel: cancel, done: make(chan struct{})}
}

// Text is the submitted content being looked for.
func (p *Poll) Text() string { return p.text }

// Done is closed when the loop has stopped.
func (p *Poll) Done() <-chan struct{} { return p.done }

// Cancel stops the loop early. It is safe to call more than once.
func (p *Poll) Cancel() { p.cancel() }

// Fetches reports how many list requests the loop has issued.
func (p *Poll) Fetches() int { return int(p.fetches.Load()) }

// Matched returns the event the loop found, if any.
func (p *Poll) Matched() (models.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.match, p.matched
}

// Wait blocks until the loop stops or ctx ends, then reports the match.
func (p *Poll) Wait(ctx context.Context) (models.Event, bool, error) {
	select {
	case <-p.done:
		ev, ok := p.Matched()
		return ev, ok, nil
	case <-ctx.Done():
		return models.Event{}, false, ctx.Err()
	}
}

func (p *Poll) setMatch(ev models.Event) {
	p.mu.Lock()
	p.match = ev
	p.matched = true
	p.mu.Unlock()
}
