package eventsync

import "sync"

// Draft is the caller's pending input. A successful submission clears it; a
// failed one leaves it untouched.
type Draft struct {
	mu   sync.Mutex
	text string
}

// NewDraft returns a draft holding text.
func NewDraft(text string) *Draft {
	return &Draft{text: text}
}

// Text returns the current input.
func (d *Draft) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// Set replaces the input.
func (d *Draft) Set(text string) {
	d.mu.Lock()
	d.text = text
	d.mu.Unlock()
}

// Clear empties the input.
func (d *Draft) Clear() { d.Set("") }
