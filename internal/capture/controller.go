// Package capture owns a single time-capped audio recording session and hands
// the finished payload to transcription and submission.
package capture

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dotcommander/forgotyet/internal/models"
	"github.com/dotcommander/forgotyet/internal/notify"
)

// State is a phase of the recording lifecycle.
type State string

// State constants.
const (
	StateIdle      State = "IDLE"
	StateRecording State = "RECORDING"
	StateStopping  State = "STOPPING"
)

// MaxCap is the hard limit on a recording, in seconds.
const MaxCap = 60

var errNoAudio = errors.New("no audio captured")

// Transcriber turns an encoded audio payload into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

// SubmitFunc receives recognized text.
type SubmitFunc func(ctx context.Context, text string) error

// Notifier surfaces transient messages.
type Notifier interface {
	Show(message string, sev notify.Severity) notify.Notice
}

// TickSource starts a periodic ticker and returns its channel and stop func.
type TickSource func(interval time.Duration) (<-chan time.Time, func())

func realTicks(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

// Payload is the finished recording.
type Payload struct {
	Audio   []byte `json:"-"`
	Format  string `json:"format"`
	Bytes   int    `json:"bytes"`
	Samples int    `json:"samples"`
	Seconds int    `json:"seconds"`
}

// Result is what a finished recording produced. Err is set when assembly or
// transcription failed; SubmitErr when the recognized text was not accepted.
type Result struct {
	Payload   Payload `json:"payload"`
	Text      string  `json:"text,omitempty"`
	Err       error   `json:"-"`
	SubmitErr error   `json:"-"`
}

// Controller is the IDLE -> RECORDING -> STOPPING -> IDLE state machine.
type Controller struct {
	device      Device
	format      Format
	transcriber Transcriber
	submit      SubmitFunc
	notices     Notifier
	logger      *slog.Logger
	ticks       TickSource
	cap         int

	mu       sync.Mutex
	state    State
	elapsed  int
	stream   Stream
	stopTick func()
	done     chan struct{}
	cancel   context.CancelFunc
	onFinish map[uint64]func(Result)
	hookSeq  uint64

	chunkMu sync.Mutex
	chunks  [][]byte
}

// Option configures a Controller.
type Option func(*Controller)

// WithCap lowers the recording limit below MaxCap.
func WithCap(seconds int) Option {
	return func(c *Controller) {
		if seconds > 0 && seconds < MaxCap {
			c.cap = seconds
		}
	}
}

// WithTickSource replaces the one-second wall-clock ticker.
func WithTickSource(ts TickSource) Option {
	return func(c *Controller) { c.ticks = ts }
}

// WithSubmit forwards recognized text automatically.
func WithSubmit(fn SubmitFunc) Option {
	return func(c *Controller) { c.submit = fn }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New returns an idle controller recording from device.
func New(device Device, transcriber Transcriber, notices Notifier, opts ...Option) *Controller {
	c := &Controller{
		device:      device,
		format:      DefaultFormat,
		transcriber: transcriber,
		notices:     notices,
		logger:      slog.Default(),
		ticks:       realTicks,
		cap:         MaxCap,
		state:       StateIdle,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Elapsed returns the whole seconds recorded so far in the active session.
func (c *Controller) Elapsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// Cap returns the recording limit in seconds.
func (c *Controller) Cap() int { return c.cap }

// OnFinish registers fn to receive every finished recording, whether it was
// stopped by Stop or by reaching the cap. The returned func unregisters it.
func (c *Controller) OnFinish(fn func(Result)) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.onFinish == nil {
		c.onFinish = make(map[uint64]func(Result))
	}
	c.hookSeq++
	id := c.hookSeq
	c.onFinish[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.onFinish, id)
		c.mu.Unlock()
	}
}

// hooks returns the registered finish hooks in registration order. Callers hold c.mu.
func (c *Controller) hooks() []func(Result) {
	ids := make([]uint64, 0, len(c.onFinish))
	for id := range c.onFinish {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]func(Result), 0, len(ids))
	for _, id := range ids {
		out = append(out, c.onFinish[id])
	}
	return out
}

// Start acquires the input device and begins recording. A device failure
// reports DeviceUnavailable and leaves the controller IDLE. ctx bounds the
// whole session including the transcription handoff after a cap stop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return models.ErrInFlight
	}

	c.chunkMu.Lock()
	c.chunks = nil
	c.chunkMu.Unlock()

	stream, err := c.device.Open(c.format, c.appendChunk)
	if err == nil {
		if err = stream.Start(); err != nil {
			stream.Close()
		}
	}
	if err != nil {
		actionErr := &models.ActionError{Kind: models.ErrDeviceUnavailable, Op: "start recording", Err: err}
		c.logger.Warn("audio input unavailable", "error", err.Error())
		c.notices.Show("Microphone unavailable: "+err.Error(), notify.SeverityError)
		return actionErr
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.stream = stream
	c.state = StateRecording
	c.elapsed = 0
	tickC, stopTick := c.ticks(time.Second)
	c.stopTick = stopTick
	c.done = make(chan struct{})
	go c.tickLoop(runCtx, tickC, c.done)

	c.logger.Info("recording started", "cap_seconds", c.cap)
	return nil
}

func (c *Controller) appendChunk(data []byte, _ uint32) {
	buf := make([]byte, len(data))
	copy(buf, data)
	c.chunkMu.Lock()
	c.chunks = append(c.chunks, buf)
	c.chunkMu.Unlock()
}

func (c *Controller) tickLoop(ctx context.Context, tickC <-chan time.Time, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-tickC:
			if c.tick() {
				c.finish(ctx, "cap")
				return
			}
		}
	}
}

// tick advances the clock and reports whether the cap was reached.
func (c *Controller) tick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording {
		return false
	}
	c.elapsed++
	return c.elapsed >= c.cap
}

// Stop ends the active recording and runs the transcription handoff. It
// reports false without doing anything when no recording is active.
func (c *Controller) Stop(ctx context.Context) (Result, bool) {
	return c.finish(ctx, "manual")
}

func (c *Controller) finish(ctx context.Context, reason string) (Result, bool) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return Result{}, false
	}
	c.state = StateStopping
	stream := c.stream
	c.stream = nil
	elapsed := c.elapsed
	release := c.cancel
	c.haltTicks()
	c.mu.Unlock()
	defer release()

	stream.Stop()
	stream.Close()

	c.chunkMu.Lock()
	pcm := bytes.Join(c.chunks, nil)
	c.chunks = nil
	c.chunkMu.Unlock()

	res := Result{Payload: Payload{Format: PayloadFormat, Seconds: elapsed, Samples: len(pcm) / 2}}
	var audio []byte
	var err error
	if res.Payload.Samples == 0 {
		err = errNoAudio
	} else {
		audio, err = EncodeFLAC(pcm, c.format.SampleRate)
	}

	c.mu.Lock()
	c.state = StateIdle
	hooks := c.hooks()
	c.mu.Unlock()

	c.logger.Info("recording stopped", "reason", reason, "seconds", elapsed, "samples", res.Payload.Samples)

	if err == nil {
		res.Payload.Audio = audio
		res.Payload.Bytes = len(audio)
		res.Text, err = c.transcribe(ctx, audio)
	}
	if err != nil {
		res.Err = models.NewActionError("transcribe", models.ErrTranscriptionFailed, err)
		c.logger.Warn("transcription failed", "error", err.Error())
		c.notices.Show("Transcription failed: "+err.Error(), notify.SeverityError)
	} else if c.submit != nil {
		res.SubmitErr = c.submit(ctx, res.Text)
	}

	for _, fn := range hooks {
		fn(res)
	}
	return res, true
}

func (c *Controller) transcribe(ctx context.Context, audio []byte) (string, error) {
	text, err := c.transcriber.Transcribe(ctx, audio, PayloadFormat)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("no speech recognized")
	}
	return text, nil
}

// haltTicks stops the tick source and the loop goroutine. Callers hold c.mu.
func (c *Controller) haltTicks() {
	if c.stopTick != nil {
		c.stopTick()
		c.stopTick = nil
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
}

// Close discards any active recording without transcribing it and releases
// the input device.
func (c *Controller) Close() {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	if c.state == StateRecording {
		c.state = StateIdle
	}
	c.haltTicks()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	if stream != nil {
		stream.Stop()
		stream.Close()
	}
	c.chunkMu.Lock()
	c.chunks = nil
	c.chunkMu.Unlock()
}
