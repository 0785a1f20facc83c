package actions

import (
	"context"
	"time"

	"github.com/dotcommander/forgotyet/internal/capture"
	"github.com/dotcommander/forgotyet/internal/models"
)

// RecordResult describes a voice capture and its submission.
type RecordResult struct {
	capture.Payload
	Text       string     `json:"text,omitempty"`
	Submitted  bool       `json:"submitted"`
	Waited     bool       `json:"waited"`
	Reconciled bool       `json:"reconciled"`
	Event      *EventView `json:"event,omitempty"`
}

// Record captures audio until stop fires or the cap is reached, then
// transcribes it and submits the text. With wait set it also blocks until the
// reconciliation loop ends.
func Record(ctx context.Context, r *Runtime, stop <-chan struct{}, wait bool) (*RecordResult, error) {
	if !r.Auth.Session().LoggedIn() {
		return nil, models.NewActionError("record", models.ErrUnauthenticated, models.ErrUnauthenticated)
	}

	finished := make(chan capture.Result, 1)
	remove := r.Capture.OnFinish(func(res capture.Result) {
		select {
		case finished <- res:
		default:
		}
	})
	defer remove()

	if err := r.Capture.Start(ctx); err != nil {
		return nil, err
	}

	var res capture.Result
	select {
	case <-stop:
		r.Capture.Stop(ctx)
		res = <-finished
	case res = <-finished:
	case <-ctx.Done():
		r.Capture.Close()
		return nil, ctx.Err()
	}

	out := &RecordResult{Payload: res.Payload, Text: res.Text}
	if res.Err != nil {
		return out, res.Err
	}
	if res.SubmitErr != nil {
		return out, res.SubmitErr
	}
	out.Submitted = true

	if wait {
		wctx, cancel := context.WithTimeout(ctx, r.DefaultWaitTimeout())
		defer cancel()
		out.Waited = true
		if err := r.WaitPolls(wctx); err != nil {
			r.logger.Warn("stopped waiting for reconciliation", "error", err.Error())
		}
		if ev, ok := r.lastMatch(); ok {
			v := ViewEvent(ev, time.Now())
			out.Reconciled = true
			out.Event = &v
		}
	}
	return out, nil
}

func (r *Runtime) lastMatch() (models.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.polls) == 0 {
		return models.Event{}, false
	}
	return r.polls[len(r.polls)-1].Matched()
}
