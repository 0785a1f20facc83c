package models

import (
	"errors"
	"fmt"
	"strconv"
)

// RecoverableError is implemented by enriched errors that carry structured
// context and remediation hints. Both the store and output packages use this
// interface to avoid an import cycle.
type RecoverableError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}

// Error kinds. Every failure in the client matches exactly one of these via errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrAuthRejected        = errors.New("authentication rejected")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrDeviceUnavailable   = errors.New("audio device unavailable")
	ErrSubmissionFailed    = errors.New("submission failed")
	ErrFeedbackFailed      = errors.New("feedback failed")
	ErrCancelFailed        = errors.New("cancel failed")
	ErrFetchFailed         = errors.New("fetch failed")
	ErrTransport           = errors.New("transport error")

	// ErrUnauthenticated is returned by token-gated calls when no session token exists.
	ErrUnauthenticated = errors.New("not logged in")
	// ErrInFlight is returned when an operation is already outstanding.
	ErrInFlight = errors.New("operation already in progress")
)

// ValidationError reports malformed client input. It never reaches the network.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
func (e *ValidationError) ErrorCode() string { return "VALIDATION" }
func (e *ValidationError) Context() map[string]string {
	return map[string]string{"field": e.Field, "value": e.Value}
}
func (e *ValidationError) SuggestedAction() string {
	return fmt.Sprintf("correct the %s and retry", e.Field)
}
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ActionError is a failed user-initiated action. Kind is one of the Err* sentinels;
// Err carries the underlying cause (backend rejection or transport failure).
type ActionError struct {
	Kind    error
	Op      string
	EventID int64
	Reason  string
	Err     error
}

func (e *ActionError) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	} else if e.Err != nil && e.Err != e.Kind {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ActionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func (e *ActionError) ErrorCode() string {
	switch e.Kind {
	case ErrAuthRejected:
		return "AUTH_REJECTED"
	case ErrTranscriptionFailed:
		return "TRANSCRIPTION_FAILED"
	case ErrDeviceUnavailable:
		return "DEVICE_UNAVAILABLE"
	case ErrSubmissionFailed:
		return "SUBMISSION_FAILED"
	case ErrFeedbackFailed:
		return "FEEDBACK_FAILED"
	case ErrCancelFailed:
		return "CANCEL_FAILED"
	case ErrFetchFailed:
		return "FETCH_FAILED"
	case ErrUnauthenticated:
		return "UNAUTHENTICATED"
	}
	return "TRANSPORT_ERROR"
}

func (e *ActionError) Context() map[string]string {
	ctx := map[string]string{"op": e.Op}
	if e.EventID != 0 {
		ctx["event_id"] = strconv.FormatInt(e.EventID, 10)
	}
	if e.Reason != "" {
		ctx["reason"] = e.Reason
	}
	return ctx
}

// SlogAttrs adds the operation and event to command error logs.
func (e *ActionError) SlogAttrs() []any {
	attrs := []any{"op", e.Op, "error_code", e.ErrorCode()}
	if e.EventID != 0 {
		attrs = append(attrs, "event_id", e.EventID)
	}
	return attrs
}

func (e *ActionError) SuggestedAction() string {
	if errors.Is(e, ErrUnauthenticated) {
		return "forgotyet auth login"
	}
	return "retry the action"
}

// NewActionError classifies err for op: transport failures and missing sessions keep
// their own kind, anything else is reported as rejected.
func NewActionError(op string, rejected error, err error) *ActionError {
	kind := rejected
	switch {
	case errors.Is(err, ErrUnauthenticated):
		kind = ErrUnauthenticated
	case errors.Is(err, ErrTransport):
		kind = ErrTransport
	}
	return &ActionError{Kind: kind, Op: op, Err: err}
}
