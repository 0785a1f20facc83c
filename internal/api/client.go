// Package api is a typed client for the forgotyet backend.
//
// Every endpoint answers with the envelope {code, data, msg}; code 200 is success.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dotcommander/forgotyet/internal/models"
)

// CodeOK is the envelope code for success.
const CodeOK = 200

// DefaultListLimit is the page size for event listings.
const DefaultListLimit = 10

// Envelope is the backend's uniform response wrapper.
type Envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Msg     string          `json:"msg"`
	Success *bool           `json:"success,omitempty"`
}

// OK reports success under the uniform convention.
func (e Envelope) OK() bool { return e.Code == CodeOK }

// LooseOK is the success test used by the one-time-code endpoints, which have
// been observed to answer with msg "success" or a success flag instead of code 200.
func (e Envelope) LooseOK() bool {
	return e.OK() || e.Msg == "success" || (e.Success != nil && *e.Success)
}

// Error is a backend rejection: a non-2xx HTTP status or a non-success envelope.
type Error struct {
	HTTPStatus int
	Code       int
	Msg        string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("backend rejected request (http %d, code %d)", e.HTTPStatus, e.Code)
	}
	return e.Msg
}

// TransportError is a failure to complete the HTTP exchange at all.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string        { return e.Op + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == models.ErrTransport }

// TokenSource returns the current bearer token, or "" when logged out.
type TokenSource func() string

// Client is a typed client for the backend API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	tokens     TokenSource
	now        func() time.Time
}

// New creates a new Client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tokens: func() string { return "" },
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Option configures the client.
type Option func(*Client)

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	auth        bool
}

func (c *Client) do(ctx context.Context, op string, r request) (Envelope, error) {
	var token string
	if r.auth {
		token = c.tokens()
		if token == "" {
			return Envelope{}, models.ErrUnauthenticated
		}
	}

	target := c.BaseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, r.body)
	if err != nil {
		return Envelope{}, err
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Envelope{}, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Envelope{}, &TransportError{Op: op, Err: err}
	}

	var env Envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode >= 400 {
		rejected := &Error{HTTPStatus: resp.StatusCode, Code: env.Code, Msg: env.Msg}
		if decodeErr != nil {
			rejected.Msg = http.StatusText(resp.StatusCode)
		}
		return env, rejected
	}
	if decodeErr != nil {
		return Envelope{}, &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}
	return env, nil
}

func (c *Client) call(ctx context.Context, op string, r request, loose bool) (Envelope, error) {
	env, err := c.do(ctx, op, r)
	if err != nil {
		return env, err
	}
	ok := env.OK()
	if loose {
		ok = env.LooseOK()
	}
	if !ok {
		return env, &Error{HTTPStatus: http.StatusOK, Code: env.Code, Msg: env.Msg}
	}
	return env, nil
}

func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

// SendEmailCode calls POST /auth/send-code?email=.
func (c *Client) SendEmailCode(ctx context.Context, email string) error {
	_, err := c.call(ctx, "send email code", request{
		method: http.MethodPost,
		path:   "/auth/send-code",
		query:  url.Values{"email": {email}},
	}, true)
	return err
}

// SendSMSCode calls POST /auth/sms/send-code?phone=.
func (c *Client) SendSMSCode(ctx context.Context, phone string) error {
	_, err := c.call(ctx, "send sms code", request{
		method: http.MethodPost,
		path:   "/auth/sms/send-code",
		query:  url.Values{"phone": {phone}},
	}, true)
	return err
}

// LoginEmail calls POST /auth/login?email=&code= and returns the bearer token.
func (c *Client) LoginEmail(ctx context.Context, email, code string) (string, error) {
	env, err := c.call(ctx, "email login", request{
		method: http.MethodPost,
		path:   "/auth/login",
		query:  url.Values{"email": {email}, "code": {code}},
	}, false)
	if err != nil {
		return "", err
	}
	return decodeToken(env)
}

// LoginSMS calls POST /auth/sms/login?phone=&code=&email= and returns the bearer token.
func (c *Client) LoginSMS(ctx context.Context, phone, code, email string) (string, error) {
	env, err := c.call(ctx, "sms login", request{
		method: http.MethodPost,
		path:   "/auth/sms/login",
		query:  url.Values{"phone": {phone}, "code": {code}, "email": {email}},
	}, false)
	if err != nil {
		return "", err
	}
	return decodeToken(env)
}

func decodeToken(env Envelope) (string, error) {
	var token string
	if err := json.Unmarshal(env.Data, &token); err != nil || token == "" {
		return "", &Error{HTTPStatus: http.StatusOK, Code: env.Code, Msg: "login response carried no token"}
	}
	return token, nil
}

// ListEvents calls GET /event/list?limit=&_t= with a cache-busting token.
func (c *Client) ListEvents(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	env, err := c.call(ctx, "list events", request{
		method: http.MethodGet,
		path:   "/event/list",
		query: url.Values{
			"limit": {strconv.Itoa(limit)},
			"_t":    {strconv.FormatInt(c.now().UnixMilli(), 10)},
		},
		auth: true,
	}, false)
	if err != nil {
		return nil, err
	}
	var events []models.Event
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return events, nil
	}
	if err := json.Unmarshal(env.Data, &events); err != nil {
		return nil, &TransportError{Op: "list events", Err: fmt.Errorf("decode events: %w", err)}
	}
	return events, nil
}

// AddEvent calls POST /event/add with {content}. The owner is derived from the token.
func (c *Client) AddEvent(ctx context.Context, content string) error {
	body, err := jsonBody(struct {
		Content string `json:"content"`
	}{content})
	if err != nil {
		return err
	}
	_, err = c.call(ctx, "add event", request{
		method:      http.MethodPost,
		path:        "/event/add",
		body:        body,
		contentType: "application/json",
		auth:        true,
	}, false)
	return err
}

// SendFeedback calls POST /event/feedback with {eventId, feedback}.
func (c *Client) SendFeedback(ctx context.Context, eventID int64, feedback models.Feedback) error {
	body, err := jsonBody(struct {
		EventID  int64           `json:"eventId"`
		Feedback models.Feedback `json:"feedback"`
	}{eventID, feedback})
	if err != nil {
		return err
	}
	_, err = c.call(ctx, "send feedback", request{
		method:      http.MethodPost,
		path:        "/event/feedback",
		body:        body,
		contentType: "application/json",
		auth:        true,
	}, false)
	return err
}

// CancelEvent calls POST /event/<id>/cancel.
func (c *Client) CancelEvent(ctx context.Context, eventID int64) error {
	_, err := c.call(ctx, "cancel event", request{
		method: http.MethodPost,
		path:   "/event/" + strconv.FormatInt(eventID, 10) + "/cancel",
		auth:   true,
	}, false)
	return err
}

// Reason extracts the backend-supplied message from a rejection, or the error text otherwise.
func Reason(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
