package actions

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/forgotyet/internal/app"
	"github.com/dotcommander/forgotyet/internal/capture"
	"github.com/dotcommander/forgotyet/internal/models"
	"github.com/dotcommander/forgotyet/internal/store"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := store.Open(context.Background(), t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// backend is an in-memory stand-in for the reminder service.
type backend struct {
	mu         sync.Mutex
	token      string
	events     []models.Event
	nextID     int64
	hideAdds   int // list calls that still omit newly added events
	listCalls  int
	transcript string
	rejectAdd  string
}

func newBackend() *backend {
	return &backend{token: "tok-123", nextID: 100, transcript: "pick up the laundry"}
}

func writeEnvelope(w http.ResponseWriter, code int, data any, msg string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "data": data, "msg": msg})
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	authed := r.Header.Get("Authorization") == "Bearer "+b.token
	switch {
	case r.URL.Path == "/auth/send-code" || r.URL.Path == "/auth/sms/send-code":
		writeEnvelope(w, 200, nil, "success")
	case r.URL.Path == "/auth/login":
		if r.URL.Query().Get("code") != "123456" {
			writeEnvelope(w, 401, nil, "invalid code")
			return
		}
		writeEnvelope(w, 200, b.token, "ok")
	case !authed:
		w.WriteHeader(http.StatusUnauthorized)
	case r.URL.Path == "/event/list":
		b.listCalls++
		visible := b.events
		if b.hideAdds > 0 {
			b.hideAdds--
			visible = nil
		}
		writeEnvelope(w, 200, visible, "ok")
	case r.URL.Path == "/event/add":
		if b.rejectAdd != "" {
			writeEnvelope(w, 500, nil, b.rejectAdd)
			return
		}
		var body struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.nextID++
		ev := models.Event{
			ID:          b.nextID,
			RawInput:    body.Content,
			Status:      models.EventStatusPending,
			EventTime:   models.Timestamp{Time: time.Now()},
			TriggerTime: models.Timestamp{Time: time.Now().Add(2 * time.Hour)},
		}
		b.events = append([]models.Event{ev}, b.events...)
		writeEnvelope(w, 200, nil, "ok")
	case r.URL.Path == "/event/feedback":
		var body struct {
			EventID  int64  `json:"eventId"`
			Feedback string `json:"feedback"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for i := range b.events {
			if b.events[i].ID == body.EventID {
				b.events[i].Feedback = models.Feedback(body.Feedback)
			}
		}
		writeEnvelope(w, 200, nil, "ok")
	case strings.HasPrefix(r.URL.Path, "/event/") && strings.HasSuffix(r.URL.Path, "/cancel"):
		id, _ := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/event/"), "/cancel"), 10, 64)
		for i := range b.events {
			if b.events[i].ID == id {
				b.events[i].Status = models.EventStatusCanceled
			}
		}
		writeEnvelope(w, 200, nil, "ok")
	case r.URL.Path == "/voice/transcribe":
		file, _, err := r.FormFile("file")
		if err != nil {
			writeEnvelope(w, 400, nil, "missing file")
			return
		}
		_, _ = io.Copy(io.Discard, file)
		writeEnvelope(w, 200, b.transcript, "ok")
	default:
		http.NotFound(w, r)
	}
}

func (b *backend) lists() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listCalls
}

func testSettings(baseURL string) app.ClientSettings {
	return app.ClientSettings{
		APIBaseURL:       baseURL,
		RequestTimeout:   5 * time.Second,
		PollInterval:     5 * time.Millisecond,
		PollAttempts:     10,
		NoticeTTL:        time.Second,
		SuccessNoticeTTL: time.Second,
		MatchPolicy:      "contains",
		RecordCapSeconds: 60,
	}
}

type ticker struct{ ch chan time.Time }

func (tk *ticker) source(time.Duration) (<-chan time.Time, func()) { return tk.ch, func() {} }

func openRuntime(t *testing.T, db *sql.DB, b *backend, opts ...Option) *Runtime {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	pcm := make([]byte, capture.SampleRate*2)
	for i := range pcm {
		pcm[i] = byte(i % 97)
	}
	opts = append([]Option{WithDevice(capture.NewFakeDevice(pcm))}, opts...)
	r, err := Open(db, testSettings(srv.URL), opts...)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}
