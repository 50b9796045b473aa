package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewars-bot/internal/service"
	"github.com/codewars-bot/internal/slack"
)

const secret = "8f742231b10e8888abcd99yyyzzz85a5"

var fixedNow = time.Date(2026, 2, 12, 9, 30, 0, 0, time.UTC)

type fakeDispatcher struct {
	mu    sync.Mutex
	texts []string
	reply service.Reply
}

func (d *fakeDispatcher) Handle(ctx context.Context, text string) service.Reply {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
	return d.reply
}

func (d *fakeDispatcher) seen() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.texts...)
}

type fakePoster struct {
	mu    sync.Mutex
	posts []string
}

func (p *fakePoster) Post(ctx context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, text)
	return nil
}

func newTestHandler(d *fakeDispatcher, p *fakePoster) *Handler {
	v := slack.NewVerifier(secret, 0).WithClock(func() time.Time { return fixedNow })
	return NewHandler(d, p, v, nil, Config{}, zerolog.Nop())
}

func signedRequest(t *testing.T, path, contentType, body string, at time.Time) *http.Request {
	t.Helper()
	ts := strconv.FormatInt(at.Unix(), 10)
	v := slack.NewVerifier(secret, 0)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(slack.HeaderTimestamp, ts)
	req.Header.Set(slack.HeaderSignature, v.Sign(ts, []byte(body)))
	return req
}

func TestSlashCommand(t *testing.T) {
	d := &fakeDispatcher{reply: service.Reply{Text: "Now tracking *g964*."}}
	h := newTestHandler(d, &fakePoster{})

	form := url.Values{"text": {"add g964"}, "user_id": {"U1"}}.Encode()
	req := signedRequest(t, "/slack/commands", "application/x-www-form-urlencoded", form, fixedNow)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SlashResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ephemeral", resp.ResponseType)
	assert.Equal(t, "Now tracking *g964*.", resp.Text)
	assert.Equal(t, []string{"add g964"}, d.seen())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestVerifyRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *http.Request)
		at     time.Time
		status int
	}{
		{name: "stale", at: fixedNow.Add(-6 * time.Minute), status: http.StatusUnauthorized},
		{name: "future", at: fixedNow.Add(6 * time.Minute), status: http.StatusUnauthorized},
		{name: "bad signature", at: fixedNow, status: http.StatusUnauthorized, mutate: func(r *http.Request) {
			r.Header.Set(slack.HeaderSignature, "v0=deadbeef")
		}},
		{name: "missing headers", at: fixedNow, status: http.StatusUnauthorized, mutate: func(r *http.Request) {
			r.Header.Del(slack.HeaderSignature)
			r.Header.Del(slack.HeaderTimestamp)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{}
			h := newTestHandler(d, &fakePoster{})

			req := signedRequest(t, "/slack/commands", "application/x-www-form-urlencoded", "text=help", tt.at)
			if tt.mutate != nil {
				tt.mutate(req)
			}
			rec := httptest.NewRecorder()
			h.Router().ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Empty(t, d.seen())
		})
	}
}

func TestBodyLimit(t *testing.T) {
	d := &fakeDispatcher{}
	h := newTestHandler(d, &fakePoster{})

	body := "text=" + strings.Repeat("a", 6*1024)
	req := signedRequest(t, "/slack/commands", "application/x-www-form-urlencoded", body, fixedNow)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, d.seen())
}

func TestURLVerification(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{}, &fakePoster{})

	body := `{"token":"x","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P","type":"url_verification"}`
	req := signedRequest(t, "/slack/events", "application/json", body, fixedNow)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P", rec.Body.String())
}

func TestAppMentionRepliesThroughWebhook(t *testing.T) {
	d := &fakeDispatcher{reply: service.Reply{Text: "Stopped tracking *bob*."}}
	p := &fakePoster{}
	h := newTestHandler(d, p)

	body := `{"type":"event_callback","team_id":"T1","event":{"type":"app_mention","user":"U1","text":"<@U0BOT> rm bob","channel":"C1"}}`
	req := signedRequest(t, "/event", "application/json", body, fixedNow)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	h.Wait()

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"<@U0BOT> rm bob"}, d.seen())
	assert.Equal(t, []string{"Stopped tracking *bob*."}, p.posts)
}

func TestAppMentionAlreadyPosted(t *testing.T) {
	d := &fakeDispatcher{reply: service.Reply{Text: "The report was posted to the channel.", Posted: true}}
	p := &fakePoster{}
	h := newTestHandler(d, p)

	body := `{"type":"event_callback","event":{"type":"app_mention","user":"U1","text":"stats","channel":"C1"}}`
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, signedRequest(t, "/slack/events", "application/json", body, fixedNow))
	h.Wait()

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, p.posts)
}

func TestAppMentionRetryIsNotAnsweredAgain(t *testing.T) {
	d := &fakeDispatcher{reply: service.Reply{Text: "Now tracking *bob*."}}
	p := &fakePoster{}
	h := newTestHandler(d, p)
	router := h.Router()

	body := `{"type":"event_callback","event":{"type":"app_mention","user":"U1","text":"<@U0BOT> add bob","channel":"C1"}}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedRequest(t, "/slack/events", "application/json", body, fixedNow))
	require.Equal(t, http.StatusOK, rec.Code)

	for _, n := range []string{"1", "2"} {
		req := signedRequest(t, "/slack/events", "application/json", body, fixedNow)
		req.Header.Set(slack.HeaderRetryNum, n)
		req.Header.Set(slack.HeaderRetryReason, "http_timeout")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	h.Wait()

	assert.Equal(t, []string{"<@U0BOT> add bob"}, d.seen())
	assert.Equal(t, []string{"Now tracking *bob*."}, p.posts)
}

func TestUnknownEventsAreAcknowledged(t *testing.T) {
	d := &fakeDispatcher{}
	h := newTestHandler(d, &fakePoster{})

	for _, body := range []string{
		`{"type":"event_callback","event":{"type":"reaction_added"}}`,
		`{"type":"app_rate_limited"}`,
	} {
		rec := httptest.NewRecorder()
		h.Router().ServeHTTP(rec, signedRequest(t, "/slack/events", "application/json", body, fixedNow))
		assert.Equal(t, http.StatusOK, rec.Code, body)
	}
	h.Wait()
	assert.Empty(t, d.seen())
}

func TestMalformedCallback(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{}, &fakePoster{})

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, signedRequest(t, "/slack/events", "application/json", `{not json`, fixedNow))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIndexAndHealth(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{}, &fakePoster{})
	router := h.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "schedule on")
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyCheck(t *testing.T) {
	h := newTestHandler(&fakeDispatcher{}, &fakePoster{})
	h.AddCheck("state", func(ctx context.Context) error { return nil })
	router := h.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h.AddCheck("postgres", func(ctx context.Context) error { return errors.New("connection refused") })
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
