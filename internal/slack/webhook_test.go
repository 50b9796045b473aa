package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookPost(t *testing.T) {
	var got WebhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, time.Second, zerolog.Nop())
	require.NoError(t, wh.Post(context.Background(), "*weekly digest*"))
	assert.Equal(t, "*weekly digest*", got.Text)
}

func TestWebhookPostNoRetryOnFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, time.Second, zerolog.Nop())
	err := wh.Post(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "invalid_payload")
	assert.Equal(t, int32(1), calls.Load())
}

func TestParseCallback(t *testing.T) {
	t.Parallel()

	cb, err := ParseCallback([]byte(`{"type":"url_verification","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P"}`))
	require.NoError(t, err)
	assert.Equal(t, CallbackURLVerification, cb.Type)
	assert.Equal(t, "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P", cb.Challenge)

	cb, err = ParseCallback([]byte(`{"type":"event_callback","event":{"type":"app_mention","user":"U1","text":"<@UBOT> add bob","channel":"C1"}}`))
	require.NoError(t, err)
	typ, err := cb.EventType()
	require.NoError(t, err)
	assert.Equal(t, EventAppMention, typ)
	am, err := cb.AppMention()
	require.NoError(t, err)
	assert.Equal(t, "<@UBOT> add bob", am.Text)
	assert.Equal(t, "C1", am.Channel)

	_, err = ParseCallback([]byte(`{"challenge":"x"}`))
	assert.Error(t, err)
	_, err = ParseCallback([]byte(`not json`))
	assert.Error(t, err)
}
