package handler

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/codewars-bot/internal/command"
	"github.com/codewars-bot/internal/slack"
)

// SlashResponse is the immediate answer to a slash command
type SlashResponse struct {
	ResponseType string `json:"response_type"`
	Text         string `json:"text"`
}

// verify authenticates the raw body before anything parses it. The body is
// buffered once and handed on unchanged.
func (h *Handler) verify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.writeText(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			h.writeText(w, http.StatusBadRequest, "unreadable request body")
			return
		}

		err = h.verifier.Verify(r.Header.Get(slack.HeaderSignature), r.Header.Get(slack.HeaderTimestamp), body)
		if err != nil {
			h.logger.Warn().
				Err(err).
				Str("req_id", middleware.GetReqID(r.Context())).
				Str("path", r.URL.Path).
				Msg("rejected unsigned request")
			h.writeText(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

// SlashCommand answers a slash command with an ephemeral reply
func (h *Handler) SlashCommand(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeText(w, http.StatusBadRequest, "malformed form body")
		return
	}

	reply := h.dispatcher.Handle(r.Context(), r.PostForm.Get("text"))
	h.writeJSON(w, http.StatusOK, SlashResponse{ResponseType: "ephemeral", Text: reply.Text})
}

// Event handles Events API callbacks. App mentions are answered in the
// background through the webhook so Slack gets its acknowledgement at once.
func (h *Handler) Event(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeText(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	cb, err := slack.ParseCallback(body)
	if err != nil {
		h.logger.Warn().Err(err).Msg("malformed callback")
		h.writeText(w, http.StatusBadRequest, "malformed callback")
		return
	}

	switch cb.Type {
	case slack.CallbackURLVerification:
		h.writeText(w, http.StatusOK, cb.Challenge)

	case slack.CallbackEvent:
		kind, err := cb.EventType()
		if err != nil {
			h.logger.Warn().Err(err).Msg("malformed event")
			h.writeText(w, http.StatusBadRequest, "malformed event")
			return
		}
		if kind != slack.EventAppMention {
			h.logger.Info().Str("event", kind).Msg("ignoring unknown event")
			w.WriteHeader(http.StatusOK)
			return
		}
		mention, err := cb.AppMention()
		if err != nil {
			h.logger.Warn().Err(err).Msg("malformed app mention")
			h.writeText(w, http.StatusBadRequest, "malformed event")
			return
		}
		// the first delivery is already being answered
		if retry := r.Header.Get(slack.HeaderRetryNum); retry != "" {
			h.logger.Info().
				Str("retry", retry).
				Str("reason", r.Header.Get(slack.HeaderRetryReason)).
				Str("user", mention.User).
				Msg("ignoring redelivered mention")
			w.WriteHeader(http.StatusOK)
			return
		}
		h.answerMention(mention)
		w.WriteHeader(http.StatusOK)

	default:
		h.logger.Info().Str("callback", cb.Type).Msg("ignoring unknown callback")
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) answerMention(mention slack.AppMention) {
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.ReplyTimeout)
		defer cancel()

		reply := h.dispatcher.Handle(ctx, mention.Text)
		if reply.Posted {
			return
		}
		if err := h.poster.Post(ctx, reply.Text); err != nil {
			h.logger.Error().Err(err).Str("user", mention.User).Msg("failed to post mention reply")
		}
	}()
}

var indexPage = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Codewars bot</title>
</head>
<body>
<h1>Codewars bot</h1>
<p>Mention the bot or use the slash command in Slack to track Codewars users.</p>
<pre>{{.}}</pre>
</body>
</html>
`))

// Index renders the landing page
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexPage.Execute(w, command.Usage); err != nil {
		h.logger.Error().Err(err).Msg("failed to render index")
	}
}
