package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/codewars-bot/internal/service"
	"github.com/codewars-bot/internal/slack"
	"github.com/codewars-bot/internal/websocket"
)

// Dispatcher runs command text and returns the reply
type Dispatcher interface {
	Handle(ctx context.Context, text string) service.Reply
}

// Poster delivers a message to the channel webhook
type Poster interface {
	Post(ctx context.Context, text string) error
}

// Check reports whether a dependency is usable
type Check func(ctx context.Context) error

// Config tunes the HTTP layer
type Config struct {
	MaxBodyBytes int64
	// ReplyTimeout bounds the background handling of an app mention
	ReplyTimeout time.Duration
}

// Handler provides the HTTP endpoints of the bot
type Handler struct {
	dispatcher Dispatcher
	poster     Poster
	verifier   *slack.Verifier
	hub        *websocket.Hub
	checks     map[string]Check
	cfg        Config
	logger     zerolog.Logger

	// pending tracks app mentions still being answered
	pending sync.WaitGroup
}

// NewHandler creates a new HTTP handler
func NewHandler(
	dispatcher Dispatcher,
	poster Poster,
	verifier *slack.Verifier,
	hub *websocket.Hub,
	cfg Config,
	logger zerolog.Logger,
) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5 * 1024
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 2 * time.Minute
	}
	return &Handler{
		dispatcher: dispatcher,
		poster:     poster,
		verifier:   verifier,
		hub:        hub,
		checks:     make(map[string]Check),
		cfg:        cfg,
		logger:     logger.With().Str("comp", "http").Logger(),
	}
}

// AddCheck registers a readiness check
func (h *Handler) AddCheck(name string, check Check) {
	h.checks[name] = check
}

// Wait blocks until every background app mention has been answered
func (h *Handler) Wait() {
	h.pending.Wait()
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/", h.Index)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// Live report feed
	if h.hub != nil {
		r.Get("/ws", h.HandleWebSocket)
	}

	// Signed Slack endpoints
	r.Group(func(r chi.Router) {
		r.Use(h.verify)
		r.Post("/slack/commands", h.SlashCommand)
		r.Post("/slack/events", h.Event)
		r.Post("/event", h.Event)
	})

	return r
}

var secHeaders = [][2]string{
	{"Referrer-Policy", "same-origin"},
	{"Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-Xss-Protection", "1; mode=block"},
}

// securityHeaders sets the same hardening headers on every response
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, kv := range secHeaders {
			w.Header().Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request through zerolog
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug().
					Str("req_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("took", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeText writes a plain text response
func (h *Handler) writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(text))
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "healthy"}
	if h.hub != nil {
		resp["feed_connections"] = h.hub.Connections()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ReadyCheck runs every registered check and lists the failing ones
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not ready",
			"failed": failed,
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
