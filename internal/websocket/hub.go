package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/codewars-bot/internal/domain"
)

// Message types
const (
	MessageTypeReport = "report"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	RunID     string      `json:"run_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ReportUpdate is the feed payload for a finished report
type ReportUpdate struct {
	Since  string       `json:"since,omitempty"`
	Failed int          `json:"failed"`
	Rows   []domain.Row `json:"rows"`
}

// Hub maintains the set of connected feed clients and fans reports out to them
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message

	mu     sync.RWMutex
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a new Hub
func NewHub(logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 64),
		logger:     logger.With().Str("comp", "ws").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info().Msg("websocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.closeSend()
			}
			clear(h.clients)
			h.mu.Unlock()
			h.logger.Info().Msg("websocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug().Str("client_id", client.id).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
			}
			h.mu.Unlock()
			h.logger.Debug().Str("client_id", client.id).Msg("client unregistered")

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub and disconnects every client
func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal message")
		return
	}

	for client := range h.clients {
		if !client.trySend(data) {
			h.logger.Warn().Str("client_id", client.id).Msg("client buffer full, skipping")
		}
	}
}

// BroadcastReport sends a finished report to every connected client
func (h *Hub) BroadcastReport(r domain.Report) {
	update := ReportUpdate{Failed: r.Failed(), Rows: r.Rows}
	if r.Since != nil {
		update.Since = r.Since.String()
	}
	message := &Message{
		Type:      MessageTypeReport,
		RunID:     r.RunID,
		Data:      update,
		Timestamp: r.GeneratedAt,
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn().Str("run_id", r.RunID).Msg("broadcast channel full, dropping report")
	}
}

// Register adds a client to the hub. It returns false once the hub has
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Connections returns the number of connected clients
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
