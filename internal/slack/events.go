package slack

import (
	"encoding/json"
	"fmt"
)

// Callback envelope types sent to the Events API endpoint
const (
	CallbackURLVerification = "url_verification"
	CallbackEvent           = "event_callback"

	EventAppMention = "app_mention"
)

// Callback is the outer Events API envelope
type Callback struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge,omitempty"`
	TeamID    string          `json:"team_id,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

// AppMention is sent when a user writes "@bot ..." in a channel
type AppMention struct {
	Type    string `json:"type"`
	User    string `json:"user"`
	Text    string `json:"text"`
	Channel string `json:"channel"`
}

// ParseCallback decodes an Events API body
func ParseCallback(body []byte) (Callback, error) {
	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return Callback{}, fmt.Errorf("decoding callback: %w", err)
	}
	if cb.Type == "" {
		return Callback{}, fmt.Errorf("callback without type")
	}
	return cb, nil
}

// EventType returns the inner event type of an event_callback
func (c Callback) EventType() (string, error) {
	var head struct {
		Type string `json:"type"`
	}
	if len(c.Event) == 0 {
		return "", fmt.Errorf("event_callback without event")
	}
	if err := json.Unmarshal(c.Event, &head); err != nil {
		return "", fmt.Errorf("decoding event: %w", err)
	}
	return head.Type, nil
}

// AppMention decodes the inner event as an app mention
func (c Callback) AppMention() (AppMention, error) {
	var am AppMention
	if err := json.Unmarshal(c.Event, &am); err != nil {
		return AppMention{}, fmt.Errorf("decoding app_mention: %w", err)
	}
	return am, nil
}
