// Package stream pushes domain events to dashboard clients over WebSocket.
package stream

import (
	"encoding/json"

	"github.com/matthewbaird/rentledger/internal/event"
)

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server messages.
type ClientMessage struct {
	Type string          `json:"type"` // "subscribe", "ping"
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// SubscribeData narrows the events a client receives. Empty fields match
// everything.
type SubscribeData struct {
	LeaseID    string   `json:"lease_id,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client messages.
type ServerMessage struct {
	Type      string `json:"type"` // "hello", "subscribed", "event", "error", "pong"
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// HelloData is sent once after the connection is accepted.
type HelloData struct {
	ClientID string `json:"client_id"`
}

// EventData wraps one domain event.
type EventData struct {
	Event event.DomainEvent `json:"event"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
