package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewbaird/rentledger/internal/event"
)

const (
	clientBuffer = 64
	writeTimeout = 5 * time.Second
)

// Gauge tracks connected clients. prometheus.Gauge satisfies it.
type Gauge interface {
	Inc()
	Dec()
}

type nopGauge struct{}

func (nopGauge) Inc() {}
func (nopGauge) Dec() {}

type client struct {
	id   string
	send chan ServerMessage

	mu     sync.RWMutex
	filter SubscribeData
}

func (c *client) wants(evt event.DomainEvent) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.filter.LeaseID != "" && evt.LeaseID() != c.filter.LeaseID {
		return false
	}
	if len(c.filter.Categories) > 0 && !slices.Contains(c.filter.Categories, evt.Category) {
		return false
	}
	return true
}

// Hub fans events from the bus out to WebSocket clients. A slow client
// loses events rather than stalling the bus.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	gauge   Gauge
	log     *zap.Logger
}

// NewHub creates a Hub. gauge may be nil.
func NewHub(log *zap.Logger, gauge Gauge) *Hub {
	if gauge == nil {
		gauge = nopGauge{}
	}
	return &Hub{clients: make(map[string]*client), gauge: gauge, log: log.Named("stream")}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleEvent implements eventbus.Handler.
func (h *Hub) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.wants(evt) {
			continue
		}
		select {
		case c.send <- ServerMessage{Type: "event", Data: EventData{Event: evt}}:
		default:
			h.log.Warn("client too slow, dropping event", zap.String("client", c.id), zap.String("event_id", evt.ID))
		}
	}
	return nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.gauge.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	h.gauge.Dec()
}

// ServeHTTP upgrades to WebSocket and streams events until the client
// disconnects. The lease_id query parameter sets the initial filter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The server's write timeout would otherwise cut long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn("websocket accept", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	c := &client{
		id:     uuid.New().String(),
		send:   make(chan ServerMessage, clientBuffer),
		filter: SubscribeData{LeaseID: r.URL.Query().Get("lease_id")},
	}
	h.register(c)
	defer h.unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c.send <- ServerMessage{Type: "hello", Data: HelloData{ClientID: c.id}}
	go h.writeLoop(ctx, conn, c)

	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				h.log.Debug("connection closed", zap.String("client", c.id), zap.Int("status", int(status)))
			}
			return
		}
		switch msg.Type {
		case "subscribe":
			var data SubscribeData
			if len(msg.Data) > 0 {
				if err := json.Unmarshal(msg.Data, &data); err != nil {
					h.reply(c, errorMessage(msg.ID, "invalid_data", "invalid subscribe data"))
					continue
				}
			}
			c.mu.Lock()
			c.filter = data
			c.mu.Unlock()
			h.reply(c, ServerMessage{Type: "subscribed", RequestID: msg.ID, Data: data})
		case "ping":
			h.reply(c, ServerMessage{Type: "pong", RequestID: msg.ID})
		default:
			h.reply(c, errorMessage(msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type)))
		}
	}
}

func (h *Hub) reply(c *client, msg ServerMessage) {
	select {
	case c.send <- msg:
	default:
		h.log.Warn("client too slow, dropping reply", zap.String("client", c.id))
	}
}

func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, msg)
			cancel()
			if err != nil {
				h.log.Debug("write error", zap.String("client", c.id), zap.Error(err))
				conn.Close(websocket.StatusGoingAway, "write failed")
				return
			}
		}
	}
}

func errorMessage(requestID, code, message string) ServerMessage {
	return ServerMessage{Type: "error", RequestID: requestID, Data: ErrorData{Code: code, Message: message}}
}
