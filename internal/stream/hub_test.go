package stream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/types"
)

type countGauge struct{ n int }

func (g *countGauge) Inc() { g.n++ }
func (g *countGauge) Dec() { g.n-- }

func leaseEvent(id, leaseID, category string) event.DomainEvent {
	return event.DomainEvent{
		ID:        id,
		EventType: "invoice_created",
		AffectedEntities: []types.SourceRef{
			{EntityType: "lease", EntityID: leaseID, Role: "subject"},
		},
		Category: category,
		Weight:   "info",
	}
}

type received struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func read(t *testing.T, ctx context.Context, conn *websocket.Conn) received {
	t.Helper()
	var msg received
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestHub_FiltersByLease(t *testing.T) {
	gauge := &countGauge{}
	hub := NewHub(zap.NewNop(), gauge)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv.URL+"?lease_id=lease-a")

	if msg := read(t, ctx, conn); msg.Type != "hello" {
		t.Fatalf("first message = %s, want hello", msg.Type)
	}
	if hub.Clients() != 1 {
		t.Fatalf("clients = %d, want 1", hub.Clients())
	}

	hub.HandleEvent(ctx, leaseEvent("e1", "lease-b", "invoice"))
	hub.HandleEvent(ctx, leaseEvent("e2", "lease-a", "invoice"))

	msg := read(t, ctx, conn)
	if msg.Type != "event" {
		t.Fatalf("type = %s, want event", msg.Type)
	}
	var data EventData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Event.ID != "e2" {
		t.Errorf("event = %s, want e2 (lease-b must be filtered)", data.Event.ID)
	}
}

func TestHub_SubscribeAndPing(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv.URL)
	read(t, ctx, conn) // hello

	sub, _ := json.Marshal(SubscribeData{Categories: []string{"deposit"}})
	if err := wsjson.Write(ctx, conn, ClientMessage{Type: "subscribe", ID: "1", Data: sub}); err != nil {
		t.Fatal(err)
	}
	if msg := read(t, ctx, conn); msg.Type != "subscribed" || msg.RequestID != "1" {
		t.Fatalf("got %+v, want subscribed ack", msg)
	}

	hub.HandleEvent(ctx, leaseEvent("e1", "lease-a", "invoice"))
	hub.HandleEvent(ctx, leaseEvent("e2", "lease-a", "deposit"))
	msg := read(t, ctx, conn)
	var data EventData
	json.Unmarshal(msg.Data, &data)
	if data.Event.ID != "e2" {
		t.Errorf("event = %s, want e2", data.Event.ID)
	}

	if err := wsjson.Write(ctx, conn, ClientMessage{Type: "ping", ID: "2"}); err != nil {
		t.Fatal(err)
	}
	if msg := read(t, ctx, conn); msg.Type != "pong" || msg.RequestID != "2" {
		t.Errorf("got %+v, want pong", msg)
	}

	if err := wsjson.Write(ctx, conn, ClientMessage{Type: "shout", ID: "3"}); err != nil {
		t.Fatal(err)
	}
	if msg := read(t, ctx, conn); msg.Type != "error" {
		t.Errorf("got %+v, want error", msg)
	}
}

func TestHub_UnregistersOnClose(t *testing.T) {
	gauge := &countGauge{}
	hub := NewHub(zap.NewNop(), gauge)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv.URL)
	read(t, ctx, conn)
	conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Clients() != 0 {
		t.Fatalf("clients = %d after close, want 0", hub.Clients())
	}
}
