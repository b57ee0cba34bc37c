package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/types"
)

func testEvent(eventType string) event.DomainEvent {
	return event.DomainEvent{
		ID:        "evt-" + eventType,
		EventType: eventType,
		AffectedEntities: []types.SourceRef{
			{EntityType: "lease", EntityID: "11111111-2222-3333-4444-555555555555", Role: "subject"},
		},
		Summary:  eventType,
		Category: "invoice",
		Weight:   "info",
	}
}

type collector struct {
	mu     sync.Mutex
	events []string
}

func (c *collector) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt.EventType)
	return nil
}

func TestBus_DispatchesInOrder(t *testing.T) {
	bus := New(16, zap.NewNop())
	c := &collector{}
	bus.Subscribe("collector", c)
	bus.Start(context.Background())

	for _, typ := range []string{"invoice_created", "advance_rent_applied", "invoice_voided"} {
		bus.Publish(context.Background(), testEvent(typ))
	}
	bus.Stop()

	want := []string{"invoice_created", "advance_rent_applied", "invoice_voided"}
	if len(c.events) != len(want) {
		t.Fatalf("got %v, want %v", c.events, want)
	}
	for i := range want {
		if c.events[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, c.events[i], want[i])
		}
	}
}

func TestBus_PublishAfterStopDrops(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	bus := New(4, zap.New(core))
	bus.Start(context.Background())
	bus.Stop()

	bus.Publish(context.Background(), testEvent("invoice_created"))
	if logs.FilterMessage("bus stopped, dropping event").Len() != 1 {
		t.Fatalf("expected a drop warning, got %v", logs.All())
	}
}

func TestBus_HandlerErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	bus := New(4, zap.New(core))
	bus.Subscribe("broken", HandlerFunc(func(context.Context, event.DomainEvent) error {
		return errors.New("boom")
	}))
	c := &collector{}
	bus.Subscribe("collector", c)
	bus.Start(context.Background())
	bus.Publish(context.Background(), testEvent("invoice_created"))
	bus.Stop()

	if logs.FilterMessage("handler error").Len() != 1 {
		t.Fatalf("expected handler error log, got %v", logs.All())
	}
	if len(c.events) != 1 {
		t.Errorf("later subscribers must still run, got %v", c.events)
	}
}

type countingObserver struct{ n int }

func (o *countingObserver) ObserveEvent(event.DomainEvent) { o.n++ }

func TestConsumers(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	obs := &countingObserver{}
	bus := New(4, zap.NewNop())
	bus.Subscribe("log", NewLogConsumer(zap.New(core)))
	bus.Subscribe("metrics", NewMetricsConsumer(obs))
	bus.Start(context.Background())
	bus.Publish(context.Background(), testEvent("invoice_overdue"))
	bus.Stop()

	if obs.n != 1 {
		t.Errorf("metrics consumer saw %d events, want 1", obs.n)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["entities"]; got == nil {
		t.Errorf("log entry missing entities field")
	}
}
