// Package eventbus provides an in-process pub/sub bus for ledger domain events.
// The recorder publishes events after they are stored; subscribers (logging,
// metrics, the live stream hub) process them asynchronously.
package eventbus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/matthewbaird/rentledger/internal/event"
)

// Handler processes a domain event. Implementations must be safe for
// concurrent calls from different goroutines.
type Handler interface {
	HandleEvent(ctx context.Context, evt event.DomainEvent) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt event.DomainEvent) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	return f(ctx, evt)
}

// Bus is an in-process event bus. Events are published to a buffered channel
// and dispatched to all subscribers in a single consumer goroutine, so
// handlers see events in publish order.
type Bus struct {
	mu          sync.RWMutex
	subscribers []namedHandler
	stopped     bool
	events      chan event.DomainEvent
	done        chan struct{}
	log         *zap.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// New creates a new Bus with the given channel buffer size.
func New(bufSize int, log *zap.Logger) *Bus {
	if bufSize < 1 {
		bufSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		events: make(chan event.DomainEvent, bufSize),
		done:   make(chan struct{}),
		log:    log.Named("eventbus"),
	}
}

// Subscribe registers a named handler.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, namedHandler{name: name, handler: h})
}

// Publish sends an event to the bus. It never blocks: if the buffer is full,
// or the bus is stopped, the event is dropped with a warning.
func (b *Bus) Publish(_ context.Context, evt event.DomainEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		b.log.Warn("bus stopped, dropping event", zap.String("event_type", evt.EventType), zap.String("event_id", evt.ID))
		return
	}
	select {
	case b.events <- evt:
	default:
		b.log.Warn("buffer full, dropping event", zap.String("event_type", evt.EventType), zap.String("event_id", evt.ID))
	}
}

// Start begins the consumer goroutine. It processes events until the
// context is cancelled or Stop is called.
func (b *Bus) Start(ctx context.Context) {
	go func() {
		defer close(b.done)
		for {
			select {
			case evt, ok := <-b.events:
				if !ok {
					return
				}
				b.dispatch(ctx, evt)
			case <-ctx.Done():
				// Drain what is already buffered before exiting.
				for {
					select {
					case evt, ok := <-b.events:
						if !ok {
							return
						}
						b.dispatch(context.WithoutCancel(ctx), evt)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop closes the bus and waits for buffered events to be dispatched.
// It must only be called after Start, and at most once.
func (b *Bus) Stop() {
	b.mu.Lock()
	b.stopped = true
	close(b.events)
	b.mu.Unlock()
	<-b.done
}

func (b *Bus) dispatch(ctx context.Context, evt event.DomainEvent) {
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()

	for _, s := range subs {
		if err := s.handler.HandleEvent(ctx, evt); err != nil {
			b.log.Error("handler error",
				zap.String("handler", s.name),
				zap.String("event_type", evt.EventType),
				zap.Error(err))
		}
	}
}
