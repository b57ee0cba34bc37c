package eventbus

import (
	"context"

	"github.com/matthewbaird/rentledger/internal/event"
)

// EventObserver is the slice of the metrics registry the bus feeds.
type EventObserver interface {
	ObserveEvent(evt event.DomainEvent)
}

// MetricsConsumer counts domain events by type and category.
type MetricsConsumer struct {
	obs EventObserver
}

func NewMetricsConsumer(obs EventObserver) *MetricsConsumer {
	return &MetricsConsumer{obs: obs}
}

func (c *MetricsConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	c.obs.ObserveEvent(evt)
	return nil
}
