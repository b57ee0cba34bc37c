package eventbus

import (
	"context"

	"go.uber.org/zap"

	"github.com/matthewbaird/rentledger/internal/event"
)

// LogConsumer logs all domain events.
type LogConsumer struct {
	log *zap.Logger
}

func NewLogConsumer(log *zap.Logger) *LogConsumer {
	return &LogConsumer{log: log.Named("event")}
}

func (c *LogConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	entities := make([]string, len(evt.AffectedEntities))
	for i, ref := range evt.AffectedEntities {
		id := ref.EntityID
		if len(id) > 8 {
			id = id[:8]
		}
		entities[i] = ref.EntityType + ":" + id
	}
	c.log.Info(evt.Summary,
		zap.String("event_type", evt.EventType),
		zap.String("category", evt.Category),
		zap.String("weight", evt.Weight),
		zap.Strings("entities", entities))
	return nil
}
