package delta

import (
	"fmt"

	"github.com/zeusync/autosave/internal/core/events"
	"github.com/zeusync/autosave/internal/core/events/bus"
	"github.com/zeusync/autosave/internal/core/models"
)

// Attach subscribes the recorder to the entity events on b's default topic.
// Cancel the returned subscriptions to detach it.
func (r *Recorder) Attach(b bus.EventBus) ([]bus.Subscription, error) {
	handlers := []struct {
		eventType string
		handler   bus.EventHandler
	}{
		{events.EntityCreated, r.handleCreated},
		{events.ComponentAdded, r.handleComponent(r.OnComponentAdded)},
		{events.ComponentChanged, r.handleComponent(r.OnComponentChanged)},
		{events.ComponentRemoved, r.handleRemoved},
		{events.EntityDestroyed, r.handleDestroyed},
	}

	subs := make([]bus.Subscription, 0, len(handlers))
	for _, h := range handlers {
		sub, err := b.Subscribe(h.eventType, h.handler)
		if err != nil {
			for _, s := range subs {
				_ = s.Cancel()
			}
			return nil, fmt.Errorf("subscribe %s: %w", h.eventType, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (r *Recorder) handleComponent(record func(models.Entity, models.ComponentKind) error) bus.EventHandler {
	return func(event bus.Event) error {
		payload, ok := event.Data().(events.ComponentEvent)
		if !ok {
			return unexpectedPayload(event)
		}
		return record(payload.Entity, payload.Kind)
	}
}

func (r *Recorder) handleRemoved(event bus.Event) error {
	payload, ok := event.Data().(events.ComponentEvent)
	if !ok {
		return unexpectedPayload(event)
	}
	r.OnComponentRemoved(payload.Entity.ID(), payload.Kind)
	return nil
}

func (r *Recorder) handleCreated(event bus.Event) error {
	payload, ok := event.Data().(events.CreatedEvent)
	if !ok {
		return unexpectedPayload(event)
	}
	r.OnEntityCreated(payload.ID)
	return nil
}

func (r *Recorder) handleDestroyed(event bus.Event) error {
	payload, ok := event.Data().(events.DestroyedEvent)
	if !ok {
		return unexpectedPayload(event)
	}
	r.OnEntityDestroyed(payload.ID)
	return nil
}

func unexpectedPayload(event bus.Event) error {
	return fmt.Errorf("%w: %s carries %T", ErrUnexpectedPayload, event.Type(), event.Data())
}
