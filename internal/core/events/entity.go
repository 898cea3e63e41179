// Package events defines the entity mutation events the world publishes and
// the persistence layer consumes.
package events

import (
	"github.com/zeusync/autosave/internal/core/events/bus"
	"github.com/zeusync/autosave/internal/core/models"
)

const (
	EntityCreated    = "entity.created"
	ComponentAdded   = "entity.component.added"
	ComponentChanged = "entity.component.changed"
	ComponentRemoved = "entity.component.removed"
	EntityDestroyed  = "entity.destroyed"
)

// ComponentEvent is the payload of the component events. Entity is only valid
// for the duration of the handler call.
type ComponentEvent struct {
	Entity models.Entity
	Kind   models.ComponentKind
}

// CreatedEvent is the payload of EntityCreated.
type CreatedEvent struct {
	ID models.EntityID
}

// DestroyedEvent is the payload of EntityDestroyed.
type DestroyedEvent struct {
	ID models.EntityID
}

// NewComponentEvent builds a bus event of the given component event type.
func NewComponentEvent(eventType, source string, entity models.Entity, kind models.ComponentKind) bus.Event {
	return bus.NewEvent(eventType, source, ComponentEvent{Entity: entity, Kind: kind})
}

// NewCreatedEvent builds an EntityCreated bus event.
func NewCreatedEvent(source string, id models.EntityID) bus.Event {
	return bus.NewEvent(EntityCreated, source, CreatedEvent{ID: id})
}

// NewDestroyedEvent builds an EntityDestroyed bus event.
func NewDestroyedEvent(source string, id models.EntityID) bus.Event {
	return bus.NewEvent(EntityDestroyed, source, DestroyedEvent{ID: id})
}
