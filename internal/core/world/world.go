package world

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/zeusync/autosave/internal/core/events"
	"github.com/zeusync/autosave/internal/core/events/bus"
	"github.com/zeusync/autosave/internal/core/models"
)

const eventSource = "world"

// Copier detaches a live component value.
type Copier interface {
	Copy(kind models.ComponentKind, live any) (any, error)
}

type entity struct {
	id    models.EntityID
	comps models.Components
}

func (e *entity) ID() models.EntityID { return e.id }

func (e *entity) Component(kind models.ComponentKind) (any, bool) {
	v, ok := e.comps[kind]
	return v, ok
}

func (e *entity) Kinds() []models.ComponentKind {
	return slices.Sorted(maps.Keys(e.comps))
}

// World is the live entity population. Every mutation publishes its event on
// the bus while the world lock is held, so subscribers observe mutations in
// exactly the order they happened and can read the entity's live state.
//
// If a subscriber fails, the mutation itself stays applied and the error is
// returned wrapped in ErrNotificationFailed.
type World struct {
	mu       sync.RWMutex
	entities map[models.EntityID]*entity
	nextID   models.EntityID
	bus      bus.EventBus
}

func New(b bus.EventBus) *World {
	return &World{
		entities: make(map[models.EntityID]*entity),
		nextID:   1,
		bus:      b,
	}
}

// CreateEntity allocates an entity with no components. Ids are never reused.
// The id is valid even when the returned error reports a failed notification.
func (w *World) CreateEntity() (models.EntityID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++
	w.entities[id] = &entity{id: id, comps: make(models.Components)}
	return id, w.publishLocked(events.NewCreatedEvent(eventSource, id))
}

// Add attaches a new component.
func (w *World) Add(id models.EntityID, kind models.ComponentKind, value any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, err := w.getLocked(id)
	if err != nil {
		return err
	}
	if _, exists := e.comps[kind]; exists {
		return fmt.Errorf("%w: %s kind %d", ErrComponentExists, id, kind)
	}
	e.comps[kind] = value
	return w.publishLocked(events.NewComponentEvent(events.ComponentAdded, eventSource, e, kind))
}

// Set stores value for kind, adding the component if it is absent.
func (w *World) Set(id models.EntityID, kind models.ComponentKind, value any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, err := w.getLocked(id)
	if err != nil {
		return err
	}
	eventType := events.ComponentChanged
	if _, exists := e.comps[kind]; !exists {
		eventType = events.ComponentAdded
	}
	e.comps[kind] = value
	return w.publishLocked(events.NewComponentEvent(eventType, eventSource, e, kind))
}

// Mutate replaces the component with fn's result, for read-modify-write
// updates. fn runs under the world lock and must not call back into the world.
func (w *World) Mutate(id models.EntityID, kind models.ComponentKind, fn func(current any) (any, error)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, err := w.getLocked(id)
	if err != nil {
		return err
	}
	current, ok := e.comps[kind]
	if !ok {
		return fmt.Errorf("%w: %s kind %d", ErrComponentNotFound, id, kind)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	e.comps[kind] = next
	return w.publishLocked(events.NewComponentEvent(events.ComponentChanged, eventSource, e, kind))
}

// Remove detaches a component.
func (w *World) Remove(id models.EntityID, kind models.ComponentKind) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, err := w.getLocked(id)
	if err != nil {
		return err
	}
	if _, exists := e.comps[kind]; !exists {
		return fmt.Errorf("%w: %s kind %d", ErrComponentNotFound, id, kind)
	}
	delete(e.comps, kind)
	return w.publishLocked(events.NewComponentEvent(events.ComponentRemoved, eventSource, e, kind))
}

// Destroy removes the entity and all its components.
func (w *World) Destroy(id models.EntityID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.getLocked(id); err != nil {
		return err
	}
	delete(w.entities, id)
	return w.publishLocked(events.NewDestroyedEvent(eventSource, id))
}

// Get returns a copy of one component value as stored. Values of reference
// types are shared with the world.
func (w *World) Get(id models.EntityID, kind models.ComponentKind) (any, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	e, ok := w.entities[id]
	if !ok {
		return nil, false
	}
	return e.Component(kind)
}

func (w *World) Exists(id models.EntityID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.entities[id]
	return ok
}

// IDs returns the live entity ids in ascending order.
func (w *World) IDs() []models.EntityID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Sorted(maps.Keys(w.entities))
}

func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entities)
}

// Checkpoint copies every component through copier and then calls reset, all
// under the world lock. No mutation can fall between the copy and the reset,
// so the returned population is an exact baseline for whatever is recorded
// after reset returns.
func (w *World) Checkpoint(copier Copier, reset func()) (models.Population, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pop := make(models.Population, len(w.entities))
	for id, e := range w.entities {
		comps := make(models.Components, len(e.comps))
		for kind, v := range e.comps {
			c, err := copier.Copy(kind, v)
			if err != nil {
				return nil, fmt.Errorf("checkpoint %s: %w", id, err)
			}
			comps[kind] = c
		}
		pop[id] = comps
	}

	if reset != nil {
		reset()
	}
	return pop, nil
}

// Restore replaces the world's contents with pop without publishing any
// events. The world takes ownership of pop's values. New ids continue after
// the highest restored id.
func (w *World) Restore(pop models.Population) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entities = make(map[models.EntityID]*entity, len(pop))
	for id, comps := range pop {
		if comps == nil {
			comps = make(models.Components)
		}
		w.entities[id] = &entity{id: id, comps: comps}
		if id >= w.nextID {
			w.nextID = id + 1
		}
	}
}

func (w *World) getLocked(id models.EntityID) (*entity, error) {
	e, ok := w.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	return e, nil
}

func (w *World) publishLocked(event bus.Event) error {
	if w.bus == nil {
		return nil
	}
	if err := w.bus.Publish(event); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotificationFailed, event.Type(), err)
	}
	return nil
}
