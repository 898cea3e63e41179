package models

import "fmt"

// EntityID is a stable handle, unique for the lifetime of an entity.
type EntityID uint64

func (id EntityID) String() string {
	return fmt.Sprintf("entity#%d", uint64(id))
}

// ComponentKind identifies a component schema. Kinds are assigned by the
// component registry at startup and are otherwise opaque.
type ComponentKind uint16

// Entity is a read-only view over one live entity.
type Entity interface {
	ID() EntityID
	// Component returns the live value stored for kind. Callers must not
	// retain or mutate it; take a copy through the component registry.
	Component(kind ComponentKind) (any, bool)
	Kinds() []ComponentKind
}

// Components maps component kinds to values for a single entity.
type Components map[ComponentKind]any

// Population is a full entity set, as held by a baseline or decoded from a save.
type Population map[EntityID]Components

// Len returns the total number of component values in the population.
func (p Population) Len() int {
	n := 0
	for _, comps := range p {
		n += len(comps)
	}
	return n
}
