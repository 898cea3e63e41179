package delta

import (
	"maps"
	"slices"

	"github.com/zeusync/autosave/internal/core/models"
)

// EntityDelta is one entity's divergence from the baseline: the latest copy of
// every changed component and the set of removed component kinds. A kind is
// never in both at once.
type EntityDelta struct {
	changed models.Components
	removed map[models.ComponentKind]struct{}
}

func NewEntityDelta() *EntityDelta {
	return &EntityDelta{
		changed: make(models.Components),
		removed: make(map[models.ComponentKind]struct{}),
	}
}

// SetChangedComponent stores value as the latest copy for kind, replacing any
// earlier copy and clearing a pending removal. value must already be detached
// from live state.
func (d *EntityDelta) SetChangedComponent(kind models.ComponentKind, value any) {
	delete(d.removed, kind)
	d.changed[kind] = value
}

// RemoveComponent records kind as removed, dropping any pending change.
func (d *EntityDelta) RemoveComponent(kind models.ComponentKind) {
	delete(d.changed, kind)
	d.removed[kind] = struct{}{}
}

// ChangedComponents returns a copy of the changed set.
func (d *EntityDelta) ChangedComponents() models.Components {
	return maps.Clone(d.changed)
}

// RemovedComponents returns the removed kinds in ascending order.
func (d *EntityDelta) RemovedComponents() []models.ComponentKind {
	return slices.Sorted(maps.Keys(d.removed))
}

func (d *EntityDelta) Changed(kind models.ComponentKind) (any, bool) {
	v, ok := d.changed[kind]
	return v, ok
}

func (d *EntityDelta) IsRemoved(kind models.ComponentKind) bool {
	_, ok := d.removed[kind]
	return ok
}

// Len is the number of kinds touched, changed or removed.
func (d *EntityDelta) Len() int {
	return len(d.changed) + len(d.removed)
}

// Clone copies the delta's bookkeeping. Component copies are shared; they are
// never mutated once recorded.
func (d *EntityDelta) Clone() *EntityDelta {
	return &EntityDelta{
		changed: maps.Clone(d.changed),
		removed: maps.Clone(d.removed),
	}
}

// ApplyTo merges the delta into comps and returns the result. A nil comps is
// allocated, which is how an entity created during the interval enters a
// baseline. Values are moved, not copied: the caller must own the delta.
func (d *EntityDelta) ApplyTo(comps models.Components) models.Components {
	if comps == nil {
		comps = make(models.Components, len(d.changed))
	}
	for kind := range d.removed {
		delete(comps, kind)
	}
	for kind, v := range d.changed {
		comps[kind] = v
	}
	return comps
}
