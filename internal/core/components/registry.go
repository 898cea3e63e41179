package components

import (
	"fmt"
	"math"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/autosave/internal/core/models"
)

// CopyFunc produces a copy of v that shares no mutable state with it.
type CopyFunc[T any] func(v T) (T, error)

// ByValue returns a CopyFunc for types whose Go value copy is already
// detached: structs of scalars, strings and arrays. Do not use it for types
// holding slices, maps or pointers.
func ByValue[T any]() CopyFunc[T] {
	return func(v T) (T, error) { return v, nil }
}

type kindInfo struct {
	name   string
	copy   func(live any) (any, error)
	decode func(node *yaml.Node) (any, error)
}

// Registry associates component kinds with a name, a typed copy function and a
// typed decoder. Kinds are registered at startup; lookups afterwards are a
// slice index, no reflection.
type Registry struct {
	mu     sync.RWMutex
	kinds  []kindInfo // kinds[k-1]; kind 0 is never assigned
	byName map[string]models.ComponentKind
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]models.ComponentKind),
	}
}

// Register adds a component type under name and returns its kind.
func Register[T any](r *Registry, name string, copyFn CopyFunc[T]) (models.ComponentKind, error) {
	if name == "" {
		return 0, ErrInvalidName
	}
	if copyFn == nil {
		return 0, fmt.Errorf("%w: %s has no copy function", ErrInvalidName, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateKind, name)
	}
	if len(r.kinds) >= math.MaxUint16 {
		return 0, ErrRegistryFull
	}

	info := kindInfo{
		name: name,
		copy: func(live any) (any, error) {
			v, ok := live.(T)
			if !ok {
				var zero T
				return nil, fmt.Errorf("%w: %s wants %T, got %T", ErrTypeMismatch, name, zero, live)
			}
			c, err := copyFn(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrCopyFailed, name, err)
			}
			return c, nil
		},
		decode: func(node *yaml.Node) (any, error) {
			var v T
			if err := node.Decode(&v); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrDecodeFailed, name, err)
			}
			return v, nil
		},
	}

	r.kinds = append(r.kinds, info)
	kind := models.ComponentKind(len(r.kinds))
	r.byName[name] = kind
	return kind, nil
}

// MustRegister is Register for package-level setup; it panics on error.
func MustRegister[T any](r *Registry, name string, copyFn CopyFunc[T]) models.ComponentKind {
	kind, err := Register(r, name, copyFn)
	if err != nil {
		panic(err)
	}
	return kind
}

func (r *Registry) info(kind models.ComponentKind) (kindInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if kind == 0 || int(kind) > len(r.kinds) {
		return kindInfo{}, false
	}
	return r.kinds[kind-1], true
}

// Copy returns a detached copy of live, which must hold the Go type kind was
// registered with.
func (r *Registry) Copy(kind models.ComponentKind, live any) (any, error) {
	info, ok := r.info(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
	return info.copy(live)
}

// Decode decodes a YAML node into a value of the kind's Go type.
func (r *Registry) Decode(kind models.ComponentKind, node *yaml.Node) (any, error) {
	info, ok := r.info(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
	return info.decode(node)
}

// Name returns the registered name of kind.
func (r *Registry) Name(kind models.ComponentKind) (string, bool) {
	info, ok := r.info(kind)
	return info.name, ok
}

// Kind resolves a registered name.
func (r *Registry) Kind(name string) (models.ComponentKind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kind, ok := r.byName[name]
	return kind, ok
}

// Len returns the number of registered kinds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kinds)
}
