package snapshot

import (
	"fmt"
	"sync"

	"github.com/zeusync/autosave/internal/core/models"
	"github.com/zeusync/autosave/internal/core/persistence/delta"
)

// Store holds the persistence side's copy of the world. It starts from a
// baseline captured once and is rolled forward by applying drained intervals,
// so producing the next snapshot never touches live entities.
type Store struct {
	mu          sync.RWMutex
	entities    models.Population
	established bool
	lastApplied uint64
}

func NewStore() *Store {
	return &Store{}
}

// Establish installs pop as the baseline. The store takes ownership of pop.
// since is the sequence of the last interval whose effects pop already
// contains; intervals up to and including it are refused by Apply.
func (s *Store) Establish(pop models.Population, since uint64) {
	if pop == nil {
		pop = make(models.Population)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities = pop
	s.established = true
	s.lastApplied = since
}

// Apply rolls the baseline forward by one drained interval. Destroyed
// entities are dropped first, then every delta is merged. The store takes
// ownership of the interval's component copies.
func (s *Store) Apply(iv *delta.Interval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.established {
		return ErrNoBaseline
	}
	if iv.Sequence <= s.lastApplied {
		return fmt.Errorf("%w: got %d, last %d", ErrStaleInterval, iv.Sequence, s.lastApplied)
	}

	for id := range iv.DestroyedEntities {
		delete(s.entities, id)
	}
	for id, d := range iv.EntityDeltas {
		s.entities[id] = d.ApplyTo(s.entities[id])
	}
	s.lastApplied = iv.Sequence
	return nil
}

// View runs fn with the current baseline under a read lock. fn must not keep
// or modify the population.
func (s *Store) View(fn func(pop models.Population) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.established {
		return ErrNoBaseline
	}
	return fn(s.entities)
}

func (s *Store) Established() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.established
}

// LastApplied returns the sequence of the last interval applied.
func (s *Store) LastApplied() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastApplied
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}
