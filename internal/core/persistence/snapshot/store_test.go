package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/autosave/internal/core/models"
	"github.com/zeusync/autosave/internal/core/persistence/delta"
)

func interval(seq uint64, deltas map[models.EntityID]*delta.EntityDelta, destroyed ...models.EntityID) *delta.Interval {
	iv := &delta.Interval{
		Sequence:          seq,
		EntityDeltas:      deltas,
		DestroyedEntities: make(map[models.EntityID]struct{}),
	}
	if iv.EntityDeltas == nil {
		iv.EntityDeltas = make(map[models.EntityID]*delta.EntityDelta)
	}
	for _, id := range destroyed {
		iv.DestroyedEntities[id] = struct{}{}
	}
	return iv
}

func TestStore_ApplyWithoutBaseline(t *testing.T) {
	s := NewStore()
	assert.ErrorIs(t, s.Apply(interval(1, nil)), ErrNoBaseline)
	assert.ErrorIs(t, s.View(func(models.Population) error { return nil }), ErrNoBaseline)
	assert.False(t, s.Established())
}

func TestStore_Apply(t *testing.T) {
	s := NewStore()
	s.Establish(models.Population{
		1: {1: "hp10", 2: "pos"},
		2: {1: "hp5"},
	}, 3)

	d1 := delta.NewEntityDelta()
	d1.SetChangedComponent(1, "hp7")
	d1.RemoveComponent(2)
	d3 := delta.NewEntityDelta()
	d3.SetChangedComponent(2, "spawned")

	require.NoError(t, s.Apply(interval(4, map[models.EntityID]*delta.EntityDelta{1: d1, 3: d3}, 2)))

	err := s.View(func(pop models.Population) error {
		assert.Equal(t, models.Population{
			1: {1: "hp7"},
			3: {2: "spawned"},
		}, pop)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, uint64(4), s.LastApplied())
}

func TestStore_RejectsStaleIntervals(t *testing.T) {
	s := NewStore()
	s.Establish(nil, 5)

	assert.ErrorIs(t, s.Apply(interval(5, nil)), ErrStaleInterval)
	assert.ErrorIs(t, s.Apply(interval(2, nil)), ErrStaleInterval)
	require.NoError(t, s.Apply(interval(6, nil)))
	assert.ErrorIs(t, s.Apply(interval(6, nil)), ErrStaleInterval)
}

// Destroying an entity that is unknown to the baseline is not an error;
// it was created and destroyed within one interval.
func TestStore_DestroyUnknown(t *testing.T) {
	s := NewStore()
	s.Establish(models.Population{1: {1: "a"}}, 0)
	require.NoError(t, s.Apply(interval(1, nil, 99)))
	assert.Equal(t, 1, s.Len())
}
