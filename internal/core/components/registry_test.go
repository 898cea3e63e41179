package components

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type health struct {
	HP int `yaml:"hp"`
}

type inventory struct {
	Items []string `yaml:"items"`
}

func copyInventory(v inventory) (inventory, error) {
	return inventory{Items: slices.Clone(v.Items)}, nil
}

func TestRegister(t *testing.T) {
	reg := NewRegistry()

	hk, err := Register(reg, "health", ByValue[health]())
	require.NoError(t, err)
	ik, err := Register(reg, "inventory", copyInventory)
	require.NoError(t, err)

	assert.NotZero(t, hk)
	assert.NotEqual(t, hk, ik)
	assert.Equal(t, 2, reg.Len())

	name, ok := reg.Name(ik)
	require.True(t, ok)
	assert.Equal(t, "inventory", name)

	kind, ok := reg.Kind("health")
	require.True(t, ok)
	assert.Equal(t, hk, kind)

	_, ok = reg.Kind("missing")
	assert.False(t, ok)
	_, ok = reg.Name(0)
	assert.False(t, ok)

	t.Run("duplicate", func(t *testing.T) {
		_, err := Register(reg, "health", ByValue[health]())
		assert.ErrorIs(t, err, ErrDuplicateKind)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := Register(reg, "", ByValue[health]())
		assert.ErrorIs(t, err, ErrInvalidName)
		_, err = Register[health](reg, "nocopy", nil)
		assert.ErrorIs(t, err, ErrInvalidName)
	})

	t.Run("must register panics", func(t *testing.T) {
		assert.Panics(t, func() { MustRegister(reg, "health", ByValue[health]()) })
	})
}

func TestRegistry_Copy(t *testing.T) {
	reg := NewRegistry()
	hk := MustRegister(reg, "health", ByValue[health]())
	ik := MustRegister(reg, "inventory", copyInventory)

	t.Run("value type", func(t *testing.T) {
		c, err := reg.Copy(hk, health{HP: 10})
		require.NoError(t, err)
		assert.Equal(t, health{HP: 10}, c)
	})

	t.Run("detached", func(t *testing.T) {
		live := inventory{Items: []string{"sword"}}
		c, err := reg.Copy(ik, live)
		require.NoError(t, err)

		live.Items[0] = "shield"
		assert.Equal(t, []string{"sword"}, c.(inventory).Items)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := reg.Copy(99, health{})
		assert.ErrorIs(t, err, ErrUnknownKind)
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := reg.Copy(hk, inventory{})
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("copy failure", func(t *testing.T) {
		boom := errors.New("boom")
		fk := MustRegister(reg, "fragile", func(v health) (health, error) { return v, boom })
		_, err := reg.Copy(fk, health{})
		assert.ErrorIs(t, err, ErrCopyFailed)
		assert.ErrorIs(t, err, boom)
	})
}

func TestRegistry_Decode(t *testing.T) {
	reg := NewRegistry()
	ik := MustRegister(reg, "inventory", copyInventory)

	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("items: [sword, bow]\n"), &node))

	// Unmarshal wraps the mapping in a document node.
	v, err := reg.Decode(ik, node.Content[0])
	require.NoError(t, err)
	assert.Equal(t, inventory{Items: []string{"sword", "bow"}}, v)

	_, err = reg.Decode(42, node.Content[0])
	assert.ErrorIs(t, err, ErrUnknownKind)

	var bad yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("items: {a: 1}\n"), &bad))
	_, err = reg.Decode(ik, bad.Content[0])
	assert.ErrorIs(t, err, ErrDecodeFailed)
}
