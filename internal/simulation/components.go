package simulation

import (
	"slices"

	"github.com/zeusync/autosave/internal/core/components"
	"github.com/zeusync/autosave/internal/core/models"
)

type Position struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

type Health struct {
	Current int `yaml:"current" json:"current"`
	Max     int `yaml:"max" json:"max"`
}

type Inventory struct {
	Items []string `yaml:"items" json:"items"`
}

// Kinds holds the component kinds the simulation registered.
type Kinds struct {
	Position  models.ComponentKind
	Health    models.ComponentKind
	Inventory models.ComponentKind
}

// RegisterComponents registers the simulation's component types. The names
// end up in save files and must stay stable.
func RegisterComponents(reg *components.Registry) (Kinds, error) {
	var (
		kinds Kinds
		err   error
	)
	if kinds.Position, err = components.Register(reg, "position", components.ByValue[Position]()); err != nil {
		return Kinds{}, err
	}
	if kinds.Health, err = components.Register(reg, "health", components.ByValue[Health]()); err != nil {
		return Kinds{}, err
	}
	if kinds.Inventory, err = components.Register(reg, "inventory", copyInventory); err != nil {
		return Kinds{}, err
	}
	return kinds, nil
}

func copyInventory(v Inventory) (Inventory, error) {
	return Inventory{Items: slices.Clone(v.Items)}, nil
}
