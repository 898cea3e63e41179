package simulation

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"time"

	"github.com/zeusync/autosave/internal/core/models"
	"github.com/zeusync/autosave/internal/core/observability/log"
	"github.com/zeusync/autosave/internal/core/world"
)

var lootTable = []string{"apple", "arrow", "bandage", "coin", "gem", "key", "map", "rope"}

const maxItems = 6

// World is the subset of world.World the simulation drives.
type World interface {
	CreateEntity() (models.EntityID, error)
	Add(id models.EntityID, kind models.ComponentKind, value any) error
	Set(id models.EntityID, kind models.ComponentKind, value any) error
	Mutate(id models.EntityID, kind models.ComponentKind, fn func(current any) (any, error)) error
	Remove(id models.EntityID, kind models.ComponentKind) error
	Destroy(id models.EntityID) error
	Get(id models.EntityID, kind models.ComponentKind) (any, bool)
	IDs() []models.EntityID
	Len() int
}

var _ World = (*world.World)(nil)

// Config holds simulation settings.
type Config struct {
	Tick     time.Duration
	Entities int
	Seed     int64
}

func DefaultConfig() Config {
	return Config{
		Tick:     50 * time.Millisecond,
		Entities: 1000,
		Seed:     1,
	}
}

// Stats counts the mutations the simulation issued.
type Stats struct {
	Ticks     uint64 `json:"ticks"`
	Spawned   uint64 `json:"spawned"`
	Moved     uint64 `json:"moved"`
	Damaged   uint64 `json:"damaged"`
	Looted    uint64 `json:"looted"`
	Dropped   uint64 `json:"dropped"`
	Destroyed uint64 `json:"destroyed"`
}

type Option func(*Simulation)

func WithLogger(logger log.Log) Option {
	return func(s *Simulation) { s.logger = logger }
}

// Simulation is a toy game loop: a population of wanderers that move, take
// damage, heal, pick up and drop loot, die and respawn. It exists to produce
// a realistic mutation stream for the autosaver. All mutations are issued
// from the goroutine calling Step or Run.
type Simulation struct {
	config Config
	world  World
	kinds  Kinds
	rng    *rand.Rand
	logger log.Log

	ticks     atomic.Uint64
	spawned   atomic.Uint64
	moved     atomic.Uint64
	damaged   atomic.Uint64
	looted    atomic.Uint64
	dropped   atomic.Uint64
	destroyed atomic.Uint64
}

func New(config Config, w World, kinds Kinds, opts ...Option) *Simulation {
	seed := uint64(config.Seed)
	s := &Simulation{
		config: config,
		world:  w,
		kinds:  kinds,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		logger: log.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(log.String("component", "simulation"))
	return s
}

// Populate spawns entities until the world holds the configured population.
func (s *Simulation) Populate() error {
	for s.world.Len() < s.config.Entities {
		if _, err := s.spawn(); err != nil {
			return err
		}
	}
	return nil
}

// Run steps the simulation every tick until ctx is done.
func (s *Simulation) Run(ctx context.Context) error {
	if err := s.Populate(); err != nil {
		return err
	}

	s.logger.Info("Simulation started",
		log.Int("entities", s.world.Len()),
		log.Int64("seed", s.config.Seed),
		log.Duration("tick", s.config.Tick))

	ticker := time.NewTicker(s.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			st := s.Stats()
			s.logger.Info("Simulation stopped",
				log.Uint64("ticks", st.Ticks),
				log.Uint64("spawned", st.Spawned),
				log.Uint64("destroyed", st.Destroyed))
			return nil
		case <-ticker.C:
			if err := s.Step(); err != nil {
				return err
			}
		}
	}
}

// Step runs one tick. Roughly one in twenty entities acts per tick.
func (s *Simulation) Step() error {
	s.ticks.Add(1)

	ids := s.world.IDs()
	actions := max(1, len(ids)/20)
	for range actions {
		if len(ids) == 0 {
			break
		}
		id := ids[s.rng.IntN(len(ids))]
		if err := s.act(id); err != nil {
			if errors.Is(err, world.ErrEntityNotFound) {
				continue
			}
			return err
		}
	}

	return s.Populate()
}

func (s *Simulation) Stats() Stats {
	return Stats{
		Ticks:     s.ticks.Load(),
		Spawned:   s.spawned.Load(),
		Moved:     s.moved.Load(),
		Damaged:   s.damaged.Load(),
		Looted:    s.looted.Load(),
		Dropped:   s.dropped.Load(),
		Destroyed: s.destroyed.Load(),
	}
}

func (s *Simulation) act(id models.EntityID) error {
	switch roll := s.rng.IntN(100); {
	case roll < 50:
		return s.move(id)
	case roll < 80:
		return s.hurt(id)
	case roll < 95:
		return s.loot(id)
	default:
		return s.drop(id)
	}
}

func (s *Simulation) spawn() (models.EntityID, error) {
	id, err := s.world.CreateEntity()
	if err != nil {
		return id, err
	}
	pos := Position{X: s.rng.Float64() * 100, Y: s.rng.Float64() * 100}
	if err = s.world.Add(id, s.kinds.Position, pos); err != nil {
		return id, err
	}
	if err = s.world.Add(id, s.kinds.Health, Health{Current: 100, Max: 100}); err != nil {
		return id, err
	}
	s.spawned.Add(1)
	return id, nil
}

func (s *Simulation) move(id models.EntityID) error {
	dx, dy := s.rng.Float64()*2-1, s.rng.Float64()*2-1
	if _, ok := s.world.Get(id, s.kinds.Position); !ok {
		return s.world.Set(id, s.kinds.Position, Position{X: dx, Y: dy})
	}
	s.moved.Add(1)
	return s.world.Mutate(id, s.kinds.Position, func(current any) (any, error) {
		p := current.(Position)
		p.X += dx
		p.Y += dy
		return p, nil
	})
}

// hurt deals damage or heals. An entity at zero health is destroyed.
func (s *Simulation) hurt(id models.EntityID) error {
	if _, ok := s.world.Get(id, s.kinds.Health); !ok {
		return nil
	}

	amount := s.rng.IntN(41) - 10
	var dead bool
	err := s.world.Mutate(id, s.kinds.Health, func(current any) (any, error) {
		h := current.(Health)
		h.Current = min(h.Max, max(0, h.Current-amount))
		dead = h.Current == 0
		return h, nil
	})
	if err != nil {
		return err
	}
	s.damaged.Add(1)

	if dead {
		if err = s.world.Destroy(id); err != nil {
			return err
		}
		s.destroyed.Add(1)
	}
	return nil
}

func (s *Simulation) loot(id models.EntityID) error {
	item := lootTable[s.rng.IntN(len(lootTable))]
	s.looted.Add(1)

	current, ok := s.world.Get(id, s.kinds.Inventory)
	if !ok {
		return s.world.Add(id, s.kinds.Inventory, Inventory{Items: []string{item}})
	}
	inv := current.(Inventory)
	if len(inv.Items) >= maxItems {
		return s.drop(id)
	}
	return s.world.Set(id, s.kinds.Inventory, Inventory{Items: append(slices.Clone(inv.Items), item)})
}

// drop empties the inventory by removing the component outright.
func (s *Simulation) drop(id models.EntityID) error {
	if _, ok := s.world.Get(id, s.kinds.Inventory); !ok {
		return nil
	}
	if err := s.world.Remove(id, s.kinds.Inventory); err != nil {
		return err
	}
	s.dropped.Add(1)
	return nil
}
