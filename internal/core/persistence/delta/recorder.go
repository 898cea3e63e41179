package delta

import (
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/autosave/internal/core/models"
	"github.com/zeusync/autosave/internal/core/observability/log"
)

// Copier detaches a live component value. components.Registry implements it.
type Copier interface {
	Copy(kind models.ComponentKind, live any) (any, error)
}

// State of the recorder. It only leaves StateRecording for the swap inside
// Drain or Reset.
type State uint32

const (
	StateRecording State = iota
	StateResetting
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateResetting:
		return "resetting"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Interval is everything recorded between two resets. Once returned from
// Drain it belongs to the caller; the recorder keeps no reference to it.
type Interval struct {
	Sequence          uint64
	StartedAt         time.Time
	DrainedAt         time.Time
	EntityDeltas      map[models.EntityID]*EntityDelta
	DestroyedEntities map[models.EntityID]struct{}
}

// IsEmpty reports whether the interval diverges from its baseline at all.
func (iv *Interval) IsEmpty() bool {
	return len(iv.EntityDeltas) == 0 && len(iv.DestroyedEntities) == 0
}

// Counts returns the number of changed and removed component entries.
func (iv *Interval) Counts() (changed, removed int) {
	for _, d := range iv.EntityDeltas {
		changed += len(d.changed)
		removed += len(d.removed)
	}
	return changed, removed
}

// Stats is a point-in-time view of recorder activity.
type Stats struct {
	Interval         uint64 `json:"interval"`
	State            string `json:"state"`
	PendingEntities  int    `json:"pending_entities"`
	PendingDestroyed int    `json:"pending_destroyed"`
	Notifications    uint64 `json:"notifications"`
	Drains           uint64 `json:"drains"`
	CopyFailures     uint64 `json:"copy_failures"`
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithLogger(logger log.Log) Option {
	return func(r *Recorder) { r.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// Recorder turns the stream of entity mutation notifications into per-entity
// deltas plus a destroyed set, relative to the last reset.
//
// Notifications come from a single simulation goroutine. Drain may be called
// from another goroutine; it swaps in fresh maps under the same mutex the
// notifications take, so the simulation never waits on anything slower than a
// pointer swap.
type Recorder struct {
	copier Copier
	logger log.Log
	now    func() time.Time

	mu        sync.Mutex
	deltas    map[models.EntityID]*EntityDelta
	destroyed map[models.EntityID]struct{}
	sequence  uint64
	startedAt time.Time

	state         atomic.Uint32
	notifications atomic.Uint64
	drains        atomic.Uint64
	copyFailures  atomic.Uint64
}

// NewRecorder creates a recorder in StateRecording with an empty interval.
func NewRecorder(copier Copier, opts ...Option) *Recorder {
	r := &Recorder{
		copier: copier,
		logger: log.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(log.String("component", "delta_recorder"))
	r.resetLocked(r.now())
	return r
}

// OnEntityCreated records an entity that may not have any components yet, so
// it still reaches the next snapshot.
func (r *Recorder) OnEntityCreated(id models.EntityID) {
	r.notifications.Add(1)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.mustBeAliveLocked(id)
	r.deltaForLocked(id)
}

// OnComponentAdded records a newly added component.
func (r *Recorder) OnComponentAdded(entity models.Entity, kind models.ComponentKind) error {
	return r.OnComponentChanged(entity, kind)
}

// OnComponentChanged copies the entity's current value for kind into its delta.
// The copy is taken now; a later change in the same interval replaces it. On
// error nothing is recorded.
func (r *Recorder) OnComponentChanged(entity models.Entity, kind models.ComponentKind) error {
	r.notifications.Add(1)
	id := entity.ID()

	live, ok := entity.Component(kind)
	if !ok {
		return fmt.Errorf("%w: %s kind %d", ErrComponentMissing, id, kind)
	}
	snapshot, err := r.copier.Copy(kind, live)
	if err != nil {
		r.copyFailures.Add(1)
		return fmt.Errorf("record %s: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.mustBeAliveLocked(id)
	r.deltaForLocked(id).SetChangedComponent(kind, snapshot)
	return nil
}

// OnComponentRemoved records the removal of kind from the entity.
func (r *Recorder) OnComponentRemoved(id models.EntityID, kind models.ComponentKind) {
	r.notifications.Add(1)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.mustBeAliveLocked(id)
	r.deltaForLocked(id).RemoveComponent(kind)
}

// OnEntityDestroyed discards any pending delta for id and marks it destroyed.
func (r *Recorder) OnEntityDestroyed(id models.EntityID) {
	r.notifications.Add(1)

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.deltas, id)
	r.destroyed[id] = struct{}{}
}

// EntityDeltas returns a copy of the pending deltas.
func (r *Recorder) EntityDeltas() map[models.EntityID]*EntityDelta {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[models.EntityID]*EntityDelta, len(r.deltas))
	for id, d := range r.deltas {
		out[id] = d.Clone()
	}
	return out
}

// DestroyedEntities returns a copy of the pending destroyed set.
func (r *Recorder) DestroyedEntities() map[models.EntityID]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.destroyed)
}

// Drain hands the current interval to the caller and starts a new one, as a
// single critical section with respect to notifications.
func (r *Recorder) Drain() *Interval {
	r.mu.Lock()
	r.state.Store(uint32(StateResetting))

	now := r.now()
	iv := &Interval{
		Sequence:          r.sequence,
		StartedAt:         r.startedAt,
		DrainedAt:         now,
		EntityDeltas:      r.deltas,
		DestroyedEntities: r.destroyed,
	}
	r.resetLocked(now)

	r.state.Store(uint32(StateRecording))
	r.mu.Unlock()

	r.drains.Add(1)
	r.logger.Debug("Interval drained",
		log.Uint64("interval", iv.Sequence),
		log.Int("entities", len(iv.EntityDeltas)),
		log.Int("destroyed", len(iv.DestroyedEntities)))
	return iv
}

// Reset drops everything recorded so far and starts a new interval. Only call
// it once the current state is no longer needed, typically right after a new
// baseline has been captured.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.state.Store(uint32(StateResetting))
	dropped := len(r.deltas) + len(r.destroyed)
	r.resetLocked(r.now())
	r.state.Store(uint32(StateRecording))
	r.mu.Unlock()

	r.logger.Debug("Recorder reset", log.Int("dropped", dropped))
}

func (r *Recorder) State() State {
	return State(r.state.Load())
}

func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	pendingEntities, pendingDestroyed, seq := len(r.deltas), len(r.destroyed), r.sequence
	r.mu.Unlock()

	return Stats{
		Interval:         seq,
		State:            r.State().String(),
		PendingEntities:  pendingEntities,
		PendingDestroyed: pendingDestroyed,
		Notifications:    r.notifications.Load(),
		Drains:           r.drains.Load(),
		CopyFailures:     r.copyFailures.Load(),
	}
}

func (r *Recorder) resetLocked(now time.Time) {
	r.deltas = make(map[models.EntityID]*EntityDelta)
	r.destroyed = make(map[models.EntityID]struct{})
	r.sequence++
	r.startedAt = now
}

func (r *Recorder) deltaForLocked(id models.EntityID) *EntityDelta {
	d, ok := r.deltas[id]
	if !ok {
		d = NewEntityDelta()
		r.deltas[id] = d
	}
	return d
}

// mustBeAliveLocked panics on a change for an entity destroyed in this
// interval. Accepting it would resurrect the entity in the next snapshot.
func (r *Recorder) mustBeAliveLocked(id models.EntityID) {
	if _, dead := r.destroyed[id]; dead {
		panic(fmt.Errorf("%w: %s", ErrEntityDestroyed, id))
	}
}
