package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/autosave/internal/core/events/bus"
	"github.com/zeusync/autosave/internal/core/models"
	"github.com/zeusync/autosave/internal/core/observability/log"
	"github.com/zeusync/autosave/internal/core/persistence/delta"
	"github.com/zeusync/autosave/internal/core/persistence/snapshot"
	"github.com/zeusync/autosave/internal/core/world"
)

// World is the live population the autosaver checkpoints and restores.
type World interface {
	Checkpoint(copier world.Copier, reset func()) (models.Population, error)
	Restore(pop models.Population)
}

// Schema copies live components and names them in save files.
// components.Registry implements it.
type Schema interface {
	snapshot.Schema
	Copy(kind models.ComponentKind, live any) (any, error)
}

// Config holds autosaver settings.
type Config struct {
	// Interval between periodic saves.
	Interval time.Duration
	// SaveOnStop writes a final save when the autosaver stops.
	SaveOnStop bool
}

// DefaultConfig returns the default autosaver configuration.
func DefaultConfig() Config {
	return Config{
		Interval:   30 * time.Second,
		SaveOnStop: true,
	}
}

// Option configures an Autosaver.
type Option func(*Autosaver)

func WithLogger(logger log.Log) Option {
	return func(a *Autosaver) { a.logger = logger }
}

// WithBus publishes save outcomes on the Topic topic of b.
func WithBus(b bus.EventBus) Option {
	return func(a *Autosaver) { a.bus = b }
}

func WithClock(now func() time.Time) Option {
	return func(a *Autosaver) { a.now = now }
}

// Autosaver periodically persists the world without walking it. At start it
// captures one baseline; every save after that drains the recorder, rolls the
// baseline forward with the drained interval and writes the result.
type Autosaver struct {
	config   Config
	world    World
	recorder *delta.Recorder
	store    *snapshot.Store
	files    *snapshot.FileStore
	schema   Schema
	bus      bus.EventBus
	logger   log.Log
	now      func() time.Time

	generation string

	saveMu sync.Mutex
	last   atomic.Pointer[Report]
	saves  atomic.Uint64
	fails  atomic.Uint64

	// lifecycleMu serializes Start and Stop.
	lifecycleMu sync.Mutex
	running     int32 // atomic bool
	stopChan    chan struct{}
	workerGroup sync.WaitGroup
}

func New(
	config Config,
	w World,
	recorder *delta.Recorder,
	store *snapshot.Store,
	files *snapshot.FileStore,
	schema Schema,
	opts ...Option,
) *Autosaver {
	a := &Autosaver{
		config:     config,
		world:      w,
		recorder:   recorder,
		store:      store,
		files:      files,
		schema:     schema,
		logger:     log.NewNop(),
		now:        time.Now,
		generation: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(log.String("component", "autosaver"))
	return a
}

// Generation identifies this autosaver's run in every save it writes.
func (a *Autosaver) Generation() string {
	return a.generation
}

// Restore loads the save file into the world without producing notifications.
// It returns the loaded header, or nil when there is no save yet. Call it
// before Start.
func (a *Autosaver) Restore(ctx context.Context) (*snapshot.Header, error) {
	if atomic.LoadInt32(&a.running) == 1 {
		return nil, ErrAlreadyRunning
	}

	data, err := a.files.Load(ctx)
	if errors.Is(err, snapshot.ErrNoSave) {
		a.logger.Info("No save found, starting empty", log.String("path", a.files.Path()))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	doc, err := snapshot.Decode(data, a.schema)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", a.files.Path(), err)
	}
	a.world.Restore(doc.Population)

	a.logger.Info("Save restored",
		log.String("path", a.files.Path()),
		log.String("generation", doc.Header.Generation),
		log.Uint64("sequence", doc.Header.Sequence),
		log.Time("saved_at", doc.Header.SavedAt),
		log.Int("entities", doc.Header.Entities))
	return &doc.Header, nil
}

// Start captures the baseline and starts the periodic save loop. The loop
// runs until Stop is called; ctx only bounds the baseline capture.
func (a *Autosaver) Start(ctx context.Context) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	if !atomic.CompareAndSwapInt32(&a.running, 0, 1) {
		return ErrAlreadyRunning
	}
	if err := ctx.Err(); err != nil {
		atomic.StoreInt32(&a.running, 0)
		return err
	}

	if err := a.establishBaseline(); err != nil {
		atomic.StoreInt32(&a.running, 0)
		a.logger.Error("Failed to capture baseline", log.Error(err))
		return err
	}

	if a.bus != nil {
		_ = a.bus.CreateTopic(Topic)
	}

	a.stopChan = make(chan struct{})
	a.workerGroup.Add(1)
	go a.saveLoop(a.stopChan)

	a.logger.Info("Autosaver started",
		log.String("generation", a.generation),
		log.Duration("interval", a.config.Interval),
		log.Bool("save_on_stop", a.config.SaveOnStop),
		log.Int("entities", a.store.Len()))
	return nil
}

// Stop ends the save loop and, with SaveOnStop, writes a final save bounded
// by ctx.
func (a *Autosaver) Stop(ctx context.Context) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	if !atomic.CompareAndSwapInt32(&a.running, 1, 0) {
		return ErrNotRunning
	}

	a.logger.Info("Stopping autosaver")
	close(a.stopChan)
	a.workerGroup.Wait()

	if a.config.SaveOnStop {
		if _, err := a.save(ctx); err != nil {
			return err
		}
	}

	a.logger.Info("Autosaver stopped",
		log.Uint64("saves", a.saves.Load()),
		log.Uint64("failures", a.fails.Load()))
	return nil
}

// SaveNow saves immediately, outside the periodic schedule.
func (a *Autosaver) SaveNow(ctx context.Context) (Report, error) {
	if atomic.LoadInt32(&a.running) == 0 {
		return Report{}, ErrNotRunning
	}
	return a.save(ctx)
}

// LastReport returns the most recent successful save, if any.
func (a *Autosaver) LastReport() (Report, bool) {
	r := a.last.Load()
	if r == nil {
		return Report{}, false
	}
	return *r, true
}

func (a *Autosaver) IsRunning() bool {
	return atomic.LoadInt32(&a.running) == 1
}

// establishBaseline copies the world and resets the recorder in one critical
// section of the world, so the first drained interval holds exactly what
// happened after the copy.
func (a *Autosaver) establishBaseline() error {
	var since uint64
	pop, err := a.world.Checkpoint(a.schema, func() {
		a.recorder.Reset()
		since = a.recorder.Stats().Interval - 1
	})
	if err != nil {
		return fmt.Errorf("capture baseline: %w", err)
	}
	a.store.Establish(pop, since)
	return nil
}

func (a *Autosaver) saveLoop(stop <-chan struct{}) {
	defer a.workerGroup.Done()

	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), a.config.Interval)
			_, _ = a.save(ctx)
			cancel()
		}
	}
}

// save drains, applies, encodes and writes. A failed write leaves the store
// rolled forward, so the next save still covers the lost interval.
func (a *Autosaver) save(ctx context.Context) (Report, error) {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	started := a.now()
	iv := a.recorder.Drain()

	report, err := a.persist(ctx, iv, started)
	if err != nil {
		a.fails.Add(1)
		a.logger.Error("Autosave failed",
			log.Uint64("sequence", iv.Sequence),
			log.Error(err))
		a.publish(newFailedEvent(Failure{Sequence: iv.Sequence, At: a.now(), Error: err.Error()}))
		return Report{}, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	a.saves.Add(1)
	a.last.Store(&report)

	fields := []log.Field{
		log.Uint64("sequence", report.Sequence),
		log.Int("changed", report.Changed),
		log.Int("removed", report.Removed),
		log.Int("destroyed", report.Destroyed),
		log.Int("entities", report.Entities),
		log.Duration("duration", report.Duration),
	}
	if report.Changed+report.Removed+report.Destroyed == 0 {
		a.logger.Debug("Autosave completed with no changes", fields...)
	} else {
		a.logger.Info("Autosave completed", fields...)
	}

	a.publish(newCompletedEvent(report))
	return report, nil
}

func (a *Autosaver) persist(ctx context.Context, iv *delta.Interval, started time.Time) (Report, error) {
	changed, removed := iv.Counts()
	destroyed := len(iv.DestroyedEntities)

	if err := a.store.Apply(iv); err != nil {
		return Report{}, err
	}

	header := snapshot.Header{
		Generation: a.generation,
		Sequence:   iv.Sequence,
		SavedAt:    iv.DrainedAt.UTC(),
	}
	var data []byte
	err := a.store.View(func(pop models.Population) error {
		var err error
		data, header, err = snapshot.Encode(header, pop, a.schema)
		return err
	})
	if err != nil {
		return Report{}, err
	}

	if err = a.files.Save(ctx, data); err != nil {
		return Report{}, err
	}

	return Report{
		Generation: a.generation,
		Sequence:   iv.Sequence,
		StartedAt:  iv.StartedAt,
		DrainedAt:  iv.DrainedAt,
		SavedAt:    a.now(),
		Changed:    changed,
		Removed:    removed,
		Destroyed:  destroyed,
		Entities:   header.Entities,
		Bytes:      len(data),
		Checksum:   header.Checksum,
		Path:       a.files.Path(),
		Duration:   a.now().Sub(started),
	}, nil
}

func (a *Autosaver) publish(event bus.Event) {
	if a.bus == nil {
		return
	}
	if err := a.bus.PublishToTopic(Topic, event); err != nil {
		a.logger.Warn("Save event subscriber failed",
			log.String("event", event.Type()),
			log.Error(err))
	}
}
