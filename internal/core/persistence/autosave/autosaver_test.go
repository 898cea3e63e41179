package autosave

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/autosave/internal/core/components"
	"github.com/zeusync/autosave/internal/core/events/bus"
	"github.com/zeusync/autosave/internal/core/models"
	"github.com/zeusync/autosave/internal/core/persistence/delta"
	"github.com/zeusync/autosave/internal/core/persistence/snapshot"
	"github.com/zeusync/autosave/internal/core/world"
)

type health struct {
	HP int `yaml:"hp"`
}

type position struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type harness struct {
	reg      *components.Registry
	bus      bus.EventBus
	world    *world.World
	recorder *delta.Recorder
	store    *snapshot.Store
	files    *snapshot.FileStore
	saver    *Autosaver
	health   models.ComponentKind
	position models.ComponentKind
}

func newHarness(t *testing.T, path string, cfg Config) *harness {
	t.Helper()

	reg := components.NewRegistry()
	h := &harness{
		reg:      reg,
		bus:      bus.New(),
		health:   components.MustRegister(reg, "health", components.ByValue[health]()),
		position: components.MustRegister(reg, "position", components.ByValue[position]()),
	}
	h.world = world.New(h.bus)
	h.recorder = delta.NewRecorder(reg)
	_, err := h.recorder.Attach(h.bus)
	require.NoError(t, err)

	h.store = snapshot.NewStore()
	h.files = snapshot.NewFileStore(path, false)
	h.saver = New(cfg, h.world, h.recorder, h.store, h.files, reg, WithBus(h.bus))
	return h
}

func manualConfig() Config {
	return Config{Interval: time.Hour, SaveOnStop: false}
}

func (h *harness) spawn(t *testing.T, hp int) models.EntityID {
	t.Helper()
	id, err := h.world.CreateEntity()
	require.NoError(t, err)
	require.NoError(t, h.world.Add(id, h.health, health{HP: hp}))
	return id
}

func (h *harness) loadSave(t *testing.T) *snapshot.Document {
	t.Helper()
	data, err := h.files.Load(context.Background())
	require.NoError(t, err)
	doc, err := snapshot.Decode(data, h.reg)
	require.NoError(t, err)
	return doc
}

func (h *harness) live(t *testing.T) models.Population {
	t.Helper()
	pop, err := h.world.Checkpoint(h.reg, nil)
	require.NoError(t, err)
	return pop
}

func TestAutosaver_SaveMatchesWorld(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, filepath.Join(t.TempDir(), "world.yaml"), manualConfig())

	a := h.spawn(t, 10)
	b := h.spawn(t, 20)
	c := h.spawn(t, 30)
	require.NoError(t, h.saver.Start(ctx))
	t.Cleanup(func() { _ = h.saver.Stop(ctx) })

	require.NoError(t, h.world.Set(a, h.health, health{HP: 9}))
	require.NoError(t, h.world.Add(a, h.position, position{X: 1.5, Y: -2}))
	require.NoError(t, h.world.Remove(b, h.health))
	require.NoError(t, h.world.Add(b, h.position, position{X: 3}))
	require.NoError(t, h.world.Destroy(c))
	d := h.spawn(t, 40)

	report, err := h.saver.SaveNow(ctx)
	require.NoError(t, err)

	assert.Equal(t, h.saver.Generation(), report.Generation)
	assert.Equal(t, 4, report.Changed)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 1, report.Destroyed)
	assert.Equal(t, 3, report.Entities)

	doc := h.loadSave(t)
	assert.Equal(t, report.Sequence, doc.Header.Sequence)
	assert.Equal(t, report.Checksum, doc.Header.Checksum)
	assert.Equal(t, h.live(t), doc.Population)
	assert.NotContains(t, doc.Population, c)
	assert.Equal(t, health{HP: 40}, doc.Population[d][h.health])
}

func TestAutosaver_BaselineAbsorbsEarlierActivity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, filepath.Join(t.TempDir(), "world.yaml"), manualConfig())

	h.spawn(t, 1)
	h.spawn(t, 2)
	require.Equal(t, 2, h.recorder.Stats().PendingEntities)

	require.NoError(t, h.saver.Start(ctx))
	t.Cleanup(func() { _ = h.saver.Stop(ctx) })
	assert.Equal(t, 0, h.recorder.Stats().PendingEntities)

	report, err := h.saver.SaveNow(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Changed)
	assert.Equal(t, 2, report.Entities)
	assert.Equal(t, h.live(t), h.loadSave(t).Population)
}

func TestAutosaver_ConsecutiveSaves(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, filepath.Join(t.TempDir(), "world.yaml"), manualConfig())

	var (
		mu      sync.Mutex
		reports []Report
	)
	_, err := h.bus.SubscribeTopic(Topic, EventCompleted, func(e bus.Event) error {
		mu.Lock()
		defer mu.Unlock()
		reports = append(reports, e.Data().(Report))
		return nil
	})
	require.NoError(t, err)

	id := h.spawn(t, 100)
	require.NoError(t, h.saver.Start(ctx))
	t.Cleanup(func() { _ = h.saver.Stop(ctx) })

	for hp := 99; hp >= 95; hp-- {
		require.NoError(t, h.world.Set(id, h.health, health{HP: hp}))
		_, err = h.saver.SaveNow(ctx)
		require.NoError(t, err)
		assert.Equal(t, health{HP: hp}, h.loadSave(t).Population[id][h.health])
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reports, 5)
	for i := 1; i < len(reports); i++ {
		assert.Greater(t, reports[i].Sequence, reports[i-1].Sequence)
	}

	last, ok := h.saver.LastReport()
	require.True(t, ok)
	assert.Equal(t, reports[4], last)
}

func TestAutosaver_RestoreResumesWorld(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "world.yaml")

	first := newHarness(t, path, manualConfig())
	a := first.spawn(t, 5)
	require.NoError(t, first.saver.Start(ctx))
	require.NoError(t, first.world.Add(a, first.position, position{X: 7, Y: 8}))
	first.spawn(t, 6)
	_, err := first.saver.SaveNow(ctx)
	require.NoError(t, err)
	require.NoError(t, first.saver.Stop(ctx))
	saved := first.live(t)

	second := newHarness(t, path, manualConfig())
	header, err := second.saver.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, header)
	assert.Equal(t, first.saver.Generation(), header.Generation)
	assert.Equal(t, saved, second.live(t))
	assert.Zero(t, second.recorder.Stats().Notifications, "restoring must not notify")

	require.NoError(t, second.saver.Start(ctx))
	t.Cleanup(func() { _ = second.saver.Stop(ctx) })
	next := second.spawn(t, 7)
	assert.NotContains(t, saved, next, "ids continue after the restored ones")

	_, err = second.saver.SaveNow(ctx)
	require.NoError(t, err)
	doc := second.loadSave(t)
	assert.Len(t, doc.Population, 3)
	assert.NotEqual(t, first.saver.Generation(), doc.Header.Generation)
}

func TestAutosaver_RestoreWithoutSave(t *testing.T) {
	h := newHarness(t, filepath.Join(t.TempDir(), "world.yaml"), manualConfig())

	header, err := h.saver.Restore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, header)
	assert.Zero(t, h.world.Len())
}

func TestAutosaver_RestoreRejectsCorruptSave(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "world.yaml")

	h := newHarness(t, path, manualConfig())
	h.spawn(t, 3)
	require.NoError(t, h.saver.Start(ctx))
	_, err := h.saver.SaveNow(ctx)
	require.NoError(t, err)
	require.NoError(t, h.saver.Stop(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-2] ^= 0x01
	require.NoError(t, os.WriteFile(path, data, 0o600))

	other := newHarness(t, path, manualConfig())
	_, err = other.saver.Restore(ctx)
	assert.ErrorIs(t, err, snapshot.ErrChecksumMismatch)
	assert.Zero(t, other.world.Len())
}

func TestAutosaver_Lifecycle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "world.yaml")
	h := newHarness(t, path, Config{Interval: time.Hour, SaveOnStop: true})

	_, err := h.saver.SaveNow(ctx)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.ErrorIs(t, h.saver.Stop(ctx), ErrNotRunning)

	require.NoError(t, h.saver.Start(ctx))
	assert.True(t, h.saver.IsRunning())
	assert.ErrorIs(t, h.saver.Start(ctx), ErrAlreadyRunning)

	_, err = h.saver.Restore(ctx)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	h.spawn(t, 1)
	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, h.saver.Stop(ctx))
	assert.False(t, h.saver.IsRunning())
	assert.Len(t, h.loadSave(t).Population, 1, "stop writes a final save")
}

func TestAutosaver_PeriodicSaves(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, filepath.Join(t.TempDir(), "world.yaml"), Config{Interval: 10 * time.Millisecond})

	require.NoError(t, h.saver.Start(ctx))
	t.Cleanup(func() { _ = h.saver.Stop(ctx) })

	require.Eventually(t, func() bool {
		r, ok := h.saver.LastReport()
		return ok && r.Sequence >= 3
	}, 5*time.Second, 5*time.Millisecond)
}

func TestAutosaver_WriteFailure(t *testing.T) {
	ctx := context.Background()
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	h := newHarness(t, filepath.Join(blocker, "world.yaml"), manualConfig())

	var failures []Failure
	_, err := h.bus.SubscribeTopic(Topic, EventFailed, func(e bus.Event) error {
		failures = append(failures, e.Data().(Failure))
		return nil
	})
	require.NoError(t, err)

	id := h.spawn(t, 1)
	require.NoError(t, h.saver.Start(ctx))
	t.Cleanup(func() { _ = h.saver.Stop(ctx) })
	require.NoError(t, h.world.Set(id, h.health, health{HP: 2}))

	_, err = h.saver.SaveNow(ctx)
	assert.ErrorIs(t, err, ErrSaveFailed)
	require.Len(t, failures, 1)
	assert.NotEmpty(t, failures[0].Error)

	_, ok := h.saver.LastReport()
	assert.False(t, ok)

	// The drained interval is already in the store, so nothing is lost.
	require.NoError(t, h.store.View(func(pop models.Population) error {
		assert.Equal(t, health{HP: 2}, pop[id][h.health])
		return nil
	}))
}

func TestAutosaver_SavesEntityWithoutComponents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, filepath.Join(t.TempDir(), "world.yaml"), manualConfig())
	require.NoError(t, h.saver.Start(ctx))
	t.Cleanup(func() { _ = h.saver.Stop(ctx) })

	id, err := h.world.CreateEntity()
	require.NoError(t, err)

	report, err := h.saver.SaveNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Entities)

	doc := h.loadSave(t)
	require.Contains(t, doc.Population, id)
	assert.Empty(t, doc.Population[id])
	assert.Equal(t, h.live(t), doc.Population)
}

type gatedWorld struct {
	*world.World
	entered chan struct{}
	release chan struct{}
}

func (g *gatedWorld) Checkpoint(copier world.Copier, reset func()) (models.Population, error) {
	close(g.entered)
	<-g.release
	return g.World.Checkpoint(copier, reset)
}

func TestAutosaver_StopDuringStart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, filepath.Join(t.TempDir(), "world.yaml"), manualConfig())
	gated := &gatedWorld{World: h.world, entered: make(chan struct{}), release: make(chan struct{})}
	saver := New(manualConfig(), gated, h.recorder, h.store, h.files, h.reg)

	startErr := make(chan error, 1)
	go func() { startErr <- saver.Start(ctx) }()
	<-gated.entered

	stopErr := make(chan error, 1)
	go func() { stopErr <- saver.Stop(ctx) }()
	time.Sleep(20 * time.Millisecond)
	close(gated.release)

	require.NoError(t, <-startErr)
	require.NoError(t, <-stopErr)
	assert.False(t, saver.IsRunning())
}
