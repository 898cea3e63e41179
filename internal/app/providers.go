package app

import (
	"github.com/google/wire"

	"github.com/zeusync/autosave/internal/config"
	"github.com/zeusync/autosave/internal/core/components"
	"github.com/zeusync/autosave/internal/core/events/bus"
	"github.com/zeusync/autosave/internal/core/observability/log"
	"github.com/zeusync/autosave/internal/core/persistence/autosave"
	"github.com/zeusync/autosave/internal/core/persistence/delta"
	"github.com/zeusync/autosave/internal/core/persistence/snapshot"
	"github.com/zeusync/autosave/internal/core/world"
	"github.com/zeusync/autosave/internal/server"
	"github.com/zeusync/autosave/internal/simulation"
)

// ProviderSet builds an App from a config.Config.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	components.NewRegistry,
	ProvideComponents,
	bus.New,
	world.New,
	ProvideRecorder,
	snapshot.NewStore,
	ProvideFileStore,
	ProvideAutosaver,
	ProvideSimulation,
	ProvideMonitor,
	New,
)

func ProvideLogger(cfg config.Config) (log.Log, func()) {
	logger := log.New(cfg.LogLevel())
	return logger, func() { _ = logger.Sync() }
}

func ProvideComponents(reg *components.Registry) (simulation.Kinds, error) {
	return simulation.RegisterComponents(reg)
}

// ProvideRecorder creates the recorder and attaches it to the bus for the
// lifetime of the app.
func ProvideRecorder(reg *components.Registry, b bus.EventBus, logger log.Log) (*delta.Recorder, func(), error) {
	rec := delta.NewRecorder(reg, delta.WithLogger(logger))
	subs, err := rec.Attach(b)
	if err != nil {
		return nil, nil, err
	}
	return rec, func() {
		for _, sub := range subs {
			_ = b.Unsubscribe(sub)
		}
	}, nil
}

func ProvideFileStore(cfg config.Config) *snapshot.FileStore {
	return snapshot.NewFileStore(cfg.Autosave.Path, cfg.Autosave.KeepBackup)
}

func ProvideAutosaver(
	cfg config.Config,
	w *world.World,
	rec *delta.Recorder,
	store *snapshot.Store,
	files *snapshot.FileStore,
	reg *components.Registry,
	b bus.EventBus,
	logger log.Log,
) *autosave.Autosaver {
	return autosave.New(
		autosave.Config{
			Interval:   cfg.Autosave.Interval,
			SaveOnStop: cfg.Autosave.SaveOnStop,
		},
		w, rec, store, files, reg,
		autosave.WithBus(b),
		autosave.WithLogger(logger),
	)
}

func ProvideSimulation(cfg config.Config, w *world.World, kinds simulation.Kinds, logger log.Log) *simulation.Simulation {
	return simulation.New(
		simulation.Config{
			Tick:     cfg.Simulation.Tick,
			Entities: cfg.Simulation.Entities,
			Seed:     cfg.Simulation.Seed,
		},
		w, kinds,
		simulation.WithLogger(logger),
	)
}

// ProvideMonitor returns nil when the monitor is disabled.
func ProvideMonitor(
	cfg config.Config,
	rec *delta.Recorder,
	saver *autosave.Autosaver,
	b bus.EventBus,
	sim *simulation.Simulation,
	w *world.World,
	logger log.Log,
) *server.Monitor {
	if !cfg.Monitor.Enabled {
		return nil
	}

	mcfg := server.DefaultConfig()
	mcfg.ListenAddr = cfg.Monitor.Addr
	return server.NewMonitor(mcfg, rec, saver, b,
		server.WithLogger(logger),
		server.WithStats("simulation", func() any { return sim.Stats() }),
		server.WithStats("entities", func() any { return w.Len() }),
	)
}
