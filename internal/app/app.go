package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/autosave/internal/config"
	"github.com/zeusync/autosave/internal/core/observability/log"
	"github.com/zeusync/autosave/internal/core/persistence/autosave"
	"github.com/zeusync/autosave/internal/core/world"
	"github.com/zeusync/autosave/internal/server"
	"github.com/zeusync/autosave/internal/simulation"
)

const shutdownTimeout = 10 * time.Second

// App runs the simulation with autosave and the optional monitor.
type App struct {
	config     config.Config
	logger     log.Log
	world      *world.World
	autosaver  *autosave.Autosaver
	simulation *simulation.Simulation
	monitor    *server.Monitor
}

func New(
	cfg config.Config,
	logger log.Log,
	w *world.World,
	saver *autosave.Autosaver,
	sim *simulation.Simulation,
	monitor *server.Monitor,
) *App {
	return &App{
		config:     cfg,
		logger:     logger.With(log.String("component", "app")),
		world:      w,
		autosaver:  saver,
		simulation: sim,
		monitor:    monitor,
	}
}

func (a *App) World() *world.World { return a.world }

func (a *App) Autosaver() *autosave.Autosaver { return a.autosaver }

func (a *App) Monitor() *server.Monitor { return a.monitor }

// Run restores the last save, starts autosaving and drives the simulation
// until ctx is cancelled. On the way out it stops the monitor and the
// autosaver, which writes a final save when configured to.
func (a *App) Run(ctx context.Context) error {
	if err := a.start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.simulation.Run(gctx)
	})
	runErr := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.stop(stopCtx))
}

func (a *App) start(ctx context.Context) error {
	header, err := a.autosaver.Restore(ctx)
	if err != nil {
		return err
	}
	if header == nil {
		a.logger.Info("Starting new world")
	}

	if err = a.simulation.Populate(); err != nil {
		return err
	}
	if err = a.autosaver.Start(ctx); err != nil {
		return err
	}

	if a.monitor != nil {
		if err = a.monitor.Start(ctx); err != nil {
			_ = a.autosaver.Stop(ctx)
			return err
		}
	}

	a.logger.Info("App started", log.Int("entities", a.world.Len()))
	return nil
}

func (a *App) stop(ctx context.Context) error {
	var g errgroup.Group
	if a.monitor != nil {
		g.Go(func() error { return a.monitor.Stop(ctx) })
	}
	g.Go(func() error { return a.autosaver.Stop(ctx) })

	err := g.Wait()
	if err != nil {
		a.logger.Error("Shutdown incomplete", log.Error(err))
	} else {
		a.logger.Info("App stopped")
	}
	return err
}
