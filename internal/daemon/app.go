// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/wabridge/internal/config"
	"github.com/ManuGH/wabridge/internal/log"
)

const (
	drainTimeout    = 10 * time.Second
	shutdownTimeout = 15 * time.Second
)

// ShutdownFunc releases a resource that outlives the components, such as the
// tracer provider.
type ShutdownFunc func(ctx context.Context) error

// App owns the long-lived runtime: broker consumption, the HTTP server and
// config reloads. Sessions are closed, not wiped, when it stops.
type App struct {
	logger       zerolog.Logger
	comp         *Components
	holder       *config.Holder
	listenAddr   string
	reloadSignal os.Signal
	onStop       []ShutdownFunc
}

// NewApp creates the runtime. holder may be nil when no config file is used.
func NewApp(comp *Components, holder *config.Holder, listenAddr string, onStop ...ShutdownFunc) (*App, error) {
	if comp == nil {
		return nil, ErrMissingComponents
	}
	return &App{
		logger:       log.WithComponent("daemon"),
		comp:         comp,
		holder:       holder,
		listenAddr:   listenAddr,
		reloadSignal: syscall.SIGHUP,
		onStop:       onStop,
	}, nil
}

// Run blocks until ctx is cancelled or a subsystem fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.holder != nil {
		g.Go(func() error {
			if err := a.holder.Watch(gctx); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
			}
			return nil
		})
		g.Go(func() error { return a.applyReloads(gctx) })
		if a.reloadSignal != nil {
			g.Go(func() error { return a.reloadOnSignal(gctx) })
		}
	}

	g.Go(func() error {
		if err := a.comp.Transport.Connect(gctx); err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return err
		}
		a.logger.Info().Str(log.FieldEvent, "broker.connected").Msg("consuming commands")
		return a.comp.Transport.ConsumeCommands(gctx, a.comp.Dispatcher.HandleEnvelope)
	})

	if a.listenAddr != "" {
		g.Go(func() error { return a.comp.API.Run(gctx) })
	}

	err := g.Wait()
	if shutdownErr := a.shutdown(); shutdownErr != nil {
		a.logger.Warn().Err(shutdownErr).Str(log.FieldEvent, "daemon.shutdown_incomplete").Msg("shutdown finished with errors")
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// shutdown stops intake first, then sessions, then the transport, so status
// events emitted while closing sessions can still be published.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.comp.Executor.Close(drainTimeout); err != nil {
		errs = append(errs, err)
	}
	if err := a.comp.Orchestrator.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.comp.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, stop := range a.onStop {
		if err := stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.logger.Info().Str(log.FieldEvent, "daemon.stopped").Msg("daemon stopped")
	return errors.Join(errs...)
}

// applyReloads applies the settings that can change at runtime.
func (a *App) applyReloads(ctx context.Context) error {
	ch := make(chan config.AppConfig, 1)
	a.holder.Subscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg := <-ch:
			if err := log.SetLevel(cfg.LogLevel); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.log_level_invalid").Msg("keeping previous log level")
				continue
			}
			a.logger.Info().Str(log.FieldEvent, "config.applied").Str("log_level", cfg.LogLevel).Msg("configuration reloaded")
		}
	}
}

func (a *App) reloadOnSignal(ctx context.Context) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, a.reloadSignal)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			a.logger.Info().
				Str(log.FieldEvent, "config.reload_signal").
				Str("signal", a.reloadSignal.String()).
				Msg("received reload signal, reloading config")
			if err := a.holder.Reload(ctx); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("config reload failed")
			}
		}
	}
}
