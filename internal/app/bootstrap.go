package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ubuntu-core/serial-vault-charm/internal/dependency"
	"github.com/ubuntu-core/serial-vault-charm/internal/engine"
	"github.com/ubuntu-core/serial-vault-charm/internal/hookenv"
	"github.com/ubuntu-core/serial-vault-charm/internal/state"
	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

// Application is a wired reconciler.
//
//	application, err := app.NewApplication(app.NewConfig(runtime, app.ModeHook))
//	if err != nil {
//	    return err
//	}
//	defer application.Close()
//	_, err = application.Dispatch(ctx, "config-changed")
type Application struct {
	config   *Config
	services *Services
}

// NewApplication configures logging and initialises the services.
func NewApplication(cfg *Config) (*Application, error) {
	level := logging.ParseLevel(cfg.Runtime.LogLevel)
	if cfg.Debug {
		level = logging.LevelDebug
	}

	var logOutput io.Writer = os.Stderr
	if cfg.Silent {
		logOutput = io.Discard
	}
	logging.Init(level, logOutput)
	if cfg.mirrorsToJujuLog() {
		logging.SetSink(hookenv.NewLogSink(nil, logging.LevelInfo))
	}

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{config: cfg, services: services}, nil
}

// Services exposes the wired services.
func (a *Application) Services() *Services {
	return a.services
}

// Dispatch runs the pass for event. It returns nil for unrouted events.
func (a *Application) Dispatch(ctx context.Context, event string) (*engine.Result, error) {
	res, err := a.services.Dispatcher.Dispatch(ctx, event)
	if res != nil {
		a.services.Metrics.SetState(res.State)
	}
	return res, err
}

// StatusReport is the observed state of the service.
type StatusReport struct {
	State   state.ServiceState
	Phase   engine.Phase
	Binding *dependency.Binding

	// BindingErr is set when relation data could not be read.
	BindingErr error
}

// Status reads the persisted flags and resolves the database without
// changing anything.
func (a *Application) Status(ctx context.Context) (StatusReport, error) {
	st, err := a.services.Store.Get(ctx)
	if err != nil {
		return StatusReport{}, fmt.Errorf("failed to read service state: %w", err)
	}
	report := StatusReport{State: st}

	opts := a.services.Engine.Options()
	ads, err := a.services.Platform.Advertisements(ctx, opts.DatabaseRelation)
	if err != nil {
		report.BindingErr = err
	} else {
		binding, err := dependency.Resolve(opts.DatabaseName, ads)
		if err != nil && !errors.Is(err, dependency.ErrNotReady) {
			report.BindingErr = err
		}
		report.Binding = binding
	}

	report.Phase = engine.ObservedPhase(st, report.Binding != nil)
	return report, nil
}

// Close releases the state store.
func (a *Application) Close() error {
	logging.SetSink(nil)
	return a.services.Store.Close()
}
