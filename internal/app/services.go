package app

import (
	"fmt"
	"path/filepath"

	"github.com/ubuntu-core/serial-vault-charm/internal/dispatch"
	"github.com/ubuntu-core/serial-vault-charm/internal/engine"
	"github.com/ubuntu-core/serial-vault-charm/internal/hookenv"
	"github.com/ubuntu-core/serial-vault-charm/internal/installer"
	"github.com/ubuntu-core/serial-vault-charm/internal/localenv"
	"github.com/ubuntu-core/serial-vault-charm/internal/metrics"
	"github.com/ubuntu-core/serial-vault-charm/internal/proxy"
	"github.com/ubuntu-core/serial-vault-charm/internal/render"
	"github.com/ubuntu-core/serial-vault-charm/internal/state"
	"github.com/ubuntu-core/serial-vault-charm/internal/systemd"
	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

// Services holds everything a running application uses.
type Services struct {
	Store      state.Store
	Platform   engine.Platform
	Engine     *engine.Engine
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.PassMetrics

	// Local is set in local mode.
	Local *localenv.Env
}

// host is what the init system and installer collaborators need.
type host interface {
	engine.ServiceController
	installer.Reloader
}

// InitializeServices builds the services for cfg.
func InitializeServices(cfg *Config) (*Services, error) {
	rt := cfg.Runtime

	store, err := state.Open(rt.StateBackend, rt.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	s := &Services{Store: store, Metrics: metrics.New(nil)}

	switch cfg.Mode {
	case ModeLocal:
		local, err := localenv.New(cfg.LocalDir, rt.UnitName)
		if err != nil {
			store.Close()
			return nil, err
		}
		s.Local = local
		s.Platform = local
	case ModeHook:
		s.Platform = hookenv.New(rt.UnitName, nil)
	default:
		store.Close()
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}

	renderer := render.New(nil, rt.StagingDir())

	var (
		controller host
		inst       engine.Installer
		proxyCfg   engine.ProxyConfigurer
	)
	if cfg.DryRun {
		controller = dryRunHost{}
		inst = dryRunHost{}
		proxyCfg = dryRunHost{}
	} else {
		controller = systemd.NewController(func(unit string) string {
			return filepath.Join(rt.Paths.SystemdDir, unit)
		})
		inst = &installer.Selector{
			Snap: installer.NewSnapInstaller(nil),
			Payload: installer.NewPayloadInstaller(installer.PayloadOptions{
				Paths:     rt.Paths,
				UnitFile:  rt.UnitFile(),
				WorkDir:   filepath.Join(rt.StateDir, "payload"),
				Launchers: renderer,
				Reloader:  controller,
			}),
		}
		proxyCfg = proxy.New()
	}

	eng, err := engine.New(engine.Options{
		ServiceName:      rt.ServiceName,
		DatabaseRelation: rt.DatabaseRelation,
		WebsiteRelation:  rt.WebsiteRelation,
		DatabaseName:     rt.DatabaseName,
		DocRoot:          rt.Paths.AssetsDir,
	}, engine.Deps{
		Platform:   s.Platform,
		Store:      store,
		Installer:  inst,
		Renderer:   renderer,
		Applier:    render.NewFileApplier(rt.Paths.SettingsPath()),
		Controller: controller,
		Proxy:      proxyCfg,
		Metrics:    s.Metrics,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	s.Engine = eng
	s.Dispatcher = dispatch.New(eng, dispatch.Options{
		DatabaseRelation: rt.DatabaseRelation,
		WebsiteRelation:  rt.WebsiteRelation,
	})

	logging.Debug("Bootstrap", "Initialised %s mode with %s state store in %s", cfg.Mode, rt.StateBackend, rt.StateDir)
	return s, nil
}
