package installer

import (
	"context"
	"fmt"

	"github.com/ubuntu-core/serial-vault-charm/internal/config"
	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

// SnapName is the store name of the service.
const SnapName = "serial-vault"

// SnapInstaller installs the service from the snap store.
type SnapInstaller struct {
	run Runner
}

// NewSnapInstaller returns a snap installer. A nil run executes snap.
func NewSnapInstaller(run Runner) *SnapInstaller {
	if run == nil {
		run = execRunner
	}
	return &SnapInstaller{run: run}
}

// Install installs the snap from cfg's channel.
func (s *SnapInstaller) Install(ctx context.Context, cfg config.ServiceConfig) error {
	return s.snap(ctx, "install", cfg)
}

// Upgrade refreshes the snap, switching to cfg's channel if it changed.
func (s *SnapInstaller) Upgrade(ctx context.Context, cfg config.ServiceConfig) error {
	return s.snap(ctx, "refresh", cfg)
}

func (s *SnapInstaller) snap(ctx context.Context, action string, cfg config.ServiceConfig) error {
	channel := cfg.Channel
	if channel == "" {
		channel = config.ChannelStable
	}

	cmd := Command{
		Name: "snap",
		Args: []string{action, SnapName, "--channel=" + string(channel)},
		Env:  cfg.Environ(),
	}
	logging.Info("Installer", "Running %s", cmd)
	if err := s.run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to %s %s: %w", action, SnapName, err)
	}
	return nil
}
