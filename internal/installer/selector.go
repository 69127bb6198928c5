package installer

import (
	"context"

	"github.com/ubuntu-core/serial-vault-charm/internal/config"
	"github.com/ubuntu-core/serial-vault-charm/internal/engine"
)

// Selector picks the installer for each call from the configuration.
type Selector struct {
	Snap    engine.Installer
	Payload engine.Installer
}

func (s *Selector) pick(cfg config.ServiceConfig) engine.Installer {
	if cfg.UsesPayload() && s.Payload != nil {
		return s.Payload
	}
	return s.Snap
}

func (s *Selector) Install(ctx context.Context, cfg config.ServiceConfig) error {
	return s.pick(cfg).Install(ctx, cfg)
}

func (s *Selector) Upgrade(ctx context.Context, cfg config.ServiceConfig) error {
	return s.pick(cfg).Upgrade(ctx, cfg)
}
