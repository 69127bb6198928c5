package app

import (
	"context"

	"github.com/ubuntu-core/serial-vault-charm/internal/config"
	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

// dryRunHost stands in for every collaborator that mutates the host.
type dryRunHost struct{}

func (dryRunHost) Install(ctx context.Context, cfg config.ServiceConfig) error {
	logging.Info("DryRun", "Would install the service from channel %s (payload mode: %t)", cfg.Channel, cfg.UsesPayload())
	return nil
}

func (dryRunHost) Upgrade(ctx context.Context, cfg config.ServiceConfig) error {
	logging.Info("DryRun", "Would refresh the service from channel %s", cfg.Channel)
	return nil
}

func (dryRunHost) Enable(ctx context.Context, unit string) error {
	logging.Info("DryRun", "Would enable %s", unit)
	return nil
}

func (dryRunHost) Restart(ctx context.Context, unit string) error {
	logging.Info("DryRun", "Would restart %s", unit)
	return nil
}

func (dryRunHost) DaemonReload(ctx context.Context) error {
	logging.Info("DryRun", "Would reload systemd")
	return nil
}

func (dryRunHost) Configure(ctx context.Context, proxyURL string) error {
	logging.Info("DryRun", "Would route traffic through %s", proxyURL)
	return nil
}
