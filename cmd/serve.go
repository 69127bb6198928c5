package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ubuntu-core/serial-vault-charm/internal/app"
)

var serveFlags = struct {
	dir         string
	metricsAddr string
	dryRun      bool
}{}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Reconcile continuously against a local environment directory",
		Long: `Watch a local environment directory and run a reconciliation pass
whenever config.yaml or a relation file under relations/ changes.

The directory stands in for the Juju model: config.yaml holds the charm
options, relations/<name>.yaml maps remote units to their relation
settings and unit.yaml records the status, ports and published relation
data. Install and config-changed run once at startup.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&serveFlags.dir, "dir", "", "Local environment directory")
	cmd.Flags().StringVar(&serveFlags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9180")
	cmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "Log host changes instead of performing them")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := newAppConfig(app.ModeLocal)
	cfg.LocalDir = serveFlags.dir
	cfg.DryRun = serveFlags.dryRun
	if serveFlags.metricsAddr != "" {
		cfg.Runtime.MetricsAddr = serveFlags.metricsAddr
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Serve(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
