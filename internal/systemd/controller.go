// Package systemd drives the Serial Vault unit through the systemd D-Bus
// API.
package systemd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

// unitConn is the subset of *dbus.Conn the controller uses.
type unitConn interface {
	RestartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	EnableUnitFilesContext(ctx context.Context, files []string, runtime bool, force bool) (bool, []dbus.EnableUnitFileChange, error)
	ReloadContext(ctx context.Context) error
	Close()
}

// Dialer opens a connection to the system manager.
type Dialer func(ctx context.Context) (unitConn, error)

func dialSystem(ctx context.Context) (unitConn, error) {
	return dbus.NewWithContext(ctx)
}

// Controller enables, restarts and reloads units.
type Controller struct {
	dial     Dialer
	unitPath func(unit string) string
}

// NewController returns a controller talking to the system bus. unitPath
// maps a unit name to its unit file, which EnableUnitFiles needs.
func NewController(unitPath func(unit string) string) *Controller {
	return &Controller{dial: dialSystem, unitPath: unitPath}
}

func (c *Controller) withConn(ctx context.Context, fn func(unitConn) error) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

// Enable enables unit without starting it.
func (c *Controller) Enable(ctx context.Context, unit string) error {
	file := unit
	if c.unitPath != nil {
		file = c.unitPath(unit)
	}

	return c.withConn(ctx, func(conn unitConn) error {
		_, changes, err := conn.EnableUnitFilesContext(ctx, []string{file}, false, true)
		if err != nil {
			return fmt.Errorf("failed to enable %s: %w", unit, err)
		}
		for _, ch := range changes {
			logging.Debug("Systemd", "%s %s -> %s", ch.Type, ch.Filename, ch.Destination)
		}
		logging.Info("Systemd", "Enabled %s", unit)
		return nil
	})
}

// Restart restarts unit and waits for the job to finish.
func (c *Controller) Restart(ctx context.Context, unit string) error {
	return c.withConn(ctx, func(conn unitConn) error {
		done := make(chan string, 1)
		if _, err := conn.RestartUnitContext(ctx, unit, "replace", done); err != nil {
			return fmt.Errorf("failed to restart %s: %w", unit, err)
		}

		select {
		case result := <-done:
			if result != "done" {
				return fmt.Errorf("restart of %s finished with %q", unit, result)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
		logging.Info("Systemd", "Restarted %s", unit)
		return nil
	})
}

// DaemonReload makes systemd re-read unit files.
func (c *Controller) DaemonReload(ctx context.Context) error {
	return c.withConn(ctx, func(conn unitConn) error {
		if err := conn.ReloadContext(ctx); err != nil {
			return fmt.Errorf("failed to reload systemd: %w", err)
		}
		return nil
	})
}
