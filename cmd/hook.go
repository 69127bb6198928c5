package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ubuntu-core/serial-vault-charm/internal/app"
	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

var hookFlags = struct {
	localDir string
	dryRun   bool
}{}

func newHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook [event]",
		Short: "Run one reconciliation pass for a Juju hook",
		Long: `Run the reconciliation pass for a hook event such as install,
config-changed or database-relation-changed.

Without an argument the event is taken from $JUJU_HOOK_NAME, falling back
to the name the binary was invoked as, so the binary can be symlinked
into the charm's hooks/ directory. Events without a handler are ignored.

With --local-dir the pass runs against a directory standing in for the
Juju model instead of the hook tools.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHook,
	}

	cmd.Flags().StringVar(&hookFlags.localDir, "local-dir", "", "Run against a local environment directory instead of the hook tools")
	cmd.Flags().BoolVar(&hookFlags.dryRun, "dry-run", false, "Log host changes instead of performing them")
	return cmd
}

func runHook(cmd *cobra.Command, args []string) error {
	event := resolveEvent(args, os.Getenv, os.Args[0])
	if event == "" {
		return fmt.Errorf("no hook event given and $JUJU_HOOK_NAME is not set")
	}

	mode := app.ModeHook
	if hookFlags.localDir != "" {
		mode = app.ModeLocal
	}
	cfg := newAppConfig(mode)
	cfg.LocalDir = hookFlags.localDir
	cfg.DryRun = hookFlags.dryRun

	application, err := app.NewApplication(cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	res, err := application.Dispatch(cmd.Context(), event)
	if err != nil {
		return fmt.Errorf("hook %s failed: %w", event, err)
	}
	if res == nil {
		logging.Debug("Hook", "No handler for %s", event)
		return nil
	}
	if res.Failure != nil {
		logging.Warn("Hook", "Hook %s left the unit in maintenance: %v", event, res.Failure)
	}
	return nil
}

// resolveEvent picks the hook event from the argument, the Juju
// environment or the invoked binary name, in that order.
func resolveEvent(args []string, getenv func(string) string, argv0 string) string {
	if len(args) > 0 {
		return args[0]
	}
	if name := getenv("JUJU_HOOK_NAME"); name != "" {
		return name
	}
	if name := filepath.Base(argv0); isHookName(name) {
		return name
	}
	return ""
}

// isHookName reports whether name looks like a Juju hook file.
func isHookName(name string) bool {
	switch name {
	case "install", "config-changed", "upgrade", "upgrade-charm", "start", "stop", "update-status":
		return true
	}
	return strings.Contains(name, "-relation-")
}
