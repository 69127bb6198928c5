package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ubuntu-core/serial-vault-charm/internal/app"
	"github.com/ubuntu-core/serial-vault-charm/internal/config"
	"github.com/ubuntu-core/serial-vault-charm/internal/state"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error, including a pass that could
	// not persist its flags.
	ExitCodeError = 1
)

// rootCmd represents the base command. Juju invokes it through the hook
// symlinks; operators use the subcommands directly.
var rootCmd = &cobra.Command{
	Use:   "serial-vault-charm",
	Short: "Reconcile a Serial Vault unit with its Juju model",
	Long: `serial-vault-charm installs, configures and runs the Serial Vault
service on a Juju unit. Every hook runs one idempotent reconciliation pass
that converges the unit on the state implied by its configuration and
its database relation.`,
	SilenceUsage: true,
}

// runtimeFlags are the persistent settings shared by every subcommand.
var runtimeFlags = struct {
	stateDir     string
	stateBackend string
	charmDir     string
	unitName     string
	logLevel     string
	debug        bool
	silent       bool
}{}

// SetVersion sets the version for the root command.
// It is called from the main package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits non-zero on failure. Invoked
// through a hook symlink it runs that hook.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "serial-vault-charm version %s\n" .Version}}`)

	if len(os.Args) == 1 {
		if event := filepath.Base(os.Args[0]); isHookName(event) {
			rootCmd.SetArgs([]string{"hook", event})
		}
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

// newAppConfig builds the application configuration from the persistent
// flags and the hook environment.
func newAppConfig(mode app.Mode) *app.Config {
	rt := config.DefaultRuntimeConfig()
	rt.ApplyEnvironment(os.Getenv)

	if runtimeFlags.stateDir != "" {
		rt.StateDir = runtimeFlags.stateDir
	}
	if runtimeFlags.stateBackend != "" {
		rt.StateBackend = state.Backend(runtimeFlags.stateBackend)
	}
	if runtimeFlags.charmDir != "" {
		rt.CharmDir = runtimeFlags.charmDir
	}
	if runtimeFlags.unitName != "" {
		rt.UnitName = runtimeFlags.unitName
	}
	if runtimeFlags.logLevel != "" {
		rt.LogLevel = runtimeFlags.logLevel
	}

	cfg := app.NewConfig(rt, mode)
	cfg.Debug = runtimeFlags.debug
	cfg.Silent = runtimeFlags.silent
	return cfg
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&runtimeFlags.stateDir, "state-dir", "", "Directory holding the persisted service flags (default "+config.DefaultStateDir+")")
	flags.StringVar(&runtimeFlags.stateBackend, "state-backend", "", "State store backend: file or badger")
	flags.StringVar(&runtimeFlags.charmDir, "charm-dir", "", "Charm directory (default $JUJU_CHARM_DIR)")
	flags.StringVar(&runtimeFlags.unitName, "unit", "", "Unit name (default $JUJU_UNIT_NAME)")
	flags.StringVar(&runtimeFlags.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.BoolVar(&runtimeFlags.debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&runtimeFlags.silent, "silent", false, "Disable all logging output")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newHookCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newStatusCmd())
}
