package app

import (
	"github.com/ubuntu-core/serial-vault-charm/internal/config"
)

// Mode selects the platform adapter.
type Mode string

const (
	ModeHook  Mode = "hook"
	ModeLocal Mode = "local"
)

// Config holds the application configuration
type Config struct {
	Runtime config.RuntimeConfig

	Mode Mode

	// LocalDir is the environment directory used in local mode.
	LocalDir string

	// DryRun logs host mutations instead of performing them.
	DryRun bool

	// Debug forces debug logging regardless of Runtime.LogLevel.
	Debug bool

	// Silent discards log output.
	Silent bool

	// NoJujuLog keeps log records off juju-log in hook mode, for commands
	// run by an operator outside a hook context.
	NoJujuLog bool
}

// NewConfig creates a new application configuration
func NewConfig(runtime config.RuntimeConfig, mode Mode) *Config {
	if mode == "" {
		mode = ModeHook
	}
	return &Config{Runtime: runtime, Mode: mode}
}

// mirrorsToJujuLog reports whether log records are also sent to juju-log.
func (c *Config) mirrorsToJujuLog() bool {
	return c.Mode == ModeHook && !c.Silent && !c.NoJujuLog
}
