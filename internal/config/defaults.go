package config

import (
	"github.com/ubuntu-core/serial-vault-charm/internal/ports"
	"github.com/ubuntu-core/serial-vault-charm/internal/state"
)

const (
	DefaultProject          = "serial-vault"
	DefaultServiceName      = "serial-vault.service"
	DefaultDatabaseRelation = "database"
	DefaultWebsiteRelation  = "website"
	DefaultDatabaseName     = "serialvault"
	DefaultStateDir         = "/var/lib/juju/serial-vault-charm"

	DefaultBinDir     = "/usr/bin"
	DefaultLibDir     = "/usr/lib/serial-vault"
	DefaultConfDir    = "/etc/serial-vault"
	DefaultAssetsDir  = "/usr/share/serial-vault"
	DefaultSystemdDir = "/etc/systemd/system"
)

// DefaultServiceConfig is the configuration used for options the platform
// does not report.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ServiceRole: ports.RoleSigning,
		Channel:     ChannelStable,
	}
}

// DefaultRuntimeConfig returns the runtime settings for a standard machine
// deployment.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		StateDir:         DefaultStateDir,
		StateBackend:     state.BackendFile,
		ServiceName:      DefaultServiceName,
		DatabaseRelation: DefaultDatabaseRelation,
		WebsiteRelation:  DefaultWebsiteRelation,
		DatabaseName:     DefaultDatabaseName,
		LogLevel:         "info",
		Paths: InstallPaths{
			BinDir:     DefaultBinDir,
			LibDir:     DefaultLibDir,
			ConfDir:    DefaultConfDir,
			AssetsDir:  DefaultAssetsDir,
			SystemdDir: DefaultSystemdDir,
		},
	}
}
