package config

import (
	"path/filepath"

	"github.com/ubuntu-core/serial-vault-charm/internal/state"
)

// InstallPaths are the filesystem locations the payload is deployed to.
type InstallPaths struct {
	BinDir     string `yaml:"binDir"`
	LibDir     string `yaml:"libDir"`
	ConfDir    string `yaml:"confDir"`
	AssetsDir  string `yaml:"assetsDir"`
	SystemdDir string `yaml:"systemdDir"`
}

// SettingsPath is where the rendered settings file is applied.
func (p InstallPaths) SettingsPath() string {
	return filepath.Join(p.ConfDir, "settings.yaml")
}

// RuntimeConfig holds the settings of the reconciler process, as opposed to
// the configuration of the managed service.
type RuntimeConfig struct {
	// StateDir holds the persisted flags and the rendered settings staging area.
	StateDir     string        `yaml:"stateDir"`
	StateBackend state.Backend `yaml:"stateBackend"`

	// CharmDir is the unpacked charm, holding files/ and templates.
	CharmDir string `yaml:"charmDir"`
	UnitName string `yaml:"unitName"`

	ServiceName      string `yaml:"serviceName"`
	DatabaseRelation string `yaml:"databaseRelation"`
	WebsiteRelation  string `yaml:"websiteRelation"`
	DatabaseName     string `yaml:"databaseName"`

	MetricsAddr string `yaml:"metricsAddr"`
	LogLevel    string `yaml:"logLevel"`

	Paths InstallPaths `yaml:"paths"`
}

// ApplyEnvironment fills fields the Juju agent exports to hook processes.
func (r *RuntimeConfig) ApplyEnvironment(getenv func(string) string) {
	if v := getenv("JUJU_CHARM_DIR"); v != "" {
		r.CharmDir = v
	}
	if v := getenv("JUJU_UNIT_NAME"); v != "" {
		r.UnitName = v
	}
}

// UnitFile is the systemd unit shipped with the charm.
func (r RuntimeConfig) UnitFile() string {
	return filepath.Join(r.CharmDir, "files", "systemd", r.ServiceName)
}

// StagingDir is where settings are rendered before being applied.
func (r RuntimeConfig) StagingDir() string {
	return filepath.Join(r.StateDir, "rendered")
}
