package engine

import (
	"context"
	"time"

	"github.com/ubuntu-core/serial-vault-charm/internal/config"
	"github.com/ubuntu-core/serial-vault-charm/internal/dependency"
	"github.com/ubuntu-core/serial-vault-charm/internal/ports"
	"github.com/ubuntu-core/serial-vault-charm/internal/state"
)

// Trigger names the event that started a pass.
type Trigger string

const (
	TriggerInstall             Trigger = "install"
	TriggerConfigChanged       Trigger = "config-changed"
	TriggerDependencyJoined    Trigger = "dependency-relation-joined"
	TriggerDependencyChanged   Trigger = "dependency-relation-changed"
	TriggerUpgrade             Trigger = "upgrade"
	TriggerWebsiteRelationSync Trigger = "website-relation-changed"
)

// Outcome summarises what a pass did.
type Outcome string

const (
	// OutcomeApplied means the pass ran its side effects to completion.
	OutcomeApplied Outcome = "applied"

	// OutcomeNoop means the target state was already reached.
	OutcomeNoop Outcome = "noop"

	// OutcomeDeferred means an input was not ready; a later event will retry.
	OutcomeDeferred Outcome = "deferred"

	// OutcomeFailed means a collaborator failed; a later event will retry.
	OutcomeFailed Outcome = "failed"
)

// Result describes a finished pass.
type Result struct {
	PassID   string
	Trigger  Trigger
	Target   TargetState
	Outcome  Outcome
	Failure  error
	State    state.ServiceState
	Duration time.Duration
}

// StatusState is the workload status reported to the platform.
type StatusState string

const (
	StatusMaintenance StatusState = "maintenance"
	StatusActive      StatusState = "active"
)

// Status is one status report.
type Status struct {
	State   StatusState
	Message string
}

// ConfigSource yields the current configuration snapshot.
type ConfigSource interface {
	ServiceConfig(ctx context.Context) (config.ServiceConfig, error)
}

// Relations reads and writes relation data.
type Relations interface {
	// Advertisements returns the data of every remote unit on relation.
	Advertisements(ctx context.Context, relation string) ([]dependency.Advertisement, error)

	// SetRelation publishes settings for the local unit on relation.
	SetRelation(ctx context.Context, relation string, settings map[string]string) error
}

// PortControl opens and closes ports on the unit.
type PortControl interface {
	OpenPort(ctx context.Context, port ports.Port) error
	ClosePort(ctx context.Context, port ports.Port) error
}

// StatusReporter publishes workload status.
type StatusReporter interface {
	SetStatus(ctx context.Context, status Status) error
}

// Platform is everything the engine needs from the orchestration platform.
type Platform interface {
	ConfigSource
	Relations
	PortControl
	StatusReporter

	// UnitName is the local unit identifier, e.g. "serial-vault/0".
	UnitName() string
}

// Installer deploys and refreshes the service payload for the configured
// channel.
type Installer interface {
	Install(ctx context.Context, cfg config.ServiceConfig) error
	Upgrade(ctx context.Context, cfg config.ServiceConfig) error
}

// Renderer renders a named template with data into an artifact and returns
// the artifact path.
type Renderer interface {
	Render(ctx context.Context, template string, data interface{}) (string, error)
}

// ConfigApplier pushes a rendered artifact into the service's active
// configuration.
type ConfigApplier interface {
	Apply(ctx context.Context, artifactPath string) error
}

// ServiceController drives the init system.
type ServiceController interface {
	Enable(ctx context.Context, unit string) error
	Restart(ctx context.Context, unit string) error
}

// ProxyConfigurer routes outbound traffic through a proxy before install.
type ProxyConfigurer interface {
	Configure(ctx context.Context, proxyURL string) error
}

// Recorder observes finished passes.
type Recorder interface {
	ObservePass(trigger string, outcome string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObservePass(string, string, time.Duration) {}
