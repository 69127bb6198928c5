package config

import (
	"github.com/ubuntu-core/serial-vault-charm/internal/ports"
)

// Configuration option names as declared in the charm's config.yaml.
const (
	OptServiceType          = "service_type"
	OptChannel              = "channel"
	OptKeystoreSecret       = "keystore_secret"
	OptCSRFAuthKey          = "csrf_auth_key"
	OptURLHost              = "url_host"
	OptEnableUserAuth       = "enable_user_auth"
	OptJWTSecret            = "jwt_secret"
	OptProxy                = "proxy"
	OptPayload              = "payload"
	OptSwiftContainer       = "swift_container"
	OptEnvironmentVariables = "environment_variables"
)

// Channel is the release channel the payload is installed from.
type Channel string

const (
	ChannelStable    Channel = "stable"
	ChannelCandidate Channel = "candidate"
	ChannelBeta      Channel = "beta"
	ChannelEdge      Channel = "edge"
)

// ParseChannel returns the channel named by s, or stable when s is empty or
// not a known channel.
func ParseChannel(s string) Channel {
	switch c := Channel(s); c {
	case ChannelStable, ChannelCandidate, ChannelBeta, ChannelEdge:
		return c
	default:
		return ChannelStable
	}
}

// EnvVar is one KEY=VALUE pair from environment_variables.
type EnvVar struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

func (e EnvVar) String() string {
	return e.Key + "=" + e.Value
}

// ServiceConfig is the declared configuration snapshot for one pass.
type ServiceConfig struct {
	ServiceRole          ports.Role `validate:"required,oneof=admin signing system-user"`
	Channel              Channel    `validate:"oneof=stable candidate beta edge"`
	KeystoreSecret       string
	CSRFAuthKey          string
	URLHost              string
	EnableUserAuth       bool
	JWTSecret            string
	Proxy                string `validate:"omitempty,url"`
	PayloadLocation      string `validate:"omitempty,uri"`
	SwiftContainer       string
	EnvironmentVariables []EnvVar
}

// UsesPayload reports whether the service is deployed from a tarball
// payload instead of the snap store.
func (c ServiceConfig) UsesPayload() bool {
	return c.PayloadLocation != "" || c.SwiftContainer != ""
}

// Environ renders the environment variables in os/exec form.
func (c ServiceConfig) Environ() []string {
	out := make([]string, 0, len(c.EnvironmentVariables))
	for _, ev := range c.EnvironmentVariables {
		out = append(out, ev.String())
	}
	return out
}
