package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ubuntu-core/serial-vault-charm/internal/ports"
	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

// Settings is the raw option map as reported by the platform.
type Settings map[string]interface{}

// FromSettings builds a ServiceConfig from raw options. Missing options keep
// their defaults. A malformed environment_variables value is dropped with a
// warning rather than failing the whole configuration.
func FromSettings(raw Settings) ServiceConfig {
	cfg := DefaultServiceConfig()

	if v, ok := raw.stringValue(OptServiceType); ok {
		cfg.ServiceRole = ports.Role(v)
	}
	if v, ok := raw[OptChannel]; ok {
		cfg.Channel = ParseChannel(toString(v))
	}
	cfg.KeystoreSecret, _ = raw.stringValue(OptKeystoreSecret)
	cfg.CSRFAuthKey, _ = raw.stringValue(OptCSRFAuthKey)
	cfg.URLHost, _ = raw.stringValue(OptURLHost)
	cfg.JWTSecret, _ = raw.stringValue(OptJWTSecret)
	cfg.Proxy, _ = raw.stringValue(OptProxy)
	cfg.PayloadLocation, _ = raw.stringValue(OptPayload)
	cfg.SwiftContainer, _ = raw.stringValue(OptSwiftContainer)
	cfg.EnableUserAuth = toBool(raw[OptEnableUserAuth])

	if v, ok := raw.stringValue(OptEnvironmentVariables); ok && v != "" {
		vars, err := ParseEnvironment(v)
		if err != nil {
			logging.Warn("Config", "Ignoring %s: %v", OptEnvironmentVariables, err)
		} else {
			cfg.EnvironmentVariables = vars
		}
	}

	return cfg
}

// LoadFile reads options from a YAML file of the form "option: value".
// A missing file yields the default configuration.
func LoadFile(path string) (ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("Config", "No configuration found at %s, using defaults", path)
			return DefaultServiceConfig(), nil
		}
		return ServiceConfig{}, fmt.Errorf("failed to read configuration %s: %w", path, err)
	}

	var raw Settings
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return ServiceConfig{}, fmt.Errorf("error loading configuration from %s: %w", path, err)
	}
	logging.Debug("Config", "Loaded %d options from %s", len(raw), path)
	return FromSettings(raw), nil
}

func (s Settings) stringValue(key string) (string, bool) {
	v, ok := s[key]
	if !ok || v == nil {
		return "", false
	}
	return toString(v), true
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	case int:
		return t != 0
	case float64:
		return t != 0
	default:
		return false
	}
}
