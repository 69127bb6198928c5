// Package localenv is a file backed platform for running the reconciler
// outside a Juju hook.
//
// A directory stands in for the controller:
//
//	config.yaml               charm options, "option: value"
//	relations/<name>.yaml     remote unit settings, "unit: {key: value}"
//	unit.yaml                 written back: status, open ports, published data
package localenv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ubuntu-core/serial-vault-charm/internal/config"
	"github.com/ubuntu-core/serial-vault-charm/internal/dependency"
	"github.com/ubuntu-core/serial-vault-charm/internal/engine"
	"github.com/ubuntu-core/serial-vault-charm/internal/ports"
	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

const (
	ConfigFile   = "config.yaml"
	RelationsDir = "relations"
	UnitFile     = "unit.yaml"
)

// UnitRecord is what the reconciler reports back.
type UnitRecord struct {
	Status    StatusRecord                 `yaml:"status"`
	OpenPorts []string                     `yaml:"open-ports"`
	Published map[string]map[string]string `yaml:"published,omitempty"`
}

// StatusRecord is the last reported workload status.
type StatusRecord struct {
	State   string `yaml:"state"`
	Message string `yaml:"message,omitempty"`
}

// Env is the directory backed platform.
type Env struct {
	dir  string
	unit string

	mu     sync.Mutex
	record UnitRecord
	open   map[ports.Port]bool
}

// New creates an Env rooted at dir. An existing unit.yaml is loaded so
// ports and published data survive restarts.
func New(dir, unit string) (*Env, error) {
	if err := os.MkdirAll(filepath.Join(dir, RelationsDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	e := &Env{
		dir:  dir,
		unit: unit,
		open: make(map[ports.Port]bool),
		record: UnitRecord{
			Published: make(map[string]map[string]string),
		},
	}

	data, err := os.ReadFile(filepath.Join(dir, UnitFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", UnitFile, err)
	default:
		if err := yaml.Unmarshal(data, &e.record); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", UnitFile, err)
		}
		if e.record.Published == nil {
			e.record.Published = make(map[string]map[string]string)
		}
		for _, p := range e.record.OpenPorts {
			if port, ok := parsePort(p); ok {
				e.open[port] = true
			}
		}
	}
	return e, nil
}

// Dir is the root directory.
func (e *Env) Dir() string { return e.dir }

// ConfigPath is the watched options file.
func (e *Env) ConfigPath() string { return filepath.Join(e.dir, ConfigFile) }

// RelationPath is the watched settings file of relation.
func (e *Env) RelationPath(relation string) string {
	return filepath.Join(e.dir, RelationsDir, relation+".yaml")
}

func (e *Env) UnitName() string { return e.unit }

func (e *Env) ServiceConfig(ctx context.Context) (config.ServiceConfig, error) {
	return config.LoadFile(e.ConfigPath())
}

// Advertisements reads relation's settings file. A missing file means no
// remote units. Units are returned in lexical order.
func (e *Env) Advertisements(ctx context.Context, relation string) ([]dependency.Advertisement, error) {
	data, err := os.ReadFile(e.RelationPath(relation))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read relation %s: %w", relation, err)
	}

	units := map[string]map[string]string{}
	if err := yaml.Unmarshal(data, &units); err != nil {
		return nil, fmt.Errorf("failed to parse relation %s: %w", relation, err)
	}

	names := make([]string, 0, len(units))
	for name := range units {
		names = append(names, name)
	}
	sort.Strings(names)

	ads := make([]dependency.Advertisement, 0, len(names))
	for _, name := range names {
		ads = append(ads, dependency.Advertisement{Unit: name, Settings: units[name]})
	}
	return ads, nil
}

func (e *Env) SetRelation(ctx context.Context, relation string, settings map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	merged := make(map[string]string, len(settings))
	for k, v := range e.record.Published[relation] {
		merged[k] = v
	}
	for k, v := range settings {
		merged[k] = v
	}
	e.record.Published[relation] = merged
	return e.flush()
}

func (e *Env) OpenPort(ctx context.Context, port ports.Port) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open[port] = true
	return e.flush()
}

func (e *Env) ClosePort(ctx context.Context, port ports.Port) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.open, port)
	return e.flush()
}

func (e *Env) SetStatus(ctx context.Context, status engine.Status) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record.Status = StatusRecord{State: string(status.State), Message: status.Message}
	logging.Info("LocalEnv", "Status: %s %s", status.State, status.Message)
	return e.flush()
}

// Record returns a copy of what has been reported so far.
func (e *Env) Record() UnitRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.record
	r.OpenPorts = e.portList()
	r.Published = make(map[string]map[string]string, len(e.record.Published))
	for rel, settings := range e.record.Published {
		copied := make(map[string]string, len(settings))
		for k, v := range settings {
			copied[k] = v
		}
		r.Published[rel] = copied
	}
	return r
}

func (e *Env) portList() []string {
	out := make([]string, 0, len(e.open))
	for p := range e.open {
		out = append(out, p.String())
	}
	sort.Strings(out)
	return out
}

func parsePort(s string) (ports.Port, bool) {
	num, proto, ok := strings.Cut(s, "/")
	if !ok {
		return ports.Port{}, false
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return ports.Port{}, false
	}
	return ports.Port{Number: n, Protocol: ports.Protocol(proto)}, true
}

// flush writes unit.yaml. Callers hold mu.
func (e *Env) flush() error {
	e.record.OpenPorts = e.portList()

	data, err := yaml.Marshal(&e.record)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", UnitFile, err)
	}
	path := filepath.Join(e.dir, UnitFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", UnitFile, err)
	}
	return os.Rename(tmp, path)
}
