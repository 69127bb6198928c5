package hookenv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/ubuntu-core/serial-vault-charm/internal/config"
	"github.com/ubuntu-core/serial-vault-charm/internal/dependency"
	"github.com/ubuntu-core/serial-vault-charm/internal/engine"
	"github.com/ubuntu-core/serial-vault-charm/internal/ports"
)

// execCommandContext is a variable to allow mocking in tests
var execCommandContext = exec.CommandContext

// Runner runs a hook tool and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Env is the hook tool backed platform.
type Env struct {
	unit string
	run  Runner
}

// New creates an Env for unit. A nil run executes the real hook tools.
func New(unit string, run Runner) *Env {
	if run == nil {
		run = execTool
	}
	return &Env{unit: unit, run: run}
}

func execTool(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := execCommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return out, nil
}

// UnitName returns the local unit identifier.
func (e *Env) UnitName() string {
	return e.unit
}

// ServiceConfig reads every charm option and normalises it.
func (e *Env) ServiceConfig(ctx context.Context) (config.ServiceConfig, error) {
	out, err := e.run(ctx, "config-get", "--all", "--format=json")
	if err != nil {
		return config.ServiceConfig{}, fmt.Errorf("failed to read charm config: %w", err)
	}

	raw := config.Settings{}
	if err := decode(out, &raw); err != nil {
		return config.ServiceConfig{}, fmt.Errorf("failed to parse charm config: %w", err)
	}
	return config.FromSettings(raw), nil
}

// Advertisements returns the settings of every remote unit on every
// instance of relation.
func (e *Env) Advertisements(ctx context.Context, relation string) ([]dependency.Advertisement, error) {
	ids, err := e.relationIDs(ctx, relation)
	if err != nil {
		return nil, err
	}

	var ads []dependency.Advertisement
	for _, id := range ids {
		var units []string
		out, err := e.run(ctx, "relation-list", "-r", id, "--format=json")
		if err != nil {
			return nil, fmt.Errorf("failed to list units of %s: %w", id, err)
		}
		if err := decode(out, &units); err != nil {
			return nil, fmt.Errorf("failed to parse units of %s: %w", id, err)
		}

		for _, unit := range units {
			out, err := e.run(ctx, "relation-get", "-r", id, "--format=json", "-", unit)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s settings on %s: %w", unit, id, err)
			}
			settings := map[string]interface{}{}
			if err := decode(out, &settings); err != nil {
				return nil, fmt.Errorf("failed to parse %s settings on %s: %w", unit, id, err)
			}
			ads = append(ads, dependency.Advertisement{Unit: unit, Settings: stringify(settings)})
		}
	}
	return ads, nil
}

// SetRelation publishes settings on every instance of relation. Keys are
// written in lexical order.
func (e *Env) SetRelation(ctx context.Context, relation string, settings map[string]string) error {
	ids, err := e.relationIDs(ctx, relation)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, id := range ids {
		args := []string{"-r", id}
		for _, k := range keys {
			args = append(args, k+"="+settings[k])
		}
		if _, err := e.run(ctx, "relation-set", args...); err != nil {
			return fmt.Errorf("failed to set settings on %s: %w", id, err)
		}
	}
	return nil
}

// OpenPort opens port on the unit.
func (e *Env) OpenPort(ctx context.Context, port ports.Port) error {
	if _, err := e.run(ctx, "open-port", port.String()); err != nil {
		return fmt.Errorf("failed to open port %s: %w", port, err)
	}
	return nil
}

// ClosePort closes port on the unit.
func (e *Env) ClosePort(ctx context.Context, port ports.Port) error {
	if _, err := e.run(ctx, "close-port", port.String()); err != nil {
		return fmt.Errorf("failed to close port %s: %w", port, err)
	}
	return nil
}

// SetStatus sets the workload status.
func (e *Env) SetStatus(ctx context.Context, status engine.Status) error {
	if _, err := e.run(ctx, "status-set", string(status.State), status.Message); err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return nil
}

func (e *Env) relationIDs(ctx context.Context, relation string) ([]string, error) {
	out, err := e.run(ctx, "relation-ids", relation, "--format=json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s relations: %w", relation, err)
	}
	var ids []string
	if err := decode(out, &ids); err != nil {
		return nil, fmt.Errorf("failed to parse %s relation ids: %w", relation, err)
	}
	return ids, nil
}

// decode parses hook tool JSON output. Empty output and a JSON null leave
// v untouched.
func decode(out []byte, v interface{}) error {
	out = bytes.TrimSpace(out)
	if len(out) == 0 || bytes.Equal(out, []byte("null")) {
		return nil
	}
	return json.Unmarshal(out, v)
}

func stringify(in map[string]interface{}) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
