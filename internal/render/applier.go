package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

// FileApplier installs a rendered artifact at a fixed path.
type FileApplier struct {
	Target string
	Mode   os.FileMode
}

// NewFileApplier returns an applier writing to target.
func NewFileApplier(target string) *FileApplier {
	return &FileApplier{Target: target, Mode: 0640}
}

// Apply copies artifactPath over the target. An identical target is left
// alone.
func (a *FileApplier) Apply(ctx context.Context, artifactPath string) error {
	body, err := os.ReadFile(artifactPath)
	if err != nil {
		return fmt.Errorf("failed to read rendered settings: %w", err)
	}

	current, err := os.ReadFile(a.Target)
	switch {
	case err == nil && bytes.Equal(current, body):
		logging.Debug("Render", "%s unchanged", a.Target)
		return nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("failed to read %s: %w", a.Target, err)
	}

	if err := writeAtomic(a.Target, body, a.Mode); err != nil {
		return err
	}
	logging.Info("Render", "Installed settings at %s", a.Target)
	return nil
}
