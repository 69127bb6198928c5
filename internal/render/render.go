// Package render produces the files the Serial Vault reads at runtime: its
// settings and the launchers wrapping its binaries.
package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

// Template names shipped with the binary.
const (
	SettingsTemplate      = "settings.yaml"
	LauncherTemplate      = "serial-vault-launcher.sh"
	AdminLauncherTemplate = "serial-vault-admin-launcher.sh"
)

// LauncherContext is the data the launcher templates are rendered with.
type LauncherContext struct {
	BinDir  string
	ConfDir string
}

//go:embed templates/*
var embedded embed.FS

// Builtin returns the embedded templates.
func Builtin() fs.FS {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// Renderer renders templates from an fs.FS into a staging directory.
type Renderer struct {
	templates fs.FS
	outDir    string
}

// New creates a renderer writing into outDir. A nil templates uses the
// embedded set.
func New(templates fs.FS, outDir string) *Renderer {
	if templates == nil {
		templates = Builtin()
	}
	return &Renderer{templates: templates, outDir: outDir}
}

// Render renders name with data into the staging directory and returns the
// path of the result.
func (r *Renderer) Render(ctx context.Context, name string, data interface{}) (string, error) {
	target := filepath.Join(r.outDir, name)
	if err := r.RenderTo(name, data, target, 0600); err != nil {
		return "", err
	}
	return target, nil
}

// RenderTo renders name with data straight to target with mode.
func (r *Renderer) RenderTo(name string, data interface{}, target string, mode os.FileMode) error {
	body, err := r.Execute(name, data)
	if err != nil {
		return err
	}
	if err := writeAtomic(target, body, mode); err != nil {
		return err
	}
	logging.Debug("Render", "Rendered %s to %s", name, target)
	return nil
}

// funcMap is sprig's text functions plus pqValue.
func funcMap() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	funcs["pqValue"] = pqValue
	return funcs
}

// pqValue formats v as a libpq connection string value. Values that are
// empty or contain spaces, quotes or backslashes are single quoted with
// quotes and backslashes escaped.
func pqValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t\n'\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Execute renders name with data in memory.
func (r *Renderer) Execute(name string, data interface{}) ([]byte, error) {
	src, err := fs.ReadFile(r.templates, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", name, err)
	}

	tmpl, err := template.New(name).
		Funcs(funcMap()).
		Option("missingkey=error").
		Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func writeAtomic(target string, body []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", target, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set mode on %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", target, err)
	}
	return nil
}
