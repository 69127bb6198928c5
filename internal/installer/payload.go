package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ubuntu-core/serial-vault-charm/internal/config"
	"github.com/ubuntu-core/serial-vault-charm/internal/render"
	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

var (
	// ErrMalformedPayload means the tarball lacks one of the required parts.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrNoPayload means payload mode is selected but no payload is set.
	ErrNoPayload = errors.New("payload not available")
)

// Parts every payload must carry.
const (
	BinaryName      = "serial-vault"
	AdminBinaryName = "serial-vault-admin"
	AssetsDirName   = "static"
)

// LauncherRenderer renders the launcher scripts. *render.Renderer
// satisfies it.
type LauncherRenderer interface {
	RenderTo(name string, data interface{}, target string, mode os.FileMode) error
}

// Reloader reloads the init system after the unit file changed.
type Reloader interface {
	DaemonReload(ctx context.Context) error
}

// Launcher templates and the binaries they wrap.
var launchers = map[string]string{
	BinaryName:      render.LauncherTemplate,
	AdminBinaryName: render.AdminLauncherTemplate,
}

// PayloadOptions configures a PayloadInstaller.
type PayloadOptions struct {
	Paths config.InstallPaths

	// UnitFile is the service unit copied into Paths.SystemdDir.
	UnitFile string

	// WorkDir receives downloads and extracted payloads.
	WorkDir string

	Launchers LauncherRenderer
	Reloader  Reloader

	// Run executes external commands (swift). Nil runs them for real.
	Run Runner

	// Client fetches http(s) payloads. Nil uses a client with a timeout.
	Client *http.Client
}

// PayloadInstaller deploys a tarball payload.
type PayloadInstaller struct {
	opts PayloadOptions
}

// NewPayloadInstaller returns a payload installer.
func NewPayloadInstaller(opts PayloadOptions) *PayloadInstaller {
	if opts.Run == nil {
		opts.Run = execRunner
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &PayloadInstaller{opts: opts}
}

// Install fetches, verifies and deploys the payload.
func (p *PayloadInstaller) Install(ctx context.Context, cfg config.ServiceConfig) error {
	if err := os.MkdirAll(p.opts.WorkDir, 0755); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}

	archive, err := p.fetch(ctx, cfg)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp(p.opts.WorkDir, "payload-")
	if err != nil {
		return fmt.Errorf("failed to create extraction dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := extractTarGz(archive, dir); err != nil {
		return fmt.Errorf("failed to extract %s: %w", archive, err)
	}
	if err := verifyPayload(dir); err != nil {
		return err
	}
	logging.Info("Installer", "Payload %s verified", filepath.Base(archive))

	return p.deploy(ctx, dir)
}

// Upgrade redeploys the payload over the previous one.
func (p *PayloadInstaller) Upgrade(ctx context.Context, cfg config.ServiceConfig) error {
	return p.Install(ctx, cfg)
}

// fetch returns the local path of the payload archive.
func (p *PayloadInstaller) fetch(ctx context.Context, cfg config.ServiceConfig) (string, error) {
	if cfg.PayloadLocation == "" {
		return "", ErrNoPayload
	}

	if cfg.SwiftContainer != "" {
		return p.fetchSwift(ctx, cfg)
	}

	u, err := url.Parse(cfg.PayloadLocation)
	if err != nil {
		return "", fmt.Errorf("invalid payload location %q: %w", cfg.PayloadLocation, err)
	}

	switch u.Scheme {
	case "", "file":
		path := u.Path
		if u.Scheme == "" {
			path = cfg.PayloadLocation
		}
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("payload %s: %w", path, err)
		}
		return path, nil
	case "http", "https":
		return p.fetchHTTP(ctx, u)
	default:
		return "", fmt.Errorf("unsupported payload scheme %q", u.Scheme)
	}
}

func (p *PayloadInstaller) fetchSwift(ctx context.Context, cfg config.ServiceConfig) (string, error) {
	target := filepath.Join(p.opts.WorkDir, filepath.Base(cfg.PayloadLocation))
	cmd := Command{
		Name: "swift",
		Args: []string{"-v", "download", cfg.SwiftContainer, cfg.PayloadLocation, "--output", target},
		Env:  cfg.Environ(),
		Dir:  p.opts.WorkDir,
	}

	logging.Info("Installer", "Downloading %s from swift container %s", cfg.PayloadLocation, cfg.SwiftContainer)
	if err := p.opts.Run(ctx, cmd); err != nil {
		return "", fmt.Errorf("failed to download payload from swift: %w", err)
	}
	return target, nil
}

func (p *PayloadInstaller) fetchHTTP(ctx context.Context, u *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}

	logging.Info("Installer", "Downloading payload from %s", u.Redacted())
	resp, err := p.opts.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download payload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download payload: %s", resp.Status)
	}

	name := filepath.Base(u.Path)
	if name == "." || name == "/" {
		name = "payload.tgz"
	}
	target := filepath.Join(p.opts.WorkDir, name)

	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to save payload: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to save payload: %w", err)
	}
	return target, nil
}

func verifyPayload(dir string) error {
	for _, name := range []string{BinaryName, AdminBinaryName} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || !info.Mode().IsRegular() {
			return fmt.Errorf("%w: could not find %s binary", ErrMalformedPayload, name)
		}
	}
	info, err := os.Stat(filepath.Join(dir, AssetsDirName))
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: could not find static assets", ErrMalformedPayload)
	}
	return nil
}

func (p *PayloadInstaller) deploy(ctx context.Context, dir string) error {
	paths := p.opts.Paths

	// Assets are replaced wholesale so removed files do not linger.
	if err := os.RemoveAll(paths.AssetsDir); err != nil {
		return fmt.Errorf("failed to remove old assets: %w", err)
	}
	for _, d := range []string{filepath.Dir(paths.AssetsDir), paths.ConfDir, paths.LibDir, paths.BinDir, paths.SystemdDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	for _, name := range []string{BinaryName, AdminBinaryName} {
		if err := move(filepath.Join(dir, name), filepath.Join(paths.LibDir, name)); err != nil {
			return err
		}
		if err := os.Chmod(filepath.Join(paths.LibDir, name), 0755); err != nil {
			return fmt.Errorf("failed to make %s executable: %w", name, err)
		}
	}
	if err := move(filepath.Join(dir, AssetsDirName), paths.AssetsDir); err != nil {
		return err
	}

	if p.opts.UnitFile != "" {
		unitTarget := filepath.Join(paths.SystemdDir, filepath.Base(p.opts.UnitFile))
		if err := copyFile(p.opts.UnitFile, unitTarget, 0644); err != nil {
			return fmt.Errorf("failed to install unit file: %w", err)
		}
	}

	if p.opts.Launchers != nil {
		data := render.LauncherContext{BinDir: paths.LibDir, ConfDir: paths.ConfDir}
		for binary, tmpl := range launchers {
			if err := p.opts.Launchers.RenderTo(tmpl, data, filepath.Join(paths.BinDir, binary), 0755); err != nil {
				return fmt.Errorf("failed to create %s launcher: %w", binary, err)
			}
		}
	}

	if p.opts.Reloader != nil {
		if err := p.opts.Reloader.DaemonReload(ctx); err != nil {
			return err
		}
	}

	logging.Info("Installer", "Service payload deployed to %s", paths.LibDir)
	return nil
}
