// Package proxy routes outbound traffic of the reconciler and of snapd
// through an HTTP proxy.
package proxy

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"

	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

// execCommandContext is a variable to allow mocking in tests
var execCommandContext = exec.CommandContext

var proxyEnvVars = []string{"HTTP_PROXY", "HTTPS_PROXY", "http_proxy", "https_proxy"}

// Configurer applies a proxy to the process environment and snapd.
type Configurer struct {
	setenv func(key, value string) error
	snap   func(ctx context.Context, args ...string) error
}

// New returns a configurer acting on the real environment and snapd.
func New() *Configurer {
	return &Configurer{setenv: os.Setenv, snap: runSnap}
}

func runSnap(ctx context.Context, args ...string) error {
	out, err := execCommandContext(ctx, "snap", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("snap %v: %w: %s", args, err, out)
	}
	return nil
}

// Configure exports proxyURL for child processes of this pass and sets it
// as the snapd system proxy.
func (c *Configurer) Configure(ctx context.Context, proxyURL string) error {
	u, err := url.Parse(proxyURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid proxy URL %q", proxyURL)
	}

	for _, key := range proxyEnvVars {
		if err := c.setenv(key, proxyURL); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	if err := c.snap(ctx, "set", "system", "proxy.http="+proxyURL, "proxy.https="+proxyURL); err != nil {
		return fmt.Errorf("failed to configure snapd proxy: %w", err)
	}
	logging.Info("Proxy", "Outbound traffic goes through %s", u.Redacted())
	return nil
}
