// Package state persists the two flags that record how far the Serial Vault
// has been brought: whether the payload is installed (available) and whether
// the last configure-and-restart succeeded (active).
//
// The flags belong to the reconciler, not the managed service, and survive
// restarts of the hook process. Both only ever move from false to true, so
// every write is idempotent.
package state

import (
	"context"
	"fmt"
)

// ServiceState is the persisted flag pair.
type ServiceState struct {
	Available bool `yaml:"available" json:"available"`
	Active    bool `yaml:"active" json:"active"`
}

// Store is the persisted flag store injected into the engine.
type Store interface {
	Get(ctx context.Context) (ServiceState, error)
	MarkAvailable(ctx context.Context) error
	MarkActive(ctx context.Context) error
	Close() error
}

// Backend names a Store implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendBadger Backend = "badger"
)

// Open returns the store for backend rooted at dir.
func Open(backend Backend, dir string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(dir), nil
	case BackendBadger:
		return OpenBadgerStore(dir)
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}
