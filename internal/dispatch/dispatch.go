// Package dispatch routes lifecycle event names to reconciliation entry
// points, one pass at a time.
package dispatch

import (
	"context"
	"sort"
	"sync"

	"github.com/ubuntu-core/serial-vault-charm/internal/config"
	"github.com/ubuntu-core/serial-vault-charm/internal/engine"
	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

const subsystem = "Dispatcher"

// Reconciler is the set of entry points the dispatcher routes to.
// *engine.Engine satisfies it.
type Reconciler interface {
	OnInstall(ctx context.Context) (engine.Result, error)
	OnConfigChanged(ctx context.Context) (engine.Result, error)
	OnDependencyRelationJoined(ctx context.Context) (engine.Result, error)
	OnDependencyRelationChanged(ctx context.Context) (engine.Result, error)
	OnUpgrade(ctx context.Context) (engine.Result, error)
	OnWebsiteRelationChanged(ctx context.Context) (engine.Result, error)
}

// Handler runs one pass.
type Handler func(ctx context.Context) (engine.Result, error)

// Options configures the routing table.
type Options struct {
	// DatabaseRelation is the prefix of the dependency relation hooks.
	DatabaseRelation string

	// WebsiteRelation is the prefix of the reverse proxy relation hooks.
	WebsiteRelation string
}

// Dispatcher maps event names to handlers and serialises their execution.
type Dispatcher struct {
	mu     sync.Mutex
	routes map[string]Handler
}

// New builds the routing table for r.
func New(r Reconciler, opts Options) *Dispatcher {
	if opts.DatabaseRelation == "" {
		opts.DatabaseRelation = config.DefaultDatabaseRelation
	}
	if opts.WebsiteRelation == "" {
		opts.WebsiteRelation = config.DefaultWebsiteRelation
	}

	routes := map[string]Handler{
		"install":        r.OnInstall,
		"config-changed": r.OnConfigChanged,
		"upgrade":        r.OnUpgrade,
		"upgrade-charm":  r.OnUpgrade,
	}
	routes[opts.DatabaseRelation+"-relation-joined"] = r.OnDependencyRelationJoined
	routes[opts.DatabaseRelation+"-relation-changed"] = r.OnDependencyRelationChanged
	routes[opts.WebsiteRelation+"-relation-changed"] = r.OnWebsiteRelationChanged

	return &Dispatcher{routes: routes}
}

// Handles reports whether event has a route.
func (d *Dispatcher) Handles(event string) bool {
	_, ok := d.routes[event]
	return ok
}

// Events lists the routed event names in lexical order.
func (d *Dispatcher) Events() []string {
	events := make([]string, 0, len(d.routes))
	for name := range d.routes {
		events = append(events, name)
	}
	sort.Strings(events)
	return events
}

// Dispatch runs the handler for event. It returns nil for events without a
// route. Only one pass runs at a time per dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, event string) (*engine.Result, error) {
	handler, ok := d.routes[event]
	if !ok {
		logging.Debug(subsystem, "Ignoring event %q", event)
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logging.Debug(subsystem, "Dispatching %s", event)
	res, err := handler(ctx)
	if err != nil {
		logging.Error(subsystem, err, "Pass for %s aborted", event)
		return &res, err
	}
	return &res, nil
}
