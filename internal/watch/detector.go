// Package watch turns file changes in a local environment directory into
// lifecycle events.
//
// config.yaml maps to config-changed. relations/<name>.yaml maps to
// <name>-relation-changed, preceded by <name>-relation-joined when the file
// is created.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

const (
	configFile   = "config.yaml"
	relationsDir = "relations"
)

// Event is one lifecycle event derived from the filesystem.
type Event struct {
	Name      string
	Path      string
	Timestamp time.Time
}

// Detector watches a local environment directory.
type Detector struct {
	mu sync.Mutex

	basePath         string
	debounceInterval time.Duration
	watcher          *fsnotify.Watcher
	pending          map[string]*debounceEntry
	stopCh           chan struct{}
	running          bool
}

type debounceEntry struct {
	event  Event
	timer  *time.Timer
	joined bool
}

// NewDetector creates a detector for basePath.
func NewDetector(basePath string, debounceInterval time.Duration) *Detector {
	if debounceInterval == 0 {
		debounceInterval = 500 * time.Millisecond
	}
	return &Detector{
		basePath:         basePath,
		debounceInterval: debounceInterval,
		pending:          make(map[string]*debounceEntry),
		stopCh:           make(chan struct{}),
	}
}

// Start begins watching. Events are sent to out until ctx is done or Stop
// is called. A send waits for the receiver, so no change is lost while the
// detector runs.
func (d *Detector) Start(ctx context.Context, out chan<- Event) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.watcher = watcher
	d.running = true
	d.stopCh = make(chan struct{})
	d.mu.Unlock()

	for _, dir := range []string{d.basePath, filepath.Join(d.basePath, relationsDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			d.Stop()
			return err
		}
		if err := watcher.Add(dir); err != nil {
			d.Stop()
			return err
		}
	}

	go d.processEvents(ctx, watcher, out)

	logging.Info("Watch", "Watching %s for changes", d.basePath)
	return nil
}

func (d *Detector) processEvents(ctx context.Context, watcher *fsnotify.Watcher, out chan<- Event) {
	d.mu.Lock()
	stopCh := d.stopCh
	d.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			d.cleanupPending()
			d.Stop()
			return

		case <-stopCh:
			d.cleanupPending()
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			d.handleFsEvent(ev, out)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error("Watch", err, "Filesystem watcher error")
		}
	}
}

func (d *Detector) handleFsEvent(ev fsnotify.Event, out chan<- Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	name, relation := d.eventFor(ev.Name)
	if name == "" {
		return
	}

	event := Event{Name: name, Path: ev.Name, Timestamp: time.Now()}
	d.debounce(event, relation != "" && ev.Op&fsnotify.Create != 0, relation, out)
}

// eventFor maps a path to an event name and, for relation files, the
// relation name.
func (d *Detector) eventFor(path string) (string, string) {
	rel, err := filepath.Rel(d.basePath, path)
	if err != nil {
		return "", ""
	}

	if rel == configFile {
		return "config-changed", ""
	}

	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 || parts[0] != relationsDir || !isYAMLFile(parts[1]) {
		return "", ""
	}
	relation := strings.TrimSuffix(strings.TrimSuffix(parts[1], ".yaml"), ".yml")
	if relation == "" {
		return "", ""
	}
	return relation + "-relation-changed", relation
}

func (d *Detector) debounce(event Event, created bool, relation string, out chan<- Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := event.Name
	joined := created
	if entry, ok := d.pending[key]; ok {
		entry.timer.Stop()
		joined = joined || entry.joined
	}

	entry := &debounceEntry{event: event, joined: joined}
	entry.timer = time.AfterFunc(d.debounceInterval, func() {
		d.mu.Lock()
		current, ok := d.pending[key]
		if ok && current == entry {
			delete(d.pending, key)
		}
		d.mu.Unlock()
		if !ok || current != entry {
			return
		}

		if entry.joined {
			if !d.emit(out, Event{Name: relation + "-relation-joined", Path: event.Path, Timestamp: event.Timestamp}) {
				return
			}
		}
		d.emit(out, entry.event)
	})
	d.pending[key] = entry
}

// emit blocks until out accepts event or the detector stops. It reports
// whether the event was delivered.
func (d *Detector) emit(out chan<- Event, event Event) bool {
	d.mu.Lock()
	stopCh := d.stopCh
	d.mu.Unlock()

	select {
	case out <- event:
		logging.Debug("Watch", "Emitted %s for %s", event.Name, event.Path)
		return true
	case <-stopCh:
		logging.Debug("Watch", "Detector stopped before %s was delivered", event.Name)
		return false
	}
}

func (d *Detector) cleanupPending() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, entry := range d.pending {
		entry.timer.Stop()
	}
	d.pending = make(map[string]*debounceEntry)
}

// Stop stops the detector.
func (d *Detector) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	d.running = false
	close(d.stopCh)

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			logging.Error("Watch", err, "Error closing filesystem watcher")
		}
		d.watcher = nil
	}
	logging.Info("Watch", "Stopped watching %s", d.basePath)
	return nil
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
