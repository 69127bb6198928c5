package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

const stateFileName = "service-state.yaml"

// fileRecord is the on-disk shape of the flags.
type fileRecord struct {
	ServiceState `yaml:",inline"`
	UpdatedAt    time.Time `yaml:"updatedAt,omitempty"`
}

// FileStore keeps the flags in a YAML file. Writes go through a temporary
// file and a rename so a crash never leaves a truncated file behind.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store writing to dir/service-state.yaml.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, stateFileName)}
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the persisted flags; a missing file means both are false.
func (s *FileStore) Get(ctx context.Context) (ServiceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return ServiceState{}, err
	}
	return rec.ServiceState, nil
}

// MarkAvailable sets the available flag.
func (s *FileStore) MarkAvailable(ctx context.Context) error {
	return s.update(func(st *ServiceState) bool {
		if st.Available {
			return false
		}
		st.Available = true
		return true
	})
}

// MarkActive sets the active flag.
func (s *FileStore) MarkActive(ctx context.Context) error {
	return s.update(func(st *ServiceState) bool {
		if st.Active {
			return false
		}
		st.Active = true
		return true
	})
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) update(mutate func(*ServiceState) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return err
	}
	if !mutate(&rec.ServiceState) {
		return nil
	}
	rec.UpdatedAt = time.Now().UTC()
	return s.save(rec)
}

func (s *FileStore) load() (fileRecord, error) {
	var rec fileRecord
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rec, nil
		}
		return rec, fmt.Errorf("failed to read state file %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to parse state file %s: %w", s.path, err)
	}
	return rec, nil
}

func (s *FileStore) save(rec fileRecord) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal service state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".service-state-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temporary state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temporary state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace state file %s: %w", s.path, err)
	}

	logging.Debug("StateStore", "Saved available=%t active=%t to %s", rec.Available, rec.Active, s.path)
	return nil
}
