package state

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/ubuntu-core/serial-vault-charm/pkg/logging"
)

var (
	keyAvailable = []byte("serial-vault.available")
	keyActive    = []byte("serial-vault.active")
	flagSet      = []byte{1}
)

// BadgerStore keeps each flag as a key in an embedded BadgerDB. A present
// key means the flag is set.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (creating if needed) a database in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	if dir == "" {
		return nil, errors.New("path is required for persistent state database")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create state database directory %s: %w", dir, err)
	}

	opts := badger.DefaultOptions(dir).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
	return openBadger(opts)
}

// OpenInMemoryBadgerStore opens a non-persistent database, for tests.
func OpenInMemoryBadgerStore() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Get returns the persisted flags.
func (s *BadgerStore) Get(ctx context.Context) (ServiceState, error) {
	var st ServiceState
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		if st.Available, err = hasKey(txn, keyAvailable); err != nil {
			return err
		}
		st.Active, err = hasKey(txn, keyActive)
		return err
	})
	if err != nil {
		return ServiceState{}, fmt.Errorf("read service state: %w", err)
	}
	return st, nil
}

// MarkAvailable sets the available flag.
func (s *BadgerStore) MarkAvailable(ctx context.Context) error {
	return s.setFlag(keyAvailable)
}

// MarkActive sets the active flag.
func (s *BadgerStore) MarkActive(ctx context.Context) error {
	return s.setFlag(keyActive)
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) setFlag(key []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		set, err := hasKey(txn, key)
		if err != nil || set {
			return err
		}
		return txn.Set(key, flagSet)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	logging.Debug("StateStore", "Set %s", key)
	return nil
}

func hasKey(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
