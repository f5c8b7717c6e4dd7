package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"lanebridge/storage"
)

// Manager provides typed access to a backing key-value database. Values are
// encoded with RLP so two nodes storing the same record produce byte-identical
// entries, which is what makes the records provable across chains.
type Manager struct {
	db storage.Database
}

// NewManager wraps the given database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVPut encodes value with RLP and stores it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return errors.New("state: database not configured")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode value for key %q: %w", key, err)
	}
	return m.db.Put(key, encoded)
}

// KVGet loads the value stored under key into out. It returns false with a nil
// error when the key is absent. Passing a nil out only checks for existence.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, errors.New("state: database not configured")
	}
	encoded, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, fmt.Errorf("state: decode value for key %q: %w", key, err)
	}
	return true, nil
}

// KVHas reports whether a value is stored under key.
func (m *Manager) KVHas(key []byte) (bool, error) {
	if m == nil || m.db == nil {
		return false, errors.New("state: database not configured")
	}
	return m.db.Has(key)
}

// KVDelete removes the value stored under key, if any.
func (m *Manager) KVDelete(key []byte) error {
	if m == nil || m.db == nil {
		return errors.New("state: database not configured")
	}
	return m.db.Delete(key)
}

// KVIterate walks all keys with the given prefix in ascending order, passing
// the raw encoded value to fn. Callers decode with the record type they expect
// under the prefix.
func (m *Manager) KVIterate(prefix []byte, fn func(key, value []byte) error) error {
	if m == nil || m.db == nil {
		return errors.New("state: database not configured")
	}
	return m.db.Iterate(prefix, fn)
}
