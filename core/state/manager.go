package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"feeshare/storage"
)

// Manager provides RLP-encoded key/value access on top of a storage backend.
// Writes are buffered in an overlay until Commit flushes them as one atomic
// batch; Snapshot and RevertToSnapshot roll the overlay back to an earlier
// point so that a failed operation leaves no trace.
type Manager struct {
	mu    sync.RWMutex
	db    storage.Database
	dirty map[string]dirtyValue

	journal        []journalEntry
	validRevisions []revision
	nextRevisionID int
}

type dirtyValue struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    dirtyValue
	hadPrev bool
}

type revision struct {
	id           int
	journalIndex int
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:    db,
		dirty: make(map[string]dirtyValue),
	}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the backend.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(string(kvKey(key)), dirtyValue{value: encoded})
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	m.mu.RLock()
	data, err := m.read(string(kvKey(key)))
	m.mu.RUnlock()
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under the supplied key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.write(string(kvKey(key)), dirtyValue{deleted: true})
	return nil
}

func (m *Manager) read(hashed string) ([]byte, error) {
	if entry, ok := m.dirty[hashed]; ok {
		if entry.deleted {
			return nil, nil
		}
		return entry.value, nil
	}
	data, err := m.db.Get([]byte(hashed))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) write(hashed string, value dirtyValue) {
	prev, hadPrev := m.dirty[hashed]
	m.journal = append(m.journal, journalEntry{key: hashed, prev: prev, hadPrev: hadPrev})
	m.dirty[hashed] = value
}

// Snapshot returns an identifier for the current overlay revision.
func (m *Manager) Snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextRevisionID
	m.nextRevisionID++
	m.validRevisions = append(m.validRevisions, revision{id: id, journalIndex: len(m.journal)})
	return id
}

// RevertToSnapshot undoes every write made after the given snapshot was taken.
// Snapshots taken after it are invalidated.
func (m *Manager) RevertToSnapshot(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := sort.Search(len(m.validRevisions), func(i int) bool {
		return m.validRevisions[i].id >= id
	})
	if idx == len(m.validRevisions) || m.validRevisions[idx].id != id {
		panic(fmt.Errorf("state: revision id %d cannot be reverted", id))
	}
	snapshot := m.validRevisions[idx].journalIndex
	for i := len(m.journal) - 1; i >= snapshot; i-- {
		entry := m.journal[i]
		if entry.hadPrev {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
	}
	m.journal = m.journal[:snapshot]
	m.validRevisions = m.validRevisions[:idx]
}

// Dirty reports the number of keys pending in the overlay.
func (m *Manager) Dirty() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dirty)
}

// Commit flushes the overlay to the backend in a single batch and resets the
// journal. Outstanding snapshots are invalidated.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.dirty) > 0 {
		batch := m.db.NewBatch()
		for key, entry := range m.dirty {
			if entry.deleted {
				batch.Delete([]byte(key))
				continue
			}
			batch.Put([]byte(key), entry.value)
		}
		if err := batch.Write(); err != nil {
			return fmt.Errorf("state: commit: %w", err)
		}
	}
	m.reset()
	return nil
}

// Discard drops every pending write.
func (m *Manager) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

func (m *Manager) reset() {
	m.dirty = make(map[string]dirtyValue)
	m.journal = nil
	m.validRevisions = nil
}
