package storage

import (
	"fmt"
	"strings"
	"sync"

	"github.com/nobletooth/offline/pkg/utils"
)

// MemTable is an in-memory KeyValueHolder with a byte quota, mimicking a browser's local storage.
// Each record costs len(key)+len(value) bytes; a write that would push the total over the quota fails with a
// QuotaExceededError and leaves the table untouched. Keys are enumerated in lexicographic order.
type MemTable struct {
	mux        sync.RWMutex // Protects against race conditions.
	skipList   *SkipList[string /*key*/, string /*value*/]
	quotaBytes int // Zero means unlimited.
	heldBytes  int // Sum of len(key)+len(value) over all records.
}

var _ KeyValueHolder = (*MemTable)(nil)

// NewMemTable is the constructor for MemTable. A zero `quotaBytes` disables the quota.
func NewMemTable(quotaBytes int) *MemTable {
	if quotaBytes < 0 {
		utils.RaiseInvariant("memtable", "negative_quota", "Got a negative memtable quota.", "quota", quotaBytes)
		quotaBytes = 0
	}
	return &MemTable{skipList: NewSkipList[string, string](strings.Compare), quotaBytes: quotaBytes}
}

// Get returns the value for a given key, or ErrKeyNotFound.
func (m *MemTable) Get(key string) (string, error) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	value, err := m.skipList.Get(key)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, key)
	}
	return value, nil
}

// Set inserts or updates the value for a given key, honoring the quota.
func (m *MemTable) Set(key, value string) error {
	m.mux.Lock()
	defer m.mux.Unlock()

	nextHeld := m.heldBytes + len(key) + len(value)
	if prevValue, err := m.skipList.Get(key); err == nil {
		nextHeld -= len(key) + len(prevValue)
	}
	if m.quotaBytes > 0 && nextHeld > m.quotaBytes {
		return &NamedError{
			Name: QuotaExceededError,
			Msg:  fmt.Sprintf("setting %q needs %d bytes, quota is %d", key, nextHeld, m.quotaBytes),
		}
	}
	// NOTE: Since skip list is initialized, we'll ignore `Set` returned error.
	_, _ = m.skipList.Set(key, value)
	m.heldBytes = nextHeld
	return nil
}

// Delete removes the key if present.
func (m *MemTable) Delete(key string) {
	m.mux.Lock()
	defer m.mux.Unlock()

	value, err := m.skipList.Get(key)
	if err != nil {
		return
	}
	_ = m.skipList.Delete(key)
	m.heldBytes -= len(key) + len(value)
	if m.heldBytes < 0 {
		utils.RaiseInvariant("memtable", "negative_held_bytes", "Memtable byte accounting went negative.",
			"heldBytes", m.heldBytes)
		m.heldBytes = 0
	}
}

// Clear drops every record.
func (m *MemTable) Clear() {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.skipList.Clear()
	m.heldBytes = 0
}

func (m *MemTable) Len() int {
	m.mux.RLock()
	defer m.mux.RUnlock()
	return m.skipList.Len()
}

// Key returns the key at `index` in lexicographic order.
func (m *MemTable) Key(index int) (string, bool) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	pair, found := m.skipList.At(index)
	return pair.Key, found
}

// HeldBytes returns how many quota bytes are in use.
func (m *MemTable) HeldBytes() int {
	m.mux.RLock()
	defer m.mux.RUnlock()
	return m.heldBytes
}

// Pairs returns a copy of every record in key order.
func (m *MemTable) Pairs() []utils.StringPair {
	m.mux.RLock()
	defer m.mux.RUnlock()
	pairs := make([]utils.StringPair, 0, m.skipList.Len())
	for pair := range m.skipList.Pairs() {
		pairs = append(pairs, utils.StringPair(pair))
	}
	return pairs
}
