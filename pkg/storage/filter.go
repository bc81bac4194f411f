// Every cache read starts with a store lookup, and most lookups for cold keys miss. FilteredStore keeps a bloom
// filter of every key written through it, so a read of a key the filter has never seen is answered without
// touching the wrapped store. Bloom filters never produce false negatives, so a skipped lookup is always a real
// miss; false positives fall through to the wrapped store.
//
// Deletes are not removed from the filter (bloom filters can't forget); those keys just cost a normal lookup.
// Writers that bypass the wrapper are invisible to the filter, so a FilteredStore must own its store.

package storage

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var filterSkips = promauto.NewCounter(prometheus.CounterOpts{
	Name: "offline_lookup_filter_skips_total",
	Help: "Total number of store lookups answered by the bloom filter alone.",
})

// FilteredStore decorates a KeyValueHolder with a bloom filter of known keys.
type FilteredStore struct { // Implements KeyValueHolder.
	KeyValueHolder
	mux    sync.RWMutex
	filter *bloom.BloomFilter
}

var _ KeyValueHolder = (*FilteredStore)(nil)

// NewFilteredStore wraps `store`, sizing the filter for `capacity` keys at the `falsePositiveRate`.
// Keys already in the store are added to the filter.
func NewFilteredStore(store KeyValueHolder, capacity uint, falsePositiveRate float64) (*FilteredStore, error) {
	if store == nil {
		return nil, fmt.Errorf("expected a non-nil store")
	}
	if capacity == 0 {
		return nil, fmt.Errorf("expected a positive filter capacity")
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		return nil, fmt.Errorf("expected a false positive rate in (0, 1), got %v", falsePositiveRate)
	}
	filtered := &FilteredStore{KeyValueHolder: store, filter: bloom.NewWithEstimates(capacity, falsePositiveRate)}
	for i := range store.Len() {
		if key, found := store.Key(i); found {
			filtered.filter.Add(keyDigest(key))
		}
	}
	return filtered, nil
}

// keyDigest reduces a key of any length to a fixed 8 byte filter input.
func keyDigest(key string) []byte {
	var digest [8]byte
	binary.LittleEndian.PutUint64(digest[:], xxhash.Sum64String(key))
	return digest[:]
}

// Get skips the wrapped store when the key was never written.
func (f *FilteredStore) Get(key string) (string, error) {
	f.mux.RLock()
	mayExist := f.filter.Test(keyDigest(key))
	f.mux.RUnlock()
	if !mayExist {
		filterSkips.Inc()
		return "", fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return f.KeyValueHolder.Get(key)
}

// Set records the key in the filter before writing; a failed write only costs a false positive.
func (f *FilteredStore) Set(key, value string) error {
	f.mux.Lock()
	f.filter.Add(keyDigest(key))
	f.mux.Unlock()
	return f.KeyValueHolder.Set(key, value)
}

// Clear empties both the wrapped store and the filter.
func (f *FilteredStore) Clear() {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.KeyValueHolder.Clear()
	f.filter.ClearAll()
}
