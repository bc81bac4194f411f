package cache

import (
	"container/heap"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nobletooth/offline/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateHeap_Order(t *testing.T) {
	candidates := &candidateHeap{compare: byExpiry}
	for _, candidate := range []*evictionCandidate{
		{key: "late", expiry: 300, seq: 0},
		{key: "tie_second", expiry: 100, seq: 5},
		{key: "never", expiry: MaxTimestamp, seq: 1},
		{key: "tie_first", expiry: 100, seq: 2},
		{key: "expired", expiry: 10, seq: 9},
	} {
		heap.Push(candidates, candidate)
	}
	popped := make([]string, 0)
	for candidates.Len() > 0 {
		popped = append(popped, heap.Pop(candidates).(*evictionCandidate).key)
	}
	assert.Equal(t, []string{"expired", "tie_first", "tie_second", "late", "never"}, popped)
}

// newEvictionCache returns a cache over a 500 byte store. Each entry written by fillEvictionCache takes 82 bytes:
// a 61 byte data record and a 21 byte expiry record, so six entries fit.
func newEvictionCache(t *testing.T) (*Cache, *storage.MemTable, *fakeClock) {
	t.Helper()
	store := storage.NewMemTable(500)
	clock := newFakeClock()
	cache, err := New(store, WithClock(clock))
	require.NoError(t, err)
	return cache, store, clock
}

// fillEvictionCache writes k0..k9, where ki holds 50 characters and lives for i+1 minutes.
func fillEvictionCache(cache *Cache) {
	for i := range 10 {
		cache.SetWithTTL(fmt.Sprintf("k%d", i), strings.Repeat("x", 50), time.Duration(i+1)*time.Minute)
	}
}

func TestExpunge_EarliestExpiryFirst(t *testing.T) {
	cache, store, _ := newEvictionCache(t)
	fillEvictionCache(cache)
	for i := range 10 {
		assert.Equalf(t, i >= 4, cache.Fresh(fmt.Sprintf("k%d", i)), "Unexpected freshness of k%d", i)
	}
	assert.Equal(t, 6*82, store.HeldBytes())

	cache.SetWithTTL("big", strings.Repeat("y", 100), time.Hour)
	assert.True(t, cache.Fresh("big"))
	assert.Equal(t, strings.Repeat("y", 100), cache.Get("big").Interface())
	assert.True(t, cache.Get("k4").IsAbsent())
	assert.True(t, cache.Get("k5").IsAbsent())
	for i := 6; i < 10; i++ {
		assert.Truef(t, cache.Fresh(fmt.Sprintf("k%d", i)), "Expected k%d to survive", i)
	}
}

func TestExpunge_StaleEntriesGoFirst(t *testing.T) {
	cache, _, clock := newEvictionCache(t)
	cache.SetWithTTL("s", strings.Repeat("s", 50), time.Minute)
	for i := range 5 {
		cache.SetWithTTL(fmt.Sprintf("l%d", i), strings.Repeat("l", 50), time.Hour)
	}
	clock.Advance(2 * time.Minute)
	require.False(t, cache.Fresh("s"))

	cache.SetWithTTL("n", strings.Repeat("n", 50), time.Hour)
	assert.True(t, cache.Get("s").IsAbsent())
	assert.True(t, cache.Fresh("n"))
	for i := range 5 {
		assert.True(t, cache.Fresh(fmt.Sprintf("l%d", i)))
	}
}

func TestExpunge_ReturnsFreedBytes(t *testing.T) {
	cache, _, _ := newEvictionCache(t)
	fillEvictionCache(cache)

	cache.mux.Lock()
	evicted, freedBytes := cache.expunge(53)
	cache.mux.Unlock()
	assert.Equal(t, 2, evicted)
	assert.Equal(t, 104, freedBytes)
	assert.Equal(t, []string{"k6", "k7", "k8", "k9"}, cache.Keys(""))

	cache.mux.Lock()
	evicted, freedBytes = cache.expunge(10_000)
	cache.mux.Unlock()
	assert.Equal(t, 4, evicted)
	assert.Equal(t, 208, freedBytes)
	assert.Empty(t, cache.Keys(""))
}

func TestExpunge_MissingExpiryEvictedLast(t *testing.T) {
	store := storage.NewMemTable(0)
	cache, err := New(store, WithClock(newFakeClock()))
	require.NoError(t, err)
	cache.Set("no_ttl", "a")
	cache.SetWithTTL("ttl", "b", time.Minute)
	require.NoError(t, store.Set(dataKey("orphan"), `"c"`)) // A data record whose expiry record was lost.

	cache.mux.Lock()
	evicted, _ := cache.expunge(1)
	cache.mux.Unlock()
	assert.Equal(t, 1, evicted)
	assert.Equal(t, []string{"no_ttl", "orphan"}, cache.Keys(""))

	cache.mux.Lock()
	cache.expunge(1)
	cache.mux.Unlock()
	assert.Equal(t, []string{"orphan"}, cache.Keys(""))
}
