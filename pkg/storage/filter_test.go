package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts the lookups that reach the wrapped store.
type countingStore struct {
	KeyValueHolder
	gets int
}

func (c *countingStore) Get(key string) (string, error) {
	c.gets++
	return c.KeyValueHolder.Get(key)
}

func TestFilteredStore(t *testing.T) {
	inner := &countingStore{KeyValueHolder: NewMemTable(0 /*quotaBytes*/)}
	require.NoError(t, inner.Set("preexisting", "v0"))
	filtered, err := NewFilteredStore(inner, 1_000 /*capacity*/, 0.001 /*falsePositiveRate*/)
	require.NoError(t, err)

	t.Run("seeded_from_existing_keys", func(t *testing.T) {
		value, err := filtered.Get("preexisting")
		assert.NoError(t, err)
		assert.Equal(t, "v0", value)
		assert.Equal(t, 1, inner.gets)
	})
	t.Run("written_keys_reach_the_store", func(t *testing.T) {
		require.NoError(t, filtered.Set("k1", "v1"))
		value, err := filtered.Get("k1")
		assert.NoError(t, err)
		assert.Equal(t, "v1", value)
		assert.Equal(t, 2, inner.gets)
	})
	t.Run("unknown_keys_are_skipped", func(t *testing.T) {
		before := inner.gets
		misses := 0
		for i := range 100 {
			_, err := filtered.Get(fmt.Sprintf("unknown-%d", i))
			assert.ErrorIs(t, err, ErrKeyNotFound)
			misses++
		}
		// At a 0.1% false positive rate, almost every lookup should have been answered by the filter.
		assert.Less(t, inner.gets-before, 5)
		assert.Equal(t, 100, misses)
	})
	t.Run("clear_resets_filter", func(t *testing.T) {
		filtered.Clear()
		assert.Zero(t, filtered.Len())
		before := inner.gets
		_, err := filtered.Get("k1")
		assert.ErrorIs(t, err, ErrKeyNotFound)
		assert.Equal(t, before, inner.gets)
	})
}

func TestNewFilteredStore_Validation(t *testing.T) {
	_, err := NewFilteredStore(nil, 10, 0.01)
	assert.Error(t, err)
	_, err = NewFilteredStore(NewMemTable(0), 0, 0.01)
	assert.Error(t, err)
	_, err = NewFilteredStore(NewMemTable(0), 10, 1.5)
	assert.Error(t, err)
}
