package storage

import (
	"cmp"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"testing"

	"github.com/nobletooth/offline/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkipList_EmptyGet(t *testing.T) {
	skipList := NewSkipList[int, string](cmp.Compare)
	_, err := skipList.Get(42)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, found := skipList.At(0)
	assert.False(t, found)
	assert.Zero(t, skipList.Len())
}

// assertHasKey checks the given `skipList` contains the given `key` corresponding to given `expectedVal`.
func assertHasKey[K any, V any](t *testing.T, skipList *SkipList[K, V], key K, expectedVal any) {
	t.Helper()
	gotValue, err := skipList.Get(key)
	assert.NoError(t, err)
	assert.Equal(t, expectedVal, gotValue)
}

// setNewKey puts the given `key` and `value` into the `skipList` and asserts that the key was not present before.
func setNewKey[K any, V any](t *testing.T, skipList *SkipList[K, V], key K, value V) {
	t.Helper()
	exists, err := skipList.Set(key, value)
	assert.Falsef(t, exists, "Expected key %s to be new.", fmt.Sprint(key))
	assert.NoError(t, err)
}

func TestSkipList_SetGetUpdate(t *testing.T) {
	skipList := NewSkipList[int, string](cmp.Compare)
	setNewKey(t, skipList, 2, "two")
	setNewKey(t, skipList, 1, "one")
	setNewKey(t, skipList, 3, "three")
	assertHasKey(t, skipList, 1, "one")
	assertHasKey(t, skipList, 2, "two")
	assertHasKey(t, skipList, 3, "three")

	exists, err := skipList.Set(2, "TWO")
	assert.NoError(t, err)
	assert.True(t, exists)
	assertHasKey(t, skipList, 2, "TWO")
	assert.Equal(t, 3, skipList.Len())
}

func TestSkipList_Delete(t *testing.T) {
	skipList := NewSkipList[string, int](strings.Compare)
	assert.ErrorIs(t, skipList.Delete("missing"), ErrKeyNotFound)

	setNewKey(t, skipList, "a", 1)
	setNewKey(t, skipList, "b", 2)
	setNewKey(t, skipList, "c", 3)
	assert.NoError(t, skipList.Delete("b"))
	_, err := skipList.Get("b")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, 2, skipList.Len())
	assert.Equal(t, []utils.Pair[string, int]{{Key: "a", Value: 1}, {Key: "c", Value: 3}},
		slices.Collect(skipList.Pairs()))
}

// TestSkipList_AtMatchesSortedOrder cross-checks positional lookups against a sorted slice under random mutations.
func TestSkipList_AtMatchesSortedOrder(t *testing.T) {
	skipList := NewSkipList[int, int](cmp.Compare)
	reference := make(map[int]int)
	rnd := rand.New(rand.NewSource(7))
	for round := range 2_000 {
		key := rnd.Intn(300)
		if rnd.Intn(3) == 0 {
			err := skipList.Delete(key)
			if _, exists := reference[key]; exists {
				assert.NoError(t, err)
				delete(reference, key)
			} else {
				assert.ErrorIs(t, err, ErrKeyNotFound)
			}
		} else {
			_, err := skipList.Set(key, round)
			require.NoError(t, err)
			reference[key] = round
		}
	}

	sortedKeys := make([]int, 0, len(reference))
	for key := range reference {
		sortedKeys = append(sortedKeys, key)
	}
	slices.Sort(sortedKeys)
	require.Equal(t, len(sortedKeys), skipList.Len())
	for index, key := range sortedKeys {
		pair, found := skipList.At(index)
		require.Truef(t, found, "Expected a key at index %d", index)
		assert.Equal(t, key, pair.Key)
		assert.Equal(t, reference[key], pair.Value)
	}
	_, found := skipList.At(len(sortedKeys))
	assert.False(t, found)
	_, found = skipList.At(-1)
	assert.False(t, found)
}

func TestSkipList_Clear(t *testing.T) {
	skipList := NewSkipList[int, int](cmp.Compare)
	for i := range 100 {
		setNewKey(t, skipList, i, i)
	}
	skipList.Clear()
	assert.Zero(t, skipList.Len())
	assert.Empty(t, slices.Collect(skipList.Pairs()))
	setNewKey(t, skipList, 5, 5)
	pair, found := skipList.At(0)
	assert.True(t, found)
	assert.Equal(t, 5, pair.Key)
}
