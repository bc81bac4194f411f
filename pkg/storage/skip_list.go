// This file implements an indexable SkipList. A skip list keeps multiple forward-pointer layers over a sorted
// linked list; each key is promoted to the next level with probability p, forming express lanes that let searches
// skip over large ranges.
//
// Every forward pointer also records its span: the number of level-0 steps it jumps over. Summing spans while
// descending gives a key's rank, and walking spans towards a target rank answers "which key sits at index i" in
// O(log n). The memtable relies on this to serve ordinal enumeration (Key(i)) without materializing its key set.
//
// Properties
// - Expected time complexity for Get/Set/Delete/At: O(log n)
// - Space complexity: O(n)
// - Iteration order is the order defined by the compare function.

package storage

import (
	"errors"
	"iter"
	"math/rand"
	"time"

	"github.com/nobletooth/offline/pkg/utils"
)

const (
	defaultSkipListMaxLevel = 16
	defaultSkipListP        = 0.25
)

// skipListNode represents a node in the skip list.
type skipListNode[K any, V any] struct {
	key      K
	value    V
	forwards []*skipListNode[K, V] // Forward pointers per level (0..level-1).
	spans    []int                 // spans[i] is the number of level-0 nodes forwards[i] jumps over.
}

// SkipList is a probabilistically balanced ordered map that also supports positional lookups.
type SkipList[K any, V any] struct {
	head            *skipListNode[K, V]
	level, maxLevel int
	length          int
	p               float64 // Probability that a node is promoted to the next level.
	rnd             *rand.Rand
	compare         utils.CompareFn[K]
}

// NewSkipList creates a new empty skip list ordered by `compare`.
func NewSkipList[K any, V any](compare utils.CompareFn[K]) *SkipList[K, V] {
	return &SkipList[K, V]{
		head: &skipListNode[K, V]{
			forwards: make([]*skipListNode[K, V], defaultSkipListMaxLevel),
			spans:    make([]int, defaultSkipListMaxLevel),
		},
		level:    1,
		maxLevel: defaultSkipListMaxLevel,
		p:        defaultSkipListP,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		compare:  compare,
	}
}

// randomLevel generates a random level based on the skip list's probability p.
func (s *SkipList[K, V]) randomLevel() int {
	lvl := 1
	for lvl < s.maxLevel && s.rnd.Float64() < s.p {
		lvl++
	}
	return lvl
}

// Len returns the number of keys in the list.
func (s *SkipList[K, V]) Len() int {
	if s == nil {
		return 0
	}
	return s.length
}

// Get returns the value for key or ErrKeyNotFound if the key is absent.
func (s *SkipList[K, V]) Get(key K) (V, error) {
	var zero V
	if s == nil || s.head == nil {
		return zero, ErrKeyNotFound
	}
	n := s.head
	for lvl := s.level - 1; lvl >= 0; lvl-- {
		for next := n.forwards[lvl]; next != nil && s.compare(next.key, key) < 0; next = n.forwards[lvl] {
			n = next
		}
	}
	n = n.forwards[0]
	if n != nil && s.compare(n.key, key) == 0 {
		return n.value, nil
	}
	return zero, ErrKeyNotFound
}

// Set inserts a new key/value or updates an existing one. It returns true if the key already existed.
// While searching, it records both the predecessor and its rank on each level so the spans around the new node
// can be split.
func (s *SkipList[K, V]) Set(key K, value V) ( /*alreadyExists*/ bool, error) {
	if s == nil || s.head == nil {
		return false, errors.New("skip list not initialized")
	}
	update := make([]*skipListNode[K, V], s.maxLevel)
	rank := make([]int, s.maxLevel)
	n := s.head
	for lvl := s.level - 1; lvl >= 0; lvl-- {
		if lvl < s.level-1 {
			rank[lvl] = rank[lvl+1]
		}
		for next := n.forwards[lvl]; next != nil && s.compare(next.key, key) < 0; next = n.forwards[lvl] {
			rank[lvl] += n.spans[lvl]
			n = next
		}
		update[lvl] = n
	}
	if next := n.forwards[0]; next != nil && s.compare(next.key, key) == 0 {
		next.value = value
		return true, nil
	}

	lvl := s.randomLevel()
	if lvl > s.level {
		for i := s.level; i < lvl; i++ {
			rank[i] = 0
			update[i] = s.head
			update[i].spans[i] = s.length // The head's empty top levels span the whole list.
		}
		s.level = lvl
	}
	newNode := &skipListNode[K, V]{
		key: key, value: value,
		forwards: make([]*skipListNode[K, V], lvl),
		spans:    make([]int, lvl),
	}
	for i := 0; i < lvl; i++ {
		newNode.forwards[i] = update[i].forwards[i]
		update[i].forwards[i] = newNode
		stepsToNewNode := rank[0] - rank[i]
		newNode.spans[i] = update[i].spans[i] - stepsToNewNode
		update[i].spans[i] = stepsToNewNode + 1
	}
	// Levels above the new node now jump over one more node.
	for i := lvl; i < s.level; i++ {
		update[i].spans[i]++
	}
	s.length++
	return false, nil
}

// Delete removes key from the list or returns ErrKeyNotFound.
func (s *SkipList[K, V]) Delete(key K) error {
	if s == nil || s.head == nil {
		return ErrKeyNotFound
	}
	update := make([]*skipListNode[K, V], s.maxLevel)
	n := s.head
	for lvl := s.level - 1; lvl >= 0; lvl-- {
		for next := n.forwards[lvl]; next != nil && s.compare(next.key, key) < 0; next = n.forwards[lvl] {
			n = next
		}
		update[lvl] = n
	}
	target := n.forwards[0]
	if target == nil || s.compare(target.key, key) != 0 {
		return ErrKeyNotFound
	}
	for i := 0; i < s.level; i++ {
		if update[i].forwards[i] == target {
			update[i].spans[i] += target.spans[i] - 1
			update[i].forwards[i] = target.forwards[i]
		} else {
			update[i].spans[i]--
		}
	}
	// Decrease level if the top levels are now empty.
	for s.level > 1 && s.head.forwards[s.level-1] == nil {
		s.head.spans[s.level-1] = 0
		s.level--
	}
	s.length--
	return nil
}

// At returns the pair at the zero-based position `index` in key order.
func (s *SkipList[K, V]) At(index int) (utils.Pair[K, V], bool) {
	if s == nil || index < 0 || index >= s.length {
		return utils.Pair[K, V]{}, false
	}
	targetRank := index + 1 // The head has rank 0.
	traversed := 0
	n := s.head
	for lvl := s.level - 1; lvl >= 0; lvl-- {
		for n.forwards[lvl] != nil && traversed+n.spans[lvl] <= targetRank {
			traversed += n.spans[lvl]
			n = n.forwards[lvl]
		}
		if traversed == targetRank {
			return utils.Pair[K, V]{Key: n.key, Value: n.value}, true
		}
	}
	utils.RaiseInvariant("skip_list", "rank_not_reached", "Failed to reach an in-range rank.",
		"index", index, "length", s.length)
	return utils.Pair[K, V]{}, false
}

// Pairs yields every key/value in key order. The list must not be mutated while iterating.
func (s *SkipList[K, V]) Pairs() iter.Seq[utils.Pair[K, V]] {
	return func(yield func(utils.Pair[K, V]) bool) {
		if s == nil || s.head == nil {
			return
		}
		for n := s.head.forwards[0]; n != nil; n = n.forwards[0] {
			if !yield(utils.Pair[K, V]{Key: n.key, Value: n.value}) {
				return
			}
		}
	}
}

// Clear drops every node.
func (s *SkipList[K, V]) Clear() {
	clear(s.head.forwards)
	clear(s.head.spans)
	s.level = 1
	s.length = 0
}
