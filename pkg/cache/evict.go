// When the store rejects a write for lack of room, the cache frees space by removing its own entries, earliest
// expiry first, until the removed data records add up to the size of the rejected value. Expired entries hold the
// smallest timestamps and go first; entries without an expiry record read as MaxTimestamp and go last.
//
// Candidates with equal expiries leave in the order the store enumerated them.

package cache

import (
	"cmp"
	"container/heap"
	"time"

	"github.com/nobletooth/offline/pkg/utils"
)

// evictionCandidate is a cache entry considered by expunge.
type evictionCandidate struct {
	key    string // Logical key.
	size   int    // Length of the stored data record.
	expiry int64
	seq    int // Enumeration position, breaks expiry ties.
}

// byExpiry orders candidates by expiry, then by enumeration position.
func byExpiry(x, y *evictionCandidate) int {
	if c := cmp.Compare(x.expiry, y.expiry); c != 0 {
		return c
	}
	return cmp.Compare(x.seq, y.seq)
}

// candidateHeap is a min-heap of eviction candidates.
type candidateHeap struct { // Implements heap.Interface.
	compare  utils.CompareFn[*evictionCandidate]
	elements []*evictionCandidate
}

var _ heap.Interface = (*candidateHeap)(nil)

func (ch *candidateHeap) Len() int {
	return len(ch.elements)
}

func (ch *candidateHeap) Less(i, j int) bool {
	return ch.compare(ch.elements[i], ch.elements[j]) < 0
}

func (ch *candidateHeap) Swap(i, j int) {
	ch.elements[i], ch.elements[j] = ch.elements[j], ch.elements[i]
}

// Push adds the given element `x` to the heap if it is a candidate.
func (ch *candidateHeap) Push(x any) {
	if candidate, ok := x.(*evictionCandidate); !ok {
		utils.RaiseInvariant("cache", "pushed_invalid_type", "An item with invalid type was pushed to eviction heap.")
	} else if candidate == nil {
		utils.RaiseInvariant("cache", "pushed_nil_candidate", "A nil candidate was pushed to eviction heap.")
	} else {
		ch.elements = append(ch.elements, candidate)
	}
}

func (ch *candidateHeap) Pop() any {
	last := ch.elements[len(ch.elements)-1]
	ch.elements = ch.elements[:len(ch.elements)-1]
	return last
}

// collectCandidates snapshots every data record the cache owns along with its size and expiry.
// NOTE: Caller should acquire lock.
func (c *Cache) collectCandidates() *candidateHeap {
	candidates := &candidateHeap{compare: byExpiry, elements: make([]*evictionCandidate, 0, c.store.Len())}
	for index := range c.store.Len() {
		physicalKey, found := c.store.Key(index)
		if !found {
			continue
		}
		logicalKey, isData := logicalKeyOf(physicalKey)
		if !isData {
			continue
		}
		data, _ := c.getItem(physicalKey)
		candidates.elements = append(candidates.elements, &evictionCandidate{
			key: logicalKey, size: len(data), expiry: c.readExpiry(logicalKey), seq: index,
		})
	}
	heap.Init(candidates)
	return candidates
}

// expunge removes entries, earliest expiry first, until the removed data records total at least `targetBytes`
// or no entries remain. It returns how many entries were removed and the size of their data records.
// NOTE: Caller should acquire lock.
func (c *Cache) expunge(targetBytes int) (evicted, freedBytes int) {
	start := time.Now()
	candidates := c.collectCandidates()
	for candidates.Len() > 0 && freedBytes < targetBytes {
		candidate := heap.Pop(candidates).(*evictionCandidate)
		c.warn("Expunged cache entry.", "key", candidate.key, "size", candidate.size, "expiry", candidate.expiry)
		c.removeEntry(candidate.key)
		evicted++
		freedBytes += candidate.size
	}
	cacheEvictedEntries.Add(float64(evicted))
	cacheEvictedBytes.Add(float64(freedBytes))
	c.warn("Expunge finished.", "targetBytes", targetBytes, "evicted", evicted, "freedBytes", freedBytes,
		"took", time.Since(start))
	return evicted, freedBytes
}
