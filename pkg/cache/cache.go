// Offline keeps an expiring cache inside a quota-limited string store that it shares with unrelated data.
// Each entry is a pair of records: the serialized value under a marked data key, and its expiry (whole seconds
// since the epoch, base 36) under the same key with an expiry suffix. Reads never fail; a missing or corrupt
// expiry record only makes an entry look like it never expires.
//
// When the store runs out of room, the cache expunges its own entries, earliest expiry first, and retries the
// write once. Write failures are never returned to callers: the write is abandoned and, when warnings are
// enabled, logged.

package cache

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nobletooth/offline/pkg/storage"
)

var defaultWarnings = flag.Bool("cache_warnings", false,
	"Whether caches log their diagnostics (failed writes, evictions) by default.")

var (
	ErrUnsupported      = errors.New("store does not accept writes")
	ErrSerialization    = errors.New("value could not be serialized")
	ErrCapacityExceeded = errors.New("store capacity exceeded")
	ErrStoreFailure     = errors.New("store write failed")
	ErrExpiryWrite      = errors.New("expiry record write failed")
)

// Cache is an expiring cache over a storage.KeyValueHolder. It is safe for concurrent use; writers to the same
// store that bypass this Cache are not coordinated with.
type Cache struct {
	store    storage.KeyValueHolder
	codec    Codec // Nil means only string values can be stored.
	clock    Clock
	logger   *slog.Logger
	warnings atomic.Bool

	probeOnce sync.Once
	supported bool
	// mux serializes operations, making an eviction scan and the removals that follow it atomic.
	mux sync.Mutex
}

type Option func(*Cache)

// WithCodec replaces the default JSONCodec. A nil codec restricts the cache to string values.
func WithCodec(codec Codec) Option {
	return func(c *Cache) { c.codec = codec }
}

func WithClock(clock Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithLogger sets where diagnostics go once warnings are enabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithWarnings overrides the -cache_warnings default.
func WithWarnings(enabled bool) Option {
	return func(c *Cache) { c.warnings.Store(enabled) }
}

// New creates a cache over `store`. The store is probed lazily, on the first operation.
func New(store storage.KeyValueHolder, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, errors.New("expected a non-nil store")
	}
	c := &Cache{store: store, codec: JSONCodec{}, clock: NewSystemClock(), logger: slog.Default()}
	c.warnings.Store(*defaultWarnings)
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		return nil, errors.New("expected a non-nil clock")
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// EnableWarnings toggles diagnostic logging.
func (c *Cache) EnableWarnings(enabled bool) {
	c.warnings.Store(enabled)
}

func (c *Cache) warn(msg string, args ...any) {
	if c.warnings.Load() {
		c.logger.Warn(msg, args...)
	}
}

// Supported reports whether the store accepts writes. The store is probed once per Cache by writing and removing
// a reserved key; every operation is a no-op on an unsupported store.
func (c *Cache) Supported() bool {
	c.probeOnce.Do(func() {
		if err := c.store.Set(probeKey, probeKey); err != nil {
			c.warn("Cache not supported.", "error", fmt.Errorf("%w: %w", ErrUnsupported, err))
			return
		}
		c.store.Delete(probeKey)
		c.supported = true
	})
	return c.supported
}

// getItem reads the record at `physicalKey`. Read failures other than absence are logged and read as absent.
func (c *Cache) getItem(physicalKey string) (string, bool) {
	value, err := c.store.Get(physicalKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return "", false
	} else if err != nil {
		c.warn("Store read failed.", "error", err)
		return "", false
	}
	return value, true
}

// setItem removes `physicalKey` before writing it, so an overwrite never needs room for both values at once.
func (c *Cache) setItem(physicalKey, value string) error {
	c.store.Delete(physicalKey)
	return c.store.Set(physicalKey, value)
}

// readExpiry returns the expiry of `logicalKey`, MaxTimestamp when its record is missing or malformed.
func (c *Cache) readExpiry(logicalKey string) int64 {
	encoded, found := c.getItem(expiryKey(logicalKey))
	if !found {
		return MaxTimestamp
	}
	return decodeExpiry(encoded)
}

// NOTE: Caller should acquire lock.
func (c *Cache) isFresh(logicalKey string) bool {
	if _, found := c.getItem(dataKey(logicalKey)); !found {
		return false
	}
	return now(c.clock) < c.readExpiry(logicalKey)
}

// NOTE: Caller should acquire lock.
func (c *Cache) removeEntry(logicalKey string) {
	c.store.Delete(dataKey(logicalKey))
	c.store.Delete(expiryKey(logicalKey))
}

func (c *Cache) serialize(value any) (string, error) {
	if c.codec == nil {
		if str, isString := value.(string); isString {
			return str, nil
		}
		return "", fmt.Errorf("%w: no codec for %T", ErrSerialization, value)
	}
	serialized, err := c.codec.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return serialized, nil
}

// classifyWrite maps a failed store write onto the cache's sentinels.
func classifyWrite(err error) error {
	if storage.Classify(err) == storage.FailureCapacityExceeded {
		return ErrCapacityExceeded
	}
	return ErrStoreFailure
}

// write stores `value` under `key`, expunging other entries once if the store is full.
// The entry is usable even when only the expiry record fails, it just never expires.
// NOTE: Caller should acquire lock.
func (c *Cache) write(key string, value any, ttlSeconds float64) error {
	serialized, err := c.serialize(value)
	if err != nil {
		return err
	}
	expiry := encodeExpiry(expiryAfter(c.clock, ttlSeconds))
	if err := c.setItem(dataKey(key), serialized); err != nil {
		if storage.Classify(err) != storage.FailureCapacityExceeded {
			return fmt.Errorf("%w: insert failed [%s]: %w", ErrStoreFailure, key, err)
		}
		evicted, freedBytes := c.expunge(len(serialized))
		if err := c.setItem(dataKey(key), serialized); err != nil {
			return fmt.Errorf("%w: insert failed [%s] after expunging %d entries (%d bytes): %w",
				classifyWrite(err), key, evicted, freedBytes, err)
		}
	}
	if err := c.setItem(expiryKey(key), expiry); err != nil {
		return fmt.Errorf("%w: expiry insert failed [%s]: %w", ErrExpiryWrite, key, err)
	}
	return nil
}

// writeFailureKind is the metric label of a failed write.
func writeFailureKind(err error) string {
	switch {
	case errors.Is(err, ErrSerialization):
		return "serialization"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrExpiryWrite):
		return "expiry_write"
	default:
		return "store_failure"
	}
}

func (c *Cache) set(key string, value any, ttlSeconds float64) {
	if !c.Supported() {
		return
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	if err := c.write(key, value, ttlSeconds); err != nil {
		cacheWriteFailures.WithLabelValues(writeFailureKind(err)).Inc()
		c.warn("Cache write failed.", "key", key, "error", err)
	}
}

// Set stores `value` under `key` without a TTL. Such entries never expire in practice but are still evicted,
// oldest first, when the store runs out of room.
func (c *Cache) Set(key string, value any) {
	c.set(key, value, math.Inf(1))
}

// SetWithTTL stores `value` under `key` for `ttl`, truncated to whole seconds. A non-positive TTL stores an
// entry that is already stale.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.set(key, value, ttl.Seconds())
}

// Fresh reports whether `key` has a data record and has not expired.
func (c *Cache) Fresh(key string) bool {
	if !c.Supported() {
		return false
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.isFresh(key)
}

// Get returns the stored value of `key`, stale or not.
func (c *Cache) Get(key string) Value {
	return c.get(key, false /*expungeIfStale*/)
}

// GetFresh returns the value of `key` only while it is fresh; a stale entry is removed and reads as absent.
func (c *Cache) GetFresh(key string) Value {
	return c.get(key, true /*expungeIfStale*/)
}

func (c *Cache) get(key string, expungeIfStale bool) Value {
	if !c.Supported() {
		return Value{}
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	if expungeIfStale && !c.isFresh(key) {
		c.removeEntry(key)
		cacheLookups.WithLabelValues("stale").Inc()
		return Value{}
	}
	raw, found := c.getItem(dataKey(key))
	if !found {
		cacheLookups.WithLabelValues("miss").Inc()
		return Value{}
	}
	cacheLookups.WithLabelValues("hit").Inc()
	return decodeValue(raw, c.codec)
}

// Expire marks a fresh `key` as expiring now, keeping its value readable through Get.
func (c *Cache) Expire(key string) {
	if !c.Supported() {
		return
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	if !c.isFresh(key) {
		return
	}
	if err := c.setItem(expiryKey(key), encodeExpiry(now(c.clock))); err != nil {
		c.warn("Cache expire failed.", "key", key, "error", err)
	}
}

// Remove deletes both records of `key` and reports whether it had a data record, stale or not.
// Removing an absent key is a no-op.
func (c *Cache) Remove(key string) bool {
	if !c.Supported() {
		return false
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	_, existed := c.getItem(dataKey(key))
	c.removeEntry(key)
	return existed
}

// Flush removes every entry whose key starts with `prefix`; an empty prefix removes all entries.
// Records that do not belong to the cache are left alone.
func (c *Cache) Flush(prefix string) {
	if !c.Supported() {
		return
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	physicalPrefix := dataKey(prefix)
	// Walk backwards since removals shift the following indexes.
	for index := c.store.Len() - 1; index >= 0; index-- {
		if physicalKey, found := c.store.Key(index); found && strings.HasPrefix(physicalKey, physicalPrefix) {
			c.store.Delete(physicalKey)
		}
	}
}

// Keys lists the keys of entries starting with `prefix`, stale ones included, in store enumeration order.
func (c *Cache) Keys(prefix string) []string {
	if !c.Supported() {
		return nil
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	keys := make([]string, 0)
	for index := range c.store.Len() {
		physicalKey, found := c.store.Key(index)
		if !found {
			continue
		}
		if logicalKey, isData := logicalKeyOf(physicalKey); isData && strings.HasPrefix(logicalKey, prefix) {
			keys = append(keys, logicalKey)
		}
	}
	return keys
}
