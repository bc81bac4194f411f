package cache

import (
	"math"
	"strconv"
)

const (
	// expiryRadix keeps expiry records short: a current timestamp takes 6 characters.
	expiryRadix = 36
	// MaxTimestamp is the largest representable expiry, in seconds since the epoch (epoch + 1e8 days).
	// Entries without an expiry record read as expiring at MaxTimestamp.
	MaxTimestamp int64 = 8_640_000_000_000
	// noTTLOffset is the lifetime of entries written without a TTL. Being half of MaxTimestamp, such entries never
	// expire in practice, yet still sort by insertion time among themselves and before entries that lost their
	// expiry record, so eviction removes the oldest of them first.
	noTTLOffset = float64(MaxTimestamp / 2)
)

func encodeExpiry(timestamp int64) string {
	return strconv.FormatInt(timestamp, expiryRadix)
}

// decodeExpiry parses an expiry record; empty or malformed records decode to MaxTimestamp.
func decodeExpiry(encoded string) int64 {
	if encoded == "" {
		return MaxTimestamp
	}
	timestamp, err := strconv.ParseInt(encoded, expiryRadix, 64)
	if err != nil {
		return MaxTimestamp
	}
	return timestamp
}

// expiryAfter returns the expiry timestamp `ttlSeconds` from now. A NaN or infinite TTL means no TTL was given.
func expiryAfter(clock Clock, ttlSeconds float64) int64 {
	if math.IsNaN(ttlSeconds) || math.IsInf(ttlSeconds, 0) {
		ttlSeconds = noTTLOffset
	}
	return nowPlus(clock, ttlSeconds)
}
