package cache

import "strings"

// The cache shares a flat key space with unrelated data. Every record it writes starts with keyPrefix, and
// expiry records additionally end with expirySuffix. Both are fixed for compatibility with existing stores.
const (
	keyPrefix    = "\u2023\u00a0\u00a0" // "‣" followed by two no-break spaces.
	expirySuffix = "\u00a0\u00a0\u03bb" // Two no-break spaces followed by "λ".
	// probeKey is written and removed once to detect whether the store accepts writes at all.
	probeKey = keyPrefix + "\u2203" + expirySuffix
)

// dataKey returns the physical key of the data record for `logicalKey`.
func dataKey(logicalKey string) string {
	return keyPrefix + logicalKey
}

// expiryKey returns the physical key of the expiry record paired with `logicalKey`.
func expiryKey(logicalKey string) string {
	return keyPrefix + logicalKey + expirySuffix
}

// owns reports whether `physicalKey` belongs to the cache. With `dataOnly`, expiry records are rejected.
func owns(physicalKey string, dataOnly bool) bool {
	if !strings.HasPrefix(physicalKey, keyPrefix) {
		return false
	}
	return !dataOnly || !strings.HasSuffix(physicalKey, expirySuffix)
}

// logicalKeyOf maps a physical data key back to its logical key.
func logicalKeyOf(physicalKey string) (string, bool) {
	if !owns(physicalKey, true /*dataOnly*/) {
		return "", false
	}
	return strings.TrimPrefix(physicalKey, keyPrefix), true
}
