// Offline sits on top of a synchronous, string-only key-value store with a vendor-defined quota, modeled after
// the browser's local storage. This module defines that contract and turns the vendor-specific write failures
// into a closed set of failure kinds, so nothing above the store inspects raw error names.

package storage

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrKeyNotFound = errors.New("key was not found")
	// ErrCapacityExceeded lets adapters that already know a failure is quota related skip the vendor names.
	ErrCapacityExceeded = errors.New("storage capacity exceeded")
)

// KeyValueHolder is a flat string key space with ordinal enumeration.
// Keys returned by Key(0..Len()-1) shift when entries are removed, so callers removing while enumerating must walk
// the indexes backwards.
type KeyValueHolder interface {
	Get(key string) (string, error) // Returns ErrKeyNotFound if the key is absent.
	Set(key, value string) error    // May fail with a capacity error, see Classify.
	Delete(key string)              // Deleting an absent key is a no-op.
	Clear()
	Len() int
	Key(index int) (string, bool)
}

// Vendor spellings of the quota error, all treated as FailureCapacityExceeded.
const (
	QuotaExceededErr       = "QUOTA_EXCEEDED_ERR"
	NSErrorDomQuotaReached = "NS_ERROR_DOM_QUOTA_REACHED"
	QuotaExceededError     = "QuotaExceededError"
)

var capacityErrorNames = []string{QuotaExceededErr, NSErrorDomQuotaReached, QuotaExceededError}

// NamedError is a store failure identified by a vendor-defined name.
type NamedError struct {
	Name string
	Msg  string
}

func (e *NamedError) Error() string {
	if e.Msg == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Msg)
}

// FailureKind is the closed classification of store write failures.
type FailureKind uint8

const (
	FailureNone FailureKind = iota
	FailureCapacityExceeded
	FailureStore
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureCapacityExceeded:
		return "capacity_exceeded"
	case FailureStore:
		return "store_failure"
	default:
		return fmt.Sprintf("failure_kind(%d)", uint8(k))
	}
}

// Classify maps a store error onto its FailureKind. Unrecognized errors are never capacity errors.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	if errors.Is(err, ErrCapacityExceeded) {
		return FailureCapacityExceeded
	}
	var namedErr *NamedError
	if errors.As(err, &namedErr) && slices.Contains(capacityErrorNames, namedErr.Name) {
		return FailureCapacityExceeded
	}
	return FailureStore
}
