// Nothing to see here in this module. Couldn't find a better place for Pair.

package utils

type Pair[K any, V any] struct {
	Key   K
	Value V
}

// StringPair is a physical store record.
type StringPair Pair[string /*key*/, string /*value*/]
