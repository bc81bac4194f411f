package cache

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrAbsent is returned when decoding a Value that was not found.
var ErrAbsent = errors.New("value is absent")

// Codec turns structured values into the store's string representation and back.
type Codec interface {
	Marshal(value any) (string, error)
	Unmarshal(data string, target any) error
}

// JSONCodec is the default Codec.
type JSONCodec struct{} // Implements Codec.

var _ Codec = JSONCodec{}

func (JSONCodec) Marshal(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (JSONCodec) Unmarshal(data string, target any) error {
	return json.Unmarshal([]byte(data), target)
}

// Kind tells how a Value was read from the store.
type Kind uint8

const (
	Absent     Kind = iota // No record for the key.
	Raw                    // A record that the codec could not decode, or no codec was configured.
	Structured             // A record decoded by the codec.
)

func (k Kind) String() string {
	switch k {
	case Absent:
		return "absent"
	case Raw:
		return "raw"
	case Structured:
		return "structured"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is the result of a cache read.
type Value struct {
	kind    Kind
	raw     string // The stored string, as found in the store.
	decoded any    // Generic decoding of raw; only set for Structured values.
	codec   Codec
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsAbsent() bool {
	return v.kind == Absent
}

// String returns the stored string; empty for absent values.
func (v Value) String() string {
	return v.raw
}

// Interface returns the decoded value for Structured values, the stored string for Raw ones and nil otherwise.
// Decoded JSON objects come back as map[string]any and numbers as float64.
func (v Value) Interface() any {
	switch v.kind {
	case Raw:
		return v.raw
	case Structured:
		return v.decoded
	default:
		return nil
	}
}

// Decode unmarshals the stored string into `target` using the codec the value was read with.
func (v Value) Decode(target any) error {
	switch {
	case v.kind == Absent:
		return ErrAbsent
	case v.codec == nil:
		return fmt.Errorf("%w: no codec configured", ErrSerialization)
	}
	if err := v.codec.Unmarshal(v.raw, target); err != nil {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return nil
}

// decodeValue wraps a stored string, falling back to Raw when it does not decode.
func decodeValue(raw string, codec Codec) Value {
	if codec == nil {
		return Value{kind: Raw, raw: raw}
	}
	var decoded any
	if err := codec.Unmarshal(raw, &decoded); err != nil {
		return Value{kind: Raw, raw: raw, codec: codec}
	}
	return Value{kind: Structured, raw: raw, decoded: decoded, codec: codec}
}
