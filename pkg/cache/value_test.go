package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeValue(t *testing.T) {
	for _, testCase := range []struct {
		name              string
		raw               string
		codec             Codec
		expectedKind      Kind
		expectedInterface any
	}{
		{name: "json_object", raw: `{"a":1}`, codec: JSONCodec{}, expectedKind: Structured,
			expectedInterface: map[string]any{"a": float64(1)}},
		{name: "json_string", raw: `"y"`, codec: JSONCodec{}, expectedKind: Structured, expectedInterface: "y"},
		{name: "json_null", raw: `null`, codec: JSONCodec{}, expectedKind: Structured, expectedInterface: nil},
		{name: "not_json", raw: `hello`, codec: JSONCodec{}, expectedKind: Raw, expectedInterface: "hello"},
		{name: "no_codec", raw: `{"a":1}`, codec: nil, expectedKind: Raw, expectedInterface: `{"a":1}`},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			value := decodeValue(testCase.raw, testCase.codec)
			assert.Equal(t, testCase.expectedKind, value.Kind())
			assert.Equal(t, testCase.expectedInterface, value.Interface())
			assert.Equal(t, testCase.raw, value.String())
			assert.False(t, value.IsAbsent())
		})
	}
}

func TestValue_Absent(t *testing.T) {
	var value Value
	assert.True(t, value.IsAbsent())
	assert.Equal(t, "absent", value.Kind().String())
	assert.Nil(t, value.Interface())
	assert.Empty(t, value.String())
	var target string
	assert.ErrorIs(t, value.Decode(&target), ErrAbsent)
}

func TestValue_Decode(t *testing.T) {
	type profile struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	value := decodeValue(`{"name":"ada","age":36}`, JSONCodec{})
	var decoded profile
	require.NoError(t, value.Decode(&decoded))
	assert.Equal(t, profile{Name: "ada", Age: 36}, decoded)

	assert.ErrorIs(t, decodeValue(`{"name":"ada"}`, nil).Decode(&decoded), ErrSerialization)
	assert.ErrorIs(t, decodeValue(`oops`, JSONCodec{}).Decode(&decoded), ErrSerialization)
}
