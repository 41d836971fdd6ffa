package marshaler

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

var (
	// String marshals and unmarshals the built-in string type by performing a
	// Go type-conversion.
	String = New(
		func(v string) ([]byte, error) {
			return []byte(v), nil
		},
		func(data []byte) (string, error) {
			return string(data), nil
		},
	)

	// Uint64 marshals and unmarshals the built-in uint64 type as an 8-byte
	// big-endian integer.
	Uint64 = New(
		func(v uint64) ([]byte, error) {
			return binary.BigEndian.AppendUint64(nil, v), nil
		},
		func(data []byte) (uint64, error) {
			if len(data) != 8 {
				return 0, fmt.Errorf("cannot unmarshal uint64: expected 8 bytes, got %d", len(data))
			}
			return binary.BigEndian.Uint64(data), nil
		},
	)

	// DecimalInt64 marshals and unmarshals the built-in int64 type as a base-10
	// ASCII string, which is how upstream keyword models publish integer
	// values.
	DecimalInt64 = New(
		func(v int64) ([]byte, error) {
			return strconv.AppendInt(nil, v, 10), nil
		},
		func(data []byte) (int64, error) {
			return strconv.ParseInt(string(data), 10, 64)
		},
	)
)
