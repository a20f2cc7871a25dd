package canonical

import "errors"

var (
	// ErrSerialization is returned when a payload holds a value that has no
	// JSON representation (functions, channels, non-finite floats, cycles).
	ErrSerialization = errors.New("canonical: payload cannot be serialized")

	// ErrNotObject is returned when decoding a Payload from a JSON document
	// whose top-level value is not an object.
	ErrNotObject = errors.New("canonical: payload must be a JSON object")
)

var errCycle = errors.New("encountered a cycle")
