package history

import "errors"

var (
	// ErrInvalidEntry is returned when a record lacks a thing id or name.
	ErrInvalidEntry = errors.New("history: thing id and property name are required")

	// ErrUnsupportedValue is returned for values that have no stored kind.
	ErrUnsupportedValue = errors.New("history: unsupported value type")
)
