package senml

import "errors"

// Domain-specific errors for SenML encoding and decoding.
var (
	// ErrInvalidName is returned when a record name is empty.
	ErrInvalidName = errors.New("senml: name must be a non-empty string")

	// ErrMalformed is returned when a payload is not a SenML pack.
	ErrMalformed = errors.New("senml: malformed payload")
)
