package zonerules

import "errors"

var (
	// ErrInvalidArgument is returned when a value cannot be constructed from
	// the given arguments. Nothing is constructed in that case.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMalformedData is returned when encoded data is truncated, carries
	// an unknown tag, or decodes to a value that fails validation.
	ErrMalformedData = errors.New("malformed data")
)
