package zoneprovider

import "errors"

var (
	// ErrUnknownZone is returned for a zone id that no provider serves.
	ErrUnknownZone = errors.New("unknown time zone")

	// ErrDuplicateZone is returned by Register if a provider claims a zone
	// id that is already registered.
	ErrDuplicateZone = errors.New("duplicate time zone")

	// ErrNoCache is returned by Rules when forCaching is set and the
	// provider serves rules that may change at any time. Callers should
	// ask again with forCaching unset and use the result without keeping it.
	ErrNoCache = errors.New("rules must not be cached")

	// ErrNotInstalled is returned by Default before Install was called.
	ErrNotInstalled = errors.New("no default registry installed")

	// ErrAlreadyInstalled is returned by Install after the first call.
	ErrAlreadyInstalled = errors.New("default registry already installed")
)
