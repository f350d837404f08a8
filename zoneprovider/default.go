package zoneprovider

import (
	"errors"
	"sync/atomic"

	"github.com/ngrash/go-tzrules/zonerules"
)

var defaultRegistry atomic.Pointer[Registry]

// Install makes r the default registry of the process. Only the first call
// succeeds; later calls fail with ErrAlreadyInstalled.
//
// Nothing is installed implicitly. Programs install a registry once during
// startup, before any call to Default.
func Install(r *Registry) error {
	if r == nil {
		return errors.New("zoneprovider: install nil registry")
	}
	if !defaultRegistry.CompareAndSwap(nil, r) {
		return ErrAlreadyInstalled
	}
	return nil
}

// Default returns the installed default registry.
func Default() (*Registry, error) {
	r := defaultRegistry.Load()
	if r == nil {
		return nil, ErrNotInstalled
	}
	return r, nil
}

// Rules returns the rules of a zone from the default registry.
func Rules(id string) (*zonerules.RuleSet, error) {
	r, err := Default()
	if err != nil {
		return nil, err
	}
	return r.Rules(id, false)
}

// ZoneIDs returns the zone ids of the default registry, or nil if none is
// installed.
func ZoneIDs() []string {
	r, err := Default()
	if err != nil {
		return nil
	}
	return r.ZoneIDs()
}
