package zoneprovider

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/ngrash/go-tzrules/internal/logging"
	"github.com/ngrash/go-tzrules/zonerules"
)

// Registry maps zone ids to providers. Registrations are never undone.
//
// The zero value is an empty registry ready to use.
type Registry struct {
	logger *slog.Logger

	mu        sync.RWMutex
	providers []Provider
	zones     map[string]Provider
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registration and refresh events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) log() *slog.Logger {
	return logging.OrDiscard(r.logger)
}

// Register adds p and all of its zone ids. If any id is empty, repeated
// within p or already registered, Register fails with ErrDuplicateZone and
// the registry is left unchanged.
func (r *Registry) Register(p Provider) error {
	ids := p.ZoneIDs()

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(ids))
	var errs []error
	for _, id := range ids {
		switch {
		case id == "":
			errs = append(errs, fmt.Errorf("%w: empty zone id", ErrDuplicateZone))
		case seen[id]:
			errs = append(errs, fmt.Errorf("%w: %q listed twice", ErrDuplicateZone, id))
		case r.zones[id] != nil:
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateZone, id))
		}
		seen[id] = true
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		r.log().Warn("provider rejected", "zones", len(ids), "err", err)
		return err
	}

	if r.zones == nil {
		r.zones = make(map[string]Provider)
	}
	for _, id := range ids {
		r.zones[id] = p
	}
	r.providers = append(r.providers, p)
	r.log().Debug("provider registered", "zones", len(ids), "providers", len(r.providers))
	return nil
}

func (r *Registry) provider(id string) (Provider, error) {
	r.mu.RLock()
	p := r.zones[id]
	r.mu.RUnlock()
	if p == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, id)
	}
	return p, nil
}

// ZoneIDs returns the sorted ids of all registered zones.
func (r *Registry) ZoneIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.zones))
}

// Rules returns the rules of the zone from the provider that owns it.
// See Provider.Rules for the meaning of forCaching.
func (r *Registry) Rules(id string, forCaching bool) (*zonerules.RuleSet, error) {
	p, err := r.provider(id)
	if err != nil {
		return nil, err
	}
	return p.Rules(id, forCaching)
}

// Versions returns the version history of the zone, oldest first.
func (r *Registry) Versions(id string) ([]Version, error) {
	p, err := r.provider(id)
	if err != nil {
		return nil, err
	}
	return p.Versions(id)
}

// Refresh refreshes every provider and reports whether any of them changed.
// All providers are refreshed even if some fail; the failures are joined.
func (r *Registry) Refresh() (bool, error) {
	r.mu.RLock()
	providers := slices.Clone(r.providers)
	r.mu.RUnlock()

	changed := false
	var errs []error
	for i, p := range providers {
		c, err := p.Refresh()
		if err != nil {
			r.log().Error("refresh failed", "provider", i, "err", err)
			errs = append(errs, fmt.Errorf("refresh provider %d: %w", i, err))
			continue
		}
		if c {
			r.log().Info("provider changed", "provider", i)
		}
		changed = changed || c
	}
	return changed, errors.Join(errs...)
}
