package zoneprovider

import (
	"fmt"
	"maps"
	"slices"

	"github.com/ngrash/go-tzrules/zonerules"
)

// StaticProvider serves rules that never change.
type StaticProvider struct {
	version string
	zones   map[string]*zonerules.RuleSet
}

// NewStaticProvider returns a provider serving the given rules under a
// single version. The map is copied.
func NewStaticProvider(version string, zones map[string]*zonerules.RuleSet) *StaticProvider {
	return &StaticProvider{version: version, zones: maps.Clone(zones)}
}

// Version returns the version of the rules.
func (p *StaticProvider) Version() string { return p.version }

// ZoneIDs implements Provider. The ids are sorted.
func (p *StaticProvider) ZoneIDs() []string {
	return slices.Sorted(maps.Keys(p.zones))
}

// Rules implements Provider. The rules of a static provider may always be
// cached.
func (p *StaticProvider) Rules(id string, _ bool) (*zonerules.RuleSet, error) {
	rs, ok := p.zones[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, id)
	}
	return rs, nil
}

// Versions implements Provider.
func (p *StaticProvider) Versions(id string) ([]Version, error) {
	rs, err := p.Rules(id, true)
	if err != nil {
		return nil, err
	}
	return []Version{{ID: p.version, Rules: rs}}, nil
}

// Refresh implements Provider. It never reports a change.
func (p *StaticProvider) Refresh() (bool, error) { return false, nil }
