// Package zoneprovider maps time zone ids to the providers that serve their
// rules.
//
// A [Registry] holds any number of providers. Each zone id belongs to exactly
// one of them; registering a provider that claims an id already present
// fails as a whole. A process may install one registry as its default with
// [Install] during startup and retrieve it with [Default].
package zoneprovider

import "github.com/ngrash/go-tzrules/zonerules"

// Provider serves the rules of a fixed set of zone ids.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// ZoneIDs returns the ids served by the provider. The set must not
	// change over the lifetime of the provider.
	ZoneIDs() []string

	// Rules returns the current rules of the zone. If forCaching is set and
	// the rules may change without notice, Rules returns ErrNoCache.
	Rules(id string, forCaching bool) (*zonerules.RuleSet, error)

	// Versions returns the rules of the zone in every version known to the
	// provider, oldest first. The last entry is the current version.
	Versions(id string) ([]Version, error)

	// Refresh reloads the provider's data and reports whether it changed.
	Refresh() (bool, error)
}

// Version is the rules of a zone as published in one version of a
// database, such as "2024b".
type Version struct {
	ID    string
	Rules *zonerules.RuleSet
}
