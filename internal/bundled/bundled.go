// Package bundled provides the zones that are available when no database
// is configured. They are compiled from an embedded tz source on first use.
package bundled

import (
	"embed"
	"log/slog"
	"sync"

	"github.com/ngrash/go-tzrules/tzcompile"
	"github.com/ngrash/go-tzrules/zoneprovider"
	"github.com/ngrash/go-tzrules/zonerules"
)

// Version is the version id of the bundled rules.
const Version = "bundled"

//go:embed zones.tz
var source embed.FS

var compiled = sync.OnceValues(func() (map[string]*zonerules.RuleSet, error) {
	return tzcompile.CompileFS(source, []string{"zones.tz"})
})

// Provider returns a provider serving the bundled zones.
func Provider(logger *slog.Logger) (*zoneprovider.StaticProvider, error) {
	zones, err := compiled()
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Debug("bundled zones compiled", "zones", len(zones))
	}
	return zoneprovider.NewStaticProvider(Version, zones), nil
}
