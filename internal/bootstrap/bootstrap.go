// Package bootstrap builds the registry described by a config.Config.
package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ngrash/go-tzrules/internal/bundled"
	"github.com/ngrash/go-tzrules/internal/config"
	"github.com/ngrash/go-tzrules/internal/logging"
	"github.com/ngrash/go-tzrules/sqlstore"
	"github.com/ngrash/go-tzrules/tzdb"
	"github.com/ngrash/go-tzrules/tzif"
	"github.com/ngrash/go-tzrules/zoneprovider"
)

// Env is a registry together with the resources backing it.
type Env struct {
	Registry *zoneprovider.Registry
	closers  []io.Closer
}

// Close releases the databases opened for the registry.
func (e *Env) Close() error {
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c.Close())
	}
	e.closers = nil
	return errors.Join(errs...)
}

// fail releases the resources of a registry that could not be built and
// returns err together with any error from closing them.
func (e *Env) fail(err error) error {
	return errors.Join(err, e.Close())
}

// Open builds a registry from cfg. The configured provider is registered
// first, then each extra database.
func Open(cfg *config.Config, logger *slog.Logger) (*Env, error) {
	logger = logging.OrDiscard(logger)
	env := &Env{Registry: zoneprovider.NewRegistry(zoneprovider.WithLogger(logger))}

	var (
		p   zoneprovider.Provider
		err error
	)
	switch cfg.Provider {
	case config.ProviderBundled:
		p, err = bundled.Provider(logger)
	case config.ProviderTZDB:
		p, err = tzdb.NewFileProvider(cfg.TZDBPath, logger)
	case config.ProviderZoneinfo:
		p, err = tzif.NewDirProvider(cfg.ZoneinfoDir, logger)
	case config.ProviderSQLite:
		var s *sqlstore.Store
		if s, err = sqlstore.Open(cfg.SQLitePath, sqlstore.WithLogger(logger)); err == nil {
			env.closers = append(env.closers, s)
			p = s
		}
	default:
		err = fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if err == nil {
		err = env.Registry.Register(p)
	}
	if err != nil {
		return nil, env.fail(fmt.Errorf("provider %s: %w", cfg.Provider, err))
	}

	for _, path := range cfg.ExtraDatabases {
		fp, err := tzdb.NewFileProvider(path, logger)
		if err == nil {
			err = env.Registry.Register(fp)
		}
		if err != nil {
			return nil, env.fail(fmt.Errorf("extra database %s: %w", path, err))
		}
	}
	logger.Debug("registry built", "provider", cfg.Provider, "zones", len(env.Registry.ZoneIDs()))
	return env, nil
}

// Install builds a registry from cfg and makes it the process default.
// It fails with zoneprovider.ErrAlreadyInstalled if a default exists.
func Install(cfg *config.Config, logger *slog.Logger) (*Env, error) {
	if _, err := zoneprovider.Default(); err == nil {
		return nil, zoneprovider.ErrAlreadyInstalled
	}
	env, err := Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := zoneprovider.Install(env.Registry); err != nil {
		return nil, env.fail(err)
	}
	return env, nil
}
