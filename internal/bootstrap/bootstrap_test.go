package bootstrap

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngrash/go-tzrules/internal/config"
	"github.com/ngrash/go-tzrules/sqlstore"
	"github.com/ngrash/go-tzrules/tzdb"
	"github.com/ngrash/go-tzrules/tzif"
	"github.com/ngrash/go-tzrules/zoneprovider"
	"github.com/ngrash/go-tzrules/zonerules"
)

func writeDB(t *testing.T, zones map[string]*zonerules.RuleSet) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tzdb.dat")
	w := &tzdb.Writer{}
	require.NoError(t, w.AddVersion("2024a", zones))
	require.NoError(t, w.WriteFile(path))
	return path
}

func fixed(t *testing.T, off zonerules.Offset) *zonerules.RuleSet {
	t.Helper()
	rs, err := zonerules.Fixed(off)
	require.NoError(t, err)
	return rs
}

func TestOpenBundled(t *testing.T) {
	extra := writeDB(t, map[string]*zonerules.RuleSet{"Test/Extra": fixed(t, 3600)})
	env, err := Open(&config.Config{Provider: config.ProviderBundled, ExtraDatabases: []string{extra}}, nil)
	require.NoError(t, err)
	defer env.Close()

	assert.Contains(t, env.Registry.ZoneIDs(), "Europe/Berlin")
	rs, err := env.Registry.Rules("Test/Extra", true)
	require.NoError(t, err)
	assert.Equal(t, zonerules.Offset(3600), rs.Offset(time.Now()))
}

func TestOpenTZDB(t *testing.T) {
	path := writeDB(t, map[string]*zonerules.RuleSet{"Test/Zone": fixed(t, -3600)})
	env, err := Open(&config.Config{Provider: config.ProviderTZDB, TZDBPath: path}, nil)
	require.NoError(t, err)
	defer env.Close()
	assert.Equal(t, []string{"Test/Zone"}, env.Registry.ZoneIDs())
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.sqlite")
	s, err := sqlstore.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.AddVersion(context.Background(), "2024a", map[string]*zonerules.RuleSet{"Test/Zone": fixed(t, 0)}))
	require.NoError(t, s.Close())

	env, err := Open(&config.Config{Provider: config.ProviderSQLite, SQLitePath: path}, nil)
	require.NoError(t, err)
	_, err = env.Registry.Rules("Test/Zone", true)
	assert.ErrorIs(t, err, zoneprovider.ErrNoCache)
	_, err = env.Registry.Rules("Test/Zone", false)
	assert.NoError(t, err)
	assert.NoError(t, env.Close())
}

func TestOpenZoneinfo(t *testing.T) {
	dir := t.TempDir()
	f, err := tzif.FromRuleSet(fixed(t, 5*3600))
	require.NoError(t, err)
	data, err := f.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Test"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Test", "Zone"), data, 0o644))

	env, err := Open(&config.Config{Provider: config.ProviderZoneinfo, ZoneinfoDir: dir}, nil)
	require.NoError(t, err)
	defer env.Close()
	assert.Equal(t, []string{"Test/Zone"}, env.Registry.ZoneIDs())
	rs, err := env.Registry.Rules("Test/Zone", true)
	require.NoError(t, err)
	assert.Equal(t, zonerules.Offset(5*3600), rs.Offset(time.Now()))
}

func TestOpenErrors(t *testing.T) {
	overlap := writeDB(t, map[string]*zonerules.RuleSet{"Europe/Berlin": fixed(t, 3600)})
	tests := []struct {
		name    string
		cfg     config.Config
		wantErr error
	}{
		{"missing database", config.Config{Provider: config.ProviderTZDB, TZDBPath: filepath.Join(t.TempDir(), "missing.dat")}, os.ErrNotExist},
		{"overlapping extra", config.Config{Provider: config.ProviderBundled, ExtraDatabases: []string{overlap}}, zoneprovider.ErrDuplicateZone},
		{"unknown provider", config.Config{Provider: "cloud"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(&tt.cfg, nil)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestFailReportsCloseErrors(t *testing.T) {
	errBuild := errors.New("build failed")
	errClose := errors.New("close failed")
	closed := 0
	env := &Env{closers: []io.Closer{
		closerFunc(func() error { closed++; return errClose }),
		closerFunc(func() error { closed++; return nil }),
	}}

	err := env.fail(errBuild)
	assert.ErrorIs(t, err, errBuild)
	assert.ErrorIs(t, err, errClose)
	assert.Equal(t, 2, closed, "every closer runs")

	assert.NoError(t, env.Close(), "closers run once")
	assert.Equal(t, 2, closed)
}

func TestOpenSQLiteClosedOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.sqlite")
	s, err := sqlstore.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.AddVersion(context.Background(), "2024a", map[string]*zonerules.RuleSet{"Test/Zone": fixed(t, 0)}))
	require.NoError(t, s.Close())
	overlap := writeDB(t, map[string]*zonerules.RuleSet{"Test/Zone": fixed(t, 3600)})

	_, err = Open(&config.Config{Provider: config.ProviderSQLite, SQLitePath: path, ExtraDatabases: []string{overlap}}, nil)
	require.ErrorIs(t, err, zoneprovider.ErrDuplicateZone)

	// The store was released, so it can be opened and written again.
	s, err = sqlstore.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.AddVersion(context.Background(), "2024b", map[string]*zonerules.RuleSet{"Test/Zone": fixed(t, 0)}))
	require.NoError(t, s.Close())
}

func TestInstall(t *testing.T) {
	env, err := Install(&config.Config{Provider: config.ProviderBundled}, nil)
	require.NoError(t, err)
	defer env.Close()

	rs, err := zoneprovider.Rules("Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, zonerules.Offset(9*3600), rs.Offset(time.Now()))

	_, err = Install(&config.Config{Provider: config.ProviderBundled}, nil)
	assert.ErrorIs(t, err, zoneprovider.ErrAlreadyInstalled)
}
