package tzdb

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/ngrash/go-tzrules/internal/logging"
	"github.com/ngrash/go-tzrules/zoneprovider"
	"github.com/ngrash/go-tzrules/zonerules"
)

// FileProvider serves the database at a path and reloads it on Refresh
// when the file content changed.
//
// The zone ids reported by ZoneIDs are those of the first load, since a
// registry does not learn about ids added later. Zones removed by a reload
// fail with zoneprovider.ErrUnknownZone.
type FileProvider struct {
	path   string
	logger *slog.Logger
	ids    []string

	mu     sync.RWMutex
	db     *DB
	digest [32]byte
}

var _ zoneprovider.Provider = (*FileProvider)(nil)

// NewFileProvider loads the database at path.
func NewFileProvider(path string, logger *slog.Logger) (*FileProvider, error) {
	p := &FileProvider{path: path, logger: logging.OrDiscard(logger)}
	db, digest, err := p.load()
	if err != nil {
		return nil, err
	}
	p.db, p.digest, p.ids = db, digest, db.ZoneIDs()
	p.logger.Info("database loaded", "path", path, "version", db.Version(), "zones", len(p.ids))
	return p, nil
}

func (p *FileProvider) load() (*DB, [32]byte, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, [32]byte{}, err
	}
	db, err := Load(bytes.NewReader(data), WithLogger(p.logger))
	if err != nil {
		return nil, [32]byte{}, fmt.Errorf("%s: %w", p.path, err)
	}
	return db, blake3.Sum256(data), nil
}

// DB returns the currently loaded database.
func (p *FileProvider) DB() *DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.db
}

// ZoneIDs implements zoneprovider.Provider.
func (p *FileProvider) ZoneIDs() []string {
	return append([]string(nil), p.ids...)
}

// Rules implements zoneprovider.Provider.
func (p *FileProvider) Rules(id string, forCaching bool) (*zonerules.RuleSet, error) {
	return p.DB().Rules(id, forCaching)
}

// Versions implements zoneprovider.Provider.
func (p *FileProvider) Versions(id string) ([]zoneprovider.Version, error) {
	return p.DB().Versions(id)
}

// Refresh implements zoneprovider.Provider. It reads the file again and
// reports a change if its BLAKE3 digest differs from the last load. If the
// new content cannot be loaded, the previous database stays in use.
func (p *FileProvider) Refresh() (bool, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return false, err
	}
	digest := blake3.Sum256(data)

	p.mu.RLock()
	same := digest == p.digest
	p.mu.RUnlock()
	if same {
		return false, nil
	}

	db, err := Load(bytes.NewReader(data), WithLogger(p.logger))
	if err != nil {
		p.logger.Warn("reload failed", "path", p.path, "err", err)
		return false, fmt.Errorf("%s: %w", p.path, err)
	}
	p.mu.Lock()
	p.db, p.digest = db, digest
	p.mu.Unlock()
	p.logger.Info("database reloaded", "path", p.path, "version", db.Version())
	return true, nil
}
