// Package sqlstore keeps versions of zone rules in a SQLite database.
//
// A Store is a zoneprovider.Provider for rules that may change while the
// program runs: Rules refuses requests for cacheable rules with
// zoneprovider.ErrNoCache, and Refresh reports a new version added by any
// process sharing the database file.
//
// The pure Go driver modernc.org/sqlite is used by default. Building with
// -tags cgo_sqlite switches to github.com/mattn/go-sqlite3.
package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/ngrash/go-tzrules/internal/logging"
	"github.com/ngrash/go-tzrules/tzdb"
	"github.com/ngrash/go-tzrules/zoneprovider"
	"github.com/ngrash/go-tzrules/zonerules"
)

//go:embed schema.sql
var schemaSQL string

// ErrVersionExists is returned by AddVersion for a version id that is
// already stored.
var ErrVersionExists = errors.New("version already stored")

// Store is a SQLite database of rule versions.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu sync.Mutex
	// seq is the current version as of the last Open or Refresh.
	seq int64
}

var _ zoneprovider.Provider = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger of the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open creates or opens the database at path.
//
// The database is configured with WAL mode, a 5 second busy timeout and
// foreign key enforcement. A single connection is used since SQLite
// supports a single writer.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDiscard(s.logger)
	if s.seq, err = s.currentSeq(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("rule store opened", "path", path, "driver", driverName)
	return s, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) currentSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT max(seq) FROM versions").Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to query current version: %w", err)
	}
	return seq.Int64, nil
}

// AddVersion stores the rules of a new version, which becomes the current
// one. Identical rules are stored once.
func (s *Store) AddVersion(ctx context.Context, id string, zones map[string]*zonerules.RuleSet) error {
	if id == "" {
		return errors.New("sqlstore: empty version id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM versions WHERE id = ?)", id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to look up version: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %q", ErrVersionExists, id)
	}

	res, err := tx.ExecContext(ctx, "INSERT INTO versions (id, created_at) VALUES (?, ?)", id, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert version: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read version seq: %w", err)
	}

	for _, zone := range slices.Sorted(maps.Keys(zones)) {
		rs := zones[zone]
		if zone == "" || rs == nil {
			return fmt.Errorf("sqlstore: version %q: invalid zone %q", id, zone)
		}
		data, err := rs.MarshalBinary()
		if err != nil {
			return fmt.Errorf("zone %q: %w", zone, err)
		}
		digest := blake3.Sum256(data)
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO blobs (digest, data) VALUES (?, ?)", digest[:], data); err != nil {
			return fmt.Errorf("failed to insert rules of %q: %w", zone, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO zone_rules (version_seq, zone_id, digest) VALUES (?, ?, ?)", seq, zone, digest[:]); err != nil {
			return fmt.Errorf("failed to insert zone %q: %w", zone, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit version %q: %w", id, err)
	}
	s.logger.Info("version added", "version", id, "zones", len(zones))
	return nil
}

// Import adds the versions of a database that are not stored yet, oldest
// first. It returns the ids of the added versions.
func (s *Store) Import(ctx context.Context, db *tzdb.DB) ([]string, error) {
	var added []string
	for _, id := range db.VersionIDs() {
		zones, err := db.Zones(id)
		if err != nil {
			return added, err
		}
		err = s.AddVersion(ctx, id, zones)
		if errors.Is(err, ErrVersionExists) {
			s.logger.Debug("version already stored", "version", id)
			continue
		}
		if err != nil {
			return added, err
		}
		added = append(added, id)
	}
	return added, nil
}

// VersionIDs returns the stored version ids, oldest first.
func (s *Store) VersionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM versions ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ZoneIDs implements zoneprovider.Provider. It returns the zones of the
// current version.
func (s *Store) ZoneIDs() []string {
	rows, err := s.db.Query(`SELECT zone_id FROM zone_rules
		WHERE version_seq = (SELECT max(seq) FROM versions)
		ORDER BY zone_id`)
	if err != nil {
		s.logger.Error("failed to query zones", "err", err)
		return nil
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			s.logger.Error("failed to scan zone", "err", err)
			return nil
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("failed to query zones", "err", err)
		return nil
	}
	return ids
}

// Rules implements zoneprovider.Provider. Stored rules may be replaced by
// a new version at any time, so requests for cacheable rules fail with
// zoneprovider.ErrNoCache.
func (s *Store) Rules(id string, forCaching bool) (*zonerules.RuleSet, error) {
	if forCaching {
		return nil, fmt.Errorf("%w: %q is served from a rule store", zoneprovider.ErrNoCache, id)
	}
	var data []byte
	err := s.db.QueryRow(`SELECT b.data FROM zone_rules z JOIN blobs b ON b.digest = z.digest
		WHERE z.zone_id = ? AND z.version_seq = (SELECT max(seq) FROM versions)`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", zoneprovider.ErrUnknownZone, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rules of %q: %w", id, err)
	}
	rs, err := zonerules.DecodeRuleSet(bytes.NewReader(data))
	if err != nil {
		s.logger.Error("stored rules are corrupt", "zone", id, "err", err)
		return nil, fmt.Errorf("zone %q: %w", id, err)
	}
	return rs, nil
}

// Versions implements zoneprovider.Provider.
func (s *Store) Versions(id string) ([]zoneprovider.Version, error) {
	rows, err := s.db.Query(`SELECT v.id, b.data FROM zone_rules z
		JOIN versions v ON v.seq = z.version_seq
		JOIN blobs b ON b.digest = z.digest
		WHERE z.zone_id = ? ORDER BY v.seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions of %q: %w", id, err)
	}
	defer rows.Close()
	var versions []zoneprovider.Version
	for rows.Next() {
		var (
			version string
			data    []byte
		)
		if err := rows.Scan(&version, &data); err != nil {
			return nil, err
		}
		rs, err := zonerules.DecodeRuleSet(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zone %q version %q: %w", id, version, err)
		}
		versions = append(versions, zoneprovider.Version{ID: version, Rules: rs})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %q", zoneprovider.ErrUnknownZone, id)
	}
	return versions, nil
}

// Refresh implements zoneprovider.Provider. It reports whether a version
// was added since the last call or since Open.
func (s *Store) Refresh() (bool, error) {
	seq, err := s.currentSeq(context.Background())
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq == s.seq {
		return false, nil
	}
	s.seq = seq
	s.logger.Info("rule store changed", "seq", seq)
	return true, nil
}
