// Package tzdb reads and writes compiled time zone databases.
//
// A database holds the rules of many zones in one or more versions, such as
// "2024a" and "2024b". Zones with identical rules share one encoded rule set.
// The file starts with a format byte and a group name, followed by four
// sections. Counts are uint16 and strings are a uint16 byte length followed
// by UTF-8:
//
//	+----+--------+
//	| 01 | "TZDB" |
//	+----+--------+
//	count, versions        version ids, oldest first
//	count, regions         zone ids
//	count, rule blobs      uint16 length + a zonerules.Encode'd RuleSet
//	per version:
//	  count, (region index, rule index) pairs
//
// The last version is the current one. Rule blobs are decoded on first use.
package tzdb

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync/atomic"
	"unicode/utf8"

	"github.com/ulikunitz/xz"

	"github.com/ngrash/go-tzrules/internal/logging"
	"github.com/ngrash/go-tzrules/zoneprovider"
	"github.com/ngrash/go-tzrules/zonerules"
)

const (
	formatVersion = 1
	groupID       = "TZDB"
)

var order = binary.BigEndian

// xzMagic starts every xz stream.
var xzMagic = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}

// DB is a loaded database. It implements zoneprovider.Provider and is safe
// for concurrent use.
type DB struct {
	logger   *slog.Logger
	versions []string
	regions  []string
	blobs    []*blob
	// tables[v] maps region index to blob index for version v; -1 means
	// the region is absent from that version.
	tables [][]int
	// live lists the zone ids of the current version, sorted.
	live []string
	// index maps a zone id to its region index.
	index map[string]int
}

var _ zoneprovider.Provider = (*DB)(nil)

// blob is an encoded rule set that is decoded once on first use.
type blob struct {
	data  []byte
	rules atomic.Pointer[zonerules.RuleSet]
}

func (b *blob) decode() (*zonerules.RuleSet, error) {
	if rs := b.rules.Load(); rs != nil {
		return rs, nil
	}
	rs, err := zonerules.DecodeRuleSet(bytes.NewReader(b.data))
	if err != nil {
		return nil, err
	}
	// Racing decoders produce equal rule sets; keep whichever came first.
	if !b.rules.CompareAndSwap(nil, rs) {
		return b.rules.Load(), nil
	}
	return rs, nil
}

// Option configures how a database is loaded.
type Option func(*DB)

// WithLogger sets the logger for decode failures.
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) { db.logger = l }
}

// Open loads the database at path. Files compressed with xz are recognized
// by their magic bytes and decompressed transparently.
func Open(path string, opts ...Option) (*DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	db, err := Load(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return db, nil
}

// Load reads a database from r, which may be xz compressed. If the header,
// a count, a string or an index is invalid, Load fails with
// zonerules.ErrMalformedData and returns no database. Rule blobs are not
// checked until they are used.
func Load(r io.Reader, opts ...Option) (*DB, error) {
	br := bufio.NewReader(r)
	if magic, _ := br.Peek(len(xzMagic)); bytes.Equal(magic, xzMagic) {
		zr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: xz: %w", zonerules.ErrMalformedData, err)
		}
		br = bufio.NewReader(zr)
	}

	db := &DB{}
	for _, opt := range opts {
		opt(db)
	}
	db.logger = logging.OrDiscard(db.logger)
	if err := db.read(br); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) read(r io.Reader) error {
	d := decoder{r: r}

	if v := d.byte("format version"); d.err == nil && v != formatVersion {
		return fmt.Errorf("%w: format version %d", zonerules.ErrMalformedData, v)
	}
	if g := d.string("group id"); d.err == nil && g != groupID {
		return fmt.Errorf("%w: group id %q", zonerules.ErrMalformedData, g)
	}

	db.versions = d.strings("version")
	db.regions = d.strings("region")
	n := d.count("rule blob")
	for i := 0; i < n && d.err == nil; i++ {
		size := d.count("rule blob length")
		data := d.bytes("rule blob", size)
		db.blobs = append(db.blobs, &blob{data: data})
	}
	for v := 0; v < len(db.versions) && d.err == nil; v++ {
		table := slices.Repeat([]int{-1}, len(db.regions))
		n := d.count("table")
		for j := 0; j < n && d.err == nil; j++ {
			region, rule := d.count("region index"), d.count("rule index")
			if d.err != nil {
				break
			}
			if region >= len(db.regions) || rule >= len(db.blobs) {
				return fmt.Errorf("%w: version %q: index (%d, %d) out of range", zonerules.ErrMalformedData, db.versions[v], region, rule)
			}
			table[region] = rule
		}
		db.tables = append(db.tables, table)
	}
	if d.err != nil {
		return d.err
	}

	db.index = make(map[string]int, len(db.regions))
	for i, id := range db.regions {
		if _, dup := db.index[id]; dup {
			return fmt.Errorf("%w: region %q listed twice", zonerules.ErrMalformedData, id)
		}
		db.index[id] = i
	}
	if len(db.tables) > 0 {
		current := db.tables[len(db.tables)-1]
		for i, id := range db.regions {
			if current[i] >= 0 {
				db.live = append(db.live, id)
			}
		}
		slices.Sort(db.live)
	}
	return nil
}

// decoder reads the primitives of the file format. After the first error
// all reads return zero values and err holds the error.
type decoder struct {
	r   io.Reader
	err error
}

func (d *decoder) fill(what string, buf []byte) {
	if d.err != nil {
		return
	}
	if _, err := io.ReadFull(d.r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			d.err = fmt.Errorf("%w: read %s: %w", zonerules.ErrMalformedData, what, err)
		} else {
			d.err = fmt.Errorf("read %s: %w", what, err)
		}
	}
}

func (d *decoder) byte(what string) byte {
	var b [1]byte
	d.fill(what, b[:])
	return b[0]
}

func (d *decoder) count(what string) int {
	var b [2]byte
	d.fill(what, b[:])
	return int(order.Uint16(b[:]))
}

func (d *decoder) bytes(what string, n int) []byte {
	buf := make([]byte, n)
	d.fill(what, buf)
	return buf
}

func (d *decoder) string(what string) string {
	b := d.bytes(what, d.count(what+" length"))
	if d.err == nil && !utf8.Valid(b) {
		d.err = fmt.Errorf("%w: %s is not valid UTF-8", zonerules.ErrMalformedData, what)
	}
	return string(b)
}

func (d *decoder) strings(what string) []string {
	n := d.count(what + " count")
	var s []string
	for i := 0; i < n && d.err == nil; i++ {
		s = append(s, d.string(what))
	}
	return s
}

// VersionIDs returns the versions in the database, oldest first.
func (db *DB) VersionIDs() []string {
	return slices.Clone(db.versions)
}

// Version returns the current version, or "" for an empty database.
func (db *DB) Version() string {
	if len(db.versions) == 0 {
		return ""
	}
	return db.versions[len(db.versions)-1]
}

// Regions returns every zone id in the database, including ids that are
// not part of the current version.
func (db *DB) Regions() []string {
	return slices.Clone(db.regions)
}

// BlobCount returns the number of distinct encoded rule sets.
func (db *DB) BlobCount() int {
	return len(db.blobs)
}

// ZoneIDs implements zoneprovider.Provider. It returns the sorted ids of
// the current version.
func (db *DB) ZoneIDs() []string {
	return slices.Clone(db.live)
}

// Rules implements zoneprovider.Provider. The rules of a database never
// change, so forCaching is ignored.
func (db *DB) Rules(id string, _ bool) (*zonerules.RuleSet, error) {
	region, ok := db.index[id]
	if !ok || len(db.tables) == 0 || db.tables[len(db.tables)-1][region] < 0 {
		return nil, fmt.Errorf("%w: %q", zoneprovider.ErrUnknownZone, id)
	}
	return db.decode(id, db.tables[len(db.tables)-1][region])
}

func (db *DB) decode(id string, i int) (*zonerules.RuleSet, error) {
	rs, err := db.blobs[i].decode()
	if err != nil {
		db.logger.Error("decode rules", "zone", id, "blob", i, "err", err)
		return nil, fmt.Errorf("zone %q: %w", id, err)
	}
	return rs, nil
}

// Versions implements zoneprovider.Provider. It returns the rules of every
// version that contains the zone, oldest first.
func (db *DB) Versions(id string) ([]zoneprovider.Version, error) {
	region, ok := db.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", zoneprovider.ErrUnknownZone, id)
	}
	var versions []zoneprovider.Version
	for v, table := range db.tables {
		if table[region] < 0 {
			continue
		}
		rs, err := db.decode(id, table[region])
		if err != nil {
			return nil, err
		}
		versions = append(versions, zoneprovider.Version{ID: db.versions[v], Rules: rs})
	}
	return versions, nil
}

// Refresh implements zoneprovider.Provider. A loaded database never
// changes; use FileProvider to pick up a rewritten file.
func (db *DB) Refresh() (bool, error) { return false, nil }

// Zones returns the rules of every zone in the given version, decoding
// them as needed.
func (db *DB) Zones(version string) (map[string]*zonerules.RuleSet, error) {
	v := slices.Index(db.versions, version)
	if v < 0 {
		return nil, fmt.Errorf("tzdb: unknown version %q", version)
	}
	zones := make(map[string]*zonerules.RuleSet)
	for region, blob := range db.tables[v] {
		if blob < 0 {
			continue
		}
		id := db.regions[region]
		rs, err := db.decode(id, blob)
		if err != nil {
			return nil, err
		}
		zones[id] = rs
	}
	return zones, nil
}
