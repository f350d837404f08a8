package tzdb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/ngrash/go-tzrules/zonerules"
)

// Writer builds a database from the rules of one or more versions.
// The zero value is ready to use.
type Writer struct {
	// Compress makes WriteTo produce an xz stream.
	Compress bool

	versions []string
	zones    []map[string]*zonerules.RuleSet
}

// AddVersion adds the rules of a version. Versions must be added oldest
// first; the last one added becomes the current version.
func (w *Writer) AddVersion(id string, zones map[string]*zonerules.RuleSet) error {
	if id == "" {
		return errors.New("tzdb: empty version id")
	}
	if slices.Contains(w.versions, id) {
		return fmt.Errorf("tzdb: version %q added twice", id)
	}
	for zone, rs := range zones {
		if zone == "" || rs == nil {
			return fmt.Errorf("tzdb: version %q: invalid zone %q", id, zone)
		}
	}
	w.versions = append(w.versions, id)
	w.zones = append(w.zones, maps.Clone(zones))
	return nil
}

// WriteTo writes the database to out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	data, err := w.encode()
	if err != nil {
		return 0, err
	}
	if !w.Compress {
		n, err := out.Write(data)
		return int64(n), err
	}
	cw := &countingWriter{w: out}
	zw, err := xz.NewWriter(cw)
	if err != nil {
		return 0, fmt.Errorf("xz: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return cw.n, fmt.Errorf("xz: %w", err)
	}
	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("xz: %w", err)
	}
	return cw.n, nil
}

// WriteFile writes the database to a new file at path, replacing it
// atomically if it exists.
func (w *Writer) WriteFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tzdb-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := w.WriteTo(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (w *Writer) encode() ([]byte, error) {
	// Regions are the sorted union of all zone ids.
	seen := make(map[string]bool)
	for _, zones := range w.zones {
		for id := range zones {
			seen[id] = true
		}
	}
	regions := slices.Sorted(maps.Keys(seen))
	regionIndex := make(map[string]int, len(regions))
	for i, id := range regions {
		regionIndex[id] = i
	}

	// Identical encodings share a blob.
	var blobs [][]byte
	blobIndex := make(map[[32]byte]int)
	tables := make([][][2]int, len(w.versions))
	for v, zones := range w.zones {
		for _, id := range slices.Sorted(maps.Keys(zones)) {
			data, err := zones[id].MarshalBinary()
			if err != nil {
				return nil, fmt.Errorf("version %q: zone %q: %w", w.versions[v], id, err)
			}
			sum := blake3.Sum256(data)
			i, ok := blobIndex[sum]
			if !ok {
				i = len(blobs)
				blobIndex[sum] = i
				blobs = append(blobs, data)
			}
			tables[v] = append(tables[v], [2]int{regionIndex[id], i})
		}
	}

	e := encoder{}
	e.byte(formatVersion)
	e.string("group id", groupID)
	e.strings("version", w.versions)
	e.strings("region", regions)
	e.count("rule blob", len(blobs))
	for i, b := range blobs {
		e.count(fmt.Sprintf("rule blob %d length", i), len(b))
		e.buf.Write(b)
	}
	for v, table := range tables {
		e.count(fmt.Sprintf("version %q table", w.versions[v]), len(table))
		for _, pair := range table {
			e.count("region index", pair[0])
			e.count("rule index", pair[1])
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.buf.Bytes(), nil
}

type encoder struct {
	buf bytes.Buffer
	err error
}

func (e *encoder) byte(b byte) { e.buf.WriteByte(b) }

func (e *encoder) count(what string, n int) {
	if n > math.MaxUint16 {
		if e.err == nil {
			e.err = fmt.Errorf("tzdb: %s %d exceeds %d", what, n, math.MaxUint16)
		}
		return
	}
	e.buf.Write(order.AppendUint16(nil, uint16(n)))
}

func (e *encoder) string(what, s string) {
	e.count(what+" length", len(s))
	e.buf.WriteString(s)
}

func (e *encoder) strings(what string, s []string) {
	e.count(what+" count", len(s))
	for _, v := range s {
		e.string(what, v)
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
