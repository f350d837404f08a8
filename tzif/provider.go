package tzif

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/ngrash/go-tzrules/internal/logging"
	"github.com/ngrash/go-tzrules/zoneprovider"
	"github.com/ngrash/go-tzrules/zonerules"
)

// DefaultDir is where most systems install their zoneinfo files.
const DefaultDir = "/usr/share/zoneinfo"

// skipDirs hold copies of the zones with different leap second handling.
var skipDirs = []string{"posix", "right"}

// DirProvider serves the TZif files of a zoneinfo directory. A file is
// read and converted on the first request for its zone.
//
// Like other providers it reports the zone ids found when it was created.
// Refresh discards the converted zones when the version of the directory
// changed.
type DirProvider struct {
	fsys   fs.FS
	name   string
	logger *slog.Logger
	ids    []string

	mu      sync.RWMutex
	version string
	// rules maps a zone id to its *zonerules.RuleSet.
	rules *sync.Map
}

var _ zoneprovider.Provider = (*DirProvider)(nil)

// NewDirProvider scans the zoneinfo directory dir.
func NewDirProvider(dir string, logger *slog.Logger) (*DirProvider, error) {
	return NewFSProvider(os.DirFS(dir), dir, logger)
}

// NewFSProvider scans a zoneinfo tree in fsys. The name identifies it in
// log messages.
func NewFSProvider(fsys fs.FS, name string, logger *slog.Logger) (*DirProvider, error) {
	p := &DirProvider{fsys: fsys, name: name, logger: logging.OrDiscard(logger), rules: new(sync.Map)}
	ids, err := scan(fsys)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", name, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("scan %s: no TZif files", name)
	}
	p.ids = ids
	p.version = readVersion(fsys)
	p.logger.Info("zoneinfo scanned", "dir", name, "version", p.version, "zones", len(ids))
	return p, nil
}

// scan returns the sorted ids of the TZif files in fsys.
func scan(fsys fs.FS) ([]string, error) {
	var ids []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if slices.Contains(skipDirs, p) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || p == "localtime" || p == "posixrules" {
			return nil
		}
		ok, err := isTZif(fsys, p)
		if err != nil {
			return err
		}
		if ok {
			ids = append(ids, p)
		}
		return nil
	})
	slices.Sort(ids)
	return ids, err
}

func isTZif(fsys fs.FS, name string) (bool, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return false, err
	}
	defer f.Close()
	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false, nil
	}
	return magic == Magic, nil
}

// readVersion returns the tz release the tree was built from, as recorded
// by the tzdata.zi or +VERSION files, or "unknown".
func readVersion(fsys fs.FS) string {
	if f, err := fsys.Open("tzdata.zi"); err == nil {
		defer f.Close()
		s := bufio.NewScanner(f)
		if s.Scan() {
			if v, ok := strings.CutPrefix(s.Text(), "# version "); ok {
				return strings.TrimSpace(v)
			}
		}
	}
	if data, err := fs.ReadFile(fsys, "+VERSION"); err == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			return v
		}
	}
	return "unknown"
}

// Version returns the tz release of the directory.
func (p *DirProvider) Version() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

// ZoneIDs implements zoneprovider.Provider.
func (p *DirProvider) ZoneIDs() []string {
	return slices.Clone(p.ids)
}

// Rules implements zoneprovider.Provider. A file that cannot be converted
// fails with zonerules.ErrMalformedData for its zone only.
func (p *DirProvider) Rules(id string, _ bool) (*zonerules.RuleSet, error) {
	if _, ok := slices.BinarySearch(p.ids, id); !ok {
		return nil, fmt.Errorf("%w: %q", zoneprovider.ErrUnknownZone, id)
	}
	p.mu.RLock()
	cache := p.rules
	p.mu.RUnlock()

	if rs, ok := cache.Load(id); ok {
		return rs.(*zonerules.RuleSet), nil
	}
	rs, err := p.load(id)
	if err != nil {
		p.logger.Error("convert zoneinfo file", "dir", p.name, "zone", id, "err", err)
		return nil, fmt.Errorf("%w: zone %q: %w", zonerules.ErrMalformedData, id, err)
	}
	// Racing loads convert the same file; keep whichever came first.
	actual, _ := cache.LoadOrStore(id, rs)
	return actual.(*zonerules.RuleSet), nil
}

func (p *DirProvider) load(id string) (*zonerules.RuleSet, error) {
	data, err := fs.ReadFile(p.fsys, path.Clean(id))
	if err != nil {
		return nil, err
	}
	f, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return ToRuleSet(f)
}

// Versions implements zoneprovider.Provider. A zoneinfo directory holds a
// single version.
func (p *DirProvider) Versions(id string) ([]zoneprovider.Version, error) {
	rs, err := p.Rules(id, false)
	if err != nil {
		return nil, err
	}
	return []zoneprovider.Version{{ID: p.Version(), Rules: rs}}, nil
}

// Refresh implements zoneprovider.Provider. It reports a change when the
// recorded version of the directory differs from the one seen before.
func (p *DirProvider) Refresh() (bool, error) {
	version := readVersion(p.fsys)
	p.mu.Lock()
	defer p.mu.Unlock()
	if version == p.version {
		return false, nil
	}
	p.logger.Info("zoneinfo version changed", "dir", p.name, "from", p.version, "to", version)
	p.version = version
	p.rules = new(sync.Map)
	return true, nil
}
