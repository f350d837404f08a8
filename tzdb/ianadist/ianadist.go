// Package ianadist downloads tz source releases from IANA and compiles
// them into zone rules.
//
// Releases are fetched from the [IANA data server]. Callers should keep the
// [ETag] of the last download and pass it to the next one so that an
// unchanged release is not transferred again.
//
// [ETag]: https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/ETag
// [IANA data server]: https://www.iana.org/time-zones
package ianadist

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/ngrash/go-tzrules/internal/logging"
	"github.com/ngrash/go-tzrules/tzcompile"
	"github.com/ngrash/go-tzrules/tzdata"
	"github.com/ngrash/go-tzrules/zonerules"
)

const (
	baseURL = "https://data.iana.org/time-zones/"
	// LatestPath is the archive of the current release, relative to the
	// data server.
	LatestPath = "tzdata-latest.tar.gz"

	versionFile     = "version"
	leapSecondsFile = "leapseconds"
)

// Source files start with one of these lines. Everything else in an
// archive (tables, scripts, documentation) is skipped.
var sourceHeaders = []string{"# tzdb data for", "# tzdb links for"}

// ErrNoRelease is returned when an archive lacks a version or any source
// file.
var ErrNoRelease = errors.New("not a tz release")

// Release is the content of a tzdata archive.
type Release struct {
	// Version is the release name, for example "2024b".
	Version string
	// Sources maps file names to tz source text.
	Sources map[string][]byte
	// LeapSeconds is the leapseconds file. It is kept for reference only:
	// the compiler rejects leap second lines.
	LeapSeconds []byte
}

// SourceNames returns the names of the source files, sorted.
func (r *Release) SourceNames() []string {
	return slices.Sorted(maps.Keys(r.Sources))
}

// Compile compiles every source file of the release.
func (r *Release) Compile(opts ...tzcompile.Option) (map[string]*zonerules.RuleSet, error) {
	var all tzdata.File
	for _, name := range r.SourceNames() {
		f, err := tzdata.Parse(bytes.NewReader(r.Sources[name]))
		if err != nil {
			return nil, fmt.Errorf("release %s: %s:%d: %w", r.Version, name, tzdata.Line(err), err)
		}
		all.Merge(f)
	}
	zones, err := tzcompile.Compile(all, opts...)
	if err != nil {
		return nil, fmt.Errorf("release %s: %w", r.Version, err)
	}
	return zones, nil
}

func isSource(data []byte) bool {
	for _, h := range sourceHeaders {
		if bytes.HasPrefix(data, []byte(h)) {
			return true
		}
	}
	return false
}

// ReadArchive unpacks a gzip-compressed tar archive as published at
// https://data.iana.org/time-zones/releases/.
func ReadArchive(r io.Reader) (*Release, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read gzip: %w", err)
	}
	tr := tar.NewReader(zr)

	rel := &Release{Sources: make(map[string][]byte)}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", hdr.Name, err)
		}
		switch {
		case hdr.Name == versionFile:
			rel.Version = strings.TrimSpace(string(data))
		case hdr.Name == leapSecondsFile:
			rel.LeapSeconds = data
		case isSource(data):
			rel.Sources[hdr.Name] = data
		}
	}

	if rel.Version == "" {
		return nil, fmt.Errorf("%w: no version file", ErrNoRelease)
	}
	if len(rel.Sources) == 0 {
		return nil, fmt.Errorf("%w: no source files", ErrNoRelease)
	}
	return rel, nil
}

// Client downloads releases. The zero value uses http.DefaultClient and
// logs nothing.
type Client struct {
	// HTTPClient sends the requests. Tests replace its transport to serve
	// canned responses.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// DefaultClient is used by Latest.
var DefaultClient = &Client{}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

// Latest downloads the current release using DefaultClient.
func Latest(ctx context.Context, etag string) (*Release, string, error) {
	return DefaultClient.Latest(ctx, etag)
}

// Latest downloads and unpacks the current release.
//
// If the server reports that the release with the given ETag is still
// current, Latest returns a nil Release, the same ETag and a nil error.
// On error the returned ETag is empty.
func (c *Client) Latest(ctx context.Context, etag string) (*Release, string, error) {
	body, newEtag, err := c.Download(ctx, LatestPath, etag)
	if err != nil {
		return nil, "", err
	}
	if body == nil {
		return nil, etag, nil
	}
	defer func() {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, body)
		_ = body.Close()
	}()

	rel, err := ReadArchive(body)
	if err != nil {
		return nil, "", err
	}
	logging.OrDiscard(c.Logger).Info("release downloaded", "version", rel.Version, "sources", len(rel.Sources), "etag", newEtag)
	return rel, newEtag, nil
}

// Download fetches path from the data server.
//
// The caller must read and close the returned body. If the resource still
// matches etag, the body is nil and etag is returned unchanged. Statuses
// other than 200 and 304 are errors.
func (c *Client) Download(ctx context.Context, path, etag string) (io.ReadCloser, string, error) {
	u, err := url.JoinPath(baseURL, path)
	if err != nil {
		return nil, "", fmt.Errorf("join URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request for %q: %w", u, err)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	logger := logging.OrDiscard(c.Logger)
	logger.Debug("downloading", "url", u, "etag", etag)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("GET %q: %w", u, err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, resp.Header.Get("ETag"), nil
	case http.StatusNotModified:
		drain(resp)
		logger.Debug("not modified", "url", u)
		return nil, etag, nil
	}
	drain(resp)
	return nil, "", fmt.Errorf("response for %q: unexpected status: %s", u, resp.Status)
}

func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
