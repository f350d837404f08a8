package ianadist

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngrash/go-tzrules/zonerules"
)

// roundTripperFunc serves canned responses in place of the data server.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (fn roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return fn(req)
}

func fakeClient(fn roundTripperFunc) *Client {
	return &Client{HTTPClient: &http.Client{Transport: fn}}
}

const europeSource = `# tzdb data for Europe and environs
Rule	EU	1981	max	-	Mar	lastSun	 1:00u	1:00	S
Rule	EU	1996	max	-	Oct	lastSun	 1:00u	0	-
Zone	Europe/Test	1:00	EU	CE%sT
`

const backwardSource = `# tzdb links for backward compatibility
Link	Europe/Test	Europe/Alias
`

// archive builds a release archive with the given files.
func archive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for _, name := range []string{"version", "leapseconds", "README", "europe", "backward", "zone.tab"} {
		data, ok := files[name]
		if !ok {
			continue
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(data)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(data))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func release(t *testing.T) []byte {
	t.Helper()
	return archive(t, map[string]string{
		"version":     "2024b\n",
		"leapseconds": "# Allowance for leap seconds added to each time zone\nLeap\t2016\tDec\t31\t23:59:60\t+\tS\n",
		"README":      "README for the tz distribution\n",
		"europe":      europeSource,
		"backward":    backwardSource,
		"zone.tab":    "# tzdb timezone descriptions\nDE\t+5230+01322\tEurope/Berlin\n",
	})
}

func TestReadArchive(t *testing.T) {
	rel, err := ReadArchive(bytes.NewReader(release(t)))
	require.NoError(t, err)
	assert.Equal(t, "2024b", rel.Version)
	if diff := cmp.Diff([]string{"backward", "europe"}, rel.SourceNames()); diff != "" {
		t.Errorf("SourceNames() mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, string(rel.LeapSeconds), "Leap\t2016")
}

func TestReadArchiveErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"no version", map[string]string{"europe": europeSource}},
		{"no sources", map[string]string{"version": "2024b\n", "README": "hello\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadArchive(bytes.NewReader(archive(t, tt.files)))
			assert.ErrorIs(t, err, ErrNoRelease)
		})
	}

	_, err := ReadArchive(bytes.NewReader([]byte("not gzip")))
	assert.Error(t, err)
}

func TestCompile(t *testing.T) {
	rel, err := ReadArchive(bytes.NewReader(release(t)))
	require.NoError(t, err)
	zones, err := rel.Compile()
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Same(t, zones["Europe/Test"], zones["Europe/Alias"])

	rs := zones["Europe/Test"]
	summer := time.Date(2030, time.July, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, zonerules.Offset(7200), rs.Offset(summer))

	rel.Sources["europe"] = []byte("# tzdb data for Europe\nZone Europe/Bad 1:00 Nope CET\n")
	_, err = rel.Compile()
	assert.ErrorContains(t, err, "release 2024b")
}

func TestLatest(t *testing.T) {
	const etag = `"test-etag"`
	data := release(t)
	c := fakeClient(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodGet, req.Method)
		assert.Equal(t, "https://data.iana.org/time-zones/tzdata-latest.tar.gz", req.URL.String())
		if req.Header.Get("If-None-Match") == etag {
			return &http.Response{StatusCode: http.StatusNotModified, Body: http.NoBody}, nil
		}
		resp := &http.Response{
			StatusCode: http.StatusOK,
			Header:     make(http.Header),
			Body:       io.NopCloser(bytes.NewReader(data)),
		}
		resp.Header.Set("ETag", etag)
		return resp, nil
	})
	ctx := context.Background()

	rel, got, err := c.Latest(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, etag, got)
	assert.Equal(t, "2024b", rel.Version)

	rel, got, err = c.Latest(ctx, etag)
	require.NoError(t, err)
	assert.Equal(t, etag, got)
	assert.Nil(t, rel, "not modified")
}

func TestDownloadStatus(t *testing.T) {
	c := fakeClient(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusNotFound, Status: "404 Not Found", Body: http.NoBody}, nil
	})
	body, etag, err := c.Download(context.Background(), "releases/tzdata2099z.tar.gz", "old")
	assert.ErrorContains(t, err, "404")
	assert.Nil(t, body)
	assert.Empty(t, etag)
}
