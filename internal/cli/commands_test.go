package cli

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngrash/go-tzrules/tzdb"
	"github.com/ngrash/go-tzrules/tzdb/ianadist"
	"github.com/ngrash/go-tzrules/tzif"
)

const testSource = `Rule	EU	1981	max	-	Mar	lastSun	 1:00u	1:00	S
Rule	EU	1996	max	-	Oct	lastSun	 1:00u	0	-
Zone	Test/Berlin	1:00	EU	CE%sT
Link	Test/Berlin	Test/Alias
`

// writeSource writes tz source text to a file in a temporary directory.
func writeSource(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "europe")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

// compileDB compiles testSource into a database and returns its path.
func compileDB(t *testing.T, version string, extra ...string) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "tzdb.dat")
	args := append([]string{"compile", "-o", db, "--version", version}, extra...)
	args = append(args, writeSource(t, testSource))
	_, err := run(t, args...)
	require.NoError(t, err)
	return db
}

func TestCompileAndInspect(t *testing.T) {
	isolate(t)
	db := compileDB(t, "2024a")

	out, err := run(t, "inspect", "--zones", db)
	require.NoError(t, err)
	assert.Contains(t, out, "current version:  2024a")
	assert.Contains(t, out, "2024a: 2 zones")
	assert.Contains(t, out, "  Test/Alias\n  Test/Berlin\n")
}

func TestCompilePrevious(t *testing.T) {
	isolate(t)
	prev := compileDB(t, "2024a")
	db := filepath.Join(t.TempDir(), "tzdb.dat.xz")

	out, err := run(t, "compile", "--xz", "-o", db, "--version", "2024b", "--previous", prev, writeSource(t, testSource))
	require.NoError(t, err)
	assert.Contains(t, out, "version 2024b, 2 zones")

	got, err := tzdb.Open(db)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"2024a", "2024b"}, got.VersionIDs()); diff != "" {
		t.Errorf("VersionIDs() mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileErrors(t *testing.T) {
	isolate(t)
	out := filepath.Join(t.TempDir(), "tzdb.dat")

	_, err := run(t, "compile", "-o", out, "--version", "2024a", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))

	bad := writeSource(t, "Zone\tTest/Bad\tnonsense\t-\tXXX\n")
	_, err = run(t, "compile", "-o", out, "--version", "2024a", bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.NoFileExists(t, out)
}

func TestDiff(t *testing.T) {
	isolate(t)
	a := compileDB(t, "2024a")
	b := compileDB(t, "2024b")

	out, err := run(t, "diff", a, b)
	require.NoError(t, err)
	assert.Equal(t, "no differences\n", out)

	changed := strings.Replace(testSource, "Zone\tTest/Berlin\t1:00", "Zone\tTest/Berlin\t2:00", 1)
	changed += "Zone\tTest/New\t0:00\t-\tGMT\n"
	c := filepath.Join(t.TempDir(), "tzdb.dat")
	_, err = run(t, "compile", "-o", c, "--version", "2024c", writeSource(t, changed))
	require.NoError(t, err)

	out, err = run(t, "diff", "-v", a, c)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.Contains(t, out, "~ Test/Alias\n")
	assert.Contains(t, out, "~ Test/Berlin\n")
	assert.Contains(t, out, "+ Test/New\n")
	assert.Contains(t, out, "rule ", "verbose output shows the changed rules")
}

func TestImport(t *testing.T) {
	isolate(t)
	db := compileDB(t, "2024a")
	store := filepath.Join(t.TempDir(), "rules.sqlite")

	out, err := run(t, "import", "--sqlite", store, db)
	require.NoError(t, err)
	assert.Equal(t, "imported 2024a\n", out)

	out, err = run(t, "import", "--sqlite", store, db)
	require.NoError(t, err)
	assert.Equal(t, "up to date\n", out)

	t.Setenv("TZRULES_PROVIDER", "sqlite")
	t.Setenv("TZRULES_SQLITE", store)
	out, err = run(t, "zones")
	require.NoError(t, err)
	assert.Equal(t, "Test/Alias\nTest/Berlin\n", out)
}

func TestImportWithoutStore(t *testing.T) {
	isolate(t)
	_, err := run(t, "import", compileDB(t, "2024a"))
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestExportZoneinfo(t *testing.T) {
	isolate(t)
	db := compileDB(t, "2024a")
	dir := t.TempDir()

	t.Setenv("TZRULES_PROVIDER", "tzdb")
	t.Setenv("TZRULES_DB", db)
	out, err := run(t, "export", "-d", dir)
	require.NoError(t, err)
	assert.Equal(t, "2 zones written to "+dir+"\n", out)

	data, err := os.ReadFile(filepath.Join(dir, "Test", "Berlin"))
	require.NoError(t, err)
	f, err := tzif.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "<+01>-1<+02>,M3.5.0,M10.5.0/3", f.TZString)

	t.Setenv("TZRULES_PROVIDER", "zoneinfo")
	t.Setenv("TZRULES_ZONEINFO", dir)
	out, err = run(t, "offset", "Test/Berlin", "--at", "2024-07-01T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "Test/Berlin 2024-07-01T12:00:00Z: +02:00 (daylight saving time)\nstandard offset: +01:00\n", out)
}

func TestZonesBundled(t *testing.T) {
	isolate(t)
	out, err := run(t, "zones")
	require.NoError(t, err)
	assert.Contains(t, out, "Europe/Berlin\n")
	assert.Contains(t, out, "America/New_York\n")
}

func TestOffset(t *testing.T) {
	isolate(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "winter",
			args: []string{"offset", "Europe/Berlin", "--at", "2024-01-15T12:00:00Z"},
			want: "Europe/Berlin 2024-01-15T12:00:00Z: +01:00\nstandard offset: +01:00\n",
		},
		{
			name: "normal local",
			args: []string{"offset", "Europe/Berlin", "--local", "2024-07-01T12:00:00"},
			want: "Europe/Berlin 2024-07-01T12:00:00: +02:00\n",
		},
		{
			name: "gap",
			args: []string{"offset", "Europe/Berlin", "--local", "2024-03-31T02:30:00"},
			want: "Europe/Berlin 2024-03-31T02:30:00: no valid offset\n" +
				"transition: Transition[Gap at 2024-03-31T02:00:00+01:00 to +02:00]\n",
		},
		{
			name: "overlap",
			args: []string{"offset", "Europe/Berlin", "--local", "2024-10-27T02:30:00"},
			want: "Europe/Berlin 2024-10-27T02:30:00: +02:00 or +01:00\n" +
				"transition: Transition[Overlap at 2024-10-27T03:00:00+02:00 to +01:00]\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := run(t, tt.args...)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTransitions(t *testing.T) {
	isolate(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "forward",
			args: []string{"transitions", "America/New_York", "--from", "2024-01-01T00:00:00Z", "-n", "2"},
			want: "2024-03-10T07:00:00Z  -05:00 -> -04:00  gap 1h0m0s\n" +
				"2024-11-03T06:00:00Z  -04:00 -> -05:00  overlap 1h0m0s\n",
		},
		{
			name: "reverse",
			args: []string{"transitions", "America/New_York", "--from", "2024-01-01T00:00:00Z", "-n", "2", "-r"},
			want: "2023-11-05T06:00:00Z  -04:00 -> -05:00  overlap 1h0m0s\n" +
				"2023-03-12T07:00:00Z  -05:00 -> -04:00  gap 1h0m0s\n",
		},
		{
			name: "fixed zone",
			args: []string{"transitions", "Etc/UTC", "--from", "2024-01-01T00:00:00Z"},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := run(t, tt.args...)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// roundTripperFunc serves canned responses in place of the data server.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (fn roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return fn(req)
}

func releaseArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for _, file := range []struct{ name, data string }{
		{"version", "2024b\n"},
		{"europe", "# tzdb data for Europe and environs\n" + testSource},
	} {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: file.name, Mode: 0o644, Size: int64(len(file.data)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(file.data))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFetch(t *testing.T) {
	body := releaseArchive(t)
	client := &ianadist.Client{HTTPClient: &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("If-None-Match") == `"v1"` {
			return &http.Response{StatusCode: http.StatusNotModified, Body: http.NoBody, Header: http.Header{}}, nil
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Etag": []string{`"v1"`}},
			Body:       io.NopCloser(bytes.NewReader(body)),
		}, nil
	})}}

	output := filepath.Join(t.TempDir(), "tzdb.dat")
	fetch := func(etag string) string {
		t.Helper()
		var out bytes.Buffer
		cmd := &cobra.Command{}
		cmd.SetOut(&out)
		cmd.SetContext(context.Background())
		opts := &FetchOptions{RootOptions: &RootOptions{}, Output: output, ETag: etag, client: client}
		require.NoError(t, runFetch(cmd, opts))
		return out.String()
	}

	assert.Equal(t, "2024b \"v1\"\n", fetch(""))
	db, err := tzdb.Open(output)
	require.NoError(t, err)
	assert.Equal(t, "2024b", db.Version())
	assert.Equal(t, []string{"Test/Alias", "Test/Berlin"}, db.ZoneIDs())

	assert.Equal(t, "unchanged \"v1\"\n", fetch(`"v1"`))
}
