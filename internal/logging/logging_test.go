package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"D", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"WARNING", slog.LevelWarn, false},
		{"err", slog.LevelError, false},
		{"", 0, true},
		{"verbose", 0, true},
		{"errors", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelInfo, FormatJSON)
	l.Debug("hidden")
	l.Info("loaded", "zones", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "loaded", rec["msg"])
	assert.EqualValues(t, 3, rec["zones"])
	_, err := time.Parse(time.RFC3339, rec["time"].(string))
	assert.NoError(t, err, "time is not RFC 3339")
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelDebug, FormatText).Debug("decoded", "zone", "Europe/Berlin")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "zone=Europe/Berlin")
}

func TestLevelFlag(t *testing.T) {
	var lv Level
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.VarP(&lv, "log-level", "l", "log level")

	require.NoError(t, fs.Parse([]string{"-l", "warn"}))
	assert.Equal(t, slog.LevelWarn, lv.Level)
	assert.Equal(t, "level", fs.Lookup("log-level").Value.Type())

	assert.Error(t, fs.Parse([]string{"--log-level", "loud"}))
}

func TestDiscard(t *testing.T) {
	l := OrDiscard(nil)
	require.NotNil(t, l)
	l.Error("dropped")
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
