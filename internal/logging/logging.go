// Package logging builds the slog loggers used by the commands and by
// components that accept a logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Format is a log output format.
type Format int

const (
	// FormatText writes logfmt style key=value lines.
	FormatText Format = iota
	// FormatJSON writes one JSON object per line.
	FormatJSON
)

// ParseFormat parses "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return 0, fmt.Errorf("log format %q: must be text or json", s)
}

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "text"
}

var levelNames = []struct {
	name  string
	level slog.Level
}{
	{"debug", slog.LevelDebug},
	{"info", slog.LevelInfo},
	{"warning", slog.LevelWarn},
	{"error", slog.LevelError},
}

// ParseLevel parses a log level. Any non-empty prefix of "debug", "info",
// "warning" or "error" is accepted, in any case.
func ParseLevel(s string) (slog.Level, error) {
	lv := strings.ToLower(s)
	if lv != "" {
		for _, n := range levelNames {
			if strings.HasPrefix(n.name, lv) {
				return n.level, nil
			}
		}
	}
	return 0, fmt.Errorf("log level %q: must be a prefix of debug, info, warning or error", s)
}

// Level is a slog.Level that can be used as a pflag.Value.
type Level struct {
	slog.Level
}

var _ pflag.Value = (*Level)(nil)

// Set implements pflag.Value.
func (l *Level) Set(s string) error {
	lv, err := ParseLevel(s)
	if err != nil {
		return err
	}
	l.Level = lv
	return nil
}

// Type implements pflag.Value.
func (*Level) Type() string { return "level" }

// New returns a logger writing to w at the given level.
// Timestamps are formatted as RFC 3339.
func New(w io.Writer, level slog.Leveler, format Format) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}
	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// OrDiscard returns l, or a discarding logger if l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
