// Package config loads the settings shared by the tzrules commands.
//
// Settings come from an optional YAML file and are overridden by
// environment variables:
//
//	TZRULES_PROVIDER   provider
//	TZRULES_DB         tzdb_path
//	TZRULES_SQLITE     sqlite_path
//	TZRULES_ZONEINFO   zoneinfo_dir
//	TZRULES_LOG_LEVEL  log_level
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ngrash/go-tzrules/internal/logging"
	"github.com/ngrash/go-tzrules/tzif"
)

// Provider selects where the default registry gets its rules from.
type Provider string

const (
	// ProviderBundled uses the rules compiled into the binary.
	ProviderBundled Provider = "bundled"
	// ProviderTZDB reads a database written by tzdb.Writer.
	ProviderTZDB Provider = "tzdb"
	// ProviderSQLite reads a sqlstore database.
	ProviderSQLite Provider = "sqlite"
	// ProviderZoneinfo reads the TZif files of a zoneinfo directory.
	ProviderZoneinfo Provider = "zoneinfo"
)

// Config holds the settings.
type Config struct {
	Provider   Provider `yaml:"provider"`
	TZDBPath   string   `yaml:"tzdb_path"`
	SQLitePath string   `yaml:"sqlite_path"`
	// ZoneinfoDir defaults to tzif.DefaultDir for the zoneinfo provider.
	ZoneinfoDir string `yaml:"zoneinfo_dir"`
	// ExtraDatabases are registered after the default provider. Their
	// zones must not overlap with it.
	ExtraDatabases []string `yaml:"extra_databases"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"`
}

// Load reads the YAML file at path, applies the environment and defaults
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := c.decode(data); err != nil {
			return nil, err
		}
	}
	c.ApplyEnv(os.LookupEnv)
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}

// Parse reads YAML settings from r without consulting the environment.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := c.decode(data); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings with the environment variables that are set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("TZRULES_PROVIDER"); ok {
		c.Provider = Provider(v)
	}
	if v, ok := lookup("TZRULES_DB"); ok {
		c.TZDBPath = v
	}
	if v, ok := lookup("TZRULES_SQLITE"); ok {
		c.SQLitePath = v
	}
	if v, ok := lookup("TZRULES_ZONEINFO"); ok {
		c.ZoneinfoDir = v
	}
	if v, ok := lookup("TZRULES_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		switch {
		case c.TZDBPath != "":
			c.Provider = ProviderTZDB
		case c.SQLitePath != "":
			c.Provider = ProviderSQLite
		default:
			c.Provider = ProviderBundled
		}
	}
	if c.Provider == ProviderZoneinfo && c.ZoneinfoDir == "" {
		c.ZoneinfoDir = tzif.DefaultDir
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate reports every problem with the settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderBundled, ProviderZoneinfo:
	case ProviderTZDB:
		if c.TZDBPath == "" {
			errs = append(errs, errors.New("provider tzdb needs tzdb_path"))
		}
	case ProviderSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("provider sqlite needs sqlite_path"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}
	for i, p := range c.ExtraDatabases {
		if p == "" {
			errs = append(errs, fmt.Errorf("extra_databases[%d] is empty", i))
		}
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Logger returns a logger writing to w as configured. Validate must have
// succeeded.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	format, _ := logging.ParseFormat(c.LogFormat)
	return logging.New(w, level, format)
}
