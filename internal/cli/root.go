// Package cli implements the tzrules command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ngrash/go-tzrules/internal/bootstrap"
	"github.com/ngrash/go-tzrules/internal/config"
	"github.com/ngrash/go-tzrules/internal/logging"
)

// RootOptions holds global flags and the state every command shares.
type RootOptions struct {
	ConfigPath string
	LogLevel   logging.Level
	LogFormat  string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand creates the root command of the tzrules CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{LogLevel: logging.Level{Level: slog.LevelInfo}}

	cmd := &cobra.Command{
		Use:   "tzrules",
		Short: "Compile, store and query time zone rules",
		Long: `tzrules compiles IANA tz source into compact rule databases and answers
offset queries against the zones of the configured provider.

Settings are read from the file given with --config and from TZRULES_*
environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitUsage, "invalid flags", err)
	})

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "configuration file (YAML)")
	cmd.PersistentFlags().Var(&opts.LogLevel, "log-level", "log level (debug|info|warning|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewFetchCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewZonesCommand(opts))
	cmd.AddCommand(NewOffsetCommand(opts))
	cmd.AddCommand(NewTransitionsCommand(opts))

	return cmd
}

// setup loads the configuration and builds the logger. Flags given on the
// command line win over the configuration.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitUsage, "loading configuration", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = o.LogLevel.String()
	}
	if o.LogFormat != "" {
		if _, err := logging.ParseFormat(o.LogFormat); err != nil {
			return WrapExitError(ExitUsage, "invalid --log-format", err)
		}
		cfg.LogFormat = o.LogFormat
	}
	o.cfg = cfg
	o.logger = cfg.Logger(cmd.ErrOrStderr())
	return nil
}

// Logger returns the logger built from the configuration.
func (o *RootOptions) Logger() *slog.Logger {
	return logging.OrDiscard(o.logger)
}

// openRegistry builds the registry of the configured providers.
func (o *RootOptions) openRegistry() (*bootstrap.Env, error) {
	env, err := bootstrap.Open(o.cfg, o.Logger())
	if err != nil {
		return nil, WrapExitError(ExitFailure, "opening rule providers", err)
	}
	return env, nil
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
