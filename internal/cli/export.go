package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ngrash/go-tzrules/tzif"
)

// ExportOptions holds the flags of the export command.
type ExportOptions struct {
	*RootOptions
	Dir     string
	EndYear int
}

// NewExportCommand creates the export command.
func NewExportCommand(root *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "export [ZONE...]",
		Short: "Write zones of the configured provider as TZif files",
		Long: `Export writes the rules of the given zones, or of every zone, as TZif
files into a zoneinfo directory tree. The files can be read by the
zoneinfo provider and by other TZif readers.`,
		Example: `  tzrules export -d ./zoneinfo
  tzrules export -d ./zoneinfo --end-year 2050 Europe/Berlin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Dir, "dir", "d", "", "directory to write to (required)")
	f.IntVar(&opts.EndYear, "end-year", tzif.DefaultEndYear, "last year with explicit transitions")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions, zones []string) error {
	env, err := opts.openRegistry()
	if err != nil {
		return err
	}
	defer env.Close()

	if len(zones) == 0 {
		zones = env.Registry.ZoneIDs()
	}
	logger := opts.Logger()
	for _, id := range zones {
		rs, err := env.Registry.Rules(id, false)
		if err != nil {
			return WrapExitError(ExitFailure, "zone "+id, err)
		}
		f, err := tzif.FromRuleSet(rs, tzif.WithEndYear(opts.EndYear))
		if err != nil {
			return WrapExitError(ExitFailure, "converting "+id, err)
		}
		data, err := f.MarshalBinary()
		if err != nil {
			return WrapExitError(ExitFailure, "encoding "+id, err)
		}
		path := filepath.Join(opts.Dir, filepath.FromSlash(id))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return WrapExitError(ExitFailure, "creating directory", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return WrapExitError(ExitFailure, "writing "+id, err)
		}
		logger.Debug("zone exported", "zone", id, "path", path, "version", f.Version)
	}
	printf(cmd.OutOrStdout(), "%d zones written to %s\n", len(zones), opts.Dir)
	return nil
}
