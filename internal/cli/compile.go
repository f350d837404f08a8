package cli

import (
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/ngrash/go-tzrules/tzcompile"
	"github.com/ngrash/go-tzrules/tzdb"
	"github.com/ngrash/go-tzrules/zonerules"
)

// CompileOptions holds the flags of the compile command.
type CompileOptions struct {
	*RootOptions
	Output   string
	Version  string
	Previous string
	Compress bool
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(root *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "compile FILE...",
		Short: "Compile tz source files into a rule database",
		Long: `Compile parses the given tz source files as one source and writes the
rules of every zone and link to a database.

With --previous the versions of an existing database are copied first, so
that the new database keeps the history of earlier releases.`,
		Example: `  tzrules compile --version 2024b -o tzdb.dat africa antarctica asia europe
  tzrules compile --version 2025a --previous tzdb.dat -o tzdb.dat.xz --xz northamerica`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Output, "output", "o", "", "database file to write (required)")
	f.StringVar(&opts.Version, "version", "", "version id of the compiled rules (required)")
	f.StringVar(&opts.Previous, "previous", "", "database whose versions are carried over")
	f.BoolVar(&opts.Compress, "xz", false, "compress the database with xz")
	_ = cmd.MarkFlagRequired("output")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func runCompile(cmd *cobra.Command, opts *CompileOptions, files []string) error {
	logger := opts.Logger()
	zones, err := compileFiles(files, tzcompile.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitFailure, "compiling", err)
	}

	w := &tzdb.Writer{Compress: opts.Compress}
	if opts.Previous != "" {
		if err := carryVersions(w, opts.Previous, opts.Version); err != nil {
			return err
		}
	}
	if err := w.AddVersion(opts.Version, zones); err != nil {
		return WrapExitError(ExitFailure, "adding version", err)
	}
	if err := w.WriteFile(opts.Output); err != nil {
		return WrapExitError(ExitFailure, "writing database", err)
	}
	logger.Info("database written", "path", opts.Output, "version", opts.Version, "zones", len(zones))
	printf(cmd.OutOrStdout(), "%s: version %s, %d zones\n", opts.Output, opts.Version, len(zones))
	return nil
}

// osFS opens files by their operating system path.
type osFS struct{}

func (osFS) Open(name string) (fs.File, error) { return os.Open(name) }

// compileFiles compiles files given as paths on the local file system.
func compileFiles(files []string, opts ...tzcompile.Option) (map[string]*zonerules.RuleSet, error) {
	return tzcompile.CompileFS(osFS{}, files, opts...)
}

// carryVersions adds the versions of the database at path to w, skipping
// the version about to be compiled.
func carryVersions(w *tzdb.Writer, path, skip string) error {
	db, err := tzdb.Open(path)
	if err != nil {
		return WrapExitError(ExitFailure, "opening previous database", err)
	}
	for _, id := range db.VersionIDs() {
		if id == skip {
			continue
		}
		zones, err := db.Zones(id)
		if err != nil {
			return WrapExitError(ExitFailure, "reading previous database", err)
		}
		if err := w.AddVersion(id, zones); err != nil {
			return WrapExitError(ExitFailure, "adding version", err)
		}
	}
	return nil
}
