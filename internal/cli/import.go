package cli

import (
	"github.com/spf13/cobra"

	"github.com/ngrash/go-tzrules/sqlstore"
	"github.com/ngrash/go-tzrules/tzdb"
)

// ImportOptions holds the flags of the import command.
type ImportOptions struct {
	*RootOptions
	SQLite string
}

// NewImportCommand creates the import command.
func NewImportCommand(root *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "import DATABASE",
		Short: "Copy the versions of a rule database into a SQLite store",
		Long: `Import adds every version of the database that the SQLite store does
not hold yet, oldest first. The store is created if it does not exist.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.SQLite, "sqlite", "", "SQLite store (default sqlite_path of the configuration)")
	return cmd
}

func runImport(cmd *cobra.Command, opts *ImportOptions, path string) error {
	logger := opts.Logger()
	target := opts.SQLite
	if target == "" {
		target = opts.cfg.SQLitePath
	}
	if target == "" {
		return NewExitError(ExitUsage, "no SQLite store: use --sqlite or set sqlite_path")
	}

	db, err := tzdb.Open(path, tzdb.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitFailure, "opening database", err)
	}
	store, err := sqlstore.Open(target, sqlstore.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitFailure, "opening store", err)
	}
	defer store.Close()

	added, err := store.Import(cmd.Context(), db)
	for _, id := range added {
		printf(cmd.OutOrStdout(), "imported %s\n", id)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "importing", err)
	}
	if len(added) == 0 {
		printf(cmd.OutOrStdout(), "up to date\n")
	}
	return nil
}
