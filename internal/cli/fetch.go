package cli

import (
	"github.com/spf13/cobra"

	"github.com/ngrash/go-tzrules/tzcompile"
	"github.com/ngrash/go-tzrules/tzdb"
	"github.com/ngrash/go-tzrules/tzdb/ianadist"
)

// FetchOptions holds the flags of the fetch command.
type FetchOptions struct {
	*RootOptions
	Output   string
	Previous string
	ETag     string
	Compress bool

	client *ianadist.Client
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(root *RootOptions) *cobra.Command {
	opts := &FetchOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the latest tz release and compile it",
		Long: `Fetch downloads the current tzdata release from IANA, compiles its
sources and writes them to a database under the release name.

With --etag the download is skipped when the release is unchanged. The
ETag of the downloaded release is printed on success.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Output, "output", "o", "", "database file to write (required)")
	f.StringVar(&opts.Previous, "previous", "", "database whose versions are carried over")
	f.StringVar(&opts.ETag, "etag", "", "ETag of the last downloaded release")
	f.BoolVar(&opts.Compress, "xz", false, "compress the database with xz")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runFetch(cmd *cobra.Command, opts *FetchOptions) error {
	logger := opts.Logger()
	client := opts.client
	if client == nil {
		client = &ianadist.Client{Logger: logger}
	}

	rel, etag, err := client.Latest(cmd.Context(), opts.ETag)
	if err != nil {
		return WrapExitError(ExitFailure, "downloading release", err)
	}
	out := cmd.OutOrStdout()
	if rel == nil {
		logger.Info("release unchanged", "etag", etag)
		printf(out, "unchanged %s\n", etag)
		return nil
	}

	zones, err := rel.Compile(tzcompile.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitFailure, "compiling release "+rel.Version, err)
	}
	w := &tzdb.Writer{Compress: opts.Compress}
	if opts.Previous != "" {
		if err := carryVersions(w, opts.Previous, rel.Version); err != nil {
			return err
		}
	}
	if err := w.AddVersion(rel.Version, zones); err != nil {
		return WrapExitError(ExitFailure, "adding version", err)
	}
	if err := w.WriteFile(opts.Output); err != nil {
		return WrapExitError(ExitFailure, "writing database", err)
	}
	logger.Info("database written", "path", opts.Output, "version", rel.Version, "zones", len(zones))
	printf(out, "%s %s\n", rel.Version, etag)
	return nil
}
