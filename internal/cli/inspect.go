package cli

import (
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ngrash/go-tzrules/tzdb"
)

// InspectOptions holds the flags of the inspect command.
type InspectOptions struct {
	*RootOptions
	Zones bool
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(root *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "inspect DATABASE",
		Short: "Show the versions and zones of a rule database",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, opts, args[0])
		},
	}
	cmd.Flags().BoolVar(&opts.Zones, "zones", false, "list the zones of each version")
	return cmd
}

func runInspect(cmd *cobra.Command, opts *InspectOptions, path string) error {
	db, err := tzdb.Open(path, tzdb.WithLogger(opts.Logger()))
	if err != nil {
		return WrapExitError(ExitFailure, "opening database", err)
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	printf(tw, "current version:\t%s\n", db.Version())
	printf(tw, "versions:\t%d\n", len(db.VersionIDs()))
	printf(tw, "regions:\t%d\n", len(db.Regions()))
	printf(tw, "rule blobs:\t%d\n", db.BlobCount())
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, id := range db.VersionIDs() {
		zones, err := db.Zones(id)
		if err != nil {
			return WrapExitError(ExitFailure, "reading version "+id, err)
		}
		printf(out, "\n%s: %d zones\n", id, len(zones))
		if !opts.Zones {
			continue
		}
		for _, zone := range slices.Sorted(maps.Keys(zones)) {
			printf(out, "  %s\n", zone)
		}
	}
	return nil
}
