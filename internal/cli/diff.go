package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/ngrash/go-tzrules/tzdb"
	"github.com/ngrash/go-tzrules/zonerules"
)

// DiffOptions holds the flags of the diff command.
type DiffOptions struct {
	*RootOptions
	OldVersion string
	NewVersion string
	Verbose    bool
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(root *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "diff OLD NEW",
		Short: "Compare the rules of two databases",
		Long: `Diff compares the current versions of two databases zone by zone and
lists the zones that were added, removed or changed.

The command exits with status 1 when the rules differ.`,
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, opts, args[0], args[1])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.OldVersion, "old-version", "", "version of OLD to compare (default current)")
	f.StringVar(&opts.NewVersion, "new-version", "", "version of NEW to compare (default current)")
	f.BoolVarP(&opts.Verbose, "verbose", "v", false, "show the changed transitions and rules")
	return cmd
}

func runDiff(cmd *cobra.Command, opts *DiffOptions, oldPath, newPath string) error {
	oldZones, err := openZones(oldPath, opts.OldVersion)
	if err != nil {
		return err
	}
	newZones, err := openZones(newPath, opts.NewVersion)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	changes := diffZones(out, oldZones, newZones, opts.Verbose)
	if changes > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d zones differ", changes))
	}
	printf(out, "no differences\n")
	return nil
}

func openZones(path, version string) (map[string]*zonerules.RuleSet, error) {
	db, err := tzdb.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "opening database", err)
	}
	if version == "" {
		version = db.Version()
	}
	zones, err := db.Zones(version)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "reading "+path, err)
	}
	return zones, nil
}

// diffZones writes one line per added, removed or changed zone and returns
// their number.
func diffZones(w io.Writer, oldZones, newZones map[string]*zonerules.RuleSet, verbose bool) int {
	ids := slices.Sorted(maps.Keys(oldZones))
	for id := range newZones {
		if _, ok := oldZones[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	changes := 0
	for _, id := range ids {
		o, inOld := oldZones[id]
		n, inNew := newZones[id]
		switch {
		case !inOld:
			printf(w, "+ %s\n", id)
		case !inNew:
			printf(w, "- %s\n", id)
		case !o.Equal(n):
			printf(w, "~ %s\n", id)
			if verbose {
				printf(w, "%s", cmp.Diff(summary(o), summary(n)))
			}
		default:
			continue
		}
		changes++
	}
	return changes
}

// summary lists the transitions and rules of a rule set, one per line.
func summary(rs *zonerules.RuleSet) []string {
	var lines []string
	for _, t := range rs.StandardTransitions() {
		lines = append(lines, "standard "+t.String())
	}
	for _, t := range rs.Transitions() {
		lines = append(lines, t.String())
	}
	for _, r := range rs.TransitionRules() {
		lines = append(lines, "rule "+r.String())
	}
	return lines
}
