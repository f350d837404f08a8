package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngrash/go-tzrules/zoneprovider"
	"github.com/ngrash/go-tzrules/zonerules"
)

// NewZonesCommand creates the zones command.
func NewZonesCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "zones",
		Short: "List the zone ids of the configured provider",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := root.openRegistry()
			if err != nil {
				return err
			}
			defer env.Close()
			for _, id := range env.Registry.ZoneIDs() {
				printf(cmd.OutOrStdout(), "%s\n", id)
			}
			return nil
		},
	}
}

// OffsetOptions holds the flags of the offset command.
type OffsetOptions struct {
	*RootOptions
	At    string
	Local string
}

// NewOffsetCommand creates the offset command.
func NewOffsetCommand(root *RootOptions) *cobra.Command {
	opts := &OffsetOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "offset ZONE",
		Short: "Show the offset of a zone at an instant or local date-time",
		Long: `Offset prints the offset of the zone at the instant given with --at, or
the current instant. With --local it prints the valid offsets of a local
date-time instead, and the transition when the date-time falls into a gap
or overlap.`,
		Example: `  tzrules offset Europe/Berlin --at 2024-07-01T12:00:00Z
  tzrules offset Europe/Berlin --local 2024-10-27T02:30:00`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOffset(cmd, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.At, "at", "", "instant in RFC 3339 format (default now)")
	f.StringVar(&opts.Local, "local", "", "local date-time as 2006-01-02T15:04:05")
	cmd.MarkFlagsMutuallyExclusive("at", "local")
	return cmd
}

func runOffset(cmd *cobra.Command, opts *OffsetOptions, zone string) error {
	rs, closeFn, err := lookupZone(opts.RootOptions, zone)
	if err != nil {
		return err
	}
	defer closeFn()

	out := cmd.OutOrStdout()
	if opts.Local != "" {
		dt, err := zonerules.ParseLocalDateTime(opts.Local)
		if err != nil {
			return WrapExitError(ExitUsage, "invalid --local", err)
		}
		valid := rs.ValidOffsets(dt)
		switch len(valid) {
		case 0:
			printf(out, "%s %s: no valid offset\n", zone, dt)
		case 1:
			printf(out, "%s %s: %s\n", zone, dt, valid[0])
		default:
			printf(out, "%s %s: %s or %s\n", zone, dt, valid[0], valid[1])
		}
		if t, ok := rs.TransitionAt(dt); ok {
			printf(out, "transition: %s\n", t)
		}
		return nil
	}

	at, err := parseInstant(opts.At)
	if err != nil {
		return err
	}
	o := rs.Offset(at)
	dst := ""
	if rs.IsDaylightSavings(at) {
		dst = " (daylight saving time)"
	}
	printf(out, "%s %s: %s%s\n", zone, at.UTC().Format(time.RFC3339), o, dst)
	printf(out, "standard offset: %s\n", rs.StandardOffset(at))
	return nil
}

// TransitionsOptions holds the flags of the transitions command.
type TransitionsOptions struct {
	*RootOptions
	From    string
	Count   int
	Reverse bool
}

// NewTransitionsCommand creates the transitions command.
func NewTransitionsCommand(root *RootOptions) *cobra.Command {
	opts := &TransitionsOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "transitions ZONE",
		Short: "List the transitions of a zone",
		Long: `Transitions prints the transitions of the zone that follow the instant
given with --from, or precede it with --reverse. Transitions generated by
the rules of the zone are included.`,
		Example: `  tzrules transitions America/New_York --from 2024-01-01T00:00:00Z -n 4`,
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransitions(cmd, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.From, "from", "", "instant in RFC 3339 format (default now)")
	f.IntVarP(&opts.Count, "count", "n", 10, "number of transitions to print")
	f.BoolVarP(&opts.Reverse, "reverse", "r", false, "list the transitions before --from")
	return cmd
}

func runTransitions(cmd *cobra.Command, opts *TransitionsOptions, zone string) error {
	if opts.Count < 1 {
		return NewExitError(ExitUsage, "--count must be positive")
	}
	from, err := parseInstant(opts.From)
	if err != nil {
		return err
	}
	rs, closeFn, err := lookupZone(opts.RootOptions, zone)
	if err != nil {
		return err
	}
	defer closeFn()

	out := cmd.OutOrStdout()
	for range opts.Count {
		var (
			t  zonerules.Transition
			ok bool
		)
		if opts.Reverse {
			t, ok = rs.PreviousTransition(from)
		} else {
			t, ok = rs.NextTransition(from)
		}
		if !ok {
			break
		}
		printf(out, "%s  %s -> %s  %s\n", t.Instant().UTC().Format(time.RFC3339), t.OffsetBefore(), t.OffsetAfter(), kind(t))
		from = t.Instant()
	}
	return nil
}

func kind(t zonerules.Transition) string {
	if t.IsGap() {
		return "gap " + t.Duration().String()
	}
	return "overlap " + (-t.Duration()).String()
}

func parseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, WrapExitError(ExitUsage, "invalid instant", err)
	}
	return t, nil
}

// lookupZone opens the configured providers and returns the rules of zone.
// The returned function releases the providers.
func lookupZone(root *RootOptions, zone string) (*zonerules.RuleSet, func(), error) {
	env, err := root.openRegistry()
	if err != nil {
		return nil, nil, err
	}
	rs, err := env.Registry.Rules(zone, false)
	if err != nil {
		env.Close()
		code := ExitFailure
		if errors.Is(err, zoneprovider.ErrUnknownZone) {
			code = ExitUsage
		}
		return nil, nil, WrapExitError(code, "zone "+zone, err)
	}
	return rs, func() { env.Close() }, nil
}
