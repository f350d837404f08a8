// Package tzcompile turns parsed tz source files into zone rules.
//
// Each zone line becomes a window of a Builder. Rules that run to "max"
// become recurring zonerules.TransitionRules, all others explicit
// transitions. Links share the RuleSet of their target.
package tzcompile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/ngrash/go-tzrules/internal/calendar"
	"github.com/ngrash/go-tzrules/internal/logging"
	"github.com/ngrash/go-tzrules/tzdata"
	"github.com/ngrash/go-tzrules/zonerules"
)

// minRuleYear replaces a FROM of "min".
const minRuleYear = 1900

type options struct {
	logger *slog.Logger
}

// Option configures Compile.
type Option func(*options)

// WithLogger sets the logger that receives per-zone diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// CompileFS parses the named files of fsys as one source and compiles it.
func CompileFS(fsys fs.FS, names []string, opts ...Option) (map[string]*zonerules.RuleSet, error) {
	var all tzdata.File
	for _, name := range names {
		f, err := fsys.Open(name)
		if err != nil {
			return nil, err
		}
		parsed, err := tzdata.Parse(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, tzdata.Line(err), err)
		}
		all.Merge(parsed)
	}
	return Compile(all, opts...)
}

// Compile returns the rules of every zone and link in f, keyed by id.
// Problems with individual zones are collected, and no rules are returned
// if there is any.
func Compile(f tzdata.File, opts ...Option) (map[string]*zonerules.RuleSet, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrDiscard(o.logger)

	rules := make(map[string][]tzdata.Rule)
	for _, r := range f.Rules {
		rules[r.Name] = append(rules[r.Name], r)
	}

	var errs []error
	result := make(map[string]*zonerules.RuleSet, len(f.Zones)+len(f.Links))
	for _, z := range f.Zones {
		if _, ok := result[z.Name]; ok {
			errs = append(errs, fmt.Errorf("zone %s: defined twice", z.Name))
			continue
		}
		rs, err := compileZone(z, rules)
		if err != nil {
			errs = append(errs, fmt.Errorf("zone %s: %w", z.Name, err))
			continue
		}
		logger.Debug("zone compiled", "zone", z.Name, "transitions", len(rs.Transitions()), "rules", len(rs.TransitionRules()))
		result[z.Name] = rs
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := resolveLinks(result, f.Links); err != nil {
		return nil, err
	}
	logger.Info("source compiled", "zones", len(f.Zones), "links", len(f.Links))
	return result, nil
}

// resolveLinks adds the links to zones. A link may point at another link.
func resolveLinks(zones map[string]*zonerules.RuleSet, links []tzdata.Link) error {
	targets := make(map[string]string, len(links))
	var errs []error
	for _, l := range links {
		if _, ok := zones[l.Name]; ok {
			errs = append(errs, fmt.Errorf("%w: %s is also a zone", ErrLink, l.Name))
			continue
		}
		if _, ok := targets[l.Name]; ok {
			errs = append(errs, fmt.Errorf("%w: %s defined twice", ErrLink, l.Name))
			continue
		}
		targets[l.Name] = l.Target
	}
	for name := range targets {
		seen := map[string]bool{name: true}
		target := targets[name]
		for zones[target] == nil {
			next, ok := targets[target]
			if !ok {
				errs = append(errs, fmt.Errorf("%w: %s: target %s does not exist", ErrLink, name, target))
				break
			}
			if seen[target] {
				errs = append(errs, fmt.Errorf("%w: %s: cycle through %s", ErrLink, name, target))
				break
			}
			seen[target] = true
			target = next
		}
		if rs := zones[target]; rs != nil {
			zones[name] = rs
		}
	}
	return errors.Join(errs...)
}

func compileZone(z tzdata.Zone, rules map[string][]tzdata.Rule) (*zonerules.RuleSet, error) {
	var b Builder
	for i, l := range z.Lines {
		std, err := zonerules.OffsetOfDuration(l.StdOff)
		if err != nil {
			return nil, fmt.Errorf("line %d: STDOFF: %w", i, err)
		}
		if l.Until.Defined {
			until, def, uerr := untilDateTime(l.Until)
			if uerr != nil {
				return nil, fmt.Errorf("line %d: UNTIL: %w", i, uerr)
			}
			err = b.AddWindow(std, until, def)
		} else {
			err = b.AddWindowForever(std)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}

		switch l.Rules.Form {
		case tzdata.ZoneRulesStandard:
			err = b.SetFixedSavings(0)
		case tzdata.ZoneRulesTime:
			var savings zonerules.Offset
			if savings, err = zonerules.OffsetOfDuration(l.Rules.Time.Duration); err == nil {
				err = b.SetFixedSavings(savings)
			}
		case tzdata.ZoneRulesName:
			err = addRules(&b, l.Rules.Name, rules[l.Rules.Name])
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
	}
	return b.Build()
}

func addRules(b *Builder, name string, rules []tzdata.Rule) error {
	if len(rules) == 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, name)
	}
	for _, r := range rules {
		br, err := builderRule(r)
		if err == nil {
			err = b.AddRule(br)
		}
		if err != nil {
			return fmt.Errorf("rule %s %v %v: %w", name, r.From, r.In, err)
		}
	}
	return nil
}

// builderRule converts a rule line. Times outside [0, 24h) move the day,
// and "Sun<=25" becomes "Sun>=19".
func builderRule(r tzdata.Rule) (Rule, error) {
	br := Rule{
		StartYear: int(r.From),
		EndYear:   int(r.To),
		Month:     r.In,
		Weekday:   zonerules.AnyWeekday,
	}
	switch {
	case r.From == tzdata.MinYear:
		br.StartYear = minRuleYear
	case r.From == tzdata.MaxYear:
		return Rule{}, fmt.Errorf("%w: FROM is max", ErrInvalidRule)
	}
	switch r.To {
	case tzdata.MaxYear:
		br.EndYear = Forever
	case tzdata.MinYear:
		br.EndYear = minRuleYear
	}

	switch r.On.Form {
	case tzdata.DayFormDayNum:
		br.DayOfMonth = r.On.Num
	case tzdata.DayFormLast:
		br.DayOfMonth, br.Weekday = -1, r.On.Day
	case tzdata.DayFormAfter, tzdata.DayFormBefore:
		br.DayOfMonth, br.Weekday = r.On.Num, r.On.Day
	}

	def, err := timeDefinition(r.At.Form)
	if err != nil {
		return Rule{}, err
	}
	br.Definition = def

	secs := int64(r.At.Duration / time.Second)
	switch {
	case secs == calendar.SecondsPerDay:
		br.EndOfDay = true
	case secs < 0 || secs > calendar.SecondsPerDay:
		if br.DayOfMonth < 0 {
			return Rule{}, fmt.Errorf("%w: AT %v with a last weekday", ErrInvalidRule, r.At.Duration)
		}
		days := calendar.FloorDiv(secs, calendar.SecondsPerDay)
		secs = calendar.FloorMod(secs, calendar.SecondsPerDay)
		_, br.Month, br.DayOfMonth = calendar.Date(calendar.EpochDay(2004, br.Month, br.DayOfMonth) + days)
		if br.Weekday != zonerules.AnyWeekday {
			br.Weekday = time.Weekday(calendar.FloorMod(int64(br.Weekday)+days, 7))
		}
		br.TimeOfDay = time.Duration(secs) * time.Second
	default:
		br.TimeOfDay = time.Duration(secs) * time.Second
	}

	if r.On.Form == tzdata.DayFormBefore {
		// The last Sunday on or before the 25th is the first one on or
		// after the 19th. 2004 is a leap year so that February keeps 29.
		_, br.Month, br.DayOfMonth = calendar.Date(calendar.EpochDay(2004, br.Month, br.DayOfMonth) - 6)
	}

	if br.Savings, err = zonerules.OffsetOfDuration(r.Save.Duration); err != nil {
		return Rule{}, fmt.Errorf("SAVE: %w", err)
	}
	return br, nil
}

// untilDateTime resolves the UNTIL field of a zone line.
func untilDateTime(u tzdata.Until) (zonerules.LocalDateTime, zonerules.TimeDefinition, error) {
	def, err := timeDefinition(u.Time.Form)
	if err != nil {
		return zonerules.LocalDateTime{}, 0, err
	}
	var day int64
	switch u.Day.Form {
	case tzdata.DayFormDayNum:
		day = calendar.EpochDay(u.Year, u.Month, u.Day.Num)
	case tzdata.DayFormLast:
		day = calendar.PreviousOrSame(calendar.EpochDay(u.Year, u.Month, calendar.DaysInMonth(u.Year, u.Month)), u.Day.Day)
	case tzdata.DayFormAfter:
		day = calendar.NextOrSame(calendar.EpochDay(u.Year, u.Month, u.Day.Num), u.Day.Day)
	case tzdata.DayFormBefore:
		day = calendar.PreviousOrSame(calendar.EpochDay(u.Year, u.Month, u.Day.Num), u.Day.Day)
	}
	secs := day*calendar.SecondsPerDay + int64(u.Time.Duration/time.Second)
	return zonerules.LocalDateTimeOf(secs, 0, zonerules.UTC), def, nil
}

func timeDefinition(f tzdata.TimeForm) (zonerules.TimeDefinition, error) {
	switch f {
	case tzdata.WallClock:
		return zonerules.WallClock, nil
	case tzdata.StandardTime:
		return zonerules.StandardTime, nil
	case tzdata.UniversalTime:
		return zonerules.UniversalTime, nil
	}
	return 0, fmt.Errorf("%w: time form %v", ErrInvalidRule, f)
}
