package tzcompile

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/ngrash/go-tzrules/internal/calendar"
	"github.com/ngrash/go-tzrules/zonerules"
)

// Forever is the end year of a rule that never ends.
const Forever = math.MaxInt

// maxWindowRules is the maximum number of rules of a window after the
// recurring rules have been expanded.
const maxWindowRules = 2000

// Rule is a savings rule that applies in each year from StartYear to
// EndYear inclusive.
//
// The day is given as for zonerules.NewTransitionRule: a positive
// DayOfMonth moves forward to Weekday, a negative one counts from the end
// of the month and moves backward. Weekday is zonerules.AnyWeekday if the
// day is not adjusted.
type Rule struct {
	StartYear  int
	EndYear    int
	Month      time.Month
	DayOfMonth int
	Weekday    time.Weekday
	TimeOfDay  time.Duration
	EndOfDay   bool
	Definition zonerules.TimeDefinition
	Savings    zonerules.Offset
}

func (r Rule) validate() error {
	switch {
	case r.Month < time.January || r.Month > time.December:
		return fmt.Errorf("%w: month %d out of range", ErrInvalidRule, r.Month)
	case r.DayOfMonth == 0 || r.DayOfMonth < -28 || r.DayOfMonth > 31:
		return fmt.Errorf("%w: day of month %d out of range", ErrInvalidRule, r.DayOfMonth)
	case r.Weekday != zonerules.AnyWeekday && (r.Weekday < time.Sunday || r.Weekday > time.Saturday):
		return fmt.Errorf("%w: weekday %d out of range", ErrInvalidRule, r.Weekday)
	case r.TimeOfDay < 0 || r.TimeOfDay >= 24*time.Hour || r.TimeOfDay%time.Second != 0:
		return fmt.Errorf("%w: time of day %v out of range", ErrInvalidRule, r.TimeOfDay)
	case r.EndOfDay && r.TimeOfDay != 0:
		return fmt.Errorf("%w: end of day with time %v", ErrInvalidRule, r.TimeOfDay)
	case r.StartYear > r.EndYear:
		return fmt.Errorf("%w: start year %d after end year %d", ErrInvalidRule, r.StartYear, r.EndYear)
	}
	return nil
}

// yearRule is a Rule for a single year.
type yearRule struct {
	Rule
	year int
}

// epochDay resolves the day of the rule in its year.
func (r yearRule) epochDay() int64 {
	var day int64
	if r.DayOfMonth < 0 {
		day = calendar.EpochDay(r.year, r.Month, calendar.DaysInMonth(r.year, r.Month)+1+r.DayOfMonth)
		if r.Weekday != zonerules.AnyWeekday {
			day = calendar.PreviousOrSame(day, r.Weekday)
		}
	} else {
		day = calendar.EpochDay(r.year, r.Month, r.DayOfMonth)
		if r.Weekday != zonerules.AnyWeekday {
			day = calendar.NextOrSame(day, r.Weekday)
		}
	}
	if r.EndOfDay {
		day++
	}
	return day
}

func compareYearRules(a, b yearRule) int {
	return cmp.Or(
		cmp.Compare(a.year, b.year),
		cmp.Compare(a.Month, b.Month),
		cmp.Compare(a.epochDay(), b.epochDay()),
		cmp.Compare(a.TimeOfDay, b.TimeOfDay),
	)
}

// change is a wall offset change that may turn out to be no change.
type change struct {
	local         zonerules.LocalDateTime
	before, after zonerules.Offset
}

func (c change) epochSecond() int64 { return c.local.EpochSecond(c.before) }

// change returns the wall offset change of the rule in its year, given the
// standard offset and the savings in effect before it.
func (r yearRule) change(std, savingsBefore zonerules.Offset) change {
	secs := r.epochDay()*calendar.SecondsPerDay + int64(r.TimeOfDay/time.Second)
	local := zonerules.LocalDateTimeOf(secs, 0, zonerules.UTC)
	wall := std + savingsBefore
	return change{
		local:  r.Definition.DateTime(local, std, wall),
		before: wall,
		after:  std + r.Savings,
	}
}

// transitionRule returns the recurring form of the rule. It reports false
// if the rule does not change the offset.
func (r yearRule) transitionRule(std, savingsBefore zonerules.Offset) (zonerules.TransitionRule, bool, error) {
	if r.DayOfMonth < 0 && r.Month != time.February && r.Weekday != zonerules.AnyWeekday {
		// The last Sunday of October is the first Sunday on or after the 25th.
		r.DayOfMonth = calendar.MaxDaysInMonth(r.Month) + 1 + r.DayOfMonth - 6
	}
	if r.EndOfDay && r.DayOfMonth > 0 && !(r.DayOfMonth == 28 && r.Month == time.February) {
		_, r.Month, r.DayOfMonth = calendar.Date(calendar.EpochDay(2004, r.Month, r.DayOfMonth) + 1)
		if r.Weekday != zonerules.AnyWeekday {
			r.Weekday = (r.Weekday + 1) % 7
		}
		r.EndOfDay = false
	}
	c := r.change(std, savingsBefore)
	if c.before == c.after {
		return zonerules.TransitionRule{}, false, nil
	}
	tr, err := zonerules.NewTransitionRule(r.Month, r.DayOfMonth, r.Weekday, r.TimeOfDay, r.EndOfDay, r.Definition, std, c.before, c.after)
	if err != nil {
		return zonerules.TransitionRule{}, false, err
	}
	return tr, true, nil
}

// window is a period of a zone with one standard offset and either fixed
// savings or a list of rules.
type window struct {
	std     zonerules.Offset
	end     zonerules.LocalDateTime
	def     zonerules.TimeDefinition
	forever bool

	fixed        bool
	fixedSavings zonerules.Offset

	rules     []yearRule
	lastRules []yearRule
	// maxLastStart is the latest start year of the last rules.
	maxLastStart int
}

func (w *window) setFixedSavings(savings zonerules.Offset) error {
	if len(w.rules) > 0 || len(w.lastRules) > 0 {
		return fmt.Errorf("%w: window has rules and cannot have fixed savings", ErrInvalidState)
	}
	w.fixed, w.fixedSavings = true, savings
	return nil
}

func (w *window) addRule(r Rule) error {
	if w.fixed {
		return fmt.Errorf("%w: window has fixed savings and cannot have rules", ErrInvalidState)
	}
	last := r.EndYear == Forever
	if last {
		r.EndYear = r.StartYear
		w.maxLastStart = max(w.maxLastStart, r.StartYear)
	}
	for year := r.StartYear; year <= r.EndYear; year++ {
		if last {
			w.lastRules = append(w.lastRules, yearRule{r, year})
			continue
		}
		if len(w.rules) >= maxWindowRules {
			return fmt.Errorf("%w: window has more than %d rules", ErrInvalidState, maxWindowRules)
		}
		w.rules = append(w.rules, yearRule{r, year})
	}
	return nil
}

// tidy expands the last rules into concrete years. For a window that never
// ends they are expanded up to the year after the latest start year and
// kept as recurring rules from there on; otherwise they are expanded to the
// year after the window end and dropped.
func (w *window) tidy(startYear int) error {
	if len(w.lastRules) == 1 {
		return fmt.Errorf("%w: a single rule cannot run forever", ErrInvalidState)
	}
	if w.forever {
		w.maxLastStart = max(w.maxLastStart, startYear) + 1
		for i, r := range w.lastRules {
			if err := w.addRule(r.Rule.withYears(r.year, w.maxLastStart)); err != nil {
				return err
			}
			w.lastRules[i].year = w.maxLastStart + 1
		}
	} else {
		for _, r := range w.lastRules {
			if err := w.addRule(r.Rule.withYears(r.year, w.end.Year+1)); err != nil {
				return err
			}
		}
		w.lastRules = nil
	}
	slices.SortStableFunc(w.rules, compareYearRules)
	slices.SortStableFunc(w.lastRules, compareYearRules)
	if len(w.rules) == 0 && !w.fixed {
		w.fixed, w.fixedSavings = true, 0
	}
	return nil
}

func (r Rule) withYears(start, end int) Rule {
	r.StartYear, r.EndYear = start, end
	return r
}

// endEpochSecond returns the instant the window ends at, given the savings
// in effect at its end.
func (w *window) endEpochSecond(savings zonerules.Offset) int64 {
	if w.forever {
		return math.MaxInt64
	}
	wall := w.std + savings
	return w.def.DateTime(w.end, w.std, wall).EpochSecond(wall)
}

func (w *window) clone() *window {
	c := *w
	c.rules = slices.Clone(w.rules)
	c.lastRules = slices.Clone(w.lastRules)
	return &c
}

// Builder assembles the RuleSet of a zone from a sequence of windows, each
// with a standard offset and either fixed savings or savings rules. The
// zero value is ready to use.
//
// Windows are added in time order. Rules and fixed savings apply to the
// window added last.
type Builder struct {
	windows []*window
}

// AddWindow adds a window that ends at until, read in the given time
// definition.
func (b *Builder) AddWindow(std zonerules.Offset, until zonerules.LocalDateTime, def zonerules.TimeDefinition) error {
	return b.addWindow(&window{std: std, end: until, def: def, maxLastStart: math.MinInt})
}

// AddWindowForever adds the window that never ends. No window can follow it.
func (b *Builder) AddWindowForever(std zonerules.Offset) error {
	return b.addWindow(&window{std: std, def: zonerules.WallClock, forever: true, maxLastStart: math.MinInt})
}

func (b *Builder) addWindow(w *window) error {
	if len(b.windows) > 0 {
		prev := b.windows[len(b.windows)-1]
		if prev.forever {
			return fmt.Errorf("%w: window added after the window that never ends", ErrInvalidState)
		}
		if !w.forever && w.end.Before(prev.end) {
			return fmt.Errorf("%w: window end %v is before %v", ErrInvalidState, w.end, prev.end)
		}
	}
	b.windows = append(b.windows, w)
	return nil
}

func (b *Builder) last() (*window, error) {
	if len(b.windows) == 0 {
		return nil, fmt.Errorf("%w: no window added", ErrInvalidState)
	}
	return b.windows[len(b.windows)-1], nil
}

// SetFixedSavings sets the savings of the last window.
func (b *Builder) SetFixedSavings(savings zonerules.Offset) error {
	w, err := b.last()
	if err != nil {
		return err
	}
	return w.setFixedSavings(savings)
}

// AddRule adds a rule to the last window.
func (b *Builder) AddRule(r Rule) error {
	w, err := b.last()
	if err != nil {
		return err
	}
	if err := r.validate(); err != nil {
		return err
	}
	return w.addRule(r)
}

// Build returns the rules of the zone. The builder can be reused.
func (b *Builder) Build() (*zonerules.RuleSet, error) {
	if len(b.windows) == 0 {
		return nil, fmt.Errorf("%w: no window added", ErrInvalidState)
	}
	var (
		standardTransitions []zonerules.Transition
		transitions         []zonerules.Transition
		rules               []zonerules.TransitionRule
	)

	first := b.windows[0]
	loopStd := first.std
	var loopSavings zonerules.Offset
	if first.fixed {
		loopSavings = first.fixedSavings
	}
	firstWall := loopStd + loopSavings
	loopStartYear := math.MinInt32
	loopStart := int64(math.MinInt64)
	loopWall := firstWall

	for i, orig := range b.windows {
		w := orig.clone()
		if err := w.tidy(loopStartYear); err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}

		// The savings in effect when the window starts are those of the
		// last rule of this window that took effect before.
		savings := w.fixedSavings
		if !w.fixed {
			savings = 0
			for _, r := range w.rules {
				if r.change(loopStd, loopSavings).epochSecond() > loopStart {
					break
				}
				savings = r.Savings
			}
		}

		if loopStd != w.std {
			t, err := zonerules.NewTransition(zonerules.LocalDateTimeOf(loopStart, 0, loopStd), loopStd, w.std)
			if err != nil {
				return nil, fmt.Errorf("window %d: standard transition: %w", i, err)
			}
			standardTransitions = append(standardTransitions, t)
			loopStd = w.std
		}

		if wall := loopStd + savings; loopWall != wall {
			t, err := zonerules.NewTransition(zonerules.LocalDateTimeOf(loopStart, 0, loopWall), loopWall, wall)
			if err != nil {
				return nil, fmt.Errorf("window %d: start transition: %w", i, err)
			}
			if transitions, err = appendTransition(transitions, t); err != nil {
				return nil, fmt.Errorf("window %d: %w", i, err)
			}
		}
		loopSavings = savings

		for _, r := range w.rules {
			c := r.change(loopStd, loopSavings)
			sec := c.epochSecond()
			if sec < loopStart || sec >= w.endEpochSecond(loopSavings) || c.before == c.after {
				continue
			}
			t, err := zonerules.NewTransition(c.local, c.before, c.after)
			if err != nil {
				return nil, fmt.Errorf("window %d: rule %d %v: %w", i, r.year, r.Month, err)
			}
			if transitions, err = appendTransition(transitions, t); err != nil {
				return nil, fmt.Errorf("window %d: %w", i, err)
			}
			loopSavings = r.Savings
		}

		for _, r := range w.lastRules {
			tr, ok, err := r.transitionRule(loopStd, loopSavings)
			if err != nil {
				return nil, fmt.Errorf("window %d: recurring rule %v: %w", i, r.Month, err)
			}
			if ok {
				rules = append(rules, tr)
			}
			loopSavings = r.Savings
		}

		loopWall = w.std + loopSavings
		if !w.forever {
			loopStart = w.endEpochSecond(loopSavings)
			loopStartYear = zonerules.LocalDateTimeOf(loopStart, 0, loopWall).Year
		}
	}
	return zonerules.New(first.std, firstWall, standardTransitions, transitions, rules)
}

// appendTransition appends t, merging it into the last transition if both
// happen at the same instant.
func appendTransition(ts []zonerules.Transition, t zonerules.Transition) ([]zonerules.Transition, error) {
	if len(ts) == 0 {
		return append(ts, t), nil
	}
	last := ts[len(ts)-1]
	switch {
	case t.EpochSecond() > last.EpochSecond():
		return append(ts, t), nil
	case t.EpochSecond() < last.EpochSecond():
		return nil, fmt.Errorf("%w: transition %v before %v", ErrInvalidState, t, last)
	case last.OffsetBefore() == t.OffsetAfter():
		return ts[:len(ts)-1], nil
	}
	merged, err := zonerules.NewTransition(last.DateTimeBefore(), last.OffsetBefore(), t.OffsetAfter())
	if err != nil {
		return nil, err
	}
	ts[len(ts)-1] = merged
	return ts, nil
}
