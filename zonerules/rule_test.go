package zonerules

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestTransitionRuleTransition(t *testing.T) {
	eu := euRules(t)
	us := usRules(t)
	cases := []struct {
		name string
		rule TransitionRule
		year int
		// want is the instant of the transition
		want time.Time
		// wantLocal is the local date-time before the transition
		wantLocal LocalDateTime
	}{
		{"EU spring 2024", eu[0], 2024, utc(2024, time.March, 31, 1, 0), local(2024, time.March, 31, 2, 0)},
		{"EU autumn 2024", eu[1], 2024, utc(2024, time.October, 27, 1, 0), local(2024, time.October, 27, 3, 0)},
		{"EU spring 2030", eu[0], 2030, utc(2030, time.March, 31, 1, 0), local(2030, time.March, 31, 2, 0)},
		{"EU spring 2025", eu[0], 2025, utc(2025, time.March, 30, 1, 0), local(2025, time.March, 30, 2, 0)},
		{"US spring 2024", us[0], 2024, utc(2024, time.March, 10, 7, 0), local(2024, time.March, 10, 2, 0)},
		{"US autumn 2024", us[1], 2024, utc(2024, time.November, 3, 6, 0), local(2024, time.November, 3, 2, 0)},
		{"US spring 2071", us[0], 2071, utc(2071, time.March, 8, 7, 0), local(2071, time.March, 8, 2, 0)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := c.rule.Transition(c.year)
			if !got.Instant().Equal(c.want) {
				t.Errorf("Transition(%d).Instant() = %v, want %v", c.year, got.Instant(), c.want)
			}
			if got.DateTimeBefore() != c.wantLocal {
				t.Errorf("Transition(%d).DateTimeBefore() = %v, want %v", c.year, got.DateTimeBefore(), c.wantLocal)
			}
		})
	}
}

func TestTransitionRuleDeterministic(t *testing.T) {
	for _, r := range append(euRules(t), usRules(t)...) {
		a, b := r.Transition(2030), r.Transition(2030)
		if !a.Equal(b) || a.Compare(b) != 0 {
			t.Errorf("%v: Transition(2030) differs between calls: %v, %v", r, a, b)
		}
		aBytes, _ := a.MarshalBinary()
		bBytes, _ := b.MarshalBinary()
		if diff := cmp.Diff(aBytes, bBytes); diff != "" {
			t.Errorf("%v: encoded Transition(2030) mismatch (-first +second):\n%s", r, diff)
		}
	}
}

func TestTransitionRuleDayResolution(t *testing.T) {
	cases := []struct {
		name     string
		month    time.Month
		dom      int
		wd       time.Weekday
		endOfDay bool
		year     int
		want     LocalDateTime
	}{
		{"fixed day", time.April, 6, AnyWeekday, false, 2021, local(2021, time.April, 6, 0, 0)},
		{"day of week later in month", time.March, 15, time.Sunday, false, 2021, local(2021, time.March, 21, 0, 0)},
		{"day of week in next month", time.March, 30, time.Sunday, false, 2021, local(2021, time.April, 4, 0, 0)},
		{"day of week in next year", time.December, 30, time.Sunday, false, 2021, local(2022, time.January, 2, 0, 0)},
		{"last saturday of leap february", time.February, -1, time.Saturday, false, 2020, local(2020, time.February, 29, 0, 0)},
		{"second to last day", time.April, -2, AnyWeekday, false, 2021, local(2021, time.April, 29, 0, 0)},
		{"leap day in leap year", time.February, 29, AnyWeekday, false, 2024, local(2024, time.February, 29, 0, 0)},
		{"leap day in non-leap year", time.February, 29, AnyWeekday, false, 2023, local(2023, time.March, 1, 0, 0)},
		{"end of day", time.October, 31, AnyWeekday, true, 2021, local(2021, time.November, 1, 0, 0)},
		{"end of day after weekday adjustment", time.March, -1, time.Saturday, true, 2021, local(2021, time.March, 28, 0, 0)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := mustRule(t, c.month, c.dom, c.wd, 0, c.endOfDay, WallClock, UTC, UTC, plus1)
			if got := r.Transition(c.year).DateTimeBefore(); got != c.want {
				t.Errorf("Transition(%d).DateTimeBefore() = %v, want %v", c.year, got, c.want)
			}
		})
	}
}

func TestTimeDefinitionDateTime(t *testing.T) {
	dt := local(2024, time.March, 31, 1, 0)
	cases := []struct {
		def  TimeDefinition
		want LocalDateTime
	}{
		{UniversalTime, local(2024, time.March, 31, 3, 0)},
		{StandardTime, local(2024, time.March, 31, 2, 0)},
		{WallClock, dt},
	}
	for _, c := range cases {
		// Standard offset +01:00, wall offset +02:00.
		if got := c.def.DateTime(dt, plus1, plus2); got != c.want {
			t.Errorf("%v.DateTime(%v) = %v, want %v", c.def, dt, got, c.want)
		}
	}
}

func TestNewTransitionRuleRejects(t *testing.T) {
	cases := []struct {
		name     string
		month    time.Month
		dom      int
		at       time.Duration
		endOfDay bool
		before   Offset
		after    Offset
	}{
		{"zero indicator", time.March, 0, 0, false, plus1, plus2},
		{"indicator too small", time.March, -29, 0, false, plus1, plus2},
		{"indicator too large", time.March, 32, 0, false, plus1, plus2},
		{"indicator beyond month", time.April, 31, 0, false, plus1, plus2},
		{"february 30", time.February, 30, 0, false, plus1, plus2},
		{"bad month", 13, 1, 0, false, plus1, plus2},
		{"end of day not midnight", time.March, 1, time.Hour, true, plus1, plus2},
		{"time too large", time.March, 1, 24 * time.Hour, false, plus1, plus2},
		{"negative time", time.March, 1, -time.Hour, false, plus1, plus2},
		{"fractional time", time.March, 1, time.Millisecond, false, plus1, plus2},
		{"equal offsets", time.March, 1, 0, false, plus1, plus1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewTransitionRule(c.month, c.dom, time.Sunday, c.at, c.endOfDay, WallClock, plus1, c.before, c.after)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("NewTransitionRule() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}
