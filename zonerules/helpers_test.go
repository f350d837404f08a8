package zonerules

import (
	"testing"
	"time"
)

const (
	plus1   Offset = 3600
	plus2   Offset = 7200
	minus4  Offset = -4 * 3600
	minus5  Offset = -5 * 3600
	plus530 Offset = 5*3600 + 1800
)

func utc(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func local(year int, month time.Month, day, hour, min int) LocalDateTime {
	return Date(year, month, day, hour, min, 0, 0)
}

func mustTransition(t *testing.T, dt LocalDateTime, before, after Offset) Transition {
	t.Helper()
	tr, err := NewTransition(dt, before, after)
	if err != nil {
		t.Fatalf("NewTransition(%v, %v, %v): %v", dt, before, after, err)
	}
	return tr
}

func mustRule(t *testing.T, month time.Month, dom int, wd time.Weekday, at time.Duration, endOfDay bool, def TimeDefinition, std, before, after Offset) TransitionRule {
	t.Helper()
	r, err := NewTransitionRule(month, dom, wd, at, endOfDay, def, std, before, after)
	if err != nil {
		t.Fatalf("NewTransitionRule: %v", err)
	}
	return r
}

// euRules returns the rules in use in Central Europe since 1996.
func euRules(t *testing.T) []TransitionRule {
	t.Helper()
	return []TransitionRule{
		mustRule(t, time.March, -1, time.Sunday, time.Hour, false, UniversalTime, plus1, plus1, plus2),
		mustRule(t, time.October, -1, time.Sunday, time.Hour, false, UniversalTime, plus1, plus2, plus1),
	}
}

// usRules returns the rules in use in the Eastern United States since 2007.
func usRules(t *testing.T) []TransitionRule {
	t.Helper()
	return []TransitionRule{
		mustRule(t, time.March, 8, time.Sunday, 2*time.Hour, false, WallClock, minus5, minus5, minus4),
		mustRule(t, time.November, 1, time.Sunday, 2*time.Hour, false, WallClock, minus5, minus4, minus5),
	}
}

// berlin returns a rule set with explicit transitions for 2019 and 2020
// followed by the EU rules.
func berlin(t *testing.T) *RuleSet {
	t.Helper()
	rules := euRules(t)
	var transitions []Transition
	for _, year := range []int{2019, 2020} {
		for _, r := range rules {
			transitions = append(transitions, r.Transition(year))
		}
	}
	rs, err := New(plus1, plus1, nil, transitions, rules)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return rs
}
