package zonerules

import (
	"errors"
	"fmt"
	"time"

	"github.com/ngrash/go-tzrules/internal/calendar"
)

// TimeDefinition says how the time of day of a TransitionRule is to be read.
type TimeDefinition uint8

const (
	// UniversalTime means the time of day is in UTC.
	UniversalTime TimeDefinition = iota
	// StandardTime means the time of day is in the standard offset.
	StandardTime
	// WallClock means the time of day is in the wall offset in effect
	// before the transition.
	WallClock
)

func (d TimeDefinition) String() string {
	switch d {
	case UniversalTime:
		return "UniversalTime"
	case StandardTime:
		return "StandardTime"
	case WallClock:
		return "WallClock"
	default:
		return "<UNDEFINED>"
	}
}

// DateTime converts dt, given in this time definition, to the wall clock
// time before the transition.
func (d TimeDefinition) DateTime(dt LocalDateTime, standard, wallBefore Offset) LocalDateTime {
	switch d {
	case UniversalTime:
		return dt.AddSeconds(int64(wallBefore - UTC))
	case StandardTime:
		return dt.AddSeconds(int64(wallBefore - standard))
	default:
		return dt
	}
}

// AnyWeekday is the weekday of a TransitionRule that is not adjusted to a
// day of the week.
const AnyWeekday time.Weekday = -1

// maxRuleTime is the first time of day that is out of range for a rule.
const maxRuleTime = 24 * time.Hour

// TransitionRule describes how to compute the transition of a year, such as
// "the last Sunday in March at 01:00 UTC".
//
// The day is given by a day-of-month indicator and an optional weekday. A
// positive indicator counts from the start of the month and moves forward
// to the weekday, so that day 8 with Sunday means the first Sunday on or
// after the 8th. A negative indicator counts from the end of the month and
// moves backward, so that -1 with Sunday means the last Sunday of the month.
type TransitionRule struct {
	month     time.Month
	dom       int8
	weekday   time.Weekday
	timeOfDay time.Duration
	endOfDay  bool
	def       TimeDefinition
	standard  Offset
	before    Offset
	after     Offset
}

// NewTransitionRule returns the rule for the given fields.
//
// It fails with ErrInvalidArgument if dayOfMonthIndicator is 0 or outside of
// [-28, 31], if it is larger than the longest length of month, if timeOfDay
// is not a whole number of seconds in [0, 24h), if endOfDay is set with a
// non-midnight timeOfDay, or if before and after are equal.
func NewTransitionRule(
	month time.Month,
	dayOfMonthIndicator int,
	weekday time.Weekday,
	timeOfDay time.Duration,
	endOfDay bool,
	def TimeDefinition,
	standard, before, after Offset,
) (TransitionRule, error) {
	var errs []error
	if month < time.January || month > time.December {
		errs = append(errs, fmt.Errorf("month %d out of range", month))
	} else if dayOfMonthIndicator > calendar.MaxDaysInMonth(month) {
		errs = append(errs, fmt.Errorf("day-of-month indicator %d too large for %v", dayOfMonthIndicator, month))
	}
	if dayOfMonthIndicator < -28 || dayOfMonthIndicator > 31 || dayOfMonthIndicator == 0 {
		errs = append(errs, fmt.Errorf("day-of-month indicator %d must be in [-28,31] and not zero", dayOfMonthIndicator))
	}
	if weekday != AnyWeekday && (weekday < time.Sunday || weekday > time.Saturday) {
		errs = append(errs, fmt.Errorf("weekday %d out of range", weekday))
	}
	if timeOfDay < 0 || timeOfDay >= maxRuleTime || timeOfDay%time.Second != 0 {
		errs = append(errs, fmt.Errorf("time of day %v must be whole seconds in [0,24h)", timeOfDay))
	}
	if endOfDay && timeOfDay != 0 {
		errs = append(errs, fmt.Errorf("time of day %v must be midnight at end of day", timeOfDay))
	}
	if def > WallClock {
		errs = append(errs, fmt.Errorf("time definition %d out of range", def))
	}
	if !standard.valid() || !before.valid() || !after.valid() {
		errs = append(errs, fmt.Errorf("offset out of range: standard %v, before %v, after %v", standard, before, after))
	}
	if before == after {
		errs = append(errs, fmt.Errorf("offsets before and after must differ, both are %v", before))
	}
	if len(errs) > 0 {
		return TransitionRule{}, fmt.Errorf("%w: transition rule: %w", ErrInvalidArgument, errors.Join(errs...))
	}
	return TransitionRule{
		month:     month,
		dom:       int8(dayOfMonthIndicator),
		weekday:   weekday,
		timeOfDay: timeOfDay,
		endOfDay:  endOfDay,
		def:       def,
		standard:  standard,
		before:    before,
		after:     after,
	}, nil
}

// Month returns the month of the transition.
func (r TransitionRule) Month() time.Month { return r.month }

// DayOfMonthIndicator returns the day-of-month indicator, negative if the
// day is counted from the end of the month.
func (r TransitionRule) DayOfMonthIndicator() int { return int(r.dom) }

// Weekday returns the weekday the day is adjusted to, or AnyWeekday.
func (r TransitionRule) Weekday() time.Weekday { return r.weekday }

// TimeOfDay returns the time of day of the transition. It is zero if
// IsEndOfDay is true.
func (r TransitionRule) TimeOfDay() time.Duration { return r.timeOfDay }

// IsEndOfDay reports whether the transition happens at 24:00, midnight at
// the end of the resolved day.
func (r TransitionRule) IsEndOfDay() bool { return r.endOfDay }

// TimeDefinition returns how TimeOfDay is to be read.
func (r TransitionRule) TimeDefinition() TimeDefinition { return r.def }

// StandardOffset returns the standard offset in effect at the transition.
func (r TransitionRule) StandardOffset() Offset { return r.standard }

// OffsetBefore returns the wall offset before the transition.
func (r TransitionRule) OffsetBefore() Offset { return r.before }

// OffsetAfter returns the wall offset after the transition.
func (r TransitionRule) OffsetAfter() Offset { return r.after }

// Transition returns the transition the rule describes for year.
// The result depends on nothing but the rule and year.
func (r TransitionRule) Transition(year int) Transition {
	var day int64
	if r.dom < 0 {
		day = calendar.EpochDay(year, r.month, calendar.DaysInMonth(year, r.month)+1+int(r.dom))
		if r.weekday != AnyWeekday {
			day = calendar.PreviousOrSame(day, r.weekday)
		}
	} else {
		// February 29 falls on March 1 in non-leap years.
		day = calendar.EpochDay(year, r.month, int(r.dom))
		if r.weekday != AnyWeekday {
			day = calendar.NextOrSame(day, r.weekday)
		}
	}
	if r.endOfDay {
		day++
	}
	local := fromLocalSecond(day*calendar.SecondsPerDay+int64(r.timeOfDay/time.Second), 0)
	local = r.def.DateTime(local, r.standard, r.before)
	return newTransition(local, r.before, r.after)
}

func (r TransitionRule) String() string {
	var day string
	switch {
	case r.weekday == AnyWeekday:
		day = fmt.Sprintf("%v %d", r.month, r.dom)
	case r.dom == -1:
		day = fmt.Sprintf("last %v of %v", r.weekday, r.month)
	case r.dom < 0:
		day = fmt.Sprintf("%v on or before last-%d of %v", r.weekday, -r.dom-1, r.month)
	default:
		day = fmt.Sprintf("%v on or after %v %d", r.weekday, r.month, r.dom)
	}
	at := "24:00"
	if !r.endOfDay {
		secs := int(r.timeOfDay / time.Second)
		at = fmt.Sprintf("%02d:%02d", secs/3600, secs/60%60)
		if secs%60 != 0 {
			at += fmt.Sprintf(":%02d", secs%60)
		}
	}
	kind := "Overlap"
	if r.after > r.before {
		kind = "Gap"
	}
	return fmt.Sprintf("TransitionRule[%s %v to %v, %s at %s %v, standard offset %v]",
		kind, r.before, r.after, day, at, r.def, r.standard)
}
