package tzif

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ngrash/go-tzrules/internal/calendar"
	"github.com/ngrash/go-tzrules/zonerules"
)

// ErrUnsupportedTZString is returned for TZ strings that cannot be
// expressed with transition rules, such as the Julian day forms.
var ErrUnsupportedTZString = errors.New("tzif: unsupported TZ string")

// defaultRuleTime is the transition time of a POSIX rule without one.
const defaultRuleTime = 2 * time.Hour

// maxExtendedTime bounds the transition times allowed by RFC 8536 section
// 3.3.1.
const maxExtendedTime = 167 * time.Hour

// posixDate is the Mm.w.d form of a POSIX rule date: weekday d of week w of
// month m, week 5 being the last.
type posixDate struct {
	month   time.Month
	week    int
	weekday time.Weekday
}

func (d posixDate) String() string {
	return fmt.Sprintf("M%d.%d.%d", d.month, d.week, d.weekday)
}

// dayOfMonthIndicator returns the rule day-of-month indicator of d.
func (d posixDate) dayOfMonthIndicator() int {
	if d.week == 5 {
		return -1
	}
	return 1 + 7*(d.week-1)
}

// posixDateOf returns the POSIX date of r, if there is one.
func posixDateOf(r zonerules.TransitionRule) (posixDate, bool) {
	if r.Weekday() == zonerules.AnyWeekday {
		return posixDate{}, false
	}
	d := posixDate{month: r.Month(), weekday: r.Weekday()}
	dom := r.DayOfMonthIndicator()
	switch {
	case dom == -1:
		d.week = 5
	case r.Month() != time.February && dom == calendar.MaxDaysInMonth(r.Month())-6:
		// The last seven days of a month of fixed length.
		d.week = 5
	case dom > 0 && dom <= 22 && (dom-1)%7 == 0:
		d.week = (dom-1)/7 + 1
	default:
		return posixDate{}, false
	}
	return d, true
}

// wallTime returns the time of day of r on the wall clock before the
// transition, counted from midnight of the rule's day.
func wallTime(r zonerules.TransitionRule) time.Duration {
	t := r.TimeOfDay()
	if r.IsEndOfDay() {
		t = 24 * time.Hour
	}
	switch r.TimeDefinition() {
	case zonerules.UniversalTime:
		t += r.OffsetBefore().Duration()
	case zonerules.StandardTime:
		t += (r.OffsetBefore() - r.StandardOffset()).Duration()
	}
	return t
}

// designation returns the abbreviation used for an offset, such as "+01"
// or "-0330".
func designation(o zonerules.Offset) string {
	sign := '+'
	secs := o.Seconds()
	if secs < 0 {
		sign, secs = '-', -secs
	}
	h, m, s := secs/3600, secs/60%60, secs%60
	switch {
	case s != 0:
		return fmt.Sprintf("%c%02d%02d%02d", sign, h, m, s)
	case m != 0:
		return fmt.Sprintf("%c%02d%02d", sign, h, m)
	}
	return fmt.Sprintf("%c%02d", sign, h)
}

// formatHMS formats a signed duration as h[:mm[:ss]].
func formatHMS(d time.Duration) string {
	var sb strings.Builder
	if d < 0 {
		sb.WriteByte('-')
		d = -d
	}
	secs := int(d / time.Second)
	sb.WriteString(strconv.Itoa(secs / 3600))
	if m, s := secs/60%60, secs%60; m != 0 || s != 0 {
		fmt.Fprintf(&sb, ":%02d", m)
		if s != 0 {
			fmt.Fprintf(&sb, ":%02d", s)
		}
	}
	return sb.String()
}

// formatTZString returns the TZ string describing the zone after its last
// explicit transition. The second result reports whether the string needs
// the extensions of version 3. It returns false if the rules cannot be
// written as a TZ string.
func formatTZString(wall zonerules.Offset, rules []zonerules.TransitionRule) (tz string, extended, ok bool) {
	if len(rules) == 0 {
		return fmt.Sprintf("<%s>%s", designation(wall), formatHMS(-wall.Duration())), false, true
	}
	if len(rules) != 2 {
		return "", false, false
	}
	start, end := rules[0], rules[1]
	if start.OffsetBefore() != start.StandardOffset() {
		start, end = end, start
	}
	std, dst := start.OffsetBefore(), start.OffsetAfter()
	if start.StandardOffset() != std || end.StandardOffset() != std || end.OffsetBefore() != dst || end.OffsetAfter() != std {
		return "", false, false
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<%s>%s<%s>", designation(std), formatHMS(-std.Duration()), designation(dst))
	if dst-std != 3600 {
		sb.WriteString(formatHMS(-dst.Duration()))
	}
	for _, r := range []zonerules.TransitionRule{start, end} {
		date, ok := posixDateOf(r)
		if !ok {
			return "", false, false
		}
		sb.WriteString("," + date.String())
		t := wallTime(r)
		if t != defaultRuleTime {
			sb.WriteString("/" + formatHMS(t))
		}
		if t < 0 || t > 24*time.Hour {
			extended = true
		}
		if t < -maxExtendedTime || t > maxExtendedTime {
			return "", false, false
		}
	}
	return sb.String(), extended, true
}

// tzSpec is a parsed TZ string.
type tzSpec struct {
	std, dst zonerules.Offset
	// rules holds the rules in the order their transitions occur within a
	// year. It is empty for a zone without daylight saving time.
	rules []zonerules.TransitionRule
}

// parseTZString parses a POSIX TZ string with the extensions of RFC 8536.
// Only rules in the Mm.w.d form are supported.
func parseTZString(s string) (tzSpec, error) {
	p := &tzParser{s: s}
	spec, err := p.parse()
	if err != nil {
		return tzSpec{}, fmt.Errorf("TZ string %q: %w", s, err)
	}
	return spec, nil
}

type tzParser struct {
	s string
	i int
}

func (p *tzParser) done() bool { return p.i >= len(p.s) }

func (p *tzParser) peek() byte {
	if p.done() {
		return 0
	}
	return p.s[p.i]
}

func (p *tzParser) parse() (tzSpec, error) {
	var spec tzSpec
	if err := p.name(); err != nil {
		return spec, err
	}
	off, err := p.hms(24 * time.Hour)
	if err != nil {
		return spec, fmt.Errorf("standard offset: %w", err)
	}
	if spec.std, err = zonerules.OffsetOfDuration(-off); err != nil {
		return spec, err
	}
	spec.dst = spec.std
	if p.done() {
		return spec, nil
	}

	if err := p.name(); err != nil {
		return spec, err
	}
	spec.dst = spec.std + 3600
	if c := p.peek(); c != ',' && c != 0 {
		off, err := p.hms(24 * time.Hour)
		if err != nil {
			return spec, fmt.Errorf("daylight saving offset: %w", err)
		}
		if spec.dst, err = zonerules.OffsetOfDuration(-off); err != nil {
			return spec, err
		}
	}
	if p.done() {
		return spec, fmt.Errorf("%w: no rules for daylight saving time", ErrUnsupportedTZString)
	}

	for _, offsets := range [][2]zonerules.Offset{{spec.std, spec.dst}, {spec.dst, spec.std}} {
		if p.peek() != ',' {
			return spec, fmt.Errorf("expected ',' at %d", p.i)
		}
		p.i++
		date, err := p.date()
		if err != nil {
			return spec, err
		}
		t := defaultRuleTime
		if p.peek() == '/' {
			p.i++
			if t, err = p.hms(maxExtendedTime); err != nil {
				return spec, fmt.Errorf("rule time: %w", err)
			}
		}
		r, err := posixRule(date, t, spec.std, offsets[0], offsets[1])
		if err != nil {
			return spec, err
		}
		spec.rules = append(spec.rules, r)
	}
	if !p.done() {
		return spec, fmt.Errorf("trailing characters %q", p.s[p.i:])
	}

	// Order the rules as their transitions occur, which differs between the
	// hemispheres.
	slices.SortFunc(spec.rules, func(a, b zonerules.TransitionRule) int {
		return a.Transition(2000).Compare(b.Transition(2000))
	})
	return spec, nil
}

// name skips a designation, either quoted in angle brackets or a run of at
// least three letters.
func (p *tzParser) name() error {
	if p.peek() == '<' {
		end := strings.IndexByte(p.s[p.i:], '>')
		if end < 0 {
			return errors.New("unterminated quoted designation")
		}
		p.i += end + 1
		return nil
	}
	start := p.i
	for c := p.peek(); 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'; c = p.peek() {
		p.i++
	}
	if p.i-start < 3 {
		return fmt.Errorf("designation at %d too short", start)
	}
	return nil
}

// hms parses [+-]h[:mm[:ss]] with hours up to max.
func (p *tzParser) hms(max time.Duration) (time.Duration, error) {
	neg := false
	switch p.peek() {
	case '-':
		neg = true
		p.i++
	case '+':
		p.i++
	}
	var parts []int
	for len(parts) < 3 {
		n, ok := p.number()
		if !ok {
			return 0, fmt.Errorf("expected number at %d", p.i)
		}
		parts = append(parts, n)
		if p.peek() != ':' {
			break
		}
		p.i++
	}
	d := time.Duration(parts[0]) * time.Hour
	for i, unit := range []time.Duration{time.Minute, time.Second} {
		if i+1 < len(parts) {
			if parts[i+1] > 59 {
				return 0, fmt.Errorf("%d out of range", parts[i+1])
			}
			d += time.Duration(parts[i+1]) * unit
		}
	}
	if d > max {
		return 0, fmt.Errorf("%v out of range", d)
	}
	if neg {
		d = -d
	}
	return d, nil
}

func (p *tzParser) number() (int, bool) {
	start := p.i
	for c := p.peek(); '0' <= c && c <= '9'; c = p.peek() {
		p.i++
	}
	if p.i == start || p.i-start > 3 {
		return 0, false
	}
	n, err := strconv.Atoi(p.s[start:p.i])
	return n, err == nil
}

func (p *tzParser) date() (posixDate, error) {
	if p.peek() != 'M' {
		return posixDate{}, fmt.Errorf("%w: rule date at %d is not in the M form", ErrUnsupportedTZString, p.i)
	}
	p.i++
	var fields [3]int
	for i := range fields {
		if i > 0 {
			if p.peek() != '.' {
				return posixDate{}, fmt.Errorf("expected '.' at %d", p.i)
			}
			p.i++
		}
		n, ok := p.number()
		if !ok {
			return posixDate{}, fmt.Errorf("expected number at %d", p.i)
		}
		fields[i] = n
	}
	d := posixDate{month: time.Month(fields[0]), week: fields[1], weekday: time.Weekday(fields[2])}
	if d.month < time.January || d.month > time.December || d.week < 1 || d.week > 5 || d.weekday > time.Saturday {
		return posixDate{}, fmt.Errorf("rule date %v out of range", d)
	}
	return d, nil
}

// posixRule returns the transition rule for a POSIX rule. Times outside of
// a day are moved to UTC, which keeps them within the day for the offsets
// in use.
func posixRule(date posixDate, t time.Duration, std, before, after zonerules.Offset) (zonerules.TransitionRule, error) {
	def := zonerules.WallClock
	endOfDay := false
	switch {
	case t == 24*time.Hour:
		t, endOfDay = 0, true
	case t < 0 || t > 24*time.Hour:
		t -= before.Duration()
		def = zonerules.UniversalTime
		if t < 0 || t >= 24*time.Hour {
			return zonerules.TransitionRule{}, fmt.Errorf("%w: rule time of %v out of range", ErrUnsupportedTZString, date)
		}
	}
	return zonerules.NewTransitionRule(date.month, date.dayOfMonthIndicator(), date.weekday, t, endOfDay, def, std, before, after)
}
