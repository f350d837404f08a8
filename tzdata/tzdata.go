// Package tzdata parses the time zone source files published by IANA at
// https://www.iana.org/time-zones, as described in zic(8).
//
// Only Rule, Zone and Link lines are recognized. Leap second files are
// rejected because the rule engine works on POSIX time.
package tzdata

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// File is the result of parsing one or more source files. Zones, rules and
// links appear in input order.
type File struct {
	Zones []Zone
	Rules []Rule
	Links []Link
}

// Merge appends the contents of o to f.
func (f *File) Merge(o File) {
	f.Zones = append(f.Zones, o.Zones...)
	f.Rules = append(f.Rules, o.Rules...)
	f.Links = append(f.Links, o.Links...)
}

// RulesNamed returns the rule lines with the given name in input order.
func (f *File) RulesNamed(name string) []Rule {
	var rules []Rule
	for _, r := range f.Rules {
		if r.Name == name {
			rules = append(rules, r)
		}
	}
	return rules
}

// parseError is an error in a specific line of the input.
type parseError struct {
	lineNumber int
	line       string
	err        error
}

func (e *parseError) Error() string {
	return fmt.Sprintf("line %d: %q: %v", e.lineNumber, e.line, e.err)
}

func (e *parseError) Unwrap() error { return e.err }

// Line returns the line number of the error, or 0 if err is not a parse error.
func Line(err error) int {
	var pe *parseError
	if errors.As(err, &pe) {
		return pe.lineNumber
	}
	return 0
}

// ErrLeapSeconds is returned for Leap and Expires lines.
var ErrLeapSeconds = errors.New("leap second data is not supported")

// Parse parses a source file.
func Parse(r io.Reader) (File, error) {
	var (
		result     File
		lineNumber int
		// zone is the zone whose continuation line is expected next.
		zone *Zone
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		fields := splitLine(line)
		if len(fields) == 0 {
			continue
		}
		wrap := func(what string, err error) error {
			return &parseError{lineNumber, line, fmt.Errorf("parse %s: %w", what, err)}
		}

		if zone != nil {
			zl, err := parseZoneContinuation(fields)
			if err != nil {
				return result, wrap("zone continuation", err)
			}
			zone.Lines = append(zone.Lines, zl)
			if !zl.Until.Defined {
				result.Zones = append(result.Zones, *zone)
				zone = nil
			}
			continue
		}

		switch fields[0] {
		case "Zone":
			z, err := parseZone(fields)
			if err != nil {
				return result, wrap("zone", err)
			}
			if z.Lines[0].Until.Defined {
				zone = &z
			} else {
				result.Zones = append(result.Zones, z)
			}
		case "Rule":
			rule, err := parseRule(fields)
			if err != nil {
				return result, wrap("rule", err)
			}
			result.Rules = append(result.Rules, rule)
		case "Link":
			link, err := parseLink(fields)
			if err != nil {
				return result, wrap("link", err)
			}
			result.Links = append(result.Links, link)
		case "Leap", "Expires":
			return result, wrap(strings.ToLower(fields[0]), ErrLeapSeconds)
		default:
			return result, &parseError{lineNumber, line, errors.New("unexpected line")}
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("scanner: %w", err)
	}
	if zone != nil {
		return result, &parseError{lineNumber, "", fmt.Errorf("zone %s: missing continuation line", zone.Name)}
	}
	return result, nil
}

// Year is a year in the proleptic Gregorian calendar.
type Year int

const (
	// MinYear means the indefinite past.
	MinYear Year = math.MinInt
	// MaxYear means the indefinite future.
	MaxYear Year = math.MaxInt
)

func (y Year) String() string {
	switch y {
	case MinYear:
		return "min"
	case MaxYear:
		return "max"
	}
	return strconv.Itoa(int(y))
}

// TimeForm says how a time of day is to be read.
type TimeForm int

const (
	WallClock TimeForm = iota
	StandardTime
	DaylightSavingTime
	UniversalTime
)

func (f TimeForm) String() string {
	switch f {
	case WallClock:
		return "WallClock"
	case StandardTime:
		return "StandardTime"
	case DaylightSavingTime:
		return "DaylightSavingTime"
	case UniversalTime:
		return "UniversalTime"
	default:
		return "<UNDEFINED>"
	}
}

// DayForm is the form of the ON field of a rule.
type DayForm int

const (
	DayFormDayNum DayForm = iota // 5
	DayFormLast                  // lastSun
	DayFormAfter                 // Sun>=8
	DayFormBefore                // Sun<=25
)

func (f DayForm) String() string {
	switch f {
	case DayFormDayNum:
		return "DayNum"
	case DayFormLast:
		return "Last"
	case DayFormAfter:
		return "After"
	case DayFormBefore:
		return "Before"
	default:
		return "<UNDEFINED>"
	}
}

// Time is a duration since 00:00 together with how it is to be read.
type Time struct {
	time.Duration
	Form TimeForm
}

// Day is the ON field of a rule or the day of an UNTIL field.
type Day struct {
	Form DayForm
	Num  int
	Day  time.Weekday
}

// Rule is a rule line.
type Rule struct {
	Name   string
	From   Year
	To     Year
	In     time.Month
	On     Day
	At     Time
	Save   Time
	Letter string
}

// Zone is a zone line together with its continuation lines. Only the last
// line has no UNTIL.
type Zone struct {
	Name  string
	Lines []ZoneLine
}

// ZoneLine is one line of a zone without the zone name.
type ZoneLine struct {
	StdOff time.Duration
	Rules  ZoneRules
	Format string
	Until  Until
}

// ZoneRulesForm is the form of the RULES field of a zone line.
type ZoneRulesForm int

const (
	// ZoneRulesStandard means standard time always applies because the
	// RULES field is "-".
	ZoneRulesStandard ZoneRulesForm = iota
	// ZoneRulesName means the RULES field names rule lines.
	ZoneRulesName
	// ZoneRulesTime means the RULES field is a fixed amount of saving.
	ZoneRulesTime
)

func (f ZoneRulesForm) String() string {
	switch f {
	case ZoneRulesStandard:
		return "Standard"
	case ZoneRulesName:
		return "Name"
	case ZoneRulesTime:
		return "Time"
	default:
		return "<UNDEFINED>"
	}
}

// ZoneRules is the RULES field of a zone line.
type ZoneRules struct {
	Form ZoneRulesForm
	Name string // if Form is ZoneRulesName
	Time Time   // if Form is ZoneRulesTime
}

// Until is the UNTIL field of a zone line. Omitted trailing parts are
// filled in with their earliest value, so "1980" reads as
// "1980 Jan 1 0:00" wall clock time.
type Until struct {
	Defined bool
	Year    int
	Month   time.Month
	Day     Day
	Time    Time
}

// Link is a link line. Name is an alias of the zone Target.
type Link struct {
	Target string
	Name   string
}

// splitLine strips comments and splits a line into fields.
// It returns nil for comment and empty lines.
//
// zic(8) says:
//
//	Input lines are made up of fields.  Fields are separated from one
//	another by one or more white space characters.  [...]  An unquoted
//	sharp character (#) in the input introduces a comment which extends
//	to the end of the line the sharp character appears on.
func splitLine(line string) []string {
	if i := strings.IndexByte(line, '#'); i != -1 {
		line = line[:i]
	}
	return strings.Fields(line)
}

// parseZone parses a zone line.
//
//	Zone  NAME        STDOFF  RULES   FORMAT  [UNTIL]
//	Zone  Asia/Amman  2:00    Jordan  EE%sT   2017 Oct 27 01:00
func parseZone(fields []string) (Zone, error) {
	if len(fields) < 5 || len(fields) > 9 {
		return Zone{}, fmt.Errorf("expected 5 to 9 fields, got %d", len(fields))
	}
	name, err := parseZoneName(fields[1])
	line, lineErr := parseZoneFields(fields[2:])
	if err = errors.Join(err, lineErr); err != nil {
		return Zone{}, err
	}
	return Zone{Name: name, Lines: []ZoneLine{line}}, nil
}

// parseZoneContinuation parses a continuation line, which is a zone line
// without "Zone" and the name.
func parseZoneContinuation(fields []string) (ZoneLine, error) {
	if len(fields) < 3 || len(fields) > 7 {
		return ZoneLine{}, fmt.Errorf("expected 3 to 7 fields, got %d", len(fields))
	}
	return parseZoneFields(fields)
}

func parseZoneFields(fields []string) (ZoneLine, error) {
	var (
		z    ZoneLine
		errs error
		err  error
	)
	if z.StdOff, err = parseDuration(fields[0]); err != nil {
		errs = errors.Join(errs, fmt.Errorf("STDOFF %q: %w", fields[0], err))
	}
	z.Rules = parseZoneRules(fields[1])
	z.Format, _ = unquote(fields[2])
	if len(fields) > 3 {
		if z.Until, err = parseUntil(fields[3:]); err != nil {
			errs = errors.Join(errs, fmt.Errorf("UNTIL %q: %w", strings.Join(fields[3:], " "), err))
		}
	}
	return z, errs
}

func parseZoneName(s string) (string, error) {
	for _, part := range strings.Split(s, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("NAME %q: invalid file name component", s)
		}
	}
	return s, nil
}

// parseZoneRules parses the RULES field. Anything that is neither "-" nor
// a SAVE value is taken as a rule name; whether such rules exist is only
// known once all files are parsed.
func parseZoneRules(s string) ZoneRules {
	if s == "-" {
		return ZoneRules{Form: ZoneRulesStandard}
	}
	if t, err := parseSave(s); err == nil {
		return ZoneRules{Form: ZoneRulesTime, Time: t}
	}
	return ZoneRules{Form: ZoneRulesName, Name: s}
}

// parseUntil parses the one to four fields YEAR [MONTH [DAY [TIME]]].
func parseUntil(fields []string) (Until, error) {
	u := Until{
		Month: time.January,
		Day:   Day{Form: DayFormDayNum, Num: 1},
	}
	year, err := strconv.Atoi(fields[0])
	if err != nil {
		return Until{}, fmt.Errorf("year: %w", err)
	}
	u.Year = year
	if len(fields) > 1 {
		if u.Month, err = parseMonth(fields[1]); err != nil {
			return Until{}, err
		}
	}
	if len(fields) > 2 {
		if u.Day, err = parseOn(fields[2]); err != nil {
			return Until{}, fmt.Errorf("day: %w", err)
		}
	}
	if len(fields) > 3 {
		if u.Time, err = parseAt(fields[3]); err != nil {
			return Until{}, fmt.Errorf("time: %w", err)
		}
	}
	u.Defined = true
	return u, nil
}

// parseRule parses a rule line.
//
//	Rule  NAME  FROM  TO    -  IN   ON       AT     SAVE   LETTER/S
//	Rule  US    1967  1973  -  Apr  lastSun  2:00w  1:00d  D
func parseRule(fields []string) (Rule, error) {
	if len(fields) != 10 {
		return Rule{}, fmt.Errorf("expected 10 fields, got %d", len(fields))
	}
	var (
		r    Rule
		errs error
		err  error
	)
	if r.Name, err = parseRuleName(fields[1]); err != nil {
		errs = errors.Join(errs, fmt.Errorf("NAME %q: %w", fields[1], err))
	}
	if r.From, err = parseYear(fields[2], 0, false); err != nil {
		errs = errors.Join(errs, fmt.Errorf("FROM %q: %w", fields[2], err))
	}
	if r.To, err = parseYear(fields[3], r.From, true); err != nil {
		errs = errors.Join(errs, fmt.Errorf("TO %q: %w", fields[3], err))
	}
	if fields[4] != "-" {
		errs = errors.Join(errs, fmt.Errorf("TYPE %q: must be \"-\"", fields[4]))
	}
	if r.In, err = parseMonth(fields[5]); err != nil {
		errs = errors.Join(errs, fmt.Errorf("IN %q: %w", fields[5], err))
	}
	if r.On, err = parseOn(fields[6]); err != nil {
		errs = errors.Join(errs, fmt.Errorf("ON %q: %w", fields[6], err))
	}
	if r.At, err = parseAt(fields[7]); err != nil {
		errs = errors.Join(errs, fmt.Errorf("AT %q: %w", fields[7], err))
	}
	if r.Save, err = parseSave(fields[8]); err != nil {
		errs = errors.Join(errs, fmt.Errorf("SAVE %q: %w", fields[8], err))
	}
	r.Letter, _ = unquote(fields[9])
	if r.Letter == "-" {
		r.Letter = ""
	}
	if errs == nil && r.From != MinYear && r.To != MaxYear && r.To < r.From {
		errs = fmt.Errorf("TO %v is before FROM %v", r.To, r.From)
	}
	return r, errs
}

// parseRuleName checks the NAME field of a rule line. It must not start
// with a digit or sign and, unless quoted, not contain any of
// !$%&'()*,/:;<=>?@[\]^`{|}~.
func parseRuleName(s string) (string, error) {
	if s[0] >= '0' && s[0] <= '9' || s[0] == '-' || s[0] == '+' {
		return "", errors.New("must not start with a digit or sign")
	}
	unquoted, quoted := unquote(s)
	if !quoted && strings.ContainsAny(s, "!$%&'()*,/:;<=>?@[\\]^`{|}~") {
		return "", errors.New("contains a special character")
	}
	return unquoted, nil
}

// parseLink parses a link line.
//
//	Link  TARGET           LINK-NAME
//	Link  Europe/Istanbul  Asia/Istanbul
func parseLink(fields []string) (Link, error) {
	if len(fields) != 3 {
		return Link{}, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}
	name, err := parseZoneName(fields[2])
	if err != nil {
		return Link{}, err
	}
	return Link{Target: fields[1], Name: name}, nil
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1], true
	}
	return s, false
}

// parseYear parses FROM and TO. The words "minimum", "maximum" and, for
// TO, "only" may be abbreviated.
func parseYear(s string, from Year, allowOnly bool) (Year, error) {
	l := strings.ToLower(s)
	switch {
	case isAbbrev(l, "minimum", "mi"):
		return MinYear, nil
	case isAbbrev(l, "maximum", "ma"):
		return MaxYear, nil
	case allowOnly && isAbbrev(l, "only", "o"):
		return from, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return Year(n), nil
}

var months = []string{"january", "february", "march", "april", "may", "june", "july", "august", "september", "october", "november", "december"}

func parseMonth(s string) (time.Month, error) {
	l := strings.ToLower(s)
	for i, m := range months {
		if isAbbrev(l, m, m[:3]) {
			return time.Month(i + 1), nil
		}
	}
	return 0, fmt.Errorf("invalid month %q", s)
}

// weekdays holds the shortest unambiguous abbreviation of each day.
var weekdays = []struct{ long, min string }{
	{"sunday", "su"},
	{"monday", "m"},
	{"tuesday", "tu"},
	{"wednesday", "w"},
	{"thursday", "th"},
	{"friday", "f"},
	{"saturday", "sa"},
}

func parseWeekday(s string) (time.Weekday, error) {
	l := strings.ToLower(s)
	for i, d := range weekdays {
		if isAbbrev(l, d.long, d.min) {
			return time.Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// parseOn parses the ON field.
//
// zic(8) says:
//
//	     5        the fifth of the month
//	     lastSun  the last Sunday in the month
//	     lastMon  the last Monday in the month
//	     Sun>=8   first Sunday on or after the eighth
//	     Sun<=25  last Sunday on or before the 25th
func parseOn(s string) (Day, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 31 {
			return Day{}, fmt.Errorf("day %d out of range", n)
		}
		return Day{Form: DayFormDayNum, Num: n}, nil
	}
	if rest, ok := strings.CutPrefix(s, "last"); ok {
		wd, err := parseWeekday(rest)
		if err != nil {
			return Day{}, err
		}
		return Day{Form: DayFormLast, Day: wd}, nil
	}
	form := DayFormBefore
	wd, n, ok := strings.Cut(s, "<=")
	if !ok {
		form = DayFormAfter
		wd, n, ok = strings.Cut(s, ">=")
	}
	if !ok {
		return Day{}, errors.New("expected a day, lastDay, Day>=N or Day<=N")
	}
	day, err := parseWeekday(wd)
	if err != nil {
		return Day{}, err
	}
	num, err := strconv.Atoi(n)
	if err != nil || num < 1 || num > 31 {
		return Day{}, fmt.Errorf("invalid day of month %q", n)
	}
	return Day{Form: form, Day: day, Num: num}, nil
}

// parseAt parses the AT field: a duration optionally followed by w (wall
// clock, the default), s (standard time) or u, g, z (universal time).
func parseAt(s string) (Time, error) {
	forms := map[byte]TimeForm{
		'w': WallClock,
		's': StandardTime,
		'u': UniversalTime,
		'g': UniversalTime,
		'z': UniversalTime,
	}
	t := Time{Form: WallClock}
	if n := len(s); n > 1 {
		if f, ok := forms[s[n-1]]; ok {
			t.Form = f
			s = s[:n-1]
		}
	}
	d, err := parseDuration(s)
	if err != nil {
		return Time{}, err
	}
	t.Duration = d
	return t, nil
}

// parseSave parses the SAVE field: a duration optionally followed by s
// (standard) or d (daylight saving). Without a suffix, zero is standard
// time and anything else daylight saving time.
func parseSave(s string) (Time, error) {
	form, explicit := DaylightSavingTime, false
	if n := len(s); n > 1 {
		switch s[n-1] {
		case 's':
			form, explicit, s = StandardTime, true, s[:n-1]
		case 'd':
			form, explicit, s = DaylightSavingTime, true, s[:n-1]
		}
	}
	d, err := parseDuration(s)
	if err != nil {
		return Time{}, err
	}
	if !explicit && d == 0 {
		form = StandardTime
	}
	return Time{Duration: d, Form: form}, nil
}

// parseDuration parses the time forms of zic(8):
//
//	2            time in hours
//	2:00         time in hours and minutes
//	01:28:14     time in hours, minutes, and seconds
//	00:19:32.13  time with fractional seconds
//	24:00        end of day, 24 hours after 00:00
//	-2:30        2.5 hours before 00:00
//	-            equivalent to 0
//
// Fractional seconds are rounded to the nearest second.
func parseDuration(s string) (time.Duration, error) {
	if s == "-" {
		return 0, nil
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, errors.New("too many colons")
	}
	var d time.Duration
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	for i, p := range parts {
		if i == 2 {
			f, err := strconv.ParseFloat(p, 64)
			if err != nil || f < 0 || f >= 60 || p[0] < '0' || p[0] > '9' {
				return 0, fmt.Errorf("invalid seconds %q", p)
			}
			d += time.Duration(f * float64(time.Second)).Round(time.Second)
			break
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || (i > 0 && n >= 60) {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		d += time.Duration(n) * units[i]
	}
	if neg {
		d = -d
	}
	return d, nil
}

// isAbbrev reports whether s is a prefix of long that is at least as long
// as min.
func isAbbrev(s, long, min string) bool {
	return strings.HasPrefix(s, min) && strings.HasPrefix(long, s)
}
