package zonerules

import (
	"fmt"
	"time"

	"github.com/ngrash/go-tzrules/internal/calendar"
)

// LocalDateTime is a date and time without an offset, as seen on a wall
// clock. It is comparable; two values are equal if all fields are equal.
//
// The zero value is not a valid date. Use Date or one of the conversion
// functions to obtain normalized values.
type LocalDateTime struct {
	Year       int
	Month      time.Month
	Day        int
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

// Date returns the local date-time with the given fields. Like time.Date,
// values outside their usual ranges are normalized, so that October 32
// becomes November 1.
func Date(year int, month time.Month, day, hour, min, sec, nsec int) LocalDateTime {
	m := int64(month) - 1
	year += int(calendar.FloorDiv(m, 12))
	month = time.Month(calendar.FloorMod(m, 12) + 1)

	secs := calendar.EpochDay(year, month, day)*calendar.SecondsPerDay +
		int64(hour)*calendar.SecondsPerHour +
		int64(min)*calendar.SecondsPerMinute +
		int64(sec)
	secs += calendar.FloorDiv(int64(nsec), int64(time.Second))
	nsec = int(calendar.FloorMod(int64(nsec), int64(time.Second)))
	return fromLocalSecond(secs, nsec)
}

// LocalDateTimeOf returns the local date-time at the given instant as seen
// with the given offset.
func LocalDateTimeOf(epochSecond int64, nsec int, offset Offset) LocalDateTime {
	return fromLocalSecond(epochSecond+int64(offset), nsec)
}

// FromTime returns the wall clock fields of t in its own location.
func FromTime(t time.Time) LocalDateTime {
	y, m, d := t.Date()
	h, min, s := t.Clock()
	return LocalDateTime{y, m, d, h, min, s, t.Nanosecond()}
}

func fromLocalSecond(secs int64, nsec int) LocalDateTime {
	day := calendar.FloorDiv(secs, calendar.SecondsPerDay)
	sod := int(calendar.FloorMod(secs, calendar.SecondsPerDay))
	y, m, d := calendar.Date(day)
	return LocalDateTime{
		Year:       y,
		Month:      m,
		Day:        d,
		Hour:       sod / calendar.SecondsPerHour,
		Minute:     sod / calendar.SecondsPerMinute % 60,
		Second:     sod % 60,
		Nanosecond: nsec,
	}
}

// epochDay returns the date part as days since 1970-01-01.
func (dt LocalDateTime) epochDay() int64 {
	return calendar.EpochDay(dt.Year, dt.Month, dt.Day)
}

// localSecond returns the seconds since 1970-01-01T00:00 on the local time line.
func (dt LocalDateTime) localSecond() int64 {
	return dt.epochDay()*calendar.SecondsPerDay +
		int64(dt.Hour)*calendar.SecondsPerHour +
		int64(dt.Minute)*calendar.SecondsPerMinute +
		int64(dt.Second)
}

// EpochSecond returns the Unix time of the local date-time interpreted with
// the given offset. Nanoseconds are ignored.
func (dt LocalDateTime) EpochSecond(offset Offset) int64 {
	return dt.localSecond() - int64(offset)
}

// In returns the instant of the local date-time interpreted with the given
// offset, in a fixed location of that offset.
func (dt LocalDateTime) In(offset Offset) time.Time {
	return time.Unix(dt.EpochSecond(offset), int64(dt.Nanosecond)).In(offset.Location())
}

// AddSeconds returns the local date-time n seconds later.
func (dt LocalDateTime) AddSeconds(n int64) LocalDateTime {
	return fromLocalSecond(dt.localSecond()+n, dt.Nanosecond)
}

// AddDays returns the local date-time n days later.
func (dt LocalDateTime) AddDays(n int) LocalDateTime {
	return dt.AddSeconds(int64(n) * calendar.SecondsPerDay)
}

// Compare returns -1, 0 or +1 depending on whether dt is before, equal to or
// after o on the local time line.
func (dt LocalDateTime) Compare(o LocalDateTime) int {
	a, b := dt.localSecond(), o.localSecond()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case dt.Nanosecond < o.Nanosecond:
		return -1
	case dt.Nanosecond > o.Nanosecond:
		return 1
	}
	return 0
}

// Before reports whether dt is before o.
func (dt LocalDateTime) Before(o LocalDateTime) bool { return dt.Compare(o) < 0 }

// After reports whether dt is after o.
func (dt LocalDateTime) After(o LocalDateTime) bool { return dt.Compare(o) > 0 }

// String formats the local date-time in ISO 8601 form, 2006-01-02T15:04:05.
func (dt LocalDateTime) String() string {
	s := fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d", dt.Year, int(dt.Month), dt.Day, dt.Hour, dt.Minute, dt.Second)
	if dt.Nanosecond != 0 {
		s += fmt.Sprintf(".%09d", dt.Nanosecond)
	}
	return s
}

// ParseLocalDateTime parses the form produced by String, without fractional
// seconds.
func ParseLocalDateTime(s string) (LocalDateTime, error) {
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return LocalDateTime{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return FromTime(t), nil
}
