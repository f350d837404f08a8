package zonerules

import (
	"fmt"
	"time"
)

// Offset is a difference from UTC in seconds east of Greenwich.
type Offset int32

const (
	// MaxOffset is the largest supported offset, +18:00.
	MaxOffset Offset = 18 * 60 * 60
	// MinOffset is the smallest supported offset, -18:00.
	MinOffset Offset = -MaxOffset

	// UTC is the zero offset.
	UTC Offset = 0
)

// OffsetOf returns the offset for the given number of seconds.
// It fails with ErrInvalidArgument outside of [MinOffset, MaxOffset].
func OffsetOf(seconds int) (Offset, error) {
	o := Offset(seconds)
	if int(o) != seconds || !o.valid() {
		return 0, fmt.Errorf("%w: offset %ds out of range", ErrInvalidArgument, seconds)
	}
	return o, nil
}

// OffsetOfDuration is like OffsetOf but takes a time.Duration, which must be
// a whole number of seconds.
func OffsetOfDuration(d time.Duration) (Offset, error) {
	if d%time.Second != 0 {
		return 0, fmt.Errorf("%w: offset %v is not a whole number of seconds", ErrInvalidArgument, d)
	}
	return OffsetOf(int(d / time.Second))
}

func (o Offset) valid() bool {
	return o >= MinOffset && o <= MaxOffset
}

// Seconds returns the offset in seconds.
func (o Offset) Seconds() int {
	return int(o)
}

// Duration returns the offset as a time.Duration.
func (o Offset) Duration() time.Duration {
	return time.Duration(o) * time.Second
}

// Location returns a fixed time.Location with this offset.
func (o Offset) Location() *time.Location {
	return time.FixedZone(o.String(), int(o))
}

// String formats the offset as ±hh:mm, or ±hh:mm:ss if it has seconds.
func (o Offset) String() string {
	sign := byte('+')
	secs := int(o)
	if secs < 0 {
		sign = '-'
		secs = -secs
	}
	h, m, s := secs/3600, secs/60%60, secs%60
	if s != 0 {
		return fmt.Sprintf("%c%02d:%02d:%02d", sign, h, m, s)
	}
	return fmt.Sprintf("%c%02d:%02d", sign, h, m)
}
