package zonerules

import (
	"fmt"
	"time"
)

// Transition is a discontinuity on the local time line caused by a change
// of the offset of a zone.
//
// A transition is a gap if the clocks jump forward, so that a range of local
// times never occurs, and an overlap if the clocks fall back, so that a range
// of local times occurs twice.
//
// Transitions are ordered by their instant with Compare, while Equal compares
// all fields. Two transitions at the same instant with different offsets
// therefore compare as 0 without being equal.
type Transition struct {
	epochSecond int64
	local       LocalDateTime
	before      Offset
	after       Offset
}

// NewTransition returns the transition at the local date-time local, given
// on the local time line before the transition, from offset before to offset
// after.
//
// It fails with ErrInvalidArgument if the offsets are equal or out of range,
// or if local has a non-zero nanosecond.
func NewTransition(local LocalDateTime, before, after Offset) (Transition, error) {
	if before == after {
		return Transition{}, fmt.Errorf("%w: transition offsets must differ, both are %v", ErrInvalidArgument, before)
	}
	if !before.valid() || !after.valid() {
		return Transition{}, fmt.Errorf("%w: transition offset out of range: %v to %v", ErrInvalidArgument, before, after)
	}
	if local.Nanosecond != 0 {
		return Transition{}, fmt.Errorf("%w: transition date-time %v has a sub-second part", ErrInvalidArgument, local)
	}
	return newTransition(local, before, after), nil
}

func newTransition(local LocalDateTime, before, after Offset) Transition {
	return Transition{
		epochSecond: local.EpochSecond(before),
		local:       local,
		before:      before,
		after:       after,
	}
}

// transitionAt returns the transition at the given instant.
func transitionAt(epochSecond int64, before, after Offset) Transition {
	return Transition{
		epochSecond: epochSecond,
		local:       LocalDateTimeOf(epochSecond, 0, before),
		before:      before,
		after:       after,
	}
}

// Instant returns the instant of the transition in UTC.
func (t Transition) Instant() time.Time {
	return time.Unix(t.epochSecond, 0).UTC()
}

// EpochSecond returns the Unix time of the transition.
func (t Transition) EpochSecond() int64 {
	return t.epochSecond
}

// DateTimeBefore returns the local date-time of the transition using the
// offset before it.
func (t Transition) DateTimeBefore() LocalDateTime {
	return t.local
}

// DateTimeAfter returns the local date-time of the transition using the
// offset after it.
func (t Transition) DateTimeAfter() LocalDateTime {
	return t.local.AddSeconds(int64(t.Duration() / time.Second))
}

// OffsetBefore returns the offset in effect before the transition.
func (t Transition) OffsetBefore() Offset {
	return t.before
}

// OffsetAfter returns the offset in effect after the transition.
func (t Transition) OffsetAfter() Offset {
	return t.after
}

// Duration returns by how much the clocks change. It is positive for gaps
// and negative for overlaps.
func (t Transition) Duration() time.Duration {
	return time.Duration(t.after-t.before) * time.Second
}

// IsGap reports whether the clocks jump forward.
func (t Transition) IsGap() bool {
	return t.after > t.before
}

// IsOverlap reports whether the clocks fall back.
func (t Transition) IsOverlap() bool {
	return t.after < t.before
}

// IsValidOffset reports whether offset is valid for a local date-time inside
// the transition. No offset is valid during a gap; both offsets are valid
// during an overlap.
func (t Transition) IsValidOffset(offset Offset) bool {
	if t.IsGap() {
		return false
	}
	return offset == t.before || offset == t.after
}

// ValidOffsets returns the offsets valid for a local date-time inside the
// transition: none for a gap, before and after for an overlap.
func (t Transition) ValidOffsets() []Offset {
	if t.IsGap() {
		return nil
	}
	return []Offset{t.before, t.after}
}

// Compare orders transitions by instant only.
func (t Transition) Compare(o Transition) int {
	switch {
	case t.epochSecond < o.epochSecond:
		return -1
	case t.epochSecond > o.epochSecond:
		return 1
	}
	return 0
}

// Equal reports whether both transitions have the same local date-time and
// offsets.
func (t Transition) Equal(o Transition) bool {
	return t.local == o.local && t.before == o.before && t.after == o.after
}

func (t Transition) String() string {
	kind := "Overlap"
	if t.IsGap() {
		kind = "Gap"
	}
	return fmt.Sprintf("Transition[%s at %v%v to %v]", kind, t.local, t.before, t.after)
}
