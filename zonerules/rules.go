package zonerules

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ngrash/go-tzrules/internal/calendar"
)

// MaxTransitionRules is the maximum number of recurring rules of a RuleSet.
const MaxTransitionRules = 16

// lastCachedYear is the first year whose rule transitions are not memoized.
const lastCachedYear = 2100

// RuleSet describes how the offset of a zone changes over time.
//
// It holds the historical transitions of the zone and a small number of
// TransitionRules that generate the transitions after the last historical
// one, year by year.
//
// A RuleSet is immutable and safe for concurrent use. Use New or Fixed to
// create one; RuleSets must not be copied after creation.
type RuleSet struct {
	// standardTransitions holds the instants at which the standard offset
	// changes, in increasing order.
	standardTransitions []int64
	// standardOffsets holds the standard offset before the first standard
	// transition and after each of them.
	standardOffsets []Offset
	// savingsInstantTransitions holds the instants at which the wall offset
	// changes, in increasing order.
	savingsInstantTransitions []int64
	// savingsLocalTransitions holds two local date-times per wall offset
	// transition: for a gap the local times before and after it, for an
	// overlap the local times after and before it. The pairs bound the
	// local times that are not normal.
	savingsLocalTransitions []LocalDateTime
	// wallOffsets holds the wall offset before the first transition and
	// after each of them.
	wallOffsets []Offset
	// rules generate the transitions after the last savings transition.
	rules []TransitionRule

	// yearCache maps a year to the []Transition its rules generate.
	yearCache sync.Map
}

// New returns the RuleSet for a zone whose standard offset starts at
// baseStandard and whose wall offset starts at baseWall.
//
// The standard transitions list changes of the standard offset, the
// transitions list changes of the wall offset. Both must be in strictly
// increasing order of their instants. The rules generate the transitions
// after the last of transitions and are used in the given order for each
// year.
//
// It fails with ErrInvalidArgument if there are more than
// MaxTransitionRules rules, if a list is not strictly increasing or if a
// transition does not start from the offset left by the one before it.
func New(baseStandard, baseWall Offset, standardTransitions, transitions []Transition, rules []TransitionRule) (*RuleSet, error) {
	if len(rules) > MaxTransitionRules {
		return nil, fmt.Errorf("%w: %d transition rules, at most %d allowed", ErrInvalidArgument, len(rules), MaxTransitionRules)
	}
	if !baseStandard.valid() || !baseWall.valid() {
		return nil, fmt.Errorf("%w: base offset out of range: standard %v, wall %v", ErrInvalidArgument, baseStandard, baseWall)
	}

	rs := &RuleSet{
		standardTransitions: make([]int64, len(standardTransitions)),
		standardOffsets:     make([]Offset, len(standardTransitions)+1),
	}
	rs.standardOffsets[0] = baseStandard
	for i, t := range standardTransitions {
		if i > 0 && t.epochSecond <= standardTransitions[i-1].epochSecond {
			return nil, fmt.Errorf("%w: standard transition %v is not after %v", ErrInvalidArgument, t, standardTransitions[i-1])
		}
		if t.before != rs.standardOffsets[i] {
			return nil, fmt.Errorf("%w: standard transition %v does not start from %v", ErrInvalidArgument, t, rs.standardOffsets[i])
		}
		rs.standardTransitions[i] = t.epochSecond
		rs.standardOffsets[i+1] = t.after
	}

	rs.savingsInstantTransitions = make([]int64, len(transitions))
	rs.savingsLocalTransitions = make([]LocalDateTime, 0, 2*len(transitions))
	rs.wallOffsets = make([]Offset, len(transitions)+1)
	rs.wallOffsets[0] = baseWall
	for i, t := range transitions {
		if i > 0 && t.epochSecond <= transitions[i-1].epochSecond {
			return nil, fmt.Errorf("%w: transition %v is not after %v", ErrInvalidArgument, t, transitions[i-1])
		}
		if t.before != rs.wallOffsets[i] {
			return nil, fmt.Errorf("%w: transition %v does not start from %v", ErrInvalidArgument, t, rs.wallOffsets[i])
		}
		rs.savingsInstantTransitions[i] = t.epochSecond
		rs.savingsLocalTransitions = appendLocalPair(rs.savingsLocalTransitions, t)
		rs.wallOffsets[i+1] = t.after
	}

	rs.rules = slices.Clone(rules)
	return rs, nil
}

// Fixed returns the RuleSet of a zone that always has the given offset.
func Fixed(offset Offset) (*RuleSet, error) {
	if !offset.valid() {
		return nil, fmt.Errorf("%w: offset %v out of range", ErrInvalidArgument, offset)
	}
	return &RuleSet{
		standardOffsets: []Offset{offset},
		wallOffsets:     []Offset{offset},
	}, nil
}

// fromArrays builds a RuleSet from its stored form. The caller checks the
// array lengths.
func fromArrays(standardTransitions []int64, standardOffsets []Offset, savingsTransitions []int64, wallOffsets []Offset, rules []TransitionRule) *RuleSet {
	rs := &RuleSet{
		standardTransitions:       standardTransitions,
		standardOffsets:           standardOffsets,
		savingsInstantTransitions: savingsTransitions,
		savingsLocalTransitions:   make([]LocalDateTime, 0, 2*len(savingsTransitions)),
		wallOffsets:               wallOffsets,
		rules:                     rules,
	}
	for i, sec := range savingsTransitions {
		rs.savingsLocalTransitions = appendLocalPair(rs.savingsLocalTransitions, transitionAt(sec, wallOffsets[i], wallOffsets[i+1]))
	}
	return rs
}

func appendLocalPair(locals []LocalDateTime, t Transition) []LocalDateTime {
	if t.IsGap() {
		return append(locals, t.DateTimeBefore(), t.DateTimeAfter())
	}
	return append(locals, t.DateTimeAfter(), t.DateTimeBefore())
}

// IsFixedOffset reports whether the offset never changes.
func (rs *RuleSet) IsFixedOffset() bool {
	return len(rs.standardTransitions) == 0 &&
		len(rs.savingsInstantTransitions) == 0 &&
		len(rs.rules) == 0 &&
		rs.standardOffsets[0] == rs.wallOffsets[0]
}

// usesRulesAfter reports whether instants after epochSecond are resolved
// with the transition rules.
func (rs *RuleSet) usesRulesAfter(epochSecond int64) bool {
	if len(rs.rules) == 0 {
		return false
	}
	n := len(rs.savingsInstantTransitions)
	return n == 0 || epochSecond > rs.savingsInstantTransitions[n-1]
}

// lastWallOffset returns the wall offset after the last historical transition.
func (rs *RuleSet) lastWallOffset() Offset {
	return rs.wallOffsets[len(rs.wallOffsets)-1]
}

// Offset returns the offset in effect at instant t.
func (rs *RuleSet) Offset(t time.Time) Offset {
	return rs.offsetAt(t.Unix())
}

func (rs *RuleSet) offsetAt(epochSecond int64) Offset {
	if rs.usesRulesAfter(epochSecond) {
		year := findYear(epochSecond, rs.lastWallOffset())
		var last Transition
		for _, trans := range rs.yearTransitions(year) {
			if epochSecond < trans.epochSecond {
				return trans.before
			}
			last = trans
		}
		return last.after
	}
	if len(rs.savingsInstantTransitions) == 0 {
		return rs.wallOffsets[0]
	}
	i := sort.Search(len(rs.savingsInstantTransitions), func(i int) bool {
		return rs.savingsInstantTransitions[i] > epochSecond
	})
	return rs.wallOffsets[i]
}

// findYear returns the year of the instant as seen with offset.
func findYear(epochSecond int64, offset Offset) int {
	localSecond := epochSecond + int64(offset)
	y, _, _ := calendar.Date(calendar.FloorDiv(localSecond, calendar.SecondsPerDay))
	return y
}

// yearTransitions returns the transitions the rules generate for year.
// Results for years before lastCachedYear are memoized.
func (rs *RuleSet) yearTransitions(year int) []Transition {
	if cached, ok := rs.yearCache.Load(year); ok {
		return cached.([]Transition)
	}
	transitions := make([]Transition, len(rs.rules))
	for i, rule := range rs.rules {
		transitions[i] = rule.Transition(year)
	}
	if year < lastCachedYear {
		// Racing callers compute equal slices; whichever is stored first wins.
		actual, _ := rs.yearCache.LoadOrStore(year, transitions)
		return actual.([]Transition)
	}
	return transitions
}

// offsetInfo is either a normal offset or, for local date-times inside a
// gap or overlap, the transition.
type offsetInfo struct {
	offset     Offset
	transition Transition
	inside     bool
}

func normal(o Offset) offsetInfo { return offsetInfo{offset: o} }

func inside(t Transition) offsetInfo { return offsetInfo{offset: t.before, transition: t, inside: true} }

func (rs *RuleSet) offsetInfo(dt LocalDateTime) offsetInfo {
	n := len(rs.savingsLocalTransitions)
	if len(rs.rules) > 0 && (n == 0 || dt.After(rs.savingsLocalTransitions[n-1])) {
		var info offsetInfo
		for _, trans := range rs.yearTransitions(dt.Year) {
			info = findOffsetInfo(dt, trans)
			if info.inside || info.offset == trans.before {
				return info
			}
		}
		return info
	}
	if n == 0 {
		return normal(rs.wallOffsets[0])
	}

	// Index of the first local transition not before dt.
	i := sort.Search(n, func(i int) bool {
		return !rs.savingsLocalTransitions[i].Before(dt)
	})
	found := i < n && rs.savingsLocalTransitions[i] == dt
	if !found {
		if i == 0 {
			return normal(rs.wallOffsets[0])
		}
		i--
	} else if i < n-1 && rs.savingsLocalTransitions[i] == rs.savingsLocalTransitions[i+1] {
		// An overlap ends where the next gap starts.
		i++
	}
	if i%2 == 1 {
		return normal(rs.wallOffsets[i/2+1])
	}
	before, after := rs.wallOffsets[i/2], rs.wallOffsets[i/2+1]
	if after > before {
		return inside(newTransition(rs.savingsLocalTransitions[i], before, after))
	}
	return inside(newTransition(rs.savingsLocalTransitions[i+1], before, after))
}

// findOffsetInfo classifies dt relative to a single transition.
func findOffsetInfo(dt LocalDateTime, trans Transition) offsetInfo {
	local := trans.DateTimeBefore()
	if trans.IsGap() {
		if dt.Before(local) {
			return normal(trans.before)
		}
		if dt.Before(trans.DateTimeAfter()) {
			return inside(trans)
		}
		return normal(trans.after)
	}
	if !dt.Before(local) {
		return normal(trans.after)
	}
	if dt.Before(trans.DateTimeAfter()) {
		return normal(trans.before)
	}
	return inside(trans)
}

// LocalOffset returns the best offset for the local date-time dt.
//
// A normal local date-time has exactly one valid offset. Inside a gap no
// offset is valid and inside an overlap two are; in both cases the offset
// before the transition is returned. Use ValidOffsets or TransitionAt to
// tell the cases apart.
func (rs *RuleSet) LocalOffset(dt LocalDateTime) Offset {
	return rs.offsetInfo(dt).offset
}

// ValidOffsets returns the offsets that are valid for the local date-time dt:
// one for a normal local date-time, none inside a gap and two inside an
// overlap.
func (rs *RuleSet) ValidOffsets(dt LocalDateTime) []Offset {
	info := rs.offsetInfo(dt)
	if info.inside {
		return info.transition.ValidOffsets()
	}
	return []Offset{info.offset}
}

// TransitionAt returns the transition whose gap or overlap contains the local
// date-time dt. It returns false for normal local date-times.
func (rs *RuleSet) TransitionAt(dt LocalDateTime) (Transition, bool) {
	info := rs.offsetInfo(dt)
	return info.transition, info.inside
}

// IsValidOffset reports whether offset is valid for the local date-time dt.
func (rs *RuleSet) IsValidOffset(dt LocalDateTime, offset Offset) bool {
	return slices.Contains(rs.ValidOffsets(dt), offset)
}

// StandardOffset returns the standard offset in effect at instant t.
func (rs *RuleSet) StandardOffset(t time.Time) Offset {
	epochSecond := t.Unix()
	i := sort.Search(len(rs.standardTransitions), func(i int) bool {
		return rs.standardTransitions[i] > epochSecond
	})
	return rs.standardOffsets[i]
}

// DaylightSavings returns by how much the offset at instant t differs from
// the standard offset.
func (rs *RuleSet) DaylightSavings(t time.Time) time.Duration {
	return rs.Offset(t).Duration() - rs.StandardOffset(t).Duration()
}

// IsDaylightSavings reports whether the offset at instant t differs from
// the standard offset.
func (rs *RuleSet) IsDaylightSavings(t time.Time) bool {
	return rs.Offset(t) != rs.StandardOffset(t)
}

// NextTransition returns the first transition strictly after instant t.
// It returns false if the offset never changes after t.
func (rs *RuleSet) NextTransition(t time.Time) (Transition, bool) {
	epochSecond := t.Unix()
	n := len(rs.savingsInstantTransitions)
	if n == 0 && len(rs.rules) == 0 {
		return Transition{}, false
	}
	if n == 0 || epochSecond >= rs.savingsInstantTransitions[n-1] {
		if len(rs.rules) == 0 {
			return Transition{}, false
		}
		year := findYear(epochSecond, rs.lastWallOffset())
		for _, trans := range rs.yearTransitions(year) {
			if epochSecond < trans.epochSecond {
				return trans, true
			}
		}
		return rs.yearTransitions(year + 1)[0], true
	}
	i := sort.Search(n, func(i int) bool {
		return rs.savingsInstantTransitions[i] > epochSecond
	})
	return transitionAt(rs.savingsInstantTransitions[i], rs.wallOffsets[i], rs.wallOffsets[i+1]), true
}

// PreviousTransition returns the last transition strictly before instant t.
// It returns false if the offset never changed before t.
func (rs *RuleSet) PreviousTransition(t time.Time) (Transition, bool) {
	epochSecond := t.Unix()
	if t.Nanosecond() > 0 {
		// A transition at the whole second before t is strictly before t.
		epochSecond++
	}
	n := len(rs.savingsInstantTransitions)
	if n == 0 && len(rs.rules) == 0 {
		return Transition{}, false
	}
	if rs.usesRulesAfter(epochSecond) {
		// Rule transitions count only after the last historical one, which
		// may fall in the year before or in the middle of the year itself.
		last := int64(math.MinInt64)
		if n > 0 {
			last = rs.savingsInstantTransitions[n-1]
		}
		year := findYear(epochSecond, rs.lastWallOffset())
		for _, y := range []int{year, year - 1} {
			transitions := rs.yearTransitions(y)
			for i := len(transitions) - 1; i >= 0; i-- {
				if sec := transitions[i].epochSecond; sec < epochSecond && sec > last {
					return transitions[i], true
				}
			}
		}
	}
	i := sort.Search(n, func(i int) bool {
		return rs.savingsInstantTransitions[i] >= epochSecond
	})
	if i == 0 {
		return Transition{}, false
	}
	return transitionAt(rs.savingsInstantTransitions[i-1], rs.wallOffsets[i-1], rs.wallOffsets[i]), true
}

// Transitions returns the historical wall offset transitions in order.
// Transitions generated by the rules are not included.
func (rs *RuleSet) Transitions() []Transition {
	out := make([]Transition, len(rs.savingsInstantTransitions))
	for i, sec := range rs.savingsInstantTransitions {
		out[i] = transitionAt(sec, rs.wallOffsets[i], rs.wallOffsets[i+1])
	}
	return out
}

// StandardTransitions returns the historical standard offset transitions in
// order.
func (rs *RuleSet) StandardTransitions() []Transition {
	out := make([]Transition, len(rs.standardTransitions))
	for i, sec := range rs.standardTransitions {
		out[i] = transitionAt(sec, rs.standardOffsets[i], rs.standardOffsets[i+1])
	}
	return out
}

// TransitionRules returns the rules that generate the transitions after the
// last historical transition.
func (rs *RuleSet) TransitionRules() []TransitionRule {
	return slices.Clone(rs.rules)
}

// Equal reports whether both rule sets hold the same transitions and rules.
func (rs *RuleSet) Equal(o *RuleSet) bool {
	if rs == o {
		return true
	}
	if rs == nil || o == nil {
		return false
	}
	return slices.Equal(rs.standardTransitions, o.standardTransitions) &&
		slices.Equal(rs.standardOffsets, o.standardOffsets) &&
		slices.Equal(rs.savingsInstantTransitions, o.savingsInstantTransitions) &&
		slices.Equal(rs.wallOffsets, o.wallOffsets) &&
		slices.Equal(rs.rules, o.rules)
}

func (rs *RuleSet) String() string {
	if rs.IsFixedOffset() {
		return fmt.Sprintf("RuleSet[fixed %v]", rs.wallOffsets[0])
	}
	return fmt.Sprintf("RuleSet[current standard offset %v, %d transitions, %d rules]",
		rs.standardOffsets[len(rs.standardOffsets)-1], len(rs.savingsInstantTransitions), len(rs.rules))
}
