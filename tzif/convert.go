package tzif

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/ngrash/go-tzrules/zonerules"
)

// DefaultEndYear is the last year whose rule transitions FromRuleSet
// writes explicitly, as zic does by default.
const DefaultEndYear = 2037

// ErrLeapSeconds is returned by ToRuleSet for files with leap second
// records, which rule sets cannot represent.
var ErrLeapSeconds = errors.New("tzif: leap seconds are not supported")

type options struct {
	endYear int
}

// Option configures FromRuleSet.
type Option func(*options)

// WithEndYear sets the last year whose rule transitions are written as
// explicit transitions. Later years rely on the TZ string in the footer.
func WithEndYear(year int) Option {
	return func(o *options) { o.endYear = year }
}

// blockBuilder collects local time types and designations.
type blockBuilder struct {
	block DataBlock
	types map[LocalTimeType]uint8
	names map[string]uint8
}

func (b *blockBuilder) typeIndex(o zonerules.Offset, dst bool) (uint8, error) {
	name := designation(o)
	idx, ok := b.names[name]
	if !ok {
		if len(b.block.Designations)+len(name)+1 > math.MaxUint8 {
			return 0, errors.New("tzif: too many designations")
		}
		idx = uint8(len(b.block.Designations))
		b.names[name] = idx
		b.block.Designations = append(b.block.Designations, name...)
		b.block.Designations = append(b.block.Designations, 0)
	}
	t := LocalTimeType{Utoff: int32(o), IsDST: dst, Idx: idx}
	i, ok := b.types[t]
	if !ok {
		if len(b.block.LocalTimeTypes) > math.MaxUint8 {
			return 0, errors.New("tzif: too many local time types")
		}
		i = uint8(len(b.block.LocalTimeTypes))
		b.types[t] = i
		b.block.LocalTimeTypes = append(b.block.LocalTimeTypes, t)
	}
	return i, nil
}

// FromRuleSet returns the TZif file of a rule set.
//
// The historical transitions are followed by the transitions the rules
// generate up to the end year. If the rules can be written as a TZ string,
// it is stored in the footer so that readers can extend the zone beyond
// the end year.
func FromRuleSet(rs *zonerules.RuleSet, opts ...Option) (File, error) {
	o := options{endYear: DefaultEndYear}
	for _, opt := range opts {
		opt(&o)
	}

	transitions := rs.Transitions()
	rules := rs.TransitionRules()
	if len(rules) > 0 {
		startYear, last := 1970, int64(math.MinInt64)
		if n := len(transitions); n > 0 {
			last = transitions[n-1].EpochSecond()
			startYear = transitions[n-1].DateTimeBefore().Year
		}
		for year := startYear; year <= o.endYear; year++ {
			generated := make([]zonerules.Transition, len(rules))
			for i, r := range rules {
				generated[i] = r.Transition(year)
			}
			slices.SortStableFunc(generated, zonerules.Transition.Compare)
			for _, t := range generated {
				if t.EpochSecond() > last {
					transitions = append(transitions, t)
					last = t.EpochSecond()
				}
			}
		}
	}

	b := blockBuilder{types: make(map[LocalTimeType]uint8), names: make(map[string]uint8)}
	base := rs.Offset(time.Unix(0, 0))
	baseStd := rs.StandardOffset(time.Unix(0, 0))
	if len(transitions) > 0 {
		first := transitions[0].EpochSecond() - 1
		base = transitions[0].OffsetBefore()
		baseStd = rs.StandardOffset(time.Unix(first, 0))
	}
	// Type 0 applies before the first transition.
	if _, err := b.typeIndex(base, base != baseStd); err != nil {
		return File{}, err
	}
	for _, t := range transitions {
		std := rs.StandardOffset(t.Instant())
		idx, err := b.typeIndex(t.OffsetAfter(), t.OffsetAfter() != std)
		if err != nil {
			return File{}, err
		}
		b.block.TransitionTimes = append(b.block.TransitionTimes, t.EpochSecond())
		b.block.TransitionTypes = append(b.block.TransitionTypes, idx)
	}

	f := File{Version: V2, V2: b.block}
	wall := base
	if n := len(transitions); n > 0 {
		wall = transitions[n-1].OffsetAfter()
	}
	if tz, extended, ok := formatTZString(wall, rules); ok {
		f.TZString = tz
		if extended {
			f.Version = V3
		}
	}

	// The version 1 block holds the transitions that fit 32 bits.
	f.V1 = DataBlock{
		LocalTimeTypes: b.block.LocalTimeTypes,
		Designations:   b.block.Designations,
	}
	for i, sec := range b.block.TransitionTimes {
		if sec >= math.MinInt32 && sec <= math.MaxInt32 {
			f.V1.TransitionTimes = append(f.V1.TransitionTimes, sec)
			f.V1.TransitionTypes = append(f.V1.TransitionTypes, b.block.TransitionTypes[i])
		}
	}
	return f, nil
}

// ToRuleSet returns the rule set described by a TZif file.
//
// Local time type 0 applies before the first transition. A local time
// type that is not daylight saving time sets the standard offset. The TZ
// string in the footer becomes the transition rules.
func ToRuleSet(f File) (*zonerules.RuleSet, error) {
	if err := Validate(f); err != nil {
		return nil, err
	}
	b := f.Data()
	if len(b.LeapSeconds) > 0 {
		return nil, ErrLeapSeconds
	}

	var spec tzSpec
	if f.TZString != "" {
		var err error
		if spec, err = parseTZString(f.TZString); err != nil {
			return nil, err
		}
	}

	offsets := make([]zonerules.Offset, len(b.LocalTimeTypes))
	for i, t := range b.LocalTimeTypes {
		o, err := zonerules.OffsetOf(int(t.Utoff))
		if err != nil {
			return nil, fmt.Errorf("local time type %d: %w", i, err)
		}
		offsets[i] = o
	}

	baseWall, baseStd := offsets[0], offsets[0]
	if b.LocalTimeTypes[0].IsDST {
		baseStd = firstStandard(b, offsets, spec)
	}

	var standardTransitions, transitions []zonerules.Transition
	wall, std := baseWall, baseStd
	for i, sec := range b.TransitionTimes {
		typ := b.TransitionTypes[i]
		newStd := std
		if !b.LocalTimeTypes[typ].IsDST {
			newStd = offsets[typ]
		}
		if newStd != std {
			t, err := zonerules.NewTransition(zonerules.LocalDateTimeOf(sec, 0, std), std, newStd)
			if err != nil {
				return nil, err
			}
			standardTransitions = append(standardTransitions, t)
			std = newStd
		}
		if offsets[typ] != wall {
			t, err := zonerules.NewTransition(zonerules.LocalDateTimeOf(sec, 0, wall), wall, offsets[typ])
			if err != nil {
				return nil, err
			}
			transitions = append(transitions, t)
			wall = offsets[typ]
		}
	}
	return zonerules.New(baseStd, baseWall, standardTransitions, transitions, spec.rules)
}

// firstStandard returns the standard offset of a zone that starts in
// daylight saving time: the offset of the first standard time type in
// use, or the one of the TZ string.
func firstStandard(b DataBlock, offsets []zonerules.Offset, spec tzSpec) zonerules.Offset {
	for _, typ := range b.TransitionTypes {
		if !b.LocalTimeTypes[typ].IsDST {
			return offsets[typ]
		}
	}
	for i, t := range b.LocalTimeTypes {
		if !t.IsDST {
			return offsets[i]
		}
	}
	if len(spec.rules) > 0 {
		return spec.std
	}
	return offsets[0]
}
