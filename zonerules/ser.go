package zonerules

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// Encoded values start with a one byte tag naming the kind of value that
// follows. Integers are big-endian.
//
//	+-----+------------------------------+
//	| tag | body                         |
//	+-----+------------------------------+
//
// Instants are stored as quarter hours since 1825-01-01T00:00Z in three
// bytes if they fall on a quarter hour before 2300, and as 0xFF followed by
// an int64 Unix time otherwise:
//
//	+----+----+----+      +----+----+----+----+----+----+----+----+----+
//	| quarter hours|  or  | FF |            int64 seconds              |
//	+----+----+----+      +----+----+----+----+----+----+----+----+----+
//
// Offsets are stored as a signed byte of quarter hours, or as 0x7F followed
// by an int32 of seconds.
//
// A RuleSet body is
//
//	int32 n, n instants, n+1 offsets     standard transitions and offsets
//	int32 m, m instants, m+1 offsets     wall transitions and offsets
//	byte  k, k rule bodies               transition rules
//
// A Transition body is an instant followed by the offsets before and after.
// A TransitionRule body is a packed uint32 described at encodeRule,
// followed by optional int32 fields for values that do not fit the packing.
var order = binary.BigEndian

// Kind is the tag of an encoded value.
type Kind byte

const (
	KindRuleSet        Kind = 1
	KindTransition     Kind = 2
	KindTransitionRule Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindRuleSet:
		return "RuleSet"
	case KindTransition:
		return "Transition"
	case KindTransitionRule:
		return "TransitionRule"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// Value is implemented by the three encodable types: *RuleSet, Transition
// and TransitionRule.
type Value interface {
	Kind() Kind
	encodeBody(w io.Writer) error
}

func (*RuleSet) Kind() Kind       { return KindRuleSet }
func (Transition) Kind() Kind     { return KindTransition }
func (TransitionRule) Kind() Kind { return KindTransitionRule }

const (
	// Instants in [minPackedEpoch, maxPackedEpoch) on a quarter hour are packed.
	minPackedEpoch = -4575744000 // 1825-01-01T00:00Z
	maxPackedEpoch = 10413792000 // 2300-01-01T00:00Z
	epochEscape    = 0xFF

	offsetEscape = 127

	// maxCount bounds the transition counts accepted by the decoder.
	maxCount = 1 << 16
)

// Encode writes the tag and body of v to w.
func Encode(w io.Writer, v Value) error {
	if err := binary.Write(w, order, v.Kind()); err != nil {
		return fmt.Errorf("write tag: %w", err)
	}
	return v.encodeBody(w)
}

func marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (rs *RuleSet) MarshalBinary() ([]byte, error) { return marshal(rs) }

// MarshalBinary implements encoding.BinaryMarshaler.
func (t Transition) MarshalBinary() ([]byte, error) { return marshal(t) }

// MarshalBinary implements encoding.BinaryMarshaler.
func (r TransitionRule) MarshalBinary() ([]byte, error) { return marshal(r) }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (t *Transition) UnmarshalBinary(data []byte) error {
	v, err := DecodeTransition(bytes.NewReader(data))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *TransitionRule) UnmarshalBinary(data []byte) error {
	v, err := DecodeTransitionRule(bytes.NewReader(data))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Decode reads a tagged value from r. It fails with ErrMalformedData if the
// tag is unknown, the input ends early or the value is invalid.
func Decode(r io.Reader) (Value, error) {
	var kind Kind
	if err := read(r, "tag", &kind); err != nil {
		return nil, err
	}
	var (
		v   Value
		err error
	)
	switch kind {
	case KindRuleSet:
		v, err = decodeRuleSet(r)
	case KindTransition:
		v, err = decodeTransition(r)
	case KindTransitionRule:
		v, err = decodeRule(r)
	default:
		return nil, fmt.Errorf("%w: unknown tag %d", ErrMalformedData, byte(kind))
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeRuleSet is like Decode but requires a RuleSet.
func DecodeRuleSet(r io.Reader) (*RuleSet, error) {
	return decodeAs[*RuleSet](r)
}

// DecodeTransition is like Decode but requires a Transition.
func DecodeTransition(r io.Reader) (Transition, error) {
	return decodeAs[Transition](r)
}

// DecodeTransitionRule is like Decode but requires a TransitionRule.
func DecodeTransitionRule(r io.Reader) (TransitionRule, error) {
	return decodeAs[TransitionRule](r)
}

func decodeAs[T Value](r io.Reader) (T, error) {
	var zero T
	v, err := Decode(r)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %v, want %v", ErrMalformedData, v.Kind(), zero.Kind())
	}
	return t, nil
}

// read reads a fixed-size value and reports a short read as malformed data.
func read(r io.Reader, what string, data any) error {
	if err := binary.Read(r, order, data); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: read %s: %w", ErrMalformedData, what, err)
		}
		return fmt.Errorf("read %s: %w", what, err)
	}
	return nil
}

func (rs *RuleSet) encodeBody(w io.Writer) error {
	if err := encodeTimeline(w, "standard", rs.standardTransitions, rs.standardOffsets); err != nil {
		return err
	}
	if err := encodeTimeline(w, "wall", rs.savingsInstantTransitions, rs.wallOffsets); err != nil {
		return err
	}
	if err := binary.Write(w, order, uint8(len(rs.rules))); err != nil {
		return fmt.Errorf("write rule count: %w", err)
	}
	for i, rule := range rs.rules {
		if err := rule.encodeBody(w); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}

func encodeTimeline(w io.Writer, name string, instants []int64, offsets []Offset) error {
	if err := binary.Write(w, order, int32(len(instants))); err != nil {
		return fmt.Errorf("write %s transition count: %w", name, err)
	}
	for _, sec := range instants {
		if err := encodeEpochSecond(w, sec); err != nil {
			return fmt.Errorf("%s transitions: %w", name, err)
		}
	}
	for _, o := range offsets {
		if err := encodeOffset(w, o); err != nil {
			return fmt.Errorf("%s offsets: %w", name, err)
		}
	}
	return nil
}

func decodeRuleSet(r io.Reader) (*RuleSet, error) {
	stdTrans, stdOffsets, err := decodeTimeline(r, "standard")
	if err != nil {
		return nil, err
	}
	wallTrans, wallOffsets, err := decodeTimeline(r, "wall")
	if err != nil {
		return nil, err
	}
	var n uint8
	if err := read(r, "rule count", &n); err != nil {
		return nil, err
	}
	if n > MaxTransitionRules {
		return nil, fmt.Errorf("%w: %d transition rules", ErrMalformedData, n)
	}
	rules := make([]TransitionRule, n)
	for i := range rules {
		if rules[i], err = decodeRule(r); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return fromArrays(stdTrans, stdOffsets, wallTrans, wallOffsets, rules), nil
}

func decodeTimeline(r io.Reader, name string) ([]int64, []Offset, error) {
	var n int32
	if err := read(r, name+" transition count", &n); err != nil {
		return nil, nil, err
	}
	if n < 0 || n > maxCount {
		return nil, nil, fmt.Errorf("%w: %s transition count %d", ErrMalformedData, name, n)
	}
	instants := make([]int64, 0, min(n, 1024))
	for i := int32(0); i < n; i++ {
		sec, err := decodeEpochSecond(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%s transition %d: %w", name, i, err)
		}
		if i > 0 && sec <= instants[i-1] {
			return nil, nil, fmt.Errorf("%w: %s transitions not increasing at %d", ErrMalformedData, name, i)
		}
		instants = append(instants, sec)
	}
	offsets := make([]Offset, 0, len(instants)+1)
	for i := 0; i <= len(instants); i++ {
		o, err := decodeOffset(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%s offset %d: %w", name, i, err)
		}
		offsets = append(offsets, o)
	}
	return instants, offsets, nil
}

func (t Transition) encodeBody(w io.Writer) error {
	if err := encodeEpochSecond(w, t.epochSecond); err != nil {
		return err
	}
	if err := encodeOffset(w, t.before); err != nil {
		return err
	}
	return encodeOffset(w, t.after)
}

func decodeTransition(r io.Reader) (Transition, error) {
	sec, err := decodeEpochSecond(r)
	if err != nil {
		return Transition{}, err
	}
	before, err := decodeOffset(r)
	if err != nil {
		return Transition{}, err
	}
	after, err := decodeOffset(r)
	if err != nil {
		return Transition{}, err
	}
	if before == after {
		return Transition{}, fmt.Errorf("%w: transition offsets both %v", ErrMalformedData, before)
	}
	return transitionAt(sec, before, after), nil
}

// encodeRule packs a rule into a uint32:
//
//	bits 28-31  month, 1-12
//	bits 22-27  day-of-month indicator + 32
//	bits 19-21  weekday, Monday=1 to Sunday=7, 0 for any
//	bits 14-18  hour of the time of day, 24 for end of day, 31 if escaped
//	bits 12-13  time definition
//	bits  4-11  standard offset in quarter hours + 128, 255 if escaped
//	bits  2-3   offset before minus standard in half hours (0-2), 3 if escaped
//	bits  0-1   offset after minus standard in half hours (0-2), 3 if escaped
//
// Escaped values follow as int32 seconds in the order time of day, standard
// offset, offset before, offset after.
func (r TransitionRule) encodeBody(w io.Writer) error {
	timeSecs := int32(r.timeOfDay / time.Second)
	if r.endOfDay {
		timeSecs = 24 * 60 * 60
	}
	std := int32(r.standard)
	beforeDiff := int32(r.before) - std
	afterDiff := int32(r.after) - std

	timeByte := uint32(31)
	if timeSecs%3600 == 0 {
		timeByte = uint32(timeSecs / 3600)
	}
	stdByte := uint32(255)
	if std%900 == 0 {
		stdByte = uint32(std/900 + 128)
	}
	beforeByte := savingsByte(beforeDiff)
	afterByte := savingsByte(afterDiff)
	dowByte := uint32(0)
	if r.weekday != AnyWeekday {
		dowByte = uint32((r.weekday+6)%7 + 1)
	}

	b := uint32(r.month)<<28 |
		uint32(int32(r.dom)+32)<<22 |
		dowByte<<19 |
		timeByte<<14 |
		uint32(r.def)<<12 |
		stdByte<<4 |
		beforeByte<<2 |
		afterByte
	if err := binary.Write(w, order, b); err != nil {
		return fmt.Errorf("write rule: %w", err)
	}

	var escaped []int32
	if timeByte == 31 {
		escaped = append(escaped, timeSecs)
	}
	if stdByte == 255 {
		escaped = append(escaped, std)
	}
	if beforeByte == 3 {
		escaped = append(escaped, int32(r.before))
	}
	if afterByte == 3 {
		escaped = append(escaped, int32(r.after))
	}
	for _, v := range escaped {
		if err := binary.Write(w, order, v); err != nil {
			return fmt.Errorf("write rule field: %w", err)
		}
	}
	return nil
}

func savingsByte(diff int32) uint32 {
	switch diff {
	case 0, 1800, 3600:
		return uint32(diff / 1800)
	}
	return 3
}

func decodeRule(r io.Reader) (TransitionRule, error) {
	var b uint32
	if err := read(r, "rule", &b); err != nil {
		return TransitionRule{}, err
	}
	month := time.Month(b >> 28)
	dom := int((b>>22)&63) - 32
	dowByte := (b >> 19) & 7
	timeByte := (b >> 14) & 31
	def := TimeDefinition((b >> 12) & 3)
	stdByte := (b >> 4) & 255
	beforeByte := (b >> 2) & 3
	afterByte := b & 3

	weekday := AnyWeekday
	if dowByte != 0 {
		weekday = time.Weekday(dowByte % 7)
	}

	escaped := func(what string) (int32, error) {
		var v int32
		err := read(r, what, &v)
		return v, err
	}

	var timeOfDay time.Duration
	endOfDay := timeByte == 24
	if timeByte == 31 {
		secs, err := escaped("rule time of day")
		if err != nil {
			return TransitionRule{}, err
		}
		timeOfDay = time.Duration(secs) * time.Second
	} else if !endOfDay {
		timeOfDay = time.Duration(timeByte) * time.Hour
	}

	std := Offset((int32(stdByte) - 128) * 900)
	if stdByte == 255 {
		secs, err := escaped("rule standard offset")
		if err != nil {
			return TransitionRule{}, err
		}
		std = Offset(secs)
	}
	before := std + Offset(beforeByte)*1800
	if beforeByte == 3 {
		secs, err := escaped("rule offset before")
		if err != nil {
			return TransitionRule{}, err
		}
		before = Offset(secs)
	}
	after := std + Offset(afterByte)*1800
	if afterByte == 3 {
		secs, err := escaped("rule offset after")
		if err != nil {
			return TransitionRule{}, err
		}
		after = Offset(secs)
	}

	rule, err := NewTransitionRule(month, dom, weekday, timeOfDay, endOfDay, def, std, before, after)
	if err != nil {
		return TransitionRule{}, fmt.Errorf("%w: %w", ErrMalformedData, err)
	}
	return rule, nil
}

func encodeEpochSecond(w io.Writer, sec int64) error {
	if sec >= minPackedEpoch && sec < maxPackedEpoch && sec%900 == 0 {
		store := uint32((sec - minPackedEpoch) / 900)
		b := [3]byte{byte(store >> 16), byte(store >> 8), byte(store)}
		if _, err := w.Write(b[:]); err != nil {
			return fmt.Errorf("write epoch second: %w", err)
		}
		return nil
	}
	if err := binary.Write(w, order, uint8(epochEscape)); err != nil {
		return fmt.Errorf("write epoch second: %w", err)
	}
	if err := binary.Write(w, order, sec); err != nil {
		return fmt.Errorf("write epoch second: %w", err)
	}
	return nil
}

func decodeEpochSecond(r io.Reader) (int64, error) {
	var b [3]byte
	if err := read(r, "epoch second", b[:1]); err != nil {
		return 0, err
	}
	if b[0] == epochEscape {
		var sec int64
		if err := read(r, "epoch second", &sec); err != nil {
			return 0, err
		}
		return sec, nil
	}
	if err := read(r, "epoch second", b[1:]); err != nil {
		return 0, err
	}
	store := int64(b[0])<<16 | int64(b[1])<<8 | int64(b[2])
	return store*900 + minPackedEpoch, nil
}

func encodeOffset(w io.Writer, o Offset) error {
	secs := int32(o)
	offsetByte := int8(offsetEscape)
	if secs%900 == 0 {
		offsetByte = int8(secs / 900)
	}
	if err := binary.Write(w, order, offsetByte); err != nil {
		return fmt.Errorf("write offset: %w", err)
	}
	if offsetByte == offsetEscape {
		if err := binary.Write(w, order, secs); err != nil {
			return fmt.Errorf("write offset: %w", err)
		}
	}
	return nil
}

func decodeOffset(r io.Reader) (Offset, error) {
	var offsetByte int8
	if err := read(r, "offset", &offsetByte); err != nil {
		return 0, err
	}
	o := Offset(offsetByte) * 900
	if offsetByte == offsetEscape {
		var secs int32
		if err := read(r, "offset", &secs); err != nil {
			return 0, err
		}
		o = Offset(secs)
	}
	if !o.valid() {
		return 0, fmt.Errorf("%w: offset %ds out of range", ErrMalformedData, int32(o))
	}
	return o, nil
}
