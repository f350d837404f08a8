package zonerules

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	odd := Offset(-(4*3600 + 56*60 + 2)) // -04:56:02, not on a quarter hour
	oddStd := mustTransition(t, localSec(1883, time.November, 18, 12, 3, 58), odd, minus5)

	rules := append(euRules(t), usRules(t)...)
	escaped := []TransitionRule{
		// Time of day not on the hour.
		mustRule(t, time.April, 1, AnyWeekday, 2*time.Hour+30*time.Minute, false, StandardTime, plus1, plus1, plus2),
		// End of day and a negative indicator other than -1.
		mustRule(t, time.September, -7, time.Saturday, 0, true, WallClock, plus1, plus2, plus1),
		// Standard offset not on a quarter hour.
		mustRule(t, time.March, 20, time.Friday, 0, false, UniversalTime, odd, odd, odd+3600),
		// Savings of 20 minutes and -1 hour.
		mustRule(t, time.June, 1, AnyWeekday, 0, false, WallClock, plus1, plus1+1200, plus1-3600),
	}

	historical := []Transition{
		mustTransition(t, localSec(1883, time.November, 18, 12, 3, 58), odd, minus5),
		mustTransition(t, local(1918, time.March, 31, 2, 0), minus5, minus4),
		mustTransition(t, local(2310, time.March, 31, 2, 0), minus4, minus5), // beyond the packed range
	}
	full, err := New(odd, odd, []Transition{oddStd}, historical, escaped)
	if err != nil {
		t.Fatal(err)
	}
	fixed, err := Fixed(plus530)
	if err != nil {
		t.Fatal(err)
	}

	values := []Value{
		berlin(t),
		full,
		fixed,
		historical[0],
		historical[1],
		historical[2],
	}
	for _, r := range append(rules, escaped...) {
		values = append(values, r)
	}

	opts := []cmp.Option{
		cmp.AllowUnexported(TransitionRule{}),
		cmp.Comparer(func(a, b *RuleSet) bool { return a.Equal(b) }),
	}
	for _, v := range values {
		var buf bytes.Buffer
		if err := Encode(&buf, v); err != nil {
			t.Fatalf("Encode(%v): %v", v, err)
		}
		if got := Kind(buf.Bytes()[0]); got != v.Kind() {
			t.Errorf("Encode(%v) tag = %v, want %v", v, got, v.Kind())
		}
		got, err := Decode(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatalf("Decode(Encode(%v)): %v", v, err)
		}
		if diff := cmp.Diff(v, got, opts...); diff != "" {
			t.Errorf("Decode(Encode(%v)) mismatch (-want +got):\n%s", v, diff)
		}
	}
}

func localSec(year int, month time.Month, day, hour, min, sec int) LocalDateTime {
	return Date(year, month, day, hour, min, sec, 0)
}

func TestDecodedRuleSetAnswersQueries(t *testing.T) {
	want := berlin(t)
	data, err := want.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeRuleSet(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	for _, dt := range []LocalDateTime{
		local(2019, time.March, 31, 2, 30),
		local(2020, time.October, 25, 2, 30),
		local(2020, time.July, 1, 0, 0),
		local(2040, time.October, 28, 2, 30),
	} {
		if diff := cmp.Diff(want.ValidOffsets(dt), got.ValidOffsets(dt)); diff != "" {
			t.Errorf("ValidOffsets(%v) mismatch (-want +got):\n%s", dt, diff)
		}
	}
}

func TestEpochSecondEncoding(t *testing.T) {
	cases := []struct {
		sec  int64
		size int
	}{
		{minPackedEpoch, 3},
		{0, 3},
		{900, 3},
		{maxPackedEpoch - 900, 3},
		{maxPackedEpoch, 9},
		{minPackedEpoch - 900, 9},
		{1, 9},
		{-1, 9},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		if err := encodeEpochSecond(&buf, c.sec); err != nil {
			t.Fatal(err)
		}
		if buf.Len() != c.size {
			t.Errorf("encodeEpochSecond(%d) wrote %d bytes, want %d", c.sec, buf.Len(), c.size)
		}
		got, err := decodeEpochSecond(&buf)
		if err != nil {
			t.Fatalf("decodeEpochSecond(%d): %v", c.sec, err)
		}
		if got != c.sec {
			t.Errorf("decodeEpochSecond(encodeEpochSecond(%d)) = %d", c.sec, got)
		}
	}
}

func TestOffsetEncoding(t *testing.T) {
	cases := []struct {
		offset Offset
		want   []byte
	}{
		{UTC, []byte{0}},
		{plus1, []byte{4}},
		{minus5, []byte{0xEC}},
		{MaxOffset, []byte{72}},
		{MinOffset, []byte{0xB8}},
		{plus530, []byte{22}},
		{Offset(3661), []byte{127, 0, 0, 0x0E, 0x4D}},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		if err := encodeOffset(&buf, c.offset); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(c.want, buf.Bytes()); diff != "" {
			t.Errorf("encodeOffset(%v) mismatch (-want +got):\n%s", c.offset, diff)
		}
	}
}

func TestRuleWordLayout(t *testing.T) {
	// Last Sunday in March at 01:00 UTC, +01:00 to +02:00.
	r := euRules(t)[0]
	data, err := r.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		byte(KindTransitionRule),
		// month 3 | (-1+32)<<22 | Sunday=7<<19 | 1<<14 | UTC<<12 | (4+128)<<4 | 0<<2 | 2
		0x37, 0xF8, 0x48, 0x42,
	}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Errorf("MarshalBinary() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMalformed(t *testing.T) {
	full, err := berlin(t).MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	transition, err := euRules(t)[0].Transition(2024).MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"unknown tag", []byte{4, 0, 0, 0}},
		{"zero tag", []byte{0}},
		{"truncated rule set", full[:len(full)-1]},
		{"truncated header", full[:3]},
		{"truncated transition", transition[:len(transition)-1]},
		{"truncated escaped epoch", []byte{byte(KindTransition), 0xFF, 0, 0}},
		{"equal transition offsets", []byte{byte(KindTransition), 0, 0, 0, 4, 4}},
		{"offset out of range", []byte{byte(KindTransition), 0, 0, 0, 4, 73}},
		{"negative count", []byte{byte(KindRuleSet), 0xFF, 0xFF, 0xFF, 0xFF}},
		{"too many rules", append([]byte{byte(KindRuleSet), 0, 0, 0, 0, 4, 0, 0, 0, 0, 4}, 17)},
		{"rule month zero", []byte{byte(KindTransitionRule), 0x07, 0xF8, 0x48, 0x42}},
		{"rule day zero", []byte{byte(KindTransitionRule), 0x38, 0x00, 0x48, 0x42}},
		{"rule hour 25", []byte{byte(KindTransitionRule), 0x37, 0xF8 | 0x06, 0x48, 0x42}},
		{"rule time definition 3", []byte{byte(KindTransitionRule), 0x37, 0xF8, 0x78, 0x42}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v, err := Decode(bytes.NewReader(c.data))
			if !errors.Is(err, ErrMalformedData) {
				t.Errorf("Decode() = %v, %v, want ErrMalformedData", v, err)
			}
			if v != nil {
				t.Errorf("Decode() returned a partial value %v", v)
			}
		})
	}
}

func TestDecodeWrongKind(t *testing.T) {
	data, err := euRules(t)[0].Transition(2024).MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeRuleSet(bytes.NewReader(data)); !errors.Is(err, ErrMalformedData) {
		t.Errorf("DecodeRuleSet(transition) error = %v, want ErrMalformedData", err)
	}
	var r TransitionRule
	if err := r.UnmarshalBinary(data); !errors.Is(err, ErrMalformedData) {
		t.Errorf("UnmarshalBinary(transition) error = %v, want ErrMalformedData", err)
	}
	var tr Transition
	if err := tr.UnmarshalBinary(data); err != nil {
		t.Errorf("UnmarshalBinary() error = %v", err)
	}
}
