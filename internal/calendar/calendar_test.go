package calendar

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDaysInMonth(t *testing.T) {
	cases := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2021, time.January, 31},
		{2021, time.February, 28},
		{2020, time.February, 29},
		{1900, time.February, 28},
		{2000, time.February, 29},
		{2021, time.April, 30},
		{2021, time.December, 31},
	}
	for _, c := range cases {
		if got := DaysInMonth(c.year, c.month); got != c.want {
			t.Errorf("DaysInMonth(%d, %v) = %d, want %d", c.year, c.month, got, c.want)
		}
	}
}

func TestEpochDayMatchesTime(t *testing.T) {
	for _, year := range []int{-400, -1, 0, 1, 1582, 1825, 1900, 1969, 1970, 2000, 2024, 2100, 2300, 9999} {
		for month := time.January; month <= time.December; month++ {
			for _, day := range []int{1, 15, DaysInMonth(year, month)} {
				want := time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix() / SecondsPerDay
				got := EpochDay(year, month, day)
				if got != want {
					t.Fatalf("EpochDay(%d, %v, %d) = %d, want %d", year, month, day, got, want)
				}
				y, m, d := Date(got)
				if diff := cmp.Diff([]int{year, int(month), day}, []int{y, int(m), d}); diff != "" {
					t.Fatalf("Date(%d) mismatch (-want +got):\n%s", got, diff)
				}
			}
		}
	}
}

func TestEpochDayRollsOver(t *testing.T) {
	if got, want := EpochDay(2021, time.February, 29), EpochDay(2021, time.March, 1); got != want {
		t.Errorf("EpochDay(2021, Feb, 29) = %d, want %d", got, want)
	}
	if got, want := EpochDay(2021, time.December, 32), EpochDay(2022, time.January, 1); got != want {
		t.Errorf("EpochDay(2021, Dec, 32) = %d, want %d", got, want)
	}
}

func TestWeekdayAdjusters(t *testing.T) {
	// 2021-03-28 was a Sunday.
	sunday := EpochDay(2021, time.March, 28)
	if got := Weekday(sunday); got != time.Sunday {
		t.Fatalf("Weekday(2021-03-28) = %v, want Sunday", got)
	}
	if got := Weekday(0); got != time.Thursday {
		t.Fatalf("Weekday(0) = %v, want Thursday", got)
	}
	if got := Weekday(-1); got != time.Wednesday {
		t.Fatalf("Weekday(-1) = %v, want Wednesday", got)
	}

	cases := []struct {
		name string
		fn   func(int64, time.Weekday) int64
		day  int64
		wd   time.Weekday
		want int64
	}{
		{"next same day", NextOrSame, sunday, time.Sunday, sunday},
		{"next later", NextOrSame, sunday - 6, time.Sunday, sunday},
		{"next into following month", NextOrSame, sunday + 1, time.Sunday, sunday + 7},
		{"previous same day", PreviousOrSame, sunday, time.Sunday, sunday},
		{"previous earlier", PreviousOrSame, sunday + 6, time.Sunday, sunday},
		{"previous monday", PreviousOrSame, sunday, time.Monday, sunday - 6},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.fn(c.day, c.wd); got != c.want {
				t.Errorf("got %d, want %d", got, c.want)
			}
		})
	}
}

func TestFloorDivMod(t *testing.T) {
	cases := []struct{ a, b, div, mod int64 }{
		{7, 2, 3, 1},
		{-7, 2, -4, 1},
		{-86400, 86400, -1, 0},
		{-86401, 86400, -2, 86399},
		{0, 900, 0, 0},
	}
	for _, c := range cases {
		if got := FloorDiv(c.a, c.b); got != c.div {
			t.Errorf("FloorDiv(%d, %d) = %d, want %d", c.a, c.b, got, c.div)
		}
		if got := FloorMod(c.a, c.b); got != c.mod {
			t.Errorf("FloorMod(%d, %d) = %d, want %d", c.a, c.b, got, c.mod)
		}
	}
}
