// Package calendar implements the proleptic Gregorian date arithmetic needed
// to resolve transition rules: leap years, month lengths, epoch days and
// weekday adjustment.
//
// Dates are counted in epoch days, the number of days since 1970-01-01.
// Unlike time.Time, none of the functions depend on a time.Location.
package calendar

import "time"

const (
	SecondsPerMinute = 60
	SecondsPerHour   = 60 * SecondsPerMinute
	SecondsPerDay    = 24 * SecondsPerHour

	daysPer400Years = 365*400 + 97
	// days0000To1970 is the number of days from 0000-01-01 to 1970-01-01.
	days0000To1970 = daysPer400Years*5 - (30*365 + 7)
)

// IsLeapYear determines if the year is a leap year.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysInMonth returns the number of days in a given month for a specific year.
func DaysInMonth(year int, month time.Month) int {
	switch month {
	case time.February:
		if IsLeapYear(year) {
			return 29
		}
		return 28
	case time.April, time.June, time.September, time.November:
		return 30
	}
	return 31
}

// MaxDaysInMonth returns the length of month in a leap year.
func MaxDaysInMonth(month time.Month) int {
	return DaysInMonth(2004, month)
}

// EpochDay returns the number of days between 1970-01-01 and the given date.
//
// The month must be in the range [1,12]. The day is not checked against the
// month length: the result is linear in day, so the 29th of February in a
// non-leap year yields the epoch day of the 1st of March.
func EpochDay(year int, month time.Month, day int) int64 {
	y := int64(year)
	m := int64(month)
	total := 365 * y
	if y >= 0 {
		total += (y+3)/4 - (y+99)/100 + (y+399)/400
	} else {
		total -= y/-4 - y/-100 + y/-400
	}
	total += (367*m - 362) / 12
	total += int64(day) - 1
	if m > 2 {
		total--
		if !IsLeapYear(year) {
			total--
		}
	}
	return total - days0000To1970
}

// Date is the inverse of EpochDay.
func Date(epochDay int64) (year int, month time.Month, day int) {
	zeroDay := epochDay + days0000To1970
	// Shift to a year starting in March so the leap day is the last day of the year.
	zeroDay -= 60
	var adjust int64
	if zeroDay < 0 {
		cycles := (zeroDay+1)/daysPer400Years - 1
		adjust = cycles * 400
		zeroDay += -cycles * daysPer400Years
	}
	yearEst := (400*zeroDay + 591) / daysPer400Years
	doyEst := zeroDay - (365*yearEst + yearEst/4 - yearEst/100 + yearEst/400)
	if doyEst < 0 {
		yearEst--
		doyEst = zeroDay - (365*yearEst + yearEst/4 - yearEst/100 + yearEst/400)
	}
	yearEst += adjust

	marchMonth0 := (doyEst*5 + 2) / 153
	month = time.Month((marchMonth0+2)%12 + 1)
	day = int(doyEst - (marchMonth0*306+5)/10 + 1)
	yearEst += marchMonth0 / 10
	return int(yearEst), month, day
}

// Weekday returns the day of the week of an epoch day.
func Weekday(epochDay int64) time.Weekday {
	// 1970-01-01 was a Thursday.
	return time.Weekday(FloorMod(epochDay+int64(time.Thursday), 7))
}

// NextOrSame returns the first epoch day on or after epochDay that falls on
// the given weekday.
func NextOrSame(epochDay int64, weekday time.Weekday) int64 {
	diff := int64(weekday) - int64(Weekday(epochDay))
	if diff < 0 {
		diff += 7
	}
	return epochDay + diff
}

// PreviousOrSame returns the last epoch day on or before epochDay that falls
// on the given weekday.
func PreviousOrSame(epochDay int64, weekday time.Weekday) int64 {
	diff := int64(Weekday(epochDay)) - int64(weekday)
	if diff < 0 {
		diff += 7
	}
	return epochDay - diff
}

// FloorDiv returns the largest integer less than or equal to a/b.
func FloorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// FloorMod returns a - FloorDiv(a, b)*b, which has the sign of b.
func FloorMod(a, b int64) int64 {
	return a - FloorDiv(a, b)*b
}
