package utils

import (
	"time"
)

// DateLayout is the wire format for date-only values.
const DateLayout = "2006-01-02"

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// ParseDateLocal parses a YYYY-MM-DD string as midnight in loc.
func ParseDateLocal(dateStr string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateLayout, dateStr, loc)
}

// DaysBetween counts calendar days from a to b (negative if b is earlier).
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// SameMonthDay reports whether a and b share month and day, ignoring year.
// A 29 February birthday is matched on 28 February in non-leap years.
func SameMonthDay(birth, day time.Time) bool {
	if birth.Month() == day.Month() && birth.Day() == day.Day() {
		return true
	}
	if birth.Month() == time.February && birth.Day() == 29 && day.Month() == time.February && day.Day() == 28 {
		return !isLeapYear(day.Year())
	}
	return false
}

func isLeapYear(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// MonthKey formats t as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}
