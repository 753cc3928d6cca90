package utils

import (
	"testing"
	"time"
)

func TestStartOfDay(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	// 20:00 UTC on the 9th is 01:30 on the 10th in IST.
	in := time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC)
	got := StartOfDay(in, ist)
	want := time.Date(2024, 3, 10, 0, 0, 0, 0, ist)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParseDateLocal(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	got, err := ParseDateLocal("2024-02-29", ist)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Year() != 2024 || got.Month() != time.February || got.Day() != 29 || got.Location() != ist {
		t.Fatalf("unexpected date %v", got)
	}
	if _, err := ParseDateLocal("29/02/2024", ist); err == nil {
		t.Fatalf("expected error for wrong layout")
	}
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name string
		a, b time.Time
		want int
	}{
		{name: "same day", a: time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC), b: time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), want: 0},
		{name: "two days ahead", a: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), b: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), want: 2},
		{name: "across month", a: time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC), b: time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), want: 3},
		{name: "past", a: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), b: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), want: -5},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := DaysBetween(tc.a, tc.b); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestSameMonthDay(t *testing.T) {
	leapBirth := time.Date(2008, 2, 29, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		birth time.Time
		day   time.Time
		want  bool
	}{
		{name: "match", birth: time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC), day: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), want: true},
		{name: "different day", birth: time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC), day: time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC), want: false},
		{name: "leap birthday in leap year", birth: leapBirth, day: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), want: true},
		{name: "leap birthday on 28th of leap year", birth: leapBirth, day: time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), want: false},
		{name: "leap birthday in common year", birth: leapBirth, day: time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC), want: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := SameMonthDay(tc.birth, tc.day); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
