// Package cadence computes the due date that follows a given one.
package cadence

import (
	"time"

	"github.com/smallbiznis/recurring/internal/recurring/domain"
)

// NextDueDate returns the due date that follows current for freq.
//
// Week-based frequencies add a fixed number of days. Month-based frequencies
// move whole calendar months and then land on dayOfMonth, or on current's own
// day when dayOfMonth is nil, clamped to the last day of the target month.
// current is treated as a civil date; the result is midnight UTC.
// An unknown frequency returns current unchanged.
func NextDueDate(freq domain.Frequency, current time.Time, dayOfMonth *int) time.Time {
	current = civil(current)

	if days := freq.Days(); days > 0 {
		return current.AddDate(0, 0, days)
	}

	months := freq.Months()
	if months == 0 {
		return current
	}

	anchor := current.Day()
	if dayOfMonth != nil && *dayOfMonth > 0 {
		anchor = *dayOfMonth
	}

	// Day 1 never overflows, so AddDate only moves the month here.
	first := time.Date(current.Year(), current.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	day := anchor
	if last := DaysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// Upcoming lists the next n due dates after current.
func Upcoming(freq domain.Frequency, current time.Time, dayOfMonth *int, n int) []time.Time {
	if n <= 0 || !freq.Valid() {
		return nil
	}
	out := make([]time.Time, 0, n)
	due := civil(current)
	for i := 0; i < n; i++ {
		due = NextDueDate(freq, due, dayOfMonth)
		out = append(out, due)
	}
	return out
}

// DaysIn returns the number of days in month m of year y.
func DaysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
