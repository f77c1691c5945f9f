package clock

import "time"

// Clock supplies wall time for timestamps. Due-date decisions never read it;
// they take an explicit as-of date instead.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Date truncates t to midnight UTC of its calendar day in loc.
func Date(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
