package clock

import (
	"testing"
	"time"
)

func TestDateUsesLocationCalendarDay(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 2026-01-31 20:00 UTC is already Feb 1 in Jakarta (UTC+7).
	instant := time.Date(2026, 1, 31, 20, 0, 0, 0, time.UTC)

	if got := Date(instant, time.UTC); !got.Equal(time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 2026-01-31 in UTC, got %s", got)
	}
	if got := Date(instant, jakarta); !got.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 2026-02-01 in Jakarta, got %s", got)
	}
}

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	c.Advance(36 * time.Hour)
	if got := c.Now(); !got.Equal(start.Add(36 * time.Hour)) {
		t.Fatalf("unexpected now %s", got)
	}
}
