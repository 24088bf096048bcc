package scheduler

import (
	"fmt"
	"time"
)

// ClockTime is a clock-of-day value at hour:minute granularity. It carries
// no date or timezone; callers supply a localized wall-clock time.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses an "HH:MM" string.
func ParseClockTime(s string) (ClockTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return ClockTime{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return ClockTime{}, fmt.Errorf("invalid time %q: out of range", s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func (c ClockTime) minutes() int {
	return c.Hour*60 + c.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// InWindow reports whether now falls inside the daily window [start, end).
//
// Windows where start > end span midnight: 22:00-02:00 permits 23:30 and
// 01:00 but not 12:00. The end boundary is always exclusive. A zero-width
// window (start == end) permits nothing.
func InWindow(now time.Time, start, end ClockTime) bool {
	cur := now.Hour()*60 + now.Minute()
	s, e := start.minutes(), end.minutes()

	switch {
	case s == e:
		return false
	case s < e:
		return s <= cur && cur < e
	default:
		return cur >= s || cur < e
	}
}
