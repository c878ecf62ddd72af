package metric

import "time"

// Day identifies one UTC calendar day as a count of days since the Unix
// epoch. All report and merge keys use day granularity.
type Day int32

const secondsPerDay = 24 * 60 * 60

// RetentionDays is the inclusive length of the retention window: merged
// metrics and raw reports are kept for the most recent 31 days
// [today-30, today]; older records are evictable.
const RetentionDays = 31

// DayOf returns the Day containing t.
func DayOf(t time.Time) Day {
	return Day(t.UTC().Unix() / secondsPerDay)
}

// Time returns the start of the day (00:00 UTC).
func (d Day) Time() time.Time {
	return time.Unix(int64(d)*secondsPerDay, 0).UTC()
}

// Add returns the day offset by n days (n may be negative).
func (d Day) Add(n int) Day { return d + Day(n) }

// Before reports whether d is earlier than other.
func (d Day) Before(other Day) bool { return d < other }

// After reports whether d is later than other.
func (d Day) After(other Day) bool { return d > other }

// IsZero reports whether d is the zero value (used as "unset").
func (d Day) IsZero() bool { return d == 0 }

func (d Day) String() string {
	return d.Time().Format("2006-01-02")
}

// RetentionCutoff returns the oldest retained day as of today: records for
// days before the cutoff are outside the window.
func RetentionCutoff(today Day) Day {
	return today.Add(-(RetentionDays - 1))
}

// Window is an inclusive day range used by rollups.
type Window struct {
	From Day `json:"from"`
	To   Day `json:"to"`
}

// Days returns the window length in days.
func (w Window) Days() int { return int(w.To-w.From) + 1 }

// Contains reports whether d falls inside the window.
func (w Window) Contains(d Day) bool { return d >= w.From && d <= w.To }
