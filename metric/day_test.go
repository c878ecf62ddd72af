package metric

import (
	"testing"
	"time"
)

func TestDayOf(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want Day
	}{
		{"epoch", time.Unix(0, 0).UTC(), 0},
		{"end of first day", time.Unix(86399, 0).UTC(), 0},
		{"second day", time.Unix(86400, 0).UTC(), 1},
		{"local zone normalizes to utc", time.Unix(86400, 0).In(time.FixedZone("W", -3600)), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DayOf(tt.t); got != tt.want {
				t.Errorf("DayOf(%v) = %d, want %d", tt.t, got, tt.want)
			}
		})
	}
}

func TestDayTimeRoundTrip(t *testing.T) {
	day := DayOf(time.Date(2026, 3, 15, 13, 45, 0, 0, time.UTC))
	if got := DayOf(day.Time()); got != day {
		t.Errorf("DayOf(Time()) = %d, want %d", got, day)
	}
	if h := day.Time().Hour(); h != 0 {
		t.Errorf("Time().Hour() = %d, want 0", h)
	}
}

func TestDayOrdering(t *testing.T) {
	d := DayOf(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	if !d.Before(d.Add(1)) {
		t.Error("Before(next) = false, want true")
	}
	if !d.After(d.Add(-1)) {
		t.Error("After(prev) = false, want true")
	}
	if d.Before(d) || d.After(d) {
		t.Error("day compares unequal to itself")
	}
}

func TestRetentionCutoff(t *testing.T) {
	today := DayOf(time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC))
	cutoff := RetentionCutoff(today)

	// The window keeps exactly RetentionDays days including today.
	if got := int(today - cutoff + 1); got != RetentionDays {
		t.Errorf("retention window = %d days, want %d", got, RetentionDays)
	}
	if want := DayOf(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)); cutoff != want {
		t.Errorf("RetentionCutoff() = %v, want %v", cutoff, want)
	}
}

func TestDayString(t *testing.T) {
	d := DayOf(time.Date(2026, 3, 15, 23, 59, 0, 0, time.UTC))
	if got := d.String(); got != "2026-03-15" {
		t.Errorf("String() = %q, want %q", got, "2026-03-15")
	}
}

func TestWindow(t *testing.T) {
	w := Window{From: 100, To: 102}
	if got := w.Days(); got != 3 {
		t.Errorf("Days() = %d, want 3", got)
	}
	for _, tt := range []struct {
		day  Day
		want bool
	}{
		{99, false},
		{100, true},
		{101, true},
		{102, true},
		{103, false},
	} {
		if got := w.Contains(tt.day); got != tt.want {
			t.Errorf("Contains(%d) = %v, want %v", tt.day, got, tt.want)
		}
	}
}

func TestCountersAccumulate(t *testing.T) {
	c := Counters{StoredBytes: 1, ReadBytes: 2, WrittenBytes: 3}
	if err := c.Accumulate(Counters{StoredBytes: 10, ReadBytes: 20, WrittenBytes: 30}); err != nil {
		t.Fatalf("Accumulate() error = %v", err)
	}
	want := Counters{StoredBytes: 11, ReadBytes: 22, WrittenBytes: 33}
	if c != want {
		t.Errorf("Accumulate() = %+v, want %+v", c, want)
	}
}

func TestCountersAccumulateOverflow(t *testing.T) {
	c := Counters{ReadBytes: ^uint64(0)}
	orig := c
	if err := c.Accumulate(Counters{ReadBytes: 1}); err == nil {
		t.Fatal("Accumulate() error = nil, want overflow")
	}
	if c != orig {
		t.Errorf("Accumulate() mutated receiver on error: %+v", c)
	}
}

func TestCountersWeight(t *testing.T) {
	c := Counters{StoredBytes: 1, ReadBytes: 2, WrittenBytes: 3}
	if got := c.Weight(); got != 6 {
		t.Errorf("Weight() = %d, want 6", got)
	}

	sat := Counters{StoredBytes: ^uint64(0), ReadBytes: ^uint64(0)}
	if got := sat.Weight(); got != ^uint64(0) {
		t.Errorf("Weight() = %d, want saturation at max", got)
	}
}
