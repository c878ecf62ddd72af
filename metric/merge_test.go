package metric

import (
	"math"
	"testing"
)

func report(stored, read, written uint64) *Report {
	return &Report{Counters: Counters{
		StoredBytes:  stored,
		ReadBytes:    read,
		WrittenBytes: written,
	}}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name    string
		reports []*Report
		want    Counters
	}{
		{
			name:    "empty",
			reports: nil,
			want:    Counters{},
		},
		{
			name:    "single report passes through",
			reports: []*Report{report(10, 20, 30)},
			want:    Counters{StoredBytes: 10, ReadBytes: 20, WrittenBytes: 30},
		},
		{
			name: "odd count picks middle",
			reports: []*Report{
				report(10, 1, 300),
				report(20, 2, 100),
				report(30, 3, 200),
			},
			want: Counters{StoredBytes: 20, ReadBytes: 2, WrittenBytes: 200},
		},
		{
			name: "even count averages middle pair",
			reports: []*Report{
				report(10, 0, 5),
				report(30, 0, 7),
			},
			want: Counters{StoredBytes: 20, ReadBytes: 0, WrittenBytes: 6},
		},
		{
			name: "even average rounds down",
			reports: []*Report{
				report(10, 0, 0),
				report(31, 0, 0),
			},
			want: Counters{StoredBytes: 20},
		},
		{
			name: "fields merge independently",
			reports: []*Report{
				report(1, 100, 7),
				report(2, 50, 9),
				report(3, 10, 8),
			},
			want: Counters{StoredBytes: 2, ReadBytes: 50, WrittenBytes: 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.reports)
			if got != tt.want {
				t.Errorf("Merge() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMergeLargeValues(t *testing.T) {
	// The even-count mean must not overflow when both middle values are
	// near the top of the uint64 range.
	reports := []*Report{
		report(math.MaxUint64, 0, 0),
		report(math.MaxUint64-1, 0, 0),
	}
	got := Merge(reports)
	want := uint64(math.MaxUint64 - 1)
	if got.StoredBytes != want {
		t.Errorf("Merge().StoredBytes = %d, want %d", got.StoredBytes, want)
	}
}

func TestMedianOddPair(t *testing.T) {
	// Two odd values whose sum would overflow still average exactly.
	reports := []*Report{
		report(math.MaxUint64, 0, 0),
		report(math.MaxUint64-2, 0, 0),
	}
	got := Merge(reports)
	want := uint64(math.MaxUint64 - 1)
	if got.StoredBytes != want {
		t.Errorf("Merge().StoredBytes = %d, want %d", got.StoredBytes, want)
	}
}
