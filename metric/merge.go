package metric

import "slices"

// Merge computes the consensus counters for one (App, Node, day) key from
// the latest report of every distinct Inspector: the field-wise median.
// With an even reporter count the median is the mean of the two central
// values, computed without overflow. A single report merges to itself.
// The result is independent of report order.
func Merge(reports []*Report) Counters {
	if len(reports) == 0 {
		return Counters{}
	}

	stored := make([]uint64, len(reports))
	read := make([]uint64, len(reports))
	written := make([]uint64, len(reports))
	for i, r := range reports {
		stored[i] = r.Counters.StoredBytes
		read[i] = r.Counters.ReadBytes
		written[i] = r.Counters.WrittenBytes
	}

	return Counters{
		StoredBytes:  median(stored),
		ReadBytes:    median(read),
		WrittenBytes: median(written),
	}
}

func median(values []uint64) uint64 {
	slices.Sort(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	a, b := values[n/2-1], values[n/2]
	return a/2 + b/2 + (a%2+b%2)/2
}
