package availability

import "time"

// Ratio computes the fraction of [from, to] a node spent online, given the
// state in force at from and the transitions observed afterwards.
// Transitions must be ordered by time ascending; entries before from update
// the seed state and entries after to are ignored, so callers may pass a
// superset of the window.
func Ratio(initial State, transitions []*Transition, from, to time.Time) float64 {
	if !to.After(from) {
		state := initial
		for _, tr := range transitions {
			if tr.At.After(from) {
				break
			}
			state = tr.State
		}
		if state.Online() {
			return 1
		}
		return 0
	}

	total := to.Sub(from)
	online := time.Duration(0)
	state := initial
	cursor := from
	for _, tr := range transitions {
		if tr.At.Before(from) {
			state = tr.State
			continue
		}
		if tr.At.After(to) {
			break
		}
		if state.Online() {
			online += tr.At.Sub(cursor)
		}
		state = tr.State
		cursor = tr.At
	}
	if state.Online() {
		online += to.Sub(cursor)
	}
	return float64(online) / float64(total)
}
