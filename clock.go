package tally

import "time"

// Clock supplies the current time to every ledger operation. Injecting a
// clock keeps charge boundaries and retention math deterministic in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
