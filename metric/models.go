// Package metric holds raw Inspector reports and their merged consensus
// values, keyed by (App, Node, day).
package metric

import (
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Counters are the per-day resource counters carried by a report: bytes
// held in storage plus bytes read and written over the day.
type Counters struct {
	StoredBytes  uint64 `json:"stored_bytes"`
	ReadBytes    uint64 `json:"read_bytes"`
	WrittenBytes uint64 `json:"written_bytes"`
}

// Accumulate adds other into c field-wise, surfacing overflow instead of
// wrapping. On error c is left unchanged.
func (c *Counters) Accumulate(other Counters) error {
	stored, err := addCounter(c.StoredBytes, other.StoredBytes)
	if err != nil {
		return err
	}
	read, err := addCounter(c.ReadBytes, other.ReadBytes)
	if err != nil {
		return err
	}
	written, err := addCounter(c.WrittenBytes, other.WrittenBytes)
	if err != nil {
		return err
	}
	c.StoredBytes, c.ReadBytes, c.WrittenBytes = stored, read, written
	return nil
}

// Weight collapses the counters into a single attribution weight. It
// saturates rather than erroring: weights are advisory bookkeeping and must
// never fail a billing operation.
func (c Counters) Weight() uint64 {
	return types.SaturatingAdd(types.SaturatingAdd(c.StoredBytes, c.ReadBytes), c.WrittenBytes)
}

func addCounter(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, types.ErrOverflow
	}
	return sum, nil
}

// Report is a single Inspector's observation of one Node's service to one
// App on one day. An Inspector re-reporting the same (app, node, day)
// overwrites its previous value.
type Report struct {
	types.Entity

	Inspector id.InspectorID `json:"inspector"`
	App       id.AppID       `json:"app"`
	Node      id.NodeID      `json:"node"`
	Day       Day            `json:"day"`
	Counters  Counters       `json:"counters"`
}

// Merged is the canonical value for an (App, Node, day) triple: the
// field-wise median of all Inspectors' latest reports for that key,
// recomputed on every new report within the retention window.
type Merged struct {
	types.Entity

	App       id.AppID  `json:"app"`
	Node      id.NodeID `json:"node"`
	Day       Day       `json:"day"`
	Counters  Counters  `json:"counters"`
	Reporters int       `json:"reporters"`
}

// Rollup is the sum of merged counters over a day window.
type Rollup struct {
	Window  Window   `json:"window"`
	Totals  Counters `json:"totals"`
	Records int      `json:"records"`
}
