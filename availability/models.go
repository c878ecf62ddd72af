// Package availability records Node online/offline transitions and computes
// uptime ratios over arbitrary windows.
package availability

import (
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// State is a node's reported reachability.
type State string

const (
	StateOnline  State = "online"
	StateOffline State = "offline"
)

// Online reports whether the state counts toward uptime.
func (s State) Online() bool {
	return s == StateOnline
}

// Transition is one observed state change. Transitions are append-only:
// marks that repeat the latest recorded state are dropped before they get
// here, so consecutive transitions always alternate.
type Transition struct {
	types.Entity

	Node  id.NodeID `json:"node"`
	State State     `json:"state"`
	At    time.Time `json:"at"`
}
