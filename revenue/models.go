// Package revenue tracks the operator revenue pool and its advisory
// attribution to Nodes.
package revenue

import (
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Pool is the single revenue account. Balance holds tokens consumed from
// App subscriptions and not yet withdrawn. Withdrawn and Unattributed are
// lifetime counters: Unattributed accumulates consumption that could not
// be split across Nodes because no metered activity existed for the
// paying App.
type Pool struct {
	types.Entity

	Balance      types.Tokens `json:"balance"`
	Withdrawn    types.Tokens `json:"withdrawn"`
	Unattributed types.Tokens `json:"unattributed"`
}

// Share is the advisory running total attributed to one Node. It informs
// operator payouts off-ledger and never constrains Withdraw.
type Share struct {
	types.Entity

	Node       id.NodeID    `json:"node"`
	Attributed types.Tokens `json:"attributed"`
}
