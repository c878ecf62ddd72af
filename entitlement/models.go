// Package entitlement describes the service limits an App is entitled to
// right now, resolved from its subscription and tier state.
package entitlement

import "github.com/xraph/tally/id"

// Allowance is the effective capacity an App may consume: its tier's
// limits while the subscription is paid up, or the free tier's once it
// has lapsed. Cloud nodes enforce these limits; the ledger only answers
// what they currently are.
type Allowance struct {
	App           id.AppID `json:"app"`
	TierID        uint32   `json:"tier_id"`
	StorageBytes  uint64   `json:"storage_bytes"`
	TransferBytes uint64   `json:"transfer_bytes"`

	// Covered reports whether the paid tier is in force. False means
	// the App is riding the free tier.
	Covered bool `json:"covered"`
}
