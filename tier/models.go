// Package tier defines the priced capacity bundles Apps subscribe to.
package tier

import "github.com/xraph/tally/types"

// Tier is a priced bundle of reserved capacity for one 31-day period:
// storage the Cloud holds for the App and transfer volume it may consume,
// regardless of actual usage. Tiers are numbered configuration slots owned
// by the Operator; 0 is reserved as "unset".
type Tier struct {
	types.Entity

	ID            uint32       `json:"id"`
	StorageBytes  uint64       `json:"storage_bytes"`
	TransferBytes uint64       `json:"transfer_bytes"`
	Price         types.Tokens `json:"price"`
}

// Active reports whether the tier can be selected by subscriptions. Tiers
// are never deleted; the Operator deactivates one by zeroing its limits,
// which keeps historical references resolvable.
func (t *Tier) Active() bool {
	return t.StorageBytes != 0 || t.TransferBytes != 0
}
