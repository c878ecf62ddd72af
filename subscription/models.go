// Package subscription holds per-App billing state: prepaid balance, tier,
// and period bookkeeping.
package subscription

import (
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Period is the fixed billing period length. A tier's price buys one period
// of reserved capacity and is due in full the moment the period begins;
// there is no proration inside a period.
const Period = 31 * 24 * time.Hour

// Subscription is the billing record for one App. PaidThrough marks the
// start of the first period that has not been paid for; a tick charges
// every period that has begun before now and advances it. PrevTierID and
// TierChangedAt let a period already in progress keep the price it started
// under when the App changes tier mid-period.
type Subscription struct {
	types.Entity

	App           id.AppID     `json:"app"`
	TierID        uint32       `json:"tier_id"`
	PrevTierID    uint32       `json:"prev_tier_id,omitempty"`
	TierChangedAt time.Time    `json:"tier_changed_at,omitzero"`
	Balance       types.Tokens `json:"balance"`
	Deposited     types.Tokens `json:"deposited"`
	Consumed      types.Tokens `json:"consumed"`
	PaidThrough   time.Time    `json:"paid_through"`
	Suspended     bool         `json:"suspended"`
}

// TierAt returns the tier in force for the period starting at start: a
// change recorded strictly after the period began applies only from the
// next boundary.
func (s *Subscription) TierAt(start time.Time) uint32 {
	if s.PrevTierID != 0 && s.TierChangedAt.After(start) {
		return s.PrevTierID
	}
	return s.TierID
}

// Status is the read-only billing view. Accrued reports whether at least
// one period has begun that a tick has not yet consumed.
type Status struct {
	App         id.AppID     `json:"app"`
	TierID      uint32       `json:"tier_id"`
	Balance     types.Tokens `json:"balance"`
	Suspended   bool         `json:"suspended"`
	PaidThrough time.Time    `json:"paid_through"`
	Accrued     bool         `json:"accrued"`
}

// ListOpts filters and pages subscription listings. AfterApp is an
// exclusive cursor over the App id ordering, used by bulk ticking.
type ListOpts struct {
	AfterApp  id.AppID
	Suspended *bool
	Limit     int
	Offset    int
}
