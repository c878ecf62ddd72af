package tally

import (
	"context"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// BalanceKeeper moves tokens between the ledger and the outside world.
// Refund returns a canceled App's remaining balance to its owner and Payout
// delivers a pool withdrawal to the operator. Implementations bridge to the
// Cloud's token accounts; the default keeper accepts every transfer, which
// suits deployments that settle off-ledger.
type BalanceKeeper interface {
	Refund(ctx context.Context, app id.AppID, amount types.Tokens) error
	Payout(ctx context.Context, operator id.OperatorID, amount types.Tokens) error
}

type nopKeeper struct{}

func (nopKeeper) Refund(context.Context, id.AppID, types.Tokens) error { return nil }

func (nopKeeper) Payout(context.Context, id.OperatorID, types.Tokens) error { return nil }
