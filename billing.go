package tally

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"slices"
	"strings"
	"time"

	"github.com/xraph/tally/entitlement"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/metric"
	"github.com/xraph/tally/revenue"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/tier"
	"github.com/xraph/tally/types"
)

// ──────────────────────────────────────────────────
// Subscription Ledger
// ──────────────────────────────────────────────────

// Deposit adds prepaid value to an App's subscription, creating the
// subscription on first deposit. Escrow of the transferred tokens is the
// external balances capability's concern and is assumed done. Depositing
// into a suspended subscription lifts the suspension and restarts billing
// from now, since the App was not served through the outage.
func (t *Tally) Deposit(ctx context.Context, app id.AppID, amount types.Tokens) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.requireRunning(ctx); err != nil {
		return err
	}
	if app.IsNil() {
		return ValidationError{Field: "app", Message: "app id must not be nil"}
	}

	now := t.clock.Now()
	sub, err := t.store.GetSubscription(ctx, app)
	if errors.Is(err, ErrNoSubscription) {
		tierID, terr := t.defaultTier(ctx)
		if terr != nil {
			return terr
		}
		sub = &subscription.Subscription{
			Entity:      types.EntityAt(now),
			App:         app,
			TierID:      tierID,
			Balance:     amount,
			Deposited:   amount,
			PaidThrough: now,
		}
		if err := t.store.CreateSubscription(ctx, sub); err != nil {
			return err
		}
		t.plugins.EmitDeposited(ctx, sub, uint64(amount))
		t.logger.Info("subscription opened", "app", app, "tier", tierID, "amount", amount)
		return nil
	}
	if err != nil {
		return err
	}

	balance, err := sub.Balance.Add(amount)
	if err != nil {
		return err
	}
	deposited, err := sub.Deposited.Add(amount)
	if err != nil {
		return err
	}
	sub.Balance = balance
	sub.Deposited = deposited
	if sub.Suspended {
		sub.Suspended = false
		sub.PaidThrough = now
	}
	sub.Touch(now)

	if err := t.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}

	t.plugins.EmitDeposited(ctx, sub, uint64(amount))
	return nil
}

// ChangeTier moves the App to a different tier starting at the next
// period boundary. A period already in progress keeps the price it
// started under.
func (t *Tally) ChangeTier(ctx context.Context, app id.AppID, newTier uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.requireRunning(ctx); err != nil {
		return err
	}

	tr, err := t.store.GetTier(ctx, newTier)
	if err != nil {
		return err
	}
	if !tr.Active() {
		return ErrUnknownTier
	}

	sub, err := t.store.GetSubscription(ctx, app)
	if err != nil {
		return err
	}
	if sub.TierID == newTier {
		return nil
	}

	now := t.clock.Now()
	oldTier := sub.TierID
	// Prev pins the tier in force at the next unpaid boundary, so
	// repeated changes inside one period cannot reprice it.
	sub.PrevTierID = sub.TierAt(sub.PaidThrough)
	sub.TierID = newTier
	sub.TierChangedAt = now
	sub.Touch(now)

	if err := t.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}

	t.plugins.EmitTierChanged(ctx, sub, oldTier, newTier)
	t.logger.Info("tier changed", "app", app, "from", oldTier, "to", newTier)
	return nil
}

// Cancel settles any periods that have begun unpaid, refunds the
// remaining balance through the balances capability, removes the
// subscription, and returns the refund.
func (t *Tally) Cancel(ctx context.Context, app id.AppID) (types.Tokens, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.requireRunning(ctx); err != nil {
		return 0, err
	}

	sub, err := t.store.GetSubscription(ctx, app)
	if err != nil {
		return 0, err
	}

	now := t.clock.Now()
	consumed, changed, err := t.settleDues(ctx, sub, now)
	if err != nil {
		return 0, err
	}
	if changed {
		sub.Touch(now)
		if err := t.store.UpdateSubscription(ctx, sub); err != nil {
			return 0, err
		}
		if err := t.creditRevenue(ctx, app, consumed, now); err != nil {
			return 0, err
		}
	}

	refund := sub.Balance
	if !refund.IsZero() {
		sub.Balance = 0
		sub.Touch(now)
		if err := t.store.UpdateSubscription(ctx, sub); err != nil {
			return 0, err
		}
		if err := t.keeper.Refund(ctx, app, refund); err != nil {
			// Put the balance back so cancellation can be retried.
			sub.Balance = refund
			if rerr := t.store.UpdateSubscription(ctx, sub); rerr != nil {
				t.logger.Error("refund failed and balance restore failed",
					"app", app,
					"amount", refund,
					"refund_error", err,
					"restore_error", rerr,
				)
			}
			return 0, err
		}
	}

	if err := t.store.DeleteSubscription(ctx, app); err != nil {
		return 0, err
	}

	t.plugins.EmitCanceled(ctx, sub, uint64(refund))
	t.logger.Info("subscription canceled", "app", app, "refund", refund)
	return refund, nil
}

// Tick settles every billing period that has begun since the last charge,
// returning the amount consumed by this call. A subscription whose
// balance cannot cover a full period drains what is left into the revenue
// pool and suspends.
func (t *Tally) Tick(ctx context.Context, app id.AppID) (types.Tokens, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.requireRunning(ctx); err != nil {
		return 0, err
	}

	sub, err := t.store.GetSubscription(ctx, app)
	if err != nil {
		return 0, err
	}
	return t.tickLocked(ctx, sub)
}

// TickAll ticks subscriptions in App id order, starting strictly after
// cursor, at most limit per call (the configured batch size when limit is
// not positive). It returns the position to resume from, the zero id once
// the end is reached, and a MultiError aggregating per-App failures.
// Progress is committed per subscription.
func (t *Tally) TickAll(ctx context.Context, cursor id.AppID, limit int) (id.AppID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.requireRunning(ctx); err != nil {
		return cursor, err
	}
	if limit <= 0 {
		limit = t.tickBatchSize
	}

	subs, err := t.store.ListSubscriptions(ctx, subscription.ListOpts{AfterApp: cursor, Limit: limit})
	if err != nil {
		return cursor, err
	}

	var merr MultiError
	next := id.AppID{}
	for _, sub := range subs {
		if _, err := t.tickLocked(ctx, sub); err != nil {
			merr.Add(fmt.Errorf("tick %s: %w", sub.App, err))
		}
		next = sub.App
	}
	if len(subs) < limit {
		next = id.AppID{}
	}

	if merr.HasErrors() {
		return next, merr
	}
	return next, nil
}

// Status returns the App's billing state without mutating it. Accrued
// reports whether a tick right now would consume anything.
func (t *Tally) Status(ctx context.Context, app id.AppID) (*subscription.Status, error) {
	sub, err := t.store.GetSubscription(ctx, app)
	if err != nil {
		return nil, err
	}

	now := t.clock.Now()
	return &subscription.Status{
		App:         sub.App,
		TierID:      sub.TierID,
		Balance:     sub.Balance,
		Suspended:   sub.Suspended,
		PaidThrough: sub.PaidThrough,
		Accrued:     !sub.Suspended && !now.Before(sub.PaidThrough),
	}, nil
}

// Allowance resolves the capacity the Cloud should grant an App right
// now: its tier's limits while the subscription is paid up, the free
// tier's once it has lapsed or never existed. Nodes enforce the returned
// limits; the ledger only answers what they currently are.
func (t *Tally) Allowance(ctx context.Context, app id.AppID) (*entitlement.Allowance, error) {
	sub, err := t.store.GetSubscription(ctx, app)
	if errors.Is(err, ErrNoSubscription) {
		free, ferr := t.freeTier(ctx)
		if ferr != nil {
			return nil, ferr
		}
		if free == nil {
			return nil, ErrNoSubscription
		}
		return uncoveredAllowance(app, free), nil
	}
	if err != nil {
		return nil, err
	}

	if sub.Suspended {
		free, err := t.freeTier(ctx)
		if err != nil {
			return nil, err
		}
		if free == nil {
			// Lapsed with no free tier configured: the App keeps its
			// identity but no capacity.
			return &entitlement.Allowance{App: app}, nil
		}
		return uncoveredAllowance(app, free), nil
	}

	tr, err := t.store.GetTier(ctx, sub.TierID)
	if err != nil {
		return nil, err
	}
	return &entitlement.Allowance{
		App:           app,
		TierID:        tr.ID,
		StorageBytes:  tr.StorageBytes,
		TransferBytes: tr.TransferBytes,
		Covered:       true,
	}, nil
}

func uncoveredAllowance(app id.AppID, free *tier.Tier) *entitlement.Allowance {
	return &entitlement.Allowance{
		App:           app,
		TierID:        free.ID,
		StorageBytes:  free.StorageBytes,
		TransferBytes: free.TransferBytes,
	}
}

// tickLocked settles dues on an already-loaded subscription, credits the
// pool, and persists. Callers hold t.mu.
func (t *Tally) tickLocked(ctx context.Context, sub *subscription.Subscription) (types.Tokens, error) {
	now := t.clock.Now()
	consumed, changed, err := t.settleDues(ctx, sub, now)
	if err != nil {
		return 0, err
	}
	if !changed {
		return 0, nil
	}
	sub.Touch(now)

	if err := t.store.UpdateSubscription(ctx, sub); err != nil {
		return 0, err
	}
	if err := t.creditRevenue(ctx, sub.App, consumed, now); err != nil {
		return 0, err
	}

	t.plugins.EmitCharged(ctx, sub, uint64(consumed))
	if sub.Suspended {
		t.plugins.EmitSuspended(ctx, sub)
		t.logger.Warn("subscription suspended", "app", sub.App, "consumed", consumed)
	}
	return consumed, nil
}

// settleDues charges the price of each period that has begun unpaid,
// advancing PaidThrough one period per charge. When the balance cannot
// cover a full period it drains entirely, the subscription suspends, and
// PaidThrough stays put. The balance never goes negative and suspended
// subscriptions are left untouched. sub is mutated in place; on error it
// must be discarded unpersisted.
func (t *Tally) settleDues(ctx context.Context, sub *subscription.Subscription, now time.Time) (types.Tokens, bool, error) {
	if sub.Suspended {
		return 0, false, nil
	}

	var consumed types.Tokens
	changed := false
	for !now.Before(sub.PaidThrough) {
		tr, err := t.store.GetTier(ctx, sub.TierAt(sub.PaidThrough))
		if err != nil {
			return 0, false, err
		}

		charge := tr.Price
		if sub.Balance < charge {
			charge = sub.Balance
			sub.Suspended = true
		}

		balance, err := sub.Balance.Sub(charge)
		if err != nil {
			return 0, false, err
		}
		lifetime, err := sub.Consumed.Add(charge)
		if err != nil {
			return 0, false, err
		}
		total, err := consumed.Add(charge)
		if err != nil {
			return 0, false, err
		}
		sub.Balance, sub.Consumed, consumed = balance, lifetime, total
		changed = true

		if sub.Suspended {
			break
		}
		sub.PaidThrough = sub.PaidThrough.Add(subscription.Period)
	}
	return consumed, changed, nil
}

// ──────────────────────────────────────────────────
// Revenue Ledger
// ──────────────────────────────────────────────────

// Withdraw pays amount from the revenue pool to the operator through the
// balances capability, restoring the pool if the payout fails.
func (t *Tally) Withdraw(ctx context.Context, caller id.OperatorID, amount types.Tokens) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, err := t.requireRunning(ctx)
	if err != nil {
		return err
	}
	if st.Operator != caller {
		return ErrUnauthorizedOperator
	}
	if amount.IsZero() {
		return nil
	}

	pool, err := t.store.GetPool(ctx)
	if err != nil {
		return err
	}
	if pool.Balance < amount {
		return ErrInsufficientPool
	}

	prevBalance, prevWithdrawn := pool.Balance, pool.Withdrawn
	balance, err := pool.Balance.Sub(amount)
	if err != nil {
		return err
	}
	withdrawn, err := pool.Withdrawn.Add(amount)
	if err != nil {
		return err
	}
	pool.Balance, pool.Withdrawn = balance, withdrawn
	pool.Touch(t.clock.Now())

	if err := t.store.PutPool(ctx, pool); err != nil {
		return err
	}

	if err := t.keeper.Payout(ctx, caller, amount); err != nil {
		// Put the tokens back so the withdrawal can be retried.
		pool.Balance, pool.Withdrawn = prevBalance, prevWithdrawn
		if rerr := t.store.PutPool(ctx, pool); rerr != nil {
			t.logger.Error("payout failed and pool restore failed",
				"amount", amount,
				"payout_error", err,
				"restore_error", rerr,
			)
		}
		return err
	}

	t.plugins.EmitWithdrawn(ctx, caller.String(), uint64(amount))
	t.logger.Info("pool withdrawal", "operator", caller, "amount", amount)
	return nil
}

// RevenuePool returns the pool state.
func (t *Tally) RevenuePool(ctx context.Context) (*revenue.Pool, error) {
	return t.store.GetPool(ctx)
}

// NodeRevenue returns the advisory total attributed to one node, zero for
// a known node that never earned attribution.
func (t *Tally) NodeRevenue(ctx context.Context, nodeID id.NodeID) (types.Tokens, error) {
	share, err := t.store.GetShare(ctx, nodeID)
	if errors.Is(err, ErrNotFound) {
		if _, nerr := t.store.GetNode(ctx, nodeID); nerr != nil {
			return 0, nerr
		}
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return share.Attributed, nil
}

// ListNodeRevenue returns every node's advisory share.
func (t *Tally) ListNodeRevenue(ctx context.Context) ([]*revenue.Share, error) {
	return t.store.ListShares(ctx)
}

// creditRevenue moves a consumed amount into the pool and splits the
// advisory attribution across the nodes that served the paying App within
// the retention window. The pool uses checked arithmetic; attribution
// weights saturate so bookkeeping noise cannot fail a charge.
func (t *Tally) creditRevenue(ctx context.Context, app id.AppID, amount types.Tokens, now time.Time) error {
	if amount.IsZero() {
		return nil
	}

	pool, err := t.store.GetPool(ctx)
	if err != nil {
		return err
	}
	balance, err := pool.Balance.Add(amount)
	if err != nil {
		return err
	}
	pool.Balance = balance

	today := metric.DayOf(now)
	merged, err := t.store.ListMergedByApp(ctx, app, metric.Window{
		From: metric.RetentionCutoff(today),
		To:   today,
	})
	if err != nil {
		return err
	}

	nodes, weights := weightsByNode(merged)
	if len(nodes) == 0 {
		unattributed, err := pool.Unattributed.Add(amount)
		if err != nil {
			return err
		}
		pool.Unattributed = unattributed
	}

	pool.Touch(now)
	if err := t.store.PutPool(ctx, pool); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}

	shares := t.splitRevenue(uint64(amount), nodes, weights)
	for i, n := range nodes {
		if shares[i] == 0 {
			continue
		}
		if err := t.addShare(ctx, n, types.Tokens(shares[i]), now); err != nil {
			return err
		}
	}
	return nil
}

// splitRevenue applies the configured attribution strategy, falling back
// to the proportional rule when no strategy is set or the strategy
// returns a split that does not conserve the amount.
func (t *Tally) splitRevenue(amount uint64, nodes []id.NodeID, weights []uint64) []uint64 {
	if t.attributionStrategy != "" {
		if strat := t.plugins.GetAttributionStrategy(t.attributionStrategy); strat != nil {
			names := make([]string, len(nodes))
			for i, n := range nodes {
				names[i] = n.String()
			}
			out := strat.SplitRevenue(amount, names, weights)
			if validSplit(out, len(nodes), amount) {
				return out
			}
			t.logger.Warn("attribution strategy returned invalid split",
				"strategy", t.attributionStrategy,
			)
		}
	}
	return splitProportional(amount, weights)
}

func (t *Tally) addShare(ctx context.Context, nodeID id.NodeID, amount types.Tokens, now time.Time) error {
	share, err := t.store.GetShare(ctx, nodeID)
	switch {
	case errors.Is(err, ErrNotFound):
		share = &revenue.Share{Entity: types.EntityAt(now), Node: nodeID}
	case err != nil:
		return err
	default:
		share.Touch(now)
	}

	attributed, err := share.Attributed.Add(amount)
	if err != nil {
		return err
	}
	share.Attributed = attributed
	return t.store.PutShare(ctx, share)
}

// weightsByNode collapses an App's merged rows into per-node attribution
// weights, ordered by node id so splits are deterministic.
func weightsByNode(merged []*metric.Merged) ([]id.NodeID, []uint64) {
	byNode := make(map[id.NodeID]uint64)
	for _, m := range merged {
		w := m.Counters.Weight()
		if w == 0 {
			continue
		}
		byNode[m.Node] = types.SaturatingAdd(byNode[m.Node], w)
	}
	if len(byNode) == 0 {
		return nil, nil
	}

	nodes := make([]id.NodeID, 0, len(byNode))
	for n := range byNode {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b id.NodeID) int {
		return strings.Compare(a.String(), b.String())
	})

	weights := make([]uint64, len(nodes))
	for i, n := range nodes {
		weights[i] = byNode[n]
	}
	return nodes, weights
}

// splitProportional floors amount*weight/total per node and hands the
// remainder to the first node. The 128-bit intermediate keeps large
// amounts exact.
func splitProportional(amount uint64, weights []uint64) []uint64 {
	var total uint64
	for _, w := range weights {
		total = types.SaturatingAdd(total, w)
	}

	out := make([]uint64, len(weights))
	if total == 0 || amount == 0 {
		return out
	}

	var distributed uint64
	for i, w := range weights {
		hi, lo := bits.Mul64(amount, w)
		share, _ := bits.Div64(hi, lo, total)
		out[i] = share
		distributed += share
	}
	out[0] += amount - distributed
	return out
}

func validSplit(shares []uint64, n int, amount uint64) bool {
	if len(shares) != n {
		return false
	}
	var sum uint64
	for _, s := range shares {
		next := sum + s
		if next < sum {
			return false
		}
		sum = next
	}
	return sum == amount
}
