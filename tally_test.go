package tally_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/inspector"
	"github.com/xraph/tally/metric"
	"github.com/xraph/tally/node"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/tier"
	"github.com/xraph/tally/types"
)

func counters(stored, read, written uint64) metric.Counters {
	return metric.Counters{StoredBytes: stored, ReadBytes: read, WrittenBytes: written}
}

// manualClock lets tests move time explicitly.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordKeeper captures refunds and payouts, optionally failing them.
type recordKeeper struct {
	mu        sync.Mutex
	refunds   []types.Tokens
	payouts   []types.Tokens
	refundErr error
	payoutErr error
}

func (k *recordKeeper) Refund(_ context.Context, _ id.AppID, amount types.Tokens) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.refundErr != nil {
		return k.refundErr
	}
	k.refunds = append(k.refunds, amount)
	return nil
}

func (k *recordKeeper) Payout(_ context.Context, _ id.OperatorID, amount types.Tokens) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.payoutErr != nil {
		return k.payoutErr
	}
	k.payouts = append(k.payouts, amount)
	return nil
}

func (k *recordKeeper) failRefunds(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.refundErr = err
}

func (k *recordKeeper) failPayouts(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.payoutErr = err
}

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestTally builds a started engine on a fresh memory store with a
// manual clock anchored at testStart.
func newTestTally(t *testing.T, opts ...tally.Option) (*tally.Tally, *manualClock, id.OperatorID) {
	t.Helper()
	return newTestTallyOn(t, memory.New(), opts...)
}

// newTestTallyOn is newTestTally over a caller-supplied store, for tests
// that inspect or seed store state directly.
func newTestTallyOn(t *testing.T, st *memory.Store, opts ...tally.Option) (*tally.Tally, *manualClock, id.OperatorID) {
	t.Helper()

	clk := newManualClock(testStart)
	op := id.NewOperatorID()
	all := append([]tally.Option{
		tally.WithClock(clk),
		tally.WithOperator(op),
		tally.WithLogger(slog.New(slog.DiscardHandler)),
	}, opts...)

	tl := tally.New(st, all...)
	if err := tl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		if err := tl.Stop(); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	})
	return tl, clk, op
}

func seedTier(t *testing.T, tl *tally.Tally, op id.OperatorID, tierID uint32, price types.Tokens) {
	t.Helper()
	err := tl.SetTier(context.Background(), op, &tier.Tier{
		ID:            tierID,
		StorageBytes:  1 << 30,
		TransferBytes: 10 << 30,
		Price:         price,
	})
	if err != nil {
		t.Fatalf("SetTier(%d) error = %v", tierID, err)
	}
}

func seedNode(t *testing.T, tl *tally.Tally, op id.OperatorID) id.NodeID {
	t.Helper()
	n := &node.Node{P2PAddr: "/ip4/127.0.0.1/tcp/7777", URL: "https://node.example"}
	if err := tl.AddNode(context.Background(), op, n); err != nil {
		t.Fatalf("AddNode() error = %v", err)
	}
	return n.ID
}

func seedInspector(t *testing.T, tl *tally.Tally, op id.OperatorID) id.InspectorID {
	t.Helper()
	ins := &inspector.Inspector{Name: "probe"}
	if err := tl.AddInspector(context.Background(), op, ins); err != nil {
		t.Fatalf("AddInspector() error = %v", err)
	}
	return ins.ID
}

func TestStartRequiresOperator(t *testing.T) {
	tl := tally.New(memory.New(), tally.WithLogger(slog.New(slog.DiscardHandler)))
	err := tl.Start(context.Background())
	if err == nil {
		t.Fatal("Start() without operator succeeded, want error")
	}
	var verr tally.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("Start() error = %v, want ValidationError", err)
	}
}

func TestStartKeepsStoredOperator(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	clk := newManualClock(testStart)
	first := id.NewOperatorID()

	tl := tally.New(st, tally.WithClock(clk), tally.WithOperator(first),
		tally.WithLogger(slog.New(slog.DiscardHandler)))
	if err := tl.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// A second engine over the same store configures a different operator,
	// but the stored one wins.
	second := tally.New(st, tally.WithClock(clk), tally.WithOperator(id.NewOperatorID()),
		tally.WithLogger(slog.New(slog.DiscardHandler)))
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	got, err := second.Operator(ctx)
	if err != nil {
		t.Fatalf("Operator() error = %v", err)
	}
	if got != first {
		t.Errorf("Operator() = %s, want %s", got, first)
	}
}

func TestTransferOperator(t *testing.T) {
	tl, _, op := newTestTally(t)
	ctx := context.Background()
	next := id.NewOperatorID()

	if err := tl.TransferOperator(ctx, next, next); !errors.Is(err, tally.ErrUnauthorizedOperator) {
		t.Errorf("TransferOperator() by stranger error = %v, want ErrUnauthorizedOperator", err)
	}
	if err := tl.TransferOperator(ctx, op, next); err != nil {
		t.Fatalf("TransferOperator() error = %v", err)
	}

	got, err := tl.Operator(ctx)
	if err != nil {
		t.Fatalf("Operator() error = %v", err)
	}
	if got != next {
		t.Errorf("Operator() = %s, want %s", got, next)
	}

	// The old operator lost control.
	if err := tl.SetTier(ctx, op, &tier.Tier{ID: 1, StorageBytes: 1, Price: 1}); !errors.Is(err, tally.ErrUnauthorizedOperator) {
		t.Errorf("SetTier() by old operator error = %v, want ErrUnauthorizedOperator", err)
	}
	seedTier(t, tl, next, 1, 1)
}

func TestPauseBlocksMutations(t *testing.T) {
	tl, clk, op := newTestTally(t)
	ctx := context.Background()
	seedTier(t, tl, op, 1, 30)
	nodeID := seedNode(t, tl, op)
	inspID := seedInspector(t, tl, op)
	app := id.NewAppID()
	if err := tl.Deposit(ctx, app, 100); err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}

	if err := tl.Pause(ctx, op); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	paused, err := tl.Paused(ctx)
	if err != nil || !paused {
		t.Fatalf("Paused() = %v, %v, want true, nil", paused, err)
	}

	day := metric.DayOf(clk.Now())
	blocked := map[string]error{
		"Deposit":    tl.Deposit(ctx, app, 1),
		"ChangeTier": tl.ChangeTier(ctx, app, 1),
		"Report":     tl.Report(ctx, inspID, app, nodeID, day, counters(1, 1, 1)),
		"MarkOnline": tl.MarkOnline(ctx, inspID, nodeID),
		"Finalize":   tl.FinalizeReportingPeriod(ctx, inspID),
		"Withdraw":   tl.Withdraw(ctx, op, 1),
	}
	if _, err := tl.Tick(ctx, app); err != nil {
		blocked["Tick"] = err
	} else {
		t.Error("Tick() while paused succeeded")
	}
	if _, err := tl.Cancel(ctx, app); err != nil {
		blocked["Cancel"] = err
	} else {
		t.Error("Cancel() while paused succeeded")
	}
	if _, err := tl.TickAll(ctx, id.AppID{}, 0); err != nil {
		blocked["TickAll"] = err
	} else {
		t.Error("TickAll() while paused succeeded")
	}
	for name, err := range blocked {
		if !errors.Is(err, tally.ErrPaused) {
			t.Errorf("%s while paused error = %v, want ErrPaused", name, err)
		}
	}

	// Reads and registry maintenance stay available.
	if _, err := tl.Status(ctx, app); err != nil {
		t.Errorf("Status() while paused error = %v", err)
	}
	if err := tl.SetTier(ctx, op, &tier.Tier{ID: 2, StorageBytes: 1, Price: 5}); err != nil {
		t.Errorf("SetTier() while paused error = %v", err)
	}
	if err := tl.Resume(ctx, op); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if err := tl.Deposit(ctx, app, 1); err != nil {
		t.Errorf("Deposit() after resume error = %v", err)
	}
}

func TestPauseRequiresOperator(t *testing.T) {
	tl, _, _ := newTestTally(t)
	if err := tl.Pause(context.Background(), id.NewOperatorID()); !errors.Is(err, tally.ErrUnauthorizedOperator) {
		t.Errorf("Pause() by stranger error = %v, want ErrUnauthorizedOperator", err)
	}
}

func TestSetTierValidation(t *testing.T) {
	tl, _, op := newTestTally(t)
	ctx := context.Background()

	err := tl.SetTier(ctx, op, &tier.Tier{ID: 0, StorageBytes: 1, Price: 1})
	var verr tally.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("SetTier(id 0) error = %v, want ValidationError", err)
	}
	if err := tl.SetTier(ctx, id.NewOperatorID(), &tier.Tier{ID: 1, StorageBytes: 1, Price: 1}); !errors.Is(err, tally.ErrUnauthorizedOperator) {
		t.Errorf("SetTier() by stranger error = %v, want ErrUnauthorizedOperator", err)
	}
}

func TestTiersListedInOrder(t *testing.T) {
	tl, _, op := newTestTally(t)
	for _, tierID := range []uint32{3, 1, 2} {
		seedTier(t, tl, op, tierID, types.Tokens(tierID*10))
	}

	tiers, err := tl.ListTiers(context.Background())
	if err != nil {
		t.Fatalf("ListTiers() error = %v", err)
	}
	if len(tiers) != 3 {
		t.Fatalf("ListTiers() returned %d tiers, want 3", len(tiers))
	}
	for i, want := range []uint32{1, 2, 3} {
		if tiers[i].ID != want {
			t.Errorf("tiers[%d].ID = %d, want %d", i, tiers[i].ID, want)
		}
	}
}

func TestTierUpdateKeepsCreatedAt(t *testing.T) {
	tl, clk, op := newTestTally(t)
	ctx := context.Background()
	seedTier(t, tl, op, 1, 30)

	before, err := tl.GetTier(ctx, 1)
	if err != nil {
		t.Fatalf("GetTier() error = %v", err)
	}

	clk.Advance(time.Hour)
	seedTier(t, tl, op, 1, 45)

	after, err := tl.GetTier(ctx, 1)
	if err != nil {
		t.Fatalf("GetTier() error = %v", err)
	}
	if after.Price != 45 {
		t.Errorf("Price = %v, want 45", after.Price)
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v -> %v", before.CreatedAt, after.CreatedAt)
	}
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Errorf("UpdatedAt not refreshed: %v", after.UpdatedAt)
	}
}

func TestNodeLifecycle(t *testing.T) {
	tl, _, op := newTestTally(t)
	ctx := context.Background()
	nodeID := seedNode(t, tl, op)

	active, err := tl.IsActiveNode(ctx, nodeID)
	if err != nil || !active {
		t.Fatalf("IsActiveNode() = %v, %v, want true, nil", active, err)
	}

	if err := tl.RemoveNode(ctx, op, nodeID); err != nil {
		t.Fatalf("RemoveNode() error = %v", err)
	}
	active, err = tl.IsActiveNode(ctx, nodeID)
	if err != nil || active {
		t.Fatalf("IsActiveNode() after remove = %v, %v, want false, nil", active, err)
	}

	// Removed nodes stay visible for audit.
	n, err := tl.GetNode(ctx, nodeID)
	if err != nil {
		t.Fatalf("GetNode() after remove error = %v", err)
	}
	if n.Status != node.StatusRemoved {
		t.Errorf("Status = %q, want %q", n.Status, node.StatusRemoved)
	}

	if err := tl.RemoveNode(ctx, op, nodeID); !errors.Is(err, tally.ErrUnknownNode) {
		t.Errorf("RemoveNode() twice error = %v, want ErrUnknownNode", err)
	}

	// Re-adding reactivates with fresh metadata.
	if err := tl.AddNode(ctx, op, &node.Node{ID: nodeID, URL: "https://new.example"}); err != nil {
		t.Fatalf("AddNode() reactivate error = %v", err)
	}
	n, err = tl.GetNode(ctx, nodeID)
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if !n.Active() || n.URL != "https://new.example" {
		t.Errorf("reactivated node = %+v, want active with refreshed url", n)
	}
}

func TestListNodesFiltersStatus(t *testing.T) {
	tl, _, op := newTestTally(t)
	ctx := context.Background()
	kept := seedNode(t, tl, op)
	removed := seedNode(t, tl, op)
	if err := tl.RemoveNode(ctx, op, removed); err != nil {
		t.Fatalf("RemoveNode() error = %v", err)
	}

	activeOnly, err := tl.ListNodes(ctx, node.ListOpts{Status: node.StatusActive})
	if err != nil {
		t.Fatalf("ListNodes() error = %v", err)
	}
	if len(activeOnly) != 1 || activeOnly[0].ID != kept {
		t.Errorf("ListNodes(active) = %d nodes, want just %s", len(activeOnly), kept)
	}

	all, err := tl.ListNodes(ctx, node.ListOpts{})
	if err != nil {
		t.Fatalf("ListNodes() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListNodes(all) = %d nodes, want 2", len(all))
	}
}

func TestInspectorLifecycle(t *testing.T) {
	tl, clk, op := newTestTally(t)
	ctx := context.Background()
	inspID := seedInspector(t, tl, op)

	inspectors, err := tl.ListInspectors(ctx)
	if err != nil {
		t.Fatalf("ListInspectors() error = %v", err)
	}
	if len(inspectors) != 1 || inspectors[0].ID != inspID {
		t.Fatalf("ListInspectors() = %v, want just %s", inspectors, inspID)
	}

	if err := tl.RemoveInspector(ctx, op, inspID); err != nil {
		t.Fatalf("RemoveInspector() error = %v", err)
	}
	if err := tl.RemoveInspector(ctx, op, inspID); !errors.Is(err, tally.ErrUnknownInspector) {
		t.Errorf("RemoveInspector() twice error = %v, want ErrUnknownInspector", err)
	}

	// A removed inspector can no longer report.
	nodeID := seedNode(t, tl, op)
	err = tl.Report(ctx, inspID, id.NewAppID(), nodeID, metric.DayOf(clk.Now()), counters(1, 0, 0))
	if !errors.Is(err, tally.ErrUnauthorizedReporter) {
		t.Errorf("Report() by removed inspector error = %v, want ErrUnauthorizedReporter", err)
	}
}

func TestErrorClassifiers(t *testing.T) {
	if !tally.IsNotFound(tally.ErrUnknownTier) || !tally.IsNotFound(tally.ErrNoSubscription) {
		t.Error("IsNotFound() missed a not-found sentinel")
	}
	if tally.IsNotFound(tally.ErrPaused) {
		t.Error("IsNotFound(ErrPaused) = true")
	}
	if !tally.IsAuthorization(tally.ErrUnauthorizedOperator) || !tally.IsAuthorization(tally.ErrUnauthorizedReporter) {
		t.Error("IsAuthorization() missed an authorization sentinel")
	}
	if !tally.IsTimestamp(tally.ErrRetentionExpired) || !tally.IsTimestamp(tally.ErrUnexpectedTimestamp) {
		t.Error("IsTimestamp() missed a timestamp sentinel")
	}
}
