package tally_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/metric"
	"github.com/xraph/tally/store/memory"
)

func mustReport(t *testing.T, tl *tally.Tally, insp id.InspectorID, app id.AppID, node id.NodeID, day metric.Day, c metric.Counters) {
	t.Helper()
	if err := tl.Report(context.Background(), insp, app, node, day, c); err != nil {
		t.Fatalf("Report(%s, %s, %s) error = %v", insp, app, node, err)
	}
}

func mustRollupByApp(t *testing.T, tl *tally.Tally, app id.AppID, w metric.Window) *metric.Rollup {
	t.Helper()
	r, err := tl.RollupByApp(context.Background(), app, w)
	if err != nil {
		t.Fatalf("RollupByApp(%s) error = %v", app, err)
	}
	return r
}

func TestReportAuthorization(t *testing.T) {
	tl, clk, op := newTestTally(t)
	nodeID := seedNode(t, tl, op)
	inspID := seedInspector(t, tl, op)
	app := id.NewAppID()
	day := metric.DayOf(clk.Now())
	ctx := context.Background()

	err := tl.Report(ctx, id.NewInspectorID(), app, nodeID, day, counters(1, 0, 0))
	if !errors.Is(err, tally.ErrUnauthorizedReporter) {
		t.Errorf("Report() by unregistered inspector error = %v, want ErrUnauthorizedReporter", err)
	}

	var verr tally.ValidationError
	if err := tl.Report(ctx, inspID, id.AppID{}, nodeID, day, counters(1, 0, 0)); !errors.As(err, &verr) {
		t.Errorf("Report(nil app) error = %v, want ValidationError", err)
	}

	if err := tl.Report(ctx, inspID, app, id.NewNodeID(), day, counters(1, 0, 0)); !errors.Is(err, tally.ErrUnknownNode) {
		t.Errorf("Report(unknown node) error = %v, want ErrUnknownNode", err)
	}

	if err := tl.RemoveNode(ctx, op, nodeID); err != nil {
		t.Fatalf("RemoveNode() error = %v", err)
	}
	if err := tl.Report(ctx, inspID, app, nodeID, day, counters(1, 0, 0)); !errors.Is(err, tally.ErrUnknownNode) {
		t.Errorf("Report(removed node) error = %v, want ErrUnknownNode", err)
	}
}

func TestReportDayBounds(t *testing.T) {
	tl, clk, op := newTestTally(t)
	nodeID := seedNode(t, tl, op)
	inspID := seedInspector(t, tl, op)
	app := id.NewAppID()
	today := metric.DayOf(clk.Now())
	ctx := context.Background()

	if err := tl.Report(ctx, inspID, app, nodeID, today.Add(1), counters(1, 0, 0)); !errors.Is(err, tally.ErrUnexpectedTimestamp) {
		t.Errorf("Report(tomorrow) error = %v, want ErrUnexpectedTimestamp", err)
	}

	cutoff := metric.RetentionCutoff(today)
	if err := tl.Report(ctx, inspID, app, nodeID, cutoff.Add(-1), counters(1, 0, 0)); !errors.Is(err, tally.ErrRetentionExpired) {
		t.Errorf("Report(before cutoff) error = %v, want ErrRetentionExpired", err)
	}

	// The window edges themselves are accepted.
	mustReport(t, tl, inspID, app, nodeID, cutoff, counters(1, 0, 0))
	mustReport(t, tl, inspID, app, nodeID, today, counters(1, 0, 0))
}

// TestMergeAcrossInspectors drives the consensus pipeline through the
// engine: each new report recomputes the per-field median of its key.
func TestMergeAcrossInspectors(t *testing.T) {
	tl, clk, op := newTestTally(t)
	nodeID := seedNode(t, tl, op)
	app := id.NewAppID()
	day := metric.DayOf(clk.Now())
	w := metric.Window{From: day, To: day}

	insp1 := seedInspector(t, tl, op)
	insp2 := seedInspector(t, tl, op)
	insp3 := seedInspector(t, tl, op)

	mustReport(t, tl, insp1, app, nodeID, day, counters(10, 0, 0))
	if got := mustRollupByApp(t, tl, app, w).Totals.StoredBytes; got != 10 {
		t.Errorf("merged after one report = %d, want 10", got)
	}

	// Two reports: even count averages.
	mustReport(t, tl, insp2, app, nodeID, day, counters(20, 0, 0))
	if got := mustRollupByApp(t, tl, app, w).Totals.StoredBytes; got != 15 {
		t.Errorf("merged after two reports = %d, want 15", got)
	}

	// Three reports: the median shrugs off one inflated value.
	mustReport(t, tl, insp3, app, nodeID, day, counters(300, 0, 0))
	if got := mustRollupByApp(t, tl, app, w).Totals.StoredBytes; got != 20 {
		t.Errorf("merged after three reports = %d, want 20", got)
	}

	// Re-reporting overwrites the inspector's previous value and the
	// merge is recomputed.
	mustReport(t, tl, insp1, app, nodeID, day, counters(30, 0, 0))
	rollup := mustRollupByApp(t, tl, app, w)
	if got := rollup.Totals.StoredBytes; got != 30 {
		t.Errorf("merged after re-report = %d, want 30", got)
	}
	if rollup.Records != 1 {
		t.Errorf("Records = %d, want 1 (one merged row per key)", rollup.Records)
	}
}

func TestMergedKeysAreIndependent(t *testing.T) {
	tl, clk, op := newTestTally(t)
	nodeA := seedNode(t, tl, op)
	nodeB := seedNode(t, tl, op)
	inspID := seedInspector(t, tl, op)
	appA := id.NewAppID()
	appB := id.NewAppID()
	day := metric.DayOf(clk.Now())
	w := metric.Window{From: day, To: day}
	ctx := context.Background()

	mustReport(t, tl, inspID, appA, nodeA, day, counters(10, 1, 0))
	mustReport(t, tl, inspID, appA, nodeB, day, counters(30, 0, 2))
	mustReport(t, tl, inspID, appB, nodeA, day, counters(500, 0, 0))

	rollup := mustRollupByApp(t, tl, appA, w)
	if rollup.Totals.StoredBytes != 40 || rollup.Records != 2 {
		t.Errorf("RollupByApp(appA) = %+v, want 40 stored over 2 records", rollup)
	}

	byNode, err := tl.RollupByNode(ctx, nodeA, w)
	if err != nil {
		t.Fatalf("RollupByNode() error = %v", err)
	}
	if byNode.Totals.StoredBytes != 510 || byNode.Records != 2 {
		t.Errorf("RollupByNode(nodeA) = %+v, want 510 stored over 2 records", byNode)
	}
}

func TestRollupWindowValidation(t *testing.T) {
	tl, clk, _ := newTestTally(t)
	app := id.NewAppID()
	today := metric.DayOf(clk.Now())
	ctx := context.Background()

	var verr tally.ValidationError
	if _, err := tl.RollupByApp(ctx, app, metric.Window{From: today, To: today.Add(-1)}); !errors.As(err, &verr) {
		t.Errorf("RollupByApp(inverted window) error = %v, want ValidationError", err)
	}
	if _, err := tl.RollupByApp(ctx, app, metric.Window{From: today.Add(-metric.RetentionDays), To: today}); !errors.As(err, &verr) {
		t.Errorf("RollupByApp(oversized window) error = %v, want ValidationError", err)
	}

	// A full retention-length window is the maximum allowed.
	w := metric.Window{From: metric.RetentionCutoff(today), To: today}
	if _, err := tl.RollupByApp(ctx, app, w); err != nil {
		t.Errorf("RollupByApp(full window) error = %v", err)
	}
}

func TestRollupSinceSubscription(t *testing.T) {
	tl, clk, op := newTestTally(t)
	seedTier(t, tl, op, 1, 30)
	nodeID := seedNode(t, tl, op)
	inspID := seedInspector(t, tl, op)
	app := id.NewAppID()
	ctx := context.Background()

	mustDeposit(t, tl, app, 100)
	mustReport(t, tl, inspID, app, nodeID, metric.DayOf(clk.Now()), counters(10, 0, 0))

	clk.Advance(2 * 24 * time.Hour)
	mustReport(t, tl, inspID, app, nodeID, metric.DayOf(clk.Now()), counters(20, 0, 0))

	rollup, err := tl.RollupSinceSubscription(ctx, app)
	if err != nil {
		t.Fatalf("RollupSinceSubscription() error = %v", err)
	}
	if rollup.Totals.StoredBytes != 30 || rollup.Records != 2 {
		t.Errorf("rollup = %+v, want 30 stored over 2 records", rollup)
	}

	// Once the subscription day falls out of retention the window clamps
	// to the cutoff instead of failing validation.
	clk.Advance(40 * 24 * time.Hour)
	rollup, err = tl.RollupSinceSubscription(ctx, app)
	if err != nil {
		t.Fatalf("RollupSinceSubscription() after 40 days error = %v", err)
	}
	if rollup.Records != 0 {
		t.Errorf("Records = %d, want 0 (old rows outside the clamped window)", rollup.Records)
	}

	if _, err := tl.RollupSinceSubscription(ctx, id.NewAppID()); !errors.Is(err, tally.ErrNoSubscription) {
		t.Errorf("RollupSinceSubscription(no subscription) error = %v, want ErrNoSubscription", err)
	}
}

func TestEvictExpired(t *testing.T) {
	tl, clk, op := newTestTally(t)
	nodeID := seedNode(t, tl, op)
	inspID := seedInspector(t, tl, op)
	app := id.NewAppID()
	day := metric.DayOf(clk.Now())
	ctx := context.Background()

	mustReport(t, tl, inspID, app, nodeID, day, counters(10, 0, 0))

	// Still in retention: nothing to evict.
	n, err := tl.EvictExpired(ctx)
	if err != nil || n != 0 {
		t.Fatalf("EvictExpired() = %d, %v, want 0, nil", n, err)
	}

	clk.Advance(35 * 24 * time.Hour)

	// One raw report and one merged row have expired.
	n, err = tl.EvictExpired(ctx)
	if err != nil {
		t.Fatalf("EvictExpired() error = %v", err)
	}
	if n != 2 {
		t.Errorf("EvictExpired() = %d, want 2", n)
	}
	n, err = tl.EvictExpired(ctx)
	if err != nil || n != 0 {
		t.Errorf("EvictExpired() second pass = %d, %v, want 0, nil", n, err)
	}
}

func TestEvictExpiredHonorsBatchSize(t *testing.T) {
	tl, clk, op := newTestTally(t, tally.WithEvictBatchSize(1))
	nodeID := seedNode(t, tl, op)
	inspID := seedInspector(t, tl, op)
	app := id.NewAppID()
	ctx := context.Background()

	mustReport(t, tl, inspID, app, nodeID, metric.DayOf(clk.Now()), counters(10, 0, 0))
	clk.Advance(35 * 24 * time.Hour)

	// Two expired rows drain one call at a time.
	var total int64
	for i := 0; i < 2; i++ {
		n, err := tl.EvictExpired(ctx)
		if err != nil {
			t.Fatalf("EvictExpired() error = %v", err)
		}
		if n != 1 {
			t.Errorf("EvictExpired() pass %d = %d, want 1", i, n)
		}
		total += n
	}
	if n, err := tl.EvictExpired(ctx); err != nil || n != 0 {
		t.Errorf("EvictExpired() final pass = %d, %v, want 0, nil", n, err)
	}
	if total != 2 {
		t.Errorf("evicted %d rows in total, want 2", total)
	}
}

func TestEvictExpiredAllowedWhilePaused(t *testing.T) {
	tl, clk, op := newTestTally(t)
	nodeID := seedNode(t, tl, op)
	inspID := seedInspector(t, tl, op)
	ctx := context.Background()

	mustReport(t, tl, inspID, id.NewAppID(), nodeID, metric.DayOf(clk.Now()), counters(10, 0, 0))
	clk.Advance(35 * 24 * time.Hour)

	if err := tl.Pause(ctx, op); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	n, err := tl.EvictExpired(ctx)
	if err != nil {
		t.Fatalf("EvictExpired() while paused error = %v", err)
	}
	if n != 2 {
		t.Errorf("EvictExpired() while paused = %d, want 2", n)
	}
}

func TestReportRefreshesNodePresence(t *testing.T) {
	tl, clk, op := newTestTally(t)
	nodeID := seedNode(t, tl, op)
	inspID := seedInspector(t, tl, op)
	app := id.NewAppID()
	ctx := context.Background()

	before, err := tl.GetNode(ctx, nodeID)
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if !before.LastSeen.IsZero() {
		t.Fatalf("LastSeen before any report = %v, want zero", before.LastSeen)
	}

	clk.Advance(time.Hour)
	mustReport(t, tl, inspID, app, nodeID, metric.DayOf(clk.Now()), counters(10, 0, 0))

	after, err := tl.GetNode(ctx, nodeID)
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if !after.LastSeen.Equal(clk.Now()) {
		t.Errorf("LastSeen = %v, want %v", after.LastSeen, clk.Now())
	}

	// The accepted report also counts as an online observation.
	ratio, err := tl.UptimeRatio(ctx, nodeID, clk.Now(), clk.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("UptimeRatio() error = %v", err)
	}
	if ratio != 1.0 {
		t.Errorf("UptimeRatio() = %v, want 1.0", ratio)
	}
}

func TestReportingPeriodBookkeeping(t *testing.T) {
	tl, clk, op := newTestTally(t)
	nodeID := seedNode(t, tl, op)
	insp1 := seedInspector(t, tl, op)
	insp2 := seedInspector(t, tl, op)
	app := id.NewAppID()
	ctx := context.Background()
	startDay := metric.DayOf(clk.Now())

	// Nothing reported yet and no bookmark: start from today.
	day, err := tl.CurrentReportingDay(ctx, insp1)
	if err != nil {
		t.Fatalf("CurrentReportingDay() error = %v", err)
	}
	if day != startDay {
		t.Errorf("CurrentReportingDay() = %v, want %v", day, startDay)
	}

	// The first accepted report pins the ledger-wide reference day.
	clk.Advance(2 * 24 * time.Hour)
	mustReport(t, tl, insp1, app, nodeID, metric.DayOf(clk.Now()), counters(1, 0, 0))
	firstDay := metric.DayOf(clk.Now())

	clk.Advance(3 * 24 * time.Hour)
	for _, insp := range []id.InspectorID{insp1, insp2} {
		day, err = tl.CurrentReportingDay(ctx, insp)
		if err != nil {
			t.Fatalf("CurrentReportingDay() error = %v", err)
		}
		if day != firstDay {
			t.Errorf("CurrentReportingDay(%s) = %v, want %v (first report day)", insp, day, firstDay)
		}
	}

	// Finalizing moves only the finalizing inspector's bookmark.
	if err := tl.FinalizeReportingPeriod(ctx, insp1); err != nil {
		t.Fatalf("FinalizeReportingPeriod() error = %v", err)
	}
	day, err = tl.CurrentReportingDay(ctx, insp1)
	if err != nil {
		t.Fatalf("CurrentReportingDay() error = %v", err)
	}
	if want := metric.DayOf(clk.Now()); day != want {
		t.Errorf("CurrentReportingDay() after finalize = %v, want %v", day, want)
	}
	day, err = tl.CurrentReportingDay(ctx, insp2)
	if err != nil {
		t.Fatalf("CurrentReportingDay() error = %v", err)
	}
	if day != firstDay {
		t.Errorf("CurrentReportingDay(insp2) = %v, want %v (unaffected)", day, firstDay)
	}

	if err := tl.FinalizeReportingPeriod(ctx, id.NewInspectorID()); !errors.Is(err, tally.ErrUnauthorizedReporter) {
		t.Errorf("FinalizeReportingPeriod(unknown) error = %v, want ErrUnauthorizedReporter", err)
	}
}

func TestMarkTransitions(t *testing.T) {
	st := memory.New()
	tl, clk, op := newTestTallyOn(t, st)
	nodeID := seedNode(t, tl, op)
	inspID := seedInspector(t, tl, op)
	ctx := context.Background()
	start := clk.Now()

	if err := tl.MarkOffline(ctx, inspID, nodeID); err != nil {
		t.Fatalf("MarkOffline() error = %v", err)
	}
	clk.Advance(10 * time.Minute)
	if err := tl.MarkOnline(ctx, inspID, nodeID); err != nil {
		t.Fatalf("MarkOnline() error = %v", err)
	}

	ratio, err := tl.UptimeRatio(ctx, nodeID, start, start.Add(20*time.Minute))
	if err != nil {
		t.Fatalf("UptimeRatio() error = %v", err)
	}
	if ratio != 0.5 {
		t.Errorf("UptimeRatio() = %v, want 0.5", ratio)
	}

	// Repeating the current state appends nothing.
	if err := tl.MarkOnline(ctx, inspID, nodeID); err != nil {
		t.Fatalf("repeated MarkOnline() error = %v", err)
	}
	transitions, err := st.ListTransitions(ctx, nodeID, start, clk.Now())
	if err != nil {
		t.Fatalf("ListTransitions() error = %v", err)
	}
	if len(transitions) != 2 {
		t.Errorf("recorded %d transitions, want 2", len(transitions))
	}

	// Offline observations refresh presence too: last-seen tracks
	// monitoring freshness, not uptime.
	clk.Advance(time.Minute)
	if err := tl.MarkOffline(ctx, inspID, nodeID); err != nil {
		t.Fatalf("MarkOffline() error = %v", err)
	}
	n, err := tl.GetNode(ctx, nodeID)
	if err != nil {
		t.Fatalf("GetNode() error = %v", err)
	}
	if !n.LastSeen.Equal(clk.Now()) {
		t.Errorf("LastSeen = %v, want %v", n.LastSeen, clk.Now())
	}
}

func TestMarkAuthorization(t *testing.T) {
	tl, _, op := newTestTally(t)
	nodeID := seedNode(t, tl, op)
	inspID := seedInspector(t, tl, op)
	ctx := context.Background()

	if err := tl.MarkOnline(ctx, id.NewInspectorID(), nodeID); !errors.Is(err, tally.ErrUnauthorizedReporter) {
		t.Errorf("MarkOnline() by unregistered inspector error = %v, want ErrUnauthorizedReporter", err)
	}
	if err := tl.MarkOnline(ctx, inspID, id.NewNodeID()); !errors.Is(err, tally.ErrUnknownNode) {
		t.Errorf("MarkOnline(unknown node) error = %v, want ErrUnknownNode", err)
	}
	if err := tl.RemoveNode(ctx, op, nodeID); err != nil {
		t.Fatalf("RemoveNode() error = %v", err)
	}
	if err := tl.MarkOffline(ctx, inspID, nodeID); !errors.Is(err, tally.ErrUnknownNode) {
		t.Errorf("MarkOffline(removed node) error = %v, want ErrUnknownNode", err)
	}
}

func TestUptimeRatioDefaults(t *testing.T) {
	tl, clk, op := newTestTally(t)
	nodeID := seedNode(t, tl, op)
	ctx := context.Background()

	// No observations at all: the node is presumed online.
	ratio, err := tl.UptimeRatio(ctx, nodeID, clk.Now(), clk.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("UptimeRatio() error = %v", err)
	}
	if ratio != 1.0 {
		t.Errorf("UptimeRatio() with no data = %v, want 1.0", ratio)
	}

	var verr tally.ValidationError
	if _, err := tl.UptimeRatio(ctx, nodeID, clk.Now(), clk.Now().Add(-time.Hour)); !errors.As(err, &verr) {
		t.Errorf("UptimeRatio(inverted window) error = %v, want ValidationError", err)
	}
	if _, err := tl.UptimeRatio(ctx, id.NewNodeID(), clk.Now(), clk.Now()); !errors.Is(err, tally.ErrUnknownNode) {
		t.Errorf("UptimeRatio(unknown node) error = %v, want ErrUnknownNode", err)
	}
}

func TestUptimeHistorySurvivesRemoval(t *testing.T) {
	tl, clk, op := newTestTally(t)
	nodeID := seedNode(t, tl, op)
	inspID := seedInspector(t, tl, op)
	ctx := context.Background()
	start := clk.Now()

	if err := tl.MarkOnline(ctx, inspID, nodeID); err != nil {
		t.Fatalf("MarkOnline() error = %v", err)
	}
	clk.Advance(10 * time.Minute)
	if err := tl.MarkOffline(ctx, inspID, nodeID); err != nil {
		t.Fatalf("MarkOffline() error = %v", err)
	}
	clk.Advance(10 * time.Minute)
	if err := tl.RemoveNode(ctx, op, nodeID); err != nil {
		t.Fatalf("RemoveNode() error = %v", err)
	}

	ratio, err := tl.UptimeRatio(ctx, nodeID, start, clk.Now())
	if err != nil {
		t.Fatalf("UptimeRatio() after removal error = %v", err)
	}
	if ratio != 0.5 {
		t.Errorf("UptimeRatio() = %v, want 0.5", ratio)
	}
}
