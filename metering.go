package tally

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/tally/availability"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/metric"
	"github.com/xraph/tally/types"
)

// ──────────────────────────────────────────────────
// Metrics Aggregator
// ──────────────────────────────────────────────────

// Report records one Inspector's observation of a Node serving an App on
// a day, overwriting the Inspector's previous report for the same key,
// then recomputes the merged value. A future day is rejected with
// ErrUnexpectedTimestamp and a day past the retention window with
// ErrRetentionExpired, so reporters can tell clock skew from lateness.
// An accepted report also marks the Node online and refreshes its
// last-seen timestamp.
func (t *Tally) Report(ctx context.Context, reporter id.InspectorID, app id.AppID, nodeID id.NodeID, day metric.Day, counters metric.Counters) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, err := t.requireRunning(ctx)
	if err != nil {
		return err
	}
	if _, err := t.requireInspector(ctx, reporter); err != nil {
		return err
	}
	if app.IsNil() {
		return ValidationError{Field: "app", Message: "app id must not be nil"}
	}

	n, err := t.store.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}
	if !n.Active() {
		return ErrUnknownNode
	}

	now := t.clock.Now()
	today := metric.DayOf(now)
	if day.After(today) {
		return ErrUnexpectedTimestamp
	}
	if day.Before(metric.RetentionCutoff(today)) {
		return ErrRetentionExpired
	}

	rep := &metric.Report{
		Entity:    types.EntityAt(now),
		Inspector: reporter,
		App:       app,
		Node:      nodeID,
		Day:       day,
		Counters:  counters,
	}
	if err := t.store.PutReport(ctx, rep); err != nil {
		return err
	}

	reports, err := t.store.ListReports(ctx, app, nodeID, day)
	if err != nil {
		return err
	}
	merged := &metric.Merged{
		Entity:    types.EntityAt(now),
		App:       app,
		Node:      nodeID,
		Day:       day,
		Counters:  t.mergeReports(reports),
		Reporters: len(reports),
	}
	if err := t.store.PutMerged(ctx, merged); err != nil {
		return err
	}

	n.LastSeen = now
	n.Touch(now)
	if err := t.store.PutNode(ctx, n); err != nil {
		return err
	}
	if _, err := t.recordTransition(ctx, nodeID, availability.StateOnline, now); err != nil {
		return err
	}

	// The first report ever accepted pins the ledger's reference
	// timestamp, the default start of reporting periods.
	if st.FirstReportAt.IsZero() {
		st.FirstReportAt = now
		st.Touch(now)
		if err := t.store.PutSettings(ctx, st); err != nil {
			return err
		}
	}

	t.plugins.EmitMerged(ctx, merged)
	return nil
}

// mergeReports applies the configured merge strategy, falling back to the
// per-field median.
func (t *Tally) mergeReports(reports []*metric.Report) metric.Counters {
	if t.mergeStrategy != "" {
		if strat := t.plugins.GetMergeStrategy(t.mergeStrategy); strat != nil {
			stored := make([]uint64, len(reports))
			read := make([]uint64, len(reports))
			written := make([]uint64, len(reports))
			for i, r := range reports {
				stored[i] = r.Counters.StoredBytes
				read[i] = r.Counters.ReadBytes
				written[i] = r.Counters.WrittenBytes
			}
			s, rd, w := strat.MergeCounters(stored, read, written)
			return metric.Counters{StoredBytes: s, ReadBytes: rd, WrittenBytes: w}
		}
	}
	return metric.Merge(reports)
}

// RollupByApp sums the App's merged counters across all nodes over the
// window.
func (t *Tally) RollupByApp(ctx context.Context, app id.AppID, w metric.Window) (*metric.Rollup, error) {
	if err := validateWindow(w); err != nil {
		return nil, err
	}
	merged, err := t.store.ListMergedByApp(ctx, app, w)
	if err != nil {
		return nil, err
	}
	return rollupMerged(w, merged)
}

// RollupByNode sums the node's merged counters across all Apps over the
// window.
func (t *Tally) RollupByNode(ctx context.Context, nodeID id.NodeID, w metric.Window) (*metric.Rollup, error) {
	if err := validateWindow(w); err != nil {
		return nil, err
	}
	merged, err := t.store.ListMergedByNode(ctx, nodeID, w)
	if err != nil {
		return nil, err
	}
	return rollupMerged(w, merged)
}

// RollupSinceSubscription totals the App's merged counters from its
// subscription day through today, clamped to the retention window.
func (t *Tally) RollupSinceSubscription(ctx context.Context, app id.AppID) (*metric.Rollup, error) {
	sub, err := t.store.GetSubscription(ctx, app)
	if err != nil {
		return nil, err
	}

	today := metric.DayOf(t.clock.Now())
	from := metric.DayOf(sub.CreatedAt)
	if cutoff := metric.RetentionCutoff(today); from.Before(cutoff) {
		from = cutoff
	}
	return t.RollupByApp(ctx, app, metric.Window{From: from, To: today})
}

// EvictExpired removes raw and merged metric rows older than the
// retention window, bounded per call by the configured batch size.
// Re-invoke until it returns zero.
func (t *Tally) EvictExpired(ctx context.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := metric.RetentionCutoff(metric.DayOf(t.clock.Now()))
	n, err := t.store.EvictMetricsBefore(ctx, cutoff, t.evictBatchSize)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		t.plugins.EmitEvicted(ctx, n)
		t.logger.Debug("evicted expired metrics", "cutoff", cutoff, "count", n)
	}
	return n, nil
}

func validateWindow(w metric.Window) error {
	if w.To.Before(w.From) {
		return ValidationError{Field: "window", Message: "to precedes from"}
	}
	if w.Days() > metric.RetentionDays {
		return ValidationError{Field: "window", Message: "window exceeds retention"}
	}
	return nil
}

func rollupMerged(w metric.Window, merged []*metric.Merged) (*metric.Rollup, error) {
	r := &metric.Rollup{Window: w}
	for _, m := range merged {
		if err := r.Totals.Accumulate(m.Counters); err != nil {
			return nil, err
		}
		r.Records++
	}
	return r, nil
}

// ──────────────────────────────────────────────────
// Reporting Periods
// ──────────────────────────────────────────────────

// FinalizeReportingPeriod marks the Inspector as caught up: its next
// reporting day becomes today.
func (t *Tally) FinalizeReportingPeriod(ctx context.Context, reporter id.InspectorID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.requireRunning(ctx); err != nil {
		return err
	}
	ins, err := t.requireInspector(ctx, reporter)
	if err != nil {
		return err
	}

	now := t.clock.Now()
	ins.CurrentDay = metric.DayOf(now)
	ins.Touch(now)
	return t.store.PutInspector(ctx, ins)
}

// CurrentReportingDay returns the day the Inspector should report from
// next: its own bookmark when set, else the day of the first report the
// ledger ever accepted, else today.
func (t *Tally) CurrentReportingDay(ctx context.Context, reporter id.InspectorID) (metric.Day, error) {
	ins, err := t.requireInspector(ctx, reporter)
	if err != nil {
		return 0, err
	}
	if !ins.CurrentDay.IsZero() {
		return ins.CurrentDay, nil
	}

	st, err := t.store.GetSettings(ctx)
	if err != nil {
		return 0, err
	}
	if !st.FirstReportAt.IsZero() {
		return metric.DayOf(st.FirstReportAt), nil
	}
	return metric.DayOf(t.clock.Now()), nil
}

// ──────────────────────────────────────────────────
// Availability Tracker
// ──────────────────────────────────────────────────

// MarkOnline records an Inspector's observation that the node is serving.
func (t *Tally) MarkOnline(ctx context.Context, reporter id.InspectorID, nodeID id.NodeID) error {
	return t.mark(ctx, reporter, nodeID, availability.StateOnline)
}

// MarkOffline records an Inspector's observation that the node stopped
// serving.
func (t *Tally) MarkOffline(ctx context.Context, reporter id.InspectorID, nodeID id.NodeID) error {
	return t.mark(ctx, reporter, nodeID, availability.StateOffline)
}

func (t *Tally) mark(ctx context.Context, reporter id.InspectorID, nodeID id.NodeID, state availability.State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.requireRunning(ctx); err != nil {
		return err
	}
	if _, err := t.requireInspector(ctx, reporter); err != nil {
		return err
	}

	n, err := t.store.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}
	if !n.Active() {
		return ErrUnknownNode
	}

	// Last-seen tracks monitoring freshness, not uptime, so any accepted
	// observation refreshes it.
	now := t.clock.Now()
	n.LastSeen = now
	n.Touch(now)
	if err := t.store.PutNode(ctx, n); err != nil {
		return err
	}

	_, err = t.recordTransition(ctx, nodeID, state, now)
	return err
}

// UptimeRatio reports the fraction of [from, to] the node was online. The
// state entering the window seeds from the latest earlier transition,
// defaulting to online so missing monitoring data never punishes a node.
// Removed nodes keep queryable history.
func (t *Tally) UptimeRatio(ctx context.Context, nodeID id.NodeID, from, to time.Time) (float64, error) {
	if to.Before(from) {
		return 0, ValidationError{Field: "window", Message: "to precedes from"}
	}
	if _, err := t.store.GetNode(ctx, nodeID); err != nil {
		return 0, err
	}

	initial := availability.StateOnline
	last, err := t.store.LastTransitionBefore(ctx, nodeID, from)
	switch {
	case err == nil:
		initial = last.State
	case !errors.Is(err, ErrNotFound):
		return 0, err
	}

	transitions, err := t.store.ListTransitions(ctx, nodeID, from, to)
	if err != nil {
		return 0, err
	}
	return availability.Ratio(initial, transitions, from, to), nil
}

// recordTransition appends a state change unless it repeats the node's
// latest recorded state, reporting whether anything was written.
func (t *Tally) recordTransition(ctx context.Context, nodeID id.NodeID, state availability.State, now time.Time) (bool, error) {
	last, err := t.store.LastTransition(ctx, nodeID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if last != nil && last.State == state {
		return false, nil
	}

	tr := &availability.Transition{
		Entity: types.EntityAt(now),
		Node:   nodeID,
		State:  state,
		At:     now,
	}
	if err := t.store.AppendTransition(ctx, tr); err != nil {
		return false, err
	}

	if state.Online() {
		t.plugins.EmitNodeOnline(ctx, nodeID.String(), now)
	} else {
		t.plugins.EmitNodeOffline(ctx, nodeID.String(), now)
	}
	return true, nil
}
