// Package audithook bridges Tally lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/xraph/tally/node"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/tier"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Extension)(nil)
	_ plugin.OnTierUpserted     = (*Extension)(nil)
	_ plugin.OnNodeAdded        = (*Extension)(nil)
	_ plugin.OnNodeRemoved      = (*Extension)(nil)
	_ plugin.OnInspectorAdded   = (*Extension)(nil)
	_ plugin.OnInspectorRemoved = (*Extension)(nil)
	_ plugin.OnDeposited        = (*Extension)(nil)
	_ plugin.OnTierChanged      = (*Extension)(nil)
	_ plugin.OnCharged          = (*Extension)(nil)
	_ plugin.OnSuspended        = (*Extension)(nil)
	_ plugin.OnCanceled         = (*Extension)(nil)
	_ plugin.OnMerged           = (*Extension)(nil)
	_ plugin.OnEvicted          = (*Extension)(nil)
	_ plugin.OnNodeOnline       = (*Extension)(nil)
	_ plugin.OnNodeOffline      = (*Extension)(nil)
	_ plugin.OnWithdrawn        = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly — callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Tally lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

// OnTierUpserted implements plugin.OnTierUpserted.
func (e *Extension) OnTierUpserted(ctx context.Context, tr interface{}) error {
	var tierID string
	if t, ok := tr.(*tier.Tier); ok {
		tierID = strconv.FormatUint(uint64(t.ID), 10)
	}
	return e.record(ctx, ActionTierUpserted, SeverityInfo, OutcomeSuccess,
		ResourceTier, tierID, CategoryRegistry, nil,
		"event", "tier_upserted",
	)
}

// OnNodeAdded implements plugin.OnNodeAdded.
func (e *Extension) OnNodeAdded(ctx context.Context, n interface{}) error {
	return e.record(ctx, ActionNodeAdded, SeverityInfo, OutcomeSuccess,
		ResourceNode, nodeIDOf(n), CategoryRegistry, nil,
		"event", "node_added",
	)
}

// OnNodeRemoved implements plugin.OnNodeRemoved.
func (e *Extension) OnNodeRemoved(ctx context.Context, nodeID string) error {
	return e.record(ctx, ActionNodeRemoved, SeverityInfo, OutcomeSuccess,
		ResourceNode, nodeID, CategoryRegistry, nil,
		"node_id", nodeID,
	)
}

// OnInspectorAdded implements plugin.OnInspectorAdded.
func (e *Extension) OnInspectorAdded(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionInspectorAdded, SeverityInfo, OutcomeSuccess,
		ResourceInspector, "", CategoryRegistry, nil,
		"event", "inspector_added",
	)
}

// OnInspectorRemoved implements plugin.OnInspectorRemoved.
func (e *Extension) OnInspectorRemoved(ctx context.Context, inspectorID string) error {
	return e.record(ctx, ActionInspectorRemoved, SeverityInfo, OutcomeSuccess,
		ResourceInspector, inspectorID, CategoryRegistry, nil,
		"inspector_id", inspectorID,
	)
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnDeposited implements plugin.OnDeposited.
func (e *Extension) OnDeposited(ctx context.Context, sub interface{}, amount uint64) error {
	return e.record(ctx, ActionDeposited, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, appOf(sub), CategoryBilling, nil,
		"amount", amount,
	)
}

// OnTierChanged implements plugin.OnTierChanged.
func (e *Extension) OnTierChanged(ctx context.Context, sub interface{}, oldTier, newTier uint32) error {
	return e.record(ctx, ActionTierChanged, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, appOf(sub), CategoryBilling, nil,
		"old_tier", oldTier,
		"new_tier", newTier,
	)
}

// OnCharged implements plugin.OnCharged.
func (e *Extension) OnCharged(ctx context.Context, sub interface{}, amount uint64) error {
	return e.record(ctx, ActionCharged, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, appOf(sub), CategoryBilling, nil,
		"amount", amount,
	)
}

// OnSuspended implements plugin.OnSuspended.
func (e *Extension) OnSuspended(ctx context.Context, sub interface{}) error {
	return e.record(ctx, ActionSuspended, SeverityWarning, OutcomeSuccess,
		ResourceSubscription, appOf(sub), CategoryBilling, nil,
		"event", "subscription_suspended",
	)
}

// OnCanceled implements plugin.OnCanceled.
func (e *Extension) OnCanceled(ctx context.Context, sub interface{}, refund uint64) error {
	return e.record(ctx, ActionCanceled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, appOf(sub), CategoryBilling, nil,
		"refund", refund,
	)
}

// ──────────────────────────────────────────────────
// Metering hooks
// ──────────────────────────────────────────────────

// OnMerged implements plugin.OnMerged.
func (e *Extension) OnMerged(_ context.Context, _ interface{}) error {
	// Merges fire once per accepted report; only evictions reach the trail.
	return nil
}

// OnEvicted implements plugin.OnEvicted.
func (e *Extension) OnEvicted(ctx context.Context, count int64) error {
	return e.record(ctx, ActionMetricsEvicted, SeverityInfo, OutcomeSuccess,
		ResourceMetric, "", CategoryMetering, nil,
		"count", count,
	)
}

// OnNodeOnline implements plugin.OnNodeOnline.
func (e *Extension) OnNodeOnline(ctx context.Context, nodeID string, at time.Time) error {
	return e.record(ctx, ActionNodeOnline, SeverityInfo, OutcomeSuccess,
		ResourceNode, nodeID, CategoryMetering, nil,
		"at", at,
	)
}

// OnNodeOffline implements plugin.OnNodeOffline.
func (e *Extension) OnNodeOffline(ctx context.Context, nodeID string, at time.Time) error {
	return e.record(ctx, ActionNodeOffline, SeverityWarning, OutcomeSuccess,
		ResourceNode, nodeID, CategoryMetering, nil,
		"at", at,
	)
}

// ──────────────────────────────────────────────────
// Revenue hooks
// ──────────────────────────────────────────────────

// OnWithdrawn implements plugin.OnWithdrawn.
func (e *Extension) OnWithdrawn(ctx context.Context, operatorID string, amount uint64) error {
	return e.record(ctx, ActionWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourcePool, operatorID, CategoryRevenue, nil,
		"operator_id", operatorID,
		"amount", amount,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// appOf extracts the App id from a subscription payload.
func appOf(sub interface{}) string {
	if s, ok := sub.(*subscription.Subscription); ok {
		return s.App.String()
	}
	return ""
}

// nodeIDOf extracts the node id from a node payload.
func nodeIDOf(n interface{}) string {
	if v, ok := n.(*node.Node); ok {
		return v.ID.String()
	}
	return ""
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
