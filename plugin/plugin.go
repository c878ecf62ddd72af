// Package plugin provides an extensible plugin system for Tally.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, t interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Registry hooks
// ──────────────────────────────────────────────────

// OnTierUpserted is called when a tier is created or updated.
type OnTierUpserted interface {
	Plugin
	OnTierUpserted(ctx context.Context, tier interface{}) error
}

// OnNodeAdded is called when a node is registered or reactivated.
type OnNodeAdded interface {
	Plugin
	OnNodeAdded(ctx context.Context, node interface{}) error
}

// OnNodeRemoved is called when a node is removed from service.
type OnNodeRemoved interface {
	Plugin
	OnNodeRemoved(ctx context.Context, nodeID string) error
}

// OnInspectorAdded is called when an inspector is authorized.
type OnInspectorAdded interface {
	Plugin
	OnInspectorAdded(ctx context.Context, ins interface{}) error
}

// OnInspectorRemoved is called when an inspector's authorization is
// withdrawn.
type OnInspectorRemoved interface {
	Plugin
	OnInspectorRemoved(ctx context.Context, inspectorID string) error
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnDeposited is called when an app deposits into its subscription.
type OnDeposited interface {
	Plugin
	OnDeposited(ctx context.Context, sub interface{}, amount uint64) error
}

// OnTierChanged is called when an app selects a different tier.
type OnTierChanged interface {
	Plugin
	OnTierChanged(ctx context.Context, sub interface{}, oldTier, newTier uint32) error
}

// OnCharged is called when a tick consumes value from a subscription.
type OnCharged interface {
	Plugin
	OnCharged(ctx context.Context, sub interface{}, amount uint64) error
}

// OnSuspended is called when a subscription runs out of balance.
type OnSuspended interface {
	Plugin
	OnSuspended(ctx context.Context, sub interface{}) error
}

// OnCanceled is called when a subscription is canceled.
type OnCanceled interface {
	Plugin
	OnCanceled(ctx context.Context, sub interface{}, refund uint64) error
}

// ──────────────────────────────────────────────────
// Metering hooks
// ──────────────────────────────────────────────────

// OnMerged is called when a report recomputes a merged metric.
type OnMerged interface {
	Plugin
	OnMerged(ctx context.Context, merged interface{}) error
}

// OnEvicted is called when expired metric rows are removed.
type OnEvicted interface {
	Plugin
	OnEvicted(ctx context.Context, count int64) error
}

// OnNodeOnline is called when a node transitions to online.
type OnNodeOnline interface {
	Plugin
	OnNodeOnline(ctx context.Context, nodeID string, at time.Time) error
}

// OnNodeOffline is called when a node transitions to offline.
type OnNodeOffline interface {
	Plugin
	OnNodeOffline(ctx context.Context, nodeID string, at time.Time) error
}

// ──────────────────────────────────────────────────
// Revenue hooks
// ──────────────────────────────────────────────────

// OnWithdrawn is called when the operator withdraws from the revenue pool.
type OnWithdrawn interface {
	Plugin
	OnWithdrawn(ctx context.Context, operatorID string, amount uint64) error
}

// ──────────────────────────────────────────────────
// Merge strategies
// ──────────────────────────────────────────────────

// MergeStrategy provides custom consensus over inspector counters. Each
// argument slice carries one field's values across inspectors; the three
// results become the merged counter fields.
type MergeStrategy interface {
	Plugin
	StrategyName() string
	MergeCounters(stored, read, written []uint64) (uint64, uint64, uint64)
}

// ──────────────────────────────────────────────────
// Attribution strategies
// ──────────────────────────────────────────────────

// AttributionStrategy provides custom revenue splitting. The returned
// slice must align with nodes and sum to amount; otherwise the split is
// rejected and the built-in proportional rule applies.
type AttributionStrategy interface {
	Plugin
	StrategyName() string
	SplitRevenue(amount uint64, nodes []string, weights []uint64) []uint64
}
