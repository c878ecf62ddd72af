package store

import (
	"context"
	"time"

	"github.com/xraph/tally/availability"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/inspector"
	"github.com/xraph/tally/metric"
	"github.com/xraph/tally/node"
	"github.com/xraph/tally/revenue"
	"github.com/xraph/tally/subscription"
	"github.com/xraph/tally/tier"
	"github.com/xraph/tally/types"
)

// Store is the unified storage interface for all Tally entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Tier methods
	PutTier(ctx context.Context, t *tier.Tier) error
	GetTier(ctx context.Context, tierID uint32) (*tier.Tier, error)
	ListTiers(ctx context.Context) ([]*tier.Tier, error)

	// Node methods
	PutNode(ctx context.Context, n *node.Node) error
	GetNode(ctx context.Context, nodeID id.NodeID) (*node.Node, error)
	ListNodes(ctx context.Context, opts node.ListOpts) ([]*node.Node, error)

	// Inspector methods
	PutInspector(ctx context.Context, ins *inspector.Inspector) error
	GetInspector(ctx context.Context, inspectorID id.InspectorID) (*inspector.Inspector, error)
	ListInspectors(ctx context.Context) ([]*inspector.Inspector, error)
	DeleteInspector(ctx context.Context, inspectorID id.InspectorID) error

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, app id.AppID) (*subscription.Subscription, error)
	UpdateSubscription(ctx context.Context, s *subscription.Subscription) error
	DeleteSubscription(ctx context.Context, app id.AppID) error
	ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error)

	// Metric methods
	PutReport(ctx context.Context, r *metric.Report) error
	ListReports(ctx context.Context, app id.AppID, nodeID id.NodeID, day metric.Day) ([]*metric.Report, error)
	PutMerged(ctx context.Context, m *metric.Merged) error
	ListMergedByApp(ctx context.Context, app id.AppID, w metric.Window) ([]*metric.Merged, error)
	ListMergedByNode(ctx context.Context, nodeID id.NodeID, w metric.Window) ([]*metric.Merged, error)
	EvictMetricsBefore(ctx context.Context, cutoff metric.Day, limit int) (int64, error)

	// Revenue methods
	GetPool(ctx context.Context) (*revenue.Pool, error)
	PutPool(ctx context.Context, p *revenue.Pool) error
	GetShare(ctx context.Context, nodeID id.NodeID) (*revenue.Share, error)
	PutShare(ctx context.Context, sh *revenue.Share) error
	ListShares(ctx context.Context) ([]*revenue.Share, error)

	// Availability methods
	AppendTransition(ctx context.Context, tr *availability.Transition) error
	LastTransition(ctx context.Context, nodeID id.NodeID) (*availability.Transition, error)
	LastTransitionBefore(ctx context.Context, nodeID id.NodeID, at time.Time) (*availability.Transition, error)
	ListTransitions(ctx context.Context, nodeID id.NodeID, from, to time.Time) ([]*availability.Transition, error)

	// Settings methods
	GetSettings(ctx context.Context) (*types.Settings, error)
	PutSettings(ctx context.Context, st *types.Settings) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
