package audithook

// Action constants for audit events.
const (
	// Tier actions
	ActionTierUpserted = "tier.upserted"

	// Node actions
	ActionNodeAdded   = "node.added"
	ActionNodeRemoved = "node.removed"
	ActionNodeOnline  = "node.online"
	ActionNodeOffline = "node.offline"

	// Inspector actions
	ActionInspectorAdded   = "inspector.added"
	ActionInspectorRemoved = "inspector.removed"

	// Subscription actions
	ActionDeposited   = "subscription.deposited"
	ActionTierChanged = "subscription.tier_changed"
	ActionCharged     = "subscription.charged"
	ActionSuspended   = "subscription.suspended"
	ActionCanceled    = "subscription.canceled"

	// Metric actions
	ActionMetricsMerged  = "metric.merged"
	ActionMetricsEvicted = "metric.evicted"

	// Revenue actions
	ActionWithdrawn = "revenue.withdrawn"
)

// Resource constants for audit events.
const (
	ResourceTier         = "tier"
	ResourceNode         = "node"
	ResourceInspector    = "inspector"
	ResourceSubscription = "subscription"
	ResourceMetric       = "metric"
	ResourcePool         = "revenue_pool"
)

// Category constants for audit events.
const (
	CategoryRegistry = "registry"
	CategoryBilling  = "billing"
	CategoryMetering = "metering"
	CategoryRevenue  = "revenue"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
