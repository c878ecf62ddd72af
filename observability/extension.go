// Package observability provides a metrics extension for Tally that records
// lifecycle event counts through a caller-provided MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/tally/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin             = (*MetricsExtension)(nil)
	_ plugin.OnInit             = (*MetricsExtension)(nil)
	_ plugin.OnTierUpserted     = (*MetricsExtension)(nil)
	_ plugin.OnNodeAdded        = (*MetricsExtension)(nil)
	_ plugin.OnNodeRemoved      = (*MetricsExtension)(nil)
	_ plugin.OnInspectorAdded   = (*MetricsExtension)(nil)
	_ plugin.OnInspectorRemoved = (*MetricsExtension)(nil)
	_ plugin.OnDeposited        = (*MetricsExtension)(nil)
	_ plugin.OnTierChanged      = (*MetricsExtension)(nil)
	_ plugin.OnCharged          = (*MetricsExtension)(nil)
	_ plugin.OnSuspended        = (*MetricsExtension)(nil)
	_ plugin.OnCanceled         = (*MetricsExtension)(nil)
	_ plugin.OnMerged           = (*MetricsExtension)(nil)
	_ plugin.OnEvicted          = (*MetricsExtension)(nil)
	_ plugin.OnNodeOnline       = (*MetricsExtension)(nil)
	_ plugin.OnNodeOffline      = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawn        = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Tally plugin to automatically track ledger metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Registry metrics
	TierUpserted     Counter
	NodeAdded        Counter
	NodeRemoved      Counter
	InspectorAdded   Counter
	InspectorRemoved Counter

	// Billing metrics
	Deposited     Counter
	TierChanged   Counter
	Charged       Counter
	Suspended     Counter
	Canceled      Counter
	DepositAmount Histogram
	ChargeAmount  Histogram
	RefundAmount  Histogram

	// Metering metrics
	ReportsMerged  Counter
	MetricsEvicted Counter
	NodeOnline     Counter
	NodeOffline    Counter

	// Revenue metrics
	Withdrawn        Counter
	WithdrawalAmount Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Registry metrics
		TierUpserted:     factory.Counter("tally.tier.upserted"),
		NodeAdded:        factory.Counter("tally.node.added"),
		NodeRemoved:      factory.Counter("tally.node.removed"),
		InspectorAdded:   factory.Counter("tally.inspector.added"),
		InspectorRemoved: factory.Counter("tally.inspector.removed"),

		// Billing metrics
		Deposited:     factory.Counter("tally.subscription.deposited"),
		TierChanged:   factory.Counter("tally.subscription.tier_changed"),
		Charged:       factory.Counter("tally.subscription.charged"),
		Suspended:     factory.Counter("tally.subscription.suspended"),
		Canceled:      factory.Counter("tally.subscription.canceled"),
		DepositAmount: factory.Histogram("tally.subscription.deposit_amount"),
		ChargeAmount:  factory.Histogram("tally.subscription.charge_amount"),
		RefundAmount:  factory.Histogram("tally.subscription.refund_amount"),

		// Metering metrics
		ReportsMerged:  factory.Counter("tally.metric.merged"),
		MetricsEvicted: factory.Counter("tally.metric.evicted"),
		NodeOnline:     factory.Counter("tally.node.online"),
		NodeOffline:    factory.Counter("tally.node.offline"),

		// Revenue metrics
		Withdrawn:        factory.Counter("tally.revenue.withdrawn"),
		WithdrawalAmount: factory.Histogram("tally.revenue.withdrawal_amount"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Registry lifecycle hooks
// ──────────────────────────────────────────────────

// OnTierUpserted implements plugin.OnTierUpserted.
func (m *MetricsExtension) OnTierUpserted(_ context.Context, _ interface{}) error {
	m.TierUpserted.Inc()
	return nil
}

// OnNodeAdded implements plugin.OnNodeAdded.
func (m *MetricsExtension) OnNodeAdded(_ context.Context, _ interface{}) error {
	m.NodeAdded.Inc()
	return nil
}

// OnNodeRemoved implements plugin.OnNodeRemoved.
func (m *MetricsExtension) OnNodeRemoved(_ context.Context, _ string) error {
	m.NodeRemoved.Inc()
	return nil
}

// OnInspectorAdded implements plugin.OnInspectorAdded.
func (m *MetricsExtension) OnInspectorAdded(_ context.Context, _ interface{}) error {
	m.InspectorAdded.Inc()
	return nil
}

// OnInspectorRemoved implements plugin.OnInspectorRemoved.
func (m *MetricsExtension) OnInspectorRemoved(_ context.Context, _ string) error {
	m.InspectorRemoved.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Billing lifecycle hooks
// ──────────────────────────────────────────────────

// OnDeposited implements plugin.OnDeposited.
func (m *MetricsExtension) OnDeposited(_ context.Context, _ interface{}, amount uint64) error {
	m.Deposited.Inc()
	m.DepositAmount.Observe(float64(amount))
	return nil
}

// OnTierChanged implements plugin.OnTierChanged.
func (m *MetricsExtension) OnTierChanged(_ context.Context, _ interface{}, _, _ uint32) error {
	m.TierChanged.Inc()
	return nil
}

// OnCharged implements plugin.OnCharged.
func (m *MetricsExtension) OnCharged(_ context.Context, _ interface{}, amount uint64) error {
	m.Charged.Inc()
	m.ChargeAmount.Observe(float64(amount))
	return nil
}

// OnSuspended implements plugin.OnSuspended.
func (m *MetricsExtension) OnSuspended(_ context.Context, _ interface{}) error {
	m.Suspended.Inc()
	return nil
}

// OnCanceled implements plugin.OnCanceled.
func (m *MetricsExtension) OnCanceled(_ context.Context, _ interface{}, refund uint64) error {
	m.Canceled.Inc()
	m.RefundAmount.Observe(float64(refund))
	return nil
}

// ──────────────────────────────────────────────────
// Metering lifecycle hooks
// ──────────────────────────────────────────────────

// OnMerged implements plugin.OnMerged.
func (m *MetricsExtension) OnMerged(_ context.Context, _ interface{}) error {
	m.ReportsMerged.Inc()
	return nil
}

// OnEvicted implements plugin.OnEvicted.
func (m *MetricsExtension) OnEvicted(_ context.Context, count int64) error {
	m.MetricsEvicted.Add(float64(count))
	return nil
}

// OnNodeOnline implements plugin.OnNodeOnline.
func (m *MetricsExtension) OnNodeOnline(_ context.Context, _ string, _ time.Time) error {
	m.NodeOnline.Inc()
	return nil
}

// OnNodeOffline implements plugin.OnNodeOffline.
func (m *MetricsExtension) OnNodeOffline(_ context.Context, _ string, _ time.Time) error {
	m.NodeOffline.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Revenue lifecycle hooks
// ──────────────────────────────────────────────────

// OnWithdrawn implements plugin.OnWithdrawn.
func (m *MetricsExtension) OnWithdrawn(_ context.Context, _ string, amount uint64) error {
	m.Withdrawn.Inc()
	m.WithdrawalAmount.Observe(float64(amount))
	return nil
}
