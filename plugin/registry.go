package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onTierUpserted        []OnTierUpserted
	onNodeAdded           []OnNodeAdded
	onNodeRemoved         []OnNodeRemoved
	onInspectorAdded      []OnInspectorAdded
	onInspectorRemoved    []OnInspectorRemoved
	onDeposited           []OnDeposited
	onTierChanged         []OnTierChanged
	onCharged             []OnCharged
	onSuspended           []OnSuspended
	onCanceled            []OnCanceled
	onMerged              []OnMerged
	onEvicted             []OnEvicted
	onNodeOnline          []OnNodeOnline
	onNodeOffline         []OnNodeOffline
	onWithdrawn           []OnWithdrawn
	mergeStrategies       map[string]MergeStrategy
	attributionStrategies map[string]AttributionStrategy
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:                slog.Default(),
		mergeStrategies:       make(map[string]MergeStrategy),
		attributionStrategies: make(map[string]AttributionStrategy),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnTierUpserted); ok {
		r.onTierUpserted = append(r.onTierUpserted, v)
	}
	if v, ok := p.(OnNodeAdded); ok {
		r.onNodeAdded = append(r.onNodeAdded, v)
	}
	if v, ok := p.(OnNodeRemoved); ok {
		r.onNodeRemoved = append(r.onNodeRemoved, v)
	}
	if v, ok := p.(OnInspectorAdded); ok {
		r.onInspectorAdded = append(r.onInspectorAdded, v)
	}
	if v, ok := p.(OnInspectorRemoved); ok {
		r.onInspectorRemoved = append(r.onInspectorRemoved, v)
	}
	if v, ok := p.(OnDeposited); ok {
		r.onDeposited = append(r.onDeposited, v)
	}
	if v, ok := p.(OnTierChanged); ok {
		r.onTierChanged = append(r.onTierChanged, v)
	}
	if v, ok := p.(OnCharged); ok {
		r.onCharged = append(r.onCharged, v)
	}
	if v, ok := p.(OnSuspended); ok {
		r.onSuspended = append(r.onSuspended, v)
	}
	if v, ok := p.(OnCanceled); ok {
		r.onCanceled = append(r.onCanceled, v)
	}
	if v, ok := p.(OnMerged); ok {
		r.onMerged = append(r.onMerged, v)
	}
	if v, ok := p.(OnEvicted); ok {
		r.onEvicted = append(r.onEvicted, v)
	}
	if v, ok := p.(OnNodeOnline); ok {
		r.onNodeOnline = append(r.onNodeOnline, v)
	}
	if v, ok := p.(OnNodeOffline); ok {
		r.onNodeOffline = append(r.onNodeOffline, v)
	}
	if v, ok := p.(OnWithdrawn); ok {
		r.onWithdrawn = append(r.onWithdrawn, v)
	}
	if v, ok := p.(MergeStrategy); ok {
		r.mergeStrategies[v.StrategyName()] = v
	}
	if v, ok := p.(AttributionStrategy); ok {
		r.attributionStrategies[v.StrategyName()] = v
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnTierUpserted)(nil)).Elem(), "OnTierUpserted")
	checkInterface(reflect.TypeOf((*OnNodeAdded)(nil)).Elem(), "OnNodeAdded")
	checkInterface(reflect.TypeOf((*OnDeposited)(nil)).Elem(), "OnDeposited")
	checkInterface(reflect.TypeOf((*OnCharged)(nil)).Elem(), "OnCharged")
	checkInterface(reflect.TypeOf((*OnMerged)(nil)).Elem(), "OnMerged")
	checkInterface(reflect.TypeOf((*OnWithdrawn)(nil)).Elem(), "OnWithdrawn")
	checkInterface(reflect.TypeOf((*MergeStrategy)(nil)).Elem(), "MergeStrategy")
	checkInterface(reflect.TypeOf((*AttributionStrategy)(nil)).Elem(), "AttributionStrategy")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// GetMergeStrategy returns a merge strategy by name.
func (r *Registry) GetMergeStrategy(name string) MergeStrategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mergeStrategies[name]
}

// GetAttributionStrategy returns an attribution strategy by name.
func (r *Registry) GetAttributionStrategy(name string) AttributionStrategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.attributionStrategies[name]
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, t interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, t)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTierUpserted emits a tier upserted event.
func (r *Registry) EmitTierUpserted(ctx context.Context, tier interface{}) {
	r.mu.RLock()
	plugins := r.onTierUpserted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTierUpserted(ctx, tier)
		}); err != nil {
			r.logger.Warn("plugin OnTierUpserted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitNodeAdded emits a node added event.
func (r *Registry) EmitNodeAdded(ctx context.Context, node interface{}) {
	r.mu.RLock()
	plugins := r.onNodeAdded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnNodeAdded(ctx, node)
		}); err != nil {
			r.logger.Warn("plugin OnNodeAdded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitNodeRemoved emits a node removed event.
func (r *Registry) EmitNodeRemoved(ctx context.Context, nodeID string) {
	r.mu.RLock()
	plugins := r.onNodeRemoved
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnNodeRemoved(ctx, nodeID)
		}); err != nil {
			r.logger.Warn("plugin OnNodeRemoved failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInspectorAdded emits an inspector added event.
func (r *Registry) EmitInspectorAdded(ctx context.Context, ins interface{}) {
	r.mu.RLock()
	plugins := r.onInspectorAdded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInspectorAdded(ctx, ins)
		}); err != nil {
			r.logger.Warn("plugin OnInspectorAdded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInspectorRemoved emits an inspector removed event.
func (r *Registry) EmitInspectorRemoved(ctx context.Context, inspectorID string) {
	r.mu.RLock()
	plugins := r.onInspectorRemoved
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInspectorRemoved(ctx, inspectorID)
		}); err != nil {
			r.logger.Warn("plugin OnInspectorRemoved failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDeposited emits a deposit event.
func (r *Registry) EmitDeposited(ctx context.Context, sub interface{}, amount uint64) {
	r.mu.RLock()
	plugins := r.onDeposited
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDeposited(ctx, sub, amount)
		}); err != nil {
			r.logger.Warn("plugin OnDeposited failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTierChanged emits a tier change event.
func (r *Registry) EmitTierChanged(ctx context.Context, sub interface{}, oldTier, newTier uint32) {
	r.mu.RLock()
	plugins := r.onTierChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTierChanged(ctx, sub, oldTier, newTier)
		}); err != nil {
			r.logger.Warn("plugin OnTierChanged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCharged emits a charge event.
func (r *Registry) EmitCharged(ctx context.Context, sub interface{}, amount uint64) {
	r.mu.RLock()
	plugins := r.onCharged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCharged(ctx, sub, amount)
		}); err != nil {
			r.logger.Warn("plugin OnCharged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSuspended emits a suspension event.
func (r *Registry) EmitSuspended(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onSuspended
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSuspended(ctx, sub)
		}); err != nil {
			r.logger.Warn("plugin OnSuspended failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCanceled emits a cancellation event.
func (r *Registry) EmitCanceled(ctx context.Context, sub interface{}, refund uint64) {
	r.mu.RLock()
	plugins := r.onCanceled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCanceled(ctx, sub, refund)
		}); err != nil {
			r.logger.Warn("plugin OnCanceled failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitMerged emits a merged metric event.
func (r *Registry) EmitMerged(ctx context.Context, merged interface{}) {
	r.mu.RLock()
	plugins := r.onMerged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnMerged(ctx, merged)
		}); err != nil {
			r.logger.Warn("plugin OnMerged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEvicted emits an eviction event.
func (r *Registry) EmitEvicted(ctx context.Context, count int64) {
	r.mu.RLock()
	plugins := r.onEvicted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEvicted(ctx, count)
		}); err != nil {
			r.logger.Warn("plugin OnEvicted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitNodeOnline emits a node online event.
func (r *Registry) EmitNodeOnline(ctx context.Context, nodeID string, at time.Time) {
	r.mu.RLock()
	plugins := r.onNodeOnline
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnNodeOnline(ctx, nodeID, at)
		}); err != nil {
			r.logger.Warn("plugin OnNodeOnline failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitNodeOffline emits a node offline event.
func (r *Registry) EmitNodeOffline(ctx context.Context, nodeID string, at time.Time) {
	r.mu.RLock()
	plugins := r.onNodeOffline
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnNodeOffline(ctx, nodeID, at)
		}); err != nil {
			r.logger.Warn("plugin OnNodeOffline failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitWithdrawn emits a withdrawal event.
func (r *Registry) EmitWithdrawn(ctx context.Context, operatorID string, amount uint64) {
	r.mu.RLock()
	plugins := r.onWithdrawn
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnWithdrawn(ctx, operatorID, amount)
		}); err != nil {
			r.logger.Warn("plugin OnWithdrawn failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
