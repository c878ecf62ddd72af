package tally

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/inspector"
	"github.com/xraph/tally/node"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/revenue"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/tier"
	"github.com/xraph/tally/types"
)

// Tally is the main metering and payment engine.
type Tally struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   Clock
	keeper  BalanceKeeper

	// mu serializes mutating operations so each one validates and
	// computes against the state the previous one left behind.
	mu sync.Mutex

	// Configuration
	operator            id.OperatorID
	tickBatchSize       int
	evictBatchSize      int
	mergeStrategy       string
	attributionStrategy string
}

// New creates a new Tally instance.
func New(s store.Store, opts ...Option) *Tally {
	t := &Tally{
		store:          s,
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		clock:          systemClock{},
		keeper:         nopKeeper{},
		tickBatchSize:  100,
		evictBatchSize: 1000,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Option configures a Tally instance.
type Option func(*Tally)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tally) {
		t.logger = logger
		t.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(t *Tally) {
		_ = t.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(t *Tally) {
		t.clock = c
	}
}

// WithBalanceKeeper sets the bridge to the external token accounts used
// for refunds and payouts.
func WithBalanceKeeper(k BalanceKeeper) Option {
	return func(t *Tally) {
		t.keeper = k
	}
}

// WithOperator seeds the designated operator recorded on first Start.
// Once settings exist the stored operator wins; control moves only
// through TransferOperator.
func WithOperator(op id.OperatorID) Option {
	return func(t *Tally) {
		t.operator = op
	}
}

// WithTickBatchSize caps how many subscriptions one TickAll call
// processes when the caller passes no limit.
func WithTickBatchSize(n int) Option {
	return func(t *Tally) {
		if n > 0 {
			t.tickBatchSize = n
		}
	}
}

// WithEvictBatchSize caps how many metric rows one EvictExpired call
// removes.
func WithEvictBatchSize(n int) Option {
	return func(t *Tally) {
		if n > 0 {
			t.evictBatchSize = n
		}
	}
}

// WithMergeStrategy selects a plugin-provided consensus rule by name in
// place of the built-in per-field median.
func WithMergeStrategy(name string) Option {
	return func(t *Tally) {
		t.mergeStrategy = name
	}
}

// WithAttributionStrategy selects a plugin-provided revenue split by name
// in place of the built-in weight-proportional rule.
func WithAttributionStrategy(name string) Option {
	return func(t *Tally) {
		t.attributionStrategy = name
	}
}

// Start migrates the store, seeds the control rows, and initializes
// plugins.
func (t *Tally) Start(ctx context.Context) error {
	if err := t.store.Migrate(ctx); err != nil {
		return err
	}

	now := t.clock.Now()
	if _, err := t.store.GetSettings(ctx); errors.Is(err, ErrNoSettings) {
		if t.operator.IsNil() {
			return ValidationError{Field: "operator", Message: "an operator must be configured on first start"}
		}
		st := &types.Settings{Entity: types.EntityAt(now), Operator: t.operator}
		if err := t.store.PutSettings(ctx, st); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if _, err := t.store.GetPool(ctx); errors.Is(err, ErrNoRevenuePool) {
		if err := t.store.PutPool(ctx, &revenue.Pool{Entity: types.EntityAt(now)}); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	t.plugins.EmitInit(ctx, t)

	t.logger.Info("tally started",
		"tick_batch_size", t.tickBatchSize,
		"evict_batch_size", t.evictBatchSize,
	)

	return nil
}

// Stop shuts down the engine.
func (t *Tally) Stop() error {
	ctx := context.Background()
	t.plugins.EmitShutdown(ctx)

	return t.store.Close()
}

// requireRunning loads settings and rejects the call while paused.
func (t *Tally) requireRunning(ctx context.Context) (*types.Settings, error) {
	st, err := t.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if st.Paused {
		return nil, ErrPaused
	}
	return st, nil
}

// requireOperator loads settings and rejects callers other than the
// designated operator.
func (t *Tally) requireOperator(ctx context.Context, caller id.OperatorID) (*types.Settings, error) {
	st, err := t.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if st.Operator != caller {
		return nil, ErrUnauthorizedOperator
	}
	return st, nil
}

// requireInspector maps an unknown reporter to the authorization error so
// callers cannot probe the inspector set.
func (t *Tally) requireInspector(ctx context.Context, reporter id.InspectorID) (*inspector.Inspector, error) {
	ins, err := t.store.GetInspector(ctx, reporter)
	if errors.Is(err, ErrUnknownInspector) {
		return nil, ErrUnauthorizedReporter
	}
	if err != nil {
		return nil, err
	}
	return ins, nil
}

// ──────────────────────────────────────────────────
// Operator Control
// ──────────────────────────────────────────────────

// Operator returns the currently designated operator.
func (t *Tally) Operator(ctx context.Context) (id.OperatorID, error) {
	st, err := t.store.GetSettings(ctx)
	if err != nil {
		return id.OperatorID{}, err
	}
	return st.Operator, nil
}

// TransferOperator hands control to next. Only the current operator may
// transfer, and a pause does not block it.
func (t *Tally) TransferOperator(ctx context.Context, caller, next id.OperatorID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, err := t.requireOperator(ctx, caller)
	if err != nil {
		return err
	}
	if next.IsNil() {
		return ValidationError{Field: "next", Message: "operator id must not be nil"}
	}

	st.Operator = next
	st.Touch(t.clock.Now())
	if err := t.store.PutSettings(ctx, st); err != nil {
		return err
	}

	t.logger.Info("operator transferred", "from", caller, "to", next)
	return nil
}

// Pause stops value- and metric-mutating operations until Resume. Reads,
// registry maintenance, and operator control stay available.
func (t *Tally) Pause(ctx context.Context, caller id.OperatorID) error {
	return t.setPaused(ctx, caller, true)
}

// Resume lifts a pause.
func (t *Tally) Resume(ctx context.Context, caller id.OperatorID) error {
	return t.setPaused(ctx, caller, false)
}

func (t *Tally) setPaused(ctx context.Context, caller id.OperatorID, paused bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, err := t.requireOperator(ctx, caller)
	if err != nil {
		return err
	}
	if st.Paused == paused {
		return nil
	}

	st.Paused = paused
	st.Touch(t.clock.Now())
	if err := t.store.PutSettings(ctx, st); err != nil {
		return err
	}

	t.logger.Info("ledger pause state changed", "paused", paused)
	return nil
}

// Paused reports whether the ledger is paused.
func (t *Tally) Paused(ctx context.Context) (bool, error) {
	st, err := t.store.GetSettings(ctx)
	if err != nil {
		return false, err
	}
	return st.Paused, nil
}

// ──────────────────────────────────────────────────
// Tier Registry
// ──────────────────────────────────────────────────

// SetTier creates or updates a tier. Price and limit changes apply to
// future billing periods only; periods already begun keep the price they
// started under.
func (t *Tally) SetTier(ctx context.Context, caller id.OperatorID, tr *tier.Tier) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.requireOperator(ctx, caller); err != nil {
		return err
	}
	if tr.ID == 0 {
		return ValidationError{Field: "id", Message: "tier id 0 is reserved"}
	}

	now := t.clock.Now()
	existing, err := t.store.GetTier(ctx, tr.ID)
	switch {
	case err == nil:
		tr.Entity = existing.Entity
		tr.Touch(now)
	case errors.Is(err, ErrUnknownTier):
		tr.Entity = types.EntityAt(now)
	default:
		return err
	}

	if err := t.store.PutTier(ctx, tr); err != nil {
		return err
	}

	t.plugins.EmitTierUpserted(ctx, tr)
	return nil
}

// GetTier retrieves a tier by id.
func (t *Tally) GetTier(ctx context.Context, tierID uint32) (*tier.Tier, error) {
	return t.store.GetTier(ctx, tierID)
}

// ListTiers returns all tiers ordered by id.
func (t *Tally) ListTiers(ctx context.Context) ([]*tier.Tier, error) {
	return t.store.ListTiers(ctx)
}

// defaultTier picks the tier a first deposit lands on: the lowest-numbered
// active one.
func (t *Tally) defaultTier(ctx context.Context) (uint32, error) {
	tiers, err := t.store.ListTiers(ctx)
	if err != nil {
		return 0, err
	}
	for _, tr := range tiers {
		if tr.Active() {
			return tr.ID, nil
		}
	}
	return 0, ErrUnknownTier
}

// freeTier finds the zero-price tier lapsed Apps fall back to, nil when
// the operator has not configured one.
func (t *Tally) freeTier(ctx context.Context) (*tier.Tier, error) {
	tiers, err := t.store.ListTiers(ctx)
	if err != nil {
		return nil, err
	}
	for _, tr := range tiers {
		if tr.Active() && tr.Price.IsZero() {
			return tr, nil
		}
	}
	return nil, nil
}

// ──────────────────────────────────────────────────
// Node Registry
// ──────────────────────────────────────────────────

// AddNode registers a node or reactivates a removed one, refreshing its
// connectivity metadata.
func (t *Tally) AddNode(ctx context.Context, caller id.OperatorID, n *node.Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.requireOperator(ctx, caller); err != nil {
		return err
	}
	if n.ID.IsNil() {
		n.ID = id.NewNodeID()
	}

	now := t.clock.Now()
	existing, err := t.store.GetNode(ctx, n.ID)
	switch {
	case err == nil:
		n.Entity = existing.Entity
		n.LastSeen = existing.LastSeen
		n.Touch(now)
	case errors.Is(err, ErrUnknownNode):
		n.Entity = types.EntityAt(now)
	default:
		return err
	}
	n.Status = node.StatusActive

	if err := t.store.PutNode(ctx, n); err != nil {
		return err
	}

	t.plugins.EmitNodeAdded(ctx, n)
	return nil
}

// RemoveNode takes a node out of service. Its metrics, revenue shares,
// and availability history stay queryable.
func (t *Tally) RemoveNode(ctx context.Context, caller id.OperatorID, nodeID id.NodeID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.requireOperator(ctx, caller); err != nil {
		return err
	}

	n, err := t.store.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}
	if !n.Active() {
		return ErrUnknownNode
	}

	n.Status = node.StatusRemoved
	n.Touch(t.clock.Now())
	if err := t.store.PutNode(ctx, n); err != nil {
		return err
	}

	t.plugins.EmitNodeRemoved(ctx, nodeID.String())
	return nil
}

// IsActiveNode reports whether the node is currently in service.
func (t *Tally) IsActiveNode(ctx context.Context, nodeID id.NodeID) (bool, error) {
	n, err := t.store.GetNode(ctx, nodeID)
	if errors.Is(err, ErrUnknownNode) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n.Active(), nil
}

// GetNode retrieves a node by id, removed or not.
func (t *Tally) GetNode(ctx context.Context, nodeID id.NodeID) (*node.Node, error) {
	return t.store.GetNode(ctx, nodeID)
}

// ListNodes returns nodes filtered by opts.
func (t *Tally) ListNodes(ctx context.Context, opts node.ListOpts) ([]*node.Node, error) {
	return t.store.ListNodes(ctx, opts)
}

// ──────────────────────────────────────────────────
// Inspector Registry
// ──────────────────────────────────────────────────

// AddInspector authorizes a reporter.
func (t *Tally) AddInspector(ctx context.Context, caller id.OperatorID, ins *inspector.Inspector) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.requireOperator(ctx, caller); err != nil {
		return err
	}
	if ins.ID.IsNil() {
		ins.ID = id.NewInspectorID()
	}

	now := t.clock.Now()
	existing, err := t.store.GetInspector(ctx, ins.ID)
	switch {
	case err == nil:
		ins.Entity = existing.Entity
		ins.CurrentDay = existing.CurrentDay
		ins.Touch(now)
	case errors.Is(err, ErrUnknownInspector):
		ins.Entity = types.EntityAt(now)
	default:
		return err
	}

	if err := t.store.PutInspector(ctx, ins); err != nil {
		return err
	}

	t.plugins.EmitInspectorAdded(ctx, ins)
	return nil
}

// RemoveInspector withdraws a reporter's authorization. Its past reports
// keep contributing to merged values until they age out.
func (t *Tally) RemoveInspector(ctx context.Context, caller id.OperatorID, inspectorID id.InspectorID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.requireOperator(ctx, caller); err != nil {
		return err
	}
	if _, err := t.store.GetInspector(ctx, inspectorID); err != nil {
		return err
	}
	if err := t.store.DeleteInspector(ctx, inspectorID); err != nil {
		return err
	}

	t.plugins.EmitInspectorRemoved(ctx, inspectorID.String())
	return nil
}

// ListInspectors returns all authorized reporters.
func (t *Tally) ListInspectors(ctx context.Context) ([]*inspector.Inspector, error) {
	return t.store.ListInspectors(ctx)
}
