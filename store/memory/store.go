// Package memory provides an in-memory Store for tests and single-process
// deployments. Every read returns a copy, so callers may mutate results
// freely and nothing changes until the corresponding Put.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/tally"
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

type Store struct {
	mu sync.RWMutex

	// Registry storage
	tiers      map[uint32]*tier.Tier
	nodes      map[string]*node.Node
	inspectors map[string]*inspector.Inspector

	// Billing storage
	subscriptions map[string]*subscription.Subscription

	// Metric storage
	reports map[string]*metric.Report
	merged  map[string]*metric.Merged

	// Revenue storage
	pool   *revenue.Pool
	shares map[string]*revenue.Share

	// Availability storage
	transitions map[string][]*availability.Transition

	// Control row
	settings *types.Settings

	closed bool
}

func New() *Store {
	return &Store{
		tiers:         make(map[uint32]*tier.Tier),
		nodes:         make(map[string]*node.Node),
		inspectors:    make(map[string]*inspector.Inspector),
		subscriptions: make(map[string]*subscription.Subscription),
		reports:       make(map[string]*metric.Report),
		merged:        make(map[string]*metric.Merged),
		shares:        make(map[string]*revenue.Share),
		transitions:   make(map[string][]*availability.Transition),
	}
}

func clone[T any](v *T) *T {
	cp := *v
	return &cp
}

func reportKey(r *metric.Report) string {
	return fmt.Sprintf("%s|%s|%s|%d", r.Inspector, r.App, r.Node, r.Day)
}

func mergedKey(app id.AppID, nodeID id.NodeID, day metric.Day) string {
	return fmt.Sprintf("%s|%s|%d", app, nodeID, day)
}

// Tier Store implementation
func (s *Store) PutTier(_ context.Context, t *tier.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tiers[t.ID] = clone(t)
	return nil
}

func (s *Store) GetTier(_ context.Context, tierID uint32) (*tier.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tiers[tierID]; ok {
		return clone(t), nil
	}
	return nil, tally.ErrUnknownTier
}

func (s *Store) ListTiers(_ context.Context) ([]*tier.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*tier.Tier, 0, len(s.tiers))
	for _, t := range s.tiers {
		result = append(result, clone(t))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Node Store implementation
func (s *Store) PutNode(_ context.Context, n *node.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes[n.ID.String()] = clone(n)
	return nil
}

func (s *Store) GetNode(_ context.Context, nodeID id.NodeID) (*node.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n, ok := s.nodes[nodeID.String()]; ok {
		return clone(n), nil
	}
	return nil, tally.ErrUnknownNode
}

func (s *Store) ListNodes(_ context.Context, opts node.ListOpts) ([]*node.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*node.Node, 0)
	for _, n := range s.nodes {
		if opts.Status == "" || n.Status == opts.Status {
			result = append(result, clone(n))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })

	return paginate(result, opts.Offset, opts.Limit), nil
}

// Inspector Store implementation
func (s *Store) PutInspector(_ context.Context, ins *inspector.Inspector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inspectors[ins.ID.String()] = clone(ins)
	return nil
}

func (s *Store) GetInspector(_ context.Context, inspectorID id.InspectorID) (*inspector.Inspector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ins, ok := s.inspectors[inspectorID.String()]; ok {
		return clone(ins), nil
	}
	return nil, tally.ErrUnknownInspector
}

func (s *Store) ListInspectors(_ context.Context) ([]*inspector.Inspector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*inspector.Inspector, 0, len(s.inspectors))
	for _, ins := range s.inspectors {
		result = append(result, clone(ins))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

func (s *Store) DeleteInspector(_ context.Context, inspectorID id.InspectorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inspectors[inspectorID.String()]; !ok {
		return tally.ErrUnknownInspector
	}
	delete(s.inspectors, inspectorID.String())
	return nil
}

// Subscription Store implementation
func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.App.String()]; exists {
		return tally.ErrAlreadyExists
	}
	s.subscriptions[sub.App.String()] = clone(sub)
	return nil
}

func (s *Store) GetSubscription(_ context.Context, app id.AppID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[app.String()]; ok {
		return clone(sub), nil
	}
	return nil, tally.ErrNoSubscription
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.App.String()]; !exists {
		return tally.ErrNoSubscription
	}
	s.subscriptions[sub.App.String()] = clone(sub)
	return nil
}

func (s *Store) DeleteSubscription(_ context.Context, app id.AppID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subscriptions, app.String())
	return nil
}

func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if opts.Suspended != nil && sub.Suspended != *opts.Suspended {
			continue
		}
		if !opts.AfterApp.IsNil() && sub.App.String() <= opts.AfterApp.String() {
			continue
		}
		result = append(result, clone(sub))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].App.String() < result[j].App.String() })

	return paginate(result, opts.Offset, opts.Limit), nil
}

// Metric Store implementation
func (s *Store) PutReport(_ context.Context, r *metric.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports[reportKey(r)] = clone(r)
	return nil
}

func (s *Store) ListReports(_ context.Context, app id.AppID, nodeID id.NodeID, day metric.Day) ([]*metric.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*metric.Report, 0)
	for _, r := range s.reports {
		if r.App == app && r.Node == nodeID && r.Day == day {
			result = append(result, clone(r))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Inspector.String() < result[j].Inspector.String() })
	return result, nil
}

func (s *Store) PutMerged(_ context.Context, m *metric.Merged) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.merged[mergedKey(m.App, m.Node, m.Day)] = clone(m)
	return nil
}

func (s *Store) ListMergedByApp(_ context.Context, app id.AppID, w metric.Window) ([]*metric.Merged, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*metric.Merged, 0)
	for _, m := range s.merged {
		if m.App == app && w.Contains(m.Day) {
			result = append(result, clone(m))
		}
	}
	sortMerged(result)
	return result, nil
}

func (s *Store) ListMergedByNode(_ context.Context, nodeID id.NodeID, w metric.Window) ([]*metric.Merged, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*metric.Merged, 0)
	for _, m := range s.merged {
		if m.Node == nodeID && w.Contains(m.Day) {
			result = append(result, clone(m))
		}
	}
	sortMerged(result)
	return result, nil
}

func (s *Store) EvictMetricsBefore(_ context.Context, cutoff metric.Day, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted int64
	for key, r := range s.reports {
		if limit > 0 && evicted >= int64(limit) {
			return evicted, nil
		}
		if r.Day.Before(cutoff) {
			delete(s.reports, key)
			evicted++
		}
	}
	for key, m := range s.merged {
		if limit > 0 && evicted >= int64(limit) {
			return evicted, nil
		}
		if m.Day.Before(cutoff) {
			delete(s.merged, key)
			evicted++
		}
	}
	return evicted, nil
}

// Revenue Store implementation
func (s *Store) GetPool(_ context.Context) (*revenue.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pool == nil {
		return nil, tally.ErrNoRevenuePool
	}
	return clone(s.pool), nil
}

func (s *Store) PutPool(_ context.Context, p *revenue.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pool = clone(p)
	return nil
}

func (s *Store) GetShare(_ context.Context, nodeID id.NodeID) (*revenue.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sh, ok := s.shares[nodeID.String()]; ok {
		return clone(sh), nil
	}
	return nil, tally.ErrNotFound
}

func (s *Store) PutShare(_ context.Context, sh *revenue.Share) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shares[sh.Node.String()] = clone(sh)
	return nil
}

func (s *Store) ListShares(_ context.Context) ([]*revenue.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*revenue.Share, 0, len(s.shares))
	for _, sh := range s.shares {
		result = append(result, clone(sh))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Node.String() < result[j].Node.String() })
	return result, nil
}

// Availability Store implementation
func (s *Store) AppendTransition(_ context.Context, tr *availability.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tr.Node.String()
	s.transitions[key] = append(s.transitions[key], clone(tr))
	return nil
}

func (s *Store) LastTransition(_ context.Context, nodeID id.NodeID) (*availability.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trs := s.transitions[nodeID.String()]
	if len(trs) == 0 {
		return nil, tally.ErrNotFound
	}
	return clone(trs[len(trs)-1]), nil
}

func (s *Store) LastTransitionBefore(_ context.Context, nodeID id.NodeID, at time.Time) (*availability.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trs := s.transitions[nodeID.String()]
	for i := len(trs) - 1; i >= 0; i-- {
		if trs[i].At.Before(at) {
			return clone(trs[i]), nil
		}
	}
	return nil, tally.ErrNotFound
}

func (s *Store) ListTransitions(_ context.Context, nodeID id.NodeID, from, to time.Time) ([]*availability.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*availability.Transition, 0)
	for _, tr := range s.transitions[nodeID.String()] {
		if tr.At.Before(from) || tr.At.After(to) {
			continue
		}
		result = append(result, clone(tr))
	}
	return result, nil
}

// Settings Store implementation
func (s *Store) GetSettings(_ context.Context) (*types.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, tally.ErrNoSettings
	}
	return clone(s.settings), nil
}

func (s *Store) PutSettings(_ context.Context, st *types.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = clone(st)
	return nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return tally.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func sortMerged(ms []*metric.Merged) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Day != ms[j].Day {
			return ms[i].Day < ms[j].Day
		}
		if ms[i].App != ms[j].App {
			return ms[i].App.String() < ms[j].App.String()
		}
		return ms[i].Node.String() < ms[j].Node.String()
	})
}

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
