package plugin_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/xraph/tally/plugin"
)

// stubPlugin implements only the base interface.
type stubPlugin struct {
	name string
}

func (s *stubPlugin) Name() string { return s.name }

// billingRecorder records the billing events it receives and can be
// scripted to fail.
type billingRecorder struct {
	name      string
	deposited []uint64
	charged   []uint64
	err       error
}

func (b *billingRecorder) Name() string { return b.name }

func (b *billingRecorder) OnDeposited(_ context.Context, _ interface{}, amount uint64) error {
	b.deposited = append(b.deposited, amount)
	return b.err
}

func (b *billingRecorder) OnCharged(_ context.Context, _ interface{}, amount uint64) error {
	b.charged = append(b.charged, amount)
	return b.err
}

// firstValueMerge is a trivial consensus rule that takes each field's
// first reported value.
type firstValueMerge struct{}

func (firstValueMerge) Name() string         { return "first-value-merge" }
func (firstValueMerge) StrategyName() string { return "first-value" }

func (firstValueMerge) MergeCounters(stored, read, written []uint64) (uint64, uint64, uint64) {
	pick := func(vs []uint64) uint64 {
		if len(vs) == 0 {
			return 0
		}
		return vs[0]
	}
	return pick(stored), pick(read), pick(written)
}

// evenSplit is a trivial attribution rule that splits revenue evenly,
// remainder to the first node.
type evenSplit struct{}

func (evenSplit) Name() string         { return "even-split" }
func (evenSplit) StrategyName() string { return "even" }

func (evenSplit) SplitRevenue(amount uint64, nodes []string, _ []uint64) []uint64 {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]uint64, len(nodes))
	each := amount / uint64(len(nodes))
	for i := range out {
		out[i] = each
	}
	out[0] += amount - each*uint64(len(nodes))
	return out
}

func newTestRegistry() *plugin.Registry {
	return plugin.NewRegistry().WithLogger(slog.New(slog.DiscardHandler))
}

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	r := newTestRegistry()

	if err := r.Register(&stubPlugin{name: "alpha"}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(&stubPlugin{name: "alpha"}); err == nil {
		t.Fatal("second Register with the same name succeeded, want error")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestGetAndListFindRegisteredPlugins(t *testing.T) {
	r := newTestRegistry()

	a := &stubPlugin{name: "alpha"}
	b := &stubPlugin{name: "beta"}
	if err := r.Register(a); err != nil {
		t.Fatalf("Register alpha: %v", err)
	}
	if err := r.Register(b); err != nil {
		t.Fatalf("Register beta: %v", err)
	}

	if got := r.Get("beta"); got != b {
		t.Errorf("Get(beta) = %v, want the registered plugin", got)
	}
	if got := r.Get("missing"); got != nil {
		t.Errorf("Get(missing) = %v, want nil", got)
	}
	if got := len(r.List()); got != 2 {
		t.Errorf("List() returned %d plugins, want 2", got)
	}
}

func TestEmitDispatchesOnlyToImplementers(t *testing.T) {
	r := newTestRegistry()

	rec := &billingRecorder{name: "recorder"}
	if err := r.Register(rec); err != nil {
		t.Fatalf("Register recorder: %v", err)
	}
	if err := r.Register(&stubPlugin{name: "bystander"}); err != nil {
		t.Fatalf("Register bystander: %v", err)
	}

	ctx := context.Background()
	r.EmitDeposited(ctx, nil, 100)
	r.EmitCharged(ctx, nil, 40)
	r.EmitCharged(ctx, nil, 60)

	if len(rec.deposited) != 1 || rec.deposited[0] != 100 {
		t.Errorf("deposited events = %v, want [100]", rec.deposited)
	}
	if len(rec.charged) != 2 || rec.charged[0] != 40 || rec.charged[1] != 60 {
		t.Errorf("charged events = %v, want [40 60]", rec.charged)
	}
}

func TestEmitContinuesPastFailingPlugin(t *testing.T) {
	r := newTestRegistry()

	failing := &billingRecorder{name: "failing", err: errors.New("hook broken")}
	healthy := &billingRecorder{name: "healthy"}
	if err := r.Register(failing); err != nil {
		t.Fatalf("Register failing: %v", err)
	}
	if err := r.Register(healthy); err != nil {
		t.Fatalf("Register healthy: %v", err)
	}

	r.EmitDeposited(context.Background(), nil, 7)

	if len(healthy.deposited) != 1 {
		t.Errorf("healthy plugin received %d events, want 1", len(healthy.deposited))
	}
}

func TestStrategyLookupByName(t *testing.T) {
	r := newTestRegistry()

	if err := r.Register(firstValueMerge{}); err != nil {
		t.Fatalf("Register merge strategy: %v", err)
	}
	if err := r.Register(evenSplit{}); err != nil {
		t.Fatalf("Register attribution strategy: %v", err)
	}

	ms := r.GetMergeStrategy("first-value")
	if ms == nil {
		t.Fatal("GetMergeStrategy(first-value) = nil, want the registered strategy")
	}
	s, rd, w := ms.MergeCounters([]uint64{3, 9}, []uint64{5}, nil)
	if s != 3 || rd != 5 || w != 0 {
		t.Errorf("MergeCounters = (%d, %d, %d), want (3, 5, 0)", s, rd, w)
	}

	as := r.GetAttributionStrategy("even")
	if as == nil {
		t.Fatal("GetAttributionStrategy(even) = nil, want the registered strategy")
	}
	split := as.SplitRevenue(10, []string{"a", "b", "c"}, nil)
	if len(split) != 3 || split[0]+split[1]+split[2] != 10 {
		t.Errorf("SplitRevenue = %v, want three shares summing to 10", split)
	}

	if r.GetMergeStrategy("missing") != nil {
		t.Error("GetMergeStrategy(missing) returned a strategy, want nil")
	}
	if r.GetAttributionStrategy("missing") != nil {
		t.Error("GetAttributionStrategy(missing) returned a strategy, want nil")
	}
}
