package schedule_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/schedule"
)

const waitTimeout = 5 * time.Second

// fakeEngine scripts TickAll cursor handoffs and EvictExpired batches,
// recording every call it receives. A negative evict entry plays back as
// an error. passDone receives a token whenever a sweep or drain pass
// ends.
type fakeEngine struct {
	mu sync.Mutex

	tickScript  []id.AppID
	tickErrs    map[int]error
	tickCursors []id.AppID
	tickLimits  []int

	evictScript []int64
	evictCalls  int

	passDone chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		tickErrs: make(map[int]error),
		passDone: make(chan struct{}, 1),
	}
}

func (f *fakeEngine) TickAll(_ context.Context, cursor id.AppID, limit int) (id.AppID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := len(f.tickCursors)
	f.tickCursors = append(f.tickCursors, cursor)
	f.tickLimits = append(f.tickLimits, limit)

	var next id.AppID
	if i < len(f.tickScript) {
		next = f.tickScript[i]
	}
	if next.IsNil() || next == cursor {
		f.signal()
	}
	return next, f.tickErrs[i]
}

func (f *fakeEngine) EvictExpired(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.evictCalls
	f.evictCalls++

	var n int64
	if i < len(f.evictScript) {
		n = f.evictScript[i]
	}
	if n < 0 {
		f.signal()
		return 0, errors.New("evict backend unavailable")
	}
	if n == 0 {
		f.signal()
	}
	return n, nil
}

func (f *fakeEngine) signal() {
	select {
	case f.passDone <- struct{}{}:
	default:
	}
}

func (f *fakeEngine) cursorPrefix(n int) []id.AppID {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tickCursors) < n {
		n = len(f.tickCursors)
	}
	return append([]id.AppID(nil), f.tickCursors[:n]...)
}

func (f *fakeEngine) calls() (ticks, evicts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickCursors), f.evictCalls
}

func waitPass(t *testing.T, f *fakeEngine) {
	t.Helper()
	select {
	case <-f.passDone:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a runner pass")
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRunnerSweepFollowsCursor(t *testing.T) {
	appA := id.NewAppID()
	appB := id.NewAppID()

	eng := newFakeEngine()
	eng.tickScript = []id.AppID{appA, appB, {}}

	r := schedule.New(eng,
		schedule.WithTickEvery(5*time.Millisecond),
		schedule.WithEvictEvery(0),
		schedule.WithLogger(quietLogger()),
	)
	r.Start(context.Background())
	waitPass(t, eng)
	r.Stop()

	got := eng.cursorPrefix(3)
	want := []id.AppID{{}, appA, appB}
	if len(got) != len(want) {
		t.Fatalf("sweep made %d calls, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d used cursor %v, want %v", i, got[i], want[i])
		}
	}

	eng.mu.Lock()
	defer eng.mu.Unlock()
	for i, limit := range eng.tickLimits {
		if limit != 0 {
			t.Errorf("call %d passed limit %d, want 0 so the engine batch size applies", i, limit)
		}
	}
}

func TestRunnerSweepStopsWhenCursorStalls(t *testing.T) {
	appA := id.NewAppID()

	eng := newFakeEngine()
	// The second call fails without advancing; the sweep must abandon
	// the pass and restart from the beginning on the next interval.
	eng.tickScript = []id.AppID{appA, appA}
	eng.tickErrs[1] = errors.New("store unavailable")

	r := schedule.New(eng,
		schedule.WithTickEvery(5*time.Millisecond),
		schedule.WithEvictEvery(0),
		schedule.WithLogger(quietLogger()),
	)
	r.Start(context.Background())
	waitPass(t, eng)
	waitPass(t, eng)
	r.Stop()

	got := eng.cursorPrefix(3)
	if len(got) < 3 {
		t.Fatalf("recorded %d calls, want at least 3", len(got))
	}
	if got[0] != (id.AppID{}) || got[1] != appA {
		t.Fatalf("first pass used cursors %v, want zero then %v", got[:2], appA)
	}
	if got[2] != (id.AppID{}) {
		t.Errorf("call after stalled pass used cursor %v, want a fresh sweep from zero", got[2])
	}
}

func TestRunnerEvictDrainsUntilEmpty(t *testing.T) {
	eng := newFakeEngine()
	// One interval drains three batches, hits an error, and resumes on
	// the next interval until the engine reports nothing left.
	eng.evictScript = []int64{500, 500, -1, 120, 0}

	r := schedule.New(eng,
		schedule.WithTickEvery(0),
		schedule.WithEvictEvery(5*time.Millisecond),
		schedule.WithLogger(quietLogger()),
	)
	r.Start(context.Background())
	waitPass(t, eng)
	waitPass(t, eng)
	r.Stop()

	_, evicts := eng.calls()
	if evicts < len(eng.evictScript) {
		t.Errorf("eviction made %d calls, want at least %d to drain the script", evicts, len(eng.evictScript))
	}
}

func TestRunnerDisabledLoopsMakeNoCalls(t *testing.T) {
	eng := newFakeEngine()

	r := schedule.New(eng,
		schedule.WithTickEvery(0),
		schedule.WithEvictEvery(0),
		schedule.WithLogger(quietLogger()),
	)
	r.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	r.Stop()

	ticks, evicts := eng.calls()
	if ticks != 0 || evicts != 0 {
		t.Errorf("disabled runner made %d tick and %d evict calls, want none", ticks, evicts)
	}
}
