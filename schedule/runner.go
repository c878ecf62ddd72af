// Package schedule drives the periodic maintenance a tally deployment
// needs: sweeping billing periods forward and evicting metrics that have
// aged out of the retention window.
//
// A Runner owns two background loops, one per concern, each on its own
// interval. Deployments that prefer an external scheduler (cron, a job
// queue) can skip the Runner and call Tally.TickAll and
// Tally.EvictExpired directly.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/tally/id"
)

// Engine is the slice of the tally API the runner drives.
type Engine interface {
	TickAll(ctx context.Context, cursor id.AppID, limit int) (id.AppID, error)
	EvictExpired(ctx context.Context) (int64, error)
}

// Runner periodically advances billing periods and evicts expired
// metrics until stopped.
type Runner struct {
	engine Engine
	logger *slog.Logger

	tickEvery  time.Duration
	evictEvery time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithTickEvery sets how often the billing sweep runs. A non-positive
// interval disables the sweep loop.
func WithTickEvery(d time.Duration) Option {
	return func(r *Runner) {
		r.tickEvery = d
	}
}

// WithEvictEvery sets how often expired metrics are evicted. A
// non-positive interval disables the eviction loop.
func WithEvictEvery(d time.Duration) Option {
	return func(r *Runner) {
		r.evictEvery = d
	}
}

// New creates a Runner around the engine. By default the billing sweep
// runs hourly and eviction daily.
func New(engine Engine, opts ...Option) *Runner {
	r := &Runner{
		engine:     engine,
		logger:     slog.Default(),
		tickEvery:  time.Hour,
		evictEvery: 24 * time.Hour,
		stopChan:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the background loops. The context is passed through to
// the engine calls each pass makes.
func (r *Runner) Start(ctx context.Context) {
	if r.tickEvery > 0 {
		r.wg.Add(1)
		go r.tickLoop(ctx)
	}
	if r.evictEvery > 0 {
		r.wg.Add(1)
		go r.evictLoop(ctx)
	}

	r.logger.Info("schedule started",
		"tick_every", r.tickEvery,
		"evict_every", r.evictEvery,
	)
}

// Stop halts the loops and waits for an in-flight pass to finish. A
// Runner cannot be restarted after Stop.
func (r *Runner) Stop() {
	close(r.stopChan)
	r.wg.Wait()
}

func (r *Runner) tickLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Runner) evictLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.evictEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.evict(ctx)
		}
	}
}

// sweep walks the whole subscription set once, resuming from the cursor
// each TickAll call hands back. Per-App failures come back aggregated
// alongside a moved cursor, so the walk keeps going as long as the
// cursor advances; a stalled cursor means the pass itself failed and the
// sweep retries on the next interval.
func (r *Runner) sweep(ctx context.Context) {
	var cursor id.AppID
	for {
		next, err := r.engine.TickAll(ctx, cursor, 0)
		if err != nil {
			r.logger.Warn("billing sweep pass failed",
				"cursor", cursor,
				"error", err,
			)
		}
		if next.IsNil() || next == cursor {
			return
		}
		cursor = next
	}
}

// evict drains expired metric rows batch by batch until the engine
// reports nothing left.
func (r *Runner) evict(ctx context.Context) {
	for {
		n, err := r.engine.EvictExpired(ctx)
		if err != nil {
			r.logger.Warn("metric eviction failed", "error", err)
			return
		}
		if n == 0 {
			return
		}
	}
}
