package extension

import (
	"time"

	tally "github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/store"
)

// Option configures the Tally Forge extension.
type Option func(*Extension)

// WithStore sets the store for the tally engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithTallyOption passes a tally.Option through to the underlying engine.
func WithTallyOption(opt tally.Option) Option {
	return func(e *Extension) {
		e.tallyOpts = append(e.tallyOpts, opt)
	}
}

// WithPlugin registers a tally plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.tallyOpts = append(e.tallyOpts, tally.WithPlugin(p))
	}
}

// WithBalanceKeeper sets the bridge to the external token accounts used
// for refunds and payouts.
func WithBalanceKeeper(k tally.BalanceKeeper) Option {
	return func(e *Extension) {
		e.tallyOpts = append(e.tallyOpts, tally.WithBalanceKeeper(k))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithOperator sets the operator seeded into the ledger on first start.
func WithOperator(op id.OperatorID) Option {
	return func(e *Extension) { e.config.Operator = op.String() }
}

// WithDisableMigrate prevents auto-migration and seeding on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableSchedule prevents the background maintenance runner from
// being created.
func WithDisableSchedule() Option {
	return func(e *Extension) { e.config.DisableSchedule = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithTickEvery sets how often the background sweep advances billing
// periods.
func WithTickEvery(d time.Duration) Option {
	return func(e *Extension) { e.config.TickEvery = d }
}

// WithEvictEvery sets how often expired metrics are evicted.
func WithEvictEvery(d time.Duration) Option {
	return func(e *Extension) { e.config.EvictEvery = d }
}

// WithTickBatchSize sets how many subscriptions one TickAll call
// processes when the caller passes no limit.
func WithTickBatchSize(size int) Option {
	return func(e *Extension) { e.config.TickBatchSize = size }
}

// WithEvictBatchSize sets how many metric rows one EvictExpired call
// removes.
func WithEvictBatchSize(size int) Option {
	return func(e *Extension) { e.config.EvictBatchSize = size }
}

// WithMergeStrategy selects a plugin-provided consensus rule by name.
func WithMergeStrategy(name string) Option {
	return func(e *Extension) { e.config.MergeStrategy = name }
}

// WithAttributionStrategy selects a plugin-provided revenue split by name.
func WithAttributionStrategy(name string) Option {
	return func(e *Extension) { e.config.AttributionStrategy = name }
}
