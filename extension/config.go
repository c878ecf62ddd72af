package extension

import "time"

// Config holds the Tally extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tally" or "tally" keys).
type Config struct {
	// DisableMigrate prevents auto-migration and control-row seeding on
	// start. The host application is then responsible for calling
	// Tally.Start itself.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableSchedule prevents the background maintenance runner from
	// being created. Billing sweeps and metric eviction are then up to
	// an external scheduler.
	DisableSchedule bool `json:"disable_schedule" mapstructure:"disable_schedule" yaml:"disable_schedule"`

	// Operator is the operator id (an "op_..." string) seeded into the
	// ledger on first start. Once settings exist the stored operator
	// wins and this field is ignored.
	Operator string `json:"operator" mapstructure:"operator" yaml:"operator"`

	// TickEvery is how often the background sweep advances billing
	// periods (default: 1h).
	TickEvery time.Duration `json:"tick_every" mapstructure:"tick_every" yaml:"tick_every"`

	// EvictEvery is how often metrics past the retention window are
	// removed (default: 24h).
	EvictEvery time.Duration `json:"evict_every" mapstructure:"evict_every" yaml:"evict_every"`

	// TickBatchSize is how many subscriptions one TickAll call processes
	// when the caller passes no limit (default: 100).
	TickBatchSize int `json:"tick_batch_size" mapstructure:"tick_batch_size" yaml:"tick_batch_size"`

	// EvictBatchSize is how many metric rows one EvictExpired call
	// removes (default: 1000).
	EvictBatchSize int `json:"evict_batch_size" mapstructure:"evict_batch_size" yaml:"evict_batch_size"`

	// MergeStrategy names a plugin-provided consensus rule used in place
	// of the built-in per-field median.
	MergeStrategy string `json:"merge_strategy" mapstructure:"merge_strategy" yaml:"merge_strategy"`

	// AttributionStrategy names a plugin-provided revenue split used in
	// place of the built-in weight-proportional rule.
	AttributionStrategy string `json:"attribution_strategy" mapstructure:"attribution_strategy" yaml:"attribution_strategy"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickEvery:      time.Hour,
		EvictEvery:     24 * time.Hour,
		TickBatchSize:  100,
		EvictBatchSize: 1000,
	}
}
