// Package extension provides the Forge extension adapter for Tally.
//
// It implements the forge.Extension interface to integrate Tally
// into a Forge application with DI registration and lifecycle
// management, including the background maintenance runner.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.tally" or "tally" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	tally "github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/schedule"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tally"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Metering and payment ledger for decentralized storage"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Tally as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config    Config
	engine    *tally.Tally
	store     store.Store
	runner    *schedule.Runner
	tallyOpts []tally.Option
}

// New creates a new Tally Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Tally instance.
// This is nil until Register is called.
func (e *Extension) Engine() *tally.Tally { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the tally engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build tally options from resolved config.
	opts, err := e.buildTallyOpts()
	if err != nil {
		return err
	}

	eng := tally.New(e.store, opts...)
	e.engine = eng

	if !e.config.DisableSchedule {
		e.runner = schedule.New(eng,
			schedule.WithTickEvery(e.config.TickEvery),
			schedule.WithEvictEvery(e.config.EvictEvery),
		)
	}

	return vessel.Provide(fapp.Container(), func() (*tally.Tally, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("tally: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	if e.runner != nil {
		e.runner.Start(ctx)
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.runner != nil {
		e.runner.Stop()
	}

	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("tally: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildTallyOpts constructs tally.Option values from the resolved config.
func (e *Extension) buildTallyOpts() ([]tally.Option, error) {
	opts := make([]tally.Option, 0, len(e.tallyOpts)+5)

	if e.config.Operator != "" {
		op, err := id.ParseOperatorID(e.config.Operator)
		if err != nil {
			return nil, fmt.Errorf("tally: invalid operator in config: %w", err)
		}
		opts = append(opts, tally.WithOperator(op))
	}

	if e.config.TickBatchSize > 0 {
		opts = append(opts, tally.WithTickBatchSize(e.config.TickBatchSize))
	}
	if e.config.EvictBatchSize > 0 {
		opts = append(opts, tally.WithEvictBatchSize(e.config.EvictBatchSize))
	}

	if e.config.MergeStrategy != "" {
		opts = append(opts, tally.WithMergeStrategy(e.config.MergeStrategy))
	}
	if e.config.AttributionStrategy != "" {
		opts = append(opts, tally.WithAttributionStrategy(e.config.AttributionStrategy))
	}

	// Append any pass-through tally options.
	opts = append(opts, e.tallyOpts...)

	return opts, nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tally: configuration is required but not found in config files; " +
				"ensure 'extensions.tally' or 'tally' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("tally: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_schedule", e.config.DisableSchedule),
		forge.F("operator_set", e.config.Operator != ""),
		forge.F("tick_every", e.config.TickEvery),
		forge.F("evict_every", e.config.EvictEvery),
		forge.F("tick_batch_size", e.config.TickBatchSize),
		forge.F("evict_batch_size", e.config.EvictBatchSize),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.tally" first (namespaced pattern).
	if cm.IsSet("extensions.tally") {
		if err := cm.Bind("extensions.tally", &cfg); err == nil {
			e.Logger().Debug("tally: loaded config from file",
				forge.F("key", "extensions.tally"),
			)
			return cfg, true
		}
		e.Logger().Warn("tally: failed to bind extensions.tally config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "tally" key.
	if cm.IsSet("tally") {
		if err := cm.Bind("tally", &cfg); err == nil {
			e.Logger().Debug("tally: loaded config from file",
				forge.F("key", "tally"),
			)
			return cfg, true
		}
		e.Logger().Warn("tally: failed to bind tally config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.TickEvery == 0 {
		cfg.TickEvery = defaults.TickEvery
	}
	if cfg.EvictEvery == 0 {
		cfg.EvictEvery = defaults.EvictEvery
	}
	if cfg.TickBatchSize == 0 {
		cfg.TickBatchSize = defaults.TickBatchSize
	}
	if cfg.EvictBatchSize == 0 {
		cfg.EvictBatchSize = defaults.EvictBatchSize
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableSchedule {
		yamlConfig.DisableSchedule = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.Operator == "" && programmaticConfig.Operator != "" {
		yamlConfig.Operator = programmaticConfig.Operator
	}
	if yamlConfig.MergeStrategy == "" && programmaticConfig.MergeStrategy != "" {
		yamlConfig.MergeStrategy = programmaticConfig.MergeStrategy
	}
	if yamlConfig.AttributionStrategy == "" && programmaticConfig.AttributionStrategy != "" {
		yamlConfig.AttributionStrategy = programmaticConfig.AttributionStrategy
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.TickEvery == 0 && programmaticConfig.TickEvery != 0 {
		yamlConfig.TickEvery = programmaticConfig.TickEvery
	}
	if yamlConfig.EvictEvery == 0 && programmaticConfig.EvictEvery != 0 {
		yamlConfig.EvictEvery = programmaticConfig.EvictEvery
	}
	if yamlConfig.TickBatchSize == 0 && programmaticConfig.TickBatchSize != 0 {
		yamlConfig.TickBatchSize = programmaticConfig.TickBatchSize
	}
	if yamlConfig.EvictBatchSize == 0 && programmaticConfig.EvictBatchSize != 0 {
		yamlConfig.EvictBatchSize = programmaticConfig.EvictBatchSize
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
