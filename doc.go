// Package tally provides an embeddable payment and metering ledger for
// decentralized storage networks.
//
// Tally is designed as a library, not a service. Import it into your
// network's coordinator and drive it from your own transport and scheduler.
// It provides:
//
//   - Prepaid subscription billing with fixed 31-day periods
//   - A tier registry whose price changes never apply retroactively
//   - Multi-inspector metric reports merged by per-field median
//   - A 31-day metric retention window with bounded, resumable eviction
//   - A revenue pool with advisory per-node attribution
//   - Node availability tracking with uptime ratios
//   - Pluggable hooks and strategies for every lifecycle event
//
// # Quick Start
//
// Create a Tally instance with your preferred store:
//
//	import (
//	    "github.com/xraph/tally"
//	    "github.com/xraph/tally/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.New(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create the engine
//	t := tally.New(store, tally.WithOperator(operatorID))
//
//	// Start it (runs migrations and seeds the control rows)
//	if err := t.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Stop()
//
// # Core Concepts
//
// Tiers define how much capacity an App reserves and at what price per
// period:
//
//	err := t.SetTier(ctx, operatorID, &tier.Tier{
//	    ID:            1,
//	    StorageBytes:  1 << 30,
//	    TransferBytes: 10 << 30,
//	    Price:         30,
//	})
//
// Apps prepay into a subscription and are charged one full period at a
// time; there is no proration inside a period:
//
//	err := t.Deposit(ctx, appID, 100)
//	consumed, err := t.Tick(ctx, appID)
//
// Inspectors report what Nodes served and the reports merge by per-field
// median, so no single reporter can skew the canonical value:
//
//	err := t.Report(ctx, inspectorID, appID, nodeID, day, counters)
//
// # Consistency
//
// Every operation validates and computes first and persists last: when a
// call returns an error the ledger is as it was before the call. All token
// arithmetic is checked; balances never go negative and a tick can never
// charge more than tier price times the number of begun periods. Advisory
// bookkeeping such as attribution weights saturates instead of failing, so
// it can never block a charge.
//
// # Integration
//
// Tally integrates with the Forgery ecosystem:
//
//   - Forge: lifecycle and dependency injection via the extension package
//   - Grove: SQL persistence behind the Postgres and SQLite stores
//   - Chronicle: audit trail via the audithook package
//
// # TypeID
//
// All actors use TypeID for globally unique, type-safe identifiers:
//
//	app_01h2xcejqtf2nbrexx3vqjhp41   // App ID
//	node_01h2xcejqtf2nbrexx3vqjhp41  // Node ID
//	insp_01h455vb4pex5vsknk084sn02q  // Inspector ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering. Tier identifiers are deliberately not
// TypeIDs: they are small integers assigned by the operator, with 0
// reserved as "unset".
package tally
