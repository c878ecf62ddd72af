package tally_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/inspector"
	"github.com/xraph/tally/metric"
	"github.com/xraph/tally/node"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/tier"
	"github.com/xraph/tally/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		operatorID := id.NewOperatorID()

		// Initialize Tally
		tl := tally.New(store,
			tally.WithOperator(operatorID),
			tally.WithLogger(slog.Default()),
		)

		// Start the engine
		ctx := context.Background()
		if err := tl.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer tl.Stop()

		// Register a tier
		err := tl.SetTier(ctx, operatorID, &tier.Tier{
			ID:            1,
			StorageBytes:  1 << 30,  // 1 GiB held
			TransferBytes: 10 << 30, // 10 GiB transfer per period
			Price:         30,
		})
		if err != nil {
			t.Fatal(err)
		}

		// An App opens its subscription by depositing
		appID := id.NewAppID()
		if err := tl.Deposit(ctx, appID, 100); err != nil {
			t.Fatal(err)
		}

		// Settle the periods that have begun
		consumed, err := tl.Tick(ctx, appID)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("charged %s for the period\n", consumed)

		status, err := tl.Status(ctx, appID)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("balance %s, paid through %s\n", status.Balance, status.PaidThrough)

		// Inspectors report what nodes served
		n := &node.Node{URL: "https://node.example"}
		if err := tl.AddNode(ctx, operatorID, n); err != nil {
			t.Fatal(err)
		}
		ins := &inspector.Inspector{Name: "probe"}
		if err := tl.AddInspector(ctx, operatorID, ins); err != nil {
			t.Fatal(err)
		}

		day := metric.DayOf(time.Now())
		served := metric.Counters{StoredBytes: 4 << 20, ReadBytes: 1 << 20}
		if err := tl.Report(ctx, ins.ID, appID, n.ID, day, served); err != nil {
			t.Fatal(err)
		}

		rollup, err := tl.RollupByApp(ctx, appID, metric.Window{From: day, To: day})
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("stored %d bytes over %d records\n", rollup.Totals.StoredBytes, rollup.Records)
	})

	// Test Tokens type examples
	t.Run("TokensExamples", func(t *testing.T) {
		// Arithmetic is checked: overflow surfaces as an error instead
		// of wrapping.
		t1 := types.Tokens(100)
		t2 := types.Tokens(200)
		sum, _ := t1.Add(t2)  // 300
		diff, _ := t2.Sub(t1) // 100
		tripled, _ := t1.Mul(3)

		_ = sum
		_ = diff
		_ = tripled

		// Comparison
		if t1.Min(t2) != t1 {
			t.Fatal("Min misordered")
		}

		// Formatting
		_ = t1.String() // "100"
	})
}
