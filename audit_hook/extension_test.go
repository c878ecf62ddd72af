package audithook_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	audithook "github.com/xraph/tally/audit_hook"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/subscription"
)

// captureRecorder collects every event it is handed.
type captureRecorder struct {
	events []*audithook.AuditEvent
	err    error
}

func (c *captureRecorder) Record(_ context.Context, evt *audithook.AuditEvent) error {
	c.events = append(c.events, evt)
	return c.err
}

func TestDepositEventCarriesAppAndAmount(t *testing.T) {
	rec := &captureRecorder{}
	hook := audithook.New(rec)

	app := id.NewAppID()
	sub := &subscription.Subscription{App: app}
	if err := hook.OnDeposited(context.Background(), sub, 500); err != nil {
		t.Fatalf("OnDeposited: %v", err)
	}

	if len(rec.events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(rec.events))
	}
	evt := rec.events[0]
	if evt.Action != audithook.ActionDeposited {
		t.Errorf("action = %q, want %q", evt.Action, audithook.ActionDeposited)
	}
	if evt.ResourceID != app.String() {
		t.Errorf("resource id = %q, want %q", evt.ResourceID, app)
	}
	if evt.Category != audithook.CategoryBilling {
		t.Errorf("category = %q, want %q", evt.Category, audithook.CategoryBilling)
	}
	if got := evt.Metadata["amount"]; got != uint64(500) {
		t.Errorf("amount metadata = %v, want 500", got)
	}
}

func TestEnabledActionsFilterOthersOut(t *testing.T) {
	rec := &captureRecorder{}
	hook := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionSuspended))

	sub := &subscription.Subscription{App: id.NewAppID()}
	if err := hook.OnDeposited(context.Background(), sub, 10); err != nil {
		t.Fatalf("OnDeposited: %v", err)
	}
	if err := hook.OnSuspended(context.Background(), sub); err != nil {
		t.Fatalf("OnSuspended: %v", err)
	}

	if len(rec.events) != 1 {
		t.Fatalf("recorded %d events, want only the suspension", len(rec.events))
	}
	if rec.events[0].Action != audithook.ActionSuspended {
		t.Errorf("action = %q, want %q", rec.events[0].Action, audithook.ActionSuspended)
	}
}

func TestDisabledActionsAreSkipped(t *testing.T) {
	rec := &captureRecorder{}
	hook := audithook.New(rec, audithook.WithDisabledActions(audithook.ActionCharged))

	sub := &subscription.Subscription{App: id.NewAppID()}
	if err := hook.OnCharged(context.Background(), sub, 42); err != nil {
		t.Fatalf("OnCharged: %v", err)
	}
	if err := hook.OnCanceled(context.Background(), sub, 7); err != nil {
		t.Fatalf("OnCanceled: %v", err)
	}

	if len(rec.events) != 1 {
		t.Fatalf("recorded %d events, want only the cancellation", len(rec.events))
	}
	if rec.events[0].Action != audithook.ActionCanceled {
		t.Errorf("action = %q, want %q", rec.events[0].Action, audithook.ActionCanceled)
	}
}

func TestRecorderFailureDoesNotPropagate(t *testing.T) {
	rec := &captureRecorder{err: errors.New("trail unavailable")}
	hook := audithook.New(rec, audithook.WithLogger(slog.New(slog.DiscardHandler)))

	sub := &subscription.Subscription{App: id.NewAppID()}
	if err := hook.OnDeposited(context.Background(), sub, 10); err != nil {
		t.Fatalf("OnDeposited surfaced recorder error: %v", err)
	}
}

func TestMergesStayOutOfTheTrail(t *testing.T) {
	rec := &captureRecorder{}
	hook := audithook.New(rec)

	if err := hook.OnMerged(context.Background(), nil); err != nil {
		t.Fatalf("OnMerged: %v", err)
	}
	if len(rec.events) != 0 {
		t.Errorf("recorded %d events for a merge, want none", len(rec.events))
	}
}
