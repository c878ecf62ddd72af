package availability

import (
	"testing"
	"time"
)

func tr(state State, at time.Time) *Transition {
	return &Transition{State: state, At: at}
}

func TestRatio(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		initial     State
		transitions []*Transition
		from, to    time.Time
		want        float64
	}{
		{
			name:    "no transitions online",
			initial: StateOnline,
			from:    t0,
			to:      t0.Add(time.Hour),
			want:    1,
		},
		{
			name:    "no transitions offline",
			initial: StateOffline,
			from:    t0,
			to:      t0.Add(time.Hour),
			want:    0,
		},
		{
			name:    "offline then online splits window",
			initial: StateOnline,
			transitions: []*Transition{
				tr(StateOffline, t0),
				tr(StateOnline, t0.Add(10*time.Minute)),
			},
			from: t0,
			to:   t0.Add(20 * time.Minute),
			want: 0.5,
		},
		{
			name:    "transition before window reseeds state",
			initial: StateOnline,
			transitions: []*Transition{
				tr(StateOffline, t0.Add(-time.Hour)),
			},
			from: t0,
			to:   t0.Add(time.Hour),
			want: 0,
		},
		{
			name:    "transition after window ignored",
			initial: StateOnline,
			transitions: []*Transition{
				tr(StateOffline, t0.Add(2 * time.Hour)),
			},
			from: t0,
			to:   t0.Add(time.Hour),
			want: 1,
		},
		{
			name:    "offline tail",
			initial: StateOnline,
			transitions: []*Transition{
				tr(StateOffline, t0.Add(45 * time.Minute)),
			},
			from: t0,
			to:   t0.Add(time.Hour),
			want: 0.75,
		},
		{
			name:    "alternating segments",
			initial: StateOffline,
			transitions: []*Transition{
				tr(StateOnline, t0.Add(10*time.Minute)),
				tr(StateOffline, t0.Add(20*time.Minute)),
				tr(StateOnline, t0.Add(30*time.Minute)),
			},
			from: t0,
			to:   t0.Add(40 * time.Minute),
			want: 0.5,
		},
		{
			name:    "empty window reports instantaneous state",
			initial: StateOffline,
			transitions: []*Transition{
				tr(StateOnline, t0.Add(-time.Minute)),
			},
			from: t0,
			to:   t0,
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ratio(tt.initial, tt.transitions, tt.from, tt.to)
			if got != tt.want {
				t.Errorf("Ratio() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStateOnline(t *testing.T) {
	if !StateOnline.Online() {
		t.Error("StateOnline.Online() = false, want true")
	}
	if StateOffline.Online() {
		t.Error("StateOffline.Online() = true, want false")
	}
}
