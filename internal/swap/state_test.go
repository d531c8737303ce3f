package swap

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"created to source pending", StateCreated, StateSourceEscrowPending, true},
		{"created to failed", StateCreated, StateFailed, true},
		{"source pending to funded", StateSourceEscrowPending, StateSourceEscrowFunded, true},
		{"source funded to dest pending", StateSourceEscrowFunded, StateDestEscrowPending, true},
		{"dest pending to funded", StateDestEscrowPending, StateDestEscrowFunded, true},
		{"dest funded to revealing", StateDestEscrowFunded, StateRevealing, true},
		{"revealing to completed", StateRevealing, StateCompleted, true},
		{"revealing to refunding", StateRevealing, StateRefunding, true},
		{"refunding to refunded", StateRefunding, StateRefunded, true},

		{"skip source funding", StateCreated, StateDestEscrowPending, false},
		{"created straight to completed", StateCreated, StateCompleted, false},
		{"source funded to failed", StateSourceEscrowFunded, StateFailed, false},
		{"backwards", StateDestEscrowFunded, StateSourceEscrowFunded, false},
		{"completed is terminal", StateCompleted, StateRefunding, false},
		{"refunded is terminal", StateRefunded, StateRefunding, false},
		{"failed is terminal", StateFailed, StateCreated, false},
		{"refunding to completed", StateRefunding, StateCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	terminal := []State{StateCompleted, StateRefunded, StateFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	active := []State{
		StateCreated, StateSourceEscrowPending, StateSourceEscrowFunded,
		StateDestEscrowPending, StateDestEscrowFunded, StateRevealing, StateRefunding,
	}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestRefundable(t *testing.T) {
	refundable := []State{
		StateSourceEscrowPending, StateSourceEscrowFunded,
		StateDestEscrowPending, StateDestEscrowFunded, StateRefunding,
	}
	for _, s := range refundable {
		if !s.Refundable() {
			t.Errorf("%s should be refundable", s)
		}
	}

	// Revealing swaps belong to the reveal coordinator; refunding one could
	// strand a half-claimed swap.
	notRefundable := []State{
		StateCreated, StateRevealing, StateCompleted, StateRefunded, StateFailed,
	}
	for _, s := range notRefundable {
		if s.Refundable() {
			t.Errorf("%s should not be refundable", s)
		}
	}
}
