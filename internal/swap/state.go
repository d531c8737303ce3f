package swap

// State is the swap lifecycle state. Transitions are persisted to the ledger
// before the chain call they gate, so a restart resumes from the last
// durable state with at-least-once adapter semantics.
type State string

const (
	StateCreated             State = "CREATED"
	StateSourceEscrowPending State = "SOURCE_ESCROW_PENDING"
	StateSourceEscrowFunded  State = "SOURCE_ESCROW_FUNDED"
	StateDestEscrowPending   State = "DEST_ESCROW_PENDING"
	StateDestEscrowFunded    State = "DEST_ESCROW_FUNDED"
	StateRevealing           State = "REVEALING"
	StateCompleted           State = "COMPLETED"
	StateRefunding           State = "REFUNDING"
	StateRefunded            State = "REFUNDED"
	StateFailed              State = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateRefunded, StateFailed:
		return true
	}
	return false
}

// Refundable reports whether the refund path may be entered from s. Any
// pending or funded state qualifies; Revealing does not, the reveal
// coordinator owns the swap from there until completion or timelock expiry.
func (s State) Refundable() bool {
	switch s {
	case StateSourceEscrowPending, StateSourceEscrowFunded,
		StateDestEscrowPending, StateDestEscrowFunded, StateRefunding:
		return true
	}
	return false
}

var validNext = map[State][]State{
	StateCreated:             {StateSourceEscrowPending, StateFailed},
	StateSourceEscrowPending: {StateSourceEscrowFunded, StateRefunding, StateFailed},
	StateSourceEscrowFunded:  {StateDestEscrowPending, StateRefunding},
	StateDestEscrowPending:   {StateDestEscrowFunded, StateRefunding},
	StateDestEscrowFunded:    {StateRevealing, StateRefunding},
	StateRevealing:           {StateCompleted, StateRefunding},
	StateRefunding:           {StateRefunded},
}

// CanTransition reports whether s -> next is a legal edge.
func (s State) CanTransition(next State) bool {
	for _, n := range validNext[s] {
		if n == next {
			return true
		}
	}
	return false
}
