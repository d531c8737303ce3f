package swap

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("swap not found")
	ErrIntentNotFound   = errors.New("intent not found")
	ErrIntentExpired    = errors.New("intent expired")
	ErrIntentCancelled  = errors.New("intent cancelled")
	ErrRateBelowFloor   = errors.New("bid rate below intent floor")
	ErrNoEligibleBid    = errors.New("no eligible bid")
	ErrCancelNotAllowed = errors.New("cancel not allowed once escrow creation started")
	ErrOverfill         = errors.New("bid input exceeds remaining intent amount")
)

// ValidationError rejects a malformed intent or bid synchronously, before
// any state is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProtocolViolation marks a non-retryable protocol breach: invalid secret,
// expired timelock, double-spend attempt. The swap routes to Failed or
// Refunding, never back through a retry loop.
type ProtocolViolation struct {
	SwapID string
	Reason string
	Err    error
}

func (e *ProtocolViolation) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol violation on swap %s: %s: %v", e.SwapID, e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol violation on swap %s: %s", e.SwapID, e.Reason)
}

func (e *ProtocolViolation) Unwrap() error { return e.Err }

// InvalidTransition reports an attempted illegal state-machine edge.
type InvalidTransition struct {
	From State
	To   State
}

func (e *InvalidTransition) Error() string {
	return fmt.Sprintf("invalid swap state transition %s -> %s", e.From, e.To)
}
