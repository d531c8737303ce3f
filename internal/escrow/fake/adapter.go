// Package fake provides a deterministic in-memory escrow backend for tests.
// Confirmation is advanced by poll count, never by wall-clock sleeps, and
// failures are scripted per operation.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/escrow"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/secret"
)

type entry struct {
	params escrow.CreateParams
	state  escrow.State
	polls  int
	secret []byte
}

// Adapter implements escrow.Adapter against an in-memory map.
type Adapter struct {
	mu      sync.Mutex
	chainID string
	now     func() time.Time
	seq     int
	escrows map[escrow.Ref]*entry

	// FundAfterPolls is how many GetState calls a pending escrow sees
	// before it reports Funded. Zero funds on the first poll.
	FundAfterPolls int

	// OnCreate, when set, observes every successful CreateEscrow.
	OnCreate func(p escrow.CreateParams)

	failures map[string][]error
}

func New(chainID string) *Adapter {
	return &Adapter{
		chainID:  chainID,
		now:      time.Now,
		escrows:  map[escrow.Ref]*entry{},
		failures: map[string][]error{},
	}
}

// SetNow overrides the adapter clock for timelock checks.
func (a *Adapter) SetNow(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

// FailNext queues errors to return from the named operation ("create",
// "release", "refund", "getstate", "revealedsecret") before it succeeds
// again.
func (a *Adapter) FailNext(op string, errs ...error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[op] = append(a.failures[op], errs...)
}

func (a *Adapter) popFailure(op string) error {
	q := a.failures[op]
	if len(q) == 0 {
		return nil
	}
	err := q[0]
	a.failures[op] = q[1:]
	return err
}

func (a *Adapter) ChainID() string { return a.chainID }

func (a *Adapter) CreateEscrow(_ context.Context, p escrow.CreateParams) (escrow.Ref, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.popFailure("create"); err != nil {
		return "", err
	}

	// At-least-once: re-creating for the same swap returns the existing ref.
	for ref, e := range a.escrows {
		if e.params.SwapID == p.SwapID {
			return ref, nil
		}
	}

	a.seq++
	ref := escrow.Ref(fmt.Sprintf("%s-escrow-%d", a.chainID, a.seq))
	a.escrows[ref] = &entry{params: p, state: escrow.StatePending}
	if a.OnCreate != nil {
		a.OnCreate(p)
	}
	return ref, nil
}

func (a *Adapter) GetState(_ context.Context, ref escrow.Ref) (escrow.State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.popFailure("getstate"); err != nil {
		return escrow.StateUnknown, err
	}
	e, ok := a.escrows[ref]
	if !ok {
		return escrow.StateUnknown, escrow.ErrNotFound
	}
	if e.state == escrow.StatePending {
		e.polls++
		if e.polls > a.FundAfterPolls {
			e.state = escrow.StateFunded
		}
	}
	return e.state, nil
}

func (a *Adapter) Release(_ context.Context, ref escrow.Ref, secretBytes []byte) (escrow.Receipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.popFailure("release"); err != nil {
		return escrow.Receipt{}, err
	}
	e, ok := a.escrows[ref]
	if !ok {
		return escrow.Receipt{}, escrow.ErrNotFound
	}

	ok, err := secret.Verify(secretBytes, e.params.Hashlock)
	if err != nil || !ok {
		return escrow.Receipt{}, fmt.Errorf("preimage mismatch: %w", escrow.ErrRejected)
	}
	if !a.now().Before(e.params.Timelock) {
		return escrow.Receipt{}, escrow.ErrTimelockExpired
	}

	switch e.state {
	case escrow.StateResolved:
		// Idempotent replay of a finalized release.
		return a.receipt(ref, "release"), nil
	case escrow.StateRefunded:
		return escrow.Receipt{}, escrow.ErrAlreadyFinalized
	case escrow.StateFunded:
	default:
		return escrow.Receipt{}, fmt.Errorf("escrow not funded: %w", escrow.ErrRejected)
	}

	e.state = escrow.StateResolved
	e.secret = append([]byte(nil), secretBytes...)
	return a.receipt(ref, "release"), nil
}

func (a *Adapter) Refund(_ context.Context, ref escrow.Ref) (escrow.Receipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.popFailure("refund"); err != nil {
		return escrow.Receipt{}, err
	}
	e, ok := a.escrows[ref]
	if !ok {
		return escrow.Receipt{}, escrow.ErrNotFound
	}

	switch e.state {
	case escrow.StateRefunded:
		return a.receipt(ref, "refund"), nil
	case escrow.StateResolved:
		return escrow.Receipt{}, escrow.ErrAlreadyFinalized
	}
	if a.now().Before(e.params.Timelock) {
		return escrow.Receipt{}, escrow.ErrTimelockNotExpired
	}

	e.state = escrow.StateRefunded
	return a.receipt(ref, "refund"), nil
}

func (a *Adapter) RevealedSecret(_ context.Context, ref escrow.Ref) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.popFailure("revealedsecret"); err != nil {
		return nil, err
	}
	e, ok := a.escrows[ref]
	if !ok {
		return nil, escrow.ErrNotFound
	}
	if e.state != escrow.StateResolved {
		return nil, escrow.ErrSecretNotRevealed
	}
	return append([]byte(nil), e.secret...), nil
}

// SetEscrowState forces an escrow into a state, for crash-resume scenarios.
func (a *Adapter) SetEscrowState(ref escrow.Ref, st escrow.State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.escrows[ref]; ok {
		e.state = st
	}
}

// EscrowState reads current state without advancing the funding poll count.
func (a *Adapter) EscrowState(ref escrow.Ref) escrow.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.escrows[ref]; ok {
		return e.state
	}
	return escrow.StateUnknown
}

func (a *Adapter) receipt(ref escrow.Ref, op string) escrow.Receipt {
	return escrow.Receipt{TxHash: fmt.Sprintf("%s-%s-tx", ref, op), BlockHeight: uint64(a.seq)}
}
