package escrow

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/secret"
)

// State mirrors finalized escrow state on chain, never merely broadcast state.
type State string

const (
	StateUnknown  State = "UNKNOWN"
	StatePending  State = "PENDING"
	StateFunded   State = "FUNDED"
	StateResolved State = "RESOLVED"
	StateRefunded State = "REFUNDED"
)

// Ref is an opaque chain-specific escrow reference: a contract escrow id on
// EVM, an escrow record key on an action-based chain.
type Ref string

// Receipt references the finalized transaction that moved an escrow.
type Receipt struct {
	TxHash      string
	BlockHeight uint64
}

// CreateParams carries everything a chain integration needs to lock funds.
type CreateParams struct {
	SwapID      uuid.UUID
	Token       string
	Amount      *big.Int
	Hashlock    secret.Hashlock
	Timelock    time.Time
	Depositor   string
	Beneficiary string
}

// Adapter is the capability interface each chain integration implements.
// All calls are idempotent under retry: the coordinator runs at-least-once
// and may replay any step after a crash. Implementations never expose
// private keys to the caller; signing happens behind this boundary.
type Adapter interface {
	ChainID() string

	// CreateEscrow locks funds and returns once the lock transaction either
	// finalized or failed. No partial locks surface to the caller.
	CreateEscrow(ctx context.Context, p CreateParams) (Ref, error)

	// Release claims the escrow with the secret. Implementations re-verify
	// the preimage against the stored hashlock and reject expired escrows
	// before submitting anything.
	Release(ctx context.Context, ref Ref, secretBytes []byte) (Receipt, error)

	// Refund returns funds to the depositor. Rejected before the timelock
	// and on already-finalized escrows.
	Refund(ctx context.Context, ref Ref) (Receipt, error)

	// GetState reads finalized escrow state.
	GetState(ctx context.Context, ref Ref) (State, error)

	// RevealedSecret reads the preimage back from the chain once a release
	// for ref finalized. This is how a restarted coordinator recovers a
	// secret it only ever held in memory.
	RevealedSecret(ctx context.Context, ref Ref) ([]byte, error)
}
