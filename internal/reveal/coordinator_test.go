package reveal

import (
	"context"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/escrow"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/escrow/fake"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/ledger"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/secret"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/swap"
)

type fixture struct {
	coordinator *Coordinator
	ledger      *ledger.Ledger
	source      *fake.Adapter
	dest        *fake.Adapter
	pair        secret.Pair
	rec         *swap.Record
}

// newFixture builds a swap with both escrows funded, ready for reveal.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ldg := ledger.New(logger, ledger.NewMemoryStore())
	source := fake.New("ethereum")
	dest := fake.New("near")

	pair, err := secret.Generate()
	require.NoError(t, err)

	swapID := uuid.New()
	ctx := context.Background()

	sourceRef, err := source.CreateEscrow(ctx, escrow.CreateParams{
		SwapID:      swapID,
		Amount:      big.NewInt(100),
		Hashlock:    pair.Hashlock,
		Timelock:    time.Now().Add(2 * time.Hour),
		Beneficiary: "0xresolver",
	})
	require.NoError(t, err)
	source.SetEscrowState(sourceRef, escrow.StateFunded)

	destRef, err := dest.CreateEscrow(ctx, escrow.CreateParams{
		SwapID:      swapID,
		Amount:      big.NewInt(210),
		Hashlock:    pair.Hashlock,
		Timelock:    time.Now().Add(time.Hour),
		Beneficiary: "maker.near",
	})
	require.NoError(t, err)
	dest.SetEscrowState(destRef, escrow.StateFunded)

	rec := &swap.Record{
		SwapID:   swapID,
		IntentID: uuid.New(),
		BidID:    uuid.New(),
		State:    swap.StateDestEscrowFunded,
		Hashlock: pair.Hashlock,
		Source: swap.Leg{
			ChainID:  "ethereum",
			Ref:      sourceRef,
			Amount:   big.NewInt(100),
			Timelock: time.Now().Add(2 * time.Hour),
		},
		Dest: swap.Leg{
			ChainID:  "near",
			Ref:      destRef,
			Amount:   big.NewInt(210),
			Timelock: time.Now().Add(time.Hour),
		},
	}
	require.NoError(t, ldg.Create(ctx, rec))

	coordinator := New(logger, ldg, source, dest, Config{
		RetryInterval:    time.Millisecond,
		MaxFirstAttempts: 3,
	})

	return &fixture{
		coordinator: coordinator,
		ledger:      ldg,
		source:      source,
		dest:        dest,
		pair:        pair,
		rec:         rec,
	}
}

func TestCompleteSwap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.coordinator.CompleteSwap(ctx, f.rec.SwapID, f.pair.Secret))

	require.Equal(t, escrow.StateResolved, f.dest.EscrowState(f.rec.Dest.Ref))
	require.Equal(t, escrow.StateResolved, f.source.EscrowState(f.rec.Source.Ref))

	stored, err := f.ledger.Get(ctx, f.rec.SwapID)
	require.NoError(t, err)
	require.Equal(t, swap.StateCompleted, stored.State)
	require.Equal(t, f.pair.Secret, stored.Secret)
}

func TestCompleteSwapIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.coordinator.CompleteSwap(ctx, f.rec.SwapID, f.pair.Secret))
	require.NoError(t, f.coordinator.CompleteSwap(ctx, f.rec.SwapID, f.pair.Secret))

	stored, err := f.ledger.Get(ctx, f.rec.SwapID)
	require.NoError(t, err)
	require.Equal(t, swap.StateCompleted, stored.State)
}

func TestCompleteSwapRejectsWrongSecret(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	wrong, err := secret.Generate()
	require.NoError(t, err)

	err = f.coordinator.CompleteSwap(ctx, f.rec.SwapID, wrong.Secret)
	var violation *swap.ProtocolViolation
	require.ErrorAs(t, err, &violation)

	// Nothing was disclosed or released.
	require.Equal(t, escrow.StateFunded, f.dest.EscrowState(f.rec.Dest.Ref))
	stored, er := f.ledger.Get(ctx, f.rec.SwapID)
	require.NoError(t, er)
	require.Equal(t, swap.StateDestEscrowFunded, stored.State)
}

func TestCompleteSwapRejectsUnfundedSwap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stored, err := f.ledger.Get(ctx, f.rec.SwapID)
	require.NoError(t, err)
	stored.State = swap.StateSourceEscrowFunded
	require.NoError(t, f.ledger.Save(ctx, stored))

	err = f.coordinator.CompleteSwap(ctx, f.rec.SwapID, f.pair.Secret)
	require.Error(t, err)
}

func TestCompleteSwapRetriesSecondRelease(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// The secret is public after the first release; the second must be
	// retried through transient failures, not abandoned.
	f.source.FailNext("release",
		escrow.ErrNetworkUnavailable,
		escrow.ErrNetworkUnavailable,
	)

	require.NoError(t, f.coordinator.CompleteSwap(ctx, f.rec.SwapID, f.pair.Secret))
	require.Equal(t, escrow.StateResolved, f.source.EscrowState(f.rec.Source.Ref))
}

func TestCompleteSwapFirstReleaseFailureRoutesToRefunding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Permanent rejection before any disclosure: both escrows are intact,
	// so the refund path is safe.
	f.dest.FailNext("release", escrow.ErrRejected, escrow.ErrRejected, escrow.ErrRejected, escrow.ErrRejected)

	err := f.coordinator.CompleteSwap(ctx, f.rec.SwapID, f.pair.Secret)
	require.Error(t, err)

	stored, er := f.ledger.Get(ctx, f.rec.SwapID)
	require.NoError(t, er)
	require.Equal(t, swap.StateRefunding, stored.State)
	require.Equal(t, escrow.StateFunded, f.dest.EscrowState(f.rec.Dest.Ref))
}

func TestCompleteSwapDetectsLandedFirstRelease(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// The release transaction landed but every confirmation read failed.
	// The secret is already public, so routing to refund here would let the
	// maker keep both assets.
	_, err := f.dest.Release(ctx, f.rec.Dest.Ref, f.pair.Secret)
	require.NoError(t, err)
	f.dest.FailNext("release",
		escrow.ErrNetworkUnavailable,
		escrow.ErrNetworkUnavailable,
		escrow.ErrNetworkUnavailable,
		escrow.ErrNetworkUnavailable,
	)

	require.NoError(t, f.coordinator.CompleteSwap(ctx, f.rec.SwapID, f.pair.Secret))

	require.Equal(t, escrow.StateResolved, f.source.EscrowState(f.rec.Source.Ref))
	stored, err := f.ledger.Get(ctx, f.rec.SwapID)
	require.NoError(t, err)
	require.Equal(t, swap.StateCompleted, stored.State)
	require.Equal(t, f.pair.Secret, stored.Secret)
}

func TestCompleteSwapKeepsRevealingWhenDisclosureUnknown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Release failed and the disclosure read failed too; without proof of
	// non-disclosure the swap must not enter the refund path.
	f.dest.FailNext("release",
		escrow.ErrNetworkUnavailable,
		escrow.ErrNetworkUnavailable,
		escrow.ErrNetworkUnavailable,
		escrow.ErrNetworkUnavailable,
	)
	f.dest.FailNext("revealedsecret", escrow.ErrNetworkUnavailable)

	err := f.coordinator.CompleteSwap(ctx, f.rec.SwapID, f.pair.Secret)
	require.Error(t, err)

	stored, er := f.ledger.Get(ctx, f.rec.SwapID)
	require.NoError(t, er)
	require.Equal(t, swap.StateRevealing, stored.State)
	require.Equal(t, escrow.StateFunded, f.dest.EscrowState(f.rec.Dest.Ref))
}

func TestCompleteSwapRecoversSecretFromChain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Crash scenario: the first release landed, then the process died with
	// the secret only ever held in memory.
	_, err := f.dest.Release(ctx, f.rec.Dest.Ref, f.pair.Secret)
	require.NoError(t, err)

	stored, err := f.ledger.Get(ctx, f.rec.SwapID)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Transition(ctx, stored, swap.StateRevealing))

	require.NoError(t, f.coordinator.CompleteSwap(ctx, f.rec.SwapID, nil))

	require.Equal(t, escrow.StateResolved, f.source.EscrowState(f.rec.Source.Ref))
	final, err := f.ledger.Get(ctx, f.rec.SwapID)
	require.NoError(t, err)
	require.Equal(t, swap.StateCompleted, final.State)
	require.Equal(t, f.pair.Secret, final.Secret)
}

func TestCompleteSwapSecretLostBeforeDisclosure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Crash scenario: Revealing was persisted but the first release never
	// landed. The secret is unrecoverable and nothing was disclosed, so the
	// swap must refund rather than hang.
	stored, err := f.ledger.Get(ctx, f.rec.SwapID)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Transition(ctx, stored, swap.StateRevealing))

	err = f.coordinator.CompleteSwap(ctx, f.rec.SwapID, nil)
	require.ErrorIs(t, err, escrow.ErrSecretNotRevealed)

	final, er := f.ledger.Get(ctx, f.rec.SwapID)
	require.NoError(t, er)
	require.Equal(t, swap.StateRefunding, final.State)
}
