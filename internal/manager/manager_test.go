package manager

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
	manager *Manager
	ledger  *ledger.Ledger
	source  *fake.Adapter
	dest    *fake.Adapter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ldg := ledger.New(logger, ledger.NewMemoryStore())
	source := fake.New("ethereum")
	dest := fake.New("near")

	mgr, err := New(logger, ldg, source, dest, Config{
		ConfirmInterval: time.Millisecond,
		ConfirmCeiling:  time.Second,
		MaxAttempts:     3,
		SourceTimelock:  2 * time.Hour,
		DestTimelock:    time.Hour,
	})
	require.NoError(t, err)

	return &fixture{manager: mgr, ledger: ldg, source: source, dest: dest}
}

func newOrder() (*swap.Intent, *swap.Bid) {
	intent := &swap.Intent{
		ID:                  uuid.New(),
		MakerAsset:          swap.Asset{ChainID: "ethereum", Token: "0xusdc"},
		TakerAsset:          swap.Asset{ChainID: "near", Token: "usdc.near"},
		MakerAmount:         big.NewInt(100),
		TakerAmount:         big.NewInt(200),
		CounterpartyAddress: "maker.near",
	}
	bid := &swap.Bid{
		ID:           uuid.New(),
		IntentID:     intent.ID,
		ResolverID:   "0xresolver",
		InputAmount:  big.NewInt(100),
		OutputAmount: big.NewInt(210),
	}
	return intent, bid
}

func TestNewRejectsUnsafeTimelocks(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	ldg := ledger.New(logger, ledger.NewMemoryStore())

	// The destination timelock must expire strictly before the source one,
	// or the counterparty could claim with the secret after the resolver's
	// refund window already opened.
	_, err := New(logger, ldg, fake.New("a"), fake.New("b"), Config{
		SourceTimelock: time.Hour,
		DestTimelock:   time.Hour,
	})
	require.Error(t, err)

	_, err = New(logger, ldg, fake.New("a"), fake.New("b"), Config{
		SourceTimelock: time.Hour,
		DestTimelock:   2 * time.Hour,
	})
	require.Error(t, err)
}

func TestExecuteFundsBothEscrows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	intent, bid := newOrder()

	rec, secretBytes, err := f.manager.Execute(ctx, intent, bid)
	require.NoError(t, err)
	require.Equal(t, swap.StateDestEscrowFunded, rec.State)
	require.NotEmpty(t, rec.Source.Ref)
	require.NotEmpty(t, rec.Dest.Ref)

	require.Equal(t, escrow.StateFunded, f.source.EscrowState(rec.Source.Ref))
	require.Equal(t, escrow.StateFunded, f.dest.EscrowState(rec.Dest.Ref))

	// The returned secret commits to the hashlock both escrows were
	// created with, and is never persisted before reveal.
	ok, err := secret.Verify(secretBytes, rec.Hashlock)
	require.NoError(t, err)
	require.True(t, ok)
	stored, err := f.ledger.Get(ctx, rec.SwapID)
	require.NoError(t, err)
	require.Empty(t, stored.Secret)

	require.True(t, rec.Dest.Timelock.Before(rec.Source.Timelock))
	require.Equal(t, "0xresolver", rec.Source.Beneficiary)
	require.Equal(t, "maker.near", rec.Dest.Beneficiary)
}

func TestExecuteOrdersLegs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	intent, bid := newOrder()

	// The destination escrow must never be created before the source leg
	// is observed funded.
	sourceFundedFirst := false
	f.dest.OnCreate = func(escrow.CreateParams) {
		sourceFundedFirst = f.source.EscrowState("ethereum-escrow-1") == escrow.StateFunded
	}

	_, _, err := f.manager.Execute(ctx, intent, bid)
	require.NoError(t, err)
	require.True(t, sourceFundedFirst)
}

func TestExecuteRetriesNetworkErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	intent, bid := newOrder()

	f.source.FailNext("create", escrow.ErrNetworkUnavailable)
	f.dest.FailNext("getstate", escrow.ErrNetworkUnavailable)

	rec, _, err := f.manager.Execute(ctx, intent, bid)
	require.NoError(t, err)
	require.Equal(t, swap.StateDestEscrowFunded, rec.State)
}

func TestExecuteFailsBeforeFunding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	intent, bid := newOrder()

	f.source.FailNext("create", escrow.ErrInsufficientFunds)

	rec, _, err := f.manager.Execute(ctx, intent, bid)
	require.ErrorIs(t, err, escrow.ErrInsufficientFunds)
	// No chain state exists, so plain failure, not the refund path.
	require.Equal(t, swap.StateFailed, rec.State)
}

func TestExecuteRoutesToRefundingAfterFunding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	intent, bid := newOrder()

	f.dest.FailNext("create", escrow.ErrRejected)

	rec, _, err := f.manager.Execute(ctx, intent, bid)
	require.ErrorIs(t, err, escrow.ErrRejected)
	// The source escrow holds funds; the refund watcher takes it from here.
	require.Equal(t, swap.StateRefunding, rec.State)
	require.Equal(t, escrow.StateFunded, f.source.EscrowState(rec.Source.Ref))
}

func TestExecuteReplayResumesExistingSwap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	intent, bid := newOrder()

	first, _, err := f.manager.Execute(ctx, intent, bid)
	require.NoError(t, err)

	// At-least-once task delivery: the same bid must not spawn a second
	// swap or a second pair of escrows.
	replay, secretBytes, err := f.manager.Execute(ctx, intent, bid)
	require.NoError(t, err)
	require.Equal(t, first.SwapID, replay.SwapID)
	require.Nil(t, secretBytes)

	recs, err := f.ledger.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestResumeRedrivesFromDurableState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	intent, bid := newOrder()

	// Crash after the source escrow funded but before the dest leg started.
	pair, err := secret.Generate()
	require.NoError(t, err)
	ref, err := f.source.CreateEscrow(ctx, escrow.CreateParams{
		SwapID:      uuid.New(),
		Hashlock:    pair.Hashlock,
		Timelock:    time.Now().Add(2 * time.Hour),
		Beneficiary: bid.ResolverID,
	})
	require.NoError(t, err)
	f.source.SetEscrowState(ref, escrow.StateFunded)

	rec := &swap.Record{
		SwapID:   uuid.New(),
		IntentID: intent.ID,
		BidID:    bid.ID,
		State:    swap.StateSourceEscrowFunded,
		Hashlock: pair.Hashlock,
		Source: swap.Leg{
			ChainID:  "ethereum",
			Ref:      ref,
			Amount:   big.NewInt(100),
			Timelock: time.Now().Add(2 * time.Hour),
		},
		Dest: swap.Leg{
			ChainID:     "near",
			Amount:      big.NewInt(210),
			Beneficiary: intent.CounterpartyAddress,
			Timelock:    time.Now().Add(time.Hour),
		},
	}
	require.NoError(t, f.ledger.Create(ctx, rec))

	resumed, err := f.manager.Resume(ctx, rec.SwapID)
	require.NoError(t, err)
	require.Equal(t, swap.StateDestEscrowFunded, resumed.State)
	require.NotEmpty(t, resumed.Dest.Ref)
	require.Equal(t, escrow.StateFunded, f.dest.EscrowState(resumed.Dest.Ref))
}

func TestResumeLeavesSettledSwapsAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, state := range []swap.State{swap.StateCompleted, swap.StateRevealing, swap.StateRefunding} {
		rec := &swap.Record{
			SwapID: uuid.New(),
			BidID:  uuid.New(),
			State:  state,
		}
		require.NoError(t, f.ledger.Create(ctx, rec))

		got, err := f.manager.Resume(ctx, rec.SwapID)
		require.NoError(t, err)
		require.Equal(t, state, got.State)
	}
}
