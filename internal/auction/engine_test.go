package auction

import (
	"context"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/swap"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *MemoryStore, *time.Time) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := NewMemoryStore()
	engine := NewEngine(logger, store)

	now := t0
	engine.SetNow(func() time.Time { return now })
	return engine, store, &now
}

// newIntent opens an auction for 100 maker units against a 200 taker-unit
// floor (rate 2.0), with a 10% premium decaying over 100 seconds.
func newIntent(partial bool) *swap.Intent {
	intent := &swap.Intent{
		MakerAsset:          swap.Asset{ChainID: "ethereum", Token: "0xusdc"},
		TakerAsset:          swap.Asset{ChainID: "near", Token: "usdc.near"},
		MakerAmount:         big.NewInt(100),
		TakerAmount:         big.NewInt(200),
		CounterpartyAddress: "maker.near",
		Deadline:            t0.Add(time.Hour),
		PremiumBips:         1000,
		AuctionWindow:       100 * time.Second,
	}
	if partial {
		intent.AllowPartialFill = true
		intent.MinFillAmount = big.NewInt(10)
	}
	return intent
}

func bid(resolver string, input, output int64) *swap.Bid {
	return &swap.Bid{
		ResolverID:   resolver,
		InputAmount:  big.NewInt(input),
		OutputAmount: big.NewInt(output),
	}
}

func TestCreateIntentValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*swap.Intent)
		field  string
	}{
		{"zero maker amount", func(i *swap.Intent) { i.MakerAmount = big.NewInt(0) }, "makerAmount"},
		{"nil taker amount", func(i *swap.Intent) { i.TakerAmount = nil }, "takerAmount"},
		{"missing counterparty", func(i *swap.Intent) { i.CounterpartyAddress = "" }, "counterpartyAddress"},
		{"past deadline", func(i *swap.Intent) { i.Deadline = t0.Add(-time.Minute) }, "deadline"},
		{"negative premium", func(i *swap.Intent) { i.PremiumBips = -1 }, "premiumBips"},
		{"partial without min fill", func(i *swap.Intent) {
			i.AllowPartialFill = true
			i.MinFillAmount = nil
		}, "minFillAmount"},
		{"min fill above maker amount", func(i *swap.Intent) {
			i.AllowPartialFill = true
			i.MinFillAmount = big.NewInt(101)
		}, "minFillAmount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _, _ := newTestEngine(t)
			intent := newIntent(false)
			tt.mutate(intent)

			err := engine.CreateIntent(context.Background(), intent)
			var ve *swap.ValidationError
			require.ErrorAs(t, err, &ve)
			require.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestSubmitBidBelowFloor(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)
	intent := newIntent(false)
	require.NoError(t, engine.CreateIntent(ctx, intent))

	// Rate 1.9 against a 2.0 floor.
	err := engine.SubmitBid(ctx, intent.ID, bid("r1", 100, 190))
	require.ErrorIs(t, err, swap.ErrRateBelowFloor)

	require.NoError(t, engine.SubmitBid(ctx, intent.ID, bid("r1", 100, 200)))
}

func TestSubmitBidLifecycleChecks(t *testing.T) {
	ctx := context.Background()
	engine, _, now := newTestEngine(t)

	intent := newIntent(false)
	require.NoError(t, engine.CreateIntent(ctx, intent))

	*now = t0.Add(2 * time.Hour)
	err := engine.SubmitBid(ctx, intent.ID, bid("r1", 100, 250))
	require.ErrorIs(t, err, swap.ErrIntentExpired)

	*now = t0
	cancelled := newIntent(false)
	require.NoError(t, engine.CreateIntent(ctx, cancelled))
	require.NoError(t, engine.CancelIntent(ctx, cancelled.ID))
	err = engine.SubmitBid(ctx, cancelled.ID, bid("r1", 100, 250))
	require.ErrorIs(t, err, swap.ErrIntentCancelled)
}

func TestSubmitBidReplacesActiveBid(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := newTestEngine(t)
	intent := newIntent(false)
	require.NoError(t, engine.CreateIntent(ctx, intent))

	require.NoError(t, engine.SubmitBid(ctx, intent.ID, bid("r1", 100, 210)))
	require.NoError(t, engine.SubmitBid(ctx, intent.ID, bid("r1", 100, 230)))
	require.NoError(t, engine.SubmitBid(ctx, intent.ID, bid("r2", 100, 220)))

	bids, err := store.ActiveBids(ctx, intent.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)

	byResolver := map[string]*swap.Bid{}
	for _, b := range bids {
		byResolver[b.ResolverID] = b
	}
	require.Equal(t, int64(230), byResolver["r1"].OutputAmount.Int64())
}

func TestCurrentFloorDecay(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	intent := newIntent(false)
	intent.AuctionStart = t0

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"auction start", t0, "2.2"},
		{"halfway", t0.Add(50 * time.Second), "2.1"},
		{"window elapsed", t0.Add(100 * time.Second), "2"},
		{"long after", t0.Add(time.Hour), "2"},
		{"before start", t0.Add(-time.Second), "2.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.CurrentFloor(intent, tt.at)
			require.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"CurrentFloor() = %s, want %s", got, tt.want)
		})
	}
}

func TestSelectWinnersWaitsForDecay(t *testing.T) {
	ctx := context.Background()
	engine, _, now := newTestEngine(t)
	intent := newIntent(false)
	require.NoError(t, engine.CreateIntent(ctx, intent))

	// Rate 2.1: above the static floor, below the 2.2 opening rate.
	require.NoError(t, engine.SubmitBid(ctx, intent.ID, bid("r1", 100, 210)))

	_, err := engine.SelectWinners(ctx, intent.ID)
	require.ErrorIs(t, err, swap.ErrNoEligibleBid)

	// Halfway through the window the floor has decayed to 2.1.
	*now = t0.Add(50 * time.Second)
	winners, err := engine.SelectWinners(ctx, intent.ID)
	require.NoError(t, err)
	require.Len(t, winners, 1)
	require.Equal(t, "r1", winners[0].ResolverID)
}

func TestSelectWinnersFullFill(t *testing.T) {
	ctx := context.Background()
	engine, _, now := newTestEngine(t)
	intent := newIntent(false)
	require.NoError(t, engine.CreateIntent(ctx, intent))
	*now = t0.Add(100 * time.Second)

	// A partial input is not eligible when the intent demands a full fill.
	require.NoError(t, engine.SubmitBid(ctx, intent.ID, bid("r1", 100, 240)))
	partialOnly := bid("r2", 40, 100)
	require.NoError(t, engine.SubmitBid(ctx, intent.ID, partialOnly))

	winners, err := engine.SelectWinners(ctx, intent.ID)
	require.NoError(t, err)
	require.Len(t, winners, 1)
	require.Equal(t, "r1", winners[0].ResolverID)
	require.False(t, winners[0].Active)

	got, err := engine.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100), got.FilledAmount.Int64())
	require.Equal(t, int64(0), got.Remaining().Int64())
}

func TestSelectWinnersPartialFill(t *testing.T) {
	ctx := context.Background()
	engine, _, now := newTestEngine(t)
	intent := newIntent(true)
	require.NoError(t, engine.CreateIntent(ctx, intent))
	*now = t0.Add(100 * time.Second)

	require.NoError(t, engine.SubmitBid(ctx, intent.ID, bid("r1", 40, 100)))
	require.NoError(t, engine.SubmitBid(ctx, intent.ID, bid("r2", 60, 140)))
	// Below the intent's minimum fill, never selected.
	require.NoError(t, engine.SubmitBid(ctx, intent.ID, bid("r3", 5, 12)))

	winners, err := engine.SelectWinners(ctx, intent.ID)
	require.NoError(t, err)
	require.Len(t, winners, 2)

	// Best net output first.
	require.Equal(t, "r2", winners[0].ResolverID)
	require.Equal(t, "r1", winners[1].ResolverID)

	got, err := engine.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100), got.FilledAmount.Int64())
}

func TestSelectWinnersGasAdjusted(t *testing.T) {
	ctx := context.Background()
	engine, _, now := newTestEngine(t)
	intent := newIntent(false)
	require.NoError(t, engine.CreateIntent(ctx, intent))
	*now = t0.Add(100 * time.Second)

	expensive := bid("r1", 100, 250)
	expensive.GasEstimate = big.NewInt(40)
	require.NoError(t, engine.SubmitBid(ctx, intent.ID, expensive))

	cheap := bid("r2", 100, 240)
	cheap.GasEstimate = big.NewInt(10)
	require.NoError(t, engine.SubmitBid(ctx, intent.ID, cheap))

	// 240-10 beats 250-40.
	winners, err := engine.SelectWinners(ctx, intent.ID)
	require.NoError(t, err)
	require.Equal(t, "r2", winners[0].ResolverID)
}

func TestSelectWinnersTieBreaksOnSubmissionTime(t *testing.T) {
	ctx := context.Background()
	engine, _, now := newTestEngine(t)
	intent := newIntent(false)
	require.NoError(t, engine.CreateIntent(ctx, intent))

	require.NoError(t, engine.SubmitBid(ctx, intent.ID, bid("early", 100, 240)))
	*now = t0.Add(time.Second)
	require.NoError(t, engine.SubmitBid(ctx, intent.ID, bid("late", 100, 240)))

	*now = t0.Add(100 * time.Second)
	winners, err := engine.SelectWinners(ctx, intent.ID)
	require.NoError(t, err)
	require.Equal(t, "early", winners[0].ResolverID)
}

func TestCancelIntent(t *testing.T) {
	ctx := context.Background()
	engine, _, now := newTestEngine(t)
	intent := newIntent(false)
	require.NoError(t, engine.CreateIntent(ctx, intent))
	require.NoError(t, engine.SubmitBid(ctx, intent.ID, bid("r1", 100, 240)))

	require.NoError(t, engine.CancelIntent(ctx, intent.ID))
	// Idempotent.
	require.NoError(t, engine.CancelIntent(ctx, intent.ID))

	*now = t0.Add(100 * time.Second)
	_, err := engine.SelectWinners(ctx, intent.ID)
	require.ErrorIs(t, err, swap.ErrIntentCancelled)
}

func TestCancelIntentAfterFillRejected(t *testing.T) {
	ctx := context.Background()
	engine, _, now := newTestEngine(t)
	intent := newIntent(true)
	require.NoError(t, engine.CreateIntent(ctx, intent))
	require.NoError(t, engine.SubmitBid(ctx, intent.ID, bid("r1", 40, 100)))

	*now = t0.Add(100 * time.Second)
	_, err := engine.SelectWinners(ctx, intent.ID)
	require.NoError(t, err)

	// A winning bid is already executing; chain state is not revocable.
	err = engine.CancelIntent(ctx, intent.ID)
	require.ErrorIs(t, err, swap.ErrCancelNotAllowed)
}

func TestSelectWinnersConsumesBids(t *testing.T) {
	ctx := context.Background()
	engine, _, now := newTestEngine(t)
	intent := newIntent(true)
	require.NoError(t, engine.CreateIntent(ctx, intent))
	require.NoError(t, engine.SubmitBid(ctx, intent.ID, bid("r1", 40, 100)))

	*now = t0.Add(100 * time.Second)
	first, err := engine.SelectWinners(ctx, intent.ID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// The consumed bid never wins twice.
	_, err = engine.SelectWinners(ctx, intent.ID)
	require.ErrorIs(t, err, swap.ErrNoEligibleBid)
}
