package coordinator

import (
	"context"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/auction"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/escrow"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/escrow/fake"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/ledger"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/manager"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/reveal"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/swap"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/tasks"
)

type fixture struct {
	consumer *Consumer
	ledger   *ledger.Ledger
	intents  *auction.MemoryStore
	source   *fake.Adapter
	dest     *fake.Adapter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ldg := ledger.New(logger, ledger.NewMemoryStore())
	intents := auction.NewMemoryStore()
	source := fake.New("ethereum")
	dest := fake.New("near")

	mgr, err := manager.New(logger, ldg, source, dest, manager.Config{
		ConfirmInterval: time.Millisecond,
		ConfirmCeiling:  time.Second,
		MaxAttempts:     3,
		SourceTimelock:  2 * time.Hour,
		DestTimelock:    time.Hour,
	})
	require.NoError(t, err)

	rvl := reveal.New(logger, ldg, source, dest, reveal.Config{
		RetryInterval:    time.Millisecond,
		MaxFirstAttempts: 3,
	})

	return &fixture{
		consumer: NewConsumer(logger, intents, mgr, rvl, &statsd.NoOpClient{}),
		ledger:   ldg,
		intents:  intents,
		source:   source,
		dest:     dest,
	}
}

func (f *fixture) addOrder(t *testing.T) (*swap.Intent, swap.Bid) {
	t.Helper()
	intent := &swap.Intent{
		ID:                  uuid.New(),
		MakerAsset:          swap.Asset{ChainID: "ethereum", Token: "0xusdc"},
		TakerAsset:          swap.Asset{ChainID: "near", Token: "usdc.near"},
		MakerAmount:         big.NewInt(100),
		TakerAmount:         big.NewInt(200),
		CounterpartyAddress: "maker.near",
		Deadline:            time.Now().Add(time.Hour),
		FilledAmount:        big.NewInt(100),
	}
	require.NoError(t, f.intents.CreateIntent(context.Background(), intent))

	bid := swap.Bid{
		ID:           uuid.New(),
		IntentID:     intent.ID,
		ResolverID:   "0xresolver",
		InputAmount:  big.NewInt(100),
		OutputAmount: big.NewInt(210),
	}
	return intent, bid
}

func TestHandleExecuteRunsSwapToCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	intent, bid := f.addOrder(t)

	task, err := tasks.NewSwapExecuteTask(intent.ID, bid)
	require.NoError(t, err)
	require.NoError(t, f.consumer.HandleExecute(ctx, task))

	rec, err := f.ledger.GetByBid(ctx, bid.ID)
	require.NoError(t, err)
	require.Equal(t, swap.StateCompleted, rec.State)
	require.Equal(t, escrow.StateResolved, f.source.EscrowState(rec.Source.Ref))
	require.Equal(t, escrow.StateResolved, f.dest.EscrowState(rec.Dest.Ref))
	require.NotEmpty(t, rec.Secret)
}

func TestHandleExecuteReplaySafe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	intent, bid := f.addOrder(t)

	task, err := tasks.NewSwapExecuteTask(intent.ID, bid)
	require.NoError(t, err)
	require.NoError(t, f.consumer.HandleExecute(ctx, task))

	// asynq may deliver the same task twice; the second run must find the
	// completed swap instead of spawning a second one.
	require.NoError(t, f.consumer.HandleExecute(ctx, task))

	recs, err := f.ledger.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestHandleExecuteSkipsRetryOnExecutionFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	intent, bid := f.addOrder(t)

	// Permanent rejection on the dest leg: the manager routes the swap to
	// the refund path, so replaying the task would be useless.
	f.dest.FailNext("create", escrow.ErrRejected)

	task, err := tasks.NewSwapExecuteTask(intent.ID, bid)
	require.NoError(t, err)
	err = f.consumer.HandleExecute(ctx, task)
	require.ErrorIs(t, err, asynq.SkipRetry)

	rec, er := f.ledger.GetByBid(ctx, bid.ID)
	require.NoError(t, er)
	require.Equal(t, swap.StateRefunding, rec.State)
}

func TestHandleExecuteSkipsRetryOnUnknownIntent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	task, err := tasks.NewSwapExecuteTask(uuid.New(), swap.Bid{ID: uuid.New()})
	require.NoError(t, err)
	err = f.consumer.HandleExecute(ctx, task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleResumeCompletesRevealedSwap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	intent, bid := f.addOrder(t)

	task, err := tasks.NewSwapExecuteTask(intent.ID, bid)
	require.NoError(t, err)
	require.NoError(t, f.consumer.HandleExecute(ctx, task))

	rec, err := f.ledger.GetByBid(ctx, bid.ID)
	require.NoError(t, err)

	// A resume task on a finished swap is a no-op.
	resume, err := tasks.NewSwapResumeTask(rec.SwapID)
	require.NoError(t, err)
	require.NoError(t, f.consumer.HandleResume(ctx, resume))
}
