package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/swap"
)

// Store is the durable record of swap lifecycle state. Implementations must
// provide read-your-writes consistency per swap id.
type Store interface {
	CreateSwap(ctx context.Context, rec *swap.Record) error
	UpdateSwap(ctx context.Context, rec *swap.Record) error
	GetSwap(ctx context.Context, swapID uuid.UUID) (*swap.Record, error)

	// GetSwapByBid returns the record spawned by a bid, or swap.ErrNotFound.
	// Exactly one record exists per executed bid; task replays find it here.
	GetSwapByBid(ctx context.Context, bidID uuid.UUID) (*swap.Record, error)

	// ListActive returns every record not in a terminal state.
	ListActive(ctx context.Context) ([]*swap.Record, error)
}

// Ledger wraps a Store with per-swap-id mutexes. The escrow manager, the
// reveal coordinator and the refund watcher all mutate records through this
// type; the per-swap lock is what keeps the watcher from refunding a swap
// mid-reveal.
type Ledger struct {
	logger *logrus.Entry
	store  Store

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func New(logger *logrus.Logger, store Store) *Ledger {
	return &Ledger{
		logger: logger.WithField("pkg", "ledger"),
		store:  store,
		locks:  map[uuid.UUID]*sync.Mutex{},
	}
}

// Acquire takes the single-writer lock for swapID and returns its release
// function. Every mutation path must hold this lock for the full
// read-decide-write cycle, not just the write.
func (l *Ledger) Acquire(swapID uuid.UUID) func() {
	l.mu.Lock()
	lk, ok := l.locks[swapID]
	if !ok {
		lk = &sync.Mutex{}
		l.locks[swapID] = lk
	}
	l.mu.Unlock()

	lk.Lock()
	return lk.Unlock
}

func (l *Ledger) Create(ctx context.Context, rec *swap.Record) error {
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt
	if err := l.store.CreateSwap(ctx, rec); err != nil {
		return fmt.Errorf("failed to create swap record: %w", err)
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, swapID uuid.UUID) (*swap.Record, error) {
	return l.store.GetSwap(ctx, swapID)
}

func (l *Ledger) GetByBid(ctx context.Context, bidID uuid.UUID) (*swap.Record, error) {
	return l.store.GetSwapByBid(ctx, bidID)
}

func (l *Ledger) ListActive(ctx context.Context) ([]*swap.Record, error) {
	return l.store.ListActive(ctx)
}

// Save persists rec without changing its state. Used to record escrow refs
// and the revealed secret. Caller must hold the swap lock.
func (l *Ledger) Save(ctx context.Context, rec *swap.Record) error {
	rec.UpdatedAt = time.Now().UTC()
	if err := l.store.UpdateSwap(ctx, rec); err != nil {
		return fmt.Errorf("failed to save swap record: %w", err)
	}
	return nil
}

// Transition validates the edge, persists the new state, then mutates rec.
// The write happens before the caller issues the chain call the new state
// gates, so a crash resumes from the durable state. Caller must hold the
// swap lock.
func (l *Ledger) Transition(ctx context.Context, rec *swap.Record, next swap.State) error {
	if !rec.State.CanTransition(next) {
		return &swap.InvalidTransition{From: rec.State, To: next}
	}

	prev := rec.State
	rec.State = next
	rec.UpdatedAt = time.Now().UTC()
	if err := l.store.UpdateSwap(ctx, rec); err != nil {
		rec.State = prev
		return fmt.Errorf("failed to persist transition %s -> %s: %w", prev, next, err)
	}

	l.logger.WithFields(logrus.Fields{
		"swapId": rec.SwapID.String(),
		"from":   prev,
		"to":     next,
	}).Info("swap state transition")
	return nil
}
