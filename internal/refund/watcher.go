// Package refund runs the fallback path: a background scanner that returns
// locked funds once a swap overruns its timelocks without completing.
package refund

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/escrow"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/ledger"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/metrics"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/swap"
)

type Watcher struct {
	logger   *logrus.Entry
	ledger   *ledger.Ledger
	adapters map[string]escrow.Adapter
	interval time.Duration
	now      func() time.Time
}

func New(
	logger *logrus.Logger,
	ldg *ledger.Ledger,
	adapters map[string]escrow.Adapter,
	interval time.Duration,
) *Watcher {
	if interval == 0 {
		interval = 30 * time.Second
	}
	return &Watcher{
		logger:   logger.WithField("pkg", "refund"),
		ledger:   ldg,
		adapters: adapters,
		interval: interval,
		now:      time.Now,
	}
}

// SetNow overrides the watcher clock, for tests.
func (w *Watcher) SetNow(now func() time.Time) {
	w.now = now
}

// Run scans on a fixed interval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ScanOnce(ctx); err != nil {
				w.logger.WithError(err).Error("refund scan failed")
			}
		}
	}
}

// ScanOnce walks every non-terminal swap and refunds escrows that are
// funded past their timelock. Repeated scans over already-refunded escrows
// are no-ops.
func (w *Watcher) ScanOnce(ctx context.Context) error {
	metrics.RefundScans.Inc()

	recs, err := w.ledger.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		w.scanSwap(ctx, rec.SwapID)
	}
	return nil
}

func (w *Watcher) scanSwap(ctx context.Context, swapID uuid.UUID) {
	release := w.ledger.Acquire(swapID)
	defer release()

	// Re-read under the lock; the reveal coordinator may have finished the
	// swap between listing and locking.
	rec, err := w.ledger.Get(ctx, swapID)
	if err != nil {
		w.logger.WithError(err).WithField("swapId", swapID.String()).Error("failed to load swap")
		return
	}
	if rec.State.Terminal() {
		return
	}

	l := w.logger.WithField("swapId", swapID.String())
	if rec.State == swap.StateRevealing {
		// Revealing swaps belong to the coordinator until their claim window
		// closes; refunding one earlier could strand a half-claimed swap.
		w.reconcileRevealing(ctx, l, rec)
		return
	}
	if !rec.State.Refundable() {
		return
	}

	now := w.now()

	legs := []*swap.Leg{&rec.Source, &rec.Dest}
	due := make([]bool, len(legs))
	anyDue := false
	for i, leg := range legs {
		if leg.Ref == "" || now.Before(leg.Timelock) {
			continue
		}
		ad, ok := w.adapters[leg.ChainID]
		if !ok {
			l.WithField("chain", leg.ChainID).Error("no adapter for chain")
			continue
		}
		st, er := ad.GetState(ctx, leg.Ref)
		if er != nil {
			l.WithError(er).WithField("chain", leg.ChainID).Warn("failed to read escrow state")
			continue
		}
		if st == escrow.StateFunded {
			due[i] = true
			anyDue = true
		}
	}

	if anyDue && rec.State != swap.StateRefunding {
		if er := w.ledger.Transition(ctx, rec, swap.StateRefunding); er != nil {
			l.WithError(er).Error("failed to enter refunding")
			return
		}
		metrics.SwapsRefunding.Inc()
	}
	if rec.State != swap.StateRefunding {
		return
	}

	// Refund ordering is unconstrained: no secret has been disclosed, so
	// both sides refund concurrently.
	var wg sync.WaitGroup
	for i, leg := range legs {
		if !due[i] {
			continue
		}
		wg.Add(1)
		go func(leg *swap.Leg) {
			defer wg.Done()
			w.refundLeg(ctx, l, leg)
		}(leg)
	}
	wg.Wait()

	if w.allSettled(ctx, rec) {
		if er := w.ledger.Transition(ctx, rec, swap.StateRefunded); er != nil {
			l.WithError(er).Error("failed to mark swap refunded")
			return
		}
		metrics.SwapsRefunded.Inc()
		l.Info("swap refunded on all funded legs")
	}
}

// reconcileRevealing settles a swap whose reveal overran the source
// timelock, after which the task queue has given up replaying it. If the
// secret never reached the destination chain the swap refunds like any
// other overrun; if it did, the watcher re-drives the source claim with the
// recovered secret and falls back to refund only once the chain refuses
// the claim outright.
func (w *Watcher) reconcileRevealing(ctx context.Context, l *logrus.Entry, rec *swap.Record) {
	if w.now().Before(rec.Source.Timelock) {
		return
	}
	destAd, ok := w.adapters[rec.Dest.ChainID]
	if !ok {
		l.WithField("chain", rec.Dest.ChainID).Error("no adapter for chain")
		return
	}
	sourceAd, ok := w.adapters[rec.Source.ChainID]
	if !ok {
		l.WithField("chain", rec.Source.ChainID).Error("no adapter for chain")
		return
	}

	secretBytes, err := destAd.RevealedSecret(ctx, rec.Dest.Ref)
	if errors.Is(err, escrow.ErrSecretNotRevealed) {
		if er := w.ledger.Transition(ctx, rec, swap.StateRefunding); er != nil {
			l.WithError(er).Error("failed to enter refunding")
			return
		}
		metrics.SwapsRefunding.Inc()
		l.Warn("reveal overran its window without disclosure, routed to refund path")
		return
	}
	if err != nil {
		l.WithError(err).Warn("failed to read disclosure state")
		return
	}

	_, err = sourceAd.Release(ctx, rec.Source.Ref, secretBytes)
	switch {
	case err == nil:
	case errors.Is(err, escrow.ErrAlreadyFinalized), errors.Is(err, escrow.ErrTimelockExpired):
		// Finalized some other way or the chain refuses the late claim; the
		// read below decides which.
	default:
		// Transient failure; the next scan tries the claim again.
		l.WithError(err).Warn("late claim attempt failed")
		return
	}

	st, err := sourceAd.GetState(ctx, rec.Source.Ref)
	if err != nil {
		l.WithError(err).Warn("failed to read source escrow state")
		return
	}
	if st == escrow.StateResolved {
		rec.Secret = secretBytes
		if er := w.ledger.Transition(ctx, rec, swap.StateCompleted); er != nil {
			l.WithError(er).Error("failed to mark swap completed")
			return
		}
		metrics.SwapsCompleted.Inc()
		l.Info("swap completed by late claim")
		return
	}

	// The claim can no longer land; the source leg settles by refund. The
	// disclosed secret stays on the record for audit.
	rec.Secret = secretBytes
	if er := w.ledger.Transition(ctx, rec, swap.StateRefunding); er != nil {
		l.WithError(er).Error("failed to enter refunding")
		return
	}
	metrics.SwapsRefunding.Inc()
	l.Error("claim window closed after disclosure, source leg settles by refund")
}

func (w *Watcher) refundLeg(ctx context.Context, l *logrus.Entry, leg *swap.Leg) {
	ad := w.adapters[leg.ChainID]
	_, err := ad.Refund(ctx, leg.Ref)
	switch {
	case err == nil:
		metrics.RefundsIssued.WithLabelValues(leg.ChainID).Inc()
		l.WithFields(logrus.Fields{"chain": leg.ChainID, "ref": leg.Ref}).Info("escrow refunded")
	case errors.Is(err, escrow.ErrAlreadyFinalized), errors.Is(err, escrow.ErrTimelockNotExpired):
		// Raced with another actor or clocks disagree with the chain; the
		// next scan re-evaluates from finalized state.
	default:
		l.WithError(err).WithFields(logrus.Fields{"chain": leg.ChainID, "ref": leg.Ref}).
			Warn("refund attempt failed")
	}
}

// allSettled reports whether no leg can still hold claimable funds: every
// created escrow reads Refunded, or Resolved for a leg that was claimed
// before the swap fell back to the refund path.
func (w *Watcher) allSettled(ctx context.Context, rec *swap.Record) bool {
	for _, leg := range []*swap.Leg{&rec.Source, &rec.Dest} {
		if leg.Ref == "" {
			continue
		}
		ad, ok := w.adapters[leg.ChainID]
		if !ok {
			return false
		}
		st, err := ad.GetState(ctx, leg.Ref)
		if err != nil {
			return false
		}
		if st == escrow.StateFunded || st == escrow.StatePending {
			return false
		}
	}
	return true
}
