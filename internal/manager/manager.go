// Package manager drives the cross-chain escrow state machine for a single
// swap: source escrow first, destination escrow only after the source is
// observed funded, every transition persisted before the chain call it gates.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/escrow"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/ledger"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/metrics"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/secret"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/swap"
)

type Config struct {
	// ConfirmInterval is the initial poll interval while waiting for an
	// escrow to finalize; the interval backs off exponentially from here.
	ConfirmInterval time.Duration

	// ConfirmCeiling bounds the total wait for finalization. Past it the
	// swap fails instead of retrying forever.
	ConfirmCeiling time.Duration

	// MaxAttempts bounds retries of a single adapter call on retryable
	// network errors.
	MaxAttempts uint64

	// SourceTimelock and DestTimelock are offsets from swap creation. The
	// destination timelock must be strictly earlier so the party revealing
	// second always has time to claim before the first revealer can refund.
	SourceTimelock time.Duration
	DestTimelock   time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ConfirmInterval == 0 {
		out.ConfirmInterval = time.Second
	}
	if out.ConfirmCeiling == 0 {
		out.ConfirmCeiling = 10 * time.Minute
	}
	if out.MaxAttempts == 0 {
		out.MaxAttempts = 5
	}
	return out
}

type Manager struct {
	logger *logrus.Entry
	ledger *ledger.Ledger
	source escrow.Adapter
	dest   escrow.Adapter
	cfg    Config
}

func New(
	logger *logrus.Logger,
	ldg *ledger.Ledger,
	source, dest escrow.Adapter,
	cfg Config,
) (*Manager, error) {
	if cfg.DestTimelock <= 0 || cfg.SourceTimelock <= 0 {
		return nil, fmt.Errorf("timelocks must be positive")
	}
	if cfg.DestTimelock >= cfg.SourceTimelock {
		return nil, fmt.Errorf(
			"dest timelock (%s) must be strictly earlier than source timelock (%s)",
			cfg.DestTimelock, cfg.SourceTimelock,
		)
	}
	return &Manager{
		logger: logger.WithField("pkg", "manager"),
		ledger: ldg,
		source: source,
		dest:   dest,
		cfg:    cfg.withDefaults(),
	}, nil
}

// Execute creates the ledger record for a winning bid and drives both
// escrows to funded. It returns the swap record and the secret; the secret
// exists only in the caller's memory until the reveal discloses it on chain.
func (m *Manager) Execute(ctx context.Context, intent *swap.Intent, bid *swap.Bid) (*swap.Record, []byte, error) {
	// Task delivery is at-least-once: a replayed bid resumes its existing
	// record instead of spawning a second swap.
	if existing, err := m.ledger.GetByBid(ctx, bid.ID); err == nil {
		rec, er := m.Resume(ctx, existing.SwapID)
		return rec, nil, er
	} else if !errors.Is(err, swap.ErrNotFound) {
		return nil, nil, err
	}

	pair, err := secret.Generate()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	now := time.Now().UTC()
	rec := &swap.Record{
		SwapID:   uuid.New(),
		IntentID: intent.ID,
		BidID:    bid.ID,
		State:    swap.StateCreated,
		Hashlock: pair.Hashlock,
		Source: swap.Leg{
			ChainID:     m.source.ChainID(),
			Token:       intent.MakerAsset.Token,
			Amount:      bid.InputAmount,
			Beneficiary: bid.ResolverID,
			Timelock:    now.Add(m.cfg.SourceTimelock),
		},
		Dest: swap.Leg{
			ChainID:     m.dest.ChainID(),
			Token:       intent.TakerAsset.Token,
			Amount:      bid.OutputAmount,
			Beneficiary: intent.CounterpartyAddress,
			Timelock:    now.Add(m.cfg.DestTimelock),
		},
	}

	if err := m.ledger.Create(ctx, rec); err != nil {
		return nil, nil, err
	}

	release := m.ledger.Acquire(rec.SwapID)
	defer release()

	if err := m.run(ctx, rec); err != nil {
		return rec, nil, err
	}
	return rec, pair.Secret, nil
}

// Resume re-drives a swap from its last durable state after a restart.
// Adapter calls are at-least-once, so replaying the step in flight at crash
// time is safe. The in-memory secret is gone; the reveal coordinator
// recovers it from chain if the swap already entered Revealing.
func (m *Manager) Resume(ctx context.Context, swapID uuid.UUID) (*swap.Record, error) {
	release := m.ledger.Acquire(swapID)
	defer release()

	rec, err := m.ledger.Get(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if rec.State.Terminal() || rec.State == swap.StateRevealing || rec.State == swap.StateRefunding {
		return rec, nil
	}
	if err := m.run(ctx, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// run advances the record until both escrows are funded or the swap fails.
// Caller holds the swap lock.
func (m *Manager) run(ctx context.Context, rec *swap.Record) error {
	l := m.logger.WithField("swapId", rec.SwapID.String())

	for {
		switch rec.State {
		case swap.StateCreated:
			if err := m.ledger.Transition(ctx, rec, swap.StateSourceEscrowPending); err != nil {
				return err
			}

		case swap.StateSourceEscrowPending:
			if err := m.fundLeg(ctx, rec, m.source, &rec.Source); err != nil {
				return m.fail(ctx, rec, err)
			}
			if err := m.ledger.Transition(ctx, rec, swap.StateSourceEscrowFunded); err != nil {
				return err
			}
			l.WithField("ref", rec.Source.Ref).Info("source escrow funded")

		case swap.StateSourceEscrowFunded:
			if err := m.ledger.Transition(ctx, rec, swap.StateDestEscrowPending); err != nil {
				return err
			}

		case swap.StateDestEscrowPending:
			if err := m.fundLeg(ctx, rec, m.dest, &rec.Dest); err != nil {
				return m.fail(ctx, rec, err)
			}
			if err := m.ledger.Transition(ctx, rec, swap.StateDestEscrowFunded); err != nil {
				return err
			}
			l.WithField("ref", rec.Dest.Ref).Info("dest escrow funded")

		case swap.StateDestEscrowFunded:
			return nil

		default:
			return nil
		}
	}
}

// fundLeg creates one escrow (if not yet created) and waits for it to
// finalize as funded.
func (m *Manager) fundLeg(ctx context.Context, rec *swap.Record, ad escrow.Adapter, leg *swap.Leg) error {
	if leg.Ref == "" {
		ref, err := m.createWithRetry(ctx, ad, escrow.CreateParams{
			SwapID:      rec.SwapID,
			Token:       leg.Token,
			Amount:      leg.Amount,
			Hashlock:    rec.Hashlock,
			Timelock:    leg.Timelock,
			Beneficiary: leg.Beneficiary,
		})
		if err != nil {
			return fmt.Errorf("failed to create escrow on %s: %w", ad.ChainID(), err)
		}
		leg.Ref = ref
		if err := m.ledger.Save(ctx, rec); err != nil {
			return err
		}
	}
	if err := m.waitFunded(ctx, ad, leg.Ref); err != nil {
		return fmt.Errorf("escrow %s on %s did not fund: %w", leg.Ref, ad.ChainID(), err)
	}
	return nil
}

func (m *Manager) createWithRetry(ctx context.Context, ad escrow.Adapter, p escrow.CreateParams) (escrow.Ref, error) {
	var ref escrow.Ref
	op := func() error {
		r, err := ad.CreateEscrow(ctx, p)
		if err != nil {
			if escrow.Retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		ref = r
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(newExponential(m.cfg.ConfirmInterval), m.cfg.MaxAttempts),
		ctx,
	)
	if err := backoff.Retry(op, bo); err != nil {
		return "", err
	}
	return ref, nil
}

// waitFunded polls finalized escrow state with exponential backoff until it
// reports Funded, bounded by the confirmation ceiling.
func (m *Manager) waitFunded(ctx context.Context, ad escrow.Adapter, ref escrow.Ref) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConfirmCeiling)
	defer cancel()

	op := func() error {
		st, err := ad.GetState(ctx, ref)
		if err != nil {
			if escrow.Retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		switch st {
		case escrow.StateFunded:
			return nil
		case escrow.StatePending:
			return fmt.Errorf("escrow %s still pending", ref)
		default:
			return backoff.Permanent(fmt.Errorf("escrow %s in unexpected state %s: %w", ref, st, escrow.ErrRejected))
		}
	}

	err := backoff.Retry(op, backoff.WithContext(newExponential(m.cfg.ConfirmInterval), ctx))
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("confirmation ceiling %s exceeded: %w", m.cfg.ConfirmCeiling, err)
	}
	return err
}

// fail routes a broken swap to its terminal path: Refunding when any escrow
// may hold funds, plain Failed only when no fund movement happened.
func (m *Manager) fail(ctx context.Context, rec *swap.Record, cause error) error {
	l := m.logger.WithField("swapId", rec.SwapID.String()).WithError(cause)

	if m.anyLegFunded(ctx, rec) {
		if er := m.ledger.Transition(ctx, rec, swap.StateRefunding); er != nil {
			l.WithError(er).Error("failed to route swap to refunding")
			return errors.Join(cause, er)
		}
		metrics.SwapsRefunding.Inc()
		l.Warn("swap failed after funding, routed to refund path")
		return cause
	}

	if er := m.ledger.Transition(ctx, rec, swap.StateFailed); er != nil {
		l.WithError(er).Error("failed to mark swap failed")
		return errors.Join(cause, er)
	}
	metrics.SwapsFailed.Inc()
	l.Warn("swap failed before any funding")
	return cause
}

// anyLegFunded checks whether funds may be locked on either chain. When the
// chain cannot be read the leg counts as funded: routing an empty escrow to
// the refund path is a no-op, abandoning a funded one is not.
func (m *Manager) anyLegFunded(ctx context.Context, rec *swap.Record) bool {
	for _, leg := range []struct {
		ad  escrow.Adapter
		ref escrow.Ref
	}{
		{m.source, rec.Source.Ref},
		{m.dest, rec.Dest.Ref},
	} {
		if leg.ref == "" {
			continue
		}
		st, err := leg.ad.GetState(ctx, leg.ref)
		if err != nil || st == escrow.StateFunded {
			return true
		}
	}
	return false
}

func newExponential(initial time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.MaxElapsedTime = 0
	return bo
}
