// Package reveal drives the reveal-then-claim sequence once both escrows
// are funded. It is the only component that discloses the swap secret, and
// it discloses it on chain first: the second release can always re-derive
// the preimage from the first chain's finalized transaction, so a crash
// between the two releases never strands the swap.
package reveal

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
	// RetryInterval seeds the exponential backoff between release attempts.
	RetryInterval time.Duration

	// MaxFirstAttempts bounds retries of the first (disclosing) release.
	// The second release is bounded by the remaining timelock instead.
	MaxFirstAttempts uint64
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.RetryInterval == 0 {
		out.RetryInterval = time.Second
	}
	if out.MaxFirstAttempts == 0 {
		out.MaxFirstAttempts = 5
	}
	return out
}

type Coordinator struct {
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
) *Coordinator {
	return &Coordinator{
		logger: logger.WithField("pkg", "reveal"),
		ledger: ldg,
		source: source,
		dest:   dest,
		cfg:    cfg.withDefaults(),
	}
}

// CompleteSwap claims both escrows. The destination escrow is released
// first, putting the secret on chain; the source escrow follows with the
// same secret. secretBytes may be nil on resume, in which case the secret
// is read back from the destination chain.
func (c *Coordinator) CompleteSwap(ctx context.Context, swapID uuid.UUID, secretBytes []byte) error {
	release := c.ledger.Acquire(swapID)
	defer release()

	rec, err := c.ledger.Get(ctx, swapID)
	if err != nil {
		return err
	}
	l := c.logger.WithField("swapId", rec.SwapID.String())

	switch rec.State {
	case swap.StateCompleted:
		return nil
	case swap.StateDestEscrowFunded, swap.StateRevealing:
	default:
		return fmt.Errorf("swap %s not ready for reveal, state %s", swapID, rec.State)
	}

	if secretBytes != nil {
		ok, er := secret.Verify(secretBytes, rec.Hashlock)
		if er != nil || !ok {
			return &swap.ProtocolViolation{
				SwapID: swapID.String(),
				Reason: "secret does not match hashlock",
				Err:    er,
			}
		}
	}

	if rec.State == swap.StateDestEscrowFunded {
		if err := c.ledger.Transition(ctx, rec, swap.StateRevealing); err != nil {
			return err
		}
	}

	secretBytes, err = c.releaseFirst(ctx, rec, secretBytes)
	if err != nil {
		// The failed attempts may still have broadcast the release even
		// though no result came back. Refunding is only safe once the chain
		// confirms nothing was disclosed; otherwise the maker would keep
		// both assets while the source refund strands the resolver's claim.
		recovered, probeErr := c.dest.RevealedSecret(ctx, rec.Dest.Ref)
		switch {
		case probeErr == nil:
			l.WithError(err).Warn("first release reported failure but landed on chain")
			secretBytes = recovered
		case errors.Is(probeErr, escrow.ErrSecretNotRevealed):
			if er := c.ledger.Transition(ctx, rec, swap.StateRefunding); er != nil {
				return errors.Join(err, er)
			}
			metrics.SwapsRefunding.Inc()
			l.WithError(err).Warn("first release failed before disclosure, routed to refund path")
			return err
		default:
			// Disclosure state unknown; keep the swap in Revealing so the
			// task replay settles it rather than refunding on a guess.
			return errors.Join(err, fmt.Errorf("failed to confirm disclosure on %s: %w", c.dest.ChainID(), probeErr))
		}
	}
	l.Info("secret disclosed on destination chain")

	if err := c.releaseSecond(ctx, rec, secretBytes); err != nil {
		// The initiator already claimed; abandoning here would strand the
		// resolver's funds. Surface the error so the task is replayed.
		return fmt.Errorf("second release on %s did not complete: %w", c.source.ChainID(), err)
	}

	rec.Secret = secretBytes
	if err := c.ledger.Transition(ctx, rec, swap.StateCompleted); err != nil {
		return err
	}
	metrics.SwapsCompleted.Inc()
	metrics.SwapDuration.Observe(time.Since(rec.CreatedAt).Seconds())
	l.Info("swap completed, both escrows resolved")
	return nil
}

// releaseFirst claims the destination escrow. With no in-memory secret it
// first checks whether an earlier attempt already landed and reads the
// preimage back from chain.
func (c *Coordinator) releaseFirst(ctx context.Context, rec *swap.Record, secretBytes []byte) ([]byte, error) {
	if secretBytes == nil {
		recovered, err := c.dest.RevealedSecret(ctx, rec.Dest.Ref)
		if err != nil {
			if errors.Is(err, escrow.ErrSecretNotRevealed) {
				// Crash before the first release landed: the secret is gone
				// for good and nothing was disclosed, so refunding is safe.
				return nil, fmt.Errorf("secret lost before disclosure: %w", err)
			}
			return nil, fmt.Errorf("failed to recover secret from %s: %w", c.dest.ChainID(), err)
		}
		return recovered, nil
	}

	op := func() error {
		_, err := c.dest.Release(ctx, rec.Dest.Ref, secretBytes)
		if err != nil {
			if escrow.Retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(newExponential(c.cfg.RetryInterval), c.cfg.MaxFirstAttempts),
		ctx,
	)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("failed to release dest escrow %s: %w", rec.Dest.Ref, err)
	}
	return secretBytes, nil
}

// releaseSecond claims the source escrow with the disclosed secret,
// retrying every failure with backoff until the source timelock. A late
// completion is acceptable; a half-claimed swap is not.
func (c *Coordinator) releaseSecond(ctx context.Context, rec *swap.Record, secretBytes []byte) error {
	deadline := rec.Source.Timelock
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	op := func() error {
		_, err := c.source.Release(ctx, rec.Source.Ref, secretBytes)
		if err != nil {
			if errors.Is(err, escrow.ErrAlreadyFinalized) {
				// Replay of a landed release.
				st, er := c.source.GetState(ctx, rec.Source.Ref)
				if er == nil && st == escrow.StateResolved {
					return nil
				}
			}
			return err
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(newExponential(c.cfg.RetryInterval), ctx))
}

func newExponential(initial time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.MaxElapsedTime = 0
	return bo
}
