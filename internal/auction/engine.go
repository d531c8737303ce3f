// Package auction implements competitive resolver selection: resolvers bid
// against an intent whose acceptable rate decays Dutch-auction style toward
// a floor, and the engine picks the bid set that maximizes maker output.
package auction

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/metrics"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/swap"
)

type Engine struct {
	logger *logrus.Entry
	store  Store
	now    func() time.Time
}

func NewEngine(logger *logrus.Logger, store Store) *Engine {
	return &Engine{
		logger: logger.WithField("pkg", "auction"),
		store:  store,
		now:    time.Now,
	}
}

// SetNow overrides the engine clock, for tests.
func (e *Engine) SetNow(now func() time.Time) {
	e.now = now
}

// CreateIntent validates and stores a new swap intent, opening its auction.
func (e *Engine) CreateIntent(ctx context.Context, intent *swap.Intent) error {
	now := e.now()

	if intent.MakerAmount == nil || intent.MakerAmount.Sign() <= 0 {
		return &swap.ValidationError{Field: "makerAmount", Reason: "must be positive"}
	}
	if intent.TakerAmount == nil || intent.TakerAmount.Sign() <= 0 {
		return &swap.ValidationError{Field: "takerAmount", Reason: "must be positive"}
	}
	if intent.CounterpartyAddress == "" {
		return &swap.ValidationError{Field: "counterpartyAddress", Reason: "required"}
	}
	if !intent.Deadline.After(now) {
		return &swap.ValidationError{Field: "deadline", Reason: "must be in the future"}
	}
	if intent.AllowPartialFill {
		if intent.MinFillAmount == nil || intent.MinFillAmount.Sign() <= 0 {
			return &swap.ValidationError{Field: "minFillAmount", Reason: "required when partial fill is allowed"}
		}
		if intent.MinFillAmount.Cmp(intent.MakerAmount) > 0 {
			return &swap.ValidationError{Field: "minFillAmount", Reason: "exceeds maker amount"}
		}
	}
	if intent.PremiumBips < 0 {
		return &swap.ValidationError{Field: "premiumBips", Reason: "must not be negative"}
	}

	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	if intent.AuctionStart.IsZero() {
		intent.AuctionStart = now
	}
	if intent.FilledAmount == nil {
		intent.FilledAmount = big.NewInt(0)
	}
	intent.CreatedAt = now

	if err := e.store.CreateIntent(ctx, intent); err != nil {
		return fmt.Errorf("failed to store intent: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"intentId":    intent.ID.String(),
		"makerAmount": intent.MakerAmount.String(),
		"takerAmount": intent.TakerAmount.String(),
		"partialFill": intent.AllowPartialFill,
	}).Info("intent created")
	return nil
}

// SubmitBid accepts a resolver's bid. A resolver resubmitting replaces its
// active bid instead of adding a second one.
func (e *Engine) SubmitBid(ctx context.Context, intentID uuid.UUID, bid *swap.Bid) error {
	if err := e.submitBid(ctx, intentID, bid); err != nil {
		metrics.BidsSubmitted.WithLabelValues("rejected").Inc()
		return err
	}
	metrics.BidsSubmitted.WithLabelValues("accepted").Inc()
	return nil
}

func (e *Engine) submitBid(ctx context.Context, intentID uuid.UUID, bid *swap.Bid) error {
	intent, err := e.store.GetIntent(ctx, intentID)
	if err != nil {
		return err
	}

	now := e.now()
	if intent.Cancelled {
		return swap.ErrIntentCancelled
	}
	if intent.Expired(now) {
		return swap.ErrIntentExpired
	}
	if bid.ResolverID == "" {
		return &swap.ValidationError{Field: "resolverId", Reason: "required"}
	}
	if bid.InputAmount == nil || bid.InputAmount.Sign() <= 0 {
		return &swap.ValidationError{Field: "inputAmount", Reason: "must be positive"}
	}
	if bid.OutputAmount == nil || bid.OutputAmount.Sign() <= 0 {
		return &swap.ValidationError{Field: "outputAmount", Reason: "must be positive"}
	}
	if bid.Rate().LessThan(intent.FloorRate()) {
		return swap.ErrRateBelowFloor
	}

	bid.ID = uuid.New()
	bid.IntentID = intentID
	bid.SubmittedAt = now
	bid.Active = true

	if err := e.store.UpsertBid(ctx, bid); err != nil {
		return fmt.Errorf("failed to store bid: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"intentId":   intentID.String(),
		"resolverId": bid.ResolverID,
		"rate":       bid.Rate().String(),
	}).Info("bid accepted")
	return nil
}

// CurrentFloor returns the minimum acceptable rate at t: the intent's floor
// plus a premium that decays linearly to zero over the auction window.
func (e *Engine) CurrentFloor(intent *swap.Intent, t time.Time) decimal.Decimal {
	floor := intent.FloorRate()
	if intent.PremiumBips == 0 || intent.AuctionWindow <= 0 {
		return floor
	}

	elapsed := t.Sub(intent.AuctionStart)
	if elapsed >= intent.AuctionWindow {
		return floor
	}
	if elapsed < 0 {
		elapsed = 0
	}

	remaining := decimal.NewFromFloat(1).
		Sub(decimal.NewFromFloat(float64(elapsed) / float64(intent.AuctionWindow)))
	premium := floor.
		Mul(decimal.NewFromInt(intent.PremiumBips)).
		Div(decimal.NewFromInt(10000)).
		Mul(remaining)
	return floor.Add(premium)
}

// SelectWinners resolves the auction at the current decayed floor. With
// partial fill allowed it may return several non-overlapping bids whose
// inputs sum to at most the remaining unfilled amount; otherwise exactly
// one bid filling the whole remainder. Winning bids are consumed and the
// intent's filled amount advances; each winner spawns an independent swap.
func (e *Engine) SelectWinners(ctx context.Context, intentID uuid.UUID) ([]*swap.Bid, error) {
	intent, err := e.store.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if intent.Cancelled {
		return nil, swap.ErrIntentCancelled
	}
	if intent.Expired(now) {
		return nil, swap.ErrIntentExpired
	}

	remaining := intent.Remaining()
	if remaining.Sign() <= 0 {
		return nil, swap.ErrNoEligibleBid
	}

	bids, err := e.store.ActiveBids(ctx, intentID)
	if err != nil {
		return nil, err
	}

	currentFloor := e.CurrentFloor(intent, now)
	eligible := make([]*swap.Bid, 0, len(bids))
	for _, b := range bids {
		if b.Rate().LessThan(currentFloor) {
			continue
		}
		if intent.AllowPartialFill {
			if b.InputAmount.Cmp(intent.MinFillAmount) < 0 || b.InputAmount.Cmp(remaining) > 0 {
				continue
			}
		} else if b.InputAmount.Cmp(remaining) != 0 {
			continue
		}
		eligible = append(eligible, b)
	}
	if len(eligible) == 0 {
		metrics.AuctionsResolved.WithLabelValues("no_eligible_bid").Inc()
		return nil, swap.ErrNoEligibleBid
	}

	// Best maker outcome first, earliest submission breaking ties.
	sort.Slice(eligible, func(i, j int) bool {
		cmp := eligible[i].NetOutput().Cmp(eligible[j].NetOutput())
		if cmp != 0 {
			return cmp > 0
		}
		return eligible[i].SubmittedAt.Before(eligible[j].SubmittedAt)
	})

	var winners []*swap.Bid
	left := new(big.Int).Set(remaining)
	for _, b := range eligible {
		if b.InputAmount.Cmp(left) > 0 {
			continue
		}
		winners = append(winners, b)
		left.Sub(left, b.InputAmount)
		if !intent.AllowPartialFill {
			break
		}
	}
	if len(winners) == 0 {
		metrics.AuctionsResolved.WithLabelValues("no_eligible_bid").Inc()
		return nil, swap.ErrNoEligibleBid
	}

	for _, b := range winners {
		b.Active = false
		if er := e.store.UpdateBid(ctx, b); er != nil {
			return nil, fmt.Errorf("failed to consume winning bid: %w", er)
		}
		intent.FilledAmount = new(big.Int).Add(intent.FilledAmount, b.InputAmount)
	}
	if err := e.store.UpdateIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("failed to update intent fill: %w", err)
	}

	metrics.AuctionsResolved.WithLabelValues("won").Inc()
	e.logger.WithFields(logrus.Fields{
		"intentId": intentID.String(),
		"winners":  len(winners),
		"floor":    currentFloor.String(),
	}).Info("auction resolved")
	return winners, nil
}

// SelectWinner resolves a full-fill auction to its single best bid.
func (e *Engine) SelectWinner(ctx context.Context, intentID uuid.UUID) (*swap.Bid, error) {
	winners, err := e.SelectWinners(ctx, intentID)
	if err != nil {
		return nil, err
	}
	return winners[0], nil
}

// CancelIntent withdraws an intent. Allowed only while no winning bid has
// been executed: once escrow creation starts, the swap must run to a
// terminal state because chain state is not revocable.
func (e *Engine) CancelIntent(ctx context.Context, intentID uuid.UUID) error {
	intent, err := e.store.GetIntent(ctx, intentID)
	if err != nil {
		return err
	}
	if intent.Cancelled {
		return nil
	}
	if intent.FilledAmount != nil && intent.FilledAmount.Sign() > 0 {
		return swap.ErrCancelNotAllowed
	}

	intent.Cancelled = true
	if err := e.store.UpdateIntent(ctx, intent); err != nil {
		return fmt.Errorf("failed to cancel intent: %w", err)
	}
	if err := e.store.DeactivateBids(ctx, intentID); err != nil {
		return fmt.Errorf("failed to deactivate bids: %w", err)
	}

	e.logger.WithField("intentId", intentID.String()).Info("intent cancelled")
	return nil
}

// GetIntent reads an intent for the API layer.
func (e *Engine) GetIntent(ctx context.Context, intentID uuid.UUID) (*swap.Intent, error) {
	return e.store.GetIntent(ctx, intentID)
}
