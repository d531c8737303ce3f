// Package coordinator consumes swap execution tasks: it drives both
// escrows to funded through the manager, then hands the swap to the reveal
// coordinator. The refund watcher picks up anything these two route to the
// refund path.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/auction"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/manager"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/reveal"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/swap"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/tasks"
)

const handleTimeout = 30 * time.Minute

type Consumer struct {
	logger  *logrus.Entry
	intents auction.Store
	manager *manager.Manager
	reveal  *reveal.Coordinator
	statsd  statsd.ClientInterface
}

func NewConsumer(
	logger *logrus.Logger,
	intents auction.Store,
	mgr *manager.Manager,
	rvl *reveal.Coordinator,
	sd statsd.ClientInterface,
) *Consumer {
	return &Consumer{
		logger:  logger.WithField("pkg", "coordinator"),
		intents: intents,
		manager: mgr,
		reveal:  rvl,
		statsd:  sd,
	}
}

// HandleExecute runs a winning bid end to end: fund both escrows, then
// reveal and claim. Errors after funding leave the swap in Refunding or
// Revealing, both of which are recovered without replaying this task.
func (c *Consumer) HandleExecute(ctx context.Context, t *asynq.Task) error {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	var payload tasks.SwapExecutePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		c.logger.WithError(err).Error("failed to unmarshal execute payload")
		return asynq.SkipRetry
	}

	l := c.logger.WithFields(logrus.Fields{
		"intentId":   payload.IntentID.String(),
		"resolverId": payload.Bid.ResolverID,
	})

	intent, err := c.intents.GetIntent(ctx, payload.IntentID)
	if err != nil {
		l.WithError(err).Error("failed to load intent")
		return asynq.SkipRetry
	}

	start := time.Now()
	rec, secretBytes, err := c.manager.Execute(ctx, intent, &payload.Bid)
	if err != nil {
		// The manager already routed the swap to Refunding or Failed.
		l.WithError(err).Error("swap execution failed")
		return asynq.SkipRetry
	}
	_ = c.statsd.Timing("swap.fund_both_escrows", time.Since(start), nil, 1)

	l = l.WithField("swapId", rec.SwapID.String())
	if err := c.reveal.CompleteSwap(ctx, rec.SwapID, secretBytes); err != nil {
		l.WithError(err).Error("failed to complete swap")
		if rec2, er := c.manager.Resume(ctx, rec.SwapID); er == nil && rec2.State == swap.StateRevealing {
			// Secret is on chain or recoverable from it; replay the task.
			return fmt.Errorf("reveal incomplete, will retry: %w", err)
		}
		return asynq.SkipRetry
	}

	_ = c.statsd.Timing("swap.execute", time.Since(start), nil, 1)
	l.Info("swap executed")
	return nil
}

// HandleResume re-drives one swap after a restart.
func (c *Consumer) HandleResume(ctx context.Context, t *asynq.Task) error {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	var payload tasks.SwapResumePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		c.logger.WithError(err).Error("failed to unmarshal resume payload")
		return asynq.SkipRetry
	}

	l := c.logger.WithField("swapId", payload.SwapID.String())
	rec, err := c.manager.Resume(ctx, payload.SwapID)
	if err != nil {
		l.WithError(err).Error("failed to resume swap")
		return asynq.SkipRetry
	}

	switch rec.State {
	case swap.StateDestEscrowFunded, swap.StateRevealing:
		// The in-memory secret died with the previous process; the reveal
		// coordinator recovers it from the destination chain if disclosed.
		if err := c.reveal.CompleteSwap(ctx, rec.SwapID, nil); err != nil {
			l.WithError(err).Error("failed to complete resumed swap")
			return asynq.SkipRetry
		}
	}

	l.WithField("state", rec.State).Info("swap resumed")
	return nil
}
