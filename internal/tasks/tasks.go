// Package tasks defines the asynq task types carried between the relayer
// (which resolves auctions) and the coordinator (which executes swaps).
package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/swap"
)

const (
	QueueName = "swaps"

	TypeSwapExecute = "swap:execute"
	TypeSwapResume  = "swap:resume"
)

// SwapExecutePayload carries a winning bid to the coordinator. The
// coordinator re-reads the intent from storage; the bid is embedded because
// it was consumed by the auction and is immutable from here on.
type SwapExecutePayload struct {
	IntentID uuid.UUID `json:"intentId"`
	Bid      swap.Bid  `json:"bid"`
}

func NewSwapExecuteTask(intentID uuid.UUID, bid swap.Bid) (*asynq.Task, error) {
	payload, err := json.Marshal(SwapExecutePayload{IntentID: intentID, Bid: bid})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal swap execute payload: %w", err)
	}
	return asynq.NewTask(TypeSwapExecute, payload, asynq.Queue(QueueName)), nil
}

// SwapResumePayload re-drives a swap from its last durable state.
type SwapResumePayload struct {
	SwapID uuid.UUID `json:"swapId"`
}

func NewSwapResumeTask(swapID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(SwapResumePayload{SwapID: swapID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal swap resume payload: %w", err)
	}
	return asynq.NewTask(TypeSwapResume, payload, asynq.Queue(QueueName)), nil
}
