// Package near implements the escrow adapter against an escrow contract on
// an action-based chain. Escrow records are keyed by the swap id, so every
// call is idempotent under at-least-once retries.
package near

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/escrow"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/secret"
)

// Signer is the external key/signing service boundary: it signs a
// function-call action on the escrow contract and returns the transaction
// id once broadcast. No key material enters this process.
type Signer interface {
	SignAndSubmit(ctx context.Context, receiverID, method string, args any, depositYocto string) (string, error)
	SenderID() string
}

type Config struct {
	ChainID string
	// Contract is the escrow contract account id.
	Contract string
	// FinalizeInterval is the poll interval while waiting for finality.
	FinalizeInterval time.Duration
	// FinalizeTimeout bounds the wait for a single transaction.
	FinalizeTimeout time.Duration
}

type Adapter struct {
	logger *logrus.Entry
	client *Client
	signer Signer
	cfg    Config
}

func NewAdapter(logger *logrus.Logger, client *Client, signer Signer, cfg Config) *Adapter {
	if cfg.FinalizeInterval == 0 {
		cfg.FinalizeInterval = 2 * time.Second
	}
	if cfg.FinalizeTimeout == 0 {
		cfg.FinalizeTimeout = 5 * time.Minute
	}
	return &Adapter{
		logger: logger.WithField("pkg", "escrow.near").WithField("chain", cfg.ChainID),
		client: client,
		signer: signer,
		cfg:    cfg,
	}
}

func (a *Adapter) ChainID() string { return a.cfg.ChainID }

// contractEscrow mirrors the contract's escrow record JSON.
type contractEscrow struct {
	ID          string `json:"id"`
	Token       string `json:"token"`
	Amount      string `json:"amount"`
	Hashlock    string `json:"hashlock"`
	TimelockSec int64  `json:"timelock"`
	Beneficiary string `json:"beneficiary"`
	State       string `json:"state"`
	Preimage    string `json:"preimage,omitempty"`
}

func refFor(p escrow.CreateParams) escrow.Ref {
	return escrow.Ref(hex.EncodeToString(p.SwapID[:]))
}

func (a *Adapter) CreateEscrow(ctx context.Context, p escrow.CreateParams) (escrow.Ref, error) {
	ref := refFor(p)

	// Replay check before re-submitting the create action.
	if esc, err := a.getEscrow(ctx, ref); err == nil && esc != nil {
		return ref, nil
	}

	deposit := "0"
	if p.Token == "" {
		deposit = p.Amount.String()
	}
	args := map[string]any{
		"id":          string(ref),
		"token":       p.Token,
		"amount":      p.Amount.String(),
		"hashlock":    p.Hashlock.String(),
		"timelock":    p.Timelock.Unix(),
		"beneficiary": p.Beneficiary,
	}
	txID, err := a.signer.SignAndSubmit(ctx, a.cfg.Contract, "create_escrow", args, deposit)
	if err != nil {
		return "", fmt.Errorf("failed to submit create_escrow: %w", err)
	}
	if err := a.waitFinal(ctx, txID); err != nil {
		return "", fmt.Errorf("create_escrow did not finalize: %w", err)
	}

	a.logger.WithFields(logrus.Fields{
		"ref":    ref,
		"txId":   txID,
		"amount": p.Amount.String(),
	}).Info("escrow created")
	return ref, nil
}

func (a *Adapter) Release(ctx context.Context, ref escrow.Ref, secretBytes []byte) (escrow.Receipt, error) {
	esc, err := a.getEscrow(ctx, ref)
	if err != nil {
		return escrow.Receipt{}, err
	}
	if esc == nil {
		return escrow.Receipt{}, escrow.ErrNotFound
	}

	lock, err := secret.HashlockFromHex(esc.Hashlock)
	if err != nil {
		return escrow.Receipt{}, fmt.Errorf("failed to parse on-chain hashlock: %w", err)
	}
	ok, err := secret.Verify(secretBytes, lock)
	if err != nil || !ok {
		return escrow.Receipt{}, fmt.Errorf("preimage mismatch for %s: %w", ref, escrow.ErrRejected)
	}
	if time.Now().Unix() >= esc.TimelockSec {
		return escrow.Receipt{}, escrow.ErrTimelockExpired
	}
	switch esc.State {
	case "resolved":
		return escrow.Receipt{TxHash: string(ref)}, nil
	case "refunded":
		return escrow.Receipt{}, escrow.ErrAlreadyFinalized
	}

	txID, err := a.signer.SignAndSubmit(ctx, a.cfg.Contract, "claim", map[string]any{
		"id":       string(ref),
		"preimage": hex.EncodeToString(secretBytes),
	}, "0")
	if err != nil {
		return escrow.Receipt{}, fmt.Errorf("failed to submit claim: %w", err)
	}
	if err := a.waitFinal(ctx, txID); err != nil {
		return escrow.Receipt{}, fmt.Errorf("claim did not finalize: %w", err)
	}
	return escrow.Receipt{TxHash: txID}, nil
}

func (a *Adapter) Refund(ctx context.Context, ref escrow.Ref) (escrow.Receipt, error) {
	esc, err := a.getEscrow(ctx, ref)
	if err != nil {
		return escrow.Receipt{}, err
	}
	if esc == nil {
		return escrow.Receipt{}, escrow.ErrNotFound
	}
	switch esc.State {
	case "refunded":
		return escrow.Receipt{TxHash: string(ref)}, nil
	case "resolved":
		return escrow.Receipt{}, escrow.ErrAlreadyFinalized
	}
	if time.Now().Unix() < esc.TimelockSec {
		return escrow.Receipt{}, escrow.ErrTimelockNotExpired
	}

	txID, err := a.signer.SignAndSubmit(ctx, a.cfg.Contract, "refund", map[string]any{
		"id": string(ref),
	}, "0")
	if err != nil {
		return escrow.Receipt{}, fmt.Errorf("failed to submit refund: %w", err)
	}
	if err := a.waitFinal(ctx, txID); err != nil {
		return escrow.Receipt{}, fmt.Errorf("refund did not finalize: %w", err)
	}
	return escrow.Receipt{TxHash: txID}, nil
}

func (a *Adapter) GetState(ctx context.Context, ref escrow.Ref) (escrow.State, error) {
	esc, err := a.getEscrow(ctx, ref)
	if err != nil {
		return escrow.StateUnknown, err
	}
	if esc == nil {
		// Created but not yet visible at final finality.
		return escrow.StatePending, nil
	}
	switch esc.State {
	case "funded":
		return escrow.StateFunded, nil
	case "resolved":
		return escrow.StateResolved, nil
	case "refunded":
		return escrow.StateRefunded, nil
	default:
		return escrow.StatePending, nil
	}
}

func (a *Adapter) RevealedSecret(ctx context.Context, ref escrow.Ref) ([]byte, error) {
	esc, err := a.getEscrow(ctx, ref)
	if err != nil {
		return nil, err
	}
	if esc == nil {
		return nil, escrow.ErrNotFound
	}
	if esc.State != "resolved" || esc.Preimage == "" {
		return nil, escrow.ErrSecretNotRevealed
	}
	preimage, err := hex.DecodeString(esc.Preimage)
	if err != nil {
		return nil, fmt.Errorf("failed to decode on-chain preimage: %w", err)
	}
	return preimage, nil
}

// getEscrow returns nil without error when the contract has no record yet.
func (a *Adapter) getEscrow(ctx context.Context, ref escrow.Ref) (*contractEscrow, error) {
	var esc *contractEscrow
	err := a.client.ViewFunction(ctx, a.cfg.Contract, "get_escrow", map[string]any{
		"id": string(ref),
	}, &esc)
	if err != nil {
		return nil, err
	}
	return esc, nil
}

func (a *Adapter) waitFinal(ctx context.Context, txID string) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.FinalizeTimeout)
	defer cancel()

	ticker := time.NewTicker(a.cfg.FinalizeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", escrow.ErrNetworkUnavailable, ctx.Err())
		case <-ticker.C:
			done, err := a.client.TxFinalized(ctx, txID, a.signer.SenderID())
			if err != nil {
				if escrow.Retryable(err) {
					continue
				}
				return err
			}
			if done {
				return nil
			}
		}
	}
}
