// Package evm implements the escrow adapter against a hashed-timelock
// escrow contract on an EVM chain. Escrow ids are derived from the swap id,
// which makes every call idempotent under at-least-once retries: replaying
// a create or release observes the finalized escrow instead of duplicating
// it. Finalized reads are performed at a confirmation-depth offset from the
// chain head, never against pending state.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/escrow"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/secret"
)

const htlcABI = `[
	{"type":"function","name":"newEscrow","inputs":[
		{"name":"id","type":"bytes32"},
		{"name":"hashlock","type":"bytes32"},
		{"name":"timelock","type":"uint256"},
		{"name":"beneficiary","type":"address"},
		{"name":"token","type":"address"},
		{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdraw","inputs":[
		{"name":"id","type":"bytes32"},
		{"name":"preimage","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"refund","inputs":[
		{"name":"id","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"getEscrow","inputs":[
		{"name":"id","type":"bytes32"}],"outputs":[
		{"name":"depositor","type":"address"},
		{"name":"beneficiary","type":"address"},
		{"name":"token","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"hashlock","type":"bytes32"},
		{"name":"timelock","type":"uint256"},
		{"name":"state","type":"uint8"},
		{"name":"preimage","type":"bytes32"}],"stateMutability":"view"}
]`

// Contract-side escrow states.
const (
	contractStateNone     = 0
	contractStateFunded   = 1
	contractStateResolved = 2
	contractStateRefunded = 3
)

// Signer is the external key/signing service boundary. The adapter hands it
// unsigned call data and receives a broadcast transaction hash back; no
// private key material enters this process.
type Signer interface {
	SignAndBroadcast(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error)
}

type Config struct {
	ChainID string
	// Contract is the deployed hashed-timelock escrow contract.
	Contract common.Address
	// ConfirmDepth is how many blocks behind head a read counts as final.
	ConfirmDepth uint64
	// ReceiptInterval is the poll interval while waiting for a transaction
	// to be mined and buried.
	ReceiptInterval time.Duration
}

type Adapter struct {
	logger   *logrus.Entry
	client   *ethclient.Client
	signer   Signer
	contract common.Address
	abi      abi.ABI
	cfg      Config
}

func NewAdapter(logger *logrus.Logger, client *ethclient.Client, signer Signer, cfg Config) (*Adapter, error) {
	parsed, err := abi.JSON(strings.NewReader(htlcABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow ABI: %w", err)
	}
	if cfg.ReceiptInterval == 0 {
		cfg.ReceiptInterval = 2 * time.Second
	}
	if cfg.ConfirmDepth == 0 {
		cfg.ConfirmDepth = 2
	}
	return &Adapter{
		logger:   logger.WithField("pkg", "escrow.evm").WithField("chain", cfg.ChainID),
		client:   client,
		signer:   signer,
		contract: cfg.Contract,
		abi:      parsed,
		cfg:      cfg,
	}, nil
}

func (a *Adapter) ChainID() string { return a.cfg.ChainID }

// escrowID derives the deterministic contract-side id for a swap.
func escrowID(p escrow.CreateParams) common.Hash {
	return crypto.Keccak256Hash([]byte("escrow:"), p.SwapID[:])
}

func (a *Adapter) CreateEscrow(ctx context.Context, p escrow.CreateParams) (escrow.Ref, error) {
	id := escrowID(p)
	ref := escrow.Ref(id.Hex())

	// Replay check: an earlier attempt may already have finalized.
	if _, err := a.readEscrow(ctx, id); err == nil {
		return ref, nil
	} else if !errors.Is(err, escrow.ErrNotFound) {
		return "", err
	}

	token := common.Address{}
	if p.Token != "" {
		token = common.HexToAddress(p.Token)
	}
	data, err := a.abi.Pack("newEscrow",
		id,
		common.Hash(p.Hashlock),
		big.NewInt(p.Timelock.Unix()),
		common.HexToAddress(p.Beneficiary),
		token,
		p.Amount,
	)
	if err != nil {
		return "", fmt.Errorf("failed to pack newEscrow: %w", err)
	}

	value := big.NewInt(0)
	if p.Token == "" {
		value = p.Amount
	}
	txHash, err := a.signer.SignAndBroadcast(ctx, a.contract, value, data)
	if err != nil {
		return "", fmt.Errorf("failed to broadcast escrow creation: %w", wrapNetwork(err))
	}

	if err := a.waitBuried(ctx, txHash); err != nil {
		return "", fmt.Errorf("escrow creation did not finalize: %w", err)
	}

	a.logger.WithFields(logrus.Fields{
		"ref":    ref,
		"txHash": txHash.Hex(),
		"amount": p.Amount.String(),
	}).Info("escrow created")
	return ref, nil
}

func (a *Adapter) Release(ctx context.Context, ref escrow.Ref, secretBytes []byte) (escrow.Receipt, error) {
	id := common.HexToHash(string(ref))

	esc, err := a.readEscrow(ctx, id)
	if err != nil {
		return escrow.Receipt{}, err
	}

	// Re-verify the preimage locally before putting anything on chain.
	var lock secret.Hashlock
	copy(lock[:], esc.Hashlock[:])
	ok, err := secret.Verify(secretBytes, lock)
	if err != nil || !ok {
		return escrow.Receipt{}, fmt.Errorf("preimage mismatch for %s: %w", ref, escrow.ErrRejected)
	}
	if time.Now().Unix() >= esc.Timelock.Int64() {
		return escrow.Receipt{}, escrow.ErrTimelockExpired
	}
	switch esc.State {
	case contractStateResolved:
		return escrow.Receipt{TxHash: string(ref)}, nil
	case contractStateRefunded:
		return escrow.Receipt{}, escrow.ErrAlreadyFinalized
	}

	var preimage common.Hash
	copy(preimage[:], secretBytes)
	data, err := a.abi.Pack("withdraw", id, preimage)
	if err != nil {
		return escrow.Receipt{}, fmt.Errorf("failed to pack withdraw: %w", err)
	}
	return a.submit(ctx, data, "release", ref)
}

func (a *Adapter) Refund(ctx context.Context, ref escrow.Ref) (escrow.Receipt, error) {
	id := common.HexToHash(string(ref))

	esc, err := a.readEscrow(ctx, id)
	if err != nil {
		return escrow.Receipt{}, err
	}
	switch esc.State {
	case contractStateRefunded:
		return escrow.Receipt{TxHash: string(ref)}, nil
	case contractStateResolved:
		return escrow.Receipt{}, escrow.ErrAlreadyFinalized
	}
	if time.Now().Unix() < esc.Timelock.Int64() {
		return escrow.Receipt{}, escrow.ErrTimelockNotExpired
	}

	data, err := a.abi.Pack("refund", id)
	if err != nil {
		return escrow.Receipt{}, fmt.Errorf("failed to pack refund: %w", err)
	}
	return a.submit(ctx, data, "refund", ref)
}

func (a *Adapter) GetState(ctx context.Context, ref escrow.Ref) (escrow.State, error) {
	return a.readState(ctx, common.HexToHash(string(ref)))
}

func (a *Adapter) RevealedSecret(ctx context.Context, ref escrow.Ref) ([]byte, error) {
	esc, err := a.readEscrow(ctx, common.HexToHash(string(ref)))
	if err != nil {
		return nil, err
	}
	if esc.State != contractStateResolved {
		return nil, escrow.ErrSecretNotRevealed
	}
	return esc.Preimage[:], nil
}

type contractEscrow struct {
	Depositor   common.Address
	Beneficiary common.Address
	Token       common.Address
	Amount      *big.Int
	Hashlock    common.Hash
	Timelock    *big.Int
	State       uint8
	Preimage    common.Hash
}

// finalizedBlock returns the read height: head minus the confirmation depth.
func (a *Adapter) finalizedBlock(ctx context.Context) (*big.Int, error) {
	head, err := a.client.BlockNumber(ctx)
	if err != nil {
		return nil, wrapNetwork(err)
	}
	if head <= a.cfg.ConfirmDepth {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetUint64(head - a.cfg.ConfirmDepth), nil
}

func (a *Adapter) readEscrow(ctx context.Context, id common.Hash) (*contractEscrow, error) {
	block, err := a.finalizedBlock(ctx)
	if err != nil {
		return nil, err
	}
	data, err := a.abi.Pack("getEscrow", id)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getEscrow: %w", err)
	}

	out, err := a.client.CallContract(ctx, callMsg(a.contract, data), block)
	if err != nil {
		return nil, wrapNetwork(err)
	}

	var esc contractEscrow
	if err := a.abi.UnpackIntoInterface(&esc, "getEscrow", out); err != nil {
		return nil, fmt.Errorf("failed to unpack escrow: %w", err)
	}
	if esc.State == contractStateNone {
		return nil, escrow.ErrNotFound
	}
	return &esc, nil
}

func (a *Adapter) readState(ctx context.Context, id common.Hash) (escrow.State, error) {
	esc, err := a.readEscrow(ctx, id)
	if err != nil {
		if errors.Is(err, escrow.ErrNotFound) {
			// Created but not yet visible at the finalized height.
			return escrow.StatePending, nil
		}
		return escrow.StateUnknown, err
	}
	switch esc.State {
	case contractStateFunded:
		return escrow.StateFunded, nil
	case contractStateResolved:
		return escrow.StateResolved, nil
	case contractStateRefunded:
		return escrow.StateRefunded, nil
	default:
		return escrow.StateUnknown, nil
	}
}

// submit signs, broadcasts and waits until the transaction is buried past
// the confirmation depth.
func (a *Adapter) submit(ctx context.Context, data []byte, op string, ref escrow.Ref) (escrow.Receipt, error) {
	txHash, err := a.signer.SignAndBroadcast(ctx, a.contract, big.NewInt(0), data)
	if err != nil {
		return escrow.Receipt{}, fmt.Errorf("failed to broadcast %s: %w", op, wrapNetwork(err))
	}
	if err := a.waitBuried(ctx, txHash); err != nil {
		return escrow.Receipt{}, fmt.Errorf("%s did not finalize: %w", op, err)
	}

	receipt, err := a.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		return escrow.Receipt{}, wrapNetwork(err)
	}
	a.logger.WithFields(logrus.Fields{
		"ref":    ref,
		"op":     op,
		"txHash": txHash.Hex(),
	}).Info("escrow transaction finalized")
	return escrow.Receipt{TxHash: txHash.Hex(), BlockHeight: receipt.BlockNumber.Uint64()}, nil
}

// waitBuried polls for the receipt and then for the confirmation depth.
func (a *Adapter) waitBuried(ctx context.Context, txHash common.Hash) error {
	ticker := time.NewTicker(a.cfg.ReceiptInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			receipt, err := a.client.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue
			}
			if receipt.Status == 0 {
				return fmt.Errorf("transaction %s reverted: %w", txHash.Hex(), escrow.ErrRejected)
			}
			head, err := a.client.BlockNumber(ctx)
			if err != nil {
				continue
			}
			if head >= receipt.BlockNumber.Uint64()+a.cfg.ConfirmDepth {
				return nil
			}
		}
	}
}

func callMsg(to common.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{To: &to, Data: data}
}

func wrapNetwork(err error) error {
	return fmt.Errorf("%w: %v", escrow.ErrNetworkUnavailable, err)
}
