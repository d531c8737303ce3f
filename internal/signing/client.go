// Package signing is the client for the external key/signing service. The
// coordinator hands it unsigned escrow instructions and gets back the
// identifier of a signed, broadcast transaction; private keys never enter
// this process.
package signing

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/escrow"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *Client) post(ctx context.Context, path string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("signing: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("signing: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("signing: %w: %v", escrow.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("signing: %w: status %d", escrow.ErrNetworkUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signing: request rejected with status %d: %w", resp.StatusCode, escrow.ErrRejected)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("signing: failed to decode response: %w", err)
	}
	return nil
}

// EVMSigner implements the EVM adapter's Signer against the service.
type EVMSigner struct {
	client  *Client
	chainID string
}

func NewEVMSigner(client *Client, chainID string) *EVMSigner {
	return &EVMSigner{client: client, chainID: chainID}
}

type evmSignRequest struct {
	ChainID string `json:"chainId"`
	To      string `json:"to"`
	Value   string `json:"value"`
	Data    string `json:"data"`
}

type evmSignResponse struct {
	TxHash string `json:"txHash"`
}

func (s *EVMSigner) SignAndBroadcast(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	var resp evmSignResponse
	err := s.client.post(ctx, "/sign/evm", evmSignRequest{
		ChainID: s.chainID,
		To:      to.Hex(),
		Value:   value.String(),
		Data:    hex.EncodeToString(data),
	}, &resp)
	if err != nil {
		return common.Hash{}, err
	}
	return common.HexToHash(resp.TxHash), nil
}

// ActionSigner implements the action-chain adapter's Signer against the
// service.
type ActionSigner struct {
	client   *Client
	chainID  string
	senderID string
}

func NewActionSigner(client *Client, chainID, senderID string) *ActionSigner {
	return &ActionSigner{client: client, chainID: chainID, senderID: senderID}
}

type actionSignRequest struct {
	ChainID    string          `json:"chainId"`
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId"`
	Method     string          `json:"method"`
	Args       json.RawMessage `json:"args"`
	Deposit    string          `json:"deposit"`
}

type actionSignResponse struct {
	TxID string `json:"txId"`
}

func (s *ActionSigner) SignAndSubmit(ctx context.Context, receiverID, method string, args any, deposit string) (string, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("signing: failed to marshal action args: %w", err)
	}

	var resp actionSignResponse
	err = s.client.post(ctx, "/sign/action", actionSignRequest{
		ChainID:    s.chainID,
		SenderID:   s.senderID,
		ReceiverID: receiverID,
		Method:     method,
		Args:       argsJSON,
		Deposit:    deposit,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.TxID, nil
}

func (s *ActionSigner) SenderID() string { return s.senderID }
