package near

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/escrow"
)

// Client talks JSON-RPC to an action-based chain node. Views are always
// requested at "final" finality, so reads reflect finalized state only.
type Client struct {
	rpcURL     string
	httpClient *http.Client
}

func NewClient(rpcURL string) *Client {
	return &Client{
		rpcURL: rpcURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Name  string          `json:"name"`
	Cause json.RawMessage `json:"cause,omitempty"`
	Data  string          `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %s: %s", e.Name, e.Data)
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("near: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("near: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("near: %w: %v", escrow.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("near: %w: unexpected status code %d", escrow.ErrNetworkUnavailable, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("near: failed to decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("near: %w", rpcResp.Error)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("near: failed to unmarshal result: %w", err)
		}
	}
	return nil
}

type viewResult struct {
	Result      []byte `json:"result"`
	BlockHeight uint64 `json:"block_height"`
}

// ViewFunction calls a read-only contract method at final finality and
// unmarshals its JSON return value into out.
func (c *Client) ViewFunction(ctx context.Context, accountID, method string, args any, out any) error {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("near: failed to marshal view args: %w", err)
	}

	var res viewResult
	err = c.call(ctx, "query", map[string]any{
		"request_type": "call_function",
		"finality":     "final",
		"account_id":   accountID,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(argsJSON),
	}, &res)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(res.Result, out); err != nil {
			return fmt.Errorf("near: failed to unmarshal view result of %s: %w", method, err)
		}
	}
	return nil
}

type txStatus struct {
	Status struct {
		SuccessValue *string         `json:"SuccessValue,omitempty"`
		Failure      json.RawMessage `json:"Failure,omitempty"`
	} `json:"status"`
}

// TxFinalized reports whether a transaction executed successfully at final
// finality. A failure on chain surfaces as a non-retryable rejection.
func (c *Client) TxFinalized(ctx context.Context, txID, senderID string) (bool, error) {
	var st txStatus
	err := c.call(ctx, "tx", map[string]any{
		"tx_hash":           txID,
		"sender_account_id": senderID,
		"wait_until":        "FINAL",
	}, &st)
	if err != nil {
		return false, err
	}
	if st.Status.Failure != nil {
		return false, fmt.Errorf("near: transaction %s failed: %s: %w", txID, st.Status.Failure, escrow.ErrRejected)
	}
	return st.Status.SuccessValue != nil, nil
}
