// internal/infra/solana/rpc_client.go
package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Solana Devnet RPC endpoint (default)
const DevnetEndpoint = "https://api.devnet.solana.com"

var ErrSimulationFailed = errors.New("solana rpc: simulation failed")

// LogSimulator は simulateTransaction でプログラムログを取得します。
// introspection のログフォールバック専用です。
type LogSimulator interface {
	SimulateLogs(ctx context.Context, txBase64 string) ([]string, error)
}

// JSONRPCClient is a simple HTTP JSON-RPC client for Solana.
type JSONRPCClient struct {
	Endpoint string
	HTTP     *http.Client
}

var _ LogSimulator = (*JSONRPCClient)(nil)

// NewJSONRPCClient creates a Solana JSON-RPC client.
// endpoint が空なら DevnetEndpoint を使います。
func NewJSONRPCClient(endpoint string) *JSONRPCClient {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = DevnetEndpoint
	}
	return &JSONRPCClient{
		Endpoint: ep,
		HTTP: &http.Client{
			Timeout: 12 * time.Second,
		},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (c *JSONRPCClient) call(ctx context.Context, method string, params any, out any) error {
	if c == nil || c.Endpoint == "" || c.HTTP == nil {
		return fmt.Errorf("solana rpc: client not configured")
	}

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("solana rpc: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("solana rpc: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("solana rpc: http do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("solana rpc: http status=%d", resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("solana rpc: decode response: %w", err)
	}
	if rr.Error != nil {
		return fmt.Errorf("solana rpc: error code=%d message=%s", rr.Error.Code, rr.Error.Message)
	}

	if out != nil {
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return fmt.Errorf("solana rpc: unmarshal result: %w", err)
		}
	}
	return nil
}

// SimulateTransactionResult is the decoded `result` object for simulateTransaction.
type SimulateTransactionResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value struct {
		Err           json.RawMessage `json:"err"`
		Logs          []string        `json:"logs"`
		UnitsConsumed uint64          `json:"unitsConsumed"`
	} `json:"value"`
}

// SimulateLogs は署名検証なし・最新 blockhash 置換でシミュレーションし、ログを返します。
// シミュレーション自体がエラーでもログは返します（err と一緒に）。
func (c *JSONRPCClient) SimulateLogs(ctx context.Context, txBase64 string) ([]string, error) {
	tx := strings.TrimSpace(txBase64)
	if tx == "" {
		return nil, fmt.Errorf("solana rpc: transaction is empty")
	}

	var out SimulateTransactionResult
	params := []any{
		tx,
		map[string]any{
			"encoding":               "base64",
			"sigVerify":              false,
			"replaceRecentBlockhash": true,
			"commitment":             "processed",
		},
	}
	if err := c.call(ctx, "simulateTransaction", params, &out); err != nil {
		return nil, err
	}

	if e := bytes.TrimSpace(out.Value.Err); len(e) > 0 && !bytes.Equal(e, []byte("null")) {
		return out.Value.Logs, fmt.Errorf("%w: %s", ErrSimulationFailed, string(e))
	}
	return out.Value.Logs, nil
}
