package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	ID     int64           `json:"id"`
}

// rawTemplate mirrors the JSON shape returned by getblocktemplate.
type rawTemplate struct {
	Version           int32  `json:"version"`
	PreviousBlockHash string `json:"previousblockhash"`
	CoinbaseValue     uint64 `json:"coinbasevalue"`
	Bits              string `json:"bits"`
	CurTime           uint32 `json:"curtime"`
	Height            int64  `json:"height"`
	Default_wc        string `json:"default_witness_commitment"`
	Transactions      []struct {
		Data string `json:"data"`
		TxID string `json:"txid"`
		Fee  int64  `json:"fee"`
	} `json:"transactions"`
}

// RPCClient implements BitcoinRPC using JSON-RPC over HTTP with basic auth,
// the same transport shape bitcoind and its derivatives expose.
type RPCClient struct {
	url      string
	user     string
	password string
	client   *http.Client
	idSeq    atomic.Int64
}

// NewRPCClient creates a coin-daemon JSON-RPC client.
func NewRPCClient(url, user, password string, timeout time.Duration) *RPCClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RPCClient{
		url:      url,
		user:     user,
		password: password,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *RPCClient) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	id := c.idSeq.Add(1)

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "1.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.user, c.password)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("rpc request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp rpcResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w (body: %s)", err, string(respBody))
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	return resp.Result, nil
}

// GetBlockTemplate fetches a new candidate template from the daemon.
func (c *RPCClient) GetBlockTemplate(ctx context.Context) (*BlockTemplateData, error) {
	req := map[string]interface{}{"rules": []string{"segwit"}}

	result, err := c.call(ctx, "getblocktemplate", req)
	if err != nil {
		return nil, fmt.Errorf("getblocktemplate: %w", err)
	}

	var raw rawTemplate
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal block template: %w", err)
	}

	txs := make([]TemplateTx, len(raw.Transactions))
	for i, t := range raw.Transactions {
		txs[i] = TemplateTx{Data: t.Data, TxID: t.TxID, Fee: t.Fee}
	}

	return &BlockTemplateData{
		Version:           raw.Version,
		PreviousBlockHash: raw.PreviousBlockHash,
		Transactions:      txs,
		CoinbaseValue:     raw.CoinbaseValue,
		Bits:              raw.Bits,
		CurTime:           raw.CurTime,
		Height:            raw.Height,
		WitnessCommitment: raw.Default_wc,
	}, nil
}

// SubmitBlock submits a solved block via submitblock. Only blockHex crosses
// the wire; blockHashHex and powHashHex are accepted for interface symmetry
// with the registry's bookkeeping and are otherwise unused here.
func (c *RPCClient) SubmitBlock(ctx context.Context, blockHex, _ string, _ string) (bool, error) {
	result, err := c.call(ctx, "submitblock", blockHex)
	if err != nil {
		return false, fmt.Errorf("submitblock: %w", err)
	}

	// submitblock returns null on success, a string reason on rejection.
	var reason string
	if err := json.Unmarshal(result, &reason); err == nil && reason != "" {
		return true, nil
	}
	return false, nil
}
