// Package chain provides Neo N3 RPC access and NEP-17 payout transfers.
package chain

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

const (
	defaultRPCTimeout = 30 * time.Second
	maxRPCResponse    = 8 << 20
)

// Client talks JSON-RPC 2.0 to a single Neo N3 node.
type Client struct {
	endpoint string
	http     *http.Client
	magic    uint32
	nextID   atomic.Int64
}

// Config configures a Client. NetworkID is the network magic, 860833102 on
// MainNet and 894710606 on TestNet.
type Config struct {
	RPCURL    string
	NetworkID uint32
	Timeout   time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("chain: rpc url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}
	return &Client{
		endpoint: cfg.RPCURL,
		http:     &http.Client{Timeout: timeout},
		magic:    cfg.NetworkID,
	}, nil
}

// NetworkID returns the network magic transactions are signed for.
func (c *Client) NetworkID() uint32 {
	return c.magic
}

// Call sends one request and returns the raw result. Node errors come back
// as *RPCError.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	payload, err := json.Marshal(RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      int(c.nextID.Add(1)),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRPCResponse))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", method, err)
	}

	var out RPCResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("%s: node answered %s", method, resp.Status)
		}
		return nil, fmt.Errorf("%s: decode response: %w", method, err)
	}
	if out.Error != nil {
		return nil, out.Error
	}
	return out.Result, nil
}

// callInto runs method and decodes its result into dst.
func (c *Client) callInto(ctx context.Context, dst interface{}, method string, params ...interface{}) error {
	result, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(result, dst); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// GetBlockCount returns the node's current height.
func (c *Client) GetBlockCount(ctx context.Context) (uint32, error) {
	var height uint32
	if err := c.callInto(ctx, &height, "getblockcount"); err != nil {
		return 0, err
	}
	return height, nil
}

func (c *Client) GetApplicationLog(ctx context.Context, txHash string) (*ApplicationLog, error) {
	var appLog ApplicationLog
	if err := c.callInto(ctx, &appLog, "getapplicationlog", txHash); err != nil {
		return nil, err
	}
	return &appLog, nil
}
