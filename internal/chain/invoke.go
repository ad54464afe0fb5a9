package chain

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/tidwall/gjson"
)

// DefaultTxWaitTimeout is the default timeout for waiting for transaction execution.
const DefaultTxWaitTimeout = 2 * time.Minute

// DefaultPollInterval is the default interval for polling transaction status.
const DefaultPollInterval = 2 * time.Second

// InvokeFunction invokes a contract function (read-only).
func (c *Client) InvokeFunction(ctx context.Context, scriptHash, method string, params []ContractParam) (*InvokeResult, error) {
	if params == nil {
		params = []ContractParam{}
	}
	var res InvokeResult
	if err := c.callInto(ctx, &res, "invokefunction", scriptHash, method, params); err != nil {
		return nil, err
	}
	return &res, nil
}

// InvokeScript test-runs script (read-only).
func (c *Client) InvokeScript(ctx context.Context, script []byte, signers []Signer) (*InvokeResult, error) {
	args := []interface{}{base64.StdEncoding.EncodeToString(script)}
	if len(signers) > 0 {
		args = append(args, signers)
	}

	var res InvokeResult
	if err := c.callInto(ctx, &res, "invokescript", args...); err != nil {
		return nil, err
	}
	return &res, nil
}

// CalculateNetworkFee asks the node for the network fee of tx, which must
// carry its verification scripts.
func (c *Client) CalculateNetworkFee(ctx context.Context, tx *transaction.Transaction) (int64, error) {
	result, err := c.Call(ctx, "calculatenetworkfee", []interface{}{base64.StdEncoding.EncodeToString(tx.Bytes())})
	if err != nil {
		return 0, err
	}
	fee := gjson.GetBytes(result, "networkfee")
	if !fee.Exists() {
		return 0, fmt.Errorf("calculatenetworkfee: missing networkfee in %s", result)
	}
	return fee.Int(), nil
}

// SendRawTransaction broadcasts a signed transaction and returns its hash.
func (c *Client) SendRawTransaction(ctx context.Context, tx *transaction.Transaction) (string, error) {
	result, err := c.Call(ctx, "sendrawtransaction", []interface{}{base64.StdEncoding.EncodeToString(tx.Bytes())})
	if err != nil {
		return "", err
	}

	hash := gjson.GetBytes(result, "hash").String()
	if hash == "" {
		return "", fmt.Errorf("sendrawtransaction: missing hash in %s", result)
	}
	return hash, nil
}

// WaitForApplicationLog polls for a transaction application log until it is available or context is done.
// A missing transaction is treated as transient and retried until the context deadline/timeout expires.
func (c *Client) WaitForApplicationLog(ctx context.Context, txHash string, pollInterval time.Duration) (*ApplicationLog, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			log, err := c.GetApplicationLog(ctx, txHash)
			if err != nil {
				if isNotFoundError(err) {
					continue
				}
				return nil, err
			}
			return log, nil
		}
	}
}
