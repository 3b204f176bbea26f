package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

var ErrCallNotAllowed = errors.New("rpc call not allowed")

// RPCCaller is satisfied by *rpc.Client from go-ethereum.
type RPCCaller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

// DialRPC connects to the chain node used for forwarded read calls.
func DialRPC(ctx context.Context, url string) (*rpc.Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", url, err)
	}
	return c, nil
}

// Read-only node calls an app may forward through rpcCall.
var allowedRPCCalls = map[string]struct{}{
	"eth_call":                  {},
	"eth_gasPrice":              {},
	"eth_getLogs":               {},
	"eth_getBalance":            {},
	"eth_getCode":               {},
	"eth_getBlockByHash":        {},
	"eth_getBlockByNumber":      {},
	"eth_getStorageAt":          {},
	"eth_getTransactionByHash":  {},
	"eth_getTransactionReceipt": {},
	"eth_getTransactionCount":   {},
	"eth_estimateGas":           {},
	"eth_blockNumber":           {},
	"eth_chainId":               {},
	"net_version":               {},
}

type rpcCallParams struct {
	Call   string            `json:"call"`
	Params []json.RawMessage `json:"params"`
}

func forwardRPC(ctx context.Context, caller RPCCaller, p rpcCallParams) (json.RawMessage, error) {
	if _, ok := allowedRPCCalls[p.Call]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrCallNotAllowed, p.Call)
	}
	if caller == nil {
		return nil, errors.New("rpc node unavailable")
	}
	args := make([]any, len(p.Params))
	for i, a := range p.Params {
		args[i] = a
	}
	var result json.RawMessage
	if err := caller.CallContext(ctx, &result, p.Call, args...); err != nil {
		return nil, err
	}
	return result, nil
}
