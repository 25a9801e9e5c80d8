package rpc

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// caller is the transport-level JSON-RPC primitive shared by HTTP and WebSocket clients.
type caller interface {
	call(ctx context.Context, method string, params []any, out any) error
}

func chainID(ctx context.Context, c caller) (*big.Int, error) {
	var id hexutil.Big
	if err := c.call(ctx, "eth_chainId", nil, &id); err != nil {
		return nil, err
	}
	return (*big.Int)(&id), nil
}

func blockNumber(ctx context.Context, c caller) (uint64, error) {
	var n hexutil.Uint64
	if err := c.call(ctx, "eth_blockNumber", nil, &n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func getLogs(ctx context.Context, c caller, filter LogFilter) ([]types.Log, error) {
	var logs []types.Log
	if err := c.call(ctx, "eth_getLogs", []any{filter}, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
