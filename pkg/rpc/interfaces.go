package rpc

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"
)

// Client captures the JSON-RPC calls the engine needs to follow a contract's logs.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, filter LogFilter) ([]types.Log, error)
	Close() error
}

// Factory produces RPC clients for a given set of endpoints.
type Factory interface {
	Dial(ctx context.Context, endpoints []string) (Client, error)
}

type factory struct {
	opts Opts
}

// NewFactory returns a factory that builds HTTP or WebSocket clients with shared defaults.
// The scheme of the first endpoint decides the transport; mixing schemes is rejected.
func NewFactory(opts Opts) Factory {
	return &factory{opts: opts}
}

func (f *factory) Dial(ctx context.Context, endpoints []string) (Client, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints configured")
	}
	scheme, err := schemeOf(endpoints[0])
	if err != nil {
		return nil, err
	}
	for _, ep := range endpoints[1:] {
		s, err := schemeOf(ep)
		if err != nil {
			return nil, err
		}
		if isWS(s) != isWS(scheme) {
			return nil, fmt.Errorf("cannot mix websocket and http endpoints: %s", ep)
		}
	}

	if isWS(scheme) {
		// A websocket client holds a single connection; extra endpoints are tried in order.
		var lastErr error
		for _, ep := range endpoints {
			c, err := DialWS(ctx, ep, f.opts)
			if err == nil {
				return c, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}

	o := f.opts
	o.Endpoints = endpoints
	return NewHTTPWithOpts(o), nil
}

func schemeOf(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	switch s := strings.ToLower(u.Scheme); s {
	case "http", "https", "ws", "wss":
		return s, nil
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
}

func isWS(scheme string) bool { return scheme == "ws" || scheme == "wss" }
