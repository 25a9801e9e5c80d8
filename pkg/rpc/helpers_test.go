package rpc_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lynx-network/lynx-indexer/pkg/rpc"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestRPCClient(handler http.Handler) *rpc.HTTPClient {
	return newTestRPCClientWithOpts(handler, rpc.Opts{})
}

func newTestRPCClientWithOpts(handler http.Handler, opts rpc.Opts) *rpc.HTTPClient {
	httpClient := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			resp := rec.Result()
			if resp.Body == nil {
				resp.Body = http.NoBody
			}
			return resp, nil
		}),
		Timeout: 5 * time.Second,
	}

	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RPS == 0 {
		opts.RPS = 1000
		opts.Burst = 1000
	}
	if len(opts.Endpoints) == 0 {
		opts.Endpoints = []string{"http://mock"}
	}
	opts.HTTPClient = httpClient

	return rpc.NewHTTPWithOpts(opts)
}

type rpcCall struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// jsonRPCHandler answers each method with the canned result, or a JSON-RPC error when result is an error.
func jsonRPCHandler(t *testing.T, results map[string]any, seen func(rpcCall)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var call rpcCall
		require.NoError(t, json.Unmarshal(body, &call))
		if seen != nil {
			seen(call)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply(call, results))
	})
}

func reply(call rpcCall, results map[string]any) map[string]any {
	out := map[string]any{"jsonrpc": "2.0", "id": call.ID}
	res, ok := results[call.Method]
	switch {
	case !ok:
		out["error"] = map[string]any{"code": -32601, "message": "method not found"}
	case res == nil:
		out["result"] = nil
	default:
		if e, isErr := res.(error); isErr {
			out["error"] = map[string]any{"code": -32000, "message": e.Error()}
		} else {
			out["result"] = res
		}
	}
	return out
}

const sampleLogJSON = `{
  "address": "0x00000000219ab540356cbb839cbe05303d7705fa",
  "topics": ["0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"],
  "data": "0x",
  "blockNumber": "0x10",
  "transactionHash": "0x6f1d5b3a5f1f0d6bb44b7d2d2b0e4d3a5d83c34bdb0d1a6a1dbd2b1c7fa6d0a1",
  "transactionIndex": "0x0",
  "blockHash": "0x8e3b7d1a6b2cb2e6b1f3a6f6dd0c0b3a7e0c2b3d0d9a6e1c6b9a8d2f3e4a5b6c",
  "logIndex": "0x2",
  "removed": false
}`
