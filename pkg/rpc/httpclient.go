package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/lynx-network/lynx-indexer/pkg/utils"
)

// HTTPClient is a JSON-RPC client over HTTP that implements a circuit-breaker and token-bucket
// and fails over across endpoints.
type HTTPClient struct {
	endpoints []string
	client    *http.Client
	nextID    atomic.Uint64

	// token-bucket
	bucketMu    sync.Mutex
	tokens      int64
	maxTokens   int64
	refillEvery time.Duration
	lastRefill  time.Time

	// circuit-breaker
	mu       sync.Mutex
	failures map[string]int
	opened   map[string]time.Time

	breakerThreshold int
	breakerCooldown  time.Duration
}

// Opts is the set of options for a new client.
type Opts struct {
	Endpoints       []string
	Timeout         time.Duration
	RPS             int
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

// NewHTTPWithOpts creates a new HTTPClient with the given options.
func NewHTTPWithOpts(o Opts) *HTTPClient {
	o = o.withDefaults()

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	c := &HTTPClient{
		endpoints:        utils.Dedup(o.Endpoints),
		client:           client,
		maxTokens:        int64(o.Burst),
		refillEvery:      time.Second / time.Duration(o.RPS),
		failures:         map[string]int{},
		opened:           map[string]time.Time{},
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
	}
	c.tokens = c.maxTokens
	c.lastRefill = time.Now()
	return c
}

func (o Opts) withDefaults() Opts {
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = 40
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Second
	}
	return o
}

// refill adds one token per elapsed refillEvery, capped at maxTokens.
func (c *HTTPClient) refill() {
	c.bucketMu.Lock()
	defer c.bucketMu.Unlock()
	now := time.Now()
	n := int64(now.Sub(c.lastRefill) / c.refillEvery)
	if n <= 0 {
		return
	}
	c.tokens = min(c.tokens+n, c.maxTokens)
	// keep the remainder so partial intervals are not lost
	c.lastRefill = c.lastRefill.Add(time.Duration(n) * c.refillEvery)
}

func (c *HTTPClient) take() bool {
	c.bucketMu.Lock()
	defer c.bucketMu.Unlock()
	if c.tokens > 0 {
		c.tokens--
		return true
	}
	return false
}

// acquire acquires a token from the token-bucket, blocking until one is available or ctx ends.
func (c *HTTPClient) acquire(ctx context.Context) error {
	for {
		c.refill()
		if c.take() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.refillEvery / 2):
		}
	}
}

// isOpen returns true if the endpoint's breaker is in the OPEN state.
func (c *HTTPClient) isOpen(ep string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.opened[ep]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.opened, ep)
		c.failures[ep] = 0
		return false
	}
	return true
}

// noteFailure marks an endpoint as failed and opens the circuit-breaker if the failure count exceeds the threshold.
func (c *HTTPClient) noteFailure(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep]++
	if c.failures[ep] >= c.breakerThreshold {
		c.opened[ep] = time.Now().Add(c.breakerCooldown)
	}
}

func (c *HTTPClient) noteSuccess(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep] = 0
}

// call posts a JSON-RPC request to the first healthy endpoint, failing over on transport or 5xx errors.
// A JSON-RPC error object from the node is returned as *Error and does not count against the endpoint.
func (c *HTTPClient) call(ctx context.Context, method string, params []any, out any) error {
	if len(c.endpoints) == 0 {
		return fmt.Errorf("no endpoints configured")
	}

	body, mErr := json.Marshal(newRequest(c.nextID.Add(1), method, params))
	if mErr != nil {
		return mErr
	}

	var lastErr error
	for _, ep := range c.endpoints {
		// Skip endpoints whose breaker is OPEN.
		if c.isOpen(ep) {
			continue
		}

		if err := c.acquire(ctx); err != nil {
			return err
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, ep, bytes.NewReader(body))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			c.noteFailure(ep)
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("%s: server %d", ep, resp.StatusCode)
			c.noteFailure(ep)
			_ = utils.DrainAndClose(resp.Body)
			continue
		}
		if resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("%s: http %d", ep, resp.StatusCode)
			_ = utils.DrainAndClose(resp.Body)
			continue
		}

		var rpcResp response
		decErr := json.NewDecoder(resp.Body).Decode(&rpcResp)
		_ = utils.DrainAndClose(resp.Body)
		if decErr != nil {
			lastErr = fmt.Errorf("%s: decode response: %w", ep, decErr)
			c.noteFailure(ep)
			continue
		}
		c.noteSuccess(ep)

		err = decodeResult(rpcResp, out)
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			return rpcErr
		}
		return err
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("all endpoints unavailable (circuit open)")
	}
	return lastErr
}

// ChainID returns eth_chainId.
func (c *HTTPClient) ChainID(ctx context.Context) (*big.Int, error) { return chainID(ctx, c) }

// BlockNumber returns eth_blockNumber.
func (c *HTTPClient) BlockNumber(ctx context.Context) (uint64, error) { return blockNumber(ctx, c) }

// GetLogs returns eth_getLogs for the filter.
func (c *HTTPClient) GetLogs(ctx context.Context, filter LogFilter) ([]types.Log, error) {
	return getLogs(ctx, c, filter)
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
