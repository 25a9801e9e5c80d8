package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
)

// ErrClosed is returned by calls on a WebSocket client whose connection has gone away.
var ErrClosed = errors.New("websocket connection closed")

// WSClient is a JSON-RPC client over a single WebSocket connection.
// Responses are matched to callers by request id.
type WSClient struct {
	conn    *websocket.Conn
	timeout time.Duration
	nextID  atomic.Uint64
	pending *xsync.Map[uint64, chan response]

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
	err       atomic.Value // error
}

// DialWS connects to a ws(s):// endpoint and starts the read loop.
func DialWS(ctx context.Context, endpoint string, o Opts) (*WSClient, error) {
	o = o.withDefaults()
	dialer := websocket.Dialer{
		HandshakeTimeout: o.Timeout,
		ReadBufferSize:   64 * 1024,
		WriteBufferSize:  4096,
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	// eth_getLogs windows can be large.
	conn.SetReadLimit(128 * 1024 * 1024)

	c := &WSClient{
		conn:    conn,
		timeout: o.Timeout,
		pending: xsync.NewMap[uint64, chan response](),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *WSClient) readLoop() {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		var resp response
		if err := json.Unmarshal(msg, &resp); err != nil || resp.ID == nil {
			// Subscription notifications and garbage are not routed to callers.
			continue
		}
		if ch, ok := c.pending.LoadAndDelete(*resp.ID); ok {
			ch <- resp
		}
	}
}

func (c *WSClient) shutdown(cause error) {
	c.closeOnce.Do(func() {
		if cause == nil {
			cause = ErrClosed
		}
		c.err.Store(cause)
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *WSClient) call(ctx context.Context, method string, params []any, out any) error {
	select {
	case <-c.done:
		return fmt.Errorf("%w: %v", ErrClosed, c.err.Load())
	default:
	}

	id := c.nextID.Add(1)
	ch := make(chan response, 1)
	c.pending.Store(id, ch)
	defer c.pending.Delete(id)

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	err := c.conn.WriteJSON(newRequest(id, method, params))
	c.writeMu.Unlock()
	if err != nil {
		c.shutdown(err)
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return decodeResult(resp, out)
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%s: timed out after %s", method, c.timeout)
	case <-c.done:
		return fmt.Errorf("%w: %v", ErrClosed, c.err.Load())
	}
}

// ChainID returns eth_chainId.
func (c *WSClient) ChainID(ctx context.Context) (*big.Int, error) { return chainID(ctx, c) }

// BlockNumber returns eth_blockNumber.
func (c *WSClient) BlockNumber(ctx context.Context) (uint64, error) { return blockNumber(ctx, c) }

// GetLogs returns eth_getLogs for the filter.
func (c *WSClient) GetLogs(ctx context.Context, filter LogFilter) ([]types.Log, error) {
	return getLogs(ctx, c, filter)
}

// Close sends a close frame and tears the connection down.
func (c *WSClient) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.shutdown(ErrClosed)
	return nil
}
