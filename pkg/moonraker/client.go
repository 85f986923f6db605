// Package moonraker provides a client for the Moonraker websocket API.
// The calibration tool reaches the running Klipper host through it: object
// status queries for preconditions and gcode scripts for motion and probing.
package moonraker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hawkeyexp/auto-offset-z/pkg/log"
)

// DefaultCallTimeout bounds a single RPC round trip. Probing moves can take
// a while on slow Z speeds, so this is generous.
const DefaultCallTimeout = 120 * time.Second

// rpcRequest is a JSON-RPC 2.0 request frame.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int64  `json:"id"`
}

// rpcResponse is a JSON-RPC 2.0 response frame. Frames without an ID are
// server notifications and are not responses at all.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("moonraker error %d: %s", e.Code, e.Message)
}

// Client is a JSON-RPC client over the Moonraker websocket transport.
// Safe for concurrent use; responses are correlated to requests by id.
type Client struct {
	conn    *websocket.Conn
	logger  *log.Logger
	timeout time.Duration
	onCall  func(method string, err error)

	writeMu sync.Mutex

	nextID    atomic.Int64
	pendingMu sync.Mutex
	pending   map[int64]chan *rpcResponse

	closeOnce sync.Once
	closed    chan struct{}
	readErr   error
}

// Dial connects to a Moonraker instance at host:port.
func Dial(ctx context.Context, addr string) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/websocket"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("moonraker: connect %s: %w", u.String(), err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established websocket connection.
func NewClient(conn *websocket.Conn) *Client {
	c := &Client{
		conn:    conn,
		logger:  log.New("moonraker"),
		timeout: DefaultCallTimeout,
		pending: make(map[int64]chan *rpcResponse),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// SetTimeout overrides the per-call timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// OnCall registers a hook invoked after every RPC round trip, for
// instrumentation. Must be set before the client is shared.
func (c *Client) OnCall(hook func(method string, err error)) {
	c.onCall = hook
}

// Close shuts the connection down and fails all in-flight calls.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// readLoop delivers response frames to their waiting callers. Notification
// frames (no id) are logged at debug level and dropped.
func (c *Client) readLoop() {
	for {
		var resp rpcResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.readErr = err
			c.failPending()
			c.Close()
			return
		}
		if resp.ID == nil {
			c.logger.Debug("notification: %s", resp.Method)
			continue
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[*resp.ID]
		if ok {
			delete(c.pending, *resp.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- &resp
		}
	}
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
}

// Call performs one JSON-RPC round trip and returns the raw result.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, err := c.call(ctx, method, params)
	if c.onCall != nil {
		c.onCall(method, err)
	}
	return raw, err
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan *rpcResponse, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id}
	c.writeMu.Lock()
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("moonraker: send %s: %w", method, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("moonraker: connection lost during %s: %w", method, c.readErr)
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	case <-c.closed:
		return nil, fmt.Errorf("moonraker: connection closed during %s", method)
	case <-timer.C:
		c.dropPending(id)
		return nil, fmt.Errorf("moonraker: %s timed out after %s", method, c.timeout)
	}
}

func (c *Client) dropPending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// QueryObjects queries printer object status. The map value lists the
// attributes wanted, or nil for all of them.
func (c *Client) QueryObjects(ctx context.Context, objects map[string][]string) (map[string]map[string]any, error) {
	objParam := make(map[string]any, len(objects))
	for name, attrs := range objects {
		if attrs == nil {
			objParam[name] = nil
		} else {
			objParam[name] = attrs
		}
	}
	raw, err := c.Call(ctx, "printer.objects/query", map[string]any{"objects": objParam})
	if err != nil {
		return nil, err
	}
	var result struct {
		Status map[string]map[string]any `json:"status"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("moonraker: bad objects/query result: %w", err)
	}
	return result.Status, nil
}

// RunGCode executes a gcode script on the host and waits for completion.
func (c *Client) RunGCode(ctx context.Context, script string) error {
	c.logger.Debug("gcode: %s", script)
	_, err := c.Call(ctx, "printer.gcode/script", map[string]any{"script": script})
	return err
}

// ServerInfo returns the Moonraker server info block, useful as a
// connectivity check.
func (c *Client) ServerInfo(ctx context.Context) (map[string]any, error) {
	raw, err := c.Call(ctx, "server.info", nil)
	if err != nil {
		return nil, err
	}
	var info map[string]any
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("moonraker: bad server.info result: %w", err)
	}
	return info, nil
}
