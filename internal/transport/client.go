// Package transport exchanges operations with a collaboration server over a
// websocket connection.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"myvc/internal/vc"
)

// Subprotocol is negotiated with the server on connect.
const Subprotocol = "myvc-protocol"

// DefaultConnectTimeout bounds Connect when the caller's context has no deadline.
const DefaultConnectTimeout = 5 * time.Second

// ErrConnect wraps failures to establish a connection.
var ErrConnect = errors.New("websocket connect failed")

// State is the connection state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(l vc.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

// Client is a websocket transport. It implements vc.Sink; Send fails with
// vc.ErrOffline whenever the client is not connected.
type Client struct {
	url            string
	logger         vc.Logger
	connectTimeout time.Duration

	mu    sync.Mutex
	conn  *websocket.Conn
	state State
}

var _ vc.Sink = (*Client)(nil)

// NewClient creates a disconnected client for ws://server:port/path.
func NewClient(server string, port int, path string, opts ...Option) *Client {
	if path == "" {
		path = "/"
	}
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(server, strconv.Itoa(port)), Path: path}
	c := &Client{
		url:            u.String(),
		logger:         vc.NewNopLogger(),
		connectTimeout: DefaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the server URL.
func (c *Client) URL() string { return c.url }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the server. Connecting an already connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.connectTimeout)
		defer cancel()
	}

	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateError
		return fmt.Errorf("%w: %s: %v", ErrConnect, c.url, err)
	}
	c.conn = conn
	c.state = StateConnected
	c.logger.Info("connected to server", "url", c.url)
	return nil
}

// Send writes op as a JSON text message.
func (c *Client) Send(ctx context.Context, op vc.Operation) error {
	conn := c.connected()
	if conn == nil {
		return vc.ErrOffline
	}
	if err := wsjson.Write(ctx, conn, op); err != nil {
		c.drop(conn, err)
		return fmt.Errorf("%w: %v", vc.ErrOffline, err)
	}
	c.logger.Debug("sent operation", "kind", op.Kind, "path", op.Path, "line", op.Line)
	return nil
}

// Receive reads operations until ctx is cancelled or the connection drops,
// calling fn for each. Messages that do not decode are logged and skipped.
// It returns nil when ctx is cancelled.
func (c *Client) Receive(ctx context.Context, fn func(vc.Operation)) error {
	conn := c.connected()
	if conn == nil {
		return vc.ErrOffline
	}
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.drop(conn, err)
			return fmt.Errorf("%w: %v", vc.ErrOffline, err)
		}
		if typ != websocket.MessageText {
			c.logger.Warn("ignoring non-text message")
			continue
		}
		var op vc.Operation
		if err := json.Unmarshal(data, &op); err != nil {
			c.logger.Warn("ignoring malformed operation", "error", err)
			continue
		}
		if err := op.Validate(); err != nil {
			c.logger.Warn("ignoring invalid operation", "error", err)
			continue
		}
		fn(op)
	}
}

// Close closes the connection with a normal closure status.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
		var ce websocket.CloseError
		if !errors.As(err, &ce) {
			return fmt.Errorf("closing websocket: %w", err)
		}
	}
	c.logger.Info("disconnected from server", "url", c.url)
	return nil
}

func (c *Client) connected() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return nil
	}
	return c.conn
}

// drop marks the client disconnected after an I/O failure on conn.
func (c *Client) drop(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	conn.CloseNow()
	c.logger.Warn("connection lost", "url", c.url, "error", cause)
}
