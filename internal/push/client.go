// Package push maintains the single real-time channel of a session and routes
// its events to the engine.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Emit while the channel is down.
var ErrNotConnected = errors.New("push channel not connected")

const (
	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 20 * time.Second
	writeWait           = 10 * time.Second
)

// Options tunes the reconnection policy.
type Options struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MinHealthy is how long a connected session must last before its loss
	// resets the backoff.
	MinHealthy time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 8
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.MinHealthy <= 0 {
		o.MinHealthy = 10 * time.Second
	}
	return o
}

// Client is a Socket.IO client over the websocket transport. One Client is
// shared by every consumer of a session through its Router.
type Client struct {
	baseURL   string
	accountID string
	router    *Router
	log       *slog.Logger
	dialer    *websocket.Dialer
	opts      Options

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	onState   func(connected bool)

	writeMu sync.Mutex
}

func NewClient(baseURL, accountID string, router *Router, log *slog.Logger, opts Options) *Client {
	return &Client{
		baseURL:   baseURL,
		accountID: accountID,
		router:    router,
		log:       log.With("component", "push"),
		dialer:    websocket.DefaultDialer,
		opts:      opts.withDefaults(),
	}
}

// Router returns the event router fed by this client.
func (c *Client) Router() *Router { return c.router }

// OnStateChange registers a callback for connect/disconnect transitions.
func (c *Client) OnStateChange(fn func(connected bool)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// Connected reports whether the namespace handshake has completed.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Endpoint builds the websocket URL for the configured server.
func (c *Client) Endpoint() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("push url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("push url: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/socket.io/"
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	q.Set("accountId", c.accountID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// errShortSession marks a session that dropped before it was healthy.
var errShortSession = errors.New("push session dropped early")

// Run keeps the channel open until ctx is cancelled. Dial failures, refused
// namespace connects and sessions shorter than MinHealthy all count as failed
// attempts under a capped exponential backoff; only a healthy session resets
// it. An exhausted attempt budget waits MaxBackoff and starts a new round.
func (c *Client) Run(ctx context.Context) error {
	if c.accountID == "" {
		return errors.New("push: account id required")
	}
	endpoint, err := c.Endpoint()
	if err != nil {
		return err
	}

	r := retrier.New(retrier.LimitedExponentialBackoff(c.opts.MaxAttempts, c.opts.InitialBackoff, c.opts.MaxBackoff), nil)
	for ctx.Err() == nil {
		err := r.RunCtx(ctx, func(ctx context.Context) error {
			return c.attempt(ctx, endpoint)
		})
		if ctx.Err() != nil {
			break
		}
		if err == nil {
			continue
		}
		c.log.Error("reconnect attempts exhausted", "err", err, "retry_in", c.opts.MaxBackoff)
		select {
		case <-ctx.Done():
		case <-time.After(c.opts.MaxBackoff):
		}
	}
	return ctx.Err()
}

// attempt runs one dial and session. It returns nil only for a session that
// connected and stayed up for MinHealthy.
func (c *Client) attempt(ctx context.Context, endpoint string) error {
	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		c.log.Warn("dial failed", "err", err)
		return err
	}

	started := time.Now()
	connected, err := c.serve(ctx, conn)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		c.log.Warn("connection closed", "err", err, "connected", connected)
	}
	if connected && time.Since(started) >= c.opts.MinHealthy {
		return nil
	}
	if err == nil {
		return errShortSession
	}
	return fmt.Errorf("%w: %w", errShortSession, err)
}

// serve runs the read loop of one connection. connected reports whether the
// namespace handshake completed.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) (connected bool, err error) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	stop := make(chan struct{})
	defer func() {
		close(stop)
		conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.setConnected(false)
	}()
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	deadline := defaultPingInterval + defaultPingTimeout
	for {
		_ = conn.SetReadDeadline(time.Now().Add(deadline))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return connected, err
		}
		typ, body, err := splitEngine(string(data))
		if err != nil {
			continue
		}

		switch typ {
		case eioOpen:
			var open openPayload
			if err := json.Unmarshal([]byte(body), &open); err != nil {
				return connected, fmt.Errorf("open packet: %w", err)
			}
			if open.PingInterval > 0 {
				deadline = time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond
			}
			frame, err := encodeConnect(map[string]string{"accountId": c.accountID})
			if err != nil {
				return connected, err
			}
			if err := c.write(frame); err != nil {
				return connected, err
			}
		case eioPing:
			if err := c.write(string(eioPong)); err != nil {
				return connected, err
			}
		case eioClose:
			return connected, errors.New("server closed transport")
		case eioMessage:
			if err := c.handleSocket(body); err != nil {
				return connected, err
			}
			connected = connected || c.Connected()
		case eioNoop, eioPong:
		default:
			c.log.Debug("ignoring engine packet", "type", string(typ))
		}
	}
}

func (c *Client) handleSocket(body string) error {
	p, err := decodeSocket(body)
	if err != nil {
		c.log.Warn("bad socket packet", "err", err)
		return nil
	}
	if p.Namespace != "/" {
		return nil
	}

	switch p.Type {
	case sioConnect:
		c.setConnected(true)
		c.log.Info("connected", "account_id", c.accountID)
	case sioConnectError:
		return fmt.Errorf("connect refused: %s", string(p.Data))
	case sioDisconnect:
		return errors.New("server disconnected namespace")
	case sioEvent:
		name, arg, err := eventArgs(p.Data)
		if err != nil {
			c.log.Warn("bad event", "err", err)
			return nil
		}
		if n := c.router.Dispatch(name, arg); n == 0 {
			c.log.Debug("unhandled event", "event", name)
		}
	case sioAck:
	}
	return nil
}

// Emit sends a client event on the open channel.
func (c *Client) Emit(event string, payload any) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	frame, err := encodeEvent(event, payload)
	if err != nil {
		return err
	}
	return c.write(frame)
}

func (c *Client) write(frame string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	changed := c.connected != v
	c.connected = v
	fn := c.onState
	c.mu.Unlock()

	if changed && fn != nil {
		fn(v)
	}
}
