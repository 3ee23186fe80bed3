// Package client talks to a remote file system server over a single WebSocket
// connection. Requests are multiplexed by id; when the connection drops the client
// reconnects with exponential backoff.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"remotefs/protocol"
)

const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = time.Second
	DefaultMaxReconnectDelay    = 30 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateActive
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Options struct {
	// URL is the server endpoint, e.g. ws://host:8080/fs.
	URL    string
	Header http.Header
	Dialer *ws.Dialer

	// DisableReconnect turns off automatic reconnection after a dropped connection.
	DisableReconnect     bool
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	// HandshakeTimeout bounds each reconnect attempt, including the capabilities push.
	HandshakeTimeout time.Duration
	// PingInterval sends WebSocket pings while connected, which keeps a server
	// with an idle timeout from dropping a quiet connection. Zero disables it.
	PingInterval time.Duration

	Listener Listener
	Logger   *zap.Logger
}

func (o *Options) setDefaults() {
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.MaxReconnectDelay <= 0 {
		o.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if o.MaxReconnectDelay < o.ReconnectDelay {
		o.MaxReconnectDelay = o.ReconnectDelay
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.Dialer == nil {
		o.Dialer = &ws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: o.HandshakeTimeout,
		}
	}
	if o.Listener == nil {
		o.Listener = ListenerFuncs{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// newBackoff yields min(delay*2^k, maxDelay) for the k-th retry.
func newBackoff(delay, maxDelay time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = delay
	b.MaxInterval = maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// reply completes one pending request.
type reply struct {
	data json.RawMessage
	err  error
}

// Client is safe for concurrent use.
type Client struct {
	opts     Options
	listener Listener
	log      *zap.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	state     State
	conn      *ws.Conn
	caps      *protocol.Capabilities
	nextID    uint64
	pending   map[uint64]chan reply
	reconnect bool
	attempts  int
	backoff   *backoff.ExponentialBackOff
	retry     *time.Timer
	retryGen  uint64
}

func New(opts Options) *Client {
	opts.setDefaults()
	return &Client{
		opts:     opts,
		listener: opts.Listener,
		log:      opts.Logger.Named("client"),
		pending:  make(map[uint64]chan reply),
		backoff:  newBackoff(opts.ReconnectDelay, opts.MaxReconnectDelay),
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Capabilities returns what the server granted on the current connection.
func (c *Client) Capabilities() (protocol.Capabilities, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive || c.caps == nil {
		return protocol.Capabilities{}, false
	}
	return *c.caps, true
}

// Connect dials the server and waits for its capabilities. It returns nil at once
// when already connected. A failed Connect does not schedule a retry.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateActive:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		c.mu.Unlock()
		return protocol.ErrAlreadyConnecting
	}
	c.stopRetryLocked()
	c.reconnect = !c.opts.DisableReconnect
	c.attempts = 0
	c.backoff.Reset()
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.mu.Lock()
		if c.state == StateConnecting {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// dial opens the transport and completes the handshake. On success the client
// is Active and a read loop owns the connection.
func (c *Client) dial(ctx context.Context) error {
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.opts.URL, err)
	}

	caps, err := c.handshake(ctx, conn)
	if err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnect ran while the handshake was in flight.
		c.mu.Unlock()
		conn.Close()
		return protocol.ErrConnectionClosed
	}
	c.conn = conn
	c.caps = caps
	c.state = StateActive
	c.nextID = 0
	c.attempts = 0
	c.backoff.Reset()
	c.mu.Unlock()

	c.log.Info("connected", zap.String("url", c.opts.URL), zap.Strings("allowedPaths", caps.AllowedPaths))
	done := make(chan struct{})
	go c.readLoop(conn, done)
	if c.opts.PingInterval > 0 {
		go c.keepalive(conn, done)
	}
	c.listener.OnConnect(*caps)
	return nil
}

// handshake reads the first server message, which must push capabilities.
func (c *Client) handshake(ctx context.Context, conn *ws.Conn) (*protocol.Capabilities, error) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	_, data, err := conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if ws.IsCloseError(err, ws.ClosePolicyViolation) {
			return nil, protocol.ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("failed to read handshake: %w", err)
	}

	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	switch env.Type {
	case protocol.TypeConnected:
		return env.Config, nil
	case protocol.TypeError:
		return nil, protocol.FromMessage(env.Error)
	}
	return nil, fmt.Errorf("%w: expected %s message, got %s", protocol.ErrProtocolDecode, protocol.TypeConnected, env.Type)
}

func (c *Client) readLoop(conn *ws.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}

		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			c.log.Debug("dropping malformed message", zap.Error(err))
			c.listener.OnError(err)
			continue
		}

		switch env.Type {
		case protocol.TypeResult:
			c.resolve(env)
		case protocol.TypeError:
			c.listener.OnError(protocol.FromMessage(env.Error))
		case protocol.TypeConnected:
			c.mu.Lock()
			c.caps = env.Config
			c.mu.Unlock()
		}
	}
}

func (c *Client) resolve(env *protocol.Envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.RequestID]
	delete(c.pending, env.RequestID)
	c.mu.Unlock()

	if !ok {
		c.log.Debug("ignoring result for unknown request", zap.Uint64("id", env.RequestID))
		return
	}
	if env.Success {
		ch <- reply{data: env.Data}
		return
	}
	ch <- reply{err: protocol.FromMessage(env.Error)}
}

// handleClose runs when the read loop of conn ends.
func (c *Client) handleClose(conn *ws.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		// Disconnect already tore this connection down.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.caps = nil
	c.state = StateDisconnected
	pending := c.takePendingLocked()
	scheduled := c.scheduleReconnectLocked()
	c.mu.Unlock()

	conn.Close()
	failPending(pending)
	c.log.Info("disconnected", zap.Error(cause), zap.Bool("reconnecting", scheduled))
	c.listener.OnDisconnect(cause)
}

func (c *Client) takePendingLocked() map[uint64]chan reply {
	pending := c.pending
	c.pending = make(map[uint64]chan reply)
	return pending
}

func failPending(pending map[uint64]chan reply) {
	for _, ch := range pending {
		ch <- reply{err: protocol.ErrConnectionClosed}
	}
}

// scheduleReconnectLocked arms the retry timer unless reconnection is off or
// the attempt ceiling has been reached.
func (c *Client) scheduleReconnectLocked() bool {
	if !c.reconnect {
		return false
	}
	if c.attempts >= c.opts.MaxReconnectAttempts {
		c.log.Warn("giving up reconnecting", zap.Int("attempts", c.attempts))
		return false
	}

	delay := c.backoff.NextBackOff()
	c.attempts++
	c.retryGen++
	gen := c.retryGen
	c.retry = time.AfterFunc(delay, func() { c.reconnectAttempt(gen) })
	c.log.Debug("reconnect scheduled", zap.Int("attempt", c.attempts), zap.Duration("delay", delay))
	return true
}

func (c *Client) stopRetryLocked() {
	c.retryGen++
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Client) reconnectAttempt(gen uint64) {
	c.mu.Lock()
	if gen != c.retryGen || !c.reconnect || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	c.state = StateConnecting
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.HandshakeTimeout)
	err := c.dial(ctx)
	cancel()
	if err == nil {
		return
	}

	c.log.Info("reconnect failed", zap.Error(err))
	c.listener.OnError(err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateConnecting {
		c.state = StateDisconnected
	}
	if errors.Is(err, protocol.ErrAuthenticationFailed) {
		c.reconnect = false
		return
	}
	if c.state == StateDisconnected {
		c.scheduleReconnectLocked()
	}
}

// Disconnect closes the connection, cancels any scheduled reconnect and fails every
// outstanding request with protocol.ErrConnectionClosed.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.reconnect = false
	c.stopRetryLocked()
	conn := c.conn
	wasActive := c.state == StateActive
	c.conn = nil
	c.caps = nil
	c.state = StateDisconnected
	pending := c.takePendingLocked()
	c.mu.Unlock()

	failPending(pending)
	if conn == nil {
		return nil
	}

	msg := ws.FormatCloseMessage(ws.CloseNormalClosure, "")
	_ = conn.WriteControl(ws.CloseMessage, msg, time.Now().Add(time.Second))
	err := conn.Close()
	if wasActive {
		c.listener.OnDisconnect(nil)
	}
	return err
}

// do sends req and waits for its result, decoding the result data into out.
func (c *Client) do(ctx context.Context, req protocol.Request, out any) error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return protocol.ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	ch := make(chan reply, 1)
	c.pending[id] = ch
	conn := c.conn
	c.mu.Unlock()

	data, err := protocol.EncodeRequest(id, req)
	if err != nil {
		c.forget(id)
		return err
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(ws.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return fmt.Errorf("failed to send %s request: %w", req.Op(), err)
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		if out == nil || len(r.data) == 0 {
			return nil
		}
		if err := json.Unmarshal(r.data, out); err != nil {
			return fmt.Errorf("%w: %s result: %v", protocol.ErrProtocolDecode, req.Op(), err)
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
