package websocket

import (
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"remotefs/protocol"
)

const closeWriteTimeout = time.Second

type Conn struct {
	*ws.Conn
	*sync.Mutex
	// Frames carries inbound text frames in arrival order.
	Frames chan []byte

	closed bool
	log    *zap.Logger
}

func newUpgrader(checkOrigin func(r *http.Request) bool) *ws.Upgrader {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
}

// NewConn upgrades the request and wraps the resulting connection.
func NewConn(upgrader *ws.Upgrader, w http.ResponseWriter, r *http.Request, log *zap.Logger) (*Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return nil, err
	}
	return wrapConn(conn, log), nil
}

func wrapConn(conn *ws.Conn, log *zap.Logger) *Conn {
	return &Conn{
		Conn:   conn,
		Mutex:  new(sync.Mutex),
		Frames: make(chan []byte, 10),
		log:    log,
	}
}

// WriteJSON sends one message. It fails with protocol.ErrConnectionClosed once the
// connection has been closed.
func (c *Conn) WriteJSON(v any) error {
	c.Lock()
	defer c.Unlock()

	if c.closed {
		return protocol.ErrConnectionClosed
	}
	err := c.Conn.WriteJSON(v)
	if err != nil {
		c.log.Debug("write failed", zap.Error(err))
	}
	return err
}

// CloseWith sends a close frame carrying code and reason, then closes the connection.
func (c *Conn) CloseWith(code int, reason string) error {
	c.Lock()
	if c.closed {
		c.Unlock()
		return nil
	}
	c.closed = true
	c.Unlock()

	msg := ws.FormatCloseMessage(code, reason)
	_ = c.Conn.WriteControl(ws.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	return c.Conn.Close()
}

// Close closes the connection without a close frame.
func (c *Conn) Close() error {
	c.Lock()
	if c.closed {
		c.Unlock()
		return nil
	}
	c.closed = true
	c.Unlock()
	return c.Conn.Close()
}

func (c *Conn) IsClosed() bool {
	c.Lock()
	defer c.Unlock()
	return c.closed
}

// StartDispatch reads frames into Frames until the connection fails. When idle is
// positive, a connection that stays silent for that long is dropped; pings count
// as activity so a client can hold an otherwise quiet connection open.
func (c *Conn) StartDispatch(idle time.Duration) error {
	defer close(c.Frames)
	if idle > 0 {
		c.SetPingHandler(func(appData string) error {
			_ = c.SetReadDeadline(time.Now().Add(idle))
			err := c.WriteControl(ws.PongMessage, []byte(appData), time.Now().Add(closeWriteTimeout))
			if err == ws.ErrCloseSent {
				return nil
			}
			return err
		})
	}
	for {
		if idle > 0 {
			_ = c.SetReadDeadline(time.Now().Add(idle))
		}
		msgType, data, err := c.ReadMessage()
		if err != nil {
			c.Lock()
			c.closed = true
			c.Unlock()
			_ = c.Conn.Close()
			return err
		}

		if msgType != ws.TextMessage {
			c.log.Debug("ignoring non-text frame", zap.Int("type", msgType))
			continue
		}
		c.Frames <- data
	}
}
