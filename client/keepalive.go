package client

import (
	"time"

	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// keepalive pings conn every PingInterval until done is closed.
func (c *Client) keepalive(conn *ws.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.PingInterval)
			if err := conn.WriteControl(ws.PingMessage, nil, deadline); err != nil {
				c.log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}
